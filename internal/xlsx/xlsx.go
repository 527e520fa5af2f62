// Package xlsx reads and writes the Excel workbooks the toolkit exchanges:
// crawl outputs, deduplicated tables, scored tables and the company/issue
// input workbook. Column names follow the Korean reporting schema.
package xlsx

import (
	"strconv"
	"strings"
)

// Column headers shared across workbooks.
const (
	ColESG       = "esg"
	ColTheme     = "주제"
	ColKeyIssue  = "Key Issue (핵심 이슈)"
	ColKeyword   = "뉴스 키워드 후보"
	ColNegatives = "부정 ESG 키워드"
	ColScore     = "부정점수"
	ColDate      = "뉴스 보도날짜"
	ColDateYMD   = "뉴스 보도날짜(YYYYMMDD)"
	ColTitle     = "기사제목"
	ColPress     = "언론사"
	ColURL       = "기사 URL"
	ColCompany   = "회사명"
	ColCorpID    = "고유번호"
	ColTicker    = "종목코드"
)

// OutputColumns is the fixed column order of a crawl output sheet.
var OutputColumns = []string{
	ColESG, ColTheme, ColKeyIssue, ColKeyword, ColNegatives, ColScore,
	ColDate, ColTitle, ColPress, ColURL, ColCompany, ColCorpID, ColTicker,
}

// DefaultSheet is the sheet name crawl outputs are written to and the
// reader falls back to when the workbook has one.
const DefaultSheet = "output"

const maxSheetName = 31

var sheetNameSanitizer = strings.NewReplacer(
	"[", "_", "]", "_", ":", "_", "*", "_", "?", "_", "/", "_", "\\", "_",
)

// SanitizeSheetName strips the characters Excel forbids in sheet names and
// truncates to the 31-character limit.
func SanitizeSheetName(name string) string {
	name = sheetNameSanitizer.Replace(strings.TrimSpace(name))
	if name == "" {
		name = "Sheet"
	}
	runes := []rune(name)
	if len(runes) > maxSheetName {
		name = string(runes[:maxSheetName])
	}
	return name
}

// uniqueName appends _2, _3, ... until the name is free, keeping the result
// within the sheet name limit.
func uniqueName(taken map[string]bool, base string) string {
	if !taken[base] {
		return base
	}
	for n := 2; ; n++ {
		suffix := "_" + strconv.Itoa(n)
		runes := []rune(base)
		if len(runes)+len(suffix) > maxSheetName {
			runes = runes[:maxSheetName-len(suffix)]
		}
		candidate := string(runes) + suffix
		if !taken[candidate] {
			return candidate
		}
	}
}
