package xlsx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/esglab/newsdesk/internal/dedup"
)

// ReadTable loads an article sheet into a table. An empty sheet name picks
// the "output" sheet when the workbook has one, otherwise the first sheet.
func ReadTable(path, sheet string) (*dedup.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = pickSheet(f)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}

	headers := rows[0]
	layout, err := resolveLayout(headers)
	if err != nil {
		return nil, err
	}

	table := &dedup.Table{Columns: headers, Layout: layout}
	for _, cells := range rows[1:] {
		if emptyRow(cells) {
			continue
		}
		table.Rows = append(table.Rows, toArticle(cells, headers, layout))
	}
	return table, nil
}

func pickSheet(f *excelize.File) string {
	for _, name := range f.GetSheetList() {
		if name == DefaultSheet {
			return name
		}
	}
	return f.GetSheetName(0)
}

// resolveLayout maps the Korean header row to column indexes. Company,
// keyword and date columns are required; URL, title and score are optional.
func resolveLayout(headers []string) (dedup.Layout, error) {
	layout := dedup.Layout{Company: -1, Keyword: -1, Date: -1, URL: -1, Title: -1, Score: -1}
	find := func(name string) int {
		for i, h := range headers {
			if strings.TrimSpace(h) == name {
				return i
			}
		}
		return -1
	}

	layout.Company = find(ColCompany)
	if layout.Company < 0 {
		return layout, fmt.Errorf("input workbook has no %q column", ColCompany)
	}

	layout.Keyword = find(ColKeyword)
	if layout.Keyword < 0 {
		layout.Keyword = find(ColKeyIssue)
	}
	if layout.Keyword < 0 {
		return layout, fmt.Errorf("input workbook has no %q or %q column", ColKeyword, ColKeyIssue)
	}

	layout.Date = find(ColDateYMD)
	if layout.Date < 0 {
		layout.Date = find(ColDate)
	}
	if layout.Date < 0 {
		for i, h := range headers {
			if strings.Contains(h, "보도날짜") {
				layout.Date = i
				break
			}
		}
	}
	if layout.Date < 0 {
		return layout, fmt.Errorf("input workbook has no %q column", ColDate)
	}

	layout.URL = find(ColURL)
	layout.Title = find(ColTitle)
	layout.Score = find(ColScore)
	return layout, nil
}

func toArticle(cells, headers []string, layout dedup.Layout) dedup.Article {
	padded := make([]string, len(headers))
	copy(padded, cells)
	a := dedup.Article{
		Company: padded[layout.Company],
		Keyword: padded[layout.Keyword],
		RawDate: padded[layout.Date],
		Cells:   padded,
	}
	if layout.URL >= 0 {
		a.URL = padded[layout.URL]
	}
	if layout.Title >= 0 {
		a.Title = padded[layout.Title]
	}
	if layout.Score >= 0 {
		if v, err := strconv.ParseFloat(strings.TrimSpace(padded[layout.Score]), 64); err == nil {
			a.Score = v
			a.HasScore = true
		}
	}
	return a
}

func emptyRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
