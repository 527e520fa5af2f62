// Package report renders a markdown summary of one pipeline run.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/esglab/newsdesk/internal/dedup"
)

// Data collects everything one run report draws from. Nil or zero
// sections are left out of the rendered report.
type Data struct {
	RunID         string
	DateFrom      string
	DateTo        string
	Source        string
	OutputPath    string
	TotalFound    int
	NewArticles   int
	Duplicates    int
	FailedQueries int
	PerCompany    map[string]int
	Dedup         *dedup.Stats
	Violations    []dedup.Violation
	Scored        int
	Negative      int
}

// Compose renders the report markdown.
func Compose(d *Data) string {
	var sections []string

	var head strings.Builder
	fmt.Fprintf(&head, "# 뉴스 수집 리포트 %s\n\n", d.RunID)
	fmt.Fprintf(&head, "- 수집 기간: %s ~ %s", formatDay(d.DateFrom), formatDay(d.DateTo))
	if d.Source != "" {
		fmt.Fprintf(&head, "\n- 수집 소스: %s", d.Source)
	}
	if d.OutputPath != "" {
		fmt.Fprintf(&head, "\n- 산출 파일: %s", d.OutputPath)
	}
	sections = append(sections, head.String())

	if d.Source != "" || d.TotalFound > 0 || d.NewArticles > 0 || d.Duplicates > 0 {
		sections = append(sections, composeCollect(d))
	}
	if d.Dedup != nil {
		sections = append(sections, composeDedup(d.Dedup))
	}
	if d.Dedup != nil || len(d.Violations) > 0 {
		sections = append(sections, composeViolations(d.Violations))
	}
	if d.Scored > 0 {
		sections = append(sections, fmt.Sprintf("## 부정 스코어링\n\n기사 %d건을 스코어링하여 %d건이 부정으로 분류되었습니다.", d.Scored, d.Negative))
	}

	return strings.Join(sections, "\n\n") + "\n"
}

// Write renders the report and writes it next to the run's workbook.
func Write(dir string, d *Data) (string, error) {
	path := filepath.Join(dir, "news_report_"+d.RunID+".md")
	if err := os.WriteFile(path, []byte(Compose(d)), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

func composeCollect(d *Data) string {
	var b strings.Builder
	b.WriteString("## 수집 결과\n\n")
	fmt.Fprintf(&b, "검색 결과 %d건 중 신규 %d건, 중복 %d건", d.TotalFound, d.NewArticles, d.Duplicates)
	if d.FailedQueries > 0 {
		fmt.Fprintf(&b, ", 실패한 검색 %d건", d.FailedQueries)
	}
	b.WriteString("\n")

	if len(d.PerCompany) > 0 {
		companies := make([]string, 0, len(d.PerCompany))
		for name := range d.PerCompany {
			companies = append(companies, name)
		}
		sort.Strings(companies)

		rows := make([][]string, 0, len(companies))
		for _, name := range companies {
			rows = append(rows, []string{name, fmt.Sprintf("%d", d.PerCompany[name])})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"회사명", "신규 기사"}, rows))
	}
	return strings.TrimRight(b.String(), "\n")
}

func composeDedup(s *dedup.Stats) string {
	return fmt.Sprintf(
		"## 중복 제거\n\n입력 %d건 중 날짜 확인 %d건, 중복 제거 후 %d건, 윈도우 선별 %d건이 남았습니다.",
		s.Input, s.Dated, s.AfterExact, s.Kept)
}

func composeViolations(violations []dedup.Violation) string {
	if len(violations) == 0 {
		return "## 윈도우 위반\n\n윈도우 위반이 없습니다."
	}

	rows := make([][]string, 0, len(violations))
	for _, v := range violations {
		rows = append(rows, []string{
			v.Company, v.Keyword, v.PrevDate, v.Date, fmt.Sprintf("%d일", v.GapDays),
		})
	}
	var b strings.Builder
	fmt.Fprintf(&b, "## 윈도우 위반 (%d건)\n\n", len(violations))
	b.WriteString(renderTable([]string{"회사명", "키워드", "이전 보도", "보도날짜", "간격"}, rows))
	return strings.TrimRight(b.String(), "\n")
}

// renderTable writes a markdown table padded with runewidth so the raw
// text stays aligned despite double-width Hangul cells.
func renderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		b.WriteString("|")
		for i, cell := range cells {
			b.WriteString(" " + runewidth.FillRight(cell, widths[i]) + " |")
		}
		b.WriteString("\n")
	}

	writeRow(headers)
	b.WriteString("|")
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2) + "|")
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(row)
	}
	return b.String()
}

// formatDay renders a YYYYMMDD date with dashes for the report header.
func formatDay(ymd string) string {
	if len(ymd) != 8 {
		return ymd
	}
	return ymd[:4] + "-" + ymd[4:6] + "-" + ymd[6:]
}
