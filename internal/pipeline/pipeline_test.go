package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/esglab/newsdesk/internal/collect"
	"github.com/esglab/newsdesk/internal/config"
	"github.com/esglab/newsdesk/internal/database"
	"github.com/esglab/newsdesk/internal/xlsx"
)

type sheetDef struct {
	name string
	rows [][]interface{}
}

// writeInputs builds a minimal input workbook: one company, one issue
// with the single keyword 폐수, plus an optional Config sheet.
func writeInputs(t *testing.T, configRows [][]interface{}) string {
	t.Helper()
	sheets := []sheetDef{
		{name: "Company", rows: [][]interface{}{
			{"회사명", "고유번호", "종목코드"},
			{"삼성전자", "00126380", "005930"},
		}},
		{name: "ESG", rows: [][]interface{}{
			{"주제", "구분", "Key Issue", "부정 키워드"},
			{"E(환경)", "", "수질 및 토양 오염", "폐수"},
		}},
	}
	if configRows != nil {
		sheets = append(sheets, sheetDef{name: "Config", rows: configRows})
	}

	f := excelize.NewFile()
	defer f.Close()
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				t.Fatalf("rename sheet: %v", err)
			}
		} else {
			if _, err := f.NewSheet(s.name); err != nil {
				t.Fatalf("new sheet: %v", err)
			}
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				t.Fatalf("cell name: %v", err)
			}
			if err := f.SetSheetRow(s.name, cell, &row); err != nil {
				t.Fatalf("write row: %v", err)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "input.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

type fakeSource struct {
	items map[string][]collect.Item
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Fetch(_ context.Context, q collect.Query) ([]collect.Item, error) {
	return f.items[q.Term()], nil
}

type fakeEmbedder struct {
	vectors map[string][]float64
}

func (f *fakeEmbedder) Name() string { return "fake" }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		if v, ok := f.vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = []float64{0, 0}
		}
	}
	return out, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Dedup:  config.Dedup{WindowDays: 30, Policy: "earliest", Mode: "rolling_window"},
		Score:  config.Score{Threshold: 0.5},
		Output: config.Output{SheetName: "output"},
	}
}

func openDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPipelineRun(t *testing.T) {
	input := writeInputs(t, [][]interface{}{
		{"parameter", "value"},
		{"date_from", "2024.01.01"},
		{"date_to", "2024.12.31"},
	})
	db := openDB(t)
	outDir := t.TempDir()

	// Three hits for the one query: two inside one 30-day burst, the
	// third far enough out to open a new one.
	src := &fakeSource{items: map[string][]collect.Item{
		"삼성전자 폐수": {
			{Company: "삼성전자", Keyword: "폐수", Title: "삼성전자 공장 폐수 무단 방류 적발", URL: "http://news.example/1", Press: "환경일보", Date: "20240105"},
			{Company: "삼성전자", Keyword: "폐수", Title: "삼성전자 폐수 방류 후속 보도", URL: "http://news.example/2", Press: "매일신문", Date: "20240110"},
			{Company: "삼성전자", Keyword: "폐수", Title: "삼성전자 신제품 발표 행사", URL: "http://news.example/3", Press: "매일경제", Date: "20240301"},
		},
	}}

	vs := make(map[string][]float64)
	vs["삼성전자 공장 폐수 무단 방류 적발"] = []float64{1, 0}
	vs["삼성전자 신제품 발표 행사"] = []float64{0, 1}
	vs["폐수"] = []float64{0.9, 0.1}

	p := New(testConfig(), db, src)
	p.Embedder = &fakeEmbedder{vectors: vs}

	res := p.Run(context.Background(), Options{InputPath: input, OutputDir: outDir})

	if len(res.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d: %+v", len(res.Steps), res.Steps)
	}
	for _, s := range res.Steps {
		if s.Err != nil {
			t.Fatalf("step %s failed: %v", s.Name, s.Err)
		}
	}
	if filepath.Base(res.OutputPath) != "news_output_"+res.RunID+".xlsx" {
		t.Errorf("unexpected output name: %s", res.OutputPath)
	}

	table, err := xlsx.ReadTable(res.OutputPath, "")
	if err != nil {
		t.Fatalf("reread output: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows after window dedup, got %d", len(table.Rows))
	}
	if len(table.Columns) != len(xlsx.OutputColumns)+3 {
		t.Fatalf("expected 3 appended scored columns, got %v", table.Columns)
	}
	if table.Rows[0].RawDate != "20240105" || table.Rows[1].RawDate != "20240301" {
		t.Errorf("unexpected kept dates: %q, %q", table.Rows[0].RawDate, table.Rows[1].RawDate)
	}

	negIdx := colIndex(table.Columns, "부정 여부")
	if negIdx < 0 {
		t.Fatalf("missing 부정 여부 column: %v", table.Columns)
	}
	if got := table.Rows[0].Cells[negIdx]; got != "1" {
		t.Errorf("expected the 폐수 article to score negative, got %q", got)
	}
	if got := table.Rows[1].Cells[negIdx]; got != "0" {
		t.Errorf("expected the 신제품 article to stay non-negative, got %q", got)
	}
	if !table.Rows[0].HasScore || table.Rows[0].Score <= 0.5 {
		t.Errorf("expected a written score above threshold, got %v", table.Rows[0].Score)
	}

	run, err := db.GetRun(res.RunID)
	if err != nil || run == nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if run.TotalFound != 3 || run.NewCount != 3 || run.DupCount != 0 {
		t.Errorf("unexpected run counts: %+v", run)
	}

	violations, err := db.GetViolationsForRun(res.RunID)
	if err != nil {
		t.Fatalf("violations: %v", err)
	}
	if len(violations) != 1 {
		t.Fatalf("expected 1 window violation, got %d", len(violations))
	}
	if v := violations[0]; v.PrevDate != "20240105" || v.Date != "20240110" || v.GapDays != 5 {
		t.Errorf("unexpected violation: %+v", v)
	}

	kept, err := db.GetArticleByURL("http://news.example/1")
	if err != nil || kept == nil || kept.NegativeScore == nil {
		t.Fatalf("expected a stored score for the kept article: %+v, %v", kept, err)
	}
	dropped, err := db.GetArticleByURL("http://news.example/2")
	if err != nil || dropped == nil {
		t.Fatalf("window-dropped article missing from the store: %v", err)
	}
	if dropped.NegativeScore != nil {
		t.Errorf("window-dropped article should stay unscored, got %v", *dropped.NegativeScore)
	}

	reportText, err := os.ReadFile(res.ReportPath)
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	for _, want := range []string{"뉴스 수집 리포트", "윈도우 위반", "삼성전자", "중복 제거"} {
		if !strings.Contains(string(reportText), want) {
			t.Errorf("report is missing %q", want)
		}
	}
}

func TestPipelineRunWithoutEmbedder(t *testing.T) {
	input := writeInputs(t, nil)
	db := openDB(t)
	outDir := t.TempDir()

	date := time.Now().Format("2006") + "0601"
	src := &fakeSource{items: map[string][]collect.Item{
		"삼성전자 폐수": {
			{Company: "삼성전자", Keyword: "폐수", Title: "삼성전자 폐수 기사", URL: "http://news.example/1", Date: date},
		},
	}}

	cfg := testConfig()
	cfg.Embedding.Provider = "vectors"
	res := New(cfg, db, src).Run(context.Background(), Options{InputPath: input, OutputDir: outDir})

	for _, s := range res.Steps {
		if s.Err != nil {
			t.Fatalf("step %s failed: %v", s.Name, s.Err)
		}
	}
	var scoreStep StepResult
	for _, s := range res.Steps {
		if s.Name == "Score" {
			scoreStep = s
		}
	}
	if !strings.Contains(scoreStep.Summary, "skipped") {
		t.Errorf("expected the score step to be skipped, got %q", scoreStep.Summary)
	}

	table, err := xlsx.ReadTable(res.OutputPath, "")
	if err != nil {
		t.Fatalf("reread output: %v", err)
	}
	if len(table.Columns) != len(xlsx.OutputColumns) {
		t.Errorf("unscored output should keep the base schema, got %v", table.Columns)
	}
	if len(table.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(table.Rows))
	}
	if got := table.Rows[0].Cells[table.Layout.Score]; got != "-1" {
		t.Errorf("expected the crawl placeholder score, got %q", got)
	}
}

func TestPipelineCollectPrefersWatchList(t *testing.T) {
	input := writeInputs(t, [][]interface{}{
		{"parameter", "value"},
		{"date_from", "2024.01.01"},
		{"date_to", "2024.12.31"},
	})
	db := openDB(t)

	corpID := "00164742"
	if _, err := db.UpsertWatchCompany("현대자동차", &corpID, nil); err != nil {
		t.Fatalf("watch: %v", err)
	}

	src := &fakeSource{items: map[string][]collect.Item{
		"현대자동차 폐수": {
			{Company: "현대자동차", Keyword: "폐수", Title: "현대자동차 폐수 처리 위반", URL: "http://news.example/h1", Date: "20240201"},
		},
	}}

	runID, res, err := New(testConfig(), db, src).Collect(context.Background(), Options{InputPath: input}, true)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if res.NewArticles != 1 {
		t.Errorf("expected the watch company query to hit, got %+v", res)
	}

	articles, err := db.GetArticlesForRun(runID)
	if err != nil {
		t.Fatalf("articles: %v", err)
	}
	if len(articles) != 1 || articles[0].Company != "현대자동차" {
		t.Errorf("expected the watch company's article, got %+v", articles)
	}
}

func TestPipelineDryRun(t *testing.T) {
	input := writeInputs(t, [][]interface{}{
		{"parameter", "value"},
		{"year", "2024"},
	})
	db := openDB(t)

	res := New(testConfig(), db, &fakeSource{}).DryRun(Options{InputPath: input})

	if len(res.Steps) != 5 {
		t.Fatalf("expected 5 steps, got %d", len(res.Steps))
	}
	for _, s := range res.Steps {
		if s.Err != nil {
			t.Fatalf("step %s failed: %v", s.Name, s.Err)
		}
		if !strings.Contains(s.Summary, "[dry-run]") {
			t.Errorf("step %s summary is not marked dry-run: %q", s.Name, s.Summary)
		}
	}
	if !strings.Contains(res.Steps[0].Summary, "20240101 ~ 20241231") {
		t.Errorf("year config should expand to the calendar span: %q", res.Steps[0].Summary)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("dry run must not record a run, got %d", len(runs))
	}
}

func TestResolveWindow(t *testing.T) {
	year := time.Now().Year()
	cases := []struct {
		name     string
		opts     Options
		params   map[string]string
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{
			name:     "explicit dates win",
			opts:     Options{DateFrom: "20240201", DateTo: "20240228"},
			params:   map[string]string{"date_from": "2023.01.01", "date_to": "2023.12.31"},
			wantFrom: "20240201",
			wantTo:   "20240228",
		},
		{
			name:     "dotted config dates",
			params:   map[string]string{"date_from": "2024.01.01", "date_to": "2024.12.31"},
			wantFrom: "20240101",
			wantTo:   "20241231",
		},
		{
			name:     "single year expands",
			params:   map[string]string{"year": "2023"},
			wantFrom: "20230101",
			wantTo:   "20231231",
		},
		{
			name:     "year range expands",
			params:   map[string]string{"start_year": "2022", "end_year": "2023"},
			wantFrom: "20220101",
			wantTo:   "20231231",
		},
		{
			name:     "default is the current year",
			wantFrom: fmt.Sprintf("%d0101", year),
			wantTo:   fmt.Sprintf("%d1231", year),
		},
		{
			name:    "half window fails",
			opts:    Options{DateFrom: "20240101"},
			wantErr: true,
		},
		{
			name:    "inverted window fails",
			opts:    Options{DateFrom: "20240301", DateTo: "20240101"},
			wantErr: true,
		},
		{
			name:    "garbage date fails",
			opts:    Options{DateFrom: "2024-13-99", DateTo: "20241231"},
			wantErr: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			from, to, err := resolveWindow(tc.opts, tc.params)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected an error, got %s ~ %s", from, to)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if from != tc.wantFrom || to != tc.wantTo {
				t.Errorf("got %s ~ %s, want %s ~ %s", from, to, tc.wantFrom, tc.wantTo)
			}
		})
	}
}

func TestBuildTableJoinsIssueMetadata(t *testing.T) {
	in := &xlsx.Inputs{
		Companies: []xlsx.Company{{Name: "삼성전자", CorpID: "00126380", Ticker: "005930"}},
		Issues: []xlsx.Issue{{
			Theme:     "E(환경)",
			KeyIssue:  "수질 및 토양 오염",
			Negatives: []string{"폐수"},
			Joined:    "폐수",
		}},
	}
	date := "20240105"
	press := "환경일보"
	articles := []database.Article{
		{URL: "http://news.example/1", Title: "폐수 기사", Company: "삼성전자", Keyword: "폐수", PublishedDate: &date, Press: &press},
		{URL: "http://news.example/9", Title: "키워드 불명 기사", Company: "기타회사", Keyword: "해킹"},
	}

	tbl := buildTable(articles, in)

	if len(tbl.Columns) != len(xlsx.OutputColumns) {
		t.Fatalf("unexpected columns: %v", tbl.Columns)
	}
	if tbl.Layout.Company != 10 || tbl.Layout.Keyword != 3 || tbl.Layout.Date != 6 {
		t.Errorf("unexpected layout: %+v", tbl.Layout)
	}

	row := tbl.Rows[0]
	if row.Cells[0] != "E" {
		t.Errorf("expected ESG group E, got %q", row.Cells[0])
	}
	if row.Cells[2] != "수질 및 토양 오염" {
		t.Errorf("expected the joined key issue, got %q", row.Cells[2])
	}
	if row.Cells[5] != "-1" {
		t.Errorf("expected the score placeholder, got %q", row.Cells[5])
	}
	if row.Cells[11] != "00126380" || row.Cells[12] != "005930" {
		t.Errorf("expected company identifiers, got %q, %q", row.Cells[11], row.Cells[12])
	}

	// Unknown keyword and company leave the joined cells empty but keep
	// the row.
	other := tbl.Rows[1]
	if other.Cells[0] != "" || other.Cells[2] != "" || other.Cells[11] != "" {
		t.Errorf("unknown keyword should leave issue cells empty: %v", other.Cells)
	}
	if other.RawDate != "" || other.Title != "키워드 불명 기사" {
		t.Errorf("unexpected row fields: %+v", other)
	}
}
