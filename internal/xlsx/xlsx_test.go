package xlsx

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/esglab/newsdesk/internal/dedup"
)

type sheetDef struct {
	name string
	rows [][]interface{}
}

func writeWorkbook(t *testing.T, sheets []sheetDef) string {
	t.Helper()
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
	path := filepath.Join(t.TempDir(), "test.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
	return path
}

func TestSanitizeSheetName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"output", "output"},
		{"a[b]c:d*e?f/g\\h", "a_b_c_d_e_f_g_h"},
		{"  trimmed  ", "trimmed"},
		{"", "Sheet"},
		{strings.Repeat("가", 40), strings.Repeat("가", 31)},
	}
	for _, c := range cases {
		if got := SanitizeSheetName(c.in); got != c.want {
			t.Errorf("SanitizeSheetName(%q) = %q, expected %q", c.in, got, c.want)
		}
	}
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"output": true, "output_2": true}
	if got := uniqueName(taken, "fresh"); got != "fresh" {
		t.Errorf("free name should pass through, got %q", got)
	}
	if got := uniqueName(taken, "output"); got != "output_3" {
		t.Errorf("expected output_3, got %q", got)
	}
}

func TestReadTableResolvesColumns(t *testing.T) {
	path := writeWorkbook(t, []sheetDef{{
		name: "output",
		rows: [][]interface{}{
			{ColCompany, ColKeyword, ColDateYMD, ColURL, ColTitle, ColScore},
			{"삼성전자", "환경오염", "20240105", "http://a.com/1", "기사 제목", "0.72"},
			{"", "", "", "", "", ""},
			{"LG화학", "산업재해", "20240110", "http://b.com/1"},
		},
	}})

	table, err := ReadTable(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("expected 2 rows (blank one skipped), got %d", len(table.Rows))
	}

	a := table.Rows[0]
	if a.Company != "삼성전자" || a.Keyword != "환경오염" || a.RawDate != "20240105" {
		t.Errorf("unexpected first row: %+v", a)
	}
	if !a.HasScore || a.Score != 0.72 {
		t.Errorf("expected score 0.72, got %v (has=%v)", a.Score, a.HasScore)
	}

	b := table.Rows[1]
	if b.Title != "" || b.HasScore {
		t.Errorf("short row should pad missing cells, got %+v", b)
	}
	if len(b.Cells) != 6 {
		t.Errorf("expected cells padded to 6 columns, got %d", len(b.Cells))
	}
}

func TestReadTableKeywordFallback(t *testing.T) {
	path := writeWorkbook(t, []sheetDef{{
		name: "output",
		rows: [][]interface{}{
			{ColCompany, ColKeyIssue, ColDate},
			{"삼성전자", "기후변화 대응", "20240105"},
		},
	}})
	table, err := ReadTable(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Rows[0].Keyword != "기후변화 대응" {
		t.Errorf("expected keyword from %s, got %q", ColKeyIssue, table.Rows[0].Keyword)
	}
}

func TestReadTableDateHeaderFallback(t *testing.T) {
	path := writeWorkbook(t, []sheetDef{{
		name: "output",
		rows: [][]interface{}{
			{ColCompany, ColKeyword, "기사 보도날짜 정보"},
			{"삼성전자", "환경오염", "20240105"},
		},
	}})
	table, err := ReadTable(path, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if table.Layout.Date != 2 {
		t.Errorf("expected date column resolved by substring, got %d", table.Layout.Date)
	}
}

func TestReadTableMissingCompany(t *testing.T) {
	path := writeWorkbook(t, []sheetDef{{
		name: "output",
		rows: [][]interface{}{
			{ColKeyword, ColDate},
			{"환경오염", "20240105"},
		},
	}})
	_, err := ReadTable(path, "")
	if err == nil {
		t.Fatal("expected error for missing company column")
	}
	if !strings.Contains(err.Error(), ColCompany) {
		t.Errorf("error should name the missing column, got %q", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	table := &dedup.Table{
		Columns: []string{ColCompany, ColKeyword, ColDateYMD, ColURL, ColScore},
		Layout:  dedup.Layout{Company: 0, Keyword: 1, Date: 2, URL: 3, Title: -1, Score: 4},
		Rows: []dedup.Article{
			{
				Company: "삼성전자",
				Keyword: "환경오염",
				RawDate: "보도 2024.01.05 (20240105)",
				Date:    time.Date(2024, 1, 5, 0, 0, 0, 0, time.UTC),
				URL:     "http://a.com/1",
				Cells:   []string{"삼성전자", "환경오염", "보도 2024.01.05 (20240105)", "http://a.com/1", "0.5"},
			},
		},
	}

	path := filepath.Join(t.TempDir(), "out.xlsx")
	if err := WriteTable(path, table, Meta{Sheet: "output", DateFrom: "20240101", DateTo: "20241231"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadTable(path, "")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(got.Rows))
	}
	a := got.Rows[0]
	if a.Company != "삼성전자" || a.URL != "http://a.com/1" {
		t.Errorf("row changed in round trip: %+v", a)
	}
	if a.RawDate != "20240105" {
		t.Errorf("date cell should be rewritten as YYYYMMDD, got %q", a.RawDate)
	}
	if !a.HasScore || a.Score != 0.5 {
		t.Errorf("expected score to survive, got %v (has=%v)", a.Score, a.HasScore)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	meta, err := f.GetRows("meta")
	if err != nil {
		t.Fatalf("expected a meta sheet: %v", err)
	}
	if len(meta) < 5 || meta[3][0] != "total_rows" || meta[3][1] != "1" {
		t.Errorf("unexpected meta sheet contents: %v", meta)
	}
}

func TestReadInputs(t *testing.T) {
	path := writeWorkbook(t, []sheetDef{
		{
			name: "Company",
			rows: [][]interface{}{
				{"회사명", "고유번호", "종목코드"},
				{"삼성전자", "00126380", "005930"},
				{"", "", ""},
				{"LG화학", "00356361", "051910"},
			},
		},
		{
			name: "ESG",
			rows: [][]interface{}{
				{"주제", "구분", "Key Issue", "부정 키워드"},
				{"E(환경)", "", "기후변화 대응", "오염, 배출, 오염"},
				{"S(사회)", "", "산업안전", "사망, 사고"},
			},
		},
		{
			name: "Config",
			rows: [][]interface{}{
				{"parameter", "value"},
				{"year", "2024"},
				{"sheet_name", "크롤링 결과"},
			},
		},
	})

	in, err := ReadInputs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in.Companies) != 2 {
		t.Fatalf("expected 2 companies, got %d", len(in.Companies))
	}
	if in.Companies[1].Ticker != "051910" {
		t.Errorf("unexpected ticker: %q", in.Companies[1].Ticker)
	}
	if len(in.Issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(in.Issues))
	}
	first := in.Issues[0]
	if first.KeyIssue != "기후변화 대응" {
		t.Errorf("unexpected key issue: %q", first.KeyIssue)
	}
	if len(first.Negatives) != 2 || first.Negatives[0] != "배출" || first.Negatives[1] != "오염" {
		t.Errorf("expected sorted unique keywords, got %v", first.Negatives)
	}
	if in.Config["year"] != "2024" {
		t.Errorf("unexpected config: %v", in.Config)
	}
}

func TestReadInputsWithoutConfigSheet(t *testing.T) {
	path := writeWorkbook(t, []sheetDef{
		{
			name: "Company",
			rows: [][]interface{}{{"회사명"}, {"삼성전자"}},
		},
		{
			name: "ESG",
			rows: [][]interface{}{
				{"주제", "구분", "Key Issue", "부정 키워드"},
				{"E(환경)", "", "기후변화 대응", "오염"},
			},
		},
	})
	in, err := ReadInputs(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(in.Config) != 0 {
		t.Errorf("expected empty config without a Config sheet, got %v", in.Config)
	}
}

func TestIssueGroup(t *testing.T) {
	cases := []struct {
		theme string
		want  string
	}{
		{"E(환경)", "E"},
		{"S(사회)", "S"},
		{"G(지배구조)", "G"},
		{"F(금융)", "F"},
		{"KOSELF 공통", "F"},
		{"환경", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := (Issue{Theme: c.theme}).Group(); got != c.want {
			t.Errorf("Group(%q) = %q, expected %q", c.theme, got, c.want)
		}
	}
}
