package xlsx

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/esglab/newsdesk/internal/dedup"
)

// Excel's hard row limit per sheet, header row included.
const maxSheetRows = 1048576

const maxColWidth = 50

// Meta describes the run recorded on the meta sheet of an output workbook.
type Meta struct {
	CreatedAt time.Time
	DateFrom  string
	DateTo    string
	Sheet     string
}

// WriteTable writes the table to path with a styled header row, sized
// columns and a meta sheet. Tables beyond the Excel row limit spill into
// numbered follow-up sheets.
func WriteTable(path string, t *dedup.Table, meta Meta) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := DefaultSheet
	if meta.Sheet != "" {
		sheet = SanitizeSheetName(meta.Sheet)
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	style, err := headerStyle(f)
	if err != nil {
		return err
	}

	perSheet := maxSheetRows - 1
	taken := map[string]bool{sheet: true, "meta": true}
	name := sheet
	for start := 0; ; {
		end := start + perSheet
		if end > len(t.Rows) {
			end = len(t.Rows)
		}
		if err := writeSheet(f, name, t, t.Rows[start:end], style); err != nil {
			return err
		}
		start = end
		if start >= len(t.Rows) {
			break
		}
		name = uniqueName(taken, sheet)
		taken[name] = true
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("add sheet %q: %w", name, err)
		}
	}

	if err := writeMeta(f, meta, sheet, len(t.Rows)); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s (close it first if it is open in Excel): %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, t *dedup.Table, rows []dedup.Article, style int) error {
	header := make([]interface{}, len(t.Columns))
	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
		widths[i] = utf8.RuneCountInString(c)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for r, a := range rows {
		cells := rowCells(t, a)
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = c
			if n := utf8.RuneCountInString(c); n > widths[i] {
				widths[i] = n
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", r+2, err)
		}
	}

	if len(t.Columns) > 0 {
		last, err := excelize.CoordinatesToCellName(len(t.Columns), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}
	for i, w := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := float64(w + 2)
		if width > maxColWidth {
			width = maxColWidth
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("size column %s: %w", col, err)
		}
	}
	return nil
}

// rowCells pads the stored cells to the column count and rewrites the date
// column as YYYYMMDD once a row carries a parsed date, so written output
// reads back through ReadTable unchanged.
func rowCells(t *dedup.Table, a dedup.Article) []string {
	cells := make([]string, len(t.Columns))
	copy(cells, a.Cells)
	if t.Layout.Date >= 0 && !a.Date.IsZero() {
		cells[t.Layout.Date] = a.Date.Format("20060102")
	}
	return cells
}

func writeMeta(f *excelize.File, meta Meta, sheet string, total int) error {
	if _, err := f.NewSheet("meta"); err != nil {
		return fmt.Errorf("add meta sheet: %w", err)
	}
	created := meta.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	rows := [][]interface{}{
		{"created_at", created.Format("2006-01-02 15:04:05")},
		{"date_from", meta.DateFrom},
		{"date_to", meta.DateTo},
		{"total_rows", total},
		{"sheet_name", sheet},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow("meta", cell, &rows[i]); err != nil {
			return fmt.Errorf("write meta row %d: %w", i+1, err)
		}
	}
	return nil
}

func headerStyle(f *excelize.File) (int, error) {
	id, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return 0, fmt.Errorf("header style: %w", err)
	}
	return id, nil
}
