// Package dedup collapses bursts of near-duplicate news coverage into one
// representative article per time window. The pass is a whole-table batch:
// it loads every row, filters, and produces a new table without mutating the
// input.
package dedup

import (
	"fmt"
	"sort"

	"github.com/esglab/newsdesk/internal/canon"
)

// DefaultWindowDays is the burst-separation threshold.
const DefaultWindowDays = 30

// Options configures a deduplication pass.
type Options struct {
	WindowDays int
	Policy     Policy
	Mode       Mode
}

// Stats counts rows at each stage of the pass.
type Stats struct {
	Input      int
	Dated      int // rows with a parseable date; the rest are dropped
	AfterExact int // after URL and title duplicate removal
	Kept       int
}

// Result is the outcome of a deduplication pass.
type Result struct {
	Table      *Table
	Violations []Violation
	Stats      Stats
}

// Run deduplicates t and returns the kept rows plus the violation report.
// The input table is not modified.
func Run(t *Table, opts Options) (*Result, error) {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Policy == "" {
		opts.Policy = PickEarliest
	}
	if opts.Mode == "" {
		opts.Mode = ModeRollingWindow
	}
	if opts.Policy != PickEarliest && opts.Policy != PickHighestScore {
		return nil, fmt.Errorf("unknown pick policy %q", opts.Policy)
	}
	if opts.Mode != ModeRollingWindow && opts.Mode != ModeCalendarMonth {
		return nil, fmt.Errorf("unknown dedup mode %q", opts.Mode)
	}
	if t.Layout.Company < 0 {
		return nil, fmt.Errorf("table has no company column")
	}
	if t.Layout.Keyword < 0 {
		return nil, fmt.Errorf("table has no keyword column")
	}
	if t.Layout.Date < 0 {
		return nil, fmt.Errorf("table has no date column")
	}

	var stats Stats
	stats.Input = len(t.Rows)

	// Rows whose date cannot be extracted leave the pass here. This is a
	// data-quality choice, not an error.
	rows := make([]Article, 0, len(t.Rows))
	for _, a := range t.Rows {
		d, ok := extractDate(a.RawDate)
		if !ok {
			continue
		}
		a.Date = d
		a.companyKey = canon.Key(a.Company)
		a.keywordKey = canon.Key(a.Keyword)
		rows = append(rows, a)
	}
	stats.Dated = len(rows)

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].companyKey != rows[j].companyKey {
			return rows[i].companyKey < rows[j].companyKey
		}
		if rows[i].keywordKey != rows[j].keywordKey {
			return rows[i].keywordKey < rows[j].keywordKey
		}
		return rows[i].Date.Before(rows[j].Date)
	})

	// URL duplicates go first, then title duplicates over the already
	// URL-deduped rows. A repeated title removes a row even when its URL
	// differs.
	if t.Layout.URL >= 0 {
		rows = dropRepeats(rows, func(a Article) string { return a.URL })
	}
	if t.Layout.Title >= 0 {
		rows = dropRepeats(rows, func(a Article) string { return a.Title })
	}
	stats.AfterExact = len(rows)

	violations := scanViolations(rows, opts.WindowDays)

	var kept []Article
	forEachGroup(rows, func(group []Article) {
		switch opts.Mode {
		case ModeCalendarMonth:
			kept = append(kept, selectCalendarMonth(group, opts.Policy)...)
		default:
			kept = append(kept, selectWindow(group, opts.WindowDays)...)
		}
	})

	// Output ordering uses the raw, unnormalized strings.
	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].Company != kept[j].Company {
			return kept[i].Company < kept[j].Company
		}
		if kept[i].Keyword != kept[j].Keyword {
			return kept[i].Keyword < kept[j].Keyword
		}
		return kept[i].Date.Before(kept[j].Date)
	})
	stats.Kept = len(kept)

	out := &Table{Columns: t.Columns, Layout: t.Layout, Rows: kept}
	return &Result{Table: out, Violations: violations, Stats: stats}, nil
}

// dropRepeats removes rows repeating a previously seen value within the same
// normalized group, keeping the first occurrence. Empty values never match
// each other.
func dropRepeats(rows []Article, value func(Article) string) []Article {
	type groupValue struct {
		company, keyword, value string
	}
	seen := make(map[groupValue]struct{})
	out := rows[:0:0]
	for _, a := range rows {
		v := value(a)
		if v == "" {
			out = append(out, a)
			continue
		}
		k := groupValue{a.companyKey, a.keywordKey, v}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// forEachGroup calls fn once per run of rows sharing a normalized
// (company, keyword) pair. Rows must already be sorted by group key.
func forEachGroup(rows []Article, fn func(group []Article)) {
	for start := 0; start < len(rows); {
		end := start + 1
		for end < len(rows) &&
			rows[end].companyKey == rows[start].companyKey &&
			rows[end].keywordKey == rows[start].keywordKey {
			end++
		}
		fn(rows[start:end])
		start = end
	}
}
