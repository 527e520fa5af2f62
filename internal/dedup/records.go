package dedup

import "time"

// Article is one row of a news table. Typed fields are parsed views used by
// the selection pass; Cells keeps the full original row so untouched columns
// survive into the output.
type Article struct {
	Company  string
	Keyword  string
	RawDate  string
	Date     time.Time
	URL      string
	Title    string
	Score    float64
	HasScore bool
	Cells    []string

	companyKey string
	keywordKey string
}

// Layout maps table columns to the fields the selection pass needs.
// A value of -1 means the column is absent.
type Layout struct {
	Company int
	Keyword int
	Date    int
	URL     int
	Title   int
	Score   int
}

// Table is an in-memory article table with its column header.
type Table struct {
	Columns []string
	Layout  Layout
	Rows    []Article
}

// Policy selects the representative when several candidates compete.
type Policy string

const (
	// PickEarliest keeps the candidate with the minimum date.
	PickEarliest Policy = "earliest"
	// PickHighestScore keeps the candidate with the maximum negative score.
	// Candidates without a score lose to any scored candidate.
	PickHighestScore Policy = "highest_score"
)

// Mode chooses the grouping granularity of the selection pass.
type Mode string

const (
	// ModeRollingWindow separates bursts by a day-count gap threshold.
	ModeRollingWindow Mode = "rolling_window"
	// ModeCalendarMonth keeps one representative per calendar month.
	ModeCalendarMonth Mode = "calendar_month"
)

// Violation records a consecutive same-group pair whose gap fell below the
// window threshold. Diagnostic only; it never alters selection. Dates are
// YYYYMMDD, matching the stored and reported form.
type Violation struct {
	Company  string
	Keyword  string
	Date     string
	PrevDate string
	GapDays  int
}
