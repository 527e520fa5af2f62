package dedup

import (
	"regexp"
	"time"
)

var eightDigits = regexp.MustCompile(`\d{8}`)

// extractDate pulls the first 8-digit run out of a date cell and parses it
// as YYYYMMDD. Returns false when no parseable date is present; callers drop
// such rows rather than failing the pass.
func extractDate(cell string) (time.Time, bool) {
	run := eightDigits.FindString(cell)
	if run == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", run)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
