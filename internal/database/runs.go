package database

import (
	"database/sql"
	"fmt"
	"time"
)

// MakeRunID creates a run identifier from the start time, matching the
// timestamp used in output filenames.
func MakeRunID(t time.Time) string {
	return t.Format("20060102_150405")
}

// FormatRunDisplay formats a run_id for human-readable display.
func FormatRunDisplay(runID string) string {
	t, err := time.Parse("20060102_150405", runID)
	if err != nil {
		return runID
	}
	return t.Format("Jan 02, 2006 15:04")
}

// FormatWindowDisplay formats a YYYYMMDD crawl window for display.
func FormatWindowDisplay(from, to string) string {
	f, errF := time.Parse("20060102", from)
	t, errT := time.Parse("20060102", to)
	if errF != nil || errT != nil {
		return from + " - " + to
	}
	return fmt.Sprintf("%s - %s", f.Format("Jan 02, 2006"), t.Format("Jan 02, 2006"))
}

// CreateRun records the start of a collection run.
func (db *DB) CreateRun(runID, dateFrom, dateTo string) error {
	_, err := db.conn.Exec(
		"INSERT INTO crawl_runs (run_id, date_from, date_to) VALUES (?, ?, ?)",
		runID, dateFrom, dateTo,
	)
	return err
}

// UpdateRunCounts stores the outcome of a finished run.
func (db *DB) UpdateRunCounts(runID string, total, newCount, dupCount int) error {
	_, err := db.conn.Exec(
		"UPDATE crawl_runs SET total_found = ?, new_count = ?, dup_count = ? WHERE run_id = ?",
		total, newCount, dupCount, runID,
	)
	return err
}

// GetRun returns a single run, or nil when unknown.
func (db *DB) GetRun(runID string) (*CrawlRun, error) {
	row := db.conn.QueryRow(
		`SELECT run_id, started_at, date_from, date_to, total_found, new_count, dup_count
		FROM crawl_runs WHERE run_id = ?`, runID,
	)
	var r CrawlRun
	err := row.Scan(&r.RunID, &r.StartedAt, &r.DateFrom, &r.DateTo, &r.TotalFound, &r.NewCount, &r.DupCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]CrawlRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.conn.Query(
		`SELECT run_id, started_at, date_from, date_to, total_found, new_count, dup_count
		FROM crawl_runs ORDER BY run_id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CrawlRun
	for rows.Next() {
		var r CrawlRun
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.DateFrom, &r.DateTo,
			&r.TotalFound, &r.NewCount, &r.DupCount); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
