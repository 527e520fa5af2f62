package database

import "fmt"

// ReplaceViolations swaps the stored violations for a run.
func (db *DB) ReplaceViolations(runID string, violations []Violation) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin violations update: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM violations WHERE run_id = ?", runID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clearing old violations: %w", err)
	}
	for _, v := range violations {
		_, err := tx.Exec(
			`INSERT INTO violations (run_id, company, keyword, date, prev_date, gap_days)
			VALUES (?, ?, ?, ?, ?, ?)`,
			runID, v.Company, v.Keyword, v.Date, v.PrevDate, v.GapDays,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting violation: %w", err)
		}
	}

	return tx.Commit()
}

// GetViolationsForRun returns the violations recorded for a run.
func (db *DB) GetViolationsForRun(runID string) ([]Violation, error) {
	rows, err := db.conn.Query(
		`SELECT id, run_id, company, keyword, date, prev_date, gap_days
		FROM violations WHERE run_id = ? ORDER BY company, keyword, date`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var violations []Violation
	for rows.Next() {
		var v Violation
		if err := rows.Scan(&v.ID, &v.RunID, &v.Company, &v.Keyword,
			&v.Date, &v.PrevDate, &v.GapDays); err != nil {
			return nil, err
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}
