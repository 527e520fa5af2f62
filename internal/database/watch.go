package database

import (
	"database/sql"
)

// UpsertWatchCompany inserts a company onto the watch list, or refreshes its
// identifiers when the name is already present. Returns the row ID.
func (db *DB) UpsertWatchCompany(name string, corpID, ticker *string) (int64, error) {
	_, err := db.conn.Exec(
		`INSERT INTO watch_companies (name, corp_id, ticker) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			corp_id = excluded.corp_id,
			ticker = excluded.ticker,
			updated_at = datetime('now')`,
		name, corpID, ticker,
	)
	if err != nil {
		return 0, err
	}

	var id int64
	if err := db.conn.QueryRow("SELECT id FROM watch_companies WHERE name = ?", name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetAllWatchCompanies returns the full watch list.
func (db *DB) GetAllWatchCompanies() ([]WatchCompany, error) {
	return db.queryWatchCompanies("SELECT id, name, corp_id, ticker, is_active, created_at, updated_at FROM watch_companies ORDER BY name")
}

// GetActiveWatchCompanies returns only companies marked active.
func (db *DB) GetActiveWatchCompanies() ([]WatchCompany, error) {
	return db.queryWatchCompanies("SELECT id, name, corp_id, ticker, is_active, created_at, updated_at FROM watch_companies WHERE is_active = 1 ORDER BY name")
}

// GetWatchCompany returns a single company by ID, or nil when unknown.
func (db *DB) GetWatchCompany(companyID int64) (*WatchCompany, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, corp_id, ticker, is_active, created_at, updated_at FROM watch_companies WHERE id = ?",
		companyID,
	)
	c, err := scanWatchCompany(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ToggleWatchCompany toggles the active state of a company.
func (db *DB) ToggleWatchCompany(companyID int64) error {
	_, err := db.conn.Exec(
		"UPDATE watch_companies SET is_active = NOT is_active, updated_at = datetime('now') WHERE id = ?",
		companyID,
	)
	return err
}

// DeleteWatchCompany removes a company from the watch list.
func (db *DB) DeleteWatchCompany(companyID int64) error {
	_, err := db.conn.Exec("DELETE FROM watch_companies WHERE id = ?", companyID)
	return err
}

func (db *DB) queryWatchCompanies(query string, args ...any) ([]WatchCompany, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var companies []WatchCompany
	for rows.Next() {
		var c WatchCompany
		var active int
		if err := rows.Scan(&c.ID, &c.Name, &c.CorpID, &c.Ticker, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		c.IsActive = active != 0
		companies = append(companies, c)
	}
	return companies, rows.Err()
}

func scanWatchCompany(row *sql.Row) (*WatchCompany, error) {
	var c WatchCompany
	var active int
	if err := row.Scan(&c.ID, &c.Name, &c.CorpID, &c.Ticker, &active, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.IsActive = active != 0
	return &c, nil
}
