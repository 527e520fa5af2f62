package database

// GetStats returns aggregate counts for the status command and the viewer.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM articles", &s.TotalArticles},
		{"SELECT COUNT(*) FROM articles WHERE negative_score IS NOT NULL", &s.ScoredArticles},
		{"SELECT COUNT(*) FROM articles WHERE content_fetched = 1", &s.FetchedArticles},
		{"SELECT COUNT(*) FROM crawl_runs", &s.Runs},
		{"SELECT COUNT(*) FROM violations", &s.Violations},
		{"SELECT COUNT(*) FROM watch_companies", &s.TotalCompanies},
		{"SELECT COUNT(*) FROM watch_companies WHERE is_active = 1", &s.ActiveCompanies},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return &s, nil
}
