package database

import (
	"database/sql"
)

// InsertArticle inserts an article. Returns the ID on success, 0 if the URL
// is already stored.
func (db *DB) InsertArticle(a Article) (int64, error) {
	result, err := db.conn.Exec(
		`INSERT INTO articles (url, title, press, published_date, company, keyword, negative_score, content, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.URL, a.Title, a.Press, a.PublishedDate, a.Company, a.Keyword, a.NegativeScore, a.Content, a.RunID,
	)
	if err != nil {
		// Duplicate URL constraint
		return 0, nil //nolint: nilerr
	}
	return result.LastInsertId()
}

// GetArticlesForRun returns articles collected in a run, in export order.
func (db *DB) GetArticlesForRun(runID string) ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT id, url, title, press, published_date, company, keyword, negative_score,
		content, content_fetched, run_id, collected_at
		FROM articles WHERE run_id = ? ORDER BY company, keyword, published_date`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticlesInWindow returns every dated article published inside the
// inclusive YYYYMMDD window, across all runs, in export order.
func (db *DB) GetArticlesInWindow(dateFrom, dateTo string) ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT id, url, title, press, published_date, company, keyword, negative_score,
		content, content_fetched, run_id, collected_at
		FROM articles WHERE published_date >= ? AND published_date <= ?
		ORDER BY company, keyword, published_date`, dateFrom, dateTo,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// GetArticlesNeedingFetch returns articles with empty content that haven't
// been fetched yet.
func (db *DB) GetArticlesNeedingFetch(runID *string) ([]Article, error) {
	query := `SELECT id, url, title, press, published_date, company, keyword, negative_score,
		content, content_fetched, run_id, collected_at
		FROM articles WHERE (content IS NULL OR content = '') AND content_fetched = 0`
	var args []any
	if runID != nil {
		query += " AND run_id = ?"
		args = append(args, *runID)
	}
	query += " ORDER BY collected_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanArticles(rows)
}

// UpdateArticleContent updates article content after fetching.
func (db *DB) UpdateArticleContent(articleID int64, content *string) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET content = ?, content_fetched = 1 WHERE id = ?",
		content, articleID,
	)
	return err
}

// MarkArticleFetchAttempted marks that we tried to fetch content.
func (db *DB) MarkArticleFetchAttempted(articleID int64) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET content_fetched = 1 WHERE id = ?", articleID,
	)
	return err
}

// UpdateArticleScore stores the negative ESG score for an article.
func (db *DB) UpdateArticleScore(articleID int64, score float64) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET negative_score = ? WHERE id = ?", score, articleID,
	)
	return err
}

// UpdateArticleScoreByURL stores the negative ESG score keyed by URL, for
// callers that hold table rows rather than store IDs.
func (db *DB) UpdateArticleScoreByURL(url string, score float64) error {
	_, err := db.conn.Exec(
		"UPDATE articles SET negative_score = ? WHERE url = ?", score, url,
	)
	return err
}

// GetArticleByURL returns a single article by URL, or nil when unknown.
func (db *DB) GetArticleByURL(url string) (*Article, error) {
	row := db.conn.QueryRow(
		`SELECT id, url, title, press, published_date, company, keyword, negative_score,
		content, content_fetched, run_id, collected_at
		FROM articles WHERE url = ?`, url,
	)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		var fetched int
		if err := rows.Scan(&a.ID, &a.URL, &a.Title, &a.Press, &a.PublishedDate,
			&a.Company, &a.Keyword, &a.NegativeScore, &a.Content, &fetched,
			&a.RunID, &a.CollectedAt); err != nil {
			return nil, err
		}
		a.ContentFetched = fetched != 0
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

func scanArticle(row *sql.Row) (*Article, error) {
	var a Article
	var fetched int
	if err := row.Scan(&a.ID, &a.URL, &a.Title, &a.Press, &a.PublishedDate,
		&a.Company, &a.Keyword, &a.NegativeScore, &a.Content, &fetched,
		&a.RunID, &a.CollectedAt); err != nil {
		return nil, err
	}
	a.ContentFetched = fetched != 0
	return &a, nil
}
