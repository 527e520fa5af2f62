// Package collect gathers Korean news articles for company/keyword pairs
// from the Naver Open API, the Naver news search pages, or RSS feeds.
package collect

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/esglab/newsdesk/internal/config"
	"github.com/esglab/newsdesk/internal/database"
)

// Item is one collected news result, normalized across sources.
type Item struct {
	Company string
	Keyword string
	Title   string
	URL     string
	Press   string
	Date    string // YYYYMMDD, empty when the source gave no usable date
	Summary string
}

// Query is one company/keyword search over an inclusive YYYYMMDD window.
type Query struct {
	Company  string
	Keyword  string
	DateFrom string
	DateTo   string
}

// Term returns the search term sent to the source.
func (q Query) Term() string {
	return q.Company + " " + q.Keyword
}

// Source fetches news items for one query.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]Item, error)
}

// NewSource builds the configured source. Unknown names fall back to the
// Open API source so a typo in the config fails loudly on credentials, not
// silently on an empty crawl.
func NewSource(cfg *config.Config) (Source, error) {
	switch cfg.Crawl.Source {
	case "html":
		return NewSearchSource(cfg), nil
	case "rss":
		if len(cfg.Sources.Feeds) == 0 {
			return nil, fmt.Errorf("source is rss but no feeds are configured")
		}
		feeds := make([]FeedConfig, len(cfg.Sources.Feeds))
		for i, f := range cfg.Sources.Feeds {
			feeds[i] = FeedConfig{URL: f.URL, Name: f.Name}
		}
		return NewFeedSource(feeds), nil
	default:
		id, secret, err := cfg.NaverCredentials()
		if err != nil {
			return nil, err
		}
		return NewOpenAPISource(id, secret, cfg), nil
	}
}

// Result holds the results of a collection run.
type Result struct {
	TotalFound  int
	NewArticles int
	Duplicates  int
	Failed      int
	PerCompany  map[string]int
}

// Collector runs queries against a source and stores what comes back.
type Collector struct {
	db       *database.DB
	source   Source
	minDelay time.Duration
	maxDelay time.Duration
}

// NewCollector creates a collector over an open database and a source.
func NewCollector(cfg *config.Config, db *database.DB, source Source) *Collector {
	return &Collector{
		db:       db,
		source:   source,
		minDelay: time.Duration(cfg.Crawl.MinDelayMs) * time.Millisecond,
		maxDelay: time.Duration(cfg.Crawl.MaxDelayMs) * time.Millisecond,
	}
}

// Collect runs every query in order and inserts the results under runID.
// A failed query is logged and counted, not fatal: the remaining companies
// still get crawled.
func (c *Collector) Collect(ctx context.Context, runID string, queries []Query) (*Result, error) {
	r := &Result{PerCompany: make(map[string]int)}

	for i, q := range queries {
		if err := ctx.Err(); err != nil {
			return r, err
		}

		log.Printf("[%d/%d] %s: searching %q", i+1, len(queries), c.source.Name(), q.Term())
		items, err := c.source.Fetch(ctx, q)
		if err != nil {
			log.Printf("query %q failed: %v", q.Term(), err)
			r.Failed++
		}

		r.TotalFound += len(items)
		for _, item := range items {
			id, err := c.db.InsertArticle(itemToArticle(item, runID))
			if err != nil {
				return r, fmt.Errorf("storing article: %w", err)
			}
			if id > 0 {
				r.NewArticles++
				r.PerCompany[item.Company]++
			} else {
				r.Duplicates++
			}
		}

		if i < len(queries)-1 {
			politeSleep(ctx, c.minDelay, c.maxDelay)
		}
	}

	log.Printf("collection complete: %d found, %d new, %d duplicates, %d failed queries",
		r.TotalFound, r.NewArticles, r.Duplicates, r.Failed)
	return r, nil
}

func itemToArticle(item Item, runID string) database.Article {
	a := database.Article{
		URL:     item.URL,
		Title:   item.Title,
		Company: item.Company,
		Keyword: item.Keyword,
		RunID:   &runID,
	}
	if item.Press != "" {
		press := item.Press
		a.Press = &press
	}
	if item.Date != "" {
		date := item.Date
		a.PublishedDate = &date
	}
	if item.Summary != "" {
		summary := item.Summary
		a.Content = &summary
	}
	return a
}

// politeSleep waits a uniform random interval in [min, max], or less when
// the context ends first.
func politeSleep(ctx context.Context, min, max time.Duration) {
	d := min
	if max > min {
		d += time.Duration(rand.Int63n(int64(max - min)))
	}
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
