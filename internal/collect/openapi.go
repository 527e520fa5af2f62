package collect

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/esglab/newsdesk/internal/config"
)

const openAPIBaseURL = "https://openapi.naver.com/v1/search/news.json"

const (
	httpBackoffCap      = 60 * time.Second
	transportBackoffCap = 30 * time.Second
)

// OpenAPISource fetches articles from the Naver Open API news search.
type OpenAPISource struct {
	clientID     string
	clientSecret string
	client       *http.Client
	baseURL      string
	display      int
	maxStart     int
	maxRetries   int
	minDelay     time.Duration
	maxDelay     time.Duration
	backoffUnit  time.Duration
}

// NewOpenAPISource creates an Open API source with the given credentials.
func NewOpenAPISource(clientID, clientSecret string, cfg *config.Config) *OpenAPISource {
	return &OpenAPISource{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       &http.Client{Timeout: 30 * time.Second},
		baseURL:      openAPIBaseURL,
		display:      cfg.Crawl.Display,
		maxStart:     cfg.Crawl.MaxStart,
		maxRetries:   cfg.Crawl.MaxRetries,
		minDelay:     time.Duration(cfg.Crawl.MinDelayMs) * time.Millisecond,
		maxDelay:     time.Duration(cfg.Crawl.MaxDelayMs) * time.Millisecond,
		backoffUnit:  time.Second,
	}
}

func (s *OpenAPISource) Name() string { return "naver-api" }

type apiItem struct {
	Title        string `json:"title"`
	OriginalLink string `json:"originallink"`
	Link         string `json:"link"`
	Description  string `json:"description"`
	PubDate      string `json:"pubDate"`
}

// Fetch pages through the API for one query. The API serves newest first,
// so paging stops once a page reaches dates before the window. Partial
// results are returned alongside any error.
func (s *OpenAPISource) Fetch(ctx context.Context, q Query) ([]Item, error) {
	_, errFrom := time.Parse("20060102", q.DateFrom)
	_, errTo := time.Parse("20060102", q.DateTo)
	if errFrom != nil || errTo != nil {
		return nil, fmt.Errorf("bad crawl window %s..%s", q.DateFrom, q.DateTo)
	}

	var items []Item
	for start := 1; start <= s.maxStart; start += s.display {
		page, err := s.page(ctx, q.Term(), start)
		if err != nil {
			return items, err
		}
		if len(page) == 0 {
			break
		}

		var sawOlder bool
		for _, raw := range page {
			pub, dated := parsePubDate(raw.PubDate)
			var day string
			if dated {
				// Compare calendar days in the article's own zone so the
				// window stays inclusive through the end of its last day.
				day = pub.Format("20060102")
				if day < q.DateFrom {
					sawOlder = true
					continue
				}
				if day > q.DateTo {
					continue
				}
			}

			link := raw.OriginalLink
			if link == "" {
				link = raw.Link
			}
			title := stripHTML(raw.Title)
			if link == "" || title == "" {
				continue
			}

			item := Item{
				Company: q.Company,
				Keyword: q.Keyword,
				Title:   title,
				URL:     link,
				Summary: stripHTML(raw.Description),
			}
			if dated {
				item.Date = day
			}
			items = append(items, item)
		}

		if sawOlder || len(page) < s.display {
			break
		}
		politeSleep(ctx, s.minDelay, s.maxDelay)
	}
	return items, nil
}

// page fetches one result page, retrying transient failures with
// exponential backoff. Credential and client errors are not retried.
func (s *OpenAPISource) page(ctx context.Context, term string, start int) ([]apiItem, error) {
	var lastErr error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		items, err := s.fetchPage(ctx, term, start)
		if err == nil {
			return items, nil
		}
		te, retryable := err.(*transientError)
		if !retryable {
			return nil, err
		}
		lastErr = err

		wait := backoffWait(attempt, s.backoffUnit, te.cap)
		log.Printf("naver api attempt %d/%d failed (%v), retrying in %s", attempt, s.maxRetries, err, wait.Round(time.Millisecond))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("giving up after %d attempts: %w", s.maxRetries, lastErr)
}

func (s *OpenAPISource) fetchPage(ctx context.Context, term string, start int) ([]apiItem, error) {
	params := url.Values{
		"query":   {term},
		"display": {strconv.Itoa(s.display)},
		"start":   {strconv.Itoa(start)},
		"sort":    {"date"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("X-Naver-Client-Id", s.clientID)
	req.Header.Set("X-Naver-Client-Secret", s.clientSecret)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &transientError{err: err, cap: transportBackoffCap}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &transientError{err: fmt.Errorf("naver api http %d", resp.StatusCode), cap: httpBackoffCap}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("naver api http %d: check NAVER_CLIENT_ID / NAVER_CLIENT_SECRET", resp.StatusCode)
	default:
		return nil, fmt.Errorf("naver api http %d", resp.StatusCode)
	}

	var result struct {
		Total int       `json:"total"`
		Items []apiItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return result.Items, nil
}

// parsePubDate parses the RFC1123-style pubDate the API serves.
func parsePubDate(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC1123Z, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// transientError marks a failure worth retrying, with its backoff ceiling.
type transientError struct {
	err error
	cap time.Duration
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func backoffWait(attempt int, unit, max time.Duration) time.Duration {
	wait := time.Duration(1<<attempt)*unit + time.Duration(rand.Int63n(int64(unit)))
	if wait > max {
		return max
	}
	return wait
}
