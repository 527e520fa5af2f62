// Package fetch downloads full article bodies for stored articles that
// only carry a search summary.
package fetch

import (
	"context"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/esglab/newsdesk/internal/database"
)

// portalBodySelectors are the article body containers used by Naver news
// layouts, newest first. They are tried before the readability fallback;
// on pages from other publishers they simply never match.
var portalBodySelectors = []string{
	"#dic_area",
	".go_trans._article_content",
	"#articleBodyContents",
	".news_end",
}

// minBodyRunes is the shortest extraction accepted as a real article body.
const minBodyRunes = 100

// Result holds the results of a content fetch run.
type Result struct {
	Fetched int
	Failed  int
}

// ContentFetcher fetches full article text over HTTP, extracting the body
// with portal selectors or readability.
type ContentFetcher struct {
	db     *database.DB
	client *http.Client
	delay  time.Duration
}

// NewContentFetcher creates a new content fetcher.
func NewContentFetcher(db *database.DB, timeout time.Duration) *ContentFetcher {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &ContentFetcher{
		db: db,
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		delay: 100 * time.Millisecond,
	}
}

// FetchMissingContent fetches bodies for articles that only have a summary
// or no content at all. When runID is non-nil only that run is processed.
// A domain that answers with an HTTP error is skipped for the rest of the
// run so one dead publisher does not burn the whole batch.
func (f *ContentFetcher) FetchMissingContent(ctx context.Context, runID *string) (*Result, error) {
	articles, err := f.db.GetArticlesNeedingFetch(runID)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		log.Println("no articles need content fetching")
		return &Result{}, nil
	}

	result := &Result{}
	failedDomains := make(map[string]struct{})

	for i, article := range articles {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		u, _ := url.Parse(article.URL)
		domain := ""
		if u != nil {
			domain = strings.ToLower(u.Host)
		}

		if _, failed := failedDomains[domain]; failed {
			f.db.MarkArticleFetchAttempted(article.ID)
			result.Failed++
			continue
		}

		content, httpErr := f.fetchArticleContent(ctx, article.URL)
		if httpErr != nil {
			f.db.MarkArticleFetchAttempted(article.ID)
			result.Failed++
			if domain != "" {
				failedDomains[domain] = struct{}{}
			}
			log.Printf("http error for %s, skipping remaining articles from %s", article.URL, domain)
			continue
		}

		if content != "" {
			f.db.UpdateArticleContent(article.ID, &content)
			result.Fetched++
			log.Printf("fetched body for: %s", article.Title)
		} else {
			f.db.MarkArticleFetchAttempted(article.ID)
			result.Failed++
			log.Printf("no extractable body at: %s", article.URL)
		}

		if i < len(articles)-1 && f.delay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(f.delay):
			}
		}
	}

	log.Printf("content fetch complete: %d fetched, %d failed", result.Fetched, result.Failed)
	return result, nil
}

// fetchArticleContent downloads one page and extracts its body text.
// Connection and parse failures come back as empty content; only HTTP
// status errors are returned, so the caller can write off the domain.
func (f *ContentFetcher) fetchArticleContent(ctx context.Context, articleURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		return "", nil
	}
	req.Header.Set("User-Agent", "newsdesk/1.0 (news aggregator)")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", &httpError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil
	}

	if text := extractPortalBody(body); text != "" {
		return text, nil
	}

	parsedURL, _ := url.Parse(articleURL)
	article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
	if err != nil {
		return "", nil
	}

	text := normalizeBody(article.TextContent)
	if utf8.RuneCountInString(text) > minBodyRunes {
		return text, nil
	}
	return "", nil
}

// extractPortalBody tries the known portal body containers in order and
// returns the first one holding a plausible article body.
func extractPortalBody(page []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(page)))
	if err != nil {
		return ""
	}
	for _, sel := range portalBodySelectors {
		node := doc.Find(sel).First()
		if node.Length() == 0 {
			continue
		}
		node.Find("script, style").Remove()
		text := normalizeBody(node.Text())
		if utf8.RuneCountInString(text) > minBodyRunes {
			return text
		}
	}
	return ""
}

// normalizeBody collapses whitespace runs inside lines and drops blank
// lines, keeping paragraph breaks readable.
func normalizeBody(s string) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

type httpError struct {
	code int
}

func (e *httpError) Error() string {
	return http.StatusText(e.code)
}
