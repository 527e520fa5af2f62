package collect

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/esglab/newsdesk/internal/config"
)

const searchBaseURL = "https://search.naver.com/search.naver"

// userAgents is the pool rotated through when the search pages start
// blocking a client string.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// blockMarkers are phrases Naver serves instead of results when it decides
// the client is a bot.
var blockMarkers = []string{
	"비정상적인 검색",
	"자동입력 방지",
	"서비스 이용이 일시 제한",
	"captcha",
}

// SearchSource scrapes the Naver news search result pages. It needs no
// credentials but walks ten results per page, so it is the slower path.
type SearchSource struct {
	client      *http.Client
	baseURL     string
	maxPages    int
	maxRetries  int
	minDelay    time.Duration
	maxDelay    time.Duration
	backoffUnit time.Duration
	agentIdx    int
	now         func() time.Time
}

// NewSearchSource creates an HTML search source.
func NewSearchSource(cfg *config.Config) *SearchSource {
	return &SearchSource{
		client:      &http.Client{Timeout: 20 * time.Second},
		baseURL:     searchBaseURL,
		maxPages:    cfg.Crawl.MaxPages,
		maxRetries:  cfg.Crawl.MaxRetries,
		minDelay:    time.Duration(cfg.Crawl.MinDelayMs) * time.Millisecond,
		maxDelay:    time.Duration(cfg.Crawl.MaxDelayMs) * time.Millisecond,
		backoffUnit: time.Second,
		now:         time.Now,
	}
}

func (s *SearchSource) Name() string { return "naver-html" }

// Fetch walks result pages for one query until a page comes back empty,
// the page cap is reached, or repeated blocks force abandoning the query.
func (s *SearchSource) Fetch(ctx context.Context, q Query) ([]Item, error) {
	var items []Item
	seen := make(map[string]struct{})
	blocks := 0

	for page := 1; page <= s.maxPages; {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		doc, status, err := s.get(ctx, q, (page-1)*10+1)
		if err != nil {
			return items, err
		}

		if status == http.StatusForbidden || isBlocked(doc) {
			blocks++
			if blocks >= s.maxRetries {
				return items, fmt.Errorf("blocked %d times while searching %q, giving up", blocks, q.Term())
			}
			s.rotateAgent()
			wait := backoffWait(blocks, s.backoffUnit, httpBackoffCap)
			log.Printf("naver search blocked (%d/%d), rotating user agent and waiting %s", blocks, s.maxRetries, wait.Round(time.Millisecond))
			select {
			case <-ctx.Done():
				return items, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}

		found := s.parseResults(doc, q, seen, &items)
		if found == 0 {
			break
		}
		page++
		politeSleep(ctx, s.minDelay, s.maxDelay)
	}
	return items, nil
}

func (s *SearchSource) get(ctx context.Context, q Query, start int) (*goquery.Document, int, error) {
	params := url.Values{
		"where": {"news"},
		"query": {q.Term()},
		"sm":    {"tab_opt"},
		"sort":  {"1"},
		"start": {strconv.Itoa(start)},
		"nso":   {fmt.Sprintf("so:dd,p:from%sto%s", q.DateFrom, q.DateTo)},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", userAgents[s.agentIdx])
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching search page: %w", err)
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("parsing search page: %w", err)
	}
	return doc, resp.StatusCode, nil
}

// parseResults extracts news entries from one result page, appending to
// items and returning how many result blocks the page carried.
func (s *SearchSource) parseResults(doc *goquery.Document, q Query, seen map[string]struct{}, items *[]Item) int {
	found := 0
	doc.Find("div.news_area").Each(func(_ int, sel *goquery.Selection) {
		found++

		link := sel.Find("a.news_tit").First()
		href, ok := link.Attr("href")
		title := strings.TrimSpace(link.Text())
		if !ok || href == "" || title == "" {
			return
		}
		if _, dup := seen[href]; dup {
			return
		}
		seen[href] = struct{}{}

		item := Item{
			Company: q.Company,
			Keyword: q.Keyword,
			Title:   title,
			URL:     href,
			Press:   strings.TrimSpace(sel.Find("a.info.press").First().Text()),
			Summary: strings.TrimSpace(sel.Find(".dsc_wrap").First().Text()),
		}

		// The info spans mix press edition labels with the date; take the
		// first one that parses.
		sel.Find("span.info").EachWithBreak(func(_ int, info *goquery.Selection) bool {
			if d, ok := parseKoreanDate(strings.TrimSpace(info.Text()), s.now()); ok {
				item.Date = d.Format("20060102")
				return false
			}
			return true
		})

		*items = append(*items, item)
	})
	return found
}

func (s *SearchSource) rotateAgent() {
	s.agentIdx = (s.agentIdx + 1) % len(userAgents)
}

func isBlocked(doc *goquery.Document) bool {
	text := doc.Text()
	for _, marker := range blockMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

var (
	relativeDateRe = regexp.MustCompile(`^(\d+)(분|시간|일)\s*전$`)
	dottedDateRe   = regexp.MustCompile(`^(\d{4})\.(\d{1,2})\.(\d{1,2})\.?$`)
)

// parseKoreanDate parses the date forms the search pages use: relative
// ("3시간 전") and dotted ("2024.01.05.").
func parseKoreanDate(s string, now time.Time) (time.Time, bool) {
	if m := relativeDateRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		switch m[2] {
		case "분":
			return now.Add(-time.Duration(n) * time.Minute), true
		case "시간":
			return now.Add(-time.Duration(n) * time.Hour), true
		case "일":
			return now.AddDate(0, 0, -n), true
		}
	}
	if m := dottedDateRe.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		day, _ := strconv.Atoi(m[3])
		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, now.Location())
		if t.Year() != year || int(t.Month()) != month || t.Day() != day {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}
