package collect

import (
	"context"
	"log"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"
)

const maxPerFeed = 200

// FeedConfig represents a single feed configuration.
type FeedConfig struct {
	URL  string
	Name string
}

// feedEntry is a parsed feed item before query matching.
type feedEntry struct {
	URL     string
	Title   string
	Date    string // YYYYMMDD or empty
	Summary string
	Press   string
}

// FeedSource serves queries from configured RSS/Atom press feeds. Feeds are
// downloaded once per source and matched against each query in memory, so a
// companies-times-keywords batch does not hammer the feed hosts.
type FeedSource struct {
	feeds   []FeedConfig
	entries []feedEntry
	loaded  bool
}

// NewFeedSource creates a feed source over the configured feeds.
func NewFeedSource(feeds []FeedConfig) *FeedSource {
	return &FeedSource{feeds: feeds}
}

func (fs *FeedSource) Name() string { return "rss" }

// Fetch returns feed entries inside the query window that mention the
// company in their title or summary.
func (fs *FeedSource) Fetch(ctx context.Context, q Query) ([]Item, error) {
	if err := fs.load(ctx); err != nil {
		return nil, err
	}

	var items []Item
	for _, e := range fs.entries {
		if !withinWindow(e.Date, q.DateFrom, q.DateTo) {
			continue
		}
		if !strings.Contains(e.Title, q.Company) && !strings.Contains(e.Summary, q.Company) {
			continue
		}
		items = append(items, Item{
			Company: q.Company,
			Keyword: q.Keyword,
			Title:   e.Title,
			URL:     e.URL,
			Press:   e.Press,
			Date:    e.Date,
			Summary: e.Summary,
		})
	}
	return items, nil
}

func (fs *FeedSource) load(ctx context.Context) error {
	if fs.loaded {
		return nil
	}
	fs.loaded = true

	parser := gofeed.NewParser()
	for _, fc := range fs.feeds {
		name := fc.Name
		if name == "" {
			name = extractSourceName(fc.URL)
		}

		feed, err := parser.ParseURLWithContext(fc.URL, ctx)
		if err != nil {
			log.Printf("failed to parse feed %s: %v", fc.URL, err)
			continue
		}

		count := 0
		for _, item := range feed.Items {
			if count >= maxPerFeed {
				break
			}
			entry := parseItem(item, name)
			if entry == nil {
				continue
			}
			fs.entries = append(fs.entries, *entry)
			count++
		}
		log.Printf("parsed %d entries from %s", count, name)
	}
	return nil
}

func parseItem(item *gofeed.Item, press string) *feedEntry {
	itemURL := item.Link
	if itemURL == "" {
		itemURL = item.GUID
	}
	if itemURL == "" {
		return nil
	}

	title := strings.TrimSpace(item.Title)
	if title == "" {
		return nil
	}

	var date string
	if item.PublishedParsed != nil {
		date = item.PublishedParsed.Format("20060102")
	} else if item.UpdatedParsed != nil {
		date = item.UpdatedParsed.Format("20060102")
	}

	var summary string
	if item.Content != "" {
		summary = stripHTML(item.Content)
	} else if item.Description != "" {
		summary = stripHTML(item.Description)
	}

	return &feedEntry{
		URL:     itemURL,
		Title:   title,
		Date:    date,
		Summary: summary,
		Press:   press,
	}
}

// withinWindow checks a YYYYMMDD date against an inclusive window. Undated
// entries pass, matching how undated API results are kept for the dedup
// stage to sort out.
func withinWindow(date, from, to string) bool {
	if date == "" {
		return true
	}
	return date >= from && date <= to
}

func stripHTML(text string) string {
	var result strings.Builder
	inTag := false
	for _, r := range text {
		if r == '<' {
			inTag = true
			result.WriteRune(' ')
			continue
		}
		if r == '>' {
			inTag = false
			continue
		}
		if !inTag {
			result.WriteRune(r)
		}
	}

	s := result.String()
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")

	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func extractSourceName(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	host := strings.ToLower(u.Hostname())

	for _, prefix := range []string{"www.", "blog.", "blogs.", "rss.", "feeds."} {
		host = strings.TrimPrefix(host, prefix)
	}

	parts := strings.Split(host, ".")
	if len(parts) >= 2 {
		name := parts[len(parts)-2]
		return strings.ToUpper(name[:1]) + name[1:]
	}
	if host == "" {
		return feedURL
	}
	return strings.ToUpper(host[:1]) + host[1:]
}
