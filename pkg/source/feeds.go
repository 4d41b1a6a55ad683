package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/mmcdole/gofeed"
)

// Feeds reads vendor RSS/Atom feeds.
type Feeds struct {
	client *http.Client
	parser *gofeed.Parser
}

// NewFeeds creates a feed reader.
func NewFeeds() *Feeds {
	return &Feeds{
		client: &http.Client{Timeout: 15 * time.Second},
		parser: gofeed.NewParser(),
	}
}

func (f *Feeds) Name() Name { return NameFeeds }

// Read walks urls in order and collects recent entries until maxItems is
// reached. A feed that fails is logged and skipped.
func (f *Feeds) Read(ctx context.Context, urls []string, maxItems int, maxAge time.Duration) ([]RawItem, error) {
	var items []RawItem
	for _, feedURL := range urls {
		if len(items) >= maxItems {
			break
		}
		entries, err := f.readFeed(ctx, feedURL, maxItems-len(items), maxAge)
		if err != nil {
			logging.Warn("feed unavailable", "url", feedURL, "err", err)
			continue
		}
		items = append(items, entries...)
	}
	return items, nil
}

func (f *Feeds) readFeed(ctx context.Context, feedURL string, maxItems int, maxAge time.Duration) ([]RawItem, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create feed request %s: %w", feedURL, err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed %s: %w", feedURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s status %d", feedURL, resp.StatusCode)
	}

	parsed, err := f.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	var items []RawItem
	for _, entry := range parsed.Items {
		if len(items) >= maxItems {
			break
		}
		published := entryTime(entry)
		if !IsRecent(published, maxAge) {
			continue
		}

		link := entry.Link
		if link == "" && len(entry.Links) > 0 {
			link = entry.Links[0]
		}
		if link == "" {
			link = feedURL
		}

		items = append(items, RawItem{
			Title:       strings.TrimSpace(entry.Title),
			OriginURL:   link,
			PublishedAt: published,
		})
	}
	return items, nil
}
