package source

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Name identifies which adapter produced an item.
type Name string

const (
	NameGoogleNews Name = "googlenews"
	NameFeeds      Name = "feeds"
	NameWikipedia  Name = "wikipedia"
	NameReddit     Name = "reddit"
	NameYouTube    Name = "youtube"
)

// RawItem is one observation returned by an adapter. An empty OriginURL
// means the adapter could not attribute the item to a publisher; a nil
// PublishedAt means the source carried no timestamp.
type RawItem struct {
	Title       string     `json:"title"`
	OriginURL   string     `json:"origin_url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Evidence is a short corroborating item (title + link) for a topic.
type Evidence struct {
	Title  string `json:"title"`
	Link   string `json:"link"`
	Source string `json:"source"`
	Domain string `json:"domain"`
}

// Searcher answers free-text queries against a news search feed.
type Searcher interface {
	Search(ctx context.Context, query string, maxItems int, maxAge time.Duration) ([]RawItem, error)
	Evidence(ctx context.Context, query string, maxItems int, maxAge time.Duration) ([]Evidence, error)
}

// FeedReader reads a list of vendor feeds in order.
type FeedReader interface {
	Read(ctx context.Context, urls []string, maxItems int, maxAge time.Duration) ([]RawItem, error)
}

// Ranked is a "top N right now" list such as most-viewed pages or trending
// videos. Ranked titles carry no timestamp; the list itself is current.
type Ranked interface {
	Name() Name
	Top(ctx context.Context, limit int) ([]string, error)
}

// Domain returns the lowercased host of rawURL without a leading "www."
// and without a port. It returns "" when rawURL has no host.
func Domain(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}
