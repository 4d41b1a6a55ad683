package source

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"
)

const (
	googleNewsSearchURL = "https://news.google.com/rss/search"
	googleNewsHost      = "news.google.com"
	browserUserAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124 Safari/537.36"
)

// Locale selects the edition of the search feed.
type Locale struct {
	HL   string `yaml:"hl"`
	GL   string `yaml:"gl"`
	CEID string `yaml:"ceid"`
}

// SwedishLocale is the sv-SE edition.
var SwedishLocale = Locale{HL: "sv-SE", GL: "SE", CEID: "SE:sv"}

// GoogleNewsOptions configures the search adapter.
type GoogleNewsOptions struct {
	Locale       Locale
	BaseURL      string        // default: the public search feed
	MinInterval  time.Duration // minimum spacing between requests
	ResolveLinks bool          // follow redirects to find publisher URLs for evidence
}

// GoogleNews searches the Google News RSS feed.
type GoogleNews struct {
	client  *http.Client
	parser  *gofeed.Parser
	locale  Locale
	baseURL string
	limiter *rate.Limiter
	resolve bool
}

// NewGoogleNews creates a search adapter.
func NewGoogleNews(opts GoogleNewsOptions) *GoogleNews {
	if opts.Locale.HL == "" {
		opts.Locale = SwedishLocale
	}
	if opts.BaseURL == "" {
		opts.BaseURL = googleNewsSearchURL
	}
	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}
	return &GoogleNews{
		client:  &http.Client{Timeout: 15 * time.Second},
		parser:  gofeed.NewParser(),
		locale:  opts.Locale,
		baseURL: opts.BaseURL,
		limiter: rate.NewLimiter(limit, 1),
		resolve: opts.ResolveLinks,
	}
}

func (g *GoogleNews) Name() Name { return NameGoogleNews }

// Search returns up to maxItems recent titles for query. Result links
// point at the aggregator rather than a publisher, so items carry no origin.
func (g *GoogleNews) Search(ctx context.Context, query string, maxItems int, maxAge time.Duration) ([]RawItem, error) {
	feed, err := g.fetch(ctx, query, maxAge)
	if err != nil {
		return nil, err
	}

	var items []RawItem
	for _, entry := range feed.Items {
		if len(items) >= maxItems {
			break
		}
		published := entryTime(entry)
		if !IsRecent(published, maxAge) {
			continue
		}
		items = append(items, RawItem{
			Title:       strings.TrimSpace(entry.Title),
			PublishedAt: published,
		})
	}
	return items, nil
}

// Evidence returns up to maxItems recent snippets for query with links
// unwrapped to the publisher where possible.
func (g *GoogleNews) Evidence(ctx context.Context, query string, maxItems int, maxAge time.Duration) ([]Evidence, error) {
	feed, err := g.fetch(ctx, query, maxAge)
	if err != nil {
		return nil, err
	}

	var out []Evidence
	for _, entry := range feed.Items {
		if len(out) >= maxItems {
			break
		}
		if !IsRecent(entryTime(entry), maxAge) {
			continue
		}
		link := g.publisherURL(ctx, entry)
		domain := Domain(link)
		out = append(out, Evidence{
			Title:  strings.TrimSpace(entry.Title),
			Link:   link,
			Source: sourceName(entry.Title, domain),
			Domain: domain,
		})
	}
	return out, nil
}

func (g *GoogleNews) fetch(ctx context.Context, query string, maxAge time.Duration) (*gofeed.Feed, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	days := int(math.Ceil(maxAge.Hours() / 24))
	if days < 1 {
		days = 1
	}
	q := fmt.Sprintf("%s when:%dd", query, days)
	reqURL := fmt.Sprintf("%s?q=%s&hl=%s&gl=%s&ceid=%s", g.baseURL,
		url.QueryEscape(q),
		url.QueryEscape(g.locale.HL),
		url.QueryEscape(g.locale.GL),
		url.QueryEscape(g.locale.CEID),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create google news request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/xml;q=0.9, */*;q=0.1")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch google news %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google news %q status %d", query, resp.StatusCode)
	}

	feed, err := g.parser.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse google news %q: %w", query, err)
	}
	return feed, nil
}

// publisherURL tries, in order: following the redirect, the first external
// link in the description HTML, and a url= query parameter.
func (g *GoogleNews) publisherURL(ctx context.Context, entry *gofeed.Item) string {
	link := strings.TrimSpace(entry.Link)

	if g.resolve && link != "" {
		if final := g.follow(ctx, link); final != "" && Domain(final) != googleNewsHost {
			return final
		}
	}

	if href := firstExternalHref(entry.Description); href != "" {
		return href
	}

	if u, err := url.Parse(link); err == nil {
		if target := u.Query().Get("url"); target != "" && Domain(target) != "" {
			return target
		}
	}
	return link
}

func (g *GoogleNews) follow(ctx context.Context, link string) string {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := g.client.Do(req)
	if err != nil {
		return ""
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return ""
	}
	return resp.Request.URL.String()
}

func firstExternalHref(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	var found string
	doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, _ := s.Attr("href")
		if href != "" && !strings.Contains(href, googleNewsHost) {
			found = href
			return false
		}
		return true
	})
	return found
}

// sourceName prefers the outlet suffix of an aggregator title
// ("Rubrik - SVT Nyheter") and falls back to the domain.
func sourceName(title, domain string) string {
	if i := strings.LastIndex(title, " - "); i > 0 {
		if name := strings.TrimSpace(title[i+3:]); name != "" {
			return name
		}
	}
	if domain != "" {
		return domain
	}
	return "Källa"
}

func entryTime(entry *gofeed.Item) *time.Time {
	if entry.PublishedParsed != nil {
		t := entry.PublishedParsed.UTC()
		return &t
	}
	if entry.UpdatedParsed != nil {
		t := entry.UpdatedParsed.UTC()
		return &t
	}
	for _, raw := range []string{entry.Published, entry.Updated} {
		if t, ok := ParseTimestamp(raw); ok {
			return &t
		}
	}
	return nil
}
