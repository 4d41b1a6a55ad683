package trend

import (
	"context"
	"sort"
	"time"

	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/elonfeng/trendkoll/pkg/source"
)

// DefaultOversample is how many raw items are requested per quota slot when
// a category sets no pool size.
const DefaultOversample = 18

// Per-query cap for site-restricted searches in feed categories.
const siteSearchItems = 3

// Sources bundles the adapters the selector draws from. Any field may be
// nil; categories depending on a missing adapter yield nothing.
type Sources struct {
	Search source.Searcher
	Feeds  source.FeedReader
	Ranked map[string]source.Ranked
}

// SelectorOptions tunes a Selector.
type SelectorOptions struct {
	Oversample int
	Fallback   Fallback
}

// Selector builds the run's shortlist from all categories.
type Selector struct {
	sources    Sources
	normalizer *Normalizer
	scorer     *Scorer
	oversample int
	fallback   Fallback
	now        func() time.Time
}

// NewSelector creates a selector.
func NewSelector(src Sources, n *Normalizer, s *Scorer, opts SelectorOptions) *Selector {
	if opts.Oversample <= 0 {
		opts.Oversample = DefaultOversample
	}
	if opts.Fallback.Query == "" {
		opts.Fallback = DefaultFallback()
	}
	return &Selector{
		sources:    src,
		normalizer: n,
		scorer:     s,
		oversample: opts.Oversample,
		fallback:   opts.Fallback,
		now:        time.Now,
	}
}

// pooled marks whether an item came from a timestamped source and must
// pass the recency check.
type pooled struct {
	item  source.RawItem
	dated bool
}

// SelectTopics walks categories in order and returns at most maxTotal
// candidates with unique dedup keys, each category contributing at most its
// quota. Remaining slots are filled from the broad fallback query. Source
// failures never abort selection.
func (s *Selector) SelectTopics(ctx context.Context, maxTotal int, categories []CategoryConfig) []Candidate {
	if maxTotal <= 0 {
		return nil
	}

	seen := make(map[string]bool)
	var picked []Candidate

	for _, cat := range categories {
		if len(picked) >= maxTotal || ctx.Err() != nil {
			break
		}
		if cat.Quota <= 0 {
			continue
		}

		pool := s.gather(ctx, cat)
		ranked := s.rank(cat, pool, seen)

		for i, c := range ranked {
			if i == 3 {
				break
			}
			logging.Debug("candidate", "category", cat.Slug, "title", c.Title, "score", c.Score, "why", c.Breakdown.String())
		}

		taken := 0
		for _, c := range ranked {
			if taken >= cat.Quota || len(picked) >= maxTotal {
				break
			}
			if seen[c.DedupKey] {
				continue
			}
			picked = append(picked, c)
			seen[c.DedupKey] = true
			taken++
		}
		logging.Info("category selected", "category", cat.Slug, "pool", len(pool), "eligible", len(ranked), "picked", taken)
	}

	if len(picked) < maxTotal && ctx.Err() == nil {
		picked = s.fill(ctx, maxTotal, categories, picked, seen)
	}
	return picked
}

// rank normalizes, dedups, scores and thresholds a category's pool.
func (s *Selector) rank(cat CategoryConfig, pool []pooled, seen map[string]bool) []Candidate {
	inPool := make(map[string]bool, len(pool))
	now := s.now().UTC()
	maxAge := cat.MaxAge()

	var out []Candidate
	for _, p := range pool {
		c, ok := s.candidate(p.item.Title, p.item.OriginURL, cat.Slug, cat.Name, seen, inPool)
		if !ok {
			continue
		}
		if p.dated && !source.IsRecentAt(now, p.item.PublishedAt, maxAge) {
			logging.Debug("stale candidate", "category", cat.Slug, "title", c.Title)
			continue
		}
		inPool[c.DedupKey] = true
		if c.Score < cat.ScoreThreshold {
			logging.Debug("below threshold", "category", cat.Slug, "title", c.Title, "score", c.Score, "threshold", cat.ScoreThreshold)
			continue
		}
		out = append(out, c)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (s *Selector) candidate(raw, origin, slug, name string, seen, inPool map[string]bool) (Candidate, bool) {
	title := s.normalizer.NormalizeTitle(raw)
	if title == "" {
		return Candidate{}, false
	}
	title = s.normalizer.Localize(slug, title)
	if title == "" {
		return Candidate{}, false
	}
	key := CanonicalKey(title)
	if key == "" || seen[key] || inPool[key] {
		return Candidate{}, false
	}
	score, why := s.scorer.Score(title, slug, origin)
	return Candidate{
		Title:        title,
		DedupKey:     key,
		CategorySlug: slug,
		CategoryName: name,
		Origin:       origin,
		Score:        score,
		Breakdown:    why,
	}, true
}

// fill tops the shortlist up from the fallback query.
func (s *Selector) fill(ctx context.Context, maxTotal int, categories []CategoryConfig, picked []Candidate, seen map[string]bool) []Candidate {
	fb := s.fallback
	threshold := fb.threshold(categories)
	maxAge := DefaultMaxAge
	if fb.MaxAgeHours > 0 {
		maxAge = time.Duration(fb.MaxAgeHours) * time.Hour
	}
	maxItems := fb.MaxItems
	if maxItems <= 0 {
		maxItems = DefaultFallback().MaxItems
	}

	items := s.search(ctx, fb.Slug, fb.Query, maxItems, maxAge)
	now := s.now().UTC()
	added := 0
	for _, item := range items {
		if len(picked) >= maxTotal {
			break
		}
		if !source.IsRecentAt(now, item.PublishedAt, maxAge) {
			continue
		}
		c, ok := s.candidate(item.Title, item.OriginURL, fb.Slug, fb.Name, seen, nil)
		if !ok || c.Score < threshold {
			continue
		}
		picked = append(picked, c)
		seen[c.DedupKey] = true
		added++
	}
	logging.Info("fallback fill", "query", fb.Query, "threshold", threshold, "added", added)
	return picked
}

// gather collects the raw pool for a category.
func (s *Selector) gather(ctx context.Context, cat CategoryConfig) []pooled {
	limit := cat.Quota * s.oversample
	if cat.PoolSize > limit {
		limit = cat.PoolSize
	}
	maxAge := cat.MaxAge()

	switch cat.Source {
	case SourceFeeds:
		return s.gatherFeeds(ctx, cat, limit, maxAge)
	case SourceRanked:
		var pool []pooled
		for _, name := range cat.Lists {
			for _, title := range s.top(ctx, cat.Slug, name, limit) {
				pool = append(pool, pooled{item: source.RawItem{Title: title}})
			}
		}
		return pool
	default:
		queries := cat.SearchQueries()
		if len(queries) == 0 {
			return nil
		}
		per := (limit + len(queries) - 1) / len(queries)
		var pool []pooled
		for _, q := range queries {
			pool = appendDated(pool, s.search(ctx, cat.Slug, q, per, maxAge))
		}
		return pool
	}
}

// gatherFeeds reads vendor feeds, then site-restricted searches, then the
// fallback feeds, stopping as soon as limit items are collected.
func (s *Selector) gatherFeeds(ctx context.Context, cat CategoryConfig, limit int, maxAge time.Duration) []pooled {
	pool := appendDated(nil, s.read(ctx, cat.Slug, cat.Feeds, limit, maxAge))

siteSearch:
	for _, q := range cat.Queries {
		for _, domain := range cat.SiteDomains {
			if len(pool) >= limit {
				break siteSearch
			}
			n := min(siteSearchItems, limit-len(pool))
			pool = appendDated(pool, s.search(ctx, cat.Slug, q+" site:"+domain, n, maxAge))
		}
	}

	if len(pool) < limit && len(cat.FallbackFeeds) > 0 {
		pool = appendDated(pool, s.read(ctx, cat.Slug, cat.FallbackFeeds, limit-len(pool), maxAge))
	}
	if len(pool) > limit {
		pool = pool[:limit]
	}
	return pool
}

func (s *Selector) search(ctx context.Context, slug, query string, n int, maxAge time.Duration) []source.RawItem {
	if s.sources.Search == nil || n <= 0 {
		return nil
	}
	items, err := s.sources.Search.Search(ctx, query, n, maxAge)
	if err != nil {
		logging.Warn("source unavailable", "category", slug, "source", source.NameGoogleNews, "query", query, "err", err)
		return nil
	}
	return items
}

func (s *Selector) read(ctx context.Context, slug string, urls []string, n int, maxAge time.Duration) []source.RawItem {
	if s.sources.Feeds == nil || len(urls) == 0 || n <= 0 {
		return nil
	}
	items, err := s.sources.Feeds.Read(ctx, urls, n, maxAge)
	if err != nil {
		logging.Warn("source unavailable", "category", slug, "source", source.NameFeeds, "err", err)
		return nil
	}
	return items
}

func (s *Selector) top(ctx context.Context, slug, name string, limit int) []string {
	r, ok := s.sources.Ranked[name]
	if !ok || r == nil {
		logging.Debug("ranked list not configured", "category", slug, "list", name)
		return nil
	}
	titles, err := r.Top(ctx, limit)
	if err != nil {
		logging.Warn("source unavailable", "category", slug, "source", r.Name(), "err", err)
		return nil
	}
	return titles
}

func appendDated(pool []pooled, items []source.RawItem) []pooled {
	for _, item := range items {
		pool = append(pool, pooled{item: item, dated: true})
	}
	return pool
}
