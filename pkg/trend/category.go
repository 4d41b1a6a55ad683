package trend

import "time"

// SourceKind selects how a category gathers raw items.
type SourceKind string

const (
	SourceSearch SourceKind = "search"
	SourceFeeds  SourceKind = "feeds"
	SourceRanked SourceKind = "ranked"
)

// DefaultMaxAge applies when a category sets no MaxAgeHours.
const DefaultMaxAge = 48 * time.Hour

// CategoryConfig describes one editorial category. It is read once from
// configuration and never modified during a run.
type CategoryConfig struct {
	Slug           string     `yaml:"slug" json:"slug"`
	Name           string     `yaml:"name" json:"name"`
	Query          string     `yaml:"query" json:"query"`
	Quota          int        `yaml:"quota" json:"quota"`
	MinEvidence    int        `yaml:"min_evidence" json:"min_evidence"`
	ScoreThreshold int        `yaml:"score_threshold" json:"score_threshold"`
	Source         SourceKind `yaml:"source" json:"source"`

	// Queries replaces Query for search categories and drives the
	// site-restricted searches of feed categories.
	Queries       []string `yaml:"queries,omitempty" json:"queries,omitempty"`
	Feeds         []string `yaml:"feeds,omitempty" json:"feeds,omitempty"`
	FallbackFeeds []string `yaml:"fallback_feeds,omitempty" json:"fallback_feeds,omitempty"`
	SiteDomains   []string `yaml:"site_domains,omitempty" json:"site_domains,omitempty"`
	Lists         []string `yaml:"lists,omitempty" json:"lists,omitempty"`

	MaxAgeHours int `yaml:"max_age_hours,omitempty" json:"max_age_hours,omitempty"`
	// PoolSize is the minimum number of raw items requested.
	PoolSize int `yaml:"pool_size,omitempty" json:"pool_size,omitempty"`
}

// MaxAge is the recency window for dated sources.
func (c CategoryConfig) MaxAge() time.Duration {
	if c.MaxAgeHours <= 0 {
		return DefaultMaxAge
	}
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// SearchQueries returns the queries a search category runs.
func (c CategoryConfig) SearchQueries() []string {
	if len(c.Queries) > 0 {
		return c.Queries
	}
	if c.Query == "" {
		return nil
	}
	return []string{c.Query}
}

// Fallback is the broad query used to fill a short shortlist. Picks are
// attributed to their own category so they never count against a
// configured category's quota.
type Fallback struct {
	Slug  string `yaml:"slug"`
	Name  string `yaml:"name"`
	Query string `yaml:"query"`
	// ScoreThreshold overrides the default of the lowest configured threshold.
	ScoreThreshold *int `yaml:"score_threshold,omitempty"`
	MaxItems       int  `yaml:"max_items"`
	MaxAgeHours    int  `yaml:"max_age_hours"`
}

// DefaultFallback queries the whole country.
func DefaultFallback() Fallback {
	return Fallback{
		Slug:        "sverige",
		Name:        "Sverige",
		Query:       "Sverige",
		MaxItems:    50,
		MaxAgeHours: 48,
	}
}

func (f Fallback) threshold(categories []CategoryConfig) int {
	if f.ScoreThreshold != nil {
		return *f.ScoreThreshold
	}
	lowest, found := 0, false
	for _, c := range categories {
		if c.Quota <= 0 {
			continue
		}
		if !found || c.ScoreThreshold < lowest {
			lowest, found = c.ScoreThreshold, true
		}
	}
	return lowest
}

// DefaultCategories returns the Swedish category table.
func DefaultCategories() []CategoryConfig {
	return []CategoryConfig{
		{
			Slug: "viralt-trend", Name: "Viralt & Trendord", Query: "tiktok OR viralt OR meme OR trend OR hashtag",
			Quota: 1, MinEvidence: 2, ScoreThreshold: 4,
			Source: SourceRanked, Lists: []string{"wikipedia", "reddit", "youtube"},
			PoolSize: 15,
		},
		{
			Slug: "underhallning", Name: "Underhållning", Query: "film OR serie OR streaming OR musik OR kändis OR influencer",
			Quota: 1, MinEvidence: 1, ScoreThreshold: 3,
			Source: SourceSearch, PoolSize: 18,
		},
		{
			Slug: "sport", Name: "Sport", Query: "Allsvenskan OR SHL OR Premier League Sverige OR Champions League Sverige OR landslaget",
			Quota: 1, MinEvidence: 2, ScoreThreshold: 5,
			Source: SourceSearch,
			Queries: []string{
				"Allsvenskan", "SHL", "Damallsvenskan", "Tre Kronor",
				"Sveriges landslag fotboll", "Premier League Sverige", "Champions League Sverige",
			},
			MaxAgeHours: 72, PoolSize: 42,
		},
		{
			Slug: "prylradar", Name: "Prylradar", Query: "lansering OR släpper OR release OR uppdatering OR recension teknik pryl gadget",
			Quota: 1, MinEvidence: 1, ScoreThreshold: 4,
			Source: SourceFeeds,
			Feeds: []string{
				"https://www.sweclockers.com/feeds/nyheter",
				"https://feber.se/rss/teknik/",
				"https://feber.se/rss/pryl/",
				"https://m3.idg.se/rss.xml",
				"https://www.mobil.se/rss.xml",
				"https://surfa.se/feed/",
				"https://www.nyteknik.se/rss/",
			},
			Queries: []string{
				"lansering smartphone", `"ny mobil"`, "iPhone lansering", "Samsung släpper",
				"smartwatch lansering", "AI-kamera lansering", "RTX grafikkort", "Playstation uppdatering",
			},
			SiteDomains: []string{"surfa.se", "m3.idg.se", "mobil.se", "sweclockers.com", "feber.se", "nyteknik.se"},
			FallbackFeeds: []string{
				"https://www.gsmarena.com/rss-news-reviews.php3",
				"https://www.theverge.com/rss/index.xml",
				"https://www.engadget.com/rss.xml",
				"https://www.techradar.com/rss",
			},
			MaxAgeHours: 14 * 24, PoolSize: 24,
		},
		{
			Slug: "teknik-prylar", Name: "Teknik & Prylar", Query: "smartphone OR lansering OR 'ny mobil' OR pryl OR teknik",
			Quota: 1, MinEvidence: 1, ScoreThreshold: 4,
			Source: SourceSearch, PoolSize: 18,
		},
		{
			Slug: "ekonomi-bors", Name: "Ekonomi & Börs", Query: "börsen OR aktier OR inflation OR ränta OR Riksbanken",
			Quota: 1, MinEvidence: 2, ScoreThreshold: 5,
			Source: SourceSearch, PoolSize: 18,
		},
		{
			Slug: "nyheter", Name: "Nyheter", Query: "Sverige",
			Quota: 1, MinEvidence: 2, ScoreThreshold: 5,
			Source: SourceSearch, PoolSize: 18,
		},
		{
			Slug: "gaming-esport", Name: "Gaming & e-sport", Query: "gaming OR e-sport OR playstation OR xbox OR nintendo OR steam",
			Quota: 1, MinEvidence: 1, ScoreThreshold: 4,
			Source: SourceSearch, PoolSize: 18,
		},
	}
}
