package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/elonfeng/trendkoll/pkg/render"
	"github.com/elonfeng/trendkoll/pkg/source"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

// Config is the root configuration.
type Config struct {
	Run        RunConfig              `yaml:"run"`
	Categories []trend.CategoryConfig `yaml:"categories"`
	Fallback   trend.Fallback         `yaml:"fallback"`
	Tables     trend.Tables           `yaml:"tables"`
	Sources    SourcesConfig          `yaml:"sources"`
	Summary    SummaryConfig          `yaml:"summary"`
	Publish    PublishConfig          `yaml:"publish"`
	Render     RenderConfig           `yaml:"render"`
	Alerts     AlertsConfig           `yaml:"alerts"`
	Log        LogConfig              `yaml:"log"`
}

// RunConfig controls one publishing run and the daemon loop.
type RunConfig struct {
	MaxTrends       int      `yaml:"max_trends"`
	Every           string   `yaml:"every"`
	DuplicateWindow string   `yaml:"duplicate_window"`
	EventWindow     string   `yaml:"event_window"`
	MergeKinds      []string `yaml:"merge_kinds"`
	Oversample      int      `yaml:"oversample"`
	EvidenceItems   int      `yaml:"evidence_items"`
	EvidenceMaxAge  string   `yaml:"evidence_max_age"`
}

// ParseEvery returns the daemon interval as time.Duration.
func (r RunConfig) ParseEvery() time.Duration {
	return parseOr(r.Every, 3*time.Hour)
}

// ParseDuplicateWindow returns the existing-post lookback.
func (r RunConfig) ParseDuplicateWindow() time.Duration {
	return parseOr(r.DuplicateWindow, 24*time.Hour)
}

// ParseEventWindow returns the event-merge lookback.
func (r RunConfig) ParseEventWindow() time.Duration {
	return parseOr(r.EventWindow, 12*time.Hour)
}

// ParseEvidenceMaxAge returns the evidence recency window.
func (r RunConfig) ParseEvidenceMaxAge() time.Duration {
	return parseOr(r.EvidenceMaxAge, 72*time.Hour)
}

// SourcesConfig holds configuration for all adapters.
type SourcesConfig struct {
	GoogleNews GoogleNewsConfig `yaml:"googlenews"`
	Wikipedia  WikipediaConfig  `yaml:"wikipedia"`
	Reddit     RedditConfig     `yaml:"reddit"`
	YouTube    YouTubeConfig    `yaml:"youtube"`
}

// GoogleNewsConfig for the news search adapter.
type GoogleNewsConfig struct {
	Locale       source.Locale `yaml:"locale"`
	MinInterval  string        `yaml:"min_interval"`
	ResolveLinks bool          `yaml:"resolve_links"`
}

// ParseMinInterval returns the spacing between search requests.
func (g GoogleNewsConfig) ParseMinInterval() time.Duration {
	return parseOr(g.MinInterval, 0)
}

// WikipediaConfig for the most-viewed list.
type WikipediaConfig struct {
	Project      string   `yaml:"project"`
	MetaPrefixes []string `yaml:"meta_prefixes"`
}

// RedditConfig for the top-of-day list.
type RedditConfig struct {
	Subreddit    string `yaml:"subreddit"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// YouTubeConfig for the trending-videos list.
type YouTubeConfig struct {
	APIKey string `yaml:"api_key"`
	Region string `yaml:"region"`
}

// SummaryConfig configures the model chain.
type SummaryConfig struct {
	Attempts int           `yaml:"attempts"`
	Models   []ModelConfig `yaml:"models"`
}

// ModelConfig is one entry of the chain. Entries without an API key are
// skipped.
type ModelConfig struct {
	Provider string `yaml:"provider"` // "openai", "anthropic" or "gemini"
	Model    string `yaml:"model"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"` // custom endpoint (optional)
}

// Publish targets.
const (
	TargetWordPress = "wordpress"
	TargetSQLite    = "sqlite"
)

// PublishConfig selects and configures the content store.
type PublishConfig struct {
	Target    string          `yaml:"target"`
	WordPress WordPressConfig `yaml:"wordpress"`
	Store     StoreConfig     `yaml:"store"`
}

// WordPressConfig for the WordPress REST store.
type WordPressConfig struct {
	BaseURL     string `yaml:"base_url"`
	User        string `yaml:"user"`
	AppPassword string `yaml:"app_password"`
}

// StoreConfig for the local SQLite store.
type StoreConfig struct {
	Path     string `yaml:"path"`
	MediaDir string `yaml:"media_dir"`
}

// RenderConfig configures post images.
type RenderConfig struct {
	Enabled  bool                      `yaml:"enabled"`
	Brand    string                    `yaml:"brand"`
	Palettes map[string]render.Palette `yaml:"palettes"`
}

// AlertsConfig configures notification destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook notifications.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook notifications.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic signed webhook notifications.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// LogConfig configures internal/logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns a Config with the Swedish category table.
func Default() *Config {
	return &Config{
		Run: RunConfig{
			MaxTrends:       8,
			Every:           "3h",
			DuplicateWindow: "24h",
			EventWindow:     "12h",
			MergeKinds:      []string{trend.EventWeather, trend.EventSport},
			Oversample:      trend.DefaultOversample,
			EvidenceItems:   4,
			EvidenceMaxAge:  "72h",
		},
		Categories: trend.DefaultCategories(),
		Fallback:   trend.DefaultFallback(),
		Tables:     trend.DefaultTables(),
		Sources: SourcesConfig{
			GoogleNews: GoogleNewsConfig{
				Locale:      source.SwedishLocale,
				MinInterval: "500ms",
			},
			Wikipedia: WikipediaConfig{
				Project:      "sv.wikipedia",
				MetaPrefixes: source.DefaultWikipediaMetaPrefixes,
			},
			Reddit:  RedditConfig{Subreddit: "sweden"},
			YouTube: YouTubeConfig{Region: "SE"},
		},
		Summary: SummaryConfig{
			Attempts: 2,
			Models: []ModelConfig{
				{Provider: "openai", Model: "gpt-5"},
				{Provider: "openai", Model: "gpt-5-mini"},
				{Provider: "anthropic", Model: "claude-sonnet-4-20250514"},
				{Provider: "gemini", Model: "gemini-1.5-flash"},
			},
		},
		Publish: PublishConfig{
			Target: TargetSQLite,
			Store:  StoreConfig{Path: "./trendkoll.db"},
		},
		Render: RenderConfig{
			Enabled:  true,
			Brand:    "Trendkoll",
			Palettes: render.DefaultPalettes(),
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file, applies env var overrides and
// validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.setModelKey("openai", v, "gpt-5")
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		cfg.setModelKey("anthropic", v, "")
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.setModelKey("gemini", v, "")
	}
	if v := os.Getenv("WP_BASE_URL"); v != "" {
		cfg.Publish.WordPress.BaseURL = v
		cfg.Publish.Target = TargetWordPress
	}
	if v := os.Getenv("WP_USER"); v != "" {
		cfg.Publish.WordPress.User = v
	}
	if v := os.Getenv("WP_APP_PASS"); v != "" {
		cfg.Publish.WordPress.AppPassword = v
	}
	if v := os.Getenv("MAX_TRENDS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("parse MAX_TRENDS %q: %w", v, err)
		}
		cfg.Run.MaxTrends = n
	}
	if v := strings.TrimSpace(os.Getenv("YT_API_KEY")); v != "" {
		cfg.Sources.YouTube.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("YT_REGION")); v != "" {
		cfg.Sources.YouTube.Region = v
	}
	if v := os.Getenv("TRENDKOLL_DB_PATH"); v != "" {
		cfg.Publish.Store.Path = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	if v := os.Getenv("TRENDKOLL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return nil
}

// setModelKey sets key on every chain entry for provider, adding one with
// model when the chain has none.
func (c *Config) setModelKey(provider, key, model string) {
	found := false
	for i := range c.Summary.Models {
		if c.Summary.Models[i].Provider == provider {
			c.Summary.Models[i].APIKey = key
			found = true
		}
	}
	if !found {
		c.Summary.Models = append(c.Summary.Models, ModelConfig{Provider: provider, Model: model, APIKey: key})
	}
}

// Validate checks the configuration for mistakes that would otherwise
// surface mid-run.
func (c *Config) Validate() error {
	var errs []error

	if c.Run.MaxTrends <= 0 {
		errs = append(errs, fmt.Errorf("run.max_trends must be positive, got %d", c.Run.MaxTrends))
	}
	for name, v := range map[string]string{
		"run.every":                       c.Run.Every,
		"run.duplicate_window":            c.Run.DuplicateWindow,
		"run.event_window":                c.Run.EventWindow,
		"run.evidence_max_age":            c.Run.EvidenceMaxAge,
		"sources.googlenews.min_interval": c.Sources.GoogleNews.MinInterval,
	} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", name, v))
		}
	}

	slugs := make(map[string]bool)
	for i, cat := range c.Categories {
		switch {
		case cat.Slug == "":
			errs = append(errs, fmt.Errorf("categories[%d]: slug is required", i))
		case slugs[cat.Slug]:
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate slug %q", i, cat.Slug))
		}
		slugs[cat.Slug] = true

		if cat.Quota < 0 {
			errs = append(errs, fmt.Errorf("category %s: negative quota %d", cat.Slug, cat.Quota))
		}
		if cat.MinEvidence < 0 {
			errs = append(errs, fmt.Errorf("category %s: negative min_evidence %d", cat.Slug, cat.MinEvidence))
		}
		switch cat.Source {
		case "", trend.SourceSearch:
			if len(cat.SearchQueries()) == 0 || cat.SearchQueries()[0] == "" {
				errs = append(errs, fmt.Errorf("category %s: search needs a query", cat.Slug))
			}
		case trend.SourceFeeds:
			if len(cat.Feeds) == 0 && len(cat.FallbackFeeds) == 0 {
				errs = append(errs, fmt.Errorf("category %s: feeds source needs feeds", cat.Slug))
			}
		case trend.SourceRanked:
			for _, l := range cat.Lists {
				if !knownList(l) {
					errs = append(errs, fmt.Errorf("category %s: unknown list %q", cat.Slug, l))
				}
			}
		default:
			errs = append(errs, fmt.Errorf("category %s: unknown source kind %q", cat.Slug, cat.Source))
		}
	}

	if c.Fallback.Query != "" && slugs[c.Fallback.Slug] {
		errs = append(errs, fmt.Errorf("fallback slug %q collides with a category", c.Fallback.Slug))
	}

	for i, m := range c.Summary.Models {
		switch m.Provider {
		case "openai", "anthropic", "gemini":
		default:
			errs = append(errs, fmt.Errorf("summary.models[%d]: unknown provider %q", i, m.Provider))
		}
	}

	switch c.Publish.Target {
	case TargetSQLite:
		if c.Publish.Store.Path == "" {
			errs = append(errs, errors.New("publish.store.path is required"))
		}
	case TargetWordPress:
		if c.Publish.WordPress.BaseURL == "" {
			errs = append(errs, errors.New("publish.wordpress.base_url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown publish target %q", c.Publish.Target))
	}

	if c.Alerts.Webhook.Enabled && c.Alerts.Webhook.URL == "" {
		errs = append(errs, errors.New("alerts.webhook.url is required when enabled"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func knownList(name string) bool {
	switch source.Name(name) {
	case source.NameWikipedia, source.NameReddit, source.NameYouTube:
		return true
	}
	return false
}

func parseOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return def
	}
	return d
}
