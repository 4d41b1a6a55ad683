package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/trendkoll/internal/config"
	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/elonfeng/trendkoll/internal/runner"
	"github.com/elonfeng/trendkoll/internal/store"
	"github.com/elonfeng/trendkoll/pkg/alert"
	"github.com/elonfeng/trendkoll/pkg/publish"
	"github.com/elonfeng/trendkoll/pkg/render"
	"github.com/elonfeng/trendkoll/pkg/server"
	"github.com/elonfeng/trendkoll/pkg/source"
	"github.com/elonfeng/trendkoll/pkg/summary"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logging.Init(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, nil
}

// app holds everything a command needs, and closes it.
type app struct {
	cfg    *config.Config
	runner *runner.Runner
	local  *store.SQLiteStore
	close  []func() error
}

func (a *app) Close() {
	for i := len(a.close) - 1; i >= 0; i-- {
		if err := a.close[i](); err != nil {
			logging.Warn("close", "err", err)
		}
	}
}

func buildApp(ctx context.Context, cfg *config.Config, dryRun bool) (*app, error) {
	a := &app{cfg: cfg}

	selector, search, err := buildSelector(cfg)
	if err != nil {
		return nil, err
	}
	events, err := trend.NewCanonicalizer(cfg.Tables)
	if err != nil {
		return nil, fmt.Errorf("build event tables: %w", err)
	}

	var (
		posts publish.Store
		media publish.MediaAttacher
	)
	switch cfg.Publish.Target {
	case config.TargetWordPress:
		wp := publish.NewWordPress(cfg.Publish.WordPress.BaseURL, cfg.Publish.WordPress.User, cfg.Publish.WordPress.AppPassword)
		posts, media = wp, wp
	default:
		db, err := store.New(cfg.Publish.Store.Path, cfg.Publish.Store.MediaDir)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		a.close = append(a.close, db.Close)
		a.local = db
		posts, media = db, db
	}

	summarizer, err := buildSummarizer(ctx, cfg, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	var renderer runner.ImageRenderer
	if cfg.Render.Enabled {
		r, err := render.New(cfg.Render.Palettes, cfg.Render.Brand)
		if err != nil {
			a.Close()
			return nil, err
		}
		renderer = r
	}

	a.runner = runner.New(runner.Options{
		MaxTrends:           cfg.Run.MaxTrends,
		Categories:          cfg.Categories,
		DuplicateWindow:     cfg.Run.ParseDuplicateWindow(),
		EventWindow:         cfg.Run.ParseEventWindow(),
		EvidenceItems:       cfg.Run.EvidenceItems,
		EvidenceMaxAge:      cfg.Run.ParseEvidenceMaxAge(),
		MergeKinds:          cfg.Run.MergeKinds,
		TrustedSingleSource: cfg.Tables.TrustedSingleSource,
		DryRun:              dryRun,
	}, runner.Deps{
		Selector:   selector,
		Evidence:   search,
		Events:     events,
		Summarizer: summarizer,
		Store:      posts,
		Media:      media,
		Renderer:   renderer,
		Alerts:     buildAlertManager(cfg),
	})
	return a, nil
}

func buildSelector(cfg *config.Config) (*trend.Selector, *source.GoogleNews, error) {
	normalizer, err := trend.NewNormalizer(cfg.Tables)
	if err != nil {
		return nil, nil, fmt.Errorf("build normalizer: %w", err)
	}

	search := source.NewGoogleNews(source.GoogleNewsOptions{
		Locale:       cfg.Sources.GoogleNews.Locale,
		MinInterval:  cfg.Sources.GoogleNews.ParseMinInterval(),
		ResolveLinks: cfg.Sources.GoogleNews.ResolveLinks,
	})
	src := trend.Sources{
		Search: search,
		Feeds:  source.NewFeeds(),
		Ranked: map[string]source.Ranked{
			string(source.NameWikipedia): source.NewWikipedia(cfg.Sources.Wikipedia.Project, cfg.Sources.Wikipedia.MetaPrefixes),
			string(source.NameReddit):    source.NewReddit(cfg.Sources.Reddit.Subreddit, cfg.Sources.Reddit.ClientID, cfg.Sources.Reddit.ClientSecret),
			string(source.NameYouTube):   source.NewYouTube(cfg.Sources.YouTube.APIKey, cfg.Sources.YouTube.Region),
		},
	}

	selector := trend.NewSelector(src, normalizer, trend.NewScorer(cfg.Tables), trend.SelectorOptions{
		Oversample: cfg.Run.Oversample,
		Fallback:   cfg.Fallback,
	})
	return selector, search, nil
}

func buildSummarizer(ctx context.Context, cfg *config.Config, a *app) (summary.Summarizer, error) {
	var models []summary.Model
	for _, m := range cfg.Summary.Models {
		if m.APIKey == "" {
			continue
		}
		switch m.Provider {
		case "openai":
			models = append(models, summary.NewOpenAI(m.APIKey, m.Model, m.BaseURL))
		case "anthropic":
			models = append(models, summary.NewAnthropic(m.APIKey, m.Model, m.BaseURL))
		case "gemini":
			g, err := summary.NewGemini(ctx, m.APIKey, m.Model)
			if err != nil {
				return nil, err
			}
			a.close = append(a.close, g.Close)
			models = append(models, g)
		}
	}
	if len(models) == 0 {
		logging.Warn("no summary model configured, using templated summaries")
		return nil, nil
	}
	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name()
	}
	logging.Info("summary chain", "models", names)
	return summary.NewChain(cfg.Summary.Attempts, models...), nil
}

func buildAlertManager(cfg *config.Config) *alert.Manager {
	var notifiers []alert.Notifier

	if cfg.Alerts.Slack.Enabled && cfg.Alerts.Slack.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewSlack(cfg.Alerts.Slack.WebhookURL))
	}
	if cfg.Alerts.Discord.Enabled && cfg.Alerts.Discord.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewDiscord(cfg.Alerts.Discord.WebhookURL))
	}
	if cfg.Alerts.Webhook.Enabled && cfg.Alerts.Webhook.URL != "" {
		notifiers = append(notifiers, alert.NewWebhook(cfg.Alerts.Webhook.URL, cfg.Alerts.Webhook.Secret))
	}

	return alert.NewManager(notifiers)
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func runOnce(parent context.Context, maxTrends int, dryRun bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if maxTrends > 0 {
		cfg.Run.MaxTrends = maxTrends
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	a, err := buildApp(ctx, cfg, dryRun)
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ACTION\tCATEGORY\tID\tTITLE")
	for _, p := range report.Posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Action, p.Category, p.ID, p.Title)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "\npublished %d of %d (shortlisted %d, remaining %d)\n",
		report.Published, cfg.Run.MaxTrends, report.Shortlisted, report.Remaining)
	return nil
}

func runSelect(parent context.Context, jsonOutput bool, maxTotal int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	selector, _, err := buildSelector(cfg)
	if err != nil {
		return err
	}
	if maxTotal <= 0 {
		maxTotal = cfg.Run.MaxTrends * 3
	}
	cands := selector.SelectTopics(ctx, maxTotal, cfg.Categories)

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cands)
	}

	if len(cands) == 0 {
		fmt.Println("no candidates found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tCATEGORY\tTITLE\tSIGNALS")
	for _, c := range cands {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.Score, c.CategorySlug, c.Title, c.Breakdown)
	}
	return w.Flush()
}

func runDaemon(parent context.Context, every string, port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	interval := cfg.Run.ParseEvery()
	if every != "" {
		d, err := time.ParseDuration(every)
		if err != nil {
			return fmt.Errorf("parse --every %q: %w", every, err)
		}
		interval = d
	}

	ctx, cancel := signalContext(parent)
	defer cancel()

	a, err := buildApp(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer a.Close()

	if port > 0 {
		var posts server.PostLister
		if a.local != nil {
			posts = a.local
		}
		srv := server.New(a.runner, posts, port)
		go func() {
			if err := srv.ListenAndServe(ctx); err != nil {
				logging.Error("server stopped", "err", err)
			}
		}()
	}

	err = a.runner.Loop(ctx, interval)
	if errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "\nshutting down...")
		return nil
	}
	return err
}

func runPosts(parent context.Context, jsonOutput bool, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Publish.Target != config.TargetSQLite {
		return fmt.Errorf("posts lists the local store; publish target is %s", cfg.Publish.Target)
	}

	db, err := store.New(cfg.Publish.Store.Path, cfg.Publish.Store.MediaDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	ctx, cancel := signalContext(parent)
	defer cancel()

	posts, err := db.ListPosts(ctx, limit)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(posts)
	}

	if len(posts) == 0 {
		fmt.Println("no posts yet (try: trendkoll run)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHED\tUPDATES\tCATEGORY\tTITLE")
	for _, p := range posts {
		category := ""
		if len(p.Categories) > 0 {
			category = p.Categories[0]
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", p.PublishedAt.Format(time.RFC3339), p.Updates, category, p.Title)
	}
	return w.Flush()
}
