// Package runner drives one publishing run: select a shortlist, gate each
// candidate on duplicates and evidence, then update an event post or
// create a new one.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/elonfeng/trendkoll/pkg/alert"
	"github.com/elonfeng/trendkoll/pkg/publish"
	"github.com/elonfeng/trendkoll/pkg/render"
	"github.com/elonfeng/trendkoll/pkg/source"
	"github.com/elonfeng/trendkoll/pkg/summary"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

var (
	// ErrNoCandidates is returned when selection produced an empty shortlist.
	ErrNoCandidates = errors.New("no candidates")
	// ErrBusy is returned when a run is already in progress.
	ErrBusy = errors.New("run already in progress")
)

// Defaults for Options.
const (
	DefaultMaxTrends       = 8
	DefaultDuplicateWindow = 24 * time.Hour
	DefaultEventWindow     = 12 * time.Hour
	DefaultEvidenceItems   = 4
	DefaultEvidenceMaxAge  = 72 * time.Hour
	shortlistFactor        = 3
)

// DefaultMergeKinds are the event kinds merged into an existing post.
var DefaultMergeKinds = []string{trend.EventWeather, trend.EventSport}

// Politeness pauses between writes.
var (
	createPause = [2]time.Duration{800 * time.Millisecond, 1600 * time.Millisecond}
	updatePause = [2]time.Duration{600 * time.Millisecond, 1200 * time.Millisecond}
)

// Selector builds the shortlist.
type Selector interface {
	SelectTopics(ctx context.Context, maxTotal int, categories []trend.CategoryConfig) []trend.Candidate
}

// EventKeyer maps a title to a recurring event.
type EventKeyer interface {
	EventKey(title string) (trend.EventKey, bool)
}

// ImageRenderer draws post images.
type ImageRenderer interface {
	PNG(c render.Card, withText bool) ([]byte, error)
}

// Options configures a Runner.
type Options struct {
	MaxTrends           int
	Categories          []trend.CategoryConfig
	DuplicateWindow     time.Duration
	EventWindow         time.Duration
	EvidenceItems       int
	EvidenceMaxAge      time.Duration
	MergeKinds          []string
	TrustedSingleSource []string
	// DryRun walks the shortlist through every gate but writes nothing.
	DryRun bool
}

// Deps are the collaborators of a Runner. Summarizer, Media, Renderer and
// Alerts are optional.
type Deps struct {
	Selector   Selector
	Evidence   source.Searcher
	Events     EventKeyer
	Summarizer summary.Summarizer
	Store      publish.Store
	Media      publish.MediaAttacher
	Renderer   ImageRenderer
	Alerts     *alert.Manager
}

// Report summarizes a run.
type Report struct {
	RunID       string `json:"run_id"`
	Shortlisted int    `json:"shortlisted"`
	Published   int    `json:"published"`
	Created     int    `json:"created"`
	Updated     int    `json:"updated"`
	Skipped     int    `json:"skipped"`
	Remaining   int    `json:"remaining"`
	Posts       []Post `json:"posts,omitempty"`
}

// Post is one item written during a run.
type Post struct {
	ID       string       `json:"id"`
	Title    string       `json:"title"`
	Category string       `json:"category"`
	Action   alert.Action `json:"action"`
}

// Runner publishes trends.
type Runner struct {
	opts       Options
	deps       Deps
	categories map[string]trend.CategoryConfig
	mergeKinds map[string]bool

	running sync.Mutex
	mu      sync.Mutex
	last    *Report

	now   func() time.Time
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
	newID func() string
}

// New creates a runner.
func New(opts Options, deps Deps) *Runner {
	if opts.MaxTrends <= 0 {
		opts.MaxTrends = DefaultMaxTrends
	}
	if opts.DuplicateWindow <= 0 {
		opts.DuplicateWindow = DefaultDuplicateWindow
	}
	if opts.EventWindow <= 0 {
		opts.EventWindow = DefaultEventWindow
	}
	if opts.EvidenceItems <= 0 {
		opts.EvidenceItems = DefaultEvidenceItems
	}
	if opts.EvidenceMaxAge <= 0 {
		opts.EvidenceMaxAge = DefaultEvidenceMaxAge
	}
	if opts.MergeKinds == nil {
		opts.MergeKinds = DefaultMergeKinds
	}

	r := &Runner{
		opts:       opts,
		deps:       deps,
		categories: make(map[string]trend.CategoryConfig, len(opts.Categories)),
		mergeKinds: make(map[string]bool, len(opts.MergeKinds)),
		now:        time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepCtx,
		newID:      uuid.NewString,
	}
	for _, c := range opts.Categories {
		r.categories[c.Slug] = c
	}
	for _, k := range opts.MergeKinds {
		r.mergeKinds[k] = true
	}
	return r
}

// Run performs one publishing run. Per-candidate failures are logged and
// skipped; only an empty shortlist or a cancelled context ends the run
// with an error. Runs never overlap: a second caller gets ErrBusy.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	if !r.running.TryLock() {
		return Report{}, ErrBusy
	}
	defer r.running.Unlock()

	report, err := r.run(ctx)
	r.mu.Lock()
	r.last = &report
	r.mu.Unlock()
	return report, err
}

// Last returns the report of the most recent run, if any.
func (r *Runner) Last() (Report, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.last == nil {
		return Report{}, false
	}
	return *r.last, true
}

// Preview returns the shortlist a run would start from without publishing.
func (r *Runner) Preview(ctx context.Context, maxTotal int) []trend.Candidate {
	if maxTotal <= 0 {
		maxTotal = r.opts.MaxTrends * shortlistFactor
	}
	return r.deps.Selector.SelectTopics(ctx, maxTotal, r.opts.Categories)
}

func (r *Runner) run(ctx context.Context) (Report, error) {
	report := Report{RunID: r.newID()}
	logger := logging.With("run_id", report.RunID)

	shortlist := r.deps.Selector.SelectTopics(ctx, r.opts.MaxTrends*shortlistFactor, r.opts.Categories)
	report.Shortlisted = len(shortlist)
	if len(shortlist) == 0 {
		report.Remaining = r.opts.MaxTrends
		logger.Warn("no candidates found")
		return report, ErrNoCandidates
	}

	published := make(map[string]bool)
	for _, cand := range shortlist {
		if report.Published >= r.opts.MaxTrends {
			break
		}
		if err := ctx.Err(); err != nil {
			report.Remaining = r.opts.MaxTrends - report.Published
			return report, err
		}

		clog := logger.With("category", cand.CategorySlug, "title", cand.Title)
		clog.Info("candidate", "score", cand.Score, "signals", cand.Breakdown.String())

		post, ok := r.process(ctx, clog, cand, published)
		if !ok {
			report.Skipped++
			continue
		}
		published[cand.DedupKey] = true
		report.Published++
		report.Posts = append(report.Posts, post)
		if post.Action == alert.ActionUpdated {
			report.Updated++
		} else {
			report.Created++
		}
	}

	report.Remaining = r.opts.MaxTrends - report.Published
	logger.Info("run complete",
		"published", report.Published,
		"shortlisted", report.Shortlisted,
		"remaining", report.Remaining,
	)
	return report, nil
}

// Loop runs immediately and then every interval until ctx is cancelled.
func (r *Runner) Loop(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		return fmt.Errorf("invalid run interval %s", every)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	r.runOnce(ctx)
	logging.Info("daemon running", "every", every)

	for {
		select {
		case <-ctx.Done():
			logging.Info("daemon stopped")
			return ctx.Err()
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	if _, err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ErrBusy) {
		logging.Warn("run failed", "err", err)
	}
}

// process handles one candidate. ok is false when it was skipped.
func (r *Runner) process(ctx context.Context, logger *log.Logger, cand trend.Candidate, published map[string]bool) (Post, bool) {
	if published[cand.DedupKey] {
		logger.Info("skip: duplicate in this run")
		return Post{}, false
	}

	exists, err := r.deps.Store.ExistsWithinWindow(ctx, cand.Title, r.opts.DuplicateWindow)
	if err != nil {
		logger.Warn("existence check failed", "err", err)
	}
	if exists {
		logger.Info("skip: already published", "window", r.opts.DuplicateWindow)
		return Post{}, false
	}

	evidence := r.evidence(ctx, logger, cand.Title)
	need := r.requiredEvidence(cand.CategorySlug, evidence)
	if len(evidence) < need && cand.Origin == "" {
		logger.Info("skip: too little evidence", "have", len(evidence), "need", need)
		return Post{}, false
	}
	if len(evidence) == 0 && cand.Origin != "" {
		domain := source.Domain(cand.Origin)
		evidence = []source.Evidence{{Title: domain, Link: cand.Origin, Source: domain, Domain: domain}}
	}

	if r.opts.DryRun {
		logger.Info("dry run: would publish", "evidence", len(evidence))
		return Post{Title: cand.Title, Category: cand.CategorySlug, Action: alert.ActionCreated}, true
	}

	if post, ok := r.update(ctx, logger, cand, evidence); ok {
		return post, true
	}
	return r.create(ctx, logger, cand, evidence)
}

func (r *Runner) evidence(ctx context.Context, logger *log.Logger, title string) []source.Evidence {
	if r.deps.Evidence == nil {
		return nil
	}
	ev, err := r.deps.Evidence.Evidence(ctx, title, r.opts.EvidenceItems, r.opts.EvidenceMaxAge)
	if err != nil {
		logger.Warn("evidence unavailable", "err", err)
		return nil
	}
	return ev
}

// requiredEvidence is the category minimum, lowered to one when a trusted
// single source backs the story.
func (r *Runner) requiredEvidence(slug string, evidence []source.Evidence) int {
	need := 1
	if c, ok := r.categories[slug]; ok && c.MinEvidence > 0 {
		need = c.MinEvidence
	}
	if need <= 1 {
		return need
	}
	for _, e := range evidence {
		domain := source.Domain(e.Link)
		for _, trusted := range r.opts.TrustedSingleSource {
			if domain != "" && strings.HasSuffix(domain, trusted) {
				return 1
			}
		}
	}
	return need
}

// update appends to a recent post about the same event. ok is false when
// there is no such post or the append failed.
func (r *Runner) update(ctx context.Context, logger *log.Logger, cand trend.Candidate, evidence []source.Evidence) (Post, bool) {
	if r.deps.Events == nil {
		return Post{}, false
	}
	key, found := r.deps.Events.EventKey(cand.Title)
	if !found || !r.mergeKinds[key.Kind] {
		return Post{}, false
	}

	id, err := r.deps.Store.FindRecentByQuery(ctx, key.Name, r.opts.EventWindow)
	if err != nil {
		if !errors.Is(err, publish.ErrNotFound) {
			logger.Warn("event lookup failed", "event", key.String(), "err", err)
		}
		return Post{}, false
	}

	if err := r.deps.Store.AppendUpdate(ctx, id, publish.UpdateHTML(cand.Title, evidence)); err != nil {
		logger.Warn("update failed, creating new post", "event", key.String(), "post_id", id, "err", err)
		return Post{}, false
	}
	logger.Info("updated event post", "event", key.String(), "post_id", id)

	post := Post{ID: id, Title: cand.Title, Category: cand.CategorySlug, Action: alert.ActionUpdated}
	r.notify(ctx, logger, post, cand, publish.Excerpt(cand.Title, publish.UpdateExcerptChars), evidence)
	r.pause(ctx, updatePause)
	return post, true
}

func (r *Runner) create(ctx context.Context, logger *log.Logger, cand trend.Candidate, evidence []source.Evidence) (Post, bool) {
	text := r.summarize(ctx, logger, cand.Title, evidence)
	now := r.now().UTC()
	excerpt := publish.Excerpt(text, publish.ExcerptChars)

	id, err := r.deps.Store.Create(ctx, publish.Post{
		Title:      cand.Title,
		Body:       publish.Body(text, evidence, now),
		Excerpt:    excerpt,
		Tags:       publish.Tags(now),
		Categories: []string{cand.CategorySlug},
	})
	if err != nil {
		logger.Error("publish failed", "err", err)
		return Post{}, false
	}
	logger.Info("published", "post_id", id)

	if id != "" {
		r.attachImages(ctx, logger, id, cand, now)
	}

	post := Post{ID: id, Title: cand.Title, Category: cand.CategorySlug, Action: alert.ActionCreated}
	r.notify(ctx, logger, post, cand, excerpt, evidence)
	r.pause(ctx, createPause)
	return post, true
}

func (r *Runner) summarize(ctx context.Context, logger *log.Logger, title string, evidence []source.Evidence) string {
	if r.deps.Summarizer != nil {
		text, err := r.deps.Summarizer.Summarize(ctx, title, evidence)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		logger.Warn("summary unavailable, using fallback", "err", err)
	}
	return summary.Fallback(title, evidence)
}

func (r *Runner) attachImages(ctx context.Context, logger *log.Logger, postID string, cand trend.Candidate, now time.Time) {
	if r.deps.Renderer == nil || r.deps.Media == nil {
		return
	}
	card := render.Card{
		Title:        cand.Title,
		CategorySlug: cand.CategorySlug,
		CategoryName: cand.CategoryName,
		Date:         now,
	}
	for _, role := range []publish.ImageRole{publish.ImageCard, publish.ImageSocial} {
		data, err := r.deps.Renderer.PNG(card, role == publish.ImageSocial)
		if err != nil {
			logger.Warn("render image failed", "role", role, "err", err)
			continue
		}
		url, err := r.deps.Media.AttachImage(ctx, postID, publish.Image{
			Role:     role,
			Filename: fmt.Sprintf("%s_trend_%s.png", role, postID),
			Data:     data,
		})
		if err != nil {
			logger.Warn("attach image failed", "role", role, "err", err)
			continue
		}
		logger.Debug("image attached", "role", role, "url", url)
	}
}

func (r *Runner) notify(ctx context.Context, logger *log.Logger, post Post, cand trend.Candidate, excerpt string, evidence []source.Evidence) {
	if !r.deps.Alerts.HasNotifiers() {
		return
	}
	err := r.deps.Alerts.Broadcast(ctx, &alert.Notification{
		Action:   post.Action,
		PostID:   post.ID,
		Title:    post.Title,
		Category: cand.CategoryName,
		Excerpt:  excerpt,
		Score:    cand.Score,
		Evidence: evidence,
	})
	if err != nil {
		logger.Warn("notify failed", "err", err)
	}
}

// pause sleeps a random duration within span.
func (r *Runner) pause(ctx context.Context, span [2]time.Duration) {
	d := span[0] + time.Duration(r.rng.Int63n(int64(span[1]-span[0])+1))
	_ = r.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
