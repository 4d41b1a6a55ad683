package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/trendkoll/pkg/alert"
	"github.com/elonfeng/trendkoll/pkg/publish"
	"github.com/elonfeng/trendkoll/pkg/render"
	"github.com/elonfeng/trendkoll/pkg/source"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

type fakeSelector struct {
	cands    []trend.Candidate
	maxTotal int
}

func (f *fakeSelector) SelectTopics(_ context.Context, maxTotal int, _ []trend.CategoryConfig) []trend.Candidate {
	f.maxTotal = maxTotal
	return f.cands
}

type fakeEvidence struct {
	byTitle map[string][]source.Evidence
	err     error
}

func (f *fakeEvidence) Search(context.Context, string, int, time.Duration) ([]source.RawItem, error) {
	return nil, nil
}

func (f *fakeEvidence) Evidence(_ context.Context, query string, _ int, _ time.Duration) ([]source.Evidence, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byTitle[query], nil
}

type fakeEvents map[string]trend.EventKey

func (f fakeEvents) EventKey(title string) (trend.EventKey, bool) {
	k, ok := f[title]
	return k, ok
}

type fakeStore struct {
	existing  map[string]bool
	existsErr error
	recent    map[string]string
	appendErr error
	createErr error

	created []publish.Post
	updates map[string][]string
	queries []string
	images  []publish.Image
}

func newFakeStore() *fakeStore {
	return &fakeStore{existing: map[string]bool{}, recent: map[string]string{}, updates: map[string][]string{}}
}

func (f *fakeStore) ExistsWithinWindow(_ context.Context, title string, _ time.Duration) (bool, error) {
	return f.existing[title], f.existsErr
}

func (f *fakeStore) FindRecentByQuery(_ context.Context, query string, _ time.Duration) (string, error) {
	f.queries = append(f.queries, query)
	if id, ok := f.recent[query]; ok {
		return id, nil
	}
	return "", publish.ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, p publish.Post) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, p)
	return "post-" + string(rune('0'+len(f.created))), nil
}

func (f *fakeStore) AppendUpdate(_ context.Context, id, html string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.updates[id] = append(f.updates[id], html)
	return nil
}

func (f *fakeStore) AttachImage(_ context.Context, _ string, img publish.Image) (string, error) {
	f.images = append(f.images, img)
	return "file://" + img.Filename, nil
}

type fakeSummarizer struct {
	text string
	err  error
}

func (f fakeSummarizer) Summarize(context.Context, string, []source.Evidence) (string, error) {
	return f.text, f.err
}

type fakeRenderer struct{ calls []bool }

func (f *fakeRenderer) PNG(_ render.Card, withText bool) ([]byte, error) {
	f.calls = append(f.calls, withText)
	return []byte("png"), nil
}

type recordingNotifier struct{ got []*alert.Notification }

func (r *recordingNotifier) Name() string { return "rec" }

func (r *recordingNotifier) Send(_ context.Context, n *alert.Notification) error {
	r.got = append(r.got, n)
	return nil
}

func cand(title, slug, origin string) trend.Candidate {
	return trend.Candidate{
		Title:        title,
		DedupKey:     trend.CanonicalKey(title),
		CategorySlug: slug,
		CategoryName: strings.ToUpper(slug[:1]) + slug[1:],
		Origin:       origin,
		Score:        5,
	}
}

func ev(domain string) source.Evidence {
	return source.Evidence{Title: "x", Link: "https://www." + domain + "/a", Source: domain, Domain: domain}
}

type harness struct {
	runner   *Runner
	selector *fakeSelector
	evidence *fakeEvidence
	store    *fakeStore
	renderer *fakeRenderer
	notes    *recordingNotifier
	pauses   []time.Duration
}

func newHarness(t *testing.T, opts Options, cands ...trend.Candidate) *harness {
	t.Helper()
	h := &harness{
		selector: &fakeSelector{cands: cands},
		evidence: &fakeEvidence{byTitle: map[string][]source.Evidence{}},
		store:    newFakeStore(),
		renderer: &fakeRenderer{},
		notes:    &recordingNotifier{},
	}
	if opts.Categories == nil {
		opts.Categories = []trend.CategoryConfig{
			{Slug: "nyheter", Name: "Nyheter", Quota: 1, MinEvidence: 2},
			{Slug: "sport", Name: "Sport", Quota: 1, MinEvidence: 1},
		}
	}
	h.runner = New(opts, Deps{
		Selector:   h.selector,
		Evidence:   h.evidence,
		Events:     fakeEvents{},
		Summarizer: fakeSummarizer{text: "Kort sammanfattning. Mer text."},
		Store:      h.store,
		Media:      h.store,
		Renderer:   h.renderer,
		Alerts:     alert.NewManager([]alert.Notifier{h.notes}),
	})
	h.runner.now = func() time.Time { return time.Date(2025, 10, 3, 12, 0, 0, 0, time.UTC) }
	h.runner.newID = func() string { return "run-1" }
	h.runner.sleep = func(_ context.Context, d time.Duration) error {
		h.pauses = append(h.pauses, d)
		return nil
	}
	return h
}

func TestRunNoCandidates(t *testing.T) {
	h := newHarness(t, Options{MaxTrends: 3})
	report, err := h.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.Equal(t, 3, report.Remaining)
	assert.Equal(t, 9, h.selector.maxTotal)
}

func TestRunCreatesPost(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "nyheter", "")
	h := newHarness(t, Options{MaxTrends: 2}, c)
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se"), ev("dn.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Remaining)
	assert.Equal(t, "run-1", report.RunID)

	require.Len(t, h.store.created, 1)
	post := h.store.created[0]
	assert.Equal(t, c.Title, post.Title)
	assert.Equal(t, []string{"nyheter"}, post.Categories)
	assert.Equal(t, []string{"idag", "svenska-trender", "2025-10-03"}, post.Tags)
	assert.Equal(t, "Kort sammanfattning", post.Excerpt)
	assert.Contains(t, post.Body, "Publicerad: 2025-10-03 12:00 UTC")
	assert.Contains(t, post.Body, "<h3>Källor</h3>")

	assert.Equal(t, []bool{false, true}, h.renderer.calls)
	require.Len(t, h.store.images, 2)
	assert.Equal(t, publish.ImageCard, h.store.images[0].Role)
	assert.Equal(t, "social_trend_post-1.png", h.store.images[1].Filename)

	require.Len(t, h.notes.got, 1)
	assert.Equal(t, alert.ActionCreated, h.notes.got[0].Action)
	assert.Equal(t, "Nyheter", h.notes.got[0].Category)

	require.Len(t, h.pauses, 1)
	assert.GreaterOrEqual(t, h.pauses[0], 800*time.Millisecond)
	assert.LessOrEqual(t, h.pauses[0], 1600*time.Millisecond)
}

func TestRunStopsAtMaxTrends(t *testing.T) {
	a := cand("Första nyheten om budgeten", "sport", "")
	b := cand("Andra nyheten om valet", "sport", "")
	h := newHarness(t, Options{MaxTrends: 1}, a, b)
	h.evidence.byTitle[a.Title] = []source.Evidence{ev("svt.se")}
	h.evidence.byTitle[b.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 0, report.Remaining)
	assert.Len(t, h.store.created, 1)
}

func TestRunSkipsDuplicateKeyInRun(t *testing.T) {
	a := cand("AIK vann derbyt", "sport", "")
	b := cand("AIK vann derbyt!", "sport", "")
	require.Equal(t, a.DedupKey, b.DedupKey)

	h := newHarness(t, Options{MaxTrends: 5}, a, b)
	h.evidence.byTitle[a.Title] = []source.Evidence{ev("svt.se")}
	h.evidence.byTitle[b.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Skipped)
}

func TestRunSkipsExistingPost(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	h.store.existing[c.Title] = true
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Published)
	assert.Empty(t, h.store.created)
}

func TestRunExistenceErrorFailsOpen(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	h.store.existsErr = errors.New("wp down")
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
}

func TestRunEvidenceGate(t *testing.T) {
	short := cand("Kort om budgeten", "nyheter", "")
	trusted := cand("SVT om budgeten", "nyheter", "")
	withOrigin := cand("Nytt från Mobil", "nyheter", "https://www.mobil.se/nyheter/1")

	h := newHarness(t, Options{TrustedSingleSource: []string{"svt.se"}}, short, trusted, withOrigin)
	h.evidence.byTitle[short.Title] = []source.Evidence{ev("example.com")}
	h.evidence.byTitle[trusted.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Published)
	assert.Equal(t, 1, report.Skipped)

	require.Len(t, h.store.created, 2)
	assert.Equal(t, trusted.Title, h.store.created[0].Title)
	assert.Equal(t, withOrigin.Title, h.store.created[1].Title)
	// Origin stands in as the only source.
	assert.Contains(t, h.store.created[1].Body, "<h3>Källa</h3>")
	assert.Contains(t, h.store.created[1].Body, "https://www.mobil.se/nyheter/1")
}

func TestRunEvidenceErrorSkipsWithoutOrigin(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	h.evidence.err = errors.New("search down")

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Published)
}

func TestRunUpdatesEventPost(t *testing.T) {
	c := cand("Stormen Amy drar in över västkusten", "nyheter", "")
	h := newHarness(t, Options{}, c)
	h.runner.deps.Events = fakeEvents{c.Title: {Kind: trend.EventWeather, Name: "amy"}}
	h.store.recent["amy"] = "77"
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se"), ev("smhi.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Updated)
	assert.Empty(t, h.store.created)
	require.Len(t, h.store.updates["77"], 1)
	assert.Equal(t, "<p>Stormen Amy drar in över västkusten</p>", h.store.updates["77"][0])

	require.Len(t, h.notes.got, 1)
	assert.Equal(t, alert.ActionUpdated, h.notes.got[0].Action)
	require.Len(t, h.pauses, 1)
	assert.LessOrEqual(t, h.pauses[0], 1200*time.Millisecond)
}

func TestRunUpdateFailureCreatesOnce(t *testing.T) {
	c := cand("Stormen Amy drar in över västkusten", "nyheter", "")
	h := newHarness(t, Options{}, c)
	h.runner.deps.Events = fakeEvents{c.Title: {Kind: trend.EventWeather, Name: "amy"}}
	h.store.recent["amy"] = "77"
	h.store.appendErr = errors.New("502")
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se"), ev("smhi.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Created)
	assert.Len(t, h.store.created, 1)
}

func TestRunPolicyEventsAreNotMerged(t *testing.T) {
	c := cand("Debatt om kärnkraft i riksdagen", "nyheter", "")
	h := newHarness(t, Options{}, c)
	h.runner.deps.Events = fakeEvents{c.Title: {Kind: trend.EventPolicy, Name: "karnkraft"}}
	h.store.recent["karnkraft"] = "5"
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se"), ev("dn.se")}

	_, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, h.store.queries)
	assert.Len(t, h.store.created, 1)
}

func TestRunSummaryFallback(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	h.runner.deps.Summarizer = fakeSummarizer{err: errors.New("no models")}
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se")}

	_, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, h.store.created, 1)
	assert.Contains(t, h.store.created[0].Body, "Enkelt förklarat")
}

func TestRunCreateFailureContinues(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	h.store.createErr = errors.New("401")
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Published)
	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, h.notes.got)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{DryRun: true}, c)
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se")}

	report, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Empty(t, h.store.created)
	assert.Empty(t, h.notes.got)
	assert.Empty(t, h.pauses)
}

func TestRunCancelled(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, h.store.created)
}

func TestLoopStopsOnCancel(t *testing.T) {
	h := newHarness(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.runner.Loop(ctx, time.Hour) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopRejectsBadInterval(t *testing.T) {
	h := newHarness(t, Options{})
	assert.Error(t, h.runner.Loop(context.Background(), 0))
}

func TestRunRecordsLastReport(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{}, c)
	h.evidence.byTitle[c.Title] = []source.Evidence{ev("svt.se")}

	_, ok := h.runner.Last()
	assert.False(t, ok)

	_, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	last, ok := h.runner.Last()
	require.True(t, ok)
	assert.Equal(t, 1, last.Published)
}

func TestRunRejectsOverlap(t *testing.T) {
	h := newHarness(t, Options{})
	h.runner.running.Lock()
	defer h.runner.running.Unlock()

	_, err := h.runner.Run(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
}

func TestPreview(t *testing.T) {
	c := cand("Regeringen presenterar budgeten", "sport", "")
	h := newHarness(t, Options{MaxTrends: 2}, c)

	got := h.runner.Preview(context.Background(), 0)
	assert.Len(t, got, 1)
	assert.Equal(t, 6, h.selector.maxTotal)
	assert.Empty(t, h.store.created)
}
