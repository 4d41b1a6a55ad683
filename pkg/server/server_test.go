package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elonfeng/trendkoll/internal/runner"
	"github.com/elonfeng/trendkoll/internal/store"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

type fakeRunner struct {
	report   runner.Report
	err      error
	last     *runner.Report
	maxTotal int
	runCtx   context.Context
}

func (f *fakeRunner) Run(ctx context.Context) (runner.Report, error) {
	f.runCtx = ctx
	return f.report, f.err
}

func (f *fakeRunner) Last() (runner.Report, bool) {
	if f.last == nil {
		return runner.Report{}, false
	}
	return *f.last, true
}

func (f *fakeRunner) Preview(_ context.Context, maxTotal int) []trend.Candidate {
	f.maxTotal = maxTotal
	return []trend.Candidate{{Title: "Stormen Amy", DedupKey: "stormen amy", CategorySlug: "nyheter", Score: 6}}
}

type fakePosts struct {
	limit int
	err   error
}

func (f *fakePosts) ListPosts(_ context.Context, limit int) ([]store.PostRecord, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []store.PostRecord{{ID: "a", Title: "Stormen Amy"}}, nil
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealth(t *testing.T) {
	rec, body := do(t, New(&fakeRunner{}, nil, 0).Handler(), http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestLastRun(t *testing.T) {
	r := &fakeRunner{}
	h := New(r, nil, 0).Handler()

	rec, _ := do(t, h, http.MethodGet, "/api/v1/runs/last")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	r.last = &runner.Report{RunID: "abc", Published: 2}
	rec, body := do(t, h, http.MethodGet, "/api/v1/runs/last")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc", body["run_id"])
	assert.Equal(t, float64(2), body["published"])
}

func TestTriggerRun(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"ok", nil, http.StatusOK},
		{"busy", runner.ErrBusy, http.StatusConflict},
		{"no candidates", runner.ErrNoCandidates, http.StatusOK},
		{"failed", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeRunner{err: tt.err}, nil, 0).Handler()
			rec, _ := do(t, h, http.MethodPost, "/api/v1/runs")
			assert.Equal(t, tt.code, rec.Code)
		})
	}

	rec, _ := do(t, New(&fakeRunner{}, nil, 0).Handler(), http.MethodGet, "/api/v1/runs")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestTriggeredRunOutlivesRequest(t *testing.T) {
	r := &fakeRunner{}
	h := New(r, nil, 0).Handler()

	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", nil).WithContext(reqCtx))

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, r.runCtx)
	assert.NoError(t, r.runCtx.Err())
}

func TestCandidates(t *testing.T) {
	r := &fakeRunner{}
	h := New(r, nil, 0).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/v1/candidates?max=5")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, 5, r.maxTotal)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/candidates?max=x")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPosts(t *testing.T) {
	rec, _ := do(t, New(&fakeRunner{}, nil, 0).Handler(), http.MethodGet, "/api/v1/posts")
	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	p := &fakePosts{}
	rec, body := do(t, New(&fakeRunner{}, p, 0).Handler(), http.MethodGet, "/api/v1/posts?limit=3")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, p.limit)
	assert.Equal(t, float64(1), body["count"])

	p.err = errors.New("db locked")
	rec, _ = do(t, New(&fakeRunner{}, p, 0).Handler(), http.MethodGet, "/api/v1/posts")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 20, p.limit)
}
