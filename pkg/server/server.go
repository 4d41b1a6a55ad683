// Package server exposes a small HTTP API next to the daemon: health,
// the last run report, a shortlist preview, a manual run trigger and the
// posts of the local store.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/trendkoll/internal/logging"
	"github.com/elonfeng/trendkoll/internal/runner"
	"github.com/elonfeng/trendkoll/internal/store"
	"github.com/elonfeng/trendkoll/pkg/trend"
)

// Runner is the part of runner.Runner the API drives.
type Runner interface {
	Run(ctx context.Context) (runner.Report, error)
	Last() (runner.Report, bool)
	Preview(ctx context.Context, maxTotal int) []trend.Candidate
}

// PostLister lists locally stored posts.
type PostLister interface {
	ListPosts(ctx context.Context, limit int) ([]store.PostRecord, error)
}

// Server provides the HTTP API.
type Server struct {
	runner Runner
	posts  PostLister
	port   int

	// runCtx bounds triggered runs; it outlives the triggering request.
	runCtx context.Context
}

// New creates a new HTTP server. posts may be nil when publishing to a
// remote store.
func New(r Runner, posts PostLister, port int) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{runner: r, posts: posts, port: port, runCtx: context.Background()}
}

// Handler returns the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/runs/last", s.handleLastRun)
	mux.HandleFunc("/api/v1/runs", s.handleRun)
	mux.HandleFunc("/api/v1/candidates", s.handleCandidates)
	mux.HandleFunc("/api/v1/posts", s.handlePosts)
	return mux
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.runCtx = ctx
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Info("server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	report, ok := s.runner.Last()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no run yet"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	// A client that disconnects must not abort a run halfway through
	// publishing a post.
	report, err := s.runner.Run(s.runCtx)
	switch {
	case errors.Is(err, runner.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, runner.ErrNoCandidates):
		writeJSON(w, http.StatusOK, map[string]any{"data": report, "warning": err.Error()})
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"data": report})
	}
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	limit, err := queryInt(r, "max", 0)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cands := s.runner.Preview(r.Context(), limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  cands,
		"count": len(cands),
	})
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if s.posts == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "posts are stored remotely"})
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	posts, err := s.posts.ListPosts(r.Context(), limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  posts,
		"count": len(posts),
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
