// Package server exposes the run trigger and run state over HTTP.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deusflow/dispatch/internal/metrics"
	"github.com/deusflow/dispatch/internal/pipeline"
	"github.com/deusflow/dispatch/internal/storage"
)

// ErrRunInProgress is returned by Start while another run is executing.
var ErrRunInProgress = errors.New("a run is already in progress")

const passwordHeader = "X-App-Password"

type Runner interface {
	NewRun() *pipeline.Run
	Execute(ctx context.Context, run *pipeline.Run) error
}

type History interface {
	List(ctx context.Context, limit int) ([]storage.RunSummary, error)
	Get(ctx context.Context, id string) (storage.RunSummary, error)
}

type Options struct {
	Password   string
	RunTimeout time.Duration
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// BaseContext is the parent of every run context. Cancelling it aborts
	// the in-flight run.
	BaseContext context.Context
}

type Server struct {
	runner  Runner
	history History
	opts    Options
	log     *slog.Logger

	mu      sync.Mutex
	current *pipeline.Run
	running bool
	wg      sync.WaitGroup
}

func New(runner Runner, history History, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Global
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 15 * time.Minute
	}
	if opts.BaseContext == nil {
		opts.BaseContext = context.Background()
	}
	if opts.Password == "" {
		opts.Logger.Warn("APP_PASSWORD is not set, run triggers are unauthenticated")
	}
	return &Server{runner: runner, history: history, opts: opts, log: opts.Logger}
}

// Start launches a run in the background. Only one run executes at a time.
func (s *Server) Start() (*pipeline.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, ErrRunInProgress
	}

	run := s.runner.NewRun()
	s.current = run
	s.running = true
	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.opts.BaseContext, s.opts.RunTimeout)
		defer cancel()

		if err := s.runner.Execute(ctx, run); err != nil {
			s.log.Error("run failed", "run_id", run.ID(), "error", err)
		} else {
			s.log.Info("run finished", "run_id", run.ID())
		}

		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()
	return run, nil
}

// Wait blocks until the in-flight run, if any, has finished.
func (s *Server) Wait() {
	s.wg.Wait()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api/runs", func(api chi.Router) {
		api.Post("/", s.handleTrigger)
		api.Get("/", s.handleListRuns)
		api.Get("/current", s.handleCurrentRun)
		api.Get("/{id}", s.handleGetRun)
	})
	return r
}

// ListenAndServe serves until ctx is done, then shuts down gracefully and
// waits for the in-flight run.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting http server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Wait()
	return err
}

func (s *Server) authorized(r *http.Request) bool {
	if s.opts.Password == "" {
		return true
	}
	got := r.URL.Query().Get("password")
	if got == "" {
		got = r.Header.Get(passwordHeader)
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Password)) == 1
}

// handleIndex keeps the "?action=start&password=..." convention used by
// scheduled callers. Without an action it reports whether a run is active.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("action") == "start" {
		s.handleTrigger(w, r)
		return
	}

	s.mu.Lock()
	running, current := s.running, s.current
	s.mu.Unlock()

	resp := map[string]any{"running": running}
	if current != nil {
		resp["run_id"] = current.ID()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}
	run, err := s.Start()
	if errors.Is(err, ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		s.log.Error("failed to start run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start run")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": run.ID(), "status": "started"})
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil {
		writeError(w, http.StatusNotFound, "no run has been started")
		return
	}
	writeJSON(w, http.StatusOK, current.Snapshot())
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, []storage.RunSummary{})
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.history.List(r.Context(), limit)
	if err != nil {
		s.log.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []storage.RunSummary{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	run, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.log.Error("failed to get run", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.opts.Metrics.GetStats()

	status := "ok"
	code := http.StatusOK
	if !s.opts.Metrics.Healthy() {
		status = "error"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Metrics.GetStats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
