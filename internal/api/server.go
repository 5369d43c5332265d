package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/config"
	"github.com/JunJD/xiuer-spider/internal/crawler"
	"github.com/JunJD/xiuer-spider/internal/dispatcher"
	"github.com/JunJD/xiuer-spider/internal/metrics"
	"github.com/JunJD/xiuer-spider/internal/orchestrator"
	"github.com/JunJD/xiuer-spider/internal/progress"
	"github.com/JunJD/xiuer-spider/internal/storage/memory"
)

const requestTimeout = 60 * time.Second

// Submitter queues runs for the single worker.
type Submitter interface {
	Submit(req orchestrator.Request) error
	Pending() int
}

// RunStore records submitted runs and serves their latest state.
type RunStore interface {
	Submit(runID, taskID, query string, at time.Time) error
	Discard(runID string)
	Get(runID string) (memory.RunRecord, bool)
	List() []memory.RunRecord
}

// WebhookFactory builds the per-run sink for a request-supplied webhook URL.
type WebhookFactory func(url string) (progress.Sink, error)

// Deps groups the collaborators of Server.
type Deps struct {
	Submitter Submitter
	Runs      RunStore
	IDs       crawler.IDGenerator
	Clock     crawler.Clock
	// Registry backs /metrics and the HTTP collectors. Nil disables both.
	Registry *prometheus.Registry
	// Webhooks is required to honor webhook_url on submissions.
	Webhooks WebhookFactory
	Logger   *zap.Logger
}

// Server wires HTTP handlers to the dispatcher and run store.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Submitter == nil || deps.Runs == nil || deps.IDs == nil || deps.Clock == nil {
		return nil, errors.New("api: submitter, run store, id generator and clock are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{deps: deps, cfg: cfg, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	if deps.Registry != nil {
		httpMetrics, err := metrics.NewHTTP(deps.Registry)
		if err != nil {
			return nil, fmt.Errorf("api metrics: %w", err)
		}
		r.Use(httpMetrics.Middleware)
	}
	r.Use(timeoutMiddleware(requestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Registry))
	}

	r.Route("/v1", func(r chi.Router) {
		if cfg.Server.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.Server.APIKey))
		}
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", s.submitRun)
			r.Get("/", s.listRuns)
			r.Get("/{run_id}", s.getRun)
		})
	})

	s.router = r
	return s, nil
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ready",
		"pending": s.deps.Submitter.Pending(),
	})
}

type runRequest struct {
	Query       string            `json:"query"`
	Num         *int              `json:"num,omitempty"`
	SortType    *crawler.SortMode `json:"sort_type,omitempty"`
	Cookies     string            `json:"cookies,omitempty"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	GetComments *bool             `json:"get_comments,omitempty"`
	NoDelay     bool              `json:"no_delay,omitempty"`
	TaskID      string            `json:"task_id,omitempty"`
}

type runAccepted struct {
	RunID  string `json:"run_id"`
	TaskID string `json:"task_id,omitempty"`
	Status string `json:"status"`
}

func (s *Server) submitRun(w http.ResponseWriter, r *http.Request) {
	var body runRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req, err := s.toRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.RunID, err = s.deps.IDs.NewID()
	if err != nil {
		s.logger.Error("generate run id failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to generate run id")
		return
	}

	if err := s.deps.Runs.Submit(req.RunID, req.TaskID, req.Query, s.deps.Clock.Now()); err != nil {
		s.logger.Error("record run failed", zap.String("run_id", req.RunID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record run")
		return
	}
	if err := s.deps.Submitter.Submit(req); err != nil {
		s.deps.Runs.Discard(req.RunID)
		if errors.Is(err, dispatcher.ErrBusy) {
			writeError(w, http.StatusServiceUnavailable, "run queue is full")
			return
		}
		s.logger.Error("submit run failed", zap.String("run_id", req.RunID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to queue run")
		return
	}
	s.logger.Info("run queued",
		zap.String("run_id", req.RunID),
		zap.String("task_id", req.TaskID),
		zap.String("query", req.Query),
	)
	writeJSON(w, http.StatusAccepted, runAccepted{RunID: req.RunID, TaskID: req.TaskID, Status: "queued"})
}

func (s *Server) toRequest(body runRequest) (orchestrator.Request, error) {
	query := strings.TrimSpace(body.Query)
	if query == "" {
		return orchestrator.Request{}, errors.New("query is required")
	}
	num := valueOrDefault(body.Num, s.cfg.Crawl.Num)
	if num <= 0 {
		return orchestrator.Request{}, errors.New("num must be > 0")
	}
	cookies := body.Cookies
	if cookies == "" {
		cookies = s.cfg.Credential.Cookies
	}
	req := orchestrator.Request{
		TaskID:      strings.TrimSpace(body.TaskID),
		Query:       query,
		Count:       num,
		SortMode:    valueOrDefault(body.SortType, s.cfg.Crawl.SortMode()),
		Credential:  crawler.Credential{Cookies: cookies},
		GetComments: valueOrDefault(body.GetComments, s.cfg.Crawl.GetComments),
		NoDelay:     body.NoDelay,
	}
	if body.WebhookURL != "" {
		if s.deps.Webhooks == nil {
			return orchestrator.Request{}, errors.New("webhook_url is not supported")
		}
		sink, err := s.deps.Webhooks(body.WebhookURL)
		if err != nil {
			return orchestrator.Request{}, fmt.Errorf("webhook_url: %w", err)
		}
		req.Sink = sink
	}
	return req, nil
}

func valueOrDefault[T any](ptr *T, def T) T {
	if ptr == nil {
		return def
	}
	return *ptr
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			reqID, _ := r.Context().Value(requestIDKey{}).(string)
			logger.Info("request completed",
				zap.String("request_id", reqID),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
