package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MikeSquared-Agency/scribe/internal/engine"
	"github.com/MikeSquared-Agency/scribe/internal/pipeline"
	"github.com/MikeSquared-Agency/scribe/internal/source"
	"github.com/MikeSquared-Agency/scribe/internal/window"
)

// Runner starts digest runs.
type Runner interface {
	RunDaily(ctx context.Context) (pipeline.Report, error)
	RunRange(ctx context.Context, channelID string, w window.Window) (pipeline.Report, error)
}

// RunLister reads the run audit log.
type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]pipeline.Event, error)
}

type Server struct {
	router *chi.Mux
	port   int
	http   *http.Server

	runner  Runner
	runs    RunLister
	metrics http.Handler
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Server)

func WithRunLister(l RunLister) Option { return func(s *Server) { s.runs = l } }
func WithMetrics(h http.Handler) Option { return func(s *Server) { s.metrics = h } }
func WithLocation(loc *time.Location) Option { return func(s *Server) { s.loc = loc } }

// NewServer builds the router. Trigger routes are mounted only when apiToken is set.
func NewServer(port int, apiToken string, runner Runner, logger *slog.Logger, opts ...Option) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		port:   port,
		runner: runner,
		loc:    time.Local,
		now:    time.Now,
		logger: logger,
	}
	for _, o := range opts {
		o(s)
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.Get("/health", s.health)
	router.Get("/api/v1/scribe/status", s.status)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics)
	}

	if apiToken != "" {
		router.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(apiToken))
			r.Post("/api/v1/scribe/daily", s.triggerDaily)
			r.Post("/api/v1/scribe/analyze", s.triggerAnalyze)
			if s.runs != nil {
				r.Get("/api/v1/scribe/runs", s.listRuns)
			}
		})
	} else {
		logger.Warn("SCRIBE_API_TOKEN not set, HTTP triggers disabled")
	}

	return s
}

func (s *Server) Start() error {
	s.logger.Info("API server starting", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"agent":  "scribe",
		"status": "running",
	})
}

// AnalyzeRequest is the body of POST /api/v1/scribe/analyze.
type AnalyzeRequest struct {
	Channel string `json:"channel"`
	Start   string `json:"start"`
	End     string `json:"end,omitempty"`
}

// Runs are detached from the request context so a dropped client does not
// abort a digest halfway through posting.
func (s *Server) triggerDaily(w http.ResponseWriter, r *http.Request) {
	report, err := s.runner.RunDaily(context.WithoutCancel(r.Context()))
	s.writeReport(w, report, err)
}

func (s *Server) triggerAnalyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}
	if req.Channel == "" || req.Start == "" {
		writeError(w, http.StatusBadRequest, "channel and start are required")
		return
	}

	win, err := window.ParseRange(req.Start, req.End, s.now(), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.runner.RunRange(context.WithoutCancel(r.Context()), req.Channel, win)
	s.writeReport(w, report, err)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	runs, err := s.runs.RecentRuns(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

func (s *Server) writeReport(w http.ResponseWriter, report pipeline.Report, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, report.Event())
		return
	}

	var failed *engine.FailedError
	switch {
	case errors.Is(err, window.ErrInvalidWindow):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, source.ErrSourceUnavailable):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &failed):
		writeJSON(w, http.StatusBadGateway, report.Event())
	default:
		writeJSON(w, http.StatusInternalServerError, report.Event())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
