// Package api serves the engine over HTTP.
//
// Every reply is JSON with a status of "success" or "fail". Failures carry
// the engine error code, and rejections (not found, bad parameter) carry a
// message the UI can show inline.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/finishline/internal/engine"
)

// Subscriber streams change notifications. Implemented by *events.Bus.
type Subscriber interface {
	Subscribe(ctx context.Context, contextID int64) (<-chan engine.Change, error)
}

// Server holds the HTTP handlers.
type Server struct {
	engine     *engine.Engine
	subscriber Subscriber
	metrics    http.Handler
	logger     *slog.Logger
	xlsx       bool
}

// Option configures a Server.
type Option func(*Server)

// WithSubscriber enables the SSE change stream.
func WithSubscriber(sub Subscriber) Option {
	return func(s *Server) {
		s.subscriber = sub
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithWorkbook mounts or hides the XLSX download. Default: mounted.
func WithWorkbook(enabled bool) Option {
	return func(s *Server) {
		s.xlsx = enabled
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// New creates a Server over e.
func New(e *engine.Engine, opts ...Option) *Server {
	s := &Server{engine: e, xlsx: true}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		s.ok(w, nil)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/contexts", func(r chi.Router) {
			r.Get("/", s.listContexts)
			r.Post("/", s.createContext)
			r.Get("/active", s.activeContext)
			r.Route("/{contextID}", func(r chi.Router) {
				r.Get("/", s.getContext)
				r.Post("/activate", s.activate)
				r.Get("/board", s.board)
				r.Post("/results", s.submitResult)
				r.Post("/scans", s.submitScan)
				r.Post("/rewrite", s.rewrite)
				r.Get("/artifact", s.artifact)
				if s.xlsx {
					r.Get("/export.xlsx", s.workbook)
				}
				r.Post("/simulate", s.simulate)
				r.Post("/score", s.score)
				r.Get("/events", s.events)
			})
		})
		r.Route("/results/{resultID}", func(r chi.Router) {
			r.Get("/", s.getResult)
			r.Patch("/", s.updateResult)
			r.Delete("/", s.deleteResult)
			r.Post("/confirm", s.confirm)
		})
		r.Post("/corrections", s.correct)
		r.Get("/settings", s.listSettings)
		r.Put("/settings/{name}", s.setSetting)
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
