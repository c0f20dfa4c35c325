// Package web provides the HTTP API for running the pipeline and
// inspecting its output.
package web

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/salesload/internal/config"
	"github.com/JonMunkholm/salesload/internal/core"
	"github.com/JonMunkholm/salesload/internal/store"
	"github.com/JonMunkholm/salesload/internal/web/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Runner runs the pipeline over a decoded table.
type Runner interface {
	Run(ctx context.Context, table core.RawTable) (core.RunSummary, error)
}

// Decoder turns an uploaded file into a table.
type Decoder interface {
	Decode(ctx context.Context, src io.Reader, name string) (core.RawTable, error)
}

// Queries reads loaded transactions and dead letters.
type Queries interface {
	GetTransaction(ctx context.Context, id string) (store.Transaction, error)
	RecentRejections(ctx context.Context, limit int) ([]store.RejectedRow, error)
	RejectionHistogram(ctx context.Context) ([]store.ReasonCount, error)
}

// Pinger checks database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the handlers call.
type Deps struct {
	Runner  Runner
	Decoder Decoder
	Queries Queries
	DB      Pinger // nil skips the database check in /healthz
}

// Server is the HTTP server for the sales loader.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	limiter *core.RunLimiter
	router  *chi.Mux
	server  *http.Server
}

// NewServer creates a new Server instance.
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	s := &Server{
		cfg:     cfg,
		deps:    deps,
		limiter: core.NewRunLimiter(cfg.MaxConcurrentRuns, cfg.MaxWaitTime),
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(s.cfg.APIKeys))

		// Pipeline runs
		r.Post("/runs", s.handleRun)
		r.Get("/runs/status", s.handleRunStatus)

		// Dead letters
		r.Get("/rejections", s.handleRecentRejections)
		r.Get("/rejections/summary", s.handleRejectionSummary)

		// Loaded rows
		r.Get("/transactions/{id}", s.handleGetTransaction)
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	slog.Info("starting server", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests and waits for in-flight runs so their
// writes complete.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	return s.limiter.WaitForDrain(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON with the given status.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err)
	}
}

