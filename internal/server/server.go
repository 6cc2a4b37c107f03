// Package server exposes the operator HTTP API: pair management, book
// inspection, trading controls and the execution journal.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit is requests per RateWindow per client IP. It only applies
	// when a limiter is passed to NewServer.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health        *handler.HealthHandler
	Pairs         *handler.PairHandler
	Books         *handler.BookHandler
	Trading       *handler.TradingHandler
	Executions    *handler.ExecutionHandler
	Audit         *handler.AuditHandler
	Opportunities *handler.OpportunityHandler
}

// Server is the headless HTTP API server of the arbitrage bot.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewHandler(cfg, handlers, limiter, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return &Server{httpServer: srv, logger: logger}
}

// NewHandler builds the routed handler with its middleware chain.
func NewHandler(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Pairs and detection.
	mux.HandleFunc("GET /api/pairs", handlers.Pairs.ListPairs)
	mux.HandleFunc("POST /api/pairs", handlers.Pairs.AddPair)
	mux.HandleFunc("DELETE /api/pairs/{id}", handlers.Pairs.RemovePair)
	mux.HandleFunc("GET /api/pairs/{id}/check", handlers.Pairs.CheckPair)
	mux.HandleFunc("GET /api/detector/stats", handlers.Pairs.DetectorStats)
	mux.HandleFunc("PATCH /api/detector", handlers.Pairs.UpdateMinSpread)

	// Books.
	mux.HandleFunc("GET /api/books/{venue}/{key}", handlers.Books.GetBook)

	// Trading controls.
	mux.HandleFunc("GET /api/trading/settings", handlers.Trading.GetSettings)
	mux.HandleFunc("PATCH /api/trading/settings", handlers.Trading.UpdateSettings)
	mux.HandleFunc("POST /api/trading/enable", handlers.Trading.Enable)
	mux.HandleFunc("POST /api/trading/disable", handlers.Trading.Disable)
	mux.HandleFunc("POST /api/trading/shutdown", handlers.Trading.Shutdown)
	mux.HandleFunc("POST /api/trading/reset", handlers.Trading.Reset)
	mux.HandleFunc("GET /api/trading/stats", handlers.Trading.Stats)

	// Journal.
	mux.HandleFunc("GET /api/executions", handlers.Executions.ListRecent)
	mux.HandleFunc("GET /api/executions/unreconciled", handlers.Executions.ListUnreconciled)
	mux.HandleFunc("GET /api/executions/{id}", handlers.Executions.GetExecution)
	mux.HandleFunc("POST /api/executions/{id}/reconcile", handlers.Executions.Reconcile)
	mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	mux.HandleFunc("GET /api/opportunities/recent", handlers.Opportunities.ListRecent)

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health")(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
