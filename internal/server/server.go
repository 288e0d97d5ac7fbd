// Package server exposes the dispute registry, oracle, and settlement
// operations over HTTP and WebSocket for the dApp frontend.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/veritaslabs/arbiterd/internal/domain"
	"github.com/veritaslabs/arbiterd/internal/server/handler"
	"github.com/veritaslabs/arbiterd/internal/server/middleware"
	"github.com/veritaslabs/arbiterd/internal/server/ws"
)

// Rate limit applied per client IP across the API surface.
const (
	rateLimitRequests = 120
	rateLimitWindow   = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates the HTTP handlers the server registers. Oracle and
// Settlement are optional: nil disables their routes (e.g. serve mode
// without chain credentials).
type Handlers struct {
	Health     *handler.HealthHandler
	Disputes   *handler.DisputeHandler
	Oracle     *handler.OracleHandler
	Settlement *handler.SettlementHandler
	Audit      *handler.AuditHandler
	Evidence   *handler.EvidenceHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with all routes registered and the middleware chain
// (rate limit, auth, logging, CORS) applied.
func New(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health and metrics (no auth required; registered outside the chain
	// below would complicate CORS, so auth skips them instead).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Dispute registry.
	mux.HandleFunc("POST /api/disputes", handlers.Disputes.CreateDispute)
	mux.HandleFunc("GET /api/disputes/{id}", handlers.Disputes.GetDispute)
	mux.HandleFunc("POST /api/disputes/{id}/votes", handlers.Disputes.CastVote)
	mux.HandleFunc("GET /api/disputes/{id}/votes/{voter}", handlers.Disputes.GetVote)
	mux.HandleFunc("GET /api/disputes/{id}/winnings/{voter}", handlers.Disputes.GetWinnings)
	mux.HandleFunc("POST /api/disputes/{id}/claim", handlers.Disputes.ClaimStake)
	mux.HandleFunc("POST /api/disputes/{id}/finalize", handlers.Disputes.Finalize)
	mux.HandleFunc("POST /api/disputes/{id}/authority-resolve", handlers.Disputes.AuthorityResolve)
	mux.HandleFunc("GET /api/disputes/{id}/payouts", handlers.Disputes.ListPayouts)
	mux.HandleFunc("GET /api/markets/{contract}/{id}/dispute", handlers.Disputes.GetMarketDispute)

	// Oracle endpoints (wire format fixed by the dApp's oracle contract).
	if handlers.Oracle != nil {
		mux.HandleFunc("POST /api/resolveMarket", handlers.Oracle.ResolveMarket)
		mux.HandleFunc("POST /api/validateMarket", handlers.Oracle.ValidateMarket)
	}

	// Settlement projection.
	if handlers.Settlement != nil {
		mux.HandleFunc("GET /api/markets/{id}/claimable", handlers.Settlement.GetClaimable)
	}

	// Audit log.
	if handlers.Audit != nil {
		mux.HandleFunc("GET /api/audit", handlers.Audit.List)
	}

	// Archived evidence (cold storage).
	if handlers.Evidence != nil {
		mux.HandleFunc("GET /api/markets/{id}/evidence", handlers.Evidence.ListMarketEvidence)
		mux.HandleFunc("GET /api/evidence", handlers.Evidence.GetArchiveObject)
	}

	// WebSocket event feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics", "/ws")(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, rateLimitRequests, rateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
