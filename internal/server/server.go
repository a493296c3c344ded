// Package server exposes the ledger over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pavilion/internal/domain"
	"github.com/alanyoungcy/pavilion/internal/server/handler"
	"github.com/alanyoungcy/pavilion/internal/server/middleware"
	"github.com/alanyoungcy/pavilion/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port            int
	CORSOrigins     []string
	SignatureMaxAge time.Duration
	RateLimit       int
	RateWindow      time.Duration
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Games      *handler.GameHandler
	Tickets    *handler.TicketHandler
	Settlement *handler.SettlementHandler
	Treasury   *handler.TreasuryHandler
	Admin      *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer registers every route. hub and limiter may be nil, in which case
// /ws is not served and writes are not rate limited.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	limit := middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)
	write := func(fn http.HandlerFunc) http.Handler {
		return limit(middleware.RequireCaller(fn))
	}

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.Handle("POST /api/games", write(handlers.Games.CreateGame))
	mux.HandleFunc("GET /api/games/{id}", handlers.Games.GetGame)
	mux.Handle("PUT /api/games/{id}/status", write(handlers.Games.SetStatus))
	mux.Handle("PUT /api/games/{id}/prices", write(handlers.Games.SetPrices))
	mux.Handle("PUT /api/games/{id}/max-quantity", write(handlers.Games.SetMaxQuantity))
	mux.Handle("PUT /api/games/{id}/outcome", write(handlers.Games.SetOutcome))

	mux.Handle("POST /api/games/{id}/tickets", write(handlers.Tickets.Buy))
	mux.HandleFunc("GET /api/games/{id}/accounts/{address}", handlers.Tickets.Account)

	mux.Handle("POST /api/games/{id}/refund", write(handlers.Settlement.Refund))
	mux.Handle("POST /api/games/{id}/winnings", write(handlers.Settlement.Winnings))

	mux.HandleFunc("GET /api/treasury/balance", handlers.Treasury.Balance)
	mux.Handle("POST /api/treasury/withdraw", write(handlers.Treasury.Withdraw))

	mux.Handle("POST /api/games/{id}/archive", write(handlers.Admin.Archive))
	mux.Handle("GET /api/audit", middleware.RequireCaller(http.HandlerFunc(handlers.Admin.Audit)))

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Identity(cfg.SignatureMaxAge, time.Now, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      3 * time.Minute,
			IdleTimeout:       60 * time.Second,
		},
		handler: h,
		logger:  logger,
	}
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler { return s.handler }

// Start blocks until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
