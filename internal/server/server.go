// Package server exposes the arena over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/server/handler"
	"github.com/DIGIX666/Arena/internal/server/middleware"
	"github.com/DIGIX666/Arena/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKeys gate every route but /healthz. Empty disables the check.
	APIKeys    []string
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Admin    *handler.AdminHandler
	Raffles  *handler.RaffleHandler
	Seasonal *handler.SeasonalHandler
}

// Deps are the cross-cutting collaborators of the middleware chain.
type Deps struct {
	// Limiter defaults to an in-process limiter.
	Limiter domain.RateLimiter
	// Principals verifies gateway assertions. Nil trusts the header.
	Principals middleware.PrincipalVerifier
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps the mux in the middleware chain:
// request id, logging, CORS, rate limit, API key, principal.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, deps Deps, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	Routes(mux, handlers, hub)

	limiter := deps.Limiter
	if limiter == nil {
		limiter = middleware.NewLocalLimiter()
	}

	var h http.Handler = mux
	h = middleware.Principal(deps.Principals, logger)(h)
	h = middleware.APIKey(cfg.APIKeys, "/healthz")(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.RequestID()(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes registers the API on mux.
func Routes(mux *http.ServeMux, h Handlers, hub *ws.Hub) {
	mux.HandleFunc("GET /healthz", h.Health.HealthCheck)

	// Markets.
	mux.HandleFunc("GET /api/markets", h.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", h.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{id}/stakes/{addr}", h.Markets.GetStakes)
	mux.HandleFunc("GET /api/markets/{id}/payout/{addr}", h.Markets.PreviewPayout)
	mux.HandleFunc("POST /api/markets", h.Markets.CreateMarket)
	mux.HandleFunc("POST /api/admin/markets", h.Markets.AdminCreateMarket)
	mux.HandleFunc("POST /api/markets/{id}/bets", h.Markets.PlaceBet)
	mux.HandleFunc("POST /api/markets/{id}/propose", h.Markets.Propose)
	mux.HandleFunc("POST /api/markets/{id}/execute", h.Markets.Execute)
	mux.HandleFunc("POST /api/markets/{id}/cancel", h.Markets.Cancel)
	mux.HandleFunc("POST /api/markets/{id}/claim", h.Markets.Claim)
	mux.HandleFunc("POST /api/markets/{id}/refund", h.Markets.Refund)
	mux.HandleFunc("POST /api/markets/{id}/activate", h.Markets.Activate)

	// Accounts, fees and operator settings.
	mux.HandleFunc("GET /api/points/{addr}", h.Admin.Points)
	mux.HandleFunc("GET /api/fees", h.Admin.Fees)
	mux.HandleFunc("POST /api/allowances", h.Admin.Approve)
	mux.HandleFunc("GET /api/allowances/{currency}/{addr}", h.Admin.Allowance)
	mux.HandleFunc("GET /api/admin/audit", h.Admin.AuditLog)
	mux.HandleFunc("POST /api/admin/fees/withdraw", h.Admin.WithdrawFees)
	mux.HandleFunc("POST /api/admin/creation-fee", h.Admin.SetCreationFee)
	mux.HandleFunc("POST /api/admin/user-creation", h.Admin.ToggleUserCreation)
	mux.HandleFunc("POST /api/admin/resolvers", h.Admin.AuthorizeResolver)
	mux.HandleFunc("POST /api/admin/pause", h.Admin.Pause)
	mux.HandleFunc("POST /api/admin/unpause", h.Admin.Unpause)
	mux.HandleFunc("POST /api/admin/reserve", h.Admin.FundReserve)
	mux.HandleFunc("POST /api/admin/emergency-withdraw", h.Admin.EmergencyWithdraw)

	// Raffles.
	mux.HandleFunc("POST /api/raffles", h.Raffles.CreateRaffle)
	mux.HandleFunc("GET /api/raffles/{id}", h.Raffles.GetRaffle)
	mux.HandleFunc("POST /api/raffles/{id}/enter", h.Raffles.EnterRaffle)
	mux.HandleFunc("POST /api/raffles/{id}/resolve", h.Raffles.ResolveRaffle)
	mux.HandleFunc("GET /api/collectibles/{id}", h.Raffles.GetCollectible)

	// Seasonal markets.
	mux.HandleFunc("POST /api/seasonal", h.Seasonal.CreateSeasonal)
	mux.HandleFunc("GET /api/seasonal/{id}", h.Seasonal.GetSeasonal)
	mux.HandleFunc("POST /api/seasonal/{id}/enter", h.Seasonal.Enter)
	mux.HandleFunc("POST /api/seasonal/{id}/protect", h.Seasonal.Protect)
	mux.HandleFunc("POST /api/seasonal/{id}/resolve", h.Seasonal.Resolve)
	mux.HandleFunc("POST /api/seasonal/{id}/claim", h.Seasonal.Claim)
	mux.HandleFunc("GET /api/seasonal/{id}/positions/{outcome}/{addr}", h.Seasonal.GetPosition)

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start listens until the server fails or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
