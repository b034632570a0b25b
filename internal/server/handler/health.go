package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/DIGIX666/Arena/internal/domain"
)

// MetaReader exposes the engine counters.
type MetaReader interface {
	Meta(ctx context.Context) domain.EngineMeta
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	meta   MetaReader
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(meta MetaReader, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{meta: meta, logger: logger}
}

// HealthCheck reports liveness and the engine counters.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	m := h.meta.Meta(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"paused":           m.Paused,
		"next_market_id":   m.NextMarketID,
		"next_seasonal_id": m.NextSeasonalID,
		"next_raffle_id":   m.NextRaffleID,
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
	})
}
