package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

// SeasonalService covers seasonal markets and volatility protection.
type SeasonalService interface {
	CreateSeasonal(ctx context.Context, caller common.Address, spec engine.SeasonalSpec) (uint64, error)
	EnterSeasonal(ctx context.Context, caller common.Address, seasonalID uint64, outcome int, insured bool) ([]domain.Event, error)
	TriggerVolatilityProtection(ctx context.Context, caller common.Address, seasonalID uint64) ([]domain.Event, error)
	ResolveSeasonal(ctx context.Context, caller common.Address, seasonalID uint64, outcome int) ([]domain.Event, error)
	ClaimSeasonalReward(ctx context.Context, caller common.Address, seasonalID uint64) (domain.Payout, error)
	SeasonalView(ctx context.Context, id uint64) (domain.SeasonalView, error)
}

// SeasonalReader answers seasonal position queries.
type SeasonalReader interface {
	SeasonalPosition(ctx context.Context, id uint64, outcome int, addr common.Address) (domain.SeasonalPosition, error)
}

// SeasonalHandler serves seasonal market endpoints.
type SeasonalHandler struct {
	seasonal SeasonalService
	reader   SeasonalReader
	logger   *slog.Logger
}

// NewSeasonalHandler creates a SeasonalHandler.
func NewSeasonalHandler(seasonal SeasonalService, reader SeasonalReader, logger *slog.Logger) *SeasonalHandler {
	return &SeasonalHandler{seasonal: seasonal, reader: reader, logger: logHandler(logger, "seasonal")}
}

type createSeasonalRequest struct {
	Title    string   `json:"title" validate:"required"`
	Outcomes []string `json:"outcomes" validate:"required"`
	Type     int      `json:"type" validate:"gte=0,lte=3"`
	EntryFee string   `json:"entry_fee" validate:"required"`
	Duration string   `json:"duration" validate:"required"`
}

// CreateSeasonal opens a seasonal market.
// POST /api/seasonal
func (h *SeasonalHandler) CreateSeasonal(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req createSeasonalRequest
	if !decode(w, r, &req) {
		return
	}
	fee, ok := parseAmount(w, req.EntryFee, amount.BaseDecimals)
	if !ok {
		return
	}
	d, err := time.ParseDuration(req.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid duration")
		return
	}
	id, err := h.seasonal.CreateSeasonal(r.Context(), who, engine.SeasonalSpec{
		Title:    req.Title,
		Outcomes: req.Outcomes,
		Type:     domain.SeasonalType(req.Type),
		EntryFee: fee,
		Duration: d,
	})
	if err != nil {
		writeActionError(w, r, h.logger, "create seasonal", err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// GetSeasonal returns a seasonal market.
// GET /api/seasonal/{id}
func (h *SeasonalHandler) GetSeasonal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	v, err := h.seasonal.SeasonalView(r.Context(), id)
	if err != nil {
		writeActionError(w, r, h.logger, "get seasonal", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type enterSeasonalRequest struct {
	Outcome *int `json:"outcome" validate:"required,gte=0"`
	Insured bool `json:"insured"`
}

// Enter pays the entry fee on an outcome.
// POST /api/seasonal/{id}/enter
func (h *SeasonalHandler) Enter(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req enterSeasonalRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := h.seasonal.EnterSeasonal(r.Context(), who, id, *req.Outcome, req.Insured)
	if err != nil {
		writeActionError(w, r, h.logger, "enter seasonal", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// Protect checks volatility and triggers protection when it is high.
// POST /api/seasonal/{id}/protect
func (h *SeasonalHandler) Protect(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	events, err := h.seasonal.TriggerVolatilityProtection(r.Context(), who, id)
	if err != nil {
		writeActionError(w, r, h.logger, "trigger protection", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// Resolve settles a seasonal market.
// POST /api/seasonal/{id}/resolve
func (h *SeasonalHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req outcomeRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := h.seasonal.ResolveSeasonal(r.Context(), who, id, *req.Outcome)
	if err != nil {
		writeActionError(w, r, h.logger, "resolve seasonal", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// Claim pays the principal's seasonal reward.
// POST /api/seasonal/{id}/claim
func (h *SeasonalHandler) Claim(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	p, err := h.seasonal.ClaimSeasonalReward(r.Context(), who, id)
	if err != nil {
		writeActionError(w, r, h.logger, "claim seasonal", err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResponse{Payout: p})
}

// GetPosition returns an account's position on one outcome.
// GET /api/seasonal/{id}/positions/{outcome}/{addr}
func (h *SeasonalHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	outcome, ok := pathInt(w, r, "outcome")
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	pos, err := h.reader.SeasonalPosition(r.Context(), id, outcome, addr)
	if err != nil {
		writeActionError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, pos)
}
