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

// MarketService defines what the market handler needs from the service
// layer. It is declared locally so the handler package does not depend on
// the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator common.Address, spec engine.MarketSpec) (uint64, error)
	AdminCreateMarket(ctx context.Context, caller common.Address, spec engine.MarketSpec) (uint64, error)
	PlaceBet(ctx context.Context, bettor common.Address, marketID uint64, outcome int, amt amount.Amount) ([]domain.Event, error)
	ProposeResolution(ctx context.Context, caller common.Address, marketID uint64, outcome int) ([]domain.Event, error)
	ExecuteResolution(ctx context.Context, caller common.Address, marketID uint64, outcome int) ([]domain.Event, error)
	ValidateAndCancel(ctx context.Context, caller common.Address, marketID uint64) ([]domain.Event, error)
	ClaimGains(ctx context.Context, caller common.Address, marketID uint64) (domain.Payout, error)
	ClaimRefund(ctx context.Context, caller common.Address, marketID uint64) (amount.Amount, error)
	ActivateArenaWithPoints(ctx context.Context, caller common.Address, marketID uint64) ([]domain.Event, error)
	MarketView(ctx context.Context, id uint64) (domain.MarketView, error)
	MarketViews(ctx context.Context) []domain.MarketView
}

// MarketReader answers per-account market queries.
type MarketReader interface {
	UserStakes(ctx context.Context, id uint64, addr common.Address) ([]amount.Amount, error)
	PreviewPayout(ctx context.Context, id uint64, addr common.Address) (domain.Payout, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	reader  MarketReader
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, reader MarketReader, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, reader: reader, logger: logHandler(logger, "market")}
}

type createMarketRequest struct {
	Title         string    `json:"title" validate:"required"`
	Category      string    `json:"category" validate:"required"`
	Outcomes      []string  `json:"outcomes" validate:"required"`
	Deadline      time.Time `json:"deadline" validate:"required"`
	ArenaEligible bool      `json:"arena_eligible"`
}

func (req createMarketRequest) spec() engine.MarketSpec {
	return engine.MarketSpec{
		Title:         req.Title,
		Category:      req.Category,
		Outcomes:      req.Outcomes,
		Deadline:      req.Deadline,
		ArenaEligible: req.ArenaEligible,
	}
}

type betRequest struct {
	Outcome *int   `json:"outcome" validate:"required,gte=0"`
	Amount  string `json:"amount" validate:"required"`
}

type outcomeRequest struct {
	Outcome *int `json:"outcome" validate:"required,gte=0"`
}

type createdResponse struct {
	ID uint64 `json:"id"`
}

type eventsResponse struct {
	Events []domain.Event `json:"events"`
}

type listMarketsResponse struct {
	Markets []domain.MarketView `json:"markets"`
	Total   int                 `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// ListMarkets returns markets with pagination, optionally filtered by status
// and category.
// GET /api/markets?status=open&category=football&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := domain.MarketStatus(r.URL.Query().Get("status"))
	category := r.URL.Query().Get("category")

	var filtered []domain.MarketView
	for _, v := range h.markets.MarketViews(r.Context()) {
		if status != "" && v.Status != status {
			continue
		}
		if category != "" && v.Category != category {
			continue
		}
		filtered = append(filtered, v)
	}

	page := []domain.MarketView{}
	if opts.Offset < len(filtered) {
		end := min(opts.Offset+opts.Limit, len(filtered))
		page = filtered[opts.Offset:end]
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: page,
		Total:   len(filtered),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	v, err := h.markets.MarketView(r.Context(), id)
	if err != nil {
		writeActionError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type stakesResponse struct {
	MarketID uint64          `json:"market_id"`
	Address  common.Address  `json:"address"`
	Stakes   []amount.Amount `json:"stakes"`
}

// GetStakes returns an account's stake on each outcome.
// GET /api/markets/{id}/stakes/{addr}
func (h *MarketHandler) GetStakes(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	stakes, err := h.reader.UserStakes(r.Context(), id, addr)
	if err != nil {
		writeActionError(w, r, h.logger, "get stakes", err)
		return
	}
	writeJSON(w, http.StatusOK, stakesResponse{MarketID: id, Address: addr, Stakes: stakes})
}

// PreviewPayout returns what a claim would pay now.
// GET /api/markets/{id}/payout/{addr}
func (h *MarketHandler) PreviewPayout(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	p, err := h.reader.PreviewPayout(r.Context(), id, addr)
	if err != nil {
		writeActionError(w, r, h.logger, "preview payout", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateMarket opens a user market for the principal.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.markets.CreateMarket)
}

// AdminCreateMarket opens an operator market.
// POST /api/admin/markets
func (h *MarketHandler) AdminCreateMarket(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, h.markets.AdminCreateMarket)
}

func (h *MarketHandler) create(w http.ResponseWriter, r *http.Request, fn func(context.Context, common.Address, engine.MarketSpec) (uint64, error)) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req createMarketRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := fn(r.Context(), who, req.spec())
	if err != nil {
		writeActionError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// PlaceBet stakes on an outcome.
// POST /api/markets/{id}/bets
func (h *MarketHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req betRequest
	if !decode(w, r, &req) {
		return
	}
	amt, ok := parseAmount(w, req.Amount, amount.BaseDecimals)
	if !ok {
		return
	}
	events, err := h.markets.PlaceBet(r.Context(), who, id, *req.Outcome, amt)
	if err != nil {
		writeActionError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// Propose records a proposed outcome.
// POST /api/markets/{id}/propose
func (h *MarketHandler) Propose(w http.ResponseWriter, r *http.Request) {
	h.withOutcome(w, r, "propose resolution", h.markets.ProposeResolution)
}

// Execute finalizes a proposal after the dispute window.
// POST /api/markets/{id}/execute
func (h *MarketHandler) Execute(w http.ResponseWriter, r *http.Request) {
	h.withOutcome(w, r, "execute resolution", h.markets.ExecuteResolution)
}

func (h *MarketHandler) withOutcome(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, common.Address, uint64, int) ([]domain.Event, error)) {
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
	events, err := fn(r.Context(), who, id, *req.Outcome)
	if err != nil {
		writeActionError(w, r, h.logger, action, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// Cancel cancels an imbalanced market.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, "cancel market", h.markets.ValidateAndCancel)
}

// Activate spends points to make a user market arena-eligible.
// POST /api/markets/{id}/activate
func (h *MarketHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.simple(w, r, "activate market", h.markets.ActivateArenaWithPoints)
}

func (h *MarketHandler) simple(w http.ResponseWriter, r *http.Request, action string, fn func(context.Context, common.Address, uint64) ([]domain.Event, error)) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	events, err := fn(r.Context(), who, id)
	if err != nil {
		writeActionError(w, r, h.logger, action, err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

type payoutResponse struct {
	Payout domain.Payout `json:"payout"`
}

// Claim pays the principal's winnings.
// POST /api/markets/{id}/claim
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	p, err := h.markets.ClaimGains(r.Context(), who, id)
	if err != nil {
		writeActionError(w, r, h.logger, "claim gains", err)
		return
	}
	writeJSON(w, http.StatusOK, payoutResponse{Payout: p})
}

type refundResponse struct {
	Refunded amount.Amount `json:"refunded"`
}

// Refund returns the principal's stake on a cancelled market.
// POST /api/markets/{id}/refund
func (h *MarketHandler) Refund(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	amt, err := h.markets.ClaimRefund(r.Context(), who, id)
	if err != nil {
		writeActionError(w, r, h.logger, "claim refund", err)
		return
	}
	writeJSON(w, http.StatusOK, refundResponse{Refunded: amt})
}
