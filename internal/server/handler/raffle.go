package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/crypto"
	"github.com/DIGIX666/Arena/internal/domain"
)

// RaffleService covers voucher raffles.
type RaffleService interface {
	CreateRaffle(ctx context.Context, caller common.Address, description string, requiredPoints uint64, deadline time.Time) (uint64, error)
	EnterRaffle(ctx context.Context, caller common.Address, v domain.Voucher) ([]domain.Event, error)
	ResolveRaffleAndMint(ctx context.Context, caller common.Address, raffleID uint64, winner common.Address) ([]domain.Event, error)
}

// RaffleReader answers raffle and collectible queries.
type RaffleReader interface {
	Raffle(ctx context.Context, id uint64) (domain.Raffle, error)
	Collectible(ctx context.Context, tokenID uint64) (domain.Collectible, error)
}

// RaffleHandler serves raffle and collectible endpoints.
type RaffleHandler struct {
	raffles RaffleService
	reader  RaffleReader
	logger  *slog.Logger
}

// NewRaffleHandler creates a RaffleHandler.
func NewRaffleHandler(raffles RaffleService, reader RaffleReader, logger *slog.Logger) *RaffleHandler {
	return &RaffleHandler{raffles: raffles, reader: reader, logger: logHandler(logger, "raffle")}
}

type createRaffleRequest struct {
	Description    string    `json:"description" validate:"required"`
	RequiredPoints uint64    `json:"required_points"`
	Deadline       time.Time `json:"deadline" validate:"required"`
}

// CreateRaffle opens a raffle.
// POST /api/raffles
func (h *RaffleHandler) CreateRaffle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req createRaffleRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.raffles.CreateRaffle(r.Context(), who, req.Description, req.RequiredPoints, req.Deadline)
	if err != nil {
		writeActionError(w, r, h.logger, "create raffle", err)
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

type raffleResponse struct {
	ID             uint64         `json:"id"`
	Description    string         `json:"description"`
	RequiredPoints uint64         `json:"required_points"`
	Deadline       time.Time      `json:"deadline"`
	Resolved       bool           `json:"resolved"`
	Winner         common.Address `json:"winner"`
	Entrants       int            `json:"entrants"`
}

// GetRaffle returns a raffle.
// GET /api/raffles/{id}
func (h *RaffleHandler) GetRaffle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	rf, err := h.reader.Raffle(r.Context(), id)
	if err != nil {
		writeActionError(w, r, h.logger, "get raffle", err)
		return
	}
	writeJSON(w, http.StatusOK, raffleResponse{
		ID:             rf.ID,
		Description:    rf.Description,
		RequiredPoints: rf.RequiredPoints,
		Deadline:       rf.Deadline,
		Resolved:       rf.Resolved,
		Winner:         rf.Winner,
		Entrants:       len(rf.Entrants),
	})
}

type enterRaffleRequest struct {
	Signature string `json:"signature" validate:"required,hexadecimal"`
}

// EnterRaffle enters the principal with a voucher signed for them.
// POST /api/raffles/{id}/enter
func (h *RaffleHandler) EnterRaffle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req enterRaffleRequest
	if !decode(w, r, &req) {
		return
	}
	sig, err := crypto.ParseSignature(req.Signature)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed signature")
		return
	}
	events, err := h.raffles.EnterRaffle(r.Context(), who, domain.Voucher{RaffleID: id, User: who, Signature: sig})
	if err != nil {
		writeActionError(w, r, h.logger, "enter raffle", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

type resolveRaffleRequest struct {
	Winner string `json:"winner" validate:"required,eth_addr"`
}

// ResolveRaffle names the winner and mints the collectible.
// POST /api/raffles/{id}/resolve
func (h *RaffleHandler) ResolveRaffle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	var req resolveRaffleRequest
	if !decode(w, r, &req) {
		return
	}
	events, err := h.raffles.ResolveRaffleAndMint(r.Context(), who, id, common.HexToAddress(req.Winner))
	if err != nil {
		writeActionError(w, r, h.logger, "resolve raffle", err)
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// GetCollectible returns a minted collectible.
// GET /api/collectibles/{id}
func (h *RaffleHandler) GetCollectible(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUint(w, r, "id")
	if !ok {
		return
	}
	c, err := h.reader.Collectible(r.Context(), id)
	if err != nil {
		writeActionError(w, r, h.logger, "get collectible", err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
