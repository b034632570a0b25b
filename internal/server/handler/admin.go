package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

// AdminService covers operator settings and treasury actions.
type AdminService interface {
	WithdrawFees(ctx context.Context, caller, to common.Address, amt amount.Amount) ([]domain.Event, error)
	SetCreationFee(ctx context.Context, caller common.Address, fee amount.Amount) ([]domain.Event, error)
	ToggleUserCreation(ctx context.Context, caller common.Address, enabled bool) ([]domain.Event, error)
	AuthorizeResolver(ctx context.Context, caller, resolver common.Address, authorized bool) ([]domain.Event, error)
	FundReserve(ctx context.Context, caller common.Address, amt amount.Amount) ([]domain.Event, error)
	Pause(ctx context.Context, caller common.Address) ([]domain.Event, error)
	Unpause(ctx context.Context, caller common.Address) ([]domain.Event, error)
	EmergencyWithdraw(ctx context.Context, caller common.Address, currency engine.Currency, amt amount.Amount) ([]domain.Event, error)
	AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error)
	ApproveCustody(ctx context.Context, owner common.Address, currency engine.Currency, amt amount.Amount) (amount.Amount, error)
	CustodyAllowance(owner common.Address, currency engine.Currency) (amount.Amount, error)
}

// AccountReader answers account and treasury queries.
type AccountReader interface {
	Points(ctx context.Context, addr common.Address) uint64
	IsResolver(ctx context.Context, addr common.Address) bool
	Meta(ctx context.Context) domain.EngineMeta
}

// AdminHandler serves account, fee and operator endpoints.
type AdminHandler struct {
	admin  AdminService
	reader AccountReader
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(admin AdminService, reader AccountReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{admin: admin, reader: reader, logger: logHandler(logger, "admin")}
}

type pointsResponse struct {
	Address  common.Address `json:"address"`
	Points   uint64         `json:"points"`
	Resolver bool           `json:"resolver"`
}

// Points returns an account's loyalty points.
// GET /api/points/{addr}
func (h *AdminHandler) Points(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, pointsResponse{
		Address:  addr,
		Points:   h.reader.Points(r.Context(), addr),
		Resolver: h.reader.IsResolver(r.Context(), addr),
	})
}

type feesResponse struct {
	FeesAccumulated     amount.Amount `json:"fees_accumulated"`
	SecondaryReserve    amount.Amount `json:"secondary_reserve"`
	CreationFee         amount.Amount `json:"creation_fee"`
	UserCreationEnabled bool          `json:"user_creation_enabled"`
	Paused              bool          `json:"paused"`
}

// Fees returns the treasury accumulators and creation settings.
// GET /api/fees
func (h *AdminHandler) Fees(w http.ResponseWriter, r *http.Request) {
	m := h.reader.Meta(r.Context())
	writeJSON(w, http.StatusOK, feesResponse{
		FeesAccumulated:     m.FeesAccumulated,
		SecondaryReserve:    m.SecondaryReserve,
		CreationFee:         m.CreationFee,
		UserCreationEnabled: m.UserCreationEnabled,
		Paused:              m.Paused,
	})
}

type withdrawRequest struct {
	To     string `json:"to" validate:"required,eth_addr"`
	Amount string `json:"amount" validate:"required"`
}

// WithdrawFees sends accumulated fees to an address.
// POST /api/admin/fees/withdraw
func (h *AdminHandler) WithdrawFees(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decode(w, r, &req) {
		return
	}
	amt, ok := parseAmount(w, req.Amount, amount.BaseDecimals)
	if !ok {
		return
	}
	h.respond(w, r, "withdraw fees")(h.admin.WithdrawFees(r.Context(), who, common.HexToAddress(req.To), amt))
}

type feeRequest struct {
	Fee string `json:"fee" validate:"required"`
}

// SetCreationFee changes the user market creation fee.
// POST /api/admin/creation-fee
func (h *AdminHandler) SetCreationFee(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req feeRequest
	if !decode(w, r, &req) {
		return
	}
	fee, ok := parseAmount(w, req.Fee, amount.BaseDecimals)
	if !ok {
		return
	}
	h.respond(w, r, "set creation fee")(h.admin.SetCreationFee(r.Context(), who, fee))
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// ToggleUserCreation enables or disables user market creation.
// POST /api/admin/user-creation
func (h *AdminHandler) ToggleUserCreation(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req toggleRequest
	if !decode(w, r, &req) {
		return
	}
	h.respond(w, r, "toggle user creation")(h.admin.ToggleUserCreation(r.Context(), who, *req.Enabled))
}

type resolverRequest struct {
	Resolver   string `json:"resolver" validate:"required,eth_addr"`
	Authorized *bool  `json:"authorized" validate:"required"`
}

// AuthorizeResolver grants or revokes resolver rights.
// POST /api/admin/resolvers
func (h *AdminHandler) AuthorizeResolver(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req resolverRequest
	if !decode(w, r, &req) {
		return
	}
	h.respond(w, r, "authorize resolver")(h.admin.AuthorizeResolver(r.Context(), who, common.HexToAddress(req.Resolver), *req.Authorized))
}

type amountRequest struct {
	Amount string `json:"amount" validate:"required"`
}

// FundReserve moves secondary currency into the protection reserve.
// POST /api/admin/reserve
func (h *AdminHandler) FundReserve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	amt, ok := parseAmount(w, req.Amount, amount.SecondaryDecimals)
	if !ok {
		return
	}
	h.respond(w, r, "fund reserve")(h.admin.FundReserve(r.Context(), who, amt))
}

// Pause halts user-facing actions.
// POST /api/admin/pause
func (h *AdminHandler) Pause(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "pause")(h.admin.Pause(r.Context(), who))
}

// Unpause resumes user-facing actions.
// POST /api/admin/unpause
func (h *AdminHandler) Unpause(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	h.respond(w, r, "unpause")(h.admin.Unpause(r.Context(), who))
}

type emergencyRequest struct {
	Currency string `json:"currency" validate:"required,oneof=base secondary"`
	Amount   string `json:"amount" validate:"required"`
}

// EmergencyWithdraw drains custody to the operator while paused.
// POST /api/admin/emergency-withdraw
func (h *AdminHandler) EmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req emergencyRequest
	if !decode(w, r, &req) {
		return
	}
	currency := engine.Currency(req.Currency)
	amt, ok := parseAmount(w, req.Amount, currencyDecimals(currency))
	if !ok {
		return
	}
	h.respond(w, r, "emergency withdraw")(h.admin.EmergencyWithdraw(r.Context(), who, currency, amt))
}

type approveRequest struct {
	Currency string `json:"currency" validate:"required,oneof=base secondary"`
	Amount   string `json:"amount" validate:"required"`
}

type allowanceResponse struct {
	Owner     common.Address `json:"owner"`
	Currency  string         `json:"currency"`
	Allowance string         `json:"allowance"`
}

func currencyDecimals(c engine.Currency) uint8 {
	if c == engine.CurrencySecondary {
		return amount.SecondaryDecimals
	}
	return amount.BaseDecimals
}

// Approve sets the caller's custody allowance in one currency.
// POST /api/allowances
func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req approveRequest
	if !decode(w, r, &req) {
		return
	}
	currency := engine.Currency(req.Currency)
	amt, ok := parseAmount(w, req.Amount, currencyDecimals(currency))
	if !ok {
		return
	}
	allowance, err := h.admin.ApproveCustody(r.Context(), who, currency, amt)
	if err != nil {
		writeActionError(w, r, h.logger, "approve custody", err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceResponse{
		Owner:     who,
		Currency:  req.Currency,
		Allowance: allowance.Format(currencyDecimals(currency)),
	})
}

// Allowance returns what custody may still draw from an account.
// GET /api/allowances/{currency}/{addr}
func (h *AdminHandler) Allowance(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r, "addr")
	if !ok {
		return
	}
	currency := engine.Currency(r.PathValue("currency"))
	allowance, err := h.admin.CustodyAllowance(addr, currency)
	if err != nil {
		writeActionError(w, r, h.logger, "read allowance", err)
		return
	}
	writeJSON(w, http.StatusOK, allowanceResponse{
		Owner:     addr,
		Currency:  string(currency),
		Allowance: allowance.Format(currencyDecimals(currency)),
	})
}

type auditResponse struct {
	Entries []domain.AuditEntry `json:"entries"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// AuditLog lists recent audit entries.
// GET /api/admin/audit?limit=50&offset=0
func (h *AdminHandler) AuditLog(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	entries, err := h.admin.AuditLog(r.Context(), opts)
	if err != nil {
		writeActionError(w, r, h.logger, "list audit", err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Entries: entries, Limit: opts.Limit, Offset: opts.Offset})
}

// respond writes the outcome of an event-returning action.
func (h *AdminHandler) respond(w http.ResponseWriter, r *http.Request, action string) func([]domain.Event, error) {
	return func(events []domain.Event, err error) {
		if err != nil {
			writeActionError(w, r, h.logger, action, err)
			return
		}
		writeJSON(w, http.StatusOK, eventsResponse{Events: events})
	}
}
