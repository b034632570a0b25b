package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// BalanceReader reads a fungible balance.
type BalanceReader interface {
	BalanceOf(ctx context.Context, account common.Address) (amount.Amount, error)
}

// ValueLedger moves a fungible currency in and out of engine custody.
// Transfer pays out of custody. TransferFrom pulls from an account that has
// approved custody. Both are all-or-nothing.
type ValueLedger interface {
	BalanceReader
	Transfer(ctx context.Context, to common.Address, amt amount.Amount) error
	TransferFrom(ctx context.Context, from, to common.Address, amt amount.Amount) error
}

// Checkpointer is implemented by ledgers that can undo their own writes.
// Checkpoint returns a rollback that restores the state at the time of the
// call and a commit that releases the checkpoint.
type Checkpointer interface {
	Checkpoint() (rollback func(), commit func())
}

// VolatilityOracle reports current market volatility in basis points.
type VolatilityOracle interface {
	CurrentVolatilityBps(ctx context.Context) (uint64, error)
}

// RateOracle reports how many secondary-currency units one whole base unit
// is worth.
type RateOracle interface {
	BaseToSecondaryRate(ctx context.Context) (amount.Amount, error)
}

// VoucherVerifier recovers the signer of a voucher.
type VoucherVerifier interface {
	RecoverSigner(v Voucher) (common.Address, error)
}

// Clock supplies the action timestamp.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads wall-clock time in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// Holdings is the full balance book of one in-process currency.
type Holdings struct {
	Balances   map[common.Address]amount.Amount                    `json:"balances"`
	Allowances map[common.Address]map[common.Address]amount.Amount `json:"allowances,omitempty"`
}

// HoldingsStore persists in-process balance books keyed by currency symbol.
// LoadHoldings returns ErrNotFound for a symbol that was never saved.
type HoldingsStore interface {
	SaveHoldings(ctx context.Context, symbol string, h Holdings) error
	LoadHoldings(ctx context.Context, symbol string) (Holdings, error)
}
