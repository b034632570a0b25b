package token

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// Custodian presents a MemoryLedger as the engine's value ledger. Transfers
// leave the custody account; pulls spend the allowance participants granted
// to it.
type Custodian struct {
	ledger  *MemoryLedger
	custody common.Address
}

// NewCustodian binds a ledger to the custody account.
func NewCustodian(ledger *MemoryLedger, custody common.Address) *Custodian {
	return &Custodian{ledger: ledger, custody: custody}
}

// Ledger returns the underlying balance book.
func (c *Custodian) Ledger() *MemoryLedger { return c.ledger }

// Custody returns the custody account.
func (c *Custodian) Custody() common.Address { return c.custody }

func (c *Custodian) BalanceOf(ctx context.Context, account common.Address) (amount.Amount, error) {
	return c.ledger.BalanceOf(ctx, account)
}

// Transfer pays amt out of custody.
func (c *Custodian) Transfer(_ context.Context, to common.Address, amt amount.Amount) error {
	return c.ledger.Move(c.custody, to, amt)
}

// TransferFrom moves amt from an account that approved custody.
func (c *Custodian) TransferFrom(_ context.Context, from, to common.Address, amt amount.Amount) error {
	return c.ledger.MoveFrom(c.custody, from, to, amt)
}

// Checkpoint delegates to the ledger journal.
func (c *Custodian) Checkpoint() (rollback func(), commit func()) {
	return c.ledger.Checkpoint()
}
