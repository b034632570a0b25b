package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

// ApproveCustody sets how much of owner's balance in currency the custody
// account may draw. Bets, seasonal entries and creation fees pull from
// this allowance. The change is saved with the balance books.
func (s *ArenaService) ApproveCustody(ctx context.Context, owner common.Address, currency engine.Currency, amt amount.Amount) (amount.Amount, error) {
	book, ok := s.opts.Allowances[currency]
	if !ok {
		return amount.Zero(), fmt.Errorf("arena_service: approve %s: %w", currency, domain.ErrNotFound)
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	unlock, err := s.acquire(ctx)
	if err != nil {
		return amount.Zero(), err
	}
	defer unlock()

	custody := s.eng.Params().Custody
	var allowance amount.Amount
	err = s.eng.Exclusive(func() error {
		if err := book.Approve(owner, custody, amt); err != nil {
			return err
		}
		allowance = book.Allowance(owner, custody)
		return nil
	})
	if err != nil {
		return amount.Zero(), fmt.Errorf("arena_service: approve %s: %w", currency, err)
	}
	s.saveBooks(ctx)
	s.logger.InfoContext(ctx, "custody allowance set",
		slog.String("owner", owner.Hex()),
		slog.String("currency", string(currency)),
		slog.String("amount", amt.String()),
	)
	return allowance, nil
}

// CustodyAllowance returns what the custody account may still draw from
// owner in currency.
func (s *ArenaService) CustodyAllowance(owner common.Address, currency engine.Currency) (amount.Amount, error) {
	book, ok := s.opts.Allowances[currency]
	if !ok {
		return amount.Zero(), fmt.Errorf("arena_service: allowance %s: %w", currency, domain.ErrNotFound)
	}
	return book.Allowance(owner, s.eng.Params().Custody), nil
}
