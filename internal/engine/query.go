package engine

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

// Queries return copies and never see a partially applied action, with one
// exception: a query made with the context an action handed to a ledger or
// oracle reads that action's state as it stands. The action holds the write
// lock while it waits on the callee, so taking the read lock there would
// never return.

// view runs read under the read lock, or directly for a call nested in an
// action of this engine.
func (e *Engine) view(ctx context.Context, read func()) {
	if tx, ok := ctx.Value(txKey{}).(*txn); ok && tx.e == e {
		read()
		return
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	read()
}

// Market returns a copy of the market.
func (e *Engine) Market(ctx context.Context, id uint64) (m domain.Market, err error) {
	e.view(ctx, func() {
		stored, ok := e.st.markets[id]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		m = stored.Clone()
	})
	return m, err
}

// Markets returns every market ordered by id.
func (e *Engine) Markets(ctx context.Context) []domain.Market {
	var out []domain.Market
	e.view(ctx, func() {
		out = make([]domain.Market, 0, len(e.st.markets))
		for _, m := range e.st.markets {
			out = append(out, m.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// UserStakes returns the participant's stake per outcome.
func (e *Engine) UserStakes(ctx context.Context, id uint64, addr common.Address) (out []amount.Amount, err error) {
	e.view(ctx, func() {
		m, ok := e.st.markets[id]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		out = make([]amount.Amount, len(m.Outcomes))
		copy(out, m.Stakes[addr])
	})
	return out, err
}

// Points returns the participant's points balance.
func (e *Engine) Points(ctx context.Context, addr common.Address) (n uint64) {
	e.view(ctx, func() { n = e.st.points[addr] })
	return n
}

// FeesAccumulated returns the withdrawable base-currency fees.
func (e *Engine) FeesAccumulated(ctx context.Context) amount.Amount {
	return e.Meta(ctx).FeesAccumulated
}

// SecondaryReserve returns the secondary currency backing split payouts.
func (e *Engine) SecondaryReserve(ctx context.Context) amount.Amount {
	return e.Meta(ctx).SecondaryReserve
}

// NextMarketID returns the id the next market will get.
func (e *Engine) NextMarketID(ctx context.Context) uint64 {
	return e.Meta(ctx).NextMarketID
}

// Meta returns the engine scalars.
func (e *Engine) Meta(ctx context.Context) (meta domain.EngineMeta) {
	e.view(ctx, func() { meta = e.st.meta })
	return meta
}

// IsResolver reports whether addr may propose and execute resolutions.
func (e *Engine) IsResolver(ctx context.Context, addr common.Address) (ok bool) {
	e.view(ctx, func() { ok = addr == e.params.Operator || e.st.resolvers[addr] })
	return ok
}

// Raffle returns a copy of the raffle.
func (e *Engine) Raffle(ctx context.Context, id uint64) (r domain.Raffle, err error) {
	e.view(ctx, func() {
		stored, ok := e.st.raffles[id]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		r = stored.Clone()
	})
	return r, err
}

// HasEntered reports whether addr entered the raffle.
func (e *Engine) HasEntered(ctx context.Context, raffleID uint64, addr common.Address) (entered bool) {
	e.view(ctx, func() {
		r, ok := e.st.raffles[raffleID]
		entered = ok && r.Entered[addr]
	})
	return entered
}

// OwnerOf returns the owner of a minted collectible.
func (e *Engine) OwnerOf(ctx context.Context, tokenID uint64) (common.Address, error) {
	c, err := e.Collectible(ctx, tokenID)
	if err != nil {
		return common.Address{}, err
	}
	return c.Owner, nil
}

// Collectible returns the minted collectible.
func (e *Engine) Collectible(ctx context.Context, tokenID uint64) (c domain.Collectible, err error) {
	e.view(ctx, func() {
		stored, ok := e.st.collectibles[tokenID]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		c = stored
	})
	return c, err
}

// SeasonalMarket returns a copy of the seasonal market.
func (e *Engine) SeasonalMarket(ctx context.Context, id uint64) (sm domain.SeasonalMarket, err error) {
	e.view(ctx, func() {
		stored, ok := e.st.seasonal[id]
		if !ok {
			err = domain.ErrNotFound
			return
		}
		sm = stored.Clone()
	})
	return sm, err
}

// SeasonalMarkets returns every seasonal market ordered by id.
func (e *Engine) SeasonalMarkets(ctx context.Context) []domain.SeasonalMarket {
	var out []domain.SeasonalMarket
	e.view(ctx, func() {
		out = make([]domain.SeasonalMarket, 0, len(e.st.seasonal))
		for _, s := range e.st.seasonal {
			out = append(out, s.Clone())
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SeasonalPosition returns the participant's position on one outcome.
func (e *Engine) SeasonalPosition(ctx context.Context, id uint64, outcome int, addr common.Address) (pos domain.SeasonalPosition, err error) {
	e.view(ctx, func() {
		s, ok := e.st.seasonal[id]
		if !ok || !s.ValidOutcome(outcome) {
			err = domain.ErrNotFound
			return
		}
		pos = domain.SeasonalPosition{
			MarketID:   id,
			Outcome:    outcome,
			Owner:      addr.Hex(),
			BaseAmount: s.StakeOf(addr, outcome),
			Insured:    s.IsInsured(addr, outcome),
			Claimed:    s.Status == domain.MarketResolved && outcome == s.WinningOutcome && s.Settled[addr] == domain.SettlementClaimed,
		}
	})
	return pos, err
}

// PreviewPayout computes what ClaimGains would pay addr right now without
// changing anything. Markets that are not resolved, positions that lost and
// positions already settled preview as zero. The fan-token balance is read
// after the market is copied, outside the lock.
func (e *Engine) PreviewPayout(ctx context.Context, id uint64, addr common.Address) (domain.Payout, error) {
	m, err := e.Market(ctx, id)
	if err != nil {
		return domain.Payout{}, err
	}
	switch {
	case m.Status == domain.MarketCancelled && m.Settled[addr] == domain.SettlementNone:
		total, err := m.TotalStakeOf(addr)
		if err != nil {
			return domain.Payout{}, arith(err)
		}
		return domain.Single(total), nil
	case m.Status != domain.MarketResolved, m.Settled[addr] != domain.SettlementNone:
		return domain.Single(amount.Zero()), nil
	}
	winning := m.StakeOf(addr, m.WinningOutcome)
	if winning.IsZero() {
		return domain.Single(amount.Zero()), nil
	}
	tx := &txn{e: e}
	return tx.gains(ctx, &m, addr, winning)
}
