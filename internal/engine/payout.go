package engine

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/fees"
)

// ClaimGains pays the caller's share of a resolved market. A caller with no
// stake on the winning outcome and a caller who already claimed get the same
// rejection; the cause is attached for inspection.
func (e *Engine) ClaimGains(ctx context.Context, caller common.Address, marketID uint64) (domain.Payout, []domain.Event, error) {
	var payout domain.Payout
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		m, err := tx.market(marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketResolved {
			return badState(msgNotResolved)
		}
		winning := m.StakeOf(caller, m.WinningOutcome)
		if winning.IsZero() {
			return noEntitlement(msgNoWinningBets, domain.ErrNoWinningStake)
		}
		if m.Settled[caller] != domain.SettlementNone {
			return noEntitlement(msgNoWinningBets, domain.ErrAlreadyClaimed)
		}

		p, err := tx.gains(ctx, m, caller, winning)
		if err != nil {
			return err
		}

		tx.saveMarket(m)
		tx.saveSettled(m, caller)
		m.Settled[caller] = domain.SettlementClaimed
		if err := addTo(&m.PaidOut, p.Base); err != nil {
			return err
		}
		if err := addTo(&m.ClaimedStake, winning); err != nil {
			return err
		}
		m.UpdatedAt = tx.now

		err = tx.guarded(domain.ScopeMarket, marketID, func() error {
			return tx.pay(ctx, tx.e.deps.Base, caller, p.Base)
		})
		if err != nil {
			return err
		}
		payout = p
		tx.emit(domain.Event{Kind: domain.EventGainsClaimed, Scope: domain.ScopeMarket, ID: marketID, Actor: caller, Outcome: m.WinningOutcome, Amount: p.Base})
		return nil
	})
	if err != nil {
		return domain.Payout{}, nil, err
	}
	return payout, events, nil
}

// gains computes the payout for a winning stake, including the loyalty bonus
// on arena markets. The bonus only comes out of net pot that no other winner
// is owed, so payouts do not depend on claim order.
func (tx *txn) gains(ctx context.Context, m *domain.Market, addr common.Address, winning amount.Amount) (domain.Payout, error) {
	base, err := fees.Share(winning, m.NetPot, m.OutcomePots[m.WinningOutcome], m.ClaimedStake, m.PaidOut)
	if err != nil {
		return domain.Payout{}, arith(err)
	}
	p := domain.Single(base)
	if !m.ArenaEligible || len(tx.e.params.Fees.BonusTiers) == 0 {
		return p, nil
	}

	fan, err := tx.fanBalance(ctx, addr)
	if err != nil {
		return domain.Payout{}, err
	}
	surplus, err := fees.Surplus(m.NetPot, m.PaidOut, base, m.OutcomePots[m.WinningOutcome], m.ClaimedStake, winning)
	if err != nil {
		return domain.Payout{}, arith(err)
	}
	bonus, err := fees.Bonus(base, tx.e.params.Fees.BonusBps(fan), surplus)
	if err != nil {
		return domain.Payout{}, arith(err)
	}
	if p.Base, err = base.Add(bonus); err != nil {
		return domain.Payout{}, arith(err)
	}
	p.Bonus = bonus
	return p, nil
}

// ClaimRefund returns everything the caller staked in a cancelled market.
func (e *Engine) ClaimRefund(ctx context.Context, caller common.Address, marketID uint64) (amount.Amount, []domain.Event, error) {
	var refund amount.Amount
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		m, err := tx.market(marketID)
		if err != nil {
			return err
		}
		if m.Status != domain.MarketCancelled {
			return badState(msgNotCancelled)
		}
		total, err := m.TotalStakeOf(caller)
		if err != nil {
			return arith(err)
		}
		if total.IsZero() {
			return noEntitlement(msgNothingToRefund, domain.ErrNoWinningStake)
		}
		if m.Settled[caller] != domain.SettlementNone {
			return noEntitlement(msgAlreadyRefunded, domain.ErrAlreadyClaimed)
		}

		tx.saveMarket(m)
		tx.saveSettled(m, caller)
		m.Settled[caller] = domain.SettlementRefunded
		if err := addTo(&m.PaidOut, total); err != nil {
			return err
		}
		m.UpdatedAt = tx.now

		err = tx.guarded(domain.ScopeMarket, marketID, func() error {
			return tx.pay(ctx, tx.e.deps.Base, caller, total)
		})
		if err != nil {
			return err
		}
		refund = total
		tx.emit(domain.Event{Kind: domain.EventRefundClaimed, Scope: domain.ScopeMarket, ID: marketID, Actor: caller, Amount: total})
		return nil
	})
	if err != nil {
		return amount.Zero(), nil, err
	}
	return refund, events, nil
}

// WithdrawFees pays accumulated fees out of custody.
func (e *Engine) WithdrawFees(ctx context.Context, caller, to common.Address, amt amount.Amount) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeEngine, 0); err != nil {
			return err
		}
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		if to == (common.Address{}) {
			return invalid(msgInvalidRecipient)
		}
		if amt.IsZero() {
			return invalid(msgAmountNotPositive)
		}
		if amt.Gt(tx.e.st.meta.FeesAccumulated) {
			return noFunds(msgInsufficientFees, nil)
		}
		tx.saveMeta()
		if err := subFrom(&tx.e.st.meta.FeesAccumulated, amt); err != nil {
			return err
		}
		err := tx.guarded(domain.ScopeEngine, 0, func() error {
			return tx.pay(ctx, tx.e.deps.Base, to, amt)
		})
		if err != nil {
			return err
		}
		tx.emit(domain.Event{Kind: domain.EventFeesWithdrawn, Scope: domain.ScopeEngine, Actor: to, Amount: amt})
		return nil
	})
}

// ActivateArenaWithPoints spends the creator's points to make a market
// arena eligible.
func (e *Engine) ActivateArenaWithPoints(ctx context.Context, caller common.Address, marketID uint64) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		m, err := tx.market(marketID)
		if err != nil {
			return err
		}
		if m.Creator != caller {
			return forbidden(msgNotCreator)
		}
		if m.Status.Final() {
			return badState(msgMarketNotOpen)
		}
		if m.ArenaEligible {
			return badState(msgAlreadyArena)
		}
		cost := tx.e.params.ActivationCost
		if tx.e.st.points[caller] < cost {
			return noFunds(msgInsufficientPoints, nil)
		}

		tx.savePoints(caller)
		tx.e.st.points[caller] -= cost
		tx.saveMarket(m)
		m.ArenaEligible = true
		m.UpdatedAt = tx.now
		tx.emit(domain.Event{Kind: domain.EventPointsDeducted, Scope: domain.ScopeAccount, ID: marketID, Actor: caller, Points: cost, Detail: "Arena activation"})
		tx.emit(domain.Event{Kind: domain.EventArenaEligibilitySet, Scope: domain.ScopeMarket, ID: marketID, Actor: caller})
		return nil
	})
}
