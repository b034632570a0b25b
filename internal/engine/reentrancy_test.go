package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
	"github.com/DIGIX666/Arena/internal/token"
)

// hostileLedger calls back into the engine when it pays the attacker, the
// way a token with a receive hook would.
type hostileLedger struct {
	*token.Custodian
	eng       *engine.Engine
	attacker  common.Address
	armed     bool
	propagate bool
	callback  func(ctx context.Context) error
	nested    error
}

func (h *hostileLedger) Transfer(ctx context.Context, to common.Address, amt amount.Amount) error {
	if h.armed && to == h.attacker {
		h.armed = false
		h.nested = h.callback(ctx)
		if h.propagate && h.nested != nil {
			return h.nested
		}
	}
	return h.Custodian.Transfer(ctx, to, amt)
}

func newHostileFixture(t *testing.T) (*fixture, *hostileLedger) {
	h := &hostileLedger{attacker: alice}
	f := newFixture(t, func(_ *engine.Params, d *engine.Deps) {
		h.Custodian = d.Base.(*token.Custodian)
		d.Base = h
	})
	h.eng = f.eng
	return f, h
}

func (f *fixture) settledDuel() uint64 {
	f.t.Helper()
	id := f.adminMarket()
	f.fund(alice, units(10))
	f.fund(bob, units(10))
	f.bet(alice, id, 0, units(10))
	f.bet(bob, id, 1, units(10))
	f.resolve(id, 0)
	return id
}

func TestReentrantClaim_SwallowedPaysOnce(t *testing.T) {
	f, h := newHostileFixture(t)
	id := f.settledDuel()

	h.armed = true
	h.callback = func(ctx context.Context) error {
		_, _, err := h.eng.ClaimGains(ctx, alice, id)
		return err
	}

	payout, _, err := f.eng.ClaimGains(f.ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, dec("19.4"), payout.Base)

	require.Error(t, h.nested)
	assert.ErrorIs(t, h.nested, domain.ErrReentrant)
	assert.Equal(t, engine.KindReentrancy, engine.KindOf(h.nested))

	assert.Equal(t, dec("19.4"), f.balance(alice))
	assert.Equal(t, dec("0.6"), f.balance(custody))

	_, _, err = f.eng.ClaimGains(f.ctx, alice, id)
	rejected(t, err, domain.ErrNoEntitlement, "You have no winning bets or have already claimed")
}

func TestReentrantClaim_PropagatedRollsBack(t *testing.T) {
	f, h := newHostileFixture(t)
	id := f.settledDuel()

	h.armed = true
	h.propagate = true
	h.callback = func(ctx context.Context) error {
		_, _, err := h.eng.ClaimGains(ctx, alice, id)
		return err
	}

	_, events, err := f.eng.ClaimGains(f.ctx, alice, id)
	assert.ErrorIs(t, err, domain.ErrReentrant)
	assert.Nil(t, events)

	assert.True(t, f.balance(alice).IsZero())
	assert.Equal(t, units(20), f.balance(custody))
	m, err := f.eng.Market(f.ctx, id)
	require.NoError(t, err)
	assert.True(t, m.PaidOut.IsZero())
	assert.Empty(t, m.Settled)

	// The position is still claimable once the hook is gone.
	payout, _, err := f.eng.ClaimGains(f.ctx, alice, id)
	require.NoError(t, err)
	assert.Equal(t, dec("19.4"), payout.Base)
}

func TestReentrantAction_OtherMarketJoins(t *testing.T) {
	f, h := newHostileFixture(t)
	id := f.settledDuel()
	other := f.adminMarket()
	f.fund(alice, units(5))

	h.armed = true
	h.propagate = true
	h.callback = func(ctx context.Context) error {
		_, err := h.eng.PlaceBet(ctx, alice, other, 1, units(5))
		return err
	}

	_, events, err := f.eng.ClaimGains(f.ctx, alice, id)
	require.NoError(t, err)
	require.NoError(t, h.nested)
	assert.Equal(t, []domain.EventKind{domain.EventBetPlaced, domain.EventGainsClaimed}, kinds(events))

	stakes, err := f.eng.UserStakes(f.ctx, other, alice)
	require.NoError(t, err)
	assert.Equal(t, units(5), stakes[1])
	assert.Equal(t, dec("19.4"), f.balance(alice))
	assert.Equal(t, dec("5.6"), f.balance(custody))
}

func TestReentrantAction_FailedNestedRollsBackAlone(t *testing.T) {
	f, h := newHostileFixture(t)
	id := f.settledDuel()
	other := f.adminMarket()

	h.armed = true
	h.callback = func(ctx context.Context) error {
		// The hook runs before alice is paid, so she holds nothing yet.
		_, err := h.eng.PlaceBet(ctx, alice, other, 0, units(50))
		return err
	}

	_, _, err := f.eng.ClaimGains(f.ctx, alice, id)
	require.NoError(t, err)
	assert.ErrorIs(t, h.nested, domain.ErrInsufficientFunds)

	m, err := f.eng.Market(f.ctx, other)
	require.NoError(t, err)
	assert.True(t, m.PotTotal.IsZero())
	assert.Empty(t, m.Stakes)
	assert.Equal(t, dec("19.4"), f.balance(alice))
}

func TestQueryFromLedgerCallback_DoesNotBlock(t *testing.T) {
	f, h := newHostileFixture(t)
	id := f.settledDuel()

	var seen domain.Market
	h.armed = true
	h.callback = func(ctx context.Context) error {
		_ = h.eng.Points(ctx, alice)
		m, err := h.eng.Market(ctx, id)
		seen = m
		return err
	}

	done := make(chan error, 1)
	go func() {
		_, _, err := f.eng.ClaimGains(f.ctx, alice, id)
		done <- err
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("claim blocked on a query made from the ledger callback")
	}

	require.NoError(t, h.nested)
	assert.Equal(t, id, seen.ID)
	assert.Equal(t, domain.SettlementClaimed, seen.Settled[alice])
	assert.Equal(t, dec("19.4"), f.balance(alice))
}
