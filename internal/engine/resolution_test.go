package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

// X stakes 10 on A, Y stakes 20 on B, A wins: the 3% fee is 0.9 and X takes
// the whole 29.1 net pot.
func TestScenario_ThreeOutcomeDuel(t *testing.T) {
	f := newFixture(t)
	x, y := alice, bob
	f.fund(x, units(10))
	f.fund(y, units(20))

	id, _, err := f.eng.AdminCreateMarket(f.ctx, operator, engine.MarketSpec{
		Title:    "Final",
		Category: "football",
		Outcomes: []string{"A", "B", "C"},
		Deadline: f.clock.now.Add(3700 * time.Second),
	})
	require.NoError(t, err)

	f.bet(x, id, 0, units(10))
	f.bet(y, id, 1, units(20))

	f.clock.Advance(3701 * time.Second)
	_, err = f.eng.ProposeResolution(f.ctx, operator, id, 0)
	require.NoError(t, err)

	f.clock.Advance(24*time.Hour + time.Second)
	events, err := f.eng.ExecuteResolution(f.ctx, operator, id, 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, dec("0.9"), events[0].Amount)

	m, err := f.eng.Market(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketResolved, m.Status)
	assert.Equal(t, 0, m.WinningOutcome)
	assert.Equal(t, dec("0.9"), m.FeeAmount)
	assert.Equal(t, dec("29.1"), m.NetPot)
	assert.Equal(t, dec("0.9"), f.eng.FeesAccumulated(f.ctx))

	preview, err := f.eng.PreviewPayout(f.ctx, id, x)
	require.NoError(t, err)
	assert.Equal(t, dec("29.1"), preview.Base)

	payout, _, err := f.eng.ClaimGains(f.ctx, x, id)
	require.NoError(t, err)
	assert.Equal(t, domain.SingleCurrency, payout.Kind)
	assert.Equal(t, dec("29.1"), payout.Base)
	assert.Equal(t, dec("29.1"), f.balance(x))

	_, _, err = f.eng.ClaimGains(f.ctx, y, id)
	rejected(t, err, domain.ErrNoEntitlement, "You have no winning bets or have already claimed")
	assert.ErrorIs(t, err, domain.ErrNoWinningStake)
	assert.Equal(t, engine.KindEntitlement, engine.KindOf(err))

	assert.Equal(t, dec("0.9"), f.balance(custody))
}

func TestProposeResolution_Rejections(t *testing.T) {
	f := newFixture(t)
	id := f.adminMarket()

	_, err := f.eng.ProposeResolution(f.ctx, operator, id, 0)
	rejected(t, err, domain.ErrInvalidState, "Deadline not reached")

	f.clock.Advance(time.Hour)
	_, err = f.eng.ProposeResolution(f.ctx, operator, id, 0)
	rejected(t, err, domain.ErrInvalidState, "Deadline not reached")

	f.clock.Advance(time.Second)
	_, err = f.eng.ProposeResolution(f.ctx, alice, id, 0)
	rejected(t, err, domain.ErrUnauthorized, "Not an authorized resolver")

	_, err = f.eng.ProposeResolution(f.ctx, operator, id, 2)
	rejected(t, err, domain.ErrValidation, "Invalid outcome index")

	_, err = f.eng.ProposeResolution(f.ctx, operator, 42, 0)
	rejected(t, err, domain.ErrNotFound, "Duel does not exist")

	_, err = f.eng.AuthorizeResolver(f.ctx, operator, alice, true)
	require.NoError(t, err)
	_, err = f.eng.ProposeResolution(f.ctx, alice, id, 1)
	require.NoError(t, err)

	_, err = f.eng.ProposeResolution(f.ctx, operator, id, 0)
	rejected(t, err, domain.ErrInvalidState, "Duel not open")
}

func TestExecuteResolution_Timelock(t *testing.T) {
	f := newFixture(t)
	id := f.adminMarket()
	f.clock.Advance(time.Hour + time.Second)

	_, err := f.eng.ExecuteResolution(f.ctx, operator, id, 0)
	rejected(t, err, domain.ErrInvalidState, "No pending proposal")

	_, err = f.eng.ProposeResolution(f.ctx, operator, id, 1)
	require.NoError(t, err)
	proposedAt := f.clock.now

	for _, wait := range []time.Duration{0, time.Hour, 24 * time.Hour} {
		f.clock.now = proposedAt.Add(wait)
		for _, outcome := range []int{0, 1} {
			_, err = f.eng.ExecuteResolution(f.ctx, operator, id, outcome)
			rejected(t, err, domain.ErrInvalidState, "Dispute window active")
		}
	}

	f.clock.Advance(time.Second)
	_, err = f.eng.ExecuteResolution(f.ctx, operator, id, 0)
	rejected(t, err, domain.ErrValidation, "Outcome mismatch")

	_, err = f.eng.ExecuteResolution(f.ctx, alice, id, 1)
	rejected(t, err, domain.ErrUnauthorized, "Not an authorized resolver")

	_, err = f.eng.ExecuteResolution(f.ctx, operator, id, 1)
	require.NoError(t, err)

	_, err = f.eng.ExecuteResolution(f.ctx, operator, id, 1)
	rejected(t, err, domain.ErrInvalidState, "Duel already finalized")
	_, err = f.eng.ProposeResolution(f.ctx, operator, id, 1)
	rejected(t, err, domain.ErrInvalidState, "Duel already finalized")
	_, err = f.eng.ValidateAndCancel(f.ctx, operator, id)
	rejected(t, err, domain.ErrInvalidState, "Duel already finalized")
}

func TestExecuteResolution_NoWinningStake(t *testing.T) {
	f := newFixture(t)
	id := f.adminMarket()
	f.fund(alice, units(10))
	f.bet(alice, id, 0, units(10))

	f.resolve(id, 1)

	m, err := f.eng.Market(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, dec("9.7"), m.NetPot)

	_, _, err = f.eng.ClaimGains(f.ctx, alice, id)
	rejected(t, err, domain.ErrNoEntitlement, "You have no winning bets or have already claimed")
	assert.Equal(t, units(10), f.balance(custody))
}

func TestValidateAndCancel(t *testing.T) {
	f := newFixture(t)
	id := f.adminMarket()
	f.fund(alice, units(200))
	f.fund(bob, units(100))
	f.bet(alice, id, 0, units(50))
	f.bet(bob, id, 1, units(50))

	_, err := f.eng.ValidateAndCancel(f.ctx, alice, id)
	rejected(t, err, domain.ErrUnauthorized, "caller is not the operator")

	_, err = f.eng.ValidateAndCancel(f.ctx, operator, id)
	rejected(t, err, domain.ErrInvalidState, "Duel is balanced")

	f.bet(alice, id, 0, units(150))
	events, err := f.eng.ValidateAndCancel(f.ctx, operator, id)
	require.NoError(t, err)
	assert.Equal(t, []domain.EventKind{domain.EventMarketCancelled}, kinds(events))

	m, err := f.eng.Market(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketCancelled, m.Status)
	assert.True(t, f.eng.FeesAccumulated(f.ctx).IsZero())
}

func TestValidateAndCancel_WhileProposalPending(t *testing.T) {
	f := newFixture(t)
	id := f.adminMarket()
	f.fund(alice, units(1))
	f.bet(alice, id, 0, units(1))

	f.clock.Advance(2 * time.Hour)
	_, err := f.eng.ProposeResolution(f.ctx, operator, id, 0)
	require.NoError(t, err)

	_, err = f.eng.ValidateAndCancel(f.ctx, operator, id)
	require.NoError(t, err)
}

func TestErrorKinds(t *testing.T) {
	f := newFixture(t)
	_, err := f.eng.PlaceBet(f.ctx, alice, 7, 0, units(1))

	var engErr *engine.Error
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, engine.KindNotFound, engErr.Kind)
	assert.Equal(t, "not_found", engErr.Kind.String())
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, errors.Is(err, domain.ErrValidation))
	assert.False(t, errors.Is(err, domain.ErrInvalidState))

	_, err = f.eng.PlaceBet(f.ctx, alice, f.adminMarket(), 9, units(1))
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, engine.KindValidation, engErr.Kind)
	assert.Equal(t, "validation", engErr.Kind.String())
}
