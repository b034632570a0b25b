package engine_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

func (f *fixture) busyLedger() (duel uint64, raffle uint64, seasonal uint64) {
	f.t.Helper()
	duel = f.adminMarket()
	f.fund(alice, units(10))
	f.fund(bob, units(10))
	f.bet(alice, duel, 0, units(10))
	f.bet(bob, duel, 1, units(10))

	f.giveFan(carol, units(100))
	_, _, err := f.eng.CreateMarket(f.ctx, carol, userSpec(f))
	require.NoError(f.t, err)
	_, err = f.eng.AuthorizeResolver(f.ctx, operator, dave, true)
	require.NoError(f.t, err)

	raffle = f.raffle("Jersey", 0)
	v, err := f.voucher.SignVoucher(raffle, carol)
	require.NoError(f.t, err)
	_, err = f.eng.EnterRaffle(f.ctx, carol, v)
	require.NoError(f.t, err)

	seasonal = f.seasonal()
	f.giveFan(dave, units(6000))
	f.fund(dave, units(200))
	f.enterSeasonal(dave, seasonal, 0, true)

	f.resolve(duel, 0)
	return duel, raffle, seasonal
}

func TestSnapshotRestore_ContinuesSettlement(t *testing.T) {
	f := newFixture(t)
	duel, raffle, seasonal := f.busyLedger()
	snap := f.eng.Snapshot()

	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded domain.LedgerSnapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored, err := engine.New(f.params, f.deps, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(decoded))

	assert.Equal(t, snap.Meta, restored.Meta(f.ctx))
	assert.Equal(t, uint64(50), restored.Points(f.ctx, carol))
	assert.True(t, restored.IsResolver(f.ctx, dave))
	assert.True(t, restored.HasEntered(f.ctx, raffle, carol))
	require.Len(t, restored.SeasonalMarkets(f.ctx), 1)
	assert.Equal(t, seasonal, restored.SeasonalMarkets(f.ctx)[0].ID)
	pos, err := restored.SeasonalPosition(f.ctx, seasonal, 0, dave)
	require.NoError(t, err)
	assert.True(t, pos.Insured)
	assert.Equal(t, units(200), pos.BaseAmount)

	m, err := restored.Market(f.ctx, duel)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketResolved, m.Status)
	assert.Equal(t, dec("19.4"), m.NetPot)

	payout, _, err := restored.ClaimGains(f.ctx, alice, duel)
	require.NoError(t, err)
	assert.Equal(t, dec("19.4"), payout.Base)
	assert.Equal(t, dec("19.4"), f.balance(alice))

	// The original engine is untouched by the restored one.
	orig, err := f.eng.Market(f.ctx, duel)
	require.NoError(t, err)
	assert.True(t, orig.PaidOut.IsZero())
}

func TestSnapshot_IsStable(t *testing.T) {
	f := newFixture(t)
	f.busyLedger()
	snap := f.eng.Snapshot()

	restored, err := engine.New(f.params, f.deps, nil)
	require.NoError(t, err)
	require.NoError(t, restored.Restore(snap))
	assert.Equal(t, snap, restored.Snapshot())
	assert.False(t, snap.Empty())
	assert.True(t, domain.LedgerSnapshot{}.Empty())
}

func TestRestore_RejectsInconsistentSnapshots(t *testing.T) {
	f := newFixture(t)
	f.busyLedger()

	t.Run("pot mismatch", func(t *testing.T) {
		snap := f.eng.Snapshot()
		snap.Markets[0].PotTotal = units(999)
		e, err := engine.New(f.params, f.deps, nil)
		require.NoError(t, err)
		assert.Error(t, e.Restore(snap))
		assert.Empty(t, e.Markets(f.ctx))
	})

	t.Run("id beyond counter", func(t *testing.T) {
		snap := f.eng.Snapshot()
		snap.Meta.NextMarketID = 1
		e, err := engine.New(f.params, f.deps, nil)
		require.NoError(t, err)
		assert.Error(t, e.Restore(snap))
	})

	t.Run("raffle beyond counter", func(t *testing.T) {
		snap := f.eng.Snapshot()
		snap.Meta.NextRaffleID = 0
		e, err := engine.New(f.params, f.deps, nil)
		require.NoError(t, err)
		assert.Error(t, e.Restore(snap))
	})
}

func TestRestore_DefaultsSeasonalCounter(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.eng.Restore(domain.LedgerSnapshot{}))
	assert.Equal(t, uint64(1), f.eng.Meta(f.ctx).NextSeasonalID)

	id := f.seasonal()
	assert.Equal(t, uint64(1), id)
}
