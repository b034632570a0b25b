package fees_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/fees"
)

func units(n uint64) amount.Amount { return amount.Units(n, amount.BaseDecimals) }

func schedule() fees.Schedule {
	return fees.Schedule{
		PlatformFeeBps:     300,
		ExemptionThreshold: units(100),
		BonusTiers: []fees.BonusTier{
			{MinFanTokens: units(100), BonusBps: 100},
			{MinFanTokens: units(1000), BonusBps: 500},
			{MinFanTokens: units(500), BonusBps: 300},
		},
	}
}

func TestCreationFeeExemption(t *testing.T) {
	s := schedule()
	fee := amount.MustParse("0.5", amount.BaseDecimals)

	charge, exempt := s.CreationFee(fee, units(150))
	assert.True(t, exempt)
	assert.True(t, charge.IsZero())

	charge, exempt = s.CreationFee(fee, units(50))
	assert.False(t, exempt)
	assert.True(t, charge.Eq(fee))

	charge, exempt = s.CreationFee(amount.Zero(), units(0))
	assert.False(t, exempt)
	assert.True(t, charge.IsZero())
}

func TestSkimScenario(t *testing.T) {
	fee, net, err := schedule().Skim(units(30))
	require.NoError(t, err)
	assert.Equal(t, "0.9", fee.Format(amount.BaseDecimals))
	assert.Equal(t, "29.1", net.Format(amount.BaseDecimals))

	gain, err := fees.BaseGain(units(10), net, units(10))
	require.NoError(t, err)
	assert.Equal(t, "29.1", gain.Format(amount.BaseDecimals))
}

func TestBaseGainNoWinners(t *testing.T) {
	_, err := fees.BaseGain(units(1), units(10), amount.Zero())
	assert.ErrorIs(t, err, fees.ErrNoWinners)
}

func TestShareConservesNetPot(t *testing.T) {
	// Three equal winners over a net pot that does not divide evenly.
	net := amount.FromUint64(100)
	winning := amount.FromUint64(3)
	paid := amount.Zero()
	claimed := amount.Zero()
	var shares []amount.Amount
	for i := 0; i < 3; i++ {
		s, err := fees.Share(amount.FromUint64(1), net, winning, claimed, paid)
		require.NoError(t, err)
		shares = append(shares, s)
		paid, _ = paid.Add(s)
		claimed, _ = claimed.Add(amount.FromUint64(1))
	}
	assert.Equal(t, "33", shares[0].String())
	assert.Equal(t, "33", shares[1].String())
	assert.Equal(t, "34", shares[2].String())
	assert.True(t, paid.Eq(net))
}

func TestProportionality(t *testing.T) {
	_, net, err := schedule().Skim(units(60))
	require.NoError(t, err)
	a, err := fees.BaseGain(units(20), net, units(30))
	require.NoError(t, err)
	b, err := fees.BaseGain(units(10), net, units(30))
	require.NoError(t, err)
	twice, err := b.Add(b)
	require.NoError(t, err)
	assert.True(t, a.Eq(twice))
}

func TestBonusTiersAndCap(t *testing.T) {
	s := schedule()
	assert.Equal(t, uint64(500), s.BonusBps(units(5000)))
	assert.Equal(t, uint64(300), s.BonusBps(units(500)))
	assert.Equal(t, uint64(100), s.BonusBps(units(100)))
	assert.Equal(t, uint64(0), s.BonusBps(units(99)))

	b, err := fees.Bonus(units(100), 500, units(1000))
	require.NoError(t, err)
	assert.True(t, b.Eq(units(5)))

	capped, err := fees.Bonus(units(100), 500, units(2))
	require.NoError(t, err)
	assert.True(t, capped.Eq(units(2)))
}

func TestSplitPayout(t *testing.T) {
	// 0.08 secondary units per base unit, secondary scale 6.
	rate := amount.MustParse("0.08", amount.SecondaryDecimals)
	p, converted, err := fees.SplitPayout(units(100), 4000, rate)
	require.NoError(t, err)
	assert.Equal(t, domain.SplitCurrency, p.Kind)
	assert.True(t, p.Base.Eq(units(60)))
	assert.True(t, converted.Eq(units(40)))
	assert.Equal(t, "3.2", p.Secondary.Format(amount.SecondaryDecimals))
}

func TestImbalanced(t *testing.T) {
	unbalanced, err := fees.Imbalanced([]amount.Amount{units(90), units(10), units(0)}, units(100), 8000)
	require.NoError(t, err)
	assert.True(t, unbalanced)

	balanced, err := fees.Imbalanced([]amount.Amount{units(50), units(40), units(20)}, units(110), 8000)
	require.NoError(t, err)
	assert.False(t, balanced)

	oneSided, err := fees.Imbalanced([]amount.Amount{units(5), units(0)}, units(5), 8000)
	require.NoError(t, err)
	assert.True(t, oneSided)
}

func TestSurplusExcludesUnclaimedShares(t *testing.T) {
	net := amount.MustParse("97", amount.BaseDecimals)

	// First of two equal winners: the other half is reserved.
	s, err := fees.Surplus(net, amount.Zero(), amount.MustParse("48.5", amount.BaseDecimals), units(20), amount.Zero(), units(10))
	require.NoError(t, err)
	assert.True(t, s.IsZero())

	// Last claimant: whatever is left after its base.
	s, err = fees.Surplus(net, amount.MustParse("48.5", amount.BaseDecimals), amount.MustParse("48", amount.BaseDecimals), units(20), units(10), units(10))
	require.NoError(t, err)
	assert.Equal(t, amount.MustParse("0.5", amount.BaseDecimals), s)

	// Rounding dust left by the floored shares is available: 10 wei over a
	// 3 wei winning pot floors to 3 + 6 reserved, leaving 1.
	s, err = fees.Surplus(amount.FromUint64(10), amount.Zero(), amount.FromUint64(3), amount.FromUint64(3), amount.Zero(), amount.FromUint64(1))
	require.NoError(t, err)
	assert.Equal(t, amount.FromUint64(1), s)
}
