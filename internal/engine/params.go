package engine

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/fees"
)

// Params are the engine's fixed roles and tunables.
type Params struct {
	Operator         common.Address
	Custody          common.Address
	VoucherAuthority common.Address

	CreationFee         amount.Amount
	Fees                fees.Schedule
	UserCreationEnabled bool

	DisputeWindow   time.Duration
	UserMaxHorizon  time.Duration
	AdminMaxHorizon time.Duration

	CreationPoints uint64
	ActivationCost uint64

	MinOutcomes       int
	MaxOutcomes       int
	MaxTitleLen       int
	MaxLabelLen       int
	MaxCategoryLen    int
	MaxDescriptionLen int

	// ImbalanceBps is the share of the pot the largest outcome must hold
	// before the operator may cancel a market.
	ImbalanceBps uint64

	Seasonal SeasonalParams
}

// SeasonalParams configure seasonal markets and volatility protection.
type SeasonalParams struct {
	MaxDuration            time.Duration
	MinEntryFee            amount.Amount
	MaxEntryFee            amount.Amount
	MinFanTokens           amount.Amount
	FreeInsuranceThreshold amount.Amount
	InsuranceFee           amount.Amount
	VolatilityThresholdBps uint64
	CheckInterval          time.Duration
	// SecondaryBps is the share of an insured, protected payout settled in
	// the secondary currency.
	SecondaryBps uint64
}

// DefaultParams returns the production constants. Roles are left zero.
func DefaultParams() Params {
	base := func(n uint64) amount.Amount { return amount.Units(n, amount.BaseDecimals) }
	return Params{
		CreationFee: amount.MustParse("0.5", amount.BaseDecimals),
		Fees: fees.Schedule{
			PlatformFeeBps:     300,
			ExemptionThreshold: base(100),
			BonusTiers: []fees.BonusTier{
				{MinFanTokens: base(100), BonusBps: 100},
				{MinFanTokens: base(500), BonusBps: 300},
				{MinFanTokens: base(1000), BonusBps: 500},
			},
		},
		UserCreationEnabled: true,
		DisputeWindow:       24 * time.Hour,
		UserMaxHorizon:      30 * 24 * time.Hour,
		AdminMaxHorizon:     365 * 24 * time.Hour,
		CreationPoints:      50,
		ActivationCost:      100,
		MinOutcomes:         2,
		MaxOutcomes:         10,
		MaxTitleLen:         100,
		MaxLabelLen:         50,
		MaxCategoryLen:      32,
		MaxDescriptionLen:   280,
		ImbalanceBps:        8000,
		Seasonal: SeasonalParams{
			MaxDuration:            90 * 24 * time.Hour,
			MinEntryFee:            base(150),
			MaxEntryFee:            base(500),
			MinFanTokens:           base(2000),
			FreeInsuranceThreshold: base(5000),
			InsuranceFee:           base(20),
			VolatilityThresholdBps: 3000,
			CheckInterval:          time.Hour,
			SecondaryBps:           4000,
		},
	}
}
