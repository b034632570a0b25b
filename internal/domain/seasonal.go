package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// SeasonalType tags the competition a seasonal market follows.
type SeasonalType int

const (
	SeasonalChampionsLeague SeasonalType = iota
	SeasonalDomesticLeague
	SeasonalInternationalCup
	SeasonalCustom
)

func (t SeasonalType) String() string {
	switch t {
	case SeasonalChampionsLeague:
		return "champions_league"
	case SeasonalDomesticLeague:
		return "domestic_league"
	case SeasonalInternationalCup:
		return "international_cup"
	case SeasonalCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// SeasonalMarket is a long-running market with a fixed entry fee, optional
// insurance, and volatility protection that settles insured winners across
// the base and the secondary currency.
type SeasonalMarket struct {
	Market

	SeasonalType           SeasonalType  `json:"seasonal_type"`
	EntryFee               amount.Amount `json:"entry_fee"`
	InsuranceFee           amount.Amount `json:"insurance_fee"`
	FreeInsuranceThreshold amount.Amount `json:"free_insurance_threshold"`
	MinFanTokens           amount.Amount `json:"min_fan_tokens"`

	// Insured flags positions by participant and outcome.
	Insured map[common.Address][]bool `json:"insured"`

	ProtectionTriggered bool          `json:"protection_triggered"`
	LockedRate          amount.Amount `json:"locked_rate"`
	LastVolatilityCheck time.Time     `json:"last_volatility_check"`
	LastVolatilityBps   uint64        `json:"last_volatility_bps"`
	SecondaryPaid       amount.Amount `json:"secondary_paid"`
}

// IsInsured reports whether the participant insured their position on outcome.
func (s *SeasonalMarket) IsInsured(addr common.Address, outcome int) bool {
	flags, ok := s.Insured[addr]
	if !ok || outcome < 0 || outcome >= len(flags) {
		return false
	}
	return flags[outcome]
}

// Active reports whether the market still accepts entries.
func (s *SeasonalMarket) Active() bool {
	return s.Status == MarketOpen
}

// Clone returns a deep copy.
func (s SeasonalMarket) Clone() SeasonalMarket {
	c := s
	c.Market = s.Market.Clone()
	c.Insured = make(map[common.Address][]bool, len(s.Insured))
	for addr, flags := range s.Insured {
		c.Insured[addr] = append([]bool(nil), flags...)
	}
	return c
}

// SeasonalPosition is one participant's stake on one outcome of a seasonal market.
type SeasonalPosition struct {
	MarketID   uint64        `json:"market_id"`
	Outcome    int           `json:"outcome"`
	Owner      string        `json:"owner"`
	BaseAmount amount.Amount `json:"base_amount"`
	Insured    bool          `json:"insured"`
	Claimed    bool          `json:"claimed"`
}

// SeasonalView is the read model of a seasonal market.
type SeasonalView struct {
	MarketView
	SeasonalType        string        `json:"seasonal_type"`
	EntryFee            amount.Amount `json:"entry_fee"`
	InsuranceFee        amount.Amount `json:"insurance_fee"`
	IsActive            bool          `json:"is_active"`
	IsResolved          bool          `json:"is_resolved"`
	ProtectionTriggered bool          `json:"protection_triggered"`
	LockedRate          amount.Amount `json:"locked_rate"`
	LastVolatilityBps   uint64        `json:"last_volatility_bps"`
}

// View converts the seasonal market into its read model.
func (s *SeasonalMarket) View() SeasonalView {
	return SeasonalView{
		MarketView:          s.Market.View("seasonal"),
		SeasonalType:        s.SeasonalType.String(),
		EntryFee:            s.EntryFee,
		InsuranceFee:        s.InsuranceFee,
		IsActive:            s.Active(),
		IsResolved:          s.Status == MarketResolved,
		ProtectionTriggered: s.ProtectionTriggered,
		LockedRate:          s.LockedRate,
		LastVolatilityBps:   s.LastVolatilityBps,
	}
}
