package domain

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// EngineMeta holds the process-wide scalars of the ledger.
type EngineMeta struct {
	NextMarketID        uint64        `json:"next_market_id"`
	NextSeasonalID      uint64        `json:"next_seasonal_id"`
	NextRaffleID        uint64        `json:"next_raffle_id"`
	CreationFee         amount.Amount `json:"creation_fee"`
	UserCreationEnabled bool          `json:"user_creation_enabled"`
	Paused              bool          `json:"paused"`
	FeesAccumulated     amount.Amount `json:"fees_accumulated"`
	SecondaryReserve    amount.Amount `json:"secondary_reserve"`
}

// LedgerSnapshot is the complete engine state used for persistence.
type LedgerSnapshot struct {
	Meta         EngineMeta                `json:"meta"`
	Markets      []Market                  `json:"markets"`
	Seasonal     []SeasonalMarket          `json:"seasonal"`
	Raffles      []Raffle                  `json:"raffles"`
	Collectibles []Collectible             `json:"collectibles"`
	Points       map[common.Address]uint64 `json:"points"`
	Resolvers    []common.Address          `json:"resolvers"`
}

// Empty reports whether the snapshot carries no state at all.
func (s LedgerSnapshot) Empty() bool {
	return s.Meta == (EngineMeta{}) && len(s.Markets) == 0 && len(s.Seasonal) == 0 &&
		len(s.Raffles) == 0 && len(s.Points) == 0 && len(s.Resolvers) == 0
}
