package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Raffle allocates one collectible among participants holding a voucher.
type Raffle struct {
	ID             uint64                  `json:"id"`
	Description    string                  `json:"description"`
	RequiredPoints uint64                  `json:"required_points"`
	Deadline       time.Time               `json:"deadline"`
	Resolved       bool                    `json:"resolved"`
	Winner         common.Address          `json:"winner"`
	Entrants       []common.Address        `json:"entrants"`
	Entered        map[common.Address]bool `json:"entered"`
	CreatedAt      time.Time               `json:"created_at"`
	ResolvedAt     time.Time               `json:"resolved_at"`
}

// Clone returns a deep copy.
func (r Raffle) Clone() Raffle {
	c := r
	c.Entrants = append([]common.Address(nil), r.Entrants...)
	c.Entered = make(map[common.Address]bool, len(r.Entered))
	for addr, v := range r.Entered {
		c.Entered[addr] = v
	}
	return c
}

// Voucher is an authority-signed permission for one participant to enter
// one raffle.
type Voucher struct {
	RaffleID  uint64         `json:"raffle_id"`
	User      common.Address `json:"user"`
	Signature []byte         `json:"signature"`
}

// Collectible is a unique token minted to a raffle winner. Its id equals the
// raffle id.
type Collectible struct {
	TokenID  uint64         `json:"token_id"`
	Owner    common.Address `json:"owner"`
	RaffleID uint64         `json:"raffle_id"`
	MintedAt time.Time      `json:"minted_at"`
}
