package domain

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// MarketStatus is the resolution state of a market.
type MarketStatus string

const (
	MarketOpen            MarketStatus = "open"
	MarketProposalPending MarketStatus = "proposal_pending"
	MarketResolved        MarketStatus = "resolved"
	MarketCancelled       MarketStatus = "cancelled"
)

// Final reports whether no further resolution transition is possible.
func (s MarketStatus) Final() bool {
	return s == MarketResolved || s == MarketCancelled
}

// Settlement records how a participant's positions in a finished market were
// closed out. A participant moves to at most one non-empty value.
type Settlement string

const (
	SettlementNone     Settlement = ""
	SettlementClaimed  Settlement = "claimed"
	SettlementRefunded Settlement = "refunded"
)

// PositionState is the derived view of one participant's positions.
type PositionState string

const (
	PositionNone       PositionState = "none"
	PositionOpen       PositionState = "open"
	PositionClaimable  PositionState = "claimable"
	PositionClaimed    PositionState = "claimed"
	PositionRefundable PositionState = "refundable"
	PositionRefunded   PositionState = "refunded"
	PositionForfeited  PositionState = "forfeited"
)

// NoOutcome marks an unset outcome index.
const NoOutcome = -1

// Market is a pari-mutuel pool over mutually exclusive outcomes.
type Market struct {
	ID            uint64         `json:"id"`
	Title         string         `json:"title"`
	Category      string         `json:"category"`
	Outcomes      []string       `json:"outcomes"`
	Deadline      time.Time      `json:"deadline"`
	Creator       common.Address `json:"creator"`
	AdminCreated  bool           `json:"admin_created"`
	ArenaEligible bool           `json:"arena_eligible"`
	CreatedAt     time.Time      `json:"created_at"`

	PotTotal    amount.Amount   `json:"pot_total"`
	OutcomePots []amount.Amount `json:"outcome_pots"`
	// Stakes holds per-participant stake indexed by outcome.
	Stakes map[common.Address][]amount.Amount `json:"stakes"`

	Status          MarketStatus `json:"status"`
	ProposedOutcome int          `json:"proposed_outcome"`
	ProposedAt      time.Time    `json:"proposed_at"`
	WinningOutcome  int          `json:"winning_outcome"`
	ResolvedAt      time.Time    `json:"resolved_at"`

	FeeAmount    amount.Amount                 `json:"fee_amount"`
	NetPot       amount.Amount                 `json:"net_pot"`
	PaidOut      amount.Amount                 `json:"paid_out"`
	ClaimedStake amount.Amount                 `json:"claimed_stake"`
	Settled      map[common.Address]Settlement `json:"settled"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewMarket returns an open market with zeroed pots.
func NewMarket(id uint64, title, category string, outcomes []string, deadline time.Time, creator common.Address, now time.Time) Market {
	labels := make([]string, len(outcomes))
	copy(labels, outcomes)
	return Market{
		ID:              id,
		Title:           title,
		Category:        category,
		Outcomes:        labels,
		Deadline:        deadline,
		Creator:         creator,
		CreatedAt:       now,
		OutcomePots:     make([]amount.Amount, len(outcomes)),
		Stakes:          make(map[common.Address][]amount.Amount),
		Settled:         make(map[common.Address]Settlement),
		Status:          MarketOpen,
		ProposedOutcome: NoOutcome,
		WinningOutcome:  NoOutcome,
		UpdatedAt:       now,
	}
}

// ValidOutcome reports whether idx addresses one of the market's outcomes.
func (m *Market) ValidOutcome(idx int) bool {
	return idx >= 0 && idx < len(m.Outcomes)
}

// StakeOf returns the participant's stake on one outcome.
func (m *Market) StakeOf(addr common.Address, outcome int) amount.Amount {
	stakes, ok := m.Stakes[addr]
	if !ok || outcome < 0 || outcome >= len(stakes) {
		return amount.Zero()
	}
	return stakes[outcome]
}

// TotalStakeOf sums the participant's stake across every outcome.
func (m *Market) TotalStakeOf(addr common.Address) (amount.Amount, error) {
	return amount.Sum(m.Stakes[addr]...)
}

// PositionState derives the participant's position lifecycle state.
func (m *Market) PositionState(addr common.Address) PositionState {
	stakes, ok := m.Stakes[addr]
	if !ok {
		return PositionNone
	}
	switch m.Settled[addr] {
	case SettlementClaimed:
		return PositionClaimed
	case SettlementRefunded:
		return PositionRefunded
	}
	switch m.Status {
	case MarketCancelled:
		return PositionRefundable
	case MarketResolved:
		if m.ValidOutcome(m.WinningOutcome) && !stakes[m.WinningOutcome].IsZero() {
			return PositionClaimable
		}
		return PositionForfeited
	default:
		return PositionOpen
	}
}

// CheckPots verifies that the pot total equals the sum of outcome pots.
func (m *Market) CheckPots() error {
	sum, err := amount.Sum(m.OutcomePots...)
	if err != nil {
		return err
	}
	if !sum.Eq(m.PotTotal) {
		return fmt.Errorf("market %d: pot total %s != outcome sum %s", m.ID, m.PotTotal, sum)
	}
	return nil
}

// Clone returns a deep copy.
func (m Market) Clone() Market {
	c := m
	c.Outcomes = append([]string(nil), m.Outcomes...)
	c.OutcomePots = append([]amount.Amount(nil), m.OutcomePots...)
	c.Stakes = make(map[common.Address][]amount.Amount, len(m.Stakes))
	for addr, s := range m.Stakes {
		c.Stakes[addr] = append([]amount.Amount(nil), s...)
	}
	c.Settled = make(map[common.Address]Settlement, len(m.Settled))
	for addr, s := range m.Settled {
		c.Settled[addr] = s
	}
	return c
}

// MarketView is the read model served to clients.
type MarketView struct {
	ID              uint64          `json:"id"`
	Kind            string          `json:"kind"`
	Title           string          `json:"title"`
	Category        string          `json:"category"`
	Outcomes        []string        `json:"outcomes"`
	Deadline        time.Time       `json:"deadline"`
	Creator         string          `json:"creator"`
	Status          MarketStatus    `json:"status"`
	ArenaEligible   bool            `json:"arena_eligible"`
	PotTotal        amount.Amount   `json:"pot_total"`
	OutcomePots     []amount.Amount `json:"outcome_pots"`
	Participants    int             `json:"participants"`
	ProposedOutcome int             `json:"proposed_outcome"`
	WinningOutcome  int             `json:"winning_outcome"`
	FeeAmount       amount.Amount   `json:"fee_amount"`
	NetPot          amount.Amount   `json:"net_pot"`
	PaidOut         amount.Amount   `json:"paid_out"`
}

// View converts the market into its read model.
func (m *Market) View(kind string) MarketView {
	return MarketView{
		ID:              m.ID,
		Kind:            kind,
		Title:           m.Title,
		Category:        m.Category,
		Outcomes:        append([]string(nil), m.Outcomes...),
		Deadline:        m.Deadline,
		Creator:         m.Creator.Hex(),
		Status:          m.Status,
		ArenaEligible:   m.ArenaEligible,
		PotTotal:        m.PotTotal,
		OutcomePots:     append([]amount.Amount(nil), m.OutcomePots...),
		Participants:    len(m.Stakes),
		ProposedOutcome: m.ProposedOutcome,
		WinningOutcome:  m.WinningOutcome,
		FeeAmount:       m.FeeAmount,
		NetPot:          m.NetPot,
		PaidOut:         m.PaidOut,
	}
}
