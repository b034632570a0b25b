package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
)

// EventKind names an engine event.
type EventKind string

const (
	EventMarketCreated       EventKind = "market_created"
	EventBetPlaced           EventKind = "bet_placed"
	EventResolutionProposed  EventKind = "resolution_proposed"
	EventResolutionExecuted  EventKind = "resolution_executed"
	EventMarketCancelled     EventKind = "market_cancelled"
	EventGainsClaimed        EventKind = "gains_claimed"
	EventRefundClaimed       EventKind = "refund_claimed"
	EventFeesWithdrawn       EventKind = "fees_withdrawn"
	EventCreationFeeUpdated  EventKind = "creation_fee_updated"
	EventUserCreationToggled EventKind = "user_creation_toggled"
	EventResolverAuthorized  EventKind = "resolver_authorized"
	EventPointsCredited      EventKind = "points_credited"
	EventPointsDeducted      EventKind = "points_deducted"
	EventArenaEligibilitySet EventKind = "arena_eligibility_set"
	EventRaffleCreated       EventKind = "raffle_created"
	EventRaffleEntered       EventKind = "raffle_entered"
	EventRaffleResolved      EventKind = "raffle_resolved"
	EventCollectibleMinted   EventKind = "collectible_minted"
	EventSeasonalCreated     EventKind = "seasonal_created"
	EventSeasonalBetPlaced   EventKind = "seasonal_bet_placed"
	EventProtectionTriggered EventKind = "protection_triggered"
	EventSeasonalResolved    EventKind = "seasonal_resolved"
	EventSeasonalClaimed     EventKind = "seasonal_claimed"
	EventReserveFunded       EventKind = "reserve_funded"
	EventPaused              EventKind = "paused"
	EventUnpaused            EventKind = "unpaused"
	EventEmergencyWithdrawal EventKind = "emergency_withdrawal"
)

// Scope identifies which entity an event belongs to.
type Scope string

const (
	ScopeMarket   Scope = "market"
	ScopeSeasonal Scope = "seasonal"
	ScopeRaffle   Scope = "raffle"
	ScopeAccount  Scope = "account"
	ScopeEngine   Scope = "engine"
)

// Event is emitted by every successful engine action.
type Event struct {
	Kind      EventKind      `json:"kind"`
	Scope     Scope          `json:"scope"`
	ID        uint64         `json:"id"`
	Actor     common.Address `json:"actor"`
	Outcome   int            `json:"outcome"`
	Amount    amount.Amount  `json:"amount"`
	Secondary amount.Amount  `json:"secondary"`
	Points    uint64         `json:"points,omitempty"`
	Detail    string         `json:"detail,omitempty"`
	At        time.Time      `json:"at"`
}

// Channel returns the pub/sub channel the event is published on.
func (e Event) Channel() string {
	return "ch:arena:" + string(e.Scope)
}

// Fields flattens the event into an audit detail map.
func (e Event) Fields() map[string]any {
	m := map[string]any{
		"scope":   string(e.Scope),
		"id":      e.ID,
		"actor":   e.Actor.Hex(),
		"outcome": e.Outcome,
		"amount":  e.Amount.String(),
		"at":      e.At.UTC().Format(time.RFC3339Nano),
	}
	if !e.Secondary.IsZero() {
		m["secondary"] = e.Secondary.String()
	}
	if e.Points != 0 {
		m["points"] = e.Points
	}
	if e.Detail != "" {
		m["detail"] = e.Detail
	}
	return m
}
