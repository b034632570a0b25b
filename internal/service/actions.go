package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
)

// --------------------------------------------------------------------------
// Markets
// --------------------------------------------------------------------------

// CreateMarket opens a user market.
func (s *ArenaService) CreateMarket(ctx context.Context, creator common.Address, spec engine.MarketSpec) (uint64, error) {
	var id uint64
	_, err := s.do(ctx, "create_market", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		id, events, err = s.eng.CreateMarket(ctx, creator, spec)
		return events, err
	})
	return id, err
}

// AdminCreateMarket opens an operator market.
func (s *ArenaService) AdminCreateMarket(ctx context.Context, caller common.Address, spec engine.MarketSpec) (uint64, error) {
	var id uint64
	_, err := s.do(ctx, "admin_create_market", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		id, events, err = s.eng.AdminCreateMarket(ctx, caller, spec)
		return events, err
	})
	return id, err
}

// PlaceBet stakes amt on one outcome.
func (s *ArenaService) PlaceBet(ctx context.Context, bettor common.Address, marketID uint64, outcome int, amt amount.Amount) ([]domain.Event, error) {
	return s.do(ctx, "place_bet", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.PlaceBet(ctx, bettor, marketID, outcome, amt)
	})
}

// ProposeResolution starts the dispute window.
func (s *ArenaService) ProposeResolution(ctx context.Context, caller common.Address, marketID uint64, outcome int) ([]domain.Event, error) {
	return s.do(ctx, "propose_resolution", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ProposeResolution(ctx, caller, marketID, outcome)
	})
}

// ExecuteResolution finalizes a proposal after the dispute window.
func (s *ArenaService) ExecuteResolution(ctx context.Context, caller common.Address, marketID uint64, outcome int) ([]domain.Event, error) {
	return s.do(ctx, "execute_resolution", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ExecuteResolution(ctx, caller, marketID, outcome)
	})
}

// ValidateAndCancel cancels an imbalanced or unanimous market.
func (s *ArenaService) ValidateAndCancel(ctx context.Context, caller common.Address, marketID uint64) ([]domain.Event, error) {
	return s.do(ctx, "validate_and_cancel", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ValidateAndCancel(ctx, caller, marketID)
	})
}

// ClaimGains pays a winning position.
func (s *ArenaService) ClaimGains(ctx context.Context, caller common.Address, marketID uint64) (domain.Payout, error) {
	var payout domain.Payout
	_, err := s.do(ctx, "claim_gains", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		payout, events, err = s.eng.ClaimGains(ctx, caller, marketID)
		return events, err
	})
	return payout, err
}

// ClaimRefund returns the stake of a cancelled market.
func (s *ArenaService) ClaimRefund(ctx context.Context, caller common.Address, marketID uint64) (amount.Amount, error) {
	var refund amount.Amount
	_, err := s.do(ctx, "claim_refund", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		refund, events, err = s.eng.ClaimRefund(ctx, caller, marketID)
		return events, err
	})
	return refund, err
}

// ActivateArenaWithPoints spends points to make a market bonus-eligible.
func (s *ArenaService) ActivateArenaWithPoints(ctx context.Context, caller common.Address, marketID uint64) ([]domain.Event, error) {
	return s.do(ctx, "activate_arena", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ActivateArenaWithPoints(ctx, caller, marketID)
	})
}

// --------------------------------------------------------------------------
// Operator settings
// --------------------------------------------------------------------------

// WithdrawFees pays accumulated fees to an address.
func (s *ArenaService) WithdrawFees(ctx context.Context, caller, to common.Address, amt amount.Amount) ([]domain.Event, error) {
	return s.do(ctx, "withdraw_fees", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.WithdrawFees(ctx, caller, to, amt)
	})
}

// SetCreationFee changes the user market creation fee.
func (s *ArenaService) SetCreationFee(ctx context.Context, caller common.Address, fee amount.Amount) ([]domain.Event, error) {
	return s.do(ctx, "set_creation_fee", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.SetCreationFee(ctx, caller, fee)
	})
}

// ToggleUserCreation enables or disables user market creation.
func (s *ArenaService) ToggleUserCreation(ctx context.Context, caller common.Address, enabled bool) ([]domain.Event, error) {
	return s.do(ctx, "toggle_user_creation", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ToggleUserCreation(ctx, caller, enabled)
	})
}

// AuthorizeResolver grants or revokes resolver rights.
func (s *ArenaService) AuthorizeResolver(ctx context.Context, caller, resolver common.Address, authorized bool) ([]domain.Event, error) {
	return s.do(ctx, "authorize_resolver", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.AuthorizeResolver(ctx, caller, resolver, authorized)
	})
}

// --------------------------------------------------------------------------
// Raffles
// --------------------------------------------------------------------------

// CreateRaffle opens a raffle.
func (s *ArenaService) CreateRaffle(ctx context.Context, caller common.Address, description string, requiredPoints uint64, deadline time.Time) (uint64, error) {
	var id uint64
	_, err := s.do(ctx, "create_raffle", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		id, events, err = s.eng.CreateRaffle(ctx, caller, description, requiredPoints, deadline)
		return events, err
	})
	return id, err
}

// EnterRaffle redeems a voucher.
func (s *ArenaService) EnterRaffle(ctx context.Context, caller common.Address, v domain.Voucher) ([]domain.Event, error) {
	return s.do(ctx, "enter_raffle", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.EnterRaffle(ctx, caller, v)
	})
}

// ResolveRaffleAndMint names the winner and mints the collectible.
func (s *ArenaService) ResolveRaffleAndMint(ctx context.Context, caller common.Address, raffleID uint64, winner common.Address) ([]domain.Event, error) {
	return s.do(ctx, "resolve_raffle", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ResolveRaffleAndMint(ctx, caller, raffleID, winner)
	})
}

// --------------------------------------------------------------------------
// Seasonal markets
// --------------------------------------------------------------------------

// CreateSeasonal opens a seasonal market.
func (s *ArenaService) CreateSeasonal(ctx context.Context, caller common.Address, spec engine.SeasonalSpec) (uint64, error) {
	var id uint64
	_, err := s.do(ctx, "create_seasonal", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		id, events, err = s.eng.CreateSeasonal(ctx, caller, spec)
		return events, err
	})
	return id, err
}

// EnterSeasonal pays the entry fee for one outcome.
func (s *ArenaService) EnterSeasonal(ctx context.Context, caller common.Address, seasonalID uint64, outcome int, insured bool) ([]domain.Event, error) {
	return s.do(ctx, "enter_seasonal", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.EnterSeasonal(ctx, caller, seasonalID, outcome, insured)
	})
}

// TriggerVolatilityProtection checks the oracle and locks the rate when the
// threshold is crossed.
func (s *ArenaService) TriggerVolatilityProtection(ctx context.Context, caller common.Address, seasonalID uint64) ([]domain.Event, error) {
	return s.do(ctx, "trigger_protection", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.TriggerVolatilityProtection(ctx, caller, seasonalID)
	})
}

// ResolveSeasonal settles a seasonal market.
func (s *ArenaService) ResolveSeasonal(ctx context.Context, caller common.Address, seasonalID uint64, outcome int) ([]domain.Event, error) {
	return s.do(ctx, "resolve_seasonal", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.ResolveSeasonal(ctx, caller, seasonalID, outcome)
	})
}

// ClaimSeasonalReward pays a winning seasonal position.
func (s *ArenaService) ClaimSeasonalReward(ctx context.Context, caller common.Address, seasonalID uint64) (domain.Payout, error) {
	var payout domain.Payout
	_, err := s.do(ctx, "claim_seasonal", func(ctx context.Context) ([]domain.Event, error) {
		var events []domain.Event
		var err error
		payout, events, err = s.eng.ClaimSeasonalReward(ctx, caller, seasonalID)
		return events, err
	})
	return payout, err
}

// FundReserve moves secondary currency into the reserve.
func (s *ArenaService) FundReserve(ctx context.Context, caller common.Address, amt amount.Amount) ([]domain.Event, error) {
	return s.do(ctx, "fund_reserve", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.FundReserve(ctx, caller, amt)
	})
}

// Pause stops seasonal entries, triggers and claims.
func (s *ArenaService) Pause(ctx context.Context, caller common.Address) ([]domain.Event, error) {
	return s.do(ctx, "pause", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.Pause(ctx, caller)
	})
}

// Unpause lifts a pause.
func (s *ArenaService) Unpause(ctx context.Context, caller common.Address) ([]domain.Event, error) {
	return s.do(ctx, "unpause", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.Unpause(ctx, caller)
	})
}

// EmergencyWithdraw drains custody of one currency while paused.
func (s *ArenaService) EmergencyWithdraw(ctx context.Context, caller common.Address, currency engine.Currency, amt amount.Amount) ([]domain.Event, error) {
	return s.do(ctx, "emergency_withdraw", func(ctx context.Context) ([]domain.Event, error) {
		return s.eng.EmergencyWithdraw(ctx, caller, currency, amt)
	})
}
