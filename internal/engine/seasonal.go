package engine

import (
	"context"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/fees"
)

// Currency selects one of the two ledgers the engine holds in custody.
type Currency string

const (
	CurrencyBase      Currency = "base"
	CurrencySecondary Currency = "secondary"
)

// SeasonalSpec describes a seasonal market to create.
type SeasonalSpec struct {
	Title    string
	Outcomes []string
	Type     domain.SeasonalType
	EntryFee amount.Amount
	Duration time.Duration
}

func (tx *txn) seasonal(id uint64) (*domain.SeasonalMarket, error) {
	s, ok := tx.e.st.seasonal[id]
	if !ok {
		return nil, notFound(msgSeasonalNotFound)
	}
	return s, nil
}

func (tx *txn) requireUnpaused() error {
	if tx.e.st.meta.Paused {
		return badState(msgPaused)
	}
	return nil
}

// CreateSeasonal opens a seasonal market with a fixed entry fee.
func (e *Engine) CreateSeasonal(ctx context.Context, caller common.Address, spec SeasonalSpec) (uint64, []domain.Event, error) {
	var id uint64
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		sp := tx.e.params.Seasonal
		if spec.Duration <= 0 {
			return invalid(msgInvalidDuration)
		}
		if spec.Duration > sp.MaxDuration {
			return invalid(msgDurationTooLong)
		}
		if spec.EntryFee.Lt(sp.MinEntryFee) || spec.EntryFee.Gt(sp.MaxEntryFee) {
			return invalid(msgInvalidEntryFee)
		}
		deadline := tx.now.Add(spec.Duration)
		if err := tx.validateMarket(spec.Title, "", spec.Outcomes, deadline, sp.MaxDuration); err != nil {
			return err
		}

		tx.saveMeta()
		id = tx.e.st.meta.NextSeasonalID
		tx.e.st.meta.NextSeasonalID++

		s := &domain.SeasonalMarket{
			Market:                 domain.NewMarket(id, strings.TrimSpace(spec.Title), spec.Type.String(), spec.Outcomes, deadline, caller, tx.now),
			SeasonalType:           spec.Type,
			EntryFee:               spec.EntryFee,
			InsuranceFee:           sp.InsuranceFee,
			FreeInsuranceThreshold: sp.FreeInsuranceThreshold,
			MinFanTokens:           sp.MinFanTokens,
			Insured:                make(map[common.Address][]bool),
			LastVolatilityCheck:    tx.now,
		}
		s.AdminCreated = true
		tx.e.st.seasonal[id] = s
		tx.onUndo(func() { delete(tx.e.st.seasonal, id) })
		tx.emit(domain.Event{Kind: domain.EventSeasonalCreated, Scope: domain.ScopeSeasonal, ID: id, Actor: caller, Amount: spec.EntryFee, Detail: s.Title})
		return nil
	})
	return id, events, err
}

// EnterSeasonal stakes the entry fee on an outcome. Insurance costs the
// insurance fee unless the participant holds the free-insurance threshold.
func (e *Engine) EnterSeasonal(ctx context.Context, caller common.Address, seasonalID uint64, outcome int, withInsurance bool) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireUnpaused(); err != nil {
			return err
		}
		if err := tx.enter(domain.ScopeSeasonal, seasonalID); err != nil {
			return err
		}
		s, err := tx.seasonal(seasonalID)
		if err != nil {
			return err
		}
		if !s.Active() {
			return badState(msgArenaNotActive)
		}
		if !tx.now.Before(s.Deadline) {
			return badState(msgBettingClosed)
		}
		if !s.ValidOutcome(outcome) {
			return invalid(msgInvalidOutcomeIndex)
		}
		fan, err := tx.fanBalance(ctx, caller)
		if err != nil {
			return err
		}
		if fan.Lt(s.MinFanTokens) {
			return forbidden(msgInsufficientFan)
		}

		charge := s.EntryFee
		var premium amount.Amount
		insure := withInsurance && !s.IsInsured(caller, outcome)
		if insure && fan.Lt(s.FreeInsuranceThreshold) {
			premium = s.InsuranceFee
			if charge, err = charge.Add(premium); err != nil {
				return arith(err)
			}
		}

		tx.saveSeasonal(s)
		tx.saveStake(&s.Market, caller)
		if err := stake(&s.PotTotal, s.OutcomePots, s.Stakes, caller, outcome, s.EntryFee); err != nil {
			return err
		}
		if insure {
			tx.saveInsured(s, caller)
			flags := make([]bool, len(s.Outcomes))
			copy(flags, s.Insured[caller])
			flags[outcome] = true
			s.Insured[caller] = flags
		}
		if !premium.IsZero() {
			tx.saveMeta()
			if err := addTo(&tx.e.st.meta.FeesAccumulated, premium); err != nil {
				return err
			}
		}
		s.UpdatedAt = tx.now

		err = tx.guarded(domain.ScopeSeasonal, seasonalID, func() error {
			return tx.pull(ctx, tx.e.deps.Base, caller, charge)
		})
		if err != nil {
			return err
		}
		detail := "uninsured"
		if s.IsInsured(caller, outcome) {
			detail = "insured"
		}
		tx.emit(domain.Event{Kind: domain.EventSeasonalBetPlaced, Scope: domain.ScopeSeasonal, ID: seasonalID, Actor: caller, Outcome: outcome, Amount: charge, Detail: detail})
		return nil
	})
}

// TriggerVolatilityProtection reads the volatility oracle and, when the
// reading reaches the threshold, locks the base-to-secondary rate used for
// insured payouts. Anyone may call it once per check interval.
func (e *Engine) TriggerVolatilityProtection(ctx context.Context, caller common.Address, seasonalID uint64) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireUnpaused(); err != nil {
			return err
		}
		if err := tx.enter(domain.ScopeSeasonal, seasonalID); err != nil {
			return err
		}
		s, err := tx.seasonal(seasonalID)
		if err != nil {
			return err
		}
		if !s.Active() {
			return badState(msgArenaNotActive)
		}
		if s.ProtectionTriggered {
			return badState(msgProtectionTriggered)
		}
		if tx.now.Sub(s.LastVolatilityCheck) < tx.e.params.Seasonal.CheckInterval {
			return badState(msgCheckTooSoon)
		}
		if tx.e.deps.Volatility == nil {
			return badState(msgOracleUnavailable)
		}
		bps, err := tx.e.deps.Volatility.CurrentVolatilityBps(ctx)
		if err != nil {
			return &Error{Kind: KindState, Msg: msgOracleUnavailable, Cause: err}
		}
		if bps < tx.e.params.Seasonal.VolatilityThresholdBps {
			return badState(msgThresholdNotReached)
		}
		if tx.e.deps.Rates == nil || tx.e.deps.Secondary == nil {
			return badState(msgSecondaryUnavailable)
		}
		rate, err := tx.e.deps.Rates.BaseToSecondaryRate(ctx)
		if err != nil {
			return &Error{Kind: KindState, Msg: msgSecondaryUnavailable, Cause: err}
		}
		if rate.IsZero() {
			return badState(msgSecondaryUnavailable)
		}

		tx.saveSeasonal(s)
		s.LastVolatilityCheck = tx.now
		s.LastVolatilityBps = bps
		s.ProtectionTriggered = true
		s.LockedRate = rate
		s.UpdatedAt = tx.now
		tx.emit(domain.Event{Kind: domain.EventProtectionTriggered, Scope: domain.ScopeSeasonal, ID: seasonalID, Actor: caller, Amount: rate, Points: bps})
		return nil
	})
}

// ResolveSeasonal settles a seasonal market on the winning outcome and skims
// the platform fee. The operator may resolve at any time while it is active.
func (e *Engine) ResolveSeasonal(ctx context.Context, caller common.Address, seasonalID uint64, outcome int) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		if err := tx.enter(domain.ScopeSeasonal, seasonalID); err != nil {
			return err
		}
		s, err := tx.seasonal(seasonalID)
		if err != nil {
			return err
		}
		if !s.Active() {
			return badState(msgArenaNotActive)
		}
		if !s.ValidOutcome(outcome) {
			return invalid(msgInvalidOutcomeIndex)
		}
		fee, net, err := tx.e.params.Fees.Skim(s.PotTotal)
		if err != nil {
			return arith(err)
		}

		tx.saveSeasonal(s)
		tx.saveMeta()
		s.Status = domain.MarketResolved
		s.WinningOutcome = outcome
		s.ResolvedAt = tx.now
		s.FeeAmount = fee
		s.NetPot = net
		s.UpdatedAt = tx.now
		if err := addTo(&tx.e.st.meta.FeesAccumulated, fee); err != nil {
			return err
		}
		tx.emit(domain.Event{Kind: domain.EventSeasonalResolved, Scope: domain.ScopeSeasonal, ID: seasonalID, Actor: caller, Outcome: outcome, Amount: fee})
		return nil
	})
}

// ClaimSeasonalReward pays a winner of a resolved seasonal market. An insured
// winner of a protected market is paid partly in the secondary currency at
// the locked rate, out of the operator-funded reserve.
func (e *Engine) ClaimSeasonalReward(ctx context.Context, caller common.Address, seasonalID uint64) (domain.Payout, []domain.Event, error) {
	var payout domain.Payout
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireUnpaused(); err != nil {
			return err
		}
		if err := tx.enter(domain.ScopeSeasonal, seasonalID); err != nil {
			return err
		}
		s, err := tx.seasonal(seasonalID)
		if err != nil {
			return err
		}
		if s.Status != domain.MarketResolved {
			return badState(msgNotResolved)
		}
		winning := s.StakeOf(caller, s.WinningOutcome)
		if winning.IsZero() {
			return noEntitlement(msgNoWinningPosition, domain.ErrNoWinningStake)
		}
		if s.Settled[caller] != domain.SettlementNone {
			return noEntitlement(msgAlreadyClaimed, domain.ErrAlreadyClaimed)
		}

		p, converted, err := tx.seasonalGains(s, caller, winning)
		if err != nil {
			return err
		}
		gross, err := p.Base.Add(converted)
		if err != nil {
			return arith(err)
		}

		tx.saveSeasonal(s)
		tx.saveSettled(&s.Market, caller)
		s.Settled[caller] = domain.SettlementClaimed
		if err := addTo(&s.PaidOut, gross); err != nil {
			return err
		}
		if err := addTo(&s.ClaimedStake, winning); err != nil {
			return err
		}
		if p.Kind == domain.SplitCurrency {
			if p.Secondary.Gt(tx.e.st.meta.SecondaryReserve) {
				return noFunds(msgInsufficientReserve, nil)
			}
			tx.saveMeta()
			if err := subFrom(&tx.e.st.meta.SecondaryReserve, p.Secondary); err != nil {
				return err
			}
			if err := addTo(&tx.e.st.meta.FeesAccumulated, converted); err != nil {
				return err
			}
			if err := addTo(&s.SecondaryPaid, p.Secondary); err != nil {
				return err
			}
		}
		s.UpdatedAt = tx.now

		err = tx.guarded(domain.ScopeSeasonal, seasonalID, func() error {
			if err := tx.pay(ctx, tx.e.deps.Base, caller, p.Base); err != nil {
				return err
			}
			if p.Kind == domain.SplitCurrency {
				return tx.pay(ctx, tx.e.deps.Secondary, caller, p.Secondary)
			}
			return nil
		})
		if err != nil {
			return err
		}
		payout = p
		tx.emit(domain.Event{Kind: domain.EventSeasonalClaimed, Scope: domain.ScopeSeasonal, ID: seasonalID, Actor: caller, Outcome: s.WinningOutcome, Amount: p.Base, Secondary: p.Secondary, Detail: string(p.Kind)})
		return nil
	})
	if err != nil {
		return domain.Payout{}, nil, err
	}
	return payout, events, nil
}

// seasonalGains computes a seasonal payout. converted is the base amount
// exchanged for the secondary part and is zero for single-currency payouts.
func (tx *txn) seasonalGains(s *domain.SeasonalMarket, addr common.Address, winning amount.Amount) (domain.Payout, amount.Amount, error) {
	gross, err := fees.Share(winning, s.NetPot, s.OutcomePots[s.WinningOutcome], s.ClaimedStake, s.PaidOut)
	if err != nil {
		return domain.Payout{}, amount.Zero(), arith(err)
	}
	if !s.ProtectionTriggered || !s.IsInsured(addr, s.WinningOutcome) {
		return domain.Single(gross), amount.Zero(), nil
	}
	if tx.e.deps.Secondary == nil {
		return domain.Payout{}, amount.Zero(), badState(msgSecondaryUnavailable)
	}
	p, converted, err := fees.SplitPayout(gross, tx.e.params.Seasonal.SecondaryBps, s.LockedRate)
	if err != nil {
		return domain.Payout{}, amount.Zero(), arith(err)
	}
	return p, converted, nil
}

// FundReserve deposits secondary currency from the operator into the reserve
// that backs split payouts.
func (e *Engine) FundReserve(ctx context.Context, caller common.Address, amt amount.Amount) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		if tx.e.deps.Secondary == nil {
			return badState(msgSecondaryUnavailable)
		}
		if amt.IsZero() {
			return invalid(msgAmountNotPositive)
		}
		tx.saveMeta()
		if err := addTo(&tx.e.st.meta.SecondaryReserve, amt); err != nil {
			return err
		}
		err := tx.guarded(domain.ScopeEngine, 0, func() error {
			return tx.pull(ctx, tx.e.deps.Secondary, caller, amt)
		})
		if err != nil {
			return err
		}
		tx.emit(domain.Event{Kind: domain.EventReserveFunded, Scope: domain.ScopeEngine, Actor: caller, Secondary: amt})
		return nil
	})
}

// Pause stops seasonal entries, protection triggers and seasonal claims.
func (e *Engine) Pause(ctx context.Context, caller common.Address) ([]domain.Event, error) {
	return e.setPaused(ctx, caller, true)
}

// Unpause lifts a pause.
func (e *Engine) Unpause(ctx context.Context, caller common.Address) ([]domain.Event, error) {
	return e.setPaused(ctx, caller, false)
}

func (e *Engine) setPaused(ctx context.Context, caller common.Address, paused bool) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		if paused && tx.e.st.meta.Paused {
			return badState(msgPaused)
		}
		if !paused && !tx.e.st.meta.Paused {
			return badState(msgNotPaused)
		}
		tx.saveMeta()
		tx.e.st.meta.Paused = paused
		kind := domain.EventUnpaused
		if paused {
			kind = domain.EventPaused
		}
		tx.emit(domain.Event{Kind: kind, Scope: domain.ScopeEngine, Actor: caller})
		return nil
	})
}

// EmergencyWithdraw moves amt of either currency from custody to the
// operator. A secondary withdrawal draws the reserve down first.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller common.Address, currency Currency, amt amount.Amount) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		if amt.IsZero() {
			return invalid(msgAmountNotPositive)
		}
		var ledger domain.ValueLedger
		switch currency {
		case CurrencyBase:
			ledger = tx.e.deps.Base
		case CurrencySecondary:
			if tx.e.deps.Secondary == nil {
				return badState(msgSecondaryUnavailable)
			}
			ledger = tx.e.deps.Secondary
			tx.saveMeta()
			draw := amount.Min(amt, tx.e.st.meta.SecondaryReserve)
			if err := subFrom(&tx.e.st.meta.SecondaryReserve, draw); err != nil {
				return err
			}
		default:
			return invalid(msgUnknownCurrency)
		}
		err := tx.guarded(domain.ScopeEngine, 0, func() error {
			return tx.pay(ctx, ledger, caller, amt)
		})
		if err != nil {
			return err
		}
		ev := domain.Event{Kind: domain.EventEmergencyWithdrawal, Scope: domain.ScopeEngine, Actor: caller, Detail: string(currency)}
		if currency == CurrencySecondary {
			ev.Secondary = amt
		} else {
			ev.Amount = amt
		}
		tx.emit(ev)
		return nil
	})
}
