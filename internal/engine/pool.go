package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

// MarketSpec describes a market to create.
type MarketSpec struct {
	Title    string
	Category string
	Outcomes []string
	Deadline time.Time
	// ArenaEligible is honoured for operator-created markets only.
	ArenaEligible bool
}

// CreateMarket opens a user market. The creator pays the creation fee unless
// exempt and earns the creation points reward.
func (e *Engine) CreateMarket(ctx context.Context, creator common.Address, spec MarketSpec) (uint64, []domain.Event, error) {
	var id uint64
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		var err error
		id, err = tx.createMarket(ctx, creator, spec, false)
		return err
	})
	return id, events, err
}

// AdminCreateMarket opens an operator market with the longer deadline
// horizon, no creation fee and an optional arena flag.
func (e *Engine) AdminCreateMarket(ctx context.Context, caller common.Address, spec MarketSpec) (uint64, []domain.Event, error) {
	var id uint64
	events, err := e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		var err error
		id, err = tx.createMarket(ctx, caller, spec, true)
		return err
	})
	return id, events, err
}

func (tx *txn) createMarket(ctx context.Context, creator common.Address, spec MarketSpec, admin bool) (uint64, error) {
	p := tx.e.params
	if !admin && !tx.e.st.meta.UserCreationEnabled {
		return 0, badState(msgUserCreationOff)
	}
	horizon := p.UserMaxHorizon
	if admin {
		horizon = p.AdminMaxHorizon
	}
	if err := tx.validateMarket(spec.Title, spec.Category, spec.Outcomes, spec.Deadline, horizon); err != nil {
		return 0, err
	}

	paid := amount.Zero()
	if !admin {
		fan, err := tx.fanBalance(ctx, creator)
		if err != nil {
			return 0, err
		}
		charge, _ := p.Fees.CreationFee(tx.e.st.meta.CreationFee, fan)
		if !charge.IsZero() {
			bal, err := tx.e.deps.Base.BalanceOf(ctx, creator)
			if err != nil {
				return 0, noFunds(msgCreationFeeBalance, err)
			}
			if bal.Lt(charge) {
				return 0, noFunds(msgCreationFeeBalance, nil)
			}
			if err := tx.pull(ctx, tx.e.deps.Base, creator, charge); err != nil {
				return 0, err
			}
			tx.saveMeta()
			if err := addTo(&tx.e.st.meta.FeesAccumulated, charge); err != nil {
				return 0, err
			}
			paid = charge
		}
	}

	tx.saveMeta()
	id := tx.e.st.meta.NextMarketID
	tx.e.st.meta.NextMarketID++

	m := domain.NewMarket(id, strings.TrimSpace(spec.Title), strings.TrimSpace(spec.Category), spec.Outcomes, spec.Deadline, creator, tx.now)
	m.AdminCreated = admin
	m.ArenaEligible = admin && spec.ArenaEligible
	tx.e.st.markets[id] = &m
	tx.onUndo(func() { delete(tx.e.st.markets, id) })

	tx.emit(domain.Event{Kind: domain.EventMarketCreated, Scope: domain.ScopeMarket, ID: id, Actor: creator, Amount: paid, Detail: m.Title})
	if m.ArenaEligible {
		tx.emit(domain.Event{Kind: domain.EventArenaEligibilitySet, Scope: domain.ScopeMarket, ID: id, Actor: creator})
	}
	if !admin && p.CreationPoints > 0 {
		tx.creditPoints(creator, p.CreationPoints, "Market creation")
	}
	return id, nil
}

func (tx *txn) validateMarket(title, category string, outcomes []string, deadline time.Time, horizon time.Duration) error {
	p := tx.e.params
	if !deadline.After(tx.now) {
		return invalid(msgDeadlineTooSoon)
	}
	if deadline.Sub(tx.now) > horizon {
		return invalid(msgDeadlineTooFar)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(title)); n == 0 || n > p.MaxTitleLen {
		return invalid(msgInvalidTitle)
	}
	if utf8.RuneCountInString(category) > p.MaxCategoryLen {
		return invalid(msgInvalidCategory)
	}
	if len(outcomes) > p.MaxOutcomes {
		return invalid(msgTooManyOutcomes)
	}
	if len(outcomes) < p.MinOutcomes {
		return invalid(msgInvalidOutcome)
	}
	for _, o := range outcomes {
		if n := utf8.RuneCountInString(strings.TrimSpace(o)); n == 0 || n > p.MaxLabelLen {
			return invalid(msgInvalidOutcome)
		}
	}
	return nil
}

// PlaceBet stakes amt on an outcome. Repeated bets on the same outcome add
// to the existing position.
func (e *Engine) PlaceBet(ctx context.Context, bettor common.Address, marketID uint64, outcome int, amt amount.Amount) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.enter(domain.ScopeMarket, marketID); err != nil {
			return err
		}
		m, ok := tx.e.st.markets[marketID]
		if !ok {
			return notFound(msgMarketNotFound)
		}
		if m.Status != domain.MarketOpen {
			return badState(msgMarketNotOpen)
		}
		if !tx.now.Before(m.Deadline) {
			return badState(msgBettingClosed)
		}
		if !m.ValidOutcome(outcome) {
			return invalid(msgInvalidOutcomeIndex)
		}
		if amt.IsZero() {
			return invalid(msgAmountNotPositive)
		}

		tx.saveMarket(m)
		tx.saveStake(m, bettor)
		if err := stake(&m.PotTotal, m.OutcomePots, m.Stakes, bettor, outcome, amt); err != nil {
			return err
		}
		m.UpdatedAt = tx.now

		err := tx.guarded(domain.ScopeMarket, marketID, func() error {
			return tx.pull(ctx, tx.e.deps.Base, bettor, amt)
		})
		if err != nil {
			return err
		}
		tx.emit(domain.Event{Kind: domain.EventBetPlaced, Scope: domain.ScopeMarket, ID: marketID, Actor: bettor, Outcome: outcome, Amount: amt})
		return nil
	})
}

// stake adds amt to the pot, the outcome pot and the bettor's position.
func stake(pot *amount.Amount, outcomePots []amount.Amount, stakes map[common.Address][]amount.Amount, bettor common.Address, outcome int, amt amount.Amount) error {
	if err := addTo(pot, amt); err != nil {
		return err
	}
	if err := addTo(&outcomePots[outcome], amt); err != nil {
		return err
	}
	pos, ok := stakes[bettor]
	if !ok {
		pos = make([]amount.Amount, len(outcomePots))
	} else {
		pos = append([]amount.Amount(nil), pos...)
	}
	if err := addTo(&pos[outcome], amt); err != nil {
		return err
	}
	stakes[bettor] = pos
	return nil
}

// SetCreationFee changes the user creation fee. Zero disables it.
func (e *Engine) SetCreationFee(ctx context.Context, caller common.Address, fee amount.Amount) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		tx.saveMeta()
		tx.e.st.meta.CreationFee = fee
		tx.emit(domain.Event{Kind: domain.EventCreationFeeUpdated, Scope: domain.ScopeEngine, Actor: caller, Amount: fee})
		return nil
	})
}

// ToggleUserCreation enables or disables user-created markets.
func (e *Engine) ToggleUserCreation(ctx context.Context, caller common.Address, enabled bool) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		tx.saveMeta()
		tx.e.st.meta.UserCreationEnabled = enabled
		detail := "disabled"
		if enabled {
			detail = "enabled"
		}
		tx.emit(domain.Event{Kind: domain.EventUserCreationToggled, Scope: domain.ScopeEngine, Actor: caller, Detail: detail})
		return nil
	})
}

// AuthorizeResolver grants or revokes the resolver role.
func (e *Engine) AuthorizeResolver(ctx context.Context, caller, resolver common.Address, authorized bool) ([]domain.Event, error) {
	return e.run(ctx, func(ctx context.Context, tx *txn) error {
		if err := tx.requireOperator(caller); err != nil {
			return err
		}
		if resolver == (common.Address{}) {
			return invalid(msgInvalidRecipient)
		}
		was := tx.e.st.resolvers[resolver]
		tx.onUndo(func() {
			if was {
				tx.e.st.resolvers[resolver] = true
			} else {
				delete(tx.e.st.resolvers, resolver)
			}
		})
		if authorized {
			tx.e.st.resolvers[resolver] = true
		} else {
			delete(tx.e.st.resolvers, resolver)
		}
		detail := "revoked"
		if authorized {
			detail = "authorized"
		}
		tx.emit(domain.Event{Kind: domain.EventResolverAuthorized, Scope: domain.ScopeAccount, Actor: resolver, Detail: detail})
		return nil
	})
}
