// Package engine is the settlement ledger: market pools, the resolution state
// machine, payouts, the voucher raffle and seasonal volatility protection.
//
// Actions are serialized. Each one reads the clock once, runs to completion,
// and either commits every state change and ledger transfer it made or rolls
// all of them back. A ledger that calls back into the engine while an action
// is transferring joins that action's transaction; a callback that targets a
// market whose transfer is in flight is rejected.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

// Deps are the external collaborators the engine calls.
type Deps struct {
	// Base is the currency stakes, fees and payouts are denominated in.
	Base domain.ValueLedger
	// Secondary is the stable currency for split payouts. It may be nil when
	// seasonal split payouts are not used.
	Secondary  domain.ValueLedger
	FanTokens  domain.BalanceReader
	Volatility domain.VolatilityOracle
	Rates      domain.RateOracle
	Vouchers   domain.VoucherVerifier
	Clock      domain.Clock
}

type state struct {
	meta         domain.EngineMeta
	markets      map[uint64]*domain.Market
	seasonal     map[uint64]*domain.SeasonalMarket
	raffles      map[uint64]*domain.Raffle
	collectibles map[uint64]domain.Collectible
	points       map[common.Address]uint64
	resolvers    map[common.Address]bool
}

type guardKey struct {
	scope domain.Scope
	id    uint64
}

// Engine owns the ledger state.
type Engine struct {
	params Params
	deps   Deps
	logger *slog.Logger

	mu     sync.RWMutex
	st     *state
	guards map[guardKey]struct{}
}

// New returns an engine with empty state. Seasonal ids start at 1; market and
// raffle ids start at 0.
func New(params Params, deps Deps, logger *slog.Logger) (*Engine, error) {
	if deps.Base == nil {
		return nil, errors.New("engine: base ledger is required")
	}
	if deps.FanTokens == nil {
		return nil, errors.New("engine: fan token reader is required")
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		params: params,
		deps:   deps,
		logger: logger.With(slog.String("component", "engine")),
		guards: make(map[guardKey]struct{}),
	}
	e.st = newState(domain.EngineMeta{
		NextSeasonalID:      1,
		CreationFee:         params.CreationFee,
		UserCreationEnabled: params.UserCreationEnabled,
	})
	return e, nil
}

func newState(meta domain.EngineMeta) *state {
	return &state{
		meta:         meta,
		markets:      make(map[uint64]*domain.Market),
		seasonal:     make(map[uint64]*domain.SeasonalMarket),
		raffles:      make(map[uint64]*domain.Raffle),
		collectibles: make(map[uint64]domain.Collectible),
		points:       make(map[common.Address]uint64),
		resolvers:    make(map[common.Address]bool),
	}
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.params }

// Exclusive runs fn while no action is in flight. Code that mutates a
// checkpointing ledger outside an action must go through here.
func (e *Engine) Exclusive(fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn()
}

// --------------------------------------------------------------------------
// Transactions
// --------------------------------------------------------------------------

type txKey struct{}

type txn struct {
	e       *Engine
	now     time.Time
	undo    []func()
	commits []func()
	events  []domain.Event
}

type savepoint struct {
	undo   int
	events int
}

// run executes fn as one atomic action. A call made from inside another
// action (through a ledger callback) joins the outer transaction at a
// savepoint instead of waiting for the lock.
func (e *Engine) run(ctx context.Context, fn func(ctx context.Context, tx *txn) error) ([]domain.Event, error) {
	if outer, ok := ctx.Value(txKey{}).(*txn); ok && outer.e == e {
		sp := outer.savepoint()
		if err := fn(ctx, outer); err != nil {
			outer.rollbackTo(sp)
			return nil, err
		}
		return append([]domain.Event(nil), outer.events[sp.events:]...), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	tx := &txn{e: e, now: e.deps.Clock.Now()}
	sp := tx.savepoint()
	ctx = context.WithValue(ctx, txKey{}, tx)
	if err := fn(ctx, tx); err != nil {
		tx.rollbackTo(sp)
		return nil, err
	}
	for i := len(tx.commits) - 1; i >= 0; i-- {
		tx.commits[i]()
	}
	return tx.events, nil
}

// savepoint marks the journal and checkpoints every ledger that supports it.
func (tx *txn) savepoint() savepoint {
	sp := savepoint{undo: len(tx.undo), events: len(tx.events)}
	var seen []domain.ValueLedger
	for _, l := range []domain.ValueLedger{tx.e.deps.Base, tx.e.deps.Secondary} {
		if l == nil || containsLedger(seen, l) {
			continue
		}
		seen = append(seen, l)
		if cp, ok := l.(domain.Checkpointer); ok {
			rollback, commit := cp.Checkpoint()
			tx.onUndo(rollback)
			tx.commits = append(tx.commits, commit)
		}
	}
	return sp
}

func containsLedger(ls []domain.ValueLedger, l domain.ValueLedger) bool {
	for _, x := range ls {
		if x == l {
			return true
		}
	}
	return false
}

func (tx *txn) rollbackTo(sp savepoint) {
	for i := len(tx.undo) - 1; i >= sp.undo; i-- {
		tx.undo[i]()
	}
	tx.undo = tx.undo[:sp.undo]
	tx.events = tx.events[:sp.events]
}

func (tx *txn) onUndo(f func()) { tx.undo = append(tx.undo, f) }

func (tx *txn) emit(ev domain.Event) {
	ev.At = tx.now
	tx.events = append(tx.events, ev)
}

// enter rejects the call when a transfer for the same entity is in flight.
func (tx *txn) enter(scope domain.Scope, id uint64) error {
	if _, held := tx.e.guards[guardKey{scope, id}]; held {
		return reentrant()
	}
	return nil
}

// guarded runs fn with the entity's reentrancy guard held.
func (tx *txn) guarded(scope domain.Scope, id uint64, fn func() error) error {
	k := guardKey{scope, id}
	if _, held := tx.e.guards[k]; held {
		return reentrant()
	}
	tx.e.guards[k] = struct{}{}
	defer delete(tx.e.guards, k)
	return fn()
}

func (tx *txn) saveMeta() {
	old := tx.e.st.meta
	tx.onUndo(func() { tx.e.st.meta = old })
}

// saveMarket journals the market's scalar fields and outcome pots. Stake and
// settlement maps are journaled per participant.
func (tx *txn) saveMarket(m *domain.Market) {
	h := *m
	h.OutcomePots = append([]amount.Amount(nil), m.OutcomePots...)
	tx.onUndo(func() {
		stakes, settled := m.Stakes, m.Settled
		*m = h
		m.Stakes, m.Settled = stakes, settled
	})
}

func (tx *txn) saveStake(m *domain.Market, addr common.Address) {
	old, had := m.Stakes[addr]
	old = append([]amount.Amount(nil), old...)
	tx.onUndo(func() {
		if had {
			m.Stakes[addr] = old
		} else {
			delete(m.Stakes, addr)
		}
	})
}

func (tx *txn) saveSettled(m *domain.Market, addr common.Address) {
	old, had := m.Settled[addr]
	tx.onUndo(func() {
		if had {
			m.Settled[addr] = old
		} else {
			delete(m.Settled, addr)
		}
	})
}

func (tx *txn) saveSeasonal(s *domain.SeasonalMarket) {
	h := *s
	h.OutcomePots = append([]amount.Amount(nil), s.OutcomePots...)
	tx.onUndo(func() {
		stakes, settled, insured := s.Stakes, s.Settled, s.Insured
		*s = h
		s.Stakes, s.Settled, s.Insured = stakes, settled, insured
	})
}

func (tx *txn) saveInsured(s *domain.SeasonalMarket, addr common.Address) {
	old, had := s.Insured[addr]
	old = append([]bool(nil), old...)
	tx.onUndo(func() {
		if had {
			s.Insured[addr] = old
		} else {
			delete(s.Insured, addr)
		}
	})
}

func (tx *txn) saveRaffle(r *domain.Raffle) {
	c := r.Clone()
	tx.onUndo(func() { *r = c })
}

func (tx *txn) savePoints(addr common.Address) {
	old, had := tx.e.st.points[addr]
	tx.onUndo(func() {
		if had {
			tx.e.st.points[addr] = old
		} else {
			delete(tx.e.st.points, addr)
		}
	})
}

// --------------------------------------------------------------------------
// Shared helpers
// --------------------------------------------------------------------------

func (tx *txn) requireOperator(caller common.Address) error {
	if caller != tx.e.params.Operator {
		return forbidden(msgNotOperator)
	}
	return nil
}

// pull moves amt from a participant into custody.
func (tx *txn) pull(ctx context.Context, l domain.ValueLedger, from common.Address, amt amount.Amount) error {
	if err := l.TransferFrom(ctx, from, tx.e.params.Custody, amt); err != nil {
		return transferError(err)
	}
	return nil
}

// pay moves amt out of custody.
func (tx *txn) pay(ctx context.Context, l domain.ValueLedger, to common.Address, amt amount.Amount) error {
	if amt.IsZero() {
		return nil
	}
	if err := l.Transfer(ctx, to, amt); err != nil {
		return transferError(err)
	}
	return nil
}

// transferError keeps engine rejections raised by a reentrant callback and
// classifies everything else as a funds failure.
func transferError(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return noFunds(msgTransferFailed, err)
}

func (tx *txn) fanBalance(ctx context.Context, addr common.Address) (amount.Amount, error) {
	bal, err := tx.e.deps.FanTokens.BalanceOf(ctx, addr)
	if err != nil {
		return amount.Zero(), fmt.Errorf("engine: fan token balance: %w", err)
	}
	return bal, nil
}

func (tx *txn) creditPoints(addr common.Address, n uint64, reason string) {
	tx.savePoints(addr)
	tx.e.st.points[addr] += n
	tx.emit(domain.Event{Kind: domain.EventPointsCredited, Scope: domain.ScopeAccount, Actor: addr, Points: n, Detail: reason})
}

func addTo(dst *amount.Amount, v amount.Amount) error {
	sum, err := dst.Add(v)
	if err != nil {
		return arith(err)
	}
	*dst = sum
	return nil
}

func subFrom(dst *amount.Amount, v amount.Amount) error {
	diff, err := dst.Sub(v)
	if err != nil {
		return arith(err)
	}
	*dst = diff
	return nil
}
