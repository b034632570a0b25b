// Package service runs engine actions for the process and fans their effects
// out to storage, the event bus, the view cache and notifications.
package service

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
	"github.com/DIGIX666/Arena/internal/engine"
)

// engineLock is the lock key every mutation takes.
const engineLock = "arena:engine"

const (
	defaultLockTTL  = 30 * time.Second
	defaultLockWait = 10 * time.Second
	lockPoll        = 25 * time.Millisecond
)

// EventNotifier forwards events to operators.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// EventPublisher publishes an event on its channel and the durable stream.
type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) (string, error)
}

// SnapshotSaver writes a full snapshot at once.
type SnapshotSaver interface {
	SaveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) error
}

// BalanceBook is an in-process currency whose balances are persisted with
// the ledger.
type BalanceBook interface {
	Symbol() string
	Export() domain.Holdings
	Import(h domain.Holdings) error
}

// AllowanceBook is an in-process currency whose holders approve the custody
// account themselves.
type AllowanceBook interface {
	Approve(owner, spender common.Address, amt amount.Amount) error
	Allowance(owner, spender common.Address) amount.Amount
}

// Options are the optional collaborators of ArenaService. Nil members are
// skipped.
type Options struct {
	Store    domain.LedgerStore
	Audit    domain.AuditStore
	Bus      EventPublisher
	Views    domain.MarketViewCache
	Locks    domain.LockManager
	Notifier EventNotifier

	// Books are saved to Holdings after every committed action.
	Books    []BalanceBook
	Holdings domain.HoldingsStore

	// Allowances are the books ApproveCustody may change, by currency.
	Allowances map[engine.Currency]AllowanceBook

	LockTTL  time.Duration
	LockWait time.Duration
}

// ArenaService serializes mutations across processes and propagates their
// events. The engine stays authoritative: a failure after the engine has
// committed is logged and does not fail the call.
type ArenaService struct {
	eng    *engine.Engine
	opts   Options
	logger *slog.Logger

	// commitMu orders actions within the process so each one's
	// post-commit writes land before the next action runs. The lock
	// manager extends the same ordering across processes.
	commitMu sync.Mutex

	mu        sync.RWMutex
	listeners []func(domain.Event)
}

// NewArenaService creates an ArenaService around eng.
func NewArenaService(eng *engine.Engine, opts Options, logger *slog.Logger) *ArenaService {
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.LockWait <= 0 {
		opts.LockWait = defaultLockWait
	}
	return &ArenaService{
		eng:    eng,
		opts:   opts,
		logger: logger.With(slog.String("component", "arena_service")),
	}
}

// Engine returns the wrapped engine for read-only queries.
func (s *ArenaService) Engine() *engine.Engine { return s.eng }

// OnEvent registers fn to receive every committed event in order.
func (s *ArenaService) OnEvent(fn func(domain.Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Restore loads the persisted ledger and balance books into the engine. An
// empty store is seeded with the engine's current state instead, and so is
// a book that was never saved.
func (s *ArenaService) Restore(ctx context.Context) error {
	if err := s.restoreBooks(ctx); err != nil {
		return err
	}
	if s.opts.Store == nil {
		return nil
	}
	snap, err := s.opts.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("arena_service: load ledger: %w", err)
	}
	if snap.Empty() {
		if err := s.seed(ctx); err != nil {
			return fmt.Errorf("arena_service: seed ledger: %w", err)
		}
		s.logger.InfoContext(ctx, "seeded empty ledger store")
		return nil
	}
	if err := s.eng.Restore(snap); err != nil {
		return fmt.Errorf("arena_service: restore ledger: %w", err)
	}
	s.logger.InfoContext(ctx, "restored ledger",
		slog.Int("markets", len(snap.Markets)),
		slog.Int("seasonal", len(snap.Seasonal)),
		slog.Int("raffles", len(snap.Raffles)),
		slog.Uint64("next_market_id", snap.Meta.NextMarketID),
	)
	return nil
}

func (s *ArenaService) restoreBooks(ctx context.Context) error {
	if s.opts.Holdings == nil {
		return nil
	}
	for _, book := range s.opts.Books {
		h, err := s.opts.Holdings.LoadHoldings(ctx, book.Symbol())
		if errors.Is(err, domain.ErrNotFound) {
			if err := s.opts.Holdings.SaveHoldings(ctx, book.Symbol(), book.Export()); err != nil {
				return fmt.Errorf("arena_service: seed %s balances: %w", book.Symbol(), err)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("arena_service: load %s balances: %w", book.Symbol(), err)
		}
		if err := s.eng.Exclusive(func() error { return book.Import(h) }); err != nil {
			return fmt.Errorf("arena_service: restore %s balances: %w", book.Symbol(), err)
		}
		s.logger.InfoContext(ctx, "restored balances",
			slog.String("symbol", book.Symbol()),
			slog.Int("accounts", len(h.Balances)),
		)
	}
	return nil
}

func (s *ArenaService) seed(ctx context.Context) error {
	snap := s.eng.Snapshot()
	if saver, ok := s.opts.Store.(SnapshotSaver); ok {
		return saver.SaveSnapshot(ctx, snap)
	}
	return s.opts.Store.SaveMeta(ctx, snap.Meta)
}

// do runs one engine action under the process and cross-process locks and
// propagates its events before releasing them.
func (s *ArenaService) do(ctx context.Context, action string, fn func(ctx context.Context) ([]domain.Event, error)) ([]domain.Event, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	unlock, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	events, err := fn(ctx)
	if err != nil {
		s.logger.DebugContext(ctx, "action rejected",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	s.propagate(ctx, action, events)
	return events, nil
}

func (s *ArenaService) acquire(ctx context.Context) (func(), error) {
	if s.opts.Locks == nil {
		return func() {}, nil
	}
	waitCtx, cancel := context.WithTimeout(ctx, s.opts.LockWait)
	defer cancel()
	for {
		unlock, err := s.opts.Locks.Acquire(waitCtx, engineLock, s.opts.LockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("arena_service: acquire lock: %w", err)
		}
		timer := time.NewTimer(lockPoll)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			return nil, fmt.Errorf("arena_service: acquire lock: %w", domain.ErrLockHeld)
		case <-timer.C:
		}
	}
}

// propagate runs the post-commit steps. Each step logs its own failures.
func (s *ArenaService) propagate(ctx context.Context, action string, events []domain.Event) {
	s.persist(ctx, events)
	s.saveBooks(ctx)
	for _, ev := range events {
		s.audit(ctx, ev)
		s.publish(ctx, ev)
	}
	s.invalidate(ctx, events)
	for _, ev := range events {
		s.notify(ctx, ev)
		s.dispatch(ev)
	}
	s.logger.InfoContext(ctx, "action committed",
		slog.String("action", action),
		slog.Int("events", len(events)),
	)
}

// touched collects the entities a batch of events changed.
type touched struct {
	markets      []uint64
	seasonal     []uint64
	raffles      []uint64
	collectibles []uint64
	accounts     []common.Address
	resolvers    []common.Address
}

func touchedBy(events []domain.Event) touched {
	var t touched
	seen := make(map[string]bool)
	once := func(kind string, key any) bool {
		k := fmt.Sprintf("%s/%v", kind, key)
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	}
	for _, ev := range events {
		switch ev.Scope {
		case domain.ScopeMarket:
			if once("market", ev.ID) {
				t.markets = append(t.markets, ev.ID)
			}
		case domain.ScopeSeasonal:
			if once("seasonal", ev.ID) {
				t.seasonal = append(t.seasonal, ev.ID)
			}
		case domain.ScopeRaffle:
			if once("raffle", ev.ID) {
				t.raffles = append(t.raffles, ev.ID)
			}
			if ev.Kind == domain.EventCollectibleMinted && once("collectible", ev.ID) {
				t.collectibles = append(t.collectibles, ev.ID)
			}
		case domain.ScopeAccount:
			if ev.Kind == domain.EventResolverAuthorized {
				if once("resolver", ev.Actor) {
					t.resolvers = append(t.resolvers, ev.Actor)
				}
			} else if once("account", ev.Actor) {
				t.accounts = append(t.accounts, ev.Actor)
			}
		}
	}
	return t
}

func (s *ArenaService) persist(ctx context.Context, events []domain.Event) {
	store := s.opts.Store
	if store == nil || len(events) == 0 {
		return
	}
	t := touchedBy(events)
	var errs []error
	for _, id := range t.markets {
		if m, err := s.eng.Market(ctx, id); err == nil {
			errs = append(errs, store.UpsertMarket(ctx, m))
		}
	}
	for _, id := range t.seasonal {
		if sm, err := s.eng.SeasonalMarket(ctx, id); err == nil {
			errs = append(errs, store.UpsertSeasonal(ctx, sm))
		}
	}
	for _, id := range t.raffles {
		if r, err := s.eng.Raffle(ctx, id); err == nil {
			errs = append(errs, store.UpsertRaffle(ctx, r))
		}
	}
	for _, id := range t.collectibles {
		if c, err := s.eng.Collectible(ctx, id); err == nil {
			errs = append(errs, store.InsertCollectible(ctx, c))
		}
	}
	for _, addr := range t.accounts {
		errs = append(errs, store.SetPoints(ctx, addr, s.eng.Points(ctx, addr)))
	}
	for _, addr := range t.resolvers {
		errs = append(errs, store.SetResolver(ctx, addr, s.eng.IsResolver(ctx, addr)))
	}
	errs = append(errs, store.SaveMeta(ctx, s.eng.Meta(ctx)))

	if err := errors.Join(errs...); err != nil {
		s.logger.ErrorContext(ctx, "persist failed", slog.String("error", err.Error()))
	}
}

func (s *ArenaService) saveBooks(ctx context.Context) {
	if s.opts.Holdings == nil {
		return
	}
	for _, book := range s.opts.Books {
		var h domain.Holdings
		_ = s.eng.Exclusive(func() error {
			h = book.Export()
			return nil
		})
		if err := s.opts.Holdings.SaveHoldings(ctx, book.Symbol(), h); err != nil {
			s.logger.ErrorContext(ctx, "save balances failed",
				slog.String("symbol", book.Symbol()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *ArenaService) audit(ctx context.Context, ev domain.Event) {
	if s.opts.Audit == nil {
		return
	}
	if err := s.opts.Audit.Log(ctx, string(ev.Kind), ev.Fields()); err != nil {
		s.logger.ErrorContext(ctx, "audit log failed",
			slog.String("event", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ArenaService) publish(ctx context.Context, ev domain.Event) {
	if s.opts.Bus == nil {
		return
	}
	if _, err := s.opts.Bus.PublishEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "publish failed",
			slog.String("event", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ArenaService) invalidate(ctx context.Context, events []domain.Event) {
	if s.opts.Views == nil {
		return
	}
	t := touchedBy(events)
	keys := make([]string, 0, len(t.markets)+len(t.seasonal))
	for _, id := range t.markets {
		keys = append(keys, marketViewKey(id))
	}
	for _, id := range t.seasonal {
		keys = append(keys, seasonalViewKey(id))
	}
	for _, k := range keys {
		if err := s.opts.Views.Invalidate(ctx, k); err != nil {
			// The entry expires on its own.
			s.logger.WarnContext(ctx, "view invalidate failed",
				slog.String("key", k),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *ArenaService) notify(ctx context.Context, ev domain.Event) {
	if s.opts.Notifier == nil {
		return
	}
	if err := s.opts.Notifier.NotifyEvent(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "notify failed",
			slog.String("event", string(ev.Kind)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ArenaService) dispatch(ev domain.Event) {
	s.mu.RLock()
	listeners := s.listeners
	s.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
