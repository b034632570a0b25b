package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
	"github.com/DIGIX666/Arena/internal/engine"
	"github.com/DIGIX666/Arena/internal/oracle"
	"github.com/DIGIX666/Arena/internal/service"
	"github.com/DIGIX666/Arena/internal/token"
)

var (
	operator = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	custody  = common.HexToAddress("0x0000000000000000000000000000000000c0de")
	alice    = common.HexToAddress("0x00000000000000000000000000000000000a1ce")
	bob      = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func units(n uint64) amount.Amount { return amount.Units(n, amount.BaseDecimals) }

// ---------------------------------------------------------------------------
// fakes
// ---------------------------------------------------------------------------

type memStore struct {
	mu           sync.Mutex
	meta         *domain.EngineMeta
	markets      map[uint64]domain.Market
	seasonal     map[uint64]domain.SeasonalMarket
	raffles      map[uint64]domain.Raffle
	collectibles map[uint64]domain.Collectible
	points       map[common.Address]uint64
	resolvers    map[common.Address]bool
	failMeta     error
	snapshots    int
}

func newMemStore() *memStore {
	return &memStore{
		markets:      map[uint64]domain.Market{},
		seasonal:     map[uint64]domain.SeasonalMarket{},
		raffles:      map[uint64]domain.Raffle{},
		collectibles: map[uint64]domain.Collectible{},
		points:       map[common.Address]uint64{},
		resolvers:    map[common.Address]bool{},
	}
}

func (s *memStore) UpsertMarket(_ context.Context, m domain.Market) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markets[m.ID] = m.Clone()
	return nil
}

func (s *memStore) UpsertSeasonal(_ context.Context, sm domain.SeasonalMarket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seasonal[sm.ID] = sm.Clone()
	return nil
}

func (s *memStore) UpsertRaffle(_ context.Context, r domain.Raffle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.raffles[r.ID] = r.Clone()
	return nil
}

func (s *memStore) InsertCollectible(_ context.Context, c domain.Collectible) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collectibles[c.TokenID] = c
	return nil
}

func (s *memStore) SetPoints(_ context.Context, account common.Address, points uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[account] = points
	return nil
}

func (s *memStore) SetResolver(_ context.Context, account common.Address, authorized bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if authorized {
		s.resolvers[account] = true
	} else {
		delete(s.resolvers, account)
	}
	return nil
}

func (s *memStore) SaveMeta(_ context.Context, meta domain.EngineMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failMeta != nil {
		return s.failMeta
	}
	s.meta = &meta
	return nil
}

func (s *memStore) SaveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) error {
	s.snapshots++
	return s.SaveMeta(ctx, snap.Meta)
}

func (s *memStore) Load(context.Context) (domain.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var snap domain.LedgerSnapshot
	if s.meta != nil {
		snap.Meta = *s.meta
	}
	for _, m := range s.markets {
		snap.Markets = append(snap.Markets, m.Clone())
	}
	sort.Slice(snap.Markets, func(i, j int) bool { return snap.Markets[i].ID < snap.Markets[j].ID })
	for _, sm := range s.seasonal {
		snap.Seasonal = append(snap.Seasonal, sm.Clone())
	}
	for _, r := range s.raffles {
		snap.Raffles = append(snap.Raffles, r.Clone())
	}
	for _, c := range s.collectibles {
		snap.Collectibles = append(snap.Collectibles, c)
	}
	if len(s.points) > 0 {
		snap.Points = map[common.Address]uint64{}
		for a, p := range s.points {
			snap.Points[a] = p
		}
	}
	for a := range s.resolvers {
		snap.Resolvers = append(snap.Resolvers, a)
	}
	return snap, nil
}

// gatedStore holds the first UpsertMarket after arm until release closes.
type gatedStore struct {
	*memStore
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	g.armed = true
	g.mu.Unlock()
}

func (g *gatedStore) UpsertMarket(ctx context.Context, m domain.Market) error {
	g.mu.Lock()
	hold := g.armed
	g.armed = false
	g.mu.Unlock()
	if hold {
		close(g.entered)
		<-g.release
	}
	return g.memStore.UpsertMarket(ctx, m)
}

type memAudit struct {
	mu     sync.Mutex
	events []string
}

func (a *memAudit) Log(_ context.Context, event string, _ map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.AuditEntry, len(a.events))
	for i, e := range a.events {
		out[i] = domain.AuditEntry{ID: int64(i + 1), Event: e}
	}
	return out, nil
}

func (a *memAudit) ListBefore(context.Context, time.Time, int) ([]domain.AuditEntry, error) {
	return nil, nil
}

type memBus struct{ channels []string }

func (b *memBus) PublishEvent(_ context.Context, ev domain.Event) (string, error) {
	b.channels = append(b.channels, ev.Channel())
	return fmt.Sprintf("%d-0", len(b.channels)), nil
}

type memViews struct {
	data        map[string][]byte
	invalidated []string
}

func (v *memViews) Set(_ context.Context, key string, view []byte) error {
	v.data[key] = view
	return nil
}

func (v *memViews) Get(_ context.Context, key string) ([]byte, error) {
	if b, ok := v.data[key]; ok {
		return b, nil
	}
	return nil, domain.ErrNotFound
}

func (v *memViews) Invalidate(_ context.Context, key string) error {
	v.invalidated = append(v.invalidated, key)
	delete(v.data, key)
	return nil
}

type heldLock struct{ attempts int }

func (l *heldLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.attempts++
	return nil, domain.ErrLockHeld
}

type countingLock struct{ held, released int }

func (l *countingLock) Acquire(context.Context, string, time.Duration) (func(), error) {
	l.held++
	return func() { l.released++ }, nil
}

type memNotifier struct{ kinds []domain.EventKind }

func (n *memNotifier) NotifyEvent(_ context.Context, ev domain.Event) error {
	n.kinds = append(n.kinds, ev.Kind)
	return nil
}

// ---------------------------------------------------------------------------
// fixture
// ---------------------------------------------------------------------------

type memHoldings struct {
	books map[string]domain.Holdings
	saves int
}

func (h *memHoldings) SaveHoldings(_ context.Context, symbol string, books domain.Holdings) error {
	if h.books == nil {
		h.books = map[string]domain.Holdings{}
	}
	h.books[symbol] = books
	h.saves++
	return nil
}

func (h *memHoldings) LoadHoldings(_ context.Context, symbol string) (domain.Holdings, error) {
	books, ok := h.books[symbol]
	if !ok {
		return domain.Holdings{}, domain.ErrNotFound
	}
	return books, nil
}

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

type fixture struct {
	t     *testing.T
	ctx   context.Context
	clock *fakeClock
	base  *token.MemoryLedger
	fan   *token.MemoryLedger
	svc   *service.ArenaService
	opts  service.Options
}

func newEngine(t *testing.T, clock *fakeClock, base, fan *token.MemoryLedger) *engine.Engine {
	t.Helper()
	params := engine.DefaultParams()
	params.Operator = operator
	params.Custody = custody
	static := oracle.NewStatic(0, amount.MustParse("0.08", amount.SecondaryDecimals))
	eng, err := engine.New(params, engine.Deps{
		Base:       token.NewCustodian(base, custody),
		FanTokens:  fan,
		Volatility: static,
		Rates:      static,
		Clock:      clock,
	}, quietLogger())
	require.NoError(t, err)
	return eng
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newFixture(t *testing.T, opts service.Options) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		clock: &fakeClock{now: time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)},
		base:  token.NewMemoryLedger("CHZ", amount.BaseDecimals),
		fan:   token.NewMemoryLedger("FAN", amount.BaseDecimals),
		opts:  opts,
	}
	f.svc = service.NewArenaService(newEngine(t, f.clock, f.base, f.fan), opts, quietLogger())
	return f
}

func (f *fixture) fund(addr common.Address, amt amount.Amount) {
	f.t.Helper()
	require.NoError(f.t, f.base.Mint(addr, amt))
	require.NoError(f.t, f.base.Approve(addr, custody, amt))
}

func (f *fixture) adminMarket() uint64 {
	f.t.Helper()
	id, err := f.svc.AdminCreateMarket(f.ctx, operator, engine.MarketSpec{
		Title:    "PSG vs OM",
		Category: "football",
		Outcomes: []string{"PSG", "OM"},
		Deadline: f.clock.now.Add(time.Hour),
	})
	require.NoError(f.t, err)
	return id
}

// ---------------------------------------------------------------------------
// tests
// ---------------------------------------------------------------------------

func TestArenaService_PropagatesCommittedActions(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	bus := &memBus{}
	views := &memViews{data: map[string][]byte{}}
	locks := &countingLock{}
	notifier := &memNotifier{}
	f := newFixture(t, service.Options{
		Store: store, Audit: audit, Bus: bus, Views: views, Locks: locks, Notifier: notifier,
	})
	var seen []domain.EventKind
	f.svc.OnEvent(func(ev domain.Event) { seen = append(seen, ev.Kind) })

	id := f.adminMarket()
	f.fund(alice, units(10))
	events, err := f.svc.PlaceBet(f.ctx, alice, id, 0, units(10))
	require.NoError(t, err)
	require.Len(t, events, 1)

	stored, ok := store.markets[id]
	require.True(t, ok)
	assert.Equal(t, units(10), stored.PotTotal)
	require.NotNil(t, store.meta)
	assert.Equal(t, uint64(1), store.meta.NextMarketID)

	assert.Equal(t, []string{"market_created", "bet_placed"}, audit.events)
	assert.Equal(t, audit.events, kindsToStrings(seen))
	assert.Equal(t, seen, notifier.kinds)
	for _, ch := range bus.channels {
		assert.Equal(t, "ch:arena:market", ch)
	}
	assert.Contains(t, views.invalidated, "market:0")
	assert.Equal(t, 2, locks.held)
	assert.Equal(t, 2, locks.released)
}

func kindsToStrings(kinds []domain.EventKind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

func TestArenaService_RejectionHasNoSideEffects(t *testing.T) {
	store := newMemStore()
	audit := &memAudit{}
	locks := &countingLock{}
	f := newFixture(t, service.Options{Store: store, Audit: audit, Locks: locks})

	_, err := f.svc.PlaceBet(f.ctx, alice, 42, 0, units(1))
	require.Error(t, err)
	assert.Equal(t, engine.KindNotFound, engine.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Empty(t, audit.events)
	assert.Nil(t, store.meta)
	assert.Equal(t, 1, locks.released)
}

func TestArenaService_PersistFailureDoesNotFailAction(t *testing.T) {
	store := newMemStore()
	store.failMeta = errors.New("db down")
	f := newFixture(t, service.Options{Store: store})

	id := f.adminMarket()
	m, err := f.svc.Engine().Market(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketOpen, m.Status)
	assert.Contains(t, store.markets, id)
}

func TestArenaService_LockHeld(t *testing.T) {
	locks := &heldLock{}
	f := newFixture(t, service.Options{Locks: locks, LockWait: 60 * time.Millisecond})

	_, err := f.svc.AdminCreateMarket(f.ctx, operator, engine.MarketSpec{
		Title:    "PSG vs OM",
		Category: "football",
		Outcomes: []string{"PSG", "OM"},
		Deadline: f.clock.now.Add(time.Hour),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockHeld)
	assert.Greater(t, locks.attempts, 1)
	assert.Empty(t, f.svc.Engine().Markets(f.ctx))
}

func TestArenaService_RestoreRoundTrip(t *testing.T) {
	store := newMemStore()
	f := newFixture(t, service.Options{Store: store})

	require.NoError(t, f.svc.Restore(f.ctx))
	assert.Equal(t, 1, store.snapshots)

	id := f.adminMarket()
	f.fund(alice, units(4))
	f.fund(bob, units(6))
	_, err := f.svc.PlaceBet(f.ctx, alice, id, 0, units(4))
	require.NoError(t, err)
	_, err = f.svc.PlaceBet(f.ctx, bob, id, 1, units(6))
	require.NoError(t, err)
	_, err = f.svc.AuthorizeResolver(f.ctx, operator, bob, true)
	require.NoError(t, err)

	restarted := service.NewArenaService(newEngine(t, f.clock, f.base, f.fan), service.Options{Store: store}, quietLogger())
	require.NoError(t, restarted.Restore(f.ctx))
	assert.Equal(t, 1, store.snapshots)

	m, err := restarted.Engine().Market(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, units(10), m.PotTotal)
	assert.True(t, restarted.Engine().IsResolver(f.ctx, bob))
	assert.Equal(t, f.svc.Engine().Meta(f.ctx), restarted.Engine().Meta(f.ctx))
}

func TestArenaService_MarketViewCache(t *testing.T) {
	views := &memViews{data: map[string][]byte{}}
	f := newFixture(t, service.Options{Views: views})
	id := f.adminMarket()

	v, err := f.svc.MarketView(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "admin", v.Kind)
	require.Contains(t, views.data, "market:0")

	// Reads are served from the cache until the next action touches the
	// market.
	var cached domain.MarketView
	require.NoError(t, json.Unmarshal(views.data["market:0"], &cached))
	cached.Title = "from cache"
	raw, err := json.Marshal(cached)
	require.NoError(t, err)
	views.data["market:0"] = raw

	v, err = f.svc.MarketView(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "from cache", v.Title)

	f.fund(alice, units(1))
	_, err = f.svc.PlaceBet(f.ctx, alice, id, 1, units(1))
	require.NoError(t, err)
	v, err = f.svc.MarketView(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PSG vs OM", v.Title)
	assert.Equal(t, units(1), v.PotTotal)

	_, err = f.svc.MarketView(f.ctx, 99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArenaService_BalancesSurviveRestart(t *testing.T) {
	store := newMemStore()
	holdings := &memHoldings{}
	f := newFixture(t, service.Options{})
	f.fund(alice, units(10))

	// The genesis book is saved as-is when nothing is stored yet.
	f.svc = service.NewArenaService(f.svc.Engine(), service.Options{
		Store:    store,
		Holdings: holdings,
		Books:    []service.BalanceBook{f.base},
	}, quietLogger())
	require.NoError(t, f.svc.Restore(f.ctx))
	assert.Equal(t, units(10), holdings.books["CHZ"].Balances[alice])

	id := f.adminMarket()
	_, err := f.svc.PlaceBet(f.ctx, alice, id, 0, units(4))
	require.NoError(t, err)
	assert.Equal(t, units(4), holdings.books["CHZ"].Balances[custody])

	base := token.NewMemoryLedger("CHZ", amount.BaseDecimals)
	require.NoError(t, base.Mint(bob, units(1000)))
	restarted := service.NewArenaService(newEngine(t, f.clock, base, f.fan), service.Options{
		Store:    store,
		Holdings: holdings,
		Books:    []service.BalanceBook{base},
	}, quietLogger())
	require.NoError(t, restarted.Restore(f.ctx))

	bal, err := base.BalanceOf(f.ctx, custody)
	require.NoError(t, err)
	assert.Equal(t, units(4), bal)
	bal, err = base.BalanceOf(f.ctx, bob)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())
	assert.Equal(t, units(6), base.Allowance(alice, custody))
}

func TestArenaService_ConcurrentActionsPersistInOrder(t *testing.T) {
	store := &gatedStore{
		memStore: newMemStore(),
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	f := newFixture(t, service.Options{Store: store})
	id := f.adminMarket()
	f.fund(alice, units(10))
	f.fund(bob, units(20))
	store.arm()

	first := make(chan error, 1)
	go func() {
		_, err := f.svc.PlaceBet(f.ctx, alice, id, 0, units(10))
		first <- err
	}()
	<-store.entered

	second := make(chan error, 1)
	go func() {
		_, err := f.svc.PlaceBet(f.ctx, bob, id, 1, units(20))
		second <- err
	}()

	// The second action waits for the first one's writes.
	select {
	case err := <-second:
		t.Fatalf("second action finished while the first was still persisting: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	close(store.release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	store.mu.Lock()
	stored := store.markets[id]
	store.mu.Unlock()
	m, err := f.svc.Engine().Market(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, units(30), m.PotTotal)
	assert.Equal(t, m.PotTotal, stored.PotTotal)
}

func TestArenaService_ApproveCustodySavesAllowance(t *testing.T) {
	holdings := &memHoldings{}
	locks := &countingLock{}
	f := newFixture(t, service.Options{})
	f.svc = service.NewArenaService(f.svc.Engine(), service.Options{
		Holdings:   holdings,
		Books:      []service.BalanceBook{f.base},
		Locks:      locks,
		Allowances: map[engine.Currency]service.AllowanceBook{engine.CurrencyBase: f.base},
	}, quietLogger())
	require.NoError(t, f.base.Mint(bob, units(10)))

	id := f.adminMarket()
	_, err := f.svc.PlaceBet(f.ctx, bob, id, 0, units(3))
	assert.Equal(t, engine.KindFunds, engine.KindOf(err))

	allowance, err := f.svc.ApproveCustody(f.ctx, bob, engine.CurrencyBase, units(5))
	require.NoError(t, err)
	assert.Equal(t, units(5), allowance)
	assert.Equal(t, units(5), holdings.books["CHZ"].Allowances[bob][custody])
	assert.Equal(t, locks.held, locks.released)

	_, err = f.svc.PlaceBet(f.ctx, bob, id, 0, units(3))
	require.NoError(t, err)
	left, err := f.svc.CustodyAllowance(bob, engine.CurrencyBase)
	require.NoError(t, err)
	assert.Equal(t, units(2), left)

	_, err = f.svc.ApproveCustody(f.ctx, bob, engine.CurrencySecondary, units(1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
