package engine

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"github.com/DIGIX666/Arena/internal/domain"
)

// Snapshot exports the full ledger state.
func (e *Engine) Snapshot() domain.LedgerSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snap := domain.LedgerSnapshot{
		Meta:   e.st.meta,
		Points: make(map[common.Address]uint64, len(e.st.points)),
	}
	for _, m := range e.st.markets {
		snap.Markets = append(snap.Markets, m.Clone())
	}
	sort.Slice(snap.Markets, func(i, j int) bool { return snap.Markets[i].ID < snap.Markets[j].ID })
	for _, s := range e.st.seasonal {
		snap.Seasonal = append(snap.Seasonal, s.Clone())
	}
	sort.Slice(snap.Seasonal, func(i, j int) bool { return snap.Seasonal[i].ID < snap.Seasonal[j].ID })
	for _, r := range e.st.raffles {
		snap.Raffles = append(snap.Raffles, r.Clone())
	}
	sort.Slice(snap.Raffles, func(i, j int) bool { return snap.Raffles[i].ID < snap.Raffles[j].ID })
	for _, c := range e.st.collectibles {
		snap.Collectibles = append(snap.Collectibles, c)
	}
	sort.Slice(snap.Collectibles, func(i, j int) bool { return snap.Collectibles[i].TokenID < snap.Collectibles[j].TokenID })
	for addr, n := range e.st.points {
		snap.Points[addr] = n
	}
	for addr := range e.st.resolvers {
		snap.Resolvers = append(snap.Resolvers, addr)
	}
	sort.Slice(snap.Resolvers, func(i, j int) bool { return bytes.Compare(snap.Resolvers[i][:], snap.Resolvers[j][:]) < 0 })
	return snap
}

// Restore replaces the ledger state with snap. It refuses snapshots whose
// pots do not add up or whose ids collide with the next-id counters.
func (e *Engine) Restore(snap domain.LedgerSnapshot) error {
	st := newState(snap.Meta)
	if st.meta.NextSeasonalID == 0 {
		st.meta.NextSeasonalID = 1
	}
	for _, m := range snap.Markets {
		if err := m.CheckPots(); err != nil {
			return fmt.Errorf("engine: restore: %w", err)
		}
		if m.ID >= st.meta.NextMarketID {
			return fmt.Errorf("engine: restore: market %d not below next id %d", m.ID, st.meta.NextMarketID)
		}
		c := m.Clone()
		st.markets[m.ID] = &c
	}
	for _, s := range snap.Seasonal {
		if err := s.CheckPots(); err != nil {
			return fmt.Errorf("engine: restore: seasonal: %w", err)
		}
		if s.ID >= st.meta.NextSeasonalID {
			return fmt.Errorf("engine: restore: seasonal %d not below next id %d", s.ID, st.meta.NextSeasonalID)
		}
		c := s.Clone()
		if c.Insured == nil {
			c.Insured = make(map[common.Address][]bool)
		}
		st.seasonal[s.ID] = &c
	}
	for _, r := range snap.Raffles {
		if r.ID >= st.meta.NextRaffleID {
			return fmt.Errorf("engine: restore: raffle %d not below next id %d", r.ID, st.meta.NextRaffleID)
		}
		c := r.Clone()
		st.raffles[r.ID] = &c
	}
	for _, c := range snap.Collectibles {
		st.collectibles[c.TokenID] = c
	}
	for addr, n := range snap.Points {
		st.points[addr] = n
	}
	for _, addr := range snap.Resolvers {
		st.resolvers[addr] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = st
	e.logger.Info("ledger restored",
		slog.Int("markets", len(st.markets)),
		slog.Int("seasonal", len(st.seasonal)),
		slog.Int("raffles", len(st.raffles)),
	)
	return nil
}
