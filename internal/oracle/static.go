// Package oracle provides fixed volatility and rate readings for
// deployments without a live feed.
package oracle

import (
	"context"
	"sync"

	"github.com/DIGIX666/Arena/internal/amount"
)

// Static serves configured readings. Set replaces them at runtime.
type Static struct {
	mu            sync.RWMutex
	volatilityBps uint64
	rate          amount.Amount
}

// NewStatic returns an oracle reporting volatilityBps and rate.
func NewStatic(volatilityBps uint64, rate amount.Amount) *Static {
	return &Static{volatilityBps: volatilityBps, rate: rate}
}

// CurrentVolatilityBps implements domain.VolatilityOracle.
func (s *Static) CurrentVolatilityBps(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volatilityBps, nil
}

// BaseToSecondaryRate implements domain.RateOracle.
func (s *Static) BaseToSecondaryRate(context.Context) (amount.Amount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rate, nil
}

// SetVolatility replaces the volatility reading.
func (s *Static) SetVolatility(bps uint64) {
	s.mu.Lock()
	s.volatilityBps = bps
	s.mu.Unlock()
}

// SetRate replaces the rate reading.
func (s *Static) SetRate(rate amount.Amount) {
	s.mu.Lock()
	s.rate = rate
	s.mu.Unlock()
}
