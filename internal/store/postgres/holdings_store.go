package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DIGIX666/Arena/internal/domain"
)

// HoldingsStore implements domain.HoldingsStore on the token_ledgers table.
type HoldingsStore struct {
	pool *pgxpool.Pool
}

// NewHoldingsStore creates a HoldingsStore backed by the given pool.
func NewHoldingsStore(pool *pgxpool.Pool) *HoldingsStore {
	return &HoldingsStore{pool: pool}
}

// SaveHoldings replaces the stored book for symbol.
func (s *HoldingsStore) SaveHoldings(ctx context.Context, symbol string, h domain.Holdings) error {
	data, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("postgres: marshal holdings %s: %w", symbol, err)
	}
	const query = `
		INSERT INTO token_ledgers (symbol, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (symbol) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, symbol, data); err != nil {
		return fmt.Errorf("postgres: save holdings %s: %w", symbol, err)
	}
	return nil
}

// LoadHoldings reads the book for symbol.
func (s *HoldingsStore) LoadHoldings(ctx context.Context, symbol string) (domain.Holdings, error) {
	var (
		h    domain.Holdings
		data []byte
	)
	err := s.pool.QueryRow(ctx, `SELECT data FROM token_ledgers WHERE symbol = $1`, symbol).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return h, domain.ErrNotFound
	}
	if err != nil {
		return h, fmt.Errorf("postgres: load holdings %s: %w", symbol, err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("postgres: unmarshal holdings %s: %w", symbol, err)
	}
	return h, nil
}
