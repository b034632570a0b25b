package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/DIGIX666/Arena/internal/domain"
)

// LedgerStore implements domain.LedgerStore and domain.SettledMarketLister.
// Entities are stored as JSONB documents next to a few query columns.
type LedgerStore struct {
	pool *pgxpool.Pool
	q    querier
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool, q: pool}
}

// UpsertMarket inserts or replaces a market.
func (s *LedgerStore) UpsertMarket(ctx context.Context, m domain.Market) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("postgres: marshal market %d: %w", m.ID, err)
	}
	const query = `
		INSERT INTO markets (id, category, status, creator, deadline, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			data       = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`
	_, err = s.q.Exec(ctx, query,
		int64(m.ID), m.Category, string(m.Status), m.Creator.Hex(),
		m.Deadline, data, m.CreatedAt, touched(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}

// UpsertSeasonal inserts or replaces a seasonal market.
func (s *LedgerStore) UpsertSeasonal(ctx context.Context, sm domain.SeasonalMarket) error {
	data, err := json.Marshal(sm)
	if err != nil {
		return fmt.Errorf("postgres: marshal seasonal %d: %w", sm.ID, err)
	}
	const query = `
		INSERT INTO seasonal_markets (id, seasonal_type, status, deadline, data, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			status     = EXCLUDED.status,
			data       = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`
	_, err = s.q.Exec(ctx, query,
		int64(sm.ID), sm.SeasonalType.String(), string(sm.Status),
		sm.Deadline, data, sm.CreatedAt, touched(sm.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert seasonal %d: %w", sm.ID, err)
	}
	return nil
}

// UpsertRaffle inserts or replaces a raffle.
func (s *LedgerStore) UpsertRaffle(ctx context.Context, r domain.Raffle) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("postgres: marshal raffle %d: %w", r.ID, err)
	}
	const query = `
		INSERT INTO raffles (id, resolved, deadline, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			resolved = EXCLUDED.resolved,
			data     = EXCLUDED.data`
	_, err = s.q.Exec(ctx, query, int64(r.ID), r.Resolved, r.Deadline, data, r.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert raffle %d: %w", r.ID, err)
	}
	return nil
}

// InsertCollectible records a minted collectible. Collectibles are never
// transferred, so a second insert of the same token is a conflict.
func (s *LedgerStore) InsertCollectible(ctx context.Context, c domain.Collectible) error {
	const query = `
		INSERT INTO collectibles (token_id, owner, raffle_id, minted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (token_id) DO NOTHING`
	tag, err := s.q.Exec(ctx, query, int64(c.TokenID), c.Owner.Hex(), int64(c.RaffleID), c.MintedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert collectible %d: %w", c.TokenID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: insert collectible %d: %w", c.TokenID, domain.ErrAlreadyExists)
	}
	return nil
}

// SetPoints stores an account's point balance.
func (s *LedgerStore) SetPoints(ctx context.Context, account common.Address, points uint64) error {
	const query = `
		INSERT INTO points (account, points, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (account) DO UPDATE SET points = EXCLUDED.points, updated_at = NOW()`
	if _, err := s.q.Exec(ctx, query, account.Hex(), int64(points)); err != nil {
		return fmt.Errorf("postgres: set points %s: %w", account.Hex(), err)
	}
	return nil
}

// SetResolver grants or revokes resolver authorization.
func (s *LedgerStore) SetResolver(ctx context.Context, account common.Address, authorized bool) error {
	var err error
	if authorized {
		_, err = s.q.Exec(ctx, `INSERT INTO resolvers (account) VALUES ($1) ON CONFLICT (account) DO NOTHING`, account.Hex())
	} else {
		_, err = s.q.Exec(ctx, `DELETE FROM resolvers WHERE account = $1`, account.Hex())
	}
	if err != nil {
		return fmt.Errorf("postgres: set resolver %s: %w", account.Hex(), err)
	}
	return nil
}

// SaveMeta stores the engine scalars.
func (s *LedgerStore) SaveMeta(ctx context.Context, meta domain.EngineMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("postgres: marshal meta: %w", err)
	}
	const query = `
		INSERT INTO engine_meta (id, data, updated_at) VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`
	if _, err := s.q.Exec(ctx, query, data); err != nil {
		return fmt.Errorf("postgres: save meta: %w", err)
	}
	return nil
}

// SaveSnapshot writes a complete snapshot in one transaction.
func (s *LedgerStore) SaveSnapshot(ctx context.Context, snap domain.LedgerSnapshot) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		ts := &LedgerStore{pool: s.pool, q: tx}
		if err := ts.SaveMeta(ctx, snap.Meta); err != nil {
			return err
		}
		for _, m := range snap.Markets {
			if err := ts.UpsertMarket(ctx, m); err != nil {
				return err
			}
		}
		for _, sm := range snap.Seasonal {
			if err := ts.UpsertSeasonal(ctx, sm); err != nil {
				return err
			}
		}
		for _, r := range snap.Raffles {
			if err := ts.UpsertRaffle(ctx, r); err != nil {
				return err
			}
		}
		for _, c := range snap.Collectibles {
			if err := ts.InsertCollectible(ctx, c); err != nil && !errors.Is(err, domain.ErrAlreadyExists) {
				return err
			}
		}
		for account, points := range snap.Points {
			if err := ts.SetPoints(ctx, account, points); err != nil {
				return err
			}
		}
		for _, r := range snap.Resolvers {
			if err := ts.SetResolver(ctx, r, true); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the whole ledger back. An empty database yields an empty
// snapshot.
func (s *LedgerStore) Load(ctx context.Context) (domain.LedgerSnapshot, error) {
	var snap domain.LedgerSnapshot

	var metaJSON []byte
	err := s.q.QueryRow(ctx, `SELECT data FROM engine_meta WHERE id = 1`).Scan(&metaJSON)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return snap, fmt.Errorf("postgres: load meta: %w", err)
	default:
		if err := json.Unmarshal(metaJSON, &snap.Meta); err != nil {
			return snap, fmt.Errorf("postgres: unmarshal meta: %w", err)
		}
	}

	if snap.Markets, err = loadDocs[domain.Market](ctx, s.q, `SELECT data FROM markets ORDER BY id`); err != nil {
		return snap, fmt.Errorf("postgres: load markets: %w", err)
	}
	if snap.Seasonal, err = loadDocs[domain.SeasonalMarket](ctx, s.q, `SELECT data FROM seasonal_markets ORDER BY id`); err != nil {
		return snap, fmt.Errorf("postgres: load seasonal markets: %w", err)
	}
	if snap.Raffles, err = loadDocs[domain.Raffle](ctx, s.q, `SELECT data FROM raffles ORDER BY id`); err != nil {
		return snap, fmt.Errorf("postgres: load raffles: %w", err)
	}
	if snap.Collectibles, err = s.loadCollectibles(ctx); err != nil {
		return snap, err
	}
	if snap.Points, err = s.loadPoints(ctx); err != nil {
		return snap, err
	}
	if snap.Resolvers, err = s.loadResolvers(ctx); err != nil {
		return snap, err
	}
	return snap, nil
}

// ListSettledBefore returns resolved or cancelled markets last changed
// before the cutoff.
func (s *LedgerStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Market, error) {
	markets, err := loadDocs[domain.Market](ctx, s.q,
		`SELECT data FROM markets WHERE status IN ($1, $2) AND updated_at < $3 ORDER BY id`,
		string(domain.MarketResolved), string(domain.MarketCancelled), before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled markets: %w", err)
	}
	return markets, nil
}

func (s *LedgerStore) loadCollectibles(ctx context.Context) ([]domain.Collectible, error) {
	rows, err := s.q.Query(ctx, `SELECT token_id, owner, raffle_id, minted_at FROM collectibles ORDER BY token_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load collectibles: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Collectible, error) {
		var c domain.Collectible
		var tokenID, raffleID int64
		var owner string
		if err := row.Scan(&tokenID, &owner, &raffleID, &c.MintedAt); err != nil {
			return c, err
		}
		c.TokenID, c.RaffleID, c.Owner = uint64(tokenID), uint64(raffleID), common.HexToAddress(owner)
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan collectibles: %w", err)
	}
	return out, nil
}

func (s *LedgerStore) loadPoints(ctx context.Context) (map[common.Address]uint64, error) {
	rows, err := s.q.Query(ctx, `SELECT account, points FROM points WHERE points > 0`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load points: %w", err)
	}
	defer rows.Close()

	points := make(map[common.Address]uint64)
	for rows.Next() {
		var account string
		var n int64
		if err := rows.Scan(&account, &n); err != nil {
			return nil, fmt.Errorf("postgres: scan points: %w", err)
		}
		points[common.HexToAddress(account)] = uint64(n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load points rows: %w", err)
	}
	if len(points) == 0 {
		return nil, nil
	}
	return points, nil
}

func (s *LedgerStore) loadResolvers(ctx context.Context) ([]common.Address, error) {
	rows, err := s.q.Query(ctx, `SELECT account FROM resolvers ORDER BY account`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load resolvers: %w", err)
	}
	accounts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan resolvers: %w", err)
	}
	out := make([]common.Address, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, common.HexToAddress(a))
	}
	return out, nil
}

// loadDocs runs a single-column JSONB query and decodes every row into T.
func loadDocs[T any](ctx context.Context, q querier, query string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		var doc T
		var raw []byte
		if err := row.Scan(&raw); err != nil {
			return doc, err
		}
		return doc, json.Unmarshal(raw, &doc)
	})
}

// touched falls back to the current time for entities that were never
// stamped.
func touched(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

var (
	_ domain.LedgerStore         = (*LedgerStore)(nil)
	_ domain.SettledMarketLister = (*LedgerStore)(nil)
)
