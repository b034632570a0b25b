package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists engine state entity by entity so that a restart can
// rebuild the engine with Load.
type LedgerStore interface {
	UpsertMarket(ctx context.Context, m Market) error
	UpsertSeasonal(ctx context.Context, s SeasonalMarket) error
	UpsertRaffle(ctx context.Context, r Raffle) error
	InsertCollectible(ctx context.Context, c Collectible) error
	SetPoints(ctx context.Context, account common.Address, points uint64) error
	SetResolver(ctx context.Context, account common.Address, authorized bool) error
	SaveMeta(ctx context.Context, meta EngineMeta) error
	Load(ctx context.Context) (LedgerSnapshot, error)
}

// SettledMarketLister lists finished markets for archiving.
type SettledMarketLister interface {
	ListSettledBefore(ctx context.Context, before time.Time) ([]Market, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
}
