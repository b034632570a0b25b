package domain

import (
	"context"
	"time"
)

// BlobWriter stores archive objects.
type BlobWriter interface {
	Put(ctx context.Context, path string, body []byte, contentType string) error
}

// BlobReader fetches archive objects. A missing object yields ErrNotFound.
type BlobReader interface {
	Get(ctx context.Context, path string) ([]byte, error)
}

// Archiver copies settled ledger data to cold storage. Both methods return
// how many records were written.
type Archiver interface {
	ArchiveMarkets(ctx context.Context, before time.Time) (int64, error)
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
