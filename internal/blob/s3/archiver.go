package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DIGIX666/Arena/internal/domain"
)

const (
	ndjson = "application/x-ndjson"

	// auditBatch bounds how many audit rows go into one archive object.
	auditBatch = 5000
)

// AuditPruner removes audit rows that have been archived. It is optional.
type AuditPruner interface {
	DeleteThrough(ctx context.Context, before time.Time, maxID int64) (int64, error)
}

// Archiver implements domain.Archiver. Settled markets and old audit
// entries are written as JSONL objects partitioned by month:
//
//	archive/markets/2026-01/20260131T000000Z.jsonl
//	archive/audit/2026-01/20260131T000000Z-1.jsonl
//
// Markets stay in the primary store; a cursor object records the last
// cutoff so each market is archived once. Audit rows are pruned after upload
// when a pruner is configured.
type Archiver struct {
	writer  domain.BlobWriter
	reader  domain.BlobReader
	markets domain.SettledMarketLister
	audit   domain.AuditStore
	pruner  AuditPruner
}

// NewArchiver creates an Archiver. pruner may be nil.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	markets domain.SettledMarketLister,
	audit domain.AuditStore,
	pruner AuditPruner,
) *Archiver {
	return &Archiver{
		writer:  writer,
		reader:  reader,
		markets: markets,
		audit:   audit,
		pruner:  pruner,
	}
}

const marketCursorPath = "archive/markets/_cursor"

// ArchiveMarkets uploads markets settled since the previous run and before
// the cutoff. It returns the number archived.
func (a *Archiver) ArchiveMarkets(ctx context.Context, before time.Time) (int64, error) {
	since, err := a.cursor(ctx)
	if err != nil {
		return 0, err
	}
	if !before.After(since) {
		return 0, nil
	}

	settled, err := a.markets.ListSettledBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	var batch []domain.Market
	for _, m := range settled {
		if !m.UpdatedAt.Before(since) {
			batch = append(batch, m)
		}
	}

	var count int64
	if len(batch) > 0 {
		path := archivePath("markets", before, "")
		if err := upload(ctx, a.writer, path, batch); err != nil {
			return 0, fmt.Errorf("s3blob: archive markets: %w", err)
		}
		count = int64(len(batch))
		if err := a.audit.Log(ctx, "archive.markets", map[string]any{
			"path":   path,
			"count":  count,
			"before": before.UTC().Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
		}
	}

	stamp := before.UTC().Format(time.RFC3339Nano)
	if err := a.writer.Put(ctx, marketCursorPath, []byte(stamp), "text/plain"); err != nil {
		return count, fmt.Errorf("s3blob: archive markets cursor: %w", err)
	}
	return count, nil
}

// ArchiveAudit uploads audit entries created before the cutoff in batches
// and prunes each batch once uploaded.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	for part := 1; ; part++ {
		entries, err := a.audit.ListBefore(ctx, before, auditBatch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive audit query: %w", err)
		}
		if len(entries) == 0 {
			return total, nil
		}

		path := archivePath("audit", before, fmt.Sprintf("-%d", part))
		if err := upload(ctx, a.writer, path, entries); err != nil {
			return total, fmt.Errorf("s3blob: archive audit: %w", err)
		}
		total += int64(len(entries))

		// Without a pruner the same rows would come back forever.
		if a.pruner == nil {
			return total, nil
		}
		if _, err := a.pruner.DeleteThrough(ctx, before, entries[len(entries)-1].ID); err != nil {
			return total, fmt.Errorf("s3blob: archive audit prune: %w", err)
		}
		if len(entries) < auditBatch {
			return total, nil
		}
	}
}

func (a *Archiver) cursor(ctx context.Context) (time.Time, error) {
	raw, err := a.reader.Get(ctx, marketCursorPath)
	if errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("s3blob: read market cursor: %w", err)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(raw)))
	if err != nil {
		return time.Time{}, fmt.Errorf("s3blob: parse market cursor: %w", err)
	}
	return t, nil
}

func upload[T any](ctx context.Context, w domain.BlobWriter, path string, records []T) error {
	buf, err := marshalJSONL(records)
	if err != nil {
		return err
	}
	return w.Put(ctx, path, buf, ndjson)
}

// archivePath builds the key for one archive object, partitioned by the
// month of the cutoff.
func archivePath(kind string, before time.Time, suffix string) string {
	before = before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s%s.jsonl",
		kind, before.Format("2006-01"), before.Format("20060102T150405Z"), suffix)
}

// marshalJSONL encodes records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
