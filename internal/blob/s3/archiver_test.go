package s3blob_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/DIGIX666/Arena/internal/blob/s3"
	"github.com/DIGIX666/Arena/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	types   map[string]string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memBlobs) Put(_ context.Context, path string, body []byte, contentType string) error {
	m.objects[path] = append([]byte(nil), body...)
	m.types[path] = contentType
	return nil
}

func (m *memBlobs) Get(_ context.Context, path string) ([]byte, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

type settledMarkets []domain.Market

func (s settledMarkets) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Market, error) {
	var out []domain.Market
	for _, m := range s {
		if m.Status.Final() && m.UpdatedAt.Before(before) {
			out = append(out, m)
		}
	}
	return out, nil
}

type memAudit struct {
	entries []domain.AuditEntry
	logged  []string
	nextID  int64
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.logged = append(a.logged, event)
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return a.entries, nil
}

func (a *memAudit) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, e := range a.entries {
		if e.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (a *memAudit) DeleteThrough(_ context.Context, before time.Time, maxID int64) (int64, error) {
	var kept []domain.AuditEntry
	var n int64
	for _, e := range a.entries {
		if e.CreatedAt.Before(before) && e.ID <= maxID {
			n++
			continue
		}
		kept = append(kept, e)
	}
	a.entries = kept
	return n, nil
}

func (a *memAudit) add(event string, at time.Time) {
	a.nextID++
	a.entries = append(a.entries, domain.AuditEntry{ID: a.nextID, Event: event, CreatedAt: at})
}

func lines(t *testing.T, b []byte) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}

var t0 = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func market(id uint64, status domain.MarketStatus, updated time.Time) domain.Market {
	return domain.Market{ID: id, Title: "m", Status: status, UpdatedAt: updated}
}

func TestArchiveMarkets_OncePerMarket(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	markets := settledMarkets{
		market(0, domain.MarketResolved, t0.Add(-48*time.Hour)),
		market(1, domain.MarketCancelled, t0.Add(-2*time.Hour)),
		market(2, domain.MarketOpen, t0.Add(-48*time.Hour)),
		market(3, domain.MarketResolved, t0.Add(2*time.Hour)),
	}
	a := s3blob.NewArchiver(blobs, blobs, markets, audit, nil)
	ctx := context.Background()

	n, err := a.ArchiveMarkets(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	obj := blobs.objects["archive/markets/2026-02/20260210T000000Z.jsonl"]
	require.NotNil(t, obj)
	rows := lines(t, obj)
	require.Len(t, rows, 2)
	var first domain.Market
	require.NoError(t, json.Unmarshal([]byte(rows[0]), &first))
	assert.Equal(t, uint64(0), first.ID)
	assert.Equal(t, []string{"archive.markets"}, audit.logged)

	// A second run at the same cutoff is a no-op.
	n, err = a.ArchiveMarkets(ctx, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	// The next cutoff only picks up market 3.
	later := t0.Add(24 * time.Hour)
	n, err = a.ArchiveMarkets(ctx, later)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, lines(t, blobs.objects["archive/markets/2026-02/20260211T000000Z.jsonl"]), 1)
	assert.Equal(t, later.Format(time.RFC3339Nano), string(blobs.objects["archive/markets/_cursor"]))
}

func TestArchiveAudit_PrunesUploadedRows(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	audit.add("bet_placed", t0.Add(-3*time.Hour))
	audit.add("gains_claimed", t0.Add(-2*time.Hour))
	audit.add("bet_placed", t0.Add(time.Hour))

	a := s3blob.NewArchiver(blobs, blobs, settledMarkets{}, audit, audit)
	n, err := a.ArchiveAudit(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	obj := blobs.objects["archive/audit/2026-02/20260210T000000Z-1.jsonl"]
	assert.Len(t, lines(t, obj), 2)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, int64(3), audit.entries[0].ID)
	assert.Equal(t, "application/x-ndjson", blobs.types["archive/audit/2026-02/20260210T000000Z-1.jsonl"])

	n, err = a.ArchiveAudit(context.Background(), t0)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestArchiveAudit_WithoutPrunerStopsAfterOneBatch(t *testing.T) {
	blobs := newMemBlobs()
	audit := &memAudit{}
	audit.add("bet_placed", t0.Add(-time.Hour))

	a := s3blob.NewArchiver(blobs, blobs, settledMarkets{}, audit, nil)
	n, err := a.ArchiveAudit(context.Background(), t0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Len(t, audit.entries, 1)
}
