package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/domain"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/arena?sslmode=disable",
		DSN(ClientConfig{Host: "db", User: "u", Password: "p", Database: "arena"}))
	assert.Equal(t, "postgres://u:p@db:6543/arena?sslmode=require",
		DSN(ClientConfig{Host: "db", Port: 6543, User: "u", Password: "p", Database: "arena", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestMigrationNames(t *testing.T) {
	names, err := migrationNames()
	require.NoError(t, err)
	require.NotEmpty(t, names)
	assert.Equal(t, []string{"001_init.sql", "002_token_ledgers.sql"}, names)
}

func TestAuditListQuery(t *testing.T) {
	query, args := auditListQuery(domain.ListOpts{})
	assert.Equal(t, "SELECT id, event, detail, created_at FROM audit_log WHERE 1=1 ORDER BY created_at DESC, id DESC", query)
	assert.Empty(t, args)

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	query, args = auditListQuery(domain.ListOpts{Since: &since, Limit: 10, Offset: 20})
	assert.Contains(t, query, "AND created_at >= $1")
	assert.Contains(t, query, "LIMIT $2")
	assert.Contains(t, query, "OFFSET $3")
	assert.Equal(t, []any{since, 10, 20}, args)
}

func TestTouched(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at, touched(at))
	assert.False(t, touched(time.Time{}).IsZero())
}
