package redis

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DIGIX666/Arena/internal/domain"
)

func TestCheckReading(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	stamp := func(d time.Duration) string { return strconv.FormatInt(now.Add(-d).UnixNano(), 10) }

	v, err := checkReading("vol", map[string]string{"value": "3500", "ts": stamp(time.Minute)}, now, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "3500", v)

	_, err = checkReading("vol", map[string]string{"value": "3500", "ts": stamp(time.Hour)}, now, 5*time.Minute)
	assert.ErrorIs(t, err, ErrStaleReading)

	v, err = checkReading("vol", map[string]string{"value": "0.08"}, now, 0)
	require.NoError(t, err)
	assert.Equal(t, "0.08", v)

	_, err = checkReading("vol", map[string]string{}, now, 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = checkReading("vol", map[string]string{"value": "1", "ts": "yesterday"}, now, time.Minute)
	assert.Error(t, err)
}

func TestKeysAreNamespaced(t *testing.T) {
	assert.Equal(t, "arena:lock:market:7", lockKey("market:7"))
	assert.Equal(t, "arena:ratelimit:ip:10.0.0.1", rateLimitKey("ip:10.0.0.1"))
	assert.Equal(t, "arena:view:market:7", viewKey("market:7"))
}

func TestPayloadBytes(t *testing.T) {
	b, ok := payloadBytes("abc")
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), b)

	b, ok = payloadBytes([]byte("xyz"))
	assert.True(t, ok)
	assert.Equal(t, []byte("xyz"), b)

	_, ok = payloadBytes(42)
	assert.False(t, ok)

	assert.True(t, hasPattern("ch:arena:*"))
	assert.False(t, hasPattern("ch:arena:market"))
}
