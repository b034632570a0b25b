package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DIGIX666/Arena/internal/amount"
	"github.com/DIGIX666/Arena/internal/domain"
)

// ErrStaleReading is returned when an oracle hash is older than the allowed
// age.
var ErrStaleReading = errors.New("redis: stale oracle reading")

// Oracle implements domain.VolatilityOracle and domain.RateOracle from
// hashes written by an external feeder. Each key is a hash with fields
// "value" (decimal string) and "ts" (Unix nanoseconds).
type Oracle struct {
	rdb           *redis.Client
	volatilityKey string
	rateKey       string
	maxAge        time.Duration
	now           func() time.Time
}

// NewOracle reads volatility from volatilityKey and the base-to-secondary
// rate from rateKey. A positive maxAge rejects older readings.
func NewOracle(c *Client, volatilityKey, rateKey string, maxAge time.Duration) *Oracle {
	return &Oracle{
		rdb:           c.Underlying(),
		volatilityKey: volatilityKey,
		rateKey:       rateKey,
		maxAge:        maxAge,
		now:           time.Now,
	}
}

// CurrentVolatilityBps implements domain.VolatilityOracle.
func (o *Oracle) CurrentVolatilityBps(ctx context.Context) (uint64, error) {
	raw, err := o.read(ctx, o.volatilityKey)
	if err != nil {
		return 0, err
	}
	bps, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse volatility %q: %w", raw, err)
	}
	return bps, nil
}

// BaseToSecondaryRate implements domain.RateOracle. The stored value is a
// decimal in whole secondary units, e.g. "0.08".
func (o *Oracle) BaseToSecondaryRate(ctx context.Context) (amount.Amount, error) {
	raw, err := o.read(ctx, o.rateKey)
	if err != nil {
		return amount.Zero(), err
	}
	rate, err := amount.Parse(raw, amount.SecondaryDecimals)
	if err != nil {
		return amount.Zero(), fmt.Errorf("redis: parse rate %q: %w", raw, err)
	}
	return rate, nil
}

// SetVolatility writes a volatility reading stamped with ts.
func (o *Oracle) SetVolatility(ctx context.Context, bps uint64, ts time.Time) error {
	return o.write(ctx, o.volatilityKey, strconv.FormatUint(bps, 10), ts)
}

// SetRate writes a rate reading stamped with ts.
func (o *Oracle) SetRate(ctx context.Context, rate amount.Amount, ts time.Time) error {
	return o.write(ctx, o.rateKey, rate.Format(amount.SecondaryDecimals), ts)
}

func (o *Oracle) write(ctx context.Context, key, value string, ts time.Time) error {
	fields := map[string]any{
		"value": value,
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	}
	if err := o.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set oracle %s: %w", key, err)
	}
	return nil
}

func (o *Oracle) read(ctx context.Context, key string) (string, error) {
	vals, err := o.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("redis: get oracle %s: %w", key, err)
	}
	return checkReading(key, vals, o.now(), o.maxAge)
}

// checkReading validates a raw oracle hash and returns its value.
func checkReading(key string, vals map[string]string, now time.Time, maxAge time.Duration) (string, error) {
	value, ok := vals["value"]
	if !ok || value == "" {
		return "", fmt.Errorf("redis: oracle %s: %w", key, domain.ErrNotFound)
	}
	if maxAge <= 0 {
		return value, nil
	}
	nanos, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return "", fmt.Errorf("redis: oracle %s: parse ts: %w", key, err)
	}
	if age := now.Sub(time.Unix(0, nanos)); age > maxAge {
		return "", fmt.Errorf("%w: %s is %s old", ErrStaleReading, key, age.Truncate(time.Second))
	}
	return value, nil
}

var (
	_ domain.VolatilityOracle = (*Oracle)(nil)
	_ domain.RateOracle       = (*Oracle)(nil)
)
