package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DIGIX666/Arena/internal/domain"
)

// DefaultViewTTL bounds how long a rendered view may outlive its entity.
const DefaultViewTTL = 5 * time.Minute

// ViewCache implements domain.MarketViewCache. Views are stored as plain
// strings under "arena:view:{key}" with a TTL.
type ViewCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewViewCache creates a ViewCache. A non-positive ttl selects
// DefaultViewTTL.
func NewViewCache(c *Client, ttl time.Duration) *ViewCache {
	if ttl <= 0 {
		ttl = DefaultViewTTL
	}
	return &ViewCache{rdb: c.Underlying(), ttl: ttl}
}

func viewKey(key string) string { return keyPrefix + "view:" + key }

// Set stores view under key.
func (vc *ViewCache) Set(ctx context.Context, key string, view []byte) error {
	if err := vc.rdb.Set(ctx, viewKey(key), view, vc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set view %s: %w", key, err)
	}
	return nil
}

// Get returns the view under key or domain.ErrNotFound.
func (vc *ViewCache) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := vc.rdb.Get(ctx, viewKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("redis: get view %s: %w", key, err)
	}
	return data, nil
}

// Invalidate drops the view under key. Missing keys are not an error.
func (vc *ViewCache) Invalidate(ctx context.Context, key string) error {
	if err := vc.rdb.Del(ctx, viewKey(key)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate view %s: %w", key, err)
	}
	return nil
}

var _ domain.MarketViewCache = (*ViewCache)(nil)
