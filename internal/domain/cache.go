package domain

import (
	"context"
	"time"
)

// MarketViewCache caches serialized market and seasonal read models by key.
type MarketViewCache interface {
	Set(ctx context.Context, key string, view []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Invalidate(ctx context.Context, key string) error
}

// RateLimiter admits at most limit calls per key and window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager hands out the cross-process action lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// BusMessage is an event as carried by the bus, tagged with its id in the
// durable event stream. Clients resume a feed from the last id they saw.
type BusMessage struct {
	StreamID string `json:"stream_id"`
	Event    Event  `json:"event"`
}

// SignalBus fans committed events out to every process and keeps a bounded
// durable history of them.
type SignalBus interface {
	// PublishEvent appends ev to the stream and publishes it on its
	// scope channel. It returns the stream id.
	PublishEvent(ctx context.Context, ev Event) (string, error)
	// Subscribe follows live events on a channel or glob pattern until
	// ctx ends.
	Subscribe(ctx context.Context, pattern string) (<-chan BusMessage, error)
	// Replay returns up to count stream entries after afterID.
	Replay(ctx context.Context, afterID string, count int) ([]BusMessage, error)
}
