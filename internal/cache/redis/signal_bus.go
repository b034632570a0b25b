package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/DIGIX666/Arena/internal/domain"
)

// EventStream is the durable stream every engine event is appended to.
const EventStream = "stream:arena:events"

// streamMaxLen caps the stream approximately via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// SignalBus implements domain.SignalBus. Pub/Sub carries live events and a
// stream keeps the recent history for replay.
type SignalBus struct {
	rdb *redis.Client
}

// NewSignalBus creates a SignalBus backed by the given Client.
func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying()}
}

// PublishEvent appends ev to EventStream, then publishes it with its stream
// id on the event's scope channel.
func (sb *SignalBus) PublishEvent(ctx context.Context, ev domain.Event) (string, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("redis: marshal event %s: %w", ev.Kind, err)
	}
	id, err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: EventStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redis: stream append %s: %w", ev.Kind, err)
	}

	msg, err := json.Marshal(domain.BusMessage{StreamID: id, Event: ev})
	if err != nil {
		return id, fmt.Errorf("redis: marshal bus message: %w", err)
	}
	if err := sb.rdb.Publish(ctx, ev.Channel(), msg).Err(); err != nil {
		return id, fmt.Errorf("redis: publish %s: %w", ev.Channel(), err)
	}
	return id, nil
}

// Subscribe follows pattern, which may be a glob such as "ch:arena:*".
// Messages that do not decode are skipped. The channel closes when ctx ends.
func (sb *SignalBus) Subscribe(ctx context.Context, pattern string) (<-chan domain.BusMessage, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(pattern, "*?[") {
		pubsub = sb.rdb.PSubscribe(ctx, pattern)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, pattern)
	}

	// Wait for the subscription confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", pattern, err)
	}

	out := make(chan domain.BusMessage, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-ch:
				if !ok {
					return
				}
				var msg domain.BusMessage
				if json.Unmarshal([]byte(raw.Payload), &msg) != nil {
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Replay reads up to count events recorded after afterID. "0" reads from the
// oldest entry still kept.
func (sb *SignalBus) Replay(ctx context.Context, afterID string, count int) ([]domain.BusMessage, error) {
	results, err := sb.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{EventStream, afterID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: replay after %s: %w", afterID, err)
	}

	var out []domain.BusMessage
	for _, s := range results {
		for _, entry := range s.Messages {
			ev, ok := decodeEntry(entry.Values["payload"])
			if !ok {
				continue
			}
			out = append(out, domain.BusMessage{StreamID: entry.ID, Event: ev})
		}
	}
	return out, nil
}

func decodeEntry(v any) (domain.Event, bool) {
	var raw []byte
	switch p := v.(type) {
	case string:
		raw = []byte(p)
	case []byte:
		raw = p
	default:
		return domain.Event{}, false
	}
	var ev domain.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return domain.Event{}, false
	}
	return ev, true
}

var _ domain.SignalBus = (*SignalBus)(nil)
