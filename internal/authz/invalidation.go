package authz

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// InvalidationChannel is the redis pub/sub channel used to fan out cache
// invalidations across processes. The local synchronous invalidate is the
// correctness guarantee; the bus only shortens the staleness window of
// other instances below the cache TTL.
const InvalidationChannel = "sentra:authz:invalidate"

// Event kinds carried on the invalidation channel.
const (
	EventUser = "user"
	EventRole = "role"
)

// InvalidationEvent names what changed.
type InvalidationEvent struct {
	Kind   string `json:"kind"`
	UserID int64  `json:"user_id,omitempty"`
	Role   Role   `json:"role,omitempty"`
}

// Broadcaster publishes invalidation events to peer processes.
type Broadcaster interface {
	Broadcast(ctx context.Context, ev InvalidationEvent)
}

// RedisBus implements Broadcaster over redis pub/sub and applies received
// events to the local cache.
type RedisBus struct {
	client *redis.Client
	cache  *Cache
	logger *slog.Logger
}

// NewRedisBus constructs a bus bound to the given cache.
func NewRedisBus(client *redis.Client, cache *Cache, logger *slog.Logger) *RedisBus {
	return &RedisBus{client: client, cache: cache, logger: logger}
}

// Broadcast publishes the event. Best effort: a publish failure is logged,
// never surfaced, since the local cache was already invalidated.
func (b *RedisBus) Broadcast(ctx context.Context, ev InvalidationEvent) {
	if b == nil || b.client == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := b.client.Publish(ctx, InvalidationChannel, payload).Err(); err != nil && b.logger != nil {
		b.logger.Warn("invalidation broadcast", slog.Any("error", err))
	}
}

// Listen subscribes to the channel and applies events to the local cache
// until the context is cancelled. Re-applying an event published by this
// process is harmless.
func (b *RedisBus) Listen(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, InvalidationChannel)
	defer func() {
		_ = sub.Close()
	}()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.apply([]byte(msg.Payload))
		}
	}
}

func (b *RedisBus) apply(payload []byte) {
	var ev InvalidationEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		if b.logger != nil {
			b.logger.Warn("invalidation decode", slog.Any("error", err))
		}
		return
	}
	switch ev.Kind {
	case EventUser:
		b.cache.Invalidate(ev.UserID)
	case EventRole:
		// Affected users are not enumerable from the event; drop everything.
		b.cache.Purge()
	}
}
