package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func busFixture(t *testing.T) (*RedisBus, *Cache, context.Context) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(DefaultCacheSize, time.Minute, nil)
	bus := NewRedisBus(client, cache, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bus.Listen(ctx) }()
	// Give the subscriber a moment to attach before anything publishes.
	time.Sleep(50 * time.Millisecond)

	return bus, cache, ctx
}

func TestRedisBusUserEventInvalidatesEntry(t *testing.T) {
	bus, cache, ctx := busFixture(t)

	cache.Set(7, NewPermissionSet(PermCreatePost))
	cache.Set(8, NewPermissionSet(PermCreatePost))

	bus.Broadcast(ctx, InvalidationEvent{Kind: EventUser, UserID: 7})
	require.Eventually(t, func() bool {
		_, ok := cache.Get(7)
		return !ok
	}, 2*time.Second, 10*time.Millisecond, "entry for user 7 never invalidated")

	_, ok := cache.Get(8)
	require.True(t, ok, "unrelated entry must survive a user event")
}

func TestRedisBusRoleEventPurges(t *testing.T) {
	bus, cache, ctx := busFixture(t)

	cache.Set(7, NewPermissionSet(PermCreatePost))
	cache.Set(8, NewPermissionSet(PermCreatePost))

	bus.Broadcast(ctx, InvalidationEvent{Kind: EventRole, Role: RoleModerator})
	require.Eventually(t, func() bool {
		return cache.Len() == 0
	}, 2*time.Second, 10*time.Millisecond, "role event must purge every entry")
}

func TestRedisBusIgnoresMalformedPayload(t *testing.T) {
	bus, cache, _ := busFixture(t)

	cache.Set(7, NewPermissionSet(PermCreatePost))
	bus.apply([]byte("{not json"))
	bus.apply([]byte(`{"kind":"unknown"}`))

	_, ok := cache.Get(7)
	require.True(t, ok, "malformed events must not disturb the cache")
}

func TestBroadcastSurvivesDeadRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cache := NewCache(DefaultCacheSize, time.Minute, nil)
	bus := NewRedisBus(client, cache, nil)

	mr.Close()
	// Best effort: a publish failure must not panic or surface.
	bus.Broadcast(context.Background(), InvalidationEvent{Kind: EventUser, UserID: 7})
}
