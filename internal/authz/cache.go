package authz

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sentra-auth/sentra/internal/observability"
)

const (
	// DefaultCacheTTL bounds how long a resolved permission set may be served
	// without recomputation.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheSize bounds the number of users held in memory at once.
	DefaultCacheSize = 1024
)

// Cache holds resolved permission sets per user with a fixed TTL and a
// capacity bound. When full, the least recently used entry is dropped; this
// is a recency policy, not a guarantee about which user is evicted, and
// callers must treat any entry as evictable at any time.
//
// Cache operations never perform I/O and never fail. Entries are copied on
// the way in and out, so a Set racing an Invalidate leaves the entry either
// fully absent or fully fresh.
type Cache struct {
	lru     *expirable.LRU[int64, PermissionSet]
	metrics *observability.AuthzMetrics
}

// NewCache builds a cache with the given capacity and TTL. Zero values fall
// back to the defaults.
func NewCache(size int, ttl time.Duration, metrics *observability.AuthzMetrics) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		lru:     expirable.NewLRU[int64, PermissionSet](size, nil, ttl),
		metrics: metrics,
	}
}

// Get returns the cached permission set for the user, if present and fresh.
func (c *Cache) Get(userID int64) (PermissionSet, bool) {
	set, ok := c.lru.Get(userID)
	if !ok {
		if c.metrics != nil {
			c.metrics.CacheMisses.Inc()
		}
		return nil, false
	}
	if c.metrics != nil {
		c.metrics.CacheHits.Inc()
	}
	return set.Clone(), true
}

// Set stores the permission set for the user, stamped now.
func (c *Cache) Set(userID int64, set PermissionSet) {
	evicted := c.lru.Add(userID, set.Clone())
	if evicted && c.metrics != nil {
		c.metrics.CacheEvictions.Inc()
	}
}

// Invalidate removes the entry for the user. Every mutation that can change
// a user's effective permissions must call this before reporting success.
func (c *Cache) Invalidate(userID int64) {
	c.lru.Remove(userID)
}

// Purge drops every entry. Used after bulk role-permission edits, where the
// set of affected users is not enumerable cheaply.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len reports the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
