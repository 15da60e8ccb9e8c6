// Package statuscache memoizes expensive status probes for a short TTL.
//
// Each status read maps to one external process invocation; a polling UI
// would otherwise flood the control plane with identical calls. Entries older
// than the TTL are treated as absent and re-fetched. Mutating operations must
// call InvalidateAll so that the next read observes fresh state.
package statuscache

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultTTL is how long a fetched status value stays fresh.
const DefaultTTL = 5 * time.Second

type entry struct {
	fetchedAt time.Time
	value     any
}

// Cache is a TTL memoizer safe for concurrent readers and a concurrent
// invalidation. Failed fetches are never cached.
type Cache struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]entry
}

// New creates a cache with the given TTL, or DefaultTTL if ttl <= 0.
func New(clk clock.Clock, ttl time.Duration) *Cache {
	if clk == nil {
		clk = clock.New()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		clock:   clk,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key if it is younger than the TTL,
// otherwise invokes fetch and caches the result. Errors from fetch are
// returned without being cached.
func Get[T any](c *Cache, key string, fetch func() (T, error)) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && c.clock.Since(e.fetchedAt) < c.ttl {
		v := e.value.(T)
		c.mu.Unlock()
		return v, nil
	}
	c.mu.Unlock()

	// Fetch outside the lock; a status probe can take longer than the TTL
	// and must not block unrelated keys.
	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry{fetchedAt: c.clock.Now(), value: v}
	c.mu.Unlock()
	return v, nil
}

// InvalidateAll drops every entry. Called after any state-mutating operation;
// whole-cache invalidation is preferred over per-key precision.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}
