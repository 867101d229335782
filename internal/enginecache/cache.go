// Package enginecache keeps a process-wide pool of live database
// engines, keyed by (connection_id, version_key), so repeated
// orchestrations against the same connection reuse a warm pgxpool
// instead of dialing on every call.
package enginecache

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Engine is a pooled handle to one target database.
type Engine struct {
	Pool    *pgxpool.Pool
	Dialect string
}

func (e *Engine) Close() {
	if e.Pool != nil {
		e.Pool.Close()
	}
}

type key struct {
	connectionID int64
	versionKey   string
}

// Dialer constructs a new engine for a connection. It is invoked on a
// cache miss, outside the cache's lock, so a slow dial never blocks
// unrelated acquires.
type Dialer func(ctx context.Context, connectionID int64) (*Engine, error)

// Cache holds at most `size` engines; eviction is FIFO on first
// insert, not LRU, so a frequently-reused entry is no more protected
// from eviction than one touched once.
type Cache struct {
	mu       sync.Mutex
	size     int
	entries  map[key]*Engine
	order    []key
	dialer   Dialer
}

func New(size int, dialer Dialer) *Cache {
	if size <= 0 {
		size = 1
	}
	return &Cache{
		size:    size,
		entries: make(map[key]*Engine),
		dialer:  dialer,
	}
}

// Acquire returns the cached engine for (connectionID, versionKey),
// constructing and inserting one on a miss. versionKey is the
// connection's last-modified marker, so rotating credentials produces
// a new key and the stale engine is naturally abandoned (it stays
// cached under its old key until evicted, but is never looked up
// again).
func (c *Cache) Acquire(ctx context.Context, connectionID int64, versionKey string) (*Engine, error) {
	k := key{connectionID: connectionID, versionKey: versionKey}

	c.mu.Lock()
	if e, ok := c.entries[k]; ok {
		c.mu.Unlock()
		return e, nil
	}
	c.mu.Unlock()

	// Construct outside the lock: dialing is slow and must not block
	// unrelated acquires.
	engine, err := c.dialer(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("constructing engine for connection %d: %w", connectionID, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check: another goroutine may have inserted the same key
	// while we were dialing. Keep the winner, discard our copy.
	if e, ok := c.entries[k]; ok {
		engine.Close()
		return e, nil
	}

	c.entries[k] = engine
	c.order = append(c.order, k)
	if len(c.order) > c.size {
		oldest := c.order[0]
		c.order = c.order[1:]
		if stale, ok := c.entries[oldest]; ok {
			stale.Close()
			delete(c.entries, oldest)
		}
	}

	return engine, nil
}

// Len reports the number of cached engines. Exposed for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close closes every cached engine. Call on process shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.Close()
	}
	c.entries = make(map[key]*Engine)
	c.order = nil
}
