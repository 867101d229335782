package enginecache

import (
	"context"
	"sync/atomic"
	"testing"
)

// fakeEngine avoids dialing a real pgxpool in tests; enginecache only
// touches Engine through the exported fields, so a zero-value Pool
// plus a distinguishing dialect string is enough to tell instances
// apart.
func fakeEngine(tag string) *Engine {
	return &Engine{Dialect: tag}
}

func TestCache_AcquireCachesByKey(t *testing.T) {
	var dials int32
	c := New(4, func(ctx context.Context, connectionID int64) (*Engine, error) {
		atomic.AddInt32(&dials, 1)
		return fakeEngine("v1"), nil
	})

	e1, err := c.Acquire(context.Background(), 1, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e2, err := c.Acquire(context.Background(), 1, "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e1 != e2 {
		t.Fatalf("expected same cached engine instance")
	}
	if dials != 1 {
		t.Fatalf("expected exactly one dial, got %d", dials)
	}
}

func TestCache_VersionKeyChangeMisses(t *testing.T) {
	var dials int32
	c := New(4, func(ctx context.Context, connectionID int64) (*Engine, error) {
		n := atomic.AddInt32(&dials, 1)
		return fakeEngine(string(rune('a' + n))), nil
	})

	e1, _ := c.Acquire(context.Background(), 1, "v1")
	e2, _ := c.Acquire(context.Background(), 1, "v2")
	if e1 == e2 {
		t.Fatalf("expected a new engine for a different version key")
	}
	if dials != 2 {
		t.Fatalf("expected two dials, got %d", dials)
	}
}

func TestCache_FIFOEviction(t *testing.T) {
	var dials int32
	c := New(2, func(ctx context.Context, connectionID int64) (*Engine, error) {
		atomic.AddInt32(&dials, 1)
		return fakeEngine("x"), nil
	})

	if _, err := c.Acquire(context.Background(), 1, "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Acquire(context.Background(), 2, "v1"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}

	if _, err := c.Acquire(context.Background(), 3, "v1"); err != nil {
		t.Fatal(err)
	}
	if c.Len() != 2 {
		t.Fatalf("expected eviction to keep size at 2, got %d", c.Len())
	}

	// connection 1 was the first inserted; it should have been
	// evicted, so re-acquiring it dials again rather than hitting a
	// cached copy keyed under connection 3's slot.
	if _, err := c.Acquire(context.Background(), 1, "v1"); err != nil {
		t.Fatal(err)
	}
	if dials != 4 {
		t.Fatalf("expected re-acquiring evicted connection 1 to dial again (4 dials), got %d", dials)
	}
	if c.Len() != 2 {
		t.Fatalf("expected size to remain capped at 2, got %d", c.Len())
	}
}
