package asset

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache wraps a Resolver and remembers successful lookups. Concurrent
// requests for the same reference share a single underlying resolve, so
// jobs importing documents that share meshes read each file once.
// Misses are not cached; the asset may appear later.
type Cache struct {
	next Resolver

	mu      sync.RWMutex
	entries map[string][]byte
	flight  singleflight.Group
}

// NewCache returns a caching wrapper around next.
func NewCache(next Resolver) *Cache {
	return &Cache{next: next, entries: make(map[string][]byte)}
}

// Resolve implements Resolver. Returned slices are shared; callers must not
// modify them.
func (c *Cache) Resolve(ctx context.Context, ref string) ([]byte, error) {
	c.mu.RLock()
	b, ok := c.entries[ref]
	c.mu.RUnlock()
	if ok {
		return b, nil
	}

	v, err, _ := c.flight.Do(ref, func() (any, error) {
		b, err := c.next.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[ref] = b
		c.mu.Unlock()
		return b, nil
	})
	if err != nil {
		// A canceled leader must not fail other callers' lookups.
		if errors.Is(err, context.Canceled) && ctx.Err() == nil {
			return c.next.Resolve(ctx, ref)
		}
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string][]byte)
	c.mu.Unlock()
}
