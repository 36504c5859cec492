package storage

import (
	"context"
	"slices"
	"sync"
)

// cachedBackend decorates a Backend with a bounded read-through record
// cache. Loads and existence checks are served from memory after the first
// hit; writes go through to the inner backend and update the cache in the
// same call. Listings always go to the inner backend, which owns ordering.
//
// Entries evict in insertion order once the bound is reached. All methods
// are safe for concurrent use.
type cachedBackend struct {
	inner Backend

	mu      sync.Mutex
	entries map[string]Record
	order   []string
	max     int
}

// NewCachedBackend wraps inner with a read-through cache holding at most
// maxEntries records. A non-positive bound returns inner unwrapped.
func NewCachedBackend(inner Backend, maxEntries int) Backend {
	if maxEntries <= 0 {
		return inner
	}
	return &cachedBackend{
		inner:   inner,
		entries: make(map[string]Record, maxEntries),
		max:     maxEntries,
	}
}

func (c *cachedBackend) Save(ctx context.Context, rec Record) error {
	if err := c.inner.Save(ctx, rec); err != nil {
		return err
	}
	c.put(rec)
	return nil
}

func (c *cachedBackend) Load(ctx context.Context, id string) (Record, error) {
	c.mu.Lock()
	rec, hit := c.entries[id]
	c.mu.Unlock()
	if hit {
		return cloneRecord(rec), nil
	}

	rec, err := c.inner.Load(ctx, id)
	if err != nil {
		return Record{}, err
	}
	c.put(rec)
	return rec, nil
}

func (c *cachedBackend) Delete(ctx context.Context, id string) (bool, error) {
	ok, err := c.inner.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	c.drop(id)
	return ok, nil
}

func (c *cachedBackend) List(ctx context.Context, filter Filter) ([]Record, error) {
	return c.inner.List(ctx, filter)
}

func (c *cachedBackend) Exists(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	_, hit := c.entries[id]
	c.mu.Unlock()
	if hit {
		return true, nil
	}
	return c.inner.Exists(ctx, id)
}

func (c *cachedBackend) Close() error {
	c.mu.Lock()
	c.entries = make(map[string]Record)
	c.order = nil
	c.mu.Unlock()
	return c.inner.Close()
}

// put stores a defensive copy, evicting the oldest insertion when full.
func (c *cachedBackend) put(rec Record) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, present := c.entries[rec.ID]; !present {
		for len(c.entries) >= c.max {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.entries, oldest)
		}
		c.order = append(c.order, rec.ID)
	}
	c.entries[rec.ID] = cloneRecord(rec)
}

func (c *cachedBackend) drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, present := c.entries[id]; !present {
		return
	}
	delete(c.entries, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
}

func cloneRecord(rec Record) Record {
	rec.Blob = slices.Clone(rec.Blob)
	return rec
}
