package storage

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// memoryBackend implements Backend with an in-process map. Records do not
// survive process restarts - suitable for development, testing, and
// workloads where the audit trail is advisory.
type memoryBackend struct {
	records map[string]Record
	mu      sync.RWMutex
}

// NewMemoryBackend creates a Backend backed by process memory.
func NewMemoryBackend() Backend {
	return &memoryBackend{
		records: make(map[string]Record),
	}
}

func (m *memoryBackend) Save(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.Blob = slices.Clone(rec.Blob)
	m.records[rec.ID] = rec
	return nil
}

func (m *memoryBackend) Load(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, exists := m.records[id]
	if !exists {
		return Record{}, opError("memory", "load", ErrNotFound)
	}
	rec.Blob = slices.Clone(rec.Blob)
	return rec, nil
}

func (m *memoryBackend) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.records[id]; !exists {
		return false, nil
	}
	delete(m.records, id)
	return true, nil
}

func (m *memoryBackend) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	matched := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if f.Matches(rec) {
			rec.Blob = slices.Clone(rec.Blob)
			matched = append(matched, rec)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if f.Order == OrderNewestFirst {
			return Older(matched[j], matched[i])
		}
		return Older(matched[i], matched[j])
	})

	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, nil
}

func (m *memoryBackend) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.records[id]
	return exists, nil
}

func (m *memoryBackend) Close() error {
	return nil
}
