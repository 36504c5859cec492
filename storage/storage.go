// Package storage provides the pluggable record store used by the
// collaboration engine. A Backend is a durable id→blob store with save,
// load, delete, list and exists primitives; it carries no business logic.
// Snapshot and history retention policy lives above this layer.
package storage

import (
	"context"
	"time"
)

// Kind classifies a stored record. The engine persists two record kinds
// through the same backend.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindHistory  Kind = "history"
)

// Record is the persisted representation of a snapshot or history entry.
// The blob is opaque to the backend; Owner, Kind, Seq and CreatedAt exist
// so backends can filter and order without decoding it.
type Record struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Kind      Kind      `json:"kind"`
	Blob      []byte    `json:"blob"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// Order controls List result ordering.
type Order int

const (
	// OrderOldestFirst sorts by (CreatedAt, Seq) ascending. This is the
	// default and what eviction scans rely on.
	OrderOldestFirst Order = iota
	// OrderNewestFirst sorts by (CreatedAt, Seq) descending.
	OrderNewestFirst
)

// Filter narrows a List call. Zero values match everything.
type Filter struct {
	Owner string
	Kind  Kind
	Limit int
	Order Order
}

// Matches reports whether the record passes the owner/kind predicates.
func (f Filter) Matches(r Record) bool {
	if f.Owner != "" && r.Owner != f.Owner {
		return false
	}
	if f.Kind != "" && r.Kind != f.Kind {
		return false
	}
	return true
}

// Backend is a durable key→blob store. Implementations must be safe for
// concurrent use. Callers must not depend on which backend is active.
type Backend interface {
	// Save persists the record, overwriting any record with the same ID.
	Save(ctx context.Context, rec Record) error

	// Load retrieves a record by ID. Returns ErrNotFound when absent.
	Load(ctx context.Context, id string) (Record, error)

	// Delete removes a record by ID. Returns false (and no error) when
	// the ID is absent.
	Delete(ctx context.Context, id string) (bool, error)

	// List returns records matching the filter, ordered by
	// (CreatedAt, Seq) ascending unless Filter.Order overrides.
	List(ctx context.Context, f Filter) ([]Record, error)

	// Exists reports whether a record with the given ID is stored.
	Exists(ctx context.Context, id string) (bool, error)

	// Close releases backend resources. Safe to call once.
	Close() error
}

// Older reports whether a precedes b in the engine's eviction order:
// (CreatedAt, Seq) with Owner and ID as final tie-breaks for cross-owner
// stability. Within a single owner Seq is unique, so eviction order never
// falls through to ID comparison.
func Older(a, b Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	if a.Owner != b.Owner {
		return a.Owner < b.Owner
	}
	return a.ID < b.ID
}
