package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/collab/observability"
	"github.com/tailored-agentic-units/collab/storage"
)

// Label marks where in the execution lifecycle a snapshot was taken.
type Label string

const (
	LabelPreExecution  Label = "pre_execution"
	LabelPostExecution Label = "post_execution"
	LabelManual        Label = "manual"
)

// Snapshot is an immutable captured copy of serialized state at a point in
// the execution lifecycle. Never mutated after creation.
type Snapshot struct {
	ID        string         `json:"id"`
	Owner     string         `json:"owner"`
	Label     Label          `json:"label"`
	State     map[string]any `json:"state"`
	SizeBytes uint64         `json:"size_bytes"`
	Seq       uint64         `json:"seq"`
	CreatedAt time.Time      `json:"created_at"`
}

// SnapshotStore persists snapshots through a storage backend and holds the
// per-owner retention invariant: after any Create, live snapshots for the
// owner never exceed maxPerOwner.
type SnapshotStore struct {
	backend     storage.Backend
	ledger      *ledger
	maxPerOwner int
	observer    observability.Observer
}

// newSnapshotStore creates a SnapshotStore. maxPerOwner must be positive.
func newSnapshotStore(backend storage.Backend, led *ledger, maxPerOwner int, observer observability.Observer) *SnapshotStore {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &SnapshotStore{
		backend:     backend,
		ledger:      led,
		maxPerOwner: maxPerOwner,
		observer:    observer,
	}
}

// Create serializes state into a new immutable snapshot, persists it, and
// unconditionally evicts the owner down to the retention limit. Eviction on
// every create (rather than only when over budget) keeps the invariant true
// immediately after any mutation.
func (s *SnapshotStore) Create(ctx context.Context, owner string, label Label, state map[string]any) (Snapshot, error) {
	snap := Snapshot{
		ID:        uuid.New().String(),
		Owner:     owner,
		Label:     label,
		State:     state,
		Seq:       s.ledger.nextSeq(owner),
		CreatedAt: time.Now().UTC(),
	}

	// SizeBytes is the serialized length of the state itself; the governor
	// accounts the full record blob.
	stateBlob, err := json.Marshal(state)
	if err != nil {
		return Snapshot{}, &ValidationError{Owner: owner, Err: err}
	}
	snap.SizeBytes = uint64(len(stateBlob))

	blob, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, &ValidationError{Owner: owner, Err: err}
	}

	rec := storage.Record{
		ID:        snap.ID,
		Owner:     owner,
		Kind:      storage.KindSnapshot,
		Blob:      blob,
		Seq:       snap.Seq,
		CreatedAt: snap.CreatedAt,
	}

	s.ledger.add(storage.KindSnapshot, int64(len(blob)))
	if err := s.backend.Save(ctx, rec); err != nil {
		s.ledger.remove(storage.KindSnapshot, int64(len(blob)), false)
		return Snapshot{}, err
	}

	s.observer.OnEvent(ctx, observability.NewEvent(EventSnapshotCreate, observability.LevelVerbose,
		"snapshot", map[string]any{
			"owner": owner,
			"label": string(label),
			"seq":   snap.Seq,
			"bytes": snap.SizeBytes,
		}))

	if _, err := s.EvictOldest(ctx, owner, s.maxPerOwner); err != nil {
		// Retention bookkeeping failures never abort the create.
		s.observer.OnEvent(ctx, observability.NewEvent(EventBookkeepingError, observability.LevelWarning,
			"snapshot", map[string]any{"owner": owner, "op": "evict", "error": err.Error()}))
	}

	return snap, nil
}

// Get retrieves a snapshot by id. Returns storage.ErrNotFound (wrapped)
// when absent.
func (s *SnapshotStore) Get(ctx context.Context, id string) (Snapshot, error) {
	rec, err := s.backend.Load(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}
	return decodeSnapshot(rec)
}

// ListByOwner returns the owner's live snapshots, oldest first.
func (s *SnapshotStore) ListByOwner(ctx context.Context, owner string) ([]Snapshot, error) {
	recs, err := s.backend.List(ctx, storage.Filter{Owner: owner, Kind: storage.KindSnapshot})
	if err != nil {
		return nil, err
	}

	snaps := make([]Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := decodeSnapshot(rec)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// Latest returns the owner's most recent snapshot with the given label,
// or false when none exists.
func (s *SnapshotStore) Latest(ctx context.Context, owner string, label Label) (Snapshot, bool, error) {
	recs, err := s.backend.List(ctx, storage.Filter{
		Owner: owner,
		Kind:  storage.KindSnapshot,
		Order: storage.OrderNewestFirst,
	})
	if err != nil {
		return Snapshot{}, false, err
	}

	for _, rec := range recs {
		snap, err := decodeSnapshot(rec)
		if err != nil {
			return Snapshot{}, false, err
		}
		if label == "" || snap.Label == label {
			return snap, true, nil
		}
	}
	return Snapshot{}, false, nil
}

// EvictOldest deletes the owner's oldest snapshots until at most keepN
// remain. Ties in CreatedAt break on the per-owner sequence, never on ids.
// Returns the number deleted.
func (s *SnapshotStore) EvictOldest(ctx context.Context, owner string, keepN int) (int, error) {
	return evictOldest(ctx, s.backend, s.ledger, s.observer, evictParams{
		owner:  owner,
		kind:   storage.KindSnapshot,
		keepN:  keepN,
		event:  EventSnapshotEvict,
		source: "snapshot",
	})
}

// evictRecord deletes one record and reverses its accounting. Shared with
// the memory governor's global reclaim.
func (s *SnapshotStore) evictRecord(ctx context.Context, rec storage.Record) (bool, error) {
	return evictRecord(ctx, s.backend, s.ledger, rec, true)
}

func decodeSnapshot(rec storage.Record) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(rec.Blob, &snap); err != nil {
		return Snapshot{}, &storage.Error{Backend: "decode", Op: "snapshot", Err: err}
	}
	return snap, nil
}

// evictParams describes one count-based eviction pass.
type evictParams struct {
	owner  string
	kind   storage.Kind
	keepN  int
	event  observability.EventType
	source string
}

// evictOldest is the shared oldest-first, count-based eviction used by both
// stores. Listing is oldest-first already, so the records beyond keepN from
// the end are exactly the oldest surplus.
func evictOldest(ctx context.Context, backend storage.Backend, led *ledger, observer observability.Observer, p evictParams) (int, error) {
	if p.keepN < 0 {
		p.keepN = 0
	}

	recs, err := backend.List(ctx, storage.Filter{Owner: p.owner, Kind: p.kind})
	if err != nil {
		return 0, err
	}
	if len(recs) <= p.keepN {
		return 0, nil
	}

	deleted := 0
	for _, rec := range recs[:len(recs)-p.keepN] {
		ok, err := evictRecord(ctx, backend, led, rec, true)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	if deleted > 0 {
		observer.OnEvent(ctx, observability.NewEvent(p.event, observability.LevelVerbose,
			p.source, map[string]any{"owner": p.owner, "deleted": deleted, "keep": p.keepN}))
	}
	return deleted, nil
}

// evictRecord deletes one record and, if it was present, reverses its byte
// and count accounting. Concurrent deleters are safe: only the caller that
// observed the delete adjusts the ledger.
func evictRecord(ctx context.Context, backend storage.Backend, led *ledger, rec storage.Record, evicted bool) (bool, error) {
	ok, err := backend.Delete(ctx, rec.ID)
	if err != nil {
		return false, err
	}
	if ok {
		led.remove(rec.Kind, int64(len(rec.Blob)), evicted)
	}
	return ok, nil
}
