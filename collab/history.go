package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/collab/observability"
	"github.com/tailored-agentic-units/collab/storage"
)

// ErrorKey is the reserved diff key under which a failed execution's error
// message is recorded.
const ErrorKey = "__error__"

// HistoryEntry is one append-only diff record of a state transition.
// Never mutated after creation.
type HistoryEntry struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Action    string    `json:"action"`
	Diff      Diff      `json:"diff"`
	Seq       uint64    `json:"seq"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryStore persists history entries through a storage backend and
// holds the per-owner retention invariant, mirroring SnapshotStore.
type HistoryStore struct {
	backend     storage.Backend
	ledger      *ledger
	maxPerOwner int
	observer    observability.Observer
}

// newHistoryStore creates a HistoryStore. maxPerOwner must be positive.
func newHistoryStore(backend storage.Backend, led *ledger, maxPerOwner int, observer observability.Observer) *HistoryStore {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &HistoryStore{
		backend:     backend,
		ledger:      led,
		maxPerOwner: maxPerOwner,
		observer:    observer,
	}
}

// Append records one state transition and unconditionally evicts the owner
// down to the retention limit, same policy as SnapshotStore.Create.
func (h *HistoryStore) Append(ctx context.Context, owner, action string, diff Diff) (HistoryEntry, error) {
	entry := HistoryEntry{
		ID:        uuid.New().String(),
		Owner:     owner,
		Action:    action,
		Diff:      diff,
		Seq:       h.ledger.nextSeq(owner),
		CreatedAt: time.Now().UTC(),
	}

	blob, err := json.Marshal(entry)
	if err != nil {
		return HistoryEntry{}, &ValidationError{Owner: owner, Err: err}
	}

	rec := storage.Record{
		ID:        entry.ID,
		Owner:     owner,
		Kind:      storage.KindHistory,
		Blob:      blob,
		Seq:       entry.Seq,
		CreatedAt: entry.CreatedAt,
	}

	h.ledger.add(storage.KindHistory, int64(len(blob)))
	if err := h.backend.Save(ctx, rec); err != nil {
		h.ledger.remove(storage.KindHistory, int64(len(blob)), false)
		return HistoryEntry{}, err
	}

	h.observer.OnEvent(ctx, observability.NewEvent(EventHistoryAppend, observability.LevelVerbose,
		"history", map[string]any{
			"owner":  owner,
			"action": action,
			"keys":   len(diff),
			"seq":    entry.Seq,
		}))

	if _, err := h.EvictOldest(ctx, owner, h.maxPerOwner); err != nil {
		h.observer.OnEvent(ctx, observability.NewEvent(EventBookkeepingError, observability.LevelWarning,
			"history", map[string]any{"owner": owner, "op": "evict", "error": err.Error()}))
	}

	return entry, nil
}

// ListByOwner returns the owner's history entries, oldest first. A positive
// limit caps the result to the limit oldest entries.
func (h *HistoryStore) ListByOwner(ctx context.Context, owner string, limit int) ([]HistoryEntry, error) {
	recs, err := h.backend.List(ctx, storage.Filter{
		Owner: owner,
		Kind:  storage.KindHistory,
		Limit: limit,
	})
	if err != nil {
		return nil, err
	}

	entries := make([]HistoryEntry, 0, len(recs))
	for _, rec := range recs {
		entry, err := decodeHistory(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Replay folds the owner's diffs in order, starting from an empty mapping.
// A pure fold: replaying the same entries twice yields the same mapping.
// Keys recorded with a null new value replay as removals (Diff.Apply's
// removal marker), so states carrying explicit nulls do not round-trip.
func (h *HistoryStore) Replay(ctx context.Context, owner string) (map[string]any, error) {
	entries, err := h.ListByOwner(ctx, owner, 0)
	if err != nil {
		return nil, err
	}

	state := make(map[string]any)
	for _, entry := range entries {
		state = entry.Diff.Apply(state)
	}
	// The error key records failures; it is not part of domain state.
	delete(state, ErrorKey)
	return state, nil
}

// EvictOldest deletes the owner's oldest entries until at most keepN
// remain. Returns the number deleted.
func (h *HistoryStore) EvictOldest(ctx context.Context, owner string, keepN int) (int, error) {
	return evictOldest(ctx, h.backend, h.ledger, h.observer, evictParams{
		owner:  owner,
		kind:   storage.KindHistory,
		keepN:  keepN,
		event:  EventHistoryEvict,
		source: "history",
	})
}

func (h *HistoryStore) evictRecord(ctx context.Context, rec storage.Record) (bool, error) {
	return evictRecord(ctx, h.backend, h.ledger, rec, true)
}

func decodeHistory(rec storage.Record) (HistoryEntry, error) {
	var entry HistoryEntry
	if err := json.Unmarshal(rec.Blob, &entry); err != nil {
		return HistoryEntry{}, &storage.Error{Backend: "decode", Op: "history", Err: err}
	}
	return entry, nil
}
