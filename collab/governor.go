package collab

import (
	"container/heap"
	"context"

	"github.com/tailored-agentic-units/collab/observability"
	"github.com/tailored-agentic-units/collab/storage"
)

// MemoryUsage reports the governor's view of the memory ceiling.
type MemoryUsage struct {
	CurrentBytes int64   `json:"current_bytes"`
	MaxBytes     int64   `json:"max_bytes"`
	Utilization  float64 `json:"utilization_ratio"`
}

// MemoryGovernor enforces the hard memory ceiling. The byte counter is a
// running sum maintained by the stores through the shared ledger, so
// OverBudget is O(1); Reclaim evicts oldest-record-first globally across
// all owners and both stores until the counter drops under the ceiling.
type MemoryGovernor struct {
	ledger    *ledger
	maxBytes  int64
	snapshots *SnapshotStore
	history   *HistoryStore
	observer  observability.Observer
}

// newMemoryGovernor creates a MemoryGovernor over the stores it reclaims
// from. The ledger must be the same instance the stores account through.
func newMemoryGovernor(led *ledger, maxBytes int64, snapshots *SnapshotStore, history *HistoryStore, observer observability.Observer) *MemoryGovernor {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &MemoryGovernor{
		ledger:    led,
		maxBytes:  maxBytes,
		snapshots: snapshots,
		history:   history,
		observer:  observer,
	}
}

// Record adjusts the running byte counter directly. The stores account
// their own writes; this exists for callers tracking out-of-band usage.
func (g *MemoryGovernor) Record(deltaBytes int64) {
	l := g.ledger
	l.mu.Lock()
	l.bytes += deltaBytes
	l.mu.Unlock()
}

// CurrentBytes returns the running byte counter.
func (g *MemoryGovernor) CurrentBytes() int64 {
	return g.ledger.currentBytes()
}

// OverBudget reports whether the running byte counter exceeds the ceiling.
func (g *MemoryGovernor) OverBudget() bool {
	return g.ledger.currentBytes() > g.maxBytes
}

// Usage returns the current memory usage aggregate.
func (g *MemoryGovernor) Usage() MemoryUsage {
	current := g.ledger.currentBytes()
	usage := MemoryUsage{CurrentBytes: current, MaxBytes: g.maxBytes}
	if g.maxBytes > 0 {
		usage.Utilization = float64(current) / float64(g.maxBytes)
	}
	return usage
}

// Reclaim evicts the globally oldest records, regardless of owner or kind,
// until the byte counter is at or under the ceiling or no records remain.
// Safe for concurrent callers: deletion races resolve through the backend
// and only observed deletes adjust accounting. Returns bytes freed.
func (g *MemoryGovernor) Reclaim(ctx context.Context) (int64, error) {
	if !g.OverBudget() {
		return 0, nil
	}

	recs, err := g.snapshots.backend.List(ctx, storage.Filter{})
	if err != nil {
		return 0, err
	}

	h := recordHeap(recs)
	heap.Init(&h)

	var freed int64
	for h.Len() > 0 && g.OverBudget() {
		rec := heap.Pop(&h).(storage.Record)

		var (
			ok  bool
			err error
		)
		switch rec.Kind {
		case storage.KindSnapshot:
			ok, err = g.snapshots.evictRecord(ctx, rec)
		case storage.KindHistory:
			ok, err = g.history.evictRecord(ctx, rec)
		default:
			continue
		}
		if err != nil {
			return freed, err
		}
		if ok {
			freed += int64(len(rec.Blob))
		}
	}

	if freed > 0 {
		g.observer.OnEvent(ctx, observability.NewEvent(EventMemoryReclaim, observability.LevelInfo,
			"governor", map[string]any{
				"freed_bytes":   freed,
				"current_bytes": g.ledger.currentBytes(),
				"max_bytes":     g.maxBytes,
			}))
	}
	return freed, nil
}

// recordHeap is a min-heap over records keyed by the global eviction order
// (CreatedAt, then Seq).
type recordHeap []storage.Record

func (h recordHeap) Len() int { return len(h) }

func (h recordHeap) Less(i, j int) bool { return storage.Older(h[i], h[j]) }

func (h recordHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *recordHeap) Push(x any) { *h = append(*h, x.(storage.Record)) }
func (h *recordHeap) Pop() any {
	old := *h
	n := len(old)
	rec := old[n-1]
	*h = old[:n-1]
	return rec
}
