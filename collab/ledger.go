package collab

import (
	"sync"

	"github.com/tailored-agentic-units/collab/storage"
)

// ledger is the single accounting critical section shared by both stores
// and the memory governor: per-owner sequence assignment, the running byte
// counter, and live record/eviction counts. Backend I/O never happens
// under its lock.
type ledger struct {
	mu            sync.Mutex
	seqs          map[string]uint64
	bytes         int64
	snapshotCount int64
	snapshotBytes int64
	historyCount  int64
	evictions     uint64
}

func newLedger() *ledger {
	return &ledger{seqs: make(map[string]uint64)}
}

// nextSeq assigns the next monotonic sequence number for the owner. One
// counter spans snapshots and history so records of both kinds are totally
// ordered within an owner.
func (l *ledger) nextSeq(owner string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seqs[owner]++
	return l.seqs[owner]
}

// observe accounts for a record that exists in the backend without
// assigning a new sequence. Used when priming from a persistent backend.
func (l *ledger) observe(rec storage.Record) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec.Seq > l.seqs[rec.Owner] {
		l.seqs[rec.Owner] = rec.Seq
	}
	l.account(rec.Kind, int64(len(rec.Blob)))
}

// add accounts for a newly stored record.
func (l *ledger) add(kind storage.Kind, size int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.account(kind, size)
}

// remove reverses the accounting for a deleted record. evicted
// distinguishes policy-driven eviction from purges and rollbacks.
func (l *ledger) remove(kind storage.Kind, size int64, evicted bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.account(kind, -size)
	if evicted {
		l.evictions++
	}
}

// account adjusts counters by a signed size. Callers hold l.mu.
func (l *ledger) account(kind storage.Kind, size int64) {
	l.bytes += size
	sign := int64(1)
	if size < 0 {
		sign = -1
	}
	switch kind {
	case storage.KindSnapshot:
		l.snapshotCount += sign
		l.snapshotBytes += size
	case storage.KindHistory:
		l.historyCount += sign
	}
}

func (l *ledger) currentBytes() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bytes
}

// PerformanceStats aggregates live record counts and eviction totals.
type PerformanceStats struct {
	SnapshotCount    int64  `json:"snapshot_count"`
	HistoryCount     int64  `json:"history_count"`
	EvictionCount    uint64 `json:"eviction_count"`
	AvgSnapshotBytes int64  `json:"avg_snapshot_bytes"`
}

func (l *ledger) stats() PerformanceStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := PerformanceStats{
		SnapshotCount: l.snapshotCount,
		HistoryCount:  l.historyCount,
		EvictionCount: l.evictions,
	}
	if l.snapshotCount > 0 {
		stats.AvgSnapshotBytes = l.snapshotBytes / l.snapshotCount
	}
	return stats
}
