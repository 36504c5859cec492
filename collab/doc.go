// Package collab implements the collaboration and checkpoint engine that
// wraps workflow node execution with versioned-state snapshotting,
// append-only history recording, and bounded-memory retention.
//
// # Core Components
//
// Manager - Orchestrating façade: Execute wraps an executor call with
// pre/post snapshots, history recording, conflict resolution and memory
// governance
//
// SnapshotStore - Immutable state snapshots per owner with count-based
// oldest-first eviction
//
// HistoryStore - Append-only diff records per owner with replay
//
// Strategy - Conflict resolution between concurrently produced updates
// (last-write-wins, field-merge, reject)
//
// MemoryGovernor - Running byte accounting with a global oldest-first
// reclaim across all owners
//
// # State Model
//
// Domain state is opaque to the engine. The serializer projects any value
// onto a flat map[string]any: mappings are cloned, values implementing
// Mapper provide their own projection, and everything else degrades to a
// single-key {"value": v} mapping. Only the serialized projection is ever
// stored, so stale references held by the caller cannot corrupt a snapshot.
//
//	mgr, err := collab.New(collab.DefaultConfig())
//	result, err := mgr.Execute(ctx, "agent-1", map[string]any{"n": 0},
//	    func(ctx context.Context, state any) (any, error) {
//	        m := state.(map[string]any)
//	        return map[string]any{"n": m["n"].(int) + 1}, nil
//	    })
//
// # Ownership
//
// Snapshots and history entries are retained and evicted per owner, an
// opaque identifier such as an agent or workflow instance id. Within one
// owner all records are totally ordered by a monotonic sequence number;
// across owners there is no ordering guarantee.
//
// # Concurrency
//
// A single accounting lock guards sequence assignment, eviction bookkeeping
// and the byte counter. Backend I/O proceeds outside that lock. Blocking
// behavior of disk-backed backends is the caller's scheduling concern; the
// engine starts no background goroutines.
package collab
