package collab

import "github.com/tailored-agentic-units/collab/observability"

const (
	// Execute lifecycle
	EventExecuteStart    observability.EventType = "execute.start"
	EventExecuteComplete observability.EventType = "execute.complete"
	EventExecuteFailed   observability.EventType = "execute.failed"

	// Snapshots
	EventSnapshotCreate observability.EventType = "snapshot.create"
	EventSnapshotEvict  observability.EventType = "snapshot.evict"

	// History
	EventHistoryAppend observability.EventType = "history.append"
	EventHistoryEvict  observability.EventType = "history.evict"

	// Conflict resolution and memory governance
	EventConflictDetected observability.EventType = "conflict.detected"
	EventMemoryReclaim    observability.EventType = "memory.reclaim"
	EventOwnerPurge       observability.EventType = "owner.purge"

	// Secondary bookkeeping failures that never abort the primary call
	EventBookkeepingError observability.EventType = "bookkeeping.error"
)
