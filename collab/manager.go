package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/collab/observability"
	"github.com/tailored-agentic-units/collab/storage"
)

// Executor is the caller-supplied unit of work. It must be a pure function
// of state; side effects on external systems are the caller's concern. The
// engine holds only serialized copies of what flows through it.
type Executor func(ctx context.Context, state any) (any, error)

// Manager is the orchestrating façade of the collaboration engine. It
// wraps executor calls with pre/post snapshots, records every transition
// as a history diff, resolves detected write races, and keeps the stores
// under the configured memory ceiling.
//
// One Manager serves all owners; construct it once at process start and
// pass it to call sites. Safe for concurrent use.
type Manager struct {
	backend   storage.Backend
	snapshots *SnapshotStore
	history   *HistoryStore
	governor  *MemoryGovernor
	strategy  Strategy
	observer  observability.Observer
}

// New creates a Manager from configuration, resolving the storage backend,
// conflict strategy, and observer by name.
func New(cfg Config) (*Manager, error) {
	defaults := DefaultConfig()
	defaults.Merge(&cfg)
	cfg = defaults

	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	backend, err := storage.New(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage backend: %w", err)
	}

	mgr, err := NewWithDeps(cfg, observer, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return mgr, nil
}

// NewWithDeps creates a Manager with an injected observer and backend.
// The Manager takes ownership of the backend; Close releases it. When the
// backend already holds records (persistent backends across restarts) the
// accounting ledger is primed from a full listing.
func NewWithDeps(cfg Config, observer observability.Observer, backend storage.Backend) (*Manager, error) {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}

	defaults := DefaultConfig()
	defaults.Merge(&cfg)
	cfg = defaults

	strategy, err := StrategyByName(cfg.ConflictStrategy)
	if err != nil {
		return nil, err
	}

	led := newLedger()
	recs, err := backend.List(context.Background(), storage.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to prime accounting from backend: %w", err)
	}
	for _, rec := range recs {
		led.observe(rec)
	}

	snapshots := newSnapshotStore(backend, led, cfg.MaxSnapshotsPerOwner, observer)
	history := newHistoryStore(backend, led, cfg.MaxHistoryPerOwner, observer)
	governor := newMemoryGovernor(led, cfg.MaxMemoryBytes, snapshots, history, observer)

	return &Manager{
		backend:   backend,
		snapshots: snapshots,
		history:   history,
		governor:  governor,
		strategy:  strategy,
		observer:  observer,
	}, nil
}

// Execute runs one unit of work against the owner's state with full
// snapshot and history capture:
//
//  1. Validate that state serializes (ValidationError otherwise; no store
//     is touched).
//  2. Take a pre-execution snapshot.
//  3. Invoke the executor. A failure is recorded into history under the
//     reserved "__error__" key, then returned wrapped in *ExecutionError
//     with the original error reachable through errors.Is/As.
//  4. On success, check for a write race: if another post-execution
//     snapshot landed for this owner since entry, resolve through the
//     configured strategy (the reject strategy returns *ConflictError).
//  5. Take a post-execution snapshot and append the pre→post diff to
//     history, then reclaim memory if over budget.
//
// The returned value is the executor's result, except after conflict
// resolution of a map[string]any state, where it is the resolved mapping.
// No retries happen here; retry policy belongs to the caller.
func (m *Manager) Execute(ctx context.Context, owner string, state any, exec Executor) (any, error) {
	if owner == "" {
		return nil, &ValidationError{Owner: owner, Err: fmt.Errorf("owner id cannot be empty")}
	}
	if exec == nil {
		return nil, &ValidationError{Owner: owner, Err: fmt.Errorf("executor cannot be nil")}
	}

	// Validating
	preMapping, err := validateState(owner, state)
	if err != nil {
		return nil, err
	}

	m.observer.OnEvent(ctx, observability.NewEvent(EventExecuteStart, observability.LevelVerbose,
		"collab", map[string]any{"owner": owner, "keys": len(preMapping)}))

	// Baseline for the optimistic-concurrency check: the newest committed
	// post-execution snapshot at entry (zero seq when none exists).
	var baseSeq uint64
	if latest, ok, err := m.snapshots.Latest(ctx, owner, LabelPostExecution); err != nil {
		return nil, err
	} else if ok {
		baseSeq = latest.Seq
	}

	// Snapshotting(Pre)
	preSnap, err := m.snapshots.Create(ctx, owner, LabelPreExecution, preMapping)
	if err != nil {
		return nil, err
	}

	// Executing
	result, execErr := exec(ctx, state)
	if execErr != nil {
		m.recordFailure(ctx, owner, execErr)
		m.reclaimIfNeeded(ctx)
		return nil, &ExecutionError{Owner: owner, Err: execErr}
	}

	// Succeeded: the result must serialize too.
	postMapping, err := validateState(owner, result)
	if err != nil {
		m.recordFailure(ctx, owner, err)
		return nil, err
	}

	// Optimistic-concurrency check against the latest committed snapshot.
	latest, ok, err := m.snapshots.Latest(ctx, owner, LabelPostExecution)
	if err != nil {
		return nil, err
	}
	if ok && latest.Seq != baseSeq {
		resolved, resolveErr := m.resolveConflict(ctx, owner, preSnap, latest, postMapping)
		if resolveErr != nil {
			m.recordFailure(ctx, owner, resolveErr)
			return nil, resolveErr
		}
		postMapping = resolved
		if _, isMapping := result.(map[string]any); isMapping {
			result = resolved
		}
	}

	// Snapshotting(Post)
	if _, err := m.snapshots.Create(ctx, owner, LabelPostExecution, postMapping); err != nil {
		return nil, err
	}

	// RecordingHistory
	diff := ComputeDiff(preMapping, postMapping)
	if _, err := m.history.Append(ctx, owner, "execute", diff); err != nil {
		return nil, err
	}

	m.reclaimIfNeeded(ctx)

	m.observer.OnEvent(ctx, observability.NewEvent(EventExecuteComplete, observability.LevelVerbose,
		"collab", map[string]any{"owner": owner, "changed_keys": len(diff)}))

	return result, nil
}

// Snapshot captures a manual snapshot of state outside any execution.
func (m *Manager) Snapshot(ctx context.Context, owner string, state any) (Snapshot, error) {
	if owner == "" {
		return Snapshot{}, &ValidationError{Owner: owner, Err: fmt.Errorf("owner id cannot be empty")}
	}
	mapping, err := validateState(owner, state)
	if err != nil {
		return Snapshot{}, err
	}
	snap, err := m.snapshots.Create(ctx, owner, LabelManual, mapping)
	if err != nil {
		return Snapshot{}, err
	}
	m.reclaimIfNeeded(ctx)
	return snap, nil
}

// Snapshots returns the owner's live snapshots, oldest first.
func (m *Manager) Snapshots(ctx context.Context, owner string) ([]Snapshot, error) {
	return m.snapshots.ListByOwner(ctx, owner)
}

// History returns the owner's history entries, oldest first. A positive
// limit caps the result.
func (m *Manager) History(ctx context.Context, owner string, limit int) ([]HistoryEntry, error) {
	return m.history.ListByOwner(ctx, owner, limit)
}

// Replay reconstructs the owner's state by folding its history diffs from
// an empty mapping.
func (m *Manager) Replay(ctx context.Context, owner string) (map[string]any, error) {
	return m.history.Replay(ctx, owner)
}

// PurgeOwner deletes all snapshots and history for an owner, typically on
// workflow completion. Returns the number of records deleted. Purged
// records do not count as evictions.
func (m *Manager) PurgeOwner(ctx context.Context, owner string) (int, error) {
	recs, err := m.backend.List(ctx, storage.Filter{Owner: owner})
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, rec := range recs {
		ok, err := evictRecord(ctx, m.backend, m.snapshots.ledger, rec, false)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}

	m.observer.OnEvent(ctx, observability.NewEvent(EventOwnerPurge, observability.LevelInfo,
		"collab", map[string]any{"owner": owner, "deleted": deleted}))
	return deleted, nil
}

// MemoryUsage reports the governor's byte accounting.
func (m *Manager) MemoryUsage() MemoryUsage {
	return m.governor.Usage()
}

// PerformanceStats reports live record counts and eviction totals.
func (m *Manager) PerformanceStats() PerformanceStats {
	return m.snapshots.ledger.stats()
}

// Governor exposes the memory governor for callers that schedule their own
// reclaim passes.
func (m *Manager) Governor() *MemoryGovernor {
	return m.governor
}

// SnapshotStore exposes the snapshot store for direct record access.
func (m *Manager) SnapshotStore() *SnapshotStore {
	return m.snapshots
}

// HistoryStore exposes the history store for direct record access.
func (m *Manager) HistoryStore() *HistoryStore {
	return m.history
}

// Close releases the storage backend.
func (m *Manager) Close() error {
	return m.backend.Close()
}

// resolveConflict runs the configured strategy with the stored update as
// the earlier revision and this execution's result as the later one.
func (m *Manager) resolveConflict(ctx context.Context, owner string, preSnap, latest Snapshot, postMapping map[string]any) (map[string]any, error) {
	m.observer.OnEvent(ctx, observability.NewEvent(EventConflictDetected, observability.LevelWarning,
		"collab", map[string]any{
			"owner":      owner,
			"strategy":   m.strategy.Name(),
			"theirs_seq": latest.Seq,
			"base_seq":   preSnap.Seq,
		}))

	theirs := Update{State: latest.State, At: latest.CreatedAt}
	ours := Update{State: postMapping, At: time.Now().UTC()}
	return m.strategy.Resolve(owner, preSnap.State, theirs, ours)
}

// recordFailure appends the failure-history entry for a failed attempt.
// Secondary failures are reported as events, never returned: they must not
// mask the primary error.
func (m *Manager) recordFailure(ctx context.Context, owner string, primary error) {
	diff := Diff{ErrorKey: Change{Old: nil, New: primary.Error()}}
	if _, err := m.history.Append(ctx, owner, "execute_failed", diff); err != nil {
		m.observer.OnEvent(ctx, observability.NewEvent(EventBookkeepingError, observability.LevelError,
			"collab", map[string]any{"owner": owner, "op": "record_failure", "error": err.Error()}))
	}

	m.observer.OnEvent(ctx, observability.NewEvent(EventExecuteFailed, observability.LevelWarning,
		"collab", map[string]any{"owner": owner, "error": primary.Error()}))
}

// reclaimIfNeeded runs a reclaim pass when over budget. Reclaim failures
// surface as events only.
func (m *Manager) reclaimIfNeeded(ctx context.Context) {
	if !m.governor.OverBudget() {
		return
	}
	if _, err := m.governor.Reclaim(ctx); err != nil {
		m.observer.OnEvent(ctx, observability.NewEvent(EventBookkeepingError, observability.LevelWarning,
			"collab", map[string]any{"op": "reclaim", "error": err.Error()}))
	}
}

// validateState projects state onto its mapping and proves it serializes.
func validateState(owner string, state any) (map[string]any, error) {
	mapping := ToMapping(state)
	if _, err := json.Marshal(mapping); err != nil {
		return nil, &ValidationError{Owner: owner, Err: err}
	}
	return mapping, nil
}
