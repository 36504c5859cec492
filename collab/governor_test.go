package collab_test

import (
	"context"
	"testing"

	"github.com/tailored-agentic-units/collab/collab"
)

func TestGovernor_RecordAndUsage(t *testing.T) {
	mgr := newTestManager(t, collab.Config{MaxMemoryBytes: 1000})
	governor := mgr.Governor()

	governor.Record(100)
	governor.Record(-40)

	if got := governor.CurrentBytes(); got != 60 {
		t.Errorf("CurrentBytes() = %d, want 60", got)
	}

	usage := governor.Usage()
	if usage.MaxBytes != 1000 {
		t.Errorf("Usage().MaxBytes = %d, want 1000", usage.MaxBytes)
	}
	if usage.Utilization != 0.06 {
		t.Errorf("Usage().Utilization = %v, want 0.06", usage.Utilization)
	}
	if governor.OverBudget() {
		t.Error("OverBudget() = true at 6% utilization")
	}
}

func TestGovernor_ReclaimUnderBudgetIsNoOp(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})
	ctx := context.Background()

	if _, err := mgr.Snapshot(ctx, "owner-1", map[string]any{"n": 1}); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}

	freed, err := mgr.Governor().Reclaim(ctx)
	if err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if freed != 0 {
		t.Errorf("Reclaim() freed %d bytes under budget, want 0", freed)
	}

	snaps, err := mgr.Snapshots(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snaps) != 1 {
		t.Errorf("got %d snapshots after no-op reclaim, want 1", len(snaps))
	}
}

func TestGovernor_ReclaimEvictsOldestFirst(t *testing.T) {
	maxBytes := int64(1 << 20)
	mgr := newTestManager(t, collab.Config{MaxMemoryBytes: maxBytes})
	ctx := context.Background()
	governor := mgr.Governor()

	for i := 0; i < 3; i++ {
		if _, err := mgr.Snapshot(ctx, "owner-1", map[string]any{"n": i}); err != nil {
			t.Fatalf("Snapshot() #%d error = %v", i, err)
		}
	}

	// Push the counter one byte over the ceiling: evicting the single
	// oldest record brings it back under.
	governor.Record(maxBytes - governor.CurrentBytes() + 1)

	freed, err := governor.Reclaim(ctx)
	if err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if freed == 0 {
		t.Fatal("Reclaim() freed 0 bytes over budget")
	}
	if governor.OverBudget() {
		t.Error("OverBudget() = true after reclaim")
	}

	snaps, err := mgr.Snapshots(ctx, "owner-1")
	if err != nil {
		t.Fatalf("Snapshots() error = %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("got %d snapshots after reclaim, want 2", len(snaps))
	}
	if snaps[0].State["n"] != float64(1) || snaps[1].State["n"] != float64(2) {
		t.Errorf("survivors = %v, %v; want the two newest (n=1, n=2)",
			snaps[0].State["n"], snaps[1].State["n"])
	}
}

func TestGovernor_ReclaimSpansOwnersAndKinds(t *testing.T) {
	mgr := newTestManager(t, collab.Config{MaxMemoryBytes: 1})
	ctx := context.Background()

	// A one-byte ceiling forces every execution's records back out.
	if _, err := mgr.Execute(ctx, "owner-1", map[string]any{"n": 0}, increment); err != nil {
		t.Fatalf("Execute(owner-1) error = %v", err)
	}
	if _, err := mgr.Execute(ctx, "owner-2", map[string]any{"n": 0}, increment); err != nil {
		t.Fatalf("Execute(owner-2) error = %v", err)
	}

	if mgr.Governor().OverBudget() {
		t.Error("OverBudget() = true after Execute's reclaim pass")
	}
	if got := mgr.MemoryUsage().CurrentBytes; got != 0 {
		t.Errorf("CurrentBytes = %d after total reclaim, want 0", got)
	}

	stats := mgr.PerformanceStats()
	if stats.SnapshotCount != 0 || stats.HistoryCount != 0 {
		t.Errorf("live counts = %d snapshots, %d entries; want 0 and 0",
			stats.SnapshotCount, stats.HistoryCount)
	}
	if stats.EvictionCount == 0 {
		t.Error("EvictionCount = 0, want reclaim evictions recorded")
	}
}
