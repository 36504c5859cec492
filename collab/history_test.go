package collab_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/tailored-agentic-units/collab/collab"
)

func TestHistory_AppendOnlyOrdering(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})
	ctx := context.Background()
	owner := "owner-1"

	for i := 0; i < 3; i++ {
		if _, err := mgr.Execute(ctx, owner, map[string]any{"n": i}, increment); err != nil {
			t.Fatalf("Execute() #%d error = %v", i, err)
		}
	}

	entries, err := mgr.History(ctx, owner, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Seq <= entries[i-1].Seq {
			t.Errorf("entries not ordered by seq: %d then %d", entries[i-1].Seq, entries[i].Seq)
		}
	}
	if change := entries[2].Diff["n"]; change.Old != float64(2) || change.New != float64(3) {
		t.Errorf("last diff[n] = %+v, want {2 3}", change)
	}
}

func TestHistory_LimitReturnsOldest(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})
	ctx := context.Background()
	owner := "owner-1"

	for i := 0; i < 4; i++ {
		if _, err := mgr.Execute(ctx, owner, map[string]any{"n": i}, increment); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	entries, err := mgr.History(ctx, owner, 2)
	if err != nil {
		t.Fatalf("History(limit=2) error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if change := entries[0].Diff["n"]; change.New != float64(1) {
		t.Errorf("first limited entry diff[n].New = %v, want 1", change.New)
	}
}

func TestHistory_RetentionEvictsOldest(t *testing.T) {
	mgr := newTestManager(t, collab.Config{MaxHistoryPerOwner: 2})
	ctx := context.Background()
	owner := "owner-1"

	for i := 0; i < 4; i++ {
		if _, err := mgr.Execute(ctx, owner, map[string]any{"n": i}, increment); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	entries, err := mgr.History(ctx, owner, 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want retention limit 2", len(entries))
	}
	// The two newest transitions survive.
	if change := entries[0].Diff["n"]; change.New != float64(3) {
		t.Errorf("oldest surviving diff[n].New = %v, want 3", change.New)
	}
	if change := entries[1].Diff["n"]; change.New != float64(4) {
		t.Errorf("newest surviving diff[n].New = %v, want 4", change.New)
	}
}

func TestReplay_FoldsDiffsIncludingRemovals(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})
	ctx := context.Background()
	owner := "owner-1"

	_, err := mgr.Execute(ctx, owner, map[string]any{}, func(context.Context, any) (any, error) {
		return map[string]any{"a": 1, "b": 2}, nil
	})
	if err != nil {
		t.Fatalf("Execute() #1 error = %v", err)
	}
	_, err = mgr.Execute(ctx, owner, map[string]any{"a": 1, "b": 2}, func(context.Context, any) (any, error) {
		return map[string]any{"a": 9}, nil
	})
	if err != nil {
		t.Fatalf("Execute() #2 error = %v", err)
	}

	state, err := mgr.Replay(ctx, owner)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}

	want := map[string]any{"a": float64(9)}
	if !reflect.DeepEqual(state, want) {
		t.Errorf("Replay() = %v, want %v", state, want)
	}
}

func TestReplay_MatchesLatestSnapshot(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})
	ctx := context.Background()
	owner := "owner-1"

	states := []map[string]any{
		{"n": 1, "phase": "start"},
		{"n": 2, "phase": "middle", "extra": true},
		{"n": 3, "phase": "done"},
	}
	prev := map[string]any{}
	for i, next := range states {
		next := next
		_, err := mgr.Execute(ctx, owner, prev, func(context.Context, any) (any, error) {
			return next, nil
		})
		if err != nil {
			t.Fatalf("Execute() #%d error = %v", i, err)
		}
		prev = next
	}

	replayed, err := mgr.Replay(ctx, owner)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	latest, ok, err := mgr.SnapshotStore().Latest(ctx, owner, collab.LabelPostExecution)
	if err != nil || !ok {
		t.Fatalf("Latest() = ok %v, error %v", ok, err)
	}

	if !reflect.DeepEqual(replayed, latest.State) {
		t.Errorf("Replay() = %v, want latest snapshot state %v", replayed, latest.State)
	}
}

func TestReplay_Deterministic(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})
	ctx := context.Background()
	owner := "owner-1"

	for i := 0; i < 3; i++ {
		if _, err := mgr.Execute(ctx, owner, map[string]any{"n": i}, increment); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
	}

	first, err := mgr.Replay(ctx, owner)
	if err != nil {
		t.Fatalf("Replay() #1 error = %v", err)
	}
	second, err := mgr.Replay(ctx, owner)
	if err != nil {
		t.Fatalf("Replay() #2 error = %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Replay() is not deterministic: %v vs %v", first, second)
	}
}

func TestReplay_EmptyHistory(t *testing.T) {
	mgr := newTestManager(t, collab.Config{})

	state, err := mgr.Replay(context.Background(), "never-seen")
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(state) != 0 {
		t.Errorf("Replay(empty) = %v, want empty mapping", state)
	}
}
