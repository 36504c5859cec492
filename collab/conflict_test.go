package collab_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tailored-agentic-units/collab/collab"
)

func TestStrategyByName(t *testing.T) {
	tests := []struct {
		name     string
		wantName string
		wantErr  bool
	}{
		{name: "", wantName: collab.StrategyLastWriteWins},
		{name: collab.StrategyLastWriteWins, wantName: collab.StrategyLastWriteWins},
		{name: collab.StrategyFieldMerge, wantName: collab.StrategyFieldMerge},
		{name: collab.StrategyReject, wantName: collab.StrategyReject},
		{name: "three_way", wantErr: true},
	}

	for _, tt := range tests {
		strategy, err := collab.StrategyByName(tt.name)
		if tt.wantErr {
			if err == nil {
				t.Errorf("StrategyByName(%q) error = nil, want error", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("StrategyByName(%q) error = %v", tt.name, err)
			continue
		}
		if strategy.Name() != tt.wantName {
			t.Errorf("StrategyByName(%q).Name() = %q, want %q", tt.name, strategy.Name(), tt.wantName)
		}
	}
}

func TestLastWriteWins_LaterTimestampTakesConflictingKeys(t *testing.T) {
	base := map[string]any{"x": 1, "untouched": "keep"}
	earlier := collab.Update{
		State: map[string]any{"x": 2, "y": "from-earlier", "untouched": "keep"},
		At:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	later := collab.Update{
		State: map[string]any{"x": 3, "untouched": "keep"},
		At:    time.Date(2026, 3, 1, 12, 0, 1, 0, time.UTC),
	}

	got, err := collab.LastWriteWins{}.Resolve("owner", base, earlier, later)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := map[string]any{"x": 3, "y": "from-earlier", "untouched": "keep"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestLastWriteWins_ArgumentOrderIrrelevant(t *testing.T) {
	base := map[string]any{"x": 1}
	a := collab.Update{State: map[string]any{"x": 2}, At: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	b := collab.Update{State: map[string]any{"x": 3}, At: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)}

	forward, err := collab.LastWriteWins{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("Resolve(a, b) error = %v", err)
	}
	reversed, err := collab.LastWriteWins{}.Resolve("owner", base, b, a)
	if err != nil {
		t.Fatalf("Resolve(b, a) error = %v", err)
	}

	if !reflect.DeepEqual(forward, reversed) {
		t.Errorf("resolution depends on argument order: %v vs %v", forward, reversed)
	}
	if forward["x"] != 3 {
		t.Errorf("resolved x = %v, want the later write 3", forward["x"])
	}
}

func TestLastWriteWins_EqualTimestampsFavorSecond(t *testing.T) {
	base := map[string]any{}
	at := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := collab.Update{State: map[string]any{"x": "a"}, At: at}
	b := collab.Update{State: map[string]any{"x": "b"}, At: at}

	got, err := collab.LastWriteWins{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got["x"] != "b" {
		t.Errorf("resolved x = %v, want b on timestamp tie", got["x"])
	}
}

func TestFieldMerge_UnionsDisjointChanges(t *testing.T) {
	base := map[string]any{"shared": 0}
	a := collab.Update{
		State: map[string]any{"shared": 0, "left": 1},
		At:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	b := collab.Update{
		State: map[string]any{"shared": 0, "right": 2},
		At:    time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
	}

	got, err := collab.FieldMerge{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := map[string]any{"shared": 0, "left": 1, "right": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestFieldMerge_RespectsDeletions(t *testing.T) {
	base := map[string]any{"gone": 1, "kept": 2}
	a := collab.Update{
		State: map[string]any{"kept": 2},
		At:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	b := collab.Update{
		State: map[string]any{"gone": 1, "kept": 2, "added": 3},
		At:    time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
	}

	got, err := collab.FieldMerge{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	want := map[string]any{"kept": 2, "added": 3}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestReject_ReturnsConflictErrorWithSortedKeys(t *testing.T) {
	base := map[string]any{"z": 0, "a": 0}
	first := collab.Update{State: map[string]any{"z": 1, "a": 1}, At: time.Now()}
	second := collab.Update{State: map[string]any{"z": 2, "a": 2}, At: time.Now()}

	_, err := collab.Reject{}.Resolve("owner-1", base, first, second)

	var conflictErr *collab.ConflictError
	if !errors.As(err, &conflictErr) {
		t.Fatalf("Resolve() error = %v, want *ConflictError", err)
	}
	if conflictErr.Owner != "owner-1" {
		t.Errorf("ConflictError.Owner = %q, want owner-1", conflictErr.Owner)
	}
	if want := []string{"a", "z"}; !reflect.DeepEqual(conflictErr.Keys, want) {
		t.Errorf("ConflictError.Keys = %v, want %v", conflictErr.Keys, want)
	}
}

func TestReject_MergesCleanDivergence(t *testing.T) {
	base := map[string]any{}
	a := collab.Update{State: map[string]any{"left": 1}, At: time.Now()}
	b := collab.Update{State: map[string]any{"right": 2}, At: time.Now()}

	got, err := collab.Reject{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("Resolve() error = %v, want clean merge without key conflicts", err)
	}

	want := map[string]any{"left": 1, "right": 2}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Resolve() = %v, want %v", got, want)
	}
}

func TestReject_SameValueIsNotAConflict(t *testing.T) {
	base := map[string]any{"n": 1}
	a := collab.Update{State: map[string]any{"n": 2}, At: time.Now()}
	b := collab.Update{State: map[string]any{"n": 2}, At: time.Now()}

	got, err := collab.Reject{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("Resolve() error = %v, want agreement on equal writes", err)
	}
	if got["n"] != 2 {
		t.Errorf("resolved n = %v, want 2", got["n"])
	}
}

func TestLastWriteWinsAndFieldMergeCoincide(t *testing.T) {
	// Per-conflicting-key last-write-wins and union-then-last-write-wins
	// field merging resolve to the same mapping over key-level diffs; the
	// two strategies must never drift apart.
	base := map[string]any{"shared": 0, "gone": true}
	a := collab.Update{
		State: map[string]any{"shared": 1, "left": "a"},
		At:    time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	b := collab.Update{
		State: map[string]any{"shared": 2, "gone": true, "right": "b"},
		At:    time.Date(2026, 3, 1, 0, 0, 1, 0, time.UTC),
	}

	lww, err := collab.LastWriteWins{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("LastWriteWins.Resolve() error = %v", err)
	}
	fm, err := collab.FieldMerge{}.Resolve("owner", base, a, b)
	if err != nil {
		t.Fatalf("FieldMerge.Resolve() error = %v", err)
	}

	if !reflect.DeepEqual(lww, fm) {
		t.Errorf("strategies diverged: last_write_wins = %v, field_merge = %v", lww, fm)
	}
	want := map[string]any{"shared": 2, "left": "a", "right": "b"}
	if !reflect.DeepEqual(lww, want) {
		t.Errorf("resolution = %v, want %v", lww, want)
	}
}

func TestStrategies_DoNotMutateInputs(t *testing.T) {
	strategies := []collab.Strategy{collab.LastWriteWins{}, collab.FieldMerge{}, collab.Reject{}}

	for _, strategy := range strategies {
		base := map[string]any{"n": 0}
		a := collab.Update{State: map[string]any{"n": 0, "a": 1}, At: time.Now()}
		b := collab.Update{State: map[string]any{"n": 0, "b": 2}, At: time.Now()}

		if _, err := strategy.Resolve("owner", base, a, b); err != nil {
			t.Fatalf("%s: Resolve() error = %v", strategy.Name(), err)
		}

		if len(base) != 1 || len(a.State) != 2 || len(b.State) != 2 {
			t.Errorf("%s: Resolve() mutated its inputs", strategy.Name())
		}
	}
}
