package collab

import (
	"fmt"
	"maps"
	"reflect"
	"time"
)

// Conflict strategy names recognized in configuration.
const (
	StrategyLastWriteWins = "last_write_wins"
	StrategyFieldMerge    = "field_merge"
	StrategyReject        = "reject"
)

// Update is one of two concurrently produced revisions of the same logical
// state, carrying the logical timestamp last-write-wins compares.
type Update struct {
	State map[string]any
	At    time.Time
}

// Strategy resolves two concurrently produced updates against their common
// base. Implementations are pure: inputs are never mutated and the same
// inputs always produce the same resolution.
//
// A strategy is invoked only when Execute's optimistic-concurrency check
// detects that the latest stored snapshot moved past the one an execution
// started from - never on the uncontended path.
type Strategy interface {
	// Name returns the configuration name of the strategy.
	Name() string

	// Resolve produces a single state from two divergent updates.
	Resolve(owner string, base map[string]any, a, b Update) (map[string]any, error)
}

// StrategyByName resolves a configured strategy name. Empty selects
// last-write-wins, the default.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", StrategyLastWriteWins:
		return LastWriteWins{}, nil
	case StrategyFieldMerge:
		return FieldMerge{}, nil
	case StrategyReject:
		return Reject{}, nil
	default:
		return nil, fmt.Errorf("unknown conflict strategy: %s", name)
	}
}

// conflictingKeys returns the keys both updates changed relative to base
// to unequal results, in sorted order.
func conflictingKeys(base map[string]any, a, b Update) []string {
	diffA := ComputeDiff(base, a.State)
	diffB := ComputeDiff(base, b.State)

	conflicts := make(Diff)
	for key, changeA := range diffA {
		changeB, both := diffB[key]
		if both && !reflect.DeepEqual(changeA.New, changeB.New) {
			conflicts[key] = changeB
		}
	}
	return conflicts.Keys()
}

// merge folds both updates' changes over the base, with the winner's
// changes applied last so it takes every conflicting key.
func merge(base map[string]any, loser, winner Update) map[string]any {
	resolved := maps.Clone(base)
	resolved = ComputeDiff(base, loser.State).Apply(resolved)
	resolved = ComputeDiff(base, winner.State).Apply(resolved)
	return resolved
}

// orderByTime returns the updates as (loser, winner) by logical timestamp.
// Equal timestamps favor b, the update reaching the resolution point last.
func orderByTime(a, b Update) (Update, Update) {
	if a.At.After(b.At) {
		return b, a
	}
	return a, b
}

// resolveByTime is the resolution core shared by the merging strategies.
// Last-write-wins is defined per conflicting key (the later update takes
// each contested key, non-conflicting changes from both sides survive) and
// field-merge as the union of non-conflicting changes with contested keys
// going to the later write. Over key-level diffs those two rules produce
// identical resolutions, so the strategies coincide and differ only in
// name.
func resolveByTime(base map[string]any, a, b Update) map[string]any {
	loser, winner := orderByTime(a, b)
	return merge(base, loser, winner)
}

// LastWriteWins resolves each conflicting key in favor of the update with
// the later logical timestamp. Non-conflicting changes from both updates
// are preserved. This is the default strategy.
type LastWriteWins struct{}

func (LastWriteWins) Name() string { return StrategyLastWriteWins }

func (LastWriteWins) Resolve(_ string, base map[string]any, a, b Update) (map[string]any, error) {
	return resolveByTime(base, a, b), nil
}

// FieldMerge unions the non-conflicting keys of both updates and resolves
// conflicting keys by last-write-wins.
type FieldMerge struct{}

func (FieldMerge) Name() string { return StrategyFieldMerge }

func (FieldMerge) Resolve(_ string, base map[string]any, a, b Update) (map[string]any, error) {
	return resolveByTime(base, a, b), nil
}

// Reject refuses to merge divergent updates, returning a *ConflictError
// naming the offending keys so the caller retries with fresh state.
type Reject struct{}

func (Reject) Name() string { return StrategyReject }

func (Reject) Resolve(owner string, base map[string]any, a, b Update) (map[string]any, error) {
	keys := conflictingKeys(base, a, b)
	if len(keys) == 0 {
		// Divergence without key-level conflicts merges cleanly.
		return resolveByTime(base, a, b), nil
	}
	return nil, &ConflictError{Owner: owner, Keys: keys}
}
