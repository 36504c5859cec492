package collab

import (
	"maps"
	"reflect"
	"sort"
)

// Mapper is the capability a domain-state type implements to control its
// serialized projection. Values without it degrade to a single-key
// {"value": v} mapping.
type Mapper interface {
	ToMapping() map[string]any
}

// OpaqueKey is the key under which non-mappable values are projected.
const OpaqueKey = "value"

// ToMapping projects an arbitrary domain-state value onto a flat
// key-value mapping. The projection is total: map[string]any values are
// cloned, Mapper implementations provide their own mapping, and anything
// else is wrapped under OpaqueKey. The input is never mutated.
func ToMapping(state any) map[string]any {
	switch s := state.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return maps.Clone(s)
	case Mapper:
		m := s.ToMapping()
		if m == nil {
			return map[string]any{}
		}
		return maps.Clone(m)
	default:
		return map[string]any{OpaqueKey: state}
	}
}

// Change records one key's transition in a diff. A nil Old marks an added
// key, a nil New marks a removed key, both non-nil marks a modification.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// Diff maps changed keys to their transitions. Keys equal in both
// mappings are omitted.
type Diff map[string]Change

// ComputeDiff compares two mappings over the union of their keys.
// Deterministic and side-effect free; equality is reflect.DeepEqual.
func ComputeDiff(old, updated map[string]any) Diff {
	d := make(Diff)

	for key, oldVal := range old {
		newVal, exists := updated[key]
		if !exists {
			d[key] = Change{Old: oldVal, New: nil}
			continue
		}
		if !reflect.DeepEqual(oldVal, newVal) {
			d[key] = Change{Old: oldVal, New: newVal}
		}
	}
	for key, newVal := range updated {
		if _, exists := old[key]; !exists {
			d[key] = Change{Old: nil, New: newVal}
		}
	}
	return d
}

// Apply folds the diff into the mapping, returning a new mapping. Added
// and modified keys take their New value; removed keys (nil New) are
// deleted. The input mapping is not modified.
//
// nil doubles as the removal marker, so a key modified to a nil (JSON
// null) value is indistinguishable from a removal and is likewise
// dropped. States that must round-trip through replay should omit keys
// rather than null them.
func (d Diff) Apply(m map[string]any) map[string]any {
	result := maps.Clone(m)
	if result == nil {
		result = make(map[string]any)
	}
	for key, change := range d {
		if change.New == nil {
			delete(result, key)
			continue
		}
		result[key] = change.New
	}
	return result
}

// Keys returns the changed keys in sorted order.
func (d Diff) Keys() []string {
	keys := make([]string, 0, len(d))
	for key := range d {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
