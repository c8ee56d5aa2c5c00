package query

import (
	"fmt"
	"reflect"
)

// Change describes a single field-path difference between two queries.
// Exactly one of the semantics applies: value changed (Was/Now), present
// only in the second query (Added), or only in the first (Removed).
type Change struct {
	Was     any  `json:"was,omitempty"`
	Now     any  `json:"now,omitempty"`
	Added   any  `json:"added,omitempty"`
	Removed any  `json:"removed,omitempty"`
	IsAdd   bool `json:"-"`
	IsDrop  bool `json:"-"`
}

// DiffResult is a field-path-keyed difference map between two queries.
type DiffResult struct {
	Same        bool              `json:"same"`
	Differences map[string]Change `json:"differences"`
}

// Diff compares two queries and returns their differences keyed by field
// path (e.g. "time.as_of", "returns.conflict_policy").
func Diff(q1, q2 Query) (DiffResult, error) {
	m1, err := q1.toMap()
	if err != nil {
		return DiffResult{}, fmt.Errorf("diff first query: %w", err)
	}
	m2, err := q2.toMap()
	if err != nil {
		return DiffResult{}, fmt.Errorf("diff second query: %w", err)
	}

	differences := map[string]Change{}
	diffMaps(m1, m2, "", differences)

	return DiffResult{
		Same:        len(differences) == 0,
		Differences: differences,
	}, nil
}

func diffMaps(a, b map[string]any, path string, out map[string]Change) {
	keys := map[string]bool{}
	for k := range a {
		keys[k] = true
	}
	for k := range b {
		keys[k] = true
	}

	for key := range keys {
		current := key
		if path != "" {
			current = path + "." + key
		}

		av, inA := a[key]
		bv, inB := b[key]

		switch {
		case !inA:
			out[current] = Change{Added: bv, IsAdd: true}
		case !inB:
			out[current] = Change{Removed: av, IsDrop: true}
		case !reflect.DeepEqual(av, bv):
			am, aok := av.(map[string]any)
			bm, bok := bv.(map[string]any)
			if aok && bok {
				diffMaps(am, bm, current, out)
			} else {
				out[current] = Change{Was: av, Now: bv}
			}
		}
	}
}
