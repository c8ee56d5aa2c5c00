package engine

import (
	"github.com/roach88/eoql/internal/store"
)

// LinkSet indexes grounding edges by their target.
type LinkSet map[string][]string

// BuildLinkSet converts stored grounding links into a traversal index.
func BuildLinkSet(links []store.GroundingLink) LinkSet {
	set := LinkSet{}
	for _, l := range links {
		set[l.TargetID] = append(set[l.TargetID], l.GroundedByID)
	}
	return set
}

// DeepestPath walks the grounding graph from start and returns the longest
// cycle-safe path, capped at maxDepth. Each worklist entry owns its path
// slice, so branches never alias each other, and a node already on the
// path is never revisited: cyclic grounding terminates instead of
// recursing.
func DeepestPath(start string, links LinkSet, maxDepth int) []string {
	if start == "" || maxDepth < 1 {
		return nil
	}

	type item struct {
		node string
		path []string
	}

	var deepest []string
	work := []item{{node: start, path: []string{start}}}

	for len(work) > 0 {
		cur := work[len(work)-1]
		work = work[:len(work)-1]

		if len(cur.path) > len(deepest) {
			deepest = cur.path
		}
		if len(cur.path) >= maxDepth {
			continue
		}

		for _, next := range links[cur.node] {
			onPath := false
			for _, seen := range cur.path {
				if seen == next {
					onPath = true
					break
				}
			}
			if onPath {
				continue
			}
			path := make([]string, len(cur.path), len(cur.path)+1)
			copy(path, cur.path)
			work = append(work, item{node: next, path: append(path, next)})
		}
	}

	return deepest
}
