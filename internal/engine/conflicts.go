package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/roach88/eoql/internal/compiler"
	"github.com/roach88/eoql/internal/query"
)

// applyConflictPolicy detects competing claims and surfaces them per the
// query's policy. Detection is structural: any group of rows sharing a
// subject and claim type is competing, whether the claims disagree or
// merely corroborate. No policy erases the cluster from the result; even
// PICK_ONE records the full membership.
func (e *Executor) applyConflictPolicy(plan *compiler.Plan, rows []ResultRow, result *QueryResult) ([]ResultRow, error) {
	clusters, membership := detectConflicts(rows)
	result.Conflicts = clusters

	for i := range rows {
		if cid, ok := membership[i]; ok {
			rows[i].ClusterID = cid
		}
	}

	switch plan.Context.ConflictPolicy {
	case query.ConflictExposeAll, query.ConflictCluster:
		return rows, nil

	case query.ConflictRank:
		rankClusters(rows, clusters)
		result.Notes = append(result.Notes, "Conflicting rows ranked; alternates preserved")
		return rows, nil

	case query.ConflictPickOne:
		rule := plan.Source.Returns.SelectionRule
		selected, err := pickOne(rows, clusters, rule)
		if err != nil {
			return nil, err
		}
		result.Notes = append(result.Notes,
			fmt.Sprintf("Selection rule '%s' applied; alternates recorded in conflict clusters", rule.RuleID))
		return selected, nil

	default:
		return rows, nil
	}
}

// detectConflicts groups rows by (subject_id, claim_type) and marks every
// group of size above one as competing. Content is deliberately not
// compared: two sources agreeing is still two claims about the same thing,
// and collapsing corroboration into a single voice would manufacture
// certainty. Returns the clusters plus a row-index to cluster-id map.
func detectConflicts(rows []ResultRow) ([]ConflictCluster, map[int]string) {
	type group struct {
		subject   string
		claimType string
		indices   []int
	}

	groups := map[string]*group{}
	var order []string
	for i, row := range rows {
		subject := asString(row.Values["subject_id"])
		claimType := asString(row.Values["claim_type"])
		if subject == "" || claimType == "" {
			continue
		}
		key := subject + "\x00" + claimType
		g, ok := groups[key]
		if !ok {
			g = &group{subject: subject, claimType: claimType}
			groups[key] = g
			order = append(order, key)
		}
		g.indices = append(g.indices, i)
	}

	var clusters []ConflictCluster
	membership := map[int]string{}
	for _, key := range order {
		g := groups[key]
		if len(g.indices) < 2 {
			continue
		}
		cluster := ConflictCluster{
			ClusterID: uuid.NewString(),
			SubjectID: g.subject,
			ClaimType: g.claimType,
			Status:    "competing",
		}
		for _, idx := range g.indices {
			cluster.AssertionIDs = append(cluster.AssertionIDs,
				asString(rows[idx].Values["assertion_id"]))
			membership[idx] = cluster.ClusterID
		}
		clusters = append(clusters, cluster)
	}
	return clusters, membership
}

// rankClusters orders competing rows by certainty, newest first on ties,
// and writes 1-based ranks. Rows outside clusters keep rank 0.
func rankClusters(rows []ResultRow, clusters []ConflictCluster) {
	for _, cluster := range clusters {
		var indices []int
		for i := range rows {
			if rows[i].ClusterID == cluster.ClusterID {
				indices = append(indices, i)
			}
		}
		sort.SliceStable(indices, func(a, b int) bool {
			return betterRow(rows[indices[a]], rows[indices[b]], "highest_certainty")
		})
		for rank, idx := range indices {
			rows[idx].Rank = rank + 1
		}
	}
}

// pickOne keeps the winning row per cluster plus every non-conflicting
// row. The rule must be one the engine knows; an unknown rule refuses
// rather than guessing what the caller meant.
func pickOne(rows []ResultRow, clusters []ConflictCluster, rule *query.SelectionRule) ([]ResultRow, error) {
	switch rule.RuleID {
	case "highest_certainty", "latest_asserted":
	default:
		return nil, &ExecutionError{
			Message: fmt.Sprintf("unknown selection rule %q", rule.RuleID),
		}
	}

	winners := map[string]int{}
	for _, cluster := range clusters {
		best := -1
		for i := range rows {
			if rows[i].ClusterID != cluster.ClusterID {
				continue
			}
			if best == -1 || betterRow(rows[i], rows[best], rule.RuleID) {
				best = i
			}
		}
		if best >= 0 {
			winners[cluster.ClusterID] = best
		}
	}

	var out []ResultRow
	for i := range rows {
		cid := rows[i].ClusterID
		if cid == "" {
			out = append(out, rows[i])
			continue
		}
		if winners[cid] == i {
			rows[i].Selected = true
			out = append(out, rows[i])
		}
	}
	return out, nil
}

// betterRow reports whether a beats b under the given rule.
func betterRow(a, b ResultRow, ruleID string) bool {
	switch ruleID {
	case "latest_asserted":
		at, bt := asString(a.Values["asserted_at"]), asString(b.Values["asserted_at"])
		if at != bt {
			return at > bt
		}
		return asString(a.Values["assertion_id"]) > asString(b.Values["assertion_id"])
	default:
		ac, aok := asFloat(a.Values["certainty"])
		bc, bok := asFloat(b.Values["certainty"])
		if aok != bok {
			return aok
		}
		if ac != bc {
			return ac > bc
		}
		at, bt := asString(a.Values["asserted_at"]), asString(b.Values["asserted_at"])
		if at != bt {
			return at > bt
		}
		return asString(a.Values["assertion_id"]) > asString(b.Values["assertion_id"])
	}
}
