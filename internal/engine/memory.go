package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/eoql/internal/ir"
	"github.com/roach88/eoql/internal/query"
	"github.com/roach88/eoql/internal/registry"
	"github.com/roach88/eoql/internal/store"
)

// MemoryBackend interprets queries directly over in-memory records.
//
// It implements the same semantics as the SQL path without a database:
// replay, framing, mode, pattern, grounding traversal, visibility, and
// absence computation. It exists for fast differential checks against the
// compiled path and for environments without a store.
type MemoryBackend struct {
	Assertions   []store.AssertionRecord
	Links        []store.GroundingLink
	Entities     []store.EntityRecord
	Frames       *registry.FrameRegistry
	Expectations *registry.ExpectationRegistry
}

// Execute evaluates the query and returns the annotated result.
func (b *MemoryBackend) Execute(q query.Query) (*QueryResult, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}

	frameVersion := q.Frame.Version
	if frameVersion == "" {
		frameVersion = "latest"
	}
	if b.Frames != nil {
		def, err := b.Frames.Resolve(q.Frame.FrameID, q.Frame.Version)
		if err != nil {
			return nil, err
		}
		frameVersion = def.Version
	}

	hash, err := q.Hash()
	if err != nil {
		return nil, err
	}

	result := &QueryResult{
		Metadata: EpistemicMetadata{
			FrameID:        q.Frame.FrameID,
			FrameVersion:   frameVersion,
			TimeKind:       string(q.Time.Kind),
			Mode:           string(q.Mode),
			Visibility:     string(q.Visibility),
			ConflictPolicy: string(q.Returns.ConflictPolicy),
			QueryHash:      hash,
			QueryID:        uuid.NewString(),
			ExecutedAt:     time.Now().UTC().Format(time.RFC3339),
		},
	}
	if q.Time.Kind == query.TimeAsOf {
		result.Metadata.TimeValue = q.Time.AsOf
	} else {
		result.Metadata.TimeValue = q.Time.Start + "/" + q.Time.End
	}

	matched, err := b.filter(q)
	if err != nil {
		return nil, err
	}

	if q.Target == query.TargetAbsences {
		absences, err := b.computeAbsences(q, matched)
		if err != nil {
			return nil, err
		}
		result.Absences = absences
		return result, nil
	}

	rows := b.project(q, matched)

	if q.Target == query.TargetEntities {
		rows = dedupEntities(rows, result)
	}

	if q.Returns.IncludeConflicts || q.Returns.ConflictPolicy != query.ConflictExposeAll {
		clusters, membership := detectConflicts(rows)
		result.Conflicts = clusters
		for i := range rows {
			if cid, ok := membership[i]; ok {
				rows[i].ClusterID = cid
			}
		}
		switch q.Returns.ConflictPolicy {
		case query.ConflictRank:
			rankClusters(rows, clusters)
		case query.ConflictPickOne:
			rows, err = pickOne(rows, clusters, q.Returns.SelectionRule)
			if err != nil {
				return nil, err
			}
		}
	}

	result.Rows = rows
	return result, nil
}

// filter applies replay, frame, mode, pattern, grounding, and visibility
// in pipeline order, mirroring the compiled stages.
func (b *MemoryBackend) filter(q query.Query) ([]annotated, error) {
	var out []annotated
	links := BuildLinkSet(b.Links)

	for _, rec := range b.Assertions {
		if !inWindow(q.Time, rec.AssertedAt) {
			continue
		}
		if rec.FrameID != q.Frame.FrameID {
			continue
		}
		if q.Mode == query.ModeGiven && rec.AssertionMode != "direct" {
			continue
		}
		match, err := matchesPattern(q.Pattern, rec)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}

		a := annotated{rec: rec}
		if q.Grounding.Trace && rec.GroundingRef != nil {
			a.path = DeepestPath(*rec.GroundingRef, links, q.Grounding.MaxDepth)
			if len(q.Grounding.GroundedBy) > 0 {
				root := b.findAssertion(*rec.GroundingRef)
				if root == nil {
					continue
				}
				ok := true
				for _, pred := range q.Grounding.GroundedBy {
					m, err := evalPredicate(pred, *root)
					if err != nil {
						return nil, err
					}
					if !m {
						ok = false
						break
					}
				}
				if !ok {
					continue
				}
			}
		}

		if q.Visibility == query.VisibilityVisible {
			if rec.VisibilityScope != "visible" {
				continue
			}
		} else if rec.VisibilityScope != "visible" {
			a.visibilityNote = "exists but outside scope: " + rec.VisibilityScope
		}

		out = append(out, a)
	}
	return out, nil
}

type annotated struct {
	rec            store.AssertionRecord
	path           []string
	visibilityNote string
}

func (b *MemoryBackend) findAssertion(id string) *store.AssertionRecord {
	for i := range b.Assertions {
		if b.Assertions[i].AssertionID == id {
			return &b.Assertions[i]
		}
	}
	return nil
}

// project shapes matched records into result rows per target.
func (b *MemoryBackend) project(q query.Query, matched []annotated) []ResultRow {
	var rows []ResultRow
	for _, a := range matched {
		if q.Target == query.TargetEdges && a.rec.ObjectID == nil {
			continue
		}

		values := map[string]any{
			"assertion_id":  a.rec.AssertionID,
			"claim_type":    a.rec.ClaimType,
			"claim_content": a.rec.ClaimContent,
			"subject_id":    a.rec.SubjectID,
			"asserted_at":   a.rec.AssertedAt,
			"frame_id":      a.rec.FrameID,
			"frame_version": a.rec.FrameVersion,
		}
		if a.rec.ObjectID != nil {
			values["object_id"] = *a.rec.ObjectID
		}
		if a.rec.Certainty != nil {
			values["certainty"] = *a.rec.Certainty
		}
		if a.rec.Method != nil {
			values["method"] = *a.rec.Method
		}
		if q.Target == query.TargetEntities {
			values["entity_id"] = a.rec.SubjectID
		}

		row := ResultRow{
			Values:         values,
			GroundingPath:  a.path,
			GroundingDepth: len(a.path),
			VisibilityNote: a.visibilityNote,
		}
		if q.Grounding.Trace && len(a.path) == 0 {
			row.WeaklyGrounded = true
		}
		rows = append(rows, row)
	}
	return rows
}

// computeAbsences applies the expectation rule over the entity set minus
// the matched claims.
func (b *MemoryBackend) computeAbsences(q query.Query, matched []annotated) ([]AbsenceResult, error) {
	spec := q.Absence
	if b.Expectations == nil {
		return nil, &ExecutionError{Message: "no expectation registry configured"}
	}
	def, err := b.Expectations.Resolve(spec.Expectation.ExpectationID, spec.Expectation.Version)
	if err != nil {
		return nil, err
	}

	claimed := map[string]bool{}
	for _, a := range matched {
		if a.rec.ClaimType == def.Rule.ClaimType {
			claimed[a.rec.SubjectID] = true
		}
	}

	window := registry.Window(def, referenceTime(q.Time), spec.DeadlineHours)
	winStart, winEnd := window.FormatISO()
	computedAt := time.Now().UTC().Format(time.RFC3339)
	frameVersion := q.Frame.Version
	if frameVersion == "" {
		frameVersion = "latest"
	}

	var out []AbsenceResult
	for _, ent := range b.Entities {
		if def.Rule.EntityFilterType != "" && ent.EntityType != def.Rule.EntityFilterType {
			continue
		}
		if !matchesScope(spec.Scope, ent) {
			continue
		}
		if claimed[ent.EntityID] {
			continue
		}
		out = append(out, AbsenceResult{
			AbsenceID:          uuid.NewString(),
			ExpectationID:      def.ExpectationID,
			ExpectationVersion: def.Version,
			ExpectedEntityID:   ent.EntityID,
			ExpectedClaimType:  def.Rule.ClaimType,
			WindowStart:        winStart,
			WindowEnd:          winEnd,
			FrameID:            q.Frame.FrameID,
			FrameVersion:       frameVersion,
			ComputedAt:         computedAt,
		})
	}
	return out, nil
}

func matchesScope(scope map[string]ir.Value, ent store.EntityRecord) bool {
	for key, want := range scope {
		var have string
		switch key {
		case "entity_type":
			have = ent.EntityType
		case "label":
			have = ent.Label
		default:
			return false
		}
		s, ok := want.(ir.String)
		if !ok || string(s) != have {
			return false
		}
	}
	return true
}

func inWindow(tw query.TimeWindow, assertedAt string) bool {
	if tw.Kind == query.TimeAsOf {
		return assertedAt <= tw.AsOf
	}
	return assertedAt >= tw.Start && assertedAt <= tw.End
}

func matchesPattern(p query.Pattern, rec store.AssertionRecord) (bool, error) {
	if p.Match != "" {
		if !strings.Contains(rec.ClaimType, p.Match) &&
			!strings.Contains(rec.ClaimContent, p.Match) {
			return false, nil
		}
	}
	for _, pred := range p.Where {
		ok, err := evalPredicate(pred, rec)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// evalPredicate evaluates one predicate against a record, dispatching
// through the same operator union the compiler uses.
func evalPredicate(pred query.Predicate, rec store.AssertionRecord) (bool, error) {
	field, ok := recordField(pred.Field, rec)
	if !ok {
		return false, &ExecutionError{Message: fmt.Sprintf("unknown field %q", pred.Field)}
	}

	op, _ := query.ParseOp(pred.Op)
	switch op {
	case query.OpEq:
		return field != nil && ir.Equal(field, pred.Value), nil
	case query.OpNe:
		return field != nil && !ir.Equal(field, pred.Value), nil
	case query.OpGt, query.OpGe, query.OpLt, query.OpLe:
		cmp, ok := compareValues(field, pred.Value)
		if !ok {
			return false, nil
		}
		switch op {
		case query.OpGt:
			return cmp > 0, nil
		case query.OpGe:
			return cmp >= 0, nil
		case query.OpLt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case query.OpIn:
		list, ok := pred.Value.(ir.List)
		if !ok {
			return false, &ExecutionError{Message: "IN requires a list value"}
		}
		for _, elem := range list {
			if field != nil && ir.Equal(field, elem) {
				return true, nil
			}
		}
		return false, nil
	case query.OpContains:
		fs, fok := field.(ir.String)
		ps, pok := pred.Value.(ir.String)
		return fok && pok && strings.Contains(string(fs), string(ps)), nil
	case query.OpIsNull:
		return field == nil, nil
	case query.OpIsNotNull:
		return field != nil, nil
	default:
		return false, &ExecutionError{Message: fmt.Sprintf("unsupported operator %q", pred.Op)}
	}
}

// recordField maps a query field path to the record's value. A nil Value
// with ok=true means the field exists but is null.
func recordField(path string, rec store.AssertionRecord) (ir.Value, bool) {
	switch path {
	case "claim_type":
		return ir.String(rec.ClaimType), true
	case "claim_content":
		return ir.String(rec.ClaimContent), true
	case "subject_id":
		return ir.String(rec.SubjectID), true
	case "object_id":
		if rec.ObjectID == nil {
			return nil, true
		}
		return ir.String(*rec.ObjectID), true
	case "asserted_at":
		return ir.String(rec.AssertedAt), true
	case "source.type", "source.id":
		if rec.SourceID == nil {
			return nil, true
		}
		return ir.String(*rec.SourceID), true
	case "epistemic.method":
		if rec.Method == nil {
			return nil, true
		}
		return ir.String(*rec.Method), true
	case "epistemic.certainty":
		if rec.Certainty == nil {
			return nil, true
		}
		return ir.Float(*rec.Certainty), true
	case "visibility_scope":
		return ir.String(rec.VisibilityScope), true
	case "assertion_mode":
		return ir.String(rec.AssertionMode), true
	default:
		return nil, false
	}
}

// compareValues orders two values when they are comparable: strings
// lexically, numbers numerically. Mixed or non-ordered types report not
// comparable, and the predicate is simply false.
func compareValues(a, b ir.Value) (int, bool) {
	if as, ok := a.(ir.String); ok {
		if bs, ok := b.(ir.String); ok {
			return strings.Compare(string(as), string(bs)), true
		}
		return 0, false
	}
	af, aok := numeric(a)
	bf, bok := numeric(b)
	if !aok || !bok {
		return 0, false
	}
	switch {
	case af < bf:
		return -1, true
	case af > bf:
		return 1, true
	default:
		return 0, true
	}
}

func numeric(v ir.Value) (float64, bool) {
	switch n := v.(type) {
	case ir.Int:
		return float64(n), true
	case ir.Float:
		return float64(n), true
	default:
		return 0, false
	}
}
