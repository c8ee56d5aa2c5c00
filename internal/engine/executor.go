package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/eoql/internal/compiler"
	"github.com/roach88/eoql/internal/query"
	"github.com/roach88/eoql/internal/registry"
	"github.com/roach88/eoql/internal/store"
)

// ExecMode controls how the executor treats epistemic caveats.
type ExecMode int

const (
	// ModeAnnotated returns everything, annotated. The default.
	ModeAnnotated ExecMode = iota
	// ModeStrict refuses results that would need caveats.
	ModeStrict
	// ModeExplain returns the plan without executing it.
	ModeExplain
)

func (m ExecMode) String() string {
	switch m {
	case ModeStrict:
		return "STRICT"
	case ModeExplain:
		return "EXPLAIN"
	default:
		return "ANNOTATED"
	}
}

// Executor runs compiled plans against the assertion log.
//
// One statement is in flight at a time per executor: plans run inside a
// read transaction and the mutex keeps result assembly race-free. Open
// more executors for parallelism; they share the store safely.
type Executor struct {
	mu           sync.Mutex
	store        *store.Store
	frames       *registry.FrameRegistry
	expectations *registry.ExpectationRegistry
	mode         ExecMode
}

// New creates an executor in ANNOTATED mode.
func New(st *store.Store, frames *registry.FrameRegistry, expectations *registry.ExpectationRegistry) *Executor {
	return &Executor{store: st, frames: frames, expectations: expectations}
}

// WithMode returns the executor configured for the given mode.
func (e *Executor) WithMode(mode ExecMode) *Executor {
	e.mode = mode
	return e
}

// Execute runs a plan and assembles the epistemically annotated result.
func (e *Executor) Execute(ctx context.Context, plan *compiler.Plan) (*QueryResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	started := time.Now()
	frameDef, err := e.frames.Resolve(plan.Context.FrameID, plan.Source.Frame.Version)
	if err != nil {
		return nil, err
	}

	meta := EpistemicMetadata{
		FrameID:         frameDef.FrameID,
		FrameVersion:    frameDef.Version,
		TimeKind:        string(plan.Context.TimeKind),
		TimeValue:       plan.Context.TimeValue,
		Mode:            string(plan.Context.Mode),
		Visibility:      string(plan.Context.Visibility),
		ConflictPolicy:  string(plan.Context.ConflictPolicy),
		QueryHash:       plan.QueryHash,
		PlanFingerprint: plan.Fingerprint(),
		QueryID:         uuid.NewString(),
		ExecutedAt:      started.UTC().Format(time.RFC3339),
	}

	result := &QueryResult{Metadata: meta}
	result.Notes = append(result.Notes, plan.Notes...)
	defer func() {
		result.Metadata.ExecutionTimeMS = time.Since(started).Milliseconds()
	}()

	if e.mode == ModeExplain {
		stages := make([]string, len(plan.Stages))
		for i, s := range plan.Stages {
			stages[i] = s.Name
		}
		result.Explain = &Explain{
			SQL:         plan.SQL(),
			Stages:      stages,
			Fingerprint: plan.Fingerprint(),
		}
		return result, nil
	}

	rows, err := e.queryRows(ctx, plan.SQL())
	if err != nil {
		return nil, err
	}

	if plan.Context.Target == query.TargetAbsences {
		absences, err := e.buildAbsences(plan, rows)
		if err != nil {
			return nil, err
		}
		result.Absences = absences
		return result, nil
	}

	built, err := e.buildRows(plan, rows)
	if err != nil {
		return nil, err
	}

	if plan.Recursive {
		built = collapseDeepestPath(built, result)
	}
	if plan.Context.Target == query.TargetEntities {
		built = dedupEntities(built, result)
	}

	if plan.Source.Returns.IncludeConflicts || plan.Context.ConflictPolicy != query.ConflictExposeAll {
		built, err = e.applyConflictPolicy(plan, built, result)
		if err != nil {
			return nil, err
		}
	}

	if e.mode == ModeStrict {
		if err := checkStrict(plan, built, result); err != nil {
			return nil, err
		}
	}

	result.Rows = built
	return result, nil
}

// queryRows runs the statement in a read transaction and scans every row
// into a column-keyed map. The transaction rolls back unconditionally; a
// query never writes.
func (e *Executor) queryRows(ctx context.Context, sqlText string) ([]map[string]any, error) {
	tx, err := e.store.Begin(ctx)
	if err != nil {
		return nil, &ExecutionError{Message: "begin transaction", SQL: sqlText, Err: err}
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, &ExecutionError{Message: "run plan", SQL: sqlText, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &ExecutionError{Message: "read columns", SQL: sqlText, Err: err}
	}

	var out []map[string]any
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return nil, &ExecutionError{Message: "canceled", SQL: sqlText, Err: err}
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &ExecutionError{Message: "scan row", SQL: sqlText, Err: err}
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = normalizeSQLValue(vals[i])
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, &ExecutionError{Message: "iterate rows", SQL: sqlText, Err: err}
	}
	return out, nil
}

// buildRows converts raw rows into annotated result rows, merging the
// execution context under the row values when requested. Row values win
// over context values; the merge adds interpretation, never overwrites
// data.
func (e *Executor) buildRows(plan *compiler.Plan, raw []map[string]any) ([]ResultRow, error) {
	needsProvenance := plan.Context.Target == query.TargetClaims ||
		plan.Context.Target == query.TargetAssertions

	var out []ResultRow
	for _, m := range raw {
		if needsProvenance {
			if fid, _ := m["frame_id"].(string); fid == "" {
				return nil, &EpistemicViolationError{
					ViolationType: "provenance_erased",
					Message:       "result row arrived without frame_id",
				}
			}
		}

		row := ResultRow{Values: m}

		if p, ok := m["grounding_path"].(string); ok {
			row.GroundingPath = splitPath(p)
			delete(m, "grounding_path")
		}
		if d, ok := asInt(m["grounding_depth"]); ok {
			row.GroundingDepth = d
			delete(m, "grounding_depth")
		}
		if plan.Source.Grounding.Trace && row.GroundingDepth == 0 {
			row.WeaklyGrounded = true
		}
		if n, ok := m["visibility_note"].(string); ok && n != "" {
			row.VisibilityNote = n
		}
		delete(m, "visibility_note")

		if plan.Source.Returns.IncludeContext {
			mergeContext(m, plan)
		}

		out = append(out, row)
	}
	return out, nil
}

// mergeContext adds execution-context keys the row does not already carry.
func mergeContext(m map[string]any, plan *compiler.Plan) {
	template := map[string]any{
		"frame_id":      plan.Context.FrameID,
		"frame_version": plan.Context.FrameVersion,
		"time_kind":     string(plan.Context.TimeKind),
		"time_value":    plan.Context.TimeValue,
		"mode":          string(plan.Context.Mode),
		"visibility":    string(plan.Context.Visibility),
	}
	for k, v := range template {
		if _, exists := m[k]; !exists {
			m[k] = v
		}
	}
}

// buildAbsences turns computed_absences rows into first-class absence
// objects. The window comes from the expectation registry relative to the
// query's reference instant, so an absence always names the recurrence
// window it was judged against.
func (e *Executor) buildAbsences(plan *compiler.Plan, raw []map[string]any) ([]AbsenceResult, error) {
	spec := plan.Source.Absence
	def, err := e.expectations.Resolve(spec.Expectation.ExpectationID, spec.Expectation.Version)
	if err != nil {
		return nil, err
	}

	ref := referenceTime(plan.Source.Time)
	window := registry.Window(def, ref, spec.DeadlineHours)
	winStart, winEnd := window.FormatISO()
	computedAt := time.Now().UTC().Format(time.RFC3339)

	var out []AbsenceResult
	for _, m := range raw {
		out = append(out, AbsenceResult{
			AbsenceID:          uuid.NewString(),
			ExpectationID:      asString(m["expectation_id"]),
			ExpectationVersion: asString(m["expectation_version"]),
			ExpectedEntityID:   asString(m["expected_entity_id"]),
			ExpectedClaimType:  asString(m["expected_claim_type"]),
			WindowStart:        winStart,
			WindowEnd:          winEnd,
			FrameID:            asString(m["frame_id"]),
			FrameVersion:       asString(m["frame_version"]),
			ComputedAt:         computedAt,
		})
	}
	return out, nil
}

// collapseDeepestPath keeps one row per assertion: the deepest traversal.
// This is a sanctioned collapse; the traversal emits one row per depth and
// the deepest subsumes the rest. It is annotated, never silent.
func collapseDeepestPath(rows []ResultRow, result *QueryResult) []ResultRow {
	type slot struct {
		idx   int
		depth int
	}
	best := map[string]slot{}
	var order []string
	collapsed := false

	for i, row := range rows {
		id := asString(row.Values["assertion_id"])
		if id == "" {
			order = append(order, fmt.Sprintf("\x00anon-%d", i))
			best[fmt.Sprintf("\x00anon-%d", i)] = slot{idx: i, depth: row.GroundingDepth}
			continue
		}
		if prev, seen := best[id]; seen {
			collapsed = true
			if row.GroundingDepth > prev.depth {
				best[id] = slot{idx: i, depth: row.GroundingDepth}
			}
			continue
		}
		best[id] = slot{idx: i, depth: row.GroundingDepth}
		order = append(order, id)
	}

	out := make([]ResultRow, 0, len(order))
	for _, id := range order {
		out = append(out, rows[best[id].idx])
	}
	if collapsed {
		result.Notes = append(result.Notes, "Grounding collapsed to deepest path per assertion")
	}
	return out
}

// dedupEntities keeps the first row per entity identity. The second
// sanctioned collapse: asking for entities is asking about identity, and
// repetition across claims is not information about identity.
func dedupEntities(rows []ResultRow, result *QueryResult) []ResultRow {
	seen := map[string]bool{}
	out := make([]ResultRow, 0, len(rows))
	deduped := false
	for _, row := range rows {
		id := asString(row.Values["entity_id"])
		if id != "" && seen[id] {
			deduped = true
			continue
		}
		seen[id] = true
		out = append(out, row)
	}
	if deduped {
		result.Notes = append(result.Notes, "Entities deduplicated by identity")
	}
	return out
}

// checkStrict enforces STRICT mode: any caveat the result would carry as an
// annotation becomes a refusal instead. PICK_ONE conflicts pass because
// their resolution is explicit.
func checkStrict(plan *compiler.Plan, rows []ResultRow, result *QueryResult) error {
	for _, row := range rows {
		if row.VisibilityNote != "" {
			return &ExecutionError{Message: "scoped-out rows present under STRICT execution"}
		}
		if row.WeaklyGrounded {
			return &ExecutionError{Message: "weakly grounded rows present under STRICT execution"}
		}
	}
	if len(result.Conflicts) > 0 && plan.Context.ConflictPolicy != query.ConflictPickOne {
		return &ExecutionError{Message: "conflicting claims present under STRICT execution"}
	}
	return nil
}

func referenceTime(tw query.TimeWindow) time.Time {
	ts := tw.AsOf
	if tw.Kind == query.TimeBetween {
		ts = tw.End
	}
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return t
	}
	return time.Now().UTC()
}

func splitPath(p string) []string {
	trimmed := strings.Trim(p, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		return int(n), true
	case string:
		var parsed int
		if _, err := fmt.Sscanf(n, "%d", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case string:
		var parsed float64
		if _, err := fmt.Sscanf(n, "%g", &parsed); err == nil {
			return parsed, true
		}
	}
	return 0, false
}
