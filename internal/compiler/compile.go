package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/eoql/internal/query"
)

// assertionColumns is the full column set of the assertion log, in schema
// order. Traversal stages enumerate it explicitly because their UNION arms
// must agree column-for-column.
var assertionColumns = []string{
	"assertion_id",
	"claim_type",
	"claim_content",
	"subject_id",
	"object_id",
	"asserted_at",
	"valid_from",
	"valid_until",
	"frame_id",
	"frame_version",
	"source_id",
	"grounding_ref",
	"certainty",
	"method",
	"visibility_scope",
	"assertion_mode",
}

// Compile lowers a query into a staged plan.
//
// The query is re-validated first: compilation of an unsound query is a
// programming error upstream, and the compiler refuses it the same way the
// validator would. Output is deterministic; the same query always produces
// byte-identical SQL.
func Compile(q query.Query) (*Plan, error) {
	if err := query.Validate(q); err != nil {
		return nil, err
	}

	hash, err := q.Hash()
	if err != nil {
		return nil, fmt.Errorf("hash query: %w", err)
	}

	frameVersion := q.Frame.Version
	if frameVersion == "" {
		frameVersion = "latest"
	}

	p := &Plan{
		Source:    q,
		QueryHash: hash,
		Context: ExecContext{
			FrameID:        q.Frame.FrameID,
			FrameVersion:   frameVersion,
			TimeKind:       q.Time.Kind,
			TimeValue:      timeValue(q.Time),
			Mode:           q.Mode,
			Visibility:     q.Visibility,
			ConflictPolicy: q.Returns.ConflictPolicy,
			Target:         q.Target,
		},
	}

	p.Stages = append(p.Stages, eventReplayStage(q.Time))
	p.Notes = append(p.Notes, "Time projection enforced via event replay stage")

	p.Stages = append(p.Stages, framedProjectionStage(q.Frame.FrameID))
	p.Notes = append(p.Notes, fmt.Sprintf("Frame '%s' applied explicitly", q.Frame.FrameID))

	p.Stages = append(p.Stages, modeFilteredStage(q.Mode))
	p.Notes = append(p.Notes, fmt.Sprintf("Mode '%s' applied", q.Mode))

	patternStage, fallbacks, err := patternFilteredStage(q.Pattern)
	if err != nil {
		return nil, err
	}
	p.Stages = append(p.Stages, patternStage)
	if q.Pattern.Match != "" || len(q.Pattern.Where) > 0 {
		p.Notes = append(p.Notes, "Pattern filters applied")
	}
	p.Notes = append(p.Notes, fallbacks...)

	if q.Grounding.Trace {
		traverse, withGrounding, err := groundingTraceStages(q.Grounding)
		if err != nil {
			return nil, err
		}
		p.Recursive = true
		p.Stages = append(p.Stages, traverse, withGrounding)
		p.Notes = append(p.Notes,
			fmt.Sprintf("Grounding trace enabled (depth: %d)", q.Grounding.MaxDepth))
	} else {
		p.Stages = append(p.Stages, groundingPassthroughStage())
	}

	p.Stages = append(p.Stages, visibilityFilteredStage(q.Visibility))
	p.Notes = append(p.Notes, fmt.Sprintf("Visibility '%s' applied", q.Visibility))

	if q.Target == query.TargetAbsences {
		stages, err := absenceStages(q)
		if err != nil {
			return nil, err
		}
		p.Stages = append(p.Stages, stages...)
		p.Notes = append(p.Notes,
			fmt.Sprintf("Absence computed from expectation '%s'", q.Absence.Expectation.ExpectationID))
	}

	proj, err := projectionStage(q)
	if err != nil {
		return nil, err
	}
	p.Stages = append(p.Stages, proj)

	if q.Returns.ConflictPolicy != query.ConflictExposeAll {
		p.Notes = append(p.Notes, "Conflict policy preserved (no silent collapse)")
	}
	p.Guard = conflictGuard(q.Returns)

	return p, nil
}

func timeValue(t query.TimeWindow) string {
	if t.Kind == query.TimeAsOf {
		return t.AsOf
	}
	return t.Start + "/" + t.End
}

// eventReplayStage reconstructs what was recorded inside the time window.
// AS OF is a replay boundary, not a latest-row shortcut: everything asserted
// up to the boundary participates, and nothing later leaks in.
func eventReplayStage(t query.TimeWindow) Stage {
	var where string
	if t.Kind == query.TimeAsOf {
		where = fmt.Sprintf("    WHERE asserted_at <= %s", quoteLiteral(t.AsOf))
	} else {
		where = fmt.Sprintf("    WHERE asserted_at >= %s\n    AND asserted_at <= %s",
			quoteLiteral(t.Start), quoteLiteral(t.End))
	}
	return Stage{
		Name:   "event_replay",
		Inputs: []string{"assertions"},
		SQL: "event_replay AS (\n" +
			"    SELECT *\n" +
			"    FROM assertions\n" +
			where + "\n" +
			")",
	}
}

// framedProjectionStage pins the frame. The filter is emitted even for the
// default frame so the interpretive choice is visible in the artifact.
func framedProjectionStage(frameID string) Stage {
	return Stage{
		Name:   "framed_projection",
		Inputs: []string{"event_replay"},
		SQL: "framed_projection AS (\n" +
			"    SELECT *\n" +
			"    FROM event_replay\n" +
			fmt.Sprintf("    WHERE frame_id = %s\n", quoteLiteral(frameID)) +
			")",
	}
}

// modeFilteredStage narrows to direct assertions for GIVEN. MEANT passes
// everything through: it may add interpretation downstream but never
// removes recorded rows.
func modeFilteredStage(m query.Mode) Stage {
	body := "    SELECT *\n    FROM framed_projection\n"
	if m == query.ModeGiven {
		body += "    WHERE assertion_mode = 'direct'\n"
	}
	return Stage{
		Name:   "mode_filtered",
		Inputs: []string{"framed_projection"},
		SQL:    "mode_filtered AS (\n" + body + ")",
	}
}

func patternFilteredStage(pat query.Pattern) (Stage, []string, error) {
	var conds []string
	var fallbackNotes []string

	if pat.Match != "" {
		m := quoteLiteral("%" + pat.Match + "%")
		conds = append(conds,
			fmt.Sprintf("(claim_type LIKE %s OR claim_content LIKE %s)", m, m))
	}
	for _, pred := range pat.Where {
		cond, fellBack, err := compilePredicate("pattern_filtered", "", pred)
		if err != nil {
			return Stage{}, nil, err
		}
		if fellBack {
			fallbackNotes = append(fallbackNotes,
				fmt.Sprintf("Operator '%s' not recognized; equality fallback applied", pred.Op))
		}
		conds = append(conds, cond)
	}

	body := "    SELECT *\n    FROM mode_filtered\n"
	for i, c := range conds {
		kw := "AND"
		if i == 0 {
			kw = "WHERE"
		}
		body += "    " + kw + " " + c + "\n"
	}

	return Stage{
		Name:   "pattern_filtered",
		Inputs: []string{"mode_filtered"},
		SQL:    "pattern_filtered AS (\n" + body + ")",
	}, fallbackNotes, nil
}

// groundingPassthroughStage keeps the column shape uniform when no trace is
// requested: every downstream stage sees grounding_path and grounding_depth.
func groundingPassthroughStage() Stage {
	return Stage{
		Name:   "with_grounding",
		Inputs: []string{"pattern_filtered"},
		SQL: "with_grounding AS (\n" +
			"    SELECT\n" +
			"        *,\n" +
			"        '' AS grounding_path,\n" +
			"        0 AS grounding_depth\n" +
			"    FROM pattern_filtered\n" +
			")",
	}
}

// groundingTraceStages emits the recursive provenance walk.
//
// The path accumulates as '/id/.../' text and the NOT LIKE guard refuses to
// revisit an id already on the path, so cyclic grounding terminates. Rows
// with no grounding_ref join back in untraversed with depth 0: weak
// grounding is reported, never used as grounds for exclusion, even when
// GROUNDED BY predicates are present.
func groundingTraceStages(g query.GroundingSpec) (Stage, Stage, error) {
	var base, recur strings.Builder
	for _, col := range assertionColumns {
		base.WriteString("        pf." + col + ",\n")
		if col == "grounding_ref" {
			recur.WriteString("        gl.grounded_by_id AS grounding_ref,\n")
		} else {
			recur.WriteString("        gt." + col + ",\n")
		}
	}

	traverse := Stage{
		Name:   "grounding_traverse",
		Inputs: []string{"pattern_filtered", "grounding_links"},
		SQL: "grounding_traverse AS (\n" +
			"    SELECT\n" +
			base.String() +
			"        '/' || pf.grounding_ref || '/' AS grounding_path,\n" +
			"        1 AS grounding_depth\n" +
			"    FROM pattern_filtered pf\n" +
			"    WHERE pf.grounding_ref IS NOT NULL\n" +
			"\n" +
			"    UNION ALL\n" +
			"\n" +
			"    SELECT\n" +
			recur.String() +
			"        gt.grounding_path || gl.grounded_by_id || '/' AS grounding_path,\n" +
			"        gt.grounding_depth + 1 AS grounding_depth\n" +
			"    FROM grounding_traverse gt\n" +
			"    JOIN grounding_links gl ON gl.target_id = gt.grounding_ref\n" +
			fmt.Sprintf("    WHERE gt.grounding_depth < %d\n", g.MaxDepth) +
			"    AND gt.grounding_path NOT LIKE '%/' || gl.grounded_by_id || '/%'\n" +
			")",
	}

	tracedArm := "    SELECT gt.*\n    FROM grounding_traverse gt\n"
	if len(g.GroundedBy) > 0 {
		var conds []string
		for _, pred := range g.GroundedBy {
			cond, _, err := compilePredicate("with_grounding", "ga", pred)
			if err != nil {
				return Stage{}, Stage{}, err
			}
			conds = append(conds, cond)
		}
		tracedArm += "    WHERE EXISTS (\n" +
			"        SELECT 1\n" +
			"        FROM assertions ga\n" +
			"        WHERE ga.assertion_id = gt.grounding_ref\n"
		for _, c := range conds {
			tracedArm += "        AND " + c + "\n"
		}
		tracedArm += "    )\n"
	}

	var ungrounded strings.Builder
	for _, col := range assertionColumns {
		ungrounded.WriteString("        pf." + col + ",\n")
	}

	withGrounding := Stage{
		Name:   "with_grounding",
		Inputs: []string{"grounding_traverse", "pattern_filtered"},
		SQL: "with_grounding AS (\n" +
			tracedArm +
			"\n" +
			"    UNION ALL\n" +
			"\n" +
			"    SELECT\n" +
			ungrounded.String() +
			"        '' AS grounding_path,\n" +
			"        0 AS grounding_depth\n" +
			"    FROM pattern_filtered pf\n" +
			"    WHERE pf.grounding_ref IS NULL\n" +
			")",
	}

	return traverse, withGrounding, nil
}

// visibilityFilteredStage enforces the visibility contract. VISIBLE narrows
// to in-scope rows; EXISTS keeps everything and annotates scoped-out rows
// instead, so hidden is never reported as absent.
func visibilityFilteredStage(v query.Visibility) Stage {
	var body string
	if v == query.VisibilityVisible {
		body = "    SELECT *\n" +
			"    FROM with_grounding\n" +
			"    WHERE visibility_scope = 'visible'\n"
	} else {
		body = "    SELECT\n" +
			"        *,\n" +
			"        CASE\n" +
			"            WHEN visibility_scope = 'visible' THEN NULL\n" +
			"            ELSE 'exists but outside scope: ' || visibility_scope\n" +
			"        END AS visibility_note\n" +
			"    FROM with_grounding\n"
	}
	return Stage{
		Name:   "visibility_filtered",
		Inputs: []string{"with_grounding"},
		SQL:    "visibility_filtered AS (\n" + body + ")",
	}
}

// absenceScopeColumns is the closed set of entity attributes an absence
// query may scope on. Anything else is refused.
var absenceScopeColumns = map[string]string{
	"entity_type": "entity_type",
	"label":       "label",
}

// absenceStages derives absence rows from an expectation rule. Absence is
// computed, never stored: expected entities minus entities with an actual
// claim in the window, via NOT EXISTS so no collapse construct appears.
func absenceStages(q query.Query) ([]Stage, error) {
	spec := q.Absence
	expID := quoteLiteral(spec.Expectation.ExpectationID)
	version := spec.Expectation.Version
	if version == "" {
		version = "latest"
	}
	expVersion := quoteLiteral(version)
	join := fmt.Sprintf("    JOIN expectations x ON x.expectation_id = %s AND x.version = %s\n",
		expID, expVersion)

	var scopeConds []string
	keys := make([]string, 0, len(spec.Scope))
	for k := range spec.Scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col, ok := absenceScopeColumns[k]
		if !ok {
			return nil, compileErrf("expected_entities", "cannot scope absence on %q", k)
		}
		lit, err := renderScalar("expected_entities", spec.Scope[k])
		if err != nil {
			return nil, err
		}
		scopeConds = append(scopeConds, "e."+col+" = "+lit)
	}

	expectedBody := "    SELECT e.entity_id, e.entity_type, e.label\n" +
		"    FROM entities e\n" +
		join +
		"    WHERE (x.entity_filter_type IS NULL OR e.entity_type = x.entity_filter_type)\n"
	for _, c := range scopeConds {
		expectedBody += "    AND " + c + "\n"
	}

	expected := Stage{
		Name:   "expected_entities",
		Inputs: []string{"entities", "expectations"},
		SQL:    "expected_entities AS (\n" + expectedBody + ")",
	}

	actual := Stage{
		Name:   "actual_claims",
		Inputs: []string{"visibility_filtered", "expectations"},
		SQL: "actual_claims AS (\n" +
			"    SELECT vf.subject_id\n" +
			"    FROM visibility_filtered vf\n" +
			join +
			"    WHERE vf.claim_type = x.claim_type\n" +
			")",
	}

	winStart, winEnd := q.Time.Start, q.Time.End
	if q.Time.Kind == query.TimeAsOf {
		winStart, winEnd = q.Time.AsOf, q.Time.AsOf
	}
	frameVersion := q.Frame.Version
	if frameVersion == "" {
		frameVersion = "latest"
	}

	computed := Stage{
		Name:   "computed_absences",
		Inputs: []string{"expected_entities", "actual_claims"},
		SQL: "computed_absences AS (\n" +
			"    SELECT\n" +
			"        x.expectation_id,\n" +
			"        x.version AS expectation_version,\n" +
			"        ee.entity_id AS expected_entity_id,\n" +
			"        x.claim_type AS expected_claim_type,\n" +
			fmt.Sprintf("        %s AS window_start,\n", quoteLiteral(winStart)) +
			fmt.Sprintf("        %s AS window_end,\n", quoteLiteral(winEnd)) +
			fmt.Sprintf("        %s AS frame_id,\n", quoteLiteral(q.Frame.FrameID)) +
			fmt.Sprintf("        %s AS frame_version\n", quoteLiteral(frameVersion)) +
			"    FROM expected_entities ee\n" +
			join +
			"    WHERE NOT EXISTS (\n" +
			"        SELECT 1\n" +
			"        FROM actual_claims ac\n" +
			"        WHERE ac.subject_id = ee.entity_id\n" +
			"    )\n" +
			")",
	}

	return []Stage{expected, actual, computed}, nil
}

// projectionStage shapes the final SELECT per target. No projection may
// deduplicate or pick winners; the two sanctioned collapses (deepest
// grounding path per assertion, ENTITIES identity dedup) happen in the
// executor where they are annotated.
func projectionStage(q query.Query) (Stage, error) {
	switch q.Target {
	case query.TargetClaims:
		cols := make([]string, 0, len(assertionColumns)+3)
		cols = append(cols, assertionColumns...)
		cols = append(cols, "grounding_path", "grounding_depth")
		if q.Visibility == query.VisibilityExists {
			cols = append(cols, "visibility_note")
		}
		return Stage{
			Name:   "projection",
			Inputs: []string{"visibility_filtered"},
			SQL: "SELECT\n    " + strings.Join(cols, ",\n    ") + "\n" +
				"FROM visibility_filtered\n" +
				"ORDER BY asserted_at, assertion_id",
		}, nil

	case query.TargetAssertions:
		return Stage{
			Name:   "projection",
			Inputs: []string{"visibility_filtered"},
			SQL: "SELECT *\n" +
				"FROM visibility_filtered\n" +
				"ORDER BY asserted_at, assertion_id",
		}, nil

	case query.TargetEntities:
		return Stage{
			Name:   "projection",
			Inputs: []string{"visibility_filtered"},
			SQL: "SELECT\n" +
				"    subject_id AS entity_id,\n" +
				"    claim_type,\n" +
				"    claim_content,\n" +
				"    frame_id\n" +
				"FROM visibility_filtered\n" +
				"ORDER BY subject_id, asserted_at, assertion_id",
		}, nil

	case query.TargetEdges:
		return Stage{
			Name:   "projection",
			Inputs: []string{"visibility_filtered"},
			SQL: "SELECT\n" +
				"    assertion_id,\n" +
				"    subject_id,\n" +
				"    object_id,\n" +
				"    claim_type,\n" +
				"    claim_content,\n" +
				"    frame_id,\n" +
				"    grounding_path,\n" +
				"    grounding_depth\n" +
				"FROM visibility_filtered\n" +
				"WHERE object_id IS NOT NULL\n" +
				"ORDER BY asserted_at, assertion_id",
		}, nil

	case query.TargetAbsences:
		return Stage{
			Name:   "projection",
			Inputs: []string{"computed_absences"},
			SQL: "SELECT\n" +
				"    expectation_id,\n" +
				"    expectation_version,\n" +
				"    expected_entity_id,\n" +
				"    expected_claim_type,\n" +
				"    window_start,\n" +
				"    window_end,\n" +
				"    frame_id,\n" +
				"    frame_version\n" +
				"FROM computed_absences\n" +
				"ORDER BY expected_entity_id",
		}, nil

	default:
		return Stage{}, compileErrf("projection", "unsupported target %q", string(q.Target))
	}
}

// conflictGuard returns the marker comment appended to the statement for
// non-default conflict policies. PICK_ONE names its rule so a collapsed
// answer is never anonymous.
func conflictGuard(r query.ReturnSpec) string {
	switch r.ConflictPolicy {
	case query.ConflictCluster:
		return "-- conflict clustering applied downstream"
	case query.ConflictRank:
		return "-- ranked results, alternates preserved"
	case query.ConflictPickOne:
		return fmt.Sprintf("-- single selection with explicit rule: '%s'", r.SelectionRule.RuleID)
	default:
		return ""
	}
}
