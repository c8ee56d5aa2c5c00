package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eoql/internal/ir"
	"github.com/roach88/eoql/internal/query"
	"github.com/roach88/eoql/internal/registry"
	"github.com/roach88/eoql/internal/store"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func assertion(id, claimType, content, subject, at string) store.AssertionRecord {
	return store.AssertionRecord{
		AssertionID:     id,
		ClaimType:       claimType,
		ClaimContent:    content,
		SubjectID:       subject,
		AssertedAt:      at,
		FrameID:         "F_default",
		FrameVersion:    "1.0",
		VisibilityScope: "visible",
		AssertionMode:   "direct",
	}
}

func claimsQuery() query.Query {
	return query.Query{
		Target:     query.TargetClaims,
		Mode:       query.ModeGiven,
		Visibility: query.VisibilityVisible,
		Frame:      query.FrameRef{FrameID: "F_default"},
		Time:       query.AsOf("2025-06-30T00:00:00Z"),
		Returns:    query.DefaultReturns(),
	}
}

func TestMemoryBackend_ConflictsSurfaceAsClusters(t *testing.T) {
	// Two sources disagree about S1's temperature. Both rows come back
	// and the disagreement is a first-class cluster.
	a1 := assertion("a1", "temperature", "20C", "S1", "2025-06-01T10:00:00Z")
	a1.Certainty = floatPtr(0.9)
	a2 := assertion("a2", "temperature", "25C", "S1", "2025-06-01T11:00:00Z")
	a2.Certainty = floatPtr(0.6)

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	result, err := b.Execute(claimsQuery())
	require.NoError(t, err)

	assert.Len(t, result.Rows, 2, "no conflict may be silently collapsed")
	require.Len(t, result.Conflicts, 1)
	cluster := result.Conflicts[0]
	assert.Equal(t, "competing", cluster.Status)
	assert.Equal(t, "S1", cluster.SubjectID)
	assert.Equal(t, "temperature", cluster.ClaimType)
	assert.ElementsMatch(t, []string{"a1", "a2"}, cluster.AssertionIDs)
	for _, row := range result.Rows {
		assert.Equal(t, cluster.ClusterID, row.ClusterID)
	}
}

func TestMemoryBackend_CorroborationStillClusters(t *testing.T) {
	// Two sources say the same thing about S1. Agreement is still two
	// claims about the same subject and type; the group clusters so the
	// reader sees corroboration, not a single voice.
	a1 := assertion("a1", "temperature", "20C", "S1", "2025-06-01T10:00:00Z")
	a2 := assertion("a2", "temperature", "20C", "S1", "2025-06-01T11:00:00Z")

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	result, err := b.Execute(claimsQuery())
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, "competing", result.Conflicts[0].Status)
	assert.ElementsMatch(t, []string{"a1", "a2"}, result.Conflicts[0].AssertionIDs)
}

func TestMemoryBackend_DistinctSubjectsDoNotCluster(t *testing.T) {
	a1 := assertion("a1", "temperature", "20C", "S1", "2025-06-01T10:00:00Z")
	a2 := assertion("a2", "temperature", "20C", "S2", "2025-06-01T11:00:00Z")

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	result, err := b.Execute(claimsQuery())
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.Empty(t, result.Conflicts)
}

func TestMemoryBackend_PickOneSelectsAndRecordsAlternates(t *testing.T) {
	a1 := assertion("a1", "temperature", "20C", "S1", "2025-06-01T10:00:00Z")
	a1.Certainty = floatPtr(0.9)
	a2 := assertion("a2", "temperature", "25C", "S1", "2025-06-01T11:00:00Z")
	a2.Certainty = floatPtr(0.6)

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	q := claimsQuery()
	q.Returns.ConflictPolicy = query.ConflictPickOne
	q.Returns.SelectionRule = &query.SelectionRule{RuleID: "highest_certainty"}

	result, err := b.Execute(q)
	require.NoError(t, err)

	require.Len(t, result.Rows, 1)
	assert.Equal(t, "a1", result.Rows[0].Values["assertion_id"])
	assert.True(t, result.Rows[0].Selected)
	require.Len(t, result.Conflicts, 1, "the cluster survives the selection")
	assert.ElementsMatch(t, []string{"a1", "a2"}, result.Conflicts[0].AssertionIDs)
}

func TestMemoryBackend_PickOneUnknownRuleRefuses(t *testing.T) {
	a1 := assertion("a1", "temperature", "20C", "S1", "2025-06-01T10:00:00Z")
	a2 := assertion("a2", "temperature", "25C", "S1", "2025-06-01T11:00:00Z")

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	q := claimsQuery()
	q.Returns.ConflictPolicy = query.ConflictPickOne
	q.Returns.SelectionRule = &query.SelectionRule{RuleID: "vibes"}

	_, err := b.Execute(q)
	require.Error(t, err)
	assert.True(t, IsExecutionError(err))
}

func TestMemoryBackend_TimeReplayExcludesLaterAssertions(t *testing.T) {
	early := assertion("a1", "status", "ok", "S1", "2025-06-01T00:00:00Z")
	late := assertion("a2", "status", "down", "S1", "2025-07-15T00:00:00Z")

	b := &MemoryBackend{Assertions: []store.AssertionRecord{early, late}}

	result, err := b.Execute(claimsQuery())
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "a1", result.Rows[0].Values["assertion_id"])
}

func TestMemoryBackend_VisibilityExistsAnnotatesInsteadOfHiding(t *testing.T) {
	visible := assertion("a1", "status", "ok", "S1", "2025-06-01T00:00:00Z")
	hidden := assertion("a2", "status", "ok", "S2", "2025-06-01T00:00:00Z")
	hidden.VisibilityScope = "restricted"

	b := &MemoryBackend{Assertions: []store.AssertionRecord{visible, hidden}}

	q := claimsQuery()
	result, err := b.Execute(q)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1, "VISIBLE narrows to in-scope rows")

	q.Visibility = query.VisibilityExists
	result, err = b.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2, "EXISTS hides nothing")

	var notes int
	for _, row := range result.Rows {
		if row.VisibilityNote != "" {
			notes++
			assert.Contains(t, row.VisibilityNote, "restricted")
		}
	}
	assert.Equal(t, 1, notes)
}

func TestMemoryBackend_ModeMeantAddsNeverRemoves(t *testing.T) {
	direct := assertion("a1", "status", "ok", "S1", "2025-06-01T00:00:00Z")
	inferred := assertion("a2", "status", "ok", "S2", "2025-06-01T00:00:00Z")
	inferred.AssertionMode = "inferred"

	b := &MemoryBackend{Assertions: []store.AssertionRecord{direct, inferred}}

	given, err := b.Execute(claimsQuery())
	require.NoError(t, err)
	assert.Len(t, given.Rows, 1)

	q := claimsQuery()
	q.Mode = query.ModeMeant
	meant, err := b.Execute(q)
	require.NoError(t, err)
	assert.Len(t, meant.Rows, 2)
	assert.GreaterOrEqual(t, len(meant.Rows), len(given.Rows))
}

func TestMemoryBackend_WeaklyGroundedRetained(t *testing.T) {
	grounded := assertion("a1", "status", "ok", "S1", "2025-06-01T00:00:00Z")
	grounded.GroundingRef = strPtr("g1")
	ungrounded := assertion("a2", "status", "ok", "S2", "2025-06-01T00:00:00Z")

	b := &MemoryBackend{
		Assertions: []store.AssertionRecord{
			grounded, ungrounded,
			assertion("g1", "observation", "raw", "S1", "2025-05-01T00:00:00Z"),
		},
		Links: []store.GroundingLink{{TargetID: "g1", GroundedByID: "g0"}},
	}

	q := claimsQuery()
	q.Grounding = query.GroundingSpec{Trace: true, MaxDepth: 5}

	result, err := b.Execute(q)
	require.NoError(t, err)

	byID := map[string]ResultRow{}
	for _, row := range result.Rows {
		byID[asString(row.Values["assertion_id"])] = row
	}

	require.Contains(t, byID, "a2", "ungrounded rows are reported, not dropped")
	assert.True(t, byID["a2"].WeaklyGrounded)
	assert.False(t, byID["a1"].WeaklyGrounded)
	assert.Equal(t, []string{"g1", "g0"}, byID["a1"].GroundingPath)
}

func TestMemoryBackend_EdgesRequireObject(t *testing.T) {
	edge := assertion("a1", "located_in", "", "S1", "2025-06-01T00:00:00Z")
	edge.ObjectID = strPtr("room-7")
	notEdge := assertion("a2", "status", "ok", "S1", "2025-06-01T00:00:00Z")

	b := &MemoryBackend{Assertions: []store.AssertionRecord{edge, notEdge}}

	q := claimsQuery()
	q.Target = query.TargetEdges

	result, err := b.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "room-7", result.Rows[0].Values["object_id"])
}

func TestMemoryBackend_EntitiesDedupAnnotated(t *testing.T) {
	a1 := assertion("a1", "status", "ok", "S1", "2025-06-01T00:00:00Z")
	a2 := assertion("a2", "temperature", "20C", "S1", "2025-06-02T00:00:00Z")

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	q := claimsQuery()
	q.Target = query.TargetEntities

	result, err := b.Execute(q)
	require.NoError(t, err)
	assert.Len(t, result.Rows, 1)
	assert.Contains(t, result.Notes, "Entities deduplicated by identity")
}

func TestMemoryBackend_PatternPredicates(t *testing.T) {
	a1 := assertion("a1", "temperature", "20C", "S1", "2025-06-01T00:00:00Z")
	a1.Certainty = floatPtr(0.9)
	a2 := assertion("a2", "temperature", "21C", "S2", "2025-06-01T00:00:00Z")
	a2.Certainty = floatPtr(0.4)

	b := &MemoryBackend{Assertions: []store.AssertionRecord{a1, a2}}

	q := claimsQuery()
	q.Pattern.Where = []query.Predicate{
		{Field: "epistemic.certainty", Op: ">=", Value: ir.Float(0.8)},
		{Field: "subject_id", Op: "IN", Value: ir.List{ir.String("S1"), ir.String("S3")}},
	}

	result, err := b.Execute(q)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "a1", result.Rows[0].Values["assertion_id"])
}

func TestMemoryBackend_AbsencesAreComputedObjects(t *testing.T) {
	expectations := registry.NewExpectationRegistry()
	require.NoError(t, expectations.Register(registry.ExpectationDefinition{
		ExpectationID: "EXP_daily_heartbeat",
		Version:       "1.0",
		Rule: registry.ExpectationRule{
			EntityFilterType: "host",
			ClaimType:        "heartbeat",
			Frequency:        registry.FreqDaily,
			DeadlineHours:    24,
		},
	}))

	b := &MemoryBackend{
		Assertions: []store.AssertionRecord{
			assertion("a1", "heartbeat", "alive", "h1", "2025-06-29T12:00:00Z"),
		},
		Entities: []store.EntityRecord{
			{EntityID: "h1", EntityType: "host", Label: "web-1"},
			{EntityID: "h2", EntityType: "host", Label: "web-2"},
			{EntityID: "d1", EntityType: "disk", Label: "scratch"},
		},
		Expectations: expectations,
	}

	q := claimsQuery()
	q.Target = query.TargetAbsences
	q.Absence = &query.AbsenceSpec{
		Expectation: query.ExpectationRef{ExpectationID: "EXP_daily_heartbeat"},
	}

	result, err := b.Execute(q)
	require.NoError(t, err)

	// h1 reported, d1 is out of the rule's entity filter: only h2 is absent.
	require.Len(t, result.Absences, 1)
	absent := result.Absences[0]
	assert.Equal(t, "h2", absent.ExpectedEntityID)
	assert.Equal(t, "heartbeat", absent.ExpectedClaimType)
	assert.Equal(t, "EXP_daily_heartbeat", absent.ExpectationID)
	assert.NotEmpty(t, absent.AbsenceID)
	assert.Equal(t, "2025-06-30T00:00:00Z", absent.WindowStart)
	assert.Equal(t, "2025-07-01T00:00:00Z", absent.WindowEnd)
	assert.Equal(t, "F_default", absent.FrameID)
}

func TestMemoryBackend_AbsenceUnknownExpectationRefuses(t *testing.T) {
	b := &MemoryBackend{Expectations: registry.NewExpectationRegistry()}

	q := claimsQuery()
	q.Target = query.TargetAbsences
	q.Absence = &query.AbsenceSpec{
		Expectation: query.ExpectationRef{ExpectationID: "EXP_ghost"},
	}

	_, err := b.Execute(q)
	require.Error(t, err)
	assert.True(t, registry.IsExpectationNotFound(err))
}

func TestMemoryBackend_ValidatesBeforeExecuting(t *testing.T) {
	b := &MemoryBackend{}
	q := claimsQuery()
	q.Frame.FrameID = ""

	_, err := b.Execute(q)
	require.Error(t, err)
	assert.True(t, query.IsValidationError(err))
}
