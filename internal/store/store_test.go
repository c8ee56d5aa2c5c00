package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	st, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }
func intPtr(n int) *int           { return &n }

func TestStore_AppendAndReadRoundTrip(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	rec := AssertionRecord{
		AssertionID:  "a1",
		ClaimType:    "temperature",
		ClaimContent: "20C",
		SubjectID:    "S1",
		ObjectID:     strPtr("S2"),
		AssertedAt:   "2025-06-01T10:00:00Z",
		ValidFrom:    strPtr("2025-06-01T00:00:00Z"),
		FrameID:      "F_default",
		FrameVersion: "1.0",
		SourceID:     strPtr("src_sensor"),
		Certainty:    floatPtr(0.9),
		Method:       strPtr("measured"),
	}
	require.NoError(t, st.PutSource(ctx, SourceRecord{SourceID: "src_sensor", SourceType: "sensor", Label: "roof"}))
	require.NoError(t, st.AppendAssertion(ctx, rec))

	got, err := st.ReadAssertions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, "a1", got[0].AssertionID)
	assert.Equal(t, "20C", got[0].ClaimContent)
	require.NotNil(t, got[0].ObjectID)
	assert.Equal(t, "S2", *got[0].ObjectID)
	require.NotNil(t, got[0].Certainty)
	assert.InDelta(t, 0.9, *got[0].Certainty, 1e-9)
	assert.Nil(t, got[0].ValidUntil)
	assert.Nil(t, got[0].GroundingRef)

	// Unset scope and mode take the defaults.
	assert.Equal(t, "visible", got[0].VisibilityScope)
	assert.Equal(t, "direct", got[0].AssertionMode)
}

func TestStore_AppendRejectsIncompleteRecords(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	cases := []AssertionRecord{
		{ClaimType: "x", SubjectID: "s", AssertedAt: "2025-01-01T00:00:00Z", FrameID: "F_default"},
		{AssertionID: "a", SubjectID: "s", AssertedAt: "2025-01-01T00:00:00Z", FrameID: "F_default"},
		{AssertionID: "a", ClaimType: "x", AssertedAt: "2025-01-01T00:00:00Z", FrameID: "F_default"},
		{AssertionID: "a", ClaimType: "x", SubjectID: "s", FrameID: "F_default"},
		{AssertionID: "a", ClaimType: "x", SubjectID: "s", AssertedAt: "2025-01-01T00:00:00Z"},
	}
	for _, rec := range cases {
		assert.Error(t, st.AppendAssertion(ctx, rec))
	}
}

func TestStore_ReplayOrderBreaksTiesOnID(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	ts := "2025-06-01T10:00:00Z"
	for _, id := range []string{"b2", "a1", "c3"} {
		require.NoError(t, st.AppendAssertion(ctx, AssertionRecord{
			AssertionID: id, ClaimType: "t", ClaimContent: "v", SubjectID: "S1",
			AssertedAt: ts, FrameID: "F_default", FrameVersion: "1.0",
		}))
	}

	got, err := st.ReadAssertions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "a1", got[0].AssertionID)
	assert.Equal(t, "b2", got[1].AssertionID)
	assert.Equal(t, "c3", got[2].AssertionID)
}

func TestStore_PutEntityUpserts(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	require.NoError(t, st.PutEntity(ctx, EntityRecord{EntityID: "h1", EntityType: "host", Label: "web-1"}))
	require.NoError(t, st.PutEntity(ctx, EntityRecord{EntityID: "h1", EntityType: "host", Label: "web-1b"}))

	got, err := st.ReadEntities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "web-1b", got[0].Label)
}

func TestStore_SetVisibilityScope(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	require.NoError(t, st.AppendAssertion(ctx, AssertionRecord{
		AssertionID: "a1", ClaimType: "t", ClaimContent: "v", SubjectID: "S1",
		AssertedAt: "2025-06-01T10:00:00Z", FrameID: "F_default", FrameVersion: "1.0",
	}))

	require.NoError(t, st.SetVisibilityScope(ctx, "a1", "restricted"))

	got, err := st.ReadAssertions(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "restricted", got[0].VisibilityScope)
	assert.Equal(t, "v", got[0].ClaimContent, "only the scope column may change")

	assert.Error(t, st.SetVisibilityScope(ctx, "nope", "restricted"))
	assert.Error(t, st.SetVisibilityScope(ctx, "a1", ""))
}

func TestStore_PutExpectationMaintainsLatestAlias(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	require.NoError(t, st.PutExpectation(ctx, ExpectationRow{
		ExpectationID: "EXP_hb", Version: "1.0",
		EntityFilterType: strPtr("host"), ClaimType: "heartbeat",
		Frequency: "daily", DeadlineHours: intPtr(24),
	}))
	require.NoError(t, st.PutExpectation(ctx, ExpectationRow{
		ExpectationID: "EXP_hb", Version: "1.1",
		EntityFilterType: strPtr("host"), ClaimType: "heartbeat",
		Frequency: "weekly",
	}))

	// Versioned rows come back without the alias.
	got, err := st.ReadExpectations(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "1.0", got[0].Version)
	assert.Equal(t, "1.1", got[1].Version)

	// The alias follows the newest registration.
	var freq string
	row := st.DB().QueryRowContext(ctx,
		`SELECT frequency FROM expectations WHERE expectation_id = 'EXP_hb' AND version = 'latest'`)
	require.NoError(t, row.Scan(&freq))
	assert.Equal(t, "weekly", freq)
}

func TestStore_GroundingLinksRoundTrip(t *testing.T) {
	st := openTemp(t)
	ctx := context.Background()

	weighted := GroundingLink{
		TargetID: "a1", GroundedByID: "g1",
		LinkKind: "derived_from", Strength: floatPtr(0.7),
	}
	require.NoError(t, st.LinkGrounding(ctx, weighted))
	require.NoError(t, st.LinkGrounding(ctx, GroundingLink{TargetID: "a1", GroundedByID: "g2", LinkKind: "supports"}))
	require.NoError(t, st.LinkGrounding(ctx, weighted), "duplicate edges are idempotent")

	got, err := st.ReadGroundingLinks(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "derived_from", got[0].LinkKind)
	require.NotNil(t, got[0].Strength)
	assert.InDelta(t, 0.7, *got[0].Strength, 1e-9)
	assert.Equal(t, "g2", got[1].GroundedByID)
	assert.Nil(t, got[1].Strength)
}

func TestStore_ReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	st, err := Open(DriverSQLite, path)
	require.NoError(t, err)
	require.NoError(t, st.AppendAssertion(ctx, AssertionRecord{
		AssertionID: "a1", ClaimType: "t", ClaimContent: "v", SubjectID: "S1",
		AssertedAt: "2025-06-01T10:00:00Z", FrameID: "F_default", FrameVersion: "1.0",
	}))
	require.NoError(t, st.Close())

	st, err = Open(DriverSQLite, path)
	require.NoError(t, err)
	defer st.Close()

	got, err := st.ReadAssertions(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestStore_SeedsDefaultFrame(t *testing.T) {
	st := openTemp(t)

	var version string
	row := st.DB().QueryRow(`SELECT version FROM frames WHERE frame_id = 'F_default'`)
	require.NoError(t, row.Scan(&version))
	assert.Equal(t, "1.0", version)
}

func TestBind_PostgresPlaceholders(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	assert.Equal(t, "SELECT $1, $2, $3", pg.bind("SELECT ?, ?, ?"))

	lite := &Store{driver: DriverSQLite}
	assert.Equal(t, "SELECT ?, ?", lite.bind("SELECT ?, ?"))
}
