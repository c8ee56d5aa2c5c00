package compiler

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eoql/internal/query"
)

// Golden plans pin the exact SQL text. A diff here is a change to an
// auditable artifact and must be deliberate.
func TestCompile_GoldenBasicClaims(t *testing.T) {
	plan, err := Compile(query.Query{
		Target:     query.TargetClaims,
		Mode:       query.ModeGiven,
		Visibility: query.VisibilityVisible,
		Frame:      query.FrameRef{FrameID: "F_default"},
		Time:       query.AsOf("2025-06-01T00:00:00Z"),
		Returns:    query.DefaultReturns(),
	})
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "basic_claims", []byte(plan.SQL()))
}
