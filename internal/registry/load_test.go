package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eoql/internal/ir"
)

func writeCUE(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDir_ParsesFramesAndExpectations(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "frames.cue", `
package definitions

frame: F_ops: {
	version:     "1.2"
	description: "Operational view"
	config: {
		trust_order:     ["sensor", "operator"]
		stale_threshold: 48
	}
}
`)
	writeCUE(t, dir, "expectations.cue", `
package definitions

expectation: EXP_daily_heartbeat: {
	version: "1.0"
	rule: {
		claim_type:     "heartbeat"
		frequency:      "daily"
		deadline_hours: 24
		entity_type:    "host"
	}
	active_from: "2025-01-01T00:00:00Z"
}
`)

	result, err := LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, result.FileCount)

	require.Len(t, result.Frames, 1)
	frame := result.Frames[0]
	assert.Equal(t, "F_ops", frame.FrameID)
	assert.Equal(t, "1.2", frame.Version)
	assert.Equal(t, ir.List{ir.String("sensor"), ir.String("operator")}, frame.Config["trust_order"])
	assert.Equal(t, ir.Int(48), frame.Config["stale_threshold"])

	require.Len(t, result.Expectations, 1)
	exp := result.Expectations[0]
	assert.Equal(t, "EXP_daily_heartbeat", exp.ExpectationID)
	assert.Equal(t, FreqDaily, exp.Rule.Frequency)
	assert.Equal(t, 24, exp.Rule.DeadlineHours)
	assert.Equal(t, "host", exp.Rule.EntityFilterType)
	assert.Equal(t, "2025-01-01T00:00:00Z", exp.ActiveFrom)
}

func TestLoadDir_RejectsBadDefinitions(t *testing.T) {
	t.Run("missing version", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "bad.cue", `
package definitions

frame: F_broken: {
	description: "no version"
}
`)
		_, err := LoadDir(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "version is required")
	})

	t.Run("unknown frequency", func(t *testing.T) {
		dir := t.TempDir()
		writeCUE(t, dir, "bad.cue", `
package definitions

expectation: EXP_bad: {
	version: "1.0"
	rule: {
		claim_type: "heartbeat"
		frequency:  "fortnightly"
	}
}
`)
		_, err := LoadDir(dir)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown frequency")
	})

	t.Run("empty directory", func(t *testing.T) {
		_, err := LoadDir(t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no CUE files")
	})
}

func TestLoadInto_RegistersEverything(t *testing.T) {
	dir := t.TempDir()
	writeCUE(t, dir, "defs.cue", `
package definitions

frame: F_audit: {
	version: "2.0"
}
expectation: EXP_weekly_report: {
	version: "1.0"
	rule: {
		claim_type: "report_filed"
		frequency:  "weekly"
	}
}
`)

	frames := NewFrameRegistry()
	expectations := NewExpectationRegistry()
	require.NoError(t, LoadInto(dir, frames, expectations))

	frame, err := frames.Resolve("F_audit", "")
	require.NoError(t, err)
	assert.Equal(t, "2.0", frame.Version)

	exp, err := expectations.Resolve("EXP_weekly_report", "1.0")
	require.NoError(t, err)
	assert.Equal(t, FreqWeekly, exp.Rule.Frequency)
}
