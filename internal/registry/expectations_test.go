package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heartbeat(version string) ExpectationDefinition {
	return ExpectationDefinition{
		ExpectationID: "EXP_daily_heartbeat",
		Version:       version,
		Rule: ExpectationRule{
			EntityFilterType: "host",
			ClaimType:        "heartbeat",
			Frequency:        FreqDaily,
			DeadlineHours:    24,
		},
	}
}

func TestExpectationRegistry_RegisterAndResolve(t *testing.T) {
	r := NewExpectationRegistry()
	require.NoError(t, r.Register(heartbeat("1.0")))
	require.NoError(t, r.Register(heartbeat("1.1")))

	def, err := r.Resolve("EXP_daily_heartbeat", "")
	require.NoError(t, err)
	assert.Equal(t, "1.1", def.Version)

	_, err = r.Resolve("EXP_unknown", "")
	require.Error(t, err)
	assert.True(t, IsExpectationNotFound(err))
}

func TestExpectationRegistry_RejectsBadRules(t *testing.T) {
	r := NewExpectationRegistry()

	missing := heartbeat("1.0")
	missing.Rule.ClaimType = ""
	assert.Error(t, r.Register(missing))

	bogus := heartbeat("1.0")
	bogus.Rule.Frequency = "hourly-ish"
	assert.Error(t, r.Register(bogus))

	require.NoError(t, r.Register(heartbeat("1.0")))
	assert.Error(t, r.Register(heartbeat("1.0")), "versions are immutable")
}

func TestExpectationDefinition_IsActiveAt(t *testing.T) {
	def := heartbeat("1.0")
	def.ActiveFrom = "2025-01-01T00:00:00Z"
	def.ActiveUntil = "2025-12-31T00:00:00Z"

	assert.False(t, def.IsActiveAt("2024-12-31T23:59:59Z"))
	assert.True(t, def.IsActiveAt("2025-01-01T00:00:00Z"))
	assert.True(t, def.IsActiveAt("2025-06-15T12:00:00Z"))
	assert.False(t, def.IsActiveAt("2025-12-31T00:00:00Z"), "active_until is exclusive")

	always := heartbeat("1.0")
	assert.True(t, always.IsActiveAt("1999-01-01T00:00:00Z"))
}

func TestExpectationRegistry_ListActive(t *testing.T) {
	r := NewExpectationRegistry()

	active := heartbeat("1.0")
	require.NoError(t, r.Register(active))

	expired := heartbeat("1.0")
	expired.ExpectationID = "EXP_retired"
	expired.ActiveUntil = "2020-01-01T00:00:00Z"
	require.NoError(t, r.Register(expired))

	got := r.ListActive("2025-06-01T00:00:00Z")
	require.Len(t, got, 1)
	assert.Equal(t, "EXP_daily_heartbeat", got[0].ExpectationID)
}
