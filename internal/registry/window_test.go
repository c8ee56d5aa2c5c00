package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, ts string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, ts)
	require.NoError(t, err)
	return parsed
}

func defWithFrequency(freq Frequency, deadline int) ExpectationDefinition {
	return ExpectationDefinition{
		ExpectationID: "EXP",
		Version:       "1.0",
		Rule: ExpectationRule{
			ClaimType:     "heartbeat",
			Frequency:     freq,
			DeadlineHours: deadline,
		},
	}
}

func TestWindow_Daily(t *testing.T) {
	ref := mustParse(t, "2025-12-27T14:30:00Z")

	w := Window(defWithFrequency(FreqDaily, 24), ref, nil)
	start, end := w.FormatISO()
	assert.Equal(t, "2025-12-27T00:00:00Z", start)
	assert.Equal(t, "2025-12-28T00:00:00Z", end)
}

func TestWindow_Weekly_AnchorsToMonday(t *testing.T) {
	// 2025-12-27 is a Saturday; the week starts Monday the 22nd.
	ref := mustParse(t, "2025-12-27T14:30:00Z")

	w := Window(defWithFrequency(FreqWeekly, 0), ref, nil)
	start, end := w.FormatISO()
	assert.Equal(t, "2025-12-22T00:00:00Z", start)
	assert.Equal(t, "2025-12-29T00:00:00Z", end)

	// A Monday reference anchors to itself.
	monday := mustParse(t, "2025-12-22T01:00:00Z")
	w = Window(defWithFrequency(FreqWeekly, 0), monday, nil)
	start, _ = w.FormatISO()
	assert.Equal(t, "2025-12-22T00:00:00Z", start)
}

func TestWindow_Monthly_YearRollover(t *testing.T) {
	ref := mustParse(t, "2025-12-27T14:30:00Z")

	w := Window(defWithFrequency(FreqMonthly, 0), ref, nil)
	start, end := w.FormatISO()
	assert.Equal(t, "2025-12-01T00:00:00Z", start)
	assert.Equal(t, "2026-01-01T00:00:00Z", end)
}

func TestWindow_Once_AnchorsToActivation(t *testing.T) {
	def := defWithFrequency(FreqOnce, 48)
	def.ActiveFrom = "2025-06-01T00:00:00Z"
	ref := mustParse(t, "2025-07-15T00:00:00Z")

	w := Window(def, ref, nil)
	start, end := w.FormatISO()
	assert.Equal(t, "2025-06-01T00:00:00Z", start)
	assert.Equal(t, "2025-06-03T00:00:00Z", end)
}

func TestWindow_OnceWithoutDeadlineStaysOpen(t *testing.T) {
	// No deadline means the obligation has not lapsed: the window runs
	// from activation to the reference instant, however far apart.
	def := defWithFrequency(FreqOnce, 0)
	def.ActiveFrom = "2024-01-01T00:00:00Z"
	ref := mustParse(t, "2025-07-15T09:30:00Z")

	w := Window(def, ref, nil)
	start, end := w.FormatISO()
	assert.Equal(t, "2024-01-01T00:00:00Z", start)
	assert.Equal(t, "2025-07-15T09:30:00Z", end)
}

func TestWindow_TrailingForOtherFrequencies(t *testing.T) {
	ref := mustParse(t, "2025-06-01T12:00:00Z")

	for _, freq := range []Frequency{FreqRecurring, FreqContinuous} {
		w := Window(defWithFrequency(freq, 6), ref, nil)
		start, end := w.FormatISO()
		assert.Equal(t, "2025-06-01T06:00:00Z", start, "frequency %s", freq)
		assert.Equal(t, "2025-06-01T12:00:00Z", end, "frequency %s", freq)
	}
}

func TestWindow_DeadlineOverrideAndDefault(t *testing.T) {
	ref := mustParse(t, "2025-06-02T00:00:00Z")

	// No deadline on the rule: the 24h default applies.
	w := Window(defWithFrequency(FreqRecurring, 0), ref, nil)
	start, _ := w.FormatISO()
	assert.Equal(t, "2025-06-01T00:00:00Z", start)

	// Query-level override wins over the rule.
	override := 2
	w = Window(defWithFrequency(FreqRecurring, 24), ref, &override)
	start, _ = w.FormatISO()
	assert.Equal(t, "2025-06-01T22:00:00Z", start)
}
