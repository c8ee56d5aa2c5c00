package registry

import (
	"time"
)

// defaultDeadlineHours applies when a non-calendar rule carries no
// deadline.
const defaultDeadlineHours = 24

// AbsenceWindow is the concrete time span an absence claim is scoped to.
// An absence is only meaningful inside a window; "never reported, ever" is
// not a claim this system makes.
type AbsenceWindow struct {
	Start time.Time
	End   time.Time
}

// FormatISO returns the window bounds as RFC 3339 UTC strings, the form
// carried in results and compared lexically in SQL.
func (w AbsenceWindow) FormatISO() (string, string) {
	return w.Start.UTC().Format(time.RFC3339), w.End.UTC().Format(time.RFC3339)
}

// Window computes the absence window for a rule relative to a reference
// instant (normally the query's AS OF time, or the end of its BETWEEN
// range). deadlineOverride, when non-nil, replaces the rule's deadline.
//
// Calendar-shaped frequencies anchor to the calendar unit containing the
// reference; ONCE anchors to the rule's activation; everything else is a
// trailing window ending at the reference.
func Window(def ExpectationDefinition, ref time.Time, deadlineOverride *int) AbsenceWindow {
	deadline := def.Rule.DeadlineHours
	if deadlineOverride != nil {
		deadline = *deadlineOverride
	}

	ref = ref.UTC()

	switch def.Rule.Frequency {
	case FreqOnce:
		start := ref
		if def.ActiveFrom != "" {
			if t, err := time.Parse(time.RFC3339, def.ActiveFrom); err == nil {
				start = t.UTC()
			}
		}
		// Without a deadline the obligation stays open: the window runs
		// from activation to the reference instant.
		if deadline <= 0 {
			return AbsenceWindow{Start: start, End: ref}
		}
		return AbsenceWindow{Start: start, End: start.Add(time.Duration(deadline) * time.Hour)}

	case FreqDaily:
		start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
		return AbsenceWindow{Start: start, End: start.AddDate(0, 0, 1)}

	case FreqWeekly:
		// Monday 00:00 UTC of the reference week.
		offset := (int(ref.Weekday()) + 6) % 7
		start := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC).
			AddDate(0, 0, -offset)
		return AbsenceWindow{Start: start, End: start.AddDate(0, 0, 7)}

	case FreqMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		return AbsenceWindow{Start: start, End: start.AddDate(0, 1, 0)}

	default:
		if deadline <= 0 {
			deadline = defaultDeadlineHours
		}
		return AbsenceWindow{Start: ref.Add(-time.Duration(deadline) * time.Hour), End: ref}
	}
}
