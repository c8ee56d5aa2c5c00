package query

import (
	"errors"
	"fmt"
	"strings"
)

// Violation is a single soundness failure with a stable code.
//
// Codes are part of the public contract: callers and tests match on them,
// so they never change meaning between releases.
type Violation struct {
	Code    string // "I1".."I8"
	Path    string // field path, e.g. "frame.frame_id"
	Message string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s (%s)", v.Code, v.Message, v.Path)
}

// ValidationError is raised when a query violates soundness invariants.
//
// These failures are not UX bugs; they are epistemic guardrails. The
// validator optimizes for honest refusal, not maximal answerability, and
// always reports the complete violation list.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return "query failed validation:\n- " + strings.Join(parts, "\n- ")
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate enforces the soundness invariants of the IR.
//
// A query must be refused when it:
//   - omits time or frame
//   - carries time content that does not match its kind
//   - requests grounding trace without a depth budget
//   - asks about absence without an expectation
//   - requests PICK_ONE without a named selection rule
//   - names a target outside the enum
//
// Validate is pure, stateless, total, and deterministic. It never
// short-circuits: every violation in the query is reported.
func Validate(q Query) error {
	var violations []Violation

	add := func(code, path, format string, args ...any) {
		violations = append(violations, Violation{
			Code:    code,
			Path:    path,
			Message: fmt.Sprintf(format, args...),
		})
	}

	// I1: frame totality
	if q.Frame.FrameID == "" {
		add("I1", "frame.frame_id", "frame.frame_id must be non-empty")
	}

	// I2: time window validity - content must match the kind exactly
	switch q.Time.Kind {
	case TimeAsOf:
		if q.Time.AsOf == "" {
			add("I2", "time.as_of", "AS_OF time requires time.as_of")
		}
		if q.Time.Start != "" || q.Time.End != "" {
			add("I2", "time", "AS_OF must not include start/end")
		}
	case TimeBetween:
		if q.Time.Start == "" || q.Time.End == "" {
			add("I2", "time", "BETWEEN time requires time.start and time.end")
		}
		if q.Time.AsOf != "" {
			add("I2", "time.as_of", "BETWEEN must not include as_of")
		}
	default:
		add("I2", "time.kind", "unsupported time.kind %q", string(q.Time.Kind))
	}

	// I3/I4: mode and visibility must be members of their enums
	switch q.Mode {
	case ModeGiven, ModeMeant:
	default:
		add("I3", "mode", "mode (GIVEN/MEANT) must be provided")
	}
	switch q.Visibility {
	case VisibilityVisible, VisibilityExists:
	default:
		add("I4", "visibility", "visibility (VISIBLE/EXISTS) must be provided")
	}

	// I5: absence contract - ABSENCES target or an absence spec requires
	// a non-empty expectation id
	if q.Target == TargetAbsences || q.Absence != nil {
		if q.Absence == nil {
			add("I5", "absence", "ABSENCES target requires absence spec")
		} else if q.Absence.Expectation.ExpectationID == "" {
			add("I5", "absence.expectation.expectation_id",
				"absence.expectation.expectation_id must be provided")
		}
	}

	// I6: trace contract
	if q.Grounding.Trace && q.Grounding.MaxDepth < 1 {
		add("I6", "grounding.max_depth", "TRACE requires grounding.max_depth >= 1")
	}
	for i, p := range q.Grounding.GroundedBy {
		if p.Field == "" || p.Op == "" {
			add("I6", fmt.Sprintf("grounding.grounded_by[%d]", i),
				"GROUNDED BY predicates must have field and op")
		}
	}

	// I7: conflict policy explicitness
	if q.Returns.ConflictPolicy == ConflictPickOne {
		if q.Returns.SelectionRule == nil {
			add("I7", "returns.selection_rule", "PICK_ONE requires returns.selection_rule")
		} else if q.Returns.SelectionRule.RuleID == "" {
			add("I7", "returns.selection_rule.rule_id",
				"selection_rule.rule_id must be non-empty")
		}
	}

	// I8: target enum membership. An unknown target is a soundness
	// failure, not a compilation detail.
	switch q.Target {
	case TargetClaims, TargetEdges, TargetEntities, TargetAssertions, TargetAbsences:
	default:
		add("I8", "target", "unsupported target %q", string(q.Target))
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}
