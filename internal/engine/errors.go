package engine

import (
	"errors"
	"fmt"
)

// ExecutionError wraps a failure while running a plan. The statement is
// attached so the failing artifact can be inspected directly.
type ExecutionError struct {
	Message string
	SQL     string
	Err     error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("execution failed: %s", e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// IsExecutionError reports whether err is (or wraps) an ExecutionError.
func IsExecutionError(err error) bool {
	var ee *ExecutionError
	return errors.As(err, &ee)
}

// EpistemicViolationError means result rows arrived with provenance erased:
// a row without its frame cannot be interpreted, and returning it anyway
// would manufacture certainty. Execution refuses instead.
type EpistemicViolationError struct {
	ViolationType string // e.g. "provenance_erased"
	Message       string
}

func (e *EpistemicViolationError) Error() string {
	return fmt.Sprintf("epistemic violation (%s): %s", e.ViolationType, e.Message)
}

// IsEpistemicViolation reports whether err is (or wraps) an
// EpistemicViolationError.
func IsEpistemicViolation(err error) bool {
	var ev *EpistemicViolationError
	return errors.As(err, &ev)
}
