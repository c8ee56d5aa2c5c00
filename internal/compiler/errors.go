package compiler

import (
	"errors"
	"fmt"
)

// CompilationError is raised when a sound query cannot be expressed in the
// shared SQL subset without weakening its epistemic guarantees. Refusal is
// the correct outcome; the compiler never approximates.
type CompilationError struct {
	Phase   string // pipeline phase that refused, e.g. "pattern_filtered"
	Message string
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("compilation failed in %s: %s", e.Phase, e.Message)
}

// IsCompilationError reports whether err is (or wraps) a CompilationError.
func IsCompilationError(err error) bool {
	var ce *CompilationError
	return errors.As(err, &ce)
}

func compileErrf(phase, format string, args ...any) error {
	return &CompilationError{Phase: phase, Message: fmt.Sprintf(format, args...)}
}
