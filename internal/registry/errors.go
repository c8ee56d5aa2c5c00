package registry

import (
	"errors"
	"fmt"
)

// FrameNotFoundError is returned when a frame reference cannot be resolved.
// Queries never fall back to another frame; an unresolvable frame refuses
// the query.
type FrameNotFoundError struct {
	FrameID string
	Version string
}

func (e *FrameNotFoundError) Error() string {
	if e.Version == "" || e.Version == "latest" {
		return fmt.Sprintf("frame not found: %s", e.FrameID)
	}
	return fmt.Sprintf("frame not found: %s@%s", e.FrameID, e.Version)
}

// IsFrameNotFound reports whether err is (or wraps) a FrameNotFoundError.
func IsFrameNotFound(err error) bool {
	var fe *FrameNotFoundError
	return errors.As(err, &fe)
}

// ExpectationNotFoundError is returned when an expectation reference cannot
// be resolved. Without the rule there is no standard of expectedness, so
// the absence query refuses rather than inventing one.
type ExpectationNotFoundError struct {
	ExpectationID string
	Version       string
}

func (e *ExpectationNotFoundError) Error() string {
	if e.Version == "" || e.Version == "latest" {
		return fmt.Sprintf("expectation not found: %s", e.ExpectationID)
	}
	return fmt.Sprintf("expectation not found: %s@%s", e.ExpectationID, e.Version)
}

// IsExpectationNotFound reports whether err is (or wraps) an
// ExpectationNotFoundError.
func IsExpectationNotFound(err error) bool {
	var ee *ExpectationNotFoundError
	return errors.As(err, &ee)
}

// LoadError reports a problem in a definition directory or file.
type LoadError struct {
	Path    string
	Message string
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}
