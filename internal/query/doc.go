// Package query defines the epistemic query intermediate representation.
//
// The IR is the single source of truth for what kind of answer is allowed.
// It is total (no implicit defaults), explicit (frame, time, visibility are
// always present), serializable (inspectable, diffable, auditable), and
// rejecting (unsound questions fail in Validate, before compilation).
//
// Query values are immutable by convention: constructed once, validated,
// passed by value. Transformations build new values; nothing mutates a
// Query after construction.
package query
