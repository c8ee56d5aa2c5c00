// Package compiler lowers a validated query into a staged, auditable plan.
//
// The compiler is a pure function of the query: compiling the same query
// twice yields byte-identical output, which is what makes plans auditable
// artifacts rather than ephemeral internals.
//
// The phase pipeline is fixed and non-reorderable:
//
//	event_replay -> framed_projection -> mode_filtered -> pattern_filtered
//	-> with_grounding -> visibility_filtered [-> absence stages] -> projection
//
// Each stage consumes the prior stage's output by name. The emitted SQL
// stays inside a dialect subset shared by SQLite and Postgres: ISO-8601
// text timestamps (lexically ordered), LIKE for substring matching, and
// string-accumulated grounding paths instead of arrays.
//
// A compiler contract does not check whether the SQL runs; it checks
// epistemic shape. No stage may introduce an unscoped DISTINCT, MAX/MIN,
// LIMIT, or window-function shortcut - those silently collapse conflicts.
// When a construct cannot be expressed safely the compiler refuses with a
// CompilationError; refusal over silent approximation governs every phase.
package compiler
