// Package engine executes compiled plans and shapes epistemically honest
// results.
//
// The executor never strengthens an answer: conflicts surface as clusters,
// scoped-out rows keep their annotations, weak grounding is reported rather
// than dropped, and absences carry the expectation and window that make
// them claims instead of blanks. Exactly two collapses are permitted, and
// both are annotated in the result notes: keeping the deepest grounding
// path per assertion, and deduplicating ENTITIES rows by identity.
//
// Execution modes:
//
//	STRICT    refuse results that would need epistemic caveats
//	ANNOTATED return everything, annotated (the default)
//	EXPLAIN   return the plan and notes without touching the log
package engine
