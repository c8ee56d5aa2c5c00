package query

import (
	"github.com/roach88/eoql/internal/ir"
)

// Target selects what kind of objects a query asks for.
type Target string

const (
	TargetClaims     Target = "CLAIMS"
	TargetEdges      Target = "EDGES"
	TargetEntities   Target = "ENTITIES"
	TargetAssertions Target = "ASSERTIONS"
	TargetAbsences   Target = "ABSENCES"
)

// Mode distinguishes "did this happen" from "was this inferred".
//
// GIVEN returns only directly asserted facts.
// MEANT includes derived and inferred claims (it adds rows, never removes).
type Mode string

const (
	ModeGiven Mode = "GIVEN"
	ModeMeant Mode = "MEANT"
)

// Visibility distinguishes "absent" from "merely hidden".
//
// VISIBLE returns only items visible in the current scope.
// EXISTS returns all items, annotating scoped-out ones. Invisibility is
// never conflated with non-existence.
type Visibility string

const (
	VisibilityVisible Visibility = "VISIBLE"
	VisibilityExists  Visibility = "EXISTS"
)

// TimeKind selects the temporal projection.
type TimeKind string

const (
	TimeAsOf    TimeKind = "AS_OF"
	TimeBetween TimeKind = "BETWEEN"
)

// ConflictPolicy states how disagreeing claims are surfaced.
type ConflictPolicy string

const (
	ConflictExposeAll ConflictPolicy = "EXPOSE_ALL"
	ConflictCluster   ConflictPolicy = "CLUSTER"
	ConflictRank      ConflictPolicy = "RANK"
	ConflictPickOne   ConflictPolicy = "PICK_ONE"
)

// FrameRef names a versioned interpretation policy.
// Selecting a frame is making a claim; no query runs without one.
type FrameRef struct {
	FrameID string
	Version string // "1.4", "latest", commit hash; empty means latest
}

// TimeWindow is a temporal projection, not a filter.
//
// AS OF t means: replay all events up to t and reconstruct the world as it
// could be known then. This is fundamentally different from picking the
// most recent row.
type TimeWindow struct {
	Kind TimeKind
	// ISO 8601 strings. Lexical comparison matches chronological order,
	// which keeps the compiled SQL portable across backends.
	AsOf  string
	Start string
	End   string
}

// AsOf creates an AS_OF time window for point-in-time queries.
func AsOf(ts string) TimeWindow {
	return TimeWindow{Kind: TimeAsOf, AsOf: ts}
}

// Between creates a BETWEEN time window for range queries.
func Between(start, end string) TimeWindow {
	return TimeWindow{Kind: TimeBetween, Start: start, End: end}
}

// Predicate is a single filter condition.
//
// Op is carried as raw text so serialization is lossless; the compiler and
// the memory backend dispatch through the closed operator union in
// operators.go, with unrecognized operators falling back to equality.
type Predicate struct {
	Field string // e.g. "claim_type", "epistemic.method", "source.type"
	Op    string // "=", "!=", "IN", ">=", "CONTAINS", ...
	Value ir.Value
}

// Pattern describes what the query matches: an optional free-text
// substring plus ordered predicates, evaluated as a conjunction.
type Pattern struct {
	Match string
	Where []Predicate
}

// GroundingSpec configures provenance traversal.
//
// Grounding is a traversal mode, not a join. If a claim cannot be grounded
// to assertions, sources, or prior claims, the answer must still be able to
// say "this exists, but is weakly grounded" - ungrounded rows are retained,
// never dropped.
type GroundingSpec struct {
	Trace      bool
	MaxDepth   int
	GroundedBy []Predicate
}

// SelectionRule is required when ConflictPolicy is PICK_ONE.
// Example rule ids: "highest_certainty", "latest_asserted".
type SelectionRule struct {
	RuleID string
	Params map[string]ir.Value
}

// ReturnSpec controls result shaping and conflict handling.
type ReturnSpec struct {
	IncludeContext         bool
	IncludeFrame           bool
	IncludeVisibilityNotes bool
	IncludeConflicts       bool
	ConflictPolicy         ConflictPolicy
	SelectionRule          *SelectionRule
}

// DefaultReturns is the ReturnSpec used when a query does not set one.
func DefaultReturns() ReturnSpec {
	return ReturnSpec{
		IncludeContext:         true,
		IncludeFrame:           true,
		IncludeVisibilityNotes: true,
		IncludeConflicts:       true,
		ConflictPolicy:         ConflictExposeAll,
	}
}

// ExpectationRef names a versioned obligation rule.
//
// Absence does not live in storage. It is the result of an expectation
// rule, a time window, a scope, and a frame.
type ExpectationRef struct {
	ExpectationID string
	Version       string
}

// AbsenceSpec asks for meaningful absences.
//
// Absence queries are not sugar for NULL: absence cannot be inferred from
// an empty result set and always materializes as objects, never blanks.
type AbsenceSpec struct {
	Expectation   ExpectationRef
	Scope         map[string]ir.Value
	DeadlineHours *int
}

// Query is the epistemic query IR.
//
// It is the contract between the pipeline and its backends. Backends are
// forbidden from strengthening the answer, weakening ambiguity, discarding
// conflicts, or erasing provenance. If a backend cannot honor the IR, the
// correct behavior is to refuse execution, not to approximate.
type Query struct {
	Target     Target
	Mode       Mode
	Visibility Visibility
	Frame      FrameRef
	Time       TimeWindow
	Pattern    Pattern
	Grounding  GroundingSpec
	Absence    *AbsenceSpec
	Returns    ReturnSpec
}

// Equal reports whether two queries are semantically identical.
// Comparison goes through canonical serialization so nil and empty
// collections compare equal.
func (q Query) Equal(other Query) bool {
	a, err := q.CanonicalJSON()
	if err != nil {
		return false
	}
	b, err := other.CanonicalJSON()
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

// Hash returns the content-addressed identity of the query.
func (q Query) Hash() (string, error) {
	data, err := q.CanonicalJSON()
	if err != nil {
		return "", err
	}
	return ir.HashWithDomain(ir.DomainQuery, data), nil
}
