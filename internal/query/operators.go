package query

// Op is the closed union of recognized predicate operators.
//
// Predicate.Op stays raw text for lossless serialization; ParseOp is the
// single place where text becomes a member of this union. Unrecognized
// operators fall back to equality - a documented fallback arm, not silent
// divergence, so the set of supported operators stays statically auditable.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpGe
	OpLt
	OpLe
	OpIn
	OpContains
	OpIsNull
	OpIsNotNull
)

// ParseOp maps operator text to the closed union.
// Returns (OpEq, false) for unrecognized text: the equality fallback.
func ParseOp(text string) (Op, bool) {
	switch text {
	case "=":
		return OpEq, true
	case "!=":
		return OpNe, true
	case ">":
		return OpGt, true
	case ">=":
		return OpGe, true
	case "<":
		return OpLt, true
	case "<=":
		return OpLe, true
	case "IN":
		return OpIn, true
	case "CONTAINS":
		return OpContains, true
	case "IS NULL":
		return OpIsNull, true
	case "IS NOT NULL":
		return OpIsNotNull, true
	default:
		return OpEq, false
	}
}

// String returns the canonical text for an operator.
func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpNe:
		return "!="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpIn:
		return "IN"
	case OpContains:
		return "CONTAINS"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	default:
		return "="
	}
}
