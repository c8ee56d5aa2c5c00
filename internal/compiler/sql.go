package compiler

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/eoql/internal/ir"
	"github.com/roach88/eoql/internal/query"
)

// fieldMap translates query field paths to assertion-log columns. Paths not
// listed here pass through only when they are plain column identifiers.
var fieldMap = map[string]string{
	"claim_type":          "claim_type",
	"claim_content":       "claim_content",
	"subject_id":          "subject_id",
	"object_id":           "object_id",
	"asserted_at":         "asserted_at",
	"valid_from":          "valid_from",
	"valid_until":         "valid_until",
	"source.type":         "source_id",
	"source.id":           "source_id",
	"epistemic.method":    "method",
	"epistemic.certainty": "certainty",
	"visibility_scope":    "visibility_scope",
	"assertion_mode":      "assertion_mode",
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func mapField(phase, field string) (string, error) {
	if col, ok := fieldMap[field]; ok {
		return col, nil
	}
	if identPattern.MatchString(field) {
		return field, nil
	}
	return "", compileErrf(phase, "cannot map field %q to a column", field)
}

// quoteLiteral renders a string as a SQL literal, doubling embedded quotes.
// Plans embed literals inline so the artifact is self-contained and
// byte-stable across drivers with different placeholder syntax.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func renderScalar(phase string, v ir.Value) (string, error) {
	switch val := v.(type) {
	case ir.String:
		return quoteLiteral(string(val)), nil
	case ir.Int:
		return strconv.FormatInt(int64(val), 10), nil
	case ir.Float:
		return strconv.FormatFloat(float64(val), 'g', -1, 64), nil
	case ir.Bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case ir.Null:
		return "", compileErrf(phase, "null literal only valid with IS NULL / IS NOT NULL")
	case ir.List:
		return "", compileErrf(phase, "list literal only valid with IN")
	default:
		return "", compileErrf(phase, "unsupported value type %T", v)
	}
}

// compilePredicate renders one predicate as a SQL condition against the
// given table alias (empty alias means bare column names). The second
// return reports whether the equality fallback fired for an unrecognized
// operator; callers surface that in the plan notes.
func compilePredicate(phase, alias string, p query.Predicate) (string, bool, error) {
	col, err := mapField(phase, p.Field)
	if err != nil {
		return "", false, err
	}
	if alias != "" {
		col = alias + "." + col
	}

	op, known := query.ParseOp(p.Op)
	switch op {
	case query.OpEq, query.OpNe, query.OpGt, query.OpGe, query.OpLt, query.OpLe:
		lit, err := renderScalar(phase, p.Value)
		if err != nil {
			return "", false, err
		}
		return col + " " + op.String() + " " + lit, !known, nil

	case query.OpIn:
		list, ok := p.Value.(ir.List)
		if !ok {
			return "", false, compileErrf(phase, "IN requires a list value for field %q", p.Field)
		}
		if len(list) == 0 {
			return "", false, compileErrf(phase, "IN with an empty list has no sound SQL form")
		}
		elems := make([]string, len(list))
		for i, elem := range list {
			lit, err := renderScalar(phase, elem)
			if err != nil {
				return "", false, err
			}
			elems[i] = lit
		}
		return col + " IN (" + strings.Join(elems, ", ") + ")", false, nil

	case query.OpContains:
		s, ok := p.Value.(ir.String)
		if !ok {
			return "", false, compileErrf(phase, "CONTAINS requires a string value for field %q", p.Field)
		}
		return col + " LIKE " + quoteLiteral("%"+string(s)+"%"), false, nil

	case query.OpIsNull:
		return col + " IS NULL", false, nil

	case query.OpIsNotNull:
		return col + " IS NOT NULL", false, nil

	default:
		return "", false, compileErrf(phase, "unsupported operator %q", p.Op)
	}
}
