package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/eoql/internal/ir"
)

// Wire structs mirror the serialized field names exactly. Enums serialize
// as their string literals; absent optional sections decode to zero values.

type wireFrame struct {
	FrameID string `json:"frame_id"`
	Version string `json:"version,omitempty"`
}

type wireTime struct {
	Kind  string `json:"kind"`
	AsOf  string `json:"as_of,omitempty"`
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

type wirePredicate struct {
	Field string          `json:"field"`
	Op    string          `json:"op"`
	Value json.RawMessage `json:"value"`
}

type wirePattern struct {
	Match string          `json:"match,omitempty"`
	Where []wirePredicate `json:"where,omitempty"`
}

type wireGrounding struct {
	Trace      bool            `json:"trace,omitempty"`
	MaxDepth   int             `json:"max_depth,omitempty"`
	GroundedBy []wirePredicate `json:"grounded_by,omitempty"`
}

type wireExpectation struct {
	ExpectationID string `json:"expectation_id"`
	Version       string `json:"version,omitempty"`
}

type wireAbsence struct {
	Expectation   wireExpectation            `json:"expectation"`
	Scope         map[string]json.RawMessage `json:"scope,omitempty"`
	DeadlineHours *int                       `json:"deadline_hours,omitempty"`
}

type wireSelectionRule struct {
	RuleID string                     `json:"rule_id"`
	Params map[string]json.RawMessage `json:"params,omitempty"`
}

type wireReturns struct {
	IncludeContext         bool               `json:"include_context"`
	IncludeFrame           bool               `json:"include_frame"`
	IncludeVisibilityNotes bool               `json:"include_visibility_notes"`
	IncludeConflicts       bool               `json:"include_conflicts"`
	ConflictPolicy         string             `json:"conflict_policy"`
	SelectionRule          *wireSelectionRule `json:"selection_rule,omitempty"`
}

type wireQuery struct {
	Target     string         `json:"target"`
	Mode       string         `json:"mode"`
	Visibility string         `json:"visibility"`
	Frame      wireFrame      `json:"frame"`
	Time       wireTime       `json:"time"`
	Pattern    *wirePattern   `json:"pattern,omitempty"`
	Grounding  *wireGrounding `json:"grounding,omitempty"`
	Absence    *wireAbsence   `json:"absence,omitempty"`
	Returns    *wireReturns   `json:"returns,omitempty"`
}

// ToJSON serializes a query to its structured text form.
// The form round-trips losslessly through FromJSON.
func ToJSON(q Query) ([]byte, error) {
	w, err := toWire(q)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(w); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// FromJSON reconstructs a query from its structured text form.
func FromJSON(data []byte) (Query, error) {
	var w wireQuery
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Query{}, fmt.Errorf("decode query: %w", err)
	}
	return fromWire(w)
}

func toWire(q Query) (wireQuery, error) {
	w := wireQuery{
		Target:     string(q.Target),
		Mode:       string(q.Mode),
		Visibility: string(q.Visibility),
		Frame:      wireFrame{FrameID: q.Frame.FrameID, Version: q.Frame.Version},
		Time: wireTime{
			Kind:  string(q.Time.Kind),
			AsOf:  q.Time.AsOf,
			Start: q.Time.Start,
			End:   q.Time.End,
		},
	}

	if q.Pattern.Match != "" || len(q.Pattern.Where) > 0 {
		where, err := predicatesToWire(q.Pattern.Where)
		if err != nil {
			return wireQuery{}, fmt.Errorf("pattern: %w", err)
		}
		w.Pattern = &wirePattern{Match: q.Pattern.Match, Where: where}
	}

	if q.Grounding.Trace || q.Grounding.MaxDepth != 0 || len(q.Grounding.GroundedBy) > 0 {
		groundedBy, err := predicatesToWire(q.Grounding.GroundedBy)
		if err != nil {
			return wireQuery{}, fmt.Errorf("grounding: %w", err)
		}
		w.Grounding = &wireGrounding{
			Trace:      q.Grounding.Trace,
			MaxDepth:   q.Grounding.MaxDepth,
			GroundedBy: groundedBy,
		}
	}

	if q.Absence != nil {
		scope, err := valueMapToWire(q.Absence.Scope)
		if err != nil {
			return wireQuery{}, fmt.Errorf("absence.scope: %w", err)
		}
		w.Absence = &wireAbsence{
			Expectation: wireExpectation{
				ExpectationID: q.Absence.Expectation.ExpectationID,
				Version:       q.Absence.Expectation.Version,
			},
			Scope:         scope,
			DeadlineHours: q.Absence.DeadlineHours,
		}
	}

	ret := &wireReturns{
		IncludeContext:         q.Returns.IncludeContext,
		IncludeFrame:           q.Returns.IncludeFrame,
		IncludeVisibilityNotes: q.Returns.IncludeVisibilityNotes,
		IncludeConflicts:       q.Returns.IncludeConflicts,
		ConflictPolicy:         string(q.Returns.ConflictPolicy),
	}
	if q.Returns.SelectionRule != nil {
		params, err := valueMapToWire(q.Returns.SelectionRule.Params)
		if err != nil {
			return wireQuery{}, fmt.Errorf("selection_rule.params: %w", err)
		}
		ret.SelectionRule = &wireSelectionRule{
			RuleID: q.Returns.SelectionRule.RuleID,
			Params: params,
		}
	}
	w.Returns = ret

	return w, nil
}

func fromWire(w wireQuery) (Query, error) {
	q := Query{
		Target:     Target(w.Target),
		Mode:       Mode(w.Mode),
		Visibility: Visibility(w.Visibility),
		Frame:      FrameRef{FrameID: w.Frame.FrameID, Version: w.Frame.Version},
		Time: TimeWindow{
			Kind:  TimeKind(w.Time.Kind),
			AsOf:  w.Time.AsOf,
			Start: w.Time.Start,
			End:   w.Time.End,
		},
		Returns: DefaultReturns(),
	}

	if w.Pattern != nil {
		where, err := predicatesFromWire(w.Pattern.Where)
		if err != nil {
			return Query{}, fmt.Errorf("pattern: %w", err)
		}
		q.Pattern = Pattern{Match: w.Pattern.Match, Where: where}
	}

	if w.Grounding != nil {
		groundedBy, err := predicatesFromWire(w.Grounding.GroundedBy)
		if err != nil {
			return Query{}, fmt.Errorf("grounding: %w", err)
		}
		q.Grounding = GroundingSpec{
			Trace:      w.Grounding.Trace,
			MaxDepth:   w.Grounding.MaxDepth,
			GroundedBy: groundedBy,
		}
	}

	if w.Absence != nil {
		scope, err := valueMapFromWire(w.Absence.Scope)
		if err != nil {
			return Query{}, fmt.Errorf("absence.scope: %w", err)
		}
		q.Absence = &AbsenceSpec{
			Expectation: ExpectationRef{
				ExpectationID: w.Absence.Expectation.ExpectationID,
				Version:       w.Absence.Expectation.Version,
			},
			Scope:         scope,
			DeadlineHours: w.Absence.DeadlineHours,
		}
	}

	if w.Returns != nil {
		q.Returns = ReturnSpec{
			IncludeContext:         w.Returns.IncludeContext,
			IncludeFrame:           w.Returns.IncludeFrame,
			IncludeVisibilityNotes: w.Returns.IncludeVisibilityNotes,
			IncludeConflicts:       w.Returns.IncludeConflicts,
			ConflictPolicy:         ConflictPolicy(w.Returns.ConflictPolicy),
		}
		if w.Returns.SelectionRule != nil {
			params, err := valueMapFromWire(w.Returns.SelectionRule.Params)
			if err != nil {
				return Query{}, fmt.Errorf("selection_rule.params: %w", err)
			}
			q.Returns.SelectionRule = &SelectionRule{
				RuleID: w.Returns.SelectionRule.RuleID,
				Params: params,
			}
		}
	}

	return q, nil
}

func predicatesToWire(preds []Predicate) ([]wirePredicate, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	out := make([]wirePredicate, len(preds))
	for i, p := range preds {
		raw, err := ir.MarshalValue(p.Value)
		if err != nil {
			return nil, fmt.Errorf("where[%d]: %w", i, err)
		}
		out[i] = wirePredicate{Field: p.Field, Op: p.Op, Value: raw}
	}
	return out, nil
}

func predicatesFromWire(preds []wirePredicate) ([]Predicate, error) {
	if len(preds) == 0 {
		return nil, nil
	}
	out := make([]Predicate, len(preds))
	for i, p := range preds {
		val, err := ir.UnmarshalValue(p.Value)
		if err != nil {
			return nil, fmt.Errorf("where[%d].value: %w", i, err)
		}
		out[i] = Predicate{Field: p.Field, Op: p.Op, Value: val}
	}
	return out, nil
}

func valueMapToWire(m map[string]ir.Value) (map[string]json.RawMessage, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		raw, err := ir.MarshalValue(v)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

func valueMapFromWire(m map[string]json.RawMessage) (map[string]ir.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]ir.Value, len(m))
	for k, raw := range m {
		val, err := ir.UnmarshalValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", k, err)
		}
		out[k] = val
	}
	return out, nil
}

// CanonicalJSON returns the canonical serialized form used for hashing and
// structural equality. Optional empty sections are omitted so logically
// identical queries produce identical bytes.
func (q Query) CanonicalJSON() ([]byte, error) {
	m, err := q.toMap()
	if err != nil {
		return nil, err
	}
	return ir.MarshalCanonical(m)
}

// toMap flattens the query into plain maps for canonical serialization
// and diffing.
func (q Query) toMap() (map[string]any, error) {
	data, err := ToJSON(q)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return normalizeNumbers(m).(map[string]any), nil
}

// normalizeNumbers rewrites json.Number into int64 or float64 so canonical
// marshaling sees concrete numeric types.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		for k, elem := range val {
			val[k] = normalizeNumbers(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalizeNumbers(elem)
		}
		return val
	default:
		return v
	}
}
