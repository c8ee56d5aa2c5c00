package query

import (
	"encoding/json"
	"fmt"
)

// requiredTopLevel are the fields a serialized query must always carry.
var requiredTopLevel = []string{"target", "mode", "visibility", "frame", "time"}

// ValidateSerialized checks a serialized query for missing required
// top-level fields and out-of-enum literals without fully deserializing it.
//
// This is the cheap gate for text arriving at a trust boundary; a clean
// result still goes through FromJSON + Validate before compilation.
func ValidateSerialized(data []byte) (bool, []string) {
	var problems []string

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return false, []string{fmt.Sprintf("invalid JSON: %v", err)}
	}

	for _, field := range requiredTopLevel {
		if _, ok := top[field]; !ok {
			problems = append(problems, fmt.Sprintf("missing required field: %s", field))
		}
	}

	problems = append(problems, checkEnum(top, "target",
		string(TargetClaims), string(TargetEdges), string(TargetEntities),
		string(TargetAssertions), string(TargetAbsences))...)
	problems = append(problems, checkEnum(top, "mode",
		string(ModeGiven), string(ModeMeant))...)
	problems = append(problems, checkEnum(top, "visibility",
		string(VisibilityVisible), string(VisibilityExists))...)

	if raw, ok := top["frame"]; ok {
		var frame map[string]json.RawMessage
		if err := json.Unmarshal(raw, &frame); err != nil {
			problems = append(problems, "frame must be an object")
		} else if _, ok := frame["frame_id"]; !ok {
			problems = append(problems, "frame.frame_id is required")
		}
	}

	if raw, ok := top["time"]; ok {
		problems = append(problems, checkTime(raw)...)
	}

	return len(problems) == 0, problems
}

func checkEnum(top map[string]json.RawMessage, field string, allowed ...string) []string {
	raw, ok := top[field]
	if !ok {
		return nil
	}
	var literal string
	if err := json.Unmarshal(raw, &literal); err != nil {
		return []string{fmt.Sprintf("%s must be a string", field)}
	}
	for _, a := range allowed {
		if literal == a {
			return nil
		}
	}
	return []string{fmt.Sprintf("invalid %s: %s", field, literal)}
}

func checkTime(raw json.RawMessage) []string {
	var problems []string

	var tw map[string]json.RawMessage
	if err := json.Unmarshal(raw, &tw); err != nil {
		return []string{"time must be an object"}
	}

	kindRaw, ok := tw["kind"]
	if !ok {
		return []string{"time.kind is required"}
	}
	var kind string
	if err := json.Unmarshal(kindRaw, &kind); err != nil {
		return []string{"time.kind must be a string"}
	}

	nonEmpty := func(field string) bool {
		r, ok := tw[field]
		if !ok {
			return false
		}
		var s string
		return json.Unmarshal(r, &s) == nil && s != ""
	}

	switch TimeKind(kind) {
	case TimeAsOf:
		if !nonEmpty("as_of") {
			problems = append(problems, "time.as_of is required for AS_OF queries")
		}
	case TimeBetween:
		if !nonEmpty("start") {
			problems = append(problems, "time.start is required for BETWEEN queries")
		}
		if !nonEmpty("end") {
			problems = append(problems, "time.end is required for BETWEEN queries")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid time.kind: %s", kind))
	}

	return problems
}
