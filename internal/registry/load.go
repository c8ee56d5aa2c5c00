package registry

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"

	"github.com/roach88/eoql/internal/ir"
)

// LoadResult holds the definitions parsed from a directory of CUE files.
type LoadResult struct {
	Frames       []FrameDefinition
	Expectations []ExpectationDefinition
	FileCount    int
}

// LoadDir parses frame and expectation definitions from CUE files.
//
// Definition files declare top-level "frame" and "expectation" structs
// keyed by id:
//
//	frame: F_ops: {
//	    version:     "1.2"
//	    description: "Operational view"
//	    config: trust_order: ["sensor", "operator"]
//	}
//
//	expectation: EXP_daily_heartbeat: {
//	    version: "1.0"
//	    rule: {
//	        claim_type:     "heartbeat"
//	        frequency:      "daily"
//	        deadline_hours: 24
//	        entity_type:    "host"
//	    }
//	}
func LoadDir(dir string) (*LoadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Message: fmt.Sprintf("definitions directory: %v", err)}
	}
	if !info.IsDir() {
		return nil, &LoadError{Path: dir, Message: "not a directory"}
	}

	files, err := findCUEFiles(dir)
	if err != nil {
		return nil, &LoadError{Path: dir, Message: fmt.Sprintf("scanning: %v", err)}
	}
	if len(files) == 0 {
		return nil, &LoadError{Path: dir, Message: "no CUE files found"}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, &LoadError{Path: dir, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Path: dir, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}
	}
	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, &LoadError{Path: dir, Message: fmt.Sprintf("building CUE value: %v", err)}
	}

	result := &LoadResult{FileCount: len(files)}

	framesVal := value.LookupPath(cue.ParsePath("frame"))
	if framesVal.Exists() {
		iter, err := framesVal.Fields()
		if err != nil {
			return nil, &LoadError{Path: dir, Message: fmt.Sprintf("iterating frames: %v", err)}
		}
		for iter.Next() {
			def, err := parseFrame(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			result.Frames = append(result.Frames, def)
		}
	}

	expectationsVal := value.LookupPath(cue.ParsePath("expectation"))
	if expectationsVal.Exists() {
		iter, err := expectationsVal.Fields()
		if err != nil {
			return nil, &LoadError{Path: dir, Message: fmt.Sprintf("iterating expectations: %v", err)}
		}
		for iter.Next() {
			def, err := parseExpectation(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			result.Expectations = append(result.Expectations, def)
		}
	}

	return result, nil
}

// LoadInto loads a definition directory and registers everything found.
func LoadInto(dir string, frames *FrameRegistry, expectations *ExpectationRegistry) error {
	result, err := LoadDir(dir)
	if err != nil {
		return err
	}
	for _, def := range result.Frames {
		if err := frames.Register(def); err != nil {
			return err
		}
	}
	for _, def := range result.Expectations {
		if err := expectations.Register(def); err != nil {
			return err
		}
	}
	return nil
}

func parseFrame(id string, v cue.Value) (FrameDefinition, error) {
	def := FrameDefinition{FrameID: id, Config: map[string]ir.Value{}}

	version, err := stringField(v, "version", true)
	if err != nil {
		return FrameDefinition{}, &LoadError{Path: "frame." + id, Message: err.Error()}
	}
	def.Version = version

	if def.Description, err = stringField(v, "description", false); err != nil {
		return FrameDefinition{}, &LoadError{Path: "frame." + id, Message: err.Error()}
	}
	if def.CreatedAt, err = stringField(v, "created_at", false); err != nil {
		return FrameDefinition{}, &LoadError{Path: "frame." + id, Message: err.Error()}
	}

	configVal := v.LookupPath(cue.ParsePath("config"))
	if configVal.Exists() {
		var raw map[string]any
		if err := configVal.Decode(&raw); err != nil {
			return FrameDefinition{}, &LoadError{
				Path: "frame." + id, Message: fmt.Sprintf("config: %v", err),
			}
		}
		for k, rv := range raw {
			val, err := ir.FromAny(rv)
			if err != nil {
				return FrameDefinition{}, &LoadError{
					Path: "frame." + id, Message: fmt.Sprintf("config.%s: %v", k, err),
				}
			}
			def.Config[k] = val
		}
	}

	return def, nil
}

func parseExpectation(id string, v cue.Value) (ExpectationDefinition, error) {
	def := ExpectationDefinition{ExpectationID: id}

	version, err := stringField(v, "version", true)
	if err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id, Message: err.Error()}
	}
	def.Version = version

	if def.Description, err = stringField(v, "description", false); err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id, Message: err.Error()}
	}
	if def.ActiveFrom, err = stringField(v, "active_from", false); err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id, Message: err.Error()}
	}
	if def.ActiveUntil, err = stringField(v, "active_until", false); err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id, Message: err.Error()}
	}

	ruleVal := v.LookupPath(cue.ParsePath("rule"))
	if !ruleVal.Exists() {
		return ExpectationDefinition{}, &LoadError{
			Path: "expectation." + id, Message: "rule is required",
		}
	}

	claimType, err := stringField(ruleVal, "claim_type", true)
	if err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id + ".rule", Message: err.Error()}
	}
	freqText, err := stringField(ruleVal, "frequency", true)
	if err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id + ".rule", Message: err.Error()}
	}
	freq, ok := ParseFrequency(freqText)
	if !ok {
		return ExpectationDefinition{}, &LoadError{
			Path:    "expectation." + id + ".rule",
			Message: fmt.Sprintf("unknown frequency %q", freqText),
		}
	}
	entityType, err := stringField(ruleVal, "entity_type", false)
	if err != nil {
		return ExpectationDefinition{}, &LoadError{Path: "expectation." + id + ".rule", Message: err.Error()}
	}

	deadline := 0
	deadlineVal := ruleVal.LookupPath(cue.ParsePath("deadline_hours"))
	if deadlineVal.Exists() {
		n, err := deadlineVal.Int64()
		if err != nil {
			return ExpectationDefinition{}, &LoadError{
				Path:    "expectation." + id + ".rule",
				Message: fmt.Sprintf("deadline_hours: %v", err),
			}
		}
		deadline = int(n)
	}

	def.Rule = ExpectationRule{
		EntityFilterType: entityType,
		ClaimType:        claimType,
		Frequency:        freq,
		DeadlineHours:    deadline,
	}
	return def, nil
}

func stringField(v cue.Value, name string, required bool) (string, error) {
	fv := v.LookupPath(cue.ParsePath(name))
	if !fv.Exists() {
		if required {
			return "", fmt.Errorf("%s is required", name)
		}
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", fmt.Errorf("%s: %v", name, err)
	}
	return s, nil
}

func findCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
