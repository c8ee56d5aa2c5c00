package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/eoql/internal/query"
	"github.com/roach88/eoql/internal/registry"
)

// LoadQueryFile reads a query from a JSON or YAML file. YAML is decoded to
// the same wire shape and goes through the same deserializer, so the two
// formats cannot drift.
func LoadQueryFile(path string) (query.Query, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return query.Query{}, fmt.Errorf("read query file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return query.Query{}, fmt.Errorf("parse YAML query: %w", err)
		}
		data, err = json.Marshal(raw)
		if err != nil {
			return query.Query{}, fmt.Errorf("convert YAML query: %w", err)
		}
	}

	return query.FromJSON(data)
}

// loadRegistries builds frame and expectation registries, loading the
// definitions directory when one is configured.
func loadRegistries(opts *RootOptions) (*registry.FrameRegistry, *registry.ExpectationRegistry, error) {
	frames := registry.NewFrameRegistry()
	expectations := registry.NewExpectationRegistry()
	if opts.Definitions != "" {
		if err := registry.LoadInto(opts.Definitions, frames, expectations); err != nil {
			return nil, nil, err
		}
	}
	return frames, expectations, nil
}
