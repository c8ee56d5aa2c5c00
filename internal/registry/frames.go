package registry

import (
	"sort"
	"sync"

	"github.com/roach88/eoql/internal/ir"
)

// DefaultFrameID is the frame seeded into every registry. It exists so the
// system never has an unframed state, not as an invitation to skip framing:
// queries still name it explicitly.
const DefaultFrameID = "F_default"

// FrameDefinition is one immutable version of an interpretation policy.
type FrameDefinition struct {
	FrameID     string
	Version     string
	Description string
	Config      map[string]ir.Value
	CreatedAt   string // ISO 8601
}

// ConfigString returns a string-typed config entry.
func (d FrameDefinition) ConfigString(key string) (string, bool) {
	v, ok := d.Config[key]
	if !ok {
		return "", false
	}
	s, ok := v.(ir.String)
	return string(s), ok
}

// ConfigBool returns a bool-typed config entry.
func (d FrameDefinition) ConfigBool(key string) (bool, bool) {
	v, ok := d.Config[key]
	if !ok {
		return false, false
	}
	b, ok := v.(ir.Bool)
	return bool(b), ok
}

// ConfigInt returns an int-typed config entry.
func (d FrameDefinition) ConfigInt(key string) (int64, bool) {
	v, ok := d.Config[key]
	if !ok {
		return 0, false
	}
	n, ok := v.(ir.Int)
	return int64(n), ok
}

// ValueChange records one config key whose value differs between versions.
type ValueChange struct {
	Was ir.Value
	Now ir.Value
}

// FrameDiff is the config-level difference between two frame versions.
type FrameDiff struct {
	Same    bool
	Added   map[string]ir.Value
	Removed map[string]ir.Value
	Changed map[string]ValueChange
}

// FrameRegistry is a versioned, concurrency-safe frame store.
//
// A single lock guards the whole structure. Registration is append-only:
// re-registering an existing (frame_id, version) pair is rejected so a
// version can never silently change meaning.
type FrameRegistry struct {
	mu     sync.RWMutex
	frames map[string]map[string]FrameDefinition
}

// NewFrameRegistry returns a registry seeded with the default frame.
func NewFrameRegistry() *FrameRegistry {
	r := &FrameRegistry{frames: map[string]map[string]FrameDefinition{}}
	r.frames[DefaultFrameID] = map[string]FrameDefinition{
		"1.0": {
			FrameID:     DefaultFrameID,
			Version:     "1.0",
			Description: "Default interpretation frame",
			Config:      map[string]ir.Value{},
		},
	}
	return r
}

// Register adds a new frame version. Existing versions are immutable.
func (r *FrameRegistry) Register(def FrameDefinition) error {
	if def.FrameID == "" {
		return &LoadError{Message: "frame_id must be non-empty"}
	}
	if def.Version == "" {
		return &LoadError{Message: "frame version must be non-empty"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.frames[def.FrameID]
	if !ok {
		versions = map[string]FrameDefinition{}
		r.frames[def.FrameID] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return &LoadError{Message: "frame version already registered: " +
			def.FrameID + "@" + def.Version}
	}
	versions[def.Version] = def
	return nil
}

// Resolve returns a frame definition. An empty or "latest" version resolves
// to the highest registered version.
func (r *FrameRegistry) Resolve(frameID, version string) (FrameDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.frames[frameID]
	if !ok {
		return FrameDefinition{}, &FrameNotFoundError{FrameID: frameID, Version: version}
	}
	if version == "" || version == "latest" {
		return versions[latestVersion(versions)], nil
	}
	def, ok := versions[version]
	if !ok {
		return FrameDefinition{}, &FrameNotFoundError{FrameID: frameID, Version: version}
	}
	return def, nil
}

// Default returns the seeded default frame.
func (r *FrameRegistry) Default() FrameDefinition {
	def, _ := r.Resolve(DefaultFrameID, "")
	return def
}

// ListVersions returns the registered versions of a frame in sorted order.
func (r *FrameRegistry) ListVersions(frameID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.frames[frameID]
	if !ok {
		return nil, &FrameNotFoundError{FrameID: frameID}
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// ListFrames returns all registered frame ids in sorted order.
func (r *FrameRegistry) ListFrames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.frames))
	for id := range r.frames {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Compare diffs the config of two versions of the same frame. Frames with
// different configs answer differently; Compare makes that inspectable
// before anyone trusts a cross-version comparison of results.
func (r *FrameRegistry) Compare(frameID, v1, v2 string) (FrameDiff, error) {
	a, err := r.Resolve(frameID, v1)
	if err != nil {
		return FrameDiff{}, err
	}
	b, err := r.Resolve(frameID, v2)
	if err != nil {
		return FrameDiff{}, err
	}

	diff := FrameDiff{
		Added:   map[string]ir.Value{},
		Removed: map[string]ir.Value{},
		Changed: map[string]ValueChange{},
	}
	for k, av := range a.Config {
		bv, ok := b.Config[k]
		switch {
		case !ok:
			diff.Removed[k] = av
		case !ir.Equal(av, bv):
			diff.Changed[k] = ValueChange{Was: av, Now: bv}
		}
	}
	for k, bv := range b.Config {
		if _, ok := a.Config[k]; !ok {
			diff.Added[k] = bv
		}
	}
	diff.Same = len(diff.Added) == 0 && len(diff.Removed) == 0 && len(diff.Changed) == 0
	return diff, nil
}

// latestVersion picks the highest version by sorted order. Callers hold the
// lock.
func latestVersion(versions map[string]FrameDefinition) string {
	latest := ""
	for v := range versions {
		if v > latest {
			latest = v
		}
	}
	return latest
}
