package registry

import (
	"sort"
	"sync"
)

// Frequency is the recurrence of an expectation rule.
type Frequency string

const (
	FreqOnce       Frequency = "once"
	FreqDaily      Frequency = "daily"
	FreqWeekly     Frequency = "weekly"
	FreqMonthly    Frequency = "monthly"
	FreqRecurring  Frequency = "recurring"
	FreqContinuous Frequency = "continuous"
)

// ParseFrequency maps frequency text to the enum.
func ParseFrequency(text string) (Frequency, bool) {
	switch Frequency(text) {
	case FreqOnce, FreqDaily, FreqWeekly, FreqMonthly, FreqRecurring, FreqContinuous:
		return Frequency(text), true
	default:
		return "", false
	}
}

// ExpectationRule is what must hold for absence to be meaningful: which
// entities are obligated, what claim is expected of them, and how often.
type ExpectationRule struct {
	EntityFilterType string // empty means all entities
	ClaimType        string
	Frequency        Frequency
	DeadlineHours    int // 0 means the 24h default
}

// ExpectationDefinition is one immutable version of an obligation rule.
type ExpectationDefinition struct {
	ExpectationID string
	Version       string
	Description   string
	Rule          ExpectationRule
	ActiveFrom    string // ISO 8601; empty means always active
	ActiveUntil   string // ISO 8601; empty means no expiry
}

// IsActiveAt reports whether the rule is in force at the given instant.
// ISO 8601 strings compare lexically in chronological order.
func (d ExpectationDefinition) IsActiveAt(ts string) bool {
	if d.ActiveFrom != "" && ts < d.ActiveFrom {
		return false
	}
	if d.ActiveUntil != "" && ts >= d.ActiveUntil {
		return false
	}
	return true
}

// ExpectationRegistry is a versioned, concurrency-safe expectation store
// with the same append-only discipline as FrameRegistry.
type ExpectationRegistry struct {
	mu    sync.RWMutex
	rules map[string]map[string]ExpectationDefinition
}

// NewExpectationRegistry returns an empty registry. Unlike frames there is
// no seeded default: a default expectation would manufacture obligations.
func NewExpectationRegistry() *ExpectationRegistry {
	return &ExpectationRegistry{rules: map[string]map[string]ExpectationDefinition{}}
}

// Register adds a new expectation version. Existing versions are immutable.
func (r *ExpectationRegistry) Register(def ExpectationDefinition) error {
	if def.ExpectationID == "" {
		return &LoadError{Message: "expectation_id must be non-empty"}
	}
	if def.Version == "" {
		return &LoadError{Message: "expectation version must be non-empty"}
	}
	if def.Rule.ClaimType == "" {
		return &LoadError{Message: "expectation rule requires claim_type: " + def.ExpectationID}
	}
	if _, ok := ParseFrequency(string(def.Rule.Frequency)); !ok {
		return &LoadError{Message: "unknown frequency " + string(def.Rule.Frequency) +
			" in expectation " + def.ExpectationID}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	versions, ok := r.rules[def.ExpectationID]
	if !ok {
		versions = map[string]ExpectationDefinition{}
		r.rules[def.ExpectationID] = versions
	}
	if _, exists := versions[def.Version]; exists {
		return &LoadError{Message: "expectation version already registered: " +
			def.ExpectationID + "@" + def.Version}
	}
	versions[def.Version] = def
	return nil
}

// Resolve returns an expectation definition. An empty or "latest" version
// resolves to the highest registered version.
func (r *ExpectationRegistry) Resolve(expectationID, version string) (ExpectationDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.rules[expectationID]
	if !ok {
		return ExpectationDefinition{}, &ExpectationNotFoundError{
			ExpectationID: expectationID, Version: version,
		}
	}
	if version == "" || version == "latest" {
		latest := ""
		for v := range versions {
			if v > latest {
				latest = v
			}
		}
		return versions[latest], nil
	}
	def, ok := versions[version]
	if !ok {
		return ExpectationDefinition{}, &ExpectationNotFoundError{
			ExpectationID: expectationID, Version: version,
		}
	}
	return def, nil
}

// ListVersions returns the registered versions of an expectation in sorted
// order.
func (r *ExpectationRegistry) ListVersions(expectationID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	versions, ok := r.rules[expectationID]
	if !ok {
		return nil, &ExpectationNotFoundError{ExpectationID: expectationID}
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out, nil
}

// ListActive returns the latest version of every expectation whose activity
// window covers the given instant, sorted by id.
func (r *ExpectationRegistry) ListActive(ts string) []ExpectationDefinition {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rules))
	for id := range r.rules {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)

	var out []ExpectationDefinition
	for _, id := range ids {
		def, err := r.Resolve(id, "")
		if err != nil {
			continue
		}
		if def.IsActiveAt(ts) {
			out = append(out, def)
		}
	}
	return out
}
