package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/eoql/internal/ir"
)

func TestFrameRegistry_SeedsDefault(t *testing.T) {
	r := NewFrameRegistry()

	def, err := r.Resolve(DefaultFrameID, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultFrameID, def.FrameID)
	assert.Equal(t, "1.0", def.Version)
}

func TestFrameRegistry_ResolveLatest(t *testing.T) {
	r := NewFrameRegistry()
	require.NoError(t, r.Register(FrameDefinition{FrameID: "F_ops", Version: "1.0"}))
	require.NoError(t, r.Register(FrameDefinition{FrameID: "F_ops", Version: "1.2"}))
	require.NoError(t, r.Register(FrameDefinition{FrameID: "F_ops", Version: "1.10"}))

	def, err := r.Resolve("F_ops", "latest")
	require.NoError(t, err)
	// Versions order lexically; "1.2" sorts above "1.10".
	assert.Equal(t, "1.2", def.Version)

	pinned, err := r.Resolve("F_ops", "1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0", pinned.Version)
}

func TestFrameRegistry_NotFound(t *testing.T) {
	r := NewFrameRegistry()

	_, err := r.Resolve("F_missing", "")
	require.Error(t, err)
	assert.True(t, IsFrameNotFound(err))

	_, err = r.Resolve(DefaultFrameID, "9.9")
	require.Error(t, err)
	assert.True(t, IsFrameNotFound(err))
}

func TestFrameRegistry_VersionsAreImmutable(t *testing.T) {
	r := NewFrameRegistry()
	require.NoError(t, r.Register(FrameDefinition{FrameID: "F_ops", Version: "1.0"}))

	err := r.Register(FrameDefinition{FrameID: "F_ops", Version: "1.0", Description: "rewritten"})
	require.Error(t, err)

	def, err := r.Resolve("F_ops", "1.0")
	require.NoError(t, err)
	assert.Empty(t, def.Description, "registered version must not change")
}

func TestFrameRegistry_Compare(t *testing.T) {
	r := NewFrameRegistry()
	require.NoError(t, r.Register(FrameDefinition{
		FrameID: "F_ops", Version: "1.0",
		Config: map[string]ir.Value{
			"trust_sensors": ir.Bool(true),
			"min_certainty": ir.Float(0.5),
		},
	}))
	require.NoError(t, r.Register(FrameDefinition{
		FrameID: "F_ops", Version: "2.0",
		Config: map[string]ir.Value{
			"trust_sensors": ir.Bool(false),
			"conflict_bias": ir.String("newest"),
		},
	}))

	diff, err := r.Compare("F_ops", "1.0", "2.0")
	require.NoError(t, err)
	assert.False(t, diff.Same)
	assert.Contains(t, diff.Added, "conflict_bias")
	assert.Contains(t, diff.Removed, "min_certainty")
	require.Contains(t, diff.Changed, "trust_sensors")
	assert.Equal(t, ir.Bool(true), diff.Changed["trust_sensors"].Was)
	assert.Equal(t, ir.Bool(false), diff.Changed["trust_sensors"].Now)

	same, err := r.Compare("F_ops", "1.0", "1.0")
	require.NoError(t, err)
	assert.True(t, same.Same)
}

func TestFrameDefinition_ConfigHelpers(t *testing.T) {
	def := FrameDefinition{Config: map[string]ir.Value{
		"name":  ir.String("ops"),
		"depth": ir.Int(3),
		"open":  ir.Bool(true),
	}}

	s, ok := def.ConfigString("name")
	assert.True(t, ok)
	assert.Equal(t, "ops", s)

	n, ok := def.ConfigInt("depth")
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	b, ok := def.ConfigBool("open")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = def.ConfigString("depth")
	assert.False(t, ok, "type mismatch reports absent")
	_, ok = def.ConfigString("missing")
	assert.False(t, ok)
}
