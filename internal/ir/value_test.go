package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromAny_Scalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want Value
	}{
		{"nil", nil, Null{}},
		{"string", "hello", String("hello")},
		{"bool", true, Bool(true)},
		{"int", 42, Int(42)},
		{"int64", int64(-7), Int(-7)},
		{"whole float", float64(3), Int(3)},
		{"fractional float", 0.8, Float(0.8)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FromAny(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromAny_List(t *testing.T) {
	got, err := FromAny([]any{"a", 1, 0.5})
	require.NoError(t, err)
	assert.Equal(t, List{String("a"), Int(1), Float(0.5)}, got)
}

func TestFromAny_Unsupported(t *testing.T) {
	_, err := FromAny(struct{}{})
	assert.Error(t, err)
}

func TestValueRoundTrip(t *testing.T) {
	values := []Value{
		Null{},
		String("temperature"),
		Int(100),
		Float(0.85),
		Bool(false),
		List{String("sensor"), String("operator")},
	}

	for _, v := range values {
		data, err := MarshalValue(v)
		require.NoError(t, err)
		back, err := UnmarshalValue(data)
		require.NoError(t, err)
		assert.True(t, Equal(v, back), "round trip changed %#v into %#v", v, back)
	}
}

func TestEqual_TypeMismatch(t *testing.T) {
	assert.False(t, Equal(Int(1), Float(1)))
	assert.False(t, Equal(String("1"), Int(1)))
	assert.False(t, Equal(List{Int(1)}, List{Int(1), Int(2)}))
}

func TestMarshalCanonical_Deterministic(t *testing.T) {
	m := map[string]any{
		"zebra": 1,
		"alpha": "x",
		"nested": map[string]any{
			"c": 0.5,
			"a": true,
		},
	}

	first, err := MarshalCanonical(m)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := MarshalCanonical(m)
		require.NoError(t, err)
		assert.Equal(t, string(first), string(again))
	}
	assert.Equal(t, `{"alpha":"x","nested":{"a":true,"c":0.5},"zebra":1}`, string(first))
}

func TestMarshalCanonical_UnicodeNormalization(t *testing.T) {
	// Same text in composed and decomposed form must hash identically.
	composed := map[string]any{"label": "café"}
	decomposed := map[string]any{"label": "café"}

	a, err := MarshalCanonical(composed)
	require.NoError(t, err)
	b, err := MarshalCanonical(decomposed)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestHashWithDomain_Separation(t *testing.T) {
	data := []byte(`{"target":"CLAIMS"}`)

	h1 := HashWithDomain(DomainQuery, data)
	h2 := HashWithDomain(DomainPlan, data)

	assert.Len(t, h1, 64)
	assert.NotEqual(t, h1, h2, "different domains must not collide")
	assert.Equal(t, h1, HashWithDomain(DomainQuery, data), "hashing is deterministic")
}
