// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareCompatible(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		a, b Definition
	}{
		{"alias and base", Definition{PropType: TypeInt}, Definition{PropType: TypeScalar, PropSubtype: TypeInt}},
		{"alias and base with precision",
			Definition{PropType: TypeInt, PropPrecision: 32},
			Definition{PropType: TypeScalar, PropSubtype: TypeInt, PropPrecision: 32.0}},
		{"default units", Definition{PropType: TypeFloat, PropUnits: ""}, Definition{PropType: TypeFloat}},
		{"default as_array",
			Definition{PropType: TypeTable, PropFormatStr: "%d\n", PropAsArray: false},
			Definition{PropType: TypeTable, PropFormatStr: "%d\n"}},
		{"title ignored", Definition{PropType: TypeBoolean, PropTitle: ""}, Definition{PropType: TypeBoolean}},
		{"items", Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeInt}}},
			Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeScalar, PropSubtype: TypeInt}}}},
		{"members", Definition{PropType: TypeObject, PropProperties: Definition{"a": Definition{PropType: TypeInt}}},
			Definition{PropType: TypeObject, PropProperties: map[string]any{"a": map[string]any{"type": "int"}}}},
		{"reference",
			Definition{PropRef: "#/definitions/count", PropDefinitions: Definition{"count": Definition{PropType: TypeUint}}},
			Definition{PropType: TypeUint}},
		{"both empty", Definition{}, Definition{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mismatches := slices.Collect(r.Compare(tt.a, tt.b))
			assert.Empty(t, mismatches)
			assert.True(t, r.Compatible(tt.b, tt.a))
		})
	}
}

func TestCompareIncompatible(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		a, b Definition
	}{
		{"empty", Definition{PropType: TypeInt}, Definition{}},
		{"types", Definition{PropType: TypeInt}, Definition{PropType: TypeFloat}},
		{"precision one side", Definition{PropType: TypeInt, PropPrecision: 32}, Definition{PropType: TypeInt}},
		{"precision differs", Definition{PropType: TypeInt, PropPrecision: 32}, Definition{PropType: TypeInt, PropPrecision: 64}},
		{"units one side", Definition{PropType: TypeFloat, PropUnits: "cm"}, Definition{PropType: TypeFloat}},
		{"as_array set", Definition{PropType: TypeTable, PropFormatStr: "%d\n", PropAsArray: true},
			Definition{PropType: TypeTable, PropFormatStr: "%d\n"}},
		{"item count", Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeInt}, Definition{PropType: TypeInt}}},
			Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeInt}}}},
		{"item type", Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeInt}}},
			Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeUnicode}}}},
		{"members", Definition{PropType: TypeObject, PropProperties: Definition{"a": Definition{PropType: TypeInt}}},
			Definition{PropType: TypeObject, PropProperties: Definition{"b": Definition{PropType: TypeInt}}}},
		{"unresolved reference", Definition{PropRef: "#/definitions/missing"}, Definition{PropType: TypeInt}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEmpty(t, slices.Collect(r.Compare(tt.a, tt.b)))
			assert.False(t, r.Compatible(tt.b, tt.a))
		})
	}
}

func TestCompareReportsEveryProperty(t *testing.T) {
	r := NewRegistry()
	a := Definition{PropType: TypeFloat, PropPrecision: 32, PropUnits: "cm"}
	b := Definition{PropType: TypeFloat}

	seq := r.Compare(a, b)
	first := slices.Collect(seq)
	require.Len(t, first, 2)
	assert.Equal(t, PropPrecision, first[0].Property)
	assert.Equal(t, PropUnits, first[1].Property)
	assert.Contains(t, first[1].String(), "present on one side only")

	// The sequence restarts from the beginning.
	assert.Equal(t, first, slices.Collect(seq))

	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestCompareNestedPath(t *testing.T) {
	r := NewRegistry()
	a := Definition{PropType: TypeObject, PropProperties: Definition{
		"pos": Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeFloat}}},
	}}
	b := Definition{PropType: TypeObject, PropProperties: Definition{
		"pos": Definition{PropType: TypeArray, PropItems: []any{Definition{PropType: TypeInt}}},
	}}
	mismatches := slices.Collect(r.Compare(a, b))
	require.Len(t, mismatches, 1)
	assert.Equal(t, "/properties/pos/items/0", mismatches[0].Path)
}

func TestCompareReflexive(t *testing.T) {
	r := NewRegistry()
	for _, tc := range roundTripCases() {
		def, err := r.Resolve(tc.def)
		require.NoError(t, err)
		assert.True(t, r.Compatible(def, def), tc.name)
	}
}
