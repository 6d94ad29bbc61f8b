// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicateType(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&TypeClass{Name: TypeInt, Base: TypeScalar, Subtype: TypeInt})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateType)
	assert.ErrorIs(t, err, ErrDatatype)
	assert.NotErrorIs(t, err, ErrType)
}

func TestRegisterInvalidProperty(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&TypeClass{Name: "widget", Properties: []string{"colour"}, Codec: scalarCodec{}})
	assert.ErrorIs(t, err, ErrInvalidProperty)

	_, ok := r.Lookup("widget")
	assert.False(t, ok, "failed registration must not leave the class behind")
}

func TestRegisterUnknownBase(t *testing.T) {
	r := NewRegistry()
	err := r.Register(&TypeClass{Name: "kelvin", Base: "temperature"})
	assert.ErrorIs(t, err, ErrType)
}

func TestRegisterAliasOfAliasFlattens(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(&TypeClass{Name: "temperature", Base: TypeFloat}))

	cls, ok := r.Lookup("temperature")
	require.True(t, ok)
	assert.Equal(t, TypeScalar, cls.Base)
	assert.Equal(t, TypeFloat, cls.Subtype)
	assert.Contains(t, cls.Properties, PropUnits)

	body, meta, err := r.Encode(21.5, "temperature")
	require.NoError(t, err)
	assert.Equal(t, "temperature", meta.Type())
	v, err := r.Decode(body, meta)
	require.NoError(t, err)
	assert.Equal(t, 21.5, v)
}

func TestResolve(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		in   any
		want Definition
	}{
		{"name", "int", Definition{PropType: TypeInt}},
		{"mapping", map[string]any{"type": "float", "units": "m"}, Definition{PropType: TypeFloat, PropUnits: "m"}},
		{"members", map[string]any{"x": "float", "y": "float"}, Definition{
			PropType: TypeObject,
			PropProperties: Definition{
				"x": Definition{PropType: TypeFloat},
				"y": Definition{PropType: TypeFloat},
			},
		}},
		{"sequence", []any{"int", "unicode"}, Definition{
			PropType:  TypeArray,
			PropItems: []any{Definition{PropType: TypeInt}, Definition{PropType: TypeUnicode}},
		}},
		{"format string", "%d\t%s\n", Definition{PropType: TypeTable, PropFormatStr: "%d\t%s\n"}},
		{"nested items", Definition{PropType: TypeArray, PropItems: "float"}, Definition{
			PropType:  TypeArray,
			PropItems: Definition{PropType: TypeFloat},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.Resolve("quaternion")
	assert.ErrorIs(t, err, ErrType)

	_, err = r.Resolve(42)
	assert.ErrorIs(t, err, ErrType)

	_, err = r.Resolve(Definition{})
	assert.ErrorIs(t, err, ErrType)

	_, err = r.Resolve(Definition{PropType: TypeInt, "colour": "red"})
	assert.ErrorIs(t, err, ErrInvalidProperty)

	_, err = r.Resolve(Definition{PropType: TypeBoolean, PropPrecision: 8})
	assert.ErrorIs(t, err, ErrInvalidProperty)

	_, err = r.Resolve(Definition{PropType: 7})
	assert.ErrorIs(t, err, ErrType)
}

func TestDescribe(t *testing.T) {
	r := NewRegistry()
	infos := r.Describe()
	require.Len(t, infos, len(builtinClasses()))

	byName := map[string]TypeInfo{}
	for _, info := range infos {
		byName[info.Name] = info
	}
	assert.Equal(t, TypeScalar, byName[TypeInt].Base)
	assert.Equal(t, TypeInt, byName[TypeInt].Subtype)
	assert.Contains(t, byName[TypeTable].Properties, PropFormatStr)
	assert.NotContains(t, byName[TypeTable].Properties, PropType)
}

func TestDefaultRegistryIsShared(t *testing.T) {
	assert.Same(t, Default(), Default())
}
