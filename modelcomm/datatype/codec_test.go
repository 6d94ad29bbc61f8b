// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// roundTripCases are values that must survive EncodeMessage/DecodeMessage
// with their Go type intact.
func roundTripCases() []struct {
	name string
	def  any
	in   any
} {
	return []struct {
		name string
		def  any
		in   any
	}{
		{"null", TypeNull, nil},
		{"boolean", TypeBoolean, true},
		{"int", TypeInt, int64(-7)},
		{"int32", Definition{PropType: TypeInt, PropPrecision: 32}, int32(5)},
		{"int8", Definition{PropType: TypeInt, PropPrecision: 8}, int8(-128)},
		{"uint16", Definition{PropType: TypeUint, PropPrecision: 16}, uint16(65535)},
		{"float", TypeFloat, 3.25},
		{"float32", Definition{PropType: TypeFloat, PropPrecision: 32}, float32(1.5)},
		{"complex", TypeComplex, complex(1, -2)},
		{"complex64", Definition{PropType: TypeComplex, PropPrecision: 64}, complex64(complex(0.5, 4))},
		{"bytes", TypeBytes, []byte{0, 1, 2, 255}},
		{"empty bytes", TypeBytes, []byte{}},
		{"unicode", TypeUnicode, "héllo wörld"},
		{"scalar inferred subtype", TypeScalar, int16(3)},
		{"units", Definition{PropType: TypeFloat, PropUnits: "m/s"}, 9.81},
		{"1darray", Type1DArray, []float64{1, 2, 3}},
		{"1darray int32", Definition{PropType: Type1DArray, PropSubtype: TypeInt, PropPrecision: 32}, []int32{4, 5, 6}},
		{"ndarray", TypeNDArray, NDArray{Shape: []int{2, 2}, Data: []uint8{1, 2, 3, 4}}},
		{"array", TypeArray, []any{int64(1), "two", 3.0}},
		{"array typed items", []any{TypeInt, TypeUnicode}, []any{int64(1), "one"}},
		{"object", TypeObject, map[string]any{"a": int64(1), "b": "x", "c": []any{true, nil}}},
		{"object members", map[string]any{"x": TypeFloat, "y": TypeFloat}, map[string]any{"x": 1.0, "y": -1.0}},
		{"table row", Definition{PropType: TypeTable, PropFormatStr: "%d\t%f\t%s\n"}, Row{int32(5), 2.5, "abc"}},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	r := NewRegistry()
	for _, tc := range roundTripCases() {
		t.Run(tc.name, func(t *testing.T) {
			body, meta, err := r.Encode(tc.in, tc.def)
			require.NoError(t, err)

			got, err := r.Decode(body, meta)
			require.NoError(t, err)
			assert.Equal(t, tc.in, got)

			msg, err := r.EncodeMessage(tc.in, tc.def)
			require.NoError(t, err)
			got, err = r.DecodeMessage(msg)
			require.NoError(t, err)
			assert.Equal(t, tc.in, got)

			eq, err := r.Equal(tc.in, got, tc.def)
			require.NoError(t, err)
			assert.True(t, eq)
		})
	}
}

func TestEncodeWithoutDatatype(t *testing.T) {
	r := NewRegistry()

	body, meta, err := r.Encode([]byte("raw"), nil)
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, []byte("raw"), body)

	_, _, err = r.Encode("text", nil)
	assert.ErrorIs(t, err, ErrRuntime)

	_, _, err = r.Encode(1, Definition(nil))
	assert.ErrorIs(t, err, ErrRuntime)

	v, err := r.Decode([]byte("raw"), nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("raw"), v)
}

func TestEncodeAliasKeepsName(t *testing.T) {
	r := NewRegistry()
	_, meta, err := r.Encode(int32(1), Definition{PropType: TypeInt, PropPrecision: 32})
	require.NoError(t, err)
	assert.Equal(t, Definition{PropType: TypeInt, PropPrecision: 32}, meta)
}

func TestEncodeValueErrors(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		def  any
		in   any
	}{
		{"int8 overflow", Definition{PropType: TypeInt, PropPrecision: 8}, 300},
		{"uint negative", TypeUint, -1},
		{"int from string", TypeInt, "7"},
		{"bad utf8", TypeUnicode, []byte{0xff, 0xfe}},
		{"null with value", TypeNull, 0},
		{"boolean from int", TypeBoolean, 1},
		{"vector wrong subtype", Definition{PropType: Type1DArray, PropSubtype: TypeInt}, []float64{1}},
		{"vector wrong length", Definition{PropType: Type1DArray, PropLength: 2}, []float64{1}},
		{"ndarray shape mismatch", TypeNDArray, NDArray{Shape: []int{3}, Data: []int64{1, 2}}},
		{"array arity", []any{TypeInt, TypeInt}, []any{int64(1)}},
		{"object missing member", map[string]any{"x": TypeFloat, "y": TypeFloat}, map[string]any{"x": 1.0}},
		{"object extra member", map[string]any{"x": TypeFloat}, map[string]any{"x": 1.0, "z": 2.0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := r.Encode(tt.in, tt.def)
			assert.ErrorIs(t, err, ErrValue)
		})
	}

	_, _, err := r.Encode(1.0, Definition{PropType: TypeFloat, PropPrecision: 16})
	assert.ErrorIs(t, err, ErrType)
}

func TestDecodeRejectsMalformedBodies(t *testing.T) {
	r := NewRegistry()

	_, err := r.Decode([]byte{1, 2, 3}, TypeInt)
	assert.ErrorIs(t, err, ErrValue)

	_, err = r.Decode([]byte{1, 2}, TypeBoolean)
	assert.ErrorIs(t, err, ErrValue)

	_, err = r.Decode([]byte{1, 2, 3}, Definition{PropType: Type1DArray, PropSubtype: TypeInt, PropPrecision: 32})
	assert.ErrorIs(t, err, ErrValue)

	_, err = r.Decode([]byte("not cbor"), Definition{PropType: TypeArray, PropItems: []any{TypeInt}})
	assert.ErrorIs(t, err, ErrValue)
}

func TestEqual(t *testing.T) {
	r := NewRegistry()

	eq, err := r.Equal([]float64{1, 2}, []float64{1, 2}, Type1DArray)
	require.NoError(t, err)
	assert.True(t, eq)

	eq, err = r.Equal([]float64{1, 2}, []float64{1, 3}, Type1DArray)
	require.NoError(t, err)
	assert.False(t, eq)

	eq, err = r.Equal(map[string]any{"a": int64(1), "b": int64(2)}, map[string]any{"b": int64(2), "a": int64(1)}, TypeObject)
	require.NoError(t, err)
	assert.True(t, eq)

	_, err = r.Equal("x", "y", TypeInt)
	assert.ErrorIs(t, err, ErrValue)
}

func TestValidate(t *testing.T) {
	r := NewRegistry()
	assert.NoError(t, r.Validate(int64(1), TypeInt))
	assert.ErrorIs(t, r.Validate("one", TypeInt), ErrValue)
	assert.ErrorIs(t, r.Validate(int64(1), "quaternion"), ErrType)
}

func TestHeader(t *testing.T) {
	h := Header{
		Datatype: Definition{PropType: TypeInt},
		ID:       "abc",
		Meta:     map[string]string{"traceparent": "00-1"},
	}
	msg, err := h.Format([]byte("body"))
	require.NoError(t, err)
	assert.True(t, HasHeader(msg))

	got, body, ok, err := ParseHeader(msg)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("body"), body)
	assert.Equal(t, 4, got.Size)
	assert.Equal(t, "abc", got.ID)
	assert.Equal(t, TypeInt, got.Datatype.Type())
	assert.Equal(t, "00-1", got.Meta["traceparent"])

	_, body, ok, err = ParseHeader([]byte("plain"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []byte("plain"), body)

	_, _, _, err = ParseHeader([]byte(HeaderMarker + `{"size":1}`))
	assert.ErrorIs(t, err, ErrValue)

	_, _, _, err = ParseHeader(append(msg, 'x'))
	assert.ErrorIs(t, err, ErrValue)
}

func TestDecodeMessageWithoutHeader(t *testing.T) {
	r := NewRegistry()
	v, err := r.DecodeMessage([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), v)
}
