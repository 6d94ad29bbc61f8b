// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"bytes"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferFromValue(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		name string
		in   any
		want Definition
	}{
		{"nil", nil, Definition{PropType: TypeNull}},
		{"bool", false, Definition{PropType: TypeBoolean}},
		{"int32", int32(1), Definition{PropType: TypeInt, PropPrecision: 32}},
		{"uint64", uint64(1), Definition{PropType: TypeUint, PropPrecision: 64}},
		{"float64", 1.0, Definition{PropType: TypeFloat, PropPrecision: 64}},
		{"complex64", complex64(1), Definition{PropType: TypeComplex, PropPrecision: 64}},
		{"string", "s", Definition{PropType: TypeUnicode}},
		{"bytes", []byte("b"), Definition{PropType: TypeBytes}},
		{"vector", []float32{1, 2}, Definition{PropType: Type1DArray, PropSubtype: TypeFloat, PropPrecision: 32, PropLength: 2}},
		{"ndarray", NDArray{Shape: []int{1, 2}, Data: []int16{1, 2}}, Definition{
			PropType: TypeNDArray, PropSubtype: TypeInt, PropPrecision: 16, PropShape: []int{1, 2},
		}},
		{"array", []any{int64(1), "x"}, Definition{
			PropType: TypeArray,
			PropItems: []any{
				Definition{PropType: TypeInt, PropPrecision: 64},
				Definition{PropType: TypeUnicode},
			},
		}},
		{"object", map[string]any{"k": true}, Definition{
			PropType:       TypeObject,
			PropProperties: Definition{"k": Definition{PropType: TypeBoolean}},
		}},
		{"row", Row{int32(1), "x"}, Definition{PropType: TypeTable, PropFormatStr: "%d\t%s\n"}},
		{"table", Table{Names: []string{"a"}, Rows: []Row{{1.5}}}, Definition{
			PropType: TypeTable, PropFormatStr: "%g\n", PropAsArray: true, PropFieldNames: []string{"a"},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.InferFromValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferFromValueUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.InferFromValue(struct{ X int }{1})
	assert.ErrorIs(t, err, ErrMetaschemaType)

	_, err = r.InferFromValue([]any{struct{}{}})
	assert.ErrorIs(t, err, ErrMetaschemaType)
}

func TestInferredDefinitionEncodes(t *testing.T) {
	r := NewRegistry()
	for _, v := range []any{nil, true, int8(3), 2.5, "x", []byte{1}, []int64{1, 2}, []any{"a", int64(1)}, Row{int32(1)}} {
		def, err := r.InferFromValue(v)
		require.NoError(t, err)
		assert.NoError(t, r.Validate(v, def), "value %#v under %s", v, def)
	}
}

func TestInferFromBytes(t *testing.T) {
	r := NewRegistry()

	msg, err := r.EncodeMessage([]float64{1, 2}, Type1DArray)
	require.NoError(t, err)
	def, err := r.InferFromBytes(msg)
	require.NoError(t, err)
	assert.Equal(t, Type1DArray, def.Type())
	assert.Equal(t, TypeFloat, def[PropSubtype])

	body, _, err := r.Encode(Table{Names: []string{"a"}, Rows: []Row{{int32(1)}}}, TypeArrowTable)
	require.NoError(t, err)
	def, err = r.InferFromBytes(body)
	require.NoError(t, err)
	assert.Equal(t, TypeArrowTable, def.Type())
	assert.Equal(t, []string{"a"}, def.Strings(PropFieldNames))
	assert.Equal(t, []any{Definition{PropType: TypeInt, PropPrecision: 32}}, def[PropItems])
}

func TestInferFromBytesArrowFile(t *testing.T) {
	r := NewRegistry()
	tbl := Table{Names: []string{"a"}, Rows: []Row{{int64(1)}}}
	def := Definition{PropType: TypeArrowTable, PropItems: []any{Definition{PropType: TypeInt}}, PropFieldNames: []string{"a"}}
	schema, err := r.ArrowSchema(def)
	require.NoError(t, err)
	batch, err := buildRecordBatch(schema, tbl.Rows)
	require.NoError(t, err)
	defer batch.Release()

	var buf bytes.Buffer
	w, err := ipc.NewFileWriter(&buf, ipc.WithSchema(schema))
	require.NoError(t, err)
	require.NoError(t, w.Write(batch))
	require.NoError(t, w.Close())

	got, err := r.InferFromBytes(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, TypeArrowTable, got.Type())
}

func TestInferFromBytesUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.InferFromBytes([]byte("just some text"))
	assert.ErrorIs(t, err, ErrValue)

	_, err = r.InferFromBytes(nil)
	assert.ErrorIs(t, err, ErrValue)

	headerOnly, err := Header{}.Format([]byte("x"))
	require.NoError(t, err)
	_, err = r.InferFromBytes(headerOnly)
	assert.ErrorIs(t, err, ErrValue)
}
