// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// ValidObjects returns one sample value per built-in type, keyed by the
// type name that inference assigns to it. Every value survives an
// encode/decode round trip through the default registry.
func ValidObjects() map[string]any {
	return map[string]any{
		datatype.TypeNull:    nil,
		datatype.TypeBoolean: true,
		datatype.TypeInt:     int64(-7),
		datatype.TypeUint:    uint32(7),
		datatype.TypeFloat:   2.5,
		datatype.TypeComplex: complex(1.5, -0.5),
		datatype.TypeBytes:   []byte("hello"),
		datatype.TypeUnicode: "hello",
		datatype.Type1DArray: []float64{1, 2, 3},
		datatype.TypeNDArray: datatype.NDArray{Shape: []int{2, 2}, Data: []int32{1, 2, 3, 4}},
		datatype.TypeArray:   []any{int64(1), "two", 3.0},
		datatype.TypeObject:  map[string]any{"a": int64(1), "b": "text"},
		datatype.TypeTable:   datatype.Row{int32(5), "five", 5.5},
	}
}

// SampleRows is the table used by table stream conformance checks.
func SampleRows() (format string, rows []datatype.Row) {
	return "%d\t%s\t%g\n", []datatype.Row{
		{int32(1), "one", 1.5},
		{int32(-2), "two", 0.25},
		{int32(3), "three", -8.0},
	}
}
