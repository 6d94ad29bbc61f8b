// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package benchmark

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

var generateSchema = arrow.NewSchema([]arrow.Field{
	{Name: "i", Type: arrow.PrimitiveTypes.Int64},
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// GenerateBatch builds a record batch of count rows {i, value} where
// value = i * 10. The caller releases it.
func GenerateBatch(count int) arrow.RecordBatch {
	mem := memory.NewGoAllocator()
	ib := array.NewInt64Builder(mem)
	defer ib.Release()
	vb := array.NewFloat64Builder(mem)
	defer vb.Release()
	for i := range count {
		ib.Append(int64(i))
		vb.Append(float64(i) * 10)
	}
	icol := ib.NewArray()
	defer icol.Release()
	vcol := vb.NewArray()
	defer vcol.Release()
	return array.NewRecordBatch(generateSchema, []arrow.Array{icol, vcol}, int64(count))
}

// Transform returns a handler scaling the "value" column of an arrowtable
// request by factor.
func Transform(factor float64) modelcomm.Handler {
	return func(_ *modelcomm.CallContext, req any) (any, error) {
		t, ok := req.(datatype.Table)
		if !ok {
			return nil, &datatype.Error{Type: datatype.ValueError, Message: fmt.Sprintf("transform expects a table, got %T", req)}
		}
		col := -1
		for i, name := range t.Names {
			if name == "value" {
				col = i
			}
		}
		if col < 0 {
			return nil, &datatype.Error{Type: datatype.ValueError, Message: "transform: no value column"}
		}
		out := datatype.Table{Names: t.Names, Units: t.Units, Rows: make([]datatype.Row, len(t.Rows))}
		for i, row := range t.Rows {
			scaled := append(datatype.Row(nil), row...)
			v, _ := scaled[col].(float64)
			scaled[col] = v * factor
			out.Rows[i] = scaled
		}
		return out, nil
	}
}
