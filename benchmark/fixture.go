// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package benchmark holds fixtures shared by the modelcomm benchmarks and
// by peers in other languages that reproduce them.
package benchmark

import (
	"fmt"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// PayloadSizes are the message sizes measured by the chunking benchmarks.
// They straddle the 2048-byte queue limit.
var PayloadSizes = []int{64, 2047, 2048, 2049, 16 << 10, 1 << 20}

// Row formats of the RPC fixtures.
const (
	AddRequestFormat  = "%g\t%g\n"
	AddResponseFormat = "%g\n"
	RowFormat         = "%d\t%g\t%s\n"
)

// Payload returns size deterministic bytes. The content is mixed enough
// that compression gains little, so chunk counts match the raw size.
func Payload(size int) []byte {
	b := make([]byte, size)
	var x uint32 = 2463534242
	for i := range b {
		x ^= x << 13
		x ^= x >> 17
		x ^= x << 5
		b[i] = byte(x)
	}
	return b
}

// Rows returns n rows matching RowFormat.
func Rows(n int) []datatype.Row {
	rows := make([]datatype.Row, n)
	for i := range rows {
		rows[i] = datatype.Row{int32(i), float64(i) / 4, fmt.Sprintf("row%d", i)}
	}
	return rows
}

// Add answers an AddRequestFormat request with the sum of its columns.
func Add(_ *modelcomm.CallContext, req any) (any, error) {
	row, ok := req.(datatype.Row)
	if !ok || len(row) != 2 {
		return nil, &datatype.Error{Type: datatype.ValueError, Message: fmt.Sprintf("add expects two numbers, got %v", req)}
	}
	a, _ := row[0].(float64)
	b, _ := row[1].(float64)
	return datatype.Row{a + b}, nil
}
