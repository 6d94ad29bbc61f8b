// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"io"
	"testing"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableOptions(t *testing.T) []Option {
	t.Helper()
	addr := newLoopbackAddress(t)
	return []Option{
		WithConfig(loopbackConfig()),
		WithEnv(map[string]string{"table_OUT": addr, "table_IN": addr}),
	}
}

func TestTableStream(t *testing.T) {
	opts := tableOptions(t)
	out, err := NewTableOutput("table", "%d\t%f\t%s\n", opts...)
	require.NoError(t, err)
	defer out.Close()
	in, err := NewTableInput("table", opts...)
	require.NoError(t, err)
	defer in.Close()

	format, err := in.Format(time.Second)
	require.NoError(t, err)
	assert.Equal(t, "%d\t%f\t%s\n", format)

	require.NoError(t, out.SendRow(1, 2.5, "x"))
	row, err := in.RecvRow(time.Second)
	require.NoError(t, err)
	assert.Equal(t, datatype.Row{int32(1), 2.5, "x"}, row)

	table := datatype.Table{
		Names: []string{"n", "v", "s"},
		Rows:  []datatype.Row{{int32(1), 0.5, "a"}, {int32(2), 1.5, "b"}},
	}
	require.NoError(t, out.SendArray(table))
	got, err := in.RecvArray(time.Second)
	require.NoError(t, err)
	assert.Equal(t, table, got)

	require.NoError(t, out.SendEOF())
	_, err = in.RecvRow(time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestTableInputFromHeaderlessPeer(t *testing.T) {
	addr := newLoopbackAddress(t)
	raw := rawSender(t, addr)
	in, err := NewTableInput("table", WithConfig(loopbackConfig()), WithAddress(addr))
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, raw.Send([]byte("%d %s\n")))
	require.NoError(t, raw.Send([]byte("7 seven\n")))

	row, err := in.RecvRow(time.Second)
	require.NoError(t, err)
	assert.Equal(t, datatype.Row{int32(7), "seven"}, row)

	require.NoError(t, raw.Send([]byte("8 eight\n")))
	table, err := in.RecvArray(time.Second)
	require.NoError(t, err)
	assert.Equal(t, datatype.Table{Rows: []datatype.Row{{int32(8), "eight"}}}, table)
}

func TestTableStreamErrors(t *testing.T) {
	opts := tableOptions(t)
	_, err := NewTableOutput("table", "%y\n", opts...)
	assert.ErrorIs(t, err, datatype.ErrDatatype)

	out, err := NewTableOutput("table", "%d\n", opts...)
	require.NoError(t, err)
	defer out.Close()
	in, err := NewTableInput("table", opts...)
	require.NoError(t, err)
	defer in.Close()

	assert.Error(t, out.SendRow("not a number"))
	require.NoError(t, out.SendArray(datatype.Table{Rows: []datatype.Row{{1}}}))
	_, err = in.RecvRow(time.Second)
	assert.ErrorIs(t, err, datatype.ErrRuntime)
}

func TestTableInputRejectsDataBeforeFormat(t *testing.T) {
	opts := tableOptions(t)
	out, err := NewOutput("table", datatype.TypeInt, opts...)
	require.NoError(t, err)
	defer out.Close()
	in, err := NewTableInput("table", opts...)
	require.NoError(t, err)
	defer in.Close()

	require.NoError(t, out.Send(int64(1)))
	_, err = in.Format(time.Second)
	assert.ErrorIs(t, err, datatype.ErrValue)
}
