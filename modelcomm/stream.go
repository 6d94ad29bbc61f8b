// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"fmt"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// TableOutput is a self-describing table stream. The row format string is
// sent first so that a TableInput needs no prior knowledge of the table.
type TableOutput struct {
	comm   *Comm
	format string
}

// NewTableOutput opens the sending end of name and announces format.
func NewTableOutput(name, format string, opts ...Option) (*TableOutput, error) {
	if _, err := datatype.ParseFormat(format); err != nil {
		return nil, err
	}
	comm, err := NewOutput(name, datatype.TableDefinition(format), opts...)
	if err != nil {
		return nil, err
	}
	env := envelope{kind: KindFormat, raw: true, meta: map[string]string{MetaKind: KindFormat}}
	if err := comm.send(context.Background(), format, env, false); err != nil {
		_ = comm.Close()
		return nil, fmt.Errorf("table %s: sending format: %w", name, err)
	}
	return &TableOutput{comm: comm, format: format}, nil
}

// Format returns the row format string.
func (t *TableOutput) Format() string { return t.format }

// Comm returns the underlying Comm.
func (t *TableOutput) Comm() *Comm { return t.comm }

// SendRow sends one row made of args.
func (t *TableOutput) SendRow(args ...any) error {
	return t.comm.Send(datatype.Row(args))
}

// SendArray sends a whole table as one message.
func (t *TableOutput) SendArray(table datatype.Table) error {
	return t.comm.Send(table)
}

// SendEOF ends the stream.
func (t *TableOutput) SendEOF() error { return t.comm.SendEOF() }

// Close closes the underlying Comm.
func (t *TableOutput) Close() error { return t.comm.Close() }

// TableInput is the receiving end of a TableOutput.
type TableInput struct {
	comm   *Comm
	format string
}

// NewTableInput opens the receiving end of name. The format string is read
// by the first Format, RecvRow or RecvArray.
func NewTableInput(name string, opts ...Option) (*TableInput, error) {
	comm, err := NewInput(name, nil, opts...)
	if err != nil {
		return nil, err
	}
	return &TableInput{comm: comm}, nil
}

// Comm returns the underlying Comm.
func (t *TableInput) Comm() *Comm { return t.comm }

// Format waits up to timeout for the format string announced by the
// sender.
func (t *TableInput) Format(timeout time.Duration) (string, error) {
	if t.format != "" {
		return t.format, nil
	}
	msg, err := t.comm.RecvMessage(context.Background(), timeout)
	if err != nil {
		return "", err
	}
	if kind := msg.Header.Meta[MetaKind]; msg.HasHeader && kind != KindFormat {
		return "", &datatype.Error{Type: datatype.ValueError, Message: fmt.Sprintf("table %s: expected the format string, got a %q message", t.comm.name, kind)}
	}
	raw, ok := msg.Value.([]byte)
	if !ok {
		return "", &datatype.Error{Type: datatype.ValueError, Message: fmt.Sprintf("table %s: format string arrived as %T", t.comm.name, msg.Value)}
	}
	format := string(raw)
	if _, err := datatype.ParseFormat(format); err != nil {
		return "", err
	}
	t.format = format
	// Rows sent without a header are scanned with the announced format.
	t.comm.def = datatype.TableDefinition(format)
	return format, nil
}

func (t *TableInput) recv(timeout time.Duration) (any, error) {
	deadline := deadlineFor(timeout)
	if _, err := t.Format(timeout); err != nil {
		return nil, err
	}
	return t.comm.Recv(remaining(deadline))
}

// RecvRow receives one row. A whole table arriving instead is an error.
func (t *TableInput) RecvRow(timeout time.Duration) (datatype.Row, error) {
	v, err := t.recv(timeout)
	if err != nil {
		return nil, err
	}
	switch row := v.(type) {
	case datatype.Row:
		return row, nil
	case []any:
		return datatype.Row(row), nil
	default:
		return nil, &datatype.Error{Type: datatype.RuntimeError, Message: fmt.Sprintf("table %s: expected a row, got %T", t.comm.name, v)}
	}
}

// RecvArray receives a whole table. A single row arriving instead is
// returned as a one-row table.
func (t *TableInput) RecvArray(timeout time.Duration) (datatype.Table, error) {
	v, err := t.recv(timeout)
	if err != nil {
		return datatype.Table{}, err
	}
	switch table := v.(type) {
	case datatype.Table:
		return table, nil
	case datatype.Row:
		return datatype.Table{Rows: []datatype.Row{table}}, nil
	default:
		return datatype.Table{}, &datatype.Error{Type: datatype.RuntimeError, Message: fmt.Sprintf("table %s: expected a table, got %T", t.comm.name, v)}
	}
}

// Close closes the underlying Comm.
func (t *TableInput) Close() error { return t.comm.Close() }
