// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// runSend sends each VALUE argument, or each line of stdin when there are
// none, as one message.
func runSend(ctx context.Context, a *app, args []string) error {
	var (
		address string
		dtype   string
		table   bool
		eof     bool
		nolimit bool
	)
	flagSet := pflag.NewFlagSet("send", pflag.ContinueOnError)
	flagSet.StringVar(&address, "address", "", "transport address (default: NAME_OUT)")
	flagSet.StringVar(&dtype, "datatype", "", "type name, JSON definition or row format string")
	flagSet.BoolVar(&table, "table", false, "announce the row format first (requires a format --datatype)")
	flagSet.BoolVar(&eof, "eof", false, "send end of stream after the values")
	flagSet.BoolVar(&nolimit, "nolimit", false, "send each value as one transport message")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() < 1 {
		return fmt.Errorf("send: missing channel name")
	}
	name := flagSet.Arg(0)
	values := flagSet.Args()[1:]
	if len(values) == 0 {
		var err error
		if values, err = readLines(a); err != nil {
			return err
		}
	}

	def := definition(dtype)
	var comm *modelcomm.Comm
	if table {
		if !strings.Contains(dtype, "%") {
			return fmt.Errorf("send: --table needs a row format string as --datatype")
		}
		out, err := modelcomm.NewTableOutput(name, dtype, a.options(address)...)
		if err != nil {
			return err
		}
		comm = out.Comm()
	} else {
		var err error
		if comm, err = modelcomm.NewOutput(name, def, a.options(address)...); err != nil {
			return err
		}
	}
	defer comm.Close()

	for _, value := range values {
		v, err := parseValue(comm.Definition(), value)
		if err != nil {
			return err
		}
		if nolimit {
			err = comm.SendNolimit(v)
		} else {
			err = comm.SendContext(ctx, v)
		}
		if err != nil {
			return err
		}
		slog.Debug("sent", "name", name, "value", value)
	}
	if eof {
		return comm.SendEOF()
	}
	return nil
}

func readLines(a *app) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(a.stdin)
	scanner.Buffer(make([]byte, 64<<10), 64<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	return lines, scanner.Err()
}

// parseValue turns a command line value into what def encodes: a row for
// table definitions, raw bytes when unbound, and a JSON value otherwise.
func parseValue(def datatype.Definition, s string) (any, error) {
	switch {
	case def == nil:
		return []byte(s), nil
	case def.Type() == datatype.TypeTable:
		format, _ := def[datatype.PropFormatStr].(string)
		if !strings.HasSuffix(s, "\n") && strings.HasSuffix(format, "\n") {
			s += "\n"
		}
		row, err := datatype.ScanRow(format, s)
		if err != nil {
			return nil, err
		}
		return datatype.Row(row), nil
	case def.Type() == datatype.TypeUnicode:
		return s, nil
	case def.Type() == datatype.TypeBytes:
		return []byte(s), nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("value %q is not JSON: %w", s, err)
	}
	return fromJSON(v), nil
}

// fromJSON replaces json.Number with int64 or float64.
func fromJSON(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		f, _ := x.Float64()
		return f
	case []any:
		for i := range x {
			x[i] = fromJSON(x[i])
		}
		return x
	case map[string]any:
		for k := range x {
			x[k] = fromJSON(x[k])
		}
		return x
	default:
		return v
	}
}
