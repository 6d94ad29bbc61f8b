// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// runRecv prints received messages until end of stream, --count messages
// or a receive timeout.
func runRecv(ctx context.Context, a *app, args []string) error {
	var (
		address string
		dtype   string
		table   bool
		timeout time.Duration
		count   int
	)
	flagSet := pflag.NewFlagSet("recv", pflag.ContinueOnError)
	flagSet.StringVar(&address, "address", "", "transport address (default: NAME_IN, then NAME_INT)")
	flagSet.StringVar(&dtype, "datatype", "", "type name, JSON definition or row format string")
	flagSet.BoolVar(&table, "table", false, "read the announced row format first")
	flagSet.DurationVar(&timeout, "timeout", 5*time.Second, "wait per message; negative blocks")
	flagSet.IntVar(&count, "count", 0, "stop after this many messages (0: until end of stream)")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if flagSet.NArg() != 1 {
		return fmt.Errorf("recv: expected one channel name")
	}
	name := flagSet.Arg(0)
	if timeout < 0 {
		timeout = modelcomm.Block
	}

	var comm *modelcomm.Comm
	if table {
		in, err := modelcomm.NewTableInput(name, a.options(address)...)
		if err != nil {
			return err
		}
		defer in.Close()
		if _, err := in.Format(timeout); err != nil {
			return err
		}
		comm = in.Comm()
	} else {
		var err error
		if comm, err = modelcomm.NewInput(name, definition(dtype), a.options(address)...); err != nil {
			return err
		}
		defer comm.Close()
	}

	for n := 0; count == 0 || n < count; n++ {
		v, err := comm.RecvContext(ctx, timeout)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := printValue(a.stdout, comm.Definition(), v); err != nil {
			return err
		}
	}
	return nil
}

func printValue(w io.Writer, def datatype.Definition, v any) error {
	switch x := v.(type) {
	case []byte:
		_, err := fmt.Fprintf(w, "%s\n", x)
		return err
	case string:
		_, err := fmt.Fprintln(w, x)
		return err
	case datatype.Row:
		if format, ok := def[datatype.PropFormatStr].(string); ok {
			rf, err := datatype.ParseFormat(format)
			if err != nil {
				return err
			}
			s, err := rf.Render(x)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, s)
			return err
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		_, err = fmt.Fprintf(w, "%v\n", v)
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}
