// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// runTypes lists the registered datatypes.
func runTypes(_ context.Context, a *app, args []string) error {
	var asJSON bool
	flagSet := pflag.NewFlagSet("types", pflag.ContinueOnError)
	flagSet.BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	types := a.registry.Describe()
	if asJSON {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(types)
	}
	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tBASE\tPROPERTIES\tDESCRIPTION")
	for _, t := range types {
		base := t.Base
		if t.Subtype != "" && t.Subtype != t.Name {
			base += "/" + t.Subtype
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, base, strings.Join(t.Properties, ","), t.Description)
	}
	return tw.Flush()
}

// runInfer prints the datatype of a message read from FILE or stdin.
func runInfer(_ context.Context, a *app, args []string) error {
	flagSet := pflag.NewFlagSet("infer", pflag.ContinueOnError)
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	switch path := flagSet.Arg(0); path {
	case "", "-":
		data, err = io.ReadAll(a.stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return err
	}

	def, err := a.registry.InferFromBytes(data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.stdout, def.String())
	return err
}

func parseDefinition(s string) (datatype.Definition, error) {
	if !strings.HasPrefix(strings.TrimSpace(s), "{") {
		return nil, fmt.Errorf("not a JSON definition")
	}
	var d datatype.Definition
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return nil, err
	}
	return d, nil
}
