// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// modelcomm-conformance-go is the Go peer of the cross-language
// conformance suite. The driving test starts it with channel addresses in
// the environment (NAME_IN, NAME_OUT) and checks that everything it sends
// comes back unchanged.
//
// Modes:
//
//	echo   forward messages from --in to --out until end of stream
//	table  forward a table stream, format string first
//	rpc    answer requests on the RPC channel --in/--out with EchoHandler
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Query-farm/modelcomm/conformance"
	"github.com/Query-farm/modelcomm/modelcomm"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		mode       string
		inName     string
		outName    string
		datatype   string
		configPath string
		logLevel   string
	)

	flagSet := pflag.NewFlagSet("modelcomm-conformance-go", pflag.ContinueOnError)
	flagSet.StringVar(&mode, "mode", "echo", "peer loop: echo, table or rpc")
	flagSet.StringVar(&inName, "in", "conformance", "name of the inbound channel")
	flagSet.StringVar(&outName, "out", "conformance", "name of the outbound channel")
	flagSet.StringVar(&datatype, "datatype", "", "datatype bound to both channels (echo and rpc modes)")
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file (default: MODELCOMM_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "", "TRACE, DEBUG, INFO, WARN or ERROR")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = modelcomm.LogLevel(logLevel)
	}
	level, err := modelcomm.ParseLogLevel(string(cfg.LogLevel))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := []modelcomm.Option{modelcomm.WithConfig(cfg), modelcomm.WithRegistry(conformance.NewRegistry())}
	var def any
	if datatype != "" {
		def = datatype
	}

	switch mode {
	case "echo":
		in, err := modelcomm.NewInput(inName, def, opts...)
		if err != nil {
			return err
		}
		defer in.Close()
		out, err := modelcomm.NewOutput(outName, def, opts...)
		if err != nil {
			return err
		}
		defer out.Close()
		n, err := conformance.Echo(ctx, in, out)
		slog.Info("echo finished", "messages", n)
		return err

	case "table":
		in, err := modelcomm.NewTableInput(inName, opts...)
		if err != nil {
			return err
		}
		defer in.Close()
		n, err := conformance.EchoTable(ctx, in, func(format string) (*modelcomm.TableOutput, error) {
			return modelcomm.NewTableOutput(outName, format, opts...)
		})
		slog.Info("table echo finished", "rows", n)
		return err

	case "rpc":
		server, err := modelcomm.NewRPC(outName, def, inName, def, opts...)
		if err != nil {
			return err
		}
		defer server.Close()
		return server.Serve(ctx, conformance.EchoHandler)

	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func loadConfig(path string) (modelcomm.Config, error) {
	if path != "" {
		return modelcomm.LoadConfig(path)
	}
	return modelcomm.ConfigFromEnv(nil)
}
