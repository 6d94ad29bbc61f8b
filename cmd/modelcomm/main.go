// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// modelcomm is a command line peer for modelcomm channels. It sends and
// receives messages on named channels, lists the registered datatypes and
// infers the datatype of a message.
//
//	modelcomm [global flags] send NAME [VALUE...]
//	modelcomm [global flags] recv NAME
//	modelcomm [global flags] types
//	modelcomm [global flags] infer [FILE]
//
// Channel addresses are read from NAME_OUT (send) and NAME_IN or
// NAME_INT (recv) unless --address is given.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// app is the state shared by every subcommand.
type app struct {
	cfg      modelcomm.Config
	registry *datatype.Registry
	hook     modelcomm.MessageHook
	stdin    io.Reader
	stdout   io.Writer
}

// options returns the Comm options for a channel, with address overriding
// environment resolution when set.
func (a *app) options(address string) []modelcomm.Option {
	opts := []modelcomm.Option{modelcomm.WithConfig(a.cfg), modelcomm.WithRegistry(a.registry)}
	if address != "" {
		opts = append(opts, modelcomm.WithAddress(address))
	}
	if a.hook != nil {
		opts = append(opts, modelcomm.WithHook(a.hook))
	}
	return opts
}

var commands = map[string]func(ctx context.Context, a *app, args []string) error{
	"send":  runSend,
	"recv":  runRecv,
	"types": runTypes,
	"infer": runInfer,
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var (
		configPath string
		backend    string
		logLevel   string
		schemas    []string
		otelStdout bool
	)

	flagSet := pflag.NewFlagSet("modelcomm", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&configPath, "config", "", "YAML configuration file (default: MODELCOMM_CONFIG)")
	flagSet.StringVar(&backend, "backend", "", "transport backend: queue, socket or loopback")
	flagSet.StringVar(&logLevel, "log-level", "", "TRACE, DEBUG, INFO, WARN or ERROR")
	flagSet.StringSliceVar(&schemas, "schema", nil, "schema file adding datatypes (repeatable)")
	flagSet.BoolVar(&otelStdout, "otel-stdout", false, "write OpenTelemetry spans and metrics to stderr")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	rest := flagSet.Args()
	if len(rest) == 0 {
		return fmt.Errorf("missing command (send, recv, types or infer)")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if backend != "" {
		cfg.Backend = backend
	}
	if logLevel != "" {
		cfg.LogLevel = modelcomm.LogLevel(logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, err := modelcomm.ParseLogLevel(string(cfg.LogLevel))
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	registry := datatype.NewRegistry()
	for _, path := range schemas {
		names, err := registry.LoadSchemaFile(path)
		if err != nil {
			return err
		}
		slog.Debug("loaded schema", "path", path, "types", names)
	}

	a := &app{cfg: cfg, registry: registry, stdin: stdin, stdout: stdout}
	if otelStdout {
		hook, shutdown, err := stdoutTelemetry(stderr)
		if err != nil {
			return err
		}
		defer func() {
			if err := shutdown(context.Background()); err != nil {
				slog.Error("telemetry shutdown", "err", err)
			}
		}()
		a.hook = hook
	}
	return cmd(ctx, a, rest[1:])
}

func loadConfig(path string) (modelcomm.Config, error) {
	if path != "" {
		return modelcomm.LoadConfig(path)
	}
	return modelcomm.ConfigFromEnv(nil)
}

// definition maps the --datatype flag to a Comm definition: empty means
// unbound, a JSON object is a full definition, anything else is a type
// name or a row format string.
func definition(flag string) any {
	if flag == "" {
		return nil
	}
	if d, err := parseDefinition(flag); err == nil {
		return d
	}
	return flag
}
