// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// pollInterval bounds each blocking receive so cancellation is noticed.
const pollInterval = 100 * time.Millisecond

// Echo forwards every message from in to out until in reports end of
// stream, then forwards the EOF. Messages keep their decoded value, so a
// bound pair re-encodes under out's definition. It returns the number of
// messages echoed.
func Echo(ctx context.Context, in, out *modelcomm.Comm) (int, error) {
	n := 0
	for {
		v, err := in.RecvContext(ctx, modelcomm.Block)
		if errors.Is(err, io.EOF) {
			slog.Debug("conformance: echo finished", "in", in.Name(), "messages", n)
			return n, out.SendEOF()
		}
		if err != nil {
			return n, fmt.Errorf("echo recv: %w", err)
		}
		if err := out.SendContext(ctx, v); err != nil {
			return n, fmt.Errorf("echo send: %w", err)
		}
		n++
	}
}

// poll retries f in short slices until it stops timing out or ctx ends.
func poll[T any](ctx context.Context, f func(time.Duration) (T, error)) (T, error) {
	for {
		v, err := f(pollInterval)
		if !errors.Is(err, modelcomm.ErrTimeout) {
			return v, err
		}
		if ctx.Err() != nil {
			var zero T
			return zero, ctx.Err()
		}
	}
}

// EchoTable reads the format string announced on in, opens the output
// stream with open and forwards rows until end of stream. The output is
// closed on return.
func EchoTable(ctx context.Context, in *modelcomm.TableInput, open func(format string) (*modelcomm.TableOutput, error)) (int, error) {
	format, err := poll(ctx, in.Format)
	if err != nil {
		return 0, fmt.Errorf("echo table format: %w", err)
	}
	out, err := open(format)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	n := 0
	for {
		row, err := poll(ctx, in.RecvRow)
		if errors.Is(err, io.EOF) {
			slog.Debug("conformance: table echo finished", "format", format, "rows", n)
			return n, out.SendEOF()
		}
		if err != nil {
			return n, fmt.Errorf("echo table recv: %w", err)
		}
		if err := out.SendRow(row...); err != nil {
			return n, fmt.Errorf("echo table send: %w", err)
		}
		n++
	}
}

// EchoHandler answers each RPC request with the request itself. A request
// holding the unicode value "fail" is answered with an error, so peers
// can check remote error propagation.
func EchoHandler(cc *modelcomm.CallContext, req any) (any, error) {
	if s, ok := req.(string); ok && s == "fail" {
		return nil, &datatype.Error{Type: datatype.ValueError, Message: "requested failure"}
	}
	slog.Debug("conformance: echo request", "channel", cc.Channel, "id", cc.RequestID)
	return req, nil
}
