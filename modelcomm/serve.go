// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// CallContext provides request-scoped information to a Handler.
type CallContext struct {
	// Ctx is the request-scoped context. A message hook may have attached
	// the caller's trace context to it.
	Ctx context.Context
	// RequestID is the id of the request being answered. It is empty for
	// requests sent without a header.
	RequestID string
	// Channel is the RPC name.
	Channel string
	// Metadata is the request header meta.
	Metadata map[string]string
}

// Handler answers one request. A returned error is reported to the caller
// as a RemoteError.
type Handler func(cc *CallContext, req any) (any, error)

// Serve answers requests until the peer sends EOF, which is forwarded to
// the outbound channel before Serve returns nil, or until ctx is done.
// Handler failures and undecodable requests are answered with an error
// response; transport failures stop the loop.
func (r *RPC) Serve(ctx context.Context, h Handler) error {
	for {
		err := r.serveOne(ctx, h)
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) {
			slog.Debug("rpc: peer finished", "name", r.name)
			if err := r.out.SendEOF(); err != nil {
				return fmt.Errorf("rpc %s: forwarding EOF: %w", r.name, err)
			}
			return nil
		}
		if ctx.Err() == nil {
			slog.Debug("rpc: serve loop stopped", "name", r.name, "err", err)
		}
		return err
	}
}

// serveOne handles one request-response cycle.
func (r *RPC) serveOne(ctx context.Context, h Handler) error {
	msg, err := r.in.recvMessage(ctx, Block, false)
	if err != nil {
		var derr *datatype.Error
		var cerr *Error
		switch {
		case msg == nil:
			return err
		case errors.As(err, &derr), errors.As(err, &cerr) && cerr.Type == datatype.ValueError:
			// The request arrived intact but its body is unusable.
			slog.Debug("rpc: rejecting request", "name", r.name, "id", msg.Header.ID, "err", err)
			return r.reply(ctx, msg.Header.ID, nil, err)
		default:
			return err
		}
	}

	r.mu.Lock()
	hook := r.hook
	r.mu.Unlock()

	id := msg.Header.ID
	info := MessageInfo{Comm: r.name, Direction: DirRecv, Kind: KindServe, MessageID: id, Metadata: msg.Header.Meta}
	stats := &MessageStatistics{PayloadBytes: int64(msg.Header.Size)}
	ctx, token, active := hookStart(ctx, hook, info)

	cc := &CallContext{Ctx: ctx, RequestID: id, Channel: r.name, Metadata: msg.Header.Meta}
	resp, handlerErr := callHandler(h, cc, msg.Value)
	if handlerErr != nil {
		slog.Debug("rpc: handler failed", "name", r.name, "id", id, "err", handlerErr)
	}
	transportErr := r.reply(ctx, id, resp, handlerErr)

	if active {
		hookEnd(ctx, hook, token, info, stats, handlerErr)
	}
	return transportErr
}

// callHandler runs h, turning a panic into an error.
func callHandler(h Handler, cc *CallContext, req any) (resp any, err error) {
	defer func() {
		if rv := recover(); rv != nil {
			slog.Error("rpc handler panic", "err", rv, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", rv)
		}
	}()
	return h(cc, req)
}

func (r *RPC) reply(ctx context.Context, requestID string, resp any, handlerErr error) error {
	env := envelope{
		kind:       KindResponse,
		responseTo: requestID,
		meta:       map[string]string{MetaKind: KindResponse},
	}
	if handlerErr != nil {
		env.errMsg = handlerErr.Error()
		resp = nil
	}
	return r.out.send(ctx, resp, env, false)
}
