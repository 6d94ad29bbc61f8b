// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"log/slog"
)

// MessageHook provides observability callpoints around message transfer.
// A Comm reports every Send and Recv; an RPC additionally reports whole
// calls (KindCall) and served requests (KindServe). Implementations must
// be safe for concurrent use when shared between Comms.
type MessageHook interface {
	// OnMessageStart may return a derived context; for KindCall the
	// context's trace state is injected into the request metadata.
	OnMessageStart(ctx context.Context, info MessageInfo) (context.Context, HookToken)
	OnMessageEnd(ctx context.Context, token HookToken, info MessageInfo, stats *MessageStatistics, err error)
}

// HookToken is an opaque value returned by OnMessageStart and passed back
// to OnMessageEnd. Only meaningful to the hook that created it.
type HookToken interface{}

// MessageInfo describes the message or call being observed.
type MessageInfo struct {
	Comm      string            // Comm or RPC name
	Direction Direction         // DirSend or DirRecv
	Kind      string            // KindData, KindEOF, KindCall, ...
	MessageID string            // header id, or the request id of a call
	Metadata  map[string]string // header meta; hooks may add trace context on send
}

// MessageStatistics holds per-message transfer counters.
type MessageStatistics struct {
	Chunks       int64
	Bytes        int64 // bytes on the wire, headers included
	PayloadBytes int64 // encoded body before compression
}

// RecordChunk records one transport message of the given size.
func (s *MessageStatistics) RecordChunk(size int) {
	s.Chunks++
	s.Bytes += int64(size)
}

// hookStart calls OnMessageStart, recovering from panics. active is false
// when no hook ran.
func hookStart(ctx context.Context, hook MessageHook, info MessageInfo) (_ context.Context, token HookToken, active bool) {
	if hook == nil {
		return ctx, nil, false
	}
	out := ctx
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				slog.Error("message hook start panic", "err", rv)
			}
		}()
		var hookCtx context.Context
		hookCtx, token = hook.OnMessageStart(ctx, info)
		if hookCtx != nil {
			out = hookCtx
		}
		active = true
	}()
	return out, token, active
}

func hookEnd(ctx context.Context, hook MessageHook, token HookToken, info MessageInfo, stats *MessageStatistics, err error) {
	func() {
		defer func() {
			if rv := recover(); rv != nil {
				slog.Error("message hook end panic", "err", rv)
			}
		}()
		hook.OnMessageEnd(ctx, token, info, stats, err)
	}()
}
