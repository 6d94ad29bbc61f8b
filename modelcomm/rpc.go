// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
	"github.com/google/uuid"
)

// CallState is the progress of the current call on an RPC.
type CallState int

const (
	CallIdle CallState = iota
	CallSent
	CallAwaitingResponse
	CallComplete
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallSent:
		return "sent"
	case CallAwaitingResponse:
		return "awaiting_response"
	case CallComplete:
		return "complete"
	default:
		return fmt.Sprintf("CallState(%d)", int(s))
	}
}

// RPC pairs an outbound and an inbound Comm. A client sends requests on the
// outbound Comm and reads responses from the inbound one; a server does
// the reverse. Calls are serialized: one request is outstanding at a time.
type RPC struct {
	name string
	out  *Comm
	in   *Comm

	mu    sync.Mutex
	state CallState
	hook  MessageHook
}

// NewRPC opens the outbound channel outName and the inbound channel
// inName. WithAddress and WithTransport name a single endpoint and are
// ignored here; resolve the two addresses with WithEnv or WithLookup.
func NewRPC(outName string, outDef any, inName string, inDef any, opts ...Option) (*RPC, error) {
	o := buildOptions(opts)
	o.address = ""
	o.transport = nil

	out, err := newComm(outName, DirSend, outDef, o)
	if err != nil {
		return nil, err
	}
	in, err := newComm(inName, DirRecv, inDef, o)
	if err != nil {
		_ = out.Close()
		return nil, err
	}
	return &RPC{name: inName + "_" + outName, out: out, in: in, hook: o.hook}, nil
}

// NewRPCClient opens the client end of the service called name: requests
// go out on name_OUT, responses arrive on name_IN.
func NewRPCClient(name string, outDef, inDef any, opts ...Option) (*RPC, error) {
	return NewRPC(name, outDef, name, inDef, opts...)
}

// NewRPCServer opens the server end of the service called name: requests
// arrive on name_IN, responses go out on name_OUT.
func NewRPCServer(name string, inDef, outDef any, opts ...Option) (*RPC, error) {
	return NewRPC(name, outDef, name, inDef, opts...)
}

// Name returns "<in>_<out>".
func (r *RPC) Name() string { return r.name }

// Input returns the inbound Comm.
func (r *RPC) Input() *Comm { return r.in }

// Output returns the outbound Comm.
func (r *RPC) Output() *Comm { return r.out }

// State returns the state of the current or last call.
func (r *RPC) State() CallState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// SetHook installs a hook for calls and served requests. Per-message
// reporting stays with the hooks of the two Comms.
func (r *RPC) SetHook(h MessageHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = h
}

// Call sends args as one request and blocks for the matching response.
func (r *RPC) Call(args ...any) (any, error) {
	return r.CallWithContext(context.Background(), args...)
}

// CallWithContext is Call that gives up when ctx is done. A response that
// arrives for an abandoned call is skipped by the next call.
func (r *RPC) CallWithContext(ctx context.Context, args ...any) (result any, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, err := r.request(args)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	info := MessageInfo{
		Comm:      r.name,
		Direction: DirSend,
		Kind:      KindCall,
		MessageID: id,
		Metadata: map[string]string{
			MetaKind:    KindRequest,
			MetaSender:  r.out.name,
			MetaVersion: ProtocolVersion,
		},
	}
	stats := &MessageStatistics{}
	ctx, token, active := hookStart(ctx, r.hook, info)
	if active {
		defer func() { hookEnd(ctx, r.hook, token, info, stats, err) }()
	}
	defer func() {
		if err != nil {
			r.state = CallIdle
		}
	}()

	r.state = CallSent
	slog.Debug("rpc: sending request", "name", r.name, "id", id)
	env := envelope{kind: KindRequest, id: id, meta: info.Metadata}
	if err := r.out.send(ctx, req, env, false); err != nil {
		return nil, err
	}

	r.state = CallAwaitingResponse
	for {
		msg, err := r.in.recvMessage(ctx, Block, false)
		if msg != nil && msg.Header.ResponseTo != "" && msg.Header.ResponseTo != id {
			slog.Debug("rpc: skipping stale response", "name", r.name, "id", id, "response_to", msg.Header.ResponseTo)
			continue
		}
		if err != nil {
			return nil, err
		}
		r.state = CallComplete
		stats.PayloadBytes = int64(msg.Header.Size)
		slog.Debug("rpc: received response", "name", r.name, "id", id)
		return msg.Value, nil
	}
}

// request builds the request value: a table takes the args as one row,
// other types take a single argument or the args as an array.
func (r *RPC) request(args []any) (any, error) {
	def := r.out.def
	switch {
	case def == nil:
		if len(args) != 1 {
			return nil, &datatype.Error{Type: datatype.RuntimeError, Message: fmt.Sprintf("rpc %s: an unbound channel takes exactly one argument, got %d", r.name, len(args))}
		}
		return args[0], nil
	case def.Type() == datatype.TypeTable:
		if len(args) == 1 {
			if row, ok := args[0].(datatype.Row); ok {
				return row, nil
			}
			if t, ok := args[0].(datatype.Table); ok {
				return t, nil
			}
		}
		return datatype.Row(args), nil
	case len(args) == 1:
		return args[0], nil
	default:
		return args, nil
	}
}

// SendEOF tells the peer that no more requests (or responses) follow.
func (r *RPC) SendEOF() error {
	return r.out.SendEOF()
}

// Close closes both Comms.
func (r *RPC) Close() error {
	return errors.Join(r.out.Close(), r.in.Close())
}
