// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rpcPair opens a client and a server for the service "svc" over two
// loopback channels.
func rpcPair(t *testing.T, reqDef, respDef any, opts ...Option) (client, server *RPC) {
	t.Helper()
	reqAddr := newLoopbackAddress(t)
	respAddr := newLoopbackAddress(t)

	base := []Option{WithConfig(loopbackConfig())}
	serverOpts := append(append([]Option{}, base...), WithEnv(map[string]string{"svc_IN": reqAddr, "svc_OUT": respAddr}))
	clientOpts := append(append([]Option{}, base...), WithEnv(map[string]string{"svc_OUT": reqAddr, "svc_IN": respAddr}))

	server, err := NewRPCServer("svc", reqDef, respDef, append(serverOpts, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = server.Close() })
	client, err = NewRPCClient("svc", reqDef, respDef, append(clientOpts, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, server
}

// serveInBackground runs Serve until the test ends and returns its result
// channel.
func serveInBackground(t *testing.T, server *RPC, h Handler) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, h) }()
	return done
}

func echo(_ *CallContext, req any) (any, error) { return req, nil }

func TestRPCEcho(t *testing.T) {
	client, server := rpcPair(t, "%d\n", "%d\n")
	done := serveInBackground(t, server, echo)

	assert.Equal(t, "svc_svc", client.Name())
	assert.Equal(t, CallIdle, client.State())

	got, err := client.Call(5)
	require.NoError(t, err)
	assert.Equal(t, datatype.Row{int32(5)}, got)
	assert.Equal(t, CallComplete, client.State())

	got, err = client.Call(datatype.Row{int32(-3)})
	require.NoError(t, err)
	assert.Equal(t, datatype.Row{int32(-3)}, got)

	require.NoError(t, client.SendEOF())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after EOF")
	}

	_, err = client.Input().Recv(time.Second)
	assert.ErrorIs(t, err, io.EOF, "EOF is forwarded to the client")
}

func TestRPCMultipleArguments(t *testing.T) {
	client, server := rpcPair(t, "%d\t%d\n", "%d\n")
	serveInBackground(t, server, func(_ *CallContext, req any) (any, error) {
		row := req.(datatype.Row)
		return datatype.Row{row[0].(int32) + row[1].(int32)}, nil
	})

	got, err := client.Call(2, 3)
	require.NoError(t, err)
	assert.Equal(t, datatype.Row{int32(5)}, got)
}

func TestRPCHandlerErrors(t *testing.T) {
	client, server := rpcPair(t, datatype.TypeInt, datatype.TypeFloat)
	serveInBackground(t, server, func(_ *CallContext, req any) (any, error) {
		switch req.(int64) {
		case 0:
			return nil, errors.New("division by zero")
		case -1:
			panic("negative")
		default:
			return 1 / float64(req.(int64)), nil
		}
	})

	_, err := client.Call(int64(0))
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "division by zero")
	assert.Equal(t, CallIdle, client.State())

	_, err = client.Call(int64(-1))
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "handler panic: negative")

	got, err := client.Call(int64(4))
	require.NoError(t, err)
	assert.Equal(t, 0.25, got)
}

func TestRPCCallContext(t *testing.T) {
	client, server := rpcPair(t, datatype.TypeUnicode, datatype.TypeUnicode)
	seen := make(chan *CallContext, 1)
	serveInBackground(t, server, func(cc *CallContext, req any) (any, error) {
		seen <- cc
		return req, nil
	})

	_, err := client.Call("ping")
	require.NoError(t, err)
	cc := <-seen
	assert.NotEmpty(t, cc.RequestID)
	assert.Equal(t, "svc_svc", cc.Channel)
	assert.Equal(t, KindRequest, cc.Metadata[MetaKind])
	assert.Equal(t, "svc", cc.Metadata[MetaSender])
	assert.Equal(t, ProtocolVersion, cc.Metadata[MetaVersion])
}

func TestRPCSkipsStaleResponses(t *testing.T) {
	client, server := rpcPair(t, datatype.TypeInt, datatype.TypeInt)

	go func() {
		msg, err := server.Input().RecvMessage(context.Background(), Block)
		if err != nil {
			return
		}
		stale := envelope{kind: KindResponse, responseTo: "not-this-call"}
		_ = server.Output().send(context.Background(), int64(-1), stale, false)
		real := envelope{kind: KindResponse, responseTo: msg.Header.ID}
		_ = server.Output().send(context.Background(), msg.Value.(int64)*2, real, false)
	}()

	got, err := client.Call(int64(21))
	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestRPCRejectsUndecodableRequest(t *testing.T) {
	client, server := rpcPair(t, nil, nil)
	serveInBackground(t, server, echo)

	msg, err := datatype.Header{ID: "req-1", Checksum: checksum([]byte("x"))}.Format([]byte("y"))
	require.NoError(t, err)
	require.NoError(t, client.Output().transport.Send(msg))

	resp, err := client.Input().RecvMessage(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrRemote)
	assert.Equal(t, "req-1", resp.Header.ResponseTo)
	assert.Contains(t, resp.Header.Error, "checksum mismatch")
}

func TestRPCServeStopsOnCancel(t *testing.T) {
	_, server := rpcPair(t, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, echo) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve ignored cancellation")
	}
}

func TestRPCCallHook(t *testing.T) {
	hook := &recordingHook{}
	client, server := rpcPair(t, datatype.TypeInt, datatype.TypeInt)
	client.SetHook(hook)
	server.SetHook(hook)
	serveInBackground(t, server, echo)

	_, err := client.Call(int64(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(hook.calls()) == 2 }, time.Second, 5*time.Millisecond)
	kinds := map[string]bool{}
	for _, c := range hook.calls() {
		kinds[c.info.Kind] = true
	}
	assert.True(t, kinds[KindCall])
	assert.True(t, kinds[KindServe])
}

func TestRPCRequestShapes(t *testing.T) {
	tests := []struct {
		name string
		def  datatype.Definition
		args []any
		want any
	}{
		{"unbound", nil, []any{[]byte("x")}, []byte("x")},
		{"table args", datatype.TableDefinition("%d\t%d\n"), []any{1, 2}, datatype.Row{1, 2}},
		{"table row", datatype.TableDefinition("%d\n"), []any{datatype.Row{1}}, datatype.Row{1}},
		{"single", datatype.Definition{datatype.PropType: datatype.TypeInt}, []any{int64(1)}, int64(1)},
		{"several", datatype.Definition{datatype.PropType: datatype.TypeArray}, []any{int64(1), "a"}, []any{int64(1), "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RPC{name: "x", out: &Comm{def: tt.def}}
			got, err := r.request(tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	r := &RPC{name: "x", out: &Comm{}}
	_, err := r.request([]any{1, 2})
	assert.ErrorIs(t, err, datatype.ErrRuntime)
}

func TestCallStateString(t *testing.T) {
	assert.Equal(t, "idle", CallIdle.String())
	assert.Equal(t, "sent", CallSent.String())
	assert.Equal(t, "awaiting_response", CallAwaitingResponse.String())
	assert.Equal(t, "complete", CallComplete.String())
	assert.Equal(t, "CallState(9)", CallState(9).String())
}
