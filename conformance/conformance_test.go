// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm"
	"github.com/Query-farm/modelcomm/modelcomm/datatype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loopbackConfig() modelcomm.Config {
	cfg := modelcomm.DefaultConfig()
	cfg.Backend = modelcomm.BackendLoopback
	return cfg
}

func address(t *testing.T) string {
	t.Helper()
	addr, err := modelcomm.NewAddress(loopbackConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = modelcomm.ReleaseAddress(loopbackConfig(), addr) })
	return addr
}

func options(env map[string]string) []modelcomm.Option {
	return []modelcomm.Option{modelcomm.WithConfig(loopbackConfig()), modelcomm.WithEnv(env)}
}

func TestValidObjects(t *testing.T) {
	r := datatype.NewRegistry()
	for name, v := range ValidObjects() {
		t.Run(name, func(t *testing.T) {
			def, err := r.InferFromValue(v)
			require.NoError(t, err)
			assert.Equal(t, name, def.Type())

			msg, err := r.EncodeMessage(v, def)
			require.NoError(t, err)
			got, err := r.DecodeMessage(msg)
			require.NoError(t, err)
			assert.Equal(t, v, got)
		})
	}
}

func TestRegisterTypes(t *testing.T) {
	var r *datatype.Registry
	require.NotPanics(t, func() { r = NewRegistry() })
	_, ok := r.Lookup("pressure")
	assert.True(t, ok)
	assert.True(t, r.Compatible(datatype.Definition{datatype.PropType: "label"}, datatype.Definition{datatype.PropType: datatype.TypeUnicode}))

	def, err := r.Resolve(map[string]any{"type": "pressure", "units": "kPa"})
	require.NoError(t, err)
	msg, err := r.EncodeMessage(101.3, def)
	require.NoError(t, err)
	got, err := r.DecodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, 101.3, got)

	_, err = RegisterTypes(r)
	assert.ErrorIs(t, err, datatype.ErrDuplicateType)
}

func TestEcho(t *testing.T) {
	fwd := address(t)
	back := address(t)

	// The peer writes to fwd and reads from back; Echo does the reverse.
	peerOut, err := modelcomm.NewOutput("peer", nil, options(map[string]string{"peer_OUT": fwd})...)
	require.NoError(t, err)
	defer peerOut.Close()
	peerIn, err := modelcomm.NewInput("peer", nil, options(map[string]string{"peer_IN": back})...)
	require.NoError(t, err)
	defer peerIn.Close()

	in, err := modelcomm.NewInput("echo", nil, options(map[string]string{"echo_IN": fwd})...)
	require.NoError(t, err)
	defer in.Close()
	out, err := modelcomm.NewOutput("echo", nil, options(map[string]string{"echo_OUT": back})...)
	require.NoError(t, err)
	defer out.Close()

	payloads := [][]byte{[]byte("one"), {}, []byte(modelcomm.EOFSentinel)}
	for _, p := range payloads {
		require.NoError(t, peerOut.Send(p))
	}
	require.NoError(t, peerOut.SendEOF())

	n, err := Echo(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, len(payloads), n)

	for _, p := range payloads {
		got, err := peerIn.Recv(time.Second)
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}
	_, err = peerIn.Recv(time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestEchoCancelled(t *testing.T) {
	addr := address(t)
	in, err := modelcomm.NewInput("echo", nil, options(map[string]string{"echo_IN": addr, "echo_OUT": addr})...)
	require.NoError(t, err)
	defer in.Close()
	out, err := modelcomm.NewOutput("echo", nil, options(map[string]string{"echo_IN": addr, "echo_OUT": addr})...)
	require.NoError(t, err)
	defer out.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = Echo(ctx, in, out)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEchoTable(t *testing.T) {
	fwd := address(t)
	back := address(t)
	format, rows := SampleRows()

	src, err := modelcomm.NewTableOutput("src", format, options(map[string]string{"src_OUT": fwd})...)
	require.NoError(t, err)
	defer src.Close()
	for _, row := range rows {
		require.NoError(t, src.SendRow(row...))
	}
	require.NoError(t, src.SendEOF())

	in, err := modelcomm.NewTableInput("mid", options(map[string]string{"mid_IN": fwd})...)
	require.NoError(t, err)
	defer in.Close()

	n, err := EchoTable(context.Background(), in, func(f string) (*modelcomm.TableOutput, error) {
		return modelcomm.NewTableOutput("mid", f, options(map[string]string{"mid_OUT": back})...)
	})
	require.NoError(t, err)
	assert.Equal(t, len(rows), n)

	sink, err := modelcomm.NewTableInput("sink", options(map[string]string{"sink_IN": back})...)
	require.NoError(t, err)
	defer sink.Close()
	got, err := sink.Format(time.Second)
	require.NoError(t, err)
	assert.Equal(t, format, got)
	for _, want := range rows {
		row, err := sink.RecvRow(time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, row)
	}
	_, err = sink.RecvRow(time.Second)
	assert.ErrorIs(t, err, io.EOF)
}

func TestEchoHandler(t *testing.T) {
	reqAddr := address(t)
	respAddr := address(t)

	server, err := modelcomm.NewRPCServer("conf", datatype.TypeUnicode, datatype.TypeUnicode,
		options(map[string]string{"conf_IN": reqAddr, "conf_OUT": respAddr})...)
	require.NoError(t, err)
	defer server.Close()
	client, err := modelcomm.NewRPCClient("conf", datatype.TypeUnicode, datatype.TypeUnicode,
		options(map[string]string{"conf_OUT": reqAddr, "conf_IN": respAddr})...)
	require.NoError(t, err)
	defer client.Close()

	done := make(chan error, 1)
	go func() { done <- server.Serve(context.Background(), EchoHandler) }()

	got, err := client.Call("ping")
	require.NoError(t, err)
	assert.Equal(t, "ping", got)

	_, err = client.Call("fail")
	require.ErrorIs(t, err, modelcomm.ErrRemote)
	assert.Contains(t, err.Error(), "requested failure")

	require.NoError(t, client.SendEOF())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
