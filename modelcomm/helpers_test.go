// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func loopbackConfig() Config {
	cfg := DefaultConfig()
	cfg.Backend = BackendLoopback
	return cfg
}

// newLoopbackAddress allocates a loopback channel released at test end.
func newLoopbackAddress(t *testing.T) string {
	t.Helper()
	cfg := loopbackConfig()
	addr, err := NewAddress(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ReleaseAddress(cfg, addr) })
	return addr
}

// loopbackPair opens both ends of a fresh loopback channel called "chan".
// opts are applied after the loopback configuration and may replace it.
func loopbackPair(t *testing.T, def any, opts ...Option) (out, in *Comm) {
	t.Helper()
	addr := newLoopbackAddress(t)
	base := []Option{
		WithConfig(loopbackConfig()),
		WithEnv(map[string]string{"chan_OUT": addr, "chan_IN": addr}),
	}
	base = append(base, opts...)

	out, err := NewOutput("chan", def, base...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = out.Close() })
	in, err = NewInput("chan", def, base...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = in.Close() })
	return out, in
}

// rawSender opens a bare transport on addr for feeding hand-made chunks
// to a receiving Comm.
func rawSender(t *testing.T, addr string) Transport {
	t.Helper()
	tr, err := NewTransport(addr, DirSend, loopbackConfig())
	require.NoError(t, err)
	require.NoError(t, tr.Open())
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

// socketDir creates a short temporary directory for Unix sockets, whose
// paths are limited to 108 bytes.
func socketDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "mc-test-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

type hookCall struct {
	info  MessageInfo
	stats MessageStatistics
	err   error
}

// recordingHook records every completed message.
type recordingHook struct {
	mu     sync.Mutex
	starts []MessageInfo
	ends   []hookCall
	inject map[string]string
}

func (h *recordingHook) OnMessageStart(ctx context.Context, info MessageInfo) (context.Context, HookToken) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.starts = append(h.starts, info)
	for k, v := range h.inject {
		if info.Metadata != nil {
			info.Metadata[k] = v
		}
	}
	return ctx, len(h.starts)
}

func (h *recordingHook) OnMessageEnd(_ context.Context, _ HookToken, info MessageInfo, stats *MessageStatistics, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ends = append(h.ends, hookCall{info: info, stats: *stats, err: err})
}

func (h *recordingHook) calls() []hookCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]hookCall(nil), h.ends...)
}

type panickingHook struct{}

func (panickingHook) OnMessageStart(context.Context, MessageInfo) (context.Context, HookToken) {
	panic("start")
}

func (panickingHook) OnMessageEnd(context.Context, HookToken, MessageInfo, *MessageStatistics, error) {
	panic("end")
}
