// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "modelcomm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendQueue, cfg.Backend)
	assert.Equal(t, PatternPair, cfg.Socket.Pattern)
	assert.Equal(t, cfg, Config{}.withDefaults())
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
backend: socket
compression: zstd
checksum: true
log_level: DEBUG
socket:
  pattern: pubsub
  dial_timeout: 2s
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, BackendSocket, cfg.Backend)
	assert.Equal(t, "zstd", cfg.Compression)
	assert.True(t, cfg.Checksum)
	assert.Equal(t, LogDebug, cfg.LogLevel)
	assert.Equal(t, PatternPubSub, cfg.Socket.Pattern)
	assert.Equal(t, 2*time.Second, cfg.Socket.DialTimeout)
	assert.Equal(t, 4096, cfg.CompressionThreshold, "omitted fields keep defaults")
	assert.Equal(t, uint32(0o600), cfg.Queue.Permissions)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	for name, content := range map[string]string{
		"syntax":      "backend: [",
		"backend":     "backend: carrier-pigeon",
		"compression": "compression: bzip2",
		"small limit": "max_message_size: 8",
		"pattern":     "socket:\n  pattern: fanout",
		"log level":   "log_level: LOUD",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	path := writeConfig(t, "backend: socket\n")
	env := map[string]string{
		EnvConfig:   path,
		EnvBackend:  "Loopback",
		EnvLogLevel: "trace",
	}
	cfg, err := ConfigFromEnv(mapLookup(env))
	require.NoError(t, err)
	assert.Equal(t, BackendLoopback, cfg.Backend)
	assert.Equal(t, LogTrace, cfg.LogLevel)

	cfg, err = ConfigFromEnv(mapLookup(map[string]string{}))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = ConfigFromEnv(mapLookup(map[string]string{EnvBackend: "nope"}))
	assert.Error(t, err)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"", slog.LevelInfo},
		{"info", slog.LevelInfo},
		{"DEBUG", slog.LevelDebug},
		{"TRACE", LevelTrace},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"EXCEPTION", slog.LevelError + 4},
	}
	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
