// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvConfig   = "MODELCOMM_CONFIG"
	EnvBackend  = "MODELCOMM_BACKEND"
	EnvLogLevel = "MODELCOMM_LOG_LEVEL"
)

// MinMessageSize is the smallest chunk limit a Comm accepts.
const MinMessageSize = 16

// Socket patterns.
const (
	PatternPair   = "pair"
	PatternPubSub = "pubsub"
)

// Config selects and tunes the transport backend. It is resolved once at
// startup and injected into constructors with WithConfig.
type Config struct {
	// Backend is "queue", "socket" or "loopback".
	Backend string `yaml:"backend"`
	// MaxMessageSize overrides the backend chunk limit. Zero keeps the
	// backend default.
	MaxMessageSize int `yaml:"max_message_size"`
	// Compression is "none", "zstd" or "lz4".
	Compression string `yaml:"compression"`
	// CompressionThreshold is the smallest body that is compressed.
	CompressionThreshold int `yaml:"compression_threshold"`
	// Checksum adds a BLAKE3 digest to every message, not only to
	// multipart ones.
	Checksum bool         `yaml:"checksum"`
	LogLevel LogLevel     `yaml:"log_level"`
	Socket   SocketConfig `yaml:"socket"`
	Queue    QueueConfig  `yaml:"queue"`
}

// SocketConfig tunes the socket backend.
type SocketConfig struct {
	// Pattern is "pair" (the receiver listens) or "pubsub" (the sender
	// listens and every subscriber gets a copy).
	Pattern string `yaml:"pattern"`
	// DialTimeout bounds how long a dialing end retries.
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// QueueConfig tunes the message queue backend.
type QueueConfig struct {
	// Permissions are the mode bits of queues created by NewAddress.
	Permissions uint32 `yaml:"permissions"`
	// PollInterval is the sleep between non-blocking receive attempts
	// while waiting with a finite timeout.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// DefaultConfig returns the configuration used when none is injected.
func DefaultConfig() Config {
	return Config{
		Backend:              BackendQueue,
		Compression:          CompressionNone.String(),
		CompressionThreshold: 4096,
		LogLevel:             LogInfo,
		Socket: SocketConfig{
			Pattern:     PatternPair,
			DialTimeout: 5 * time.Second,
		},
		Queue: QueueConfig{
			Permissions:  0o600,
			PollInterval: 5 * time.Millisecond,
		},
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Backend == "" {
		c.Backend = d.Backend
	}
	if c.Compression == "" {
		c.Compression = d.Compression
	}
	if c.CompressionThreshold == 0 {
		c.CompressionThreshold = d.CompressionThreshold
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.Socket.Pattern == "" {
		c.Socket.Pattern = d.Socket.Pattern
	}
	if c.Socket.DialTimeout == 0 {
		c.Socket.DialTimeout = d.Socket.DialTimeout
	}
	if c.Queue.Permissions == 0 {
		c.Queue.Permissions = d.Queue.Permissions
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = d.Queue.PollInterval
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendQueue, BackendSocket, BackendLoopback:
	default:
		return fmt.Errorf("config: unknown backend %q", c.Backend)
	}
	if c.MaxMessageSize != 0 && c.MaxMessageSize < MinMessageSize {
		return fmt.Errorf("config: max_message_size %d is below the minimum %d", c.MaxMessageSize, MinMessageSize)
	}
	if _, err := ParseCompressionTag(c.Compression); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.CompressionThreshold < 0 {
		return fmt.Errorf("config: compression_threshold must not be negative")
	}
	if _, err := ParseLogLevel(string(c.LogLevel)); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	switch c.Socket.Pattern {
	case PatternPair, PatternPubSub:
	default:
		return fmt.Errorf("config: unknown socket pattern %q", c.Socket.Pattern)
	}
	if c.Socket.DialTimeout < 0 || c.Queue.PollInterval < 0 {
		return fmt.Errorf("config: durations must not be negative")
	}
	return nil
}

// LoadConfig reads a YAML configuration file. Fields the file omits keep
// their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// ConfigFromEnv builds a configuration from MODELCOMM_CONFIG (a file path)
// and the MODELCOMM_BACKEND and MODELCOMM_LOG_LEVEL overrides. A nil
// lookup reads the process environment.
func ConfigFromEnv(lookup func(string) (string, bool)) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := DefaultConfig()
	if path, ok := lookup(EnvConfig); ok && path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if backend, ok := lookup(EnvBackend); ok && backend != "" {
		cfg.Backend = strings.ToLower(backend)
	}
	if level, ok := lookup(EnvLogLevel); ok && level != "" {
		cfg.LogLevel = LogLevel(strings.ToUpper(level))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LogLevel names a log severity in configuration files.
type LogLevel string

const (
	LogException LogLevel = "EXCEPTION"
	LogError     LogLevel = "ERROR"
	LogWarn      LogLevel = "WARN"
	LogInfo      LogLevel = "INFO"
	LogDebug     LogLevel = "DEBUG"
	// LogTrace enables per-chunk logging.
	LogTrace LogLevel = "TRACE"
)

// LevelTrace is the slog level used for per-chunk logging.
const LevelTrace = slog.LevelDebug - 4

// ParseLogLevel maps a configured level name to a slog level. Names are
// case-insensitive.
func ParseLogLevel(name string) (slog.Level, error) {
	switch LogLevel(strings.ToUpper(name)) {
	case LogException:
		return slog.LevelError + 4, nil
	case LogError:
		return slog.LevelError, nil
	case LogWarn:
		return slog.LevelWarn, nil
	case LogInfo, "":
		return slog.LevelInfo, nil
	case LogDebug:
		return slog.LevelDebug, nil
	case LogTrace:
		return LevelTrace, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}
