// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"slices"
	"sync"
	"time"
)

// Block makes Recv wait indefinitely.
const Block time.Duration = -1

// Transport is a raw message primitive for one backend. A timeout of
// Block waits indefinitely, zero polls without blocking, and a positive
// value waits up to that long before returning ErrTimeout. A transport is
// owned by a single Comm and is not safe for concurrent use.
type Transport interface {
	// Open acquires the backend resource. It fails with a ConnectionError
	// when the address cannot be located or created.
	Open() error
	Send(msg []byte) error
	Recv(timeout time.Duration) ([]byte, error)
	// Close releases the resource. It is idempotent.
	Close() error
	// MaxMessageSize is the largest message Send accepts.
	MaxMessageSize() int
	Address() string
}

// Direction is the fixed direction of a Comm.
type Direction int

const (
	DirSend Direction = iota
	DirRecv
)

func (d Direction) String() string {
	if d == DirRecv {
		return "recv"
	}
	return "send"
}

// Backend names.
const (
	BackendQueue    = "queue"
	BackendSocket   = "socket"
	BackendLoopback = "loopback"
)

type (
	newTransportFunc func(address string, dir Direction, cfg Config) (Transport, error)
	allocateFunc     func(cfg Config) (string, error)
	releaseFunc      func(address string) error
)

type backend struct {
	newTransport newTransportFunc
	allocate     allocateFunc
	release      releaseFunc
}

var (
	backendsMu sync.RWMutex
	backends   = map[string]backend{}
)

// registerBackend makes a backend available. Platform-specific backends
// register themselves from init.
func registerBackend(name string, newTransport newTransportFunc, allocate allocateFunc, release releaseFunc) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = backend{newTransport: newTransport, allocate: allocate, release: release}
}

func lookupBackend(name string) (backend, bool) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	b, ok := backends[name]
	return b, ok
}

// AvailableBackends returns the backends usable on this platform.
func AvailableBackends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// HasBackend reports whether a backend is usable on this platform.
func HasBackend(name string) bool {
	_, ok := lookupBackend(name)
	return ok
}

// NewTransport creates an unopened transport for address on the backend
// named by cfg.
func NewTransport(address string, dir Direction, cfg Config) (Transport, error) {
	cfg = cfg.withDefaults()
	b, ok := lookupBackend(cfg.Backend)
	if !ok {
		return nil, newError(ConnectionError, nil, "backend %q is not available (have %v)", cfg.Backend, AvailableBackends())
	}
	return b.newTransport(address, dir, cfg)
}

// NewAddress creates a fresh channel resource on the configured backend and
// returns its address: a new queue, a free socket address or a loopback
// name. Release it with ReleaseAddress when the channel is retired.
func NewAddress(cfg Config) (string, error) {
	cfg = cfg.withDefaults()
	b, ok := lookupBackend(cfg.Backend)
	if !ok {
		return "", newError(ConnectionError, nil, "backend %q is not available", cfg.Backend)
	}
	return b.allocate(cfg)
}

// ReleaseAddress removes a resource created by NewAddress.
func ReleaseAddress(cfg Config, address string) error {
	cfg = cfg.withDefaults()
	b, ok := lookupBackend(cfg.Backend)
	if !ok {
		return newError(ConnectionError, nil, "backend %q is not available", cfg.Backend)
	}
	return b.release(address)
}

// deadlineFor converts a Recv timeout into an absolute deadline. The zero
// time means no deadline.
func deadlineFor(timeout time.Duration) time.Time {
	if timeout < 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// remaining converts a deadline back into a Recv timeout.
func remaining(deadline time.Time) time.Duration {
	if deadline.IsZero() {
		return Block
	}
	return max(time.Until(deadline), 0)
}
