// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	loopbackDefaultMax = 1 << 20
	loopbackCapacity   = 1024
)

// Loopback channels are process-global so that a sender and a receiver
// opened independently by name meet on the same queue.
var (
	loopbackMu    sync.Mutex
	loopbackChans = map[string]chan []byte{}
)

func init() {
	registerBackend(BackendLoopback, newLoopback, allocateLoopback, releaseLoopback)
}

func loopbackChan(name string) chan []byte {
	loopbackMu.Lock()
	defer loopbackMu.Unlock()
	ch, ok := loopbackChans[name]
	if !ok {
		ch = make(chan []byte, loopbackCapacity)
		loopbackChans[name] = ch
	}
	return ch
}

func allocateLoopback(Config) (string, error) {
	name := "loopback-" + uuid.NewString()
	loopbackChan(name)
	return name, nil
}

func releaseLoopback(address string) error {
	loopbackMu.Lock()
	defer loopbackMu.Unlock()
	delete(loopbackChans, address)
	return nil
}

type loopbackTransport struct {
	address string
	maxSize int
	ch      chan []byte
	closed  bool
}

func newLoopback(address string, _ Direction, cfg Config) (Transport, error) {
	if address == "" {
		return nil, newError(ConnectionError, nil, "empty loopback address")
	}
	maxSize := loopbackDefaultMax
	if cfg.MaxMessageSize > 0 {
		maxSize = cfg.MaxMessageSize
	}
	return &loopbackTransport{address: address, maxSize: maxSize}, nil
}

func (t *loopbackTransport) Open() error {
	if t.closed {
		return ErrClosed
	}
	t.ch = loopbackChan(t.address)
	return nil
}

// Send blocks while the channel is full.
func (t *loopbackTransport) Send(msg []byte) error {
	if t.closed || t.ch == nil {
		return ErrClosed
	}
	t.ch <- append([]byte(nil), msg...)
	return nil
}

func (t *loopbackTransport) Recv(timeout time.Duration) ([]byte, error) {
	if t.closed || t.ch == nil {
		return nil, ErrClosed
	}
	switch {
	case timeout < 0:
		return <-t.ch, nil
	case timeout == 0:
		select {
		case msg := <-t.ch:
			return msg, nil
		default:
			return nil, ErrTimeout
		}
	default:
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case msg := <-t.ch:
			return msg, nil
		case <-timer.C:
			return nil, ErrTimeout
		}
	}
}

func (t *loopbackTransport) Close() error {
	t.closed = true
	return nil
}

func (t *loopbackTransport) MaxMessageSize() int { return t.maxSize }

func (t *loopbackTransport) Address() string { return t.address }
