// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	socketDefaultMax = 1 << 20
	// frameHeaderLength is the 4-byte big-endian payload length that
	// precedes every frame.
	frameHeaderLength = 4
	// maxFrameLength bounds a frame accepted from the wire, including
	// frames sent without a chunk limit.
	maxFrameLength = 1 << 30
	dialRetryDelay = 20 * time.Millisecond
	// pollWindow is the read deadline used when Recv is asked not to wait.
	pollWindow = time.Millisecond
)

func init() {
	registerBackend(BackendSocket, newSocket, allocateSocket, releaseSocket)
}

// parseSocketAddress splits an address into a network and a dial address.
// Bare host:port addresses are TCP.
func parseSocketAddress(address string) (network, addr string, err error) {
	switch {
	case strings.HasPrefix(address, "tcp://"):
		network, addr = "tcp", strings.TrimPrefix(address, "tcp://")
	case strings.HasPrefix(address, "unix://"):
		network, addr = "unix", strings.TrimPrefix(address, "unix://")
	case strings.Contains(address, "://"):
		return "", "", newError(ConnectionError, nil, "unsupported socket address %q", address)
	default:
		network, addr = "tcp", address
	}
	if addr == "" {
		return "", "", newError(ConnectionError, nil, "empty socket address %q", address)
	}
	return network, addr, nil
}

type deadlineListener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

// socketTransport frames messages over a stream socket. In the pair
// pattern the receiving end listens and accepts one sender at a time; in
// the pubsub pattern the sending end listens and copies every message to
// each connected subscriber.
type socketTransport struct {
	address     string
	network     string
	addr        string
	dir         Direction
	pattern     string
	dialTimeout time.Duration
	maxSize     int

	listener deadlineListener
	conn     net.Conn
	subs     []net.Conn
	// pending holds bytes of a frame that did not complete before the
	// last read deadline.
	pending []byte
	opened  bool
	closed  bool
}

func newSocket(address string, dir Direction, cfg Config) (Transport, error) {
	network, addr, err := parseSocketAddress(address)
	if err != nil {
		return nil, err
	}
	maxSize := socketDefaultMax
	if cfg.MaxMessageSize > 0 {
		maxSize = cfg.MaxMessageSize
	}
	return &socketTransport{
		address:     address,
		network:     network,
		addr:        addr,
		dir:         dir,
		pattern:     cfg.Socket.Pattern,
		dialTimeout: cfg.Socket.DialTimeout,
		maxSize:     maxSize,
	}, nil
}

func (t *socketTransport) listens() bool {
	if t.pattern == PatternPubSub {
		return t.dir == DirSend
	}
	return t.dir == DirRecv
}

// Open binds the listening end. A pubsub subscriber connects here so that
// it sees every message published after Open returns; a pair sender
// connects on its first Send.
func (t *socketTransport) Open() error {
	if t.closed {
		return ErrClosed
	}
	if t.listens() {
		l, err := net.Listen(t.network, t.addr)
		if err != nil {
			return newError(ConnectionError, err, "listening on %s", t.address)
		}
		dl, ok := l.(deadlineListener)
		if !ok {
			_ = l.Close()
			return newError(ConnectionError, nil, "listener for %s does not support deadlines", t.address)
		}
		t.listener = dl
	} else if t.pattern == PatternPubSub {
		conn, err := t.dial(time.Now().Add(t.dialTimeout))
		if err != nil {
			return err
		}
		t.conn = conn
	}
	t.opened = true
	return nil
}

// dial retries until the peer is listening or the deadline passes.
func (t *socketTransport) dial(deadline time.Time) (net.Conn, error) {
	for {
		conn, err := net.DialTimeout(t.network, t.addr, max(time.Until(deadline), dialRetryDelay))
		if err == nil {
			slog.Debug("socket: connected", "address", t.address)
			return conn, nil
		}
		if time.Now().Add(dialRetryDelay).After(deadline) {
			return nil, newError(ConnectionError, err, "connecting to %s", t.address)
		}
		time.Sleep(dialRetryDelay)
	}
}

func (t *socketTransport) Send(msg []byte) error {
	if t.closed || !t.opened {
		return ErrClosed
	}
	frame := make([]byte, frameHeaderLength+len(msg))
	binary.BigEndian.PutUint32(frame, uint32(len(msg)))
	copy(frame[frameHeaderLength:], msg)

	if t.pattern == PatternPubSub {
		t.acceptSubscribers()
		live := t.subs[:0]
		for _, sub := range t.subs {
			if _, err := sub.Write(frame); err != nil {
				slog.Debug("socket: dropping subscriber", "address", t.address, "err", err)
				_ = sub.Close()
				continue
			}
			live = append(live, sub)
		}
		t.subs = live
		return nil
	}

	if t.conn == nil {
		conn, err := t.dial(time.Now().Add(t.dialTimeout))
		if err != nil {
			return err
		}
		t.conn = conn
	}
	if _, err := t.conn.Write(frame); err != nil {
		_ = t.conn.Close()
		t.conn = nil
		return newError(ConnectionError, err, "writing to %s", t.address)
	}
	return nil
}

// acceptSubscribers picks up every connection already queued on the
// listener without waiting for new ones.
func (t *socketTransport) acceptSubscribers() {
	for {
		if err := t.listener.SetDeadline(time.Now().Add(pollWindow)); err != nil {
			return
		}
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		slog.Debug("socket: subscriber connected", "address", t.address)
		t.subs = append(t.subs, conn)
	}
}

func (t *socketTransport) Recv(timeout time.Duration) ([]byte, error) {
	if t.closed || !t.opened {
		return nil, ErrClosed
	}
	deadline := deadlineFor(timeout)
	if timeout == 0 {
		deadline = time.Now().Add(pollWindow)
	}

	if t.conn == nil {
		if t.listener == nil {
			return nil, newError(ConnectionError, nil, "subscription to %s was lost", t.address)
		}
		if err := t.listener.SetDeadline(deadline); err != nil {
			return nil, newError(ConnectionError, err, "accepting on %s", t.address)
		}
		conn, err := t.listener.Accept()
		if err != nil {
			if isNetTimeout(err) {
				return nil, ErrTimeout
			}
			return nil, newError(ConnectionError, err, "accepting on %s", t.address)
		}
		slog.Debug("socket: sender connected", "address", t.address)
		t.conn = conn
	}

	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, newError(ConnectionError, err, "reading from %s", t.address)
	}
	buf := make([]byte, 32*1024)
	for {
		if msg, ok, err := t.nextFrame(); err != nil || ok {
			return msg, err
		}
		n, err := t.conn.Read(buf)
		t.pending = append(t.pending, buf[:n]...)
		if err == nil {
			continue
		}
		if msg, ok, ferr := t.nextFrame(); ferr != nil || ok {
			return msg, ferr
		}
		switch {
		case isNetTimeout(err):
			return nil, ErrTimeout
		case errors.Is(err, io.EOF) && len(t.pending) == 0:
			// The peer hung up between messages.
			_ = t.conn.Close()
			t.conn = nil
			return nil, io.EOF
		default:
			_ = t.conn.Close()
			t.conn = nil
			t.pending = nil
			return nil, newError(ConnectionError, err, "reading from %s", t.address)
		}
	}
}

// nextFrame removes one complete frame from pending.
func (t *socketTransport) nextFrame() ([]byte, bool, error) {
	if len(t.pending) < frameHeaderLength {
		return nil, false, nil
	}
	size := binary.BigEndian.Uint32(t.pending)
	if size > maxFrameLength {
		t.pending = nil
		return nil, false, newError(ConnectionError, nil, "frame of %d bytes from %s exceeds %d", size, t.address, maxFrameLength)
	}
	end := frameHeaderLength + int(size)
	if len(t.pending) < end {
		return nil, false, nil
	}
	msg := append([]byte(nil), t.pending[frameHeaderLength:end]...)
	t.pending = t.pending[end:]
	if len(t.pending) == 0 {
		t.pending = nil
	}
	return msg, true, nil
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (t *socketTransport) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	var errs []error
	if t.conn != nil {
		errs = append(errs, t.conn.Close())
		t.conn = nil
	}
	for _, sub := range t.subs {
		errs = append(errs, sub.Close())
	}
	t.subs = nil
	if t.listener != nil {
		errs = append(errs, t.listener.Close())
		t.listener = nil
	}
	if err := errors.Join(errs...); err != nil {
		return newError(ConnectionError, err, "closing %s", t.address)
	}
	return nil
}

func (t *socketTransport) MaxMessageSize() int { return t.maxSize }

func (t *socketTransport) Address() string { return t.address }

// allocateSocket reserves a free loopback TCP port. The port is released
// again before returning, so another process may take it first; callers
// that need a guaranteed address use a unix:// path instead.
func allocateSocket(Config) (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", newError(ConnectionError, err, "reserving a socket address")
	}
	addr := l.Addr().String()
	if err := l.Close(); err != nil {
		return "", newError(ConnectionError, err, "reserving a socket address")
	}
	return "tcp://" + addr, nil
}

// releaseSocket removes a leftover Unix socket file.
func releaseSocket(address string) error {
	network, addr, err := parseSocketAddress(address)
	if err != nil || network != "unix" {
		return err
	}
	if err := os.Remove(addr); err != nil && !errors.Is(err, os.ErrNotExist) {
		return newError(ConnectionError, err, "removing %s", addr)
	}
	return nil
}

// UnixAddress returns a fresh unix:// address inside dir.
func UnixAddress(dir string) string {
	return "unix://" + filepath.Join(dir, "mc-"+uuid.NewString()[:8]+".sock")
}
