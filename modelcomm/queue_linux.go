// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

//go:build linux && (amd64 || arm64 || riscv64 || loong64)

package modelcomm

import (
	"encoding/binary"
	"errors"
	"math"
	"math/rand/v2"
	"strconv"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	queueDefaultMax = 2048
	// queueRecvBuffer bounds a single receive; the kernel default msgmax
	// is 8192.
	queueRecvBuffer = 1 << 16
	// queueMsgType is the mtype of every message; receivers take any.
	queueMsgType = 1
	mtypeSize    = strconv.IntSize / 8
)

func init() {
	registerBackend(BackendQueue, newQueue, allocateQueue, releaseQueue)
}

// queueTransport is a System V message queue addressed by its key.
type queueTransport struct {
	address string
	key     int
	id      int
	maxSize int
	poll    time.Duration
	buf     []byte
	opened  bool
	closed  bool
}

func parseQueueKey(address string) (int, error) {
	key, err := strconv.ParseInt(address, 10, 32)
	if err != nil || key == 0 {
		return 0, newError(ConnectionError, err, "invalid queue key %q", address)
	}
	return int(key), nil
}

func newQueue(address string, _ Direction, cfg Config) (Transport, error) {
	key, err := parseQueueKey(address)
	if err != nil {
		return nil, err
	}
	maxSize := queueDefaultMax
	if cfg.MaxMessageSize > 0 {
		maxSize = cfg.MaxMessageSize
	}
	return &queueTransport{
		address: address,
		key:     key,
		id:      -1,
		maxSize: maxSize,
		poll:    cfg.Queue.PollInterval,
	}, nil
}

// Open locates an existing queue. Queues are created by NewAddress (or
// CreateQueue) on the side that owns the channel.
func (q *queueTransport) Open() error {
	if q.closed {
		return ErrClosed
	}
	id, err := msgget(q.key, 0)
	if err != nil {
		return newError(ConnectionError, err, "locating queue %d", q.key)
	}
	q.id = id
	q.opened = true
	q.buf = make([]byte, mtypeSize+queueRecvBuffer)
	return nil
}

// Send blocks while the queue is full.
func (q *queueTransport) Send(msg []byte) error {
	if q.closed || !q.opened {
		return ErrClosed
	}
	if len(msg) > queueRecvBuffer {
		return newError(ConnectionError, nil, "message of %d bytes exceeds the queue limit %d", len(msg), queueRecvBuffer)
	}
	buf := make([]byte, mtypeSize+len(msg))
	putMtype(buf, queueMsgType)
	copy(buf[mtypeSize:], msg)
	for {
		err := msgsnd(q.id, buf, len(msg), 0)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return newError(ConnectionError, err, "sending to queue %d", q.key)
		}
		return nil
	}
}

func (q *queueTransport) Recv(timeout time.Duration) ([]byte, error) {
	if q.closed || !q.opened {
		return nil, ErrClosed
	}
	if timeout < 0 {
		for {
			n, err := msgrcv(q.id, q.buf, queueRecvBuffer, 0)
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if err != nil {
				return nil, newError(ConnectionError, err, "receiving from queue %d", q.key)
			}
			return q.message(n), nil
		}
	}

	deadline := time.Now().Add(timeout)
	for {
		n, err := msgrcv(q.id, q.buf, queueRecvBuffer, unix.IPC_NOWAIT)
		switch {
		case err == nil:
			return q.message(n), nil
		case errors.Is(err, unix.ENOMSG), errors.Is(err, unix.EINTR):
		default:
			return nil, newError(ConnectionError, err, "receiving from queue %d", q.key)
		}
		left := time.Until(deadline)
		if left <= 0 {
			return nil, ErrTimeout
		}
		time.Sleep(min(q.poll, left))
	}
}

func (q *queueTransport) message(n int) []byte {
	return append([]byte(nil), q.buf[mtypeSize:mtypeSize+n]...)
}

// Close detaches from the queue without removing it.
func (q *queueTransport) Close() error {
	q.closed = true
	return nil
}

func (q *queueTransport) MaxMessageSize() int { return q.maxSize }

func (q *queueTransport) Address() string { return q.address }

// CreateQueue creates a queue under a fresh random key and returns the
// key.
func CreateQueue(perm uint32) (int, error) {
	for range 64 {
		key := rand.IntN(math.MaxInt32-1) + 1
		_, err := msgget(key, unix.IPC_CREAT|unix.IPC_EXCL|int(perm&0o777))
		if errors.Is(err, unix.EEXIST) {
			continue
		}
		if err != nil {
			return 0, newError(ConnectionError, err, "creating queue")
		}
		return key, nil
	}
	return 0, newError(ConnectionError, nil, "no free queue key")
}

// RemoveQueue removes the queue with the given key.
func RemoveQueue(key int) error {
	id, err := msgget(key, 0)
	if err != nil {
		return newError(ConnectionError, err, "locating queue %d", key)
	}
	if err := msgctl(id, unix.IPC_RMID); err != nil {
		return newError(ConnectionError, err, "removing queue %d", key)
	}
	return nil
}

func allocateQueue(cfg Config) (string, error) {
	key, err := CreateQueue(cfg.Queue.Permissions)
	if err != nil {
		return "", err
	}
	return strconv.Itoa(key), nil
}

func releaseQueue(address string) error {
	key, err := parseQueueKey(address)
	if err != nil {
		return err
	}
	return RemoveQueue(key)
}

func putMtype(buf []byte, mtype int) {
	if mtypeSize == 8 {
		binary.NativeEndian.PutUint64(buf, uint64(mtype))
	} else {
		binary.NativeEndian.PutUint32(buf, uint32(mtype))
	}
}

func msgget(key, flags int) (int, error) {
	id, _, errno := unix.Syscall(unix.SYS_MSGGET, uintptr(key), uintptr(flags), 0)
	if errno != 0 {
		return -1, errno
	}
	return int(id), nil
}

func msgsnd(id int, buf []byte, size, flags int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MSGSND, uintptr(id),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(size), uintptr(flags), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}

func msgrcv(id int, buf []byte, size, flags int) (int, error) {
	n, _, errno := unix.Syscall6(unix.SYS_MSGRCV, uintptr(id),
		uintptr(unsafe.Pointer(&buf[0])), uintptr(size), 0, uintptr(flags), 0)
	if errno != 0 {
		return 0, errno
	}
	return int(n), nil
}

func msgctl(id, cmd int) error {
	_, _, errno := unix.Syscall(unix.SYS_MSGCTL, uintptr(id), uintptr(cmd), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
