// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"fmt"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

// Error types reported by comms and transports. Serialization failures
// keep the datatype error types (TypeError, ValueError, RuntimeError, ...).
const (
	ConnectionError = "ConnectionError"
	TimeoutError    = "TimeoutError"
	ClosedError     = "ClosedError"
	RemoteError     = "RemoteError"
)

// Sentinels for use with errors.Is.
var (
	// ErrComm matches every *Error.
	ErrComm = &Error{}
	// ErrConnection reports a backend resource that could not be located,
	// created or used.
	ErrConnection = &Error{Type: ConnectionError}
	// ErrTimeout is returned by Recv when no complete message arrived in
	// time. It is a soft failure: the Comm stays usable and any partial
	// message is kept for the next Recv.
	ErrTimeout = &Error{Type: TimeoutError, Message: "no message before the deadline"}
	// ErrClosed is returned by operations on a closed Comm or transport.
	ErrClosed = &Error{Type: ClosedError, Message: "comm is closed"}
	// ErrRemote matches failures reported by the peer of an RPC.
	ErrRemote = &Error{Type: RemoteError}
)

// Error is a communication error. Err, when set, is the underlying cause.
type Error struct {
	Type    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a target *Error with the same Type (or any *Error when the
// target has no Type), and a *datatype.Error with the same Type so that
// errors.Is(err, datatype.ErrValue) holds for checksum failures.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case *Error:
		return t.Type == "" || t.Type == e.Type
	case *datatype.Error:
		return t.Type == e.Type
	}
	return false
}

func newError(kind string, err error, format string, args ...any) *Error {
	return &Error{Type: kind, Message: fmt.Sprintf(format, args...), Err: err}
}
