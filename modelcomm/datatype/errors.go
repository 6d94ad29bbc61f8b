// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import "fmt"

// Error types reported by the registry and the codecs.
const (
	TypeError            = "TypeError"
	MetaschemaTypeError  = "MetaschemaTypeError"
	DuplicateTypeError   = "DuplicateTypeError"
	InvalidPropertyError = "InvalidPropertyError"
	ValueError           = "ValueError"
	RuntimeError         = "RuntimeError"
)

// Sentinels for use with errors.Is. ErrDatatype matches every *Error, the
// others match a single error type.
var (
	ErrDatatype        = &Error{}
	ErrType            = &Error{Type: TypeError}
	ErrMetaschemaType  = &Error{Type: MetaschemaTypeError}
	ErrDuplicateType   = &Error{Type: DuplicateTypeError}
	ErrInvalidProperty = &Error{Type: InvalidPropertyError}
	ErrValue           = &Error{Type: ValueError}
	ErrRuntime         = &Error{Type: RuntimeError}
)

// Error is a typed serialization error.
type Error struct {
	Type    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is matches a target *Error with the same Type, or any *Error when the
// target has no Type.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Type == "" || t.Type == e.Type
}

func newError(kind, format string, args ...any) *Error {
	return &Error{Type: kind, Message: fmt.Sprintf(format, args...)}
}
