// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

// EOFSentinel is the reserved payload that ends a stream.
const EOFSentinel = "EOF!!!"

var eofSentinel = []byte(EOFSentinel)

// Well-known keys of the message header meta map. Trace context set by
// hooks (traceparent, tracestate) travels in the same map.
const (
	MetaKind    = "modelcomm.kind"
	MetaSender  = "modelcomm.sender"
	MetaVersion = "modelcomm.version"

	ProtocolVersion = "1"
)

// Message kinds reported to hooks and carried under MetaKind.
const (
	KindData     = "data"
	KindEOF      = "eof"
	KindRequest  = "request"
	KindResponse = "response"
	KindFormat   = "format"
	// KindCall and KindServe cover a whole RPC exchange rather than one
	// message.
	KindCall  = "call"
	KindServe = "serve"
)
