// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package modelcomm lets independently running model processes exchange
// typed messages over named channels without sharing memory.
//
// # Comms
//
// A [Comm] is one directional endpoint of a logical channel. It is opened
// by name: a channel named X reads its input address from X_IN (falling
// back to X_INT) and its output address from X_OUT. The lookup is
// injectable with [WithEnv] or [WithLookup] so callers can resolve names
// against an [Artifact] environment instead of the process environment.
//
//	in, err := modelcomm.NewInput("inbox", "%d\n")
//	if err != nil {
//		return err
//	}
//	defer in.Close()
//	row, err := in.Recv(modelcomm.Block)
//
// A Comm optionally binds a datatype definition (see package datatype).
// Bound Comms encode outgoing values and decode incoming ones; unbound
// Comms pass raw []byte through.
//
// # Messages
//
// Encoded messages that carry metadata start with a JSON header delimited
// by [datatype.HeaderMarker]. The header names the datatype, the message
// id and, for responses, the id being answered. Bodies above
// Config.CompressionThreshold may be compressed with zstd or lz4 and
// carry a BLAKE3 checksum when they span several chunks.
//
// Messages larger than the transport limit are split into chunks of at
// most MaxMessageSize bytes. The final chunk is always shorter than the
// limit; a message whose length is a multiple of the limit ends with an
// empty chunk. Both ends of a channel must agree on the limit.
//
// The reserved payload [EOFSentinel] ends a stream. Recv reports it as
// io.EOF. A raw payload that happens to equal the sentinel is wrapped in
// a header so it is never mistaken for end of stream.
//
// # Transports
//
// Backends are selected once through [Config.Backend]:
//
//   - queue: System V message queues, single host. Addresses are queue
//     keys. Default limit 2048 bytes.
//   - socket: TCP or Unix domain sockets with length-prefixed frames, in
//     pair or pubsub pattern. Addresses are tcp://host:port or
//     unix:///path. Default limit 1 MiB.
//   - loopback: in-process channels for tests and single-process wiring.
//
// # RPC
//
// An [RPC] pairs an outbound and an inbound Comm. [RPC.Call] sends a
// request and blocks for the matching response; [RPC.Serve] answers
// requests until the peer sends end of stream.
//
// # Table streams
//
// [TableOutput] announces its row format string before the first row, so
// a [TableInput] needs no definition of its own.
//
// # Observability
//
// A [MessageHook] set with [WithHook] sees every message and RPC call.
// Package commotel (modelcomm/otel) provides an OpenTelemetry hook that
// carries trace context in the header meta.
package modelcomm
