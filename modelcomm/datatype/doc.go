// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package datatype implements the typed serialization layer used by
// modelcomm channels: a registry of type classes, the definitions that
// instantiate them, and the codecs that turn Go values into message
// bodies and back.
//
// # Definitions
//
// A [Definition] is a schema instance such as
//
//	{"type": "int", "precision": 32, "units": "cm"}
//
// [Registry.Resolve] normalizes shorthand forms into definitions: a
// bare type name, a mapping of named members (an object), or an ordered
// list of members (a fixed-arity array).
//
// # Built-in classes
//
//   - scalar, with the aliases int, uint, float, complex, bytes and unicode
//   - boolean and null
//   - 1darray and ndarray for homogeneous numeric data
//   - array and object for heterogeneous containers
//   - table for rows rendered through a printf-style format string
//   - arrowtable for tables carried as Arrow IPC streams
//
// Decoded integers keep the width named by their precision, so an int
// with precision 32 decodes to int32. Use [Registry.Equal] to compare
// values under a definition.
//
// # Messages
//
// [Header] is the self-describing envelope prefix. A message carrying
// one looks like
//
//	YGG_MSG_HEAD{"datatype": {...}, "size": 12}YGG_MSG_HEAD<body>
package datatype
