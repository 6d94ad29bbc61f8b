// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

// Package conformance provides fixtures for cross-language modelcomm
// conformance tests. A peer written in another language drives the
// modelcomm-conformance-go binary through its channels and checks that
// every value comes back unchanged.
//
// [ValidObjects] is the sample table: one value per built-in type whose
// inferred type is that type. [RegisterTypes] adds the derived types of
// the embedded conformance schema. [Echo], [EchoTable] and [EchoHandler]
// are the three peer loops: raw messages, table streams and RPC.
package conformance
