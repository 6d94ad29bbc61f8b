// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"bytes"

	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// InferFromValue returns the most specific definition for v by asking each
// registered class in registration order. A value no class recognizes,
// such as an arbitrary struct, is a MetaschemaTypeError.
func (r *Registry) InferFromValue(v any) (Definition, error) {
	for _, cls := range r.orderedClasses() {
		if cls.Base != "" {
			continue
		}
		if d, ok := cls.Codec.Infer(r, v); ok {
			return d, nil
		}
	}
	return nil, newError(MetaschemaTypeError, "no type describes values of %T", v)
}

// InferFromBytes recognizes a definition from a raw payload. Only declared
// signatures are recognized: a message header, or an Arrow IPC stream or
// file. Anything else is a ValueError.
func (r *Registry) InferFromBytes(raw []byte) (Definition, error) {
	switch {
	case HasHeader(raw):
		h, _, _, err := ParseHeader(raw)
		if err != nil {
			return nil, err
		}
		if h.Datatype == nil {
			return nil, newError(ValueError, "message header carries no datatype")
		}
		return r.Resolve(h.Datatype)
	case bytes.HasPrefix(raw, arrowStreamSignature):
		reader, err := ipc.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, newError(ValueError, "Arrow stream signature with unreadable schema: %v", err)
		}
		defer reader.Release()
		return tableDefinitionFromSchema(reader.Schema())
	case bytes.HasPrefix(raw, arrowFileSignature):
		return Definition{PropType: TypeArrowTable, PropAsArray: true}, nil
	default:
		return nil, newError(ValueError, "payload of %d bytes has no recognized signature", len(raw))
	}
}
