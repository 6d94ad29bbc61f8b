// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import "bytes"

// Encode serializes v under def and returns the body together with the
// metadata needed to decode it. With a nil def only raw []byte values are
// accepted and passed through unchanged.
func (r *Registry) Encode(v any, def any) ([]byte, Definition, error) {
	if def == nil {
		if b, ok := v.([]byte); ok {
			return b, nil, nil
		}
		return nil, nil, newError(RuntimeError, "no datatype to encode %T", v)
	}
	if d, ok := def.(Definition); ok && d == nil {
		return r.Encode(v, nil)
	}
	cls, n, err := r.codecFor(def)
	if err != nil {
		return nil, nil, err
	}
	body, meta, err := cls.Codec.Encode(r, v, n)
	if err != nil {
		return nil, nil, err
	}
	if meta != nil && cls.Base != "" {
		// Keep the alias name the caller used.
		meta[PropType] = cls.Name
		if meta[PropSubtype] == cls.Subtype {
			delete(meta, PropSubtype)
		}
	}
	return body, meta, nil
}

// Decode reverses Encode. A nil meta returns data unchanged.
func (r *Registry) Decode(data []byte, meta any) (any, error) {
	if meta == nil {
		return data, nil
	}
	if d, ok := meta.(Definition); ok && d == nil {
		return data, nil
	}
	cls, n, err := r.codecFor(meta)
	if err != nil {
		return nil, err
	}
	return cls.Codec.Decode(r, data, n)
}

// Validate reports whether v can be encoded under def.
func (r *Registry) Validate(v any, def any) error {
	_, _, err := r.Encode(v, def)
	return err
}

// Equal reports whether a and b are the same value under def: both encode
// to identical bodies. Numeric vectors therefore compare element-wise and
// containers member by member.
func (r *Registry) Equal(a, b any, def any) (bool, error) {
	ab, _, err := r.Encode(a, def)
	if err != nil {
		return false, err
	}
	bb, _, err := r.Encode(b, def)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ab, bb), nil
}

// EncodeMessage encodes v as a self-describing message: a header carrying
// the metadata followed by the body.
func (r *Registry) EncodeMessage(v any, def any) ([]byte, error) {
	body, meta, err := r.Encode(v, def)
	if err != nil {
		return nil, err
	}
	return Header{Datatype: meta}.Format(body)
}

// DecodeMessage decodes a message produced by EncodeMessage. A message
// without a header is returned as raw bytes.
func (r *Registry) DecodeMessage(msg []byte) (any, error) {
	h, body, _, err := ParseHeader(msg)
	if err != nil {
		return nil, err
	}
	if h.Datatype == nil {
		return body, nil
	}
	return r.Decode(body, h.Datatype)
}
