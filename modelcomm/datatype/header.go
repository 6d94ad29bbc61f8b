// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"bytes"
	"encoding/json"
)

// HeaderMarker delimits the JSON header at the start of a message.
const HeaderMarker = "YGG_MSG_HEAD"

var headerMarker = []byte(HeaderMarker)

// Header is the self-describing prefix of a message.
type Header struct {
	// Datatype is the metadata needed to decode the body.
	Datatype Definition `json:"datatype,omitempty"`
	// Size is the length of the body that follows the header.
	Size int `json:"size"`
	// ID identifies the message; responses carry it in ResponseTo.
	ID         string `json:"id,omitempty"`
	ResponseTo string `json:"response_to,omitempty"`
	// Compression names the codec applied to the body ("zstd", "lz4").
	Compression string `json:"compression,omitempty"`
	// RawSize is the body length before compression.
	RawSize int `json:"raw_size,omitempty"`
	// Checksum is the hex BLAKE3-256 digest of the body as transmitted.
	Checksum string `json:"checksum,omitempty"`
	// Error carries a failure reported by the peer in place of a value.
	Error string `json:"error,omitempty"`
	// Meta carries string metadata such as trace context.
	Meta map[string]string `json:"meta,omitempty"`
}

// Format returns the header followed by body. Size is set from body.
func (h Header) Format(body []byte) ([]byte, error) {
	h.Size = len(body)
	data, err := json.Marshal(h)
	if err != nil {
		return nil, newError(ValueError, "encoding header: %v", err)
	}
	out := make([]byte, 0, 2*len(headerMarker)+len(data)+len(body))
	out = append(out, headerMarker...)
	out = append(out, data...)
	out = append(out, headerMarker...)
	return append(out, body...), nil
}

// HasHeader reports whether msg starts with a header marker.
func HasHeader(msg []byte) bool {
	return bytes.HasPrefix(msg, headerMarker)
}

// ParseHeader splits a message into its header and body. ok is false when
// msg carries no header, in which case body is msg itself.
func ParseHeader(msg []byte) (h Header, body []byte, ok bool, err error) {
	if !HasHeader(msg) {
		return Header{}, msg, false, nil
	}
	rest := msg[len(headerMarker):]
	end := bytes.Index(rest, headerMarker)
	if end < 0 {
		return Header{}, nil, true, newError(ValueError, "message header is not terminated")
	}
	if err := json.Unmarshal(rest[:end], &h); err != nil {
		return Header{}, nil, true, newError(ValueError, "decoding header: %v", err)
	}
	body = rest[end+len(headerMarker):]
	if len(body) != h.Size {
		return Header{}, nil, true, newError(ValueError, "header announces %d body bytes, message has %d", h.Size, len(body))
	}
	return h, body, true, nil
}
