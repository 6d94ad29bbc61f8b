// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
	"github.com/google/uuid"
)

// recvSlice bounds a single transport wait while a context is watched.
const recvSlice = 100 * time.Millisecond

// Comm is one directional endpoint of a named channel. A Comm has a single
// owner and is not safe for concurrent use.
type Comm struct {
	name     string
	dir      Direction
	def      datatype.Definition
	registry *datatype.Registry
	cfg      Config
	tag      CompressionTag

	transport Transport
	maxSize   int
	hook      MessageHook

	// partial holds the chunks of a message whose final chunk has not
	// arrived yet.
	partial []byte
	chunks  int
	closed  bool
}

// Message is a received message together with its header.
type Message struct {
	Value     any
	Header    datatype.Header
	HasHeader bool
}

// envelope carries the header fields a send sets besides the datatype.
type envelope struct {
	kind       string
	id         string
	responseTo string
	errMsg     string
	meta       map[string]string
	// raw sends v as bytes even on a bound Comm.
	raw bool
}

// NewComm opens the dir end of the channel called name. def binds a
// datatype (any form accepted by Registry.Resolve, including a row format
// string); nil leaves the Comm unbound so that it moves raw []byte.
func NewComm(name string, dir Direction, def any, opts ...Option) (*Comm, error) {
	return newComm(name, dir, def, buildOptions(opts))
}

// NewInput opens the receiving end of name.
func NewInput(name string, def any, opts ...Option) (*Comm, error) {
	return NewComm(name, DirRecv, def, opts...)
}

// NewOutput opens the sending end of name.
func NewOutput(name string, def any, opts ...Option) (*Comm, error) {
	return NewComm(name, DirSend, def, opts...)
}

func newComm(name string, dir Direction, def any, o options) (*Comm, error) {
	cfg := DefaultConfig()
	if o.cfg != nil {
		cfg = o.cfg.withDefaults()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tag, err := ParseCompressionTag(cfg.Compression)
	if err != nil {
		return nil, err
	}
	registry := o.registry
	if registry == nil {
		registry = datatype.Default()
	}

	c := &Comm{
		name:     name,
		dir:      dir,
		registry: registry,
		cfg:      cfg,
		tag:      tag,
		hook:     o.hook,
	}
	if def != nil {
		c.def, err = registry.Resolve(def)
		if err != nil {
			return nil, fmt.Errorf("comm %s: %w", name, err)
		}
	}

	t := o.transport
	if t == nil {
		address := o.address
		if address == "" {
			address, err = ResolveAddress(name, dir, o.lookup)
			if err != nil {
				return nil, err
			}
		}
		t, err = NewTransport(address, dir, cfg)
		if err != nil {
			return nil, err
		}
	}
	if err := t.Open(); err != nil {
		return nil, err
	}

	c.transport = t
	c.maxSize = t.MaxMessageSize()
	if o.maxSize > 0 {
		if o.maxSize < MinMessageSize || o.maxSize > c.maxSize {
			_ = t.Close()
			return nil, newError(ConnectionError, nil, "max message size %d is outside [%d, %d]", o.maxSize, MinMessageSize, c.maxSize)
		}
		c.maxSize = o.maxSize
	}
	slog.Debug("comm: opened", "name", name, "direction", dir, "address", t.Address(), "backend", cfg.Backend, "max_size", c.maxSize)
	return c, nil
}

// Name returns the channel name.
func (c *Comm) Name() string { return c.name }

// Direction returns the fixed direction of the Comm.
func (c *Comm) Direction() Direction { return c.dir }

// Address returns the transport address.
func (c *Comm) Address() string { return c.transport.Address() }

// Definition returns the bound datatype, or nil.
func (c *Comm) Definition() datatype.Definition { return c.def }

// Registry returns the registry the Comm encodes with.
func (c *Comm) Registry() *datatype.Registry { return c.registry }

// MaxMessageSize returns the chunk limit.
func (c *Comm) MaxMessageSize() int { return c.maxSize }

// SetHook replaces the message hook. A nil hook disables reporting.
func (c *Comm) SetHook(h MessageHook) { c.hook = h }

// Send encodes v and sends it, split into chunks when it exceeds the
// chunk limit. Sending stops at the first failing chunk.
func (c *Comm) Send(v any) error {
	return c.send(context.Background(), v, envelope{}, false)
}

// SendContext is Send with a context handed to the message hook.
func (c *Comm) SendContext(ctx context.Context, v any) error {
	return c.send(ctx, v, envelope{}, false)
}

// SendNolimit sends v as a single transport message regardless of the
// chunk limit. The backend must accept the size.
func (c *Comm) SendNolimit(v any) error {
	return c.send(context.Background(), v, envelope{}, true)
}

// SendEOF sends the end-of-stream sentinel.
func (c *Comm) SendEOF() error {
	return c.send(context.Background(), nil, envelope{kind: KindEOF}, false)
}

func (c *Comm) send(ctx context.Context, v any, env envelope, nolimit bool) (err error) {
	if c.closed {
		return ErrClosed
	}
	if c.dir != DirSend {
		return newError(ConnectionError, nil, "comm %s is not a sending comm", c.name)
	}
	if env.kind == "" {
		env.kind = KindData
	}
	if env.kind != KindEOF && env.id == "" && c.def != nil {
		env.id = uuid.NewString()
	}

	info := MessageInfo{Comm: c.name, Direction: DirSend, Kind: env.kind, MessageID: env.id, Metadata: env.meta}
	if c.hook != nil && info.Metadata == nil {
		info.Metadata = map[string]string{}
	}
	stats := &MessageStatistics{}
	ctx, token, active := hookStart(ctx, c.hook, info)
	if active {
		defer func() { hookEnd(ctx, c.hook, token, info, stats, err) }()
	}

	var msg []byte
	if env.kind == KindEOF {
		msg = eofSentinel
	} else {
		msg, err = c.frame(v, env, info.Metadata, stats, nolimit)
		if err != nil {
			return err
		}
	}

	if nolimit {
		if err := c.transport.Send(msg); err != nil {
			return err
		}
		stats.RecordChunk(len(msg))
	} else {
		for off, index := 0, 0; ; index++ {
			end := min(off+c.maxSize, len(msg))
			chunk := msg[off:end]
			if err := c.transport.Send(chunk); err != nil {
				return fmt.Errorf("comm %s: chunk %d: %w", c.name, index, err)
			}
			stats.RecordChunk(len(chunk))
			slog.Log(ctx, LevelTrace, "comm: sent chunk", "name", c.name, "index", index, "size", len(chunk))
			if len(chunk) < c.maxSize {
				break
			}
			off = end
		}
	}
	slog.Debug("comm: sent message", "name", c.name, "kind", env.kind, "id", env.id, "size", len(msg), "chunks", stats.Chunks)
	return nil
}

// frame encodes v and prefixes a header when the message needs one.
func (c *Comm) frame(v any, env envelope, meta map[string]string, stats *MessageStatistics, nolimit bool) ([]byte, error) {
	var body []byte
	var dtype datatype.Definition
	switch {
	case env.errMsg != "" && v == nil:
	case c.def != nil && !env.raw:
		var err error
		body, dtype, err = c.registry.Encode(v, c.def)
		if err != nil {
			return nil, err
		}
	default:
		switch raw := v.(type) {
		case []byte:
			body = raw
		case string:
			body = []byte(raw)
		default:
			return nil, &datatype.Error{Type: datatype.RuntimeError, Message: fmt.Sprintf("comm %s has no datatype to encode %T", c.name, v)}
		}
	}
	stats.PayloadBytes = int64(len(body))

	h := datatype.Header{
		Datatype:   dtype,
		ID:         env.id,
		ResponseTo: env.responseTo,
		Error:      env.errMsg,
	}
	if len(meta) > 0 {
		h.Meta = meta
	}
	if c.tag != CompressionNone && len(body) >= c.cfg.CompressionThreshold {
		compressed, err := compressBody(body, c.tag)
		switch {
		case err == nil:
			h.Compression = c.tag.String()
			h.RawSize = len(body)
			body = compressed
		case !errors.Is(err, errIncompressible):
			return nil, newError(ConnectionError, err, "comm %s: compressing", c.name)
		}
	}

	needHeader := c.def != nil || h.ID != "" || h.ResponseTo != "" || h.Error != "" ||
		h.Meta != nil || h.Compression != "" || c.cfg.Checksum || bytes.Equal(body, eofSentinel) ||
		datatype.HasHeader(body)
	if !needHeader {
		if !nolimit && len(body) >= c.maxSize {
			// Multipart bodies always carry a checksum.
			needHeader = true
		} else {
			return body, nil
		}
	}

	if c.cfg.Checksum {
		h.Checksum = checksum(body)
	}
	msg, err := h.Format(body)
	if err != nil {
		return nil, err
	}
	if h.Checksum == "" && !nolimit && len(msg) >= c.maxSize {
		h.Checksum = checksum(body)
		return h.Format(body)
	}
	return msg, nil
}

// Recv receives and decodes the next message. A timeout of Block waits
// indefinitely and zero polls. It returns ErrTimeout when no complete
// message arrived in time, keeping any chunks received so far, and io.EOF
// when the peer sent the end-of-stream sentinel.
func (c *Comm) Recv(timeout time.Duration) (any, error) {
	return c.RecvContext(context.Background(), timeout)
}

// RecvContext is Recv that also returns when ctx is done.
func (c *Comm) RecvContext(ctx context.Context, timeout time.Duration) (any, error) {
	msg, err := c.recvMessage(ctx, timeout, false)
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

// RecvMessage is RecvContext returning the header with the value. When the
// body of a well-formed message cannot be used (a RemoteError reported by
// the peer, a checksum or decoding failure) the message is returned with
// the error so that its header stays available.
func (c *Comm) RecvMessage(ctx context.Context, timeout time.Duration) (*Message, error) {
	return c.recvMessage(ctx, timeout, false)
}

// RecvNolimit receives a message sent with SendNolimit.
func (c *Comm) RecvNolimit(timeout time.Duration) (any, error) {
	msg, err := c.recvMessage(context.Background(), timeout, true)
	if err != nil {
		return nil, err
	}
	return msg.Value, nil
}

func (c *Comm) recvMessage(ctx context.Context, timeout time.Duration, nolimit bool) (*Message, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.dir != DirRecv {
		return nil, newError(ConnectionError, nil, "comm %s is not a receiving comm", c.name)
	}
	if ctx.Done() == nil {
		return c.recvOnce(ctx, timeout, nolimit)
	}
	deadline := deadlineFor(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		wait := recvSlice
		if !deadline.IsZero() {
			wait = min(wait, remaining(deadline))
		}
		msg, err := c.recvOnce(ctx, wait, nolimit)
		if !errors.Is(err, ErrTimeout) {
			return msg, err
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return nil, ErrTimeout
		}
	}
}

func (c *Comm) recvOnce(ctx context.Context, timeout time.Duration, nolimit bool) (*Message, error) {
	deadline := deadlineFor(timeout)
	for {
		chunk, err := c.transport.Recv(remaining(deadline))
		if err != nil {
			if errors.Is(err, io.EOF) && c.chunks > 0 {
				c.resetPartial()
				return nil, newError(ConnectionError, err, "comm %s: peer closed mid-message", c.name)
			}
			return nil, err
		}
		if c.chunks == 0 && bytes.Equal(chunk, eofSentinel) {
			slog.Debug("comm: received EOF", "name", c.name)
			c.reportEOF(ctx)
			return nil, io.EOF
		}
		c.partial = append(c.partial, chunk...)
		c.chunks++
		slog.Log(ctx, LevelTrace, "comm: received chunk", "name", c.name, "index", c.chunks-1, "size", len(chunk))
		if nolimit || len(chunk) < c.maxSize {
			break
		}
	}

	raw, chunks := c.partial, c.chunks
	c.resetPartial()
	stats := &MessageStatistics{Chunks: int64(chunks), Bytes: int64(len(raw))}
	return c.decode(ctx, raw, stats)
}

func (c *Comm) resetPartial() {
	c.partial = nil
	c.chunks = 0
}

func (c *Comm) reportEOF(ctx context.Context) {
	info := MessageInfo{Comm: c.name, Direction: DirRecv, Kind: KindEOF}
	ctx, token, active := hookStart(ctx, c.hook, info)
	if active {
		hookEnd(ctx, c.hook, token, info, &MessageStatistics{Chunks: 1, Bytes: int64(len(eofSentinel))}, nil)
	}
}

// decode parses the header of a reassembled message and decodes its body.
func (c *Comm) decode(ctx context.Context, raw []byte, stats *MessageStatistics) (_ *Message, err error) {
	h, body, hasHeader, err := datatype.ParseHeader(raw)
	if err != nil {
		return nil, err
	}

	info := MessageInfo{Comm: c.name, Direction: DirRecv, Kind: KindData, MessageID: h.ID, Metadata: h.Meta}
	if kind := h.Meta[MetaKind]; kind != "" {
		info.Kind = kind
	}
	ctx, token, active := hookStart(ctx, c.hook, info)
	if active {
		defer func() { hookEnd(ctx, c.hook, token, info, stats, err) }()
	}

	msg := &Message{Header: h, HasHeader: hasHeader}
	if h.Checksum != "" && checksum(body) != h.Checksum {
		return msg, &Error{Type: datatype.ValueError, Message: fmt.Sprintf("comm %s: checksum mismatch for message %q", c.name, h.ID)}
	}
	if h.Compression != "" {
		tag, err := ParseCompressionTag(h.Compression)
		if err != nil {
			return msg, &Error{Type: datatype.ValueError, Message: fmt.Sprintf("comm %s", c.name), Err: err}
		}
		body, err = decompressBody(body, tag, h.RawSize)
		if err != nil {
			return msg, &Error{Type: datatype.ValueError, Message: fmt.Sprintf("comm %s", c.name), Err: err}
		}
	}
	stats.PayloadBytes = int64(len(body))

	if h.Error != "" {
		return msg, newError(RemoteError, nil, "%s", h.Error)
	}

	switch {
	case h.Datatype != nil:
		msg.Value, err = c.registry.Decode(body, h.Datatype)
	case !hasHeader && c.def != nil:
		msg.Value, err = c.registry.Decode(body, c.def)
	default:
		if body == nil {
			body = []byte{}
		}
		msg.Value = body
	}
	if err != nil {
		return msg, err
	}
	slog.Debug("comm: received message", "name", c.name, "id", h.ID, "size", len(raw), "chunks", stats.Chunks)
	return msg, nil
}

// Close releases the transport. It does not send EOF. Close is
// idempotent.
func (c *Comm) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if len(c.partial) > 0 {
		slog.Debug("comm: discarding partial message", "name", c.name, "chunks", c.chunks)
	}
	c.resetPartial()
	slog.Debug("comm: closed", "name", c.name)
	return c.transport.Close()
}
