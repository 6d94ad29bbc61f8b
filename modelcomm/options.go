// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import "github.com/Query-farm/modelcomm/modelcomm/datatype"

// Option configures a Comm, an RPC or a table stream.
type Option func(*options)

type options struct {
	cfg       *Config
	lookup    func(string) (string, bool)
	address   string
	registry  *datatype.Registry
	hook      MessageHook
	maxSize   int
	transport Transport
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithConfig injects the transport configuration. Without it
// DefaultConfig is used; the environment is never consulted implicitly.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = &cfg }
}

// WithEnv resolves channel addresses against env instead of the process
// environment.
func WithEnv(env map[string]string) Option {
	return func(o *options) { o.lookup = mapLookup(env) }
}

// WithLookup resolves channel addresses through lookup.
func WithLookup(lookup func(string) (string, bool)) Option {
	return func(o *options) { o.lookup = lookup }
}

// WithAddress bypasses name resolution. For an RPC it applies to neither
// direction; use WithEnv there.
func WithAddress(address string) Option {
	return func(o *options) { o.address = address }
}

// WithRegistry sets the type registry used to resolve, encode and decode.
// The default is datatype.Default().
func WithRegistry(r *datatype.Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithHook installs a message hook.
func WithHook(h MessageHook) Option {
	return func(o *options) { o.hook = h }
}

// WithMaxMessageSize lowers the chunk limit below the transport's. Both
// ends of a channel must use the same limit.
func WithMaxMessageSize(n int) Option {
	return func(o *options) { o.maxSize = n }
}

// WithTransport uses t instead of creating one from the configuration.
// The Comm opens t and owns it from then on.
func WithTransport(t Transport) Option {
	return func(o *options) { o.transport = t }
}
