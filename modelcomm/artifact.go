// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"context"
	"maps"
	"slices"
)

// Artifact is a runnable model produced by a build layer outside this
// package: the executables to launch and the environment they need for
// their Comms to resolve.
type Artifact struct {
	Paths []string
	Env   map[string]string
}

// ArtifactBuilder produces an Artifact from a source identifier.
type ArtifactBuilder interface {
	Build(ctx context.Context, source string) (Artifact, error)
}

// ArtifactBuilderFunc adapts a function to ArtifactBuilder.
type ArtifactBuilderFunc func(ctx context.Context, source string) (Artifact, error)

// Build calls f.
func (f ArtifactBuilderFunc) Build(ctx context.Context, source string) (Artifact, error) {
	return f(ctx, source)
}

// ChannelEnv returns the variables that give channel name the input
// address in and the output address out. Empty addresses are omitted.
func ChannelEnv(name, in, out string) map[string]string {
	env := map[string]string{}
	if in != "" {
		env[name+SuffixIn] = in
	}
	if out != "" {
		env[name+SuffixOut] = out
	}
	return env
}

// Lookup resolves a variable against the artifact environment. Pass it to
// WithLookup so that Comms opened on behalf of the artifact find their
// addresses.
func (a Artifact) Lookup(key string) (string, bool) {
	v, ok := a.Env[key]
	return v, ok
}

// Environ returns the environment as sorted KEY=VALUE pairs appended to
// base, suitable for exec.Cmd.Env.
func (a Artifact) Environ(base []string) []string {
	out := slices.Clone(base)
	for _, k := range slices.Sorted(maps.Keys(a.Env)) {
		out = append(out, k+"="+a.Env[k])
	}
	return out
}
