// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package modelcomm

import (
	"os"
	"strings"
)

// Address variable suffixes.
const (
	SuffixIn    = "_IN"
	SuffixInAlt = "_INT"
	SuffixOut   = "_OUT"
)

// AddressKeys returns the environment variables consulted, in order, for
// the address of channel name in direction dir.
func AddressKeys(name string, dir Direction) []string {
	if dir == DirRecv {
		return []string{name + SuffixIn, name + SuffixInAlt}
	}
	return []string{name + SuffixOut}
}

// ResolveAddress looks up the address of channel name. A nil lookup reads
// the process environment.
func ResolveAddress(name string, dir Direction, lookup func(string) (string, bool)) (string, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	keys := AddressKeys(name, dir)
	for _, key := range keys {
		if v, ok := lookup(key); ok && v != "" {
			return v, nil
		}
	}
	return "", newError(ConnectionError, nil, "no address for %s channel %q (set %s)", dir, name, strings.Join(keys, " or "))
}

func mapLookup(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}
