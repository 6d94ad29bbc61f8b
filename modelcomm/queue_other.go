// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

//go:build !(linux && (amd64 || arm64 || riscv64 || loong64))

package modelcomm

// The queue backend is not registered on this platform; selecting it
// fails in NewTransport.

// CreateQueue is unsupported on this platform.
func CreateQueue(uint32) (int, error) {
	return 0, newError(ConnectionError, nil, "message queues are not supported on this platform")
}

// RemoveQueue is unsupported on this platform.
func RemoveQueue(int) error {
	return newError(ConnectionError, nil, "message queues are not supported on this platform")
}
