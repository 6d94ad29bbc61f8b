// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package conformance

import (
	_ "embed"
	"fmt"

	"github.com/Query-farm/modelcomm/modelcomm/datatype"
)

//go:embed schema.yaml
var schemaYAML []byte

// RegisterTypes adds the conformance schema types to r and returns their
// names.
func RegisterTypes(r *datatype.Registry) ([]string, error) {
	names, err := r.LoadSchema(schemaYAML, "yaml")
	if err != nil {
		return names, fmt.Errorf("conformance schema: %w", err)
	}
	return names, nil
}

// NewRegistry returns a registry holding the built-in types and the
// conformance schema types. It panics if the embedded schema is invalid.
func NewRegistry() *datatype.Registry {
	r := datatype.NewRegistry()
	if _, err := RegisterTypes(r); err != nil {
		panic(err)
	}
	return r
}
