// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sensorSchemaYAML = `
properties:
  - name: sensor
    description: sensor identifier
types:
  - name: temperature
    base: float
    description: air temperature
    properties: [sensor]
  - name: counter
    base: uint
`

func TestLoadSchemaYAML(t *testing.T) {
	r := NewRegistry()
	names, err := r.LoadSchema([]byte(sensorSchemaYAML), "yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{"temperature", "counter"}, names)

	def, err := r.Resolve(map[string]any{"type": "temperature", "sensor": "t1", "units": "K"})
	require.NoError(t, err)
	assert.True(t, r.Compatible(Definition{PropType: "temperature"}, Definition{PropType: TypeFloat}))

	msg, err := r.EncodeMessage(293.15, def)
	require.NoError(t, err)
	v, err := r.DecodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, 293.15, v)

	_, err = r.Resolve(map[string]any{"type": TypeFloat, "sensor": "t1"})
	assert.ErrorIs(t, err, ErrInvalidProperty)

	_, err = r.LoadSchema([]byte(sensorSchemaYAML), "yaml")
	assert.ErrorIs(t, err, ErrDuplicateType)
}

func TestLoadSchemaJSONC(t *testing.T) {
	r := NewRegistry()
	doc := `{
		// derived integer type
		"types": [
			{"name": "pixel", "base": "uint", "description": "8-bit pixel",},
		],
	}`
	names, err := r.LoadSchema([]byte(doc), "json")
	require.NoError(t, err)
	assert.Equal(t, []string{"pixel"}, names)

	_, _, err = r.Encode(uint8(7), Definition{PropType: "pixel", PropPrecision: 8})
	assert.NoError(t, err)
}

func TestLoadSchemaErrors(t *testing.T) {
	r := NewRegistry()

	_, err := r.LoadSchema([]byte("types: [{name: orphan}]"), "yaml")
	assert.ErrorIs(t, err, ErrType)

	_, err = r.LoadSchema([]byte("types: [{name: bad, base: nothing}]"), "yaml")
	assert.ErrorIs(t, err, ErrType)

	_, err = r.LoadSchema([]byte("types: [{name: bad2, base: int, properties: [colour]}]"), "yaml")
	assert.ErrorIs(t, err, ErrInvalidProperty)

	_, err = r.LoadSchema([]byte("{"), "json")
	assert.ErrorIs(t, err, ErrType)

	_, err = r.LoadSchema(nil, "toml")
	assert.Error(t, err)
}

func TestLoadSchemaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sensorSchemaYAML), 0o644))

	r := NewRegistry()
	names, err := r.LoadSchemaFile(path)
	require.NoError(t, err)
	assert.Len(t, names, 2)

	_, err = r.LoadSchemaFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
