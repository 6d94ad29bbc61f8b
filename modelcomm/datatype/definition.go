// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// Definition is a type definition: a mapping from property names to
// values, keyed by "type". Definitions decoded from JSON or YAML carry
// float64 or int numbers interchangeably; the accessors below accept both.
type Definition map[string]any

// Well-known property names.
const (
	PropType        = "type"
	PropSubtype     = "subtype"
	PropPrecision   = "precision"
	PropUnits       = "units"
	PropLength      = "length"
	PropShape       = "shape"
	PropItems       = "items"
	PropProperties  = "properties"
	PropDefinitions = "definitions"
	PropRef         = "$ref"
	PropFormatStr   = "format_str"
	PropFieldNames  = "field_names"
	PropFieldUnits  = "field_units"
	PropAsArray     = "as_array"
	PropTitle       = "title"
	PropDescription = "description"
)

// commonProperties are recognized by every type class.
var commonProperties = []string{PropType, PropTitle, PropDescription, PropRef, PropDefinitions}

// Property describes one entry of the property vocabulary. A property with
// a default is treated as present with that value when compared against a
// definition that omits it.
type Property struct {
	Name        string
	Description string
	Default     any
	HasDefault  bool
}

func builtinProperties() []Property {
	return []Property{
		{Name: PropType, Description: "type class name"},
		{Name: PropSubtype, Description: "scalar kind: int, uint, float, complex, bytes or unicode"},
		{Name: PropPrecision, Description: "width in bits"},
		{Name: PropUnits, Description: "physical units", Default: "", HasDefault: true},
		{Name: PropLength, Description: "number of elements"},
		{Name: PropShape, Description: "array dimensions"},
		{Name: PropItems, Description: "element definitions"},
		{Name: PropProperties, Description: "member definitions"},
		{Name: PropDefinitions, Description: "local definitions for $ref"},
		{Name: PropRef, Description: "reference into local definitions"},
		{Name: PropFormatStr, Description: "printf-style row format"},
		{Name: PropFieldNames, Description: "column names"},
		{Name: PropFieldUnits, Description: "column units"},
		{Name: PropAsArray, Description: "whole table per message", Default: false, HasDefault: true},
		{Name: PropTitle, Description: "short label", Default: "", HasDefault: true},
		{Name: PropDescription, Description: "free text", Default: "", HasDefault: true},
	}
}

// Type returns the type class name, or "" when the definition has none.
func (d Definition) Type() string {
	s, _ := d[PropType].(string)
	return s
}

// String renders the definition as JSON.
func (d Definition) String() string {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(d))
	}
	return string(data)
}

// Clone returns a deep copy of the definition.
func (d Definition) Clone() Definition {
	if d == nil {
		return nil
	}
	return cloneValue(d).(Definition)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case Definition:
		out := make(Definition, len(val))
		for k, x := range val {
			out[k] = cloneValue(x)
		}
		return out
	case map[string]any:
		out := make(Definition, len(val))
		for k, x := range val {
			out[k] = cloneValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = cloneValue(x)
		}
		return out
	case []Definition:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	case []int:
		return append([]int(nil), val...)
	default:
		return v
	}
}

// asDefinition converts a nested mapping into a Definition.
func asDefinition(v any) (Definition, bool) {
	switch d := v.(type) {
	case Definition:
		return d, true
	case map[string]any:
		return Definition(d), true
	default:
		return nil, false
	}
}

// Int returns an integer property.
func (d Definition) Int(name string) (int, bool) {
	return asInt(d[name])
}

// Bool returns a boolean property.
func (d Definition) Bool(name string) bool {
	b, _ := d[name].(bool)
	return b
}

// Strings returns a list-of-strings property such as field_names.
func (d Definition) Strings(name string) []string {
	switch v := d[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, len(v))
		for i, x := range v {
			out[i] = fmt.Sprint(x)
		}
		return out
	default:
		return nil
	}
}

// Ints returns a list-of-integers property such as shape.
func (d Definition) Ints(name string) ([]int, bool) {
	switch v := d[name].(type) {
	case []int:
		return v, true
	case []any:
		out := make([]int, len(v))
		for i, x := range v {
			n, ok := asInt(x)
			if !ok {
				return nil, false
			}
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		if float32(int(n)) == n {
			return int(n), true
		}
	case float64:
		if math.Trunc(n) == n {
			return int(n), true
		}
	}
	return 0, false
}

// valuesEqual compares property values after normalizing numbers, so a
// precision read from JSON (float64) equals one written in Go (int).
func valuesEqual(a, b any) bool {
	return reflect.DeepEqual(normalizeValue(a), normalizeValue(b))
}

func normalizeValue(v any) any {
	if n, ok := asInt(v); ok {
		return float64(n)
	}
	switch val := v.(type) {
	case float32:
		return float64(val)
	case Definition:
		return normalizeValue(map[string]any(val))
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, x := range val {
			out[k] = normalizeValue(x)
		}
		return out
	case []Definition:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalizeValue(x)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = normalizeValue(x)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = x
		}
		return out
	case []int:
		out := make([]any, len(val))
		for i, x := range val {
			out[i] = float64(x)
		}
		return out
	}
	return v
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
