// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"fmt"
	"strings"
)

// Row is one table row: one value per format field.
type Row []any

// Table is a whole table sent as one message (as_array tables).
type Table struct {
	Names []string
	Units []string
	Rows  []Row
}

// NumColumns returns the width of the first row, or the number of names
// when the table is empty.
func (t Table) NumColumns() int {
	if len(t.Rows) > 0 {
		return len(t.Rows[0])
	}
	return len(t.Names)
}

// Column returns the values of column i.
func (t Table) Column(i int) []any {
	out := make([]any, len(t.Rows))
	for r, row := range t.Rows {
		out[r] = row[i]
	}
	return out
}

// FormatForRow derives a format string for a row from its Go values:
// tab separated, newline terminated.
func FormatForRow(row []any) (string, error) {
	parts := make([]string, len(row))
	for i, v := range row {
		switch {
		case isKind(v, kindInt):
			parts[i] = "%" + lengthFor(v) + "d"
		case isKind(v, kindUint):
			parts[i] = "%" + lengthFor(v) + "u"
		case isKind(v, kindFloat):
			parts[i] = "%g"
		case isKind(v, kindComplex):
			parts[i] = "%g%+gj"
		case isKind(v, kindString):
			parts[i] = "%s"
		default:
			return "", newError(MetaschemaTypeError, "no format conversion for %T", v)
		}
	}
	return strings.Join(parts, "\t") + "\n", nil
}

func isKind(v any, k fieldKind) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64:
		return k == kindInt
	case uint, uint8, uint16, uint32, uint64:
		return k == kindUint
	case float32, float64:
		return k == kindFloat
	case complex64, complex128:
		return k == kindComplex
	case string, []byte:
		return k == kindString
	}
	return false
}

func lengthFor(v any) string {
	switch v.(type) {
	case int8, uint8:
		return "hh"
	case int16, uint16:
		return "h"
	case int32, uint32:
		return ""
	default:
		return "l"
	}
}

// TableDefinition returns the definition of a table whose rows follow
// format.
func TableDefinition(format string) Definition {
	return Definition{PropType: TypeTable, PropFormatStr: format}
}

type tableCodec struct{}

func tableFormat(r *Registry, def Definition) (*RowFormat, error) {
	format, _ := def[PropFormatStr].(string)
	if format == "" {
		return nil, newError(RuntimeError, "table definition has no format string")
	}
	rf, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	if err := rf.checkItems(r, def[PropItems]); err != nil {
		return nil, err
	}
	return rf, nil
}

func (tableCodec) Encode(r *Registry, v any, def Definition) ([]byte, Definition, error) {
	rf, err := tableFormat(r, def)
	if err != nil {
		return nil, nil, err
	}
	meta := def.Clone()
	meta[PropItems] = rf.Items()

	switch t := v.(type) {
	case Table:
		var b strings.Builder
		for i, row := range t.Rows {
			line, err := rf.Render(row)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d: %w", i, err)
			}
			b.WriteString(line)
		}
		meta[PropAsArray] = true
		if len(t.Names) > 0 {
			meta[PropFieldNames] = append([]string(nil), t.Names...)
		}
		if len(t.Units) > 0 {
			meta[PropFieldUnits] = append([]string(nil), t.Units...)
		}
		return []byte(b.String()), meta, nil
	case *Table:
		return tableCodec{}.Encode(r, *t, def)
	}

	if def.Bool(PropAsArray) {
		return nil, nil, newError(RuntimeError, "as_array table cannot hold %T", v)
	}
	row, ok := sliceItems(v)
	if !ok {
		return nil, nil, newError(RuntimeError, "table row cannot be built from %T", v)
	}
	line, err := rf.Render(row)
	if err != nil {
		return nil, nil, err
	}
	return []byte(line), meta, nil
}

func (tableCodec) Decode(r *Registry, data []byte, meta Definition) (any, error) {
	rf, err := tableFormat(r, meta)
	if err != nil {
		return nil, err
	}
	text := string(data)
	if !meta.Bool(PropAsArray) {
		row, _, err := rf.Scan(text)
		if err != nil {
			return nil, err
		}
		return Row(row), nil
	}

	t := Table{Names: meta.Strings(PropFieldNames), Units: meta.Strings(PropFieldUnits)}
	for strings.TrimSpace(text) != "" {
		row, n, err := rf.Scan(text)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(t.Rows), err)
		}
		if n == 0 {
			return nil, newError(ValueError, "format %q consumed no input", rf.String())
		}
		t.Rows = append(t.Rows, Row(row))
		text = text[n:]
	}
	return t, nil
}

func (tableCodec) Infer(_ *Registry, v any) (Definition, bool) {
	switch t := v.(type) {
	case Row:
		format, err := FormatForRow(t)
		if err != nil {
			return nil, false
		}
		return Definition{PropType: TypeTable, PropFormatStr: format}, true
	case Table:
		if len(t.Rows) == 0 {
			return nil, false
		}
		format, err := FormatForRow(t.Rows[0])
		if err != nil {
			return nil, false
		}
		def := Definition{PropType: TypeTable, PropFormatStr: format, PropAsArray: true}
		if len(t.Names) > 0 {
			def[PropFieldNames] = append([]string(nil), t.Names...)
		}
		return def, true
	}
	return nil, false
}
