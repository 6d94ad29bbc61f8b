// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Arrow IPC signatures recognized by InferFromBytes.
var (
	arrowStreamSignature = []byte{0xFF, 0xFF, 0xFF, 0xFF}
	arrowFileSignature   = []byte("ARROW1")
)

// metaUnits is the Arrow field metadata key carrying column units.
const metaUnits = "units"

// ArrowType maps a scalar definition to an Arrow data type.
func (r *Registry) ArrowType(def Definition) (arrow.DataType, error) {
	n := r.normalize(def)
	switch n.Type() {
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case TypeScalar:
	default:
		return nil, newError(TypeError, "no Arrow column type for %s", def.String())
	}
	subtype, p, err := numericSpec(n)
	if err != nil {
		return nil, err
	}
	switch subtype {
	case TypeInt:
		switch p {
		case 8:
			return arrow.PrimitiveTypes.Int8, nil
		case 16:
			return arrow.PrimitiveTypes.Int16, nil
		case 32:
			return arrow.PrimitiveTypes.Int32, nil
		default:
			return arrow.PrimitiveTypes.Int64, nil
		}
	case TypeUint:
		switch p {
		case 8:
			return arrow.PrimitiveTypes.Uint8, nil
		case 16:
			return arrow.PrimitiveTypes.Uint16, nil
		case 32:
			return arrow.PrimitiveTypes.Uint32, nil
		default:
			return arrow.PrimitiveTypes.Uint64, nil
		}
	case TypeFloat:
		if p == 32 {
			return arrow.PrimitiveTypes.Float32, nil
		}
		return arrow.PrimitiveTypes.Float64, nil
	case TypeUnicode:
		return arrow.BinaryTypes.String, nil
	case TypeBytes:
		return arrow.BinaryTypes.Binary, nil
	default:
		return nil, newError(TypeError, "no Arrow column type for %s", subtype)
	}
}

// definitionForArrow maps an Arrow data type back to a scalar definition.
func definitionForArrow(dt arrow.DataType) (Definition, error) {
	switch dt.ID() {
	case arrow.BOOL:
		return Definition{PropType: TypeBoolean}, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		return Definition{PropType: TypeInt, PropPrecision: dt.(arrow.FixedWidthDataType).BitWidth()}, nil
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		return Definition{PropType: TypeUint, PropPrecision: dt.(arrow.FixedWidthDataType).BitWidth()}, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return Definition{PropType: TypeFloat, PropPrecision: dt.(arrow.FixedWidthDataType).BitWidth()}, nil
	case arrow.STRING, arrow.LARGE_STRING:
		return Definition{PropType: TypeUnicode}, nil
	case arrow.BINARY, arrow.LARGE_BINARY:
		return Definition{PropType: TypeBytes}, nil
	default:
		return nil, newError(TypeError, "unsupported Arrow column type %v", dt)
	}
}

// ArrowSchema builds the Arrow schema for a table definition. Column types
// come from items; names from field_names, defaulting to f0, f1, ...
func (r *Registry) ArrowSchema(def Definition) (*arrow.Schema, error) {
	items, ok := def[PropItems].([]any)
	if !ok || len(items) == 0 {
		return nil, newError(TypeError, "table definition has no items")
	}
	names := def.Strings(PropFieldNames)
	units := def.Strings(PropFieldUnits)
	fields := make([]arrow.Field, len(items))
	for i, it := range items {
		d, ok := asDefinition(it)
		if !ok {
			return nil, newError(TypeError, "item %d definition is %T", i, it)
		}
		dt, err := r.ArrowType(d)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		name := fmt.Sprintf("f%d", i)
		if i < len(names) && names[i] != "" {
			name = names[i]
		}
		var md arrow.Metadata
		if i < len(units) && units[i] != "" {
			md = arrow.NewMetadata([]string{metaUnits}, []string{units[i]})
		}
		fields[i] = arrow.Field{Name: name, Type: dt, Metadata: md}
	}
	return arrow.NewSchema(fields, nil), nil
}

// tableDefinitionFromSchema reverses ArrowSchema.
func tableDefinitionFromSchema(schema *arrow.Schema) (Definition, error) {
	items := make([]any, schema.NumFields())
	names := make([]string, schema.NumFields())
	units := make([]string, schema.NumFields())
	hasUnits := false
	for i, f := range schema.Fields() {
		d, err := definitionForArrow(f.Type)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", f.Name, err)
		}
		items[i] = d
		names[i] = f.Name
		if idx := f.Metadata.FindKey(metaUnits); idx >= 0 {
			units[i] = f.Metadata.Values()[idx]
			hasUnits = true
		}
	}
	def := Definition{PropType: TypeArrowTable, PropItems: items, PropFieldNames: names, PropAsArray: true}
	if hasUnits {
		def[PropFieldUnits] = units
	}
	return def, nil
}

type arrowTableCodec struct{}

func (c arrowTableCodec) Encode(r *Registry, v any, def Definition) ([]byte, Definition, error) {
	var t Table
	switch val := v.(type) {
	case Table:
		t = val
	case *Table:
		t = *val
	case arrow.RecordBatch:
		return c.encodeBatch(val, def)
	default:
		return nil, nil, newError(ValueError, "arrowtable type cannot hold %T", v)
	}

	meta := def.Clone()
	meta[PropAsArray] = true
	if len(t.Names) > 0 {
		meta[PropFieldNames] = append([]string(nil), t.Names...)
	}
	if len(t.Units) > 0 {
		meta[PropFieldUnits] = append([]string(nil), t.Units...)
	}
	if _, ok := meta[PropItems]; !ok {
		if len(t.Rows) == 0 {
			return nil, nil, newError(ValueError, "cannot derive columns for an empty table without items")
		}
		items := make([]any, len(t.Rows[0]))
		for i, v := range t.Rows[0] {
			d, err := r.InferFromValue(v)
			if err != nil {
				return nil, nil, fmt.Errorf("column %d: %w", i, err)
			}
			items[i] = d
		}
		meta[PropItems] = items
	}

	schema, err := r.ArrowSchema(meta)
	if err != nil {
		return nil, nil, err
	}
	batch, err := buildRecordBatch(schema, t.Rows)
	if err != nil {
		return nil, nil, err
	}
	defer batch.Release()

	data, err := writeIPC(schema, batch)
	if err != nil {
		return nil, nil, err
	}
	return data, meta, nil
}

func (arrowTableCodec) encodeBatch(batch arrow.RecordBatch, def Definition) ([]byte, Definition, error) {
	meta, err := tableDefinitionFromSchema(batch.Schema())
	if err != nil {
		return nil, nil, err
	}
	for k, x := range def {
		if _, ok := meta[k]; !ok {
			meta[k] = x
		}
	}
	data, err := writeIPC(batch.Schema(), batch)
	if err != nil {
		return nil, nil, err
	}
	return data, meta, nil
}

func (arrowTableCodec) Decode(_ *Registry, data []byte, meta Definition) (any, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, newError(ValueError, "reading Arrow IPC: %v", err)
	}
	defer reader.Release()

	schema := reader.Schema()
	t := Table{Names: make([]string, schema.NumFields())}
	for i, f := range schema.Fields() {
		t.Names[i] = f.Name
	}
	if units := meta.Strings(PropFieldUnits); len(units) > 0 {
		t.Units = units
	}
	for reader.Next() {
		batch := reader.RecordBatch()
		for row := 0; row < int(batch.NumRows()); row++ {
			values := make(Row, batch.NumCols())
			for col := 0; col < int(batch.NumCols()); col++ {
				v, err := valueAt(batch.Column(col), row)
				if err != nil {
					return nil, fmt.Errorf("column %q: %w", schema.Field(col).Name, err)
				}
				values[col] = v
			}
			t.Rows = append(t.Rows, values)
		}
	}
	if err := reader.Err(); err != nil {
		return nil, newError(ValueError, "reading Arrow IPC: %v", err)
	}
	return t, nil
}

func (arrowTableCodec) Infer(_ *Registry, v any) (Definition, bool) {
	batch, ok := v.(arrow.RecordBatch)
	if !ok {
		return nil, false
	}
	def, err := tableDefinitionFromSchema(batch.Schema())
	if err != nil {
		return nil, false
	}
	return def, true
}

func writeIPC(schema *arrow.Schema, batch arrow.RecordBatch) ([]byte, error) {
	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema))
	if err := w.Write(batch); err != nil {
		return nil, fmt.Errorf("writing Arrow IPC: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing Arrow IPC writer: %w", err)
	}
	return buf.Bytes(), nil
}

// buildRecordBatch builds one record batch holding every row.
func buildRecordBatch(schema *arrow.Schema, rows []Row) (arrow.RecordBatch, error) {
	mem := memory.NewGoAllocator()
	cols := make([]arrow.Array, schema.NumFields())
	defer func() {
		for _, c := range cols {
			if c != nil {
				c.Release()
			}
		}
	}()

	for i, f := range schema.Fields() {
		b := array.NewBuilder(mem, f.Type)
		for r, row := range rows {
			if len(row) != len(cols) {
				b.Release()
				return nil, newError(ValueError, "row %d has %d values, table has %d columns", r, len(row), len(cols))
			}
			if err := appendToBuilder(b, f.Type, row[i]); err != nil {
				b.Release()
				return nil, fmt.Errorf("row %d column %q: %w", r, f.Name, err)
			}
		}
		cols[i] = b.NewArray()
		b.Release()
	}
	return array.NewRecordBatch(schema, cols, int64(len(rows))), nil
}

// appendToBuilder appends a single value to an Arrow array builder.
func appendToBuilder(b array.Builder, dt arrow.DataType, value any) error {
	if value == nil {
		b.AppendNull()
		return nil
	}
	switch dt.ID() {
	case arrow.BOOL:
		v, ok := value.(bool)
		if !ok {
			return newError(ValueError, "cannot store %T in a boolean column", value)
		}
		b.(*array.BooleanBuilder).Append(v)
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		v, ok := toInt64(value)
		if !ok {
			return newError(ValueError, "cannot store %T in an integer column", value)
		}
		switch bb := b.(type) {
		case *array.Int8Builder:
			bb.Append(int8(v))
		case *array.Int16Builder:
			bb.Append(int16(v))
		case *array.Int32Builder:
			bb.Append(int32(v))
		case *array.Int64Builder:
			bb.Append(v)
		}
	case arrow.UINT8, arrow.UINT16, arrow.UINT32, arrow.UINT64:
		v, ok := toUint64(value)
		if !ok {
			return newError(ValueError, "cannot store %v in an unsigned column", value)
		}
		switch bb := b.(type) {
		case *array.Uint8Builder:
			bb.Append(uint8(v))
		case *array.Uint16Builder:
			bb.Append(uint16(v))
		case *array.Uint32Builder:
			bb.Append(uint32(v))
		case *array.Uint64Builder:
			bb.Append(v)
		}
	case arrow.FLOAT32:
		v, ok := toFloat64(value)
		if !ok {
			return newError(ValueError, "cannot store %T in a float column", value)
		}
		b.(*array.Float32Builder).Append(float32(v))
	case arrow.FLOAT64:
		v, ok := toFloat64(value)
		if !ok {
			return newError(ValueError, "cannot store %T in a float column", value)
		}
		b.(*array.Float64Builder).Append(v)
	case arrow.STRING:
		switch v := value.(type) {
		case string:
			b.(*array.StringBuilder).Append(v)
		case []byte:
			b.(*array.StringBuilder).Append(string(v))
		default:
			return newError(ValueError, "cannot store %T in a string column", value)
		}
	case arrow.BINARY:
		switch v := value.(type) {
		case []byte:
			b.(*array.BinaryBuilder).Append(v)
		case string:
			b.(*array.BinaryBuilder).Append([]byte(v))
		default:
			return newError(ValueError, "cannot store %T in a binary column", value)
		}
	default:
		return newError(TypeError, "unsupported Arrow column type %v", dt)
	}
	return nil
}

// valueAt reads row idx of an Arrow column as a Go value.
func valueAt(col arrow.Array, idx int) (any, error) {
	if col.IsNull(idx) {
		return nil, nil
	}
	switch c := col.(type) {
	case *array.Boolean:
		return c.Value(idx), nil
	case *array.Int8:
		return c.Value(idx), nil
	case *array.Int16:
		return c.Value(idx), nil
	case *array.Int32:
		return c.Value(idx), nil
	case *array.Int64:
		return c.Value(idx), nil
	case *array.Uint8:
		return c.Value(idx), nil
	case *array.Uint16:
		return c.Value(idx), nil
	case *array.Uint32:
		return c.Value(idx), nil
	case *array.Uint64:
		return c.Value(idx), nil
	case *array.Float32:
		return c.Value(idx), nil
	case *array.Float64:
		return c.Value(idx), nil
	case *array.String:
		return c.Value(idx), nil
	case *array.Binary:
		return append([]byte(nil), c.Value(idx)...), nil
	default:
		return nil, newError(TypeError, "unsupported Arrow array type %T", col)
	}
}
