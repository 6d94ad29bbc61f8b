// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"encoding/binary"
	"math"
	"reflect"
	"strconv"
	"unicode/utf8"
)

type nullCodec struct{}

func (nullCodec) Encode(_ *Registry, v any, def Definition) ([]byte, Definition, error) {
	if v != nil {
		return nil, nil, newError(ValueError, "null type cannot hold %T", v)
	}
	return []byte{}, def.Clone(), nil
}

func (nullCodec) Decode(_ *Registry, data []byte, _ Definition) (any, error) {
	if len(data) != 0 {
		return nil, newError(ValueError, "null body must be empty, got %d bytes", len(data))
	}
	return nil, nil
}

func (nullCodec) Infer(_ *Registry, v any) (Definition, bool) {
	if v == nil {
		return Definition{PropType: TypeNull}, true
	}
	return nil, false
}

type booleanCodec struct{}

func (booleanCodec) Encode(_ *Registry, v any, def Definition) ([]byte, Definition, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, nil, newError(ValueError, "boolean type cannot hold %T", v)
	}
	if b {
		return []byte{1}, def.Clone(), nil
	}
	return []byte{0}, def.Clone(), nil
}

func (booleanCodec) Decode(_ *Registry, data []byte, _ Definition) (any, error) {
	if len(data) != 1 {
		return nil, newError(ValueError, "boolean body must be 1 byte, got %d", len(data))
	}
	return data[0] != 0, nil
}

func (booleanCodec) Infer(_ *Registry, v any) (Definition, bool) {
	if _, ok := v.(bool); ok {
		return Definition{PropType: TypeBoolean}, true
	}
	return nil, false
}

// scalarCodec handles every scalar subtype. Numbers are little-endian at
// the width named by precision.
type scalarCodec struct{}

func defaultPrecision(subtype string) int {
	switch subtype {
	case TypeInt, TypeUint, TypeFloat:
		return 64
	case TypeComplex:
		return 128
	default:
		return 0
	}
}

func validPrecision(subtype string, p int) bool {
	switch subtype {
	case TypeInt, TypeUint:
		return p == 8 || p == 16 || p == 32 || p == 64
	case TypeFloat:
		return p == 32 || p == 64
	case TypeComplex:
		return p == 64 || p == 128
	default:
		return true
	}
}

// numericSpec reads subtype and precision from a normalized definition.
func numericSpec(def Definition) (string, int, error) {
	subtype, _ := def[PropSubtype].(string)
	p, ok := def.Int(PropPrecision)
	if _, present := def[PropPrecision]; present && !ok {
		return "", 0, newError(TypeError, "precision must be an integer, got %v", def[PropPrecision])
	}
	if !ok {
		p = defaultPrecision(subtype)
	}
	if !validPrecision(subtype, p) {
		return "", 0, newError(TypeError, "precision %d is not valid for %s", p, subtype)
	}
	return subtype, p, nil
}

func (c scalarCodec) Encode(r *Registry, v any, def Definition) ([]byte, Definition, error) {
	if _, ok := def[PropSubtype]; !ok {
		inferred, ok := c.Infer(r, v)
		if !ok {
			return nil, nil, newError(ValueError, "scalar type cannot hold %T", v)
		}
		merged := r.normalize(inferred)
		for k, x := range def {
			if k != PropType {
				merged[k] = x
			}
		}
		def = merged
	}
	subtype, p, err := numericSpec(def)
	if err != nil {
		return nil, nil, err
	}
	meta := def.Clone()
	if p > 0 {
		meta[PropPrecision] = p
	}

	switch subtype {
	case TypeInt:
		n, ok := toInt64(v)
		if !ok {
			return nil, nil, newError(ValueError, "int type cannot hold %T", v)
		}
		if p < 64 && (n < -(1<<(p-1)) || n > (1<<(p-1))-1) {
			return nil, nil, newError(ValueError, "%d overflows int%d", n, p)
		}
		return appendUint(nil, uint64(n), p), meta, nil
	case TypeUint:
		n, ok := toUint64(v)
		if !ok {
			return nil, nil, newError(ValueError, "uint type cannot hold %v (%T)", v, v)
		}
		if p < 64 && n > (1<<p)-1 {
			return nil, nil, newError(ValueError, "%d overflows uint%d", n, p)
		}
		return appendUint(nil, n, p), meta, nil
	case TypeFloat:
		f, ok := toFloat64(v)
		if !ok {
			return nil, nil, newError(ValueError, "float type cannot hold %T", v)
		}
		return appendFloat(nil, f, p), meta, nil
	case TypeComplex:
		z, ok := toComplex128(v)
		if !ok {
			return nil, nil, newError(ValueError, "complex type cannot hold %T", v)
		}
		out := appendFloat(nil, real(z), p/2)
		return appendFloat(out, imag(z), p/2), meta, nil
	case TypeBytes:
		switch b := v.(type) {
		case []byte:
			return append([]byte(nil), b...), meta, nil
		case string:
			return []byte(b), meta, nil
		}
		return nil, nil, newError(ValueError, "bytes type cannot hold %T", v)
	case TypeUnicode:
		var s string
		switch b := v.(type) {
		case string:
			s = b
		case []byte:
			s = string(b)
		default:
			rv := reflect.ValueOf(v)
			if rv.Kind() != reflect.String {
				return nil, nil, newError(ValueError, "unicode type cannot hold %T", v)
			}
			s = rv.String()
		}
		if !utf8.ValidString(s) {
			return nil, nil, newError(ValueError, "unicode value is not valid UTF-8")
		}
		return []byte(s), meta, nil
	default:
		return nil, nil, newError(TypeError, "unknown scalar subtype %q", subtype)
	}
}

func (scalarCodec) Decode(_ *Registry, data []byte, meta Definition) (any, error) {
	subtype, p, err := numericSpec(meta)
	if err != nil {
		return nil, err
	}
	switch subtype {
	case TypeInt, TypeUint, TypeFloat, TypeComplex:
		if len(data) != p/8 {
			return nil, newError(ValueError, "%s%d body must be %d bytes, got %d", subtype, p, p/8, len(data))
		}
	}
	switch subtype {
	case TypeInt:
		return signedOf(readUint(data, p), p), nil
	case TypeUint:
		return unsignedOf(readUint(data, p), p), nil
	case TypeFloat:
		if p == 32 {
			return math.Float32frombits(binary.LittleEndian.Uint32(data)), nil
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
	case TypeComplex:
		if p == 64 {
			re := math.Float32frombits(binary.LittleEndian.Uint32(data[:4]))
			im := math.Float32frombits(binary.LittleEndian.Uint32(data[4:]))
			return complex(re, im), nil
		}
		re := math.Float64frombits(binary.LittleEndian.Uint64(data[:8]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(data[8:]))
		return complex(re, im), nil
	case TypeBytes:
		return append([]byte{}, data...), nil
	case TypeUnicode:
		if !utf8.Valid(data) {
			return nil, newError(ValueError, "unicode body is not valid UTF-8")
		}
		return string(data), nil
	default:
		return nil, newError(TypeError, "unknown scalar subtype %q", subtype)
	}
}

func (scalarCodec) Infer(_ *Registry, v any) (Definition, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int:
		return Definition{PropType: TypeInt, PropPrecision: strconv.IntSize}, true
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Definition{PropType: TypeInt, PropPrecision: rv.Type().Bits()}, true
	case reflect.Uint:
		return Definition{PropType: TypeUint, PropPrecision: strconv.IntSize}, true
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Definition{PropType: TypeUint, PropPrecision: rv.Type().Bits()}, true
	case reflect.Float32, reflect.Float64:
		return Definition{PropType: TypeFloat, PropPrecision: rv.Type().Bits()}, true
	case reflect.Complex64, reflect.Complex128:
		return Definition{PropType: TypeComplex, PropPrecision: rv.Type().Bits()}, true
	case reflect.String:
		return Definition{PropType: TypeUnicode}, true
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Definition{PropType: TypeBytes}, true
		}
	}
	return nil, false
}

func appendUint(b []byte, n uint64, bits int) []byte {
	switch bits {
	case 8:
		return append(b, byte(n))
	case 16:
		return binary.LittleEndian.AppendUint16(b, uint16(n))
	case 32:
		return binary.LittleEndian.AppendUint32(b, uint32(n))
	default:
		return binary.LittleEndian.AppendUint64(b, n)
	}
}

func readUint(b []byte, bits int) uint64 {
	switch bits {
	case 8:
		return uint64(b[0])
	case 16:
		return uint64(binary.LittleEndian.Uint16(b))
	case 32:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func appendFloat(b []byte, f float64, bits int) []byte {
	if bits == 32 {
		return binary.LittleEndian.AppendUint32(b, math.Float32bits(float32(f)))
	}
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(f))
}

func signedOf(n uint64, bits int) any {
	switch bits {
	case 8:
		return int8(n)
	case 16:
		return int16(n)
	case 32:
		return int32(n)
	default:
		return int64(n)
	}
}

func unsignedOf(n uint64, bits int) any {
	switch bits {
	case 8:
		return uint8(n)
	case 16:
		return uint16(n)
	case 32:
		return uint32(n)
	default:
		return n
	}
}

// Numeric conversion helpers. Named types are accepted through reflection.

func toInt64(v any) (int64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}

func toFloat64(v any) (float64, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	}
	return 0, false
}

func toComplex128(v any) (complex128, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Complex64 || rv.Kind() == reflect.Complex128 {
		return rv.Complex(), true
	}
	f, ok := toFloat64(v)
	return complex(f, 0), ok
}
