// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"encoding/binary"
	"fmt"
	"strconv"
)

// NDArray is a homogeneous numeric array with a shape. Data holds the
// elements in row-major order as a typed slice ([]float64, []int32, ...).
type NDArray struct {
	Shape []int
	Data  any
}

// Len returns the number of elements implied by the shape.
func (a NDArray) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// packNumeric serializes a typed numeric slice.
func packNumeric(v any) (subtype string, precision int, data []byte, n int, err error) {
	switch s := v.(type) {
	case []int:
		if strconv.IntSize == 32 {
			conv := make([]int32, len(s))
			for i, x := range s {
				conv[i] = int32(x)
			}
			return packNumeric(conv)
		}
		conv := make([]int64, len(s))
		for i, x := range s {
			conv[i] = int64(x)
		}
		return packNumeric(conv)
	case []uint:
		conv := make([]uint64, len(s))
		for i, x := range s {
			conv[i] = uint64(x)
		}
		return packNumeric(conv)
	case []int8:
		subtype, precision, n = TypeInt, 8, len(s)
	case []int16:
		subtype, precision, n = TypeInt, 16, len(s)
	case []int32:
		subtype, precision, n = TypeInt, 32, len(s)
	case []int64:
		subtype, precision, n = TypeInt, 64, len(s)
	case []uint8:
		subtype, precision, n = TypeUint, 8, len(s)
	case []uint16:
		subtype, precision, n = TypeUint, 16, len(s)
	case []uint32:
		subtype, precision, n = TypeUint, 32, len(s)
	case []uint64:
		subtype, precision, n = TypeUint, 64, len(s)
	case []float32:
		subtype, precision, n = TypeFloat, 32, len(s)
	case []float64:
		subtype, precision, n = TypeFloat, 64, len(s)
	case []complex64:
		subtype, precision, n = TypeComplex, 64, len(s)
	case []complex128:
		subtype, precision, n = TypeComplex, 128, len(s)
	default:
		return "", 0, nil, 0, newError(ValueError, "not a numeric slice: %T", v)
	}
	data, err = binary.Append(make([]byte, 0, n*precision/8), binary.LittleEndian, v)
	if err != nil {
		return "", 0, nil, 0, fmt.Errorf("pack %T: %w", v, err)
	}
	return subtype, precision, data, n, nil
}

// unpackNumeric allocates a typed slice for subtype/precision and fills it
// from data.
func unpackNumeric(subtype string, precision int, data []byte) (any, int, error) {
	if precision <= 0 || precision%8 != 0 {
		return nil, 0, newError(TypeError, "invalid precision %d", precision)
	}
	size := precision / 8
	if len(data)%size != 0 {
		return nil, 0, newError(ValueError, "body of %d bytes is not a multiple of %d", len(data), size)
	}
	n := len(data) / size

	var out any
	switch {
	case subtype == TypeInt && precision == 8:
		out = make([]int8, n)
	case subtype == TypeInt && precision == 16:
		out = make([]int16, n)
	case subtype == TypeInt && precision == 32:
		out = make([]int32, n)
	case subtype == TypeInt && precision == 64:
		out = make([]int64, n)
	case subtype == TypeUint && precision == 8:
		out = make([]uint8, n)
	case subtype == TypeUint && precision == 16:
		out = make([]uint16, n)
	case subtype == TypeUint && precision == 32:
		out = make([]uint32, n)
	case subtype == TypeUint && precision == 64:
		out = make([]uint64, n)
	case subtype == TypeFloat && precision == 32:
		out = make([]float32, n)
	case subtype == TypeFloat && precision == 64:
		out = make([]float64, n)
	case subtype == TypeComplex && precision == 64:
		out = make([]complex64, n)
	case subtype == TypeComplex && precision == 128:
		out = make([]complex128, n)
	default:
		return nil, 0, newError(TypeError, "no array layout for %s%d", subtype, precision)
	}
	if _, err := binary.Decode(data, binary.LittleEndian, out); err != nil {
		return nil, 0, newError(ValueError, "unpack %s%d: %v", subtype, precision, err)
	}
	return out, n, nil
}

// checkElement verifies that an encoded vector agrees with the subtype and
// precision a definition asks for.
func checkElement(def Definition, subtype string, precision int) error {
	if want, ok := def[PropSubtype].(string); ok && want != subtype {
		return newError(ValueError, "definition wants %s elements, value has %s", want, subtype)
	}
	if want, ok := def.Int(PropPrecision); ok && want != precision {
		return newError(ValueError, "definition wants precision %d, value has %d", want, precision)
	}
	return nil
}

type vectorCodec struct{}

func (vectorCodec) Encode(_ *Registry, v any, def Definition) ([]byte, Definition, error) {
	subtype, precision, data, n, err := packNumeric(v)
	if err != nil {
		return nil, nil, err
	}
	if err := checkElement(def, subtype, precision); err != nil {
		return nil, nil, err
	}
	if want, ok := def.Int(PropLength); ok && want != n {
		return nil, nil, newError(ValueError, "definition wants length %d, value has %d", want, n)
	}
	meta := def.Clone()
	meta[PropSubtype] = subtype
	meta[PropPrecision] = precision
	meta[PropLength] = n
	return data, meta, nil
}

func (vectorCodec) Decode(_ *Registry, data []byte, meta Definition) (any, error) {
	subtype, precision, err := numericSpec(meta)
	if err != nil {
		return nil, err
	}
	out, n, err := unpackNumeric(subtype, precision, data)
	if err != nil {
		return nil, err
	}
	if want, ok := meta.Int(PropLength); ok && want != n {
		return nil, newError(ValueError, "expected %d elements, body holds %d", want, n)
	}
	return out, nil
}

func (vectorCodec) Infer(_ *Registry, v any) (Definition, bool) {
	subtype, precision, _, n, err := packNumeric(v)
	if err != nil {
		return nil, false
	}
	return Definition{PropType: Type1DArray, PropSubtype: subtype, PropPrecision: precision, PropLength: n}, true
}

type ndarrayCodec struct{}

func (ndarrayCodec) Encode(_ *Registry, v any, def Definition) ([]byte, Definition, error) {
	var arr NDArray
	switch a := v.(type) {
	case NDArray:
		arr = a
	case *NDArray:
		if a == nil {
			return nil, nil, newError(ValueError, "nil ndarray")
		}
		arr = *a
	default:
		return nil, nil, newError(ValueError, "ndarray type cannot hold %T", v)
	}
	subtype, precision, data, n, err := packNumeric(arr.Data)
	if err != nil {
		return nil, nil, err
	}
	if err := checkElement(def, subtype, precision); err != nil {
		return nil, nil, err
	}
	if n != arr.Len() {
		return nil, nil, newError(ValueError, "shape %v needs %d elements, data has %d", arr.Shape, arr.Len(), n)
	}
	if want, ok := def.Ints(PropShape); ok && !valuesEqual(want, arr.Shape) {
		return nil, nil, newError(ValueError, "definition wants shape %v, value has %v", want, arr.Shape)
	}
	meta := def.Clone()
	meta[PropSubtype] = subtype
	meta[PropPrecision] = precision
	meta[PropShape] = append([]int(nil), arr.Shape...)
	return data, meta, nil
}

func (ndarrayCodec) Decode(_ *Registry, data []byte, meta Definition) (any, error) {
	subtype, precision, err := numericSpec(meta)
	if err != nil {
		return nil, err
	}
	shape, ok := meta.Ints(PropShape)
	if !ok {
		return nil, newError(ValueError, "ndarray metadata has no shape")
	}
	out, n, err := unpackNumeric(subtype, precision, data)
	if err != nil {
		return nil, err
	}
	arr := NDArray{Shape: append([]int(nil), shape...), Data: out}
	if arr.Len() != n {
		return nil, newError(ValueError, "shape %v needs %d elements, body holds %d", shape, arr.Len(), n)
	}
	return arr, nil
}

func (ndarrayCodec) Infer(_ *Registry, v any) (Definition, bool) {
	arr, ok := v.(NDArray)
	if !ok {
		return nil, false
	}
	subtype, precision, _, n, err := packNumeric(arr.Data)
	if err != nil || n != arr.Len() {
		return nil, false
	}
	return Definition{
		PropType:      TypeNDArray,
		PropSubtype:   subtype,
		PropPrecision: precision,
		PropShape:     append([]int(nil), arr.Shape...),
	}, true
}
