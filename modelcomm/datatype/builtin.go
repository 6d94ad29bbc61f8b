// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

// Built-in class names.
const (
	TypeNull       = "null"
	TypeBoolean    = "boolean"
	TypeScalar     = "scalar"
	TypeInt        = "int"
	TypeUint       = "uint"
	TypeFloat      = "float"
	TypeComplex    = "complex"
	TypeBytes      = "bytes"
	TypeUnicode    = "unicode"
	Type1DArray    = "1darray"
	TypeNDArray    = "ndarray"
	TypeArray      = "array"
	TypeObject     = "object"
	TypeTable      = "table"
	TypeArrowTable = "arrowtable"
)

// builtinClasses is ordered: InferFromValue asks each class in turn.
func builtinClasses() []*TypeClass {
	numeric := []string{PropSubtype, PropPrecision, PropUnits}
	return []*TypeClass{
		{Name: TypeNull, Description: "absence of a value", Codec: nullCodec{}},
		{Name: TypeBoolean, Description: "true or false", Codec: booleanCodec{}},
		{Name: TypeScalar, Description: "single number or string", Properties: numeric, Codec: scalarCodec{}},
		{Name: TypeInt, Description: "signed integer", Base: TypeScalar, Subtype: TypeInt},
		{Name: TypeUint, Description: "unsigned integer", Base: TypeScalar, Subtype: TypeUint},
		{Name: TypeFloat, Description: "floating point number", Base: TypeScalar, Subtype: TypeFloat},
		{Name: TypeComplex, Description: "complex number", Base: TypeScalar, Subtype: TypeComplex},
		{Name: TypeBytes, Description: "raw bytes", Base: TypeScalar, Subtype: TypeBytes},
		{Name: TypeUnicode, Description: "UTF-8 text", Base: TypeScalar, Subtype: TypeUnicode},
		{Name: Type1DArray, Description: "homogeneous numeric vector", Properties: append(numeric, PropLength), Codec: vectorCodec{}},
		{Name: TypeNDArray, Description: "homogeneous numeric array with a shape", Properties: append(numeric, PropShape), Codec: ndarrayCodec{}},
		{Name: TypeArray, Description: "ordered heterogeneous items", Properties: []string{PropItems, PropLength}, Codec: listCodec{}},
		{Name: TypeObject, Description: "named members", Properties: []string{PropProperties}, Codec: objectCodec{}},
		{Name: TypeTable, Description: "rows rendered through a format string",
			Properties: []string{PropFormatStr, PropItems, PropFieldNames, PropFieldUnits, PropAsArray}, Codec: tableCodec{}},
		{Name: TypeArrowTable, Description: "table carried as an Arrow IPC stream",
			Properties: []string{PropItems, PropFieldNames, PropFieldUnits, PropAsArray}, Codec: arrowTableCodec{}},
	}
}
