// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Container bodies are CBOR in Core Deterministic Encoding: an array of
// member bodies for array, a map of member bodies for object. Equal
// values therefore always produce identical bytes.
var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("datatype: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("datatype: CBOR decoder initialization failed: " + err.Error())
	}
}

// sliceItems returns the elements of any slice or array except []byte.
func sliceItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// itemDefinition picks the definition for element i from an items
// property that is either a list (fixed arity) or a single definition.
func itemDefinition(items any, i, n int) (Definition, error) {
	switch it := items.(type) {
	case nil:
		return nil, nil
	case []any:
		if len(it) != n {
			return nil, newError(ValueError, "definition has %d items, value has %d", len(it), n)
		}
		d, ok := asDefinition(it[i])
		if !ok {
			return nil, newError(TypeError, "item %d definition is %T", i, it[i])
		}
		return d, nil
	default:
		d, ok := asDefinition(it)
		if !ok {
			return nil, newError(TypeError, "items must be a definition or a list, got %T", items)
		}
		return d, nil
	}
}

type listCodec struct{}

func (listCodec) Encode(r *Registry, v any, def Definition) ([]byte, Definition, error) {
	items, ok := sliceItems(v)
	if !ok {
		return nil, nil, newError(ValueError, "array type cannot hold %T", v)
	}
	if want, ok := def.Int(PropLength); ok && want != len(items) {
		return nil, nil, newError(ValueError, "definition wants %d items, value has %d", want, len(items))
	}

	parts := make([][]byte, len(items))
	metas := make([]any, len(items))
	for i, item := range items {
		itemDef, err := itemDefinition(def[PropItems], i, len(items))
		if err != nil {
			return nil, nil, err
		}
		if itemDef == nil {
			if itemDef, err = r.InferFromValue(item); err != nil {
				return nil, nil, fmt.Errorf("item %d: %w", i, err)
			}
		}
		body, meta, err := r.Encode(item, itemDef)
		if err != nil {
			return nil, nil, fmt.Errorf("item %d: %w", i, err)
		}
		parts[i] = body
		metas[i] = meta
	}

	data, err := cborEnc.Marshal(parts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode array: %w", err)
	}
	meta := def.Clone()
	meta[PropItems] = metas
	return data, meta, nil
}

func (listCodec) Decode(r *Registry, data []byte, meta Definition) (any, error) {
	var parts [][]byte
	if err := cborDec.Unmarshal(data, &parts); err != nil {
		return nil, newError(ValueError, "array body: %v", err)
	}
	out := make([]any, len(parts))
	for i, part := range parts {
		itemDef, err := itemDefinition(meta[PropItems], i, len(parts))
		if err != nil {
			return nil, err
		}
		if itemDef == nil {
			return nil, newError(ValueError, "array metadata has no item definitions")
		}
		if out[i], err = r.Decode(part, itemDef); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}
	return out, nil
}

func (listCodec) Infer(r *Registry, v any) (Definition, bool) {
	items, ok := v.([]any)
	if !ok {
		return nil, false
	}
	defs := make([]any, len(items))
	for i, item := range items {
		d, err := r.InferFromValue(item)
		if err != nil {
			return nil, false
		}
		defs[i] = d
	}
	return Definition{PropType: TypeArray, PropItems: defs}, true
}

type objectCodec struct{}

func mapMembers(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}

func (objectCodec) Encode(r *Registry, v any, def Definition) ([]byte, Definition, error) {
	members, ok := mapMembers(v)
	if !ok {
		return nil, nil, newError(ValueError, "object type cannot hold %T", v)
	}
	props, _ := asDefinition(def[PropProperties])
	for name := range props {
		if _, ok := members[name]; !ok {
			return nil, nil, newError(ValueError, "object is missing member %q", name)
		}
	}

	parts := make(map[string][]byte, len(members))
	metas := make(Definition, len(members))
	for _, name := range sortedKeys(members) {
		var memberDef Definition
		if props != nil {
			d, ok := asDefinition(props[name])
			if !ok {
				return nil, nil, newError(ValueError, "object has unexpected member %q", name)
			}
			memberDef = d
		} else {
			d, err := r.InferFromValue(members[name])
			if err != nil {
				return nil, nil, fmt.Errorf("member %q: %w", name, err)
			}
			memberDef = d
		}
		body, meta, err := r.Encode(members[name], memberDef)
		if err != nil {
			return nil, nil, fmt.Errorf("member %q: %w", name, err)
		}
		parts[name] = body
		metas[name] = meta
	}

	data, err := cborEnc.Marshal(parts)
	if err != nil {
		return nil, nil, fmt.Errorf("encode object: %w", err)
	}
	meta := def.Clone()
	meta[PropProperties] = metas
	return data, meta, nil
}

func (objectCodec) Decode(r *Registry, data []byte, meta Definition) (any, error) {
	var parts map[string][]byte
	if err := cborDec.Unmarshal(data, &parts); err != nil {
		return nil, newError(ValueError, "object body: %v", err)
	}
	props, _ := asDefinition(meta[PropProperties])
	out := make(map[string]any, len(parts))
	for _, name := range sortedKeys(parts) {
		memberDef, ok := asDefinition(props[name])
		if !ok {
			return nil, newError(ValueError, "object metadata has no definition for %q", name)
		}
		v, err := r.Decode(parts[name], memberDef)
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", name, err)
		}
		out[name] = v
	}
	for name := range props {
		if _, ok := out[name]; !ok {
			return nil, newError(ValueError, "object body is missing member %q", name)
		}
	}
	return out, nil
}

func (objectCodec) Infer(r *Registry, v any) (Definition, bool) {
	members, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	props := make(Definition, len(members))
	for name, member := range members {
		d, err := r.InferFromValue(member)
		if err != nil {
			return nil, false
		}
		props[name] = d
	}
	return Definition{PropType: TypeObject, PropProperties: props}, true
}
