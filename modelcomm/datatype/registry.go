// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Codec converts values of one type class to message bodies and back.
// Implementations are pure; the registry is passed in so container codecs
// can recurse into member definitions.
type Codec interface {
	// Encode returns the body for v and the metadata needed to decode it.
	// def is already resolved and normalized.
	Encode(r *Registry, v any, def Definition) ([]byte, Definition, error)
	// Decode reverses Encode using the metadata it produced.
	Decode(r *Registry, data []byte, meta Definition) (any, error)
	// Infer returns a definition for v when v belongs to this class.
	Infer(r *Registry, v any) (Definition, bool)
}

// TypeClass is a registered kind of type. A class with a Base is an alias:
// "int" is "scalar" with subtype "int". Classes are immutable once
// registered.
type TypeClass struct {
	Name        string
	Description string
	Properties  []string
	Base        string
	Subtype     string
	Codec       Codec
}

// Registry holds the property vocabulary and the registered type classes.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	properties map[string]Property
	classes    map[string]*TypeClass
	order      []string
}

// NewRegistry creates a registry populated with the built-in properties and
// classes.
func NewRegistry() *Registry {
	r := newEmptyRegistry()
	for _, p := range builtinProperties() {
		if err := r.RegisterProperty(p); err != nil {
			panic(fmt.Sprintf("datatype: registering property %q: %v", p.Name, err))
		}
	}
	for _, c := range builtinClasses() {
		if err := r.Register(c); err != nil {
			panic(fmt.Sprintf("datatype: registering %q: %v", c.Name, err))
		}
	}
	return r
}

func newEmptyRegistry() *Registry {
	return &Registry{
		properties: make(map[string]Property),
		classes:    make(map[string]*TypeClass),
	}
}

var defaultRegistry = sync.OnceValue(NewRegistry)

// Default returns the process-wide registry shared by channels that are
// not given one explicitly.
func Default() *Registry {
	return defaultRegistry()
}

// RegisterProperty adds a property to the vocabulary.
func (r *Registry) RegisterProperty(p Property) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.properties[p.Name]; ok {
		return newError(DuplicateTypeError, "property %q already registered", p.Name)
	}
	r.properties[p.Name] = p
	return nil
}

// Register adds a type class. Aliases inherit the codec and properties of
// their base; an alias of an alias is flattened onto the final base.
func (r *Registry) Register(tc *TypeClass) error {
	if tc == nil || tc.Name == "" {
		return newError(TypeError, "type class must have a name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.classes[tc.Name]; ok {
		return newError(DuplicateTypeError, "type %q already registered", tc.Name)
	}

	cls := *tc
	props := slices.Clone(tc.Properties)
	if cls.Base != "" {
		base, ok := r.classes[cls.Base]
		if !ok {
			return newError(TypeError, "type %q: unknown base %q", cls.Name, cls.Base)
		}
		for _, p := range base.Properties {
			if !slices.Contains(props, p) {
				props = append(props, p)
			}
		}
		if base.Base != "" {
			if cls.Subtype == "" {
				cls.Subtype = base.Subtype
			}
			base = r.classes[base.Base]
			cls.Base = base.Name
		}
		if cls.Codec == nil {
			cls.Codec = base.Codec
		}
	}
	for _, p := range commonProperties {
		if !slices.Contains(props, p) {
			props = append(props, p)
		}
	}
	for _, p := range props {
		if _, ok := r.properties[p]; !ok {
			return newError(InvalidPropertyError, "type %q: unknown property %q", cls.Name, p)
		}
	}
	if cls.Codec == nil {
		return newError(TypeError, "type %q has no codec", cls.Name)
	}
	cls.Properties = props

	r.classes[cls.Name] = &cls
	r.order = append(r.order, cls.Name)
	return nil
}

// Lookup returns the class registered under name.
func (r *Registry) Lookup(name string) (*TypeClass, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c, ok
}

// Property returns a vocabulary entry.
func (r *Registry) Property(name string) (Property, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.properties[name]
	return p, ok
}

// Names returns the registered class names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.order)
}

// classes returns the registered classes in registration order.
func (r *Registry) orderedClasses() []*TypeClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TypeClass, len(r.order))
	for i, name := range r.order {
		out[i] = r.classes[name]
	}
	return out
}

// Resolve turns a shorthand or full definition into a validated
// Definition. Accepted forms:
//
//   - a type name ("int")
//   - a row format string ("%d\t%s\n"), which becomes a table
//   - a mapping with "type"
//   - a mapping of named member definitions, which becomes an object
//   - an ordered list of member definitions, which becomes an array
func (r *Registry) Resolve(def any) (Definition, error) {
	switch d := def.(type) {
	case string:
		if strings.Contains(d, "%") {
			return TableDefinition(d), nil
		}
		if _, ok := r.Lookup(d); !ok {
			return nil, newError(TypeError, "unknown type %q", d)
		}
		return Definition{PropType: d}, nil
	case Definition:
		return r.resolveMap(d)
	case map[string]any:
		return r.resolveMap(Definition(d))
	case []Definition:
		items := make([]any, len(d))
		for i, x := range d {
			items[i] = x
		}
		return r.resolveList(items)
	case []any:
		return r.resolveList(d)
	case []string:
		items := make([]any, len(d))
		for i, x := range d {
			items[i] = x
		}
		return r.resolveList(items)
	default:
		return nil, newError(TypeError, "cannot resolve a definition from %T", def)
	}
}

func (r *Registry) resolveList(items []any) (Definition, error) {
	resolved := make([]any, len(items))
	for i, x := range items {
		d, err := r.Resolve(x)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		resolved[i] = d
	}
	return Definition{PropType: "array", PropItems: resolved}, nil
}

func (r *Registry) resolveMap(d Definition) (Definition, error) {
	if len(d) == 0 {
		return nil, newError(TypeError, "empty definition")
	}
	raw, hasType := d[PropType]
	if !hasType {
		if _, ok := d[PropRef]; ok {
			return d.Clone(), nil
		}
		members := make(Definition, len(d))
		for _, k := range sortedKeys(d) {
			m, err := r.Resolve(d[k])
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", k, err)
			}
			members[k] = m
		}
		return Definition{PropType: "object", PropProperties: members}, nil
	}

	name, ok := raw.(string)
	if !ok {
		return nil, newError(TypeError, "type must be a string, got %T", raw)
	}
	cls, ok := r.Lookup(name)
	if !ok {
		return nil, newError(TypeError, "unknown type %q", name)
	}

	out := make(Definition, len(d))
	for _, k := range sortedKeys(d) {
		if !slices.Contains(cls.Properties, k) {
			return nil, newError(InvalidPropertyError, "type %q does not accept property %q", name, k)
		}
		v := d[k]
		switch k {
		case PropItems:
			items, err := r.resolveItems(v)
			if err != nil {
				return nil, err
			}
			out[k] = items
		case PropProperties:
			members, ok := asDefinition(v)
			if !ok {
				return nil, newError(TypeError, "properties must be a mapping, got %T", v)
			}
			resolved := make(Definition, len(members))
			for _, mk := range sortedKeys(members) {
				m, err := r.Resolve(members[mk])
				if err != nil {
					return nil, fmt.Errorf("member %q: %w", mk, err)
				}
				resolved[mk] = m
			}
			out[k] = resolved
		case PropDefinitions:
			defs, ok := asDefinition(v)
			if !ok {
				return nil, newError(TypeError, "definitions must be a mapping, got %T", v)
			}
			resolved := make(Definition, len(defs))
			for _, dk := range sortedKeys(defs) {
				m, err := r.Resolve(defs[dk])
				if err != nil {
					return nil, fmt.Errorf("definition %q: %w", dk, err)
				}
				resolved[dk] = m
			}
			out[k] = resolved
		default:
			out[k] = cloneValue(v)
		}
	}
	return out, nil
}

func (r *Registry) resolveItems(v any) (any, error) {
	switch items := v.(type) {
	case []any, []Definition, []string:
		d, err := r.Resolve(items)
		if err != nil {
			return nil, err
		}
		return d[PropItems], nil
	default:
		return r.Resolve(v)
	}
}

// normalize rewrites an alias definition onto its base class so that
// {"type": "int"} and {"type": "scalar", "subtype": "int"} compare and
// decode identically.
func (r *Registry) normalize(d Definition) Definition {
	cls, ok := r.Lookup(d.Type())
	if !ok || cls.Base == "" {
		return d
	}
	out := d.Clone()
	out[PropType] = cls.Base
	if _, ok := out[PropSubtype]; !ok && cls.Subtype != "" {
		out[PropSubtype] = cls.Subtype
	}
	return out
}

// codecFor resolves def and returns the class that encodes it together
// with the normalized definition.
func (r *Registry) codecFor(def any) (*TypeClass, Definition, error) {
	d, err := r.Resolve(def)
	if err != nil {
		return nil, nil, err
	}
	if _, isRef := d[PropRef]; isRef && d.Type() == "" {
		return nil, nil, newError(TypeError, "cannot encode a bare $ref outside its document")
	}
	cls, ok := r.Lookup(d.Type())
	if !ok {
		return nil, nil, newError(TypeError, "unknown type %q", d.Type())
	}
	return cls, r.normalize(d), nil
}
