// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"fmt"
	"iter"
	"strconv"
	"strings"
)

// Mismatch is one incompatibility between two definitions.
type Mismatch struct {
	Path     string // JSON-pointer-like location, "" for the root
	Property string
	A, B     any
	Reason   string
}

func (m Mismatch) String() string {
	loc := m.Path
	if loc == "" {
		loc = "/"
	}
	if m.Property == "" {
		return fmt.Sprintf("%s: %s", loc, m.Reason)
	}
	return fmt.Sprintf("%s: %s: %s (%v vs %v)", loc, m.Property, m.Reason, m.A, m.B)
}

// Compare lazily yields the differences between a and b. The sequence is
// finite and can be ranged over more than once.
//
// Aliases are normalized first, so "int" matches scalar/int. A property
// present on one side only is ignored when it holds the vocabulary
// default, and is a mismatch otherwise. $ref entries are resolved against
// each side's own definitions. An empty definition never matches a
// non-empty one. Properties outside the class vocabulary are ignored.
func (r *Registry) Compare(a, b Definition) iter.Seq[Mismatch] {
	return func(yield func(Mismatch) bool) {
		c := comparison{r: r, rootA: a, rootB: b, yield: yield}
		c.compare("", a, b)
	}
}

// Compatible reports whether Compare yields nothing.
func (r *Registry) Compatible(a, b Definition) bool {
	for range r.Compare(a, b) {
		return false
	}
	return true
}

type comparison struct {
	r            *Registry
	rootA, rootB Definition
	yield        func(Mismatch) bool
	stopped      bool
}

func (c *comparison) emit(m Mismatch) bool {
	if c.stopped {
		return false
	}
	if !c.yield(m) {
		c.stopped = true
	}
	return !c.stopped
}

func deref(root, d Definition, depth int) (Definition, error) {
	for ; depth < 32; depth++ {
		ref, ok := d[PropRef].(string)
		if !ok {
			return d, nil
		}
		name, found := strings.CutPrefix(ref, "#/"+PropDefinitions+"/")
		if !found {
			return nil, fmt.Errorf("unsupported reference %q", ref)
		}
		defs, _ := asDefinition(root[PropDefinitions])
		target, ok := asDefinition(defs[name])
		if !ok {
			return nil, fmt.Errorf("unresolved reference %q", ref)
		}
		d = target
	}
	return nil, fmt.Errorf("reference cycle")
}

func (c *comparison) compare(path string, a, b Definition) bool {
	var err error
	if a, err = deref(c.rootA, a, 0); err != nil {
		return c.emit(Mismatch{Path: path, Reason: err.Error()})
	}
	if b, err = deref(c.rootB, b, 0); err != nil {
		return c.emit(Mismatch{Path: path, Reason: err.Error()})
	}

	if len(a) == 0 || len(b) == 0 {
		if len(a) == len(b) {
			return true
		}
		return c.emit(Mismatch{Path: path, Reason: "empty definition is not compatible with a concrete one"})
	}

	na, nb := c.r.normalize(a), c.r.normalize(b)
	if na.Type() != nb.Type() {
		return c.emit(Mismatch{Path: path, Property: PropType, A: a.Type(), B: b.Type(), Reason: "types differ"})
	}
	cls, ok := c.r.Lookup(na.Type())
	if !ok {
		return c.emit(Mismatch{Path: path, Property: PropType, A: a.Type(), B: b.Type(), Reason: "unknown type"})
	}

	for _, prop := range cls.Properties {
		switch prop {
		case PropType, PropRef, PropDefinitions:
			continue
		}
		va, okA := na[prop]
		vb, okB := nb[prop]
		if !okA && !okB {
			continue
		}
		if okA && okB {
			if !c.compareValues(path, prop, va, vb) {
				return false
			}
			continue
		}
		present := va
		if okB {
			present = vb
		}
		if p, ok := c.r.Property(prop); ok && p.HasDefault && valuesEqual(present, p.Default) {
			continue
		}
		if !c.emit(Mismatch{Path: path, Property: prop, A: va, B: vb, Reason: "present on one side only"}) {
			return false
		}
	}
	return true
}

func (c *comparison) compareValues(path, prop string, va, vb any) bool {
	switch prop {
	case PropItems:
		la, listA := va.([]any)
		lb, listB := vb.([]any)
		if listA && listB {
			if len(la) != len(lb) {
				return c.emit(Mismatch{Path: path, Property: prop, A: len(la), B: len(lb), Reason: "item counts differ"})
			}
			for i := range la {
				da, _ := asDefinition(la[i])
				db, _ := asDefinition(lb[i])
				if !c.compare(path+"/items/"+strconv.Itoa(i), da, db) {
					return false
				}
			}
			return true
		}
		da, okA := asDefinition(va)
		db, okB := asDefinition(vb)
		if okA && okB {
			return c.compare(path+"/items", da, db)
		}
		return c.emit(Mismatch{Path: path, Property: prop, A: va, B: vb, Reason: "item layouts differ"})
	case PropProperties:
		ma, _ := asDefinition(va)
		mb, _ := asDefinition(vb)
		names := map[string]struct{}{}
		for k := range ma {
			names[k] = struct{}{}
		}
		for k := range mb {
			names[k] = struct{}{}
		}
		for _, k := range sortedKeys(names) {
			da, okA := asDefinition(ma[k])
			db, okB := asDefinition(mb[k])
			if !okA || !okB {
				if !c.emit(Mismatch{Path: path + "/properties/" + k, Reason: "member present on one side only"}) {
					return false
				}
				continue
			}
			if !c.compare(path+"/properties/"+k, da, db) {
				return false
			}
		}
		return true
	default:
		if valuesEqual(va, vb) {
			return true
		}
		return c.emit(Mismatch{Path: path, Property: prop, A: va, B: vb, Reason: "values differ"})
	}
}
