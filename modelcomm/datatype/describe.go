// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import "sort"

// TypeInfo summarizes one registered class.
type TypeInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Base        string   `json:"base,omitempty"`
	Subtype     string   `json:"subtype,omitempty"`
	Properties  []string `json:"properties"`
}

// Describe lists the registered classes sorted by name.
func (r *Registry) Describe() []TypeInfo {
	classes := r.orderedClasses()
	out := make([]TypeInfo, len(classes))
	for i, c := range classes {
		props := make([]string, 0, len(c.Properties))
		for _, p := range c.Properties {
			switch p {
			case PropType, PropTitle, PropDescription, PropRef, PropDefinitions:
				continue
			}
			props = append(props, p)
		}
		out[i] = TypeInfo{
			Name:        c.Name,
			Description: c.Description,
			Base:        c.Base,
			Subtype:     c.Subtype,
			Properties:  props,
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
