// © Copyright 2025-2026, Query.Farm LLC - https://query.farm
// SPDX-License-Identifier: Apache-2.0

package datatype

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// TypeFragment declares a derived type in a schema file. The new type is
// an alias of Base, optionally narrowed to a subtype and given extra
// vocabulary properties.
type TypeFragment struct {
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Base        string   `yaml:"base" json:"base"`
	Subtype     string   `yaml:"subtype" json:"subtype"`
	Properties  []string `yaml:"properties" json:"properties"`
}

// SchemaFile is the top-level document accepted by LoadSchema.
type SchemaFile struct {
	Properties []PropertyFragment `yaml:"properties" json:"properties"`
	Types      []TypeFragment     `yaml:"types" json:"types"`
}

// PropertyFragment adds a property to the vocabulary.
type PropertyFragment struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description"`
	Default     any    `yaml:"default" json:"default"`
}

// LoadSchema registers the properties and types declared in data. format
// is "yaml" or "json"; JSON may contain comments and trailing commas.
// Registration stops at the first error; earlier entries stay registered.
func (r *Registry) LoadSchema(data []byte, format string) ([]string, error) {
	var doc SchemaFile
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, newError(TypeError, "parsing schema: %v", err)
		}
	case "json", "jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &doc); err != nil {
			return nil, newError(TypeError, "parsing schema: %v", err)
		}
	default:
		return nil, fmt.Errorf("unknown schema format %q", format)
	}

	for _, p := range doc.Properties {
		if p.Name == "" {
			return nil, newError(InvalidPropertyError, "property without a name")
		}
		err := r.RegisterProperty(Property{
			Name:        p.Name,
			Description: p.Description,
			Default:     p.Default,
			HasDefault:  p.Default != nil,
		})
		if err != nil {
			return nil, err
		}
	}

	var names []string
	for _, t := range doc.Types {
		if t.Base == "" {
			return names, newError(TypeError, "type %q has no base", t.Name)
		}
		err := r.Register(&TypeClass{
			Name:        t.Name,
			Description: t.Description,
			Base:        t.Base,
			Subtype:     t.Subtype,
			Properties:  t.Properties,
		})
		if err != nil {
			return names, err
		}
		names = append(names, t.Name)
	}
	return names, nil
}

// LoadSchemaFile reads a schema file, choosing the format from its
// extension.
func (r *Registry) LoadSchemaFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading schema %s: %w", path, err)
	}
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	names, err := r.LoadSchema(data, format)
	if err != nil {
		return names, fmt.Errorf("loading schema %s: %w", path, err)
	}
	return names, nil
}
