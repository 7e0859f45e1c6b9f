// Copyright ©2017 The gonum Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config reads solver configurations and builds solver trees from
// them.
//
// A configuration is a PropertyMap: named sections of string key-value
// pairs. Every section describes one solver by its type key, the names of
// the sections of its inner solvers and its parameters, for example
//
//	linsolver:
//	  type: fgmres
//	  krylov_dim: 16
//	  precon: mg
//	mg:
//	  type: mg
//	  cycle: w
//	  smoother: jac
//	  coarse: direct
//	jac:
//	  type: jacobi
//	  omega: 0.7
//	direct:
//	  type: direct
package config

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vladimir-ch/solver"
)

// Section is a set of key-value pairs describing one solver.
type Section map[string]string

// PropertyMap is a set of named sections.
type PropertyMap map[string]Section

// ParseYAML reads a PropertyMap from a YAML document whose top level maps
// section names to mappings of scalar values.
func ParseYAML(r io.Reader) (PropertyMap, error) {
	var doc map[string]map[string]yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return PropertyMap{}, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	pm := make(PropertyMap, len(doc))
	for name, kv := range doc {
		s := make(Section, len(kv))
		for k, n := range kv {
			if n.Kind != yaml.ScalarNode {
				return nil, &solver.ConfigError{Section: name, Key: k, Reason: fmt.Sprintf("line %d: not a scalar", n.Line)}
			}
			s[strings.ToLower(k)] = n.Value
		}
		pm[name] = s
	}
	return pm, nil
}

// FromMap converts nested maps, such as the settings of a viper instance,
// into a PropertyMap. Scalar values are formatted with fmt.Sprint.
func FromMap(m map[string]any) (PropertyMap, error) {
	pm := make(PropertyMap, len(m))
	for name, v := range m {
		kv, ok := v.(map[string]any)
		if !ok {
			return nil, &solver.ConfigError{Section: name, Reason: fmt.Sprintf("not a section: %T", v)}
		}
		s := make(Section, len(kv))
		for k, val := range kv {
			switch val.(type) {
			case map[string]any, []any:
				return nil, &solver.ConfigError{Section: name, Key: k, Reason: "not a scalar"}
			}
			s[strings.ToLower(k)] = fmt.Sprint(val)
		}
		pm[name] = s
	}
	return pm, nil
}

// Section returns the section name.
func (p PropertyMap) Section(name string) (Section, error) {
	s, ok := p[name]
	if !ok {
		return nil, &solver.ConfigError{Section: name, Reason: "no such section"}
	}
	return s, nil
}

// Names returns the sorted section names.
func (p PropertyMap) Names() []string {
	return slices.Sorted(maps.Keys(p))
}

// Without returns a copy of s without the given keys.
func (s Section) Without(keys ...string) Section {
	c := maps.Clone(s)
	for _, k := range keys {
		delete(c, k)
	}
	return c
}
