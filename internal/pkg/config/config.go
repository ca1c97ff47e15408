// Copyright 2020 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the vocabulary a taint analysis run is seeded with:
// the kind and feature names the run's model reader is expected to refer
// to. This is deliberately not a rule-matching config -- deciding which
// methods are sources, sinks or sanitizers belongs to the external model
// reader described as out of scope for the taint domain. Declaring the
// kind/feature vocabulary up front lets a Context's interners hand out the
// same *Kind and *Feature pointers that the rest of the pipeline will
// later ask for by name.
package config

import (
	"os"

	"github.com/pkg/errors"
	"sigs.k8s.io/yaml"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

// Vocabulary is the set of kind and feature names a Context should have
// pre-interned before an analysis run begins.
type Vocabulary struct {
	Kinds    []string `json:"kinds"`
	Features []string `json:"features"`
}

// Load parses a Vocabulary from YAML (or JSON, since YAML is a superset of
// JSON) bytes.
func Load(bytes []byte) (*Vocabulary, error) {
	v := new(Vocabulary)
	if err := yaml.UnmarshalStrict(bytes, v); err != nil {
		return nil, errors.Wrap(err, "parsing taint vocabulary")
	}
	return v, nil
}

// LoadFile reads and parses a Vocabulary from the YAML file at path.
func LoadFile(path string) (*Vocabulary, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading taint vocabulary %q", path)
	}
	return Load(bytes)
}

// Seed interns every kind and feature name in v into ctx, so that later
// lookups by name return the same pointers regardless of load order.
func (v *Vocabulary) Seed(ctx *taintcontext.Context) {
	for _, name := range v.Kinds {
		ctx.Kinds.Get(name)
	}
	for _, name := range v.Features {
		ctx.Features.Get(name)
	}
}
