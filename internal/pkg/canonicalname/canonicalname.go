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

// Package canonicalname implements CRTEX canonical names: either a template
// such as "%programmatic_leaf_name%" declared by a user model, or a value
// already instantiated for a specific callee.
package canonicalname

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
)

// leafNamePlaceholder expands to the exported callee's signature.
const leafNamePlaceholder = "%programmatic_leaf_name%"

// viaTypeOfPlaceholderPrefix expands to the nth via-type-of feature
// materialized while propagating the frame this name is attached to, e.g.
// "%via_type_of_0%".
const viaTypeOfPlaceholderPrefix = "%via_type_of_"

// CanonicalName is either a template to be instantiated at CRTEX export
// time, or an already-instantiated value.
type CanonicalName struct {
	template   string
	isTemplate bool
}

// NewTemplate builds a CanonicalName that must still be instantiated.
func NewTemplate(template string) CanonicalName {
	return CanonicalName{template: template, isTemplate: true}
}

// NewInstantiated builds a CanonicalName that is already a concrete value.
func NewInstantiated(value string) CanonicalName {
	return CanonicalName{template: value, isTemplate: false}
}

// IsTemplate reports whether the name still needs instantiation.
func (c CanonicalName) IsTemplate() bool {
	return c.isTemplate
}

func (c CanonicalName) String() string {
	return c.template
}

// Instantiate replaces c's placeholders using the exported callee's
// signature and the via-type-of features materialized for the frame. It
// returns false if a placeholder cannot be resolved (e.g. a
// "%via_type_of_N%" index beyond the number of materialized features),
// matching the source's "drop templates that fail to instantiate".
func (c CanonicalName) Instantiate(callee *method.Method, viaTypeOf []*feature.Feature) (CanonicalName, bool) {
	if !c.isTemplate {
		return c, true
	}

	result := c.template
	if strings.Contains(result, leafNamePlaceholder) {
		if callee == nil {
			return CanonicalName{}, false
		}
		result = strings.ReplaceAll(result, leafNamePlaceholder, callee.Signature())
	}

	for i := 0; ; i++ {
		placeholder := fmt.Sprintf("%s%d%%", viaTypeOfPlaceholderPrefix, i)
		if !strings.Contains(result, placeholder) {
			break
		}
		if i >= len(viaTypeOf) {
			return CanonicalName{}, false
		}
		result = strings.ReplaceAll(result, placeholder, viaTypeOf[i].Name())
	}

	return NewInstantiated(result), true
}

// Set is a set of CanonicalNames, compared by value.
type Set map[CanonicalName]struct{}

// Bottom returns the empty (bottom) canonical name set.
func Bottom() Set {
	return Set{}
}

// NewSet returns a Set containing the given names.
func NewSet(names ...CanonicalName) Set {
	s := make(Set, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// IsBottom reports whether the set is empty.
func (s Set) IsBottom() bool {
	return len(s) == 0
}

// Add returns a copy of s with name inserted.
func (s Set) Add(name CanonicalName) Set {
	result := s.Clone()
	result[name] = struct{}{}
	return result
}

// Clone returns a shallow copy of s.
func (s Set) Clone() Set {
	result := make(Set, len(s))
	for n := range s {
		result[n] = struct{}{}
	}
	return result
}

// Leq reports whether s is a subset of other.
func (s Set) Leq(other Set) bool {
	for n := range s {
		if _, ok := other[n]; !ok {
			return false
		}
	}
	return true
}

// Equals reports whether s and other contain the same names.
func (s Set) Equals(other Set) bool {
	return len(s) == len(other) && s.Leq(other)
}

// Join returns the union of s and other.
func (s Set) Join(other Set) Set {
	result := make(Set, len(s)+len(other))
	for n := range s {
		result[n] = struct{}{}
	}
	for n := range other {
		result[n] = struct{}{}
	}
	return result
}

// Elements returns the members of s, sorted for deterministic display.
func (s Set) Elements() []CanonicalName {
	result := make([]CanonicalName, 0, len(s))
	for n := range s {
		result = append(result, n)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].template < result[j].template })
	return result
}
