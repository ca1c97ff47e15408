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

// Package feature interns taint feature tags and defines the two feature
// set shapes used throughout the taint domain: FeatureSet, a plain set used
// for user-declared features, and FeatureMayAlwaysSet, a may/always pair
// used for features inferred along a trace.
package feature

import (
	"sort"
	"sync"
)

// A Feature is an interned attribute tag attached to taint frames.
type Feature struct {
	name string
}

// Name returns the feature's declared name.
func (ft *Feature) Name() string {
	return ft.name
}

func (ft *Feature) String() string {
	return ft.name
}

// Factory interns Features by name.
type Factory struct {
	mu       sync.Mutex
	features map[string]*Feature
}

// NewFactory creates an empty feature interner.
func NewFactory() *Factory {
	return &Factory{features: make(map[string]*Feature)}
}

// Get interns and returns the Feature with the given name.
func (f *Factory) Get(name string) *Feature {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ft, ok := f.features[name]; ok {
		return ft
	}
	ft := &Feature{name: name}
	f.features[name] = ft
	return ft
}

// Set is a plain set of Features, used for features declared by a user
// model (Frame.UserFeatures).
type Set map[*Feature]struct{}

// Bottom returns the empty (bottom) feature set.
func Bottom() Set {
	return Set{}
}

// NewSet returns a Set containing the given features.
func NewSet(features ...*Feature) Set {
	s := make(Set, len(features))
	for _, ft := range features {
		s[ft] = struct{}{}
	}
	return s
}

// IsBottom reports whether the set is empty.
func (s Set) IsBottom() bool {
	return len(s) == 0
}

// Add returns a copy of s with ft inserted.
func (s Set) Add(ft *Feature) Set {
	result := s.Clone()
	result[ft] = struct{}{}
	return result
}

// Contains reports whether ft is a member of s.
func (s Set) Contains(ft *Feature) bool {
	_, ok := s[ft]
	return ok
}

// Clone returns a shallow copy of s.
func (s Set) Clone() Set {
	result := make(Set, len(s))
	for ft := range s {
		result[ft] = struct{}{}
	}
	return result
}

// Leq reports whether s is a subset of other.
func (s Set) Leq(other Set) bool {
	for ft := range s {
		if !other.Contains(ft) {
			return false
		}
	}
	return true
}

// Equals reports whether s and other contain the same features.
func (s Set) Equals(other Set) bool {
	return len(s) == len(other) && s.Leq(other)
}

// Join returns the union of s and other.
func (s Set) Join(other Set) Set {
	result := make(Set, len(s)+len(other))
	for ft := range s {
		result[ft] = struct{}{}
	}
	for ft := range other {
		result[ft] = struct{}{}
	}
	return result
}

// Meet returns the intersection of s and other: the greatest lower bound
// under the subset order Leq uses.
func (s Set) Meet(other Set) Set {
	return intersect(s, other)
}

// Elements returns the members of s, sorted by name for deterministic
// display and JSON output.
func (s Set) Elements() []*Feature {
	result := make([]*Feature, 0, len(s))
	for ft := range s {
		result = append(result, ft)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// MayAlwaysSet is a pair of sets (May, Always) where Always is always a
// subset of May. Unlike a plain Set, bottom (no information, i.e. "this
// frame carries no inferred features at all") is distinct from "empty but
// present" (the value() flag below mirrors that distinction): a bottom
// MayAlwaysSet has never been touched, while a present-but-empty one has
// been joined with another present-but-empty set.
type MayAlwaysSet struct {
	isValue bool
	may     Set
	always  Set
}

// BottomMayAlways returns the bottom MayAlwaysSet.
func BottomMayAlways() MayAlwaysSet {
	return MayAlwaysSet{}
}

// MakeAlways returns a MayAlwaysSet where every feature in s is both a may
// and an always feature.
func MakeAlways(s Set) MayAlwaysSet {
	if s.IsBottom() {
		return MayAlwaysSet{isValue: true, may: Set{}, always: Set{}}
	}
	return MayAlwaysSet{isValue: true, may: s.Clone(), always: s.Clone()}
}

// MakeMay returns a MayAlwaysSet where every feature in s is a may feature
// only.
func MakeMay(s Set) MayAlwaysSet {
	return MayAlwaysSet{isValue: true, may: s.Clone(), always: Set{}}
}

// IsBottom reports whether the set has never been given a value.
func (m MayAlwaysSet) IsBottom() bool {
	return !m.isValue
}

// IsValue reports whether the set holds a value, possibly an empty one.
// This matches the source's `is_value()`.
func (m MayAlwaysSet) IsValue() bool {
	return m.isValue
}

// Empty reports whether the set holds a value and that value is empty.
func (m MayAlwaysSet) Empty() bool {
	return m.isValue && len(m.may) == 0
}

// May returns the may-features of the set.
func (m MayAlwaysSet) May() Set {
	if !m.isValue {
		return Set{}
	}
	return m.may
}

// Always returns the always-features of the set.
func (m MayAlwaysSet) Always() Set {
	if !m.isValue {
		return Set{}
	}
	return m.always
}

// AddAlways returns a copy of m with ft added to both May and Always.
func (m MayAlwaysSet) AddAlways(ft *Feature) MayAlwaysSet {
	may := m.May().Add(ft)
	always := m.Always().Add(ft)
	return MayAlwaysSet{isValue: true, may: may, always: always}
}

// AddMay returns a copy of m with ft added to May only.
func (m MayAlwaysSet) AddMay(ft *Feature) MayAlwaysSet {
	may := m.May().Add(ft)
	return MayAlwaysSet{isValue: true, may: may, always: m.Always()}
}

// Leq reports whether m is less-or-equal to other: every may feature of m
// must be a may feature of other, and every always feature of other must be
// an always feature of m (always features only get harder to guarantee as
// information flows in, so the ordering is contravariant on Always).
func (m MayAlwaysSet) Leq(other MayAlwaysSet) bool {
	if m.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	return m.may.Leq(other.may) && other.always.Leq(m.always)
}

// Equals reports whether m and other hold the same may and always sets.
func (m MayAlwaysSet) Equals(other MayAlwaysSet) bool {
	if m.IsBottom() || other.IsBottom() {
		return m.IsBottom() == other.IsBottom()
	}
	return m.may.Equals(other.may) && m.always.Equals(other.always)
}

// Join returns the join of m and other: union on May, intersection on
// Always. Joining demotes any always-feature present on only one side down
// to a may-feature -- this is the semantically load-bearing behavior users
// see as "always sanitized" becoming "may be sanitized".
func (m MayAlwaysSet) Join(other MayAlwaysSet) MayAlwaysSet {
	if m.IsBottom() {
		return other
	}
	if other.IsBottom() {
		return m
	}
	return MayAlwaysSet{
		isValue: true,
		may:     m.may.Join(other.may),
		always:  intersect(m.always, other.always),
	}
}

// Widen is the same as Join: the feature lattice has finite height, so
// joining is already a valid widening operator.
func (m MayAlwaysSet) Widen(other MayAlwaysSet) MayAlwaysSet {
	return m.Join(other)
}

// Meet returns the meet of m and other: intersection on May, union on
// Always (the dual of Join).
func (m MayAlwaysSet) Meet(other MayAlwaysSet) MayAlwaysSet {
	if m.IsBottom() || other.IsBottom() {
		return BottomMayAlways()
	}
	return MayAlwaysSet{
		isValue: true,
		may:     intersect(m.may, other.may),
		always:  m.always.Join(other.always),
	}
}

// Narrow is the same as Meet.
func (m MayAlwaysSet) Narrow(other MayAlwaysSet) MayAlwaysSet {
	return m.Meet(other)
}

func intersect(a, b Set) Set {
	result := make(Set)
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for ft := range small {
		if big.Contains(ft) {
			result[ft] = struct{}{}
		}
	}
	return result
}
