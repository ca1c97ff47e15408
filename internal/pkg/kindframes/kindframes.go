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

// Package kindframes implements KindFrames, a set of Frames sharing one
// kind, stored as a grouped hashed set keyed by (callee, callee_port,
// call_position, distance, canonical_names). This grouping is what keeps
// the taint domain finite: precision is kept for the grouping key and
// joined away for everything else.
package kindframes

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
)

// GroupKey is the grouping tuple that determines whether two Frames of the
// same kind are merged or kept distinct.
type GroupKey struct {
	callee         *method.Method
	calleePort     string
	callPosition   *position.Position
	distance       int
	canonicalNames string
}

func groupKeyOf(f frame.Frame) GroupKey {
	names := f.CanonicalNames().Elements()
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n.String()
	}
	sort.Strings(parts)
	return GroupKey{
		callee:         f.Callee(),
		calleePort:     f.CalleePort().String(),
		callPosition:   f.CallPosition(),
		distance:       f.Distance(),
		canonicalNames: strings.Join(parts, ","),
	}
}

// KindFrames is a grouped set of Frames that all share one Kind.
type KindFrames struct {
	kind   *kind.Kind
	frames map[GroupKey]frame.Frame
}

// Bottom returns the empty KindFrames.
func Bottom() KindFrames {
	return KindFrames{}
}

// IsBottom reports whether the set is empty.
func (s KindFrames) IsBottom() bool {
	return len(s.frames) == 0
}

// Kind returns the shared kind of every frame in s, or nil if s is bottom.
func (s KindFrames) Kind() *kind.Kind {
	return s.kind
}

// NewSet builds a KindFrames from the given frames, merging any that share
// a group key. Panics if the frames don't all share one kind -- this is
// the "same kind within a KindFrames" invariant, a programmer error if
// violated.
func NewSet(frames ...frame.Frame) KindFrames {
	s := Bottom()
	for _, f := range frames {
		s = s.Add(f)
	}
	return s
}

// Add returns a copy of s with f inserted, merging into any existing frame
// that shares f's group key.
func (s KindFrames) Add(f frame.Frame) KindFrames {
	if f.IsBottom() {
		return s
	}
	if !s.IsBottom() && f.Kind() != s.kind {
		panic(fmt.Sprintf("kindframes: add frame with kind %s into set of kind %s", f.Kind(), s.kind))
	}

	result := KindFrames{kind: f.Kind(), frames: make(map[GroupKey]frame.Frame, len(s.frames)+1)}
	for k, existing := range s.frames {
		result.frames[k] = existing
	}

	key := groupKeyOf(f)
	if existing, ok := result.frames[key]; ok {
		result.frames[key] = existing.Join(f)
	} else {
		result.frames[key] = f
	}
	return result
}

// Elements returns every frame in s, in no particular order.
func (s KindFrames) Elements() []frame.Frame {
	result := make([]frame.Frame, 0, len(s.frames))
	for _, f := range s.frames {
		result = append(result, f)
	}
	return result
}

// Leq reports whether every frame in s is covered (Leq) by a frame with a
// matching group key in other.
func (s KindFrames) Leq(other KindFrames) bool {
	if s.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	for key, f := range s.frames {
		of, ok := other.frames[key]
		if !ok || !f.Leq(of) {
			return false
		}
	}
	return true
}

// Equals reports whether s and other contain the same group keys, each
// with structurally equal frames.
func (s KindFrames) Equals(other KindFrames) bool {
	if len(s.frames) != len(other.frames) {
		return false
	}
	for key, f := range s.frames {
		of, ok := other.frames[key]
		if !ok || !f.Equal(of) {
			return false
		}
	}
	return true
}

// Join returns the pointwise join of s and other: frames sharing a group
// key are joined together, others are carried over unchanged.
func (s KindFrames) Join(other KindFrames) KindFrames {
	if s.IsBottom() {
		return other
	}
	if other.IsBottom() {
		return s
	}

	result := KindFrames{kind: s.kind, frames: make(map[GroupKey]frame.Frame, len(s.frames)+len(other.frames))}
	for key, f := range s.frames {
		result.frames[key] = f
	}
	for key, f := range other.frames {
		if existing, ok := result.frames[key]; ok {
			result.frames[key] = existing.Join(f)
		} else {
			result.frames[key] = f
		}
	}
	return result
}

// Widen is Join: the grouping key bounds the domain's height, so join is
// already a valid widening operator.
func (s KindFrames) Widen(other KindFrames) KindFrames {
	return s.Join(other)
}

// Meet returns the pointwise meet of s and other: only group keys present
// on both sides survive, each frame meeting its counterpart. A group key
// present on both sides can still drop out if the two frames disagree on
// an identity attribute Meet requires but the group key does not track
// (field_callee) -- Frame.Meet returns bottom for those, and bottom
// frames are not stored.
func (s KindFrames) Meet(other KindFrames) KindFrames {
	if s.IsBottom() || other.IsBottom() {
		return Bottom()
	}

	result := KindFrames{kind: s.kind, frames: make(map[GroupKey]frame.Frame)}
	for key, f := range s.frames {
		if of, ok := other.frames[key]; ok {
			if met := f.Meet(of); !met.IsBottom() {
				result.frames[key] = met
			}
		}
	}
	if len(result.frames) == 0 {
		return Bottom()
	}
	return result
}

// Narrow is Meet.
func (s KindFrames) Narrow(other KindFrames) KindFrames {
	return s.Meet(other)
}

// Difference returns a copy of s with every frame dropped whose group key
// matches a frame in other and which is already Leq that frame -- i.e.
// already covered by other, so it contributes nothing new for an
// incremental fixpoint update. This is not commutative.
func (s KindFrames) Difference(other KindFrames) KindFrames {
	if s.IsBottom() || other.IsBottom() {
		return s
	}

	result := KindFrames{kind: s.kind, frames: make(map[GroupKey]frame.Frame)}
	for key, f := range s.frames {
		if of, ok := other.frames[key]; ok && f.Leq(of) {
			continue
		}
		result.frames[key] = f
	}
	if len(result.frames) == 0 {
		return Bottom()
	}
	return result
}

// Map returns a copy of s with every frame replaced by fn(frame). Frames
// are re-grouped in case fn changes a group-key attribute (e.g.
// CalleePortAppend), so two frames may merge that did not before.
func (s KindFrames) Map(fn func(frame.Frame) frame.Frame) KindFrames {
	result := Bottom()
	for _, f := range s.frames {
		result = result.Add(fn(f))
	}
	return result
}

// Filter returns a copy of s retaining only the frames for which pred
// returns true.
func (s KindFrames) Filter(pred func(frame.Frame) bool) KindFrames {
	result := KindFrames{kind: s.kind, frames: make(map[GroupKey]frame.Frame)}
	for key, f := range s.frames {
		if pred(f) {
			result.frames[key] = f
		}
	}
	if len(result.frames) == 0 {
		return Bottom()
	}
	return result
}
