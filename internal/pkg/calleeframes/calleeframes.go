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

// Package calleeframes implements CalleeFrames: a call_position ->
// CallPositionFrames mapping whose contained frames all share one callee.
// It mirrors CallPositionFrames one level up, and its Propagate iterates
// per call_position and folds the results.
package calleeframes

import (
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/callpositionframes"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

// CalleeFrames is a call_position -> CallPositionFrames mapping whose
// frames all share one callee.
type CalleeFrames struct {
	callee    *method.Method
	positions map[*position.Position]callpositionframes.CallPositionFrames
}

// Bottom returns the empty CalleeFrames.
func Bottom() CalleeFrames {
	return CalleeFrames{}
}

// IsBottom reports whether the mapping is empty.
func (s CalleeFrames) IsBottom() bool {
	return len(s.positions) == 0
}

// Callee returns the shared callee, or nil if s is bottom.
func (s CalleeFrames) Callee() *method.Method {
	return s.callee
}

// NewSet builds a CalleeFrames from the given frames.
func NewSet(frames ...frame.Frame) CalleeFrames {
	s := Bottom()
	for _, f := range frames {
		s = s.Add(f)
	}
	return s
}

// Add returns a copy of s with f inserted. Panics if f's callee disagrees
// with s's slot.
func (s CalleeFrames) Add(f frame.Frame) CalleeFrames {
	if f.IsBottom() {
		return s
	}
	if !s.IsBottom() && f.Callee() != s.callee {
		panic("calleeframes: add frame with mismatched callee")
	}

	result := CalleeFrames{
		callee:    f.Callee(),
		positions: make(map[*position.Position]callpositionframes.CallPositionFrames, len(s.positions)+1),
	}
	for p, cpf := range s.positions {
		result.positions[p] = cpf
	}
	result.positions[f.CallPosition()] = result.positions[f.CallPosition()].Add(f)
	return result
}

// Elements returns every frame contained in s, in no particular order.
func (s CalleeFrames) Elements() []frame.Frame {
	result := make([]frame.Frame, 0)
	for _, cpf := range s.positions {
		result = append(result, cpf.Elements()...)
	}
	return result
}

// CallPositions returns the contained CallPositionFrames groups, one per
// distinct call_position, in no particular order. Used by serialization,
// which nests its output by call_position.
func (s CalleeFrames) CallPositions() []callpositionframes.CallPositionFrames {
	result := make([]callpositionframes.CallPositionFrames, 0, len(s.positions))
	for _, cpf := range s.positions {
		result = append(result, cpf)
	}
	return result
}

// Leq reports whether s is less-or-equal to other.
func (s CalleeFrames) Leq(other CalleeFrames) bool {
	if s.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	if s.callee != other.callee {
		return false
	}
	for p, cpf := range s.positions {
		if !cpf.Leq(other.positions[p]) {
			return false
		}
	}
	return true
}

// Equals reports whether s and other contain the same frames.
func (s CalleeFrames) Equals(other CalleeFrames) bool {
	return s.Leq(other) && other.Leq(s)
}

// Join returns the least upper bound of s and other. Joining with bottom
// adopts the other side's callee.
func (s CalleeFrames) Join(other CalleeFrames) CalleeFrames {
	if s.IsBottom() {
		return other
	}
	if other.IsBottom() {
		return s
	}
	if s.callee != other.callee {
		panic("calleeframes: join of mismatched callee")
	}

	result := CalleeFrames{callee: s.callee, positions: make(map[*position.Position]callpositionframes.CallPositionFrames, len(s.positions)+len(other.positions))}
	for p, cpf := range s.positions {
		result.positions[p] = cpf
	}
	for p, cpf := range other.positions {
		result.positions[p] = result.positions[p].Join(cpf)
	}
	return result
}

// Widen is Join.
func (s CalleeFrames) Widen(other CalleeFrames) CalleeFrames {
	return s.Join(other)
}

// Meet returns the greatest lower bound of s and other, or bottom if they
// describe different callees.
func (s CalleeFrames) Meet(other CalleeFrames) CalleeFrames {
	if s.IsBottom() || other.IsBottom() || s.callee != other.callee {
		return Bottom()
	}

	result := CalleeFrames{callee: s.callee, positions: make(map[*position.Position]callpositionframes.CallPositionFrames)}
	for p, cpf := range s.positions {
		if ocpf, ok := other.positions[p]; ok {
			if m := cpf.Meet(ocpf); !m.IsBottom() {
				result.positions[p] = m
			}
		}
	}
	if len(result.positions) == 0 {
		return Bottom()
	}
	return result
}

// Narrow is Meet.
func (s CalleeFrames) Narrow(other CalleeFrames) CalleeFrames {
	return s.Meet(other)
}

// Difference removes, for each call_position, the frames of s already
// covered by the matching frames of other. Not commutative.
func (s CalleeFrames) Difference(other CalleeFrames) CalleeFrames {
	if s.IsBottom() || other.IsBottom() || s.callee != other.callee {
		return s
	}

	result := CalleeFrames{callee: s.callee, positions: make(map[*position.Position]callpositionframes.CallPositionFrames)}
	for p, cpf := range s.positions {
		diff := cpf.Difference(other.positions[p])
		if !diff.IsBottom() {
			result.positions[p] = diff
		}
	}
	if len(result.positions) == 0 {
		return Bottom()
	}
	return result
}

// AddInferredFeatures maps add_inferred_features over every contained
// frame.
func (s CalleeFrames) AddInferredFeatures(fs feature.MayAlwaysSet) CalleeFrames {
	return s.mapPositions(func(cpf callpositionframes.CallPositionFrames) callpositionframes.CallPositionFrames {
		return cpf.AddInferredFeatures(fs)
	})
}

// LocalPositions folds every contained frame's local position set.
func (s CalleeFrames) LocalPositions() position.Set {
	result := position.Bottom()
	for _, cpf := range s.positions {
		result = result.Join(cpf.LocalPositions())
	}
	return result
}

// AddLocalPosition maps add_local_position over every contained frame.
func (s CalleeFrames) AddLocalPosition(p *position.Position) CalleeFrames {
	return s.mapPositions(func(cpf callpositionframes.CallPositionFrames) callpositionframes.CallPositionFrames {
		return cpf.AddLocalPosition(p)
	})
}

// SetLocalPositions maps set_local_positions over every contained frame.
func (s CalleeFrames) SetLocalPositions(positions position.Set) CalleeFrames {
	return s.mapPositions(func(cpf callpositionframes.CallPositionFrames) callpositionframes.CallPositionFrames {
		return cpf.SetLocalPositions(positions)
	})
}

// AppendCalleePort rewrites the callee port of every frame whose kind
// passes filter.
func (s CalleeFrames) AppendCalleePort(element accesspath.Element, filter func(*kind.Kind) bool) CalleeFrames {
	return s.mapPositions(func(cpf callpositionframes.CallPositionFrames) callpositionframes.CallPositionFrames {
		return cpf.AppendCalleePort(element, filter)
	})
}

// FilterInvalidFrames retains only frames for which isValid returns true.
func (s CalleeFrames) FilterInvalidFrames(isValid func(callee *method.Method, calleePort accesspath.AccessPath, k *kind.Kind) bool) CalleeFrames {
	if s.IsBottom() {
		return s
	}
	result := CalleeFrames{callee: s.callee, positions: make(map[*position.Position]callpositionframes.CallPositionFrames)}
	for p, cpf := range s.positions {
		filtered := cpf.FilterInvalidFrames(isValid)
		if !filtered.IsBottom() {
			result.positions[p] = filtered
		}
	}
	if len(result.positions) == 0 {
		return Bottom()
	}
	return result
}

// TransformKindWithFeatures maps transform_kind_with_features over every
// contained CallPositionFrames.
func (s CalleeFrames) TransformKindWithFeatures(
	transformKind func(*kind.Kind) []*kind.Kind,
	addFeatures func(*kind.Kind) feature.MayAlwaysSet,
) CalleeFrames {
	return s.mapPositions(func(cpf callpositionframes.CallPositionFrames) callpositionframes.CallPositionFrames {
		return cpf.TransformKindWithFeatures(transformKind, addFeatures)
	})
}

func (s CalleeFrames) mapPositions(fn func(callpositionframes.CallPositionFrames) callpositionframes.CallPositionFrames) CalleeFrames {
	if s.IsBottom() {
		return s
	}
	result := CalleeFrames{callee: s.callee, positions: make(map[*position.Position]callpositionframes.CallPositionFrames, len(s.positions))}
	for p, cpf := range s.positions {
		result.positions[p] = fn(cpf)
	}
	return result
}

// Propagate lifts every call_position's CallPositionFrames across the
// call site and folds the results into a single CalleeFrames sharing
// callee.
func (s CalleeFrames) Propagate(
	callee *method.Method,
	calleePort accesspath.AccessPath,
	callPosition *position.Position,
	maxDistance int,
	ctx *taintcontext.Context,
	sourceRegisterTypes []string,
	sourceConstantArguments []*string,
) CalleeFrames {
	result := Bottom()
	for _, cpf := range s.positions {
		propagated := callpositionframes.Propagate(cpf, callee, calleePort, callPosition, maxDistance, ctx, sourceRegisterTypes, sourceConstantArguments)
		for _, f := range propagated.Elements() {
			result = result.Add(f)
		}
	}
	return result
}
