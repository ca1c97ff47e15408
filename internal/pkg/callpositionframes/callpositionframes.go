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

// Package callpositionframes implements CallPositionFrames: a kind ->
// KindFrames mapping whose contained frames all share one call_position,
// plus the propagate transfer function that lifts a callee summary across
// a call site.
package callpositionframes

import (
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/canonicalname"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kindframes"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

// CallPositionFrames is a kind -> KindFrames mapping whose frames all
// share one call_position.
type CallPositionFrames struct {
	callPosition *position.Position
	kinds        map[*kind.Kind]kindframes.KindFrames
}

// Bottom returns the empty CallPositionFrames.
func Bottom() CallPositionFrames {
	return CallPositionFrames{}
}

// IsBottom reports whether the mapping is empty.
func (s CallPositionFrames) IsBottom() bool {
	return len(s.kinds) == 0
}

// CallPosition returns the shared call position, or nil if s is bottom.
func (s CallPositionFrames) CallPosition() *position.Position {
	return s.callPosition
}

// NewSet builds a CallPositionFrames from the given frames.
func NewSet(frames ...frame.Frame) CallPositionFrames {
	s := Bottom()
	for _, f := range frames {
		s = s.Add(f)
	}
	return s
}

// Add returns a copy of s with f inserted. Panics if f's call_position
// disagrees with s's slot -- a same-position invariant violation is a
// programmer bug.
func (s CallPositionFrames) Add(f frame.Frame) CallPositionFrames {
	if f.IsBottom() {
		return s
	}
	if !s.IsBottom() && f.CallPosition() != s.callPosition {
		panic("callpositionframes: add frame with mismatched call_position")
	}

	result := CallPositionFrames{
		callPosition: f.CallPosition(),
		kinds:        make(map[*kind.Kind]kindframes.KindFrames, len(s.kinds)+1),
	}
	for k, kf := range s.kinds {
		result.kinds[k] = kf
	}
	result.kinds[f.Kind()] = result.kinds[f.Kind()].Add(f)
	return result
}

// ContainsKind reports whether s has any frame of kind k.
func (s CallPositionFrames) ContainsKind(k *kind.Kind) bool {
	kf, ok := s.kinds[k]
	return ok && !kf.IsBottom()
}

// Elements returns every frame contained in s, in no particular order.
func (s CallPositionFrames) Elements() []frame.Frame {
	result := make([]frame.Frame, 0)
	for _, kf := range s.kinds {
		result = append(result, kf.Elements()...)
	}
	return result
}

// Kinds returns the contained KindFrames groups, one per distinct kind, in
// no particular order. Used by serialization, which nests its output by
// kind.
func (s CallPositionFrames) Kinds() []kindframes.KindFrames {
	result := make([]kindframes.KindFrames, 0, len(s.kinds))
	for _, kf := range s.kinds {
		result = append(result, kf)
	}
	return result
}

// Leq reports whether s is less-or-equal to other. Bottom is handled
// first; otherwise the two must share a call_position and compare
// pointwise per kind.
func (s CallPositionFrames) Leq(other CallPositionFrames) bool {
	if s.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	if s.callPosition != other.callPosition {
		return false
	}
	for k, kf := range s.kinds {
		if !kf.Leq(other.kinds[k]) {
			return false
		}
	}
	return true
}

// Equals reports whether s and other contain the same frames.
func (s CallPositionFrames) Equals(other CallPositionFrames) bool {
	return s.Leq(other) && other.Leq(s)
}

// Join returns the least upper bound of s and other. Joining with bottom
// adopts the other side's call_position; otherwise the positions must
// already match.
func (s CallPositionFrames) Join(other CallPositionFrames) CallPositionFrames {
	if s.IsBottom() {
		return other
	}
	if other.IsBottom() {
		return s
	}
	if s.callPosition != other.callPosition {
		panic("callpositionframes: join of mismatched call_position")
	}

	result := CallPositionFrames{callPosition: s.callPosition, kinds: make(map[*kind.Kind]kindframes.KindFrames, len(s.kinds)+len(other.kinds))}
	for k, kf := range s.kinds {
		result.kinds[k] = kf
	}
	for k, kf := range other.kinds {
		result.kinds[k] = result.kinds[k].Join(kf)
	}
	return result
}

// Widen is Join.
func (s CallPositionFrames) Widen(other CallPositionFrames) CallPositionFrames {
	return s.Join(other)
}

// Meet returns the greatest lower bound of s and other, or bottom if they
// describe different call positions.
func (s CallPositionFrames) Meet(other CallPositionFrames) CallPositionFrames {
	if s.IsBottom() || other.IsBottom() {
		return Bottom()
	}
	if s.callPosition != other.callPosition {
		return Bottom()
	}

	result := CallPositionFrames{callPosition: s.callPosition, kinds: make(map[*kind.Kind]kindframes.KindFrames)}
	for k, kf := range s.kinds {
		if okf, ok := other.kinds[k]; ok {
			if m := kf.Meet(okf); !m.IsBottom() {
				result.kinds[k] = m
			}
		}
	}
	if len(result.kinds) == 0 {
		return Bottom()
	}
	return result
}

// Narrow is Meet.
func (s CallPositionFrames) Narrow(other CallPositionFrames) CallPositionFrames {
	return s.Meet(other)
}

// Difference removes, for each kind, the frames of s already covered by
// the matching frames of other. Not commutative.
func (s CallPositionFrames) Difference(other CallPositionFrames) CallPositionFrames {
	if s.IsBottom() || other.IsBottom() || s.callPosition != other.callPosition {
		return s
	}

	result := CallPositionFrames{callPosition: s.callPosition, kinds: make(map[*kind.Kind]kindframes.KindFrames)}
	for k, kf := range s.kinds {
		diff := kf.Difference(other.kinds[k])
		if !diff.IsBottom() {
			result.kinds[k] = diff
		}
	}
	if len(result.kinds) == 0 {
		return Bottom()
	}
	return result
}

// AddInferredFeatures maps add_inferred_features over every contained
// frame.
func (s CallPositionFrames) AddInferredFeatures(fs feature.MayAlwaysSet) CallPositionFrames {
	return s.mapFrames(func(f frame.Frame) frame.Frame { return f.AddInferredFeatures(fs) })
}

// LocalPositions folds every contained frame's local position set.
func (s CallPositionFrames) LocalPositions() position.Set {
	result := position.Bottom()
	for _, kf := range s.kinds {
		for _, f := range kf.Elements() {
			result = result.Join(f.LocalPositions())
		}
	}
	return result
}

// AddLocalPosition maps add_local_position over every contained frame.
func (s CallPositionFrames) AddLocalPosition(p *position.Position) CallPositionFrames {
	return s.mapFrames(func(f frame.Frame) frame.Frame { return f.AddLocalPosition(p) })
}

// SetLocalPositions maps set_local_positions over every contained frame.
func (s CallPositionFrames) SetLocalPositions(positions position.Set) CallPositionFrames {
	return s.mapFrames(func(f frame.Frame) frame.Frame { return f.SetLocalPositions(positions) })
}

// AppendCalleePort rewrites the callee port of every frame whose kind
// passes filter by appending element.
func (s CallPositionFrames) AppendCalleePort(element accesspath.Element, filter func(*kind.Kind) bool) CallPositionFrames {
	return s.mapFrames(func(f frame.Frame) frame.Frame {
		if filter != nil && !filter(f.Kind()) {
			return f
		}
		return f.CalleePortAppend(element)
	})
}

// FilterInvalidFrames retains only frames for which isValid(callee,
// callee_port, kind) is true; a kind entry that becomes empty is dropped.
func (s CallPositionFrames) FilterInvalidFrames(isValid func(callee *method.Method, calleePort accesspath.AccessPath, k *kind.Kind) bool) CallPositionFrames {
	if s.IsBottom() {
		return s
	}
	result := CallPositionFrames{callPosition: s.callPosition, kinds: make(map[*kind.Kind]kindframes.KindFrames)}
	for k, kf := range s.kinds {
		filtered := kf.Filter(func(f frame.Frame) bool {
			return isValid(f.Callee(), f.CalleePort(), k)
		})
		if !filtered.IsBottom() {
			result.kinds[k] = filtered
		}
	}
	if len(result.kinds) == 0 {
		return Bottom()
	}
	return result
}

// TransformKindWithFeatures transforms each kind key K into transformKind(K)
// target kinds, cloning and re-kinding frames and folding addFeatures(K')
// into each clone's inferred features. Frames landing on the same target
// kind from different source kinds are joined, which can demote an
// always-feature to may (see feature.MayAlwaysSet.Join).
func (s CallPositionFrames) TransformKindWithFeatures(
	transformKind func(*kind.Kind) []*kind.Kind,
	addFeatures func(*kind.Kind) feature.MayAlwaysSet,
) CallPositionFrames {
	if s.IsBottom() {
		return s
	}

	result := Bottom()
	for k, kf := range s.kinds {
		targets := transformKind(k)
		for _, target := range targets {
			var addFs feature.MayAlwaysSet
			if addFeatures != nil {
				addFs = addFeatures(target)
			}
			for _, f := range kf.Elements() {
				clone := f.WithKind(target)
				if !addFs.IsBottom() {
					clone = clone.AddInferredFeatures(addFs)
				}
				result = result.Add(clone)
			}
		}
	}
	return result
}

func (s CallPositionFrames) mapFrames(fn func(frame.Frame) frame.Frame) CallPositionFrames {
	if s.IsBottom() {
		return s
	}
	result := CallPositionFrames{callPosition: s.callPosition, kinds: make(map[*kind.Kind]kindframes.KindFrames, len(s.kinds))}
	for k, kf := range s.kinds {
		result.kinds[k] = kf.Map(fn)
	}
	return result
}

// AttachPosition emits, for each leaf frame in s, a new frame with
// call_position set to p, callee left absent, distance 0, and user
// features promoted into locally_inferred_features as always-features.
// Non-leaf frames are dropped.
func AttachPosition(s CallPositionFrames, p *position.Position) CallPositionFrames {
	result := Bottom()
	for _, kf := range s.kinds {
		for _, f := range kf.Elements() {
			if !f.IsLeaf() {
				continue
			}
			promoted := feature.MakeAlways(f.UserFeatures())
			clone := frame.New(
				f.Kind(), f.CalleePort(), nil, f.FieldCallee(), p, 0,
				f.Origins(), f.FieldOrigins(),
				f.InferredFeatures(), promoted, f.UserFeatures(),
				nil, nil,
				f.LocalPositions(), f.CanonicalNames(),
			)
			result = result.Add(clone)
		}
	}
	return result
}

// Propagate lifts the callee-summary frames in s across a call site,
// producing the CallPositionFrames to install on the caller side.
//
// For each kind, contained frames split into CRTEX (declared with an
// Anchor/Producer callee port) and non-CRTEX groups. Non-CRTEX frames of
// one kind collapse into a single output frame; CRTEX frames emit one
// output per input, since canonical-name instantiation is per-frame.
func Propagate(
	s CallPositionFrames,
	callee *method.Method,
	calleePort accesspath.AccessPath,
	callPosition *position.Position,
	maxDistance int,
	ctx *taintcontext.Context,
	sourceRegisterTypes []string,
	sourceConstantArguments []*string,
) CallPositionFrames {
	result := Bottom()
	for k, kf := range s.kinds {
		var crtex, nonCrtex []frame.Frame
		for _, f := range kf.Elements() {
			if f.IsCrtexProducerDeclaration() {
				crtex = append(crtex, f)
			} else {
				nonCrtex = append(nonCrtex, f)
			}
		}

		if len(nonCrtex) > 0 {
			if f, ok := collapseFrames(nonCrtex, maxDistance, ctx, k, callee, sourceRegisterTypes, sourceConstantArguments, true); ok {
				out := frame.New(
					k, calleePort, callee, nil, callPosition, f.distance,
					f.origins, f.fieldOrigins, f.inferredFeatures,
					feature.BottomMayAlways(), feature.Bottom(),
					nil, nil, position.Bottom(), nil,
				)
				result = result.Add(out)
			}
		}

		for _, f := range crtex {
			collapsed, ok := collapseFrames([]frame.Frame{f}, maxDistance, ctx, k, callee, sourceRegisterTypes, sourceConstantArguments, false)
			if !ok {
				continue
			}

			names := instantiateCanonicalNames(f.CanonicalNames(), callee, collapsed.viaTypeOf)
			if names.IsBottom() {
				ctx.WarnMissingCanonicalNames(k)
				continue
			}

			out := frame.New(
				k,
				f.CalleePort().CanonicalizeForMethod(callee),
				callee, nil, callPosition, 0,
				collapsed.origins, collapsed.fieldOrigins, collapsed.inferredFeatures,
				feature.BottomMayAlways(), feature.Bottom(),
				nil, nil, position.Bottom(), names,
			)
			result = result.Add(out)
		}
	}
	return result
}

// collapsedFrame is the accumulator produced by collapseFrames.
type collapsedFrame struct {
	distance         int
	origins          method.Set
	fieldOrigins     field.Set
	inferredFeatures feature.MayAlwaysSet
	viaTypeOf        []*feature.Feature
}

// collapseFrames implements the non-CRTEX collapse rule (also used,
// applied to a singleton, for CRTEX frames). It returns ok == false if
// every input frame exceeded maxDistance.
func collapseFrames(
	frames []frame.Frame,
	maxDistance int,
	ctx *taintcontext.Context,
	k *kind.Kind,
	callee *method.Method,
	sourceRegisterTypes []string,
	sourceConstantArguments []*string,
	includeViaValueOf bool,
) (collapsedFrame, bool) {
	const infinite = int(^uint(0) >> 1)
	acc := collapsedFrame{
		distance:         infinite,
		origins:          method.Bottom(),
		fieldOrigins:     field.Bottom(),
		inferredFeatures: feature.BottomMayAlways(),
	}

	for _, f := range frames {
		if f.Distance() >= maxDistance {
			continue
		}
		if d := f.Distance() + 1; d < acc.distance {
			acc.distance = d
		}
		acc.origins = acc.origins.Join(f.Origins())
		acc.fieldOrigins = acc.fieldOrigins.Join(f.FieldOrigins())
		acc.inferredFeatures = acc.inferredFeatures.Join(f.Features())

		for _, port := range f.ViaTypeOfPorts() {
			ft, ok := materializeViaTypeOf(port, ctx, callee, k, sourceRegisterTypes)
			if !ok {
				continue
			}
			acc.viaTypeOf = append(acc.viaTypeOf, ft)
			acc.inferredFeatures = acc.inferredFeatures.AddAlways(ft)
		}

		if includeViaValueOf {
			for _, port := range f.ViaValueOfPorts() {
				ft, ok := materializeViaValueOf(port, ctx, callee, k, sourceConstantArguments)
				if !ok {
					continue
				}
				acc.inferredFeatures = acc.inferredFeatures.AddAlways(ft)
			}
		}
	}

	if acc.distance == infinite {
		return collapsedFrame{}, false
	}
	return acc, true
}

func materializeViaTypeOf(port accesspath.Root, ctx *taintcontext.Context, callee *method.Method, k *kind.Kind, sourceRegisterTypes []string) (*feature.Feature, bool) {
	if !port.IsArgument() || port.ParameterPosition() < 0 || port.ParameterPosition() >= len(sourceRegisterTypes) {
		ctx.WarnInvalidPort(callee, k, port.String())
		return nil, false
	}
	typeName := sourceRegisterTypes[port.ParameterPosition()]
	return ctx.Features.GetViaTypeOfFeature(typeName), true
}

func materializeViaValueOf(port accesspath.Root, ctx *taintcontext.Context, callee *method.Method, k *kind.Kind, sourceConstantArguments []*string) (*feature.Feature, bool) {
	if !port.IsArgument() || port.ParameterPosition() < 0 || port.ParameterPosition() >= len(sourceConstantArguments) {
		ctx.WarnInvalidPort(callee, k, port.String())
		return nil, false
	}
	return ctx.Features.GetViaValueOfFeature(sourceConstantArguments[port.ParameterPosition()]), true
}

// instantiateCanonicalNames instantiates every template in names using
// callee and viaTypeOf, dropping any that fail to instantiate.
func instantiateCanonicalNames(names canonicalname.Set, callee *method.Method, viaTypeOf []*feature.Feature) canonicalname.Set {
	result := canonicalname.Bottom()
	for _, n := range names.Elements() {
		instantiated, ok := n.Instantiate(callee, viaTypeOf)
		if !ok {
			continue
		}
		result = result.Add(instantiated)
	}
	return result
}
