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

// Package taint implements Taint, the top-level facade of the taint
// domain: a grouped hashed set of CalleeFrames keyed by callee. This is
// the value the interprocedural fixpoint driver installs at each program
// location.
package taint

import (
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/calleeframes"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/callpositionframes"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

// Taint is a grouped hashed set of CalleeFrames keyed by callee: the
// top-level value of the taint domain.
type Taint struct {
	callees map[*method.Method]calleeframes.CalleeFrames
}

// Bottom returns the empty Taint.
func Bottom() Taint {
	return Taint{}
}

// Top is not implemented: the domain has no use for it, and any attempt
// to construct it is a programmer error.
func Top() Taint {
	panic("taint: top() is unreachable -- the domain has no use for it")
}

// IsBottom reports whether t is empty.
func (t Taint) IsBottom() bool {
	return len(t.callees) == 0
}

// NewSet builds a Taint from the given frames.
func NewSet(frames ...frame.Frame) Taint {
	t := Bottom()
	for _, f := range frames {
		t = t.Add(f)
	}
	return t
}

// Add returns a copy of t with f inserted into the CalleeFrames for
// f.Callee(), building a singleton if this is the first frame for that
// callee.
func (t Taint) Add(f frame.Frame) Taint {
	if f.IsBottom() {
		return t
	}
	result := Taint{callees: make(map[*method.Method]calleeframes.CalleeFrames, len(t.callees)+1)}
	for c, cf := range t.callees {
		result.callees[c] = cf
	}
	result.callees[f.Callee()] = result.callees[f.Callee()].Add(f)
	return result
}

// Elements returns every frame contained in t, in no particular order.
func (t Taint) Elements() []frame.Frame {
	result := make([]frame.Frame, 0)
	for _, cf := range t.callees {
		result = append(result, cf.Elements()...)
	}
	return result
}

// Leq reports whether t is less-or-equal to other.
func (t Taint) Leq(other Taint) bool {
	if t.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	for c, cf := range t.callees {
		if !cf.Leq(other.callees[c]) {
			return false
		}
	}
	return true
}

// Equals reports whether t and other contain the same frames.
func (t Taint) Equals(other Taint) bool {
	return t.Leq(other) && other.Leq(t)
}

// Join returns the least upper bound of t and other.
func (t Taint) Join(other Taint) Taint {
	if t.IsBottom() {
		return other
	}
	if other.IsBottom() {
		return t
	}
	result := Taint{callees: make(map[*method.Method]calleeframes.CalleeFrames, len(t.callees)+len(other.callees))}
	for c, cf := range t.callees {
		result.callees[c] = cf
	}
	for c, cf := range other.callees {
		result.callees[c] = result.callees[c].Join(cf)
	}
	return result
}

// Widen is Join.
func (t Taint) Widen(other Taint) Taint {
	return t.Join(other)
}

// Meet returns the greatest lower bound of t and other.
func (t Taint) Meet(other Taint) Taint {
	if t.IsBottom() || other.IsBottom() {
		return Bottom()
	}
	result := Taint{callees: make(map[*method.Method]calleeframes.CalleeFrames)}
	for c, cf := range t.callees {
		if ocf, ok := other.callees[c]; ok {
			if m := cf.Meet(ocf); !m.IsBottom() {
				result.callees[c] = m
			}
		}
	}
	if len(result.callees) == 0 {
		return Bottom()
	}
	return result
}

// Narrow is Meet.
func (t Taint) Narrow(other Taint) Taint {
	return t.Meet(other)
}

// Difference removes, per callee, the frames of t already covered by the
// matching frames of other. Not commutative: t.Difference(t) is bottom,
// and t.Difference(Bottom()) is identity.
func (t Taint) Difference(other Taint) Taint {
	if t.IsBottom() || other.IsBottom() {
		return t
	}
	result := Taint{callees: make(map[*method.Method]calleeframes.CalleeFrames)}
	for c, cf := range t.callees {
		diff := cf.Difference(other.callees[c])
		if !diff.IsBottom() {
			result.callees[c] = diff
		}
	}
	if len(result.callees) == 0 {
		return Bottom()
	}
	return result
}

// AddInferredFeatures maps add_inferred_features over every contained
// frame.
func (t Taint) AddInferredFeatures(fs feature.MayAlwaysSet) Taint {
	return t.mapCallees(func(cf calleeframes.CalleeFrames) calleeframes.CalleeFrames { return cf.AddInferredFeatures(fs) })
}

// LocalPositions folds every contained frame's local position set.
func (t Taint) LocalPositions() position.Set {
	result := position.Bottom()
	for _, cf := range t.callees {
		result = result.Join(cf.LocalPositions())
	}
	return result
}

// AddLocalPosition maps add_local_position over every contained frame.
func (t Taint) AddLocalPosition(p *position.Position) Taint {
	return t.mapCallees(func(cf calleeframes.CalleeFrames) calleeframes.CalleeFrames { return cf.AddLocalPosition(p) })
}

// SetLocalPositions maps set_local_positions over every contained frame.
func (t Taint) SetLocalPositions(positions position.Set) Taint {
	return t.mapCallees(func(cf calleeframes.CalleeFrames) calleeframes.CalleeFrames { return cf.SetLocalPositions(positions) })
}

// AppendCalleePort rewrites the callee port of every frame whose kind
// passes filter.
func (t Taint) AppendCalleePort(element accesspath.Element, filter func(*kind.Kind) bool) Taint {
	return t.mapCallees(func(cf calleeframes.CalleeFrames) calleeframes.CalleeFrames { return cf.AppendCalleePort(element, filter) })
}

// FilterInvalidFrames retains only frames for which isValid returns true.
func (t Taint) FilterInvalidFrames(isValid func(callee *method.Method, calleePort accesspath.AccessPath, k *kind.Kind) bool) Taint {
	if t.IsBottom() {
		return t
	}
	result := Taint{callees: make(map[*method.Method]calleeframes.CalleeFrames)}
	for c, cf := range t.callees {
		filtered := cf.FilterInvalidFrames(isValid)
		if !filtered.IsBottom() {
			result.callees[c] = filtered
		}
	}
	if len(result.callees) == 0 {
		return Bottom()
	}
	return result
}

// TransformKindWithFeatures maps transform_kind_with_features over every
// contained CalleeFrames.
func (t Taint) TransformKindWithFeatures(
	transformKind func(*kind.Kind) []*kind.Kind,
	addFeatures func(*kind.Kind) feature.MayAlwaysSet,
) Taint {
	return t.mapCallees(func(cf calleeframes.CalleeFrames) calleeframes.CalleeFrames {
		return cf.TransformKindWithFeatures(transformKind, addFeatures)
	})
}

func (t Taint) mapCallees(fn func(calleeframes.CalleeFrames) calleeframes.CalleeFrames) Taint {
	if t.IsBottom() {
		return t
	}
	result := Taint{callees: make(map[*method.Method]calleeframes.CalleeFrames, len(t.callees))}
	for c, cf := range t.callees {
		result.callees[c] = fn(cf)
	}
	return result
}

// Propagate lifts every callee's frames across the call site, folding the
// results into a single Taint to install on the caller side.
func (t Taint) Propagate(
	callee *method.Method,
	calleePort accesspath.AccessPath,
	callPosition *position.Position,
	maxDistance int,
	ctx *taintcontext.Context,
	sourceRegisterTypes []string,
	sourceConstantArguments []*string,
) Taint {
	result := Bottom()
	for _, cf := range t.callees {
		propagated := cf.Propagate(callee, calleePort, callPosition, maxDistance, ctx, sourceRegisterTypes, sourceConstantArguments)
		for _, f := range propagated.Elements() {
			result = result.Add(f)
		}
	}
	return result
}

// FeaturesJoined returns the join of every contained frame's combined
// (user + inferred) features, used by issue emission.
func (t Taint) FeaturesJoined() feature.MayAlwaysSet {
	result := feature.BottomMayAlways()
	for _, f := range t.Elements() {
		result = result.Join(f.Features())
	}
	return result
}

// PartitionByKind partitions t into buckets keyed by mapKind(frame.Kind()).
// Every frame lands in exactly one bucket; joining all buckets back
// together reconstructs t.
//
// The source's partition_by_kind<T> is a template method parameterized
// over the bucket key type. Go's lack of idiomatic narrow type parameters
// for map keys in this codebase's generics-free style led to using a
// plain `any` key here instead of a type parameter; see the design notes
// for the tradeoff.
func (t Taint) PartitionByKind(mapKind func(*kind.Kind) interface{}) map[interface{}]Taint {
	result := make(map[interface{}]Taint)
	for _, f := range t.Elements() {
		key := mapKind(f.Kind())
		result[key] = result[key].Add(f)
	}
	return result
}

// Iterator provides a read-only, single-pass flat iteration over every
// frame of a Taint, whether or not the frame has a callee. The frames are
// collected when the iterator is created. Used for diagnostics and
// counting only; not on the hot path.
type Iterator struct {
	frames []frame.Frame
	index  int
}

// FramesIterator returns an Iterator over every frame in t.
func (t Taint) FramesIterator() *Iterator {
	return &Iterator{frames: t.Elements(), index: -1}
}

// Next advances the iterator and reports whether a frame is available.
func (it *Iterator) Next() bool {
	it.index++
	return it.index < len(it.frames)
}

// Frame returns the frame at the iterator's current position. Valid only
// after a call to Next that returned true.
func (it *Iterator) Frame() frame.Frame {
	return it.frames[it.index]
}

// ToJSON renders t as the array described in the domain's external
// interface: one object per callee, with nested arrays for call
// positions, then kinds, then frames.
func (t Taint) ToJSON() ([]byte, error) {
	var callees []*method.Method
	for c := range t.callees {
		callees = append(callees, c)
	}
	sort.Slice(callees, func(i, j int) bool { return signatureOf(callees[i]) < signatureOf(callees[j]) })

	array := make([]map[string]interface{}, 0, len(callees))
	for _, c := range callees {
		array = append(array, map[string]interface{}{
			signatureOf(c): callPositionsJSON(t.callees[c]),
		})
	}
	return jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(array)
}

// callPositionsJSON renders one callee's CalleeFrames as the middle layer
// of the nesting: one object per call_position, each carrying its own
// array of per-kind objects.
func callPositionsJSON(cf calleeframes.CalleeFrames) []map[string]interface{} {
	positions := cf.CallPositions()
	sort.Slice(positions, func(i, j int) bool {
		return callPositionString(positions[i].CallPosition()) < callPositionString(positions[j].CallPosition())
	})

	result := make([]map[string]interface{}, 0, len(positions))
	for _, cpf := range positions {
		obj := map[string]interface{}{"kinds": kindsJSON(cpf)}
		if p := cpf.CallPosition(); p != nil {
			obj["call_position"] = p.String()
		}
		result = append(result, obj)
	}
	return result
}

// kindsJSON renders one call_position's CallPositionFrames as the inner
// layer of the nesting: one object per kind, each carrying its own array
// of frame objects.
func kindsJSON(cpf callpositionframes.CallPositionFrames) []map[string]interface{} {
	kinds := cpf.Kinds()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i].Kind().Name() < kinds[j].Kind().Name() })

	result := make([]map[string]interface{}, 0, len(kinds))
	for _, kf := range kinds {
		result = append(result, map[string]interface{}{
			"kind":   kf.Kind().Name(),
			"frames": framesJSON(kf.Elements()),
		})
	}
	return result
}

func callPositionString(p *position.Position) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func framesJSON(frames []frame.Frame) []map[string]interface{} {
	sort.Slice(frames, func(i, j int) bool { return frames[i].String() < frames[j].String() })
	result := make([]map[string]interface{}, 0, len(frames))
	for _, f := range frames {
		obj := map[string]interface{}{"kind": f.Kind().Name()}
		if port := f.CalleePort().String(); port != "" {
			obj["callee_port"] = port
		}
		if c := f.Callee(); c != nil {
			obj["callee"] = c.Signature()
		}
		if fc := f.FieldCallee(); fc != nil {
			obj["field_callee"] = fc.String()
		}
		if p := f.CallPosition(); p != nil {
			obj["call_position"] = p.String()
		}
		if f.Distance() != 0 {
			obj["distance"] = f.Distance()
		}
		if !f.Origins().IsBottom() {
			obj["origins"] = frame.SortedOriginSignatures(f.Origins())
		}
		if !f.FieldOrigins().IsBottom() {
			names := make([]string, 0)
			for _, fo := range f.FieldOrigins().Elements() {
				names = append(names, fo.String())
			}
			sort.Strings(names)
			obj["field_origins"] = names
		}
		combined := f.Features()
		if !combined.IsBottom() && !combined.Empty() {
			if may := featureNames(combined.May()); len(may) > 0 {
				obj["may_features"] = may
			}
			if always := featureNames(combined.Always()); len(always) > 0 {
				obj["always_features"] = always
			}
		}
		if !f.LocalPositions().IsBottom() {
			positions := make([]string, 0)
			for _, p := range f.LocalPositions().Elements() {
				positions = append(positions, p.String())
			}
			obj["local_positions"] = positions
		}
		if !f.CanonicalNames().IsBottom() {
			names := make([]string, 0)
			for _, n := range f.CanonicalNames().Elements() {
				names = append(names, n.String())
			}
			obj["canonical_names"] = names
		}
		if len(f.ViaTypeOfPorts()) > 0 {
			obj["via_type_of"] = portStrings(f.ViaTypeOfPorts())
		}
		if len(f.ViaValueOfPorts()) > 0 {
			obj["via_value_of"] = portStrings(f.ViaValueOfPorts())
		}
		result = append(result, obj)
	}
	return result
}

func featureNames(s feature.Set) []string {
	result := make([]string, 0, len(s))
	for _, ft := range s.Elements() {
		result = append(result, ft.Name())
	}
	return result
}

func portStrings(ports []accesspath.Root) []string {
	result := make([]string, 0, len(ports))
	for _, p := range ports {
		result = append(result, p.String())
	}
	sort.Strings(result)
	return result
}

func signatureOf(m *method.Method) string {
	if m == nil {
		return ""
	}
	return m.Signature()
}

// String renders t as "[FrameByKind(kind=<kind>, frames={<frame>, ...}), ...]".
// Bottom displays as "[]".
func (t Taint) String() string {
	if t.IsBottom() {
		return "[]"
	}

	type byKind struct {
		kind   *kind.Kind
		frames []frame.Frame
	}
	buckets := make(map[*kind.Kind][]frame.Frame)
	for _, f := range t.Elements() {
		buckets[f.Kind()] = append(buckets[f.Kind()], f)
	}
	ordered := make([]byKind, 0, len(buckets))
	for k, fs := range buckets {
		ordered = append(ordered, byKind{kind: k, frames: fs})
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].kind.Name() < ordered[j].kind.Name() })

	var b strings.Builder
	b.WriteByte('[')
	for i, entry := range ordered {
		if i > 0 {
			b.WriteString(", ")
		}
		frameStrs := make([]string, len(entry.frames))
		for j, f := range entry.frames {
			frameStrs[j] = f.String()
		}
		fmt.Fprintf(&b, "FrameByKind(kind=%s, frames={%s})", entry.kind.Name(), strings.Join(frameStrs, ", "))
	}
	b.WriteByte(']')
	return b.String()
}
