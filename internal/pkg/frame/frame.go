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

// Package frame defines Frame, the leaf of the taint domain's four-layer
// lattice: one indivisible taint record describing a single kind, callee
// port, and (for non-leaf frames) callee.
package frame

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/canonicalname"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
)

// Frame is one indivisible taint record: one kind, one callee port, and
// (for non-leaf frames) the callee it was propagated through.
//
// Frame is an immutable value. Every editor below (AddInferredFeatures,
// WithKind, ...) returns a modified copy rather than mutating the receiver.
type Frame struct {
	kind         *kind.Kind
	calleePort   accesspath.AccessPath
	callee       *method.Method
	fieldCallee  *field.Field
	callPosition *position.Position
	distance     int

	origins      method.Set
	fieldOrigins field.Set

	inferredFeatures        feature.MayAlwaysSet
	locallyInferredFeatures feature.MayAlwaysSet
	userFeatures            feature.Set

	viaTypeOfPorts  []accesspath.Root
	viaValueOfPorts []accesspath.Root

	localPositions position.Set
	canonicalNames canonicalname.Set
}

// Bottom returns the distinguished empty Frame.
func Bottom() Frame {
	return Frame{}
}

// New builds a Frame from its full attribute set.
func New(
	k *kind.Kind,
	calleePort accesspath.AccessPath,
	callee *method.Method,
	fieldCallee *field.Field,
	callPosition *position.Position,
	distance int,
	origins method.Set,
	fieldOrigins field.Set,
	inferredFeatures feature.MayAlwaysSet,
	locallyInferredFeatures feature.MayAlwaysSet,
	userFeatures feature.Set,
	viaTypeOfPorts []accesspath.Root,
	viaValueOfPorts []accesspath.Root,
	localPositions position.Set,
	canonicalNames canonicalname.Set,
) Frame {
	return Frame{
		kind:                    k,
		calleePort:              calleePort,
		callee:                  callee,
		fieldCallee:             fieldCallee,
		callPosition:            callPosition,
		distance:                distance,
		origins:                 origins,
		fieldOrigins:            fieldOrigins,
		inferredFeatures:        inferredFeatures,
		locallyInferredFeatures: locallyInferredFeatures,
		userFeatures:            userFeatures,
		viaTypeOfPorts:          viaTypeOfPorts,
		viaValueOfPorts:         viaValueOfPorts,
		localPositions:          localPositions,
		canonicalNames:          canonicalNames,
	}
}

// IsBottom reports whether the frame is the distinguished empty frame.
func (f Frame) IsBottom() bool {
	return f.kind == nil
}

// Kind returns the frame's taint flavor.
func (f Frame) Kind() *kind.Kind { return f.kind }

// CalleePort returns the access path on the callee this frame describes.
func (f Frame) CalleePort() accesspath.AccessPath { return f.calleePort }

// Callee returns the resolved callee method, or nil for a leaf frame.
func (f Frame) Callee() *method.Method { return f.callee }

// FieldCallee returns the resolved field reference, or nil.
func (f Frame) FieldCallee() *field.Field { return f.fieldCallee }

// CallPosition returns the source position of the call site, or nil for a
// leaf frame.
func (f Frame) CallPosition() *position.Position { return f.callPosition }

// Distance returns the nonnegative hop count from a leaf origin.
func (f Frame) Distance() int { return f.distance }

// Origins returns the set of originating methods.
func (f Frame) Origins() method.Set { return f.origins }

// FieldOrigins returns the set of originating field references.
func (f Frame) FieldOrigins() field.Set { return f.fieldOrigins }

// InferredFeatures returns the features inferred along the trace.
func (f Frame) InferredFeatures() feature.MayAlwaysSet { return f.inferredFeatures }

// LocallyInferredFeatures returns the subset of inferred features added at
// this hop only. These are folded into the successor frame's
// InferredFeatures by the next propagate call; do not conflate the two.
func (f Frame) LocallyInferredFeatures() feature.MayAlwaysSet { return f.locallyInferredFeatures }

// UserFeatures returns the features declared by a user model.
func (f Frame) UserFeatures() feature.Set { return f.userFeatures }

// ViaTypeOfPorts returns the parameter-position roots whose runtime type
// becomes a feature at the next propagation.
func (f Frame) ViaTypeOfPorts() []accesspath.Root { return f.viaTypeOfPorts }

// ViaValueOfPorts returns the parameter-position roots whose constant
// argument value becomes a feature at the next propagation.
func (f Frame) ViaValueOfPorts() []accesspath.Root { return f.viaValueOfPorts }

// LocalPositions returns the set of source positions visited locally.
func (f Frame) LocalPositions() position.Set { return f.localPositions }

// CanonicalNames returns the CRTEX naming templates or instantiated names
// attached to this frame.
func (f Frame) CanonicalNames() canonicalname.Set { return f.canonicalNames }

// IsLeaf reports whether the frame has no callee, i.e. distance is 0 and
// it represents an origin endpoint.
func (f Frame) IsLeaf() bool {
	return f.callee == nil
}

// IsCrtexProducerDeclaration reports whether the frame's callee port root
// is the analyzer's CRTEX declaration marker (Anchor or Producer).
func (f Frame) IsCrtexProducerDeclaration() bool {
	root := f.calleePort.Root()
	return root.Kind() == accesspath.Anchor || root.Kind() == accesspath.Producer
}

// Features returns the combined user + inferred view of the frame's
// features: the user-declared features are added as "always" features on
// top of whatever was separately inferred along the trace.
func (f Frame) Features() feature.MayAlwaysSet {
	if f.inferredFeatures.IsBottom() {
		return feature.MakeAlways(f.userFeatures)
	}
	result := f.inferredFeatures
	for _, ft := range f.userFeatures.Elements() {
		result = result.AddAlways(ft)
	}
	return result
}

// WithKind returns a clone of f whose kind is k.
func (f Frame) WithKind(k *kind.Kind) Frame {
	clone := f
	clone.kind = k
	return clone
}

// CalleePortAppend returns a clone of f whose callee port has e appended.
func (f Frame) CalleePortAppend(e accesspath.Element) Frame {
	clone := f
	clone.calleePort = f.calleePort.Append(e)
	return clone
}

// AddInferredFeatures returns a clone of f with fs folded into
// LocallyInferredFeatures.
func (f Frame) AddInferredFeatures(fs feature.MayAlwaysSet) Frame {
	if fs.IsBottom() {
		return f
	}
	clone := f
	clone.locallyInferredFeatures = f.locallyInferredFeatures.Join(fs)
	return clone
}

// AddLocalPosition returns a clone of f with p inserted into
// LocalPositions.
func (f Frame) AddLocalPosition(p *position.Position) Frame {
	clone := f
	clone.localPositions = f.localPositions.Add(p)
	return clone
}

// SetLocalPositions returns a clone of f whose LocalPositions is replaced
// by positions.
func (f Frame) SetLocalPositions(positions position.Set) Frame {
	clone := f
	clone.localPositions = positions
	return clone
}

// sameIdentity reports whether f and other describe the same (kind,
// callee, callee_port, field_callee, call_position, canonical_names): the
// attributes that identify a Frame within a group, and the only attributes
// Leq/Join/Meet require to agree before comparing or merging the rest.
func (f Frame) sameIdentity(other Frame) bool {
	return f.kind == other.kind &&
		f.calleePort.Equal(other.calleePort) &&
		f.callee == other.callee &&
		f.fieldCallee == other.fieldCallee &&
		f.callPosition == other.callPosition &&
		f.canonicalNames.Equals(other.canonicalNames)
}

// Equal reports whether f and other are structurally identical across all
// attributes.
func (f Frame) Equal(other Frame) bool {
	if f.IsBottom() || other.IsBottom() {
		return f.IsBottom() == other.IsBottom()
	}
	return f.sameIdentity(other) &&
		f.distance == other.distance &&
		f.origins.Equals(other.origins) &&
		f.fieldOrigins.Equals(other.fieldOrigins) &&
		f.inferredFeatures.Equals(other.inferredFeatures) &&
		f.locallyInferredFeatures.Equals(other.locallyInferredFeatures) &&
		f.userFeatures.Equals(other.userFeatures) &&
		f.localPositions.Equals(other.localPositions) &&
		portsEqual(f.viaTypeOfPorts, other.viaTypeOfPorts) &&
		portsEqual(f.viaValueOfPorts, other.viaValueOfPorts)
}

// Leq reports whether f is less-or-equal to other in the frame lattice.
// Frames with different identities are only comparable through bottom:
// Leq returns false for two non-bottom frames that disagree on kind,
// callee, callee port, field callee, call position or canonical names.
//
// Distance compares in reverse: a frame closer to its origin (smaller
// distance) carries strictly more information, so f.Leq(other) requires
// f.distance >= other.distance. This keeps Join's "distance = min" rule an
// actual least upper bound (TestLeq_DistanceIsReversed checks this order).
func (f Frame) Leq(other Frame) bool {
	if f.IsBottom() {
		return true
	}
	if other.IsBottom() {
		return false
	}
	if !f.sameIdentity(other) {
		return false
	}
	return f.distance >= other.distance &&
		f.origins.Leq(other.origins) &&
		f.fieldOrigins.Leq(other.fieldOrigins) &&
		f.inferredFeatures.Leq(other.inferredFeatures) &&
		f.locallyInferredFeatures.Leq(other.locallyInferredFeatures) &&
		f.userFeatures.Leq(other.userFeatures) &&
		f.localPositions.Leq(other.localPositions) &&
		portsSubset(f.viaTypeOfPorts, other.viaTypeOfPorts)
}

// Join returns the least upper bound of f and other. The caller is
// expected to only join frames with the same identity (see Leq); joining
// frames that disagree is a precondition violation and the result favors
// f's identity attributes.
func (f Frame) Join(other Frame) Frame {
	if f.IsBottom() {
		return other
	}
	if other.IsBottom() {
		return f
	}

	distance := f.distance
	if other.distance < distance {
		distance = other.distance
	}

	return Frame{
		kind:                    f.kind,
		calleePort:              f.calleePort,
		callee:                  f.callee,
		fieldCallee:             f.fieldCallee,
		callPosition:            f.callPosition,
		distance:                distance,
		origins:                 f.origins.Join(other.origins),
		fieldOrigins:            f.fieldOrigins.Join(other.fieldOrigins),
		inferredFeatures:        f.inferredFeatures.Join(other.inferredFeatures),
		locallyInferredFeatures: f.locallyInferredFeatures.Join(other.locallyInferredFeatures),
		userFeatures:            f.userFeatures.Join(other.userFeatures),
		viaTypeOfPorts:          unionPorts(f.viaTypeOfPorts, other.viaTypeOfPorts),
		viaValueOfPorts:         unionPorts(f.viaValueOfPorts, other.viaValueOfPorts),
		localPositions:          f.localPositions.Join(other.localPositions),
		canonicalNames:          f.canonicalNames.Join(other.canonicalNames),
	}
}

// Widen is Join: the frame lattice has finite height (every attribute set
// is bounded by what propagate can add in one hop), so join is already a
// valid widening operator.
func (f Frame) Widen(other Frame) Frame {
	return f.Join(other)
}

// Meet returns the greatest lower bound of f and other. As with Join, this
// is only meaningful when both frames share an identity (see sameIdentity);
// frames that disagree on kind, callee, callee port, field callee, call
// position or canonical names have no non-bottom lower bound other than
// Bottom, since no such frame could be Leq both of them, so Meet returns
// Bottom for those. Every joined-away attribute meets pointwise: distance
// takes the max (the dual of Join's min, since distance is ordered in
// reverse -- see Leq), and each attribute set meets via its own Meet
// (intersection for plain sets, the May/Always dual for MayAlwaysSet).
func (f Frame) Meet(other Frame) Frame {
	if f.IsBottom() || other.IsBottom() {
		return Bottom()
	}
	if !f.sameIdentity(other) {
		return Bottom()
	}

	distance := f.distance
	if other.distance > distance {
		distance = other.distance
	}

	return Frame{
		kind:                    f.kind,
		calleePort:              f.calleePort,
		callee:                  f.callee,
		fieldCallee:             f.fieldCallee,
		callPosition:            f.callPosition,
		distance:                distance,
		origins:                 f.origins.Meet(other.origins),
		fieldOrigins:            f.fieldOrigins.Meet(other.fieldOrigins),
		inferredFeatures:        f.inferredFeatures.Meet(other.inferredFeatures),
		locallyInferredFeatures: f.locallyInferredFeatures.Meet(other.locallyInferredFeatures),
		userFeatures:            f.userFeatures.Meet(other.userFeatures),
		viaTypeOfPorts:          portsIntersect(f.viaTypeOfPorts, other.viaTypeOfPorts),
		viaValueOfPorts:         portsIntersect(f.viaValueOfPorts, other.viaValueOfPorts),
		localPositions:          f.localPositions.Meet(other.localPositions),
		canonicalNames:          f.canonicalNames,
	}
}

// Narrow is Meet: the frame lattice has finite height, so meet is already a
// valid narrowing operator.
func (f Frame) Narrow(other Frame) Frame {
	return f.Meet(other)
}

func portsEqual(a, b []accesspath.Root) bool {
	return portsSubset(a, b) && portsSubset(b, a)
}

func portsSubset(a, b []accesspath.Root) bool {
	for _, x := range a {
		found := false
		for _, y := range b {
			if x.Equal(y) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func portsIntersect(a, b []accesspath.Root) []accesspath.Root {
	result := make([]accesspath.Root, 0, len(a))
	for _, x := range a {
		for _, y := range b {
			if x.Equal(y) {
				result = append(result, x)
				break
			}
		}
	}
	return result
}

func unionPorts(a, b []accesspath.Root) []accesspath.Root {
	result := make([]accesspath.Root, 0, len(a)+len(b))
	result = append(result, a...)
	for _, y := range b {
		found := false
		for _, x := range a {
			if x.Equal(y) {
				found = true
				break
			}
		}
		if !found {
			result = append(result, y)
		}
	}
	return result
}

func (f Frame) String() string {
	if f.IsBottom() {
		return "Frame()"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Frame(kind=%s, callee_port=%s", f.kind, f.calleePort)
	if f.callee != nil {
		fmt.Fprintf(&b, ", callee=%s", f.callee)
	}
	fmt.Fprintf(&b, ", distance=%d)", f.distance)
	return b.String()
}

// sortedOriginSignatures is a small display helper shared with the taint
// package's JSON encoding.
func sortedOriginSignatures(s method.Set) []string {
	names := make([]string, 0, len(s))
	for _, m := range s.Elements() {
		names = append(names, m.Signature())
	}
	sort.Strings(names)
	return names
}

// SortedOriginSignatures exposes sortedOriginSignatures for JSON encoding.
func SortedOriginSignatures(s method.Set) []string {
	return sortedOriginSignatures(s)
}
