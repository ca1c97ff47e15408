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

package callpositionframes

import (
	"testing"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/canonicalname"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

func newTestCtx() *taintcontext.Context {
	return taintcontext.New(nil)
}

// Scenario 1: simple propagation.
func TestPropagate_SimplePropagation(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("TestSinkOne")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	input := NewSet(frame.New(
		k, accesspath.New(accesspath.NewLeaf()), one, nil, nil, 1,
		method.NewSet(one), field.Bottom(),
		feature.BottomMayAlways(), feature.BottomMayAlways(), feature.Bottom(),
		nil, nil, position.Bottom(), nil,
	))

	out := Propagate(input, two, accesspath.New(accesspath.NewArgument(0)), pos, 100, ctx, nil, nil)

	elements := out.Elements()
	if len(elements) != 1 {
		t.Fatalf("len(Elements()) = %d, want 1", len(elements))
	}
	got := elements[0]
	if got.Kind() != k {
		t.Errorf("Kind() = %v, want %v", got.Kind(), k)
	}
	if got.Callee() != two {
		t.Errorf("Callee() = %v, want %v", got.Callee(), two)
	}
	if got.CallPosition() != pos {
		t.Errorf("CallPosition() = %v, want %v", got.CallPosition(), pos)
	}
	if got.Distance() != 2 {
		t.Errorf("Distance() = %d, want 2", got.Distance())
	}
	if !got.Origins().Equals(method.NewSet(one)) {
		t.Errorf("Origins() = %v, want {one}", got.Origins())
	}
	if !got.LocallyInferredFeatures().IsBottom() {
		t.Errorf("LocallyInferredFeatures() is not bottom")
	}
}

// Scenario 2: distance drop.
func TestPropagate_DistanceDrop(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("TestSinkOne")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	input := NewSet(frame.New(
		k, accesspath.New(accesspath.NewLeaf()), one, nil, nil, 1,
		method.NewSet(one), field.Bottom(),
		feature.BottomMayAlways(), feature.BottomMayAlways(), feature.Bottom(),
		nil, nil, position.Bottom(), nil,
	))

	out := Propagate(input, two, accesspath.New(accesspath.NewArgument(0)), pos, 1, ctx, nil, nil)

	if !out.IsBottom() {
		t.Errorf("Propagate() with max=1 and input distance=1 is not bottom")
	}
}

// Scenario 4: CRTEX instantiation.
func TestPropagate_CrtexInstantiation(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	names := canonicalname.NewSet(canonicalname.NewTemplate("%programmatic_leaf_name%"))
	input := NewSet(frame.New(
		k, accesspath.New(accesspath.NewAnchor()), nil, nil, nil, 0,
		method.NewSet(one), field.Bottom(),
		feature.BottomMayAlways(), feature.BottomMayAlways(), feature.Bottom(),
		nil, nil, position.Bottom(), names,
	))

	out := Propagate(input, two, accesspath.New(accesspath.NewArgument(0)), pos, 100, ctx, nil, nil)

	elements := out.Elements()
	if len(elements) != 1 {
		t.Fatalf("len(Elements()) = %d, want 1", len(elements))
	}
	got := elements[0]
	if got.CalleePort().String() != "Anchor.Argument(-1)" {
		t.Errorf("CalleePort().String() = %q, want %q", got.CalleePort().String(), "Anchor.Argument(-1)")
	}
	if got.Distance() != 0 {
		t.Errorf("Distance() = %d, want 0", got.Distance())
	}
	wantNames := got.CanonicalNames().Elements()
	if len(wantNames) != 1 || wantNames[0].String() != two.Signature() {
		t.Errorf("CanonicalNames() = %v, want instantiated %q", wantNames, two.Signature())
	}
}

// Scenario 5: kind transform with merge.
func TestTransformKindWithFeatures_MergeDemotesAlwaysToMay(t *testing.T) {
	ctx := newTestCtx()
	k1 := ctx.Kinds.Get("K1")
	k2 := ctx.Kinds.Get("K2")
	target := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	f1Feature := ctx.Features.Get("f1")
	f2Feature := ctx.Features.Get("f2")
	userFeature := ctx.Features.Get("uf1")

	frame1 := frame.New(
		k1, accesspath.New(accesspath.NewLeaf()), nil, nil, nil, 0,
		method.NewSet(one), field.Bottom(),
		feature.MakeAlways(feature.NewSet(f2Feature)), feature.BottomMayAlways(),
		feature.NewSet(userFeature), nil, nil, position.Bottom(), nil,
	)
	frame2 := frame.New(
		k2, accesspath.New(accesspath.NewLeaf()), nil, nil, nil, 0,
		method.NewSet(one), field.Bottom(),
		feature.MakeAlways(feature.NewSet(f1Feature)), feature.BottomMayAlways(),
		feature.NewSet(userFeature), nil, nil, position.Bottom(), nil,
	)

	s := NewSet(frame1, frame2)
	out := s.TransformKindWithFeatures(
		func(k *kind.Kind) []*kind.Kind { return []*kind.Kind{target} },
		nil,
	)

	elements := out.Elements()
	if len(elements) != 1 {
		t.Fatalf("len(Elements()) = %d, want 1", len(elements))
	}
	merged := elements[0]
	if merged.Kind() != target {
		t.Errorf("Kind() = %v, want %v", merged.Kind(), target)
	}
	if !merged.InferredFeatures().May().Contains(f1Feature) || !merged.InferredFeatures().May().Contains(f2Feature) {
		t.Errorf("InferredFeatures().May() is missing a feature")
	}
	if merged.InferredFeatures().Always().Contains(f1Feature) || merged.InferredFeatures().Always().Contains(f2Feature) {
		t.Errorf("InferredFeatures().Always() still contains a feature that should have demoted to may")
	}
}

// Scenario 6: filter_invalid_frames by kind.
func TestFilterInvalidFrames_ByKind(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("K")
	artificial := ctx.Kinds.ArtificialSource()
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")

	f1 := frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, nil, 0,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil)
	f2 := frame.New(artificial, accesspath.New(accesspath.NewLeaf()), nil, nil, nil, 0,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil)

	s := NewSet(f1, f2)
	filtered := s.FilterInvalidFrames(func(callee *method.Method, calleePort accesspath.AccessPath, fk *kind.Kind) bool {
		return !ctx.Kinds.IsArtificialSource(fk)
	})

	if filtered.ContainsKind(artificial) {
		t.Errorf("filtered set still contains the artificial_source kind")
	}
	if !filtered.ContainsKind(k) {
		t.Errorf("filtered set dropped the non-artificial kind")
	}
}

func TestMeet_IsGreatestLowerBound(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	a := NewSet(frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, pos, 1,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil))
	b := NewSet(frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, pos, 1,
		method.NewSet(two), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil))

	met := a.Meet(b)

	if !met.Leq(a) || !met.Leq(b) {
		t.Errorf("Meet(a, b) is not a lower bound of a and b")
	}
	if met.IsBottom() {
		t.Fatalf("Meet(a, b) is bottom, want a surviving shared (kind, call_position) group key")
	}
}

func TestMeet_MismatchedCallPositionIsBottom(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	posA := ctx.Positions.Get("Test.java", 1)
	posB := ctx.Positions.Get("Test.java", 2)

	a := NewSet(frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, posA, 0,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil))
	b := NewSet(frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, posB, 0,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil))

	if !a.Meet(b).IsBottom() {
		t.Errorf("Meet of CallPositionFrames at different call positions is not bottom")
	}
}

func TestNarrow_IsMeet(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	pos := ctx.Positions.Get("Test.java", 1)

	a := NewSet(frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, pos, 1,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil))
	b := NewSet(frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, pos, 2,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil))

	if !a.Narrow(b).Equals(a.Meet(b)) {
		t.Errorf("Narrow does not match Meet")
	}
}

func TestJoin_AdoptsOtherSidesCallPosition(t *testing.T) {
	ctx := newTestCtx()
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	pos := ctx.Positions.Get("Test.java", 1)

	f := frame.New(k, accesspath.New(accesspath.NewLeaf()), nil, nil, pos, 0,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil)

	s := NewSet(f)
	joined := Bottom().Join(s)

	if joined.CallPosition() != pos {
		t.Errorf("Bottom().Join(s).CallPosition() = %v, want %v", joined.CallPosition(), pos)
	}
}
