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

package taint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

// These cover the end-to-end scenarios spec.md's TESTABLE PROPERTIES section
// states in literal-input terms; unlike the rest of this package's tests,
// they assert with testify, since each scenario checks a handful of
// independent attributes on the same result and require/assert reads closer
// to the spec's own "Expected: ..." prose than a chain of t.Errorf calls.

// Scenario 1 & 2: simple propagation, and the distance-drop boundary case.
func TestScenario_SimplePropagation(t *testing.T) {
	ctx := taintcontext.New(nil)
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

	out := input.Propagate(two, accesspath.New(accesspath.NewArgument(0)), pos, 100, ctx, nil, nil)

	elements := out.Elements()
	require.Len(t, elements, 1, "propagate should emit exactly one frame")
	f := elements[0]
	assert.Equal(t, k, f.Kind())
	assert.Equal(t, "Argument(0)", f.CalleePort().String())
	assert.Equal(t, two, f.Callee())
	assert.Equal(t, pos, f.CallPosition())
	assert.Equal(t, 2, f.Distance())
	assert.True(t, f.Origins().Contains(one))
	assert.True(t, f.LocallyInferredFeatures().IsBottom())

	// Scenario 2: same input, but max_distance=1 means the frame (at
	// distance 1) is already at the cap and propagate drops it to bottom.
	dropped := input.Propagate(two, accesspath.New(accesspath.NewArgument(0)), pos, 1, ctx, nil, nil)
	assert.True(t, dropped.IsBottom(), "propagate past max_distance should yield bottom")
}

// Scenario 5: transforming two kinds onto the same target kind joins their
// frames, which demotes an always-feature present on only one side to may.
func TestScenario_KindTransformMerge(t *testing.T) {
	ctx := taintcontext.New(nil)
	k1 := ctx.Kinds.Get("K1")
	k2 := ctx.Kinds.Get("K2")
	kPrime := ctx.Kinds.Get("K'")
	callee := ctx.Methods.Get("com.example.Callee", "callee", "com.example.Callee.callee()")
	origin := ctx.Methods.Get("com.example.Origin", "origin", "com.example.Origin.origin()")
	f1Feature := ctx.Features.Get("f1")
	f2Feature := ctx.Features.Get("f2")
	uf1Feature := ctx.Features.Get("uf1")

	build := func(k *kind.Kind, inferred *feature.Feature) frame.Frame {
		return frame.New(
			k, accesspath.New(accesspath.NewLeaf()), callee, nil, nil, 0,
			method.NewSet(origin), field.Bottom(),
			feature.MakeAlways(feature.NewSet(inferred)), feature.BottomMayAlways(),
			feature.NewSet(uf1Feature),
			nil, nil, position.Bottom(), nil,
		)
	}

	input := NewSet(build(k1, f2Feature), build(k2, f1Feature))

	transformed := input.TransformKindWithFeatures(
		func(*kind.Kind) []*kind.Kind { return []*kind.Kind{kPrime} },
		func(*kind.Kind) feature.MayAlwaysSet { return feature.BottomMayAlways() },
	)

	elements := transformed.Elements()
	require.Len(t, elements, 1, "both source kinds collapse onto K'")
	merged := elements[0]
	assert.Equal(t, kPrime, merged.Kind())
	assert.ElementsMatch(t, []*feature.Feature{f1Feature, f2Feature}, merged.InferredFeatures().May().Elements())
	assert.Empty(t, merged.InferredFeatures().Always().Elements(), "the always-feature present on only one side must demote to may")
	assert.Equal(t, []*feature.Feature{uf1Feature}, merged.UserFeatures().Elements())
}

// Scenario 6: filter_invalid_frames drops every frame of a named kind and
// keeps the rest.
func TestScenario_FilterInvalidFramesByKind(t *testing.T) {
	ctx := taintcontext.New(nil)
	k := ctx.Kinds.Get("K")
	artificial := ctx.Kinds.Get("artificial_source")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")

	leaf := func(k *kind.Kind, callee *method.Method) frame.Frame {
		return frame.New(
			k, accesspath.New(accesspath.NewLeaf()), callee, nil, nil, 0,
			method.NewSet(callee), field.Bottom(),
			feature.BottomMayAlways(), feature.BottomMayAlways(), feature.Bottom(),
			nil, nil, position.Bottom(), nil,
		)
	}

	input := NewSet(leaf(k, one), leaf(artificial, two))

	filtered := input.FilterInvalidFrames(func(_ *method.Method, _ accesspath.AccessPath, frameKind *kind.Kind) bool {
		return frameKind != artificial
	})

	elements := filtered.Elements()
	require.Len(t, elements, 1)
	assert.Equal(t, k, elements[0].Kind())
}
