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

package calleeframes

import (
	"testing"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

func TestAdd_MismatchedCalleePanics(t *testing.T) {
	ctx := taintcontext.New(nil)
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	leaf := func(callee *method.Method) frame.Frame {
		return frame.New(k, accesspath.New(accesspath.NewReturn()), callee, nil, pos, 0,
			method.Bottom(), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
			feature.Bottom(), nil, nil, position.Bottom(), nil)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Add with mismatched callee did not panic")
		}
	}()

	s := NewSet(leaf(one))
	s.Add(leaf(two))
}

func TestMeet_IsGreatestLowerBound(t *testing.T) {
	ctx := taintcontext.New(nil)
	k := ctx.Kinds.Get("K")
	callee := ctx.Methods.Get("com.example.Callee", "callee", "com.example.Callee.callee()")
	origin1 := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	origin2 := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	frameWithOrigin := func(origin *method.Method) frame.Frame {
		return frame.New(k, accesspath.New(accesspath.NewReturn()), callee, nil, pos, 0,
			method.NewSet(origin), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
			feature.Bottom(), nil, nil, position.Bottom(), nil)
	}

	a := NewSet(frameWithOrigin(origin1))
	b := NewSet(frameWithOrigin(origin2))

	met := a.Meet(b)

	if !met.Leq(a) || !met.Leq(b) {
		t.Errorf("Meet(a, b) is not a lower bound of a and b")
	}
	if met.IsBottom() {
		t.Fatalf("Meet(a, b) is bottom, want a surviving shared (callee, call_position) group key")
	}
}

func TestMeet_MismatchedCalleeIsBottom(t *testing.T) {
	ctx := taintcontext.New(nil)
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	pos := ctx.Positions.Get("Test.java", 1)

	leaf := func(callee *method.Method) frame.Frame {
		return frame.New(k, accesspath.New(accesspath.NewReturn()), callee, nil, pos, 0,
			method.Bottom(), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
			feature.Bottom(), nil, nil, position.Bottom(), nil)
	}

	a := NewSet(leaf(one))
	b := NewSet(leaf(two))

	if !a.Meet(b).IsBottom() {
		t.Errorf("Meet of CalleeFrames with different callees is not bottom")
	}
}

func TestNarrow_IsMeet(t *testing.T) {
	ctx := taintcontext.New(nil)
	k := ctx.Kinds.Get("K")
	callee := ctx.Methods.Get("com.example.Callee", "callee", "com.example.Callee.callee()")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	pos := ctx.Positions.Get("Test.java", 1)

	leaf := frame.New(k, accesspath.New(accesspath.NewReturn()), callee, nil, pos, 0,
		method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
		feature.Bottom(), nil, nil, position.Bottom(), nil)

	a := NewSet(leaf)
	b := NewSet(leaf)

	if !a.Narrow(b).Equals(a.Meet(b)) {
		t.Errorf("Narrow does not match Meet")
	}
}

func TestPropagate_FoldsAcrossCallPositions(t *testing.T) {
	ctx := taintcontext.New(nil)
	k := ctx.Kinds.Get("K")
	one := ctx.Methods.Get("com.example.One", "one", "com.example.One.one()")
	two := ctx.Methods.Get("com.example.Two", "two", "com.example.Two.two()")
	posA := ctx.Positions.Get("Test.java", 1)
	posB := ctx.Positions.Get("Test.java", 2)

	frameAt := func(p *position.Position) frame.Frame {
		return frame.New(k, accesspath.New(accesspath.NewReturn()), one, nil, p, 0,
			method.NewSet(one), field.Bottom(), feature.BottomMayAlways(), feature.BottomMayAlways(),
			feature.Bottom(), nil, nil, position.Bottom(), nil)
	}

	s := NewSet(frameAt(posA), frameAt(posB))

	callSite := ctx.Positions.Get("Caller.java", 10)
	out := s.Propagate(two, accesspath.New(accesspath.NewArgument(0)), callSite, 100, ctx, nil, nil)

	elements := out.Elements()
	if len(elements) != 1 {
		t.Fatalf("len(Elements()) = %d, want 1 (both call positions collapse into one propagated frame)", len(elements))
	}
	if elements[0].Callee() != two {
		t.Errorf("Callee() = %v, want %v", elements[0].Callee(), two)
	}
}
