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

// Package marianatrench exports the taint abstract domain to external
// drivers: an interprocedural fixpoint engine, a class loader populating
// the interners, and a JSON model reader are all expected to sit above
// this package and never reach into internal/pkg directly.
package marianatrench

import (
	"go.uber.org/zap"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/accesspath"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/canonicalname"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/frame"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taint"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

// Taint is the top-level taint domain value. See internal/pkg/taint.
type Taint = taint.Taint

// Frame is one indivisible taint record. See internal/pkg/frame.
type Frame = frame.Frame

// Context aggregates the interners the domain reads through.
// See internal/pkg/taintcontext.
type Context = taintcontext.Context

// AccessPath, Root, Element describe where on a method's signature taint
// enters or leaves. See internal/pkg/accesspath.
type (
	AccessPath = accesspath.AccessPath
	Root       = accesspath.Root
	Element    = accesspath.Element
)

// Kind, Method, Field, Position, Feature are the domain's interned
// reference types. See their respective internal/pkg packages.
type (
	Kind     = kind.Kind
	Method   = method.Method
	Field    = field.Field
	Position = position.Position
	Feature  = feature.Feature
)

// CanonicalName is a CRTEX naming template or instantiated value. See
// internal/pkg/canonicalname.
type CanonicalName = canonicalname.CanonicalName

// NewContext creates a Context with fresh interners and the given zap
// logger (nil installs a no-op logger).
func NewContext(logger *zap.Logger) *Context {
	return taintcontext.New(logger)
}

// NewTaint builds a Taint from the given frames. See taint.NewSet.
func NewTaint(frames ...Frame) Taint {
	return taint.NewSet(frames...)
}

// BottomTaint returns the empty Taint.
func BottomTaint() Taint {
	return taint.Bottom()
}

// NewFrame builds a Frame from its full attribute set. See frame.New.
func NewFrame(
	k *Kind,
	calleePort AccessPath,
	callee *Method,
	fieldCallee *Field,
	callPosition *Position,
	distance int,
	origins method.Set,
	fieldOrigins field.Set,
	inferredFeatures feature.MayAlwaysSet,
	locallyInferredFeatures feature.MayAlwaysSet,
	userFeatures feature.Set,
	viaTypeOfPorts []Root,
	viaValueOfPorts []Root,
	localPositions position.Set,
	canonicalNames canonicalname.Set,
) Frame {
	return frame.New(
		k, calleePort, callee, fieldCallee, callPosition, distance,
		origins, fieldOrigins, inferredFeatures, locallyInferredFeatures, userFeatures,
		viaTypeOfPorts, viaValueOfPorts, localPositions, canonicalNames,
	)
}
