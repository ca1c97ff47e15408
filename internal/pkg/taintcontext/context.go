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

// Package taintcontext aggregates the interners the taint domain reads
// from during propagation: methods, kinds, features, positions and fields.
// The domain only ever reads through a Context; populating it (from a class
// loader, a model reader, ...) is an external driver's responsibility.
package taintcontext

import (
	"go.uber.org/zap"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/feature"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/field"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/kind"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/position"
)

// unknownTypeFeatureName is used when a via-type-of port is materialized
// against an absent (nil) runtime type.
const unknownTypeFeatureName = "via-type:unknown"

// unknownValueFeatureName is used when a via-value-of port is materialized
// against an absent constant argument.
const unknownValueFeatureName = "via-value:unknown"

// Features wraps the feature interner with the two via-* feature lookups
// propagate needs: materializing a parameter's runtime type or constant
// value into an inferred feature.
type Features struct {
	factory *feature.Factory
}

// Get interns and returns the Feature with the given name.
func (f *Features) Get(name string) *feature.Feature {
	return f.factory.Get(name)
}

// GetViaTypeOfFeature returns the feature that represents "this argument's
// runtime type was typeName" (or "unknown" if typeName is empty).
func (f *Features) GetViaTypeOfFeature(typeName string) *feature.Feature {
	if typeName == "" {
		return f.factory.Get(unknownTypeFeatureName)
	}
	return f.factory.Get("via-type:" + typeName)
}

// GetViaValueOfFeature returns the feature that represents "this argument's
// constant value was value" (or "unknown" if value is nil).
func (f *Features) GetViaValueOfFeature(value *string) *feature.Feature {
	if value == nil {
		return f.factory.Get(unknownValueFeatureName)
	}
	return f.factory.Get("via-value:" + *value)
}

// Context aggregates every interner the taint domain reads from, plus a
// logger for the warnings described in the domain's error handling design:
// invalid via-type-of/via-value-of ports and CRTEX frames missing
// canonical names are logged and skipped rather than propagated as errors.
type Context struct {
	Methods   *method.Factory
	Fields    *field.Factory
	Kinds     *kind.Factory
	Features  *Features
	Positions *position.Factory
	Logger    *zap.SugaredLogger
}

// New creates a Context with fresh, empty interners and the given logger.
// Passing a nil logger installs a no-op logger, which is convenient for
// tests that don't care about warnings.
func New(logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		Methods:   method.NewFactory(),
		Fields:    field.NewFactory(),
		Kinds:     kind.NewFactory(),
		Features:  &Features{factory: feature.NewFactory()},
		Positions: position.NewFactory(),
		Logger:    logger.Sugar(),
	}
}

// WarnInvalidPort logs the warning the domain emits when a via-type-of or
// via-value-of port does not refer to a valid argument, per the error
// handling design: the port is skipped and propagation continues.
func (c *Context) WarnInvalidPort(callee *method.Method, kind *kind.Kind, port string) {
	c.Logger.Warnw("invalid via-type-of/via-value-of port",
		"callee", calleeSignature(callee),
		"kind", kind.Name(),
		"port", port,
	)
}

// WarnMissingCanonicalNames logs the warning the domain emits when a CRTEX
// frame has no canonical names configured: the frame is dropped.
func (c *Context) WarnMissingCanonicalNames(kind *kind.Kind) {
	c.Logger.Warnw("crtex frame has no canonical names configured", "kind", kind.Name())
}

func calleeSignature(callee *method.Method) string {
	if callee == nil {
		return "<leaf>"
	}
	return callee.Signature()
}
