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

// Package accesspath represents the roots and path elements used to
// describe where on a method's signature a Frame's taint enters or leaves.
package accesspath

import (
	"fmt"
	"strings"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/method"
)

// RootKind tags the flavor of an access path's Root.
type RootKind int

const (
	// Return is the root describing a method's return value.
	Return RootKind = iota
	// Leaf is the root used by leaf frames with no callee port of their own.
	Leaf
	// Anchor is the CRTEX declaration root for an exported value.
	Anchor
	// Producer is the CRTEX declaration root for an exported producer.
	Producer
	// Argument is the root describing the nth formal parameter (the
	// receiver counts as argument 0).
	Argument
)

func (k RootKind) String() string {
	switch k {
	case Return:
		return "Return"
	case Leaf:
		return "Leaf"
	case Anchor:
		return "Anchor"
	case Producer:
		return "Producer"
	case Argument:
		return "Argument"
	default:
		return "Unknown"
	}
}

// Root is the tagged-union root of an AccessPath.
type Root struct {
	kind              RootKind
	parameterPosition int
}

// NewReturn builds a Return root.
func NewReturn() Root { return Root{kind: Return} }

// NewLeaf builds a Leaf root.
func NewLeaf() Root { return Root{kind: Leaf} }

// NewAnchor builds an Anchor root.
func NewAnchor() Root { return Root{kind: Anchor} }

// NewProducer builds a Producer root.
func NewProducer() Root { return Root{kind: Producer} }

// NewArgument builds an Argument(position) root.
func NewArgument(position int) Root {
	return Root{kind: Argument, parameterPosition: position}
}

// Kind returns the root's tag.
func (r Root) Kind() RootKind { return r.kind }

// IsArgument reports whether the root is an Argument(position) root.
func (r Root) IsArgument() bool { return r.kind == Argument }

// ParameterPosition returns the argument index. Only meaningful when
// IsArgument() is true.
func (r Root) ParameterPosition() int { return r.parameterPosition }

func (r Root) String() string {
	if r.kind == Argument {
		return fmt.Sprintf("Argument(%d)", r.parameterPosition)
	}
	return r.kind.String()
}

// Equal reports whether r and other describe the same root.
func (r Root) Equal(other Root) bool {
	return r.kind == other.kind && (r.kind != Argument || r.parameterPosition == other.parameterPosition)
}

// ElementKind tags the flavor of a Path Element.
type ElementKind int

const (
	// Field is a named struct/object field access.
	Field ElementKind = iota
	// Index is a numeric array/argument index access, used by canonical
	// CRTEX ports such as ".Argument(-1)".
	Index
)

// Element is one step of an AccessPath's path: a field name or an index.
type Element struct {
	kind  ElementKind
	name  string
	index int
}

// NewFieldElement builds a named-field path element.
func NewFieldElement(name string) Element {
	return Element{kind: Field, name: name}
}

// NewArgumentElement builds the canonical ".Argument(i)" path element used
// when canonicalizing CRTEX ports. i may be negative, matching the
// canonical placeholder index -1 used for producer/anchor ports.
func NewArgumentElement(i int) Element {
	return Element{kind: Index, index: i}
}

func (e Element) String() string {
	if e.kind == Index {
		return fmt.Sprintf("Argument(%d)", e.index)
	}
	return e.name
}

// Equal reports whether e and other describe the same path element.
func (e Element) Equal(other Element) bool {
	return e.kind == other.kind && e.name == other.name && e.index == other.index
}

// AccessPath is a Root plus an ordered sequence of path Elements.
type AccessPath struct {
	root Root
	path []Element
}

// New builds an AccessPath with the given root and no path elements.
func New(root Root) AccessPath {
	return AccessPath{root: root}
}

// Root returns the access path's root.
func (a AccessPath) Root() Root { return a.root }

// Path returns the access path's path elements.
func (a AccessPath) Path() []Element { return a.path }

// Append returns a copy of a with element appended to its path.
func (a AccessPath) Append(element Element) AccessPath {
	path := make([]Element, len(a.path), len(a.path)+1)
	copy(path, a.path)
	path = append(path, element)
	return AccessPath{root: a.root, path: path}
}

// Equal reports whether a and other describe the same access path.
func (a AccessPath) Equal(other AccessPath) bool {
	if !a.root.Equal(other.root) || len(a.path) != len(other.path) {
		return false
	}
	for i, e := range a.path {
		if !e.Equal(other.path[i]) {
			return false
		}
	}
	return true
}

func (a AccessPath) String() string {
	var b strings.Builder
	b.WriteString(a.root.String())
	for _, e := range a.path {
		b.WriteByte('.')
		b.WriteString(e.String())
	}
	return b.String()
}

// canonicalArgumentPosition is the parameter index used by the canonical
// argument port appended when canonicalizing a CRTEX declaration root.
const canonicalArgumentPosition = -1

// CanonicalizeForMethod rewrites a into the canonical port representation
// used by CRTEX export, given the callee the taint is being exported to.
// Non-Anchor CRTEX declaration roots (Producer) are first rewritten to
// Anchor, then the canonical ".Argument(-1)" element is appended so the
// resulting port is stable across all CRTEX producers of callee.
func (a AccessPath) CanonicalizeForMethod(callee *method.Method) AccessPath {
	root := a.root
	if root.kind == Producer {
		root = NewAnchor()
	}
	canonical := AccessPath{root: root, path: a.path}
	return canonical.Append(NewArgumentElement(canonicalArgumentPosition))
}
