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

// Package kind interns taint kind tags, such as "UserInputSource" or
// "NetworkSink". Kinds are compared by identity, never by name, so that the
// taint domain can use pointer-keyed maps everywhere a kind is a key.
package kind

import "sync"

// A Kind is an interned taint flavor tag.
type Kind struct {
	name string
}

// Name returns the kind's declared name.
func (k *Kind) Name() string {
	return k.name
}

func (k *Kind) String() string {
	return k.name
}

// ArtificialSourceName is the distinguished kind used to mark artificial
// taint introduced by the analysis itself rather than by a user model.
const ArtificialSourceName = "artificial_source"

// Factory interns Kinds by name.
type Factory struct {
	mu    sync.Mutex
	kinds map[string]*Kind

	// artificialSource is the single interned Kind for ArtificialSourceName,
	// created lazily on first use of ArtificialSource.
	artificialSource *Kind
}

// NewFactory creates an interner pre-populated with nothing; the artificial
// source kind is created lazily so that a Factory that never needs it never
// allocates it.
func NewFactory() *Factory {
	return &Factory{kinds: make(map[string]*Kind)}
}

// Get interns and returns the Kind with the given name.
func (f *Factory) Get(name string) *Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getLocked(name)
}

func (f *Factory) getLocked(name string) *Kind {
	if k, ok := f.kinds[name]; ok {
		return k
	}
	k := &Kind{name: name}
	f.kinds[name] = k
	return k
}

// ArtificialSource returns the distinguished artificial-source Kind.
func (f *Factory) ArtificialSource() *Kind {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.artificialSource == nil {
		f.artificialSource = f.getLocked(ArtificialSourceName)
	}
	return f.artificialSource
}

// IsArtificialSource reports whether k is the distinguished artificial
// source kind of this factory.
func (f *Factory) IsArtificialSource(k *Kind) bool {
	return k == f.ArtificialSource()
}
