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

package config

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/PatronSaintOwl/mariana-trench/internal/pkg/taintcontext"
)

func TestLoad(t *testing.T) {
	bytes := []byte(`
kinds:
  - UserInputSource
  - NetworkSink
features:
  - sensitive
`)

	got, err := Load(bytes)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	want := &Vocabulary{
		Kinds:    []string{"UserInputSource", "NetworkSink"},
		Features: []string{"sensitive"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_rejectsUnknownFields(t *testing.T) {
	bytes := []byte(`rules: [a, b]`)
	if _, err := Load(bytes); err == nil {
		t.Errorf("Load() with an unknown field succeeded, want error")
	}
}

func TestVocabulary_Seed(t *testing.T) {
	v := &Vocabulary{
		Kinds:    []string{"UserInputSource"},
		Features: []string{"sensitive"},
	}
	ctx := taintcontext.New(nil)
	v.Seed(ctx)

	k1 := ctx.Kinds.Get("UserInputSource")
	k2 := ctx.Kinds.Get("UserInputSource")
	if k1 != k2 {
		t.Errorf("Kinds.Get(%q) returned distinct pointers across calls", "UserInputSource")
	}

	f1 := ctx.Features.Get("sensitive")
	f2 := ctx.Features.Get("sensitive")
	if f1 != f2 {
		t.Errorf("Features.Get(%q) returned distinct pointers across calls", "sensitive")
	}
}
