// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"testing"

	"github.com/summonmm/summon/pkg/retriever"
)

type fakeInstaller struct {
	name  string
	files map[string]retriever.FileInArchive
}

func (f *fakeInstaller) Name() string { return f.name }

func (f *fakeInstaller) AllDesiredFiles() []DesiredFile {
	out := make([]DesiredFile, 0, len(f.files))
	for path, fi := range f.files {
		out = append(out, DesiredFile{Path: path, File: fi})
	}
	return out
}

func (f *fakeInstaller) InstallParams() any { return nil }

func digest(b byte) retriever.TruncatedDigest {
	var d retriever.TruncatedDigest
	d[0] = b
	return d
}

func TestResolveRecipesClassifiesFilesAndSkip(t *testing.T) {
	a := &fakeInstaller{name: "a", files: map[string]retriever.FileInArchive{
		"x.txt": {IntraPath: "x.txt", Digest: digest(1)},
		"y.txt": {IntraPath: "y.txt", Digest: digest(9)},
	}}
	modfiles := ModFiles{
		"x.txt": {{FileDigest: digest(1)}},
		"y.txt": {{FileDigest: digest(2)}},
	}

	details, remaining, err := ResolveRecipes([]Installer{a}, modfiles)
	if err != nil {
		t.Fatalf("ResolveRecipes: %v", err)
	}
	if len(details) != 1 {
		t.Fatalf("len(details) = %d, want 1", len(details))
	}
	if _, ok := details[0].Files["x.txt"]; !ok {
		t.Error("expected x.txt to be classified as matched")
	}
	if _, ok := details[0].Skip["y.txt"]; !ok {
		t.Error("expected y.txt to be classified as skip (hash mismatch)")
	}
	if _, ok := remaining["x.txt"]; ok {
		t.Error("expected x.txt to be drained from remaining")
	}
	if _, ok := remaining["y.txt"]; !ok {
		t.Error("expected y.txt to remain unexplained")
	}
}

func TestOrderByOverwritePrefersMatchingRecipeLast(t *testing.T) {
	a := &fakeInstaller{name: "a", files: map[string]retriever.FileInArchive{
		"shared.txt": {IntraPath: "shared.txt", Digest: digest(1)},
	}}
	b := &fakeInstaller{name: "b", files: map[string]retriever.FileInArchive{
		"shared.txt": {IntraPath: "shared.txt", Digest: digest(2)},
	}}
	modfiles := ModFiles{"shared.txt": {{FileDigest: digest(2)}}}

	ordered, err := orderByOverwrite([]Installer{a, b}, modfiles)
	if err != nil {
		t.Fatalf("orderByOverwrite: %v", err)
	}
	if len(ordered) != 2 || ordered[1].Name() != "b" {
		t.Fatalf("ordered = %v, want b last (its hash matches modfiles)", SortedNames(wrapDetails(ordered)))
	}
}

func wrapDetails(installers []Installer) []RecipeDetails {
	out := make([]RecipeDetails, len(installers))
	for i, inst := range installers {
		out[i] = RecipeDetails{Installer: inst}
	}
	return out
}

func TestOrderByOverwriteDetectsCycle(t *testing.T) {
	a := &fakeInstaller{name: "a", files: map[string]retriever.FileInArchive{
		"one.txt": {IntraPath: "one.txt", Digest: digest(1)},
		"two.txt": {IntraPath: "two.txt", Digest: digest(2)},
	}}
	b := &fakeInstaller{name: "b", files: map[string]retriever.FileInArchive{
		"one.txt": {IntraPath: "one.txt", Digest: digest(2)},
		"two.txt": {IntraPath: "two.txt", Digest: digest(1)},
	}}
	modfiles := ModFiles{
		"one.txt": {{FileDigest: digest(1)}},
		"two.txt": {{FileDigest: digest(1)}},
	}

	if _, err := orderByOverwrite([]Installer{a, b}, modfiles); err == nil {
		t.Fatal("expected a cycle error")
	}
}
