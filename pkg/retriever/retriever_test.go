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

package retriever

import "testing"

func TestFolderToCache_Overlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b FolderToCache
		want bool
	}{
		{
			name: "disjoint",
			a:    FolderToCache{Root: "/a"},
			b:    FolderToCache{Root: "/b"},
			want: false,
		},
		{
			name: "identical",
			a:    FolderToCache{Root: "/a"},
			b:    FolderToCache{Root: "/a"},
			want: true,
		},
		{
			name: "nested without exclusion",
			a:    FolderToCache{Root: "/a"},
			b:    FolderToCache{Root: "/a/b"},
			want: true,
		},
		{
			name: "nested with exclusion",
			a:    FolderToCache{Root: "/a", Excludes: []string{"/a/b"}},
			b:    FolderToCache{Root: "/a/b"},
			want: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Overlaps(tt.b); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Overlaps(tt.a); got != tt.want {
				t.Errorf("Overlaps() (swapped) = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestArchiveRetriever_Valid(t *testing.T) {
	var outerDigest, innerFileDigest Digest
	outerDigest[0] = 1
	innerFileDigest[0] = 2

	valid := ArchiveRetriever{Chain: []ArchiveLink{
		{ArchiveDigest: outerDigest, FileDigest: innerFileDigest},
	}}
	if !valid.Valid() {
		t.Error("single-link chain should be valid")
	}

	var wrongDigest Digest
	wrongDigest[0] = 99
	invalid := ArchiveRetriever{Chain: []ArchiveLink{
		{ArchiveDigest: outerDigest, FileDigest: innerFileDigest},
		{ArchiveDigest: wrongDigest, FileDigest: Digest{}},
	}}
	if invalid.Valid() {
		t.Error("mismatched chain link should be invalid")
	}

	empty := ArchiveRetriever{}
	if empty.Valid() {
		t.Error("empty chain should be invalid")
	}
}

func TestArchiveRetriever_Prepend(t *testing.T) {
	var d1, d2 Digest
	d1[0], d2[0] = 1, 2
	inner := ArchiveRetriever{Chain: []ArchiveLink{{ArchiveDigest: d2, FileDigest: Digest{9}}}}
	outer := inner.Prepend(ArchiveLink{ArchiveDigest: d1, FileDigest: d2})
	if len(outer.Chain) != 2 {
		t.Fatalf("len(Chain) = %d, want 2", len(outer.Chain))
	}
	if outer.Chain[0].ArchiveDigest != d1 {
		t.Error("outer chain's first link should be the prepended one")
	}
	if !outer.Valid() {
		t.Error("prepended chain should remain valid")
	}
}

func TestResolvedVFS_Winner(t *testing.T) {
	vfs := NewResolvedVFS()
	first := FileOnDisk{Path: "/mods/a/x.esp", Digest: Digest{1}}
	second := FileOnDisk{Path: "/mods/b/x.esp", Digest: Digest{2}}
	vfs.Add(first, "x.esp")
	vfs.Add(second, "x.esp")

	winner, ok := vfs.Winner("x.esp")
	if !ok {
		t.Fatal("expected a winner")
	}
	if winner.Path != second.Path {
		t.Errorf("winner = %s, want last-wins %s", winner.Path, second.Path)
	}

	if _, ok := vfs.Winner("missing"); ok {
		t.Error("expected no winner for unknown target")
	}
}

func TestTentativeNames_Monotonic(t *testing.T) {
	tn := NewTentativeNames()
	var d Digest
	d[0] = 7
	tn.Add(d, "Foo.ESP")
	tn.Add(d, "bar.esp")
	tn.Add(d, "foo.esp") // duplicate, case-insensitive

	names := tn.Names(d)
	if len(names) != 2 {
		t.Fatalf("len(names) = %d, want 2: %v", len(names), names)
	}
	if names[0] != "bar.esp" || names[1] != "foo.esp" {
		t.Errorf("names = %v, want sorted [bar.esp foo.esp]", names)
	}
}

func TestNormalizeIntraPath(t *testing.T) {
	got := NormalizeIntraPath("/Data/Textures/Foo.DDS")
	want := "data\\textures\\foo.dds"
	if got != want {
		t.Errorf("NormalizeIntraPath() = %q, want %q", got, want)
	}
}

func TestIsZero(t *testing.T) {
	if TheZeroRetriever.TargetDigest() != ZeroDigest {
		t.Error("ZeroRetriever should target ZeroDigest")
	}
}
