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

package arinstaller

import (
	"testing"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/retriever"
)

func digest(b byte) retriever.TruncatedDigest {
	var d retriever.TruncatedDigest
	d[0] = b
	return d
}

func TestSimpleUnpackPluginFindsRoot(t *testing.T) {
	archive := retriever.Archive{
		Files: []retriever.FileInArchive{
			{IntraPath: `textures\armor\steel.dds`, Digest: digest(1)},
			{IntraPath: `meshes\armor\steel.nif`, Digest: digest(2)},
			{IntraPath: `readme.txt`, Digest: digest(3)},
		},
	}
	modfiles := installer.ModFiles{
		`textures\armor\steel.dds`: {{FileDigest: digest(1)}},
		`meshes\armor\steel.nif`:   {{FileDigest: digest(2)}},
	}

	inst, err := (SimpleUnpackPlugin{}).GuessFromVFS(installer.GuessContext{Archive: archive, ModFiles: modfiles})
	if err != nil {
		t.Fatalf("GuessFromVFS: %v", err)
	}
	if inst == nil {
		t.Fatal("expected a guess")
	}
	su := inst.(*SimpleUnpack)
	if su.Root != "" {
		t.Errorf("Root = %q, want archive root", su.Root)
	}
}

func TestSimpleUnpackPluginNestedRoot(t *testing.T) {
	archive := retriever.Archive{
		Files: []retriever.FileInArchive{
			{IntraPath: `ModName\textures\armor\steel.dds`, Digest: digest(1)},
			{IntraPath: `ModName\meshes\armor\steel.nif`, Digest: digest(2)},
		},
	}
	modfiles := installer.ModFiles{
		`textures\armor\steel.dds`: {{FileDigest: digest(1)}},
		`meshes\armor\steel.nif`:   {{FileDigest: digest(2)}},
	}

	inst, err := (SimpleUnpackPlugin{}).GuessFromVFS(installer.GuessContext{Archive: archive, ModFiles: modfiles})
	if err != nil {
		t.Fatalf("GuessFromVFS: %v", err)
	}
	if inst == nil {
		t.Fatal("expected a guess")
	}
	su := inst.(*SimpleUnpack)
	if su.Root != `ModName` {
		t.Errorf("Root = %q, want ModName", su.Root)
	}
}

func TestMo2DefaultFlattensDataFolder(t *testing.T) {
	archive := retriever.Archive{
		Files: []retriever.FileInArchive{
			{IntraPath: `data\textures\armor\steel.dds`, Digest: digest(1)},
			{IntraPath: `SKSE\Plugins\helper.dll`, Digest: digest(2)},
		},
	}
	modfiles := installer.ModFiles{
		`textures\armor\steel.dds`: {{FileDigest: digest(1)}},
		`SKSE\Plugins\helper.dll`:  {{FileDigest: digest(2)}},
	}

	inst, err := (Mo2DefaultPlugin{}).GuessFromVFS(installer.GuessContext{Archive: archive, ModFiles: modfiles})
	if err != nil {
		t.Fatalf("GuessFromVFS: %v", err)
	}
	if inst == nil {
		t.Fatal("expected mo2default to beat plain simpleunpack")
	}
	files := inst.AllDesiredFiles()
	if len(files) != 2 {
		t.Fatalf("AllDesiredFiles = %v, want 2 entries", files)
	}
}

func TestBainPluginRequiresNumberedFolders(t *testing.T) {
	archive := retriever.Archive{
		Files: []retriever.FileInArchive{
			{IntraPath: `textures\x.dds`, Digest: digest(1)},
		},
	}
	modfiles := installer.ModFiles{`textures\x.dds`: {{FileDigest: digest(1)}}}

	inst, err := (BainPlugin{}).GuessFromVFS(installer.GuessContext{Archive: archive, ModFiles: modfiles})
	if err != nil {
		t.Fatalf("GuessFromVFS: %v", err)
	}
	if inst != nil {
		t.Errorf("expected no bain guess without numbered folders, got %+v", inst)
	}
}

func TestBainPluginVotesForMatchingFolder(t *testing.T) {
	archive := retriever.Archive{
		Files: []retriever.FileInArchive{
			{IntraPath: `00 Core\textures\x.dds`, Digest: digest(1)},
			{IntraPath: `01 Optional\textures\x.dds`, Digest: digest(9)},
		},
	}
	modfiles := installer.ModFiles{`textures\x.dds`: {{FileDigest: digest(1)}}}

	inst, err := (BainPlugin{}).GuessFromVFS(installer.GuessContext{Archive: archive, ModFiles: modfiles})
	if err != nil {
		t.Fatalf("GuessFromVFS: %v", err)
	}
	if inst == nil {
		t.Fatal("expected a bain guess")
	}
	b := inst.(*Bain)
	if b.Folder != "00 Core" {
		t.Errorf("Folder = %q, want %q", b.Folder, "00 Core")
	}
}
