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

package modmanager

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/summonmm/summon/pkg/retriever"
)

func writeModlist(t *testing.T, dir string, lines []string) {
	t.Helper()
	var body string
	for _, l := range lines {
		body += l + "\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "modlist.txt"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadModListNaturalOrder(t *testing.T) {
	dir := t.TempDir() + string(filepath.Separator)
	// MO2 stores highest priority first; "ModC" should end up last
	// (highest priority) after reversing into natural order.
	writeModlist(t, dir, []string{
		"+ModC",
		"-DisabledMod",
		"MyGroup_separator",
		"+ModB",
		"+ModA",
	})

	ml, err := LoadModList(dir)
	if err != nil {
		t.Fatalf("LoadModList: %v", err)
	}
	got := ml.AllEnabled()
	want := []string{"ModA", "ModB", "ModC"}
	if len(got) != len(want) {
		t.Fatalf("AllEnabled = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("AllEnabled[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestMo2ConfigModFileToTargetVFS(t *testing.T) {
	c := &Mo2Config{Mo2Dir: `C:\mo2\`}
	mod := "SomeMod"

	if got := c.ModFileToTargetVFS(ModFile{Mod: &mod, IntraMod: `textures\foo.dds`}); got != `data\textures\foo.dds` {
		t.Errorf("target = %q, want data\\textures\\foo.dds", got)
	}
	if got := c.ModFileToTargetVFS(ModFile{Mod: &mod, IntraMod: `root\SKSE\foo.dll`}); got != `SKSE\foo.dll` {
		t.Errorf("root target = %q, want SKSE\\foo.dll", got)
	}
	if got := c.ModFileToTargetVFS(ModFile{IntraMod: `overwrite.txt`}); got != `overwrite.txt` {
		t.Errorf("overwrite target = %q, want overwrite.txt", got)
	}
}

func TestMo2ConfigParseSourceVFS(t *testing.T) {
	c := &Mo2Config{Mo2Dir: `C:\mo2\`}

	mf, err := c.ParseSourceVFS(`C:\mo2\mods\SomeMod\textures\foo.dds`)
	if err != nil {
		t.Fatalf("ParseSourceVFS: %v", err)
	}
	if mf.Mod == nil || *mf.Mod != "SomeMod" || mf.IntraMod != `textures\foo.dds` {
		t.Errorf("mf = %+v, want mod=SomeMod intra=textures\\foo.dds", mf)
	}

	mf2, err := c.ParseSourceVFS(`C:\mo2\overwrite\readme.txt`)
	if err != nil {
		t.Fatalf("ParseSourceVFS: %v", err)
	}
	if mf2.Mod != nil || mf2.IntraMod != "readme.txt" {
		t.Errorf("mf2 = %+v, want mod=nil intra=readme.txt", mf2)
	}
}

func TestMo2ConfigResolveVFSOverwriteOrder(t *testing.T) {
	dir := t.TempDir() + string(filepath.Separator)
	writeModlist(t, dir, []string{"+ModB", "+ModA"})
	modlist, err := LoadModList(dir)
	if err != nil {
		t.Fatalf("LoadModList: %v", err)
	}

	c := &Mo2Config{Mo2Dir: `C:\mo2\`, MasterModList: modlist}

	low := retriever.FileOnDisk{Path: `C:\mo2\mods\moda\textures\foo.dds`}
	high := retriever.FileOnDisk{Path: `C:\mo2\mods\modb\textures\foo.dds`}

	vfs, err := c.ResolveVFS([]retriever.FileOnDisk{low, high})
	if err != nil {
		t.Fatalf("ResolveVFS: %v", err)
	}
	winner, ok := vfs.Winner(`data\textures\foo.dds`)
	if !ok {
		t.Fatal("expected a winner for data\\textures\\foo.dds")
	}
	if winner.Path != high.Path {
		t.Errorf("winner = %q, want %q (ModB has higher priority)", winner.Path, high.Path)
	}
}
