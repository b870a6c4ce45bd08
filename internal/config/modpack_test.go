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

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseGithubModpack(t *testing.T) {
	gm, err := ParseGithubModpack("SomeAuthor/SomeProject")
	if err != nil {
		t.Fatalf("ParseGithubModpack: %v", err)
	}
	if gm.Author != "SomeAuthor" || gm.Project != "SomeProject" || gm.Subfolder != "" {
		t.Errorf("gm = %+v", gm)
	}

	gm2, err := ParseGithubModpack("SomeAuthor/SomeProject/Sub")
	if err != nil {
		t.Fatalf("ParseGithubModpack: %v", err)
	}
	if gm2.Subfolder != "Sub" {
		t.Errorf("gm2 = %+v", gm2)
	}

	if _, err := ParseGithubModpack("justoneword"); err == nil {
		t.Fatal("expected error for malformed modpack reference")
	}
}

func TestGithubModpackFolder(t *testing.T) {
	gm, _ := ParseGithubModpack("SomeAuthor/SomeProject/Sub")
	if got, want := gm.Folder(`C:\github\`), `C:\github\someauthor\someproject\`; got != want {
		t.Errorf("Folder = %q, want %q", got, want)
	}
	if got, want := gm.ModpackFolder(`C:\github\`), `C:\github\someauthor\someproject\sub\`; got != want {
		t.Errorf("ModpackFolder = %q, want %q", got, want)
	}
}

// writeSummonJSON5 writes content at exactly modpackFolder+"summon.json5",
// using the same backslash string concatenation ModpackFolder produces
// (not filepath.Join, which would normalize separators and no longer
// match the path the code under test builds when it reads the file back).
func writeSummonJSON5(t *testing.T, modpackFolder, content string) {
	t.Helper()
	if err := os.MkdirAll(modpackFolder, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(modpackFolder+"summon.json5", []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestResolveModpackConfigsRootAndDependency(t *testing.T) {
	root := t.TempDir() + string(filepath.Separator)

	rootGM, _ := ParseGithubModpack("RootAuthor/RootProject")
	depGM, _ := ParseGithubModpack("DepAuthor/DepProject")

	writeSummonJSON5(t, rootGM.ModpackFolder(root), `{
		"isroot": 1,
		"gameuniverse": "SKYRIM",
		"ignorepatterns": ["*.bak"]
	}`)
	writeSummonJSON5(t, depGM.ModpackFolder(root), `{
		"isroot": 0,
		"dependencies": ["RootAuthor/RootProject"],
		"ownmods": ["MyMod"]
	}`)

	all, rootmp, err := ResolveModpackConfigs("DepAuthor/DepProject", root)
	if err != nil {
		t.Fatalf("ResolveModpackConfigs: %v", err)
	}
	if rootmp != "RootAuthor/RootProject" {
		t.Errorf("rootmp = %q", rootmp)
	}
	if len(all) != 2 {
		t.Fatalf("all = %+v", all)
	}
	rootCfg := all["RootAuthor/RootProject"]
	if !rootCfg.IsRoot || rootCfg.GameUniverse != "SKYRIM" {
		t.Errorf("rootCfg = %+v", rootCfg)
	}
	depCfg := all["DepAuthor/DepProject"]
	if depCfg.IsRoot || len(depCfg.Dependencies) != 1 || depCfg.OwnModNames[0] != "mymod" {
		t.Errorf("depCfg = %+v", depCfg)
	}
}
