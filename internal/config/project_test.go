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

	"github.com/summonmm/summon/pkg/modmanager"
)

func TestLoadProjectConfigEndToEnd(t *testing.T) {
	root := t.TempDir() + string(filepath.Separator)

	mo2dir := root + `mo2\`
	if err := os.MkdirAll(mo2dir+`profiles\Default\`, 0o755); err != nil {
		t.Fatal(err)
	}
	writeModlist(t, mo2dir+`profiles\Default\`, []string{"+ModA"})

	githubRoot := root + `github\`
	rootGM, _ := ParseGithubModpack("RootAuthor/RootProject")
	writeSummonJSON5(t, rootGM.ModpackFolder(githubRoot), `{
		"isroot": 1,
		"gameuniverse": "SKYRIM"
	}`)

	cfgPath := root + `summon.json5`
	cfgBody := `{
		"modmanager": "mo2",
		"mo2": {
			"mo2dir": ` + quoted(mo2dir) + `,
			"masterprofile": "Default"
		},
		"githubroot": ` + quoted(githubRoot) + `,
		"modpack": "DepAuthor/DepProject",
		"githubusername": "someuser"
	}`
	if err := os.WriteFile(cfgPath, []byte(cfgBody), 0o644); err != nil {
		t.Fatal(err)
	}

	depGM, _ := ParseGithubModpack("DepAuthor/DepProject")
	writeSummonJSON5(t, depGM.ModpackFolder(githubRoot), `{
		"isroot": 0,
		"dependencies": ["RootAuthor/RootProject"]
	}`)

	registry := modmanager.NewRegistry(modmanager.Mo2Plugin{})
	pc, err := LoadProjectConfig(cfgPath, registry)
	if err != nil {
		t.Fatalf("LoadProjectConfig: %v", err)
	}
	if pc.ModManagerName != "mo2" {
		t.Errorf("ModManagerName = %q", pc.ModManagerName)
	}
	if pc.RootModpack != "RootAuthor/RootProject" {
		t.Errorf("RootModpack = %q", pc.RootModpack)
	}
	if pc.GithubUsername != "someuser" {
		t.Errorf("GithubUsername = %q", pc.GithubUsername)
	}
	if len(pc.DownloadDirs) != 1 || pc.DownloadDirs[0] != mo2dir+`downloads\` {
		t.Errorf("DownloadDirs = %v", pc.DownloadDirs)
	}
	if pc.ModManager == nil {
		t.Fatal("ModManager is nil")
	}
}

func quoted(s string) string {
	out := `"`
	for _, r := range s {
		if r == '\\' {
			out += `\\`
		} else {
			out += string(r)
		}
	}
	return out + `"`
}
