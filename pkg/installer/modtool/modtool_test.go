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

package modtool

import (
	"testing"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/retriever"
)

type fakeInstaller struct {
	files map[string]retriever.FileInArchive
}

func (f *fakeInstaller) Name() string { return "fake" }
func (f *fakeInstaller) AllDesiredFiles() []installer.DesiredFile {
	out := make([]installer.DesiredFile, 0, len(f.files))
	for p, fi := range f.files {
		out = append(out, installer.DesiredFile{Path: p, File: fi})
	}
	return out
}
func (f *fakeInstaller) InstallParams() any { return nil }

func digest(b byte) retriever.TruncatedDigest {
	var d retriever.TruncatedDigest
	d[0] = b
	return d
}

func TestRegistryForGame(t *testing.T) {
	r := NewRegistry(OptionalPlugin{}, Script2SourcePlugin{})
	plugins := r.ForGame("skyrim")
	if len(plugins) != 2 {
		t.Fatalf("ForGame = %d plugins, want 2", len(plugins))
	}
	if len(r.ForGame("FALLOUT4")) != 0 {
		t.Error("expected no plugins for an unsupported game")
	}
}

func TestOptionalPluginGuessesUnoptioned(t *testing.T) {
	inst := &fakeInstaller{files: map[string]retriever.FileInArchive{
		`optional\plugin.esp`: {IntraPath: `optional\plugin.esp`, Digest: digest(1)},
	}}
	rd := installer.RecipeDetails{
		Installer: inst,
		Skip:      map[string]struct{}{`optional\plugin.esp`: {}},
	}
	param := GuessParam{
		InstallFrom: []installer.RecipeDetails{rd},
		RemainingAfter: installer.ModFiles{
			`plugin.esp`: {{FileDigest: digest(1)}},
		},
	}

	data, diff, err := (OptionalPlugin{}).GuessApplied(param)
	if err != nil {
		t.Fatalf("GuessApplied: %v", err)
	}
	if diff == nil || len(diff.Moved) != 1 {
		t.Fatalf("diff = %+v, want one move", diff)
	}
	od, ok := data.(*OptionalData)
	if !ok || len(od.Unopt) != 1 || od.Unopt[0] != "plugin.esp" {
		t.Errorf("data = %+v, want unopt=[plugin.esp]", data)
	}
}

func TestOptionalPluginNoMatchReturnsNil(t *testing.T) {
	param := GuessParam{
		InstallFrom:    nil,
		RemainingAfter: installer.ModFiles{`readme.txt`: {{FileDigest: digest(1)}}},
	}
	data, diff, err := (OptionalPlugin{}).GuessApplied(param)
	if err != nil {
		t.Fatalf("GuessApplied: %v", err)
	}
	if data != nil || diff != nil {
		t.Errorf("expected no guess for an unrelated file, got data=%+v diff=%+v", data, diff)
	}
}

func TestScript2SourcePluginAllOrNothing(t *testing.T) {
	inst := &fakeInstaller{files: map[string]retriever.FileInArchive{
		`scripts\source\foo.psc`: {IntraPath: `scripts\source\foo.psc`, Digest: digest(1)},
	}}
	rd := installer.RecipeDetails{
		Installer: inst,
		Skip:      map[string]struct{}{`scripts\source\foo.psc`: {}},
	}
	param := GuessParam{
		InstallFrom: []installer.RecipeDetails{rd},
		RemainingAfter: installer.ModFiles{
			`source\scripts\foo.psc`: {{FileDigest: digest(1)}},
		},
	}

	data, diff, err := (Script2SourcePlugin{}).GuessApplied(param)
	if err != nil {
		t.Fatalf("GuessApplied: %v", err)
	}
	if diff == nil || len(diff.Moved) != 1 {
		t.Fatalf("diff = %+v, want one move", diff)
	}
	sd, ok := data.(*Script2SourceData)
	if !ok || !sd.Applied {
		t.Errorf("data = %+v, want Applied=true", data)
	}
}
