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

func TestLoadYAMLOverlayMissingIsNotError(t *testing.T) {
	dir := t.TempDir() + string(filepath.Separator)
	overlay, err := LoadYAMLOverlay(dir)
	if err != nil {
		t.Fatalf("LoadYAMLOverlay: %v", err)
	}
	if overlay != nil {
		t.Errorf("overlay = %v, want nil", overlay)
	}
}

func TestLoadYAMLOverlayParsesSections(t *testing.T) {
	dir := t.TempDir() + string(filepath.Separator)
	body := "mo2:\n  ignores:\n    - \"extra\\\\ignore\\\\\"\n  masterprofile: FromOverlay\n"
	if err := os.WriteFile(dir+overlayFileName, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	overlay, err := LoadYAMLOverlay(dir)
	if err != nil {
		t.Fatalf("LoadYAMLOverlay: %v", err)
	}
	section, ok := overlay["mo2"].(map[string]any)
	if !ok {
		t.Fatalf("overlay[mo2] = %#v, want map[string]any", overlay["mo2"])
	}
	if section["masterprofile"] != "FromOverlay" {
		t.Errorf("masterprofile = %v", section["masterprofile"])
	}
}

func TestApplyYAMLOverlayMergesAndOverrides(t *testing.T) {
	base := Document{"mo2dir": `C:\mo2\`, "masterprofile": "Default"}
	overlay := Document{"mo2": map[string]any{"masterprofile": "Overridden", "ignores": []any{"x"}}}

	merged := ApplyYAMLOverlay(base, overlay, "mo2")
	if merged["masterprofile"] != "Overridden" {
		t.Errorf("masterprofile = %v, want Overridden", merged["masterprofile"])
	}
	if merged["mo2dir"] != `C:\mo2\` {
		t.Errorf("mo2dir should survive the merge unchanged, got %v", merged["mo2dir"])
	}
}

func TestApplyYAMLOverlayNilOverlayIsNoop(t *testing.T) {
	base := Document{"masterprofile": "Default"}
	merged := ApplyYAMLOverlay(base, nil, "mo2")
	if merged["masterprofile"] != "Default" {
		t.Errorf("masterprofile = %v", merged["masterprofile"])
	}
}

func TestApplyYAMLOverlayNoSectionForManagerIsNoop(t *testing.T) {
	base := Document{"masterprofile": "Default"}
	overlay := Document{"vortex": map[string]any{"masterprofile": "Nope"}}
	merged := ApplyYAMLOverlay(base, overlay, "mo2")
	if merged["masterprofile"] != "Default" {
		t.Errorf("masterprofile = %v", merged["masterprofile"])
	}
}
