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

import "testing"

func TestDirPathRelativeAndAbsolute(t *testing.T) {
	doc := Document{}
	got, err := DirPath(`downloads`, `C:\project\`, doc)
	if err != nil {
		t.Fatalf("DirPath: %v", err)
	}
	if got != `C:\project\downloads\` {
		t.Errorf("got %q", got)
	}

	got2, err := DirPath(`D:\elsewhere`, `C:\project\`, doc)
	if err != nil {
		t.Fatalf("DirPath: %v", err)
	}
	if got2 != `D:\elsewhere\` {
		t.Errorf("got %q", got2)
	}
}

func TestDirPathConfigDirToken(t *testing.T) {
	doc := Document{}
	got, err := DirPath(`{CONFIG-DIR}cache`, `C:\project\`, doc)
	if err != nil {
		t.Fatalf("DirPath: %v", err)
	}
	if got != `C:\project\cache\` {
		t.Errorf("got %q", got)
	}
}

func TestDirPathDottedLookup(t *testing.T) {
	doc := Document{
		"mo2": map[string]any{
			"mo2dir": `C:\mo2\`,
		},
	}
	// A placeholder-only path is never absolute by isWindowsAbsPath, so
	// configDir is prepended before the dotted value is substituted in —
	// matching config_dir_path's own behavior for this case.
	got, err := DirPath(`{mo2.mo2dir}downloads`, `C:\project\`, doc)
	if err != nil {
		t.Fatalf("DirPath: %v", err)
	}
	if got != `C:\project\C:\mo2\downloads\` {
		t.Errorf("got %q", got)
	}
}

func TestDirPathDottedLookupMissingKey(t *testing.T) {
	doc := Document{}
	if _, err := DirPath(`{missing.key}downloads`, `C:\project\`, doc); err == nil {
		t.Fatal("expected error for missing dotted key")
	}
}
