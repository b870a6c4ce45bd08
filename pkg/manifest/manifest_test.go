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

package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/summonmm/summon/pkg/retriever"
)

func TestNewExtraArchiveFileCollapsesSingleIntraPath(t *testing.T) {
	f := NewExtraArchiveFile("readme.txt", []string{"docs/readme.txt"})
	if f.IntraPath != "docs/readme.txt" || len(f.IntraPaths) != 0 {
		t.Errorf("f = %+v, want collapsed single intra path", f)
	}

	f2 := NewExtraArchiveFile("readme.txt", []string{"a/readme.txt", "b/readme.txt"})
	if f2.IntraPath != "" || len(f2.IntraPaths) != 2 {
		t.Errorf("f2 = %+v, want both paths kept as a list", f2)
	}
}

func TestMarshalIsDeterministicAndSortsKeys(t *testing.T) {
	var h retriever.Digest
	h[0] = 0xAB

	p := Project{Mods: []Mod{
		{
			ModName:   "Some Mod",
			ZeroFiles: []string{"readme.txt"},
			Installers: []Installer{
				{ArchiveHash: h, InstallerType: "SIMPLEUNPACK", Skip: nil},
			},
		},
	}}

	out1, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out2, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out1) != string(out2) {
		t.Fatal("Marshal is not deterministic across repeated calls")
	}
	if !strings.Contains(string(out1), `"name": "Some Mod"`) {
		t.Errorf("output missing mod name: %s", out1)
	}
	if i, n := strings.Index(string(out1), `"installers"`), strings.Index(string(out1), `"name"`); i < 0 || n < 0 || i > n {
		t.Errorf("mod keys not sorted (installers before name): %s", out1)
	}
}

func TestWriteThenReadBack(t *testing.T) {
	p := Project{Mods: []Mod{{ModName: "Example"}}}
	path := filepath.Join(t.TempDir(), "summon.json")

	if err := Write(path, p); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	want, err := Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("read back %q, want %q", got, want)
	}
}
