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

package fileorigin

import (
	"testing"

	"github.com/summonmm/summon/pkg/retriever"
)

func TestNexusMetaParserExtractsOrigin(t *testing.T) {
	p := NewNexusMetaParser([]int{1704}, "mod.zip.meta", nil)
	p.TakeLine(`modID=123`)
	p.TakeLine(`fileID=456`)
	p.TakeLine(`url="https://supporter.nexusmods.com/1704/123/filename.zip?md5=abc123&expires=1"`)

	origin, ok := p.MakeOrigin()
	if !ok {
		t.Fatal("expected MakeOrigin to succeed")
	}
	n, ok := origin.(NexusOrigin)
	if !ok {
		t.Fatalf("origin type = %T, want NexusOrigin", origin)
	}
	if n.GameID != 1704 || n.ModID != 123 || n.FileID != 456 {
		t.Errorf("origin = %+v, want {1704 123 456}", n)
	}
}

func TestNexusMetaParserIncomplete(t *testing.T) {
	p := NewNexusMetaParser([]int{1704}, "mod.zip.meta", nil)
	p.TakeLine(`modID=123`)
	if _, ok := p.MakeOrigin(); ok {
		t.Error("expected MakeOrigin to fail with only modID known")
	}
}

func TestStoreDedupsEqualOrigins(t *testing.T) {
	s := NewStore()
	var h retriever.Digest
	h[0] = 1

	added1 := s.AddOrigin(h, NexusOrigin{GameID: 1704, ModID: 1, FileID: 1})
	added2 := s.AddOrigin(h, NexusOrigin{GameID: 1704, ModID: 1, FileID: 1})
	added3 := s.AddOrigin(h, NexusOrigin{GameID: 1704, ModID: 2, FileID: 1})

	if !added1 {
		t.Error("expected first AddOrigin to report added")
	}
	if added2 {
		t.Error("expected duplicate AddOrigin to report not-added")
	}
	if !added3 {
		t.Error("expected distinct origin to be added")
	}
	if len(s.OriginsFor(h)) != 2 {
		t.Errorf("OriginsFor = %v, want 2 entries", s.OriginsFor(h))
	}
}
