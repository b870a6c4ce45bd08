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

package globaltool

import (
	"testing"

	"github.com/summonmm/summon/pkg/retriever"
)

const sampleOSP = `<?xml version="1.0"?>
<SliderSetInfo>
  <SliderSet name="MyBody">
    <OutputFile>MyBody</OutputFile>
    <OutputPath>meshes\actors\character\mybody</OutputPath>
  </SliderSet>
</SliderSetInfo>`

func TestRegistryForGame(t *testing.T) {
	r := NewRegistry(BodySlidePlugin{})
	if len(r.ForGame("skyrim")) != 1 {
		t.Fatal("expected BodySlide for skyrim")
	}
	if len(r.ForGame("FALLOUT4")) != 0 {
		t.Error("expected no plugins for an unsupported game")
	}
}

func TestParseOSP(t *testing.T) {
	out := parseOSP([]byte(sampleOSP), "test.osp", func(string) {})
	if len(out) != 1 {
		t.Fatalf("parseOSP returned %d entries, want 1", len(out))
	}
	want := `data\meshes\actors\character\mybody\mybody`
	if out[0] != want {
		t.Errorf("parseOSP = %q, want %q", out[0], want)
	}
}

func TestParseOSPRejectsWrongRoot(t *testing.T) {
	var warned string
	out := parseOSP([]byte(`<NotASliderSet/>`), "test.osp", func(s string) { warned = s })
	if out != nil {
		t.Errorf("expected nil output for wrong root tag, got %v", out)
	}
	if warned == "" {
		t.Error("expected a warning for the unexpected root tag")
	}
}

func TestCreateContextAndCouldBeProduced(t *testing.T) {
	vfs := retriever.NewResolvedVFS()
	ospPath := `data\CalienteTools\Bodyslide\SliderSets\mybody.osp`
	vfs.Add(retriever.FileOnDisk{Path: "/tmp/mybody.osp"}, ospPath)
	vfs.Add(retriever.FileOnDisk{Path: "/tmp/MyBody.tri"}, `data\meshes\actors\character\mybody\mybody.tri`)

	plugin := BodySlidePlugin{
		ReadFile: func(path string) ([]byte, error) { return []byte(sampleOSP), nil },
	}

	ctxAny, err := plugin.CreateContext(vfs)
	if err != nil {
		t.Fatalf("CreateContext: %v", err)
	}

	verdict := plugin.CouldBeProduced(ctxAny, "", `data\meshes\actors\character\mybody\mybody.tri`)
	if verdict != WithCurrentConfig {
		t.Errorf("CouldBeProduced = %v, want WithCurrentConfig", verdict)
	}

	unrelated := plugin.CouldBeProduced(ctxAny, "", `data\meshes\actors\character\other\other.tri`)
	if unrelated != NotFound {
		t.Errorf("CouldBeProduced(unrelated) = %v, want NotFound", unrelated)
	}
}

func TestCouldBeProducedWeightedNifPair(t *testing.T) {
	ctx := &bodySlideContext{
		relOutputFiles: map[string]struct{}{},
		targetFiles: map[string]struct{}{
			`meshes\x_0.nif`: {},
			`meshes\x_1.nif`: {},
			`meshes\x.tri`:   {},
		},
	}
	plugin := BodySlidePlugin{}

	if v := plugin.CouldBeProduced(ctx, "", `meshes\x.tri`); v != Maybe {
		t.Errorf("tri verdict = %v, want Maybe", v)
	}
	if v := plugin.CouldBeProduced(ctx, "", `meshes\x_0.nif`); v != Maybe {
		t.Errorf("nif_0 verdict = %v, want Maybe", v)
	}
}
