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

package stablejson

import (
	"strings"
	"testing"
)

func TestMarshal_SortsObjectKeys(t *testing.T) {
	v := Object{"b": 1, "a": 2, "c": 3}
	out, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	s := string(out)
	ai := strings.Index(s, `"a"`)
	bi := strings.Index(s, `"b"`)
	ci := strings.Index(s, `"c"`)
	if !(ai < bi && bi < ci) {
		t.Errorf("keys not sorted: %s", s)
	}
}

func TestMarshal_BytesUnpaddedBase64(t *testing.T) {
	out, err := Marshal(Object{"digest": Bytes([]byte{0x01, 0x02, 0x03})})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	// base64 of 0x01 0x02 0x03 is "AQID" (no padding needed here, but
	// verify no '=' padding characters ever appear for digest-length data).
	if strings.Contains(string(out), "=") {
		t.Errorf("expected unpadded base64, got %s", out)
	}
	if !strings.Contains(string(out), "AQID") {
		t.Errorf("expected AQID in output, got %s", out)
	}
}

func TestMarshal_Indent1(t *testing.T) {
	out, err := Marshal(Object{"a": 1})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(out), "\n \"a\"") {
		t.Errorf("expected single-space indent, got %q", out)
	}
}

func TestMarshal_Deterministic(t *testing.T) {
	v := Object{"z": []any{1, 2, 3}, "a": Object{"nested": true}}
	out1, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	out2, err := Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if string(out1) != string(out2) {
		t.Errorf("Marshal is not deterministic:\n%s\nvs\n%s", out1, out2)
	}
}

func TestMarshal_EmptyCollections(t *testing.T) {
	out, err := Marshal(Object{"list": []any{}, "obj": Object{}})
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	if !strings.Contains(s, `"list": []`) {
		t.Errorf("expected empty array rendered compactly, got %s", s)
	}
	if !strings.Contains(s, `"obj": {}`) {
		t.Errorf("expected empty object rendered compactly, got %s", s)
	}
}

type fakeRecord struct {
	name string
}

func (f fakeRecord) StableJSON() any {
	return Object{"name": f.name}
}

func TestMarshal_MarshalerInterface(t *testing.T) {
	records := []any{fakeRecord{name: "b"}, fakeRecord{name: "a"}}
	SortByKey(records, func(v any) string { return v.(fakeRecord).name })
	out, err := Marshal(Object{"records": records})
	if err != nil {
		t.Fatal(err)
	}
	ai := strings.Index(string(out), `"a"`)
	bi := strings.Index(string(out), `"b"`)
	if ai == -1 || bi == -1 || ai > bi {
		t.Errorf("expected records sorted a before b, got %s", out)
	}
}

func TestUnmarshal_RoundTripsGenericTree(t *testing.T) {
	out, err := Marshal(Object{"a": 1.0, "b": "text", "c": true})
	if err != nil {
		t.Fatal(err)
	}
	v, err := Unmarshal(out)
	if err != nil {
		t.Fatal(err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		t.Fatalf("expected map[string]any, got %T", v)
	}
	if m["b"] != "text" {
		t.Errorf("b = %v, want text", m["b"])
	}
}

func TestDecodeBytes(t *testing.T) {
	got, err := DecodeBytes("AQID")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x01, 0x02, 0x03}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("byte %d = %x, want %x", i, got[i], want[i])
		}
	}
}
