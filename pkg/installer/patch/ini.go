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

package patch

import (
	"bytes"
	"sort"

	"gopkg.in/ini.v1"
)

// unnamedSection is the literal path segment standing in for an INI
// file's keys that appear before any "[section]" header
// (plugins/patch/ini.py's handling of configparser's implicit
// DEFAULTSECT, here spelled out rather than reusing ini.v1's own
// DefaultSection name so a patch file never depends on the library's
// internal constant).
const unnamedSection = "<unnamed>"

// DiffINI diffs two INI documents section-by-section, key-by-key, both
// keys and section names compared case-sensitively, recording an
// overwrite op for every key dst adds or changes and a delete op for
// every key or section src has that dst drops
// (plugins/patch/ini.py's IniPatchPlugin.make_patch). DiffINI returns
// nil if no key differed.
func DiffINI(srcRaw, dstRaw []byte) (*Patch, error) {
	opts := ini.LoadOptions{Insensitive: false, AllowNonUniqueSections: false}
	src, err := ini.LoadSources(opts, srcRaw)
	if err != nil {
		return nil, err
	}
	dst, err := ini.LoadSources(opts, dstRaw)
	if err != nil {
		return nil, err
	}

	srcSections := sectionMap(src)
	dstSections := sectionMap(dst)

	p := &Patch{}
	for name, srcKeys := range srcSections {
		dstKeys, ok := dstSections[name]
		if !ok {
			p.Ops = append(p.Ops, Op{Path: []string{name}, Delete: true})
			continue
		}
		for key, srcVal := range srcKeys {
			dstVal, ok := dstKeys[key]
			if !ok {
				p.Ops = append(p.Ops, Op{Path: []string{name, key}, Delete: true})
				continue
			}
			if dstVal != srcVal {
				p.Ops = append(p.Ops, Op{Path: []string{name, key}, Value: dstVal})
			}
		}
		for key, dstVal := range dstKeys {
			if _, ok := srcKeys[key]; ok {
				continue
			}
			p.Ops = append(p.Ops, Op{Path: []string{name, key}, Value: dstVal})
		}
	}
	for name, dstKeys := range dstSections {
		if _, ok := srcSections[name]; ok {
			continue
		}
		for key, dstVal := range dstKeys {
			p.Ops = append(p.Ops, Op{Path: []string{name, key}, Value: dstVal})
		}
	}

	if p.Empty() {
		return nil, nil
	}
	sort.SliceStable(p.Ops, func(i, j int) bool {
		return joinPath(p.Ops[i].Path) < joinPath(p.Ops[j].Path)
	})
	return p, nil
}

func sectionMap(f *ini.File) map[string]map[string]string {
	out := make(map[string]map[string]string, len(f.Sections()))
	for _, sec := range f.Sections() {
		name := sec.Name()
		if name == ini.DefaultSection {
			name = unnamedSection
		}
		keys := make(map[string]string, len(sec.Keys()))
		for _, k := range sec.Keys() {
			keys[k.Name()] = k.Value()
		}
		out[name] = keys
	}
	return out
}

// ApplyINI applies p to src, returning the patched document re-encoded
// as INI text.
func ApplyINI(srcRaw []byte, p *Patch) ([]byte, error) {
	opts := ini.LoadOptions{Insensitive: false, AllowNonUniqueSections: false}
	f, err := ini.LoadSources(opts, srcRaw)
	if err != nil {
		return nil, err
	}

	for _, op := range p.Ops {
		name := op.Path[0]
		if name == unnamedSection {
			name = ini.DefaultSection
		}
		if len(op.Path) == 1 {
			if op.Delete {
				f.DeleteSection(name)
			}
			continue
		}
		key := op.Path[1]
		sec, err := f.GetSection(name)
		if err != nil {
			sec, err = f.NewSection(name)
			if err != nil {
				return nil, err
			}
		}
		if op.Delete {
			sec.DeleteKey(key)
			continue
		}
		val, _ := op.Value.(string)
		sec.Key(key).SetValue(val)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
