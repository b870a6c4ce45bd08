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

// Package patch describes a mod file that a recipe's produced bytes
// almost, but not quite, match, as a small structural diff against the
// recipe's output instead of a full copy (plugins/patch/json.py and
// plugins/patch/ini.py). A patch is used when a file was hand-edited
// after an otherwise-faithful archive install: storing the literal
// edits is both smaller and more legible in a reviewed manifest than an
// opaque binary diff.
package patch

// Op is one field-level edit a patch applies to the source document.
type Op struct {
	// Path is the field's location: for the JSON patch, one element per
	// object key or "[i]" array index; for the INI patch, [section, key],
	// or just [section] for a whole-section delete.
	Path []string
	// Delete, if true, removes the field entirely; Value is ignored.
	Delete bool
	// Value holds the replacement value: always a string for the INI
	// patch; for the JSON patch any decoded JSON value (string, float64,
	// bool, nil, or a whole object or array for an added key, an added
	// array element, or a value whose type changed).
	Value any
}

// Patch is the ordered set of edits needed to turn a recipe's produced
// document into the mod's actual on-disk document.
type Patch struct {
	Ops []Op
}

// Empty reports whether the patch has no edits, meaning the recipe's
// output already matched and no patch file should be recorded.
func (p *Patch) Empty() bool {
	return p == nil || len(p.Ops) == 0
}
