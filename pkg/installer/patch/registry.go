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

import "strings"

// Differ is one file-format's structural diff/apply pair.
type Differ struct {
	Name  string
	Diff  func(srcRaw, dstRaw []byte) (*Patch, error)
	Apply func(srcRaw []byte, p *Patch) ([]byte, error)
}

// differsByExt maps a lower-case file extension to the differ claiming
// it, mirroring the archive plugin registry's by-extension dispatch
// (pkg/archiveplugin's Registry) but scoped to the two structured
// formats these patch recipes understand.
var differsByExt = map[string]*Differ{
	".json": {Name: "SORTEDJSON", Diff: DiffJSON, Apply: ApplyJSON},
	".ini":  {Name: "INI", Diff: DiffINI, Apply: ApplyINI},
}

// ForExtension returns the Differ registered for ext (e.g. ".json"),
// or nil if no patch plugin claims that extension.
func ForExtension(ext string) *Differ {
	return differsByExt[strings.ToLower(ext)]
}
