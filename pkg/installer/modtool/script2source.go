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

import "regexp"

// Script2SourceData marks that the Script2Source tool's "scripts\source\"
// to "source\scripts\" rename convention was applied
// (plugins/modtool/script2source.py's Script2SourceModToolData).
type Script2SourceData struct {
	Applied bool
}

var script2sourceForwardPattern = regexp.MustCompile(`^source\\scripts\\([ 0-9a-z_-]*\.psc)$`)
var script2sourceBackPattern = regexp.MustCompile(`^scripts\\source\\([ 0-9a-z_-]*\.psc)$`)

// Script2SourcePlugin guesses whether the community "Script2Source"
// tool moved a mod's compiled-script source files from
// "scripts\source\" to "source\scripts\" after install
// (plugins/modtool/script2source.py's Script2SourceModToolPlugin). The
// tool renames the whole folder at once, so this is all-or-nothing: if
// even one of the recipe's "scripts\source\" files fails to match the
// corresponding remaining "source\scripts\" file by hash, or the counts
// disagree, the whole guess is rejected.
type Script2SourcePlugin struct{}

func (Script2SourcePlugin) Name() string             { return "SCRIPT2SOURCE" }
func (Script2SourcePlugin) SupportedGames() []string { return []string{"SKYRIM"} }

func (Script2SourcePlugin) GuessApplied(param GuessParam) (any, *Diff, error) {
	var moved []Move
	var n2 *int

	for path, cands := range param.RemainingAfter {
		if len(cands) == 0 {
			continue
		}
		m := script2sourceForwardPattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		fname := m[1]
		fh := cands[0].FileDigest
		produced := `scripts\source\` + fname

		for _, rd := range param.InstallFrom {
			if _, skipped := rd.Skip[produced]; !skipped {
				return nil, nil, nil
			}

			n2a := 0
			matched := false
			for _, df := range rd.Installer.AllDesiredFiles() {
				if df.Path == produced {
					if df.File.Digest != fh {
						return nil, nil, nil
					}
					matched = true
				}
				if script2sourceBackPattern.MatchString(df.Path) {
					n2a++
				}
			}
			if matched {
				moved = append(moved, Move{Src: produced, Dst: `source\scripts\` + fname})
			}

			if n2 == nil {
				n2 = &n2a
			} else if *n2 != n2a {
				return nil, nil, nil
			}
		}
	}

	if len(moved) == 0 {
		return nil, nil, nil
	}
	if n2 == nil || *n2 != len(moved) {
		return nil, nil, nil
	}
	return &Script2SourceData{Applied: true}, &Diff{Moved: moved}, nil
}
