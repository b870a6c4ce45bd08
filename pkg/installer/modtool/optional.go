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

import (
	"regexp"

	"github.com/summonmm/summon/pkg/retriever"
)

// OptionalData records, for the manifest, which files this tool guess
// believes were moved in (into "optional\") or out of it
// (plugins/modtool/optional.py's OptionalModToolData).
type OptionalData struct {
	Opt   []string
	Unopt []string
}

var optionalPluginPattern = regexp.MustCompile(`^optional\\([ 0-9a-z_-]*\.es[plm])$`)

// OptionalPlugin guesses Mod Organizer 2's "Optional ESPs" convention:
// a user moved a plugin in or out of an archive's "optional\" folder
// after install, via the in-game plugin manager or MO2's own tooling
// (plugins/modtool/optional.py's OptionalModToolPlugin). Unlike
// Script2Source, this is a per-file decision, not all-or-nothing.
type OptionalPlugin struct{}

func (OptionalPlugin) Name() string             { return "OPTIONAL" }
func (OptionalPlugin) SupportedGames() []string { return []string{"SKYRIM"} }

func (OptionalPlugin) GuessApplied(param GuessParam) (any, *Diff, error) {
	var moved []Move
	var opt, unopt []string

	for path, cands := range param.RemainingAfter {
		if len(cands) == 0 {
			continue
		}
		m := optionalPluginPattern.FindStringSubmatch(path)
		if m == nil {
			continue
		}
		fname := m[1]
		fh := cands[0].FileDigest

		for _, rd := range param.InstallFrom {
			if _, skipped := rd.Skip[fname]; !skipped {
				continue
			}
			for _, df := range rd.Installer.AllDesiredFiles() {
				if df.Path != fname {
					continue
				}
				if df.File.Digest == fh {
					moved = append(moved, Move{Src: fname, Dst: `optional\` + fname})
					opt = append(opt, fname)
				}
				break
			}
		}
	}

	for _, rd := range param.InstallFrom {
		for skipped := range rd.Skip {
			m := optionalPluginPattern.FindStringSubmatch(skipped)
			if m == nil {
				continue
			}
			fname := m[1]

			var found bool
			var foundDigest retriever.TruncatedDigest
			for _, df := range rd.Installer.AllDesiredFiles() {
				if df.Path == skipped {
					found = true
					foundDigest = df.File.Digest
					break
				}
			}
			if !found {
				continue
			}

			cands, ok := param.RemainingAfter[fname]
			if !ok || len(cands) == 0 {
				continue
			}
			if cands[0].FileDigest == foundDigest {
				moved = append(moved, Move{Src: `optional\` + fname, Dst: fname})
				unopt = append(unopt, fname)
			}
		}
	}

	if len(moved) == 0 {
		return nil, nil, nil
	}
	return &OptionalData{Opt: opt, Unopt: unopt}, &Diff{Moved: moved}, nil
}
