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

package arinstaller

import (
	"sort"
	"strings"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/retriever"
)

// Bain is a Wrye Bash-style "BAIN" installer: the archive holds several
// numbered top-level option folders ("00 Core", "01 Optional Textures",
// ...), and a single one of them was picked as the install source
// (x60bain.py's BainArInstallerPlugin).
type Bain struct {
	Archive retriever.Archive
	Folder  string // the winning numbered folder's intra-path prefix
}

func (b *Bain) Name() string { return "bain" }

func (b *Bain) AllDesiredFiles() []installer.DesiredFile {
	prefix := b.Folder + `\`
	out := make([]installer.DesiredFile, 0, len(b.Archive.Files))
	for _, f := range b.Archive.Files {
		if !strings.HasPrefix(f.IntraPath, prefix) {
			continue
		}
		dst := f.IntraPath[len(prefix):]
		if dst == "" {
			continue
		}
		out = append(out, installer.DesiredFile{Path: dst, File: f})
	}
	return out
}

func (b *Bain) InstallParams() any {
	return map[string]any{"folder": b.Folder}
}

// isNumberedFolder reports whether name starts with a decimal digit run
// followed by a space, e.g. "00 Core" or "000 Optional" (the BAIN
// numbered-option convention).
func isNumberedFolder(name string) bool {
	i := 0
	for i < len(name) && name[i] >= '0' && name[i] <= '9' {
		i++
	}
	return i > 0 && i < len(name) && name[i] == ' '
}

// BainPlugin discovers every top-level numbered folder in the archive,
// requires at least two to even consider a BAIN install, then votes
// each known modfile for the unique numbered folder whose content
// matches it, and picks the folder with a strict majority of votes
// (x60bain.py's find_arinstaller: "requires >= 2 numbered folders,
// votes per-modfile for a uniquely-matching folder").
type BainPlugin struct{}

func (BainPlugin) Name() string { return "bain" }

func (BainPlugin) GuessFromVFS(ctx installer.GuessContext) (installer.Installer, error) {
	folders := make(map[string]struct{})
	for _, f := range ctx.Archive.Files {
		top := f.IntraPath
		if idx := strings.Index(top, `\`); idx >= 0 {
			top = top[:idx]
		} else {
			continue
		}
		if isNumberedFolder(top) {
			folders[top] = struct{}{}
		}
	}
	if len(folders) < 2 {
		return nil, nil
	}

	sorted := make([]string, 0, len(folders))
	for f := range folders {
		sorted = append(sorted, f)
	}
	sort.Strings(sorted)

	votes := make(map[string]int, len(sorted))
	for modpath, cands := range ctx.ModFiles {
		var uniqueFolder string
		nmatches := 0
		for _, folder := range sorted {
			full := folder + `\` + modpath
			for _, f := range ctx.Archive.Files {
				if f.IntraPath != full {
					continue
				}
				for _, c := range cands {
					if c.FileDigest == f.Digest {
						uniqueFolder = folder
						nmatches++
						break
					}
				}
				break
			}
		}
		if nmatches == 1 {
			votes[uniqueFolder]++
		}
	}

	if len(votes) == 0 {
		return nil, nil
	}

	total := 0
	bestFolder := ""
	bestVotes := 0
	for f, n := range votes {
		total += n
		if n > bestVotes {
			bestVotes = n
			bestFolder = f
		}
	}
	if bestVotes*2 <= total {
		return nil, nil
	}

	return &Bain{Archive: ctx.Archive, Folder: bestFolder}, nil
}
