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

// Package arinstaller guesses how a mod's files were produced from one
// of its archives, trying each known install convention in turn:
// plain unpack, MO2's "unpack, but promote loose data-sibling files"
// default, Wrye Bash-style numbered-folder installers, and FOMOD wizard
// installs (grounded on x99simpleunpack.py, x90mo2default.py,
// x60bain.py and x30fomod.py).
package arinstaller

import (
	"strings"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/retriever"
)

// SimpleUnpack is the plainest archive-install recipe: every known
// modfile destination path is matched against an archive intra-path
// that ends with it, and the archive root that wins the most votes is
// the install root (x99simpleunpack.py's SimpleUnpackArInstallerPlugin).
type SimpleUnpack struct {
	Archive retriever.Archive
	Root    string // intra-path prefix stripped from every archive file, "" for archive root
}

func (s *SimpleUnpack) Name() string { return "simpleunpack" }

func (s *SimpleUnpack) AllDesiredFiles() []installer.DesiredFile {
	prefix := s.Root
	out := make([]installer.DesiredFile, 0, len(s.Archive.Files))
	for _, f := range s.Archive.Files {
		if prefix != "" && !strings.HasPrefix(f.IntraPath, prefix) {
			continue
		}
		dst := f.IntraPath[len(prefix):]
		dst = strings.TrimPrefix(dst, `\`)
		if dst == "" {
			continue
		}
		out = append(out, installer.DesiredFile{Path: dst, File: f})
	}
	return out
}

func (s *SimpleUnpack) InstallParams() any {
	return map[string]any{"root": s.Root}
}

// SimpleUnpackPlugin is the ArchivePlugin that guesses SimpleUnpack
// roots by voting candidate roots against modfiles' known destination
// paths (x99simpleunpack.py's find_vote_targets / find_arinstaller).
type SimpleUnpackPlugin struct{}

func (SimpleUnpackPlugin) Name() string { return "simpleunpack" }

func (SimpleUnpackPlugin) GuessFromVFS(ctx installer.GuessContext) (installer.Installer, error) {
	votes := make(map[string]int)
	for modpath := range ctx.ModFiles {
		suffix := `\` + modpath
		for _, f := range ctx.Archive.Files {
			if f.IntraPath == modpath {
				votes[""]++
				continue
			}
			if strings.HasSuffix(f.IntraPath, suffix) {
				root := f.IntraPath[:len(f.IntraPath)-len(suffix)]
				votes[root]++
			}
		}
	}
	if len(votes) == 0 {
		return nil, nil
	}

	bestRoot := ""
	bestVotes := -1
	for root, n := range votes {
		if n > bestVotes || (n == bestVotes && len(root) < len(bestRoot)) {
			bestVotes = n
			bestRoot = root
		}
	}
	if bestVotes == 0 {
		return nil, nil
	}

	return &SimpleUnpack{Archive: ctx.Archive, Root: bestRoot}, nil
}
