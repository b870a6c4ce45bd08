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
	"strings"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/retriever"
)

// Mo2Default is SimpleUnpack plus Mod Organizer 2's quirk of also
// copying any file that sits beside "data\" at the unpack root,
// unqualified, straight to the mod's own root rather than nesting it
// under "data\" (x90mo2default.py's Mo2DefaultArInstallerPlugin).
type Mo2Default struct {
	Archive retriever.Archive
	Root    string
}

func (m *Mo2Default) Name() string { return "mo2default" }

func (m *Mo2Default) AllDesiredFiles() []installer.DesiredFile {
	prefix := m.Root
	out := make([]installer.DesiredFile, 0, len(m.Archive.Files))
	for _, f := range m.Archive.Files {
		if prefix != "" && !strings.HasPrefix(f.IntraPath, prefix) {
			continue
		}
		rel := f.IntraPath[len(prefix):]
		rel = strings.TrimPrefix(rel, `\`)
		if rel == "" {
			continue
		}
		// Files under "data\" unnest one level, same as Mod Organizer 2
		// flattening an archive's top-level data folder into the mod's
		// own root; siblings of "data\" are copied through unqualified.
		if lower := strings.ToLower(rel); strings.HasPrefix(lower, `data\`) {
			rel = rel[len(`data\`):]
		}
		if rel == "" {
			continue
		}
		out = append(out, installer.DesiredFile{Path: rel, File: f})
	}
	return out
}

func (m *Mo2Default) InstallParams() any {
	return map[string]any{"root": m.Root}
}

// Mo2DefaultPlugin runs SimpleUnpackPlugin's root vote, then checks
// whether treating the winning root's siblings as promoted-to-root
// files covers strictly more of modfiles than plain SimpleUnpack does;
// if not, it defers (returns nil) so SimpleUnpack's guess stands
// (x90mo2default.py: "only chosen if it strictly covers more files").
type Mo2DefaultPlugin struct{}

func (Mo2DefaultPlugin) Name() string { return "mo2default" }

func (Mo2DefaultPlugin) GuessFromVFS(ctx installer.GuessContext) (installer.Installer, error) {
	base, err := (SimpleUnpackPlugin{}).GuessFromVFS(ctx)
	if err != nil || base == nil {
		return nil, err
	}
	su := base.(*SimpleUnpack)

	baseCoverage := coverage(su.AllDesiredFiles(), ctx.ModFiles)

	mo2 := &Mo2Default{Archive: ctx.Archive, Root: su.Root}
	mo2Coverage := coverage(mo2.AllDesiredFiles(), ctx.ModFiles)

	if mo2Coverage <= baseCoverage {
		return nil, nil
	}
	return mo2, nil
}

func coverage(files []installer.DesiredFile, modfiles installer.ModFiles) int {
	n := 0
	for _, df := range files {
		cands, ok := modfiles[df.Path]
		if !ok {
			continue
		}
		for _, c := range cands {
			if c.FileDigest == df.File.Digest {
				n++
				break
			}
		}
	}
	return n
}
