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

package guesspipeline

import (
	"bytes"
	"sort"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/manifest"
	"github.com/summonmm/summon/pkg/retriever"
)

// assembleMod renders one mod's final pipeline state into its
// manifest.Mod record.
func assembleMod(st *modState, resolvedRemaining map[string]installer.ModFileCandidate, tools []manifest.ModTool, unknownByTools []string, patches []manifest.ModPatch) manifest.Mod {
	sort.Strings(st.zero)

	instDigests := make([]retriever.Digest, len(st.details))
	installers := make([]manifest.Installer, len(st.details))
	for i, rd := range st.details {
		d := st.archiveOf[rd.Installer]
		instDigests[i] = d
		installers[i] = manifest.Installer{
			ArchiveHash:    d,
			InstallerType:  rd.Installer.Name(),
			InstallerParam: rd.Installer.InstallParams(),
			Skip:           sortedKeySet(rd.Skip),
		}
	}

	unknown := make([]string, 0, len(st.unknown))
	for p := range st.unknown {
		unknown = append(unknown, p)
	}
	sort.Strings(unknown)

	return manifest.Mod{
		ModName:             st.name,
		ZeroFiles:           st.zero,
		GithubFiles:         st.github,
		Installers:          installers,
		RemainingArchives:   buildExtraArchives(resolvedRemaining, instDigests),
		UnknownFilesByTools: unknownByTools,
		UnknownFiles:        unknown,
		ModTools:            tools,
		Patches:             patches,
	}
}

// buildExtraArchives groups a mod's still-unresolved files by the
// single archive reduceAmbiguity picked for each, recording each group
// either by its recipe-list index (when the same archive already backs
// one of this mod's installers) or by its raw digest otherwise
// (project_json.py's ProjectExtraArchive "ar" vs "arh" distinction).
func buildExtraArchives(resolved map[string]installer.ModFileCandidate, installerArchives []retriever.Digest) []manifest.ExtraArchive {
	if len(resolved) == 0 {
		return nil
	}

	byArchive := make(map[retriever.Digest][]manifest.ExtraArchiveFile)
	var digests []retriever.Digest
	for path, c := range resolved {
		if _, ok := byArchive[c.ArchiveDigest]; !ok {
			digests = append(digests, c.ArchiveDigest)
		}
		byArchive[c.ArchiveDigest] = append(byArchive[c.ArchiveDigest], manifest.NewExtraArchiveFile(path, []string{c.IntraPath}))
	}
	sort.Slice(digests, func(i, j int) bool { return bytes.Compare(digests[i][:], digests[j][:]) < 0 })

	installerIdx := make(map[retriever.Digest]int, len(installerArchives))
	for i, d := range installerArchives {
		installerIdx[d] = i
	}

	out := make([]manifest.ExtraArchive, 0, len(digests))
	for _, d := range digests {
		files := byArchive[d]
		sort.Slice(files, func(i, j int) bool { return files[i].TargetFileName < files[j].TargetFileName })

		ea := manifest.ExtraArchive{ExtraFiles: files}
		if idx, ok := installerIdx[d]; ok {
			ea.ArchiveIdx = &idx
		} else {
			digest := d
			ea.ArchiveHash = &digest
		}
		out = append(out, ea)
	}
	return out
}

func sortedKeySet(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
