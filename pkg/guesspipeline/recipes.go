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
	"fmt"
	"sort"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/retriever"
)

// guessRecipes implements stages 2 and 3 for one mod: ask every
// registered archive plugin to guess a recipe for each archive that
// uniquely supplies at least one of the mod's files, then order and
// classify the resulting candidates via pkg/installer.ResolveRecipes.
func guessRecipes(cfg Config, w *modWork) (*modState, error) {
	req := uniqueArchiveDigests(w.archiveFiles)
	digests := make([]retriever.Digest, 0, len(req))
	for d := range req {
		digests = append(digests, d)
	}
	sort.Slice(digests, func(i, j int) bool { return bytes.Compare(digests[i][:], digests[j][:]) < 0 })

	var candidates []installer.Installer
	archiveOf := make(map[installer.Installer]retriever.Digest, len(digests))
	for _, d := range digests {
		archive, ok := cfg.Archives.ByDigest(d)
		if !ok {
			continue
		}
		inst, err := cfg.Recipes.Guess(installer.GuessContext{
			ArchivePath: primaryArchivePath(cfg, d),
			Archive:     archive,
			ModName:     w.name,
			ModFiles:    w.archiveFiles,
		})
		if err != nil {
			return nil, fmt.Errorf("guess recipe for mod %s: %w", w.name, err)
		}
		if inst == nil {
			continue
		}
		candidates = append(candidates, inst)
		archiveOf[inst] = d
	}

	details, remaining, err := installer.ResolveRecipes(candidates, w.archiveFiles)
	if err != nil {
		return nil, fmt.Errorf("resolve recipes for mod %s: %w", w.name, err)
	}
	return &modState{modWork: w, details: details, remaining: remaining, archiveOf: archiveOf}, nil
}

// uniqueArchiveDigests returns the archives that are the only candidate
// source for at least one file in files (spec.md §4.5 stage 2).
func uniqueArchiveDigests(files installer.ModFiles) map[retriever.Digest]bool {
	out := make(map[retriever.Digest]bool)
	for _, cands := range files {
		if len(cands) == 1 {
			out[cands[0].ArchiveDigest] = true
		}
	}
	return out
}

// primaryArchivePath picks a deterministic on-disk path for an indexed
// archive digest; ties (the same archive downloaded to two places)
// break on the lexicographically smaller path.
func primaryArchivePath(cfg Config, d retriever.Digest) string {
	files := cfg.Downloads.ByDigest(d)
	if len(files) == 0 {
		return ""
	}
	best := files[0].Path
	for _, f := range files[1:] {
		if f.Path < best {
			best = f.Path
		}
	}
	return best
}

// reduceAmbiguity implements stage 4 over whatever stage 3 left
// unclaimed: each still-ambiguous path picks the single candidate
// pickCandidate prefers, so downstream stages (tools, assembly) work
// against a plain one-candidate-per-path view.
func reduceAmbiguity(remaining installer.ModFiles, ownReq, globalReq map[retriever.Digest]bool) (map[string]installer.ModFileCandidate, installer.ModFiles) {
	resolved := make(map[string]installer.ModFileCandidate, len(remaining))
	asModFiles := make(installer.ModFiles, len(remaining))

	paths := make([]string, 0, len(remaining))
	for p := range remaining {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		c := pickCandidate(remaining[p], ownReq, globalReq)
		resolved[p] = c
		asModFiles[p] = []installer.ModFileCandidate{c}
	}
	return resolved, asModFiles
}

// pickCandidate prefers an archive already required by the same mod,
// then one required by any mod, then the smallest digest — the last
// tie-break exists only so that a genuinely unresolvable ambiguity
// still produces the same answer on every run over the same inputs.
func pickCandidate(cands []installer.ModFileCandidate, ownReq, globalReq map[retriever.Digest]bool) installer.ModFileCandidate {
	best := cands[0]
	bestRank := ambiguityRank(best.ArchiveDigest, ownReq, globalReq)
	for _, c := range cands[1:] {
		r := ambiguityRank(c.ArchiveDigest, ownReq, globalReq)
		if r < bestRank || (r == bestRank && bytes.Compare(c.ArchiveDigest[:], best.ArchiveDigest[:]) < 0) {
			best, bestRank = c, r
		}
	}
	return best
}

func ambiguityRank(d retriever.Digest, ownReq, globalReq map[retriever.Digest]bool) int {
	switch {
	case ownReq[d]:
		return 0
	case globalReq[d]:
		return 1
	default:
		return 2
	}
}
