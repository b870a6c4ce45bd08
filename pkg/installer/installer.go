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

// Package installer runs the guesser pipeline (spec.md §4.5): for each
// mod, select the archive-install recipe (or recipes) that could have
// produced its files, order recipes that overwrite each other's output,
// and record what remains unexplained for tool/patch recipes to pick
// up. Net original to this package — no teacher file attempts anything
// like it — with the plugin-registry dispatch style grounded on
// pkg/archiveplugin's small-vtable pattern, per spec.md §9's call for
// "a small vtable-like record... never reflection."
package installer

import (
	"fmt"
	"sort"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/retriever"
)

// ModFileCandidate is one way a mod's file at some destination path
// could have come from an archive (helpers/file_retriever.py's
// ArchiveFileRetriever, reduced to the fields recipe plugins need).
type ModFileCandidate struct {
	ArchiveDigest retriever.Digest
	IntraPath     string
	FileDigest    retriever.TruncatedDigest
}

// ModFiles maps a mod-relative destination path to every archive file
// that could have produced it.
type ModFiles map[string][]ModFileCandidate

// DesiredFile is one (destination path, source archive file) pairing a
// recipe produces.
type DesiredFile struct {
	Path string
	File retriever.FileInArchive
}

// Installer is one resolved archive-install recipe: a concrete mapping
// from archive files to destination paths, plus the parameters needed
// to describe it in the manifest (arinstallers.py's ArInstaller).
type Installer interface {
	Name() string
	AllDesiredFiles() []DesiredFile
	InstallParams() any
}

// GuessContext is everything an ArchivePlugin needs to guess a recipe
// for one archive against one mod's known files.
type GuessContext struct {
	ArchivePath string
	Archive     retriever.Archive
	ModName     string
	ModFiles    ModFiles
}

// ArchivePlugin guesses one kind of archive-install recipe.
type ArchivePlugin interface {
	Name() string
	GuessFromVFS(ctx GuessContext) (Installer, error)
}

// Registry holds the ordered set of archive-install recipe plugins to
// try, in priority order (arinstallers.py's all_arinstaller_plugins()).
type Registry struct {
	plugins []ArchivePlugin
}

// NewRegistry returns a Registry trying plugins in the given order; the
// first plugin that returns a non-nil Installer for an archive wins.
func NewRegistry(plugins ...ArchivePlugin) *Registry {
	return &Registry{plugins: plugins}
}

// Guess tries every registered plugin in order and returns the first
// match.
func (r *Registry) Guess(ctx GuessContext) (Installer, error) {
	for _, p := range r.plugins {
		inst, err := p.GuessFromVFS(ctx)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
		if inst != nil {
			return inst, nil
		}
	}
	return nil, nil
}

// RecipeDetails tracks, for one selected Installer, which of its
// produced files actually match the mod's known files (files) and which
// contradict the mod's known content and so must fall through to a
// patch/tool recipe instead (skip), grounded on run_guess.py's
// ArInstallerDetails / _ModInProgress.resolve_unique. ResolveRecipes
// allocates Ignored but never fills it: produced paths outside the mod
// are dropped without being recorded, and a path an earlier recipe
// already matched is classified again by each later recipe.
type RecipeDetails struct {
	Installer Installer
	Files     map[string]retriever.FileInArchive
	Skip      map[string]struct{}
	Ignored   map[string]struct{}
}

// ResolveRecipes orders the already-guessed recipes for one mod so that
// recipes whose output is itself overwritten by another recipe's
// output run first, then walks each recipe's desired files against
// modfiles to classify every produced path, draining matched paths out
// of "remaining" as it goes (run_guess.py's
// _ModInProgress.resolve_unique, minus the target-vfs/ignore-pattern
// plumbing that lives in internal/config here).
func ResolveRecipes(candidates []Installer, modfiles ModFiles) ([]RecipeDetails, ModFiles, error) {
	ordered, err := orderByOverwrite(candidates, modfiles)
	if err != nil {
		return nil, nil, err
	}

	remaining := make(ModFiles, len(modfiles))
	for k, v := range modfiles {
		remaining[k] = v
	}

	details := make([]RecipeDetails, 0, len(ordered))
	for _, inst := range ordered {
		rd := RecipeDetails{
			Installer: inst,
			Files:     make(map[string]retriever.FileInArchive),
			Skip:      make(map[string]struct{}),
			Ignored:   make(map[string]struct{}),
		}
		for _, df := range inst.AllDesiredFiles() {
			cands, known := modfiles[df.Path]
			if !known {
				continue
			}
			if matchesAny(cands, df.File.Digest) {
				rd.Files[df.Path] = df.File
				delete(remaining, df.Path)
			} else {
				rd.Skip[df.Path] = struct{}{}
			}
		}
		details = append(details, rd)
	}
	return details, remaining, nil
}

func matchesAny(cands []ModFileCandidate, h retriever.TruncatedDigest) bool {
	for _, c := range cands {
		if c.FileDigest == h {
			return true
		}
	}
	return false
}

// orderByOverwrite topologically sorts candidates so that, whenever two
// recipes both produce a path but disagree on its content, the recipe
// whose produced hash matches modfiles' known hash for that path runs
// last (so it wins the final overwrite). Cycles are reported as an
// error rather than silently broken, per spec.md §4.5's Open Question
// decision that FOMOD/tool cycles abort with a diagnostic
// (SPEC_FULL.md §14).
func orderByOverwrite(candidates []Installer, modfiles ModFiles) ([]Installer, error) {
	if len(candidates) <= 1 {
		return candidates, nil
	}

	files := make([]map[string]retriever.FileInArchive, len(candidates))
	for i, c := range candidates {
		m := make(map[string]retriever.FileInArchive)
		for _, df := range c.AllDesiredFiles() {
			m[df.Path] = df.File
		}
		files[i] = m
	}

	// after[{i, j}] means candidate i must run before candidate j. When
	// i's value at a shared path is the one modfiles actually shows, i
	// "overwrites" j in run_guess.py's terms (its aoverb/bovera naming: a
	// is preferred over b at a shared path), so i must be applied after j.
	after := make(map[[2]int]bool)
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			iOverJ, jOverI := false, false
			for path, fi := range files[i] {
				fj, ok := files[j][path]
				if !ok || fi.Digest == fj.Digest {
					continue
				}
				want, ok := modfiles[path]
				if !ok || len(want) == 0 {
					continue
				}
				if matchesAny(want, fi.Digest) {
					iOverJ = true
				} else if matchesAny(want, fj.Digest) {
					jOverI = true
				}
			}
			if iOverJ {
				after[[2]int{j, i}] = true // j must run before i
			}
			if jOverI {
				after[[2]int{i, j}] = true // i must run before j
			}
		}
	}

	var ordered []int
	placed := make(map[int]bool)
	for len(ordered) < len(candidates) {
		progressed := false
		for i := 0; i < len(candidates); i++ {
			if placed[i] {
				continue
			}
			blocked := false
			for j := 0; j < len(candidates); j++ {
				if !placed[j] && after[[2]int{j, i}] {
					blocked = true
					break
				}
			}
			if !blocked {
				ordered = append(ordered, i)
				placed[i] = true
				progressed = true
				break
			}
		}
		if !progressed {
			return nil, errors.NewLogicError(
				"order archive-install recipes",
				"a cycle of mutual file overwrites was found among the guessed recipes",
				"resolve the conflicting recipes manually, e.g. by excluding one of the archives",
			)
		}
	}

	out := make([]Installer, len(ordered))
	for k, idx := range ordered {
		out[k] = candidates[idx]
	}
	return out, nil
}

// SortedNames returns the names of every recipe, in a deterministic
// order, for diagnostics.
func SortedNames(details []RecipeDetails) []string {
	names := make([]string, 0, len(details))
	for _, d := range details {
		names = append(names, d.Installer.Name())
	}
	sort.Strings(names)
	return names
}
