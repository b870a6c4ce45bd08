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

// Package guesspipeline runs the Installer Guesser's full seven-stage
// pipeline (spec.md §4.5) end to end: given the composed source VFS, it
// partitions every mod's files by retriever kind, guesses and orders
// archive-install recipes, reduces cross-mod archive ambiguity, offers
// mod tools and global tools a chance to explain what recipes couldn't,
// diffs the rest as patches, and assembles the result into a
// manifest.Project (run_guess.py's run_guess, the top-level entry point
// every other guesser module in this tree is a piece of).
//
// Stages 2 and 3 (per-archive recipe selection and overwrite ordering)
// are pkg/installer's own Registry.Guess / ResolveRecipes; this package
// is the glue that builds their inputs per mod and carries stages 1 and
// 4 through 7 around them.
package guesspipeline

import (
	"sort"

	"github.com/summonmm/summon/internal/config"
	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/archiveindex"
	"github.com/summonmm/summon/pkg/archiveplugin"
	"github.com/summonmm/summon/pkg/availablefiles"
	"github.com/summonmm/summon/pkg/foldercache"
	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/installer/globaltool"
	"github.com/summonmm/summon/pkg/installer/modtool"
	"github.com/summonmm/summon/pkg/manifest"
	"github.com/summonmm/summon/pkg/modmanager"
	"github.com/summonmm/summon/pkg/retriever"
)

// Config wires a pipeline run to the caches, registries and game-specific
// plugin sets it needs. Every field except ModTools, GlobalTools and
// RootModpack is required.
type Config struct {
	ModManager     modmanager.Config
	Available      *availablefiles.Resolver
	Archives       *archiveindex.Index
	ArchivePlugins *archiveplugin.Registry
	Downloads      *foldercache.Cache
	Recipes        *installer.Registry

	// ModTools and GlobalTools may be left nil for a game universe with
	// no applicable plugins; the corresponding stage is then a no-op.
	ModTools    *modtool.Registry
	GlobalTools *globaltool.Registry

	// GameUniverse selects which mod-tool and global-tool plugins apply.
	GameUniverse string
	// RootModpack, if set, supplies the modpack-level ignore patterns
	// (spec.md §4.5 stage 2's "ignored" classification).
	RootModpack *config.GithubModpackConfig
	// ScratchDir is the base directory patch extraction scratch trees
	// are created under (spec.md §4.5 stage 7).
	ScratchDir string
}

func (c Config) validate() error {
	if c.ModManager == nil || c.Available == nil || c.Archives == nil || c.ArchivePlugins == nil ||
		c.Downloads == nil || c.Recipes == nil {
		return errors.NewConfigError(
			"run guess pipeline",
			"ModManager, Available, Archives, ArchivePlugins, Downloads and Recipes are all required",
			"pass every required field of guesspipeline.Config",
			nil,
		)
	}
	return nil
}

// modWork is one mod's partitioned file set, built by collect (stage 1).
type modWork struct {
	name         string
	zero         []string
	github       map[string]retriever.GithubRetriever
	archiveFiles installer.ModFiles
	unknown      map[string]struct{}
	// srcPath maps an intra-mod path to its absolute on-disk source
	// path, needed by the patches stage to read the mod's actual bytes.
	srcPath map[string]string
}

// modState extends modWork with stages 2-3's output: the ordered
// recipes, what they left unexplained, and which archive each recipe
// came from (for manifest attribution and the patches stage).
type modState struct {
	*modWork
	details   []installer.RecipeDetails
	remaining installer.ModFiles
	archiveOf map[installer.Installer]retriever.Digest
}

// Run executes the full pipeline over sourceFiles (the mod manager's
// raw source-VFS scan) and returns the resulting manifest, ready for
// manifest.Write.
func Run(cfg Config, sourceFiles []retriever.FileOnDisk) (manifest.Project, error) {
	if err := cfg.validate(); err != nil {
		return manifest.Project{}, err
	}

	works, order, err := collect(cfg, sourceFiles)
	if err != nil {
		return manifest.Project{}, err
	}

	// Stage 2-3, per mod, plus the bookkeeping stage 4 needs: which
	// archives each mod uniquely requires, and the union across every
	// mod (spec.md §4.5 stage 4, "already required by the same mod...
	// already required by any mod").
	states := make(map[string]*modState, len(works))
	ownReq := make(map[string]map[retriever.Digest]bool, len(works))
	globalReq := make(map[retriever.Digest]bool)
	for _, name := range order {
		w := works[name]
		req := uniqueArchiveDigests(w.archiveFiles)
		ownReq[name] = req
		for d := range req {
			globalReq[d] = true
		}
		st, err := guessRecipes(cfg, w)
		if err != nil {
			return manifest.Project{}, err
		}
		states[name] = st
	}

	vfs, err := cfg.ModManager.ResolveVFS(sourceFiles)
	if err != nil {
		return manifest.Project{}, err
	}
	gtCtx, err := buildGlobalToolContexts(cfg, vfs)
	if err != nil {
		return manifest.Project{}, err
	}

	project := manifest.Project{Mods: make([]manifest.Mod, 0, len(order))}
	for _, name := range order {
		st := states[name]

		resolvedRemaining, remainingModFiles := reduceAmbiguity(st.remaining, ownReq[name], globalReq)
		tools := applyModTools(cfg, st, remainingModFiles, resolvedRemaining)
		unknownByTools := applyGlobalTools(cfg, gtCtx, st)
		patches, err := applyPatches(cfg, st)
		if err != nil {
			return manifest.Project{}, err
		}

		project.Mods = append(project.Mods, assembleMod(st, resolvedRemaining, tools, unknownByTools, patches))
	}
	return project, nil
}

// collect implements stage 1: partition every mod's files into
// {zero, github, archive, unknown} by retriever kind, skipping the
// overwrite folder (it belongs to no mod, so nothing to reproduce for
// it) and any target the root modpack ignores.
func collect(cfg Config, sourceFiles []retriever.FileOnDisk) (map[string]*modWork, []string, error) {
	works := make(map[string]*modWork)
	var order []string

	for _, f := range sourceFiles {
		mf, err := cfg.ModManager.ParseSourceVFS(f.Path)
		if err != nil {
			return nil, nil, err
		}
		if mf.Mod == nil {
			continue
		}
		target := cfg.ModManager.ModFileToTargetVFS(mf)
		if cfg.RootModpack != nil && cfg.RootModpack.IgnoredByPattern(target) {
			continue
		}

		w, ok := works[*mf.Mod]
		if !ok {
			w = &modWork{
				name:         *mf.Mod,
				github:       make(map[string]retriever.GithubRetriever),
				archiveFiles: make(installer.ModFiles),
				unknown:      make(map[string]struct{}),
				srcPath:      make(map[string]string),
			}
			works[*mf.Mod] = w
			order = append(order, *mf.Mod)
		}

		w.srcPath[mf.IntraMod] = f.Path
		classify(cfg, w, mf.IntraMod, f.Digest)
	}

	sort.Strings(order)
	return works, order, nil
}

func classify(cfg Config, w *modWork, intraMod string, digest retriever.Digest) {
	retrievers := cfg.Available.RetrieversByDigest(digest)
	if len(retrievers) == 0 {
		w.unknown[intraMod] = struct{}{}
		return
	}

	// RetrieversByDigest never mixes kinds in one call: it resolves to
	// zero, or to one-or-more github hits, or to one-or-more archive
	// chains, never a blend (pkg/availablefiles's precedence order).
	switch retrievers[0].Kind() {
	case retriever.KindZero:
		w.zero = append(w.zero, intraMod)

	case retriever.KindGithub:
		best := retrievers[0].(retriever.GithubRetriever)
		for _, r := range retrievers[1:] {
			if g := r.(retriever.GithubRetriever); githubLess(g, best) {
				best = g
			}
		}
		w.github[intraMod] = best

	case retriever.KindArchive:
		cands := make([]installer.ModFileCandidate, 0, len(retrievers))
		for _, r := range retrievers {
			ar, ok := r.(retriever.ArchiveRetriever)
			if !ok || len(ar.Chain) == 0 {
				continue
			}
			head := ar.Chain[0]
			cands = append(cands, installer.ModFileCandidate{
				ArchiveDigest: head.ArchiveDigest,
				IntraPath:     head.File.IntraPath,
				FileDigest:    head.File.Digest,
			})
		}
		if len(cands) == 0 {
			w.unknown[intraMod] = struct{}{}
			return
		}
		w.archiveFiles[intraMod] = cands
	}
}

// githubLess gives companion-file candidates a deterministic order so
// picking the first one is reproducible across runs.
func githubLess(a, b retriever.GithubRetriever) bool {
	if a.Author != b.Author {
		return a.Author < b.Author
	}
	if a.Project != b.Project {
		return a.Project < b.Project
	}
	return a.IntraPath < b.IntraPath
}
