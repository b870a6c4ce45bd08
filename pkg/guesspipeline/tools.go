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
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/installer/globaltool"
	"github.com/summonmm/summon/pkg/installer/modtool"
	"github.com/summonmm/summon/pkg/manifest"
	"github.com/summonmm/summon/pkg/modmanager"
	"github.com/summonmm/summon/pkg/retriever"
)

// applyModTools implements stage 5: offer every mod-tool plugin
// supported by the configured game universe the mod's resolved recipes
// and remaining files; a plugin that recognises its own renaming moves
// files out of a recipe's Skip set and out of what's left unexplained.
func applyModTools(cfg Config, st *modState, remainingModFiles installer.ModFiles, resolvedRemaining map[string]installer.ModFileCandidate) []manifest.ModTool {
	if cfg.ModTools == nil {
		return nil
	}

	var tools []manifest.ModTool
	for _, p := range cfg.ModTools.ForGame(cfg.GameUniverse) {
		param, diff, err := p.GuessApplied(modtool.GuessParam{
			InstallFrom:    st.details,
			RemainingAfter: remainingModFiles,
		})
		if err != nil || diff == nil || len(diff.Moved) == 0 {
			continue
		}

		applied := false
		for _, mv := range diff.Moved {
			if removeFromSkip(st.details, mv.Src) {
				delete(remainingModFiles, mv.Dst)
				delete(resolvedRemaining, mv.Dst)
				applied = true
			}
		}
		if applied {
			tools = append(tools, manifest.ModTool{Name: p.Name(), Param: param})
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}

func removeFromSkip(details []installer.RecipeDetails, path string) bool {
	for i := range details {
		if _, ok := details[i].Skip[path]; ok {
			delete(details[i].Skip, path)
			return true
		}
	}
	return false
}

// globalToolContexts holds each applicable global-tool plugin's
// CreateContext result, built once per run and reused across every
// mod's CouldBeProduced calls.
type globalToolContexts struct {
	plugins []globaltool.Plugin
	ctx     []any
	vfs     *retriever.ResolvedVFS
}

func buildGlobalToolContexts(cfg Config, vfs *retriever.ResolvedVFS) (*globalToolContexts, error) {
	if cfg.GlobalTools == nil {
		return &globalToolContexts{vfs: vfs}, nil
	}
	plugins := cfg.GlobalTools.ForGame(cfg.GameUniverse)
	out := &globalToolContexts{plugins: plugins, ctx: make([]any, len(plugins)), vfs: vfs}
	for i, p := range plugins {
		c, err := p.CreateContext(vfs)
		if err != nil {
			return nil, fmt.Errorf("global tool %s: create context: %w", p.Name(), err)
		}
		out.ctx[i] = c
	}
	return out, nil
}

// applyGlobalTools implements stage 6: for every file still unknown
// after recipes and mod tools, ask each applicable global-tool plugin
// whether it could have produced it; the strongest verdict across
// plugins wins and moves the file to unknown-by-tools.
func applyGlobalTools(cfg Config, gt *globalToolContexts, st *modState) []string {
	paths := make([]string, 0, len(st.unknown))
	for p := range st.unknown {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var byTools []string
	for _, intraMod := range paths {
		modName := st.name
		target := cfg.ModManager.ModFileToTargetVFS(modmanager.ModFile{Mod: &modName, IntraMod: intraMod})
		ext := strings.ToLower(filepath.Ext(target))
		srcPath := target
		if winner, ok := gt.vfs.Winner(target); ok {
			srcPath = winner.Path
		}

		best := globaltool.NotFound
		for i, p := range gt.plugins {
			if !hasExtension(p.Extensions(), ext) {
				continue
			}
			verdict := p.CouldBeProduced(gt.ctx[i], srcPath, target)
			if verdict > best {
				best = verdict
			}
		}
		if best > globaltool.NotFound {
			delete(st.unknown, intraMod)
			byTools = append(byTools, intraMod)
		}
	}
	sort.Strings(byTools)
	return byTools
}

func hasExtension(exts []string, ext string) bool {
	for _, e := range exts {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
