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

// Package modtool explains a mod's remaining unexplained files (after
// every guessed archive-install recipe has claimed what it can) as the
// result of a known, game-specific external tool having renamed files
// in place, rather than as a patch or a missing recipe
// (plugins/modtools.py's ModToolPluginBase family).
package modtool

import "github.com/summonmm/summon/pkg/installer"

// Move is one file the tool is believed to have renamed from src to
// dst, both mod-relative paths.
type Move struct {
	Src, Dst string
}

// Diff is what a Plugin concludes a tool did: the set of renames that
// explain why some of a recipe's produced-but-"skip"ped files and some
// of the mod's still-unexplained files are actually the same content
// under a different name (modtools.py's ModToolGuessDiff).
type Diff struct {
	Moved []Move
}

// GuessParam is everything a Plugin needs to test its hypothesis: the
// ordered, already-resolved archive-install recipes for this mod (and
// which of their produced paths were classified as "skip", meaning
// content that didn't match what's on disk) plus every mod file still
// unaccounted for afterward (modtools.py's ModToolGuessParam).
type GuessParam struct {
	InstallFrom       []installer.RecipeDetails
	RemainingAfter    installer.ModFiles
}

// Plugin tests one hypothesis about how a game's external tooling
// might explain a mod's unresolved files.
type Plugin interface {
	Name() string
	// SupportedGames lists the upper-case game identifiers this plugin
	// applies to (modtools.py's supported_games).
	SupportedGames() []string
	// GuessApplied returns the tool-specific params to record in the
	// manifest and the renames it believes explain the mismatch, or nil
	// if the hypothesis doesn't fit this mod at all.
	GuessApplied(param GuessParam) (any, *Diff, error)
}

// Registry holds the game-scoped set of modtool plugins
// (modtools.py's all_mod_tool_plugins).
type Registry struct {
	plugins []Plugin
}

// NewRegistry returns a Registry trying plugins in the given order.
func NewRegistry(plugins ...Plugin) *Registry {
	return &Registry{plugins: plugins}
}

// ForGame returns the plugins applicable to gameUniverse (case-insensitive).
func (r *Registry) ForGame(gameUniverse string) []Plugin {
	upper := upperASCII(gameUniverse)
	var out []Plugin
	for _, p := range r.plugins {
		for _, g := range p.SupportedGames() {
			if g == upper {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func upperASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}
