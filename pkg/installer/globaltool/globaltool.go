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

// Package globaltool explains a file on the composed virtual file
// system as the output of a known external tool run against the
// already-resolved mod load order, rather than as something any mod
// archive installed directly (plugins/globaltools.py's
// GlobalToolPluginBase family).
package globaltool

import "github.com/summonmm/summon/pkg/retriever"

// CouldBeProducedByGlobalTool ranks how confident a Plugin is that
// targetpath is the tool's output, from "definitely not" up to
// "matches the tool's current configuration" (globaltools.py's
// CouldBeProducedByGlobalTool IntEnum).
type CouldBeProducedByGlobalTool int

const (
	NotFound CouldBeProducedByGlobalTool = iota
	Maybe
	WithKnownConfig
	WithOldConfig
	WithCurrentConfig
)

// IsGreaterOrEqual mirrors the Python enum's is_greater_or_eq, letting
// callers collapse several plugins' verdicts to the strongest one.
func (c CouldBeProducedByGlobalTool) IsGreaterOrEqual(other CouldBeProducedByGlobalTool) bool {
	return c >= other
}

// Plugin tests one hypothesis about an external, game-specific tool
// (a body/mesh generator, an archive packer, ...) that consumes the
// resolved load order and regenerates some of its own output files in
// place, so their presence on a target doesn't need an install recipe.
type Plugin interface {
	Name() string
	// SupportedGames lists the upper-case game identifiers this plugin
	// applies to (globaltools.py's supported_games).
	SupportedGames() []string
	// Extensions lists the lower-case, dot-prefixed target extensions
	// this plugin can ever explain (globaltools.py's extensions).
	Extensions() []string
	// CreateContext scans the resolved VFS once per run and returns an
	// opaque value CouldBeProduced reuses for every target file it's
	// asked about (globaltools.py's create_context).
	CreateContext(vfs *retriever.ResolvedVFS) (any, error)
	// CouldBeProduced judges one target file given the context
	// CreateContext returned (globaltools.py's could_be_produced).
	CouldBeProduced(ctx any, srcPath, targetPath string) CouldBeProducedByGlobalTool
}

// Registry holds the game-scoped set of global-tool plugins
// (globaltools.py's all_global_tool_plugins).
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
