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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/summonmm/summon/internal/globmatch"
)

// GithubModpack identifies a companion repository and, for dependency
// entries, an optional subfolder within it ("author/project[/sub]",
// install_github.py's GithubFolder plus project_config.py's
// GithubModpack.ghsplit/mpfolder/mpto_str).
type GithubModpack struct {
	Author    string
	Project   string
	Subfolder string
}

// ParseGithubModpack splits "author/project" or "author/project/sub".
func ParseGithubModpack(combined string) (GithubModpack, error) {
	parts := strings.Split(strings.TrimSpace(combined), "/")
	switch len(parts) {
	case 2:
		return GithubModpack{Author: strings.TrimSpace(parts[0]), Project: strings.TrimSpace(parts[1])}, nil
	case 3:
		return GithubModpack{Author: strings.TrimSpace(parts[0]), Project: strings.TrimSpace(parts[1]), Subfolder: strings.TrimSpace(parts[2])}, nil
	default:
		return GithubModpack{}, fmt.Errorf("config: %q is not author/project or author/project/subfolder", combined)
	}
}

// Folder is the companion repository's checkout directory under
// githubRootDir.
func (g GithubModpack) Folder(githubRootDir string) string {
	return githubRootDir + strings.ToLower(g.Author) + `\` + strings.ToLower(g.Project) + `\`
}

// ModpackFolder is Folder, plus the lower-cased subfolder when present.
func (g GithubModpack) ModpackFolder(githubRootDir string) string {
	parent := g.Folder(githubRootDir)
	if g.Subfolder == "" {
		return parent
	}
	return parent + strings.ToLower(g.Subfolder) + `\`
}

func (g GithubModpack) String() string {
	s := g.Author + "/" + g.Project
	if g.Subfolder != "" {
		s += "/" + g.Subfolder
	}
	return s
}

// GithubModpackConfig is one companion repository's summon.json5: either
// the root modpack (game universe, file-origin plugin configs, ignore
// patterns) or a non-root dependency (its own further dependencies and
// which of its mods are "own", i.e. not shared with siblings)
// (project_config.py's GithubModpackConfig).
type GithubModpackConfig struct {
	IsRoot bool

	// Root-only.
	GameUniverse      string
	OriginConfigs     Document
	IgnoredFilePatterns []string

	// Non-root only.
	Dependencies []GithubModpack
	OwnModNames  []string
}

// LoadGithubModpackConfig reads and parses a companion repository's
// summon.json5 at jsonconfigfname.
func LoadGithubModpackConfig(jsonconfigfname string) (*GithubModpackConfig, error) {
	raw, err := os.ReadFile(jsonconfigfname)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", jsonconfigfname, err)
	}
	var doc Document
	if err := ParseJSONC(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: %s: %w", jsonconfigfname, err)
	}
	return newGithubModpackConfig(doc)
}

func newGithubModpackConfig(doc Document) (*GithubModpackConfig, error) {
	cfg := &GithubModpackConfig{}

	isroot, _ := doc["isroot"].(float64)
	cfg.IsRoot = isroot != 0

	if cfg.IsRoot {
		origins, _ := doc["origins"].(map[string]any)
		cfg.OriginConfigs = Document(origins)

		universe, ok := doc["gameuniverse"].(string)
		if !ok {
			return nil, fmt.Errorf("config: root modpack config missing required \"gameuniverse\"")
		}
		cfg.GameUniverse = universe

		switch v := doc["ignorepatterns"].(type) {
		case nil:
		case string:
			cfg.IgnoredFilePatterns = []string{v}
		case []any:
			for _, it := range v {
				s, ok := it.(string)
				if !ok {
					return nil, fmt.Errorf("config: \"ignorepatterns\" entries must be strings")
				}
				cfg.IgnoredFilePatterns = append(cfg.IgnoredFilePatterns, s)
			}
		default:
			return nil, fmt.Errorf("config: \"ignorepatterns\" must be a string or list of strings")
		}
		return cfg, nil
	}

	deps, _ := doc["dependencies"].([]any)
	for _, d := range deps {
		s, ok := d.(string)
		if !ok {
			return nil, fmt.Errorf("config: \"dependencies\" entries must be strings")
		}
		gm, err := ParseGithubModpack(s)
		if err != nil {
			return nil, err
		}
		cfg.Dependencies = append(cfg.Dependencies, gm)
	}

	ownmods, _ := doc["ownmods"].([]any)
	for _, m := range ownmods {
		s, ok := m.(string)
		if !ok {
			return nil, fmt.Errorf("config: \"ownmods\" entries must be strings")
		}
		cfg.OwnModNames = append(cfg.OwnModNames, normalizeFileName(s))
	}
	return cfg, nil
}

func normalizeFileName(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, "/", `\`))
}

// ResolveModpackConfigs walks ghproject's summon.json5 and every
// dependency it transitively names, reading each from its already
// checked-out folder under githubRootDir (install_github_project_with_dependencies,
// minus the clone step: companion repos are expected to already be
// present on disk, cloning them is out of scope here). It returns every
// modpack config keyed by "author/project[/sub]" plus which one is root.
func ResolveModpackConfigs(ghproject, githubRootDir string) (map[string]*GithubModpackConfig, string, error) {
	all := make(map[string]*GithubModpackConfig)
	root, err := resolveModpackConfigs(ghproject, githubRootDir, all)
	if err != nil {
		return nil, "", err
	}
	if root == "" {
		return nil, "", fmt.Errorf("config: no root modpack found among %s and its dependencies", ghproject)
	}
	return all, root, nil
}

func resolveModpackConfigs(ghproject, githubRootDir string, all map[string]*GithubModpackConfig) (string, error) {
	if _, ok := all[ghproject]; ok {
		return "", nil
	}

	gm, err := ParseGithubModpack(ghproject)
	if err != nil {
		return "", err
	}
	jsonconfigfname := gm.ModpackFolder(githubRootDir) + "summon.json5"
	cfg, err := LoadGithubModpackConfig(jsonconfigfname)
	if err != nil {
		return "", err
	}
	all[ghproject] = cfg

	rootmodpack := ""
	if cfg.IsRoot {
		rootmodpack = ghproject
	}
	for _, d := range cfg.Dependencies {
		rmp, err := resolveModpackConfigs(d.String(), githubRootDir, all)
		if err != nil {
			return "", err
		}
		if rmp != "" {
			if rootmodpack != "" {
				return "", fmt.Errorf("config: more than one root modpack found (%s and %s)", rootmodpack, rmp)
			}
			rootmodpack = rmp
		}
	}
	return rootmodpack, nil
}

// IgnoredByPattern reports whether path matches any of the root
// modpack's ignore patterns.
func (c *GithubModpackConfig) IgnoredByPattern(path string) bool {
	for _, pat := range c.IgnoredFilePatterns {
		if globmatch.Match(path, pat) {
			return true
		}
	}
	return false
}
