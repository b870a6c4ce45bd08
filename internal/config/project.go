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

	"github.com/summonmm/summon/pkg/modmanager"
)

// ProjectConfig is the fully resolved project configuration: the chosen
// mod manager, its VFS, the working directories, and the modpack
// dependency tree rooted at ThisModpack (helpers/project_config.py's
// LocalProjectConfig, minus the companion-repo clone step: dependency
// folders are expected to already exist on disk).
type ProjectConfig struct {
	ConfigDir string

	ModManagerName string
	ModManager     modmanager.Config

	DownloadDirs []string
	CacheDir     string
	TmpDir       string
	GithubRootDir string

	ThisModpack    string
	RootModpack    string
	ModpackConfigs map[string]*GithubModpackConfig

	GithubUsername string
}

// LoadProjectConfig reads and resolves jsonconfigfname (the top-level
// project's summon.json5) using registry to look up the selected mod
// manager plugin.
func LoadProjectConfig(jsonconfigfname string, registry *modmanager.Registry) (*ProjectConfig, error) {
	configDir := normalizeDirPath(dirOf(jsonconfigfname))

	raw, err := os.ReadFile(jsonconfigfname)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", jsonconfigfname, err)
	}
	var doc Document
	if err := ParseJSONC(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: %s: %w", jsonconfigfname, err)
	}

	pc := &ProjectConfig{ConfigDir: configDir}

	mmName, ok := doc["modmanager"].(string)
	if !ok {
		return nil, fmt.Errorf("config: %s: \"modmanager\" must be present", jsonconfigfname)
	}
	if _, ok := registry.ByName(mmName); !ok {
		return nil, fmt.Errorf("config: %s: modmanager %q is not a known mod manager", jsonconfigfname, mmName)
	}
	pc.ModManagerName = mmName

	mmSectionRaw, ok := doc[mmName]
	if !ok {
		return nil, fmt.Errorf("config: %s: %q section must be present for modmanager=%s", jsonconfigfname, mmName, mmName)
	}
	mmSection, ok := mmSectionRaw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("config: %s: %q must be an object", jsonconfigfname, mmName)
	}

	overlay, err := LoadYAMLOverlay(configDir)
	if err != nil {
		return nil, err
	}
	mmDoc := ApplyYAMLOverlay(Document(mmSection), overlay, mmName)

	mmCfg, downloadDirsFromManager, err := configureModManager(mmName, mmDoc, configDir, doc)
	if err != nil {
		return nil, err
	}
	pc.ModManager = mmCfg

	dls, err := stringListField(doc, "downloads", downloadDirsFromManager)
	if err != nil {
		return nil, err
	}
	pc.DownloadDirs = make([]string, 0, len(dls))
	for _, dl := range dls {
		resolved, err := DirPath(dl, configDir, doc)
		if err != nil {
			return nil, err
		}
		pc.DownloadDirs = append(pc.DownloadDirs, resolved)
	}

	pc.CacheDir, err = DirPath(stringOr(doc, "cache", configDir+`.\summon.cache\`), configDir, doc)
	if err != nil {
		return nil, err
	}
	pc.TmpDir, err = DirPath(stringOr(doc, "tmp", configDir+`.\summon.tmp\`), configDir, doc)
	if err != nil {
		return nil, err
	}
	pc.GithubRootDir, err = DirPath(stringOr(doc, "githubroot", `.\`), configDir, doc)
	if err != nil {
		return nil, err
	}

	ghmodpack, ok := doc["modpack"].(string)
	if !ok {
		return nil, fmt.Errorf("config: %s: \"modpack\" must be present", jsonconfigfname)
	}
	if _, err := ParseGithubModpack(ghmodpack); err != nil {
		return nil, fmt.Errorf("config: %s: \"modpack\": %w", jsonconfigfname, err)
	}
	pc.ThisModpack = ghmodpack

	modpackConfigs, rootModpack, err := ResolveModpackConfigs(ghmodpack, pc.GithubRootDir)
	if err != nil {
		return nil, err
	}
	if rootModpack == ghmodpack {
		return nil, fmt.Errorf("config: %s: modpack %q cannot itself be the root modpack", jsonconfigfname, ghmodpack)
	}
	pc.ModpackConfigs = modpackConfigs
	pc.RootModpack = rootModpack

	username, ok := doc["githubusername"].(string)
	if !ok {
		return nil, fmt.Errorf("config: %s: \"githubusername\" must be present", jsonconfigfname)
	}
	pc.GithubUsername = username

	return pc, nil
}

// RootModpackConfig returns the root modpack's resolved config.
func (pc *ProjectConfig) RootModpackConfig() *GithubModpackConfig {
	return pc.ModpackConfigs[pc.RootModpack]
}

// ThisModpackFolder is the checkout directory of pc's own modpack.
func (pc *ProjectConfig) ThisModpackFolder() (string, error) {
	gm, err := ParseGithubModpack(pc.ThisModpack)
	if err != nil {
		return "", err
	}
	return gm.ModpackFolder(pc.GithubRootDir), nil
}

// configureModManager builds a modmanager.Config from its JSON section.
// Only "mo2" is a known concrete mod manager in this module (mirroring
// parse_config_section's per-manager dispatch in mo2.py); a second
// manager would get its own case here.
func configureModManager(name string, section Document, configDir string, fullDoc Document) (modmanager.Config, []string, error) {
	switch name {
	case "mo2":
		return configureMo2(section, configDir, fullDoc)
	default:
		return nil, nil, fmt.Errorf("config: modmanager %q has no configuration handler", name)
	}
}

func configureMo2(section Document, configDir string, fullDoc Document) (modmanager.Config, []string, error) {
	mo2dirRaw, ok := section["mo2dir"].(string)
	if !ok {
		return nil, nil, fmt.Errorf(`config: "mo2dir" must be present in config.mo2 for modmanager=mo2`)
	}
	mo2dir, err := DirPath(mo2dirRaw, configDir, fullDoc)
	if err != nil {
		return nil, nil, err
	}

	masterProfile, ok := section["masterprofile"].(string)
	if !ok {
		return nil, nil, fmt.Errorf(`config: "masterprofile" must be a string in config.mo2`)
	}

	generatedProfiles := map[string]string{}
	if gp, ok := section["generatedprofiles"].(map[string]any); ok {
		for k, v := range gp {
			s, ok := v.(string)
			if !ok {
				return nil, nil, fmt.Errorf(`config: config.mo2.generatedprofiles values must be strings`)
			}
			generatedProfiles[k] = s
		}
	}

	var ignoreDirs []string
	ignores, err := stringListField(section, "ignores", []string{"{DEFAULT-MO2-IGNORES}"})
	if err != nil {
		return nil, nil, err
	}
	for _, ig := range ignores {
		if ig == "{DEFAULT-MO2-IGNORES}" {
			ignoreDirs = append(ignoreDirs, modmanager.DefaultIgnoreDirs(mo2dir)...)
			continue
		}
		resolved, err := DirPath(ig, mo2dir, fullDoc)
		if err != nil {
			return nil, nil, err
		}
		ignoreDirs = append(ignoreDirs, resolved)
	}

	cfg, err := modmanager.NewMo2Config(mo2dir, masterProfile, generatedProfiles, ignoreDirs)
	if err != nil {
		return nil, nil, err
	}
	return cfg, cfg.DefaultDownloadDirs(), nil
}

// dirOf returns jsonconfigfname's containing directory, treating the
// path as Windows-style regardless of host OS (modpack paths always are).
func dirOf(path string) string {
	path = strings.ReplaceAll(path, "/", `\`)
	if i := strings.LastIndexByte(path, '\\'); i >= 0 {
		return path[:i]
	}
	return "."
}

func stringOr(doc Document, key, fallback string) string {
	if v, ok := doc[key].(string); ok {
		return v
	}
	return fallback
}

func stringListField(doc Document, key string, fallback []string) ([]string, error) {
	v, ok := doc[key]
	if !ok {
		return fallback, nil
	}
	switch t := v.(type) {
	case string:
		return []string{t}, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, it := range t {
			s, ok := it.(string)
			if !ok {
				return nil, fmt.Errorf("config: %q entries must be strings", key)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("config: %q must be a string or list of strings", key)
	}
}
