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

package modmanager

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/summonmm/summon/pkg/retriever"
)

// ModList is one MO2 profile's modlist.txt: which mods are enabled,
// in increasing overwrite priority (helpers/modlist.py's ModList).
type ModList struct {
	// entries holds every modlist.txt line except disabled ("-") mods, in
	// natural (lowest to highest priority) order; separator lines are
	// kept, and each line keeps its original marker prefix.
	entries []string
}

// LoadModList reads profileDir's modlist.txt (profileDir must end in a
// path separator), dropping disabled mods (separators are kept) and reversing MO2's
// highest-to-lowest on-disk order into natural priority order.
func LoadModList(profileDir string) (*ModList, error) {
	f, err := os.Open(profileDir + "modlist.txt")
	if err != nil {
		return nil, fmt.Errorf("modmanager: open modlist.txt: %w", err)
	}
	defer f.Close()

	var kept []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.HasSuffix(line, "_separator") || !strings.HasPrefix(line, "-") {
			kept = append(kept, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("modmanager: read modlist.txt: %w", err)
	}

	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return &ModList{entries: kept}, nil
}

// AllEnabled returns the enabled mod names, in increasing overwrite
// priority (lowest first, highest-priority mod last).
func (m *ModList) AllEnabled() []string {
	var out []string
	for _, e := range m.entries {
		if strings.HasPrefix(e, "+") {
			out = append(out, e[1:])
		}
	}
	return out
}

// IsSeparator reports whether modname is a separator entry, returning
// its display name without the "_separator" suffix.
func IsSeparator(modname string) (string, bool) {
	if strings.HasSuffix(modname, "_separator") {
		return strings.TrimSuffix(modname, "_separator"), true
	}
	return "", false
}

// Mo2Plugin is the Mod Organizer 2 modmanager.Plugin
// (plugins/modmanager/mo2.py's Mo2Plugin).
type Mo2Plugin struct{}

func (Mo2Plugin) Name() string      { return "mo2" }
func (Mo2Plugin) NewConfig() Config { return &Mo2Config{} }

// DefaultIgnoreDirs is the "{DEFAULT-MO2-IGNORES}" config shorthand:
// the subfolders of mo2dir\overwrite\ that never belong in the source
// VFS regardless of modpack (mo2.py's parse_config_section).
func DefaultIgnoreDirs(mo2Dir string) []string {
	return []string{
		mo2Dir + `overwrite\Root\Logs\`,
		mo2Dir + `overwrite\Root\Backup\`,
		mo2Dir + `overwrite\ShaderCache\`,
	}
}

// Mo2Config is a configured MO2 install: its directory, ignore rules,
// and master profile's mod order (mo2.py's Mo2ProjectConfig).
type Mo2Config struct {
	Mo2Dir            string
	IgnoreDirs        []string
	MasterProfile     string
	GeneratedProfiles map[string]string
	MasterModList     *ModList
}

// NewMo2Config loads the master profile's modlist.txt and returns a
// ready Mo2Config (mo2.py's parse_config_section, minus the raw
// config-dict parsing which belongs to internal/config).
func NewMo2Config(mo2Dir, masterProfile string, generatedProfiles map[string]string, ignoreDirs []string) (*Mo2Config, error) {
	modlist, err := LoadModList(mo2Dir + `profiles\` + masterProfile + `\`)
	if err != nil {
		return nil, err
	}
	return &Mo2Config{
		Mo2Dir:            mo2Dir,
		IgnoreDirs:        ignoreDirs,
		MasterProfile:     masterProfile,
		GeneratedProfiles: generatedProfiles,
		MasterModList:     modlist,
	}, nil
}

func (c *Mo2Config) isPathIgnored(path string) bool {
	for _, ig := range c.IgnoreDirs {
		if strings.HasPrefix(path, ig) {
			return true
		}
	}
	return false
}

func (c *Mo2Config) ActiveSourceVFSFolders() []retriever.FolderToCache {
	var out []retriever.FolderToCache
	overwrite := c.Mo2Dir + `overwrite\`
	if !c.isPathIgnored(overwrite) {
		out = append(out, retriever.FolderToCache{Root: overwrite, Excludes: c.IgnoreDirs})
	}
	for _, mod := range c.MasterModList.AllEnabled() {
		folder := c.Mo2Dir + `mods\` + mod + `\`
		if c.isPathIgnored(folder) {
			continue
		}
		out = append(out, retriever.FolderToCache{Root: folder, Excludes: c.IgnoreDirs})
	}
	return out
}

func (c *Mo2Config) DefaultDownloadDirs() []string {
	return []string{`{mo2.mo2dir}downloads\`}
}

func (c *Mo2Config) ModFileToTargetVFS(mf ModFile) string {
	if mf.Mod == nil {
		return mf.IntraMod
	}
	// MO2's RootBuilder plugin.
	if strings.HasPrefix(strings.ToLower(mf.IntraMod), `root\`) {
		return mf.IntraMod[len(`root\`):]
	}
	return `data\` + mf.IntraMod
}

func (c *Mo2Config) ModFileToSourceVFS(mf ModFile) string {
	if mf.Mod == nil {
		return c.Mo2Dir + `overwrite\` + mf.IntraMod
	}
	return c.Mo2Dir + `mods\` + *mf.Mod + `\` + mf.IntraMod
}

func (c *Mo2Config) ParseSourceVFS(path string) (ModFile, error) {
	overwrite := c.Mo2Dir + `overwrite\`
	if strings.HasPrefix(path, overwrite) {
		return ModFile{IntraMod: path[len(overwrite):]}, nil
	}
	modsDir := c.Mo2Dir + `mods\`
	if !strings.HasPrefix(path, modsDir) {
		return ModFile{}, fmt.Errorf("modmanager: %q is not under %q or %q", path, overwrite, modsDir)
	}
	rest := path[len(modsDir):]
	slash := strings.IndexByte(rest, '\\')
	if slash < 0 {
		return ModFile{}, fmt.Errorf("modmanager: %q has no mod-relative path under %q", path, modsDir)
	}
	mod := rest[:slash]
	return ModFile{Mod: &mod, IntraMod: rest[slash+1:]}, nil
}

// modPriority is -1 for the overwrite folder, otherwise the enabled
// mod's index in increasing-priority order (mo2.py's
// resolve_vfs/FastSearchOverPartialStrings matching).
func (c *Mo2Config) modPriority(path string, enabled []string) (int, bool) {
	overwrite := c.Mo2Dir + `overwrite\`
	if strings.HasPrefix(path, overwrite) {
		return -1, true
	}
	bestIdx, bestLen := -1, -1
	for i, mod := range enabled {
		prefix := strings.ToLower(c.Mo2Dir + `mods\` + mod + `\`)
		if strings.HasPrefix(strings.ToLower(path), prefix) && len(prefix) > bestLen {
			bestIdx, bestLen = i, len(prefix)
		}
	}
	if bestIdx < 0 {
		return 0, false
	}
	return bestIdx, true
}

// ResolveVFS composes every source file into one overwrite-ordered
// target VFS, lowest-priority source (the overwrite folder) first and
// the highest-priority enabled mod last (mo2.py's resolve_vfs).
func (c *Mo2Config) ResolveVFS(sourceVFS []retriever.FileOnDisk) (*retriever.ResolvedVFS, error) {
	enabled := c.MasterModList.AllEnabled()

	type placed struct {
		priority int
		file     retriever.FileOnDisk
	}
	byTarget := make(map[string][]placed)

	for _, f := range sourceVFS {
		mf, err := c.ParseSourceVFS(f.Path)
		if err != nil {
			return nil, err
		}
		priority, ok := c.modPriority(f.Path, enabled)
		if !ok {
			return nil, fmt.Errorf("modmanager: %q does not belong to any enabled mod", f.Path)
		}
		target := c.ModFileToTargetVFS(mf)
		byTarget[target] = append(byTarget[target], placed{priority: priority, file: f})
	}

	out := retriever.NewResolvedVFS()
	for target, list := range byTarget {
		sort.SliceStable(list, func(i, j int) bool { return list[i].priority < list[j].priority })
		for _, p := range list {
			out.Add(p.file, target)
		}
	}
	return out, nil
}
