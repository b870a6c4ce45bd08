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

package arinstaller

import (
	"bytes"
	"strings"
	"sync"

	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/installer/fomod"
	"github.com/summonmm/summon/pkg/retriever"
)

// Fomod adapts a fomod.ArInstaller to the installer.Installer
// interface, recording the wizard selections so the manifest can
// reproduce this exact install deterministically (x30fomod.py's
// FomodArInstallerPlugin wiring its ArInstaller into the generic
// recipe format).
type Fomod struct {
	inner *fomod.ArInstaller
}

func (f *Fomod) Name() string { return "fomod" }

func (f *Fomod) AllDesiredFiles() []installer.DesiredFile {
	resolved := f.inner.AllDesiredFiles()
	out := make([]installer.DesiredFile, 0, len(resolved))
	for _, r := range resolved {
		out = append(out, installer.DesiredFile{Path: r.Dst, File: r.File})
	}
	return out
}

func (f *Fomod) InstallParams() any {
	sels := make([]map[string]string, 0, len(f.inner.Selections))
	for _, s := range f.inner.Selections {
		sels = append(sels, map[string]string{
			"step": s.StepName, "group": s.GroupName, "plugin": s.PluginName,
		})
	}
	return map[string]any{
		"fomodroot":  f.inner.FomodRoot,
		"selections": sels,
	}
}

// parsedConfigCache memoises ModuleConfig.xml parses per archive
// digest, so a mod pack containing many mods built from the same
// archive only pays the XML-parse cost once (x30fomod.py's
// ExtraArchiveDataFactory-backed cache).
type parsedConfigCache struct {
	mu    sync.Mutex
	byKey map[string]*fomod.ModuleConfig
}

func newParsedConfigCache() *parsedConfigCache {
	return &parsedConfigCache{byKey: make(map[string]*fomod.ModuleConfig)}
}

func (c *parsedConfigCache) get(key string, raw []byte) (*fomod.ModuleConfig, error) {
	c.mu.Lock()
	if cfg, ok := c.byKey[key]; ok {
		c.mu.Unlock()
		return cfg, nil
	}
	c.mu.Unlock()

	cfg, err := fomod.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byKey[key] = cfg
	c.mu.Unlock()
	return cfg, nil
}

// FomodPlugin discovers every "fomod\moduleconfig.xml" in the archive
// (one per candidate fomodroot — some archives nest more than one
// installer), parses each, and asks fomod.Guess to score the install
// against the mod's known files, keeping the best-scoring fomodroot
// (x30fomod.py's find_arinstaller).
type FomodPlugin struct {
	cache *parsedConfigCache
	// Open opens one archive file's content, keyed by the archive's
	// intra-path, for the ModuleConfig.xml and any referenced files the
	// guesser needs to read. A production pipeline wires this to the
	// archive extraction cache (helpers/archive_extraction.py); tests
	// wire it to an in-memory map.
	Open func(archive retriever.Archive, intraPath string) ([]byte, error)
}

// NewFomodPlugin returns a FomodPlugin reading archive content through
// open.
func NewFomodPlugin(open func(archive retriever.Archive, intraPath string) ([]byte, error)) *FomodPlugin {
	return &FomodPlugin{cache: newParsedConfigCache(), Open: open}
}

func (p *FomodPlugin) Name() string { return "fomod" }

func (p *FomodPlugin) GuessFromVFS(ctx installer.GuessContext) (installer.Installer, error) {
	roots := findFomodRoots(ctx.Archive)
	if len(roots) == 0 {
		return nil, nil
	}

	modfiles := make(map[string][]fomod.ModFile, len(ctx.ModFiles))
	for path, cands := range ctx.ModFiles {
		for _, c := range cands {
			modfiles[path] = append(modfiles[path], fomod.ModFile{
				ArchiveDigest: c.ArchiveDigest,
				FileDigest:    c.FileDigest,
			})
		}
	}

	var best *fomod.Result
	for _, root := range roots {
		configPath := root
		if configPath != "" {
			configPath += `\`
		}
		configPath += `fomod\moduleconfig.xml`

		raw, err := p.Open(ctx.Archive, configPath)
		if err != nil {
			continue
		}
		cfg, err := p.cache.get(string(ctx.Archive.Digest[:])+"|"+configPath, raw)
		if err != nil {
			continue
		}

		res, err := fomod.Guess(root, cfg, ctx.Archive, modfiles)
		if err != nil {
			return nil, err
		}
		if res == nil {
			continue
		}
		if best == nil || res.Coverage > best.Coverage {
			best = res
		}
	}

	if best == nil {
		return nil, nil
	}
	return &Fomod{inner: best.Installer}, nil
}

// findFomodRoots returns every intra-path prefix p such that
// p+"\fomod\moduleconfig.xml" (case-insensitive) exists in archive.
func findFomodRoots(archive retriever.Archive) []string {
	const marker = `\fomod\moduleconfig.xml`
	var roots []string
	for _, f := range archive.Files {
		lower := strings.ToLower(f.IntraPath)
		if lower == "fomod\\moduleconfig.xml" {
			roots = append(roots, "")
			continue
		}
		if strings.HasSuffix(lower, marker) {
			roots = append(roots, f.IntraPath[:len(f.IntraPath)-len(marker)])
		}
	}
	return roots
}
