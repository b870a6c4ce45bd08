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

// Package archiveplugin dispatches archive extraction by file extension to
// a small registry of handlers, each a pure I/O wrapper over either a
// Go archive codec or an external extractor (spec.md §2, "Archive plugin
// registry"). The dispatch shape — an interface plus a map-by-key
// registry consulted at runtime, never reflection — is grounded on
// pkg/ingestion/parser_interface.go's small-vtable pattern.
package archiveplugin

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/summonmm/summon/internal/errors"
)

// Plugin extracts from one archive format.
type Plugin interface {
	// Name identifies the plugin for attribution and diagnostics.
	Name() string
	// Extensions lists the lower-case, dot-prefixed extensions this
	// plugin claims (e.g. ".zip").
	Extensions() []string
	// Extract pulls just the named intra-archive paths into outDir,
	// preserving their relative layout.
	Extract(archivePath string, intraPaths []string, outDir string) error
	// ExtractAll pulls every entry into outDir.
	ExtractAll(archivePath, outDir string) error
}

// Registry dispatches by extension.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry returns a Registry with the built-in zip, tar/tar.gz and
// external 7z/rar plugins already registered.
func NewRegistry() *Registry {
	r := &Registry{plugins: make(map[string]Plugin)}
	r.Register(newZipPlugin())
	r.Register(newTarPlugin())
	r.Register(newSevenZipPlugin())
	r.Register(newRarPlugin())
	return r
}

// Register adds or replaces the handler for every extension plugin claims.
func (r *Registry) Register(p Plugin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ext := range p.Extensions() {
		r.plugins[ext] = p
	}
}

// For returns the plugin that handles archivePath's extension.
func (r *Registry) For(archivePath string) (Plugin, error) {
	ext := extensionOf(archivePath)
	r.mu.RLock()
	p, ok := r.plugins[ext]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewPluginError(
			fmt.Sprintf("select archive plugin for %s", archivePath),
			fmt.Sprintf("no plugin is registered for extension %q", ext),
			"register a plugin for this extension, or confirm the file really is an archive",
			nil,
		)
	}
	return p, nil
}

// IsArchiveExtension reports whether ext (as returned by extensionOf, or a
// plain ".foo" string) is claimed by any registered plugin.
func (r *Registry) IsArchiveExtension(path string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.plugins[extensionOf(path)]
	return ok
}

func extensionOf(path string) string {
	name := strings.ToLower(filepath.Base(path))
	if strings.HasSuffix(name, ".tar.gz") {
		return ".tar.gz"
	}
	if strings.HasSuffix(name, ".tar.bz2") {
		return ".tar.bz2"
	}
	return strings.ToLower(filepath.Ext(path))
}
