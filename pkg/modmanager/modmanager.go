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

// Package modmanager adapts a mod manager's own on-disk layout (the
// enabled/disabled mod order, its overwrite folder, its per-mod
// folders) into the composed virtual file system every other package
// in this module reasons about (plugins/modmanagers.py's
// ModManagerPluginBase/ModManagerConfig family).
package modmanager

import "github.com/summonmm/summon/pkg/retriever"

// ModFile names one file as the mod manager sees it: a mod name (nil
// for the manager's own "overwrite" folder) plus the path inside that
// mod (common.py's ModFile).
type ModFile struct {
	Mod      *string
	IntraMod string
}

// Config is a configured mod manager instance: one modpack's specific
// install directory, ignore rules, and active mod order
// (modmanagers.py's ModManagerConfig).
type Config interface {
	// ActiveSourceVFSFolders lists the on-disk folders that together
	// make up the source VFS, outermost overwrite first, active mods
	// afterward in increasing overwrite priority.
	ActiveSourceVFSFolders() []retriever.FolderToCache
	// DefaultDownloadDirs lists the mod manager's own default archive
	// download directories, as interpolable path templates.
	DefaultDownloadDirs() []string
	// ModFileToTargetVFS maps a ModFile to its path relative to the
	// composed target VFS root (e.g. prefixing "data\" for Skyrim).
	ModFileToTargetVFS(mf ModFile) string
	// ModFileToSourceVFS maps a ModFile back to its absolute on-disk
	// source path.
	ModFileToSourceVFS(mf ModFile) string
	// ParseSourceVFS recovers the ModFile a source VFS absolute path
	// came from.
	ParseSourceVFS(path string) (ModFile, error)
	// ResolveVFS composes every active folder's files into one
	// overwrite-ordered view of the target VFS.
	ResolveVFS(sourceVFS []retriever.FileOnDisk) (*retriever.ResolvedVFS, error)
}

// Plugin names and constructs one mod manager's Config
// (modmanagers.py's ModManagerPluginBase).
type Plugin interface {
	Name() string
	NewConfig() Config
}

// Registry holds the known mod manager plugins, looked up by name from
// the project config's "modmanager" field.
type Registry struct {
	plugins map[string]Plugin
}

// NewRegistry indexes plugins by their Name(), lower-cased.
func NewRegistry(plugins ...Plugin) *Registry {
	r := &Registry{plugins: make(map[string]Plugin, len(plugins))}
	for _, p := range plugins {
		r.plugins[lowerASCII(p.Name())] = p
	}
	return r
}

// ByName looks up a plugin by its (case-insensitive) name.
func (r *Registry) ByName(name string) (Plugin, bool) {
	p, ok := r.plugins[lowerASCII(name)]
	return p, ok
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
