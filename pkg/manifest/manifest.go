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

// Package manifest defines the reproducible project manifest: for every
// mod in the modpack, the list of github files, zero-length files,
// ordered archive-install recipes, tool and patch guesses, and whatever
// remains unexplained, in the canonical stable-JSON form a second run
// over the same inputs must reproduce byte-for-byte
// (gitdata/project_json.py's ProjectJson family).
package manifest

import (
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/stablejson"
)

// toAnySlice adapts a typed slice to the []any form stablejson's
// encoder recognizes as a list; each element still renders through its
// own StableJSON method via stablejson's Marshaler resolution.
func toAnySlice[T any](items []T) []any {
	if items == nil {
		return nil
	}
	out := make([]any, len(items))
	for i, it := range items {
		out[i] = it
	}
	return out
}

// ExtraArchiveFile is one file inside a remaining (unexplained) archive,
// named either by its single intra-path or, if the same content
// appears at several paths in that archive, by all of them
// (project_json.py's ProjectExtraArchiveFile).
type ExtraArchiveFile struct {
	TargetFileName string
	IntraPath      string
	IntraPaths     []string
}

// NewExtraArchiveFile mirrors the Python constructor's single-vs-many
// collapsing: a single intra path is stored directly, more than one is
// kept as a list.
func NewExtraArchiveFile(targetFileName string, intra []string) ExtraArchiveFile {
	if len(intra) == 1 {
		return ExtraArchiveFile{TargetFileName: targetFileName, IntraPath: intra[0]}
	}
	return ExtraArchiveFile{TargetFileName: targetFileName, IntraPaths: intra}
}

func (f ExtraArchiveFile) StableJSON() any {
	obj := stablejson.Object{"t": f.TargetFileName}
	if f.IntraPath != "" {
		obj["s"] = f.IntraPath
	}
	if len(f.IntraPaths) > 0 {
		obj["sl"] = toAnySlice(f.IntraPaths)
	}
	return obj
}

// ExtraArchive is an archive this mod owns that no recipe fully
// explained, recorded either by content digest or by its index into the
// archive pool (project_json.py's ProjectExtraArchive).
type ExtraArchive struct {
	ArchiveHash *retriever.Digest
	ArchiveIdx  *int
	ExtraFiles  []ExtraArchiveFile
}

func (a ExtraArchive) StableJSON() any {
	obj := stablejson.Object{}
	if a.ArchiveHash != nil {
		obj["arh"] = stablejson.Bytes(a.ArchiveHash[:])
	}
	if a.ArchiveIdx != nil {
		obj["ar"] = *a.ArchiveIdx
	}
	if len(a.ExtraFiles) > 0 {
		obj["files"] = toAnySlice(a.ExtraFiles)
	}
	return obj
}

// Installer is one resolved archive-install recipe, in the order it
// must run to reproduce the mod's overwrite layering
// (project_json.py's ProjectInstaller).
type Installer struct {
	ArchiveHash    retriever.Digest
	InstallerType  string
	InstallerParam any
	Skip           []string
}

func (i Installer) StableJSON() any {
	return stablejson.Object{
		"h":      stablejson.Bytes(i.ArchiveHash[:]),
		"type":   i.InstallerType,
		"params": i.InstallerParam,
		"skip":   toAnySlice(i.Skip),
	}
}

// ModTool records one external tool a modtool.Plugin guessed was run
// against this mod's files after install (project_json.py's
// ProjectModTool).
type ModTool struct {
	Name  string
	Param any
}

func (t ModTool) StableJSON() any {
	return stablejson.Object{"name": t.Name, "param": t.Param}
}

// ModPatch records one file-level patch (a JSON or INI delta) applied
// to a recipe's output to reach what's actually on disk
// (project_json.py's ProjectModPatch).
type ModPatch struct {
	File  string
	Type  string
	Param any
}

func (p ModPatch) StableJSON() any {
	return stablejson.Object{"f": p.File, "t": p.Type, "p": p.Param}
}

// Mod is everything known about how to reproduce one mod's files: what
// came from companion repositories, what's zero-length, what came from
// archives (as an ordered recipe list), what's left in unexplained
// archives, and what remains entirely unaccounted for
// (project_json.py's ProjectMod).
type Mod struct {
	ModName             string
	ZeroFiles           []string
	GithubFiles         map[string]retriever.GithubRetriever
	Installers          []Installer
	RemainingArchives   []ExtraArchive
	UnknownFilesByTools []string
	UnknownFiles        []string
	ModTools            []ModTool
	Patches             []ModPatch
}

func (m Mod) StableJSON() any {
	github := make(map[string]any, len(m.GithubFiles))
	for path, r := range m.GithubFiles {
		github[path] = githubRetrieverJSON(r)
	}
	return stablejson.Object{
		"name":           m.ModName,
		"zero":           toAnySlice(m.ZeroFiles),
		"github":         github,
		"installers":     toAnySlice(m.Installers),
		"xarchives":      toAnySlice(m.RemainingArchives),
		"unknownbytools": toAnySlice(m.UnknownFilesByTools),
		"unknown":        toAnySlice(m.UnknownFiles),
		"modtools":       toAnySlice(m.ModTools),
		"patches":        toAnySlice(m.Patches),
	}
}

func githubRetrieverJSON(r retriever.GithubRetriever) any {
	return stablejson.Object{
		"h": stablejson.Bytes(r.Digest[:]),
		"s": r.Size,
		"a": r.Author,
		"p": r.Project,
		"i": r.IntraPath,
	}
}

// Project is the whole manifest: every mod in the pack
// (project_json.py's ProjectJson, this module's "summon.json").
type Project struct {
	Mods []Mod
}

func (p Project) StableJSON() any {
	return stablejson.Object{"mods": toAnySlice(p.Mods)}
}

// Marshal renders p as the canonical stable-JSON manifest bytes.
func Marshal(p Project) ([]byte, error) {
	return stablejson.Marshal(p)
}
