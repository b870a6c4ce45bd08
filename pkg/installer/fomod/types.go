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

// Package fomod implements the FOMOD installer recipe: parsing a
// ModuleConfig.xml, replaying its step/group/plugin selection rules, and
// guessing the selections that were actually made for a given archive
// (spec.md §4.6). It is grounded on
// plugins/arinstaller/_fomod/fomod_common.py, fomod_parser.py,
// fomod_engine.py and fomod_guess.py.
package fomod

import (
	"sort"
	"strings"

	"github.com/summonmm/summon/pkg/retriever"
)

// SrcDstFlags are the optional attributes of a <file>/<folder> entry.
type SrcDstFlags int

const (
	FlagAlwaysInstall SrcDstFlags = 1 << iota
	FlagInstallIfUsable
)

// SrcDst is one <file> or <folder> mapping from an archive path to a
// destination path, as named by fomod_common.py's FomodSrcDst.
type SrcDst struct {
	Src      string
	Dst      string
	Priority int
	Flags    SrcDstFlags
}

// FilesAndFolders is an accumulated set of file/folder installs, merged
// as the engine walks required files, selected plugins and conditional
// installs (fomod_common.py's FomodFilesAndFolders).
type FilesAndFolders struct {
	Files   []SrcDst
	Folders []SrcDst
}

// Merge appends b's entries onto f.
func (f *FilesAndFolders) Merge(b *FilesAndFolders) {
	if b == nil {
		return
	}
	f.Files = append(f.Files, b.Files...)
	f.Folders = append(f.Folders, b.Folders...)
}

// Copy returns an independent copy of f.
func (f *FilesAndFolders) Copy() *FilesAndFolders {
	out := &FilesAndFolders{}
	out.Files = append(out.Files, f.Files...)
	out.Folders = append(out.Folders, f.Folders...)
	return out
}

// resolvedFile is one produced destination path, keeping the winning
// priority so AllFiles can apply last-in/highest-priority overwrite
// semantics, mirroring FomodFilesAndFolders._add_to_out.
type resolvedFile struct {
	priority int
	file     retriever.FileInArchive
}

// AllFiles resolves f against ar, rooted at fomodroot (the directory
// within the archive containing ModuleConfig.xml), returning one entry
// per produced destination path.
func (f *FilesAndFolders) AllFiles(fomodroot string, ar *ArchiveIndex) []ResolvedEntry {
	root1 := fomodroot
	if root1 != "" {
		root1 += `\`
	}
	out := make(map[string]resolvedFile)
	add := func(dst string, priority int, af retriever.FileInArchive) {
		existing, ok := out[dst]
		if !ok || priority > existing.priority || (priority == existing.priority && af.Digest != existing.file.Digest) {
			out[dst] = resolvedFile{priority: priority, file: af}
		}
	}
	for _, sd := range f.Files {
		src := NormalizeFilePath(root1 + sd.Src)
		dst := NormalizeFilePath(sd.Dst)
		if af, ok := ar.byPath[src]; ok {
			add(dst, sd.Priority, af)
		}
	}
	for _, sd := range f.Folders {
		src := NormalizeFolderPath(root1 + sd.Src)
		dst := NormalizeFolderPath(sd.Dst)
		ar.ForAllStartingWith(src, func(remainder string, af retriever.FileInArchive) {
			add(dst+remainder, sd.Priority, af)
		})
	}
	entries := make([]ResolvedEntry, 0, len(out))
	for dst, rf := range out {
		entries = append(entries, ResolvedEntry{Dst: dst, Priority: rf.priority, File: rf.file})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Dst < entries[j].Dst })
	return entries
}

// ResolvedEntry is one (destination path, source archive file) pairing
// produced by FilesAndFolders.AllFiles.
type ResolvedEntry struct {
	Dst      string
	Priority int
	File     retriever.FileInArchive
}

// NormalizeFilePath lower-cases and backslash-normalizes a file path
// within a FOMOD archive tree.
func NormalizeFilePath(src string) string {
	src = strings.ToLower(strings.ReplaceAll(src, "/", `\`))
	src = strings.TrimPrefix(src, `.\`)
	return strings.TrimSuffix(src, `\`)
}

// NormalizeFolderPath is like NormalizeFilePath but keeps (adds) the
// trailing backslash, since folder entries are matched by prefix.
func NormalizeFolderPath(src string) string {
	src = strings.ToLower(strings.ReplaceAll(src, "/", `\`))
	src = strings.TrimPrefix(src, `.\`)
	if src == "" || strings.HasSuffix(src, `\`) {
		return src
	}
	return src + `\`
}

// ArchiveIndex is a lookup structure over one archive's files, built
// once per guess/install run (fomod_common.py's
// ArchiveForFomodFilesAndFolders).
type ArchiveIndex struct {
	byPath  map[string]retriever.FileInArchive
	sorted  []retriever.FileInArchive
}

// NewArchiveIndex indexes every file of ar by its (lower-cased,
// backslash-normalized) intra-archive path.
func NewArchiveIndex(ar retriever.Archive) *ArchiveIndex {
	idx := &ArchiveIndex{byPath: make(map[string]retriever.FileInArchive, len(ar.Files))}
	for _, f := range ar.Files {
		idx.byPath[f.IntraPath] = f
		idx.sorted = append(idx.sorted, f)
	}
	sort.Slice(idx.sorted, func(i, j int) bool { return idx.sorted[i].IntraPath < idx.sorted[j].IntraPath })
	return idx
}

// ForAllStartingWith calls fn for every indexed file whose path begins
// with src, passing the remainder of the path after the src prefix.
func (a *ArchiveIndex) ForAllStartingWith(src string, fn func(remainder string, af retriever.FileInArchive)) {
	i := sort.Search(len(a.sorted), func(i int) bool { return a.sorted[i].IntraPath >= src })
	for ; i < len(a.sorted); i++ {
		p := a.sorted[i].IntraPath
		if !strings.HasPrefix(p, src) {
			break
		}
		fn(p[len(src):], a.sorted[i])
	}
}

// DependencyRuntime carries the condition flags accumulated so far
// while replaying install steps (fomod_common.py's
// FomodDependencyEngineRuntimeData).
type DependencyRuntime struct {
	Flags map[string]string
}

// FlagDependency is satisfied when runtime.Flags[Name] == Value.
type FlagDependency struct {
	Name  string
	Value string
}

func (d FlagDependency) Satisfied(rt *DependencyRuntime) bool {
	v, ok := rt.Flags[d.Name]
	return ok && v == d.Value
}

// FileDependencyState names the on-disk state a fileDependency checks
// for. Summon never mirrors a target game's install, so this always
// evaluates satisfied (fomod_common.py's FomodFileDependency.is_satisfied
// carries the same `# TODO!` stub).
type FileDependencyState int

const (
	FileDependencyNotInitialized FileDependencyState = iota
	FileDependencyActive
	FileDependencyInactive
	FileDependencyMissing
)

// FileDependency names a target-game file presence check. Always
// satisfied for the reason given above FileDependencyState.
type FileDependency struct {
	File  string
	State FileDependencyState
}

func (FileDependency) Satisfied(*DependencyRuntime) bool { return true }

// GameDependency names a minimum target-game version. Always satisfied,
// for the same reason as FileDependency.
type GameDependency struct {
	Version string
}

func (GameDependency) Satisfied(*DependencyRuntime) bool { return true }

// SomeDependency is exactly one of the four dependency kinds FOMOD
// allows inside a <dependencies> block (fomod_common.py's
// FomodSomeDependency, kept as a tagged struct rather than an interface
// so it round-trips through XML the same way the original walks a
// single child element).
type SomeDependency struct {
	Flag *FlagDependency
	File *FileDependency
	Game *GameDependency
	Deps *Dependencies
}

func (d SomeDependency) Satisfied(rt *DependencyRuntime) bool {
	switch {
	case d.Flag != nil:
		return d.Flag.Satisfied(rt)
	case d.File != nil:
		return d.File.Satisfied(rt)
	case d.Game != nil:
		return d.Game.Satisfied(rt)
	case d.Deps != nil:
		return d.Deps.Satisfied(rt)
	default:
		return true
	}
}

// Dependencies is an AND (default) or OR (Or==true) group of
// SomeDependency checks. An empty group is always satisfied.
type Dependencies struct {
	Or    bool
	Items []SomeDependency
}

func (d *Dependencies) Satisfied(rt *DependencyRuntime) bool {
	if d == nil || len(d.Items) == 0 {
		return true
	}
	if d.Or {
		for _, it := range d.Items {
			if it.Satisfied(rt) {
				return true
			}
		}
		return false
	}
	for _, it := range d.Items {
		if !it.Satisfied(rt) {
			return false
		}
	}
	return true
}

// ModuleType is the usability classification a <type> or <dependencyType>
// pattern assigns a plugin.
type ModuleType int

const (
	TypeNotInitialized ModuleType = iota
	TypeNotUsable
	TypeCouldBeUsable
	TypeOptional
	TypeRecommended
	TypeRequired
)

// Pattern pairs a dependency check with the type/files it implies when
// satisfied (fomod_common.py's FomodPattern).
type Pattern struct {
	Dependencies *Dependencies
	Type         ModuleType
	Files        *FilesAndFolders
}

// TypeDescriptor resolves a plugin's ModuleType, either a fixed value or
// the first satisfied pattern out of a dependencyType's pattern list.
type TypeDescriptor struct {
	Type     ModuleType
	Patterns []Pattern
}

// GroupSelect names how many of a group's plugins may/must be active.
type GroupSelect int

const (
	SelectNotInitialized GroupSelect = iota
	SelectAny
	SelectAll
	SelectExactlyOne
	SelectAtMostOne
	SelectAtLeastOne
)

// Order names the display order of a group's plugins or an install
// step's groups.
type Order int

const (
	OrderAscending Order = iota
	OrderExplicit
	OrderDescending
)

// Plugin is one selectable option within a Group.
type Plugin struct {
	Name           string
	Description    string
	Image          string
	Files          *FilesAndFolders
	TypeDescriptor *TypeDescriptor
	ConditionFlags []FlagDependency
}

// Group is one SelectAny/SelectAll/.../SelectAtLeastOne choice within an
// install step.
type Group struct {
	Name    string
	Select  GroupSelect
	Order   Order
	Plugins []Plugin
}

// InstallStep is one wizard page: a named, conditionally-visible set of
// plugin-choice groups.
type InstallStep struct {
	Name    string
	Order   Order
	Groups  []Group
	Visible Dependencies
}

// ModuleConfig is the fully parsed contents of a FOMOD ModuleConfig.xml
// (fomod_common.py's FomodModuleConfig).
type ModuleConfig struct {
	ModuleName              string
	EyeCandy                map[string]string
	ModuleDependencies       []FileDependency
	Required                 FilesAndFolders
	InstallStepsOrder        Order
	InstallSteps             []InstallStep
	ConditionalFileInstalls  []Pattern
}

// Selection names one chosen (stepName, groupName, pluginName) triple,
// comparable so it can be used as a map/set key
// (fomod_common.py/fomod_engine.py's FomodInstallerSelection).
type Selection struct {
	StepName   string
	GroupName  string
	PluginName string
}
