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

package guesspipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"

	"github.com/summonmm/summon/pkg/archiveindex"
	"github.com/summonmm/summon/pkg/archiveplugin"
	"github.com/summonmm/summon/pkg/availablefiles"
	"github.com/summonmm/summon/pkg/foldercache"
	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/installer/arinstaller"
	"github.com/summonmm/summon/pkg/installer/patch"
	"github.com/summonmm/summon/pkg/manifest"
	"github.com/summonmm/summon/pkg/modmanager"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

// fakeModManager implements modmanager.Config over a single source-VFS
// root laid out as <root>/<ModName>/<intra path>, using real
// path/filepath semantics rather than Mo2Config's Windows string
// matching, so the fixtures below run the same regardless of the host
// the test happens to execute on.
type fakeModManager struct {
	root string
}

func (f *fakeModManager) ActiveSourceVFSFolders() []retriever.FolderToCache {
	return []retriever.FolderToCache{{Root: f.root}}
}

func (f *fakeModManager) DefaultDownloadDirs() []string { return nil }

func (f *fakeModManager) ParseSourceVFS(path string) (modmanager.ModFile, error) {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return modmanager.ModFile{}, err
	}
	parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
	if len(parts) != 2 {
		return modmanager.ModFile{}, nil
	}
	mod := parts[0]
	return modmanager.ModFile{Mod: &mod, IntraMod: retriever.NormalizeIntraPath(parts[1])}, nil
}

func (f *fakeModManager) ModFileToTargetVFS(mf modmanager.ModFile) string {
	if mf.Mod == nil {
		return mf.IntraMod
	}
	return *mf.Mod + "\\" + mf.IntraMod
}

func (f *fakeModManager) ModFileToSourceVFS(mf modmanager.ModFile) string {
	return f.ModFileToTargetVFS(mf)
}

func (f *fakeModManager) ResolveVFS(files []retriever.FileOnDisk) (retriever.ResolvedVFS, error) {
	vfs := retriever.NewResolvedVFS()
	for _, file := range files {
		mf, err := f.ParseSourceVFS(file.Path)
		if err != nil {
			return retriever.ResolvedVFS{}, err
		}
		if mf.Mod == nil {
			continue
		}
		vfs.Add(f.ModFileToTargetVFS(mf), file.Path)
	}
	return vfs, nil
}

// writeZipFile writes a real zip archive to path, one entry per map
// key/value pair, mirroring pkg/archiveplugin's own writeTestZip helper
// but taking raw bytes so a whole nested archive can be embedded
// byte-for-byte as a single entry (the nested-archive scenario below).
func writeZipFile(t *testing.T, path string, files map[string][]byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range sortedKeys(files) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close %s: %v", path, err)
	}
}

// buildZipBytes builds a zip archive entirely in memory, so its bytes
// can be embedded as a single entry inside an outer archive.
func buildZipBytes(t *testing.T, files map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range sortedKeys(files) {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := w.Write(files[name]); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mustWriteFile(t *testing.T, path string, content []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// testPipeline bundles one fully wired, already-run scan of a downloads
// folder and a mod-source folder: the same Start/Finalize sequence
// cmd/summon's own app.scan uses, so each scenario below drives the
// real scheduler, folder caches, archive indexer and available-files
// resolver instead of hand-computing digests.
type testPipeline struct {
	downloads *foldercache.Cache
	archives  *archiveindex.Index
	available *availablefiles.Resolver
	plugins   *archiveplugin.Registry
	modsrc    *foldercache.Cache
}

func buildPipeline(t *testing.T, downloadsRoot, modsRoot string) *testPipeline {
	t.Helper()

	sched, err := scheduler.New(scheduler.Options{Workers: 2})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}

	plugins := archiveplugin.NewRegistry()

	downloads, err := foldercache.New(foldercache.Config{
		Name:     "downloads",
		Roots:    []retriever.FolderToCache{{Root: downloadsRoot}},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("downloads foldercache.New: %v", err)
	}
	companion, err := foldercache.New(foldercache.Config{
		Name:     "companion",
		Roots:    []retriever.FolderToCache{{Root: t.TempDir()}},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("companion foldercache.New: %v", err)
	}
	modsrc, err := foldercache.New(foldercache.Config{
		Name:     "modsrc",
		Roots:    []retriever.FolderToCache{{Root: modsRoot}},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("modsrc foldercache.New: %v", err)
	}

	archives, err := archiveindex.New(archiveindex.Config{
		Name:        "archives",
		Registry:    plugins,
		CacheDir:    t.TempDir(),
		ScratchBase: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("archiveindex.New: %v", err)
	}

	available, err := availablefiles.New(availablefiles.Config{
		Downloads: downloads,
		Companion: companion,
		Index:     archives,
		Registry:  plugins,
	})
	if err != nil {
		t.Fatalf("availablefiles.New: %v", err)
	}

	downloadsBarrier, err := downloads.Start(sched)
	if err != nil {
		t.Fatalf("downloads.Start: %v", err)
	}
	companionBarrier, err := companion.Start(sched)
	if err != nil {
		t.Fatalf("companion.Start: %v", err)
	}
	modsrcBarrier, err := modsrc.Start(sched)
	if err != nil {
		t.Fatalf("modsrc.Start: %v", err)
	}
	indexLoaded, err := archives.Start(sched)
	if err != nil {
		t.Fatalf("archives.Start: %v", err)
	}
	availReady, err := available.Start(sched, downloadsBarrier, companionBarrier, indexLoaded)
	if err != nil {
		t.Fatalf("available.Start: %v", err)
	}
	archivesReady, err := archives.Finalize(sched, []string{availReady})
	if err != nil {
		t.Fatalf("archives.Finalize: %v", err)
	}

	if err := sched.Run(context.Background()); err != nil {
		t.Fatalf("sched.Run: %v", err)
	}
	if _, ok := sched.Result(modsrcBarrier); !ok {
		t.Fatalf("modsrc barrier %q did not complete", modsrcBarrier)
	}
	if _, ok := sched.Result(archivesReady); !ok {
		t.Fatalf("archives barrier %q did not complete", archivesReady)
	}

	return &testPipeline{
		downloads: downloads,
		archives:  archives,
		available: available,
		plugins:   plugins,
		modsrc:    modsrc,
	}
}

func findModByName(t *testing.T, mods []manifest.Mod, name string) manifest.Mod {
	t.Helper()
	for _, m := range mods {
		if m.ModName == name {
			return m
		}
	}
	t.Fatalf("mod %q not found among %d mods", name, len(mods))
	return manifest.Mod{}
}

// TestScenario_S2_SingleArchiveCleanInstall covers the simplest archive
// install: one zip containing one file, whose content exactly matches
// the mod's on-disk file, so SimpleUnpackPlugin's root vote lands on
// the archive root and the whole file is explained by one Installer
// recipe with nothing left to skip or patch.
func TestScenario_S2_SingleArchiveCleanInstall(t *testing.T) {
	downloadsRoot := t.TempDir()
	content := []byte("clean install payload")
	writeZipFile(t, filepath.Join(downloadsRoot, "CleanMod.zip"), map[string][]byte{
		"data/foo.esp": content,
	})

	modsRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(modsRoot, "CleanMod", "data", "foo.esp"), content)

	pl := buildPipeline(t, downloadsRoot, modsRoot)

	recipes := installer.NewRegistry(arinstaller.SimpleUnpackPlugin{})
	cfg := Config{
		ModManager:     &fakeModManager{root: modsRoot},
		Available:      pl.available,
		Archives:       pl.archives,
		ArchivePlugins: pl.plugins,
		Downloads:      pl.downloads,
		Recipes:        recipes,
		ScratchDir:     t.TempDir(),
	}

	project, err := Run(cfg, pl.modsrc.AllFiles())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mod := findModByName(t, project.Mods, "CleanMod")
	if len(mod.Installers) != 1 {
		t.Fatalf("Installers = %d, want 1 (%+v)", len(mod.Installers), mod.Installers)
	}
	if mod.Installers[0].InstallerType != "simpleunpack" {
		t.Errorf("InstallerType = %q, want simpleunpack", mod.Installers[0].InstallerType)
	}
	if len(mod.UnknownFiles) != 0 {
		t.Errorf("UnknownFiles = %v, want none", mod.UnknownFiles)
	}
	if len(mod.RemainingArchives) != 0 {
		t.Errorf("RemainingArchives = %v, want none", mod.RemainingArchives)
	}
	if len(mod.Patches) != 0 {
		t.Errorf("Patches = %v, want none", mod.Patches)
	}
}

// TestScenario_S3_NestedArchiveNoUniqueRecipe covers a file that only
// exists inside a zip nested inside another zip (archiveindex's own
// recursive extension-driven discovery, no external 7z/rar binary
// needed). Because the mod's file matches the nested archive at two
// different chain depths, classify produces two duplicate-content
// candidates for it; uniqueArchiveDigests only treats an archive as
// required when exactly one candidate exists, so no recipe is guessed
// and the file surfaces as an unresolved extra file against the nested
// archive's own digest.
func TestScenario_S3_NestedArchiveNoUniqueRecipe(t *testing.T) {
	downloadsRoot := t.TempDir()
	leafContent := []byte("deeply nested texture bytes")
	innerZip := buildZipBytes(t, map[string][]byte{
		"textures/foo.dds": leafContent,
	})
	writeZipFile(t, filepath.Join(downloadsRoot, "Outer.zip"), map[string][]byte{
		"inner.zip": innerZip,
	})

	modsRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(modsRoot, "NestedMod", "textures", "foo.dds"), leafContent)

	pl := buildPipeline(t, downloadsRoot, modsRoot)

	if got := len(pl.archives.Archives()); got != 2 {
		t.Fatalf("indexed archives = %d, want 2 (outer + recursively discovered inner)", got)
	}

	recipes := installer.NewRegistry(arinstaller.SimpleUnpackPlugin{})
	cfg := Config{
		ModManager:     &fakeModManager{root: modsRoot},
		Available:      pl.available,
		Archives:       pl.archives,
		ArchivePlugins: pl.plugins,
		Downloads:      pl.downloads,
		Recipes:        recipes,
		ScratchDir:     t.TempDir(),
	}

	project, err := Run(cfg, pl.modsrc.AllFiles())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mod := findModByName(t, project.Mods, "NestedMod")
	if len(mod.Installers) != 0 {
		t.Errorf("Installers = %+v, want none (duplicate candidates block uniqueness)", mod.Installers)
	}
	if len(mod.UnknownFiles) != 0 {
		t.Errorf("UnknownFiles = %v, want none: the file is known, just ambiguous", mod.UnknownFiles)
	}
	if len(mod.RemainingArchives) != 1 {
		t.Fatalf("RemainingArchives = %d, want 1 (%+v)", len(mod.RemainingArchives), mod.RemainingArchives)
	}
	extra := mod.RemainingArchives[0]
	if extra.ArchiveHash == nil {
		t.Fatalf("RemainingArchives[0].ArchiveHash is nil, want the nested archive's digest")
	}

	// The nested archive's digest is whichever of the two indexed
	// archives isn't Outer.zip itself.
	var outerDigest, nestedDigest retriever.Digest
	for _, f := range pl.downloads.AllFiles() {
		if filepath.Base(f.Path) == "Outer.zip" {
			outerDigest = f.Digest
		}
	}
	for _, ar := range pl.archives.Archives() {
		if ar.Digest != outerDigest {
			nestedDigest = ar.Digest
		}
	}
	if *extra.ArchiveHash != nestedDigest {
		t.Errorf("RemainingArchives[0].ArchiveHash = %x, want nested archive digest %x", *extra.ArchiveHash, nestedDigest)
	}
	if len(extra.ExtraFiles) != 1 || extra.ExtraFiles[0].IntraPath != "textures\\foo.dds" {
		t.Errorf("ExtraFiles = %+v, want one entry for textures\\foo.dds", extra.ExtraFiles)
	}
}

// TestScenario_S5_EmptyFileIsZeroRetriever covers a zero-byte mod file:
// RetrieversByDigest short-circuits to retriever.TheZeroRetriever for
// retriever.ZeroDigest without consulting the archive index at all, so
// the file is recorded as a zero file and nothing else.
func TestScenario_S5_EmptyFileIsZeroRetriever(t *testing.T) {
	downloadsRoot := t.TempDir()
	modsRoot := t.TempDir()
	mustWriteFile(t, filepath.Join(modsRoot, "ZeroMod", "meshes", "empty.nif"), nil)

	pl := buildPipeline(t, downloadsRoot, modsRoot)

	cfg := Config{
		ModManager:     &fakeModManager{root: modsRoot},
		Available:      pl.available,
		Archives:       pl.archives,
		ArchivePlugins: pl.plugins,
		Downloads:      pl.downloads,
		Recipes:        installer.NewRegistry(),
		ScratchDir:     t.TempDir(),
	}

	project, err := Run(cfg, pl.modsrc.AllFiles())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mod := findModByName(t, project.Mods, "ZeroMod")
	if len(mod.ZeroFiles) != 1 || mod.ZeroFiles[0] != "meshes\\empty.nif" {
		t.Fatalf("ZeroFiles = %v, want [meshes\\empty.nif]", mod.ZeroFiles)
	}
	if len(mod.Installers) != 0 || len(mod.UnknownFiles) != 0 || len(mod.RemainingArchives) != 0 {
		t.Errorf("mod = %+v, want only ZeroFiles populated", mod)
	}
}

// fakePatchInstaller is a minimal installer.Installer used to drive
// applyPatches directly, the same white-box pattern as
// pkg/installer/installer_test.go's own fakeInstaller but redefined
// here since that type is unexported in its own package.
type fakePatchInstaller struct {
	files map[string]retriever.FileInArchive
}

func (f *fakePatchInstaller) Name() string { return "fakepatch" }

func (f *fakePatchInstaller) AllDesiredFiles() []installer.DesiredFile {
	out := make([]installer.DesiredFile, 0, len(f.files))
	for path, fi := range f.files {
		out = append(out, installer.DesiredFile{Path: path, File: fi})
	}
	return out
}

func (f *fakePatchInstaller) InstallParams() any { return nil }

// TestScenario_S6_ModifiedSinceInstallJSONPatch covers a file whose
// archive-install recipe disagreed with its actual on-disk content
// (Skip), where the difference is a structural JSON edit: applyPatches
// should extract the archive's original bytes, diff them against the
// modified file and record a SORTEDJSON patch rather than leaving the
// file unexplained.
func TestScenario_S6_ModifiedSinceInstallJSONPatch(t *testing.T) {
	downloadsRoot := t.TempDir()
	original := []byte(`{"resolution":"1920x1080","quality":"high"}`)
	writeZipFile(t, filepath.Join(downloadsRoot, "ConfigMod.zip"), map[string][]byte{
		"config/settings.json": original,
	})

	modsRoot := t.TempDir()
	modified := []byte(`{"resolution":"1920x1080","quality":"ultra"}`)
	onDiskPath := filepath.Join(modsRoot, "ConfigMod", "config", "settings.json")
	mustWriteFile(t, onDiskPath, modified)

	pl := buildPipeline(t, downloadsRoot, modsRoot)

	files := pl.downloads.AllFiles()
	if len(files) != 1 {
		t.Fatalf("downloads.AllFiles() = %d, want 1", len(files))
	}
	archiveDigest := files[0].Digest

	inst := &fakePatchInstaller{files: map[string]retriever.FileInArchive{
		"config\\settings.json": {IntraPath: "config\\settings.json", Size: int64(len(original))},
	}}

	st := &modState{
		modWork: &modWork{
			name:    "ConfigMod",
			srcPath: map[string]string{"config\\settings.json": onDiskPath},
		},
		details: []installer.RecipeDetails{{
			Installer: inst,
			Skip:      map[string]struct{}{"config\\settings.json": {}},
		}},
		archiveOf: map[installer.Installer]retriever.Digest{inst: archiveDigest},
	}

	cfg := Config{
		ArchivePlugins: pl.plugins,
		Downloads:      pl.downloads,
		ScratchDir:     t.TempDir(),
	}

	patches, err := applyPatches(cfg, st)
	if err != nil {
		t.Fatalf("applyPatches: %v", err)
	}

	if len(patches) != 1 {
		t.Fatalf("patches = %d, want 1 (%+v)", len(patches), patches)
	}
	p := patches[0]
	if p.File != "config\\settings.json" {
		t.Errorf("File = %q, want config\\settings.json", p.File)
	}
	if p.Type != "SORTEDJSON" {
		t.Errorf("Type = %q, want SORTEDJSON", p.Type)
	}
	diff, ok := p.Param.(*patch.Patch)
	if !ok {
		t.Fatalf("Param = %T, want *patch.Patch", p.Param)
	}
	if len(diff.Ops) != 1 {
		t.Fatalf("Ops = %+v, want exactly one edit (the quality field)", diff.Ops)
	}
	op := diff.Ops[0]
	if len(op.Path) != 1 || op.Path[0] != "quality" || op.Value != "ultra" || op.Delete {
		t.Errorf("Ops[0] = %+v, want {Path:[quality] Value:ultra Delete:false}", op)
	}

	if len(st.details[0].Skip) != 0 {
		t.Errorf("Skip = %v, want empty once the file has been diffed", st.details[0].Skip)
	}
}
