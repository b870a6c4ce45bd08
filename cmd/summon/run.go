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

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/summonmm/summon/internal/config"
	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/internal/htmllog"
	"github.com/summonmm/summon/internal/ui"
	"github.com/summonmm/summon/pkg/archiveindex"
	"github.com/summonmm/summon/pkg/archiveplugin"
	"github.com/summonmm/summon/pkg/availablefiles"
	"github.com/summonmm/summon/pkg/foldercache"
	"github.com/summonmm/summon/pkg/guesspipeline"
	"github.com/summonmm/summon/pkg/installer"
	"github.com/summonmm/summon/pkg/installer/arinstaller"
	"github.com/summonmm/summon/pkg/installer/globaltool"
	"github.com/summonmm/summon/pkg/installer/modtool"
	"github.com/summonmm/summon/pkg/manifest"
	"github.com/summonmm/summon/pkg/modmanager"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

// run is the CLI's single entrypoint for one config file: load the
// project configuration, wire and execute the scan/hash/resolve pipeline
// once, then hand off to the interactive command loop (spec.md §6).
func run(configPath string, jsonErrors bool) {
	registry := modmanager.NewRegistry(modmanager.Mo2Plugin{})
	pc, err := config.LoadProjectConfig(configPath, registry)
	if err != nil {
		errors.FatalError(errors.NewConfigError("load project config", err.Error(), "fix the config file and re-run", err), jsonErrors)
		return
	}

	for _, dir := range []string{pc.CacheDir, pc.TmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errors.FatalError(errors.NewEnvironmentError("create working directory", err.Error(), "check permissions on "+dir, err), jsonErrors)
			return
		}
	}

	html, err := htmllog.Create(filepath.Join(pc.CacheDir, "run.html"))
	if err != nil {
		errors.FatalError(errors.NewIOError("open html trace log", err.Error(), "check permissions on "+pc.CacheDir, err), jsonErrors)
		return
	}
	defer html.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	app, err := wire(pc, logger, html)
	if err != nil {
		errors.FatalError(err, jsonErrors)
		return
	}

	ui.Header("summon")
	ui.Infof("modpack: %s (root: %s)", pc.ThisModpack, pc.RootModpack)

	if err := app.scan(context.Background()); err != nil {
		errors.FatalError(err, jsonErrors)
		return
	}
	if err := attributeDownloads(pc.RootModpackConfig(), app.downloads, app.archives); err != nil {
		errors.FatalError(err, jsonErrors)
		return
	}
	ui.Success("scan complete")

	repl(app, jsonErrors)
}

// app bundles every long-lived component a run needs, shared between the
// initial scan pass and whatever command-loop invocations of "guess"
// follow it.
type app struct {
	pc *config.ProjectConfig

	sched     *scheduler.Scheduler
	downloads *foldercache.Cache
	companion *foldercache.Cache
	source    *foldercache.Cache

	archivePlugins *archiveplugin.Registry
	archives       *archiveindex.Index
	available      *availablefiles.Resolver
	recipes        *installer.Registry
	modTools       *modtool.Registry
	globalTools    *globaltool.Registry

	sourceBarrier   string
	archivesBarrier string
}

// wire builds every component scan/guess needs against pc, without
// running anything yet (spec.md §2's "leaves first" component list,
// assembled bottom-up).
func wire(pc *config.ProjectConfig, logger *slog.Logger, html *htmllog.Writer) (*app, error) {
	sched, err := scheduler.New(scheduler.Options{
		WeightsPath: filepath.Join(pc.CacheDir, "weights.json"),
		Logger:      logger,
		HTML:        html,
	})
	if err != nil {
		return nil, err
	}

	archivePlugins := archiveplugin.NewRegistry()

	downloadRoots := make([]retriever.FolderToCache, 0, len(pc.DownloadDirs))
	for _, d := range pc.DownloadDirs {
		downloadRoots = append(downloadRoots, retriever.FolderToCache{Root: d})
	}
	downloads, err := foldercache.New(foldercache.Config{Name: "downloads", Roots: downloadRoots, CacheDir: pc.CacheDir})
	if err != nil {
		return nil, err
	}

	companionFolders, companionRoots := companionFolders(pc)
	companion, err := foldercache.New(foldercache.Config{Name: "companion", Roots: companionRoots, CacheDir: pc.CacheDir})
	if err != nil {
		return nil, err
	}

	source, err := foldercache.New(foldercache.Config{
		Name:     "source",
		Roots:    pc.ModManager.ActiveSourceVFSFolders(),
		CacheDir: pc.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	archives, err := archiveindex.New(archiveindex.Config{
		Name:        "archives",
		CacheDir:    pc.CacheDir,
		Registry:    archivePlugins,
		ScratchBase: pc.TmpDir,
	})
	if err != nil {
		return nil, err
	}

	available, err := availablefiles.New(availablefiles.Config{
		Downloads:  downloads,
		Companion:  companion,
		Index:      archives,
		Registry:   archivePlugins,
		Folders:    companionFolders,
		GithubRoot: pc.GithubRootDir,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}

	fomod := arinstaller.NewFomodPlugin(func(archive retriever.Archive, intraPath string) ([]byte, error) {
		return openArchiveFile(archivePlugins, downloads, pc.TmpDir, archive, intraPath)
	})
	recipes := installer.NewRegistry(
		fomod,
		arinstaller.BainPlugin{},
		arinstaller.Mo2DefaultPlugin{},
		arinstaller.SimpleUnpackPlugin{},
	)
	modTools := modtool.NewRegistry(modtool.OptionalPlugin{}, modtool.Script2SourcePlugin{})
	globalTools := globaltool.NewRegistry(globaltool.BodySlidePlugin{})

	return &app{
		pc:             pc,
		sched:          sched,
		downloads:      downloads,
		companion:      companion,
		source:         source,
		archivePlugins: archivePlugins,
		archives:       archives,
		available:      available,
		recipes:        recipes,
		modTools:       modTools,
		globalTools:    globalTools,
	}, nil
}

// companionFolders derives the availablefiles.CompanionFolder list and
// matching folder-cache roots from every modpack (root plus
// dependencies) pc's config resolution discovered, deduplicated by
// author/project (install_github.py's GithubFolder set).
func companionFolders(pc *config.ProjectConfig) ([]availablefiles.CompanionFolder, []retriever.FolderToCache) {
	seen := make(map[string]bool)
	var folders []availablefiles.CompanionFolder
	var roots []retriever.FolderToCache
	for ref := range pc.ModpackConfigs {
		gm, err := config.ParseGithubModpack(ref)
		if err != nil {
			continue
		}
		key := gm.Author + "/" + gm.Project
		if seen[key] {
			continue
		}
		seen[key] = true
		abs := gm.Folder(pc.GithubRootDir)
		folders = append(folders, availablefiles.CompanionFolder{Author: gm.Author, Project: gm.Project, AbsPath: abs})
		roots = append(roots, retriever.FolderToCache{Root: abs})
	}
	return folders, roots
}

// scan wires and runs the full scan/hash/resolve task graph once: folder
// caches for downloads, companion repos and the source VFS; the archive
// indexer; and the available-files resolver, whose readiness fires
// whatever further archive hashing it discovers along the way (spec.md
// §2's control flow: "strictly data-flow... driven by completion of
// named predecessors").
func (a *app) scan(ctx context.Context) error {
	downloadsBarrier, err := a.downloads.Start(a.sched)
	if err != nil {
		return err
	}
	companionBarrier, err := a.companion.Start(a.sched)
	if err != nil {
		return err
	}
	sourceBarrier, err := a.source.Start(a.sched)
	if err != nil {
		return err
	}
	indexLoaded, err := a.archives.Start(a.sched)
	if err != nil {
		return err
	}
	availReady, err := a.available.Start(a.sched, downloadsBarrier, companionBarrier, indexLoaded)
	if err != nil {
		return err
	}
	archivesReady, err := a.archives.Finalize(a.sched, []string{availReady})
	if err != nil {
		return err
	}
	a.sourceBarrier = sourceBarrier
	a.archivesBarrier = archivesReady

	if err := runWithProgress(ctx, a.sched, "scanning"); err != nil {
		return err
	}

	// Run drains the whole graph, so both barriers are necessarily Done
	// by now; this just names the two invariants a successful scan
	// promises (spec.md §2's testable property 1: no file is silently
	// lost because resolution never ran).
	if _, ok := a.sched.Result(a.sourceBarrier); !ok {
		return errors.NewLogicError("scan", "source VFS barrier did not complete", "this is a scheduler bug, please report it")
	}
	if _, ok := a.sched.Result(a.archivesBarrier); !ok {
		return errors.NewLogicError("scan", "archive index barrier did not complete", "this is a scheduler bug, please report it")
	}
	return nil
}

// guess runs the installer guesser over the already-scanned source VFS
// and writes the resulting manifest to <this modpack>/project.json
// (spec.md §6's "guess" REPL command).
func (a *app) guess() (string, error) {
	rootCfg := a.pc.RootModpackConfig()
	gameUniverse := ""
	if rootCfg != nil {
		gameUniverse = rootCfg.GameUniverse
	}

	cfg := guesspipeline.Config{
		ModManager:     a.pc.ModManager,
		Available:      a.available,
		Archives:       a.archives,
		ArchivePlugins: a.archivePlugins,
		Downloads:      a.downloads,
		Recipes:        a.recipes,
		ModTools:       a.modTools,
		GlobalTools:    a.globalTools,
		GameUniverse:   gameUniverse,
		RootModpack:    rootCfg,
		ScratchDir:     a.pc.TmpDir,
	}
	project, err := guesspipeline.Run(cfg, a.source.AllFiles())
	if err != nil {
		return "", err
	}

	modpackFolder, err := a.pc.ThisModpackFolder()
	if err != nil {
		return "", err
	}
	outPath := filepath.Join(modpackFolder, "project.json")
	if err := manifest.Write(outPath, project); err != nil {
		return "", err
	}
	return outPath, nil
}

func openArchiveFile(registry *archiveplugin.Registry, downloads *foldercache.Cache, tmpDir string, archive retriever.Archive, intraPath string) ([]byte, error) {
	hits := downloads.ByDigest(archive.Digest)
	if len(hits) == 0 {
		return nil, errors.NewIOError(
			"open archive file",
			fmt.Sprintf("archive %s is not a top-level download", archive.Digest),
			"only top-level downloaded archives can be re-opened to read a single file",
			nil,
		)
	}
	plugin, err := registry.For(hits[0].Path)
	if err != nil {
		return nil, err
	}
	scratch, err := os.MkdirTemp(tmpDir, "summon-open-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(scratch)

	if err := plugin.Extract(hits[0].Path, []string{intraPath}, scratch); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(scratch, filepath.FromSlash(intraPath)))
}
