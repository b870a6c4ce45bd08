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

// Package availablefiles joins the downloads folder cache, the archive
// index and the companion-repo folder cache to answer, for any known file
// digest, "how can this file be produced?" (spec.md §4.4). It also fires
// the archive-indexing tasks that the archive index itself cannot
// self-discover: walking the downloads cache for extensions the plugin
// registry claims, grounded on
// summonmm/cache/available_files.py's `_start_hashing_own_task_func`.
package availablefiles

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/archiveindex"
	"github.com/summonmm/summon/pkg/archiveplugin"
	"github.com/summonmm/summon/pkg/foldercache"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

// logger is satisfied by *slog.Logger, mirroring pkg/scheduler's own
// narrow logging interface so this package doesn't need to import
// log/slog just to accept one.
type logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// CompanionFolder names one cloned companion repository rooted under the
// modpack's github root: Author/Project[/Sub], mirroring
// install_github.py's GithubFolder.
type CompanionFolder struct {
	Author  string
	Project string
	Sub     string
	// AbsPath is the folder's absolute path on disk (GithubRoot joined
	// with Author/Project/Sub).
	AbsPath string
}

// Config wires a Resolver to its backing caches and plugin registry.
type Config struct {
	Downloads  *foldercache.Cache
	Companion  *foldercache.Cache
	Index      *archiveindex.Index
	Registry   *archiveplugin.Registry
	Folders    []CompanionFolder
	GithubRoot string
	// Logger receives the "unknown extension, skipped" diagnostic
	// (spec.md §4.4). Nil is treated as a no-op logger.
	Logger logger
}

// Resolver answers "how can this digest be produced" queries once its
// readiness barrier task has completed.
type Resolver struct {
	cfg Config

	mu            sync.Mutex
	companionByH  map[retriever.Digest][]companionHit
	ready         bool
	tentative     *retriever.TentativeNames
	unknownLogged map[string]struct{}
}

type companionHit struct {
	file    retriever.FileOnDisk
	author  string
	project string
	intra   string
}

// New returns a Resolver over the given caches and archive index. All
// three must already be configured (not yet started).
func New(cfg Config) (*Resolver, error) {
	if cfg.Downloads == nil || cfg.Companion == nil || cfg.Index == nil || cfg.Registry == nil {
		return nil, errors.NewConfigError(
			"create available-files resolver",
			"downloads cache, companion cache, archive index and plugin registry are all required",
			"pass every field of availablefiles.Config",
			nil,
		)
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Resolver{
		cfg:           cfg,
		companionByH:  make(map[retriever.Digest][]companionHit),
		tentative:     retriever.NewTentativeNames(),
		unknownLogged: make(map[string]struct{}),
	}, nil
}

// Start wires the resolver's own tasks: a download-scan task (fires
// archive-hash requests and records tentative names), and the readiness
// barrier that depends on the downloads/companion caches plus every hash
// task requested along the way. Returns the barrier's task name.
func (r *Resolver) Start(s *scheduler.Scheduler, downloadsBarrier, companionBarrier, indexLoaded string) (string, error) {
	scanName := "available.scan"
	if err := s.AddTask(scheduler.TaskSpec{
		Name: scanName,
		Kind: scheduler.KindOwner,
		Deps: []string{downloadsBarrier, indexLoaded},
		Owner: func(ctx context.Context, sched *scheduler.Scheduler, _ scheduler.Results) (any, error) {
			return nil, r.startHashing(sched)
		},
	}); err != nil {
		return "", err
	}

	readyName := "available.ready"
	if err := s.AddTask(scheduler.TaskSpec{
		Name: readyName,
		Kind: scheduler.KindOwner,
		Deps: []string{scanName, companionBarrier, "available.hash:*"},
		Tags: scheduler.Tags{Provided: []string{"available.ready"}},
		Owner: func(ctx context.Context, _ *scheduler.Scheduler, _ scheduler.Results) (any, error) {
			r.indexCompanion()
			return nil, nil
		},
	}); err != nil {
		return "", err
	}
	return readyName, nil
}

// startHashing walks the downloads cache and requests an archive-index
// hash for every file not already indexed whose extension the registry
// claims. Files with unknown extensions are logged and skipped (spec.md
// §4.4).
func (r *Resolver) startHashing(s *scheduler.Scheduler) error {
	for _, f := range r.cfg.Downloads.AllFiles() {
		if strings.EqualFold(filepath.Ext(f.Path), ".meta") {
			continue
		}
		if _, ok := r.cfg.Index.ByDigest(f.Digest); ok {
			continue
		}
		if !r.cfg.Registry.IsArchiveExtension(f.Path) {
			r.logUnknownExtension(f.Path)
			continue
		}
		taskName := "available.hash:" + f.Digest.String()
		if err := s.AddTask(scheduler.TaskSpec{
			Name: taskName,
			Kind: scheduler.KindWorker,
			Deps: []string{r.cfg.Index.LoadedTaskName()},
			Worker: func(ctx context.Context, _ scheduler.Results) (any, error) {
				return nil, r.cfg.Index.RequestHash(s, f.Path, f.Digest, f.Size)
			},
		}); err != nil {
			return err
		}
		r.tentative.Add(f.Digest, filepath.Base(f.Path))
	}
	return nil
}

func (r *Resolver) logUnknownExtension(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.unknownLogged[path]; ok {
		return
	}
	r.unknownLogged[path] = struct{}{}
	r.cfg.Logger.Warn("available-files: file has no known archive extension, skipped", "path", path)
}

// indexCompanion builds the digest -> companion-hit index once, lazily,
// at the readiness barrier (spec.md §4.4, "pre-indexes... lazily, at its
// readiness barrier").
func (r *Resolver) indexCompanion() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return
	}
	for _, f := range r.cfg.Companion.AllFiles() {
		author, project, intra, ok := r.matchCompanionFolder(f.Path)
		if !ok {
			continue
		}
		r.companionByH[f.Digest] = append(r.companionByH[f.Digest], companionHit{
			file: f, author: author, project: project, intra: intra,
		})
	}
	r.ready = true
}

func (r *Resolver) matchCompanionFolder(path string) (author, project, intra string, ok bool) {
	for _, cf := range r.cfg.Folders {
		if retriever.IsUnderDir(path, cf.AbsPath) {
			rel := strings.TrimPrefix(path, cf.AbsPath)
			rel = strings.TrimPrefix(rel, string(filepath.Separator))
			return cf.Author, cf.Project, rel, true
		}
	}
	return "", "", "", false
}

// RetrieversByDigest returns every way known to produce a file of digest
// h, in the precedence order spec.md §4.4 describes: zero, then
// companion-repo, then archive retrievers.
func (r *Resolver) RetrieversByDigest(h retriever.Digest) []retriever.Retriever {
	if h == retriever.ZeroDigest {
		return []retriever.Retriever{retriever.TheZeroRetriever}
	}
	if gh := r.companionRetrievers(h); len(gh) > 0 {
		out := make([]retriever.Retriever, len(gh))
		for i, g := range gh {
			out[i] = g
		}
		return out
	}
	arch := r.archiveRetrievers(h)
	out := make([]retriever.Retriever, len(arch))
	for i, a := range arch {
		out[i] = a
	}
	return out
}

func (r *Resolver) companionRetrievers(h retriever.Digest) []retriever.GithubRetriever {
	r.mu.Lock()
	hits := r.companionByH[h]
	r.mu.Unlock()
	out := make([]retriever.GithubRetriever, 0, len(hits))
	for _, hit := range hits {
		out = append(out, retriever.GithubRetriever{
			Digest:    h,
			Size:      hit.file.Size,
			Author:    hit.author,
			Project:   hit.project,
			IntraPath: hit.intra,
		})
	}
	return out
}

// archiveRetrievers recursively enumerates archive retrievers for h:
// direct archive membership, then for each hit, retrievers for the
// containing archive's own digest, prepended (spec.md §4.4 step 3).
func (r *Resolver) archiveRetrievers(h retriever.Digest) []retriever.ArchiveRetriever {
	singles := r.singleArchiveLinks(h)
	if len(singles) == 0 {
		return nil
	}
	var out []retriever.ArchiveRetriever
	for _, link := range singles {
		out = append(out, retriever.ArchiveRetriever{Chain: []retriever.ArchiveLink{link}})
		for _, outer := range r.archiveRetrievers(link.ArchiveDigest) {
			out = append(out, outer.Prepend(link))
		}
	}
	return out
}

// singleArchiveLinks returns one ArchiveLink per archive that directly
// contains a file whose (truncated) digest could plausibly be h — since
// the index only stores truncated digests, every archive is scanned for
// entries matching h's truncation; the archive indexer always hashes the
// full file too (it is the one that computed h in the first place), so
// in practice this is an exact match in the overwhelming majority of
// cases and a documented acceptable false-positive surface otherwise
// (spec.md data model: "truncated digest (9 bytes)").
func (r *Resolver) singleArchiveLinks(h retriever.Digest) []retriever.ArchiveLink {
	trunc := truncate(h)
	var out []retriever.ArchiveLink
	for _, ar := range r.cfg.Index.Archives() {
		for _, fi := range ar.Files {
			if fi.Digest == trunc {
				out = append(out, retriever.ArchiveLink{
					ArchiveDigest: ar.Digest,
					File:          fi,
					FileDigest:    h,
				})
			}
		}
	}
	return out
}

func truncate(h retriever.Digest) retriever.TruncatedDigest {
	var t retriever.TruncatedDigest
	copy(t[:], h[:len(t)])
	return t
}

// TentativeNames returns the tentative filename set accumulated while
// scanning the downloads folder.
func (r *Resolver) TentativeNames() *retriever.TentativeNames {
	return r.tentative
}
