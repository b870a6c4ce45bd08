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

// Package archiveindex recursively hashes downloaded archives and
// persists the result as the canonical "root git data": for every
// archive digest, the list of intra-archive files and their truncated
// digests, with nested archives indexed as further top-level entries of
// the same flat map (spec.md §4.3).
//
// Hashing one archive is a worker task; a sentinel owner task fans the
// results in and persists if the index changed. Two named barrier points
// are exposed: the load barrier ("ready to start hashing") and the final
// barrier ("archives ready", once every hash task — including ones added
// after Start returns — has completed). The retroactive prefix-dependency
// wiring that makes this possible is pkg/scheduler's; the two-phase
// load/split/barrier shape is the same one pkg/foldercache uses, adapted
// here because hash tasks are requested by an external caller
// (pkg/availablefiles) rather than self-discovered.
package archiveindex

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/archiveplugin"
	"github.com/summonmm/summon/pkg/hashutil"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

// ExtraDataFactory is an installer plugin's hook to compute and memoise
// its own per-archive extra data during indexing (spec.md §4.3 step 4).
type ExtraDataFactory interface {
	Name() string
	Compute(archivePath string) ([]byte, error)
}

// Config describes one named archive index.
type Config struct {
	Name string
	// CacheDir is the directory the persisted index file lives in.
	CacheDir string
	// Registry selects an extraction plugin by file extension.
	Registry *archiveplugin.Registry
	// Hasher computes the primary digest (and any configured auxiliary
	// digests) of each intra-archive file in one pass.
	Hasher *hashutil.Hasher
	// ScratchBase is the directory extraction scratch trees are created
	// under (spec.md §4.3 step 2, §13 tmp_path scheme).
	ScratchBase string
	// ExtraData is the ordered set of installer-plugin extra-data hooks
	// run against every freshly-hashed archive.
	ExtraData []ExtraDataFactory
}

// Index is one named, incrementally-hashed archive set.
type Index struct {
	cfg    Config
	path   string
	hasher *hashutil.Hasher

	mu       sync.Mutex
	archives map[retriever.Digest]retriever.Archive
	dirty    bool

	scratchSeq atomic.Int64

	loadedName string
}

// New validates cfg and returns an empty, unpopulated Index. Call Start
// to wire the load task against a scheduler.
func New(cfg Config) (*Index, error) {
	if cfg.Name == "" {
		return nil, errors.NewConfigError("create archive index", "empty index name", "give every archive index a unique name", nil)
	}
	if cfg.Registry == nil {
		return nil, errors.NewConfigError("create archive index", "no plugin registry configured", "pass an archiveplugin.Registry", nil)
	}
	hasher := cfg.Hasher
	if hasher == nil {
		hasher = hashutil.New()
	}
	return &Index{
		cfg:      cfg,
		path:     filepath.Join(cfg.CacheDir, cfg.Name+".archives.json"),
		hasher:   hasher,
		archives: make(map[retriever.Digest]retriever.Archive),
	}, nil
}

// Archives returns every indexed archive. Valid only after the final
// barrier task has completed.
func (ix *Index) Archives() []retriever.Archive {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	out := make([]retriever.Archive, 0, len(ix.archives))
	for _, a := range ix.archives {
		out = append(out, a)
	}
	return out
}

// ByDigest returns the indexed record for an archive's own digest, if any.
func (ix *Index) ByDigest(d retriever.Digest) (retriever.Archive, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	a, ok := ix.archives[d]
	return a, ok
}

func (ix *Index) hashTaskName(d retriever.Digest) string {
	return fmt.Sprintf("%s:hash:%s", ix.cfg.Name, d.String())
}

// LoadedTaskName returns the "ready-to-start-hashing" barrier name. Valid
// only after Start has been called.
func (ix *Index) LoadedTaskName() string {
	return ix.loadedName
}

// Start wires the load task and returns its name, the "ready-to-start-
// hashing" barrier (spec.md §4.3) that RequestHash's hash tasks, and the
// eventual Finalize barrier, depend on.
func (ix *Index) Start(s *scheduler.Scheduler) (loadedName string, err error) {
	ix.loadedName = ix.cfg.Name + ":load"
	if err := s.AddTask(scheduler.TaskSpec{
		Name: ix.loadedName,
		Kind: scheduler.KindOwner,
		Tags: scheduler.Tags{Provided: []string{ix.cfg.Name + ":loaded"}},
		Owner: func(ctx context.Context, _ *scheduler.Scheduler, _ scheduler.Results) (any, error) {
			return nil, ix.load()
		},
	}); err != nil {
		return "", err
	}
	return ix.loadedName, nil
}

// RequestHash enqueues a hash task for archivePath/digest unless digest is
// already indexed. Safe to call from any goroutine (owner or worker) any
// time after Start, including from inside another hash task's own worker
// body for recursive nested-archive discovery — the scheduler's AddTask
// is mutex-protected for exactly this pattern (see pkg/foldercache).
func (ix *Index) RequestHash(s *scheduler.Scheduler, archivePath string, digest retriever.Digest, size int64) error {
	if _, ok := ix.ByDigest(digest); ok {
		return nil
	}
	name := ix.hashTaskName(digest)
	return s.AddTask(scheduler.TaskSpec{
		Name: name,
		Kind: scheduler.KindWorker,
		Deps: []string{ix.loadedName},
		Worker: func(ctx context.Context, _ scheduler.Results) (any, error) {
			return hashArchive(ctx, ix, archivePath, digest, size)
		},
	})
}

// Finalize wires the "archives ready" sentinel owner task. after must
// name every concrete task guaranteed to have issued all of its
// RequestHash calls before completing (e.g. the available-files
// resolver's download-scan task) — exactly the role pkg/foldercache's
// split task plays for its own scan/hash fan-out, generalised here since
// the requester is an external package rather than the index itself.
func (ix *Index) Finalize(s *scheduler.Scheduler, after []string) (readyName string, err error) {
	readyName = ix.cfg.Name + ":ready"
	deps := make([]string, 0, len(after)+1)
	deps = append(deps, after...)
	deps = append(deps, ix.cfg.Name+":hash:*")

	err = s.AddTask(scheduler.TaskSpec{
		Name: readyName,
		Kind: scheduler.KindOwner,
		Deps: deps,
		Tags: scheduler.Tags{Provided: []string{ix.cfg.Name + ":archives-ready"}},
		Owner: func(ctx context.Context, _ *scheduler.Scheduler, results scheduler.Results) (any, error) {
			for _, res := range results {
				if archives, ok := res.([]retriever.Archive); ok {
					ix.merge(archives)
				}
			}
			return nil, ix.save()
		},
	})
	if err != nil {
		return "", err
	}
	return readyName, nil
}

// SetAttribution records a human-readable hosting-site attribution
// string for an already-indexed archive digest, persisting immediately
// if it changed anything. A no-op if digest has not been indexed yet
// (fileorigin attribution always runs after the scan/hash pass
// completes).
func (ix *Index) SetAttribution(d retriever.Digest, text string) error {
	ix.mu.Lock()
	a, ok := ix.archives[d]
	if !ok || a.Attribution == text {
		ix.mu.Unlock()
		return nil
	}
	a.Attribution = text
	ix.archives[d] = a
	ix.dirty = true
	ix.mu.Unlock()
	return ix.save()
}

func (ix *Index) merge(archives []retriever.Archive) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, a := range archives {
		ix.archives[a.Digest] = a
		ix.dirty = true
	}
}
