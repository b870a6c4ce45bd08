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

// Package foldercache maintains an incremental, persistent index of a
// named set of root directories: path -> (digest, mtime, size). Scans are
// reconciled against the live tree by stat-based change detection, and
// only modified files are re-hashed (spec.md §4.2).
//
// The scan pipeline is itself a handful of scheduler tasks — load, split,
// per-fragment scan, per-file hash, reconcile, save — grounded on
// pkg/ingestion/repo_loader.go's walkRepository (directory recursion,
// exclusion pruning) and pkg/ingestion/checkpoint.go's atomic
// temp-file-then-rename persistence, adapted here from a JSON progress
// record to a gob-encoded path map.
package foldercache

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/hashutil"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

// filesPerFragment is the target sub-task size named in spec.md §4.2
// ("target ≤ ~6k files per sub-task").
const filesPerFragment = 6000

// yieldAfter is the adaptive split threshold: a scan fragment that has
// been walking for longer than this hands its remaining queue off as a
// new scan task rather than continuing inline.
const yieldAfter = 500 * time.Millisecond

// Config describes one named folder cache.
type Config struct {
	Name string
	// Roots is the set of directories to scan. Overlapping roots (one
	// contained in another without a covering exclusion) are rejected.
	Roots []retriever.FolderToCache
	// Aux is the ordered list of auxiliary digest factories requested by
	// file-origin plugins; all are computed in the same hashing pass as
	// the primary digest.
	Aux []hashutil.AuxFactory
	// CacheDir is the directory the two persistence files live in.
	CacheDir string
}

// Cache is one named, incrementally-scanned folder set.
type Cache struct {
	cfg    Config
	hasher *hashutil.Hasher

	filesPath string
	statsPath string

	mu       sync.Mutex
	files    map[string]retriever.FileOnDisk
	stats    dirStats
	observed map[string]struct{}
	counted  map[string]int // absolute dir -> files observed in it this run

	taskSeq atomic.Int64
}

// dirStats is the persisted per-root, per-directory file count used to
// plan the next run's work split.
type dirStats map[string]map[string]int

// New validates cfg and returns an empty, unpopulated Cache. Call Start to
// enqueue the scan pipeline against a scheduler.
func New(cfg Config) (*Cache, error) {
	if cfg.Name == "" {
		return nil, errors.NewConfigError("create folder cache", "empty cache name", "give every folder cache a unique name", nil)
	}
	for i := range cfg.Roots {
		for j := i + 1; j < len(cfg.Roots); j++ {
			if cfg.Roots[i].Overlaps(cfg.Roots[j]) {
				return nil, errors.NewConfigError(
					fmt.Sprintf("create folder cache %q", cfg.Name),
					fmt.Sprintf("root %q and root %q overlap without a covering exclusion", cfg.Roots[i].Root, cfg.Roots[j].Root),
					"add an exclusion for the nested root, or remove one of the two roots",
					nil,
				)
			}
		}
	}
	return &Cache{
		cfg:       cfg,
		hasher:    hashutil.New(cfg.Aux...),
		filesPath: filepath.Join(cfg.CacheDir, cfg.Name+".files.gob"),
		statsPath: filepath.Join(cfg.CacheDir, cfg.Name+".stats.gob"),
		files:     make(map[string]retriever.FileOnDisk),
		stats:     make(dirStats),
		observed:  make(map[string]struct{}),
		counted:   make(map[string]int),
	}, nil
}

// AllFiles returns every file currently indexed. Valid only after the
// cache's readiness barrier task has completed.
func (c *Cache) AllFiles() []retriever.FileOnDisk {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]retriever.FileOnDisk, 0, len(c.files))
	for _, f := range c.files {
		out = append(out, f)
	}
	return out
}

// ByPath returns the indexed record for path, if any.
func (c *Cache) ByPath(path string) (retriever.FileOnDisk, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.files[canonicalPath(path)]
	return f, ok
}

// ByDigest returns every indexed file whose primary digest equals digest.
func (c *Cache) ByDigest(digest retriever.Digest) []retriever.FileOnDisk {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []retriever.FileOnDisk
	for _, f := range c.files {
		if f.Digest == digest {
			out = append(out, f)
		}
	}
	return out
}

func canonicalPath(p string) string {
	return filepath.Clean(p)
}

func (c *Cache) nextTaskName(kind string) string {
	n := c.taskSeq.Add(1)
	return fmt.Sprintf("%s:%s:%d", c.cfg.Name, kind, n)
}

// Start enqueues the full scan pipeline and returns the name of the
// readiness barrier task: a named task that depends on every scan and
// hash sub-task, no matter how many more get added by adaptive
// resplitting after Start returns (spec.md §4.2's "never observed
// mid-reconciliation" invariant).
func (c *Cache) Start(s *scheduler.Scheduler) (barrier string, err error) {
	prefix := c.cfg.Name
	loadName := prefix + ":load"
	splitName := prefix + ":split"
	barrier = prefix + ":ready"

	if err := s.AddTask(scheduler.TaskSpec{
		Name: loadName,
		Kind: scheduler.KindOwner,
		Tags: scheduler.Tags{Provided: []string{prefix + ":loaded"}},
		Owner: func(ctx context.Context, _ *scheduler.Scheduler, _ scheduler.Results) (any, error) {
			if err := c.load(); err != nil {
				return nil, err
			}
			return nil, nil
		},
	}); err != nil {
		return "", err
	}

	if err := s.AddTask(scheduler.TaskSpec{
		Name: splitName,
		Kind: scheduler.KindOwner,
		Deps: []string{loadName},
		Owner: func(ctx context.Context, sched *scheduler.Scheduler, _ scheduler.Results) (any, error) {
			fragments := c.planFragments()
			for _, frag := range fragments {
				frag := frag
				taskName := c.nextTaskName("scan")
				if err := sched.AddTask(scheduler.TaskSpec{
					Name: taskName,
					Kind: scheduler.KindWorker,
					Worker: func(ctx context.Context, _ scheduler.Results) (any, error) {
						return nil, c.scanFragment(ctx, sched, frag)
					},
				}); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
	}); err != nil {
		return "", err
	}

	if err := s.AddTask(scheduler.TaskSpec{
		Name: barrier,
		Kind: scheduler.KindOwner,
		Deps: []string{splitName, prefix + ":scan:*", prefix + ":hash:*"},
		Tags: scheduler.Tags{Provided: []string{prefix + ":ready"}},
		Owner: func(ctx context.Context, sched *scheduler.Scheduler, _ scheduler.Results) (any, error) {
			c.reconcile()
			saveName := c.nextTaskName("save")
			// The save task is detached from the barrier's own
			// dependents: it is enqueued here but nothing downstream
			// waits on it, so it is free to outlive the barrier
			// (spec.md §4.2, "a save task ... is allowed to outlive the
			// reconciliation barrier").
			return nil, sched.AddTask(scheduler.TaskSpec{
				Name: saveName,
				Kind: scheduler.KindWorker,
				Worker: func(ctx context.Context, _ scheduler.Results) (any, error) {
					return nil, c.persist()
				},
			})
		},
	}); err != nil {
		return "", err
	}

	return barrier, nil
}
