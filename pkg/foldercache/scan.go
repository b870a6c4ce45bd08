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

package foldercache

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/internal/metrics"
	"github.com/summonmm/summon/pkg/hashutil"
	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

// planFragments splits the configured roots into work units sized to the
// prior run's per-directory file counts, targeting filesPerFragment files
// per fragment. A root with no recorded stats (first run, or a brand new
// root) is scanned as a single unsplit fragment.
func (c *Cache) planFragments() []retriever.FolderToCache {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []retriever.FolderToCache
	for _, root := range c.cfg.Roots {
		counts, ok := c.stats[root.Root]
		if !ok || len(counts) == 0 {
			out = append(out, root)
			continue
		}

		var group []string
		groupSize := 0
		flush := func() {
			if len(group) == 0 {
				return
			}
			for _, dir := range group {
				out = append(out, retriever.FolderToCache{Root: dir, Excludes: root.Excludes})
			}
			group = nil
			groupSize = 0
		}
		for dir, n := range counts {
			if excludedUnder(dir, root.Excludes) {
				continue
			}
			if groupSize+n > filesPerFragment && groupSize > 0 {
				flush()
			}
			group = append(group, dir)
			groupSize += n
		}
		flush()
	}
	return out
}

func excludedUnder(path string, excludes []string) bool {
	for _, ex := range excludes {
		if retriever.IsUnderDir(path, ex) {
			return true
		}
	}
	return false
}

// scanFragment walks one fragment's directory tree breadth-first. Regular
// files are compared against the loaded record by mtime and size; a
// mismatch (or no prior record) enqueues a hashing sub-task rather than
// hashing inline, so a batch of freshly-modified files in one fragment
// doesn't serialize behind a single worker slot. If the walk has been
// running longer than yieldAfter and directories remain queued, the
// remainder is handed off as a new scan task (spec.md §4.2 "adaptive
// split") and this call returns without visiting them.
func (c *Cache) scanFragment(ctx context.Context, sched *scheduler.Scheduler, frag retriever.FolderToCache) error {
	start := time.Now()
	queue := []string{frag.Root}
	var observedDirs []string

	for len(queue) > 0 {
		if time.Since(start) > yieldAfter && len(queue) > 0 {
			for _, dir := range queue {
				dir := dir
				name := c.nextTaskName("scan")
				if err := sched.AddTask(scheduler.TaskSpec{
					Name: name,
					Kind: scheduler.KindWorker,
					Worker: func(ctx context.Context, _ scheduler.Results) (any, error) {
						return nil, c.scanFragment(ctx, sched, retriever.FolderToCache{Root: dir, Excludes: frag.Excludes})
					},
				}); err != nil {
					return err
				}
			}
			break
		}

		dir := queue[0]
		queue = queue[1:]
		if excludedUnder(dir, frag.Excludes) {
			continue
		}

		entries, err := os.ReadDir(dir)
		if err != nil {
			return errors.NewIOError(
				fmt.Sprintf("scan directory %s", dir),
				err.Error(),
				"check the directory still exists and is readable",
				err,
			)
		}

		fileCount := 0
		for _, entry := range entries {
			full := filepath.Join(dir, entry.Name())

			if entry.Type()&fs.ModeSymlink != 0 {
				continue
			}
			if entry.IsDir() {
				if !excludedUnder(full, frag.Excludes) {
					queue = append(queue, full)
				}
				continue
			}
			if !entry.Type().IsRegular() {
				continue
			}

			info, err := entry.Info()
			if err != nil {
				continue
			}
			fileCount++
			c.considerFile(sched, full, info)
		}
		observedDirs = append(observedDirs, dir)
		c.recordDirCount(dir, fileCount)
	}

	metrics.ObserveScanDuration(time.Since(start).Seconds())
	return nil
}

// considerFile compares one observed file against the loaded record and
// either marks it unchanged or enqueues a hash sub-task. A file whose size
// matches the prior record but whose mtime moved (common when a mod manager
// or archive extractor re-touches files it didn't actually rewrite) gets one
// extra cheap check first: a bare xxhash pass (no SHA-256) compared against
// the prior QuickCheck. A match means the content is genuinely unchanged, so
// the record is kept with just its mtime refreshed, skipping a full rehash.
func (c *Cache) considerFile(sched *scheduler.Scheduler, path string, info fs.FileInfo) {
	canon := canonicalPath(path)
	mtime := info.ModTime().UnixNano()
	size := info.Size()

	c.mu.Lock()
	prior, existed := c.files[canon]
	unchanged := existed && prior.ModTime == mtime && prior.Size == size
	touchedOnly := existed && !unchanged && prior.ModTime != mtime && prior.Size == size
	c.mu.Unlock()

	c.markObserved(canon)

	if unchanged {
		metrics.RecordCacheHit()
		return
	}

	if touchedOnly {
		if qc, err := hashutil.QuickDigestFile(path); err == nil && qc == prior.QuickCheck {
			prior.ModTime = mtime
			c.mu.Lock()
			c.files[canon] = prior
			c.mu.Unlock()
			metrics.RecordCacheHit()
			return
		}
	}
	metrics.RecordCacheMiss()

	name := c.nextTaskName("hash")
	_ = sched.AddTask(scheduler.TaskSpec{
		Name: name,
		Kind: scheduler.KindWorker,
		Worker: func(ctx context.Context, _ scheduler.Results) (any, error) {
			return nil, c.hashFile(path, canon, mtime, size, existed)
		},
	})
}

func (c *Cache) hashFile(path, canon string, mtime, size int64, wasTracked bool) error {
	start := time.Now()
	result, err := c.hasher.HashFile(path)
	if err != nil {
		return errors.NewIOError(
			fmt.Sprintf("hash file %s", path),
			err.Error(),
			"check the file wasn't deleted or locked mid-scan",
			err,
		)
	}
	metrics.ObserveHashDuration(time.Since(start).Seconds())

	rec := retriever.FileOnDisk{
		Path:       canon,
		Digest:     result.Primary,
		AuxDigests: result.Aux,
		Size:       size,
		ModTime:    mtime,
		QuickCheck: result.QuickCheck,
	}

	c.mu.Lock()
	c.files[canon] = rec
	c.mu.Unlock()

	if wasTracked {
		metrics.RecordFileModified()
	} else {
		metrics.RecordFileAdded()
	}
	return nil
}

func (c *Cache) markObserved(canon string) {
	c.mu.Lock()
	c.observed[canon] = struct{}{}
	c.mu.Unlock()
}

func (c *Cache) recordDirCount(dir string, count int) {
	c.mu.Lock()
	c.counted[dir] = count
	c.mu.Unlock()
}

// reconcile removes any previously-known path that was not observed this
// run, and replaces the persisted per-directory stats with the counts
// gathered during this run's walk (spec.md §4.2 "Reconciliation").
func (c *Cache) reconcile() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for path := range c.files {
		if _, ok := c.observed[path]; !ok {
			delete(c.files, path)
			metrics.RecordFileDeleted()
		}
	}

	next := make(dirStats, len(c.cfg.Roots))
	for _, root := range c.cfg.Roots {
		counts := make(map[string]int)
		for dir, n := range c.counted {
			if retriever.IsUnderDir(dir, root.Root) {
				counts[dir] = n
			}
		}
		next[root.Root] = counts
	}
	c.stats = next
	c.observed = make(map[string]struct{})
	c.counted = make(map[string]int)
}
