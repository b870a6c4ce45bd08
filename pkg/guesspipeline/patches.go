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
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/installer/patch"
	"github.com/summonmm/summon/pkg/manifest"
)

// maxScratchRemoveRetries mirrors pkg/archiveindex's own scratch
// cleanup: removal can transiently fail while an indexing service
// still holds a handle into the just-extracted tree.
const maxScratchRemoveRetries = 3

var patchScratchSeq atomic.Int64

// applyPatches implements stage 7: for every file a recipe would have
// installed but didn't match (Skip) whose extension has a registered
// patch plugin, extract the archive's version into scratch and diff it
// against what's actually on disk; a non-empty diff is recorded as a
// patch, an empty one means the recipe's output was already equivalent.
// Either way the file leaves Skip once diffed.
func applyPatches(cfg Config, st *modState) ([]manifest.ModPatch, error) {
	var patches []manifest.ModPatch

	for ri := range st.details {
		rd := &st.details[ri]
		if len(rd.Skip) == 0 {
			continue
		}
		archiveDigest, ok := st.archiveOf[rd.Installer]
		if !ok {
			continue
		}
		archivePath := primaryArchivePath(cfg, archiveDigest)
		if archivePath == "" {
			continue
		}

		intraByDest := make(map[string]string, len(rd.Skip))
		for _, df := range rd.Installer.AllDesiredFiles() {
			if _, ok := rd.Skip[df.Path]; ok {
				intraByDest[df.Path] = df.File.IntraPath
			}
		}

		dests := make([]string, 0, len(intraByDest))
		for d := range intraByDest {
			dests = append(dests, d)
		}
		sort.Strings(dests)

		for _, dest := range dests {
			differ := patch.ForExtension(filepath.Ext(dest))
			if differ == nil {
				continue
			}
			srcOnDisk, ok := st.srcPath[dest]
			if !ok {
				continue
			}
			dstRaw, err := os.ReadFile(srcOnDisk)
			if err != nil {
				return nil, errors.NewIOError(fmt.Sprintf("read mod file %s", srcOnDisk), err.Error(), "", err)
			}
			archiveRaw, err := extractOne(cfg, archivePath, intraByDest[dest])
			if err != nil {
				return nil, err
			}
			p, err := differ.Diff(archiveRaw, dstRaw)
			if err != nil {
				return nil, fmt.Errorf("diff %s against %s: %w", dest, archivePath, err)
			}

			delete(rd.Skip, dest)
			if !p.Empty() {
				patches = append(patches, manifest.ModPatch{File: dest, Type: differ.Name, Param: p})
			}
		}
	}

	sort.Slice(patches, func(i, j int) bool { return patches[i].File < patches[j].File })
	return patches, nil
}

// extractOne pulls a single intra-archive entry into a fresh scratch
// directory and reads it back. The archive plugins write extracted
// entries under the archive's own entry name, not the normalised
// intraPath form FileInArchive carries, so the result is recovered by
// walking the (single-purpose, freshly created) scratch tree rather
// than by reconstructing an exact expected path.
func extractOne(cfg Config, archivePath, intraPath string) ([]byte, error) {
	plugin, err := cfg.ArchivePlugins.For(archivePath)
	if err != nil {
		return nil, err
	}

	scratch, err := newPatchScratchDir(cfg.ScratchDir, archivePath)
	if err != nil {
		return nil, err
	}
	defer removePatchScratchTree(scratch)

	if err := plugin.Extract(archivePath, []string{intraPath}, scratch); err != nil {
		return nil, err
	}

	var data []byte
	found := false
	walkErr := filepath.WalkDir(scratch, func(path string, d fs.DirEntry, err error) error {
		if err != nil || found || d.IsDir() {
			return err
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if walkErr != nil {
		return nil, errors.NewIOError(
			fmt.Sprintf("read extracted entry %s from %s", intraPath, archivePath),
			walkErr.Error(), "", walkErr,
		)
	}
	if !found {
		return nil, errors.NewDataIntegrityError(
			fmt.Sprintf("extract %s from %s", intraPath, archivePath),
			"the archive plugin reported success but produced no file",
			"confirm the archive actually contains this entry",
			nil,
		)
	}
	return data, nil
}

// newPatchScratchDir names a scratch tree the same "hard to collide"
// way pkg/archiveindex's own newScratchDir does: a random hex token
// plus the process id and a monotonic counter.
func newPatchScratchDir(base, archivePath string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	var tok [8]byte
	if _, err := rand.Read(tok[:]); err != nil {
		return "", errors.NewIOError("generate patch scratch token", err.Error(), "", err)
	}
	n := patchScratchSeq.Add(1)
	dir := filepath.Join(base, fmt.Sprintf("summon-patch-%s-%d-%d", hex.EncodeToString(tok[:]), os.Getpid(), n))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIOError(fmt.Sprintf("create scratch directory for %s", archivePath), err.Error(), "", err)
	}
	return dir, nil
}

func removePatchScratchTree(dir string) {
	for attempt := 0; attempt < maxScratchRemoveRetries; attempt++ {
		if err := os.RemoveAll(dir); err == nil {
			return
		}
		time.Sleep(time.Second)
	}
}
