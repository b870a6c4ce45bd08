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

package archiveindex

import (
	"context"
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
	"github.com/summonmm/summon/pkg/retriever"
)

// maxRmtreeRetries mirrors the original implementation's tmp_path.py:
// removing a scratch tree can transiently fail (Windows indexing
// services holding a handle), so removal is attempted this many times
// with a fixed one-second pause after each failure; a final failure is
// ignored without logging.
const maxRmtreeRetries = 3

// hashArchive implements spec.md §4.3's five-step single-archive hash:
// pick a plugin, extract into a fresh scratch dir, walk and hash every
// regular file (recursing into anything that is itself an archive),
// compute plugin extra data, and remove the scratch tree. It returns one
// Archive record per archive discovered — the one named by digest plus
// any nested archives found within it.
func hashArchive(ctx context.Context, ix *Index, archivePath string, digest retriever.Digest, size int64) ([]retriever.Archive, error) {
	plugin, err := ix.cfg.Registry.For(archivePath)
	if err != nil {
		return nil, err
	}

	scratch, err := newScratchDir(ix.cfg.ScratchBase, &ix.scratchSeq, archivePath)
	if err != nil {
		return nil, err
	}
	defer removeScratchTree(scratch)

	if err := plugin.ExtractAll(archivePath, scratch); err != nil {
		return nil, err
	}

	ar := retriever.Archive{Digest: digest, Size: size}
	var nested []retriever.Archive

	err = filepath.WalkDir(scratch, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(scratch, path)
		if err != nil {
			return err
		}
		intra := retriever.NormalizeIntraPath(rel)

		result, err := ix.hasher.HashFile(path)
		if err != nil {
			return errors.NewIOError(
				fmt.Sprintf("hash archive entry %s in %s", intra, archivePath),
				err.Error(),
				"",
				err,
			)
		}
		ar.Files = append(ar.Files, retriever.FileInArchive{
			IntraPath: intra,
			Digest:    result.Truncated(),
			Size:      result.Size,
		})

		if ix.cfg.Registry.IsArchiveExtension(path) {
			nestedDigest := retriever.Digest(result.Primary)
			inner, err := hashArchive(ctx, ix, path, nestedDigest, result.Size)
			if err != nil {
				return err
			}
			nested = append(nested, inner...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(ar.Files, func(i, j int) bool { return ar.Files[i].IntraPath < ar.Files[j].IntraPath })

	if len(ix.cfg.ExtraData) > 0 {
		ar.ExtraData = make(map[string]retriever.ExtraDatum, len(ix.cfg.ExtraData))
		for _, factory := range ix.cfg.ExtraData {
			data, err := computeExtraData(factory, archivePath)
			ar.ExtraData[factory.Name()] = data
			_ = err // captured inside computeExtraData's returned ExtraDatum
		}
	}

	return append([]retriever.Archive{ar}, nested...), nil
}

// computeExtraData runs one plugin's extra-data hook, capturing a raised
// error into the result rather than aborting the whole hash (spec.md
// §4.3 step 4, "may raise; the exception is captured and stored").
func computeExtraData(factory ExtraDataFactory, archivePath string) (retriever.ExtraDatum, error) {
	data, err := factory.Compute(archivePath)
	if err != nil {
		return retriever.ExtraDatum{Err: err.Error()}, err
	}
	return retriever.ExtraDatum{Data: data}, nil
}

// newScratchDir creates a uniquely-named directory under base, named per
// the original's "hard to collide" scheme (summonmm/helpers/tmp_path.py):
// a random hex token plus the process id and a monotonic counter, so
// concurrent hash tasks (including nested recursion within one task)
// never collide, and a crashed run's leftovers are unambiguous to spot
// and clean up by hand.
func newScratchDir(base string, seq *atomic.Int64, archivePath string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	var tok [8]byte
	if _, err := rand.Read(tok[:]); err != nil {
		return "", errors.NewIOError("generate archive scratch token", err.Error(), "", err)
	}
	n := seq.Add(1)
	name := fmt.Sprintf("summon-archive-%s-%d-%d", hex.EncodeToString(tok[:]), os.Getpid(), n)
	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.NewIOError(
			fmt.Sprintf("create scratch directory for %s", archivePath),
			err.Error(),
			"",
			err,
		)
	}
	return dir, nil
}

// removeScratchTree removes a scratch dir created by newScratchDir, with
// bounded retries: indexing services (notably on Windows) can transiently
// hold an open handle into a just-extracted tree.
func removeScratchTree(dir string) {
	var lastErr error
	for attempt := 0; attempt < maxRmtreeRetries; attempt++ {
		if err := os.RemoveAll(dir); err == nil {
			return
		} else {
			lastErr = err
		}
		time.Sleep(time.Second)
	}
	if lastErr != nil {
		// Best-effort cleanup; a leftover scratch tree is harmless beyond
		// disk usage and stays until removed by hand.
		_ = lastErr
	}
}
