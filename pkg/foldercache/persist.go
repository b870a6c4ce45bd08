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
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/pkg/retriever"
)

// load reads both persistence files if present. A missing file is not an
// error: a cache that has never run before starts from an empty map and
// no stats, which the split stage treats as "scan whole roots, unsplit".
func (c *Cache) load() error {
	files, err := readGob[map[string]retriever.FileOnDisk](c.filesPath)
	if err != nil {
		return err
	}
	stats, err := readGob[dirStats](c.statsPath)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if files != nil {
		c.files = files
	}
	if stats != nil {
		c.stats = stats
	}
	return nil
}

// persist atomically rewrites both files (temp-file-then-rename, the same
// pattern pkg/ingestion/checkpoint.go uses for its progress file).
func (c *Cache) persist() error {
	c.mu.Lock()
	files := make(map[string]retriever.FileOnDisk, len(c.files))
	for k, v := range c.files {
		files[k] = v
	}
	stats := c.stats
	c.mu.Unlock()

	if err := writeGob(c.filesPath, files); err != nil {
		return err
	}
	return writeGob(c.statsPath, stats)
}

func readGob[T any](path string) (T, error) {
	var zero T
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return zero, nil
		}
		return zero, errors.NewIOError(
			fmt.Sprintf("read folder cache file %s", path),
			err.Error(),
			"check file permissions and available disk space",
			err,
		)
	}
	var v T
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&v); err != nil {
		return zero, errors.NewDataIntegrityError(
			fmt.Sprintf("decode folder cache file %s", path),
			err.Error(),
			"delete the file to force a full rescan, or restore it from backup",
			err,
		)
	}
	return v, nil
}

func writeGob[T any](path string, v T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return errors.NewIOError(fmt.Sprintf("encode folder cache file %s", path), err.Error(), "", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewIOError(fmt.Sprintf("create folder cache directory %s", dir), err.Error(), "check parent directory permissions", err)
	}
	tmp, err := os.CreateTemp(dir, ".foldercache-*.tmp")
	if err != nil {
		return errors.NewIOError("create temp folder cache file", err.Error(), "check disk space and permissions", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewIOError("write temp folder cache file", err.Error(), "", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError("close temp folder cache file", err.Error(), "", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return errors.NewIOError(fmt.Sprintf("rename temp file into place at %s", path), err.Error(), "", err)
	}
	return nil
}
