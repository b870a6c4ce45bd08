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

package archiveplugin

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/summonmm/summon/internal/errors"
)

// pruneExcept deletes every regular file under dir whose path relative to
// dir (normalized) is not in keep, then removes any directories left empty.
// Used by plugins whose underlying extractor has no selective-extract mode.
func pruneExcept(dir string, keep []string) error {
	want := make(map[string]struct{}, len(keep))
	for _, p := range keep {
		want[normalize(p)] = struct{}{}
	}

	var toRemove []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if _, ok := want[normalize(rel)]; !ok {
			toRemove = append(toRemove, path)
		}
		return nil
	})
	if err != nil {
		return errors.NewIOError(
			fmt.Sprintf("walk extracted directory %s", dir),
			err.Error(),
			"",
			err,
		)
	}

	for _, path := range toRemove {
		if err := os.Remove(path); err != nil {
			return errors.NewIOError(fmt.Sprintf("remove %s", path), err.Error(), "", err)
		}
	}
	return removeEmptyDirs(dir)
}

// removeEmptyDirs removes every directory under dir (bottom-up) left
// without files after pruneExcept deletes unwanted entries.
func removeEmptyDirs(dir string) error {
	var dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && path != dir {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("walk extracted directory %s", dir), err.Error(), "", err)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}
	return nil
}
