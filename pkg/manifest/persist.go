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

package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/summonmm/summon/internal/errors"
)

// Write renders p and atomically replaces the file at path (temp file
// plus rename), the same persistence idiom the archive index and
// folder cache use for their own on-disk state.
func Write(path string, p Project) error {
	out, err := Marshal(p)
	if err != nil {
		return errors.NewDataIntegrityError("encode project manifest", err.Error(), "", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.NewIOError(fmt.Sprintf("create directory for %s", path), err.Error(), "", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.NewIOError(fmt.Sprintf("write project manifest %s", tmp), err.Error(), "", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.NewIOError(fmt.Sprintf("rename project manifest into place %s", path), err.Error(), "", err)
	}
	return nil
}
