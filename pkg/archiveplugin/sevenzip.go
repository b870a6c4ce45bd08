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
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/summonmm/summon/internal/errors"
)

// sevenZipPlugin handles .7z by shelling out to the external 7z CLI — no
// pack repo carries a pure-Go 7z decoder, and spec.md §4.3/§9 describe
// archive plugins as pure I/O wrappers over external extractors for
// exactly this format. The exec.Command pattern (argument list built up
// front, stdout/stderr captured, no shell interpolation) is grounded on
// pkg/ingestion/repo_loader.go's git invocations.
type sevenZipPlugin struct{}

func newSevenZipPlugin() Plugin { return sevenZipPlugin{} }

func (sevenZipPlugin) Name() string         { return "7z" }
func (sevenZipPlugin) Extensions() []string { return []string{".7z"} }

func (p sevenZipPlugin) Extract(archivePath string, intraPaths []string, outDir string) error {
	args := append([]string{"x", "-y", "-o" + outDir, archivePath}, intraPaths...)
	return p.run(args)
}

func (p sevenZipPlugin) ExtractAll(archivePath, outDir string) error {
	return p.run([]string{"x", "-y", "-o" + outDir, archivePath})
}

func (sevenZipPlugin) run(args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "7z", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return errors.NewEnvironmentError(
				"run 7z",
				"the 7z executable was not found on PATH",
				"install p7zip (or 7-Zip) and ensure the 7z binary is on PATH",
				err,
			)
		}
		return errors.NewIOError(
			fmt.Sprintf("run 7z %s", strings.Join(args, " ")),
			strings.TrimSpace(stderr.String()),
			"confirm the archive is a valid 7z file and is not password-protected",
			err,
		)
	}
	return nil
}

func isNotFound(err error) bool {
	var execErr *exec.Error
	return stderrors.As(err, &execErr)
}
