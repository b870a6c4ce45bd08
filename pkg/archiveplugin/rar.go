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
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/summonmm/summon/internal/errors"
)

// rarPlugin handles .rar by shelling out to unar, the same "pure I/O
// wrapper over an external extractor" shape as sevenZipPlugin — RAR's
// compression format is proprietary and no pack repo links a decoder.
// unar extracts the full archive in one pass; intra-archive selection
// for Extract is done by filtering after extraction rather than passing
// per-file arguments, since unar has no stable "extract just these
// members" flag across its versions.
type rarPlugin struct{}

func newRarPlugin() Plugin { return rarPlugin{} }

func (rarPlugin) Name() string         { return "rar" }
func (rarPlugin) Extensions() []string { return []string{".rar"} }

func (p rarPlugin) Extract(archivePath string, intraPaths []string, outDir string) error {
	if err := p.extractAll(archivePath, outDir); err != nil {
		return err
	}
	return pruneExcept(outDir, intraPaths)
}

func (p rarPlugin) ExtractAll(archivePath, outDir string) error {
	return p.extractAll(archivePath, outDir)
}

func (rarPlugin) extractAll(archivePath, outDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, "unar", "-force-overwrite", "-output-directory", outDir, archivePath)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if isNotFound(err) {
			return errors.NewEnvironmentError(
				"run unar",
				"the unar executable was not found on PATH",
				"install unar (The Unarchiver CLI) and ensure it is on PATH",
				err,
			)
		}
		return errors.NewIOError(
			fmt.Sprintf("run unar on %s", archivePath),
			strings.TrimSpace(stderr.String()),
			"confirm the archive is a valid RAR file and is not password-protected",
			err,
		)
	}
	return nil
}
