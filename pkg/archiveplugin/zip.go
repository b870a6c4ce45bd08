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
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/summonmm/summon/internal/errors"
)

// zipPlugin handles .zip archives via klauspost/compress/zip, a drop-in
// replacement for archive/zip with a faster deflate implementation — the
// same module the rest of the retrieval pack already pulls in for zstd.
type zipPlugin struct{}

func newZipPlugin() Plugin { return zipPlugin{} }

func (zipPlugin) Name() string         { return "zip" }
func (zipPlugin) Extensions() []string { return []string{".zip"} }

func (zipPlugin) Extract(archivePath string, intraPaths []string, outDir string) error {
	want := make(map[string]struct{}, len(intraPaths))
	for _, p := range intraPaths {
		want[normalize(p)] = struct{}{}
	}
	return walkZip(archivePath, outDir, func(name string) bool {
		_, ok := want[normalize(name)]
		return ok
	})
}

func (zipPlugin) ExtractAll(archivePath, outDir string) error {
	return walkZip(archivePath, outDir, func(string) bool { return true })
}

func walkZip(archivePath, outDir string, keep func(name string) bool) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return errors.NewIOError(
			fmt.Sprintf("open zip archive %s", archivePath),
			err.Error(),
			"confirm the file is a valid, uncorrupted zip archive",
			err,
		)
	}
	defer r.Close()

	for _, f := range r.File {
		if !keep(f.Name) {
			continue
		}
		dest := filepath.Join(outDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(dest, filepath.Clean(outDir)+string(os.PathSeparator)) && dest != filepath.Clean(outDir) {
			return errors.NewDataIntegrityError(
				fmt.Sprintf("extract zip archive %s", archivePath),
				fmt.Sprintf("entry %q escapes the extraction directory", f.Name),
				"this archive is malformed or hostile; do not extract it",
				nil,
			)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errors.NewIOError(fmt.Sprintf("create directory %s", dest), err.Error(), "", err)
			}
			continue
		}
		if err := extractZipEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.NewIOError(fmt.Sprintf("create directory for %s", dest), err.Error(), "", err)
	}
	rc, err := f.Open()
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("open zip entry %s", f.Name), err.Error(), "", err)
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("create file %s", dest), err.Error(), "", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return errors.NewIOError(fmt.Sprintf("write file %s", dest), err.Error(), "", err)
	}
	return nil
}

func normalize(p string) string {
	return strings.ToLower(strings.ReplaceAll(filepath.ToSlash(p), "\\", "/"))
}
