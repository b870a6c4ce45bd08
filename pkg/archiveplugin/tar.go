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
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/summonmm/summon/internal/errors"
)

// tarPlugin handles .tar and .tar.gz, both via the standard library —
// every other_examples/ repo that touches tar does so with archive/tar
// and compress/gzip directly, with no third-party tar library anywhere
// in the pack.
type tarPlugin struct{}

func newTarPlugin() Plugin { return tarPlugin{} }

func (tarPlugin) Name() string         { return "tar" }
func (tarPlugin) Extensions() []string { return []string{".tar", ".tar.gz", ".tgz"} }

func (tarPlugin) Extract(archivePath string, intraPaths []string, outDir string) error {
	want := make(map[string]struct{}, len(intraPaths))
	for _, p := range intraPaths {
		want[normalize(p)] = struct{}{}
	}
	return walkTar(archivePath, outDir, func(name string) bool {
		_, ok := want[normalize(name)]
		return ok
	})
}

func (tarPlugin) ExtractAll(archivePath, outDir string) error {
	return walkTar(archivePath, outDir, func(string) bool { return true })
}

func walkTar(archivePath, outDir string, keep func(name string) bool) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return errors.NewIOError(fmt.Sprintf("open tar archive %s", archivePath), err.Error(), "", err)
	}
	defer f.Close()

	var r io.Reader = f
	lower := strings.ToLower(archivePath)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.NewIOError(
				fmt.Sprintf("open gzip stream for %s", archivePath),
				err.Error(),
				"confirm the file is a valid gzip-compressed tar archive",
				err,
			)
		}
		defer gz.Close()
		r = gz
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.NewDataIntegrityError(
				fmt.Sprintf("read tar entry in %s", archivePath),
				err.Error(),
				"the archive is likely truncated or corrupt",
				err,
			)
		}
		if !keep(hdr.Name) {
			continue
		}
		dest := filepath.Join(outDir, filepath.FromSlash(hdr.Name))
		if !strings.HasPrefix(dest, filepath.Clean(outDir)+string(os.PathSeparator)) && dest != filepath.Clean(outDir) {
			return errors.NewDataIntegrityError(
				fmt.Sprintf("extract tar archive %s", archivePath),
				fmt.Sprintf("entry %q escapes the extraction directory", hdr.Name),
				"this archive is malformed or hostile; do not extract it",
				nil,
			)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return errors.NewIOError(fmt.Sprintf("create directory %s", dest), err.Error(), "", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
				return errors.NewIOError(fmt.Sprintf("create directory for %s", dest), err.Error(), "", err)
			}
			out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return errors.NewIOError(fmt.Sprintf("create file %s", dest), err.Error(), "", err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errors.NewIOError(fmt.Sprintf("write file %s", dest), err.Error(), "", err)
			}
			out.Close()
		}
	}
}
