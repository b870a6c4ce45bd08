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
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
)

func TestRegistryDispatchByExtension(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		path string
		want string
	}{
		{"pack.zip", "zip"},
		{"pack.tar", "tar"},
		{"pack.tar.gz", "tar"},
		{"pack.tgz", "tar"},
		{"pack.7z", "7z"},
		{"pack.rar", "rar"},
	}
	for _, c := range cases {
		p, err := r.For(c.path)
		if err != nil {
			t.Fatalf("For(%s): %v", c.path, err)
		}
		if p.Name() != c.want {
			t.Errorf("For(%s).Name() = %s, want %s", c.path, p.Name(), c.want)
		}
		if !r.IsArchiveExtension(c.path) {
			t.Errorf("IsArchiveExtension(%s) = false, want true", c.path)
		}
	}
}

func TestRegistryUnknownExtension(t *testing.T) {
	r := NewRegistry()
	if _, err := r.For("notes.txt"); err == nil {
		t.Fatal("expected an error for an unregistered extension")
	}
	if r.IsArchiveExtension("notes.txt") {
		t.Error("IsArchiveExtension(notes.txt) = true, want false")
	}
}

func TestZipPluginExtractAll(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pack.zip")
	writeTestZip(t, archivePath, map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
	})

	outDir := filepath.Join(dir, "out")
	p := newZipPlugin()
	if err := p.ExtractAll(archivePath, outDir); err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}

	assertFileContents(t, filepath.Join(outDir, "a.txt"), "hello")
	assertFileContents(t, filepath.Join(outDir, "sub", "b.txt"), "world")
}

func TestZipPluginExtractSubset(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pack.zip")
	writeTestZip(t, archivePath, map[string]string{
		"a.txt": "hello",
		"b.txt": "world",
	})

	outDir := filepath.Join(dir, "out")
	p := newZipPlugin()
	if err := p.Extract(archivePath, []string{"a.txt"}, outDir); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	assertFileContents(t, filepath.Join(outDir, "a.txt"), "hello")
	if _, err := os.Stat(filepath.Join(outDir, "b.txt")); !os.IsNotExist(err) {
		t.Error("b.txt should not have been extracted")
	}
}

func TestTarPluginExtractAllPlain(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pack.tar")
	writeTestTar(t, archivePath, false, map[string]string{"a.txt": "hello"})

	outDir := filepath.Join(dir, "out")
	p := newTarPlugin()
	if err := p.ExtractAll(archivePath, outDir); err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	assertFileContents(t, filepath.Join(outDir, "a.txt"), "hello")
}

func TestTarPluginExtractAllGzip(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "pack.tar.gz")
	writeTestTar(t, archivePath, true, map[string]string{"a.txt": "hello"})

	outDir := filepath.Join(dir, "out")
	p := newTarPlugin()
	if err := p.ExtractAll(archivePath, outDir); err != nil {
		t.Fatalf("ExtractAll: %v", err)
	}
	assertFileContents(t, filepath.Join(outDir, "a.txt"), "hello")
}

func TestZipPluginRejectsPathEscape(t *testing.T) {
	dir := t.TempDir()
	archivePath := filepath.Join(dir, "evil.zip")

	f, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("../../escape.txt")
	if err != nil {
		t.Fatalf("zip Create: %v", err)
	}
	if _, err := w.Write([]byte("gotcha")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("f.Close: %v", err)
	}

	outDir := filepath.Join(dir, "out")
	p := newZipPlugin()
	if err := p.ExtractAll(archivePath, outDir); err == nil {
		t.Fatal("expected a zip-slip error")
	}
}

func writeTestZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write(%s): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zw.Close: %v", err)
	}
}

func writeTestTar(t *testing.T, path string, gzipped bool, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	var tw *tar.Writer
	var gz *gzip.Writer
	if gzipped {
		gz = gzip.NewWriter(f)
		tw = tar.NewWriter(gz)
	} else {
		tw = tar.NewWriter(f)
	}

	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar WriteHeader(%s): %v", name, err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write(%s): %v", name, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tw.Close: %v", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			t.Fatalf("gz.Close: %v", err)
		}
	}
}

func assertFileContents(t *testing.T, path, want string) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if string(got) != want {
		t.Errorf("ReadFile(%s) = %q, want %q", path, got, want)
	}
}
