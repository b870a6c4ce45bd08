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
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/summonmm/summon/pkg/retriever"
	"github.com/summonmm/summon/pkg/scheduler"
)

func runOnce(t *testing.T, c *Cache) {
	t.Helper()
	s, err := scheduler.New(scheduler.Options{Workers: 4})
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	if _, err := c.Start(s); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestScanFindsFiles(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "a.txt"), "hello")
	mustWrite(t, filepath.Join(root, "sub", "b.txt"), "world")

	c, err := New(Config{
		Name:     "mods",
		Roots:    []retriever.FolderToCache{{Root: root}},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runOnce(t, c)

	all := c.AllFiles()
	if len(all) != 2 {
		t.Fatalf("len(AllFiles()) = %d, want 2: %+v", len(all), all)
	}
	if _, ok := c.ByPath(filepath.Join(root, "a.txt")); !ok {
		t.Error("expected a.txt to be indexed")
	}
}

func TestScanExcludesSubtree(t *testing.T) {
	root := t.TempDir()
	mustWrite(t, filepath.Join(root, "keep.txt"), "keep")
	mustWrite(t, filepath.Join(root, "skip", "drop.txt"), "drop")

	c, err := New(Config{
		Name:     "mods",
		Roots:    []retriever.FolderToCache{{Root: root, Excludes: []string{filepath.Join(root, "skip")}}},
		CacheDir: t.TempDir(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runOnce(t, c)

	all := c.AllFiles()
	if len(all) != 1 {
		t.Fatalf("len(AllFiles()) = %d, want 1: %+v", len(all), all)
	}
}

func TestScanReconcilesAcrossRuns(t *testing.T) {
	root := t.TempDir()
	cacheDir := t.TempDir()
	pathA := filepath.Join(root, "a.txt")
	pathB := filepath.Join(root, "b.txt")
	mustWrite(t, pathA, "hello")
	mustWrite(t, pathB, "world")

	cfg := Config{Name: "mods", Roots: []retriever.FolderToCache{{Root: root}}, CacheDir: cacheDir}

	c1, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	runOnce(t, c1)
	if len(c1.AllFiles()) != 2 {
		t.Fatalf("first run: len(AllFiles()) = %d, want 2", len(c1.AllFiles()))
	}

	if err := os.Remove(pathB); err != nil {
		t.Fatalf("remove: %v", err)
	}

	c2, err := New(cfg)
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	runOnce(t, c2)

	all := c2.AllFiles()
	if len(all) != 1 {
		t.Fatalf("second run: len(AllFiles()) = %d, want 1: %+v", len(all), all)
	}
	if _, ok := c2.ByPath(pathB); ok {
		t.Error("deleted file should have been reconciled out of the cache")
	}
	if _, ok := c2.ByPath(pathA); !ok {
		t.Error("untouched file should still be indexed")
	}
}

func TestOverlappingRootsRejected(t *testing.T) {
	_, err := New(Config{
		Name: "bad",
		Roots: []retriever.FolderToCache{
			{Root: "/data/mods"},
			{Root: "/data/mods/nested"},
		},
	})
	if err == nil {
		t.Fatal("expected an error for overlapping roots")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}
