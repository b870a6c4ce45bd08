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

package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(Options{Workers: 4})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestSimpleChain(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.AddTask(TaskSpec{
		Name: "a",
		Kind: KindWorker,
		Worker: func(ctx context.Context, r Results) (any, error) {
			return 1, nil
		},
	}); err != nil {
		t.Fatalf("add a: %v", err)
	}
	if err := s.AddTask(TaskSpec{
		Name: "b",
		Kind: KindWorker,
		Deps: []string{"a"},
		Worker: func(ctx context.Context, r Results) (any, error) {
			return r["a"].(int) + 1, nil
		},
	}); err != nil {
		t.Fatalf("add b: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := s.Result("b")
	if !ok {
		t.Fatal("expected b to have a result")
	}
	if got.(int) != 2 {
		t.Errorf("b result = %v, want 2", got)
	}
}

func TestDuplicateNameRejected(t *testing.T) {
	s := newTestScheduler(t)
	spec := TaskSpec{Name: "a", Kind: KindWorker, Worker: func(context.Context, Results) (any, error) { return nil, nil }}
	if err := s.AddTask(spec); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := s.AddTask(spec); err == nil {
		t.Fatal("expected error adding a duplicate task name")
	}
}

func TestMissingDependencyRejected(t *testing.T) {
	s := newTestScheduler(t)
	err := s.AddTask(TaskSpec{Name: "b", Kind: KindWorker, Deps: []string{"missing"},
		Worker: func(context.Context, Results) (any, error) { return nil, nil }})
	if err == nil {
		t.Fatal("expected error for dependency on a nonexistent task")
	}
}

func TestTagRequirementEnforced(t *testing.T) {
	s := newTestScheduler(t)
	noop := func(context.Context, Results) (any, error) { return nil, nil }

	if err := s.AddTask(TaskSpec{Name: "producer", Kind: KindWorker, Worker: noop,
		Tags: Tags{Provided: []string{"scanned"}}}); err != nil {
		t.Fatalf("add producer: %v", err)
	}

	if err := s.AddTask(TaskSpec{Name: "needs-tag", Kind: KindWorker, Deps: []string{"producer"}, Worker: noop,
		Tags: Tags{Required: []string{"scanned"}}}); err != nil {
		t.Fatalf("tag requirement should be satisfied: %v", err)
	}

	if err := s.AddTask(TaskSpec{Name: "missing-tag", Kind: KindWorker, Worker: noop,
		Tags: Tags{Required: []string{"scanned"}}}); err == nil {
		t.Fatal("expected error: required tag has no providing ancestor")
	}

	if err := s.AddTask(TaskSpec{Name: "conflicting-tag", Kind: KindWorker, Deps: []string{"producer"}, Worker: noop,
		Tags: Tags{RequiredNot: []string{"scanned"}}}); err == nil {
		t.Fatal("expected error: required_not tag is provided by an ancestor")
	}
}

func TestPrefixDependencyMatchesRetroactively(t *testing.T) {
	s := newTestScheduler(t)
	var mu sync.Mutex
	var order []string
	record := func(name string) WorkerFunc {
		return func(context.Context, Results) (any, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil, nil
		}
	}

	if err := s.AddTask(TaskSpec{Name: "shard-1", Kind: KindWorker, Worker: record("shard-1")}); err != nil {
		t.Fatalf("add shard-1: %v", err)
	}
	// "collector" depends on every task whose name starts with "shard-",
	// including ones added after it.
	if err := s.AddTask(TaskSpec{Name: "collector", Kind: KindWorker, Deps: []string{"shard-*"}, Worker: record("collector")}); err != nil {
		t.Fatalf("add collector: %v", err)
	}
	if err := s.AddTask(TaskSpec{Name: "shard-2", Kind: KindWorker, Worker: record("shard-2")}); err != nil {
		t.Fatalf("add shard-2: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 {
		t.Fatalf("order = %v, want 3 entries", order)
	}
	if order[len(order)-1] != "collector" {
		t.Errorf("collector should run last, got order %v", order)
	}
}

func TestPlaceholderReplace(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.AddPlaceholder("scan"); err != nil {
		t.Fatalf("add placeholder: %v", err)
	}
	if err := s.AddTask(TaskSpec{
		Name: "consume",
		Kind: KindWorker,
		Deps: []string{"scan"},
		Worker: func(ctx context.Context, r Results) (any, error) {
			return r["scan"], nil
		},
	}); err != nil {
		t.Fatalf("add consume: %v", err)
	}
	if err := s.ReplacePlaceholder(TaskSpec{
		Name: "scan",
		Kind: KindWorker,
		Worker: func(context.Context, Results) (any, error) {
			return "scanned-42-files", nil
		},
	}); err != nil {
		t.Fatalf("replace placeholder: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := s.Result("consume")
	if !ok || got != "scanned-42-files" {
		t.Errorf("consume result = %v, %v, want scanned-42-files", got, ok)
	}
}

func TestOwnerAddsTaskAtRuntime(t *testing.T) {
	s := newTestScheduler(t)

	if err := s.AddTask(TaskSpec{
		Name: "planner",
		Kind: KindOwner,
		Owner: func(ctx context.Context, sched *Scheduler, r Results) (any, error) {
			return nil, sched.AddTask(TaskSpec{
				Name: "discovered",
				Kind: KindWorker,
				Worker: func(context.Context, Results) (any, error) {
					return "done", nil
				},
			})
		},
	}); err != nil {
		t.Fatalf("add planner: %v", err)
	}

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	got, ok := s.Result("discovered")
	if !ok || got != "done" {
		t.Errorf("discovered result = %v, %v, want done", got, ok)
	}
}

func TestWorkerErrorAbortsRun(t *testing.T) {
	s := newTestScheduler(t)
	wantErr := context.DeadlineExceeded
	if err := s.AddTask(TaskSpec{
		Name: "fails",
		Kind: KindWorker,
		Worker: func(context.Context, Results) (any, error) {
			return nil, wantErr
		},
	}); err != nil {
		t.Fatalf("add fails: %v", err)
	}

	err := s.Run(context.Background())
	if err == nil {
		t.Fatal("expected Run to return the task's error")
	}
}

func TestWeightPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")

	s1, err := New(Options{Workers: 2, WeightsPath: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s1.AddTask(TaskSpec{
		Name:   "warm",
		Kind:   KindWorker,
		Weight: 0.01,
		Worker: func(context.Context, Results) (any, error) { return nil, nil },
	}); err != nil {
		t.Fatalf("add warm: %v", err)
	}
	if err := s1.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	s2, err := New(Options{Workers: 2, WeightsPath: path})
	if err != nil {
		t.Fatalf("New (reload): %v", err)
	}
	if got := s2.weights.get("warm", -1); got < 0 {
		t.Errorf("expected a persisted weight for %q, got default", "warm")
	}
}
