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

// Package scheduler runs the DAG of tasks that drive a summon pass: folder
// scans, archive indexing, resolution and installation all decompose into
// a graph of named tasks wired together here. The original implementation
// farmed worker tasks out to a pool of OS subprocesses; Go has no GIL, so
// this port collapses that to a bounded pool of goroutines (SPEC_FULL.md
// §5) communicating over channels — the same jobs/results/WaitGroup shape
// pkg/ingestion's call resolver uses to fan work out across
// runtime.NumCPU() workers, adapted here to a dynamic, growable graph
// instead of a fixed slice of work items.
package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/summonmm/summon/internal/errors"
	"github.com/summonmm/summon/internal/htmllog"
	"github.com/summonmm/summon/internal/metrics"
)

// Kind distinguishes the three task shapes spec.md §4.1 defines.
type Kind int

const (
	// KindWorker tasks run off the main goroutine, in the bounded pool,
	// and may not extend the graph.
	KindWorker Kind = iota
	// KindOwner tasks run on the scheduler's own goroutine between
	// rounds, and may call AddTask/ReplacePlaceholder.
	KindOwner
	// KindPlaceholder marks a name reserved for a task an owner will add
	// later; dependents may be wired against it before it exists.
	KindPlaceholder
)

func (k Kind) String() string {
	switch k {
	case KindWorker:
		return "worker"
	case KindOwner:
		return "owner"
	case KindPlaceholder:
		return "placeholder"
	default:
		return "unknown"
	}
}

// Tags describes a task's data-dependency contract: which tags it needs
// guaranteed present (or absent) among its ancestors' provided tags, and
// which tags it itself provides to its descendants. Validated once, at
// AddTask time, against the union of every ancestor's provided tags —
// never re-checked at run time, so a bad wiring fails fast before any
// task executes (spec.md §4.1 "tag validation").
type Tags struct {
	Required    []string
	RequiredNot []string
	Provided    []string
}

// Results is the read-only view of predecessor results a running task
// receives, keyed by predecessor task name.
type Results map[string]any

// WorkerFunc is a worker task's body.
type WorkerFunc func(ctx context.Context, results Results) (any, error)

// OwnerFunc is an owner task's body. It receives the scheduler itself so
// it may add new tasks or replace placeholders before returning.
type OwnerFunc func(ctx context.Context, s *Scheduler, results Results) (any, error)

// TaskSpec describes one node to add to the graph.
type TaskSpec struct {
	Name   string
	Kind   Kind
	Deps   []string // may include a trailing '*' prefix-pattern entry
	Tags   Tags
	Weight float64 // seconds estimate; 0 means "use the weight file / default"
	Worker WorkerFunc
	Owner  OwnerFunc
}

type state int

const (
	statePending state = iota
	stateReady
	stateRunning
	stateDone
	stateFailed
)

type node struct {
	spec       TaskSpec
	state      state
	waiting    int
	dependents []string
	provided   map[string]struct{}
	guaranteed map[string]struct{}
	result     any
	weight     float64
	critical   float64
}

// Options configures a Scheduler.
type Options struct {
	// Workers bounds the goroutine pool worker tasks run on. Defaults to
	// runtime.NumCPU(), capped at 8 (pkg/ingestion/resolver.go's bound).
	Workers int
	// BatchThreshold is the estimated-duration ceiling a pack of worker
	// tasks is filled to before being handed to a goroutine, mirroring
	// the byte-size threshold pkg/ingestion/batcher.go packs mutation
	// statements against (here: estimated wall time instead of bytes).
	BatchThreshold time.Duration
	// WeightsPath is the JSON file task duration estimates are loaded
	// from and saved to. Empty disables persistence.
	WeightsPath string
	Logger      logger
	HTML        *htmllog.Writer
}

// logger is satisfied by *slog.Logger without importing it directly into
// every call site that only needs to record a summon-level event.
type logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Scheduler runs a dynamic DAG of worker and owner tasks to completion.
type Scheduler struct {
	mu       sync.Mutex
	nodes    map[string]*node
	patterns map[string][]string // prefix (without '*') -> names of tasks waiting on that prefix

	workers        int
	batchThreshold time.Duration
	weights        *weightStore
	log            logger
	html           *htmllog.Writer

	readyOwners []string
	readyQueue  []string // worker names ready to run, sorted by critical weight in packBatches

	resultsCh chan taskOutcome
	inFlight  int
	remaining int

	firstErr error
}

type taskOutcome struct {
	name     string
	result   any
	err      error
	duration time.Duration
}

// New returns a Scheduler ready to accept tasks via AddTask.
func New(opts Options) (*Scheduler, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}
	threshold := opts.BatchThreshold
	if threshold <= 0 {
		threshold = 100 * time.Millisecond
	}
	ws, err := loadWeightStore(opts.WeightsPath)
	if err != nil {
		return nil, err
	}
	lg := opts.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	return &Scheduler{
		nodes:          make(map[string]*node),
		patterns:       make(map[string][]string),
		workers:        workers,
		batchThreshold: threshold,
		weights:        ws,
		log:            lg,
		html:           opts.HTML,
		resultsCh:      make(chan taskOutcome, workers*2),
	}, nil
}

// AddPlaceholder reserves name as a KindPlaceholder node with no
// dependencies of its own. Other tasks may name it as a dependency before
// ReplacePlaceholder supplies its real body.
func (s *Scheduler) AddPlaceholder(name string) error {
	return s.AddTask(TaskSpec{Name: name, Kind: KindPlaceholder})
}

// ReplacePlaceholder swaps a previously reserved placeholder for its real
// task body, preserving every dependent edge already wired against the
// placeholder's name along with their waiting counts (spec.md §9, "own
// tasks adding tasks at runtime").
func (s *Scheduler) ReplacePlaceholder(spec TaskSpec) error {
	s.mu.Lock()
	n, ok := s.nodes[spec.Name]
	if !ok {
		s.mu.Unlock()
		return errors.NewLogicError(
			fmt.Sprintf("replace placeholder %q", spec.Name),
			"no placeholder with that name has been added",
			"call AddPlaceholder before ReplacePlaceholder, or use AddTask for a brand-new name",
		)
	}
	if n.state != statePending && n.state != stateReady {
		s.mu.Unlock()
		return errors.NewLogicError(
			fmt.Sprintf("replace placeholder %q", spec.Name),
			"placeholder has already run or is running",
			"replace a placeholder before anything could have made it ready",
		)
	}
	dependents := n.dependents
	s.mu.Unlock()

	if spec.Kind == KindPlaceholder {
		return errors.NewLogicError(
			fmt.Sprintf("replace placeholder %q", spec.Name),
			"replacement spec is itself a placeholder",
			"supply a Worker or Owner spec",
		)
	}

	s.mu.Lock()
	delete(s.nodes, spec.Name)
	s.mu.Unlock()

	if err := s.AddTask(spec); err != nil {
		// restore the placeholder so the graph is left consistent
		s.mu.Lock()
		s.nodes[spec.Name] = n
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	replaced := s.nodes[spec.Name]
	replaced.dependents = append(replaced.dependents, dependents...)
	s.mu.Unlock()
	return nil
}

// AddTask validates and inserts a new node. Dependency names must already
// exist, except that a trailing '*' entry in Deps is a prefix pattern:
// it matches every existing task whose name has that prefix, and is
// remembered so every later AddTask call whose name matches retroactively
// becomes a dependency too (spec.md §4.1).
func (s *Scheduler) AddTask(spec TaskSpec) error {
	if spec.Name == "" {
		return errors.NewLogicError("add task", "empty task name", "give every task a non-empty name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.nodes[spec.Name]; exists {
		return errors.NewLogicError(
			fmt.Sprintf("add task %q", spec.Name),
			"a task with that name already exists",
			"use ReplacePlaceholder if this name was reserved with AddPlaceholder",
		)
	}

	exactDeps, prefixPatterns, err := splitDeps(spec.Deps)
	if err != nil {
		return err
	}

	resolvedDeps := append([]string{}, exactDeps...)
	for _, pat := range prefixPatterns {
		for name := range s.nodes {
			if matchesPrefix(name, pat) {
				resolvedDeps = append(resolvedDeps, name)
			}
		}
	}

	for _, d := range exactDeps {
		if _, ok := s.nodes[d]; !ok {
			return errors.NewLogicError(
				fmt.Sprintf("add task %q", spec.Name),
				fmt.Sprintf("dependency %q does not exist", d),
				"add dependencies before the tasks that depend on them, or reserve a placeholder first",
			)
		}
	}

	guaranteed := make(map[string]struct{})
	for _, d := range resolvedDeps {
		dn := s.nodes[d]
		for t := range dn.guaranteed {
			guaranteed[t] = struct{}{}
		}
		for t := range dn.provided {
			guaranteed[t] = struct{}{}
		}
	}
	for _, req := range spec.Tags.Required {
		if _, ok := guaranteed[req]; !ok {
			return errors.NewLogicError(
				fmt.Sprintf("add task %q", spec.Name),
				fmt.Sprintf("required tag %q is not provided by any ancestor", req),
				"add a dependency (direct or transitive) on a task that provides this tag",
			)
		}
	}
	for _, bad := range spec.Tags.RequiredNot {
		if _, ok := guaranteed[bad]; ok {
			return errors.NewLogicError(
				fmt.Sprintf("add task %q", spec.Name),
				fmt.Sprintf("forbidden tag %q is provided by an ancestor", bad),
				"remove the conflicting dependency, or drop the required_not constraint",
			)
		}
	}

	provided := make(map[string]struct{}, len(spec.Tags.Provided))
	for _, p := range spec.Tags.Provided {
		provided[p] = struct{}{}
	}

	n := &node{
		spec:       spec,
		state:      statePending,
		provided:   provided,
		guaranteed: guaranteed,
		weight:     s.weightFor(spec),
	}
	s.nodes[spec.Name] = n

	waiting := 0
	for _, d := range resolvedDeps {
		dn := s.nodes[d]
		if dn.state != stateDone {
			waiting++
			dn.dependents = append(dn.dependents, spec.Name)
		}
	}
	n.waiting = waiting

	for _, pat := range prefixPatterns {
		s.patterns[pat] = append(s.patterns[pat], spec.Name)
	}

	// Retroactively wire this new task as a dependency of any task that
	// registered a prefix pattern matching it, before this node existed.
	for pat, waiters := range s.patterns {
		if !matchesPrefix(spec.Name, pat) {
			continue
		}
		for _, waiterName := range waiters {
			if waiterName == spec.Name {
				continue
			}
			waiterNode, ok := s.nodes[waiterName]
			if !ok || waiterNode.state == stateDone {
				continue
			}
			n.dependents = append(n.dependents, waiterName)
			waiterNode.waiting++
		}
	}

	if spec.Kind != KindPlaceholder {
		s.remaining++
	}
	if n.waiting == 0 {
		s.markReady(spec.Name)
	}
	return nil
}

func splitDeps(deps []string) (exact []string, prefixes []string, err error) {
	for _, d := range deps {
		if d == "" {
			return nil, nil, errors.NewLogicError("add task", "empty dependency name", "remove the blank entry")
		}
		if len(d) > 1 && d[len(d)-1] == '*' {
			prefixes = append(prefixes, d[:len(d)-1])
		} else {
			exact = append(exact, d)
		}
	}
	return exact, prefixes, nil
}

func matchesPrefix(name, prefix string) bool {
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func (s *Scheduler) weightFor(spec TaskSpec) float64 {
	if spec.Weight > 0 {
		return spec.Weight
	}
	return s.weights.get(spec.Name, 0.05)
}

// markReady must be called with s.mu held. It does not run placeholders.
func (s *Scheduler) markReady(name string) {
	n := s.nodes[name]
	if n.state != statePending {
		return
	}
	n.state = stateReady
	switch n.spec.Kind {
	case KindOwner:
		s.readyOwners = append(s.readyOwners, name)
	case KindWorker:
		s.readyQueue = append(s.readyQueue, name)
	case KindPlaceholder:
		// stays pending-ready until ReplacePlaceholder gives it a body
	}
}

// Run drives the graph to completion: owner tasks run to exhaustion on
// the calling goroutine between rounds (since they may extend the graph),
// worker tasks are packed into batches and dispatched across the
// goroutine pool. Any task error aborts the run with no retries
// (spec.md §4.1 "fault model").
func (s *Scheduler) Run(ctx context.Context) error {
	defer func() {
		if err := s.weights.save(); err != nil {
			s.log.Warn("scheduler: failed to save weight file", "error", err)
		}
	}()

	for {
		s.runReadyOwners(ctx)

		s.mu.Lock()
		if s.firstErr != nil {
			err := s.firstErr
			s.mu.Unlock()
			return err
		}
		if s.remaining == 0 {
			s.mu.Unlock()
			return nil
		}
		batches := s.packBatches()
		haveWork := len(batches) > 0
		inFlightNow := s.inFlight
		s.mu.Unlock()

		if !haveWork && inFlightNow == 0 {
			return errors.NewLogicError(
				"scheduler run",
				"no task is ready and none are in flight while tasks remain",
				"check for a cyclic dependency, an unreplaced placeholder, or an unsatisfiable tag requirement",
			)
		}

		for _, b := range batches {
			s.dispatchBatch(ctx, b)
		}

		if err := s.awaitOneCompletion(ctx); err != nil {
			return err
		}
	}
}

// packBatches must be called with s.mu held. It sorts the ready worker
// queue by critical-path weight (own weight plus the heaviest weight
// reachable through dependents, spec.md §4.1's priority heuristic) and
// greedily packs tasks into at most as many batches as there are free
// worker slots (s.workers minus batches in flight), each filled until its
// summed estimated weight would exceed batchThreshold.
func (s *Scheduler) packBatches() [][]string {
	if len(s.readyQueue) == 0 {
		return nil
	}
	sort.Slice(s.readyQueue, func(i, j int) bool {
		return s.criticalWeight(s.readyQueue[i]) > s.criticalWeight(s.readyQueue[j])
	})

	slots := s.workers - s.inFlight
	if slots <= 0 {
		return nil
	}
	var batches [][]string
	var cur []string
	var curWeight time.Duration
	flush := func() {
		if len(cur) > 0 {
			batches = append(batches, cur)
			cur = nil
			curWeight = 0
		}
	}
	for _, name := range s.readyQueue {
		n := s.nodes[name]
		w := time.Duration(n.weight * float64(time.Second))
		if len(cur) > 0 && curWeight+w > s.batchThreshold {
			flush()
			if len(batches) >= slots {
				break
			}
		}
		cur = append(cur, name)
		curWeight += w
	}
	flush()
	if len(batches) > slots {
		batches = batches[:slots]
	}
	dispatched := make(map[string]struct{})
	for _, b := range batches {
		for _, name := range b {
			dispatched[name] = struct{}{}
		}
	}
	remaining := s.readyQueue[:0:0]
	for _, name := range s.readyQueue {
		if _, ok := dispatched[name]; !ok {
			remaining = append(remaining, name)
		}
	}
	s.readyQueue = remaining
	return batches
}

// criticalWeight must be called with s.mu held. It memoizes own weight
// plus the maximum critical weight among dependents — an estimate of the
// longest remaining chain through this task, used to prioritise the
// scheduling queue the way a build system favours the longest pole first.
func (s *Scheduler) criticalWeight(name string) float64 {
	n := s.nodes[name]
	if n.critical > 0 {
		return n.critical
	}
	best := 0.0
	for _, d := range n.dependents {
		if _, ok := s.nodes[d]; ok {
			if cw := s.criticalWeight(d); cw > best {
				best = cw
			}
		}
	}
	n.critical = n.weight + best
	return n.critical
}

func (s *Scheduler) dispatchBatch(ctx context.Context, names []string) {
	s.mu.Lock()
	s.inFlight++
	for _, name := range names {
		s.nodes[name].state = stateRunning
	}
	s.mu.Unlock()

	go func() {
		for _, name := range names {
			s.runOne(ctx, name)
		}
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()
}

func (s *Scheduler) runOne(ctx context.Context, name string) {
	s.mu.Lock()
	n := s.nodes[name]
	deps := s.dependencyResults(name)
	s.mu.Unlock()

	start := time.Now()
	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.NewTaskError(
					fmt.Sprintf("task %q panicked", name),
					fmt.Sprintf("%v", r),
					"fix the task body; a panic is always a bug in the task, not in its inputs",
					nil,
				)
			}
		}()
		return n.spec.Worker(ctx, deps)
	}()
	duration := time.Since(start)

	select {
	case s.resultsCh <- taskOutcome{name: name, result: result, err: err, duration: duration}:
	case <-ctx.Done():
	}
}

func (s *Scheduler) dependencyResults(name string) Results {
	out := make(Results)
	for dep, dn := range s.nodes {
		for _, dependent := range dn.dependents {
			if dependent == name {
				out[dep] = dn.result
			}
		}
	}
	return out
}

func (s *Scheduler) awaitOneCompletion(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.NewTaskError("scheduler run", "context cancelled", "investigate why the run was cancelled", ctx.Err())
	case out := <-s.resultsCh:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.completeLocked(out)
	}
}

// completeLocked must be called with s.mu held.
func (s *Scheduler) completeLocked(out taskOutcome) error {
	n, ok := s.nodes[out.name]
	if !ok {
		return nil
	}
	s.weights.record(out.name, out.duration.Seconds())
	metrics.ObserveTaskDuration(out.duration.Seconds())

	if out.err != nil {
		n.state = stateFailed
		metrics.RecordTaskFailed()
		s.log.Error("task failed", "task", out.name, "error", out.err)
		if s.html != nil {
			s.html.Record(htmllog.LevelError, "task failed: "+out.name, out.err.Error())
		}
		if s.firstErr == nil {
			s.firstErr = out.err
		}
		return nil
	}

	n.result = out.result
	n.state = stateDone
	s.remaining--
	metrics.RecordTaskCompleted()
	s.log.Info("task completed", "task", out.name, "duration", out.duration)
	if s.html != nil {
		s.html.Record(htmllog.LevelInfo, "task completed: "+out.name, "")
	}

	for _, dep := range n.dependents {
		dn, ok := s.nodes[dep]
		if !ok {
			continue
		}
		dn.waiting--
		if dn.waiting == 0 {
			s.markReady(dep)
		}
	}
	return nil
}

func (s *Scheduler) runReadyOwners(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.readyOwners) == 0 || s.firstErr != nil {
			s.mu.Unlock()
			return
		}
		name := s.readyOwners[0]
		s.readyOwners = s.readyOwners[1:]
		n := s.nodes[name]
		n.state = stateRunning
		deps := s.dependencyResults(name)
		s.mu.Unlock()

		start := time.Now()
		result, err := func() (result any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = errors.NewTaskError(
						fmt.Sprintf("owner task %q panicked", name),
						fmt.Sprintf("%v", r),
						"fix the task body; a panic always aborts the run immediately",
						nil,
					)
				}
			}()
			return n.spec.Owner(ctx, s, deps)
		}()
		duration := time.Since(start)

		s.mu.Lock()
		err2 := s.completeLocked(taskOutcome{name: name, result: result, err: err, duration: duration})
		s.mu.Unlock()
		if err2 != nil {
			return
		}
		if err != nil {
			// owner failure stops running further owners at once; Run then
			// returns the error at its next check, as it does after a worker
			// failure, without waiting for batches still in flight.
			return
		}
	}
}

// Result returns the stored result of a completed task, or false if the
// task hasn't completed (or doesn't exist).
func (s *Scheduler) Result(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[name]
	if !ok || n.state != stateDone {
		return nil, false
	}
	return n.result, true
}
