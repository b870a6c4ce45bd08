// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus counters and histograms for the
// summon scheduler and file caches. Metrics are lazily registered on
// first use so commands that never touch a metrics-emitting subsystem
// don't pay Prometheus's registration cost.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type metricsSummon struct {
	once sync.Once

	// Scheduler
	tasksCompleted  prometheus.Counter
	tasksFailed     prometheus.Counter
	tasksRetried    prometheus.Counter
	placeholdersRes prometheus.Counter
	batchesRun      prometheus.Counter

	// Folder cache
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	filesAdded      prometheus.Counter
	filesModified   prometheus.Counter
	filesDeleted    prometheus.Counter

	// Archive index
	archivesIndexed prometheus.Counter
	archivesFailed  prometheus.Counter
	nestedArchives  prometheus.Counter

	// Durations
	taskDuration    prometheus.Histogram
	scanDuration    prometheus.Histogram
	hashDuration    prometheus.Histogram
	guessDuration   prometheus.Histogram
}

var m metricsSummon

func (m *metricsSummon) init() {
	m.once.Do(func() {
		m.tasksCompleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_sched_tasks_completed_total", Help: "Tasks completed by the scheduler"})
		m.tasksFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_sched_tasks_failed_total", Help: "Tasks that raised an uncaught error"})
		m.tasksRetried = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_sched_tasks_retried_total", Help: "Tasks re-queued after a placeholder resolved"})
		m.placeholdersRes = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_sched_placeholders_resolved_total", Help: "Placeholder tasks replaced with their real task"})
		m.batchesRun = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_sched_batches_run_total", Help: "Batches of packed tasks run by a worker"})

		m.cacheHits = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_foldercache_hits_total", Help: "Files found unchanged by mtime/size comparison"})
		m.cacheMisses = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_foldercache_misses_total", Help: "Files requiring a re-hash"})
		m.filesAdded = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_foldercache_files_added_total", Help: "Files newly observed during a scan"})
		m.filesModified = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_foldercache_files_modified_total", Help: "Files whose mtime/size changed since last scan"})
		m.filesDeleted = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_foldercache_files_deleted_total", Help: "Cached files no longer present on disk"})

		m.archivesIndexed = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_archiveindex_archives_indexed_total", Help: "Archives successfully indexed"})
		m.archivesFailed = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_archiveindex_archives_failed_total", Help: "Archives whose indexing raised a captured plugin error"})
		m.nestedArchives = prometheus.NewCounter(prometheus.CounterOpts{Name: "summon_archiveindex_nested_archives_total", Help: "Archives discovered nested inside another archive"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
		m.taskDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "summon_sched_task_seconds", Help: "Wall time per scheduled task", Buckets: buckets})
		m.scanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "summon_foldercache_scan_seconds", Help: "Wall time per folder scan sub-task", Buckets: buckets})
		m.hashDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "summon_archiveindex_hash_seconds", Help: "Wall time spent hashing one archive, recursive descent included", Buckets: buckets})
		m.guessDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "summon_installer_guess_seconds", Help: "Wall time spent guessing installers across all archives", Buckets: buckets})

		prometheus.MustRegister(
			m.tasksCompleted, m.tasksFailed, m.tasksRetried, m.placeholdersRes, m.batchesRun,
			m.cacheHits, m.cacheMisses, m.filesAdded, m.filesModified, m.filesDeleted,
			m.archivesIndexed, m.archivesFailed, m.nestedArchives,
			m.taskDuration, m.scanDuration, m.hashDuration, m.guessDuration,
		)
	})
}

// RecordTaskCompleted increments the completed-task counter.
func RecordTaskCompleted() { m.init(); m.tasksCompleted.Inc() }

// RecordTaskFailed increments the failed-task counter.
func RecordTaskFailed() { m.init(); m.tasksFailed.Inc() }

// RecordTaskRetried increments the retried-task counter.
func RecordTaskRetried() { m.init(); m.tasksRetried.Inc() }

// RecordPlaceholderResolved increments the placeholder-resolution counter.
func RecordPlaceholderResolved() { m.init(); m.placeholdersRes.Inc() }

// RecordBatchRun increments the batches-run counter.
func RecordBatchRun() { m.init(); m.batchesRun.Inc() }

// ObserveTaskDuration records how long a single scheduled task took.
func ObserveTaskDuration(seconds float64) { m.init(); m.taskDuration.Observe(seconds) }

// RecordCacheHit increments the folder-cache hit counter.
func RecordCacheHit() { m.init(); m.cacheHits.Inc() }

// RecordCacheMiss increments the folder-cache miss counter.
func RecordCacheMiss() { m.init(); m.cacheMisses.Inc() }

// RecordFileAdded increments the files-added counter.
func RecordFileAdded() { m.init(); m.filesAdded.Inc() }

// RecordFileModified increments the files-modified counter.
func RecordFileModified() { m.init(); m.filesModified.Inc() }

// RecordFileDeleted increments the files-deleted counter.
func RecordFileDeleted() { m.init(); m.filesDeleted.Inc() }

// ObserveScanDuration records how long one folder-scan sub-task took.
func ObserveScanDuration(seconds float64) { m.init(); m.scanDuration.Observe(seconds) }

// RecordArchiveIndexed increments the archives-indexed counter.
func RecordArchiveIndexed() { m.init(); m.archivesIndexed.Inc() }

// RecordArchiveFailed increments the archives-failed counter.
func RecordArchiveFailed() { m.init(); m.archivesFailed.Inc() }

// RecordNestedArchive increments the nested-archive counter.
func RecordNestedArchive() { m.init(); m.nestedArchives.Inc() }

// ObserveHashDuration records how long hashing one archive (recursive
// descent included) took.
func ObserveHashDuration(seconds float64) { m.init(); m.hashDuration.Observe(seconds) }

// ObserveGuessDuration records how long the installer guesser took across
// all archives in a run.
func ObserveGuessDuration(seconds float64) { m.init(); m.guessDuration.Observe(seconds) }
