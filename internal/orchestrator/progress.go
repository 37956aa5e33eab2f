// Copyright 2025 Kadir Pekel
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

package orchestrator

import (
	"sync/atomic"
	"time"
)

// progressTracker tallies IngestDirectory's processed/indexed/skipped/failed
// counts and derives an ETA from the rate observed so far. The tracker is
// local to one IngestDirectory call; its final snapshot is returned in
// DirectoryReport.Progress, and no snapshot is exposed while the run is
// still in progress.
//
// Grounded on the teacher's pkg/context.ProgressTracker, trimmed to the
// counters IngestDirectory already tracks and stripped of its stdout
// display loop: this tracker is read through the HTTP API, not a terminal.
type progressTracker struct {
	total     int64
	processed int64
	indexed   int64
	skipped   int64
	failed    int64
	startTime time.Time
}

func newProgressTracker() *progressTracker {
	return &progressTracker{startTime: time.Now()}
}

func (pt *progressTracker) setTotal(n int) { atomic.StoreInt64(&pt.total, int64(n)) }
func (pt *progressTracker) incProcessed()  { atomic.AddInt64(&pt.processed, 1) }
func (pt *progressTracker) incIndexed()    { atomic.AddInt64(&pt.indexed, 1) }
func (pt *progressTracker) incSkipped()    { atomic.AddInt64(&pt.skipped, 1) }
func (pt *progressTracker) incFailed()     { atomic.AddInt64(&pt.failed, 1) }

// ProgressSnapshot is a point-in-time read of a progressTracker.
type ProgressSnapshot struct {
	TotalFiles     int
	ProcessedFiles int
	IndexedFiles   int
	SkippedFiles   int
	FailedFiles    int
	ElapsedSeconds float64
	ETASeconds     float64
	Done           bool
}

func (pt *progressTracker) snapshot() ProgressSnapshot {
	total := atomic.LoadInt64(&pt.total)
	processed := atomic.LoadInt64(&pt.processed)
	elapsed := time.Since(pt.startTime)

	var eta float64
	if processed > 0 && elapsed.Seconds() > 0 {
		filesPerSec := float64(processed) / elapsed.Seconds()
		remaining := total - processed
		if filesPerSec > 0 && remaining > 0 {
			eta = float64(remaining) / filesPerSec
		}
	}

	return ProgressSnapshot{
		TotalFiles:     int(total),
		ProcessedFiles: int(processed),
		IndexedFiles:   int(atomic.LoadInt64(&pt.indexed)),
		SkippedFiles:   int(atomic.LoadInt64(&pt.skipped)),
		FailedFiles:    int(atomic.LoadInt64(&pt.failed)),
		ElapsedSeconds: elapsed.Seconds(),
		ETASeconds:     eta,
		Done:           total > 0 && processed >= total,
	}
}
