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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTrackerTallies(t *testing.T) {
	pt := newProgressTracker()
	pt.setTotal(3)
	pt.incIndexed()
	pt.incProcessed()
	pt.incSkipped()
	pt.incProcessed()
	pt.incFailed()
	pt.incProcessed()

	snap := pt.snapshot()
	assert.Equal(t, 3, snap.TotalFiles)
	assert.Equal(t, 3, snap.ProcessedFiles)
	assert.Equal(t, 1, snap.IndexedFiles)
	assert.Equal(t, 1, snap.SkippedFiles)
	assert.Equal(t, 1, snap.FailedFiles)
	assert.True(t, snap.Done)
}

func TestProgressTrackerNotDoneUntilAllProcessed(t *testing.T) {
	pt := newProgressTracker()
	pt.setTotal(5)
	pt.incProcessed()

	snap := pt.snapshot()
	assert.False(t, snap.Done)
}
