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

package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksTemporalDetectsKeywordsAndYears(t *testing.T) {
	assert.True(t, looksTemporal("what's the latest news on this"))
	assert.True(t, looksTemporal("what happened in 2026"))
	assert.False(t, looksTemporal("explain the chunking algorithm"))
}

func TestWithRanksAssignsOneIndexed(t *testing.T) {
	items := []RetrievedItem{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	ranked := withRanks(items)
	for i, item := range ranked {
		assert.Equal(t, i+1, item.Rank)
	}
}

func TestStringFiltersKeepsOnlyStrings(t *testing.T) {
	filters := map[string]any{"source_path": "a.md", "count": 3}
	out := stringFilters(filters)
	assert.Equal(t, "a.md", out["source_path"])
	assert.Equal(t, "", out["count"])
}

func TestNoopCrossEncoderSortsByScoreDescending(t *testing.T) {
	items := []RetrievedItem{{ID: "a", Score: 0.2}, {ID: "b", Score: 0.9}}
	out, err := NoopCrossEncoder{}.Rerank(nil, "q", items)
	assert.NoError(t, err)
	assert.Equal(t, "b", out[0].ID)
}
