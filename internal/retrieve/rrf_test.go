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
	"github.com/stretchr/testify/require"
)

func TestRRFAccumulatesAcrossLists(t *testing.T) {
	listA := RankedList{Tier: TierLocal, Items: []RetrievedItem{
		{ID: "x", Rank: 1}, {ID: "y", Rank: 2},
	}}
	listB := RankedList{Tier: TierLocal, Items: []RetrievedItem{
		{ID: "x", Rank: 3}, {ID: "z", Rank: 1},
	}}

	fused := RRFFuse([]RankedList{listA, listB}, 60)
	require.Len(t, fused, 3)

	var xScore float64
	for _, item := range fused {
		if item.ID == "x" {
			xScore = item.Score
		}
	}
	expected := 1.0/61.0 + 1.0/63.0
	assert.InDelta(t, expected, xScore, 1e-9)
}

func TestRRFMonotonicity(t *testing.T) {
	listA := RankedList{Tier: TierLocal, Items: []RetrievedItem{{ID: "x", Rank: 1}, {ID: "y", Rank: 2}}}
	listB := RankedList{Tier: TierLocal, Items: []RetrievedItem{{ID: "y", Rank: 1}}}

	before := RRFFuse([]RankedList{listA}, 60)
	after := RRFFuse([]RankedList{listA, listB}, 60)

	var beforeY, afterY float64
	for _, item := range before {
		if item.ID == "y" {
			beforeY = item.Score
		}
	}
	for _, item := range after {
		if item.ID == "y" {
			afterY = item.Score
		}
	}
	assert.GreaterOrEqual(t, afterY, beforeY)
}

func TestRRFTierWeightFavorsTier1(t *testing.T) {
	listLocal := RankedList{Tier: TierLocal, Items: []RetrievedItem{{ID: "a", Rank: 1}}}
	listWeb := RankedList{Tier: TierWeb, Items: []RetrievedItem{{ID: "b", Rank: 1}}}

	fused := RRFFuse([]RankedList{listLocal, listWeb}, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}

func TestRRFTieBreakByChunkIndexThenID(t *testing.T) {
	list := RankedList{Tier: TierLocal, Items: []RetrievedItem{
		{ID: "z", Rank: 1, ChunkIndex: 5},
		{ID: "a", Rank: 1, ChunkIndex: 2},
	}}
	fused := RRFFuse([]RankedList{list}, 60)
	require.Len(t, fused, 2)
	assert.Equal(t, "a", fused[0].ID)
}
