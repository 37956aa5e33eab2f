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

// Package retrieve implements the two-step dense retriever and the
// hybrid (dense + sparse + web) fusion retriever.
//
// Algorithm grounded on original_source's
// document_store/search/two_step_retrieval.py and
// document_store/search/hybrid_retriever.py; serving shape grounded on the
// teacher's v2/rag/search.go error handling and retry conventions.
package retrieve

// Tier identifies which ranked list a RetrievedItem came from, used both
// for RRF's per-tier weight and the tie-break order.
type Tier int

const (
	TierLocal Tier = 1
	TierWebKB Tier = 2
	TierWeb   Tier = 3
)

// RetrievedItem is the uniform shape flowing through the retrieval
// pipeline, per spec §3: {id, text, score, rank, tier, ranking_method,
// metadata}.
type RetrievedItem struct {
	ID            string
	Text          string
	Score         float64
	Rank          int
	Tier          Tier
	ChunkIndex    int
	RankingMethod string
	Metadata      map[string]any
}

// RankedList is one tier's output before fusion: items already sorted by
// descending score, Rank set to their 1-indexed position.
type RankedList struct {
	Tier  Tier
	Items []RetrievedItem
}
