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
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kbrag/kbrag/internal/embed"
	"github.com/kbrag/kbrag/internal/vectorindex"
)

// TwoStepRetriever implements spec §4.5: a cheap local-space approximate
// search followed by a precise premium-space rerank, with a local-score
// fallback if the premium rerank fails.
//
// Grounded on original_source's TwoStepRetrieval.retrieve: step 1 embeds
// the query locally and fetches top_k_approximate candidates, step 2
// re-embeds candidates and the query in premium space and ranks by cosine
// similarity, falling back to the approximate scores (ranking_method
// "local_approximate") on any premium failure.
type TwoStepRetriever struct {
	embedder   *embed.Service
	index      vectorindex.Provider
	collection string
}

func NewTwoStepRetriever(embedder *embed.Service, index vectorindex.Provider, collection string) *TwoStepRetriever {
	return &TwoStepRetriever{embedder: embedder, index: index, collection: collection}
}

// Retrieve runs the two-step process for topKFinal results, considering
// topKApproximate local candidates. space selects the premium embedder
// backend; empty uses the service's default.
func (r *TwoStepRetriever) Retrieve(ctx context.Context, query string, topKApproximate, topKFinal int, filters map[string]any, space string) ([]RetrievedItem, error) {
	queryVec, err := r.embedder.EmbedQuery(ctx, query, space)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []vectorindex.Result
	if len(filters) > 0 {
		results, err = r.index.SearchWithFilter(ctx, r.collection, queryVec, topKApproximate, filters)
	} else {
		results, err = r.index.Search(ctx, r.collection, queryVec, topKApproximate)
	}
	if err != nil {
		return nil, fmt.Errorf("approximate search: %w", err)
	}
	if len(results) == 0 {
		slog.Warn("two-step retrieval found no approximate candidates", "query", truncate(query, 60))
		return nil, nil
	}

	candidateTexts := make([]string, len(results))
	for i, c := range results {
		candidateTexts[i] = textOf(c.Metadata)
	}

	candidateVecs, queryPremiumVec, err := r.embedder.ReEmbed(ctx, candidateTexts, query, space)

	var scores []float64
	var rankingMethod string

	if err != nil {
		slog.Warn("premium re-embedding failed, falling back to local scores", "error", err)
		scores = make([]float64, len(results))
		for i, c := range results {
			scores[i] = float64(c.Score)
		}
		rankingMethod = "local_approximate"
	} else {
		scores = make([]float64, len(results))
		for i, v := range candidateVecs {
			scores[i] = cosineSimilarity(queryPremiumVec, v)
		}
		backendName := space
		if backendName == "" {
			backendName = "premium"
		}
		rankingMethod = backendName + "_re_embedding"
	}

	order := make([]int, len(results))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool { return scores[order[i]] > scores[order[j]] })

	if topKFinal > len(order) {
		topKFinal = len(order)
	}

	items := make([]RetrievedItem, 0, topKFinal)
	for rank, idx := range order[:topKFinal] {
		c := results[idx]
		items = append(items, RetrievedItem{
			ID:            c.ID,
			Text:          textOf(c.Metadata),
			Score:         scores[idx],
			Rank:          rank + 1,
			Tier:          TierLocal,
			ChunkIndex:    chunkIndexOf(c.Metadata),
			RankingMethod: rankingMethod,
			Metadata:      c.Metadata,
		})
	}

	return items, nil
}

func textOf(metadata map[string]any) string {
	if v, ok := metadata["content"].(string); ok {
		return v
	}
	if v, ok := metadata["text"].(string); ok {
		return v
	}
	return ""
}

func chunkIndexOf(metadata map[string]any) int {
	switch v := metadata["chunk_index"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
