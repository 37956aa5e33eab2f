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
	"sort"
)

// CrossEncoder reranks a set of candidates against a query. Spec frames
// the original's cross-encoder step as an opaque pairwise scorer whose
// reference implementation simply reuses the existing fused score; this
// interface leaves room for a real pairwise model without changing
// HybridRetriever's call shape.
type CrossEncoder interface {
	Rerank(ctx context.Context, query string, items []RetrievedItem) ([]RetrievedItem, error)
}

// NoopCrossEncoder reuses each item's existing score, stable-sorted
// descending. This is the default, matching original_source's
// _cross_encode_rerank (a simplified resort by existing score).
type NoopCrossEncoder struct{}

func (NoopCrossEncoder) Rerank(_ context.Context, _ string, items []RetrievedItem) ([]RetrievedItem, error) {
	out := make([]RetrievedItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

var _ CrossEncoder = NoopCrossEncoder{}
