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

import "sort"

// DefaultRRFK is the default smoothing constant k in 1/(k+r).
const DefaultRRFK = 60

// tierWeight applies spec §4.9's per-tier multiplier to an RRF contribution.
func tierWeight(tier Tier) float64 {
	switch tier {
	case TierLocal:
		return 1.0
	case TierWebKB:
		return 0.9
	case TierWeb:
		return 0.7
	default:
		return 1.0
	}
}

type fused struct {
	item       RetrievedItem
	score      float64
	bestTier   Tier
	tier1Rank  int // 0 if absent from tier 1
}

// RRFFuse combines multiple ranked lists into one fused ranking, per spec
// §4.9 step 4: each item at 1-indexed rank r in list L contributes
// weight(L.Tier)/(k+r), accumulated across every list the item appears in.
// Ties are broken by: lower tier number, then lower original tier-1 rank,
// then lower chunk_index, then lexicographic id.
func RRFFuse(lists []RankedList, k int) []RetrievedItem {
	if k <= 0 {
		k = DefaultRRFK
	}

	byID := make(map[string]*fused)
	var order []string

	for _, list := range lists {
		w := tierWeight(list.Tier)
		for _, item := range list.Items {
			contribution := w / float64(k+item.Rank)

			f, ok := byID[item.ID]
			if !ok {
				f = &fused{item: item, bestTier: list.Tier}
				if list.Tier == TierLocal {
					f.tier1Rank = item.Rank
				}
				byID[item.ID] = f
				order = append(order, item.ID)
			}
			f.score += contribution
			if list.Tier < f.bestTier {
				f.bestTier = list.Tier
			}
			if list.Tier == TierLocal && (f.tier1Rank == 0 || item.Rank < f.tier1Rank) {
				f.tier1Rank = item.Rank
			}
		}
	}

	results := make([]RetrievedItem, 0, len(order))
	for _, id := range order {
		f := byID[id]
		f.item.Score = f.score
		f.item.Tier = f.bestTier
		results = append(results, f.item)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ta, tb := byID[a.ID].bestTier, byID[b.ID].bestTier
		if ta != tb {
			return ta < tb
		}
		ra, rb := byID[a.ID].tier1Rank, byID[b.ID].tier1Rank
		if ra != rb {
			// 0 means "absent from tier 1"; treat as worse than any real rank.
			if ra == 0 {
				return false
			}
			if rb == 0 {
				return true
			}
			return ra < rb
		}
		if a.ChunkIndex != b.ChunkIndex {
			return a.ChunkIndex < b.ChunkIndex
		}
		return a.ID < b.ID
	})

	return results
}
