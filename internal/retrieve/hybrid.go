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
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbrag/kbrag/internal/keywordindex"
)

// WebMode controls when HybridRetriever consults live web search, per
// spec §4.9.
type WebMode string

const (
	WebModeParallel        WebMode = "parallel"
	WebModeOnLowConfidence WebMode = "on_low_confidence"
)

// WebSearcher is the subset of WebProvider HybridRetriever needs: a
// ranked-item search.
type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]RetrievedItem, error)
}

// WebKBSearcher is the subset of WebKB HybridRetriever needs.
type WebKBSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]RetrievedItem, error)
	Ingest(ctx context.Context, item RetrievedItem, query string) error
}

// HybridOptions are the per-query flags spec §4.9 names.
type HybridOptions struct {
	TopK                   int
	Filters                map[string]any
	EnableWebSearch        bool
	WebMode                WebMode
	PremiumSpace           string
	LowConfidenceThreshold float64

	// EnableHyDE embeds an LLM-drafted hypothetical answer instead of the
	// raw query for the dense first-stage search. Off by default.
	EnableHyDE bool

	// EnableMultiQuery fans the dense search out across LLM-generated query
	// paraphrases, fusing every variation's results with RRF. Off by
	// default. MultiQueryVariations defaults to 3 when unset.
	EnableMultiQuery     bool
	MultiQueryVariations int
}

// HybridRetriever fuses the dense two-step retriever, the sparse keyword
// index, and optional web tiers via reciprocal rank fusion.
type HybridRetriever struct {
	twoStep       *TwoStepRetriever
	keyword       keywordindex.Index
	webKB         WebKBSearcher
	web           WebSearcher
	crossEncoder  CrossEncoder
	hyde          *HyDE
	queryExpander QueryExpander
	rrfK          int
}

func NewHybridRetriever(twoStep *TwoStepRetriever, keyword keywordindex.Index, webKB WebKBSearcher, web WebSearcher) *HybridRetriever {
	return &HybridRetriever{
		twoStep:      twoStep,
		keyword:      keyword,
		webKB:        webKB,
		web:          web,
		crossEncoder: NoopCrossEncoder{},
		rrfK:         DefaultRRFK,
	}
}

// SetCrossEncoder overrides the default no-op cross-encoder.
func (h *HybridRetriever) SetCrossEncoder(ce CrossEncoder) {
	h.crossEncoder = ce
}

// SetHyDE enables HyDE-based dense search when HybridOptions.EnableHyDE is
// set on a given query.
func (h *HybridRetriever) SetHyDE(hyde *HyDE) {
	h.hyde = hyde
}

// SetQueryExpander enables multi-query expansion when
// HybridOptions.EnableMultiQuery is set on a given query.
func (h *HybridRetriever) SetQueryExpander(e QueryExpander) {
	h.queryExpander = e
}

var temporalKeywords = []string{"latest", "today", "current", "recent", "now"}

func looksTemporal(query string) bool {
	lower := strings.ToLower(query)
	for _, kw := range temporalKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	currentYear := time.Now().Year()
	for y := currentYear - 1; y <= currentYear+1; y++ {
		if strings.Contains(lower, strconv.Itoa(y)) {
			return true
		}
	}
	return false
}

// Retrieve runs the full algorithm described in spec §4.9: dense + sparse
// tier-1 fan-out, optional WebKB/web tiers, RRF fusion, cross-encoder
// rerank of the top 20, truncated to top_k.
func (h *HybridRetriever) Retrieve(ctx context.Context, query string, opts HybridOptions) ([]RetrievedItem, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = 10
	}
	fanOut := topK * 3

	denseQuery := query
	if opts.EnableHyDE && h.hyde != nil {
		if doc, err := h.hyde.GenerateHypotheticalDocument(ctx, query); err != nil {
			slog.Warn("HyDE hypothetical document generation failed, searching with the raw query instead", "error", err)
		} else {
			denseQuery = doc
		}
	}

	var expansions []string
	if opts.EnableMultiQuery && h.queryExpander != nil {
		n := opts.MultiQueryVariations
		if n <= 0 {
			n = 3
		}
		variations, err := h.queryExpander.Expand(ctx, query, n)
		if err != nil {
			slog.Warn("multi-query expansion failed, continuing with the original query only", "error", err)
		} else {
			expansions = variations
		}
	}

	var denseItems, sparseItems, webKBItems, webItems []RetrievedItem
	expansionItems := make([][]RetrievedItem, len(expansions))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		items, err := h.twoStep.Retrieve(gctx, denseQuery, fanOut, fanOut, opts.Filters, opts.PremiumSpace)
		if err != nil {
			return err
		}
		denseItems = items
		return nil
	})

	for i, variation := range expansions {
		i, variation := i, variation
		g.Go(func() error {
			items, err := h.twoStep.Retrieve(gctx, variation, fanOut, fanOut, opts.Filters, opts.PremiumSpace)
			if err != nil {
				slog.Warn("multi-query variation search failed, skipping", "variation", variation, "error", err)
				return nil
			}
			expansionItems[i] = items
			return nil
		})
	}

	g.Go(func() error {
		filters := stringFilters(opts.Filters)
		hits, err := h.keyword.Search(query, fanOut, filters)
		if err != nil {
			slog.Warn("keyword search failed, continuing with dense results only", "error", err)
			return nil
		}
		sparseItems = make([]RetrievedItem, len(hits))
		for i, hit := range hits {
			sparseItems[i] = RetrievedItem{
				ID:            hit.ID,
				Text:          hit.Text,
				Score:         hit.Score,
				Rank:          i + 1,
				Tier:          TierLocal,
				ChunkIndex:    chunkIndexOf(hit.Metadata),
				RankingMethod: "bm25",
				Metadata:      hit.Metadata,
			}
		}
		return nil
	})

	if opts.EnableWebSearch && h.webKB != nil {
		g.Go(func() error {
			items, err := h.webKB.Search(gctx, query, topK)
			if err != nil {
				slog.Warn("web knowledge base search failed", "error", err)
				return nil
			}
			webKBItems = items
			return nil
		})
	}

	shouldLiveSearch := opts.EnableWebSearch && h.web != nil && opts.WebMode == WebModeParallel
	if opts.EnableWebSearch && h.web != nil && opts.WebMode == WebModeOnLowConfidence {
		// Decided after tier 1 completes; deferred below.
		shouldLiveSearch = false
	}

	if shouldLiveSearch {
		g.Go(func() error {
			items, err := h.web.Search(gctx, query, topK)
			if err != nil {
				slog.Warn("live web search failed", "error", err)
				return nil
			}
			webItems = items
			if h.webKB != nil {
				for _, item := range items {
					if err := h.webKB.Ingest(gctx, item, query); err != nil {
						slog.Warn("failed to auto-learn web result into knowledge base", "error", err)
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.EnableWebSearch && h.web != nil && opts.WebMode == WebModeOnLowConfidence {
		topLocalScore := 0.0
		if len(denseItems) > 0 {
			topLocalScore = denseItems[0].Score
		}
		if topLocalScore < opts.LowConfidenceThreshold || looksTemporal(query) {
			items, err := h.web.Search(ctx, query, topK)
			if err != nil {
				slog.Warn("low-confidence live web search failed", "error", err)
			} else {
				webItems = items
				if h.webKB != nil {
					for _, item := range items {
						if err := h.webKB.Ingest(ctx, item, query); err != nil {
							slog.Warn("failed to auto-learn web result into knowledge base", "error", err)
						}
					}
				}
			}
		}
	}

	for i := range sparseItems {
		sparseItems[i].Rank = i + 1
	}

	lists := []RankedList{
		{Tier: TierLocal, Items: withRanks(denseItems)},
		{Tier: TierLocal, Items: withRanks(sparseItems)},
	}
	if len(webKBItems) > 0 {
		lists = append(lists, RankedList{Tier: TierWebKB, Items: withRanks(webKBItems)})
	}
	if len(webItems) > 0 {
		lists = append(lists, RankedList{Tier: TierWeb, Items: withRanks(webItems)})
	}
	for _, items := range expansionItems {
		if len(items) > 0 {
			lists = append(lists, RankedList{Tier: TierLocal, Items: withRanks(items)})
		}
	}

	fusedItems := RRFFuse(lists, h.rrfK)

	rerankWindow := fusedItems
	if len(rerankWindow) > 20 {
		rerankWindow = rerankWindow[:20]
	}

	reranked, err := h.crossEncoder.Rerank(ctx, query, rerankWindow)
	if err != nil {
		slog.Warn("cross-encoder rerank failed, using fused order", "error", err)
		reranked = rerankWindow
	}

	if len(fusedItems) > len(rerankWindow) {
		reranked = append(reranked, fusedItems[len(rerankWindow):]...)
	}

	if topK < len(reranked) {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

func withRanks(items []RetrievedItem) []RetrievedItem {
	out := make([]RetrievedItem, len(items))
	for i, item := range items {
		item.Rank = i + 1
		out[i] = item
	}
	return out
}

func stringFilters(filters map[string]any) map[string]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string]string, len(filters))
	for k, v := range filters {
		out[k] = toString(v)
	}
	return out
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	default:
		return ""
	}
}
