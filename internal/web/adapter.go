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

package web

import (
	"context"

	"github.com/kbrag/kbrag/internal/retrieve"
)

// RetrieverAdapter exposes a Provider as a retrieve.WebSearcher, shaping
// web.Result into the RetrievedItem spec §3 requires of every retrieval
// tier.
type RetrieverAdapter struct {
	provider *Provider
}

func NewRetrieverAdapter(provider *Provider) *RetrieverAdapter {
	return &RetrieverAdapter{provider: provider}
}

func (a *RetrieverAdapter) Search(ctx context.Context, query string, maxResults int) ([]retrieve.RetrievedItem, error) {
	results, err := a.provider.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	items := make([]retrieve.RetrievedItem, len(results))
	for i, r := range results {
		items[i] = retrieve.RetrievedItem{
			ID:            deterministicDocID(r.URL),
			Text:          textOrSnippet(r),
			Score:         r.TrustScore,
			Rank:          i + 1,
			Tier:          retrieve.TierWeb,
			RankingMethod: "web_search:" + r.Provider,
			Metadata: map[string]any{
				"url":     r.URL,
				"domain":  r.Domain,
				"title":   r.Title,
				"author":  r.Author,
				"snippet": r.Snippet,
			},
		}
	}
	return items, nil
}

func textOrSnippet(r Result) string {
	if r.FullText != "" {
		return r.FullText
	}
	return r.Snippet
}

var _ retrieve.WebSearcher = (*RetrieverAdapter)(nil)
