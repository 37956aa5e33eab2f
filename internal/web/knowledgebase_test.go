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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrag/kbrag/internal/embed"
	"github.com/kbrag/kbrag/internal/retrieve"
	"github.com/kbrag/kbrag/internal/vectorindex"
)

func newTestKnowledgeBase(t *testing.T) *KnowledgeBase {
	t.Helper()
	index, err := vectorindex.NewChromemProvider(vectorindex.ChromemConfig{})
	require.NoError(t, err)

	backend := &fakeEmbedBackend{dim: 4}
	embedder := embed.NewService(backend, nil, "")

	return NewKnowledgeBase(index, embedder, DefaultKnowledgeBaseConfig())
}

type fakeEmbedBackend struct {
	dim int
}

func (f *fakeEmbedBackend) Name() string      { return "fake" }
func (f *fakeEmbedBackend) Dimension() int    { return f.dim }
func (f *fakeEmbedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1.0
		out[i] = v
	}
	return out, nil
}

func webItem(url, domain, title, text string) retrieve.RetrievedItem {
	return retrieve.RetrievedItem{
		Text:  text,
		Score: 0.8,
		Metadata: map[string]any{
			"url":    url,
			"domain": domain,
			"title":  title,
		},
	}
}

func TestKnowledgeBaseIngestThenExists(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	err := kb.Ingest(ctx, webItem("https://a.example.com/1", "a.example.com", "Title A", "full article text"), "query")
	require.NoError(t, err)

	doc, ok := kb.Exists(ctx, "https://a.example.com/1")
	require.True(t, ok)
	assert.Equal(t, "Title A", doc.Title)
}

func TestKnowledgeBaseIngestDeduplicatesByURL(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	item := webItem("https://a.example.com/1", "a.example.com", "Title A", "full article text")
	require.NoError(t, kb.Ingest(ctx, item, "query"))
	require.NoError(t, kb.Ingest(ctx, item, "query"))

	results, err := kb.index.Search(ctx, knowledgeBaseCollection, nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestKnowledgeBaseIngestingSameURLTwiceBumpsTimesRetrieved(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	item := webItem("https://a.example.com/1", "a.example.com", "Title A", "full article text")
	require.NoError(t, kb.Ingest(ctx, item, "query"))
	require.NoError(t, kb.Ingest(ctx, item, "query"))

	doc, ok := kb.Exists(ctx, "https://a.example.com/1")
	require.True(t, ok)
	assert.Equal(t, 1, doc.TimesRetrieved)
	assert.False(t, doc.LastRetrieved.IsZero())
}

func TestKnowledgeBaseSearchHitBumpsTimesRetrieved(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	item := webItem("https://a.example.com/1", "a.example.com", "Title A", "full article text")
	require.NoError(t, kb.Ingest(ctx, item, "query"))

	_, err := kb.Search(ctx, "full article text", 10)
	require.NoError(t, err)

	doc, ok := kb.Exists(ctx, "https://a.example.com/1")
	require.True(t, ok)
	assert.Equal(t, 1, doc.TimesRetrieved)
}

func TestKnowledgeBaseIngestDeduplicatesByContentHash(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	same := "identical body content"
	require.NoError(t, kb.Ingest(ctx, webItem("https://a.example.com/1", "a.example.com", "A", same), "q"))
	require.NoError(t, kb.Ingest(ctx, webItem("https://b.example.com/2", "b.example.com", "B", same), "q"))

	results, err := kb.index.Search(ctx, knowledgeBaseCollection, nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestKnowledgeBaseSearchExcludesExpiredEntries(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	vecs, err := kb.embedder.EmbedDocuments(ctx, []string{"stale content"})
	require.NoError(t, err)

	expired := Document{
		ID:       "expired-doc",
		URL:      "https://old.example.com/1",
		FullText: "stale content",
		ExpiryAt: time.Now().Add(-time.Hour),
	}
	require.NoError(t, kb.index.Upsert(ctx, knowledgeBaseCollection, expired.ID, vecs[0], expired.toMetadata()))

	items, err := kb.Search(ctx, "stale content", 10)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestKnowledgeBaseCleanupExpiredRemovesOnlyExpired(t *testing.T) {
	kb := newTestKnowledgeBase(t)
	ctx := context.Background()

	require.NoError(t, kb.Ingest(ctx, webItem("https://fresh.example.com/1", "fresh.example.com", "Fresh", "fresh text"), "q"))

	vecs, err := kb.embedder.EmbedDocuments(ctx, []string{"old text"})
	require.NoError(t, err)
	expired := Document{ID: "old-doc", URL: "https://old.example.com/1", FullText: "old text", ExpiryAt: time.Now().Add(-time.Hour)}
	require.NoError(t, kb.index.Upsert(ctx, knowledgeBaseCollection, expired.ID, vecs[0], expired.toMetadata()))

	removed, err := kb.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	results, err := kb.index.Search(ctx, knowledgeBaseCollection, nil, 10)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestTruncateHeadTailKeepsBothEnds(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	out := truncateHeadTail(string(long), 20)
	assert.Contains(t, out, " ... ")
	assert.Less(t, len(out), 100)
}

func TestCitationBuildsAuthorYearTitleURL(t *testing.T) {
	meta := map[string]any{"author": "Jane Doe", "year": "2026", "title": "A Paper"}
	got := citation(meta, "https://example.com/paper")
	assert.Equal(t, "Jane Doe (2026) A Paper https://example.com/paper", got)
}
