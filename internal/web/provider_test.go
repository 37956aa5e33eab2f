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
)

func TestTrustConfigScoresTrustedBlockedAndDefault(t *testing.T) {
	cfg := DefaultTrustConfig()
	cfg.BlockedDomains = []string{"spam.example.com"}

	assert.Equal(t, 0.9, cfg.Score("docs.python.org"))
	assert.Equal(t, 0.9, cfg.Score("university.edu"))
	assert.Equal(t, 0.0, cfg.Score("spam.example.com"))
	assert.Equal(t, 0.5, cfg.Score("random-blog.com"))
}

func TestRateLimiterBlocksOverCapacityUntilWindowResets(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := NewRateLimiter(1)
	limiter.now = func() time.Time { return clock }

	ctx := context.Background()
	require.NoError(t, limiter.Wait(ctx))

	done := make(chan error, 1)
	go func() { done <- limiter.Wait(ctx) }()

	select {
	case <-done:
		t.Fatal("second Wait should block while window has not elapsed")
	case <-time.After(50 * time.Millisecond):
	}

	limiter.mu.Lock()
	clock = clock.Add(time.Minute)
	limiter.mu.Unlock()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not unblock after window reset")
	}
}

func TestRateLimiterWaitReturnsContextError(t *testing.T) {
	limiter := NewRateLimiter(1)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, limiter.Wait(ctx))
	cancel()
	err := limiter.Wait(ctx)
	assert.Error(t, err)
}

func TestIsURLDistinguishesURLsFromPlainText(t *testing.T) {
	assert.True(t, isURL("https://example.com/article"))
	assert.False(t, isURL("what is retrieval augmented generation"))
}

type fakeExtractor struct {
	results map[string]Result
	err     error
}

func (f *fakeExtractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	if f.err != nil {
		return Result{}, f.err
	}
	r, ok := f.results[rawURL]
	if !ok {
		return Result{}, assertErr("no fixture for " + rawURL)
	}
	return r, nil
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

type fakeSnippetProvider struct {
	hits []Result
}

func (f *fakeSnippetProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	return f.hits, nil
}

func (f *fakeSnippetProvider) HealthCheck(ctx context.Context) bool { return true }

func TestProviderSearchExtractsDirectlyForURLQuery(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]Result{
		"https://example.gov/report": {URL: "https://example.gov/report", FullText: "content", Domain: "example.gov"},
	}}
	p := NewProvider(extractor, &fakeSnippetProvider{}, DefaultTrustConfig(), 100)

	results, err := p.Search(context.Background(), "https://example.gov/report", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "content", results[0].FullText)
	assert.Equal(t, 0.9, results[0].TrustScore)
}

func TestProviderSearchFallsBackToSnippetWhenExtractionFails(t *testing.T) {
	extractor := &fakeExtractor{err: assertErr("boom")}
	snippet := &fakeSnippetProvider{hits: []Result{
		{URL: "https://blog.example.com/post", Snippet: "a snippet", Rank: 1},
	}}
	p := NewProvider(extractor, snippet, DefaultTrustConfig(), 100)

	results, err := p.Search(context.Background(), "some query", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a snippet", results[0].Snippet)
	assert.Equal(t, 0.5, results[0].TrustScore)
}

func TestRetrieverAdapterMapsWebResultsToRetrievedItems(t *testing.T) {
	extractor := &fakeExtractor{results: map[string]Result{
		"https://example.org/paper": {
			URL: "https://example.org/paper", Title: "A Paper", FullText: "body text",
			Domain: "example.org", Author: "Jane Doe", Provider: "readability",
		},
	}}
	p := NewProvider(extractor, &fakeSnippetProvider{}, DefaultTrustConfig(), 100)
	adapter := NewRetrieverAdapter(p)

	items, err := adapter.Search(context.Background(), "https://example.org/paper", 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "body text", items[0].Text)
	assert.Equal(t, "https://example.org/paper", items[0].Metadata["url"])
	assert.Equal(t, "A Paper", items[0].Metadata["title"])
}
