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

// Package web implements spec §4.7/§4.8: live web retrieval with
// trust-scored extraction, and a persistent WebKB that auto-learns from
// fetched results.
//
// Grounded on original_source's document_store/web/providers.py
// (WebSearchProvider protocol, trust scoring by domain) and
// document_store/web/knowledge_base.py (dedup-by-url/content_hash, TTL
// expiry, access-metadata bump on retrieval). Article extraction uses
// github.com/go-shiori/go-readability in place of Python's trafilatura,
// following the pack's use of go-readability for the same purpose.
package web

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Result is one web hit, carrying the fields spec §4.7/§4.9 need to flow
// it into HybridRetriever as a tier-3 RetrievedItem.
type Result struct {
	URL         string
	Title       string
	Snippet     string
	FullText    string
	Author      string
	PublishedAt string
	Domain      string
	TrustScore  float64
	Provider    string
	Rank        int
}

// SnippetProvider returns short title/snippet/URL hits, e.g. a keyword
// search engine API.
type SnippetProvider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
	HealthCheck(ctx context.Context) bool
}

// ArticleExtractor fetches a URL and extracts its main article text.
type ArticleExtractor interface {
	Extract(ctx context.Context, rawURL string) (Result, error)
}

// TrustConfig configures domain-based trust scoring, per spec §4.7:
// trusted suffixes score 0.9, blocked domains score 0.0, else 0.5.
type TrustConfig struct {
	TrustedSuffixes []string
	BlockedDomains  []string
}

func DefaultTrustConfig() TrustConfig {
	return TrustConfig{TrustedSuffixes: []string{".gov", ".edu", ".org"}}
}

func (c TrustConfig) Score(domain string) float64 {
	domain = strings.ToLower(domain)
	for _, blocked := range c.BlockedDomains {
		if domain == strings.ToLower(blocked) {
			return 0.0
		}
	}
	for _, suffix := range c.TrustedSuffixes {
		if strings.HasSuffix(domain, strings.ToLower(suffix)) {
			return 0.9
		}
	}
	return 0.5
}

// RateLimiter is a sliding-window query counter: on breach, callers should
// block until the window resets rather than fail the call, per spec §4.7.
type RateLimiter struct {
	mu            sync.Mutex
	maxPerMinute  int
	windowStart   time.Time
	countInWindow int
	now           func() time.Time
}

func NewRateLimiter(maxPerMinute int) *RateLimiter {
	return &RateLimiter{maxPerMinute: maxPerMinute, now: time.Now, windowStart: time.Now()}
}

// Wait blocks (via ctx-aware sleep) until a slot is available, then
// consumes it.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		now := r.now()
		if now.Before(r.windowStart) || now.Sub(r.windowStart) >= time.Minute {
			r.windowStart = now
			r.countInWindow = 0
		}
		if r.countInWindow < r.maxPerMinute {
			r.countInWindow++
			r.mu.Unlock()
			return nil
		}
		resetAt := r.windowStart.Add(time.Minute)
		r.mu.Unlock()

		wait := resetAt.Sub(now)
		if wait <= 0 {
			continue
		}
		if wait > 100*time.Millisecond {
			wait = 100 * time.Millisecond
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Provider composes a preferred ArticleExtractor with a SnippetProvider
// fallback, per spec §4.7: URL queries go straight to extraction; plain
// text queries resolve candidate URLs via the snippet provider first.
type Provider struct {
	extractor ArticleExtractor
	snippet   SnippetProvider
	trust     TrustConfig
	limiter   *RateLimiter
}

func NewProvider(extractor ArticleExtractor, snippet SnippetProvider, trust TrustConfig, maxQueriesPerMinute int) *Provider {
	return &Provider{
		extractor: extractor,
		snippet:   snippet,
		trust:     trust,
		limiter:   NewRateLimiter(maxQueriesPerMinute),
	}
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	if p.snippet != nil {
		return p.snippet.HealthCheck(ctx)
	}
	return p.extractor != nil
}

// Search implements spec §4.7's provider protocol.
func (p *Provider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	if isURL(query) {
		result, err := p.extractor.Extract(ctx, query)
		if err != nil {
			return nil, err
		}
		p.scoreTrust(&result)
		return []Result{result}, nil
	}

	snippets, err := p.snippet.Search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(snippets))
	for _, s := range snippets {
		full, err := p.extractor.Extract(ctx, s.URL)
		if err != nil {
			// preserve snippet fallback if extraction fails, per spec §4.7
			p.scoreTrust(&s)
			results = append(results, s)
			continue
		}
		full.Rank = s.Rank
		full.Snippet = s.Snippet
		p.scoreTrust(&full)
		results = append(results, full)
	}
	return results, nil
}

func (p *Provider) scoreTrust(r *Result) {
	if r.Domain == "" {
		r.Domain = domainOf(r.URL)
	}
	r.TrustScore = p.trust.Score(r.Domain)
}

func isURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

func domainOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
