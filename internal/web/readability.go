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
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// ReadabilityExtractor implements ArticleExtractor via go-readability,
// the Go ecosystem's equivalent of Python's trafilatura (the primary
// extractor original_source's WebSearchConfig names).
type ReadabilityExtractor struct {
	client  *http.Client
	timeout time.Duration
}

func NewReadabilityExtractor(timeout time.Duration) *ReadabilityExtractor {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ReadabilityExtractor{client: &http.Client{Timeout: timeout}, timeout: timeout}
}

func (e *ReadabilityExtractor) Extract(ctx context.Context, rawURL string) (Result, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %q: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch %q: status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return Result{}, fmt.Errorf("extract article from %q: %w", rawURL, err)
	}

	published := ""
	if article.PublishedTime != nil {
		published = article.PublishedTime.Format(time.RFC3339)
	}

	return Result{
		URL:         rawURL,
		Title:       article.Title,
		FullText:    article.TextContent,
		Author:      article.Byline,
		PublishedAt: published,
		Domain:      parsed.Hostname(),
		Provider:    "readability",
	}, nil
}

var _ ArticleExtractor = (*ReadabilityExtractor)(nil)
