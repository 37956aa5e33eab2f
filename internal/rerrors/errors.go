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

// Package rerrors defines the typed error taxonomy shared by every pipeline
// stage: extraction, chunking, indexing, retrieval, generation and caching.
package rerrors

import "fmt"

// InputError marks a request-shaped problem: empty query, path outside the
// configured root, unsupported file type. Never retried.
type InputError struct {
	Op      string
	Message string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input error in %s: %s", e.Op, e.Message)
}

func NewInputError(op, message string) *InputError {
	return &InputError{Op: op, Message: message}
}

// ExtractionError wraps a failure to pull text out of a source file.
type ExtractionError struct {
	Path   string
	Stage  string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s at stage %s: %s", e.Path, e.Stage, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func NewExtractionError(path, stage, reason string, err error) *ExtractionError {
	return &ExtractionError{Path: path, Stage: stage, Reason: reason, Err: err}
}

// ChunkingError wraps a failure while splitting extracted content.
type ChunkingError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking failed for %s: %s", e.Path, e.Reason)
}

func (e *ChunkingError) Unwrap() error { return e.Err }

func NewChunkingError(path, reason string, err error) *ChunkingError {
	return &ChunkingError{Path: path, Reason: reason, Err: err}
}

// IndexError wraps a failure in a vector or keyword index backend.
type IndexError struct {
	Backend string
	Op      string
	Err     error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index error (%s) during %s: %v", e.Backend, e.Op, e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

func NewIndexError(backend, op string, err error) *IndexError {
	return &IndexError{Backend: backend, Op: op, Err: err}
}

// SearchError wraps a retrieval-time failure. The query is truncated so logs
// and error strings never carry an unbounded amount of user content.
type SearchError struct {
	Query string
	Op    string
	Err   error
}

func (e *SearchError) Error() string {
	q := e.Query
	if len(q) > 50 {
		q = q[:50] + "..."
	}
	return fmt.Sprintf("search error during %s for query %q: %v", e.Op, q, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

func NewSearchError(query, op string, err error) *SearchError {
	return &SearchError{Query: query, Op: op, Err: err}
}

// DocumentStoreError wraps a failure in the orchestrator's ingest workflow.
type DocumentStoreError struct {
	Store string
	Op    string
	Err   error
}

func (e *DocumentStoreError) Error() string {
	return fmt.Sprintf("document store %s: %s failed: %v", e.Store, e.Op, e.Err)
}

func (e *DocumentStoreError) Unwrap() error { return e.Err }

func NewDocumentStoreError(store, op string, err error) *DocumentStoreError {
	return &DocumentStoreError{Store: store, Op: op, Err: err}
}

// BackendTransientError marks a backend fault that is expected to clear on
// its own: a dropped connection, a 503, a timeout. Retryable.
type BackendTransientError struct {
	Backend string
	Err     error
}

func (e *BackendTransientError) Error() string {
	return fmt.Sprintf("transient backend error (%s): %v", e.Backend, e.Err)
}

func (e *BackendTransientError) Unwrap() error { return e.Err }

func NewBackendTransientError(backend string, err error) *BackendTransientError {
	return &BackendTransientError{Backend: backend, Err: err}
}

// CachePermanentError marks a cache fault that will not clear without
// operator action (auth failure, malformed config). pkg/retry treats it as
// non-retryable.
type CachePermanentError struct {
	Reason string
	Err    error
}

func (e *CachePermanentError) Error() string {
	return fmt.Sprintf("cache permanently unavailable: %s: %v", e.Reason, e.Err)
}

func (e *CachePermanentError) Unwrap() error { return e.Err }

func NewCachePermanentError(reason string, err error) *CachePermanentError {
	return &CachePermanentError{Reason: reason, Err: err}
}

// RateLimitedError marks a web provider or LLM call rejected for exceeding a
// rate limit. pkg/retry treats it as retryable, using its own backoff
// schedule; RetryAfter is informational.
type RateLimitedError struct {
	Provider   string
	RetryAfter string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s rate limited, retry after %s", e.Provider, e.RetryAfter)
}

func NewRateLimitedError(provider, retryAfter string) *RateLimitedError {
	return &RateLimitedError{Provider: provider, RetryAfter: retryAfter}
}

// WebFetchError wraps a failure to reach or parse a live web result.
type WebFetchError struct {
	URL string
	Err error
}

func (e *WebFetchError) Error() string {
	return fmt.Sprintf("web fetch failed for %s: %v", e.URL, e.Err)
}

func (e *WebFetchError) Unwrap() error { return e.Err }

func NewWebFetchError(url string, err error) *WebFetchError {
	return &WebFetchError{URL: url, Err: err}
}

// PremiumEmbedderError marks a failure in the premium re-embedding step of
// TwoStepRetriever. Callers fall back to local_approximate ranking on this.
type PremiumEmbedderError struct {
	Model string
	Err   error
}

func (e *PremiumEmbedderError) Error() string {
	return fmt.Sprintf("premium embedder %s failed: %v", e.Model, e.Err)
}

func (e *PremiumEmbedderError) Unwrap() error { return e.Err }

func NewPremiumEmbedderError(model string, err error) *PremiumEmbedderError {
	return &PremiumEmbedderError{Model: model, Err: err}
}
