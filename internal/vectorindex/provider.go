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

// Package vectorindex stores chunk vectors in the local embedding space and
// serves top-k cosine similarity search, with optional payload filters.
//
// Grounded on the teacher's pkg/vector package (Provider shape inferred
// from qdrant.go/chromem.go's method sets: Upsert, Search, SearchWithFilter,
// Delete, DeleteByFilter, CreateCollection, DeleteCollection, Close, Name),
// generalized from agent memory storage to RAG chunk/web-document indexing.
package vectorindex

import "context"

// Result is one ranked hit from a similarity search.
type Result struct {
	ID       string
	Score    float32
	Vector   []float32
	Metadata map[string]any
}

// Provider is a vector storage backend. One collection corresponds to one
// logical index (chunks, web knowledge base entries, ...).
type Provider interface {
	Name() string

	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error

	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)

	// SearchWithFilter restricts results to points whose metadata matches
	// every key/value pair in filter. A nil or zero vector combined with a
	// non-empty filter performs a metadata-only probe (spec's "find by
	// source_path" use case) rather than a similarity ranking.
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)

	Delete(ctx context.Context, collection string, id string) error

	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error

	CreateCollection(ctx context.Context, collection string, vectorDimension int) error

	DeleteCollection(ctx context.Context, collection string) error

	// Count reports how many points a collection holds, for the stats
	// interface's point_count field.
	Count(ctx context.Context, collection string) (int, error)

	Close() error
}

// NilProvider is a no-op Provider, used when no vector backend is
// configured (e.g. construction-time default before SetDefaults runs).
type NilProvider struct{}

func (NilProvider) Name() string { return "nil" }
func (NilProvider) Upsert(context.Context, string, string, []float32, map[string]any) error {
	return nil
}
func (NilProvider) Search(context.Context, string, []float32, int) ([]Result, error) {
	return nil, nil
}
func (NilProvider) SearchWithFilter(context.Context, string, []float32, int, map[string]any) ([]Result, error) {
	return nil, nil
}
func (NilProvider) Delete(context.Context, string, string) error                   { return nil }
func (NilProvider) DeleteByFilter(context.Context, string, map[string]any) error    { return nil }
func (NilProvider) CreateCollection(context.Context, string, int) error             { return nil }
func (NilProvider) DeleteCollection(context.Context, string) error                  { return nil }
func (NilProvider) Count(context.Context, string) (int, error)                      { return 0, nil }
func (NilProvider) Close() error                                                    { return nil }

var _ Provider = NilProvider{}
