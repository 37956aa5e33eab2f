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

package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChromemUpsertAndSearch(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "chunks", "a", []float32{1, 0, 0}, map[string]any{"content": "doc a", "source_path": "a.md"}))
	require.NoError(t, p.Upsert(ctx, "chunks", "b", []float32{0, 1, 0}, map[string]any{"content": "doc b", "source_path": "b.md"}))

	results, err := p.Search(ctx, "chunks", []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
}

func TestChromemSearchWithFilter(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "chunks", "a", []float32{1, 0}, map[string]any{"source_path": "a.md"}))
	require.NoError(t, p.Upsert(ctx, "chunks", "b", []float32{1, 0}, map[string]any{"source_path": "b.md"}))

	results, err := p.SearchWithFilter(ctx, "chunks", []float32{1, 0}, 10, map[string]any{"source_path": "b.md"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestChromemDeleteRemovesPoint(t *testing.T) {
	p, err := NewChromemProvider(ChromemConfig{})
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	require.NoError(t, p.Upsert(ctx, "chunks", "a", []float32{1, 0}, nil))
	require.NoError(t, p.Delete(ctx, "chunks", "a"))

	results, err := p.Search(ctx, "chunks", []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFactoryDefaultsToChromem(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()
	assert.Equal(t, ProviderChromem, cfg.Type)
	assert.NoError(t, cfg.Validate())
}

func TestFactoryRejectsQdrantWithoutHost(t *testing.T) {
	cfg := &Config{Type: ProviderQdrant}
	assert.Error(t, cfg.Validate())
}
