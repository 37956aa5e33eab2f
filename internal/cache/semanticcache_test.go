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

package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*SemanticCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c := NewSemanticCache(context.Background(), &redis.Options{Addr: mr.Addr()}, DefaultConfig())
	require.False(t, c.disabled)
	return c, mr
}

func TestSemanticCacheSetThenGetExactEmbeddingHits(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	vec := []float32{1, 0, 0}
	c.Set(ctx, "what is go", vec, "Go is a language", nil, "", "")

	hit, ok := c.Get(ctx, "what is go", vec, "")
	require.True(t, ok)
	assert.Equal(t, "Go is a language", hit.Answer)
	assert.InDelta(t, 1.0, hit.Similarity, 1e-9)
}

func TestSemanticCacheGetMissesBelowThreshold(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "what is go", []float32{1, 0, 0}, "Go is a language", nil, "", "")

	_, ok := c.Get(ctx, "unrelated", []float32{0, 1, 0}, "")
	assert.False(t, ok)
}

func TestSemanticCacheScopesByOrgID(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	vec := []float32{1, 0, 0}
	c.Set(ctx, "q", vec, "org-a answer", nil, "org-a", "")

	_, ok := c.Get(ctx, "q", vec, "org-b")
	assert.False(t, ok)

	hit, ok := c.Get(ctx, "q", vec, "org-a")
	require.True(t, ok)
	assert.Equal(t, "org-a answer", hit.Answer)
}

func TestSemanticCacheClearRemovesEntries(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	c.Set(ctx, "q1", []float32{1, 0}, "a1", nil, "", "")
	c.Set(ctx, "q2", []float32{0, 1}, "a2", nil, "", "")

	require.NoError(t, c.Clear(ctx, ""))

	_, ok := c.Get(ctx, "q1", []float32{1, 0}, "")
	assert.False(t, ok)
}

func TestSemanticCacheDisablesWhenRedisUnreachable(t *testing.T) {
	c := NewSemanticCache(context.Background(), &redis.Options{Addr: "127.0.0.1:1"}, DefaultConfig())
	assert.True(t, c.disabled)

	_, ok := c.Get(context.Background(), "q", []float32{1}, "")
	assert.False(t, ok)
}

func TestCosineSimilarityOrthogonalVectorsAreZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}))
}
