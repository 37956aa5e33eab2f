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

// Package cache implements spec §4.11: a Redis-backed semantic cache
// keyed by query-embedding cosine similarity rather than exact query text.
//
// Grounded on original_source's HealthcareSemanticCache (bounded
// scan-by-prefix, best-match-above-threshold lookup, TTL'd set, Redis
// connection failure disables caching for the process rather than erroring
// queries). Library: github.com/go-redis/redis/v8, an O
// `vasic-digital-SuperAgent` dependency.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/go-redis/redis/v8"
)

// Entry is a cached query result keyed by its embedding.
type Entry struct {
	Query          string           `json:"query"`
	QueryEmbedding []float32        `json:"query_embedding"`
	Answer         string           `json:"answer"`
	Sources        []map[string]any `json:"sources"`
	CachedAt       time.Time        `json:"cached_at"`
	UserID         string           `json:"user_id,omitempty"`
}

// HitResult is returned by Get on a cache hit.
type HitResult struct {
	Answer     string
	Sources    []map[string]any
	Similarity float64
	CacheKey   string
}

// Config tunes the cache.
type Config struct {
	TTL                 time.Duration
	SimilarityThreshold float64
}

func DefaultConfig() Config {
	return Config{TTL: time.Hour, SimilarityThreshold: 0.92}
}

// SemanticCache implements spec §4.11's get/set/clear over Redis.
//
// On construction, a failed Redis ping disables the cache for the process:
// Get always misses and Set always no-ops, rather than surfacing an error
// to query callers, per spec's failure policy.
type SemanticCache struct {
	client   *redis.Client
	cfg      Config
	disabled bool
}

func NewSemanticCache(ctx context.Context, opts *redis.Options, cfg Config) *SemanticCache {
	client := redis.NewClient(opts)

	c := &SemanticCache{client: client, cfg: cfg}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		slog.Warn("semantic cache: redis unreachable, caching disabled", "error", err)
		c.disabled = true
	}
	return c
}

// Enabled reports whether the cache is actively serving requests, for the
// health interface's services map.
func (c *SemanticCache) Enabled() bool { return !c.disabled }

func cacheKeyPrefix(orgID string) string {
	if orgID == "" {
		return "cache:"
	}
	return "cache:" + orgID + ":"
}

// Get scans the tenant-prefixed keyspace for the best cosine-similarity
// match at or above the configured threshold, per spec §4.11.
// TODO: O(N) per lookup over the scanned keyspace; an auxiliary vector
// index keyed by query embedding would make this sublinear once cache
// sizes grow past a single-tenant's worth of distinct queries.
func (c *SemanticCache) Get(ctx context.Context, query string, queryVector []float32, orgID string) (*HitResult, bool) {
	if c.disabled {
		return nil, false
	}

	prefix := cacheKeyPrefix(orgID)
	var cursor uint64
	var best *HitResult
	bestSimilarity := 0.0

	for {
		keys, next, err := c.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			slog.Warn("semantic cache: scan failed", "error", err)
			return nil, false
		}

		for _, key := range keys {
			raw, err := c.client.Get(ctx, key).Result()
			if err != nil {
				continue
			}

			var entry Entry
			if err := json.Unmarshal([]byte(raw), &entry); err != nil {
				continue
			}
			if len(entry.QueryEmbedding) != len(queryVector) || len(queryVector) == 0 {
				continue
			}

			similarity := cosineSimilarity(queryVector, entry.QueryEmbedding)
			if similarity > bestSimilarity && similarity >= c.cfg.SimilarityThreshold {
				bestSimilarity = similarity
				best = &HitResult{Answer: entry.Answer, Sources: entry.Sources, Similarity: similarity, CacheKey: key}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	if best != nil {
		slog.Info("semantic cache hit", "similarity", bestSimilarity, "key", best.CacheKey)
		return best, true
	}
	return nil, false
}

// Set stores a result under a content-derived key with the configured TTL.
func (c *SemanticCache) Set(ctx context.Context, query string, queryVector []float32, answer string, sources []map[string]any, orgID, userID string) {
	if c.disabled {
		return
	}

	key := cacheKeyPrefix(orgID) + queryHash(query)
	entry := Entry{
		Query:          query,
		QueryEmbedding: queryVector,
		Answer:         answer,
		Sources:        sources,
		CachedAt:       time.Now(),
		UserID:         userID,
	}

	body, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("semantic cache: marshal failed", "error", err)
		return
	}

	if err := c.client.Set(ctx, key, body, c.cfg.TTL).Err(); err != nil {
		slog.Warn("semantic cache: set failed", "error", err)
	}
}

// Clear removes entries matching pattern (default "cache:*").
func (c *SemanticCache) Clear(ctx context.Context, pattern string) error {
	if c.disabled {
		return nil
	}
	if pattern == "" {
		pattern = "cache:*"
	}

	var cursor uint64
	removed := 0
	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan cache keys: %w", err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cache keys: %w", err)
			}
			removed += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	slog.Info("semantic cache cleared", "removed", removed)
	return nil
}

func (c *SemanticCache) Close() error {
	return c.client.Close()
}

func queryHash(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:8])
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
