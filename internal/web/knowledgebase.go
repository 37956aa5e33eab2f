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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kbrag/kbrag/internal/embed"
	"github.com/kbrag/kbrag/internal/retrieve"
	"github.com/kbrag/kbrag/internal/vectorindex"
)

const knowledgeBaseCollection = "web_knowledge_base"

// KnowledgeBaseConfig mirrors original_source's WebKnowledgeBaseConfig.
type KnowledgeBaseConfig struct {
	TTLDays              int
	MaxSize              int
	MaxCharsForEmbedding int
}

func DefaultKnowledgeBaseConfig() KnowledgeBaseConfig {
	return KnowledgeBaseConfig{TTLDays: 30, MaxSize: 10000, MaxCharsForEmbedding: 3000}
}

// Document is a persisted web knowledge base entry, spec §3's WebDocument.
type Document struct {
	ID             string
	URL            string
	Domain         string
	Title          string
	ContentHash    string
	FullText       string
	TrustScore     float64
	FetchedAt      time.Time
	ExpiryAt       time.Time
	TimesRetrieved int
	LastRetrieved  time.Time
	CitationText   string
	Method         string
}

// KnowledgeBase implements spec §4.8: a persistent, deduplicated,
// TTL-expiring vector collection of fetched web content.
//
// Grounded on original_source's WebKnowledgeBaseManager (check_exists by
// URL, content-hash dedup, ingest_web_result's head+tail truncation before
// embedding, access-metadata bump on every search hit, cleanup_expired).
// Reuses internal/vectorindex.Provider as the storage layer rather than a
// bespoke store, since the payload shape (id, vector, metadata) is
// identical to the chunk index's.
type KnowledgeBase struct {
	index    vectorindex.Provider
	embedder *embed.Service
	cfg      KnowledgeBaseConfig

	mu       sync.Mutex
	byURL    map[string]string    // url -> doc id, in-process cache to avoid a probe per ingest
	byHash   map[string]string    // content hash -> doc id
	vecByURL map[string][]float32 // url -> embedding, so bumpAccess can re-upsert on backends that don't return Result.Vector
}

func NewKnowledgeBase(index vectorindex.Provider, embedder *embed.Service, cfg KnowledgeBaseConfig) *KnowledgeBase {
	return &KnowledgeBase{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		byURL:    make(map[string]string),
		byHash:   make(map[string]string),
		vecByURL: make(map[string][]float32),
	}
}

// Exists returns the existing document for a URL, if any.
func (kb *KnowledgeBase) Exists(ctx context.Context, url string) (*Document, bool) {
	kb.mu.Lock()
	id, ok := kb.byURL[url]
	kb.mu.Unlock()
	if !ok {
		return nil, false
	}

	results, err := kb.index.SearchWithFilter(ctx, knowledgeBaseCollection, nil, 1, map[string]any{"url": url})
	if err != nil || len(results) == 0 {
		return nil, false
	}
	return documentFromMetadata(id, results[0].Metadata), true
}

// Ingest stores a web result, deduplicating by URL then by content hash,
// per spec §4.8. Returns only an error; a duplicate is skipped and yields
// nil.
func (kb *KnowledgeBase) Ingest(ctx context.Context, item retrieve.RetrievedItem, query string) error {
	rawURL := stringMeta(item.Metadata, "url")
	if rawURL == "" {
		return fmt.Errorf("web knowledge base ingest: item has no url metadata")
	}

	if _, ok := kb.Exists(ctx, rawURL); ok {
		kb.bumpAccess(ctx, rawURL)
		return nil
	}

	fullText := item.Text
	contentHash := hashContent(fullText)

	kb.mu.Lock()
	if _, ok := kb.byHash[contentHash]; ok {
		kb.mu.Unlock()
		return nil
	}
	kb.mu.Unlock()

	truncated := truncateHeadTail(fullText, kb.cfg.MaxCharsForEmbedding)
	vecs, err := kb.embedder.EmbedDocuments(ctx, []string{truncated})
	if err != nil || len(vecs) == 0 {
		return fmt.Errorf("embed web document: %w", err)
	}

	now := time.Now()
	doc := Document{
		ID:           deterministicDocID(rawURL),
		URL:          rawURL,
		Domain:       stringMeta(item.Metadata, "domain"),
		Title:        stringMeta(item.Metadata, "title"),
		ContentHash:  contentHash,
		FullText:     fullText,
		TrustScore:   item.Score,
		FetchedAt:    now,
		ExpiryAt:     now.AddDate(0, 0, kb.cfg.TTLDays),
		Method:       item.RankingMethod,
		CitationText: citation(item.Metadata, rawURL),
	}

	if err := kb.index.Upsert(ctx, knowledgeBaseCollection, doc.ID, vecs[0], doc.toMetadata()); err != nil {
		return fmt.Errorf("upsert web document: %w", err)
	}

	kb.mu.Lock()
	kb.byURL[rawURL] = doc.ID
	kb.byHash[contentHash] = doc.ID
	kb.vecByURL[rawURL] = vecs[0]
	kb.mu.Unlock()

	return nil
}

// Search performs a vector search over the knowledge base, bumping
// access metadata on every hit, per spec §4.8.
func (kb *KnowledgeBase) Search(ctx context.Context, query string, topK int) ([]retrieve.RetrievedItem, error) {
	queryVec, err := kb.embedder.EmbedQuery(ctx, query, "")
	if err != nil {
		return nil, fmt.Errorf("embed web kb query: %w", err)
	}

	results, err := kb.index.Search(ctx, knowledgeBaseCollection, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("web kb search: %w", err)
	}

	now := time.Now()
	items := make([]retrieve.RetrievedItem, 0, len(results))
	for i, r := range results {
		if expiryStr := stringMeta(r.Metadata, "expiry_at"); expiryStr != "" {
			if expiry, err := time.Parse(time.RFC3339, expiryStr); err == nil && now.After(expiry) {
				continue
			}
		}

		if url := stringMeta(r.Metadata, "url"); url != "" {
			kb.bumpAccess(ctx, url)
		}

		items = append(items, retrieve.RetrievedItem{
			ID:            r.ID,
			Text:          stringMeta(r.Metadata, "full_text"),
			Score:         float64(r.Score),
			Rank:          i + 1,
			Tier:          retrieve.TierWebKB,
			RankingMethod: "web_kb",
			Metadata:      r.Metadata,
		})
	}
	return items, nil
}

// CleanupExpired scans the knowledge base for TTL-expired documents and
// deletes them, returning the count removed. vectorindex.Provider only
// supports equality filters, not range queries, so this walks a broad
// zero-vector probe rather than a server-side expiry_at < now predicate.
func (kb *KnowledgeBase) CleanupExpired(ctx context.Context) (int, error) {
	limit := kb.cfg.MaxSize
	if limit <= 0 {
		limit = 10000
	}

	results, err := kb.index.Search(ctx, knowledgeBaseCollection, nil, limit)
	if err != nil {
		return 0, fmt.Errorf("scan web knowledge base: %w", err)
	}

	now := time.Now()
	removed := 0
	for _, r := range results {
		expiryStr := stringMeta(r.Metadata, "expiry_at")
		if expiryStr == "" {
			continue
		}
		expiry, err := time.Parse(time.RFC3339, expiryStr)
		if err != nil || !now.After(expiry) {
			continue
		}
		if err := kb.index.Delete(ctx, knowledgeBaseCollection, r.ID); err != nil {
			continue
		}
		removed++

		kb.mu.Lock()
		if url := stringMeta(r.Metadata, "url"); url != "" {
			delete(kb.byURL, url)
			delete(kb.vecByURL, url)
		}
		if hash := stringMeta(r.Metadata, "content_hash"); hash != "" {
			delete(kb.byHash, hash)
		}
		kb.mu.Unlock()
	}
	return removed, nil
}

// bumpAccess increments times_retrieved and refreshes last_retrieved for the
// document at url, per spec §4.8. vectorindex.Provider has no partial-payload
// update primitive, so this re-reads the current metadata and re-upserts the
// whole point. Re-upserting needs the embedding back: qdrant.go returns it on
// Result.Vector, but chromem.go does not, so vecByURL caches it from Ingest
// as a backend-agnostic fallback.
func (kb *KnowledgeBase) bumpAccess(ctx context.Context, url string) {
	kb.mu.Lock()
	id, ok := kb.byURL[url]
	cachedVec := kb.vecByURL[url]
	kb.mu.Unlock()
	if !ok {
		return
	}

	results, err := kb.index.SearchWithFilter(ctx, knowledgeBaseCollection, nil, 1, map[string]any{"url": url})
	if err != nil || len(results) == 0 {
		return
	}

	r := results[0]
	vector := r.Vector
	if len(vector) == 0 {
		vector = cachedVec
	}
	if len(vector) == 0 {
		return
	}

	doc := documentFromMetadata(id, r.Metadata)
	doc.TimesRetrieved++
	doc.LastRetrieved = time.Now()

	if err := kb.index.Upsert(ctx, knowledgeBaseCollection, id, vector, doc.toMetadata()); err != nil {
		slog.Warn("bump web knowledge base access metadata", "url", url, "error", err)
	}
}

func deterministicDocID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:16])
}

func hashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func truncateHeadTail(text string, maxChars int) string {
	if len(text) <= maxChars {
		return text
	}
	half := maxChars / 2
	return text[:half] + " ... " + text[len(text)-half:]
}

func citation(metadata map[string]any, url string) string {
	author := stringMeta(metadata, "author")
	title := stringMeta(metadata, "title")
	year := stringMeta(metadata, "year")

	var parts []string
	if author != "" {
		parts = append(parts, author)
	}
	if year != "" {
		parts = append(parts, "("+year+")")
	}
	if title != "" {
		parts = append(parts, title)
	}
	parts = append(parts, url)
	return strings.Join(parts, " ")
}

func stringMeta(metadata map[string]any, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}

// floatMeta tolerates float64/int64 (qdrant's DoubleValue/IntegerValue) and
// string (chromem.go stringifies every metadata value via fmt.Sprint before
// storing) representations of a numeric field.
func floatMeta(metadata map[string]any, key string) float64 {
	switch v := metadata[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	default:
		return 0
	}
}

func intMeta(metadata map[string]any, key string) int {
	return int(floatMeta(metadata, key))
}

func timeMeta(metadata map[string]any, key string) time.Time {
	s := stringMeta(metadata, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func documentFromMetadata(id string, metadata map[string]any) *Document {
	return &Document{
		ID:             id,
		URL:            stringMeta(metadata, "url"),
		Domain:         stringMeta(metadata, "domain"),
		Title:          stringMeta(metadata, "title"),
		ContentHash:    stringMeta(metadata, "content_hash"),
		FullText:       stringMeta(metadata, "full_text"),
		TrustScore:     floatMeta(metadata, "trust_score"),
		FetchedAt:      timeMeta(metadata, "fetched_at"),
		ExpiryAt:       timeMeta(metadata, "expiry_at"),
		TimesRetrieved: intMeta(metadata, "times_retrieved"),
		LastRetrieved:  timeMeta(metadata, "last_retrieved"),
		CitationText:   stringMeta(metadata, "citation_text"),
		Method:         stringMeta(metadata, "method"),
	}
}

func (d Document) toMetadata() map[string]any {
	m := map[string]any{
		"url":             d.URL,
		"domain":          d.Domain,
		"title":           d.Title,
		"content_hash":    d.ContentHash,
		"full_text":       d.FullText,
		"trust_score":     d.TrustScore,
		"fetched_at":      d.FetchedAt.Format(time.RFC3339),
		"expiry_at":       d.ExpiryAt.Format(time.RFC3339),
		"times_retrieved": d.TimesRetrieved,
		"citation_text":   d.CitationText,
		"method":          d.Method,
	}
	if !d.LastRetrieved.IsZero() {
		m["last_retrieved"] = d.LastRetrieved.Format(time.RFC3339)
	}
	return m
}

var _ retrieve.WebKBSearcher = (*KnowledgeBase)(nil)
