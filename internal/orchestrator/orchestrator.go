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

// Package orchestrator owns every pipeline component and implements the two
// workflows spec §4.12 names: ingest (a single document or a directory tree)
// and query (hybrid retrieval through generation, with an optional semantic
// cache in front).
//
// Grounded on the teacher's pkg/rag.DocumentStore for the concurrent,
// checkpointed directory-indexing workflow (worker pool bounded by a
// semaphore, atomic counters, retry-wrapped per-document indexing) and on
// original_source's RAGOrchestrator for the single-document ingest decision
// tree and the query workflow's cache-then-retrieve-then-generate shape.
package orchestrator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbrag/kbrag/internal/cache"
	"github.com/kbrag/kbrag/internal/chunk"
	"github.com/kbrag/kbrag/internal/embed"
	"github.com/kbrag/kbrag/internal/extract"
	"github.com/kbrag/kbrag/internal/generate"
	"github.com/kbrag/kbrag/internal/keywordindex"
	"github.com/kbrag/kbrag/internal/obslog"
	"github.com/kbrag/kbrag/internal/rerrors"
	"github.com/kbrag/kbrag/internal/retrieve"
	"github.com/kbrag/kbrag/internal/vectorindex"
	"github.com/kbrag/kbrag/pkg/retry"
)

// DocumentCollection is the vector index collection holding chunk payloads,
// as distinct from the web knowledge base's own collection.
const DocumentCollection = "documents"

// Config tunes the orchestrator's ingest workflow.
type Config struct {
	MaxConcurrentIndexing int
	EnableCheckpoints     bool
	CheckpointDir         string
}

func DefaultConfig() Config {
	return Config{MaxConcurrentIndexing: 4, CheckpointDir: "./.kbrag/checkpoints"}
}

// Orchestrator wires every pipeline stage together, per spec §4.12.
type Orchestrator struct {
	extractor extract.Extractor
	chunker   chunk.Chunker
	embedder  *embed.Service
	vector    vectorindex.Provider
	keyword   keywordindex.Index
	hybrid    *retrieve.HybridRetriever
	generator *generate.Generator
	semCache  *cache.SemanticCache
	retryer   *retry.Retryer
	metrics   *obslog.Registry
	cfg       Config
}

func New(
	extractor extract.Extractor,
	chunker chunk.Chunker,
	embedder *embed.Service,
	vector vectorindex.Provider,
	keyword keywordindex.Index,
	hybrid *retrieve.HybridRetriever,
	generator *generate.Generator,
	semCache *cache.SemanticCache,
	metrics *obslog.Registry,
	cfg Config,
) *Orchestrator {
	if cfg.MaxConcurrentIndexing <= 0 {
		cfg.MaxConcurrentIndexing = 4
	}
	if metrics == nil {
		metrics = obslog.NewRegistry(nil)
	}
	return &Orchestrator{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vector:    vector,
		keyword:   keyword,
		hybrid:    hybrid,
		generator: generator,
		semCache:  semCache,
		retryer:   retry.New(retry.DefaultConfig()),
		metrics:   metrics,
		cfg:       cfg,
	}
}

// IngestStatus classifies the decision ingestFile took for one path.
type IngestStatus string

const (
	StatusNew       IngestStatus = "new"
	StatusChanged   IngestStatus = "changed"
	StatusUnchanged IngestStatus = "unchanged"
	StatusError     IngestStatus = "error"
)

// IngestDocument implements spec §4.12's ingest_document: resolve path,
// probe for an existing chunk payload by source_path, skip unless the
// content changed (or force is set), delete-then-reindex on change, and
// return the chunk count written.
func (o *Orchestrator) IngestDocument(ctx context.Context, path string, force bool) (int, error) {
	_, n, err := o.ingestFile(ctx, path, force)
	return n, err
}

func (o *Orchestrator) ingestFile(ctx context.Context, path string, force bool) (IngestStatus, int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return StatusError, 0, rerrors.NewDocumentStoreError(DocumentCollection, "resolve_path", err)
	}

	contentHash, mtime, err := hashFile(absPath)
	if err != nil {
		return StatusError, 0, rerrors.NewDocumentStoreError(DocumentCollection, "stat", err)
	}

	probe, err := o.vector.SearchWithFilter(ctx, DocumentCollection, nil, 1, map[string]any{"source_path": absPath})
	if err != nil {
		return StatusError, 0, rerrors.NewDocumentStoreError(DocumentCollection, "probe", err)
	}

	existed := len(probe) > 0
	replace := force || !existed

	if existed && !force {
		storedHash, _ := probe[0].Metadata["file_hash"].(string)
		storedMtime := int64Meta(probe[0].Metadata, "file_mtime")

		if storedHash != "" {
			replace = storedHash != contentHash
		} else {
			replace = mtime > storedMtime
		}

		if !replace {
			return StatusUnchanged, 0, nil
		}
	}

	if existed && replace {
		if err := o.vector.DeleteByFilter(ctx, DocumentCollection, map[string]any{"source_path": absPath}); err != nil {
			return StatusError, 0, rerrors.NewDocumentStoreError(DocumentCollection, "delete_by_filter", err)
		}
		if err := o.keyword.DeleteBy("source_path", absPath); err != nil {
			return StatusError, 0, rerrors.NewDocumentStoreError("keyword", "delete_by", err)
		}
	}

	n, err := o.indexDocument(ctx, absPath, contentHash, mtime)
	if err != nil {
		return StatusError, 0, err
	}

	status := StatusNew
	if existed {
		status = StatusChanged
	}
	return status, n, nil
}

// removeDocument deletes every chunk indexed under path from both the
// vector and keyword indexes, used by the directory watch when a file
// disappears.
func (o *Orchestrator) removeDocument(ctx context.Context, path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return rerrors.NewDocumentStoreError(DocumentCollection, "resolve_path", err)
	}
	if err := o.vector.DeleteByFilter(ctx, DocumentCollection, map[string]any{"source_path": absPath}); err != nil {
		return rerrors.NewDocumentStoreError(DocumentCollection, "delete_by_filter", err)
	}
	if err := o.keyword.DeleteBy("source_path", absPath); err != nil {
		return rerrors.NewDocumentStoreError("keyword", "delete_by", err)
	}
	return nil
}

// indexDocument runs extract -> chunk -> embed(local) -> upsert for one
// file already resolved to an absolute path, and returns the chunk count.
func (o *Orchestrator) indexDocument(ctx context.Context, absPath, contentHash string, mtime int64) (int, error) {
	extracted, err := obslog.Track(o.metrics.Extract, func() (extract.Result, error) {
		return o.extractor.Extract(ctx, absPath)
	})
	if err != nil {
		return 0, err
	}

	chunks, err := obslog.Track(o.metrics.Chunk, func() ([]chunk.Chunk, error) {
		return o.chunker.Chunk(absPath, extracted.Text, extracted.DocumentType)
	})
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := obslog.Track(o.metrics.Embed, func() ([][]float32, error) {
		return o.embedder.EmbedDocuments(ctx, texts)
	})
	if err != nil {
		return 0, err
	}

	documentID := chunk.ID(absPath, 0)
	keywordDocs := make([]keywordindex.Doc, len(chunks))
	_, err = obslog.Track(o.metrics.VectorIndex, func() (struct{}, error) {
		for i, c := range chunks {
			metadata := map[string]any{
				"source_path":   absPath,
				"document_id":   documentID,
				"document_type": string(extracted.DocumentType),
				"section_type":  string(c.SectionType),
				"chunk_index":   c.ChunkIndex,
				"file_hash":     contentHash,
				"file_mtime":    mtime,
				"content":       c.Text,
			}
			for k, v := range c.Metadata {
				metadata[k] = v
			}

			if err := o.vector.Upsert(ctx, DocumentCollection, c.ChunkID, vectors[i], metadata); err != nil {
				return struct{}{}, rerrors.NewDocumentStoreError(DocumentCollection, "upsert", err)
			}
			keywordDocs[i] = keywordindex.Doc{ID: c.ChunkID, Text: c.Text, Metadata: metadata}
		}
		return struct{}{}, nil
	})
	if err != nil {
		return 0, err
	}

	_, err = obslog.Track(o.metrics.KeywordIndex, func() (struct{}, error) {
		return struct{}{}, o.keyword.IndexDocuments(keywordDocs)
	})
	if err != nil {
		return 0, rerrors.NewDocumentStoreError("keyword", "index_documents", err)
	}

	return len(chunks), nil
}

func hashFile(path string) (hash string, mtimeUnix int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", 0, err
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), info.ModTime().Unix(), nil
}

// DirectoryReport tallies IngestDirectory's per-file classification.
type DirectoryReport struct {
	New         int
	Changed     int
	Unchanged   int
	Errors      int
	TotalChunks int
	FileErrors  map[string]string
	Progress    ProgressSnapshot
}

// IngestDirectory implements spec §4.12's ingest_directory: walk path,
// filter by pattern, classify and index each matching file concurrently
// (bounded by Config.MaxConcurrentIndexing), and report counts.
//
// When checkpointing is enabled, a resume file records which paths were
// already handled in an interrupted run, skipping the vector-index probe
// for files whose content hash hasn't moved since.
func (o *Orchestrator) IngestDirectory(ctx context.Context, root, pattern string) (DirectoryReport, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return DirectoryReport{}, rerrors.NewDocumentStoreError(DocumentCollection, "resolve_path", err)
	}
	if _, err := os.Stat(root); err != nil {
		return DirectoryReport{}, rerrors.NewDocumentStoreError(DocumentCollection, "stat_directory", err)
	}

	cm := newCheckpointManager(o.cfg.CheckpointDir, root, o.cfg.EnableCheckpoints)
	if err := cm.load(); err != nil {
		slog.Warn("failed to load ingest checkpoint, starting fresh", "error", err)
	} else if n := cm.processedCount(); n > 0 {
		slog.Info("resuming directory ingest from checkpoint", "already_processed", n)
	}

	var paths []string
	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if pattern != "" {
			matched, err := filepath.Match(pattern, d.Name())
			if err != nil || !matched {
				return nil
			}
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return DirectoryReport{}, rerrors.NewDocumentStoreError(DocumentCollection, "walk_directory", err)
	}
	cm.setTotalFiles(len(paths))

	progress := newProgressTracker()
	progress.setTotal(len(paths))

	var newCount, changedCount, unchangedCount, errorCount, chunkCount int64
	fileErrors := make(map[string]string)
	var fileErrorsMu sync.Mutex

	semaphore := make(chan struct{}, o.cfg.MaxConcurrentIndexing)
	var wg sync.WaitGroup

	for _, p := range paths {
		select {
		case <-ctx.Done():
			wg.Wait()
			return DirectoryReport{}, ctx.Err()
		default:
		}

		contentHash, _, statErr := hashFile(p)
		if statErr == nil && !cm.shouldProcess(p, contentHash) {
			atomic.AddInt64(&unchangedCount, 1)
			progress.incSkipped()
			progress.incProcessed()
			continue
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(p string) {
			defer func() {
				<-semaphore
				wg.Done()
			}()

			var status IngestStatus
			var n int
			err := o.retryer.Do(ctx, "ingest_document", func() error {
				var innerErr error
				status, n, innerErr = o.ingestFile(ctx, p, false)
				return innerErr
			})

			hash, _, _ := hashFile(p)
			if err != nil {
				atomic.AddInt64(&errorCount, 1)
				fileErrorsMu.Lock()
				fileErrors[p] = err.Error()
				fileErrorsMu.Unlock()
				cm.record(p, hash, "failed")
				slog.Warn("failed to ingest file", "path", p, "error", err)
				progress.incFailed()
				progress.incProcessed()
				return
			}

			switch status {
			case StatusNew:
				atomic.AddInt64(&newCount, 1)
				progress.incIndexed()
			case StatusChanged:
				atomic.AddInt64(&changedCount, 1)
				progress.incIndexed()
			default:
				atomic.AddInt64(&unchangedCount, 1)
				progress.incSkipped()
			}
			progress.incProcessed()
			atomic.AddInt64(&chunkCount, int64(n))
			cm.record(p, hash, "indexed")

			if err := cm.save(false); err != nil {
				slog.Warn("failed to save ingest checkpoint", "error", err)
			}
		}(p)
	}
	wg.Wait()

	if errorCount == 0 {
		if err := cm.clear(); err != nil {
			slog.Warn("failed to clear ingest checkpoint", "error", err)
		}
	} else if err := cm.save(true); err != nil {
		slog.Warn("failed to save final ingest checkpoint", "error", err)
	}

	return DirectoryReport{
		New:         int(newCount),
		Changed:     int(changedCount),
		Unchanged:   int(unchangedCount),
		Errors:      int(errorCount),
		TotalChunks: int(chunkCount),
		FileErrors:  fileErrors,
		Progress:    progress.snapshot(),
	}, nil
}

const noInformationAnswer = "I don't have enough information to answer that question."

// QueryRequest is spec §4.12/§5's query input shape.
type QueryRequest struct {
	Query                  string
	TopK                   int
	UseCache               bool
	EmbedderType           string
	EnableWebSearch        bool
	WebMode                retrieve.WebMode
	UserContext            string
	LowConfidenceThreshold float64

	// EnableHyDE and EnableMultiQuery forward directly to retrieve.HybridOptions.
	EnableHyDE           bool
	EnableMultiQuery     bool
	MultiQueryVariations int
}

// DocMetric is one document's entry in QueryResult.RetrievalMetrics.
type DocMetric struct {
	DocumentID    string
	SourcePath    string
	Rank          int
	Tier          string
	Score         float64
	RankingMethod string
}

// RetrievalStats tallies how many documents each tier contributed.
type RetrievalStats struct {
	LocalCount int
	WebKBCount int
	WebCount   int
}

// RetrievalMetrics carries per-document metrics plus the decision-path
// flags spec §4.12 step 6 names: which tiers were actually consulted.
type RetrievalMetrics struct {
	Documents      []DocMetric
	ConsultedLocal bool
	ConsultedWebKB bool
	ConsultedWeb   bool
}

// QueryResult is spec §4.12's query response shape.
type QueryResult struct {
	Answer           string
	Sources          []generate.Citation
	CacheHit         bool
	RetrievedDocs    int
	ContextDocsUsed  int
	RetrievalStats   RetrievalStats
	RetrievalMetrics RetrievalMetrics
}

// Query implements spec §4.12's query workflow: optional cache lookup,
// hybrid retrieval, a fixed fallback answer on empty results, generation,
// and an optional cache store.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.Query == "" {
		return QueryResult{}, rerrors.NewInputError("query", "query must not be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = 10
	}
	lowConfidence := req.LowConfidenceThreshold
	if lowConfidence <= 0 {
		lowConfidence = 0.5
	}

	var queryVec []float32
	if req.UseCache && o.semCache != nil {
		vec, err := o.embedder.EmbedQuery(ctx, req.Query, req.EmbedderType)
		if err != nil {
			slog.Warn("query embedding for cache lookup failed, skipping cache", "error", err)
		} else {
			queryVec = vec
			start := time.Now()
			hit, ok := o.semCache.Get(ctx, req.Query, queryVec, "")
			o.metrics.Cache.Observe(time.Since(start), nil)
			if ok {
				return QueryResult{
					Answer:   hit.Answer,
					Sources:  mapsToCitations(hit.Sources),
					CacheHit: true,
				}, nil
			}
		}
	}

	items, err := obslog.Track(o.metrics.Retrieve, func() ([]retrieve.RetrievedItem, error) {
		return o.hybrid.Retrieve(ctx, req.Query, retrieve.HybridOptions{
			TopK:                   topK,
			PremiumSpace:           req.EmbedderType,
			EnableWebSearch:        req.EnableWebSearch,
			WebMode:                req.WebMode,
			LowConfidenceThreshold: lowConfidence,
			EnableHyDE:             req.EnableHyDE,
			EnableMultiQuery:       req.EnableMultiQuery,
			MultiQueryVariations:   req.MultiQueryVariations,
		})
	})
	if err != nil {
		return QueryResult{}, err
	}

	if len(items) == 0 {
		return QueryResult{Answer: noInformationAnswer}, nil
	}

	genResult, err := obslog.Track(o.metrics.Generate, func() (generate.Result, error) {
		return o.generator.Generate(ctx, req.Query, items)
	})
	if err != nil {
		return QueryResult{}, err
	}

	result := QueryResult{
		Answer:           genResult.Answer,
		Sources:          genResult.Sources,
		RetrievedDocs:    len(items),
		ContextDocsUsed:  genResult.ContextDocsUsed,
		RetrievalStats:   statsFor(items),
		RetrievalMetrics: metricsFor(items),
	}

	if req.UseCache && o.semCache != nil && queryVec != nil {
		start := time.Now()
		o.semCache.Set(ctx, req.Query, queryVec, result.Answer, citationsToMaps(result.Sources), "", req.UserContext)
		o.metrics.Cache.Observe(time.Since(start), nil)
	}

	return result, nil
}

func statsFor(items []retrieve.RetrievedItem) RetrievalStats {
	var stats RetrievalStats
	for _, it := range items {
		switch it.Tier {
		case retrieve.TierLocal:
			stats.LocalCount++
		case retrieve.TierWebKB:
			stats.WebKBCount++
		case retrieve.TierWeb:
			stats.WebCount++
		}
	}
	return stats
}

func metricsFor(items []retrieve.RetrievedItem) RetrievalMetrics {
	metrics := RetrievalMetrics{Documents: make([]DocMetric, len(items))}
	for i, it := range items {
		metrics.Documents[i] = DocMetric{
			DocumentID:    it.ID,
			SourcePath:    stringMeta(it.Metadata, "source_path"),
			Rank:          it.Rank,
			Tier:          tierName(it.Tier),
			Score:         it.Score,
			RankingMethod: it.RankingMethod,
		}
		switch it.Tier {
		case retrieve.TierLocal:
			metrics.ConsultedLocal = true
		case retrieve.TierWebKB:
			metrics.ConsultedWebKB = true
		case retrieve.TierWeb:
			metrics.ConsultedWeb = true
		}
	}
	return metrics
}

func tierName(t retrieve.Tier) string {
	switch t {
	case retrieve.TierLocal:
		return "local"
	case retrieve.TierWebKB:
		return "web_kb"
	case retrieve.TierWeb:
		return "web"
	default:
		return "unknown"
	}
}

func stringMeta(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	v, _ := metadata[key].(string)
	return v
}

// int64Meta reads an int64-valued metadata field, tolerating backends (like
// the chromem-go provider) that round-trip all metadata as strings.
func int64Meta(metadata map[string]any, key string) int64 {
	switch v := metadata[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

func citationsToMaps(citations []generate.Citation) []map[string]any {
	out := make([]map[string]any, len(citations))
	for i, c := range citations {
		m := map[string]any{
			"doc_index":     c.DocIndex,
			"document_id":   c.DocumentID,
			"source_path":   c.SourcePath,
			"document_type": c.DocumentType,
			"source_type":   c.SourceType,
		}
		if c.HasScore {
			m["score"] = c.Score
		}
		out[i] = m
	}
	return out
}

func mapsToCitations(maps []map[string]any) []generate.Citation {
	out := make([]generate.Citation, len(maps))
	for i, m := range maps {
		c := generate.Citation{
			DocIndex:     intOf(m["doc_index"]),
			DocumentID:   stringMeta(m, "document_id"),
			SourcePath:   stringMeta(m, "source_path"),
			DocumentType: stringMeta(m, "document_type"),
			SourceType:   stringMeta(m, "source_type"),
		}
		if score, ok := m["score"].(float64); ok {
			c.Score = score
			c.HasScore = true
		}
		out[i] = c
	}
	return out
}

// Stats reports vector index size and the embedding models in use, for
// spec §6's GET /stats.
type Stats struct {
	VectorPointCount int
	VectorDimension  int
	LocalModel       string
	PremiumModels    map[string]string
	StageLatencies   map[string]float64
}

func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	count, err := o.vector.Count(ctx, DocumentCollection)
	if err != nil {
		return Stats{}, rerrors.NewDocumentStoreError(DocumentCollection, "count", err)
	}
	local, premiums := o.embedder.ModelNames()
	return Stats{
		VectorPointCount: count,
		VectorDimension:  o.embedder.LocalDimension(),
		LocalModel:       local,
		PremiumModels:    premiums,
		StageLatencies:   o.metrics.LastLatencies(),
	}, nil
}

// HealthStatus is GET /health's result: per-service up/down plus Stats.
type HealthStatus struct {
	Healthy  bool
	Services map[string]string
	Stats    Stats
}

// HealthCheck probes every hard dependency the orchestrator needs to serve
// a query: the vector index and the keyword index. The semantic cache is a
// soft dependency (spec §7: a cache fault disables caching, it never fails
// the request), so it is reported but never flips Healthy to false.
func (o *Orchestrator) HealthCheck(ctx context.Context) HealthStatus {
	services := make(map[string]string)
	healthy := true

	if _, err := o.vector.Count(ctx, DocumentCollection); err != nil {
		services["vector"] = "down: " + err.Error()
		healthy = false
	} else {
		services["vector"] = "ok"
	}

	if _, err := o.keyword.Search("", 1, nil); err != nil {
		services["keyword"] = "down: " + err.Error()
		healthy = false
	} else {
		services["keyword"] = "ok"
	}

	if o.semCache == nil {
		services["cache"] = "not configured"
	} else if o.semCache.Enabled() {
		services["cache"] = "ok"
	} else {
		services["cache"] = "disabled"
	}

	stats, err := o.Stats(ctx)
	if err != nil {
		healthy = false
	}

	return HealthStatus{Healthy: healthy, Services: services, Stats: stats}
}

func intOf(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	default:
		return 0
	}
}
