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

package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/kbrag/kbrag/internal/generate"
	"github.com/kbrag/kbrag/internal/orchestrator"
	"github.com/kbrag/kbrag/internal/rerrors"
)

const defaultIngestPattern = "**/*.md"

// normalizePattern adapts spec §6's glob-style pattern ("**/*.md") to
// IngestDirectory's basename matcher: WalkDir already recurses into every
// subdirectory, so the leading "**/ " is redundant and only the final path
// segment is meaningful to filepath.Match.
func normalizePattern(pattern string) string {
	if pattern == "" {
		pattern = defaultIngestPattern
	}
	if i := strings.LastIndex(pattern, "/"); i >= 0 {
		pattern = pattern[i+1:]
	}
	return pattern
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}
	if req.DirectoryPath == "" {
		writeError(w, http.StatusBadRequest, rerrors.NewInputError("ingest", "directory_path is required"))
		return
	}

	info, err := os.Stat(req.DirectoryPath)
	if os.IsNotExist(err) {
		writeError(w, http.StatusNotFound, fmt.Errorf("path not found: %s", req.DirectoryPath))
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	ctx := r.Context()

	if !info.IsDir() {
		n, err := s.orch.IngestDocument(ctx, req.DirectoryPath, req.ForceReingest)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, ingestResponse{
			Status:         "ok",
			FilesProcessed: 1,
			TotalChunks:    n,
			Message:        fmt.Sprintf("ingested %s (%d chunks)", filepath.Base(req.DirectoryPath), n),
		})
		return
	}

	report, err := s.orch.IngestDirectory(ctx, req.DirectoryPath, normalizePattern(req.Pattern))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{
		Status:         "ok",
		FilesProcessed: report.New + report.Changed + report.Unchanged,
		TotalChunks:    report.TotalChunks,
		Message: fmt.Sprintf(
			"new=%d changed=%d unchanged=%d errors=%d",
			report.New, report.Changed, report.Unchanged, report.Errors,
		),
		Stats: toIngestProgress(report.Progress),
	})
}

func toIngestProgress(p orchestrator.ProgressSnapshot) *ingestProgress {
	return &ingestProgress{
		TotalFiles:     p.TotalFiles,
		ProcessedFiles: p.ProcessedFiles,
		IndexedFiles:   p.IndexedFiles,
		SkippedFiles:   p.SkippedFiles,
		FailedFiles:    p.FailedFiles,
		ElapsedSeconds: p.ElapsedSeconds,
		ETASeconds:     p.ETASeconds,
		Done:           p.Done,
	}
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("malformed request body: %w", err))
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}

	result, err := s.orch.Query(r.Context(), orchestrator.QueryRequest{
		Query:                req.Query,
		TopK:                 req.TopK,
		UseCache:             useCache,
		EmbedderType:         req.QueryEmbedderType,
		EnableWebSearch:      req.EnableWebSearch,
		WebMode:              req.WebMode,
		UserContext:          req.UserContext,
		EnableHyDE:           req.EnableHyDE,
		EnableMultiQuery:     req.EnableMultiQuery,
		MultiQueryVariations: req.MultiQueryVariations,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	writeJSON(w, http.StatusOK, toQueryResponse(result))
}

func toQueryResponse(result orchestrator.QueryResult) queryResponse {
	sources := make([]citation, len(result.Sources))
	for i, c := range result.Sources {
		sources[i] = citation{
			DocIndex:     c.DocIndex,
			DocumentID:   c.DocumentID,
			SourcePath:   c.SourcePath,
			DocumentType: c.DocumentType,
			SourceType:   c.SourceType,
			CitationAPA:  formatAPA(c),
		}
		if c.HasScore {
			sources[i].Score = c.Score
		}
	}

	docs := make([]docMetric, len(result.RetrievalMetrics.Documents))
	for i, d := range result.RetrievalMetrics.Documents {
		docs[i] = docMetric{
			DocumentID:    d.DocumentID,
			SourcePath:    d.SourcePath,
			Rank:          d.Rank,
			Tier:          d.Tier,
			Score:         d.Score,
			RankingMethod: d.RankingMethod,
		}
	}

	return queryResponse{
		Answer:          result.Answer,
		Sources:         sources,
		CacheHit:        result.CacheHit,
		RetrievedDocs:   result.RetrievedDocs,
		ContextDocsUsed: result.ContextDocsUsed,
		RetrievalStats: retrievalStats{
			Tier1Results: result.RetrievalStats.LocalCount,
			Tier2Results: result.RetrievalStats.WebKBCount,
			Tier3Results: result.RetrievalStats.WebCount,
		},
		RetrievalMetrics: retrievalMetrics{
			Documents:      docs,
			ConsultedLocal: result.RetrievalMetrics.ConsultedLocal,
			ConsultedWebKB: result.RetrievalMetrics.ConsultedWebKB,
			ConsultedWeb:   result.RetrievalMetrics.ConsultedWeb,
		},
	}
}

// formatAPA builds a best-effort APA-style reference from the metadata the
// pipeline actually tracks. No author or publication date is carried
// through the pipeline, so this degrades to a titled source reference
// rather than a full APA citation -- spec §6's "where possible" caveat.
func formatAPA(c generate.Citation) string {
	if c.SourcePath == "" {
		return ""
	}
	title := filepath.Base(c.SourcePath)
	if c.DocumentType != "" {
		return fmt.Sprintf("%s. (%s).", title, c.DocumentType)
	}
	return title + "."
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.orch.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(stats))
}

func toStatsResponse(stats orchestrator.Stats) statsResponse {
	models := make(map[string]string, len(stats.PremiumModels)+1)
	models["local"] = stats.LocalModel
	for k, v := range stats.PremiumModels {
		models[k] = v
	}
	return statsResponse{
		Vector: vectorStats{
			PointCount: stats.VectorPointCount,
			VectorSize: stats.VectorDimension,
		},
		EmbeddingModels: models,
		VectorDimension: stats.VectorDimension,
		StageLatencies:  stats.StageLatencies,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.orch.HealthCheck(r.Context())

	status := http.StatusOK
	statusText := "ok"
	if !health.Healthy {
		status = http.StatusServiceUnavailable
		statusText = "unhealthy"
	}

	writeJSON(w, status, healthResponse{
		Status:   statusText,
		Services: health.Services,
		Stats:    toStatsResponse(health.Stats),
	})
}
