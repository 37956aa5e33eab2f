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

import "github.com/kbrag/kbrag/internal/retrieve"

// ingestRequest is POST /ingest's body, spec §6.
type ingestRequest struct {
	DirectoryPath string `json:"directory_path,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
	ForceReingest bool   `json:"force_reingest,omitempty"`
}

// ingestResponse is POST /ingest's response, spec §6.
type ingestResponse struct {
	Status         string          `json:"status"`
	FilesProcessed int             `json:"files_processed"`
	TotalChunks    int             `json:"total_chunks"`
	Message        string          `json:"message"`
	Stats          *ingestProgress `json:"stats,omitempty"`
}

// ingestProgress mirrors orchestrator.ProgressSnapshot for the wire format:
// processed/indexed/skipped/failed counts and an ETA for a directory ingest.
type ingestProgress struct {
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
	IndexedFiles   int     `json:"indexed_files"`
	SkippedFiles   int     `json:"skipped_files"`
	FailedFiles    int     `json:"failed_files"`
	ElapsedSeconds float64 `json:"elapsed_seconds"`
	ETASeconds     float64 `json:"eta_seconds,omitempty"`
	Done           bool    `json:"done"`
}

// queryRequest is POST /query's body, spec §5/§6.
type queryRequest struct {
	Query                string           `json:"query"`
	TopK                 int              `json:"top_k,omitempty"`
	UseCache             *bool            `json:"use_cache,omitempty"`
	UserContext          string           `json:"user_context,omitempty"`
	QueryEmbedderType    string           `json:"query_embedder_type,omitempty"`
	EnableWebSearch      bool             `json:"enable_web_search,omitempty"`
	WebMode              retrieve.WebMode `json:"web_mode,omitempty"`
	EnableHyDE           bool             `json:"enable_hyde,omitempty"`
	EnableMultiQuery     bool             `json:"enable_multi_query,omitempty"`
	MultiQueryVariations int              `json:"multi_query_variations,omitempty"`
}

// docMetric mirrors orchestrator.DocMetric for the wire format.
type docMetric struct {
	DocumentID    string  `json:"document_id"`
	SourcePath    string  `json:"source_path,omitempty"`
	Rank          int     `json:"rank"`
	Tier          string  `json:"tier"`
	Score         float64 `json:"score"`
	RankingMethod string  `json:"ranking_method,omitempty"`
}

// retrievalStats mirrors orchestrator.RetrievalStats for the wire format.
type retrievalStats struct {
	Tier1Results int `json:"tier_1_results"`
	Tier2Results int `json:"tier_2_results"`
	Tier3Results int `json:"tier_3_results"`
}

// retrievalMetrics mirrors orchestrator.RetrievalMetrics for the wire format.
type retrievalMetrics struct {
	Documents      []docMetric `json:"documents"`
	ConsultedLocal bool        `json:"consulted_local"`
	ConsultedWebKB bool        `json:"consulted_web_kb"`
	ConsultedWeb   bool        `json:"consulted_web"`
}

// citation mirrors generate.Citation for the wire format.
type citation struct {
	DocIndex     int     `json:"doc_index"`
	DocumentID   string  `json:"document_id,omitempty"`
	SourcePath   string  `json:"source_path,omitempty"`
	DocumentType string  `json:"document_type,omitempty"`
	SourceType   string  `json:"source_type,omitempty"`
	Score        float64 `json:"score,omitempty"`
	CitationAPA  string  `json:"citation_apa,omitempty"`
}

// queryResponse is POST /query's response, spec §4.12/§6.
type queryResponse struct {
	Answer           string           `json:"answer"`
	Sources          []citation       `json:"sources"`
	CacheHit         bool             `json:"cache_hit"`
	RetrievedDocs    int              `json:"retrieved_docs"`
	ContextDocsUsed  int              `json:"context_docs_used"`
	RetrievalStats   retrievalStats   `json:"retrieval_stats"`
	RetrievalMetrics retrievalMetrics `json:"retrieval_metrics"`
}

// vectorStats is /stats's "qdrant|vector" field, spec §6.
type vectorStats struct {
	PointCount int `json:"point_count"`
	VectorSize int `json:"vector_size"`
}

// statsResponse is GET /stats's response, spec §6.
type statsResponse struct {
	Vector          vectorStats        `json:"vector"`
	EmbeddingModels map[string]string  `json:"embedding_models"`
	VectorDimension int                `json:"vector_dimension"`
	StageLatencies  map[string]float64 `json:"stage_latencies_seconds,omitempty"`
}

// healthResponse is GET /health's response, spec §6.
type healthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
	Stats    statsResponse     `json:"stats"`
}

// errorResponse is the structured failure envelope spec §7 requires: every
// user-visible failure carries a status field, never an opaque stack trace.
type errorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
