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
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrag/kbrag/internal/chunk"
	"github.com/kbrag/kbrag/internal/embed"
	"github.com/kbrag/kbrag/internal/extract"
	"github.com/kbrag/kbrag/internal/generate"
	"github.com/kbrag/kbrag/internal/keywordindex"
	"github.com/kbrag/kbrag/internal/orchestrator"
	"github.com/kbrag/kbrag/internal/retrieve"
	"github.com/kbrag/kbrag/internal/vectorindex"
)

type diskExtractor struct{}

func (diskExtractor) Extract(ctx context.Context, path string) (extract.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.Result{Text: string(data), DocumentType: chunk.DocText, Confidence: 1}, nil
}

type oneChunker struct{}

func (oneChunker) Chunk(sourcePath, text string, docType chunk.DocumentType) ([]chunk.Chunk, error) {
	if text == "" {
		return nil, nil
	}
	return []chunk.Chunk{{
		ChunkID:     chunk.ID(sourcePath, 0),
		SourcePath:  sourcePath,
		Text:        text,
		ChunkIndex:  0,
		Total:       1,
		SectionType: chunk.SectionText,
	}}, nil
}

type fakeEmbedBackend struct{ dim int }

func (f *fakeEmbedBackend) Name() string   { return "fake" }
func (f *fakeEmbedBackend) Dimension() int { return f.dim }
func (f *fakeEmbedBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, f.dim)
		v[0] = 1.0
		out[i] = v
	}
	return out, nil
}

type fakeLLM struct{ answer string }

func (f *fakeLLM) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	return f.answer, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	vector, err := vectorindex.NewChromemProvider(vectorindex.ChromemConfig{})
	require.NoError(t, err)

	keyword, err := keywordindex.New("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	backend := &fakeEmbedBackend{dim: 4}
	embedder := embed.NewService(backend, map[string]embed.Backend{"ollama": backend}, "ollama")

	twoStep := retrieve.NewTwoStepRetriever(embedder, vector, orchestrator.DocumentCollection)
	hybrid := retrieve.NewHybridRetriever(twoStep, keyword, nil, nil)

	generator := generate.NewGenerator(&fakeLLM{answer: "Here is the answer [Doc 1]."}, generate.DefaultConfig())

	orch := orchestrator.New(diskExtractor{}, oneChunker{}, embedder, vector, keyword, hybrid, generator, nil, nil, orchestrator.Config{
		MaxConcurrentIndexing: 2,
	})

	srv := New("", orch, nil)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func TestIngestMissingDirectoryReturns404(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/ingest", ingestRequest{DirectoryPath: "/does/not/exist"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestIngestMissingPathReturns400(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/ingest", ingestRequest{})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestIngestSingleFile(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world, a document about goroutines"), 0o644))

	resp := postJSON(t, ts, "/ingest", ingestRequest{DirectoryPath: path})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 1, out.FilesProcessed)
	assert.Equal(t, 1, out.TotalChunks)
}

func TestIngestDirectory(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("first document"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("second document"), 0o644))

	resp := postJSON(t, ts, "/ingest", ingestRequest{DirectoryPath: dir, Pattern: "**/*.md"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ingestResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 2, out.FilesProcessed)
	require.NotNil(t, out.Stats)
	assert.Equal(t, 2, out.Stats.TotalFiles)
	assert.True(t, out.Stats.Done)
}

func TestQueryEmptyIndexReturnsNoInformationAnswer(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/query", queryRequest{Query: "what is the meaning of life"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Zero(t, out.RetrievedDocs)
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	ts := newTestServer(t)
	resp := postJSON(t, ts, "/query", queryRequest{Query: ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestQueryAfterIngestReturnsAnswerWithMetrics(t *testing.T) {
	ts := newTestServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("go routines are lightweight threads managed by the go runtime"), 0o644))

	ingestResp := postJSON(t, ts, "/ingest", ingestRequest{DirectoryPath: path})
	ingestResp.Body.Close()
	require.Equal(t, http.StatusOK, ingestResp.StatusCode)

	resp := postJSON(t, ts, "/query", queryRequest{Query: "what are goroutines"})
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out queryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Here is the answer [Doc 1].", out.Answer)
	assert.NotZero(t, out.RetrievedDocs)
	assert.True(t, out.RetrievalMetrics.ConsultedLocal)
}

func TestStatsReportsVectorDimension(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out statsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, 4, out.VectorDimension)
	assert.Equal(t, "fake", out.EmbeddingModels["local"])
}

func TestHealthReportsOKWhenBackendsReachable(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out.Status)
	assert.Equal(t, "ok", out.Services["vector"])
	assert.Equal(t, "ok", out.Services["keyword"])
	assert.Equal(t, "not configured", out.Services["cache"])
}
