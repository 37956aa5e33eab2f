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

package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrag/kbrag/internal/chunk"
	"github.com/kbrag/kbrag/internal/extract"
	"github.com/kbrag/kbrag/internal/generate"
	"github.com/kbrag/kbrag/internal/keywordindex"
	"github.com/kbrag/kbrag/internal/retrieve"
	"github.com/kbrag/kbrag/internal/vectorindex"

	"github.com/kbrag/kbrag/internal/embed"
)

// diskExtractor reads the raw file bytes, exercising the real content-hash
// change-detection path end to end.
type diskExtractor struct{}

func (diskExtractor) Extract(ctx context.Context, path string) (extract.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.Result{Text: string(data), DocumentType: chunk.DocText, Confidence: 1}, nil
}

// oneChunker turns a whole document into a single chunk, enough to
// exercise the ingest/query plumbing without the full structural splitter.
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

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	vector, err := vectorindex.NewChromemProvider(vectorindex.ChromemConfig{})
	require.NoError(t, err)

	keyword, err := keywordindex.New("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = keyword.Close() })

	backend := &fakeEmbedBackend{dim: 4}
	embedder := embed.NewService(backend, map[string]embed.Backend{"ollama": backend}, "ollama")

	twoStep := retrieve.NewTwoStepRetriever(embedder, vector, DocumentCollection)
	hybrid := retrieve.NewHybridRetriever(twoStep, keyword, nil, nil)

	generator := generate.NewGenerator(&fakeLLM{answer: "Here is the answer [Doc 1]."}, generate.DefaultConfig())

	return New(diskExtractor{}, oneChunker{}, embedder, vector, keyword, hybrid, generator, nil, nil, Config{
		MaxConcurrentIndexing: 2,
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestDocumentIndexesNewFile(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "hello world, this is a document about go routines")

	n, err := o.IngestDocument(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestDocumentSkipsUnchangedFile(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "stable content")

	_, err := o.IngestDocument(context.Background(), path, false)
	require.NoError(t, err)

	n, err := o.IngestDocument(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIngestDocumentForceReindexesUnchangedFile(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "stable content")

	_, err := o.IngestDocument(context.Background(), path, false)
	require.NoError(t, err)

	n, err := o.IngestDocument(context.Background(), path, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestIngestDocumentReplacesOnContentChange(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "version one")

	status, _, err := o.ingestFile(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, StatusNew, status)

	require.NoError(t, os.WriteFile(path, []byte("version two, materially different"), 0o644))

	status, n, err := o.ingestFile(context.Background(), path, false)
	require.NoError(t, err)
	assert.Equal(t, StatusChanged, status)
	assert.Equal(t, 1, n)
}

func TestIngestDirectoryClassifiesNewFiles(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "first document about databases")
	writeFile(t, dir, "b.txt", "second document about networking")
	writeFile(t, dir, "ignore.md", "should not match pattern")

	report, err := o.IngestDirectory(context.Background(), dir, "*.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, report.New)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, 2, report.Progress.TotalFiles)
	assert.Equal(t, 2, report.Progress.ProcessedFiles)
	assert.Equal(t, 2, report.Progress.IndexedFiles)
	assert.True(t, report.Progress.Done)
}

func TestIngestDirectorySecondRunReportsUnchanged(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "first document about databases")

	_, err := o.IngestDirectory(context.Background(), dir, "*.txt")
	require.NoError(t, err)

	report, err := o.IngestDirectory(context.Background(), dir, "*.txt")
	require.NoError(t, err)
	assert.Equal(t, 0, report.New)
	assert.Equal(t, 1, report.Unchanged)
}

func TestQueryReturnsNoInformationAnswerWhenIndexEmpty(t *testing.T) {
	o := newTestOrchestrator(t)

	result, err := o.Query(context.Background(), QueryRequest{Query: "what is the meaning of life"})
	require.NoError(t, err)
	assert.Equal(t, noInformationAnswer, result.Answer)
	assert.Zero(t, result.RetrievedDocs)
}

func TestQueryReturnsGeneratedAnswerWithRetrievalMetrics(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "go routines are lightweight threads managed by the go runtime")

	_, err := o.IngestDocument(context.Background(), path, false)
	require.NoError(t, err)

	result, err := o.Query(context.Background(), QueryRequest{Query: "what are goroutines", TopK: 5})
	require.NoError(t, err)
	assert.Equal(t, "Here is the answer [Doc 1].", result.Answer)
	assert.NotZero(t, result.RetrievedDocs)
	assert.True(t, result.RetrievalMetrics.ConsultedLocal)
	assert.Equal(t, result.RetrievedDocs, result.RetrievalStats.LocalCount)
}

func TestQueryRecordsStageLatencies(t *testing.T) {
	o := newTestOrchestrator(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "a.txt", "go routines are lightweight threads managed by the go runtime")

	_, err := o.IngestDocument(context.Background(), path, false)
	require.NoError(t, err)

	_, err = o.Query(context.Background(), QueryRequest{Query: "what are goroutines", TopK: 5})
	require.NoError(t, err)

	stats, err := o.Stats(context.Background())
	require.NoError(t, err)
	assert.Contains(t, stats.StageLatencies, "retrieve")
	assert.Contains(t, stats.StageLatencies, "generate")
}

func TestQueryRejectsEmptyQuery(t *testing.T) {
	o := newTestOrchestrator(t)
	_, err := o.Query(context.Background(), QueryRequest{Query: ""})
	assert.Error(t, err)
}

func TestCitationsRoundTripThroughMaps(t *testing.T) {
	original := []generate.Citation{
		{DocIndex: 0, DocumentID: "doc-1", SourcePath: "a.md", DocumentType: "markdown", SourceType: "pattern_library", Score: 0.9, HasScore: true},
	}
	roundTripped := mapsToCitations(citationsToMaps(original))
	require.Len(t, roundTripped, 1)
	assert.Equal(t, original[0], roundTripped[0])
}
