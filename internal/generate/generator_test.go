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

package generate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbrag/kbrag/internal/retrieve"
)

type fakeLLM struct {
	answer    string
	err       error
	gotPrompt string
}

func (f *fakeLLM) Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	f.gotPrompt = prompt
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

func item(id, text string, score float64, meta map[string]any) retrieve.RetrievedItem {
	return retrieve.RetrievedItem{ID: id, Text: text, Score: score, Metadata: meta}
}

func TestGenerateBuildsPromptWithCitationsAndExtractsSources(t *testing.T) {
	llm := &fakeLLM{answer: "Go was designed at Google [Doc 1]. It has goroutines [Doc 2]."}
	g := NewGenerator(llm, DefaultConfig())

	items := []retrieve.RetrievedItem{
		item("a", "Go was designed at Google in 2007.", 0.9, map[string]any{"source_path": "a.md", "document_type": "markdown"}),
		item("b", "Goroutines are lightweight threads.", 0.8, map[string]any{"source_path": "b.md", "document_type": "markdown"}),
	}

	result, err := g.Generate(context.Background(), "who made go", items)
	require.NoError(t, err)

	assert.Contains(t, llm.gotPrompt, "[Doc 1] Source: a.md")
	assert.Contains(t, llm.gotPrompt, "Cite sources as [Doc X]")
	assert.Equal(t, 2, result.ContextDocsUsed)
	assert.Equal(t, 2, result.TotalDocsRetrieved)
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "a.md", result.Sources[0].SourcePath)
	assert.Equal(t, "b.md", result.Sources[1].SourcePath)
}

func TestGenerateReturnsFallbackAnswerOnLLMError(t *testing.T) {
	llm := &fakeLLM{err: assertErr("llm down")}
	g := NewGenerator(llm, DefaultConfig())

	result, err := g.Generate(context.Background(), "q", []retrieve.RetrievedItem{item("a", "text", 0.5, nil)})
	require.NoError(t, err)
	assert.Equal(t, fallbackAnswer, result.Answer)
	assert.Empty(t, result.Sources)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestPackContextStopsAtTokenBudget(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, Config{Model: "gpt-4", MaxContextTokens: 10, MaxResponseTokens: 100, Temperature: 0.1})

	big := strings.Repeat("word ", 100) // ~500 chars, well over budget alone
	items := []retrieve.RetrievedItem{
		item("a", "short", 0.9, nil),
		item("b", big, 0.5, nil),
	}

	packed := g.packContext(items)
	require.NotEmpty(t, packed)
	assert.Equal(t, "a", packed[0].ID)
}

func TestPackContextTruncatesPartialFinalItem(t *testing.T) {
	g := NewGenerator(&fakeLLM{}, Config{Model: "gpt-4", MaxContextTokens: 200, MaxResponseTokens: 100, Temperature: 0.1})

	big := strings.Repeat("This is a sentence. ", 200)
	items := []retrieve.RetrievedItem{item("a", big, 0.9, nil)}

	packed := g.packContext(items)
	require.Len(t, packed, 1)
	assert.True(t, packed[0].Truncated)
	assert.Less(t, len(packed[0].Text), len(big))
}

func TestExtractCitationsDedupesAndIgnoresOutOfRange(t *testing.T) {
	items := []PackedItem{
		{RetrievedItem: item("a", "text", 0.9, map[string]any{"document_id": "doc-a"})},
	}
	answer := "See [Doc 1] and again [Doc 1] but not [Doc 5]."
	citations := extractCitations(answer, items)
	require.Len(t, citations, 1)
	assert.Equal(t, "doc-a", citations[0].DocumentID)
}

func TestTokenCounterFallsBackToHeuristicWithoutEncoding(t *testing.T) {
	tc := &TokenCounter{}
	assert.Equal(t, len("abcdefgh")/4, tc.Count("abcdefgh"))
}

func TestTruncateToTokensCutsAtSentenceBoundary(t *testing.T) {
	text := "First sentence. Second sentence. " + strings.Repeat("x", 100)
	out := truncateToTokens(text, 8)
	assert.Equal(t, "First sentence. Second sentence.", out)
}
