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
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kbrag/kbrag/internal/retrieve"
)

const fallbackAnswer = "I apologize, but I encountered an error generating a response."

// LLM is the minimal chat-completion surface the Generator needs, kept
// narrow so any backend (Ollama, OpenAI, Anthropic...) can implement it.
type LLM interface {
	Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// PackedItem is a retrieved item after context packing, possibly truncated.
type PackedItem struct {
	retrieve.RetrievedItem
	Truncated bool
}

// Citation is one `[Doc N]` reference resolved back to its source.
type Citation struct {
	DocIndex     int     `json:"doc_index"`
	DocumentID   string  `json:"document_id"`
	SourcePath   string  `json:"source_path"`
	DocumentType string  `json:"document_type"`
	SourceType   string  `json:"source_type"`
	Score        float64 `json:"score"`
	HasScore     bool    `json:"-"`
}

// Result is the shape spec §4.10 returns from Generate.
type Result struct {
	Answer             string     `json:"answer"`
	Sources            []Citation `json:"sources"`
	ContextDocsUsed    int        `json:"context_docs_used"`
	TotalDocsRetrieved int        `json:"total_docs_retrieved"`
}

// Config tunes context packing and LLM invocation.
type Config struct {
	Model             string
	MaxContextTokens  int
	MaxResponseTokens int
	Temperature       float64
}

func DefaultConfig() Config {
	return Config{Model: "qwen3:14b", MaxContextTokens: 8000, MaxResponseTokens: 2000, Temperature: 0.1}
}

// Generator implements spec §4.10.
//
// Grounded on original_source's HealthcareRAGGenerator.generate: pack
// context under a token budget, build a citation-instructing prompt, call
// the LLM, then regex-extract `[Doc N]` citations back to source metadata.
type Generator struct {
	llm     LLM
	counter *TokenCounter
	cfg     Config
}

func NewGenerator(llm LLM, cfg Config) *Generator {
	return &Generator{llm: llm, counter: NewTokenCounter(cfg.Model), cfg: cfg}
}

var citationPattern = regexp.MustCompile(`\[Doc (\d+)\]`)

func (g *Generator) Generate(ctx context.Context, query string, items []retrieve.RetrievedItem) (Result, error) {
	packed := g.packContext(items)
	prompt := buildPrompt(query, packed)

	answer, err := g.llm.Generate(ctx, prompt, g.cfg.Temperature, g.cfg.MaxResponseTokens)
	if err != nil {
		slog.Error("generation failed", "error", err)
		answer = fallbackAnswer
		packed = nil
	}

	return Result{
		Answer:             answer,
		Sources:            extractCitations(answer, packed),
		ContextDocsUsed:    len(packed),
		TotalDocsRetrieved: len(items),
	}, nil
}

// packContext greedily appends items (best score first) until the token
// budget is exhausted, truncating one final partial item if ≥100 tokens
// remain, per spec §4.10 step 1.
func (g *Generator) packContext(items []retrieve.RetrievedItem) []PackedItem {
	sorted := make([]retrieve.RetrievedItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Score > sorted[j].Score })

	var packed []PackedItem
	currentTokens := 0

	for _, item := range sorted {
		docTokens := g.counter.Count(item.Text)
		if currentTokens+docTokens <= g.cfg.MaxContextTokens {
			packed = append(packed, PackedItem{RetrievedItem: item})
			currentTokens += docTokens
			continue
		}

		remaining := g.cfg.MaxContextTokens - currentTokens
		if remaining >= 100 {
			item.Text = truncateToTokens(item.Text, remaining)
			packed = append(packed, PackedItem{RetrievedItem: item, Truncated: true})
		}
		break
	}

	return packed
}

func buildPrompt(query string, items []PackedItem) string {
	parts := make([]string, len(items))
	for i, item := range items {
		source := stringMeta(item.Metadata, "source_path")
		if source == "" {
			source = stringMeta(item.Metadata, "document_id")
		}
		if source == "" {
			source = "Unknown"
		}
		docType := stringMeta(item.Metadata, "document_type")
		if docType == "" {
			docType = "unknown"
		}
		parts[i] = fmt.Sprintf("[Doc %d] Source: %s\nType: %s\nContent:\n%s", i+1, source, docType, item.Text)
	}
	context := strings.Join(parts, "\n\n---\n\n")

	return fmt.Sprintf(`You are a helpful assistant that answers questions using the provided context.

Context (from pattern library):
%s

Question: %s

Instructions:
- Answer using ONLY the provided context
- Cite sources as [Doc X] for each claim
- Do not infer information not in context
- If information is missing, state that clearly
- Be precise and accurate

Answer:`, context, query)
}

func extractCitations(answer string, items []PackedItem) []Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)

	seen := make(map[int]bool)
	var citations []Citation
	for _, m := range matches {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		idx := n - 1
		if seen[idx] || idx < 0 || idx >= len(items) {
			continue
		}
		seen[idx] = true

		item := items[idx]
		sourceType := stringMeta(item.Metadata, "source_type")
		if sourceType == "" {
			sourceType = "pattern_library"
		}

		citations = append(citations, Citation{
			DocIndex:     idx,
			DocumentID:   stringMeta(item.Metadata, "document_id"),
			SourcePath:   stringMeta(item.Metadata, "source_path"),
			DocumentType: stringMeta(item.Metadata, "document_type"),
			SourceType:   sourceType,
			Score:        item.Score,
			HasScore:     true,
		})
	}

	sort.Slice(citations, func(i, j int) bool { return citations[i].DocIndex < citations[j].DocIndex })
	return citations
}

func stringMeta(metadata map[string]any, key string) string {
	if v, ok := metadata[key].(string); ok {
		return v
	}
	return ""
}
