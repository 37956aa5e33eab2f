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

package retrieve

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LLM is the minimal chat-completion surface HyDE and query expansion need.
// Kept narrow (and distinct from internal/generate.LLM) so this package
// never imports internal/generate, which already imports this one.
type LLM interface {
	Generate(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error)
}

// HyDE implements Hypothetical Document Embeddings: instead of embedding the
// raw query for the first-stage vector search, an LLM drafts a hypothetical
// passage that would answer the query, and that passage is embedded and
// searched instead. The hypothetical passage's embedding tends to land
// closer to actually-relevant documents than the bare query's.
//
// Paper: "Precise Zero-Shot Dense Retrieval without Relevance Labels"
// https://arxiv.org/abs/2212.10496
//
// Grounded on the teacher's pkg/rag/hyde.go, ported from its a2a/model.LLM
// request shape to this package's narrow LLM interface.
type HyDE struct {
	llm LLM
}

func NewHyDE(llm LLM) *HyDE {
	return &HyDE{llm: llm}
}

// GenerateHypotheticalDocument drafts a short passage answering query.
func (h *HyDE) GenerateHypotheticalDocument(ctx context.Context, query string) (string, error) {
	if h.llm == nil {
		return "", fmt.Errorf("hyde: no LLM configured")
	}

	prompt := fmt.Sprintf(`Write a concise, hypothetical passage that would be highly relevant to answering the following query: %q

The passage should:
- Be brief (1-2 paragraphs)
- Directly address the core of the query
- Read like a real document excerpt
- Not mention that it is hypothetical

Passage:`, sanitizeInput(query))

	result, err := h.llm.Generate(ctx, prompt, 0.7, 300)
	if err != nil {
		return "", fmt.Errorf("generate hypothetical document: %w", err)
	}
	if strings.TrimSpace(result) == "" {
		return "", fmt.Errorf("hyde: llm returned an empty hypothetical document")
	}

	slog.Debug("generated hypothetical document", "query", truncate(query, 60), "length", len(result))
	return result, nil
}

// sanitizeInput strips common prompt-injection patterns from user-supplied
// query text before it is interpolated into an LLM prompt.
//
// Ported from the teacher's pkg/rag/sanitize.go.
func sanitizeInput(input string) string {
	sanitized := input
	for _, pat := range []string{
		"SYSTEM:", "System:", "system:",
		"ASSISTANT:", "Assistant:", "assistant:",
		"USER:", "User:", "user:",
		"Ignore previous instructions", "ignore previous instructions",
		"Ignore all previous", "ignore all previous",
		"Disregard previous", "disregard previous",
		"---", "===", "***", "```",
	} {
		sanitized = strings.ReplaceAll(sanitized, pat, "")
	}
	return strings.TrimSpace(sanitized)
}
