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
	"strings"
)

// QueryExpander generates query paraphrases, each of which HybridRetriever
// searches independently and fuses with RRF alongside the tiered results.
type QueryExpander interface {
	Expand(ctx context.Context, query string, numVariations int) ([]string, error)
}

// LLMQueryExpander uses an LLM to generate query variations.
//
// Grounded on the teacher's pkg/rag/query_expansion.go, ported from its
// a2a/model.LLM request shape to this package's narrow LLM interface.
type LLMQueryExpander struct {
	llm LLM
}

func NewLLMQueryExpander(llm LLM) *LLMQueryExpander {
	return &LLMQueryExpander{llm: llm}
}

func (e *LLMQueryExpander) Expand(ctx context.Context, query string, numVariations int) ([]string, error) {
	if numVariations <= 0 {
		numVariations = 3
	}
	if numVariations > 5 {
		numVariations = 5
	}

	prompt := fmt.Sprintf(`Generate %d different query variations for the following search query. Each variation should:
1. Use different wording or phrasing
2. Focus on different aspects or perspectives
3. Be semantically similar but not identical
4. Be suitable for document retrieval

Original query: %s

Return only a JSON array of query strings, one per line, without any additional text or explanation.
Example format: ["query 1", "query 2", "query 3"]`, numVariations, sanitizeInput(query))

	response, err := e.llm.Generate(ctx, prompt, 0.7, 200)
	if err != nil {
		return nil, fmt.Errorf("generate query variations: %w", err)
	}

	queries, err := parseQueryArray(response)
	if err != nil {
		queries = extractQueriesFromText(response)
	}
	if len(queries) == 0 {
		queries = []string{query}
	}
	if len(queries) > numVariations {
		queries = queries[:numVariations]
	}
	return queries, nil
}

// parseQueryArray parses a JSON array of query strings out of response,
// tolerating leading/trailing commentary around the array.
//
// Ported from the teacher's pkg/rag/query_expansion.go.
func parseQueryArray(response string) ([]string, error) {
	startIdx, endIdx, depth := -1, -1, 0
	for i, char := range response {
		switch char {
		case '[':
			if startIdx == -1 {
				startIdx = i
			}
			depth++
		case ']':
			depth--
			if depth == 0 && startIdx != -1 {
				endIdx = i + 1
			}
		}
		if endIdx != -1 {
			break
		}
	}
	if startIdx == -1 || endIdx == -1 {
		return nil, fmt.Errorf("no JSON array found")
	}

	jsonStr := response[startIdx:endIdx]
	jsonStr = jsonStr[1 : len(jsonStr)-1]

	var queries []string
	var current strings.Builder
	inQuotes, escape := false, false

	for _, char := range jsonStr {
		if escape {
			current.WriteRune(char)
			escape = false
			continue
		}
		if char == '\\' {
			escape = true
			continue
		}
		if char == '"' {
			if inQuotes {
				queries = append(queries, current.String())
				current.Reset()
			}
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			current.WriteRune(char)
		}
	}

	if len(queries) == 0 {
		return nil, fmt.Errorf("failed to parse queries")
	}
	return queries, nil
}

// extractQueriesFromText falls back to line-based extraction when the LLM
// did not return a clean JSON array.
//
// Ported from the teacher's pkg/rag/query_expansion.go.
func extractQueriesFromText(response string) []string {
	var queries []string
	for _, line := range strings.Split(response, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, `"`) && strings.HasSuffix(line, `"`) && len(line) >= 2:
			if q := line[1 : len(line)-1]; q != "" {
				queries = append(queries, q)
			}
		case strings.HasPrefix(line, "'") && strings.HasSuffix(line, "'") && len(line) >= 2:
			if q := line[1 : len(line)-1]; q != "" {
				queries = append(queries, q)
			}
		case len(line) > 10 && !strings.Contains(line, ":"):
			queries = append(queries, line)
		}
	}
	return queries
}

var _ QueryExpander = (*LLMQueryExpander)(nil)
