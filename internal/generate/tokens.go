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

// Package generate implements spec §4.10: context packing under a token
// budget, citation-tagged prompt construction, LLM invocation, and citation
// extraction.
//
// Grounded on original_source's HealthcareRAGGenerator (_pack_context,
// _build_prompt_with_citations, _extract_citations) for the algorithm, and
// the teacher's pkg/utils.TokenCounter (tiktoken-go with a cl100k_base
// fallback) for accurate token counting in place of the original's bare
// len/4 heuristic.
package generate

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens accurately via tiktoken-go, falling back to
// the spec's len(text)/4 heuristic if no encoding can be resolved (e.g. an
// unrecognized model name and no network access to fetch BPE ranks).
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
	mu       sync.RWMutex
}

func NewTokenCounter(model string) *TokenCounter {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return &TokenCounter{}
	}
	return &TokenCounter{encoding: encoding}
}

// Count returns the token count for text, using the heuristic fallback
// when no tiktoken encoding is available.
func (tc *TokenCounter) Count(text string) int {
	if tc == nil || tc.encoding == nil {
		return heuristicTokens(text)
	}
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return len(tc.encoding.Encode(text, nil, nil))
}

func heuristicTokens(text string) int {
	return len(text) / 4
}

// truncateToTokens truncates text to approximately maxTokens, preferring to
// cut at a sentence or line boundary within the trailing 20% of the budget,
// per spec §4.10 step 1.
func truncateToTokens(text string, maxTokens int) string {
	maxChars := maxTokens * 4
	if len(text) <= maxChars {
		return text
	}

	truncated := text[:maxChars]
	lastPeriod := strings.LastIndex(truncated, ".")
	lastNewline := strings.LastIndex(truncated, "\n")

	cutPoint := lastPeriod
	if lastNewline > cutPoint {
		cutPoint = lastNewline
	}

	if cutPoint > int(float64(maxChars)*0.8) {
		return text[:cutPoint+1]
	}
	return truncated + "..."
}
