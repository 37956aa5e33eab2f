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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLLMQueryExpanderParsesJSONArray(t *testing.T) {
	llm := &fakeHyDELLM{response: `Sure, here you go: ["how does RRF fusion work", "reciprocal rank fusion explained", "RRF algorithm details"]`}
	e := NewLLMQueryExpander(llm)

	queries, err := e.Expand(context.Background(), "what is RRF", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"how does RRF fusion work",
		"reciprocal rank fusion explained",
		"RRF algorithm details",
	}, queries)
}

func TestLLMQueryExpanderFallsBackToLineExtraction(t *testing.T) {
	llm := &fakeHyDELLM{response: "how does RRF fusion work\nreciprocal rank fusion explained"}
	e := NewLLMQueryExpander(llm)

	queries, err := e.Expand(context.Background(), "what is RRF", 2)
	require.NoError(t, err)
	assert.Len(t, queries, 2)
}

func TestLLMQueryExpanderClampsVariationCount(t *testing.T) {
	llm := &fakeHyDELLM{response: `["a", "b", "c", "d", "e", "f", "g"]`}
	e := NewLLMQueryExpander(llm)

	queries, err := e.Expand(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(queries), 5)
}

func TestLLMQueryExpanderFallsBackToOriginalQueryOnUnparseableResponse(t *testing.T) {
	llm := &fakeHyDELLM{response: "a: b"}
	e := NewLLMQueryExpander(llm)

	queries, err := e.Expand(context.Background(), "original query", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"original query"}, queries)
}
