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

package keywordindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAndSearchRanksByRelevance(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)
	defer idx.Close()

	docs := []Doc{
		{ID: "a", Text: "rate limiting and exponential backoff", Metadata: map[string]any{"source_path": "a.md"}},
		{ID: "b", Text: "chunking strategy for markdown files", Metadata: map[string]any{"source_path": "b.md"}},
	}
	require.NoError(t, idx.IndexDocuments(docs))

	hits, err := idx.Search("backoff", 10, nil)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "a", hits[0].ID)
}

func TestSearchWithFilterRestrictsResults(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)
	defer idx.Close()

	docs := []Doc{
		{ID: "a", Text: "retrieval pipeline overview", Metadata: map[string]any{"source_path": "a.md"}},
		{ID: "b", Text: "retrieval pipeline overview", Metadata: map[string]any{"source_path": "b.md"}},
	}
	require.NoError(t, idx.IndexDocuments(docs))

	hits, err := idx.Search("retrieval", 10, map[string]string{"source_path": "b.md"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)
}

func TestDeleteByRemovesMatchingDocuments(t *testing.T) {
	idx, err := New("")
	require.NoError(t, err)
	defer idx.Close()

	docs := []Doc{
		{ID: "a", Text: "content one", Metadata: map[string]any{"source_path": "a.md"}},
		{ID: "b", Text: "content two", Metadata: map[string]any{"source_path": "a.md"}},
	}
	require.NoError(t, idx.IndexDocuments(docs))
	require.NoError(t, idx.DeleteBy("source_path", "a.md"))

	hits, err := idx.Search("content", 10, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
