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

package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyFileYieldsNoChunks(t *testing.T) {
	c := New(DefaultConfig())
	chunks, err := c.Chunk("empty.md", "", DocMarkdown)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestDeterministicChunkIDsAcrossReingest(t *testing.T) {
	first := ID("docs/readme.md", 2)
	second := ID("docs/readme.md", 2)
	assert.Equal(t, first, second)

	other := ID("docs/readme.md", 3)
	assert.NotEqual(t, first, other)
}

func TestTwoConsecutiveHeadersWithNoBody(t *testing.T) {
	content := "# First\n## Second\nSome body text here.\n"
	sections := splitIntoSections(content)
	require.GreaterOrEqual(t, len(sections), 2)
	assert.Equal(t, SectionHeader, sections[0].sectionType)
	assert.Equal(t, "# First", sections[0].text())
	assert.Equal(t, SectionHeader, sections[1].sectionType)
}

func TestUnterminatedCodeFenceStillEmitted(t *testing.T) {
	content := "Intro paragraph.\n\n```go\nfunc main() {}\n"
	c := New(DefaultConfig())
	chunks, err := c.Chunk("code.md", content, DocMarkdown)
	require.NoError(t, err)

	var sawCode bool
	for _, ch := range chunks {
		if ch.SectionType == SectionCodeBlock {
			sawCode = true
			assert.True(t, strings.Contains(ch.Text, "func main()"))
		}
	}
	assert.True(t, sawCode, "expected an unterminated code fence to be emitted as its own chunk")
}

func TestMarkdownTableChunkPreservesHeaderOnSplit(t *testing.T) {
	header := "| Name | Value |"
	sep := "|------|-------|"
	var rows []string
	for i := 0; i < 500; i++ {
		rows = append(rows, "| row"+itoa(i)+" | v"+itoa(i)+" word word word word word word word |")
	}
	content := strings.Join(append([]string{header, sep}, rows...), "\n")

	cfg := Config{Size: 200, Overlap: 0, MinSize: 1}
	c := NewMarkdownChunker(cfg)
	chunks, err := c.Chunk("table.md", content, DocMarkdown)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for _, ch := range chunks {
		assert.Equal(t, SectionTable, ch.SectionType)
		assert.True(t, strings.HasPrefix(ch.Text, header))
	}
}

func TestGenericChunkerOverlapsParagraphs(t *testing.T) {
	cfg := Config{Size: 10, Overlap: 2, MinSize: 1}
	c := NewGenericChunker(cfg)
	content := "one two three four five\n\nsix seven eight nine ten\n\neleven twelve thirteen fourteen fifteen"
	chunks, err := c.Chunk("plain.txt", content, DocText)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(chunks), 2)
}

func TestSingleParagraphStartCharIsZero(t *testing.T) {
	c := New(DefaultConfig())
	content := "one two three four five six seven eight nine ten eleven twelve"
	chunks, err := c.Chunk("note.md", content, DocMarkdown)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, SectionText, chunks[0].SectionType)
	assert.Equal(t, 0, chunks[0].StartChar)
	assert.Equal(t, len(content), chunks[0].EndChar)
}

func TestChunkOffsetsAreOrderedAndWithinBounds(t *testing.T) {
	c := New(DefaultConfig())
	content := "# Title\n\nSome intro text.\n\n## Section\n\nMore body text here."
	chunks, err := c.Chunk("doc.md", content, DocMarkdown)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.GreaterOrEqual(t, ch.StartChar, 0)
		assert.LessOrEqual(t, ch.EndChar, len(content))
		assert.LessOrEqual(t, ch.StartChar, ch.EndChar)
		assert.Equal(t, content[ch.StartChar:ch.EndChar], ch.Text)
	}
}

func TestTableChunkOffsetsPointIntoOriginalRows(t *testing.T) {
	header := "| Name | Value |"
	sep := "|------|-------|"
	var rows []string
	for i := 0; i < 500; i++ {
		rows = append(rows, "| row"+itoa(i)+" | v"+itoa(i)+" word word word word word word word |")
	}
	content := strings.Join(append([]string{header, sep}, rows...), "\n")

	cfg := Config{Size: 200, Overlap: 0, MinSize: 1}
	c := NewMarkdownChunker(cfg)
	chunks, err := c.Chunk("table.md", content, DocMarkdown)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	assert.Equal(t, 0, chunks[0].StartChar)
	for _, ch := range chunks[1:] {
		assert.Equal(t, "| row", content[ch.StartChar:ch.StartChar+5])
	}
}

func TestOrderingIsAscendingChunkIndex(t *testing.T) {
	c := New(DefaultConfig())
	content := strings.Repeat("word ", 5000)
	chunks, err := c.Chunk("big.txt", content, DocText)
	require.NoError(t, err)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
	}
}
