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

// Package chunk splits extracted document text into a structure-aware
// sequence of Chunks with stable, content-addressed IDs.
//
// Derived from the teacher's pkg/rag chunker family (chunker.go,
// chunker_simple.go): the Chunker interface, config shape and
// good-break-point heuristics are kept; the splitting algorithm itself is
// rebuilt around markdown structure (headers, code fences, tables) rather
// than source-code line budgets.
package chunk

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// SectionType classifies the structural role of a chunk's source span.
type SectionType string

const (
	SectionText      SectionType = "text"
	SectionHeader    SectionType = "header"
	SectionCodeBlock SectionType = "code_block"
	SectionTable     SectionType = "table_chunk"
)

// DocumentType classifies the source document for extraction/chunking
// dispatch.
type DocumentType string

const (
	DocMarkdown DocumentType = "markdown"
	DocPDF      DocumentType = "pdf"
	DocText     DocumentType = "text"
)

// Chunk is a contiguous span of one document with preserved structure
// context.
type Chunk struct {
	ChunkID      string
	SourcePath   string
	Text         string
	ChunkIndex   int
	Total        int
	SectionType  SectionType
	SectionLevel int
	StartChar    int
	EndChar      int
	FileHash     string
	FileMtime    int64
	Metadata     map[string]any
}

// ID derives the deterministic chunk_id = UUID(md5(source_path + ":" +
// chunk_index)), so re-ingesting identical content yields identical IDs.
func ID(sourcePath string, chunkIndex int) string {
	sum := md5.Sum([]byte(sourcePath + ":" + itoa(chunkIndex)))
	return uuid.UUID(sum).String()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Chunker splits extracted text into an ordered sequence of Chunks.
type Chunker interface {
	Chunk(sourcePath string, text string, docType DocumentType) ([]Chunk, error)
}

// Config configures chunking size/overlap behavior, mirroring the
// teacher's ChunkerConfig shape.
type Config struct {
	// Size is the target chunk size in words.
	Size int

	// Overlap controls how many sentences carry over into the next chunk
	// during sentence-aware overlap splitting: overlap/10 sentences.
	Overlap int

	// MinSize is the minimum chunk size in words; trailing chunks smaller
	// than this are dropped.
	MinSize int
}

// DefaultConfig returns the spec's default chunking parameters.
func DefaultConfig() Config {
	return Config{Size: 1000, Overlap: 200, MinSize: 100}
}

func (c *Config) SetDefaults() {
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if c.MinSize <= 0 {
		c.MinSize = 100
	}
}
