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

import "strings"

// GenericChunker implements paragraph-based chunking for plain text and
// any document with no recognizable markdown structure.
//
// Grounded on the teacher's pkg/rag/chunker_simple.go OverlappingChunker:
// same greedy-accumulate-then-carry-overlap technique, generalized from a
// line budget to a paragraph/word budget per spec §4.2's Generic mode.
type GenericChunker struct {
	cfg Config
}

func NewGenericChunker(cfg Config) *GenericChunker {
	cfg.SetDefaults()
	return &GenericChunker{cfg: cfg}
}

func (c *GenericChunker) Chunk(sourcePath string, text string, docType DocumentType) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	paragraphs := splitParagraphs(text)

	var chunks []Chunk
	var cur []paragraphSpan
	curWords := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		texts := make([]string, len(cur))
		for i, p := range cur {
			texts[i] = p.text
		}
		chunks = append(chunks, Chunk{
			SourcePath:  sourcePath,
			Text:        strings.Join(texts, "\n\n"),
			SectionType: SectionText,
			StartChar:   cur[0].start,
			EndChar:     cur[len(cur)-1].end,
		})
	}

	for _, p := range paragraphs {
		w := wordCount(p.text)
		if curWords > 0 && curWords+w > c.cfg.Size {
			flush()
			overlapStart := 0
			if len(cur) > 2 {
				overlapStart = len(cur) - 2
			}
			cur = append([]paragraphSpan{}, cur[overlapStart:]...)
			curWords = 0
			for _, s := range cur {
				curWords += wordCount(s.text)
			}
		}
		cur = append(cur, p)
		curWords += w
	}
	flush()

	total := len(chunks)
	for i := range chunks {
		chunks[i].ChunkIndex = i
		chunks[i].Total = total
		chunks[i].ChunkID = ID(sourcePath, i)
	}

	return chunks, nil
}

// paragraphSpan is a paragraph paired with its byte offsets in the text it
// was split from.
type paragraphSpan struct {
	text  string
	start int
	end   int
}

func splitParagraphs(text string) []paragraphSpan {
	raw := strings.Split(text, "\n\n")
	var out []paragraphSpan
	offset := 0
	for _, p := range raw {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			rel := strings.Index(p, trimmed)
			start := offset + rel
			out = append(out, paragraphSpan{text: trimmed, start: start, end: start + len(trimmed)})
		}
		offset += len(p) + 2
	}
	return out
}
