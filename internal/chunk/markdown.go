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
	"regexp"
	"strings"
)

var headerRe = regexp.MustCompile(`^#{1,6}\s+`)
var tableSeparatorRe = regexp.MustCompile(`^\s*\|?[\s:|-]+\|?\s*$`)

// section is one structural unit detected while scanning markdown line by
// line: a header line, a fenced code block, or an accumulation of prose
// (possibly containing a table).
type section struct {
	sectionType SectionType
	level       int
	lines       []string
	offset      int // byte offset of lines[0] in the original document
}

func (s *section) text() string {
	return strings.Join(s.lines, "\n")
}

// lineOffset returns the absolute byte offset of s.lines[idx] in the
// original document.
func (s *section) lineOffset(idx int) int {
	off := s.offset
	for i := 0; i < idx; i++ {
		off += len(s.lines[i]) + 1
	}
	return off
}

// lineOffsets computes the byte offset of each line in content, as if
// content were reconstructed by joining lines with "\n".
func lineOffsets(lines []string) []int {
	offsets := make([]int, len(lines))
	cur := 0
	for i, l := range lines {
		offsets[i] = cur
		cur += len(l) + 1
	}
	return offsets
}

// MarkdownChunker implements the structure-aware splitting described for
// markdown documents: header/code-fence/table detection followed by
// sentence-aware overlap splitting of oversized sections.
//
// Grounded on the teacher's pkg/rag/chunker_simple.go good-break-point
// technique (SemanticChunker), generalized from source-code boundaries to
// markdown structure.
type MarkdownChunker struct {
	cfg Config
}

func NewMarkdownChunker(cfg Config) *MarkdownChunker {
	cfg.SetDefaults()
	return &MarkdownChunker{cfg: cfg}
}

func (c *MarkdownChunker) Chunk(sourcePath string, text string, docType DocumentType) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	sections := splitIntoSections(text)

	var out []Chunk
	for _, sec := range sections {
		out = append(out, c.emitSection(sourcePath, sec, out)...)
	}

	total := len(out)
	for i := range out {
		out[i].ChunkIndex = i
		out[i].Total = total
		out[i].ChunkID = ID(sourcePath, i)
	}

	return out, nil
}

// splitIntoSections scans content line by line, opening/closing code-fence
// sections, starting a new section at every header line (so two
// consecutive headers with no body yield the first as its own
// header-only chunk), and accumulating everything else as prose.
func splitIntoSections(content string) []section {
	lines := strings.Split(content, "\n")
	offsets := lineOffsets(lines)

	var sections []section
	cur := section{sectionType: SectionText}
	inCode := false

	flush := func() {
		if len(cur.lines) > 0 {
			sections = append(sections, cur)
		}
		cur = section{sectionType: SectionText}
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inCode {
			cur.lines = append(cur.lines, line)
			if strings.HasPrefix(trimmed, "```") {
				inCode = false
				flush()
			}
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			flush()
			cur = section{sectionType: SectionCodeBlock, lines: []string{line}, offset: offsets[i]}
			inCode = true
			continue
		}

		if headerRe.MatchString(line) {
			flush()
			level := 0
			for level < len(line) && line[level] == '#' {
				level++
			}
			cur = section{sectionType: SectionHeader, level: level, lines: []string{line}, offset: offsets[i]}
			continue
		}

		if len(cur.lines) == 0 {
			cur.offset = offsets[i]
		}
		cur.lines = append(cur.lines, line)
	}
	flush()

	for i := range sections {
		if sections[i].sectionType == SectionText && looksLikeTable(sections[i].lines) {
			sections[i].sectionType = SectionTable
		}
	}

	return sections
}

func looksLikeTable(lines []string) bool {
	for i := 1; i < len(lines); i++ {
		if strings.Contains(lines[i-1], "|") && tableSeparatorRe.MatchString(lines[i]) && strings.Contains(lines[i], "|") {
			return true
		}
	}
	return false
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}

func (c *MarkdownChunker) emitSection(sourcePath string, sec section, existing []Chunk) []Chunk {
	text := sec.text()
	if strings.TrimSpace(text) == "" {
		return nil
	}

	atomic := sec.sectionType == SectionCodeBlock || wordCount(text) <= c.cfg.Size
	if atomic {
		return []Chunk{{
			SourcePath:   sourcePath,
			Text:         text,
			SectionType:  sec.sectionType,
			SectionLevel: sec.level,
			StartChar:    sec.offset,
			EndChar:      sec.offset + len(text),
		}}
	}

	if sec.sectionType == SectionTable {
		return c.splitTable(sourcePath, sec)
	}

	parts := sentenceAwareSplit(text, c.cfg.Size, c.cfg.Overlap, c.cfg.MinSize)
	out := make([]Chunk, 0, len(parts))
	for _, p := range parts {
		out = append(out, Chunk{
			SourcePath:   sourcePath,
			Text:         p.Text,
			SectionType:  SectionText,
			SectionLevel: sec.level,
			StartChar:    sec.offset + p.Start,
			EndChar:      sec.offset + p.End,
		})
	}
	return out
}

// splitTable splits an oversized table section into chunks that each carry
// the original header + separator row, per spec's table-preservation rule.
// start_char/end_char anchor to the actual original content in each chunk:
// the header's own position for the first chunk (it really starts there),
// and the first included body row's position for later chunks, since their
// repeated header/separator lines aren't at that position in the source.
func (c *MarkdownChunker) splitTable(sourcePath string, sec section) []Chunk {
	lines := sec.lines
	if len(lines) < 2 {
		text := strings.Join(lines, "\n")
		return []Chunk{{SourcePath: sourcePath, Text: text, SectionType: SectionTable, StartChar: sec.offset, EndChar: sec.offset + len(text)}}
	}

	header := lines[0]
	separator := lines[1]
	body := lines[2:]

	var out []Chunk
	var cur []string
	var curStart, curEnd int
	curWords := wordCount(header) + wordCount(separator)

	flush := func() {
		if len(cur) == 0 {
			return
		}
		rows := append([]string{header, separator}, cur...)
		out = append(out, Chunk{
			SourcePath:  sourcePath,
			Text:        strings.Join(rows, "\n"),
			SectionType: SectionTable,
			StartChar:   curStart,
			EndChar:     curEnd,
		})
		cur = nil
		curWords = wordCount(header) + wordCount(separator)
	}

	for i, row := range body {
		rw := wordCount(row)
		if curWords+rw > c.cfg.Size && len(cur) > 0 {
			flush()
		}
		if len(cur) == 0 {
			if len(out) == 0 {
				curStart = sec.offset
			} else {
				curStart = sec.lineOffset(2 + i)
			}
		}
		cur = append(cur, row)
		curWords += rw
		curEnd = sec.lineOffset(2+i) + len(row)
	}
	flush()

	if len(out) == 0 {
		text := strings.Join(lines, "\n")
		out = append(out, Chunk{SourcePath: sourcePath, Text: text, SectionType: SectionTable, StartChar: sec.offset, EndChar: sec.offset + len(text)})
	}

	return out
}
