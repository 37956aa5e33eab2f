// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package extract turns a file on disk into plain text with a confidence
// score and a detected document type, via a multi-stage fallback chain.
//
// Derived from the teacher's pkg/rag/extractor.go (ExtractorRegistry,
// priority-ordered fallthrough) and pkg/rag/native_parsers.go (pdfParser),
// adapted from a priority-registry into the spec's explicit confidence-
// threshold fallback chain.
package extract

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/kbrag/kbrag/internal/chunk"
	"github.com/kbrag/kbrag/internal/rerrors"
)

// Result is what an Extractor returns for one document.
type Result struct {
	Text         string
	Confidence   float64
	Method       string
	DocumentType chunk.DocumentType
	HasTables    bool
	Tables       []string
}

// Extractor turns file bytes into text, per spec §4.1.
type Extractor interface {
	Extract(ctx context.Context, path string) (Result, error)
}

// MultiStageExtractor dispatches by detected type and runs the
// confidence-gated fallback chain described in spec §4.1.
type MultiStageExtractor struct {
	pdf *PDFExtractor
}

func New() *MultiStageExtractor {
	return &MultiStageExtractor{pdf: NewPDFExtractor()}
}

func (e *MultiStageExtractor) Extract(ctx context.Context, path string) (Result, error) {
	docType := detectDocumentType(path)

	switch docType {
	case chunk.DocPDF:
		return e.extractPDF(ctx, path)
	case chunk.DocMarkdown, chunk.DocText:
		return e.extractText(path, docType)
	default:
		if res, err := e.extractPDF(ctx, path); err == nil {
			return res, nil
		}
		if res, err := e.extractText(path, chunk.DocText); err == nil {
			return res, nil
		}
		return Result{}, rerrors.NewExtractionError(path, "detect", "unsupported format", nil)
	}
}

func detectDocumentType(path string) chunk.DocumentType {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return chunk.DocMarkdown
	case ".pdf":
		return chunk.DocPDF
	case ".txt", ".text", "":
		return chunk.DocText
	default:
		return chunk.DocText
	}
}

func (e *MultiStageExtractor) extractText(path string, docType chunk.DocumentType) (Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Result{}, rerrors.NewExtractionError(path, "read", err.Error(), err)
	}

	text := cleanUTF8(raw)
	if text == "" && len(raw) > 0 {
		return Result{}, rerrors.NewExtractionError(path, "text", "content is not valid UTF-8", nil)
	}

	confidence := 0.9
	if docType == chunk.DocMarkdown {
		confidence = 0.95
	}

	return Result{
		Text:         text,
		Confidence:   confidence,
		Method:       "text",
		DocumentType: docType,
		HasTables:    strings.Contains(text, "|---") || strings.Contains(text, "| ---"),
	}, nil
}

func (e *MultiStageExtractor) extractPDF(ctx context.Context, path string) (Result, error) {
	stage1Text, stage1Err := e.pdf.ExtractFast(ctx, path)
	if stage1Err == nil {
		conf := confidenceFor(stage1Text, false)
		if conf > 0.85 {
			return Result{Text: stage1Text, Confidence: conf, Method: "pdf_stage1", DocumentType: chunk.DocPDF}, nil
		}
	}

	stage2Text, hasTables, stage2Err := e.pdf.ExtractTableAware(ctx, path)
	if stage2Err == nil {
		conf := confidenceFor(stage2Text, hasTables)
		if conf > 0.75 {
			return Result{Text: stage2Text, Confidence: conf, Method: "pdf_stage2", DocumentType: chunk.DocPDF, HasTables: hasTables}, nil
		}
	}

	if stage1Err == nil {
		conf := confidenceFor(stage1Text, false)
		if conf > 0.95 {
			conf = 0.5
		} else {
			conf = min(conf, 0.5)
		}
		return Result{Text: stage1Text, Confidence: conf, Method: "pdf_stage1_fallback", DocumentType: chunk.DocPDF}, nil
	}

	if stage2Err != nil {
		return Result{}, rerrors.NewExtractionError(path, "pdf", "all extraction stages failed", stage2Err)
	}
	return Result{}, rerrors.NewExtractionError(path, "pdf", "all extraction stages failed", stage1Err)
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// confidenceFor implements spec's confidence heuristic: base 0.5, +0.2 if
// >100 words, +0.1 if >500 words, +0.1 if >5 paragraphs, +0.1 if >10
// sentence terminators, clamp to 0.95. Empty text scores 0. Tables add a
// further +0.1, clamped to 0.95.
func confidenceFor(text string, hasTables bool) float64 {
	if strings.TrimSpace(text) == "" {
		return 0.0
	}

	words := len(strings.Fields(text))
	paragraphs := len(strings.Split(text, "\n\n"))
	terminators := strings.Count(text, ".") + strings.Count(text, "!") + strings.Count(text, "?")

	score := 0.5
	if words > 100 {
		score += 0.2
	}
	if words > 500 {
		score += 0.1
	}
	if paragraphs > 5 {
		score += 0.1
	}
	if terminators > 10 {
		score += 0.1
	}
	if hasTables {
		score += 0.1
	}

	if score > 0.95 {
		score = 0.95
	}
	return score
}

// cleanUTF8 strips invalid UTF-8 sequences, rejecting content that is more
// than half invalid.
func cleanUTF8(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}

	var b strings.Builder
	invalid := 0
	total := 0

	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		total++
		if r == utf8.RuneError && size == 1 {
			invalid++
			raw = raw[1:]
			continue
		}
		b.WriteRune(r)
		raw = raw[size:]
	}

	if total == 0 || float64(invalid)/float64(total) > 0.5 {
		return ""
	}
	return b.String()
}
