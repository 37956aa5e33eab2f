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

var sentenceBoundaryRe = regexp.MustCompile(`(?s)([.!?])\s+`)

// sentenceSpan is one sentence together with its byte offsets in the text
// it was split from, so callers can recover start_char/end_char without
// re-searching for the (whitespace-trimmed) sentence text.
type sentenceSpan struct {
	text  string
	start int
	end   int
}

// splitSentences breaks text on sentence-terminating punctuation, keeping
// the terminator attached to the preceding sentence.
func splitSentences(text string) []sentenceSpan {
	matches := sentenceBoundaryRe.FindAllStringIndex(text, -1)
	if len(matches) == 0 {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			return nil
		}
		start := strings.Index(text, trimmed)
		return []sentenceSpan{{text: trimmed, start: start, end: start + len(trimmed)}}
	}

	var sentences []sentenceSpan
	start := 0
	for _, m := range matches {
		end := m[1]
		raw := text[start:end]
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			rel := strings.Index(raw, trimmed)
			sentences = append(sentences, sentenceSpan{
				text:  trimmed,
				start: start + rel,
				end:   start + rel + len(trimmed),
			})
		}
		start = end
	}
	if tail := text[start:]; strings.TrimSpace(tail) != "" {
		trimmed := strings.TrimSpace(tail)
		rel := strings.Index(tail, trimmed)
		sentences = append(sentences, sentenceSpan{
			text:  trimmed,
			start: start + rel,
			end:   start + rel + len(trimmed),
		})
	}
	return sentences
}

// textSpan is a chunk of text paired with its byte offsets in the input it
// was split from.
type textSpan struct {
	Text  string
	Start int
	End   int
}

// sentenceAwareSplit greedily accumulates sentences up to sizeWords words,
// emits a chunk, and carries the last overlap/10 sentences into the next
// chunk. Trailing chunks below minWords words are dropped. Each returned
// span's Start/End are the original text's byte offsets spanning its first
// and last sentence (so overlapping chunks naturally report overlapping
// ranges).
func sentenceAwareSplit(text string, sizeWords, overlap, minWords int) []textSpan {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	overlapSentences := overlap / 10
	if overlapSentences < 0 {
		overlapSentences = 0
	}

	join := func(spans []sentenceSpan) textSpan {
		texts := make([]string, len(spans))
		for i, s := range spans {
			texts[i] = s.text
		}
		return textSpan{
			Text:  strings.Join(texts, " "),
			Start: spans[0].start,
			End:   spans[len(spans)-1].end,
		}
	}

	var chunks []textSpan
	var cur []sentenceSpan
	curWords := 0

	flush := func() []textSpan {
		if len(cur) == 0 {
			return nil
		}
		span := join(cur)

		carry := cur
		if overlapSentences > 0 && overlapSentences < len(carry) {
			carry = carry[len(carry)-overlapSentences:]
		} else if overlapSentences == 0 {
			carry = nil
		}
		cur = append([]sentenceSpan{}, carry...)
		curWords = 0
		for _, s := range cur {
			curWords += wordCount(s.text)
		}
		return []textSpan{span}
	}

	for _, s := range sentences {
		w := wordCount(s.text)
		if curWords > 0 && curWords+w > sizeWords {
			chunks = append(chunks, flush()...)
		}
		cur = append(cur, s)
		curWords += w
	}
	if len(cur) > 0 {
		chunks = append(chunks, join(cur))
	}

	if len(chunks) > 1 {
		last := chunks[len(chunks)-1]
		if wordCount(last.Text) < minWords {
			chunks = chunks[:len(chunks)-1]
		}
	}

	return chunks
}
