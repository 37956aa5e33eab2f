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

// DispatchingChunker routes markdown documents through MarkdownChunker and
// everything else (pdf, text) through GenericChunker, matching spec §4.2's
// two named modes.
type DispatchingChunker struct {
	markdown *MarkdownChunker
	generic  *GenericChunker
}

func New(cfg Config) *DispatchingChunker {
	cfg.SetDefaults()
	return &DispatchingChunker{
		markdown: NewMarkdownChunker(cfg),
		generic:  NewGenericChunker(cfg),
	}
}

func (c *DispatchingChunker) Chunk(sourcePath string, text string, docType DocumentType) ([]Chunk, error) {
	if docType == DocMarkdown {
		return c.markdown.Chunk(sourcePath, text, docType)
	}
	return c.generic.Chunk(sourcePath, text, docType)
}

var _ Chunker = (*DispatchingChunker)(nil)
