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

// Package keywordindex implements the sparse/lexical side of retrieval
// (spec §4.6): BM25-family scoring over chunk text, with equality filters
// on scalar metadata fields.
//
// No example repo ships a Go full-text library, so this is built on the
// ecosystem's standard choice, github.com/blevesearch/bleve/v2, rather than
// hand-rolling BM25 on the standard library.
package keywordindex

import (
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Doc is one entry to index: its searchable text plus scalar metadata
// carried alongside for filtering and payload reconstruction.
type Doc struct {
	ID       string
	Text     string
	Metadata map[string]any
}

// Hit is one ranked result, mirroring the shape spec §4.6 names:
// {id, text, score, payload}.
type Hit struct {
	ID       string
	Text     string
	Score    float64
	Metadata map[string]any
}

// Index is the KeywordIndex interface: index(docs), search(query, k,
// filters?), delete_by(field, value).
type Index interface {
	IndexDocuments(docs []Doc) error
	Search(query string, k int, filters map[string]string) ([]Hit, error)
	DeleteBy(field string, value string) error
	Close() error
}

// BleveIndex is the in-process bleve-backed Index implementation.
type BleveIndex struct {
	mu    sync.RWMutex
	index bleve.Index
	// docs mirrors bleve's stored id->doc metadata since bleve's default
	// field store round-trips strings only; scalar metadata needing its
	// original type (ints, bools) is kept here for payload reconstruction.
	docs map[string]Doc
}

// New builds an in-memory bleve index. path, when non-empty, persists the
// index to disk instead of keeping it memory-only.
func New(path string) (*BleveIndex, error) {
	m := buildMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.New(path, m)
		if err != nil {
			idx, err = bleve.Open(path)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open bleve index: %w", err)
	}

	return &BleveIndex{index: idx, docs: make(map[string]Doc)}, nil
}

func buildMapping() *mapping.IndexMappingImpl {
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Store = true
	docMapping.AddFieldMappingsAt("text", textField)

	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"
	keywordField.Store = true
	docMapping.AddFieldMappingsAt("source_path", keywordField)
	docMapping.AddFieldMappingsAt("document_id", keywordField)
	docMapping.AddFieldMappingsAt("document_type", keywordField)
	docMapping.AddFieldMappingsAt("section_type", keywordField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	return m
}

type bleveDoc struct {
	Text         string `json:"text"`
	SourcePath   string `json:"source_path,omitempty"`
	DocumentID   string `json:"document_id,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
	SectionType  string `json:"section_type,omitempty"`
}

func (b *BleveIndex) IndexDocuments(docs []Doc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	batch := b.index.NewBatch()
	for _, d := range docs {
		bd := bleveDoc{Text: d.Text}
		if v, ok := d.Metadata["source_path"].(string); ok {
			bd.SourcePath = v
		}
		if v, ok := d.Metadata["document_id"].(string); ok {
			bd.DocumentID = v
		}
		if v, ok := d.Metadata["document_type"].(string); ok {
			bd.DocumentType = v
		}
		if v, ok := d.Metadata["section_type"].(string); ok {
			bd.SectionType = v
		}

		if err := batch.Index(d.ID, bd); err != nil {
			return fmt.Errorf("failed to stage document %s: %w", d.ID, err)
		}
		b.docs[d.ID] = d
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to index batch: %w", err)
	}
	return nil
}

func (b *BleveIndex) Search(q string, k int, filters map[string]string) ([]Hit, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matchQuery := bleve.NewMatchQuery(q)

	var searchQuery query.Query = matchQuery
	if len(filters) > 0 {
		conjuncts := []query.Query{matchQuery}
		for field, value := range filters {
			term := bleve.NewTermQuery(value)
			term.SetField(field)
			conjuncts = append(conjuncts, term)
		}
		searchQuery = bleve.NewConjunctionQuery(conjuncts...)
	}

	req := bleve.NewSearchRequestOptions(searchQuery, k, 0, false)
	req.Fields = []string{"text"}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}

	hits := make([]Hit, 0, len(result.Hits))
	for _, h := range result.Hits {
		doc, ok := b.docs[h.ID]
		metadata := map[string]any{}
		text := ""
		if ok {
			metadata = doc.Metadata
			text = doc.Text
		} else if v, ok := h.Fields["text"].(string); ok {
			text = v
		}

		hits = append(hits, Hit{
			ID:       h.ID,
			Text:     text,
			Score:    h.Score,
			Metadata: metadata,
		})
	}
	return hits, nil
}

func (b *BleveIndex) DeleteBy(field string, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	term := bleve.NewTermQuery(value)
	term.SetField(field)
	req := bleve.NewSearchRequestOptions(term, 10000, 0, false)

	result, err := b.index.Search(req)
	if err != nil {
		return fmt.Errorf("failed to find documents for delete_by: %w", err)
	}

	batch := b.index.NewBatch()
	for _, h := range result.Hits {
		batch.Delete(h.ID)
		delete(b.docs, h.ID)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to delete batch: %w", err)
	}
	return nil
}

func (b *BleveIndex) Close() error {
	return b.index.Close()
}

var _ Index = (*BleveIndex)(nil)
