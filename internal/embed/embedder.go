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

// Package embed turns chunk/query text into dense vectors, in two spaces:
// local (cheap, used for bulk indexing and approximate search) and premium
// (used for query embedding and rerank), bridged by an optional alignment
// matrix.
//
// Derived from the teacher's v2/embedder package (factory.go dispatch,
// ollama.go HTTP client shape).
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/kbrag/kbrag/internal/rerrors"
)

// Backend is a single-space text-to-vector function, the unit both the
// local and premium embedders are built from.
type Backend interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Service implements the three operations spec §4.3 names:
// embed_documents, embed_query, re_embed.
type Service struct {
	local          Backend
	premiums       map[string]Backend
	defaultPremium string
	alignments     map[string]*Alignment
}

func NewService(local Backend, premiums map[string]Backend, defaultPremium string) *Service {
	return &Service{
		local:          local,
		premiums:       premiums,
		defaultPremium: defaultPremium,
		alignments:     make(map[string]*Alignment),
	}
}

// LoadAlignment registers a precomputed alignment matrix for a premium
// backend name, so EmbedQuery can map premium query vectors into local
// space.
func (s *Service) LoadAlignment(backend string, a *Alignment) {
	s.alignments[backend] = a
}

// EmbedDocuments bulk-embeds chunk texts in local space, L2-normalized.
func (s *Service) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := s.local.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, rerrors.NewBackendTransientError("embedder:"+s.local.Name(), err)
	}
	for i := range vecs {
		normalize(vecs[i])
	}
	return vecs, nil
}

// EmbedQuery embeds a query with the premium backend and maps it into
// local space via the alignment matrix. If no matrix is loaded for the
// backend, it falls back to embedding directly with the local model and
// logs a warning, per spec §4.3.
func (s *Service) EmbedQuery(ctx context.Context, text string, space string) ([]float32, error) {
	backendName := space
	if backendName == "" {
		backendName = s.defaultPremium
	}

	premium, ok := s.premiums[backendName]
	if !ok {
		return s.embedLocalFallback(ctx, text, "no premium backend configured for "+backendName)
	}

	vecs, err := premium.EmbedBatch(ctx, []string{text})
	if err != nil || len(vecs) == 0 {
		slog.Warn("premium embedder failed for query, falling back to local model", "backend", backendName, "error", err)
		return s.embedLocalFallback(ctx, text, "premium embedder failed")
	}

	premiumVec := vecs[0]
	normalize(premiumVec)

	alignment, ok := s.alignments[backendName]
	if !ok {
		slog.Warn("no alignment matrix loaded, falling back to local model directly", "backend", backendName)
		return s.embedLocalFallback(ctx, text, "no alignment matrix loaded")
	}

	localVec := alignment.Apply(premiumVec)
	normalize(localVec)
	return localVec, nil
}

func (s *Service) embedLocalFallback(ctx context.Context, text string, reason string) ([]float32, error) {
	vecs, err := s.local.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, rerrors.NewBackendTransientError("embedder:"+s.local.Name(), err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("local embedder returned no vectors (%s)", reason)
	}
	normalize(vecs[0])
	return vecs[0], nil
}

// ReEmbed re-embeds candidate texts and the query in premium space, for
// TwoStepRetriever's rerank stage. Returns PremiumEmbedderError on failure
// so callers can apply the local_approximate fallback policy.
func (s *Service) ReEmbed(ctx context.Context, texts []string, query string, space string) ([][]float32, []float32, error) {
	backendName := space
	if backendName == "" {
		backendName = s.defaultPremium
	}

	premium, ok := s.premiums[backendName]
	if !ok {
		return nil, nil, rerrors.NewPremiumEmbedderError(backendName, fmt.Errorf("not configured"))
	}

	candidateVecs, err := premium.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, nil, rerrors.NewPremiumEmbedderError(backendName, err)
	}

	queryVecs, err := premium.EmbedBatch(ctx, []string{query})
	if err != nil || len(queryVecs) == 0 {
		return nil, nil, rerrors.NewPremiumEmbedderError(backendName, err)
	}

	for i := range candidateVecs {
		normalize(candidateVecs[i])
	}
	normalize(queryVecs[0])

	return candidateVecs, queryVecs[0], nil
}

// ModelNames reports the local backend's name and each registered premium
// backend's name by key, for the stats interface's embedding_models field.
func (s *Service) ModelNames() (local string, premiums map[string]string) {
	premiums = make(map[string]string, len(s.premiums))
	for key, b := range s.premiums {
		premiums[key] = b.Name()
	}
	return s.local.Name(), premiums
}

// LocalDimension returns the local backend's vector size, which fixes the
// VectorIndex schema.
func (s *Service) LocalDimension() int {
	return s.local.Dimension()
}

func normalize(v []float32) {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	norm := math.Sqrt(sumSquares)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
