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

package embed

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name      string
	dimension int
	vecs      func(texts []string) [][]float32
	err       error
}

func (f *fakeBackend) Name() string   { return f.name }
func (f *fakeBackend) Dimension() int { return f.dimension }
func (f *fakeBackend) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vecs(texts), nil
}

func constVecs(dim int, fill float32) func([]string) [][]float32 {
	return func(texts []string) [][]float32 {
		out := make([][]float32, len(texts))
		for i := range texts {
			v := make([]float32, dim)
			for j := range v {
				v[j] = fill
			}
			out[i] = v
		}
		return out
	}
}

func TestEmbedDocumentsNormalizes(t *testing.T) {
	local := &fakeBackend{name: "local", dimension: 4, vecs: constVecs(4, 3.0)}
	svc := NewService(local, nil, "")

	vecs, err := svc.EmbedDocuments(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vecs, 1)

	var norm float64
	for _, x := range vecs[0] {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestEmbedQueryFallsBackToLocalWhenNoPremiumConfigured(t *testing.T) {
	local := &fakeBackend{name: "local", dimension: 4, vecs: constVecs(4, 1.0)}
	svc := NewService(local, nil, "")

	vec, err := svc.EmbedQuery(context.Background(), "query text", "openai")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedQueryFallsBackWhenPremiumErrors(t *testing.T) {
	local := &fakeBackend{name: "local", dimension: 4, vecs: constVecs(4, 1.0)}
	premium := &fakeBackend{name: "openai", dimension: 8, err: fmt.Errorf("rate limited")}
	svc := NewService(local, map[string]Backend{"openai": premium}, "openai")

	vec, err := svc.EmbedQuery(context.Background(), "query text", "openai")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestEmbedQueryUsesAlignmentWhenLoaded(t *testing.T) {
	local := &fakeBackend{name: "local", dimension: 2, vecs: constVecs(2, 1.0)}
	premium := &fakeBackend{name: "openai", dimension: 3, vecs: constVecs(3, 1.0)}
	svc := NewService(local, map[string]Backend{"openai": premium}, "openai")

	localSamples := [][]float32{{1, 0}, {0, 1}, {1, 1}}
	premiumSamples := [][]float32{{1, 0, 0}, {0, 1, 0}, {1, 1, 0}}
	alignment, err := FitAlignment(localSamples, premiumSamples)
	require.NoError(t, err)
	svc.LoadAlignment("openai", alignment)

	vec, err := svc.EmbedQuery(context.Background(), "query text", "openai")
	require.NoError(t, err)
	assert.Len(t, vec, 2)
}

func TestReEmbedReturnsPremiumErrorWhenNotConfigured(t *testing.T) {
	local := &fakeBackend{name: "local", dimension: 4, vecs: constVecs(4, 1.0)}
	svc := NewService(local, nil, "")

	_, _, err := svc.ReEmbed(context.Background(), []string{"a", "b"}, "query", "openai")
	assert.Error(t, err)
}

func TestFitAlignmentRejectsMismatchedSamples(t *testing.T) {
	_, err := FitAlignment([][]float32{{1, 2}}, nil)
	assert.Error(t, err)
}

func TestFitAlignmentRoundTripsSquareIdentity(t *testing.T) {
	local := [][]float32{{1, 0}, {0, 1}}
	premium := [][]float32{{1, 0}, {0, 1}}

	a, err := FitAlignment(local, premium)
	require.NoError(t, err)

	mapped := a.Apply([]float32{1, 0})
	require.Len(t, mapped, 2)
	assert.InDelta(t, 1.0, mapped[0], 1e-6)
	assert.InDelta(t, 0.0, mapped[1], 1e-6)
}
