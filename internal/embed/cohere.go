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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CohereBackend implements Backend against Cohere's v2 embeddings API, a
// second premium embedding option alongside OpenAIBackend.
//
// Adapted from T v2/embedder/cohere.go's CohereEmbedder into this package's
// Backend shape (Name/Dimension/EmbedBatch rather than Embed/EmbedBatch/
// Model/Close).
type CohereBackend struct {
	client    *http.Client
	apiKey    string
	baseURL   string
	model     string
	dimension int
	batchSize int
	inputType string
	outputDim *int
	truncate  string
}

// CohereConfig configures the Cohere embedder.
type CohereConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Dimension       int
	Timeout         time.Duration
	BatchSize       int
	InputType       string
	OutputDimension *int
	Truncate        string
}

func NewCohereBackend(cfg CohereConfig) (*CohereBackend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required for Cohere backend")
	}

	model := cfg.Model
	if model == "" {
		model = "embed-english-v3.0"
	}

	dimension := cfg.Dimension
	if dimension == 0 {
		switch model {
		case "embed-english-v3.0", "embed-multilingual-v3.0":
			dimension = 1024
		case "embed-english-light-v3.0", "embed-multilingual-light-v3.0":
			dimension = 384
		case "embed-v4.0":
			dimension = 1536
		default:
			dimension = 1024
		}
	}
	if cfg.OutputDimension != nil {
		dimension = *cfg.OutputDimension
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.cohere.com"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize == 0 {
		batchSize = 96
	}

	inputType := cfg.InputType
	if inputType == "" {
		inputType = "search_document"
	}

	truncate := cfg.Truncate
	if truncate == "" {
		truncate = "END"
	}

	return &CohereBackend{
		client:    &http.Client{Timeout: timeout},
		apiKey:    cfg.APIKey,
		baseURL:   baseURL,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
		inputType: inputType,
		outputDim: cfg.OutputDimension,
		truncate:  truncate,
	}, nil
}

func (b *CohereBackend) Name() string   { return b.model }
func (b *CohereBackend) Dimension() int { return b.dimension }

type cohereRequest struct {
	Texts           []string `json:"texts,omitempty"`
	Model           string   `json:"model"`
	InputType       string   `json:"input_type"`
	OutputDimension *int     `json:"output_dimension,omitempty"`
	Truncate        string   `json:"truncate,omitempty"`
	EmbeddingTypes  []string `json:"embedding_types,omitempty"`
}

type cohereResponse struct {
	Embeddings struct {
		Float [][]float32 `json:"float"`
	} `json:"embeddings"`
}

type cohereErrorResponse struct {
	Message string `json:"message"`
}

func (b *CohereBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += b.batchSize {
		end := i + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		embeddings, err := b.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		results = append(results, embeddings...)
	}
	return results, nil
}

func (b *CohereBackend) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := cohereRequest{
		Texts:           texts,
		Model:           b.model,
		InputType:       b.inputType,
		OutputDimension: b.outputDim,
		Truncate:        b.truncate,
		EmbeddingTypes:  []string{"float"},
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/v2/embed", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+b.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to Cohere: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp cohereErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return nil, fmt.Errorf("cohere API error: %s", errResp.Message)
		}
		return nil, fmt.Errorf("cohere API returned status %d: %s", resp.StatusCode, string(body))
	}

	var response cohereResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Embeddings.Float) == 0 {
		return nil, fmt.Errorf("received empty embeddings from Cohere")
	}
	return response.Embeddings.Float, nil
}

var _ Backend = (*CohereBackend)(nil)
