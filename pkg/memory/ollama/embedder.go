// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package ollama embeds text through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/memory"
)

// Embedder implements the memory.Embedder interface using Ollama.
type Embedder struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewEmbedder creates a new Ollama Embedder.
func NewEmbedder(baseURL, model string) *Embedder {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Embedder{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshal embedding request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create embedding request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeEmbeddingProvider, "ollama embedding api call failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.CodeEmbeddingProvider, "ollama embedding api returned non-success status",
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))).
			WithContext("status", resp.StatusCode)
	}

	var embResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, errors.New(errors.CodeEmbeddingProvider, "decode ollama embedding response", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New(errors.CodeEmbeddingProvider, "ollama returned an empty embedding", nil).
			WithContext("model", e.model)
	}
	return embResp.Embedding, nil
}

var _ memory.Embedder = (*Embedder)(nil)
