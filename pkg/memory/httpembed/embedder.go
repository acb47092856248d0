// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpembed embeds text through a plain JSON endpoint that takes
// {"input": "..."} and answers {"embedding": [...]}.
package httpembed

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

// Embedder implements memory.Embedder over HTTP.
type Embedder struct {
	url     string
	client  *http.Client
	headers map[string]string
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Embedder) { e.client = c }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(e *Embedder) { e.headers[key] = value }
}

// New creates an Embedder posting to url.
func New(url string, opts ...Option) *Embedder {
	e := &Embedder{
		url:     url,
		client:  &http.Client{Timeout: 30 * time.Second},
		headers: map[string]string{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type request struct {
	Input string `json:"input"`
}

type response struct {
	Embedding []float64 `json:"embedding"`
}

// Embed converts text into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(request{Input: text})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshal embedding request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create embedding request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeEmbeddingProvider, "embedding request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.CodeEmbeddingProvider, "embedding provider returned non-success status",
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))).
			WithContext("status", resp.StatusCode)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.New(errors.CodeEmbeddingProvider, "decode embedding response", err)
	}
	if len(out.Embedding) == 0 {
		return nil, errors.New(errors.CodeEmbeddingProvider, "embedding provider returned an empty vector", nil)
	}
	return out.Embedding, nil
}

var _ memory.Embedder = (*Embedder)(nil)
