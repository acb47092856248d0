// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai embeds text with the OpenAI embeddings API.
package openai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/memory"
)

// MaxBatchInputs is the most inputs the embeddings API takes per request.
const MaxBatchInputs = 2048

// Embedder implements memory.BatchEmbedder. EmbedBatch sends up to
// MaxBatchInputs texts per request.
type Embedder struct {
	client    openai.Client
	model     string
	batchSize int
}

// NewEmbedder creates an embedder for model. Options are passed to the
// OpenAI client (API key, base URL, retries).
func NewEmbedder(model string, opts ...option.RequestOption) *Embedder {
	if model == "" {
		model = string(openai.EmbeddingModelTextEmbedding3Small)
	}
	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     model,
		batchSize: MaxBatchInputs,
	}
}

// Embed converts a text string into a vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfString: openai.String(text)}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in as few requests as the input limit allows.
// Results keep input order; any failed request fails the whole batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.embed(ctx, openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts[start:end]}, end-start)
		if err != nil {
			return nil, err
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func (e *Embedder) embed(ctx context.Context, input openai.EmbeddingNewParamsInputUnion, want int) ([][]float64, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: input,
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, errors.New(errors.CodeEmbeddingProvider, "openai embedding request failed", err)
	}
	if len(resp.Data) != want {
		return nil, errors.Newf(errors.CodeEmbeddingProvider, "openai returned %d embeddings for %d inputs", len(resp.Data), want)
	}
	out := make([][]float64, want)
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= want {
			return nil, errors.Newf(errors.CodeEmbeddingProvider, "openai returned embedding index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

var _ memory.BatchEmbedder = (*Embedder)(nil)
