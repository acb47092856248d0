// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package memory holds the per-owner vector store, the embedding contracts
// that feed it, and the cache that keeps one built store per owner.
package memory

import "context"

// Metadata identifies the document a passage was cut from.
type Metadata struct {
	DocumentID string `json:"documentId"`
	Title      string `json:"title"`
}

// Passage is a chunk of extracted document text. It is never modified
// after creation.
type Passage struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Entry is a passage together with its embedding.
type Entry struct {
	Passage
	Embedding []float64 `json:"embedding"`
}

// ScoredPassage is a search hit.
type ScoredPassage struct {
	Passage
	Score float64 `json:"score"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector. Implementations return a
	// CodeEmbeddingProvider error when the provider call fails.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// BatchEmbedder embeds many texts at once. The result has one vector per
// input, in input order. Any single failure fails the whole batch.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}
