// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"math"
	"slices"
	"sync"

	"github.com/jllopis/noterag/pkg/errors"
)

// VectorStore holds the embedded passages of one owner and answers
// similarity queries over them. It only grows: there is no removal or
// update in place. Safe for concurrent use.
type VectorStore struct {
	embedder Embedder

	mu        sync.RWMutex
	entries   []Entry
	dimension int
}

// NewVectorStore creates an empty store that embeds through e.
func NewVectorStore(e Embedder) *VectorStore {
	return &VectorStore{embedder: e}
}

// Len returns the number of entries.
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Dimension returns the embedding dimension, or 0 while the store is empty.
func (s *VectorStore) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

// snapshot returns a copy of the stored entries in insertion order.
func (s *VectorStore) snapshot() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.entries)
}

// AddAll embeds passages and appends them in order. Either every passage
// is added or, on error, none is.
func (s *VectorStore) AddAll(ctx context.Context, passages []Passage) error {
	if len(passages) == 0 {
		return nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dim := s.dimension
	for i, vec := range vectors {
		if len(vec) == 0 {
			return errors.New(errors.CodeEmbeddingProvider, "embedding provider returned an empty vector", nil).
				WithContext("document_id", passages[i].Metadata.DocumentID)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return errors.Newf(errors.CodeInvalidInput, "embedding dimension mismatch: got %d, store has %d", len(vec), dim).
				WithContext("document_id", passages[i].Metadata.DocumentID)
		}
	}

	for i, p := range passages {
		s.entries = append(s.entries, Entry{Passage: p, Embedding: vectors[i]})
	}
	s.dimension = dim
	return nil
}

func (s *VectorStore) embedAll(ctx context.Context, texts []string) ([][]float64, error) {
	if b, ok := s.embedder.(BatchEmbedder); ok {
		return b.EmbedBatch(ctx, texts)
	}
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

// SimilaritySearch returns up to k passages ranked by descending cosine
// similarity to query.
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, k int) ([]Passage, error) {
	hits, err := s.SimilaritySearchWithScores(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]Passage, len(hits))
	for i, h := range hits {
		out[i] = h.Passage
	}
	return out, nil
}

// SimilaritySearchWithScores is SimilaritySearch keeping the scores. An
// empty store answers without calling the embedder. Equal scores keep
// insertion order.
func (s *VectorStore) SimilaritySearchWithScores(ctx context.Context, query string, k int) ([]ScoredPassage, error) {
	if k < 1 {
		return nil, errors.Newf(errors.CodeInvalidInput, "k must be >= 1, got %d", k)
	}
	if s.Len() == 0 {
		return []ScoredPassage{}, nil
	}

	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(qvec) != s.dimension {
		return nil, errors.Newf(errors.CodeInvalidInput, "query embedding dimension %d does not match store dimension %d", len(qvec), s.dimension)
	}

	hits := make([]ScoredPassage, len(s.entries))
	for i, e := range s.entries {
		hits[i] = ScoredPassage{Passage: e.Passage, Score: CosineSimilarity(qvec, e.Embedding)}
	}
	slices.SortStableFunc(hits, func(a, b ScoredPassage) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// CosineSimilarity returns dot(a,b) / (|a| * |b|) accumulated in float64.
// A zero-norm vector on either side, or vectors of different length, score
// 0 so they rank after every positively similar entry and never produce NaN.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if math.IsNaN(sim) {
		return 0
	}
	return sim
}
