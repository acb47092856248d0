// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Batcher fans single Embed calls out over a bounded worker pool.
type Batcher struct {
	Embedder
	concurrency int
}

// NewBatcher wraps e so EmbedBatch runs at most concurrency calls at once.
// A concurrency below one is treated as one.
func NewBatcher(e Embedder, concurrency int) *Batcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Batcher{Embedder: e, concurrency: concurrency}
}

// EmbedBatch embeds texts preserving input order. The first failure cancels
// the calls still pending and is returned with no partial result.
func (b *Batcher) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			vec, err := b.Embed(gctx, text)
			if err != nil {
				return err
			}
			out[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

var _ BatchEmbedder = (*Batcher)(nil)
