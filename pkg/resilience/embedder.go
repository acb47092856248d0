// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/memory"
)

// GuardedEmbedder sends every Embed and EmbedBatch call through a circuit
// breaker so a dead embedding provider fails builds fast instead of timing
// out once per passage.
type GuardedEmbedder struct {
	embedder memory.Embedder
	breaker  *CircuitBreaker
}

// GuardEmbedder wraps e with a breaker built from cfg. Unless cfg.Counts
// says otherwise, only CodeEmbeddingProvider failures count against it.
func GuardEmbedder(e memory.Embedder, cfg CircuitBreakerConfig) *GuardedEmbedder {
	if cfg.Name == "" {
		cfg.Name = "embedder"
	}
	if cfg.Counts == nil {
		cfg.Counts = func(ctx context.Context, err error) bool {
			return ctx.Err() == nil && errors.IsCode(err, errors.CodeEmbeddingProvider)
		}
	}
	return &GuardedEmbedder{embedder: e, breaker: NewCircuitBreaker(cfg)}
}

// Breaker exposes the underlying breaker.
func (g *GuardedEmbedder) Breaker() *CircuitBreaker { return g.breaker }

// Embed implements memory.Embedder.
func (g *GuardedEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	var vec []float64
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		vec, err = g.embedder.Embed(ctx, text)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch implements memory.BatchEmbedder. When the wrapped embedder
// batches natively the whole batch is one breaker call; otherwise the
// texts go through Embed one at a time.
func (g *GuardedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	batcher, ok := g.embedder.(memory.BatchEmbedder)
	if !ok {
		return memory.NewBatcher(g, 1).EmbedBatch(ctx, texts)
	}
	var vecs [][]float64
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		vecs, err = batcher.EmbedBatch(ctx, texts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

func (g *GuardedEmbedder) call(ctx context.Context, fn func(ctx context.Context) error) error {
	err := g.breaker.Call(ctx, fn)
	if stderrors.Is(err, ErrCircuitOpen) {
		return errors.New(errors.CodeEmbeddingProvider, "embedding provider unavailable", err)
	}
	return err
}

var _ memory.BatchEmbedder = (*GuardedEmbedder)(nil)
