// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package rag

import (
	"context"
	"iter"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/telemetry"
)

// Stream outcomes reported on the rag.stream span.
const (
	outcomeComplete  = "complete"
	outcomeError     = "error"
	outcomeCanceled  = "canceled"
	outcomeAbandoned = "abandoned"
)

// StreamHandler receives the fragments of a streamed answer. Nil fields
// are skipped.
type StreamHandler struct {
	OnChunk    func(fragment string)
	OnComplete func()
	OnError    func(err error)
}

// Fragments streams the answer to query as it is generated. The sequence
// yields fragments in arrival order and ends after the last one, or yields
// a single ("", err) on failure. Breaking out of the loop cancels the
// generation and releases the provider stream. Generators that cannot
// stream yield their whole answer as one fragment.
func (o *Orchestrator) Fragments(ctx context.Context, ownerID, query string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		ctx = telemetry.WithOwner(ctx, ownerID)
		ctx, span := o.tracer.Start(ctx, "rag.stream", trace.WithAttributes(
			telemetry.QueryAttributes(ownerID, query, o.topK)...,
		))
		defer span.End()
		o.metrics.RecordQuery(ctx, "stream")

		fragments := 0
		outcome := outcomeComplete
		defer func() {
			span.SetAttributes(telemetry.StreamAttributes(fragments, outcome)...)
			o.metrics.RecordFragments(ctx, fragments)
			o.logger.DebugContext(ctx, "rag.stream.end",
				slog.Int("fragments", fragments),
				slog.String("outcome", outcome),
			)
		}()

		abort := func(err error, stage string) {
			if ctx.Err() != nil {
				outcome = outcomeCanceled
				yield("", ctx.Err())
				return
			}
			outcome = outcomeError
			o.fail(ctx, span, err, stage)
			yield("", err)
		}

		req, err := o.Prompt(ctx, ownerID, query)
		if err != nil {
			abort(err, "rag-stream")
			return
		}
		span.SetAttributes(telemetry.LLMAttributes(o.model, "", len(req.Messages))...)

		streamer, ok := o.gen.(llm.StreamingProvider)
		if !ok {
			resp, err := o.gen.Chat(ctx, req)
			if err != nil {
				abort(generationError(err, ownerID), "rag-generate")
				return
			}
			if resp.Content != "" {
				fragments++
				if !yield(resp.Content, nil) {
					outcome = outcomeAbandoned
				}
			}
			return
		}

		chunks, err := streamer.ChatStream(ctx, req)
		if err != nil {
			abort(generationError(err, ownerID), "rag-generate")
			return
		}
		for chunk := range chunks {
			if ctx.Err() != nil {
				break
			}
			if chunk.Error != nil {
				abort(generationError(chunk.Error, ownerID), "rag-generate")
				return
			}
			if chunk.Content != "" {
				fragments++
				if !yield(chunk.Content, nil) {
					outcome = outcomeAbandoned
					return
				}
			}
			if chunk.Done {
				return
			}
		}
		if err := ctx.Err(); err != nil {
			outcome = outcomeCanceled
			yield("", err)
		}
	}
}

// AnswerStream delivers the answer to h as it is generated. Exactly one of
// OnComplete or OnError fires, after every OnChunk. Once ctx is canceled
// no callback fires at all and the context error is returned.
func (o *Orchestrator) AnswerStream(ctx context.Context, ownerID, query string, h StreamHandler) error {
	for fragment, err := range o.Fragments(ctx, ownerID, query) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if h.OnError != nil {
				h.OnError(err)
			}
			return err
		}
		if h.OnChunk != nil {
			h.OnChunk(fragment)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.OnComplete != nil {
		h.OnComplete()
	}
	return nil
}
