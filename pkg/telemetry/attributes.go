// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Span and metric attribute keys for the retrieval pipeline.
// These follow OpenTelemetry naming conventions where applicable.
const (
	// Owner and query attributes
	AttrOwnerID     = "noterag.owner.id"
	AttrQueryLength = "noterag.query.length"
	AttrTopK        = "noterag.retrieval.top_k"
	AttrRetrieved   = "noterag.retrieval.count"
	AttrTopScore    = "noterag.retrieval.top_score"
	AttrContextLen  = "noterag.context.length"

	// Store build attributes
	AttrDocuments   = "noterag.build.documents"
	AttrSkipped     = "noterag.build.skipped"
	AttrPassages    = "noterag.build.passages"
	AttrDimension   = "noterag.store.dimension"
	AttrCacheResult = "noterag.cache.result" // hit, miss

	// Streaming attributes
	AttrFragments = "noterag.stream.fragments"
	AttrOutcome   = "noterag.stream.outcome" // complete, error, canceled

	// LLM attributes (standard gen_ai conventions)
	AttrLLMModel    = "gen_ai.request.model"
	AttrLLMProvider = "gen_ai.system"
	AttrLLMMessages = "gen_ai.request.messages"

	// Error attributes
	AttrErrorCode        = "error.code"
	AttrErrorRecoverable = "error.recoverable"
	AttrComponent        = "component"
)

// QueryAttributes returns attributes for a retrieval or answer span.
func QueryAttributes(ownerID, query string, topK int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrOwnerID, ownerID),
		attribute.Int(AttrQueryLength, len(query)),
		attribute.Int(AttrTopK, topK),
	}
}

// RetrievalAttributes describes the passages a search produced.
func RetrievalAttributes(count int, topScore float64, contextLen int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrRetrieved, count),
		attribute.Int(AttrContextLen, contextLen),
	}
	if count > 0 {
		attrs = append(attrs, attribute.Float64(AttrTopScore, topScore))
	}
	return attrs
}

// BuildAttributes describes a store build.
func BuildAttributes(documents, skipped, passages, dimension int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrDocuments, documents),
		attribute.Int(AttrSkipped, skipped),
		attribute.Int(AttrPassages, passages),
	}
	if dimension > 0 {
		attrs = append(attrs, attribute.Int(AttrDimension, dimension))
	}
	return attrs
}

// LLMAttributes returns attributes for generation spans.
func LLMAttributes(model, provider string, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrLLMModel, model))
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	return attrs
}

// StreamAttributes summarizes a finished stream.
func StreamAttributes(fragments int, outcome string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrFragments, fragments),
		attribute.String(AttrOutcome, outcome),
	}
}
