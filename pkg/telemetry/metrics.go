// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jllopis/noterag/pkg/errors"
)

// RAGMetrics holds the instruments of the retrieval pipeline.
// A nil *RAGMetrics is valid and records nothing.
type RAGMetrics struct {
	queries     metric.Int64Counter
	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	builds      metric.Int64Counter
	passages    metric.Int64Counter
	fragments   metric.Int64Counter
	errorsTotal metric.Int64Counter
	retrieval   metric.Float64Histogram
}

// NewRAGMetrics creates the instruments on mp, or on the global meter
// provider when mp is nil.
func NewRAGMetrics(mp metric.MeterProvider) (*RAGMetrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(Scope)
	m := &RAGMetrics{}
	var err error

	if m.queries, err = meter.Int64Counter("noterag.queries.total",
		metric.WithDescription("Queries by mode (answer, stream, search)")); err != nil {
		return nil, err
	}
	if m.cacheHits, err = meter.Int64Counter("noterag.cache.hits",
		metric.WithDescription("Store cache hits")); err != nil {
		return nil, err
	}
	if m.cacheMisses, err = meter.Int64Counter("noterag.cache.misses",
		metric.WithDescription("Store cache misses")); err != nil {
		return nil, err
	}
	if m.builds, err = meter.Int64Counter("noterag.builds.total",
		metric.WithDescription("Vector store builds by outcome")); err != nil {
		return nil, err
	}
	if m.passages, err = meter.Int64Counter("noterag.passages.indexed",
		metric.WithDescription("Passages embedded into vector stores")); err != nil {
		return nil, err
	}
	if m.fragments, err = meter.Int64Counter("noterag.stream.fragments",
		metric.WithDescription("Streamed answer fragments delivered")); err != nil {
		return nil, err
	}
	if m.errorsTotal, err = meter.Int64Counter("noterag.errors.total",
		metric.WithDescription("Errors by code and component")); err != nil {
		return nil, err
	}
	if m.retrieval, err = meter.Float64Histogram("noterag.retrieval.duration",
		metric.WithDescription("Time to build or fetch the store and search it"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordQuery counts a query in the given mode.
func (m *RAGMetrics) RecordQuery(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.queries.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordCache counts a cache lookup.
func (m *RAGMetrics) RecordCache(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Add(ctx, 1)
		return
	}
	m.cacheMisses.Add(ctx, 1)
}

// RecordBuild counts a store build and the passages it indexed.
func (m *RAGMetrics) RecordBuild(ctx context.Context, passages int, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.builds.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if err == nil && passages > 0 {
		m.passages.Add(ctx, int64(passages))
	}
}

// RecordFragments adds delivered stream fragments.
func (m *RAGMetrics) RecordFragments(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.fragments.Add(ctx, int64(n))
}

// RecordRetrieval records how long a retrieval took.
func (m *RAGMetrics) RecordRetrieval(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.retrieval.Record(ctx, float64(d)/float64(time.Millisecond))
}

// RecordError increments the error counter for err's code and component.
func (m *RAGMetrics) RecordError(ctx context.Context, err error, component string) {
	if m == nil || err == nil {
		return
	}
	e := errors.As(err)
	m.errorsTotal.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String(AttrErrorCode, string(e.Code)),
			attribute.String(AttrComponent, component),
			attribute.String(AttrErrorRecoverable, e.RecoverableString()),
		),
	)
}
