// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry wires OpenTelemetry tracing and metrics for the
// retrieval pipeline, the context-aware slog handler and the span
// attributes recorded on retrieval spans.
package telemetry

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/jllopis/noterag/pkg/errors"
)

// Scope is the instrumentation scope of the retrieval pipeline. Spans and
// instruments of the orchestrator are created under it.
const Scope = "noterag/rag"

// Config selects where pipeline spans and metrics are exported.
type Config struct {
	// Exporter is "stdout" (the default) or "otlp".
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
	// Writer receives stdout exporter output. Nil means os.Stdout.
	Writer io.Writer
	// MetricInterval overrides the periodic reader interval. Zero means one minute.
	MetricInterval time.Duration
}

func (c Config) metricInterval() time.Duration {
	if c.MetricInterval <= 0 {
		return time.Minute
	}
	return c.MetricInterval
}

// Pipeline is the installed telemetry of a noterag process: the global
// tracer and meter providers plus the RAG instruments created on them.
type Pipeline struct {
	Metrics *RAGMetrics

	tracers *trace.TracerProvider
	meters  *metric.MeterProvider
}

// Start installs the tracer and meter providers for serviceName as the
// otel globals and creates the RAG instruments. Configuration problems are
// CodeInvalidInput errors.
func Start(serviceName, version string, cfg Config) (*Pipeline, error) {
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "telemetry resource", err)
	}

	spans, points, err := newExporters(cfg)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		tracers: trace.NewTracerProvider(
			trace.WithBatcher(spans, trace.WithBatchTimeout(time.Second)),
			trace.WithResource(res),
		),
		meters: metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(points, metric.WithInterval(cfg.metricInterval()))),
			metric.WithResource(res),
		),
	}
	if p.Metrics, err = NewRAGMetrics(p.meters); err != nil {
		_ = p.Shutdown(context.Background())
		return nil, errors.New(errors.CodeInternal, "create rag instruments", err)
	}

	otel.SetTracerProvider(p.tracers)
	otel.SetMeterProvider(p.meters)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return p, nil
}

// Tracer returns the pipeline tracer.
func (p *Pipeline) Tracer() oteltrace.Tracer {
	return p.tracers.Tracer(Scope)
}

// Shutdown flushes pending spans and metric points.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	err := stderrors.Join(p.tracers.Shutdown(ctx), p.meters.Shutdown(ctx))
	if err != nil {
		return errors.New(errors.CodeInternal, "telemetry shutdown", err)
	}
	return nil
}

func newExporters(cfg Config) (trace.SpanExporter, metric.Exporter, error) {
	switch cfg.Exporter {
	case "", "stdout":
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		spans, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, nil, errors.New(errors.CodeInternal, "stdout trace exporter", err)
		}
		points, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
		if err != nil {
			return nil, nil, errors.New(errors.CodeInternal, "stdout metric exporter", err)
		}
		return spans, points, nil

	case "otlp":
		if cfg.OTLPEndpoint == "" {
			return nil, nil, errors.New(errors.CodeInvalidInput, "otlp exporter needs an endpoint", nil)
		}
		traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
			metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
		}
		spans, err := otlptracegrpc.New(context.Background(), traceOpts...)
		if err != nil {
			return nil, nil, errors.New(errors.CodeInternal, "otlp trace exporter", err).
				WithContext("endpoint", cfg.OTLPEndpoint)
		}
		points, err := otlpmetricgrpc.New(context.Background(), metricOpts...)
		if err != nil {
			_ = spans.Shutdown(context.Background())
			return nil, nil, errors.New(errors.CodeInternal, "otlp metric exporter", err).
				WithContext("endpoint", cfg.OTLPEndpoint)
		}
		return spans, points, nil

	default:
		return nil, nil, errors.Newf(errors.CodeInvalidInput, "unknown telemetry exporter %q", cfg.Exporter)
	}
}
