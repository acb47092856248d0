// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

type ownerKey struct{}

// WithOwner tags ctx with the owner whose notes are being served. Records
// logged with that context carry an owner_id attribute.
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, ownerID)
}

// OwnerFromContext returns the owner set by WithOwner.
func OwnerFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	owner, ok := ctx.Value(ownerKey{}).(string)
	return owner, ok && owner != ""
}

// ConfigureSlog installs NewLogger as the slog default and returns it.
func ConfigureSlog(output io.Writer, level, format string) *slog.Logger {
	logger := NewLogger(output, level, format)
	slog.SetDefault(logger)
	return logger
}

// NewLogger builds a text or json logger whose context-aware records carry
// trace_id, span_id and owner_id when the context has them.
func NewLogger(output io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(contextHandler{next: slog.NewJSONHandler(output, opts)})
	}
	return slog.New(contextHandler{next: slog.NewTextHandler(output, opts)})
}

// Component returns logger tagged with the component name, falling back to
// the default logger when nil.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(slog.String("component", name))
}

type contextHandler struct {
	next slog.Handler
}

func (h contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h contextHandler) Handle(ctx context.Context, record slog.Record) error {
	var extra []slog.Attr
	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			extra = append(extra,
				slog.String("trace_id", sc.TraceID().String()),
				slog.String("span_id", sc.SpanID().String()),
			)
		}
	}
	if owner, ok := OwnerFromContext(ctx); ok {
		extra = append(extra, slog.String("owner_id", owner))
	}
	if len(extra) > 0 {
		present := recordKeys(record)
		for _, attr := range extra {
			if !present[attr.Key] {
				record.AddAttrs(attr)
			}
		}
	}
	return h.next.Handle(ctx, record)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{next: h.next.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{next: h.next.WithGroup(name)}
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func recordKeys(record slog.Record) map[string]bool {
	keys := make(map[string]bool, record.NumAttrs())
	record.Attrs(func(attr slog.Attr) bool {
		keys[attr.Key] = true
		return true
	})
	return keys
}
