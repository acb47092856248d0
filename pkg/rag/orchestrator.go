// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package rag answers questions about an owner's notes: it builds (or
// reuses) the owner's vector store, retrieves the closest passages and
// asks the generation provider to answer from them.
package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jllopis/noterag/pkg/chunk"
	"github.com/jllopis/noterag/pkg/corpus"
	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/extract"
	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/telemetry"
)

const (
	// DefaultTopK is the number of passages placed in the prompt.
	DefaultTopK = 3
	// DefaultConcurrency caps parallel embedding calls during a build.
	DefaultConcurrency = 4
	// DefaultSystemPrompt frames the retrieved context. %s receives the
	// passages joined by a blank line.
	DefaultSystemPrompt = "Answer the user's question based on the following context:\n\nContext: %s\n\n"
)

// Orchestrator wires corpus, embedder, cache and generator together.
type Orchestrator struct {
	docs     corpus.Provider
	embedder memory.Embedder
	gen      llm.Provider

	cache        *memory.StoreCache
	splitter     *chunk.Splitter
	topK         int
	concurrency  int
	model        string
	temperature  float64
	systemPrompt string

	logger  *slog.Logger
	metrics *telemetry.RAGMetrics
	tracer  trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithCache shares a store cache between orchestrators. Without it each
// orchestrator owns a private cache.
func WithCache(c *memory.StoreCache) Option {
	return func(o *Orchestrator) error {
		if c == nil {
			return errors.New(errors.CodeInvalidInput, "cache is nil", nil)
		}
		o.cache = c
		return nil
	}
}

// WithSplitter replaces the default 1000/200 chunker.
func WithSplitter(s *chunk.Splitter) Option {
	return func(o *Orchestrator) error {
		if s == nil {
			return errors.New(errors.CodeInvalidInput, "splitter is nil", nil)
		}
		o.splitter = s
		return nil
	}
}

// WithTopK sets how many passages are retrieved per question.
func WithTopK(k int) Option {
	return func(o *Orchestrator) error {
		if k < 1 {
			return errors.Newf(errors.CodeInvalidInput, "top k must be >= 1, got %d", k)
		}
		o.topK = k
		return nil
	}
}

// WithConcurrency caps parallel embedding calls while building a store.
// It has no effect on embedders that batch natively.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return errors.Newf(errors.CodeInvalidInput, "concurrency must be >= 1, got %d", n)
		}
		o.concurrency = n
		return nil
	}
}

// WithModel sets the model name passed to the generator.
func WithModel(model string) Option {
	return func(o *Orchestrator) error {
		o.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature passed to the generator.
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) error {
		o.temperature = t
		return nil
	}
}

// WithSystemPrompt replaces DefaultSystemPrompt. The template must hold
// exactly one %s.
func WithSystemPrompt(tpl string) Option {
	return func(o *Orchestrator) error {
		if strings.Count(tpl, "%s") != 1 {
			return errors.New(errors.CodeInvalidInput, "system prompt must contain exactly one %s", nil)
		}
		o.systemPrompt = tpl
		return nil
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) error {
		o.logger = l
		return nil
	}
}

// WithTelemetry records spans on the pipeline tracer and feeds its RAG
// instruments. Without it spans go to the global tracer and no metrics are
// recorded.
func WithTelemetry(p *telemetry.Pipeline) Option {
	return func(o *Orchestrator) error {
		if p != nil {
			o.tracer = p.Tracer()
			o.metrics = p.Metrics
		}
		return nil
	}
}

// New creates an Orchestrator. docs, embedder and gen are required.
func New(docs corpus.Provider, embedder memory.Embedder, gen llm.Provider, opts ...Option) (*Orchestrator, error) {
	if docs == nil || embedder == nil || gen == nil {
		return nil, errors.New(errors.CodeInvalidInput, "corpus, embedder and generator are required", nil)
	}
	o := &Orchestrator{
		docs:         docs,
		embedder:     embedder,
		gen:          gen,
		topK:         DefaultTopK,
		concurrency:  DefaultConcurrency,
		systemPrompt: DefaultSystemPrompt,
		tracer:       otel.Tracer(telemetry.Scope),
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	if o.cache == nil {
		o.cache = memory.NewStoreCache()
	}
	if o.splitter == nil {
		o.splitter = chunk.Default()
	}
	if _, ok := o.embedder.(memory.BatchEmbedder); !ok {
		o.embedder = memory.NewBatcher(o.embedder, o.concurrency)
	}
	o.logger = telemetry.Component(o.logger, "rag")
	return o, nil
}

// Cache returns the store cache in use.
func (o *Orchestrator) Cache() *memory.StoreCache { return o.cache }

// TopK returns the number of passages retrieved per question.
func (o *Orchestrator) TopK() int { return o.topK }

// Invalidate drops the cached store of ownerID. The next query rebuilds it.
func (o *Orchestrator) Invalidate(ownerID string) {
	o.cache.Invalidate(ownerID)
	o.logger.Debug("rag.cache.invalidate", slog.String("owner_id", ownerID))
}

// Attach invalidates an owner's store whenever store reports a change to
// that owner's documents.
func (o *Orchestrator) Attach(store corpus.Store) {
	store.Subscribe(o.Invalidate)
}

// Build returns the owner's vector store, building it on first use.
// Failures are CodeRetrieval errors wrapping the cause.
func (o *Orchestrator) Build(ctx context.Context, ownerID string) (*memory.VectorStore, error) {
	store, cached, err := o.cache.GetOrBuild(ctx, ownerID, o.build)
	o.metrics.RecordCache(ctx, cached)
	if err != nil {
		return nil, errors.New(errors.CodeRetrieval, "build vector store", err).WithContext("owner_id", ownerID)
	}
	return store, nil
}

func (o *Orchestrator) build(ctx context.Context, ownerID string) (*memory.VectorStore, error) {
	ctx = telemetry.WithOwner(ctx, ownerID)
	ctx, span := o.tracer.Start(ctx, "rag.build", trace.WithAttributes(
		attribute.String(telemetry.AttrOwnerID, ownerID),
	))
	defer span.End()

	docs, err := o.docs.Documents(ctx, ownerID)
	if err != nil {
		o.fail(ctx, span, err, "rag-build")
		o.metrics.RecordBuild(ctx, 0, err)
		return nil, err
	}

	var (
		passages []memory.Passage
		skipped  int
	)
	for _, doc := range docs {
		text, ok := extract.Document(doc)
		if !ok {
			skipped++
			o.logger.DebugContext(ctx, "rag.build.skip",
				slog.String("document_id", doc.ID),
				slog.String("reason", "no content"),
			)
			continue
		}
		passages = append(passages, o.splitter.SplitDocument(text, memory.Metadata{
			DocumentID: doc.ID,
			Title:      doc.Title,
		})...)
	}

	store := memory.NewVectorStore(o.embedder)
	if err := store.AddAll(ctx, passages); err != nil {
		o.fail(ctx, span, err, "rag-build")
		o.metrics.RecordBuild(ctx, 0, err)
		return nil, err
	}

	span.SetAttributes(telemetry.BuildAttributes(len(docs), skipped, len(passages), store.Dimension())...)
	o.metrics.RecordBuild(ctx, len(passages), nil)
	o.logger.InfoContext(ctx, "rag.build.done",
		slog.Int("documents", len(docs)),
		slog.Int("skipped", skipped),
		slog.Int("passages", len(passages)),
	)
	return store, nil
}

// Search returns the k passages closest to query with their scores.
func (o *Orchestrator) Search(ctx context.Context, ownerID, query string, k int) ([]memory.ScoredPassage, error) {
	if k < 1 {
		return nil, errors.Newf(errors.CodeInvalidInput, "k must be >= 1, got %d", k)
	}
	ctx = telemetry.WithOwner(ctx, ownerID)
	ctx, span := o.tracer.Start(ctx, "rag.retrieve", trace.WithAttributes(
		telemetry.QueryAttributes(ownerID, query, k)...,
	))
	defer span.End()
	start := time.Now()

	store, err := o.Build(ctx, ownerID)
	if err != nil {
		o.fail(ctx, span, err, "rag-retrieve")
		return nil, err
	}
	hits, err := store.SimilaritySearchWithScores(ctx, query, k)
	if err != nil {
		err = errors.New(errors.CodeRetrieval, "similarity search", err).WithContext("owner_id", ownerID)
		o.fail(ctx, span, err, "rag-retrieve")
		return nil, err
	}
	o.metrics.RecordRetrieval(ctx, time.Since(start))

	var top float64
	if len(hits) > 0 {
		top = hits[0].Score
	}
	span.SetAttributes(telemetry.RetrievalAttributes(len(hits), top, 0)...)
	o.logger.DebugContext(ctx, "rag.retrieve.done", slog.Int("hits", len(hits)))
	return hits, nil
}

// Retrieve returns the top-k passages for query, best first.
func (o *Orchestrator) Retrieve(ctx context.Context, ownerID, query string) ([]memory.Passage, error) {
	hits, err := o.Search(ctx, ownerID, query, o.topK)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Passage, len(hits))
	for i, h := range hits {
		out[i] = h.Passage
	}
	return out, nil
}

// Prompt retrieves context for query and returns the generation request
// that Answer and Fragments send.
func (o *Orchestrator) Prompt(ctx context.Context, ownerID, query string) (llm.ChatRequest, error) {
	passages, err := o.Retrieve(ctx, ownerID, query)
	if err != nil {
		return llm.ChatRequest{}, err
	}
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	joined := strings.Join(texts, "\n\n")
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int(telemetry.AttrContextLen, len(joined)))

	return llm.ChatRequest{
		Model:       o.model,
		Temperature: o.temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: fmt.Sprintf(o.systemPrompt, joined)},
			{Role: llm.RoleUser, Content: query},
		},
	}, nil
}

// Answer returns the generator's full answer to query grounded on the
// owner's notes. An owner with no notes still gets an answer, generated
// from an empty context.
func (o *Orchestrator) Answer(ctx context.Context, ownerID, query string) (string, error) {
	ctx = telemetry.WithOwner(ctx, ownerID)
	ctx, span := o.tracer.Start(ctx, "rag.answer", trace.WithAttributes(
		telemetry.QueryAttributes(ownerID, query, o.topK)...,
	))
	defer span.End()
	o.metrics.RecordQuery(ctx, "answer")

	req, err := o.Prompt(ctx, ownerID, query)
	if err != nil {
		o.fail(ctx, span, err, "rag-answer")
		return "", err
	}
	span.SetAttributes(telemetry.LLMAttributes(o.model, "", len(req.Messages))...)

	resp, err := o.gen.Chat(ctx, req)
	if err != nil {
		err = generationError(err, ownerID)
		o.fail(ctx, span, err, "rag-generate")
		return "", err
	}
	return resp.Content, nil
}

func generationError(err error, ownerID string) error {
	return errors.New(errors.CodeGeneration, "generate answer", err).WithContext("owner_id", ownerID)
}

func (o *Orchestrator) fail(ctx context.Context, span trace.Span, err error, stage string) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if ctx.Err() != nil {
		// Cancellation is the caller's choice, not a pipeline failure.
		return
	}
	o.metrics.RecordError(ctx, err, stage)
	o.logger.ErrorContext(ctx, "rag.error",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
		slog.String("error_code", string(errors.As(err).Code)),
	)
}
