// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jllopis/noterag/pkg/chunk"
	"github.com/jllopis/noterag/pkg/corpus"
	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/telemetry"
)

// keywordEmbedder counts keyword occurrences, one dimension per keyword.
type keywordEmbedder struct {
	keywords []string
	err      error
	calls    atomic.Int64
}

func newKeywordEmbedder() *keywordEmbedder {
	return &keywordEmbedder{keywords: []string{"sky", "blue", "grass", "green"}}
}

func (k *keywordEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	k.calls.Add(1)
	if k.err != nil {
		return nil, k.err
	}
	lower := strings.ToLower(text)
	v := make([]float64, len(k.keywords))
	for i, w := range k.keywords {
		v[i] = float64(strings.Count(lower, w))
	}
	return v, nil
}

func seedCorpus(t *testing.T, owner string, texts ...string) *corpus.InMemory {
	t.Helper()
	store := corpus.NewInMemory()
	for i, text := range texts {
		_, err := store.Put(context.Background(), corpus.Document{
			ID:      fmt.Sprintf("doc-%d", i),
			OwnerID: owner,
			Title:   fmt.Sprintf("Doc %d", i),
			Content: corpus.BlocksFromText(text),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return store
}

func TestAnswerEndToEnd(t *testing.T) {
	docs := seedCorpus(t, "user-1", "The sky is blue.", "Grass is green.")
	gen := &llm.MockProvider{Response: "The sky is blue."}
	orch, err := New(docs, newKeywordEmbedder(), gen, WithModel("test-model"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	answer, err := orch.Answer(context.Background(), "user-1", "What color is the sky?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "The sky is blue." {
		t.Fatalf("unexpected answer %q", answer)
	}

	reqs := gen.Requests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 generation request, got %d", len(reqs))
	}
	msgs := reqs[0].Messages
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	wantSystem := "Answer the user's question based on the following context:\n\nContext: The sky is blue.\n\nGrass is green.\n\n"
	if msgs[0].Role != llm.RoleSystem || msgs[0].Content != wantSystem {
		t.Fatalf("unexpected system message %q", msgs[0].Content)
	}
	if msgs[1].Role != llm.RoleUser || msgs[1].Content != "What color is the sky?" {
		t.Fatalf("unexpected user message %+v", msgs[1])
	}
	if reqs[0].Model != "test-model" {
		t.Fatalf("expected model to be forwarded, got %q", reqs[0].Model)
	}
}

func TestAnswerEmptyCorpusSkipsEmbedder(t *testing.T) {
	embedder := newKeywordEmbedder()
	gen := &llm.MockProvider{Response: "I don't know."}
	orch, err := New(corpus.NewInMemory(), embedder, gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	answer, err := orch.Answer(context.Background(), "nobody", "anything?")
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if answer != "I don't know." {
		t.Fatalf("unexpected answer %q", answer)
	}
	if n := embedder.calls.Load(); n != 0 {
		t.Fatalf("expected no embedding calls for an empty corpus, got %d", n)
	}
	want := "Answer the user's question based on the following context:\n\nContext: \n\n"
	if got := gen.Requests()[0].Messages[0].Content; got != want {
		t.Fatalf("unexpected system message %q", got)
	}
}

func TestRetrieveSkipsDocumentsWithoutContent(t *testing.T) {
	docs := seedCorpus(t, "u1", "The sky is blue.")
	if _, err := docs.Put(context.Background(), corpus.Document{OwnerID: "u1", Title: "draft"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	orch, _ := New(docs, newKeywordEmbedder(), &llm.MockProvider{})

	store, err := orch.Build(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected only the authored document to be indexed, got %d entries", store.Len())
	}
}

func TestRetrieveTopKOrder(t *testing.T) {
	docs := seedCorpus(t, "u1", "Grass is green.", "The sky is blue.", "Blue sky, blue sea.", "Nothing here.")
	orch, _ := New(docs, newKeywordEmbedder(), &llm.MockProvider{}, WithTopK(2))

	passages, err := orch.Retrieve(context.Background(), "u1", "sky")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(passages) != 2 {
		t.Fatalf("expected 2 passages, got %d", len(passages))
	}
	// [1,1,0,0] scores 0.707 and [1,2,0,0] scores 0.447 against [1,0,0,0].
	if passages[0].Metadata.DocumentID != "doc-1" || passages[1].Metadata.DocumentID != "doc-2" {
		t.Fatalf("unexpected ranking %+v", passages)
	}
}

func TestAnswerGenerationError(t *testing.T) {
	docs := seedCorpus(t, "u1", "The sky is blue.")
	gen := &llm.MockProvider{Err: errors.New(errors.CodeGeneration, "boom", nil)}
	orch, _ := New(docs, newKeywordEmbedder(), gen)

	_, err := orch.Answer(context.Background(), "u1", "sky?")
	if !errors.IsCode(err, errors.CodeGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if errors.As(err).Context["owner_id"] != "u1" {
		t.Fatalf("expected owner in error context, got %v", errors.As(err).Context)
	}
}

func TestLogsCarryOwnerAndTrace(t *testing.T) {
	pipeline, err := telemetry.Start("rag-test", "v0", telemetry.Config{Writer: io.Discard})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pipeline.Shutdown(context.Background())

	var buf bytes.Buffer
	logger := telemetry.NewLogger(&buf, "info", "json")
	docs := seedCorpus(t, "u1", "The sky is blue.")
	gen := &llm.MockProvider{Err: errors.New(errors.CodeGeneration, "boom", nil)}
	orch, err := New(docs, newKeywordEmbedder(), gen, WithLogger(logger), WithTelemetry(pipeline))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := orch.Answer(context.Background(), "u1", "sky?"); err == nil {
		t.Fatal("expected generation error")
	}

	records := map[string]map[string]interface{}{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var record map[string]interface{}
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		records[record["msg"].(string)] = record
	}
	for _, msg := range []string{"rag.build.done", "rag.error"} {
		record, ok := records[msg]
		if !ok {
			t.Fatalf("missing %s record in %s", msg, buf.String())
		}
		if record["owner_id"] != "u1" {
			t.Fatalf("%s: expected owner_id u1, got %v", msg, record["owner_id"])
		}
	}
	if records["rag.error"]["trace_id"] == nil {
		t.Fatalf("expected trace_id on rag.error, got %v", records["rag.error"])
	}
}

func TestBuildFailureIsRetrievalError(t *testing.T) {
	docs := seedCorpus(t, "u1", "The sky is blue.")
	embedder := newKeywordEmbedder()
	embedder.err = errors.New(errors.CodeEmbeddingProvider, "embedding provider returned status 500", nil)
	gen := &llm.MockProvider{Response: "unused"}
	orch, _ := New(docs, embedder, gen)

	_, err := orch.Answer(context.Background(), "u1", "sky?")
	if !errors.IsCode(err, errors.CodeRetrieval) {
		t.Fatalf("expected retrieval error, got %v", err)
	}
	if !errors.IsCode(err, errors.CodeEmbeddingProvider) {
		t.Fatalf("expected the embedding failure in the chain, got %v", err)
	}
	if len(gen.Requests()) != 0 {
		t.Fatal("generator must not be called when retrieval fails")
	}
	if orch.Cache().Len() != 0 {
		t.Fatal("a failed build must not be cached")
	}
}

func TestCacheReuseAndInvalidation(t *testing.T) {
	docs := seedCorpus(t, "u1", "The sky is blue.", "Grass is green.")
	embedder := newKeywordEmbedder()
	orch, _ := New(docs, embedder, &llm.MockProvider{})
	orch.Attach(docs)
	ctx := context.Background()

	if _, err := orch.Retrieve(ctx, "u1", "sky"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if _, err := orch.Retrieve(ctx, "u1", "sky"); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	// Two passages embedded once, plus one query embedding per call.
	if n := embedder.calls.Load(); n != 4 {
		t.Fatalf("expected 4 embedding calls, got %d", n)
	}

	if _, err := docs.Put(ctx, corpus.Document{
		ID:      "night",
		OwnerID: "u1",
		Title:   "Night",
		Content: corpus.BlocksFromText("At night the sky is dark."),
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	passages, err := orch.Retrieve(ctx, "u1", "sky")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if passages[0].Metadata.DocumentID != "night" {
		t.Fatalf("expected the new document to be retrieved first, got %+v", passages)
	}
	if n := embedder.calls.Load(); n != 8 {
		t.Fatalf("expected a rebuild of 3 passages, got %d total calls", n)
	}

	orch.Invalidate("u1")
	if _, ok := orch.Cache().Get("u1"); ok {
		t.Fatal("expected the store to be dropped")
	}
}

func TestSharedCacheAcrossOrchestrators(t *testing.T) {
	docs := seedCorpus(t, "u1", "The sky is blue.")
	cache := memory.NewStoreCache()
	embedder := newKeywordEmbedder()
	a, _ := New(docs, embedder, &llm.MockProvider{}, WithCache(cache))
	b, _ := New(docs, embedder, &llm.MockProvider{}, WithCache(cache))

	sa, err := a.Build(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	sb, err := b.Build(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if sa != sb {
		t.Fatal("expected orchestrators sharing a cache to share the store")
	}
}

func TestOptionsValidation(t *testing.T) {
	docs := corpus.NewInMemory()
	embedder := newKeywordEmbedder()
	gen := &llm.MockProvider{}
	splitter, _ := chunk.New(10, 2)

	tests := []struct {
		name string
		opts []Option
		ok   bool
	}{
		{"defaults", nil, true},
		{"all options", []Option{WithTopK(5), WithConcurrency(2), WithSplitter(splitter), WithSystemPrompt("ctx=%s"), WithTemperature(0.2)}, true},
		{"zero top k", []Option{WithTopK(0)}, false},
		{"zero concurrency", []Option{WithConcurrency(0)}, false},
		{"prompt without placeholder", []Option{WithSystemPrompt("no context")}, false},
		{"prompt with two placeholders", []Option{WithSystemPrompt("%s %s")}, false},
		{"nil cache", []Option{WithCache(nil)}, false},
		{"nil splitter", []Option{WithSplitter(nil)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(docs, embedder, gen, tt.opts...)
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.IsCode(err, errors.CodeInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}

	if _, err := New(nil, embedder, gen); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for missing corpus, got %v", err)
	}
}

func TestCustomSystemPrompt(t *testing.T) {
	docs := seedCorpus(t, "u1", "The sky is blue.")
	gen := &llm.MockProvider{Response: "ok"}
	orch, _ := New(docs, newKeywordEmbedder(), gen, WithSystemPrompt("Notes:\n%s"))

	if _, err := orch.Answer(context.Background(), "u1", "sky 100%?"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	req := gen.Requests()[0]
	if req.Messages[0].Content != "Notes:\nThe sky is blue." || req.Messages[1].Content != "sky 100%?" {
		t.Fatalf("unexpected messages %+v", req.Messages)
	}
}
