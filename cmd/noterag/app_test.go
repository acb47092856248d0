// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jllopis/noterag/pkg/config"
	"github.com/jllopis/noterag/pkg/corpus"
	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/resilience"
)

func testConfig() *config.Config {
	return &config.Config{
		Log:       config.LogConfig{Level: "error", Format: "text"},
		LLM:       config.LLMConfig{Provider: "mock"},
		Embedder:  config.EmbedderConfig{Provider: "mock", Concurrency: 2, Dimensions: 256},
		Chunker:   config.ChunkerConfig{Size: 1000, Overlap: 200},
		Retrieval: config.RetrievalConfig{TopK: 3},
		Corpus:    config.CorpusConfig{Driver: "memory"},
	}
}

func newTestApp(t *testing.T) *app {
	t.Helper()
	a, err := newApp(testConfig())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

func putNote(t *testing.T, a *app, owner, title, text string) corpus.Document {
	t.Helper()
	doc, err := a.store.Put(context.Background(), corpus.Document{
		OwnerID: owner,
		Title:   title,
		Content: corpus.BlocksFromText(text),
	})
	if err != nil {
		t.Fatalf("put %q: %v", title, err)
	}
	return doc
}

func TestNewGenerator(t *testing.T) {
	tests := []struct {
		cfg     config.LLMConfig
		wantErr bool
	}{
		{config.LLMConfig{Provider: "mock"}, false},
		{config.LLMConfig{Provider: "ollama"}, false},
		{config.LLMConfig{Provider: "openai", Model: "gpt-4o-mini", TimeoutSeconds: 10}, false},
		{config.LLMConfig{Provider: "http", BaseURL: "http://localhost:9000/chat"}, false},
		{config.LLMConfig{Provider: "http"}, true},
		{config.LLMConfig{Provider: "anthropic", Model: "claude-3-5-haiku-latest", TimeoutSeconds: 10}, false},
		{config.LLMConfig{Provider: "gemini", APIKey: "test"}, false},
		{config.LLMConfig{Provider: "cohere"}, true},
	}
	for _, tt := range tests {
		gen, err := newGenerator(tt.cfg)
		if (err != nil) != tt.wantErr {
			t.Errorf("newGenerator(%+v) error = %v, wantErr %v", tt.cfg, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			if !errors.IsCode(err, errors.CodeInvalidInput) {
				t.Errorf("expected invalid input, got %v", err)
			}
			continue
		}
		if gen == nil {
			t.Errorf("newGenerator(%+v) returned nil provider", tt.cfg)
		}
	}

	gen, _ := newGenerator(config.LLMConfig{Provider: "mock"})
	if _, ok := gen.(llm.StreamingProvider); !ok {
		t.Fatal("mock generator should stream")
	}
}

func TestNewEmbedder(t *testing.T) {
	e, err := newEmbedder(config.EmbedderConfig{Provider: "mock", Dimensions: 32})
	if err != nil {
		t.Fatalf("newEmbedder: %v", err)
	}
	vec, err := e.Embed(context.Background(), "hello world")
	if err != nil || len(vec) != 32 {
		t.Fatalf("expected 32 dims, got %d (%v)", len(vec), err)
	}
	if _, ok := e.(*memory.HashEmbedder); !ok {
		t.Fatalf("expected hash embedder, got %T", e)
	}

	if _, err := newEmbedder(config.EmbedderConfig{Provider: "http"}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input without base url, got %v", err)
	}
	if _, err := newEmbedder(config.EmbedderConfig{Provider: "bert"}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for unknown provider, got %v", err)
	}
}

func TestOpenCorpus(t *testing.T) {
	store, closeFn, err := openCorpus(config.CorpusConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "notes.db")})
	if err != nil {
		t.Fatalf("open sqlite corpus: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*corpus.SQLite); !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}

	if _, _, err := openCorpus(config.CorpusConfig{Driver: "postgres"}); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for unknown driver, got %v", err)
	}
}

func TestNewAppRejectsBadPrompt(t *testing.T) {
	cfg := testConfig()
	cfg.Retrieval.SystemPrompt = "no placeholder"
	if _, err := newApp(cfg); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestAskStreamsAnswer(t *testing.T) {
	a := newTestApp(t)
	putNote(t, a, "u1", "Sky", "The sky is blue.")

	var out bytes.Buffer
	if err := ask(context.Background(), a.orch, &out, false, "u1", "what color is the sky?"); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if out.String() != "This is a mock answer.\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	out.Reset()
	if err := ask(context.Background(), a.orch, &out, true, "u1", "what color is the sky?"); err != nil {
		t.Fatalf("ask json: %v", err)
	}
	var res askResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if res.Answer != "This is a mock answer." || res.UserID != "u1" {
		t.Fatalf("unexpected result %+v", res)
	}

	req := a.gen.(*llm.ScriptedStreamProvider).LastRequest()
	if len(req.Messages) != 2 || !strings.Contains(req.Messages[0].Content, "The sky is blue.") {
		t.Fatalf("expected retrieved context in system message, got %+v", req.Messages)
	}
}

func TestSearchRanksMatchingNoteFirst(t *testing.T) {
	a := newTestApp(t)
	putNote(t, a, "u1", "Sky", "The sky is blue.")
	putNote(t, a, "u1", "Grass", "Grass is green.")

	var out bytes.Buffer
	if err := search(context.Background(), a.orch, &out, true, "u1", "sky", 1); err != nil {
		t.Fatalf("search: %v", err)
	}
	var hits []searchHit
	if err := json.Unmarshal(out.Bytes(), &hits); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(hits) != 1 || hits[0].Title != "Sky" || hits[0].Rank != 1 {
		t.Fatalf("unexpected hits %+v", hits)
	}

	out.Reset()
	if err := search(context.Background(), a.orch, &out, false, "nobody", "sky", 3); err != nil {
		t.Fatalf("search empty owner: %v", err)
	}
	if !strings.Contains(out.String(), "No passages found.") {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := search(context.Background(), a.orch, &out, false, "u1", "sky", 0); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for k=0, got %v", err)
	}
}

func TestIndexReportsStore(t *testing.T) {
	a := newTestApp(t)
	putNote(t, a, "u1", "Sky", "The sky is blue.")
	putNote(t, a, "u1", "Grass", "Grass is green.")

	var out bytes.Buffer
	rc := resilience.DefaultRetryConfig().WithMaxAttempts(2).WithInitialDelay(time.Millisecond)
	if err := index(context.Background(), a, &out, true, "u1", rc); err != nil {
		t.Fatalf("index: %v", err)
	}
	var res indexResult
	if err := json.Unmarshal(out.Bytes(), &res); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if res.Passages != 2 || res.Dimension != 256 || res.Attempts != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := a.orch.Cache().Get("u1"); !ok {
		t.Fatal("expected the store to be cached after index")
	}
}

func TestDocsCommands(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	parent := putNote(t, a, "u1", "Parent", "top")
	child, err := a.store.Put(ctx, corpus.Document{OwnerID: "u1", Title: "Child", ParentID: parent.ID, Content: corpus.BlocksFromText("nested")})
	if err != nil {
		t.Fatalf("put child: %v", err)
	}

	var out bytes.Buffer
	if err := docs(ctx, a.store, &out, true, "list", "u1"); err != nil {
		t.Fatalf("docs list: %v", err)
	}
	var rows []docRow
	if err := json.Unmarshal(out.Bytes(), &rows); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if len(rows) != 2 || rows[1].ParentID != parent.ID {
		t.Fatalf("unexpected rows %+v", rows)
	}

	out.Reset()
	if err := docs(ctx, a.store, &out, false, "archive", parent.ID); err != nil {
		t.Fatalf("docs archive: %v", err)
	}
	list, _ := a.store.Documents(ctx, "u1")
	if len(list) != 0 {
		t.Fatalf("archive should hide the subtree, got %d documents", len(list))
	}

	if err := docs(ctx, a.store, &out, false, "delete", child.ID); err != nil {
		t.Fatalf("docs delete: %v", err)
	}
	if err := docs(ctx, a.store, &out, false, "delete", child.ID); !errors.IsCode(err, errors.CodeNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	if err := docs(ctx, a.store, &out, false, "rename", child.ID); !errors.IsCode(err, errors.CodeInvalidInput) {
		t.Fatalf("expected invalid input for unknown action, got %v", err)
	}
}

func TestImportSeedInvalidatesCache(t *testing.T) {
	a := newTestApp(t)
	putNote(t, a, "u1", "Sky", "The sky is blue.")
	if _, err := a.orch.Build(context.Background(), "u1"); err != nil {
		t.Fatalf("build: %v", err)
	}

	seed := filepath.Join(t.TempDir(), "seed.yaml")
	body := "documents:\n  - owner: u1\n    title: Night\n    text: The night sky is dark.\n"
	if err := os.WriteFile(seed, []byte(body), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	imported, err := corpus.LoadSeed(context.Background(), a.store, seed)
	if err != nil {
		t.Fatalf("load seed: %v", err)
	}
	if len(imported) != 1 || imported[0].Title != "Night" {
		t.Fatalf("unexpected import %+v", imported)
	}
	if _, ok := a.orch.Cache().Get("u1"); ok {
		t.Fatal("import should invalidate the owner's cached store")
	}

	var out bytes.Buffer
	if err := printDocs(&out, false, imported); err != nil {
		t.Fatalf("printDocs: %v", err)
	}
	if !strings.Contains(out.String(), "Night") {
		t.Fatalf("unexpected table %q", out.String())
	}
}

func TestImportPDFMissingFile(t *testing.T) {
	a := newTestApp(t)
	if _, err := importPDF(context.Background(), a.store, filepath.Join(t.TempDir(), "missing.pdf"), "u1"); err == nil {
		t.Fatal("expected an error for a missing pdf")
	}
}
