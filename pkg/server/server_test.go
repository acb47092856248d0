// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jllopis/noterag/pkg/corpus"
	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/rag"
)

func newTestServer(t *testing.T, gen llm.Provider) (*httptest.Server, *rag.Orchestrator) {
	t.Helper()
	docs := corpus.NewInMemory()
	if _, err := docs.Put(context.Background(), corpus.Document{
		ID:      "sky",
		OwnerID: "u1",
		Title:   "Sky",
		Content: corpus.BlocksFromText("The sky is blue."),
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	embedder := memory.NewHashEmbedder(64)
	orch, err := rag.New(docs, embedder, gen)
	if err != nil {
		t.Fatalf("rag.New: %v", err)
	}
	srv := httptest.NewServer(New(orch, WithEmbedder(embedder), WithGenerator(gen)))
	t.Cleanup(srv.Close)
	return srv, orch
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	payload, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorDetail {
	t.Helper()
	var body errorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestAnswerRoute(t *testing.T) {
	gen := &llm.MockProvider{Response: "Blue."}
	srv, _ := newTestServer(t, gen)

	resp := post(t, srv.URL+"/api/rag", map[string]string{"query": "What color is the sky?", "userId": "u1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var out map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["answer"] != "Blue." {
		t.Fatalf("unexpected answer %q", out["answer"])
	}
	if !strings.Contains(gen.Requests()[0].Messages[0].Content, "The sky is blue.") {
		t.Fatalf("expected retrieved context in system message")
	}
}

func TestAnswerRouteValidation(t *testing.T) {
	srv, _ := newTestServer(t, &llm.MockProvider{})

	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"userId":"u1"}`},
		{"missing user", `{"query":"q"}`},
		{"invalid json", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/rag", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
			if detail := decodeError(t, resp); detail.Code != string(errors.CodeInvalidInput) {
				t.Fatalf("unexpected error code %q", detail.Code)
			}
		})
	}
}

func TestAnswerRouteGenerationFailure(t *testing.T) {
	srv, _ := newTestServer(t, &llm.MockProvider{Err: errors.New(errors.CodeGeneration, "upstream", nil)})

	resp := post(t, srv.URL+"/api/rag", map[string]string{"query": "q", "userId": "u1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	if detail := decodeError(t, resp); detail.Code != string(errors.CodeGeneration) {
		t.Fatalf("unexpected error code %q", detail.Code)
	}
}

func TestStreamRoute(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewScriptedStreamProvider("Hel", "lo wo", "rld"))

	resp := post(t, srv.URL+"/api/rag/stream", map[string]string{"query": "q", "userId": "u1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("unexpected content type %q", ct)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(body) != "Hello world" {
		t.Fatalf("unexpected body %q", body)
	}
}

func TestStreamRouteFailureBeforeFirstFragment(t *testing.T) {
	gen := llm.NewScriptedStreamProvider()
	gen.StartErr = errors.New(errors.CodeGeneration, "refused", nil)
	srv, _ := newTestServer(t, gen)

	resp := post(t, srv.URL+"/api/rag/stream", map[string]string{"query": "q", "userId": "u1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
}

func TestStreamRouteCutsStreamOnLateFailure(t *testing.T) {
	gen := llm.NewScriptedStreamProvider("partial")
	gen.StreamErr = errors.New(errors.CodeGeneration, "reset", nil)
	srv, _ := newTestServer(t, gen)

	resp := post(t, srv.URL+"/api/rag/stream", map[string]string{"query": "q", "userId": "u1"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 once streaming started, got %d", resp.StatusCode)
	}
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Fatal("expected the body read to fail on a cut stream")
	}
}

func TestInvalidateRoute(t *testing.T) {
	srv, orch := newTestServer(t, &llm.MockProvider{Response: "ok"})
	if _, err := orch.Build(context.Background(), "u1"); err != nil {
		t.Fatalf("Build: %v", err)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/rag/cache/u1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if _, ok := orch.Cache().Get("u1"); ok {
		t.Fatal("expected cached store to be dropped")
	}
}

func TestEmbeddingsRoute(t *testing.T) {
	srv, _ := newTestServer(t, &llm.MockProvider{})

	resp := post(t, srv.URL+"/api/embeddings", map[string]string{"input": "blue sky"})
	defer resp.Body.Close()
	var out struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Embedding) != 64 {
		t.Fatalf("expected 64 dimensions, got %d", len(out.Embedding))
	}

	bad := post(t, srv.URL+"/api/embeddings", map[string]string{})
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing input, got %d", bad.StatusCode)
	}
}

func TestChatRoute(t *testing.T) {
	gen := llm.NewScriptedStreamProvider("a", "b")
	srv, _ := newTestServer(t, gen)

	resp := post(t, srv.URL+"/api/chat", map[string]any{
		"messages": []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ab" {
		t.Fatalf("unexpected body %q", body)
	}
	if last := gen.LastRequest(); len(last.Messages) != 1 || last.Messages[0].Content != "hi" {
		t.Fatalf("messages were not forwarded: %+v", last)
	}
}

func TestHealthAndUnknownRoutes(t *testing.T) {
	srv, _ := newTestServer(t, &llm.MockProvider{})

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/rag")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET /api/rag, got %d", resp.StatusCode)
	}
}
