// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package gemini

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/jllopis/noterag/pkg/llm"
)

func TestWithModel(t *testing.T) {
	s := settings{model: "gemini-2.0-flash"}
	WithModel("gemini-1.5-pro")(&s)
	if s.model != "gemini-1.5-pro" {
		t.Errorf("expected model gemini-1.5-pro, got %s", s.model)
	}
	WithModel("")(&s)
	if s.model != "gemini-1.5-pro" {
		t.Errorf("an empty model should keep the current one, got %s", s.model)
	}
}

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llm.Message{
		{Role: llm.RoleSystem, Content: "You are helpful"},
		{Role: llm.RoleSystem, Content: "Context: sky"},
		{Role: llm.RoleUser, Content: "Hello"},
		{Role: llm.RoleAssistant, Content: "Hi there"},
	})
	if system != "You are helpful\n\nContext: sky" {
		t.Errorf("unexpected system instruction %q", system)
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Errorf("unexpected roles %s, %s", contents[0].Role, contents[1].Role)
	}
}

func TestConvertResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: "The sky "}, {Text: "is blue."}}},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     5,
			CandidatesTokenCount: 4,
			TotalTokenCount:      9,
		},
	}
	got := convertResponse(resp)
	if got.Content != "The sky is blue." || got.Usage.TotalTokens != 9 {
		t.Fatalf("unexpected response %+v", got)
	}
	if empty := convertResponse(nil); empty.Content != "" {
		t.Fatalf("expected empty response, got %+v", empty)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"The sky is blue."}]},"finishReason":"STOP"}],
"usageMetadata":{"promptTokenCount":5,"candidatesTokenCount":4,"totalTokenCount":9}}`)
	}))
	defer srv.Close()

	ctx := context.Background()
	p, err := New(ctx, WithAPIKey("test-key"), WithBaseURL(srv.URL+"/"), WithModel("test-model"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	resp, err := p.Chat(ctx, llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "context"},
		{Role: llm.RoleUser, Content: "What color is the sky?"},
	}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "The sky is blue." || resp.Usage.PromptTokens != 5 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClose(t *testing.T) {
	if err := (&Provider{}).Close(); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
