// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/openai/openai-go/option"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
)

func newTestProvider(url string) *Provider {
	return New(
		WithAPIKey("test-key"),
		WithBaseURL(url+"/"),
		WithModel("test-model"),
		WithRequestOptions(option.WithMaxRetries(0)),
	)
}

func TestNewProvider(t *testing.T) {
	p := New(WithAPIKey("k"))
	if p.model != "gpt-4o-mini" {
		t.Errorf("expected default model, got %s", p.model)
	}
	if p := New(WithAPIKey("k"), WithModel("gpt-4-turbo")); p.model != "gpt-4-turbo" {
		t.Errorf("expected model gpt-4-turbo, got %s", p.model)
	}
}

func TestChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "test-model" {
			t.Errorf("expected default model in request, got %v", body["model"])
		}
		if msgs, _ := body["messages"].([]interface{}); len(msgs) != 2 {
			t.Errorf("expected 2 messages, got %v", body["messages"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
"choices":[{"index":0,"message":{"role":"assistant","content":"The sky is blue."},"finish_reason":"stop"}],
"usage":{"prompt_tokens":5,"completion_tokens":4,"total_tokens":9}}`)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	resp, err := p.Chat(context.Background(), llm.ChatRequest{Messages: []llm.Message{
		{Role: llm.RoleSystem, Content: "context"},
		{Role: llm.RoleUser, Content: "What color is the sky?"},
	}})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if resp.Content != "The sky is blue." || resp.Usage.TotalTokens != 9 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestChatError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	if _, err := p.Chat(context.Background(), llm.ChatRequest{}); !errors.IsCode(err, errors.CodeGeneration) {
		t.Fatalf("expected generation error, got %v", err)
	}

	chunks, err := p.ChatStream(context.Background(), llm.ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream should report failures on the channel, got %v", err)
	}
	if _, err := llm.Collect(context.Background(), chunks); !errors.IsCode(err, errors.CodeGeneration) {
		t.Fatalf("expected generation error from stream, got %v", err)
	}
}

func TestChatStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hel", "lo wo", "rld"} {
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newTestProvider(srv.URL)
	chunks, err := p.ChatStream(context.Background(), llm.ChatRequest{})
	if err != nil {
		t.Fatalf("ChatStream failed: %v", err)
	}
	var got []string
	done := false
	for c := range chunks {
		if c.Error != nil {
			t.Fatalf("unexpected error: %v", c.Error)
		}
		if c.Done {
			done = true
			continue
		}
		got = append(got, c.Content)
	}
	if strings.Join(got, "|") != "Hel|lo wo|rld" || !done {
		t.Fatalf("unexpected fragments %q done=%v", got, done)
	}
}
