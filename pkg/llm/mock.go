// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"sync"
)

// MockProvider is a testing implementation of Provider. It does not stream.
type MockProvider struct {
	Response string
	Err      error
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	mu       sync.Mutex
	requests []ChatRequest
}

func (m *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ChatFunc != nil {
		return m.ChatFunc(ctx, req)
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return &ChatResponse{
		Content: m.Response,
		Usage: Usage{
			PromptTokens:     10,
			CompletionTokens: 10,
			TotalTokens:      20,
		},
	}, nil
}

// Requests returns a copy of every request received so far.
func (m *MockProvider) Requests() []ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ChatRequest(nil), m.requests...)
}

// ScriptedStreamProvider streams a fixed list of fragments.
// StartErr fails the request before any fragment; StreamErr is delivered
// after the fragments instead of the Done chunk.
type ScriptedStreamProvider struct {
	Fragments []string
	StartErr  error
	StreamErr error

	mu    sync.Mutex
	calls int
	last  ChatRequest
}

// NewScriptedStreamProvider creates a provider that streams fragments in order.
func NewScriptedStreamProvider(fragments ...string) *ScriptedStreamProvider {
	return &ScriptedStreamProvider{Fragments: fragments}
}

func (s *ScriptedStreamProvider) record(req ChatRequest) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.last = req
}

// Chat returns the concatenated fragments.
func (s *ScriptedStreamProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	chunks, err := s.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return Collect(ctx, chunks)
}

// ChatStream emits the scripted fragments.
func (s *ScriptedStreamProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	s.record(req)
	if s.StartErr != nil {
		return nil, s.StartErr
	}
	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		for _, f := range s.Fragments {
			if !send(ctx, chunks, StreamChunk{Content: f}) {
				return
			}
		}
		if s.StreamErr != nil {
			send(ctx, chunks, StreamChunk{Error: s.StreamErr})
			return
		}
		send(ctx, chunks, StreamChunk{Done: true})
	}()
	return chunks, nil
}

// Calls reports how many requests were started.
func (s *ScriptedStreamProvider) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// LastRequest returns the most recent request.
func (s *ScriptedStreamProvider) LastRequest() ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

var _ StreamingProvider = (*ScriptedStreamProvider)(nil)
