// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the generation provider contract and its backends.
package llm

import "context"

// Role represents the role of a message sender.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single unit of communication.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest encapsulates the input for the LLM.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse encapsulates the output from the LLM.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Usage tracks token consumption.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Provider defines the interface for interacting with LLM backends.
type Provider interface {
	// Chat sends a chat request to the LLM and returns the full response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// StreamingProvider is implemented by providers that deliver the answer
// incrementally.
type StreamingProvider interface {
	Provider
	// ChatStream starts a streamed generation. The returned channel yields
	// fragments in arrival order and is closed after a terminal chunk (Done
	// or Error) or once ctx is done.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// StreamChunk is one element of a streamed generation.
type StreamChunk struct {
	Content string
	Done    bool
	Usage   *Usage
	Error   error
}
