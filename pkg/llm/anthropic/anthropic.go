// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package anthropic provides an Anthropic Claude generation provider.
package anthropic

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
)

// Provider implements llm.StreamingProvider for the Anthropic Messages API.
type Provider struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	opts      []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithMaxTokens sets the maximum tokens for responses.
func WithMaxTokens(tokens int64) Option {
	return func(p *Provider) {
		p.maxTokens = tokens
	}
}

// WithBaseURL sets a custom base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.opts = append(p.opts, option.WithBaseURL(url))
	}
}

// WithAPIKey sets the API key.
func WithAPIKey(apiKey string) Option {
	return func(p *Provider) {
		p.opts = append(p.opts, option.WithAPIKey(apiKey))
	}
}

// WithRequestOptions passes raw client options through.
func WithRequestOptions(opts ...option.RequestOption) Option {
	return func(p *Provider) {
		p.opts = append(p.opts, opts...)
	}
}

// New creates a new Anthropic provider.
// The API key is read from ANTHROPIC_API_KEY unless WithAPIKey is given.
func New(opts ...Option) *Provider {
	p := &Provider{
		model:     "claude-sonnet-4-20250514",
		maxTokens: 4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.client = anthropic.NewClient(p.opts...)
	return p
}

// params moves system messages into the System field; the Messages API
// only accepts user and assistant turns.
func (p *Provider) params(req llm.ChatRequest) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	var system []string
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, msg := range req.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: p.maxTokens,
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Type: "text", Text: strings.Join(system, "\n\n")},
		}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	return params
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	message, err := p.client.Messages.New(ctx, p.params(req))
	if err != nil {
		return nil, errors.New(errors.CodeGeneration, "anthropic message failed", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return &llm.ChatResponse{
		Content: b.String(),
		Usage: llm.Usage{
			PromptTokens:     int(message.Usage.InputTokens),
			CompletionTokens: int(message.Usage.OutputTokens),
			TotalTokens:      int(message.Usage.InputTokens + message.Usage.OutputTokens),
		},
	}, nil
}

// ChatStream implements llm.StreamingProvider. Only text deltas are
// forwarded; usage arrives with the final chunk.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(req))

	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()

		var usage llm.Usage
		for stream.Next() {
			switch event := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				usage.PromptTokens = int(event.Message.Usage.InputTokens)
			case anthropic.ContentBlockDeltaEvent:
				if delta, ok := event.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
					if !sendChunk(ctx, chunks, llm.StreamChunk{Content: delta.Text}) {
						return
					}
				}
			case anthropic.MessageDeltaEvent:
				usage.CompletionTokens = int(event.Usage.OutputTokens)
			}
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			sendChunk(ctx, chunks, llm.StreamChunk{Error: errors.New(errors.CodeGeneration, "anthropic stream failed", err)})
			return
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
		sendChunk(ctx, chunks, llm.StreamChunk{Done: true, Usage: &usage})
	}()
	return chunks, nil
}

func sendChunk(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ llm.StreamingProvider = (*Provider)(nil)
