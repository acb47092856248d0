// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package openai provides an OpenAI-compatible generation provider.
package openai

import (
	"context"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
)

// Provider implements llm.StreamingProvider for the OpenAI chat API.
type Provider struct {
	client openai.Client
	model  string
	opts   []option.RequestOption
}

// Option configures the Provider.
type Option func(*Provider)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL sets a custom base URL (Azure OpenAI, proxies, local servers).
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

// New creates a new OpenAI provider.
// The API key is read from OPENAI_API_KEY unless WithAPIKey is given.
func New(opts ...Option) *Provider {
	p := &Provider{model: "gpt-4o-mini"}
	for _, opt := range opts {
		opt(p)
	}
	p.client = openai.NewClient(p.opts...)
	return p
}

func (p *Provider) params(req llm.ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, convertMessage(msg))
	}
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	return params
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return nil, errors.New(errors.CodeGeneration, "openai chat completion failed", err)
	}

	resp := &llm.ChatResponse{
		Usage: llm.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:      int(completion.Usage.TotalTokens),
		},
	}
	if len(completion.Choices) > 0 {
		resp.Content = completion.Choices[0].Message.Content
	}
	return resp, nil
}

// ChatStream implements llm.StreamingProvider.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	stream := p.client.Chat.Completions.NewStreaming(ctx, p.params(req))

	chunks := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(chunks)
		defer stream.Close()

		emit := func(c llm.StreamChunk) bool {
			select {
			case chunks <- c:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var usage *llm.Usage
		for stream.Next() {
			event := stream.Current()
			if event.Usage.TotalTokens > 0 {
				usage = &llm.Usage{
					PromptTokens:     int(event.Usage.PromptTokens),
					CompletionTokens: int(event.Usage.CompletionTokens),
					TotalTokens:      int(event.Usage.TotalTokens),
				}
			}
			if len(event.Choices) == 0 {
				continue
			}
			if content := event.Choices[0].Delta.Content; content != "" {
				if !emit(llm.StreamChunk{Content: content}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				return
			}
			emit(llm.StreamChunk{Error: errors.New(errors.CodeGeneration, "openai chat stream failed", err)})
			return
		}
		emit(llm.StreamChunk{Done: true, Usage: usage})
	}()

	return chunks, nil
}

func convertMessage(msg llm.Message) openai.ChatCompletionMessageParamUnion {
	switch msg.Role {
	case llm.RoleSystem:
		return openai.SystemMessage(msg.Content)
	case llm.RoleAssistant:
		return openai.AssistantMessage(msg.Content)
	default:
		return openai.UserMessage(msg.Content)
	}
}

var _ llm.StreamingProvider = (*Provider)(nil)
