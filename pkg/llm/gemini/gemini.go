// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package gemini provides a Google Gemini generation provider.
package gemini

import (
	"context"
	"strings"

	"google.golang.org/genai"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
)

// Provider implements llm.StreamingProvider for the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

type settings struct {
	model   string
	apiKey  string
	baseURL string
}

// Option configures the Provider.
type Option func(*settings)

// WithModel sets the default model.
func WithModel(model string) Option {
	return func(s *settings) {
		if model != "" {
			s.model = model
		}
	}
}

// WithAPIKey sets the API key. Without it the client reads GOOGLE_API_KEY
// or GEMINI_API_KEY.
func WithAPIKey(apiKey string) Option {
	return func(s *settings) {
		s.apiKey = apiKey
	}
}

// WithBaseURL points the client at a different endpoint.
func WithBaseURL(url string) Option {
	return func(s *settings) {
		s.baseURL = url
	}
}

// New creates a Gemini provider.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	s := settings{model: "gemini-2.0-flash"}
	for _, opt := range opts {
		opt(&s)
	}

	cfg := &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if s.baseURL != "" {
		cfg.HTTPOptions.BaseURL = s.baseURL
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create gemini client", err)
	}
	return &Provider{client: client, model: s.model}, nil
}

func (p *Provider) prepare(req llm.ChatRequest) (string, []*genai.Content, *genai.GenerateContentConfig) {
	model := req.Model
	if model == "" {
		model = p.model
	}

	contents, system := convertMessages(req.Messages)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		config.Temperature = &temp
	}
	return model, contents, config
}

// Chat implements llm.Provider.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	model, contents, config := p.prepare(req)
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, errors.New(errors.CodeGeneration, "gemini generate content failed", err)
	}
	return convertResponse(resp), nil
}

// ChatStream implements llm.StreamingProvider. Usage is taken from the last
// response that reports it.
func (p *Provider) ChatStream(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	model, contents, config := p.prepare(req)

	chunks := make(chan llm.StreamChunk)
	go func() {
		defer close(chunks)

		var usage *llm.Usage
		for resp, err := range p.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				if ctx.Err() == nil {
					send(ctx, chunks, llm.StreamChunk{Error: errors.New(errors.CodeGeneration, "gemini stream failed", err)})
				}
				return
			}
			part := convertResponse(resp)
			if resp.UsageMetadata != nil {
				usage = &part.Usage
			}
			if part.Content == "" {
				continue
			}
			if !send(ctx, chunks, llm.StreamChunk{Content: part.Content}) {
				return
			}
		}
		send(ctx, chunks, llm.StreamChunk{Done: true, Usage: usage})
	}()
	return chunks, nil
}

// Close is a no-op; the Gemini client holds no resources.
func (p *Provider) Close() error {
	return nil
}

// convertMessages maps chat messages to Gemini contents. System messages
// are joined into the system instruction.
func convertMessages(messages []llm.Message) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, msg.Content)
		case llm.RoleAssistant:
			contents = append(contents, &genai.Content{
				Role:  "model",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: msg.Content}},
			})
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func convertResponse(resp *genai.GenerateContentResponse) *llm.ChatResponse {
	result := &llm.ChatResponse{}
	if resp == nil {
		return result
	}
	if resp.UsageMetadata != nil {
		result.Usage = llm.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		var b strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil {
				b.WriteString(part.Text)
			}
		}
		result.Content = b.String()
	}
	return result
}

func send(ctx context.Context, out chan<- llm.StreamChunk, chunk llm.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

var _ llm.StreamingProvider = (*Provider)(nil)
