// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
)

// OllamaProvider implements StreamingProvider for Ollama's /api/chat.
type OllamaProvider struct {
	baseURL string
	client  *http.Client
}

// NewOllama creates a new OllamaProvider.
func NewOllama(baseURL string) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &OllamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []Message              `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

// ollamaEvent is both the non-streaming response and one NDJSON stream line.
type ollamaEvent struct {
	Model           string  `json:"model"`
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	Error           string  `json:"error,omitempty"`
	PromptEvalCount int     `json:"prompt_eval_count,omitempty"`
	EvalCount       int     `json:"eval_count,omitempty"`
}

func (e ollamaEvent) usage() Usage {
	return Usage{
		PromptTokens:     e.PromptEvalCount,
		CompletionTokens: e.EvalCount,
		TotalTokens:      e.PromptEvalCount + e.EvalCount,
	}
}

func (p *OllamaProvider) post(ctx context.Context, req ChatRequest, stream bool) (*http.Response, error) {
	oReq := ollamaRequest{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
	}
	if req.Temperature != 0 {
		oReq.Options = map[string]interface{}{
			"temperature": req.Temperature,
		}
	}

	body, err := json.Marshal(oReq)
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshal ollama request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create ollama request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeGeneration, "ollama api call failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.CodeGeneration, "ollama api returned non-success status",
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(respBody))).
			WithContext("status", resp.StatusCode)
	}
	return resp, nil
}

// Chat sends a chat request to Ollama and maps the response to ChatResponse.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.post(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var oResp ollamaEvent
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return nil, errors.New(errors.CodeGeneration, "decode ollama response", err)
	}
	return &ChatResponse{
		Content: oResp.Message.Content,
		Usage:   oResp.usage(),
	}, nil
}

// ChatStream reads Ollama's NDJSON stream, one event per line.
func (p *OllamaProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.post(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk, 16)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		reader := bufio.NewReader(resp.Body)
		for {
			line, err := reader.ReadBytes('\n')
			if len(bytes.TrimSpace(line)) > 0 {
				var event ollamaEvent
				if jsonErr := json.Unmarshal(line, &event); jsonErr == nil {
					if event.Error != "" {
						send(ctx, chunks, StreamChunk{Error: errors.New(errors.CodeGeneration, "ollama stream error", fmt.Errorf("%s", event.Error))})
						return
					}
					if event.Message.Content != "" {
						if !send(ctx, chunks, StreamChunk{Content: event.Message.Content}) {
							return
						}
					}
					if event.Done {
						usage := event.usage()
						send(ctx, chunks, StreamChunk{Done: true, Usage: &usage})
						return
					}
				}
			}
			if err == io.EOF {
				send(ctx, chunks, StreamChunk{Done: true})
				return
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				send(ctx, chunks, StreamChunk{Error: errors.New(errors.CodeGeneration, "ollama stream interrupted", err)})
				return
			}
		}
	}()

	return chunks, nil
}

var _ StreamingProvider = (*OllamaProvider)(nil)
