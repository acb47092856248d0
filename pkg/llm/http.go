// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
)

// HTTPProvider talks to a chat endpoint that accepts {"messages": [...]} and
// answers with {"content": "..."} or, when streaming, a chunked plain-text body.
type HTTPProvider struct {
	url     string
	client  *http.Client
	headers map[string]string
	bufSize int
}

// HTTPOption configures an HTTPProvider.
type HTTPOption func(*HTTPProvider)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(p *HTTPProvider) { p.client = c }
}

// WithHeader adds a header to every request, e.g. Authorization.
func WithHeader(key, value string) HTTPOption {
	return func(p *HTTPProvider) { p.headers[key] = value }
}

// NewHTTP creates a provider for the chat endpoint at url.
func NewHTTP(url string, opts ...HTTPOption) *HTTPProvider {
	p := &HTTPProvider{
		url:     url,
		client:  &http.Client{Timeout: 120 * time.Second},
		headers: map[string]string{},
		bufSize: 4096,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type httpChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream"`
}

type httpChatResponse struct {
	Content string `json:"content"`
	Usage   *Usage `json:"usage,omitempty"`
}

func (p *HTTPProvider) do(ctx context.Context, req ChatRequest, stream bool) (*http.Response, error) {
	body, err := json.Marshal(httpChatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		Stream:      stream,
	})
	if err != nil {
		return nil, errors.New(errors.CodeInternal, "marshal chat request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.New(errors.CodeInvalidInput, "create chat request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range p.headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, errors.New(errors.CodeGeneration, "chat request failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, errors.New(errors.CodeGeneration, "chat provider returned non-success status",
			fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))).
			WithContext("status", resp.StatusCode)
	}
	return resp, nil
}

// Chat sends a non-streaming request.
func (p *HTTPProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	resp, err := p.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out httpChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.New(errors.CodeGeneration, "decode chat response", err)
	}
	chat := &ChatResponse{Content: out.Content}
	if out.Usage != nil {
		chat.Usage = *out.Usage
	}
	return chat, nil
}

// ChatStream sends a streaming request and emits every body read as one
// fragment. Bytes of a rune split across reads are held back until the
// rune is complete.
func (p *HTTPProvider) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	resp, err := p.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan StreamChunk)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		buf := make([]byte, p.bufSize)
		var carry []byte
		for {
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				data := append(carry, buf[:n]...)
				complete, rest := utf8Carry(data)
				carry = append([]byte(nil), rest...)
				if len(complete) > 0 {
					if !send(ctx, chunks, StreamChunk{Content: string(complete)}) {
						return
					}
				}
			}
			if readErr == io.EOF {
				if len(carry) > 0 && !send(ctx, chunks, StreamChunk{Content: string(carry)}) {
					return
				}
				send(ctx, chunks, StreamChunk{Done: true})
				return
			}
			if readErr != nil {
				if ctx.Err() != nil {
					return
				}
				send(ctx, chunks, StreamChunk{Error: errors.New(errors.CodeGeneration, "chat stream interrupted", readErr)})
				return
			}
		}
	}()
	return chunks, nil
}

var _ StreamingProvider = (*HTTPProvider)(nil)
