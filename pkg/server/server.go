// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the orchestrator over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/rag"
	"github.com/jllopis/noterag/pkg/telemetry"
)

const maxBodyBytes = 1 << 20

// Server routes the RAG API.
type Server struct {
	orch     *rag.Orchestrator
	embedder memory.Embedder
	gen      llm.Provider
	logger   *slog.Logger
	mux      *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithEmbedder enables POST /api/embeddings.
func WithEmbedder(e memory.Embedder) Option {
	return func(s *Server) { s.embedder = e }
}

// WithGenerator enables POST /api/chat.
func WithGenerator(g llm.Provider) Option {
	return func(s *Server) { s.gen = g }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server for orch.
func New(orch *rag.Orchestrator, opts ...Option) *Server {
	s := &Server{orch: orch}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = telemetry.Component(s.logger, "server")

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rag", s.handleAnswer)
	mux.HandleFunc("POST /api/rag/stream", s.handleStream)
	mux.HandleFunc("DELETE /api/rag/cache/{userId}", s.handleInvalidate)
	mux.HandleFunc("POST /api/embeddings", s.handleEmbeddings)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux = mux
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	s.logger.Info("server.listen", slog.String("addr", addr))
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

type queryRequest struct {
	Query  string `json:"query"`
	UserID string `json:"userId"`
}

func (q queryRequest) validate() error {
	if strings.TrimSpace(q.Query) == "" || strings.TrimSpace(q.UserID) == "" {
		return errors.New(errors.CodeInvalidInput, "missing query or userId", nil)
	}
	return nil
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}
	answer, err := s.orch.Answer(r.Context(), req.UserID, req.Query)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, errors.New(errors.CodeInternal, "streaming not supported", nil))
		return
	}

	started := false
	start := func() {
		if started {
			return
		}
		started = true
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)
	}

	for fragment, err := range s.orch.Fragments(r.Context(), req.UserID, req.Query) {
		if err != nil {
			if r.Context().Err() != nil {
				return
			}
			if !started {
				writeError(w, err)
				return
			}
			s.logger.Error("server.stream.error",
				slog.String("user_id", req.UserID),
				slog.String("error", err.Error()),
			)
			// Headers are gone; abort so the client sees a cut stream, not a short answer.
			panic(http.ErrAbortHandler)
		}
		start()
		if _, werr := w.Write([]byte(fragment)); werr != nil {
			return
		}
		flusher.Flush()
	}
	start()
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	s.orch.Invalidate(userID)
	w.WriteHeader(http.StatusNoContent)
}

type embeddingRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	if s.embedder == nil {
		writeError(w, errors.New(errors.CodeNotFound, "embeddings endpoint is not enabled", nil))
		return
	}
	var req embeddingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Input == "" {
		writeError(w, errors.New(errors.CodeInvalidInput, "missing input", nil))
		return
	}
	vec, err := s.embedder.Embed(r.Context(), req.Input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]float64{"embedding": vec})
}

type chatRequest struct {
	Messages []llm.Message `json:"messages"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.gen == nil {
		writeError(w, errors.New(errors.CodeNotFound, "chat endpoint is not enabled", nil))
		return
	}
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, errors.New(errors.CodeInvalidInput, "missing messages", nil))
		return
	}
	chatReq := llm.ChatRequest{Messages: req.Messages}

	streamer, ok := s.gen.(llm.StreamingProvider)
	flusher, canFlush := w.(http.Flusher)
	if !ok || !canFlush {
		resp, err := s.gen.Chat(r.Context(), chatReq)
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(resp.Content))
		return
	}

	chunks, err := streamer.ChatStream(r.Context(), chatReq)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	for chunk := range chunks {
		if chunk.Error != nil {
			s.logger.Error("server.chat.error", slog.String("error", chunk.Error.Error()))
			panic(http.ErrAbortHandler)
		}
		if chunk.Content != "" {
			_, _ = w.Write([]byte(chunk.Content))
			flusher.Flush()
		}
		if chunk.Done {
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"cachedOwners": s.orch.Cache().Len(),
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New(errors.CodeInvalidInput, "invalid JSON body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	e := errors.As(err)
	writeJSON(w, e.StatusCode, errorBody{Error: errorDetail{
		Code:    string(e.Code),
		Message: e.Message,
	}})
}
