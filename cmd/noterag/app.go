// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/option"

	"github.com/jllopis/noterag/pkg/chunk"
	"github.com/jllopis/noterag/pkg/config"
	"github.com/jllopis/noterag/pkg/corpus"
	"github.com/jllopis/noterag/pkg/errors"
	"github.com/jllopis/noterag/pkg/llm"
	"github.com/jllopis/noterag/pkg/llm/anthropic"
	"github.com/jllopis/noterag/pkg/llm/gemini"
	llmopenai "github.com/jllopis/noterag/pkg/llm/openai"
	"github.com/jllopis/noterag/pkg/memory"
	"github.com/jllopis/noterag/pkg/memory/httpembed"
	memollama "github.com/jllopis/noterag/pkg/memory/ollama"
	memopenai "github.com/jllopis/noterag/pkg/memory/openai"
	"github.com/jllopis/noterag/pkg/rag"
	"github.com/jllopis/noterag/pkg/resilience"
	"github.com/jllopis/noterag/pkg/telemetry"
)

// app holds the wired pipeline shared by every command.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    corpus.Store
	embedder *resilience.GuardedEmbedder
	gen      llm.Provider
	orch     *rag.Orchestrator
	shutdown []func(context.Context) error
}

// newApp wires logging, telemetry, the corpus and both providers from cfg.
// Logs go to stderr so stdout stays clean for answers and MCP frames.
func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg}
	a.logger = telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	var pipeline *telemetry.Pipeline
	if cfg.Telemetry.Enabled {
		var err error
		pipeline, err = telemetry.Start(cfg.Telemetry.ServiceName, version, telemetry.Config{
			Exporter:     cfg.Telemetry.Exporter,
			OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
			OTLPInsecure: cfg.Telemetry.OTLPInsecure,
			Writer:       os.Stderr,
		})
		if err != nil {
			return nil, err
		}
		a.shutdown = append(a.shutdown, pipeline.Shutdown)
	}

	store, closeStore, err := openCorpus(cfg.Corpus)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.shutdown = append(a.shutdown, func(context.Context) error { return closeStore() })

	embedder, err := newEmbedder(cfg.Embedder)
	if err != nil {
		a.Close()
		return nil, err
	}
	// The fan-out sits inside the guard so native batch embedders keep
	// their single-request batches.
	if _, ok := embedder.(memory.BatchEmbedder); !ok {
		embedder = memory.NewBatcher(embedder, cfg.Embedder.Concurrency)
	}
	a.embedder = resilience.GuardEmbedder(embedder, resilience.CircuitBreakerConfig{Name: "embedder"})

	if a.gen, err = newGenerator(cfg.LLM); err != nil {
		a.Close()
		return nil, err
	}

	splitter, err := chunk.New(cfg.Chunker.Size, cfg.Chunker.Overlap)
	if err != nil {
		a.Close()
		return nil, err
	}
	opts := []rag.Option{
		rag.WithSplitter(splitter),
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithConcurrency(cfg.Embedder.Concurrency),
		rag.WithModel(cfg.LLM.Model),
		rag.WithTemperature(cfg.LLM.Temperature),
		rag.WithLogger(a.logger),
		rag.WithTelemetry(pipeline),
	}
	if cfg.Retrieval.SystemPrompt != "" {
		opts = append(opts, rag.WithSystemPrompt(cfg.Retrieval.SystemPrompt))
	}
	if a.orch, err = rag.New(store, a.embedder, a.gen, opts...); err != nil {
		a.Close()
		return nil, err
	}
	a.orch.Attach(store)
	return a, nil
}

// Close releases the corpus and flushes telemetry.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := len(a.shutdown) - 1; i >= 0; i-- {
		if err := a.shutdown[i](ctx); err != nil && a.logger != nil {
			a.logger.Warn("app.shutdown.error", slog.String("error", err.Error()))
		}
	}
	a.shutdown = nil
}

func timeout(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// newGenerator builds the generation provider named by cfg.Provider.
func newGenerator(cfg config.LLMConfig) (llm.Provider, error) {
	switch cfg.Provider {
	case "http":
		if cfg.BaseURL == "" {
			return nil, errors.Newf(errors.CodeInvalidInput, "llm.base_url is required for provider %q", cfg.Provider)
		}
		opts := []llm.HTTPOption{llm.WithHTTPClient(&http.Client{Timeout: timeout(cfg.TimeoutSeconds)})}
		if cfg.APIKey != "" {
			opts = append(opts, llm.WithHeader("Authorization", "Bearer "+cfg.APIKey))
		}
		return llm.NewHTTP(cfg.BaseURL, opts...), nil
	case "ollama":
		return llm.NewOllama(cfg.BaseURL), nil
	case "openai":
		var opts []llmopenai.Option
		if cfg.Model != "" {
			opts = append(opts, llmopenai.WithModel(cfg.Model))
		}
		if cfg.APIKey != "" {
			opts = append(opts, llmopenai.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, llmopenai.WithBaseURL(cfg.BaseURL))
		}
		if t := timeout(cfg.TimeoutSeconds); t > 0 {
			opts = append(opts, llmopenai.WithRequestOptions(option.WithRequestTimeout(t)))
		}
		return llmopenai.New(opts...), nil
	case "anthropic":
		var opts []anthropic.Option
		if cfg.Model != "" {
			opts = append(opts, anthropic.WithModel(cfg.Model))
		}
		if cfg.APIKey != "" {
			opts = append(opts, anthropic.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		if t := timeout(cfg.TimeoutSeconds); t > 0 {
			opts = append(opts, anthropic.WithRequestOptions(anthropicopt.WithRequestTimeout(t)))
		}
		return anthropic.New(opts...), nil
	case "gemini":
		// Client construction does no I/O, so a background context is enough.
		return gemini.New(context.Background(),
			gemini.WithModel(cfg.Model),
			gemini.WithAPIKey(cfg.APIKey),
			gemini.WithBaseURL(cfg.BaseURL),
		)
	case "mock":
		return llm.NewScriptedStreamProvider("This is a mock answer."), nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown llm.provider %q", cfg.Provider)
	}
}

// newEmbedder builds the embedding provider named by cfg.Provider.
func newEmbedder(cfg config.EmbedderConfig) (memory.Embedder, error) {
	switch cfg.Provider {
	case "http":
		if cfg.BaseURL == "" {
			return nil, errors.Newf(errors.CodeInvalidInput, "embedder.base_url is required for provider %q", cfg.Provider)
		}
		opts := []httpembed.Option{httpembed.WithHTTPClient(&http.Client{Timeout: timeout(cfg.TimeoutSeconds)})}
		if cfg.APIKey != "" {
			opts = append(opts, httpembed.WithHeader("Authorization", "Bearer "+cfg.APIKey))
		}
		return httpembed.New(cfg.BaseURL, opts...), nil
	case "ollama":
		return memollama.NewEmbedder(cfg.BaseURL, cfg.Model), nil
	case "openai":
		var opts []option.RequestOption
		if cfg.APIKey != "" {
			opts = append(opts, option.WithAPIKey(cfg.APIKey))
		}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		if t := timeout(cfg.TimeoutSeconds); t > 0 {
			opts = append(opts, option.WithRequestTimeout(t))
		}
		return memopenai.NewEmbedder(cfg.Model, opts...), nil
	case "mock":
		return memory.NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, errors.Newf(errors.CodeInvalidInput, "unknown embedder.provider %q", cfg.Provider)
	}
}

// openCorpus opens the document store named by cfg.Driver. The returned
// func closes it.
func openCorpus(cfg config.CorpusConfig) (corpus.Store, func() error, error) {
	switch cfg.Driver {
	case "memory":
		return corpus.NewInMemory(), func() error { return nil }, nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "noterag.db"
		}
		store, err := corpus.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, errors.New(errors.CodeInvalidInput, "open corpus", fmt.Errorf("unknown driver %q", cfg.Driver))
	}
}
