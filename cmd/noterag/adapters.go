// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"fmt"
	"os"
)

// Adapter describes a provider or backend selectable from configuration.
type Adapter struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	ConfigKeys  []string `json:"config_keys,omitempty"`
	Docs        string   `json:"docs,omitempty"`
}

// adaptersRegistry is the catalog of known adapters. Every llm, embedder
// and corpus entry has a matching case in newGenerator, newEmbedder or
// openCorpus.
var adaptersRegistry = []Adapter{
	// Generation providers
	{
		Name:        "http",
		Type:        "llm",
		Description: "Generic chat endpoint, JSON request with a plain text streamed reply",
		ConfigKeys:  []string{"llm.provider=http", "llm.base_url", "llm.api_key"},
		Docs:        "pkg/llm/http.go",
	},
	{
		Name:        "ollama",
		Type:        "llm",
		Description: "Local LLM inference with Ollama /api/chat",
		ConfigKeys:  []string{"llm.provider=ollama", "llm.base_url", "llm.model"},
		Docs:        "https://ollama.ai",
	},
	{
		Name:        "openai",
		Type:        "llm",
		Description: "OpenAI chat completions, or any compatible server",
		ConfigKeys:  []string{"llm.provider=openai", "llm.api_key", "llm.model", "llm.base_url"},
		Docs:        "https://platform.openai.com/docs",
	},
	{
		Name:        "anthropic",
		Type:        "llm",
		Description: "Anthropic Claude Messages API",
		ConfigKeys:  []string{"llm.provider=anthropic", "llm.api_key", "llm.model"},
		Docs:        "https://docs.anthropic.com",
	},
	{
		Name:        "gemini",
		Type:        "llm",
		Description: "Google Gemini API",
		ConfigKeys:  []string{"llm.provider=gemini", "llm.api_key", "llm.model"},
		Docs:        "https://ai.google.dev/docs",
	},
	{
		Name:        "mock",
		Type:        "llm",
		Description: "Streams a canned answer, for local runs without a model",
		ConfigKeys:  []string{"llm.provider=mock"},
		Docs:        "pkg/llm/mock.go",
	},

	// Embedding providers
	{
		Name:        "http",
		Type:        "embedder",
		Description: "Generic embeddings endpoint returning {\"embedding\": [...]}",
		ConfigKeys:  []string{"embedder.provider=http", "embedder.base_url", "embedder.api_key"},
		Docs:        "pkg/memory/httpembed/embedder.go",
	},
	{
		Name:        "ollama",
		Type:        "embedder",
		Description: "Ollama /api/embeddings",
		ConfigKeys:  []string{"embedder.provider=ollama", "embedder.base_url", "embedder.model"},
		Docs:        "https://ollama.ai",
	},
	{
		Name:        "openai",
		Type:        "embedder",
		Description: "OpenAI embeddings, one request per batch",
		ConfigKeys:  []string{"embedder.provider=openai", "embedder.api_key", "embedder.model"},
		Docs:        "https://platform.openai.com/docs/guides/embeddings",
	},
	{
		Name:        "mock",
		Type:        "embedder",
		Description: "Deterministic hashed bag of words, no network",
		ConfigKeys:  []string{"embedder.provider=mock", "embedder.dimensions"},
		Docs:        "pkg/memory/hash_embedder.go",
	},

	// Document corpus
	{
		Name:        "sqlite",
		Type:        "corpus",
		Description: "Persistent note documents in a SQLite file",
		ConfigKeys:  []string{"corpus.driver=sqlite", "corpus.path"},
		Docs:        "pkg/corpus/sqlite.go",
	},
	{
		Name:        "memory",
		Type:        "corpus",
		Description: "In-memory documents (non-persistent)",
		ConfigKeys:  []string{"corpus.driver=memory"},
		Docs:        "pkg/corpus/inmemory.go",
	},

	// MCP transport
	{
		Name:        "mcp-stdio",
		Type:        "mcp",
		Description: "rag_search and rag_answer tools over stdio",
		ConfigKeys:  []string{"noterag mcp"},
		Docs:        "https://modelcontextprotocol.io",
	},

	// Telemetry
	{
		Name:        "otel-stdout",
		Type:        "telemetry",
		Description: "OpenTelemetry export to stderr",
		ConfigKeys:  []string{"telemetry.enabled=true", "telemetry.exporter=stdout"},
	},
	{
		Name:        "otel-otlp",
		Type:        "telemetry",
		Description: "OpenTelemetry export via OTLP gRPC",
		ConfigKeys:  []string{"telemetry.enabled=true", "telemetry.exporter=otlp", "telemetry.otlp_endpoint"},
	},
}

type adaptersListResult struct {
	Adapters []Adapter `json:"adapters"`
	Total    int       `json:"total"`
}

type adapterInfoResult struct {
	Adapters []Adapter `json:"adapters"`
	Found    bool      `json:"found"`
}

func runAdapters(global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: noterag adapters <list|info> [args]"))
	}

	switch args[0] {
	case "list":
		runAdaptersList(global, args[1:])
	case "info":
		runAdaptersInfo(global, args[1:])
	default:
		fatal(fmt.Errorf("unknown adapters subcommand %q; use list or info", args[0]))
	}
}

func filterAdapters(adapters []Adapter, keep func(Adapter) bool) []Adapter {
	filtered := make([]Adapter, 0, len(adapters))
	for _, a := range adapters {
		if keep(a) {
			filtered = append(filtered, a)
		}
	}
	return filtered
}

func runAdaptersList(global globalFlags, args []string) {
	fs := flag.NewFlagSet("adapters list", flag.ExitOnError)
	filterType := fs.String("type", "", "Filter by type: llm, embedder, corpus, mcp, telemetry")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}

	adapters := adaptersRegistry
	if *filterType != "" {
		adapters = filterAdapters(adapters, func(a Adapter) bool { return a.Type == *filterType })
	}

	result := adaptersListResult{
		Adapters: adapters,
		Total:    len(adapters),
	}

	if global.JSON {
		printJSON(result)
		return
	}

	if len(adapters) == 0 {
		fmt.Println("No adapters found.")
		return
	}

	w := newTabWriter()
	writeRow(w, "NAME", "TYPE", "DESCRIPTION")
	for _, a := range adapters {
		writeRow(w, a.Name, a.Type, a.Description)
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d adapters\n", result.Total)
	fmt.Println("\nUse 'noterag adapters info <name>' for configuration details.")
}

// runAdaptersInfo prints every adapter with the given name; "openai" is
// both an llm and an embedder.
func runAdaptersInfo(global globalFlags, args []string) {
	if len(args) == 0 {
		fatal(fmt.Errorf("usage: noterag adapters info <adapter-name>"))
	}

	name := args[0]
	found := filterAdapters(adaptersRegistry, func(a Adapter) bool { return a.Name == name })
	result := adapterInfoResult{Adapters: found, Found: len(found) > 0}

	if global.JSON {
		printJSON(result)
		if !result.Found {
			os.Exit(1)
		}
		return
	}

	if !result.Found {
		fmt.Printf("Adapter %q not found.\n", name)
		fmt.Println("\nAvailable adapters:")
		for _, a := range adaptersRegistry {
			fmt.Printf("  - %s (%s)\n", a.Name, a.Type)
		}
		os.Exit(1)
	}

	for i, a := range found {
		if i > 0 {
			fmt.Println()
		}
		fmt.Printf("Adapter: %s\n", a.Name)
		fmt.Printf("Type: %s\n", a.Type)
		fmt.Printf("Description: %s\n", a.Description)
		if len(a.ConfigKeys) > 0 {
			fmt.Println("Configuration:")
			for _, k := range a.ConfigKeys {
				fmt.Printf("  • %s\n", k)
			}
		}
		if a.Docs != "" {
			fmt.Printf("Documentation: %s\n", a.Docs)
		}
	}
}
