// Copyright 2026 © The Kairos Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads noterag settings from defaults, YAML files,
// NOTERAG_ environment variables and --set command line overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/jllopis/noterag/pkg/errors"
)

// EnvPrefix is the prefix of environment overrides (NOTERAG_LLM_MODEL -> llm.model).
const EnvPrefix = "NOTERAG_"

type Config struct {
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	LLM       LLMConfig       `koanf:"llm"`
	Embedder  EmbedderConfig  `koanf:"embedder"`
	Chunker   ChunkerConfig   `koanf:"chunker"`
	Retrieval RetrievalConfig `koanf:"retrieval"`
	Corpus    CorpusConfig    `koanf:"corpus"`
	Server    ServerConfig    `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type TelemetryConfig struct {
	Enabled      bool   `koanf:"enabled"`
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
	ServiceName  string `koanf:"service_name"`
}

// LLMConfig selects the generation provider.
type LLMConfig struct {
	Provider       string  `koanf:"provider"` // http, ollama, openai, anthropic, gemini, mock
	Model          string  `koanf:"model"`
	BaseURL        string  `koanf:"base_url"`
	APIKey         string  `koanf:"api_key"`
	Temperature    float64 `koanf:"temperature"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
}

// EmbedderConfig selects the embedding provider and the batch fan-out.
type EmbedderConfig struct {
	Provider       string `koanf:"provider"` // http, ollama, openai, mock
	Model          string `koanf:"model"`
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	Concurrency    int    `koanf:"concurrency"`
	Dimensions     int    `koanf:"dimensions"` // mock provider only
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

type ChunkerConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

type RetrievalConfig struct {
	TopK         int    `koanf:"top_k"`
	SystemPrompt string `koanf:"system_prompt"` // must contain one %s for the context
}

type CorpusConfig struct {
	Driver string `koanf:"driver"` // sqlite, memory
	Path   string `koanf:"path"`
}

type ServerConfig struct {
	Addr string `koanf:"addr"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"log.level":                "info",
		"log.format":               "text",
		"telemetry.enabled":        false,
		"telemetry.exporter":       "stdout",
		"telemetry.service_name":   "noterag",
		"llm.provider":             "ollama",
		"llm.model":                "llama3.1",
		"llm.base_url":             "http://localhost:11434",
		"llm.timeout_seconds":      120,
		"embedder.provider":        "ollama",
		"embedder.model":           "nomic-embed-text",
		"embedder.base_url":        "http://localhost:11434",
		"embedder.concurrency":     4,
		"embedder.dimensions":      256,
		"embedder.timeout_seconds": 30,
		"chunker.size":             1000,
		"chunker.overlap":          200,
		"retrieval.top_k":          3,
		"corpus.driver":            "sqlite",
		"corpus.path":              "noterag.db",
		"server.addr":              ":8080",
	}
}

// Load reads defaults, the optional YAML file at path and the environment.
func Load(path string) (*Config, error) {
	var paths []string
	if path != "" {
		paths = append(paths, path)
	}
	return load(paths, nil)
}

// LoadWithProfile loads the base file and, when it exists, the profile file
// next to it (config.yaml + "dev" -> config.dev.yaml) on top.
func LoadWithProfile(path, profile string) (*Config, error) {
	paths := []string{path}
	if profile != "" && path != "" {
		ext := filepath.Ext(path)
		profilePath := strings.TrimSuffix(path, ext) + "." + profile + ext
		if _, err := os.Stat(profilePath); err == nil {
			paths = append(paths, profilePath)
		}
	}
	return load(paths, nil)
}

// LoadWithCLI loads configuration honoring --config <file> and
// --set key=value arguments. Sets take precedence over files and environment.
func LoadWithCLI(args []string) (*Config, error) {
	paths, sets, err := parseCLIOverrides(args)
	if err != nil {
		return nil, err
	}
	return load(paths, sets)
}

func load(paths []string, sets []override) (*Config, error) {
	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	for _, path := range paths {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errors.New(errors.CodeInvalidInput, "load config file", err).
				WithContext("path", path)
		}
	}

	// Only the first underscore separates section and key: NOTERAG_LLM_BASE_URL -> llm.base_url
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, EnvPrefix)), "_", ".", 1)
	}), nil); err != nil {
		return nil, err
	}

	for _, o := range sets {
		if err := k.Set(o.key, o.value); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings the retrieval pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Chunker.Size <= 0 {
		return errors.Newf(errors.CodeInvalidInput, "chunker.size must be positive, got %d", c.Chunker.Size)
	}
	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.Size {
		return errors.Newf(errors.CodeInvalidInput, "chunker.overlap must be in [0, %d), got %d", c.Chunker.Size, c.Chunker.Overlap)
	}
	if c.Retrieval.TopK < 1 {
		return errors.Newf(errors.CodeInvalidInput, "retrieval.top_k must be >= 1, got %d", c.Retrieval.TopK)
	}
	if c.Embedder.Concurrency < 1 {
		return errors.Newf(errors.CodeInvalidInput, "embedder.concurrency must be >= 1, got %d", c.Embedder.Concurrency)
	}
	switch c.Corpus.Driver {
	case "sqlite", "memory":
	default:
		return errors.Newf(errors.CodeInvalidInput, "unknown corpus.driver %q", c.Corpus.Driver)
	}
	return nil
}

type override struct {
	key   string
	value interface{}
}

func parseCLIOverrides(args []string) ([]string, []override, error) {
	var paths []string
	var sets []override
	for i := 0; i < len(args); i++ {
		arg := args[i]
		var raw string
		switch {
		case arg == "--config":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("missing value for --config")
			}
			paths = append(paths, args[i+1])
			i++
			continue
		case strings.HasPrefix(arg, "--config="):
			paths = append(paths, strings.TrimPrefix(arg, "--config="))
			continue
		case arg == "--set":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("missing value for --set")
			}
			raw = args[i+1]
			i++
		case strings.HasPrefix(arg, "--set="):
			raw = strings.TrimPrefix(arg, "--set=")
		default:
			continue
		}
		o, err := parseSet(raw)
		if err != nil {
			return nil, nil, err
		}
		sets = append(sets, o)
	}
	return paths, sets, nil
}

// parseSet decodes the value as YAML so numbers, booleans and inline
// objects keep their types.
func parseSet(raw string) (override, error) {
	key, value, ok := strings.Cut(raw, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return override{}, fmt.Errorf("invalid --set value %q, expected key=value", raw)
	}
	var decoded interface{}
	if err := yamlv3.Unmarshal([]byte(value), &decoded); err != nil || decoded == nil {
		decoded = value
	}
	return override{key: key, value: decoded}, nil
}
