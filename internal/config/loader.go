package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "ollama"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found. Suspicious
// but workable values produce warnings instead of errors.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		slog.Warn("providers.llm is not configured; detection and adjudication cannot run")
	}
	if cfg.Providers.Embeddings.Name == "" {
		slog.Warn("providers.embeddings is not configured; reference matching cannot run")
	}

	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; the reference corpus and transcript store will not be available")
	}
	if cfg.Providers.Embeddings.Name != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set; defaulting to 1536")
	}

	if cfg.Pipeline.MaxChunkChars < 0 {
		errs = append(errs, fmt.Errorf("pipeline.max_chunk_chars %d must not be negative", cfg.Pipeline.MaxChunkChars))
	}
	if cfg.Pipeline.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("pipeline.concurrency %d must not be negative", cfg.Pipeline.Concurrency))
	}
	if cfg.Pipeline.AcceptThreshold < 0 || cfg.Pipeline.AcceptThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.accept_threshold %.2f is out of range [0, 1]", cfg.Pipeline.AcceptThreshold))
	}

	for name, v := range map[string]float64{
		"matching.search_threshold": cfg.Matching.SearchThreshold,
		"matching.high_confidence":  cfg.Matching.HighConfidence,
		"matching.tie_margin":       cfg.Matching.TieMargin,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s %.2f is out of range [0, 1]", name, v))
		}
	}
	if cfg.Matching.SearchLimit < 0 {
		errs = append(errs, fmt.Errorf("matching.search_limit %d must not be negative", cfg.Matching.SearchLimit))
	}
	if cfg.Matching.SearchThreshold > 0 && cfg.Pipeline.AcceptThreshold > 0 &&
		cfg.Matching.SearchThreshold > cfg.Pipeline.AcceptThreshold {
		slog.Warn("matching.search_threshold exceeds pipeline.accept_threshold; the search gate will reject entries the acceptance gate could have kept",
			"search_threshold", cfg.Matching.SearchThreshold,
			"accept_threshold", cfg.Pipeline.AcceptThreshold,
		)
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
