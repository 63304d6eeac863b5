package embeddings

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/fyrsmithlabs/diffscribe/internal/vectorstore"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput is returned when there is nothing to embed.
	ErrEmptyInput = errors.New("empty input")
	// ErrInvalidConfig indicates an unusable provider configuration.
	ErrInvalidConfig = errors.New("invalid embeddings configuration")
	// ErrEmbeddingFailed wraps errors from the underlying model.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
	// ErrDimensionMismatch is returned when the model answers with vectors of
	// a different size than configured.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Provider is the interface for embedding providers.
type Provider interface {
	vectorstore.Embedder
	// Dimension returns the embedding dimension for the current model.
	Dimension() int
	// Close releases resources held by the provider.
	Close() error
}

// knownDimensions lists output sizes of commonly used embedding models.
var knownDimensions = map[string]int{
	"mxbai-embed-large":                      1024,
	"nomic-embed-text":                       768,
	"all-minilm":                             384,
	"snowflake-arctic-embed":                 1024,
	"bge-m3":                                 1024,
	"text-embedding-3-small":                 1536,
	"text-embedding-3-large":                 3072,
	"text-embedding-ada-002":                 1536,
	"BAAI/bge-small-en-v1.5":                 384,
	"BAAI/bge-small-en":                      384,
	"BAAI/bge-base-en-v1.5":                  768,
	"BAAI/bge-base-en":                       768,
	"BAAI/bge-small-zh-v1.5":                 512,
	"sentence-transformers/all-MiniLM-L6-v2": 384,
	"fast-bge-small-en-v1.5":                 384,
	"fast-bge-small-en":                      384,
	"fast-bge-base-en-v1.5":                  768,
	"fast-bge-base-en":                       768,
	"fast-bge-small-zh-v1.5":                 512,
	"fast-all-MiniLM-L6-v2":                  384,
}

// DetectDimension returns the embedding dimension for a model name. Ollama
// tags ("mxbai-embed-large:latest") resolve to their base model. Unknown
// models fall back to a guess from the name, then 384.
func DetectDimension(model string) int {
	if dim, ok := knownDimensions[model]; ok {
		return dim
	}
	if base, _, found := strings.Cut(model, ":"); found {
		if dim, ok := knownDimensions[base]; ok {
			return dim
		}
	}
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "large"):
		return 1024
	case strings.Contains(lower, "base"):
		return 768
	default:
		return 384
	}
}

// NewProvider creates the embedding provider selected by cfg. A zero
// cfg.Dimension is filled in from the model name.
func NewProvider(cfg config.EmbeddingsConfig, logger *zap.Logger) (Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = DetectDimension(cfg.Model)
	}

	logger = logger.With(zap.String("provider", cfg.Provider), zap.String("model", cfg.Model))

	var (
		provider Provider
		err      error
	)
	switch cfg.Provider {
	case "ollama", "":
		provider, err = NewOllamaProvider(OllamaConfig{
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, logger)
	case "openai":
		provider, err = NewOpenAIProvider(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    cfg.APIKey.Value(),
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}, logger)
	case "fastembed":
		provider, err = NewFastEmbedProvider(FastEmbedConfig{
			Model:    cfg.Model,
			CacheDir: cfg.CacheDir,
		}, logger)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("embedding provider ready", zap.Int("dimension", provider.Dimension()))
	return provider, nil
}
