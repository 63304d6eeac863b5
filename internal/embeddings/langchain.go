package embeddings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	defaultBatchSize = 32
)

// OllamaConfig configures the Ollama provider.
type OllamaConfig struct {
	BaseURL   string
	Model     string
	Dimension int
}

// OpenAIConfig configures the OpenAI provider. BaseURL may point at any
// server speaking the OpenAI embeddings API, such as TEI or vLLM.
type OpenAIConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	Dimension int
}

// LangchainProvider embeds through a langchaingo embedder. It backs both the
// Ollama and OpenAI providers.
type LangchainProvider struct {
	embedder  embeddings.Embedder
	model     string
	dimension int
	logger    *zap.Logger
	metrics   *Metrics
}

// NewOllamaProvider creates a provider backed by an Ollama server.
func NewOllamaProvider(cfg OllamaConfig, logger *zap.Logger) (*LangchainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOllamaURL
	}

	llm, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("%w: creating ollama client: %v", ErrInvalidConfig, err)
	}
	return newLangchainProvider(llm, cfg.Model, cfg.Dimension, logger)
}

// NewOpenAIProvider creates a provider backed by the OpenAI embeddings API.
func NewOpenAIProvider(cfg OpenAIConfig, logger *zap.Logger) (*LangchainProvider, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrInvalidConfig)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is required", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: creating openai client: %v", ErrInvalidConfig, err)
	}
	return newLangchainProvider(llm, cfg.Model, cfg.Dimension, logger)
}

func newLangchainProvider(client embeddings.EmbedderClient, model string, dimension int, logger *zap.Logger) (*LangchainProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dimension <= 0 {
		dimension = DetectDimension(model)
	}

	// Diffs are line oriented; keep the newlines.
	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(defaultBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &LangchainProvider{
		embedder:  embedder,
		model:     model,
		dimension: dimension,
		logger:    logger,
		metrics:   NewMetrics(logger),
	}, nil
}

// EmbedDocuments returns one vector per text, in order.
func (p *LangchainProvider) EmbedDocuments(ctx context.Context, texts []string) (vectors [][]float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_documents", time.Since(start), len(texts), err)
	}()

	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}

	vectors, err = p.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		p.logger.Warn("embedding documents failed", zap.Int("count", len(texts)), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", ErrEmbeddingFailed, len(vectors), len(texts))
	}
	for _, v := range vectors {
		if err := p.checkDimension(v); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// EmbedQuery embeds a single search query.
func (p *LangchainProvider) EmbedQuery(ctx context.Context, text string) (vector []float32, err error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordGeneration(ctx, p.model, "embed_query", time.Since(start), 1, err)
	}()

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}

	vector, err = p.embedder.EmbedQuery(ctx, text)
	if err != nil {
		p.logger.Warn("embedding query failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if err := p.checkDimension(vector); err != nil {
		return nil, err
	}
	return vector, nil
}

func (p *LangchainProvider) checkDimension(v []float32) error {
	if len(v) != p.dimension {
		return fmt.Errorf("%w: model %s returned %d, expected %d", ErrDimensionMismatch, p.model, len(v), p.dimension)
	}
	return nil
}

// Dimension returns the embedding dimension.
func (p *LangchainProvider) Dimension() int {
	return p.dimension
}

// Close is a no-op; the HTTP clients hold no resources.
func (p *LangchainProvider) Close() error {
	return nil
}
