// Package summarize turns code diffs into short natural-language summaries
// using a langchaingo language model.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("diffscribe.summarize")

var (
	// ErrEmptyDiff is returned when there is nothing to summarize.
	ErrEmptyDiff = errors.New("diff is empty")

	// ErrEmptySummary is returned when the model answers with no text.
	ErrEmptySummary = errors.New("model returned an empty summary")
)

// DefaultModel is the Ollama model used when none is configured.
const DefaultModel = "qwen2.5-coder"

const analystTemplate = `You are an expert in analysing code diff files.
Your task is to analyze the provided code diff and provide a concise, two-to-three-line summary in natural language.
Do not include any headers, labels, or formatting like JSON. Just provide the summary text.

Here is the diff you need to analyze and summarize: {{.diff}}
`

// Summarizer asks a language model for a short summary of a diff.
type Summarizer struct {
	model       llms.Model
	prompt      prompts.PromptTemplate
	temperature float64
	logger      *zap.Logger
}

// New creates a Summarizer over any langchaingo model.
func New(model llms.Model, temperature float64, logger *zap.Logger) *Summarizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Summarizer{
		model:       model,
		prompt:      prompts.NewPromptTemplate(analystTemplate, []string{"diff"}),
		temperature: temperature,
		logger:      logger,
	}
}

// NewOllama creates a Summarizer backed by an Ollama server.
func NewOllama(cfg config.LLMConfig, logger *zap.Logger) (*Summarizer, error) {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	opts := []ollama.Option{ollama.WithModel(model)}
	if cfg.BaseURL != "" {
		opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
	}
	if d := cfg.Timeout.Duration(); d > 0 {
		opts = append(opts, ollama.WithHTTPClient(&http.Client{Timeout: d}))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	return New(llm, cfg.Temperature, logger), nil
}

// Summarize returns a two-to-three-line summary of diff.
func (s *Summarizer) Summarize(ctx context.Context, diff string) (string, error) {
	if strings.TrimSpace(diff) == "" {
		return "", ErrEmptyDiff
	}

	prompt, err := s.prompt.Format(map[string]any{"diff": diff})
	if err != nil {
		return "", fmt.Errorf("formatting prompt: %w", err)
	}

	ctx, span := tracer.Start(ctx, "Summarizer.Summarize")
	defer span.End()
	span.SetAttributes(attribute.Int("diff_bytes", len(diff)))

	start := time.Now()
	answer, err := llms.GenerateFromSinglePrompt(ctx, s.model, prompt, llms.WithTemperature(s.temperature))
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("generating summary: %w", err)
	}

	summary := Clean(answer)
	if summary == "" {
		return "", ErrEmptySummary
	}
	s.logger.Debug("diff summarized",
		zap.Int("diff_bytes", len(diff)),
		zap.Int("summary_bytes", len(summary)),
		zap.Duration("duration", time.Since(start)))
	return summary, nil
}

// Clean trims a model answer and unwraps it from a surrounding markdown
// code fence, if any.
func Clean(answer string) string {
	s := strings.TrimSpace(answer)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	// Drop the opening fence line, which may carry a language tag.
	nl := strings.IndexByte(s, '\n')
	if nl < 0 {
		return strings.TrimSpace(strings.Trim(s, "`"))
	}
	s = s[nl+1:]
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
