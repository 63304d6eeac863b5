package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func vectorFor(text string, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(len(text) + i)
	}
	return v
}

// fakeOllama answers /api/embeddings with dim-sized vectors and counts calls.
func fakeOllama(t *testing.T, dim int, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			http.NotFound(w, r)
			return
		}
		if calls != nil {
			calls.Add(1)
		}
		var req struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": vectorFor(req.Prompt, dim)})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fakeOpenAI(t *testing.T, dim int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data := make([]map[string]interface{}, len(req.Input))
		for i, in := range req.Input {
			data[i] = map[string]interface{}{"object": "embedding", "index": i, "embedding": vectorFor(in, dim)}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDetectDimension(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"mxbai-embed-large", 1024},
		{"mxbai-embed-large:latest", 1024},
		{"nomic-embed-text", 768},
		{"text-embedding-3-small", 1536},
		{"BAAI/bge-small-en-v1.5", 384},
		{"custom-large-model", 1024},
		{"custom-base", 768},
		{"unknown", 384},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectDimension(tt.model), tt.model)
	}
}

func TestNewProvider_Errors(t *testing.T) {
	_, err := NewProvider(config.EmbeddingsConfig{Provider: "cohere", Model: "m"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "ollama"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewProvider(config.EmbeddingsConfig{Provider: "openai", Model: "text-embedding-3-small"}, zap.NewNop())
	assert.ErrorIs(t, err, ErrInvalidConfig, "api key required")
}

func TestNewProvider_DimensionFromModel(t *testing.T) {
	p, err := NewProvider(config.EmbeddingsConfig{Provider: "ollama", Model: "nomic-embed-text"}, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, 768, p.Dimension())
}

func TestOllamaProvider_Embed(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, 8, &calls)

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider:  "ollama",
		Model:     "mxbai-embed-large",
		BaseURL:   srv.URL,
		Dimension: 8,
	}, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	ctx := context.Background()
	texts := []string{"@@ -1 +1 @@\n-a\n+b", "x"}
	vectors, err := p.EmbedDocuments(ctx, texts)
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, vectorFor(texts[0], 8), vectors[0], "newlines are kept")
	assert.Equal(t, vectorFor("x", 8), vectors[1])
	assert.Equal(t, int32(2), calls.Load())

	query, err := p.EmbedQuery(ctx, "GET RECENT CODE CHANGES")
	require.NoError(t, err)
	assert.Len(t, query, 8)
}

func TestOllamaProvider_InvalidInput(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOllama(t, 8, &calls)
	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "m", Dimension: 8}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = p.EmbedDocuments(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
	_, err = p.EmbedQuery(ctx, "  ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, calls.Load())
}

func TestOllamaProvider_DimensionMismatch(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "m", Dimension: 8}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = p.EmbedQuery(context.Background(), "a")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestOllamaProvider_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	p, err := NewOllamaProvider(OllamaConfig{BaseURL: srv.URL, Model: "missing", Dimension: 8}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := fakeOpenAI(t, 6)

	p, err := NewProvider(config.EmbeddingsConfig{
		Provider:  "openai",
		Model:     "text-embedding-3-small",
		BaseURL:   srv.URL + "/",
		APIKey:    config.Secret("sk-test"),
		Dimension: 6,
	}, zap.NewNop())
	require.NoError(t, err)
	defer p.Close()

	vectors, err := p.EmbedDocuments(context.Background(), []string{"one", "three"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, vectorFor("three", 6), vectors[1])
}

func TestOpenAIProvider_BadKey(t *testing.T) {
	srv := fakeOpenAI(t, 6)

	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: srv.URL, APIKey: "wrong", Model: "m", Dimension: 6}, zap.NewNop())
	require.NoError(t, err)

	_, err = p.EmbedQuery(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbeddingFailed)
}
