package vectorstore_test

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
)

// wordEmbedder is a deterministic bag-of-words embedder: each word adds
// weight to a hashed dimension and the result is unit length. Identical
// texts therefore have similarity 1.
type wordEmbedder struct {
	dim int

	mu    sync.Mutex
	calls int
	fail  error
}

func newWordEmbedder(dim int) *wordEmbedder {
	return &wordEmbedder{dim: dim}
}

func (e *wordEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

func (e *wordEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	fail := e.fail
	e.mu.Unlock()
	if fail != nil {
		return nil, fail
	}
	return e.embed(text), nil
}

func (e *wordEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		vec[int(h.Sum32())%e.dim]++
	}
	// Keep empty text embeddable.
	vec[0] += 0.01

	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

var errEmbedderDown = errors.New("embedder unavailable")
