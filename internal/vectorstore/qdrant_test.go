package vectorstore_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/vectorstore"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestQdrantConfig_Validate(t *testing.T) {
	valid := vectorstore.QdrantConfig{Host: "localhost", Port: 6334, Collection: "c", VectorSize: 8}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name    string
		mutate  func(*vectorstore.QdrantConfig)
		wantErr error
	}{
		{"missing host", func(c *vectorstore.QdrantConfig) { c.Host = "" }, vectorstore.ErrInvalidConfig},
		{"zero port", func(c *vectorstore.QdrantConfig) { c.Port = 0 }, vectorstore.ErrInvalidConfig},
		{"port too high", func(c *vectorstore.QdrantConfig) { c.Port = 70000 }, vectorstore.ErrInvalidConfig},
		{"zero vector size", func(c *vectorstore.QdrantConfig) { c.VectorSize = 0 }, vectorstore.ErrInvalidConfig},
		{"bad collection", func(c *vectorstore.QdrantConfig) { c.Collection = "Nope!" }, vectorstore.ErrInvalidCollectionName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.wantErr)
		})
	}
}

func TestQdrantConfig_ApplyDefaults(t *testing.T) {
	var cfg vectorstore.QdrantConfig
	cfg.ApplyDefaults()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.RetryBackoff)
	assert.Equal(t, 50*1024*1024, cfg.MaxMessageSize)
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)
	assert.Equal(t, qdrant.Distance_Cosine, cfg.Distance)
}

func TestIsTransientError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{status.Error(codes.Unavailable, "down"), true},
		{status.Error(codes.DeadlineExceeded, "slow"), true},
		{status.Error(codes.ResourceExhausted, "busy"), true},
		{status.Error(codes.Aborted, "conflict"), true},
		{status.Error(codes.NotFound, "missing"), false},
		{status.Error(codes.InvalidArgument, "bad"), false},
		{fmt.Errorf("wrapped: %w", status.Error(codes.Unavailable, "down")), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vectorstore.IsTransientError(tt.err), "%v", tt.err)
	}
}

func TestPointID(t *testing.T) {
	a := vectorstore.PointID("pr-42")
	assert.Equal(t, a, vectorstore.PointID("pr-42"))
	assert.NotEqual(t, a, vectorstore.PointID("pr-43"))

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestNewQdrantStore_InvalidConfig(t *testing.T) {
	_, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{Host: "localhost", Port: 6334, VectorSize: 8},
		newWordEmbedder(8), zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidCollectionName)

	_, err = vectorstore.NewQdrantStore(vectorstore.QdrantConfig{Host: "localhost", Port: 6334, Collection: "c", VectorSize: 8},
		nil, zap.NewNop())
	assert.ErrorIs(t, err, vectorstore.ErrInvalidConfig)
}

// TestQdrantStore_Integration needs Qdrant on localhost:6334.
func TestQdrantStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	collection := "diffscribe_integration_test"
	store, err := vectorstore.NewQdrantStore(vectorstore.QdrantConfig{
		Host:       "localhost",
		Port:       6334,
		Collection: collection,
		VectorSize: testDim,
		MaxRetries: 1,
	}, newWordEmbedder(testDim), zap.NewNop())
	if err != nil {
		t.Skipf("Qdrant not available: %v", err)
	}
	defer store.Close()

	_ = store.DeleteCollection(ctx, collection)
	t.Cleanup(func() { _ = store.DeleteCollection(context.Background(), collection) })

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	results, err := store.Search(ctx, "parser", 4)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = store.AddDocuments(ctx, changesetDocs())
	require.NoError(t, err)
	// Re-adding the same IDs overwrites.
	_, err = store.AddDocuments(ctx, changesetDocs())
	require.NoError(t, err)

	count, err = store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	results, err = store.Search(ctx, "@@ -3,1 +3,1 @@\n-readme text\n+better readme text", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pr-2", results[0].ID)
	assert.Equal(t, []string{"README.md", "docs/index.md"}, results[0].Metadata["files_changed"])
	assert.Equal(t, 2, results[0].Metadata["num_files_changed"])

	results, err = store.SearchWithFilters(ctx, "parser", 4, map[string]interface{}{"title": "Fix parser"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "pr-1", results[0].ID)

	exists, err := store.CollectionExists(ctx, collection)
	require.NoError(t, err)
	assert.True(t, exists)
}
