package vectorstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var chromemTracer = otel.Tracer("diffscribe.vectorstore.chromem")

// maxQueryLength bounds search queries for both backends.
const maxQueryLength = 10000

// ChromemConfig holds configuration for chromem-go embedded vector database.
type ChromemConfig struct {
	// Path is the directory for persistent storage.
	// Default: "~/.config/diffscribe/vectorstore"
	Path string

	// Compress enables gzip compression for stored data.
	Compress bool

	// Collection is the collection documents are written to and searched in.
	Collection string

	// VectorSize is the expected embedding dimension.
	// Must match the embedder's output dimension.
	VectorSize int
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Path == "" {
		c.Path = "~/.config/diffscribe/vectorstore"
	}
	if c.VectorSize == 0 {
		c.VectorSize = 1024
	}
}

// Validate validates the configuration.
func (c *ChromemConfig) Validate() error {
	if c.VectorSize <= 0 {
		return fmt.Errorf("%w: vector size must be positive", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ChromemStore implements Store on an embedded, file-persisted chromem-go
// database. Similarity search is exhaustive cosine similarity.
type ChromemStore struct {
	db       *chromem.DB
	embedder Embedder
	config   ChromemConfig
	logger   *zap.Logger
	metrics  *Metrics
}

// NewChromemStore opens (or creates) the database under config.Path.
func NewChromemStore(config ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	path, err := expandPath(config.Path)
	if err != nil {
		return nil, fmt.Errorf("expanding path: %w", err)
	}
	if err := os.MkdirAll(path, 0o700); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", path, err)
	}

	db, err := chromem.NewPersistentDB(path, config.Compress)
	if err != nil {
		return nil, fmt.Errorf("creating chromem DB: %w", err)
	}

	logger.Info("chromem store opened",
		zap.String("path", path),
		zap.Bool("compress", config.Compress),
		zap.Int("vector_size", config.VectorSize),
		zap.String("collection", config.Collection),
	)

	return &ChromemStore{
		db:       db,
		embedder: embedder,
		config:   config,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

func expandPath(path string) (string, error) {
	return config.ExpandPath(path)
}

// embeddingFunc adapts the Embedder for chromem. It must always be passed
// when opening a collection: with nil, chromem falls back to OpenAI.
func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// AddDocuments embeds docs and writes them to the collection, creating it
// on first use. Documents with an existing ID are overwritten.
func (s *ChromemStore) AddDocuments(ctx context.Context, docs []Document) (ids []string, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.AddDocuments")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(ctx, "chromem", "add_documents", s.config.Collection, time.Since(start), len(ids), err)
	}()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("document_count", len(docs)),
	)

	if len(docs) == 0 {
		return nil, ErrEmptyDocuments
	}

	texts := make([]string, len(docs))
	for i, doc := range docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("document %d: id is required", i)
		}
		texts[i] = doc.Content
	}

	embeddings, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(embeddings) != len(docs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d documents", ErrEmbeddingFailed, len(embeddings), len(docs))
	}

	chromemDocs := make([]chromem.Document, len(docs))
	ids = make([]string, len(docs))
	for i, doc := range docs {
		if len(embeddings[i]) != s.config.VectorSize {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, store expects %d",
				ErrEmbeddingFailed, len(embeddings[i]), s.config.VectorSize)
		}
		metadata, err := encodeStringMetadata(doc.Metadata)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", doc.ID, err)
		}
		chromemDocs[i] = chromem.Document{
			ID:        doc.ID,
			Content:   doc.Content,
			Metadata:  metadata,
			Embedding: embeddings[i],
		}
		ids[i] = doc.ID
	}

	collection, err := s.db.GetOrCreateCollection(s.config.Collection, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("opening collection %s: %w", s.config.Collection, err)
	}

	if err := collection.AddDocuments(ctx, chromemDocs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("adding documents to %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("added documents to chromem",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

// Search performs similarity search in the store's collection.
func (s *ChromemStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchWithFilters(ctx, query, k, nil)
}

// SearchWithFilters performs similarity search with exact-match metadata
// filters. k is capped at the collection size.
func (s *ChromemStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) (results []SearchResult, err error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(ctx, "chromem", "search", s.config.Collection, time.Since(start), 0, err)
	}()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if err := validateQuery(query, k); err != nil {
		return nil, err
	}
	where, err := stringFilter(filters)
	if err != nil {
		return nil, err
	}

	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		return []SearchResult{}, nil
	}
	count := collection.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}
	if k > count {
		k = count
	}

	found, err := collection.Query(ctx, query, k, where, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("querying collection %s: %w", s.config.Collection, err)
	}

	results = make([]SearchResult, len(found))
	for i, r := range found {
		results[i] = SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Score:    r.Similarity,
			Metadata: decodeStringMetadata(r.Metadata),
		}
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("searched chromem collection",
		zap.String("collection", s.config.Collection),
		zap.Int("k", k),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// Count returns the number of documents in the store's collection.
func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	collection := s.db.GetCollection(s.config.Collection, s.embeddingFunc())
	if collection == nil {
		return 0, nil
	}
	return collection.Count(), nil
}

// CollectionExists checks if a collection exists.
func (s *ChromemStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return false, err
	}
	return s.db.GetCollection(collectionName, s.embeddingFunc()) != nil, nil
}

// DeleteCollection deletes a collection and all its documents. Deleting a
// missing collection is not an error.
func (s *ChromemStore) DeleteCollection(ctx context.Context, collectionName string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collectionName))

	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	start := time.Now()
	err := s.db.DeleteCollection(collectionName)
	s.metrics.RecordOperation(ctx, "chromem", "delete_collection", collectionName, time.Since(start), 0, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted chromem collection", zap.String("collection", collectionName))
	return nil
}

// Close is a no-op; chromem persists on every write.
func (s *ChromemStore) Close() error {
	return nil
}

func validateQuery(query string, k int) error {
	if k <= 0 {
		return fmt.Errorf("k must be positive, got %d", k)
	}
	if query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if len(query) > maxQueryLength {
		return fmt.Errorf("query exceeds maximum length of %d characters", maxQueryLength)
	}
	return nil
}

var _ Store = (*ChromemStore)(nil)
