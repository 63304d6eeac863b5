package vectorstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var qdrantTracer = otel.Tracer("diffscribe.vectorstore.qdrant")

// pointNamespace scopes the UUIDv5 point IDs derived from document IDs.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/fyrsmithlabs/diffscribe/points"))

// PointID maps a document ID to the Qdrant point ID it is stored under.
// The mapping is deterministic, so re-indexing a document overwrites it.
func PointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

// QdrantConfig holds configuration for Qdrant gRPC client.
type QdrantConfig struct {
	// Host is the Qdrant server hostname or IP address.
	Host string

	// Port is the Qdrant gRPC port, not the 6333 REST port.
	Port int

	APIKey string
	UseTLS bool

	// Collection is the collection documents are written to and searched in.
	// It is created on first write.
	Collection string

	// VectorSize must match the embedder's output dimension.
	VectorSize uint64

	// Distance is the similarity metric. Default: Cosine.
	Distance qdrant.Distance

	// MaxRetries bounds retries of transient failures. Default: 3.
	MaxRetries int

	// RetryBackoff is the initial backoff, doubled per retry. Default: 1s.
	RetryBackoff time.Duration

	// MaxMessageSize is the maximum gRPC message size in bytes. Default: 50MB.
	MaxMessageSize int

	// CircuitBreakerThreshold is the number of consecutive transient
	// failures before calls fail fast for 30s. Default: 5.
	CircuitBreakerThreshold int
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	if c.VectorSize == 0 {
		return fmt.Errorf("%w: vector size required", ErrInvalidConfig)
	}
	return ValidateCollectionName(c.Collection)
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
	if c.Distance == qdrant.Distance_UnknownDistance {
		c.Distance = qdrant.Distance_Cosine
	}
}

// IsTransientError reports whether err is a gRPC failure worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store with Qdrant's native gRPC client.
//
// The original document ID travels in the payload next to the content;
// the point ID is PointID(doc.ID).
type QdrantStore struct {
	client   *qdrant.Client
	embedder Embedder
	config   QdrantConfig
	logger   *zap.Logger
	metrics  *Metrics

	// created is set once the store's collection is known to exist.
	readyMu sync.Mutex
	created bool

	breaker struct {
		mu       sync.Mutex
		failures int
		lastFail time.Time
	}
}

// NewQdrantStore connects to Qdrant and verifies the server is healthy.
func NewQdrantStore(config QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantStore, error) {
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

	if !config.UseTLS {
		logger.Warn("qdrant gRPC using plaintext, TLS disabled",
			zap.String("host", config.Host),
			zap.Int("port", config.Port),
		)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
		// The health check below covers reachability.
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: health check: %v", ErrConnectionFailed, err)
	}

	logger.Info("qdrant store connected",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.String("collection", config.Collection),
	)
	return store, nil
}

// Close closes the Qdrant gRPC connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// retryOperation retries operation on transient errors with exponential
// backoff, failing fast while the circuit breaker is open.
func (s *QdrantStore) retryOperation(ctx context.Context, name string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; ; attempt++ {
		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", name)
		}

		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}
		if !IsTransientError(err) {
			return err
		}

		s.recordFailure()
		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", name, s.config.MaxRetries, err)
		}

		s.logger.Debug("retrying qdrant operation",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", name, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func (s *QdrantStore) recordFailure() {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	s.breaker.failures++
	s.breaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()
	s.breaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.breaker.mu.Lock()
	defer s.breaker.mu.Unlock()

	if s.breaker.failures < s.config.CircuitBreakerThreshold {
		return false
	}
	if time.Since(s.breaker.lastFail) > 30*time.Second {
		s.breaker.failures = 0
		return false
	}
	return true
}

// ensureCollection creates the store's collection if it does not exist.
// Success is remembered; failures are retried on the next call.
func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	if s.created {
		return nil
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, s.config.Collection)
		return err
	})
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", s.config.Collection, err)
	}

	if !exists {
		err = s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.config.Collection,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     s.config.VectorSize,
					Distance: s.config.Distance,
				}),
			})
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", s.config.Collection, err)
		}
		s.logger.Info("created qdrant collection",
			zap.String("collection", s.config.Collection),
			zap.Uint64("vector_size", s.config.VectorSize),
		)
	}

	s.created = true
	return nil
}

// AddDocuments embeds docs and upserts them as points.
func (s *QdrantStore) AddDocuments(ctx context.Context, docs []Document) (ids []string, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.AddDocuments")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(ctx, "qdrant", "add_documents", s.config.Collection, time.Since(start), len(ids), err)
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

	points := make([]*qdrant.PointStruct, len(docs))
	ids = make([]string, len(docs))
	for i, doc := range docs {
		if uint64(len(embeddings[i])) != s.config.VectorSize {
			return nil, fmt.Errorf("%w: embedding has %d dimensions, store expects %d",
				ErrEmbeddingFailed, len(embeddings[i]), s.config.VectorSize)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(doc.ID)),
			Vectors: qdrant.NewVectors(embeddings[i]...),
			Payload: payloadFromDocument(doc),
		}
		ids[i] = doc.ID
	}

	if err := s.ensureCollection(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	err = s.retryOperation(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.config.Collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("upserting points to collection %s: %w", s.config.Collection, err)
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("upserted documents to qdrant",
		zap.String("collection", s.config.Collection),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

// Search performs similarity search in the store's collection.
func (s *QdrantStore) Search(ctx context.Context, query string, k int) ([]SearchResult, error) {
	return s.SearchWithFilters(ctx, query, k, nil)
}

// SearchWithFilters performs similarity search with exact-match payload
// filters.
func (s *QdrantStore) SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) (results []SearchResult, err error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
	defer span.End()

	start := time.Now()
	defer func() {
		s.metrics.RecordOperation(ctx, "qdrant", "search", s.config.Collection, time.Since(start), 0, err)
	}()

	span.SetAttributes(
		attribute.String("collection", s.config.Collection),
		attribute.Int("k", k),
	)

	if err := validateQuery(query, k); err != nil {
		return nil, err
	}
	filter, err := payloadFilter(filters)
	if err != nil {
		return nil, err
	}

	exists, err := s.CollectionExists(ctx, s.config.Collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return []SearchResult{}, nil
	}

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}

	var points []*qdrant.ScoredPoint
	err = s.retryOperation(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.config.Collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(k)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("searching collection %s: %w", s.config.Collection, err)
	}

	results = make([]SearchResult, len(points))
	for i, point := range points {
		results[i] = resultFromPoint(point)
	}

	span.SetAttributes(attribute.Int("results_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

// Count returns the exact number of points in the store's collection.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	exists, err := s.CollectionExists(ctx, s.config.Collection)
	if err != nil || !exists {
		return 0, err
	}

	var n uint64
	err = s.retryOperation(ctx, "count", func() error {
		var err error
		n, err = s.client.Count(ctx, &qdrant.CountPoints{
			CollectionName: s.config.Collection,
			Exact:          qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("counting collection %s: %w", s.config.Collection, err)
	}
	return int(n), nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collectionName string) (bool, error) {
	if err := ValidateCollectionName(collectionName); err != nil {
		return false, err
	}

	var exists bool
	err := s.retryOperation(ctx, "collection_exists", func() error {
		var err error
		exists, err = s.client.CollectionExists(ctx, collectionName)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("checking collection %s: %w", collectionName, err)
	}
	return exists, nil
}

// DeleteCollection deletes a collection and all its points.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collectionName string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DeleteCollection")
	defer span.End()

	span.SetAttributes(attribute.String("collection", collectionName))

	if err := ValidateCollectionName(collectionName); err != nil {
		return err
	}

	start := time.Now()
	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, collectionName)
	})
	s.metrics.RecordOperation(ctx, "qdrant", "delete_collection", collectionName, time.Since(start), 0, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("deleting collection %s: %w", collectionName, err)
	}

	if collectionName == s.config.Collection {
		s.readyMu.Lock()
		s.created = false
		s.readyMu.Unlock()
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Info("deleted qdrant collection", zap.String("collection", collectionName))
	return nil
}

var _ Store = (*QdrantStore)(nil)
