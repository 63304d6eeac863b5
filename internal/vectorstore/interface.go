// Package vectorstore stores changesets as embedded documents and serves
// similarity search over them.
//
// Two backends implement Store: ChromemStore, an embedded chromem-go
// database persisted to disk, and QdrantStore, which talks to a Qdrant
// server over gRPC. Every store is bound to one collection at construction.
package vectorstore

import (
	"context"
	"errors"
)

// Sentinel errors for vector store operations.
var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection not found")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmptyDocuments indicates empty or nil documents.
	ErrEmptyDocuments = errors.New("empty or nil documents")

	// ErrConnectionFailed indicates gRPC connection issues.
	ErrConnectionFailed = errors.New("failed to connect to Qdrant")

	// ErrEmbeddingFailed indicates embedding generation failure.
	ErrEmbeddingFailed = errors.New("failed to generate embeddings")

	// ErrInvalidCollectionName indicates collection name validation failure.
	ErrInvalidCollectionName = errors.New("invalid collection name")
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	// EmbedDocuments returns one embedding per input text, in order.
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Store is the document store used by ingestion and retrieval.
//
// Documents are written to and searched in the store's own collection.
// CollectionExists and DeleteCollection take an explicit name so callers
// can inspect or reset other collections through the same connection.
type Store interface {
	// AddDocuments embeds and stores docs, replacing any document with the
	// same ID. It returns the stored IDs in input order.
	AddDocuments(ctx context.Context, docs []Document) ([]string, error)

	// Search returns up to k documents most similar to query, best first.
	// An empty or missing collection yields no results.
	Search(ctx context.Context, query string, k int) ([]SearchResult, error)

	// SearchWithFilters is Search restricted to documents whose metadata
	// equals every scalar in filters.
	SearchWithFilters(ctx context.Context, query string, k int, filters map[string]interface{}) ([]SearchResult, error)

	// Count returns the number of documents in the store's collection,
	// zero when the collection does not exist yet.
	Count(ctx context.Context) (int, error)

	// CollectionExists reports whether the named collection exists.
	CollectionExists(ctx context.Context, collectionName string) (bool, error)

	// DeleteCollection removes the named collection and its documents.
	DeleteCollection(ctx context.Context, collectionName string) error

	// Close releases resources held by the store.
	Close() error
}
