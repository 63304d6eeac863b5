package vectorstore

import (
	"fmt"

	"github.com/fyrsmithlabs/diffscribe/internal/config"
	"go.uber.org/zap"
)

// NewStore creates the Store selected by cfg.VectorStore.Provider:
//   - "chromem" (default): embedded, persisted under cfg.VectorStore.Path
//   - "qdrant": external server at cfg.Qdrant.Host:Port
//
// Both are bound to cfg.CollectionName() and sized by cfg.Embeddings.Dimension.
func NewStore(cfg *config.Config, embedder Embedder, logger *zap.Logger) (Store, error) {
	collection := cfg.CollectionName()

	var (
		store Store
		err   error
	)
	switch cfg.VectorStore.Provider {
	case "chromem", "":
		store, err = NewChromemStore(ChromemConfig{
			Path:       cfg.VectorStore.Path,
			Compress:   cfg.VectorStore.Compress,
			Collection: collection,
			VectorSize: cfg.Embeddings.Dimension,
		}, embedder, logger)

	case "qdrant":
		store, err = NewQdrantStore(QdrantConfig{
			Host:       cfg.Qdrant.Host,
			Port:       cfg.Qdrant.Port,
			APIKey:     cfg.Qdrant.APIKey.Value(),
			UseTLS:     cfg.Qdrant.UseTLS,
			Collection: collection,
			VectorSize: uint64(cfg.Embeddings.Dimension),
		}, embedder, logger)

	default:
		return nil, fmt.Errorf("unsupported vectorstore provider: %s (supported: chromem, qdrant)", cfg.VectorStore.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
