// Package store holds the persistent rag.VectorStore backends.
package store

import (
	"context"
	"fmt"

	"github.com/Yates-Labs/lore/internal/config"
	"github.com/Yates-Labs/lore/internal/rag"
)

// Open connects to the backend selected in cfg.
func Open(ctx context.Context, cfg config.StoreConfig) (rag.VectorStore, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		return NewSQLiteStore(ctx, cfg.Path, cfg.Collection)
	case config.BackendMilvus:
		return NewMilvusStore(ctx, MilvusConfig{
			Address:        cfg.Milvus.Address,
			CollectionName: cfg.Collection,
			M:              cfg.Milvus.M,
			EfConstruction: cfg.Milvus.EfConstruction,
			Ef:             cfg.Milvus.Ef,
		})
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.Postgres.URL, cfg.Collection)
	default:
		return nil, fmt.Errorf("%w: unknown store backend %q", config.ErrInvalidConfig, cfg.Backend)
	}
}
