package store

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/castlemilk/pfinance/spending/internal/config"
	"go.uber.org/zap"
)

// Open builds the Store selected by cfg. The returned func releases its
// connections.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendMemory:
		logger.Info("Using in-memory store")
		return NewMemoryStore(), func() {}, nil

	case config.BackendFirestore:
		client, err := firestore.NewClient(ctx, cfg.Store.ProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create Firestore client: %w", err)
		}
		logger.Info("Using Firestore store", zap.String("project", cfg.Store.ProjectID))
		return NewFirestoreStore(client), func() { client.Close() }, nil

	case config.BackendPostgres:
		dsn := cfg.Database.DSN()
		if err := RunMigrations(dsn); err != nil {
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}
		pool, err := NewPostgresPool(ctx, dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return NewPostgresStore(pool), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
