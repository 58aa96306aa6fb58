package kvstore

import (
	"context"
	"fmt"

	"gestio.app/internal/config"
)

// OpenBackend builds the backend selected by cfg.Store.
func OpenBackend(ctx context.Context, cfg *config.Config) (Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		return NewMemory(), nil
	case config.StoreFile:
		return OpenFile(cfg.StoreFile)
	case config.StoreRedis:
		return OpenRedis(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	case config.StorePostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", cfg.Store)
	}
}
