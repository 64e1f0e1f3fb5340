package main

import (
	"context"
	"fmt"

	"github.com/kazz187/asmith/internal/config"
	"github.com/kazz187/asmith/pkg/storage"
)

// openStorage returns the configured backend and a function releasing it.
func openStorage(ctx context.Context, env *config.Env) (storage.Storage, func(), error) {
	switch env.StorageEnv.Type {
	case storage.TypeS3:
		st, err := storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create S3 storage: %w", err)
		}
		return st, func() {}, nil
	case storage.TypeRedis:
		st, err := storage.NewRedisStorageFromURL(ctx, env.RedisURL, env.RedisPrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis storage: %w", err)
		}
		return st, func() { _ = st.Close() }, nil
	default:
		st, err := storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create local storage: %w", err)
		}
		return st, func() {}, nil
	}
}
