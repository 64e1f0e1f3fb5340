package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStorage implements Storage on top of Redis string keys. A set per
// directory tracks its direct children so List does not need SCAN.
type RedisStorage struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStorage(client redis.UniversalClient, prefix string) *RedisStorage {
	if prefix != "" && !strings.HasSuffix(prefix, ":") {
		prefix += ":"
	}
	return &RedisStorage{client: client, prefix: prefix}
}

// NewRedisStorageFromURL parses a redis:// URL and pings the server.
func NewRedisStorageFromURL(ctx context.Context, url, prefix string) (*RedisStorage, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStorage(client, prefix), nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) key(path string) string {
	return s.prefix + "blob:" + strings.TrimPrefix(path, "/")
}

func (s *RedisStorage) indexKey(dir string) string {
	return s.prefix + "dir:" + strings.Trim(dir, "/")
}

func splitPath(path string) (dir, name string) {
	path = strings.TrimPrefix(path, "/")
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

func (s *RedisStorage) Read(ctx context.Context, path string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(path)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s from redis: %w", path, err)
	}
	return data, nil
}

func (s *RedisStorage) Write(ctx context.Context, path string, data []byte) error {
	dir, name := splitPath(path)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(path), data, 0)
		pipe.SAdd(ctx, s.indexKey(dir), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write %s to redis: %w", path, err)
	}
	return nil
}

func (s *RedisStorage) Delete(ctx context.Context, path string) error {
	dir, name := splitPath(path)
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.key(path))
		pipe.SRem(ctx, s.indexKey(dir), name)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s from redis: %w", path, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%s: %w", path, ErrNotFound)
	}
	return nil
}

func (s *RedisStorage) List(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.Trim(prefix, "/")
	names, err := s.client.SMembers(ctx, s.indexKey(dir)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list %s in redis: %w", prefix, err)
	}
	paths := make([]string, 0, len(names))
	for _, name := range names {
		if dir == "" {
			paths = append(paths, name)
			continue
		}
		paths = append(paths, dir+"/"+name)
	}
	return paths, nil
}

func (s *RedisStorage) Exists(ctx context.Context, path string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(path)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of %s in redis: %w", path, err)
	}
	return n > 0, nil
}
