package storage

import (
	"context"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStorage(t *testing.T) *RedisStorage {
	t.Helper()
	url := os.Getenv("ASMITH_TEST_REDIS_URL")
	if url == "" {
		t.Skip("ASMITH_TEST_REDIS_URL is not set")
	}
	s, err := NewRedisStorageFromURL(context.Background(), url, "asmith-test:"+t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStorage(t *testing.T) {
	ctx := context.Background()
	s := newTestRedisStorage(t)

	require.NoError(t, s.Write(ctx, "a.json", []byte("1")))
	require.NoError(t, s.Write(ctx, "b.json", []byte("2")))
	t.Cleanup(func() {
		_ = s.Delete(ctx, "a.json")
		_ = s.Delete(ctx, "b.json")
	})

	data, err := s.Read(ctx, "a.json")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	paths, err := s.List(ctx, "")
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{"a.json", "b.json"}, paths)

	require.NoError(t, s.Delete(ctx, "b.json"))
	assert.ErrorIs(t, s.Delete(ctx, "b.json"), ErrNotFound)
	_, err = s.Read(ctx, "b.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSplitPath(t *testing.T) {
	dir, name := splitPath("a.json")
	assert.Equal(t, "", dir)
	assert.Equal(t, "a.json", name)

	dir, name = splitPath("/x/y/a.json")
	assert.Equal(t, "x/y", dir)
	assert.Equal(t, "a.json", name)
}
