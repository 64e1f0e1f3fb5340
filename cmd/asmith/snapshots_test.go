package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/asmith/internal/snapshot"
	"github.com/kazz187/asmith/internal/task"
	"github.com/kazz187/asmith/pkg/cerr"
	"github.com/kazz187/asmith/pkg/storage"
)

func TestWriteSnapshotList(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSnapshotList(ctx, st, &buf))
	assert.Equal(t, "no files found\n", buf.String())

	savedAt := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	store := snapshot.NewStore(st, snapshot.WithSessionID("s1"), snapshot.WithClock(func() time.Time { return savedAt }))
	name, err := store.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, "asmith_s1_2025-03-04_05-06-07Z.json", name)

	buf.Reset()
	require.NoError(t, writeSnapshotList(ctx, st, &buf))
	assert.Equal(t, "2025-03-04 05:06:07  "+name+"\n", buf.String())
}

func TestWriteSnapshot(t *testing.T) {
	ctx := context.Background()
	st, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	store := snapshot.NewStore(st, snapshot.WithSessionID("s1"))
	require.NoError(t, store.Update("!room:example.org", func(l *task.List) error {
		tk := l.Add("@alice:example.org", "Buy milk")
		tk.AddLog("@alice:example.org", "semi-skimmed")
		return nil
	}))
	name, err := store.Save(ctx)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, writeSnapshot(ctx, st, name, &buf))
	assert.Equal(t, name+"\n\n!room:example.org\n  1. [pending] Buy milk (1 logs, 2 history)\n", buf.String())

	err = writeSnapshot(ctx, st, "../etc/passwd", &buf)
	assert.True(t, cerr.IsCode(err, cerr.InvalidArgument))
}
