package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/kazz187/asmith/internal/config"
	"github.com/kazz187/asmith/internal/snapshot"
	"github.com/kazz187/asmith/internal/task"
	"github.com/kazz187/asmith/pkg/storage"
)

func listSnapshots(ctx context.Context, env *config.Env, w io.Writer) error {
	st, closeStorage, err := openStorage(ctx, env)
	if err != nil {
		return err
	}
	defer closeStorage()
	return writeSnapshotList(ctx, st, w)
}

func writeSnapshotList(ctx context.Context, st storage.Storage, w io.Writer) error {
	names, err := snapshot.NewStore(st).List(ctx)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		_, err := fmt.Fprintln(w, snapshot.ErrNoSnapshots.Error())
		return err
	}
	for _, name := range names {
		saved := "?"
		if at, err := snapshot.Timestamp(name); err == nil {
			saved = at.UTC().Format(time.DateTime)
		}
		if _, err := fmt.Fprintf(w, "%s  %s\n", saved, name); err != nil {
			return err
		}
	}
	return nil
}

func showSnapshot(ctx context.Context, env *config.Env, name string, w io.Writer) error {
	st, closeStorage, err := openStorage(ctx, env)
	if err != nil {
		return err
	}
	defer closeStorage()
	return writeSnapshot(ctx, st, name, w)
}

// writeSnapshot loads name into a throwaway store, so the same validation as
// the load command applies, and prints every room's list.
func writeSnapshot(ctx context.Context, st storage.Storage, name string, w io.Writer) error {
	store := snapshot.NewStore(st)
	if err := store.Load(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n", name)
	rooms := store.Rooms()
	if len(rooms) == 0 {
		fmt.Fprintln(w, "(no rooms)")
		return nil
	}
	for _, room := range rooms {
		fmt.Fprintf(w, "\n%s\n", room)
		store.View(room, func(l *task.List) {
			for i, t := range l.Tasks() {
				fmt.Fprintf(w, "  %d. %s (%d logs, %d history)\n", i+1, t.Summary(), len(t.Logs), len(t.History))
			}
		})
	}
	return nil
}
