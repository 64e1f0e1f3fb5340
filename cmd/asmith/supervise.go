package main

import (
	"context"

	"github.com/kazz187/asmith/pkg/sentinel"
)

func supervise(ctx context.Context) error {
	s, err := sentinel.New(sentinel.Config{})
	if err != nil {
		return err
	}
	return s.Run(ctx)
}
