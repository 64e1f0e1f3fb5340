package panicerr

import (
	"context"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic inside it is returned as an error.
func Safe(fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if err != nil {
			return err
		}
		return catcher.Recovered().AsError()
	}
}

func SafeContext(fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(func() error { return fn(ctx) })()
	}
}

// Value runs fn and converts a panic into an error, returning the zero value
// of T in that case.
func Value[T any](fn func() (T, error)) (T, error) {
	var v T
	err := Safe(func() error {
		var err error
		v, err = fn()
		return err
	})()
	if err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
