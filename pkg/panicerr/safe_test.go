package panicerr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafe(t *testing.T) {
	require.NoError(t, Safe(func() error { return nil })())

	sentinel := errors.New("boom")
	assert.ErrorIs(t, Safe(func() error { return sentinel })(), sentinel)

	err := Safe(func() error { panic("kaboom") })()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}

func TestSafeContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "v")
	err := SafeContext(func(ctx context.Context) error {
		if ctx.Value(key{}) != "v" {
			return errors.New("context not propagated")
		}
		return nil
	})(ctx)
	assert.NoError(t, err)
}

func TestValue(t *testing.T) {
	v, err := Value(func() (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Value(func() (int, error) {
		var m map[string]int
		m["x"] = 1
		return 7, nil
	})
	require.Error(t, err)
	assert.Zero(t, v)
}
