package initargs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazrean/initargs"
)

func TestFuture(t *testing.T) {
	t.Parallel()

	t.Run("first completion wins", func(t *testing.T) {
		t.Parallel()

		f := initargs.NewFuture[int]()
		_, ok, _ := f.TryResult()
		assert.False(t, ok)

		assert.True(t, f.Complete(1, nil))
		assert.False(t, f.Complete(2, nil))

		v, ok, err := f.TryResult()
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("await cancelled", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := initargs.NewFuture[int]().Await(ctx)
		require.ErrorIs(t, err, initargs.ErrResolutionCancelled)
		assert.True(t, initargs.IsCancellation(err))
	})

	t.Run("then", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		src := initargs.Go(ctx, func(context.Context) (int, error) { return 21, nil })
		v, err := initargs.Then(src, func(v int) int { return v * 2 }).Await(ctx)
		require.NoError(t, err)
		assert.Equal(t, 42, v)

		errBoom := errors.New("boom")
		_, err = initargs.Then(initargs.Rejected[int](errBoom), func(v int) int { return v }).Await(ctx)
		assert.ErrorIs(t, err, errBoom)
	})
}
