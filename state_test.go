package initargs_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazrean/initargs"
)

func TestLifecycleInit(t *testing.T) {
	t.Parallel()

	t.Run("runs once", func(t *testing.T) {
		t.Parallel()

		var l initargs.Lifecycle
		calls := 0
		for range 3 {
			require.NoError(t, l.Init(func() error {
				calls++
				return nil
			}))
		}
		assert.Equal(t, 1, calls)
		assert.Equal(t, initargs.Initialized, l.State())
	})

	t.Run("re-entrant call is a no-op", func(t *testing.T) {
		t.Parallel()

		var l initargs.Lifecycle
		err := l.Init(func() error {
			assert.Equal(t, initargs.Initializing, l.State())
			return l.Init(func() error {
				t.Fatal("re-entered")
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, initargs.Initialized, l.State())
	})

	t.Run("failure is sticky", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		var l initargs.Lifecycle
		require.ErrorIs(t, l.Init(func() error { return errBoom }), errBoom)
		assert.Equal(t, initargs.Failed, l.State())
		assert.ErrorIs(t, l.Err(), errBoom)

		err := l.Init(func() error { return nil })
		require.ErrorIs(t, err, initargs.ErrInitFailed)
		assert.ErrorIs(t, err, errBoom)
	})

	t.Run("cancellation rolls back", func(t *testing.T) {
		t.Parallel()

		var l initargs.Lifecycle
		err := l.Init(func() error { return context.Canceled })
		require.True(t, initargs.IsCancellation(err))
		assert.Equal(t, initargs.Uninitialized, l.State())

		require.NoError(t, l.Init(func() error { return nil }))
		assert.Equal(t, initargs.Initialized, l.State())
	})

	t.Run("single winner", func(t *testing.T) {
		t.Parallel()

		var (
			l     initargs.Lifecycle
			calls atomic.Int32
			wg    sync.WaitGroup
		)
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = l.Init(func() error {
					calls.Add(1)
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, initargs.Initialized, l.State())
	})
}

func TestContext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rc     initargs.Context
		editor bool
		name   string
	}{
		{rc: initargs.EditTime, editor: true, name: "EditTime"},
		{rc: initargs.Reset, editor: true, name: "Reset"},
		{rc: initargs.RuntimeConstruction, name: "RuntimeConstruction"},
		{rc: initargs.MainThread, name: "MainThread"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.editor, tt.rc.IsEditor())
			assert.Equal(t, tt.name, tt.rc.String())
		})
	}
}
