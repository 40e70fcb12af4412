package initargs

import (
	"context"
	"sync"
)

// Future is the eventual result of an asynchronous resolution.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a future already completed with v.
func Resolved[T any](v T) *Future[T] {
	f := NewFuture[T]()
	f.Complete(v, nil)
	return f
}

// Rejected returns a future already completed with err.
func Rejected[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.Complete(zero, err)
	return f
}

// Go runs fn on a new goroutine and returns its future.
func Go[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := NewFuture[T]()
	go func() {
		v, err := fn(ctx)
		f.Complete(v, err)
	}()
	return f
}

// Complete sets the result. Only the first call has an effect; it reports
// whether this call completed f.
func (f *Future[T]) Complete(v T, err error) bool {
	completed := false
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
		completed = true
	})
	return completed
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) Completed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// TryResult returns the result if it is available.
func (f *Future[T]) TryResult() (T, bool, error) {
	if !f.Completed() {
		var zero T
		return zero, false, nil
	}
	return f.value, true, f.err
}

// Await blocks until the result is available or ctx is done.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	default:
	}

	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, cancelled(ctx.Err())
	}
}

// Then maps the result of f once it is available.
func Then[T, U any](f *Future[T], fn func(T) U) *Future[U] {
	if v, ok, err := f.TryResult(); ok {
		if err != nil {
			return Rejected[U](err)
		}
		return Resolved(fn(v))
	}

	out := NewFuture[U]()
	go func() {
		<-f.done
		if f.err != nil {
			var zero U
			out.Complete(zero, f.err)
			return
		}
		out.Complete(fn(f.value), nil)
	}()
	return out
}
