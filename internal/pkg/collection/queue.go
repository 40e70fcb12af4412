// Package collection provides utility data structures.
package collection

// Queue is a FIFO queue. The zero value is ready to use.
type Queue[T any] struct {
	items []T
	head  int
}

func NewQueue[T any](values ...T) *Queue[T] {
	q := &Queue[T]{}
	for _, v := range values {
		q.Push(v)
	}
	return q
}

func (q *Queue[T]) Push(v T) {
	q.items = append(q.items, v)
}

// Pop removes the front element. ok is false when the queue is empty.
func (q *Queue[T]) Pop() (v T, ok bool) {
	if q.head >= len(q.items) {
		return v, false
	}

	v = q.items[q.head]
	var zero T
	q.items[q.head] = zero
	q.head++

	// reclaim the consumed prefix once it dominates the backing array
	if q.head > 32 && q.head*2 >= len(q.items) {
		q.items = append(q.items[:0:0], q.items[q.head:]...)
		q.head = 0
	}

	return v, true
}

// Drain pops elements until the queue is empty or yield returns false.
// Elements pushed while draining are visited too.
func (q *Queue[T]) Drain(yield func(T) bool) {
	for {
		v, ok := q.Pop()
		if !ok {
			return
		}
		if !yield(v) {
			return
		}
	}
}
