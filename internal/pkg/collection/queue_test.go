package collection

import (
	"slices"
	"testing"
)

func drain[T any](q *Queue[T]) []T {
	var out []T
	for v := range q.Drain {
		out = append(out, v)
	}
	return out
}

func TestQueue_PushPop(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		values []string
	}{
		{
			name:   "single value",
			values: []string{"first"},
		},
		{
			name:   "multiple values",
			values: []string{"first", "second", "third"},
		},
		{
			name:   "empty string",
			values: []string{""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			q := NewQueue[string]()
			for _, v := range tt.values {
				q.Push(v)
			}

			for i, want := range tt.values {
				got, ok := q.Pop()
				if !ok {
					t.Fatalf("Pop() #%d reported empty queue", i)
				}
				if got != want {
					t.Errorf("Pop() #%d = %q, want %q", i, got, want)
				}
			}

			if _, ok := q.Pop(); ok {
				t.Error("Pop() on drained queue should report false")
			}
		})
	}
}

func TestQueue_ZeroValue(t *testing.T) {
	t.Parallel()

	var q Queue[int]
	if _, ok := q.Pop(); ok {
		t.Error("Pop() on zero queue should report false")
	}

	q.Push(7)
	got, ok := q.Pop()
	if !ok || got != 7 {
		t.Errorf("Pop() = (%d, %v), want (7, true)", got, ok)
	}
}

func TestQueue_DrainVisitsPushedDuringDrain(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, 2)
	var seen []int
	q.Drain(func(v int) bool {
		seen = append(seen, v)
		if v == 1 {
			q.Push(3)
		}
		return true
	})

	if want := []int{1, 2, 3}; !slices.Equal(seen, want) {
		t.Errorf("Drain() visited %v, want %v", seen, want)
	}
	if _, ok := q.Pop(); ok {
		t.Error("queue should be empty after Drain")
	}
}

func TestQueue_DrainStops(t *testing.T) {
	t.Parallel()

	q := NewQueue(1, 2, 3)
	q.Drain(func(v int) bool { return v < 2 })

	if got, want := drain(q), []int{3}; !slices.Equal(got, want) {
		t.Errorf("remaining = %v, want %v", got, want)
	}
}

func TestQueue_Compaction(t *testing.T) {
	t.Parallel()

	q := NewQueue[int]()
	for i := range 100 {
		q.Push(i)
	}
	for i := range 90 {
		got, _ := q.Pop()
		if got != i {
			t.Fatalf("Pop() = %d, want %d", got, i)
		}
	}

	want := []int{90, 91, 92, 93, 94, 95, 96, 97, 98, 99}
	if got := drain(q); !slices.Equal(got, want) {
		t.Errorf("remaining = %v, want %v", got, want)
	}
}
