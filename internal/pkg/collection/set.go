package collection

// OrderedSet is a set that remembers insertion order.
type OrderedSet[T comparable] struct {
	index map[T]int
	items []T
}

func NewOrderedSet[T comparable](values ...T) *OrderedSet[T] {
	s := &OrderedSet[T]{index: make(map[T]int, len(values))}
	for _, v := range values {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was not present before.
func (s *OrderedSet[T]) Add(v T) bool {
	if s.index == nil {
		s.index = make(map[T]int)
	}
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

func (s *OrderedSet[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

// Remove deletes v, keeping the relative order of the remaining elements.
func (s *OrderedSet[T]) Remove(v T) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	delete(s.index, v)
	s.items = append(s.items[:i], s.items[i+1:]...)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j]] = j
	}
	return true
}

func (s *OrderedSet[T]) Len() int {
	return len(s.items)
}

func (s *OrderedSet[T]) All(yield func(T) bool) {
	for _, v := range s.items {
		if !yield(v) {
			return
		}
	}
}

// Slice returns a copy of the elements in insertion order.
func (s *OrderedSet[T]) Slice() []T {
	return append([]T(nil), s.items...)
}
