package collection

import (
	"slices"
	"testing"
)

func TestOrderedSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		add     []string
		remove  []string
		want    []string
		missing []string
	}{
		{
			name: "keeps insertion order",
			add:  []string{"c", "a", "b"},
			want: []string{"c", "a", "b"},
		},
		{
			name: "ignores duplicates",
			add:  []string{"a", "b", "a"},
			want: []string{"a", "b"},
		},
		{
			name:    "remove keeps order",
			add:     []string{"a", "b", "c", "d"},
			remove:  []string{"b"},
			want:    []string{"a", "c", "d"},
			missing: []string{"b"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewOrderedSet(tt.add...)
			for _, v := range tt.remove {
				if !s.Remove(v) {
					t.Errorf("Remove(%q) = false", v)
				}
			}

			if got := s.Slice(); !slices.Equal(got, tt.want) {
				t.Errorf("Slice() = %v, want %v", got, tt.want)
			}
			if s.Len() != len(tt.want) {
				t.Errorf("Len() = %d, want %d", s.Len(), len(tt.want))
			}
			for _, v := range tt.want {
				if !s.Contains(v) {
					t.Errorf("Contains(%q) = false", v)
				}
			}
			for _, v := range tt.missing {
				if s.Contains(v) {
					t.Errorf("Contains(%q) = true after removal", v)
				}
			}

			// indices stay valid after removal
			for _, v := range tt.want {
				if !s.Remove(v) {
					t.Errorf("second-pass Remove(%q) = false", v)
				}
			}
			if s.Len() != 0 {
				t.Errorf("Len() = %d after removing everything", s.Len())
			}
		})
	}
}

func TestOrderedSet_ZeroValue(t *testing.T) {
	t.Parallel()

	var s OrderedSet[int]
	if !s.Add(1) {
		t.Error("Add on zero set should report insertion")
	}
	if s.Add(1) {
		t.Error("second Add should report duplicate")
	}

	var got []int
	s.All(func(v int) bool {
		got = append(got, v)
		return true
	})
	if !slices.Equal(got, []int{1}) {
		t.Errorf("All() = %v", got)
	}
}
