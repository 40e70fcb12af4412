package order

import (
	"cmp"
	"log/slog"
	"slices"
)

// Entry is one row of the priority table.
type Entry struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
	Assembly string `json:"assembly,omitempty"`
	Manual   bool   `json:"manual,omitempty"`
}

// Result is the output of one sort.
type Result struct {
	// Entries lists every initializer in initialization order.
	Entries []Entry `json:"entries"`

	// Edges are the dependency edges the order honors.
	Edges []Edge `json:"edges"`

	// Dropped are edges removed while merging InitAfter or resolving cycles.
	Dropped []Edge `json:"dropped,omitempty"`

	Warnings []UnresolvedCycleWarning `json:"warnings,omitempty"`
	Notices  []Notice                 `json:"notices,omitempty"`
}

// Order returns the initializer names in initialization order.
func (r *Result) Order() []string {
	names := make([]string, 0, len(r.Entries))
	for _, e := range r.Entries {
		names = append(names, e.Name)
	}
	return names
}

// Priority returns the priority assigned to name.
func (r *Result) Priority(name string) (int, bool) {
	if r == nil {
		return 0, false
	}
	for _, e := range r.Entries {
		if e.Name == name {
			return e.Priority, true
		}
	}
	return 0, false
}

// Priorities returns the table as a map, suitable as the previous table of the
// next sort.
func (r *Result) Priorities() map[string]int {
	if r == nil {
		return nil
	}
	m := make(map[string]int, len(r.Entries))
	for _, e := range r.Entries {
		m[e.Name] = e.Priority
	}
	return m
}

// Sorter computes execution orders.
type Sorter struct {
	logger  *slog.Logger
	spacing Spacing
}

type SorterOption func(*Sorter)

func WithLogger(logger *slog.Logger) SorterOption {
	return func(s *Sorter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithSpacing(spacing Spacing) SorterOption {
	return func(s *Sorter) {
		s.spacing = spacing
	}
}

func NewSorter(opts ...SorterOption) *Sorter {
	s := &Sorter{
		logger:  slog.Default(),
		spacing: DefaultSpacing,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sort orders decls so that every initializer runs after the initializers it
// requires, and assigns priorities. previous is the table of an earlier sort
// (nil for none); priorities in it are kept where they still agree with the
// new order.
func (s *Sorter) Sort(decls []Declaration, types *Types, previous map[string]int) (*Result, error) {
	g, err := NewGraph(decls, types)
	if err != nil {
		return nil, err
	}

	var result Result

	dropped, notices := mergeInitAfter(g)
	result.Dropped = append(result.Dropped, dropped...)
	result.Notices = append(result.Notices, notices...)

	dropped, warnings, notices := resolveCycles(g)
	result.Dropped = append(result.Dropped, dropped...)
	result.Warnings = warnings
	result.Notices = append(result.Notices, notices...)

	existing := make(map[string]int, len(g.names))
	for _, name := range g.names {
		if p := g.decls[name].Priority; p != nil {
			existing[name] = *p
		} else if p, ok := previous[name]; ok {
			existing[name] = p
		}
	}

	order := topoSort(g, existing)

	ranks := make([]rank, len(order))
	for i, name := range order {
		d := g.decls[name]
		p, has := existing[name]
		ranks[i] = rank{
			name:     name,
			assembly: d.assembly(g.types),
			value:    p,
			has:      has,
			manual:   d.Priority != nil,
		}
	}

	values, notices := renumber(ranks, s.spacing)
	result.Notices = append(result.Notices, notices...)

	result.Entries = make([]Entry, len(ranks))
	for i, r := range ranks {
		result.Entries[i] = Entry{
			Name:     r.name,
			Priority: values[i],
			Assembly: r.assembly,
			Manual:   r.manual,
		}
	}
	// out of order manual priorities can break monotonicity; the table is
	// always reported by priority
	slices.SortStableFunc(result.Entries, func(a, b Entry) int {
		return cmp.Compare(a.Priority, b.Priority)
	})
	result.Edges = g.Edges()

	s.report(&result)

	return &result, nil
}

func (s *Sorter) report(result *Result) {
	for _, w := range result.Warnings {
		s.logger.Warn(w.Message(), slog.Any("initializers", w.Initializers))
	}
	for _, n := range result.Notices {
		switch n.Code {
		case NoticeCycleResolved, NoticeCycleInstanceFirst:
			s.logger.Debug(n.Message, slog.String("initializer", n.Initializer), slog.String("code", string(n.Code)))
		default:
			s.logger.Warn(n.Message, slog.String("initializer", n.Initializer), slog.String("code", string(n.Code)))
		}
	}
	s.logger.Debug("execution order computed",
		slog.Int("initializers", len(result.Entries)),
		slog.Int("edges", len(result.Edges)),
		slog.Int("dropped", len(result.Dropped)),
	)
}

// topoSort returns a post-order DFS of g: dependencies before dependents.
// Roots and neighbors are visited by existing priority, then by declaration
// order, so that an unchanged graph yields an unchanged order. Edges back to
// an in-progress node only exist inside unresolved cycles and are skipped.
func topoSort(g *Graph, existing map[string]int) []string {
	const (
		unvisited uint8 = iota
		inProgress
		done
	)

	pos := make(map[string]int, len(g.names))
	for i, name := range g.names {
		pos[name] = i
	}
	less := func(a, b string) int {
		pa, okA := existing[a]
		pb, okB := existing[b]
		switch {
		case okA && okB:
			if c := cmp.Compare(pa, pb); c != 0 {
				return c
			}
		case okA:
			return -1
		case okB:
			return 1
		}
		return cmp.Compare(pos[a], pos[b])
	}

	state := make(map[string]uint8, len(g.names))
	order := make([]string, 0, len(g.names))

	var visit func(string)
	visit = func(name string) {
		if state[name] != unvisited {
			return
		}
		state[name] = inProgress

		deps := g.out[name].Slice()
		slices.SortFunc(deps, less)
		for _, dep := range deps {
			visit(dep)
		}

		state[name] = done
		order = append(order, name)
	}

	roots := slices.Clone(g.names)
	slices.SortFunc(roots, less)
	for _, name := range roots {
		visit(name)
	}

	return order
}
