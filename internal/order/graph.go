package order

import (
	"errors"
	"fmt"
	"slices"

	"github.com/mazrean/initargs/internal/pkg/collection"
)

// InvalidDeclarationError reports a declaration the graph cannot be built from.
type InvalidDeclarationError struct {
	Name   string
	Reason string
}

func (e *InvalidDeclarationError) Error() string {
	if e.Name == "" {
		return "invalid initializer declaration: " + e.Reason
	}
	return fmt.Sprintf("invalid initializer declaration %q: %s", e.Name, e.Reason)
}

// Graph is the dependency graph over initializer names.
type Graph struct {
	types *Types
	decls map[string]*Declaration
	names []string // declaration order

	// out[a] holds the names a requires, in insertion order.
	out   map[string]*collection.OrderedSet[string]
	edges map[[2]string]Edge
}

// NewGraph builds the graph of type edges inferred from decls.
// InitAfter edges are merged later by the Sorter.
func NewGraph(decls []Declaration, types *Types) (*Graph, error) {
	if types == nil {
		types = NewTypes()
	}
	decls = slices.Clone(decls)

	g := &Graph{
		types: types,
		decls: make(map[string]*Declaration, len(decls)),
		names: make([]string, 0, len(decls)),
		out:   make(map[string]*collection.OrderedSet[string], len(decls)),
		edges: make(map[[2]string]Edge),
	}

	var errs []error
	for i := range decls {
		d := &decls[i]
		switch {
		case d.Name == "":
			errs = append(errs, &InvalidDeclarationError{Reason: fmt.Sprintf("declaration #%d has no name", i)})
			continue
		case d.Target == "":
			errs = append(errs, &InvalidDeclarationError{Name: d.Name, Reason: "target type is empty"})
			continue
		}
		if _, dup := g.decls[d.Name]; dup {
			errs = append(errs, &InvalidDeclarationError{Name: d.Name, Reason: "declared more than once"})
			continue
		}

		g.decls[d.Name] = d
		g.names = append(g.names, d.Name)
		g.out[d.Name] = collection.NewOrderedSet[string]()
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	for _, a := range g.names {
		for _, b := range g.names {
			if a == b {
				continue
			}
			if via, ok := g.requires(g.decls[a], g.decls[b]); ok {
				g.addEdge(Edge{From: a, To: b, Kind: EdgeType, Via: via})
			}
		}
	}

	return g, nil
}

// requires reports whether a needs the target of b, and through which
// argument type.
func (g *Graph) requires(a, b *Declaration) (TypeID, bool) {
	for _, arg := range a.Args {
		for _, t := range g.types.Unpack(arg) {
			if g.types.Assignable(t, b.Target) || g.types.ProviderOf(b.Target, t) {
				return t, true
			}
		}
	}
	return "", false
}

func (g *Graph) addEdge(e Edge) {
	key := [2]string{e.From, e.To}
	if _, ok := g.edges[key]; ok {
		return
	}
	g.edges[key] = e
	g.out[e.From].Add(e.To)
}

func (g *Graph) removeEdge(from, to string) (Edge, bool) {
	key := [2]string{from, to}
	e, ok := g.edges[key]
	if !ok {
		return Edge{}, false
	}
	delete(g.edges, key)
	g.out[from].Remove(to)
	return e, true
}

// Edge returns the edge from -> to if present.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	e, ok := g.edges[[2]string{from, to}]
	return e, ok
}

// Requires reports whether from directly requires to.
func (g *Graph) Requires(from, to string) bool {
	deps, ok := g.out[from]
	return ok && deps.Contains(to)
}

// Names returns the initializer names in declaration order.
func (g *Graph) Names() []string {
	return slices.Clone(g.names)
}

func (g *Graph) Declaration(name string) (Declaration, bool) {
	d, ok := g.decls[name]
	if !ok {
		return Declaration{}, false
	}
	return *d, true
}

// Dependencies returns the names name directly requires.
func (g *Graph) Dependencies(name string) []string {
	deps, ok := g.out[name]
	if !ok || deps.Len() == 0 {
		return nil
	}
	return deps.Slice()
}

// Edges returns all edges ordered by source then target declaration order.
func (g *Graph) Edges() []Edge {
	edges := make([]Edge, 0, len(g.edges))
	for _, from := range g.names {
		for to := range g.out[from].All {
			edges = append(edges, g.edges[[2]string{from, to}])
		}
	}
	return edges
}

// Closure returns every initializer name transitively requires, nearest
// first. name itself is not included.
func (g *Graph) Closure(name string) []string {
	if _, ok := g.decls[name]; !ok {
		return nil
	}

	seen := map[string]struct{}{name: {}}
	var out []string
	queue := collection.NewQueue(name)
	for cur := range queue.Drain {
		for _, dep := range g.Dependencies(cur) {
			if _, ok := seen[dep]; ok {
				continue
			}
			seen[dep] = struct{}{}
			out = append(out, dep)
			queue.Push(dep)
		}
	}
	return out
}

// TargetConstructible reports whether the target of name can exist without
// its Init arguments.
func (g *Graph) TargetConstructible(name string) bool {
	d, ok := g.decls[name]
	if !ok {
		return false
	}
	return g.types.Constructible(d.Target)
}
