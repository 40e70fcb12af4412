package order

import (
	"fmt"
	"slices"
	"strings"
)

// UnresolvedCycleWarning reports initializers that require each other where
// no member can be constructed without another. Their relative order is
// whatever the stable traversal produced.
type UnresolvedCycleWarning struct {
	Initializers []string `json:"initializers"`
}

func (w UnresolvedCycleWarning) Message() string {
	return fmt.Sprintf(
		"initializers %s depend on each other and none can be constructed without the others; declare InitAfter on one of them to fix their order",
		strings.Join(w.Initializers, ", "),
	)
}

// NoticeCode categorizes non-fatal diagnostics produced while sorting.
type NoticeCode string

const (
	NoticeUnknownInitAfter      NoticeCode = "unknown-init-after"
	NoticeIgnoredInitAfter      NoticeCode = "ignored-init-after"
	NoticeCycleResolved         NoticeCode = "cycle-resolved"
	NoticeCycleInstanceFirst    NoticeCode = "cycle-instance-first"
	NoticeManualPriorityOrdered NoticeCode = "manual-priority-conflict"
)

// Notice is a diagnostic attached to one initializer.
type Notice struct {
	Code        NoticeCode `json:"code"`
	Initializer string     `json:"initializer"`
	Message     string     `json:"message"`
}

// stronglyConnected returns the strongly connected components of g using
// Tarjan's algorithm. Members of each component are in declaration order and
// components are ordered by their first member.
func stronglyConnected(g *Graph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int, len(g.names))
		lowlink = make(map[string]int, len(g.names))
		onStack = make(map[string]bool, len(g.names))
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for w := range g.out[v].All {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, name := range g.names {
		if _, visited := indices[name]; !visited {
			strongConnect(name)
		}
	}

	pos := make(map[string]int, len(g.names))
	for i, name := range g.names {
		pos[name] = i
	}
	for _, scc := range sccs {
		slices.SortFunc(scc, func(a, b string) int { return pos[a] - pos[b] })
	}
	slices.SortFunc(sccs, func(a, b []string) int { return pos[a[0]] - pos[b[0]] })

	return sccs
}

func componentIndex(sccs [][]string) map[string]int {
	idx := make(map[string]int)
	for i, scc := range sccs {
		for _, name := range scc {
			idx[name] = i
		}
	}
	return idx
}

// mergeInitAfter adds InitAfter edges to g.
//
// A user edge a -> b is dropped when type analysis says b requires a,
// directly or through other initializers, and that requirement is not part of
// a cycle: the data dependency wins. When b -> a is part of a cycle, the user
// edge is the explicit override for that cycle and replaces the type edge.
func mergeInitAfter(g *Graph) (dropped []Edge, notices []Notice) {
	comp := componentIndex(stronglyConnected(g))

	// closures over type edges only, taken before any user edge is added
	needs := make(map[string]map[string]struct{})
	for _, a := range g.names {
		for _, b := range g.decls[a].InitAfter {
			if _, ok := g.decls[b]; !ok || needs[b] != nil {
				continue
			}
			set := make(map[string]struct{})
			for _, dep := range g.Closure(b) {
				set[dep] = struct{}{}
			}
			needs[b] = set
		}
	}

	for _, a := range g.names {
		for _, b := range g.decls[a].InitAfter {
			if _, ok := g.decls[b]; !ok {
				notices = append(notices, Notice{
					Code:        NoticeUnknownInitAfter,
					Initializer: a,
					Message:     fmt.Sprintf("InitAfter refers to unknown initializer %q", b),
				})
				continue
			}
			if a == b {
				continue
			}

			if _, ok := needs[b][a]; ok && comp[a] != comp[b] {
				notices = append(notices, Notice{
					Code:        NoticeIgnoredInitAfter,
					Initializer: a,
					Message:     fmt.Sprintf("InitAfter(%s) ignored: %s requires %s's target", b, b, a),
				})
				continue
			}
			if g.Requires(b, a) {
				e, _ := g.removeEdge(b, a)
				dropped = append(dropped, e)
			}

			if existing, ok := g.Edge(a, b); ok {
				// keep the type edge but mark it as user-confirmed so the
				// heuristics never drop it
				existing.Kind = EdgeUser
				g.edges[[2]string{a, b}] = existing
				continue
			}
			g.addEdge(Edge{From: a, To: b, Kind: EdgeUser})
		}
	}

	return dropped, notices
}

// resolveCycles breaks cycles that the constructibility heuristic can decide
// and reports the rest.
//
// Inside a cycle, an edge u -> v is dropped when u's target can be
// constructed on its own and v's cannot: u is created first and v receives
// the not yet initialized u. User edges are never dropped.
func resolveCycles(g *Graph) (dropped []Edge, warnings []UnresolvedCycleWarning, notices []Notice) {
	sccs := stronglyConnected(g)
	comp := componentIndex(sccs)

	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		for _, u := range scc {
			for _, v := range g.out[u].Slice() {
				if comp[v] != comp[u] {
					continue
				}
				e := g.edges[[2]string{u, v}]
				if e.Kind == EdgeUser {
					continue
				}
				if g.TargetConstructible(u) && !g.TargetConstructible(v) {
					g.removeEdge(u, v)
					dropped = append(dropped, e)
					notices = append(notices, Notice{
						Code:        NoticeCycleResolved,
						Initializer: u,
						Message:     fmt.Sprintf("%s initializes before %s: its target can be constructed without %s", u, v, v),
					})
				}
			}
		}
	}

	for _, scc := range stronglyConnected(g) {
		if len(scc) < 2 {
			continue
		}

		allConstructible := true
		for _, name := range scc {
			if !g.TargetConstructible(name) {
				allConstructible = false
				break
			}
		}
		if allConstructible {
			notices = append(notices, Notice{
				Code:        NoticeCycleInstanceFirst,
				Initializer: scc[0],
				Message:     fmt.Sprintf("cycle %s is initialized instance-first", strings.Join(scc, " -> ")),
			})
			continue
		}

		warnings = append(warnings, UnresolvedCycleWarning{Initializers: scc})
	}

	return dropped, warnings, notices
}
