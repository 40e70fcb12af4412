package order

import (
	"fmt"
	"strings"
)

// DOT renders the result as Graphviz DOT. Nodes are labeled with their
// priority; user edges are dashed and dropped edges are drawn in gray.
func (r *Result) DOT() string {
	var b strings.Builder
	b.WriteString("digraph initargs {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[string]string, len(r.Entries))
	for i, e := range r.Entries {
		alias := fmt.Sprintf("n%d", i)
		aliases[e.Name] = alias
		label := fmt.Sprintf("%s\\n%d", escapeDOT(e.Name), e.Priority)
		if e.Manual {
			label += " (manual)"
		}
		fmt.Fprintf(&b, "  %s [label=\"%s\"];\n", alias, label)
	}

	writeEdge := func(e Edge, attrs ...string) {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			return
		}
		if e.Via != "" {
			attrs = append(attrs, fmt.Sprintf("label=\"%s\"", escapeDOT(string(e.Via))))
		}
		if len(attrs) == 0 {
			fmt.Fprintf(&b, "  %s -> %s;\n", from, to)
			return
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", from, to, strings.Join(attrs, ", "))
	}
	for _, e := range r.Edges {
		if e.Kind == EdgeUser {
			writeEdge(e, "style=dashed")
			continue
		}
		writeEdge(e)
	}
	for _, e := range r.Dropped {
		writeEdge(e, "color=gray", "style=dotted")
	}

	b.WriteString("}\n")
	return b.String()
}

// Mermaid renders the result as a Mermaid flowchart.
func (r *Result) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[string]string, len(r.Entries))
	for i, e := range r.Entries {
		alias := fmt.Sprintf("n%d", i)
		aliases[e.Name] = alias
		fmt.Fprintf(&b, "    %s[\"%s<br/>%d\"]\n", alias, escapeMermaid(e.Name), e.Priority)
	}
	for _, e := range r.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		arrow := "-->"
		if e.Kind == EdgeUser {
			arrow = "-.->"
		}
		fmt.Fprintf(&b, "    %s %s %s\n", from, arrow, to)
	}
	return b.String()
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}
