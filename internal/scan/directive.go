package scan

import (
	"fmt"
	"go/ast"
	"strconv"
	"strings"
)

const directivePrefix = "//initargs:"

type directives struct {
	name          string
	after         []string
	priority      *int
	constructible bool
	warnings      []Warning
}

// directivesOf parses the //initargs: lines of fn's doc comment.
func directivesOf(fn *ast.FuncDecl) directives {
	var d directives
	if fn.Doc == nil {
		return d
	}

	for _, c := range fn.Doc.List {
		text, ok := strings.CutPrefix(c.Text, directivePrefix)
		if !ok {
			continue
		}
		key, value, _ := strings.Cut(strings.TrimSpace(text), " ")
		value = strings.TrimSpace(value)

		switch key {
		case "name":
			d.name = value
		case "after":
			d.after = append(d.after, strings.Fields(value)...)
		case "priority":
			p, err := strconv.Atoi(value)
			if err != nil {
				d.warnings = append(d.warnings, Warning{Message: fmt.Sprintf("%s: invalid priority %q", fn.Name.Name, value)})
				continue
			}
			d.priority = &p
		case "constructible":
			d.constructible = true
		default:
			d.warnings = append(d.warnings, Warning{Message: fmt.Sprintf("unknown directive %q", directivePrefix+key)})
		}
	}
	return d
}
