package manifest

import (
	"errors"
	"fmt"
	"slices"
)

// Pos is a location in a manifest file. Line and Column are 1-based; zero
// means unknown.
type Pos struct {
	File   string
	Line   int
	Column int
}

func (p Pos) IsValid() bool {
	return p.File != "" || p.Line > 0
}

func (p Pos) String() string {
	switch {
	case p.Line > 0:
		return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Column)
	case p.File != "":
		return p.File
	default:
		return "-"
	}
}

// LoadError is an error found while reading or validating a manifest.
type LoadError struct {
	Code    string
	Message string
	Pos     Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s: %s: %s", e.Pos, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes.
const (
	ErrCodeGeneric     = "E001"
	ErrCodeReadFailed  = "E002"
	ErrCodeNoFiles     = "E003"
	ErrCodeUnsupported = "E004"
	ErrCodeParseFailed = "E005"
	ErrCodeBuildFailed = "E006"
	ErrCodeWriteFailed = "E007"

	// declaration errors
	ErrCodeMissingName          = "E101"
	ErrCodeMissingTarget        = "E102"
	ErrCodeTooManyArguments     = "E103"
	ErrCodeDuplicateInitializer = "E104"
	ErrCodeDuplicateType        = "E105"
	ErrCodeEmptyTypeName        = "E106"
)

// Codes returns the error codes in err, which may be a joined error.
func Codes(err error) []string {
	var codes []string
	var walk func(err error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, e := range joined.Unwrap() {
				walk(e)
			}
			return
		}
		var le *LoadError
		if errors.As(err, &le) && !slices.Contains(codes, le.Code) {
			codes = append(codes, le.Code)
		}
	}
	walk(err)
	return codes
}

// Validate reports every malformed declaration in m as a joined error of
// *LoadError.
func (m *Manifest) Validate() error {
	var errs []error
	add := func(code string, pos Pos, format string, args ...any) {
		errs = append(errs, &LoadError{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos})
	}

	seenTypes := make(map[string]Pos)
	for i, t := range m.Types {
		if t.Name == "" {
			add(ErrCodeEmptyTypeName, t.Pos, "type #%d has no name", i)
			continue
		}
		if prev, dup := seenTypes[t.Name]; dup {
			add(ErrCodeDuplicateType, t.Pos, "type %q already declared at %s", t.Name, prev)
			continue
		}
		seenTypes[t.Name] = t.Pos
		for _, ref := range slices.Concat(t.Implements, t.Provides, t.Elements) {
			if ref == "" {
				add(ErrCodeEmptyTypeName, t.Pos, "type %q references an empty type name", t.Name)
				break
			}
		}
	}

	seen := make(map[string]Pos)
	for i, init := range m.Initializers {
		switch {
		case init.Name == "":
			add(ErrCodeMissingName, init.Pos, "initializer #%d has no name", i)
			continue
		case init.Target == "":
			add(ErrCodeMissingTarget, init.Pos, "initializer %q has no target", init.Name)
		case len(init.Args) > MaxArguments:
			add(ErrCodeTooManyArguments, init.Pos, "initializer %q declares %d arguments, at most %d are supported", init.Name, len(init.Args), MaxArguments)
		case slices.Contains(init.Args, ""):
			add(ErrCodeEmptyTypeName, init.Pos, "initializer %q has an argument without a type", init.Name)
		}
		if prev, dup := seen[init.Name]; dup {
			add(ErrCodeDuplicateInitializer, init.Pos, "initializer %q already declared at %s", init.Name, prev)
			continue
		}
		seen[init.Name] = init.Pos
	}

	return errors.Join(errs...)
}

// UnknownType is an argument type that no initializer targets and no type
// entry declares. Values of it can only come from literals, references or
// services.
type UnknownType struct {
	Initializer string
	Type        string
	Pos         Pos
}

// UnknownTypes lists the argument types m knows nothing about.
func (m *Manifest) UnknownTypes() []UnknownType {
	known := make(map[string]struct{}, len(m.Types)+len(m.Initializers))
	for _, t := range m.Types {
		known[t.Name] = struct{}{}
		for _, ref := range slices.Concat(t.Implements, t.Provides, t.Elements) {
			known[ref] = struct{}{}
		}
	}
	for _, init := range m.Initializers {
		known[init.Target] = struct{}{}
	}

	var unknown []UnknownType
	for _, init := range m.Initializers {
		for _, arg := range init.Args {
			if _, ok := known[arg]; ok {
				continue
			}
			unknown = append(unknown, UnknownType{Initializer: init.Name, Type: arg, Pos: init.Pos})
		}
	}
	return unknown
}
