// Package manifest loads initializer declarations from YAML or CUE files.
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/mazrean/initargs/internal/order"
)

// MaxArguments is the largest number of Init parameters an initializer may
// declare.
const MaxArguments = 12

// Manifest describes a set of types and the initializers that produce them.
type Manifest struct {
	// Assembly is the default assembly of the types and initializers below.
	Assembly     string        `yaml:"assembly,omitempty" json:"assembly,omitempty"`
	Types        []Type        `yaml:"types,omitempty" json:"types,omitempty"`
	Initializers []Initializer `yaml:"initializers" json:"initializers"`
}

// Type describes one type. Types only referenced by initializers need no
// entry.
type Type struct {
	Name          string   `yaml:"name" json:"name"`
	Assembly      string   `yaml:"assembly,omitempty" json:"assembly,omitempty"`
	Implements    []string `yaml:"implements,omitempty" json:"implements,omitempty"`
	Provides      []string `yaml:"provides,omitempty" json:"provides,omitempty"`
	Elements      []string `yaml:"elements,omitempty" json:"elements,omitempty"`
	Constructible bool     `yaml:"constructible,omitempty" json:"constructible,omitempty"`

	Pos Pos `yaml:"-" json:"-"`
}

// Initializer declares one initializer type.
type Initializer struct {
	Name      string   `yaml:"name" json:"name"`
	Target    string   `yaml:"target" json:"target"`
	Args      []string `yaml:"args,omitempty" json:"args,omitempty"`
	InitAfter []string `yaml:"initAfter,omitempty" json:"initAfter,omitempty"`
	Priority  *int     `yaml:"priority,omitempty" json:"priority,omitempty"`
	Assembly  string   `yaml:"assembly,omitempty" json:"assembly,omitempty"`

	Pos Pos `yaml:"-" json:"-"`
}

// Load reads a manifest. The format is chosen by extension: .yaml and .yml
// are YAML, .cue is CUE.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: err.Error(), Pos: Pos{File: path}}
	}

	var m *Manifest
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		m, err = ParseYAML(path, data)
	case ".cue":
		m, err = ParseCUE(path, data)
	default:
		return nil, &LoadError{Code: ErrCodeUnsupported, Message: fmt.Sprintf("unsupported manifest extension %q", ext), Pos: Pos{File: path}}
	}
	if err != nil {
		return nil, err
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadAll loads every path and merges the manifests. Each file's assembly
// is applied to its own entries before merging.
func LoadAll(paths ...string) (*Manifest, error) {
	if len(paths) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no manifest files given"}
	}

	manifests := make([]*Manifest, 0, len(paths))
	for _, path := range paths {
		m, err := Load(path)
		if err != nil {
			return nil, err
		}
		manifests = append(manifests, m)
	}

	return Merge(manifests...)
}

// Merge combines manifests into one. Types declared more than once are
// merged when they agree on their assembly; initializers must be unique.
func Merge(manifests ...*Manifest) (*Manifest, error) {
	merged := &Manifest{}
	types := make(map[string]int)

	for _, m := range manifests {
		m = m.resolved()
		for _, t := range m.Types {
			idx, ok := types[t.Name]
			if !ok {
				types[t.Name] = len(merged.Types)
				merged.Types = append(merged.Types, t)
				continue
			}
			prev := &merged.Types[idx]
			if prev.Assembly != t.Assembly {
				return nil, &LoadError{
					Code:    ErrCodeDuplicateType,
					Message: fmt.Sprintf("type %q declared in assemblies %q and %q (first at %s)", t.Name, prev.Assembly, t.Assembly, prev.Pos),
					Pos:     t.Pos,
				}
			}
			prev.Implements = union(prev.Implements, t.Implements)
			prev.Provides = union(prev.Provides, t.Provides)
			if len(prev.Elements) == 0 {
				prev.Elements = t.Elements
			}
			prev.Constructible = prev.Constructible || t.Constructible
		}
		merged.Initializers = append(merged.Initializers, m.Initializers...)
	}

	if err := merged.Validate(); err != nil {
		return nil, err
	}
	return merged, nil
}

// resolved returns a copy of m with the file-level assembly pushed down to
// every entry.
func (m *Manifest) resolved() *Manifest {
	out := &Manifest{
		Types:        slices.Clone(m.Types),
		Initializers: slices.Clone(m.Initializers),
	}
	for i := range out.Types {
		if out.Types[i].Assembly == "" {
			out.Types[i].Assembly = m.Assembly
		}
	}
	for i := range out.Initializers {
		if out.Initializers[i].Assembly == "" {
			out.Initializers[i].Assembly = m.Assembly
		}
	}
	return out
}

// Declarations converts m into the input of the execution-order sorter.
// Targets without a type entry get one in their initializer's assembly.
func (m *Manifest) Declarations() ([]order.Declaration, *order.Types) {
	r := m.resolved()

	types := order.NewTypes()
	for _, t := range r.Types {
		types.Add(order.TypeInfo{
			ID:            order.TypeID(t.Name),
			Assembly:      t.Assembly,
			Implements:    typeIDs(t.Implements),
			Provides:      typeIDs(t.Provides),
			Elements:      typeIDs(t.Elements),
			Constructible: t.Constructible,
		})
	}

	decls := make([]order.Declaration, 0, len(r.Initializers))
	for _, init := range r.Initializers {
		target := order.TypeID(init.Target)
		if _, ok := types.Lookup(target); !ok {
			types.Add(order.TypeInfo{ID: target, Assembly: init.Assembly})
		}
		decls = append(decls, order.Declaration{
			Name:      init.Name,
			Target:    target,
			Args:      typeIDs(init.Args),
			InitAfter: slices.Clone(init.InitAfter),
			Priority:  init.Priority,
			Assembly:  init.Assembly,
		})
	}
	return decls, types
}

// WriteYAML encodes m as YAML.
func (m *Manifest) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	return enc.Close()
}

// normalize puts every name in NFC so that visually identical names compare
// equal.
func (m *Manifest) normalize() {
	m.Assembly = norm.NFC.String(m.Assembly)
	for i := range m.Types {
		t := &m.Types[i]
		t.Name = norm.NFC.String(t.Name)
		t.Assembly = norm.NFC.String(t.Assembly)
		normalizeAll(t.Implements)
		normalizeAll(t.Provides)
		normalizeAll(t.Elements)
	}
	for i := range m.Initializers {
		init := &m.Initializers[i]
		init.Name = norm.NFC.String(init.Name)
		init.Target = norm.NFC.String(init.Target)
		init.Assembly = norm.NFC.String(init.Assembly)
		normalizeAll(init.Args)
		normalizeAll(init.InitAfter)
	}
}

func normalizeAll(names []string) {
	for i, name := range names {
		names[i] = norm.NFC.String(name)
	}
}

func typeIDs(names []string) []order.TypeID {
	if len(names) == 0 {
		return nil
	}
	ids := make([]order.TypeID, len(names))
	for i, name := range names {
		ids[i] = order.TypeID(name)
	}
	return ids
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
