// Package scan discovers initializer declarations in Go source.
//
// A target is a named type with a method
//
//	func (t *T) Init(args initargs.Args) error
//
// Its parameter types are read from the initargs.Arg[P](args, i) calls in
// the method body. Directives in the method's doc comment add what the
// source cannot express:
//
//	//initargs:after OtherInit
//	//initargs:priority 10
//	//initargs:constructible
//	//initargs:name CustomInit
package scan

import (
	"cmp"
	"fmt"
	"go/ast"
	"go/constant"
	"go/types"
	"log/slog"
	"slices"

	"golang.org/x/tools/go/packages"

	"github.com/mazrean/initargs/internal/manifest"
)

const initargsPath = "github.com/mazrean/initargs"

// Warning is a finding that does not stop the scan.
type Warning struct {
	Pos     string
	Message string
}

func (w Warning) String() string {
	if w.Pos == "" {
		return w.Message
	}
	return w.Pos + ": " + w.Message
}

// Result is the outcome of a scan.
type Result struct {
	Manifest *manifest.Manifest
	Warnings []Warning
}

// Scanner loads packages and extracts their initializer declarations.
type Scanner struct {
	dir    string
	logger *slog.Logger
}

type Option func(*Scanner)

// WithDir sets the directory packages are loaded from.
func WithDir(dir string) Option {
	return func(s *Scanner) {
		s.dir = dir
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scanner) {
		s.logger = logger
	}
}

func NewScanner(opts ...Option) *Scanner {
	s := &Scanner{logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// target is one discovered Init method.
type target struct {
	pkg      *packages.Package
	recv     types.Type
	decl     *ast.FuncDecl
	params   []types.Type
	warnings []Warning
}

// Scan loads the packages matching patterns and returns the manifest of the
// initializers found in them.
func (s *Scanner) Scan(patterns ...string) (*Result, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles | packages.NeedImports |
			packages.NeedTypes | packages.NeedSyntax | packages.NeedTypesInfo,
		Dir: s.dir,
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("load packages: %w", err)
	}

	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			return nil, fmt.Errorf("package %s: %w", pkg.PkgPath, pkg.Errors[0])
		}
	}

	result := &Result{Manifest: &manifest.Manifest{}}
	var targets []*target
	for _, pkg := range pkgs {
		found := s.scanPackage(pkg)
		s.logger.Debug("package scanned", slog.String("package", pkg.PkgPath), slog.Int("initializers", len(found)))
		targets = append(targets, found...)
	}

	s.build(result, targets)
	return result, nil
}

func (s *Scanner) scanPackage(pkg *packages.Package) []*target {
	var targets []*target
	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || fn.Name.Name != "Init" || fn.Body == nil {
				continue
			}
			obj, ok := pkg.TypesInfo.Defs[fn.Name].(*types.Func)
			if !ok || !isInitSignature(obj.Type().(*types.Signature)) {
				continue
			}

			t := &target{
				pkg:  pkg,
				recv: obj.Type().(*types.Signature).Recv().Type(),
				decl: fn,
			}
			s.collectParams(t)
			targets = append(targets, t)
		}
	}
	return targets
}

// isInitSignature reports whether sig is func(initargs.Args) error.
func isInitSignature(sig *types.Signature) bool {
	if sig.Params().Len() != 1 || sig.Results().Len() != 1 {
		return false
	}
	if !isInitargs(sig.Params().At(0).Type(), "Args") {
		return false
	}
	return types.Identical(sig.Results().At(0).Type(), types.Universe.Lookup("error").Type())
}

func isInitargs(t types.Type, name string) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	obj := named.Obj()
	return obj.Pkg() != nil && obj.Pkg().Path() == initargsPath && obj.Name() == name
}

// collectParams reads the initargs.Arg calls of the Init body.
func (s *Scanner) collectParams(t *target) {
	info := t.pkg.TypesInfo
	fset := t.pkg.Fset

	ast.Inspect(t.decl.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok || len(call.Args) != 2 {
			return true
		}
		ident := argFuncIdent(call.Fun)
		if ident == nil {
			return true
		}
		fn, ok := info.Uses[ident].(*types.Func)
		if !ok || fn.Pkg() == nil || fn.Pkg().Path() != initargsPath || fn.Name() != "Arg" {
			return true
		}
		inst, ok := info.Instances[ident]
		if !ok || inst.TypeArgs.Len() != 1 {
			return true
		}

		tv, ok := info.Types[call.Args[1]]
		if !ok || tv.Value == nil || tv.Value.Kind() != constant.Int {
			t.warnings = append(t.warnings, Warning{
				Pos:     fset.Position(call.Pos()).String(),
				Message: "argument index is not a constant, the call is ignored",
			})
			return true
		}
		idx, exact := constant.Int64Val(tv.Value)
		if !exact || idx < 0 || idx >= manifest.MaxArguments {
			t.warnings = append(t.warnings, Warning{
				Pos:     fset.Position(call.Pos()).String(),
				Message: fmt.Sprintf("argument index %s is out of range", tv.Value),
			})
			return true
		}

		for int(idx) >= len(t.params) {
			t.params = append(t.params, nil)
		}
		param := inst.TypeArgs.At(0)
		if prev := t.params[idx]; prev != nil && !types.Identical(prev, param) {
			t.warnings = append(t.warnings, Warning{
				Pos:     fset.Position(call.Pos()).String(),
				Message: fmt.Sprintf("argument #%d read as both %s and %s", idx, typeID(prev), typeID(param)),
			})
			return true
		}
		t.params[idx] = param
		return true
	})
}

// argFuncIdent returns the identifier of an explicitly instantiated call such
// as initargs.Arg[T] or Arg[T].
func argFuncIdent(fun ast.Expr) *ast.Ident {
	idx, ok := fun.(*ast.IndexExpr)
	if !ok {
		return nil
	}
	switch x := idx.X.(type) {
	case *ast.SelectorExpr:
		return x.Sel
	case *ast.Ident:
		return x
	default:
		return nil
	}
}

// build turns the discovered targets into the manifest.
func (s *Scanner) build(result *Result, targets []*target) {
	m := result.Manifest

	slices.SortStableFunc(targets, func(a, b *target) int {
		return cmp.Or(
			cmp.Compare(a.pkg.PkgPath, b.pkg.PkgPath),
			cmp.Compare(typeID(a.recv), typeID(b.recv)),
		)
	})

	var ifaces []*types.Interface
	var ifaceTypes []types.Type
	tuples := make(map[string][]string)
	var tupleOrder []string
	for _, t := range targets {
		for _, p := range t.params {
			if p == nil {
				continue
			}
			for _, leaf := range append([]types.Type{p}, tupleFields(p)...) {
				if iface, ok := leaf.Underlying().(*types.Interface); ok && !iface.Empty() && !slices.ContainsFunc(ifaceTypes, func(e types.Type) bool { return types.Identical(e, leaf) }) {
					ifaces = append(ifaces, iface)
					ifaceTypes = append(ifaceTypes, leaf)
				}
			}
			if fields := tupleFields(p); len(fields) > 0 {
				id := typeID(p)
				if _, seen := tuples[id]; !seen {
					tupleOrder = append(tupleOrder, id)
					for _, f := range fields {
						tuples[id] = append(tuples[id], typeID(f))
					}
				}
			}
		}
	}

	for _, t := range targets {
		d := directivesOf(t.decl)
		result.Warnings = append(result.Warnings, t.warnings...)
		result.Warnings = append(result.Warnings, d.warnings...)

		name := d.name
		if name == "" {
			name = baseName(t.recv) + "Init"
		}

		init := manifest.Initializer{
			Name:      name,
			Target:    typeID(t.recv),
			InitAfter: d.after,
			Priority:  d.priority,
			Assembly:  t.pkg.PkgPath,
		}
		for k, p := range t.params {
			if p == nil {
				result.Warnings = append(result.Warnings, Warning{
					Pos:     t.pkg.Fset.Position(t.decl.Pos()).String(),
					Message: fmt.Sprintf("%s: argument #%d is never read, declared as any", name, k),
				})
				init.Args = append(init.Args, "any")
				continue
			}
			init.Args = append(init.Args, typeID(p))
		}
		m.Initializers = append(m.Initializers, init)

		typ := manifest.Type{
			Name:          typeID(t.recv),
			Assembly:      t.pkg.PkgPath,
			Constructible: d.constructible,
		}
		for k, iface := range ifaces {
			if types.Implements(t.recv, iface) && !types.Identical(t.recv, ifaceTypes[k]) {
				typ.Implements = append(typ.Implements, typeID(ifaceTypes[k]))
			}
		}
		if typ.Constructible || len(typ.Implements) > 0 {
			m.Types = append(m.Types, typ)
		}
	}

	for _, id := range tupleOrder {
		m.Types = append(m.Types, manifest.Type{Name: id, Elements: tuples[id]})
	}

	s.logger.Info("scan finished",
		slog.Int("initializers", len(m.Initializers)),
		slog.Int("warnings", len(result.Warnings)),
	)
}

// tupleFields returns the field types of a struct embedding initargs.Tuple
// as its first field.
func tupleFields(t types.Type) []types.Type {
	st, ok := t.Underlying().(*types.Struct)
	if !ok || st.NumFields() == 0 {
		return nil
	}
	if f := st.Field(0); !f.Embedded() || !isInitargs(f.Type(), "Tuple") {
		return nil
	}

	fields := make([]types.Type, 0, st.NumFields()-1)
	for i := 1; i < st.NumFields(); i++ {
		fields = append(fields, st.Field(i).Type())
	}
	return fields
}

// typeID names t the way the runtime catalog does: package path qualified
// named types, "*" for pointers to them.
func typeID(t types.Type) string {
	switch tt := t.(type) {
	case *types.Pointer:
		if _, ok := tt.Elem().(*types.Named); ok {
			return "*" + typeID(tt.Elem())
		}
	case *types.Named:
		if pkg := tt.Obj().Pkg(); pkg != nil {
			return pkg.Path() + "." + tt.Obj().Name()
		}
		return tt.Obj().Name()
	case *types.Alias:
		return typeID(types.Unalias(tt))
	}
	return types.TypeString(t, func(p *types.Package) string { return p.Name() })
}

func baseName(t types.Type) string {
	if ptr, ok := t.(*types.Pointer); ok {
		t = ptr.Elem()
	}
	if named, ok := t.(*types.Named); ok {
		return named.Obj().Name()
	}
	return types.TypeString(t, nil)
}
