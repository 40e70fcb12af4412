package initargs

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"slices"
	"sync"

	"github.com/mazrean/initargs/internal/order"
)

// Declaration is the static description of an initializer type.
type Declaration struct {
	// Name identifies the initializer type.
	Name string

	// Target is the type the initializer produces.
	Target reflect.Type

	// Params are the parameter types of the target's Init, in order.
	Params []reflect.Type

	// InitAfter names initializers that must run before this one.
	InitAfter []string

	// Priority fixes the execution order of this initializer. It is never
	// renumbered.
	Priority *int

	// Assembly groups initializers built together. Defaults to the target's
	// package path.
	Assembly string

	// Constructible reports that the target can be created without its Init
	// arguments.
	Constructible bool

	// Provides lists the value types the target supplies when used as a
	// value provider.
	Provides []reflect.Type
}

// ExecutionOrder is a computed priority table.
type ExecutionOrder = order.Result

// OrderEntry is one row of an ExecutionOrder.
type OrderEntry = order.Entry

// Catalog is the registry of initializer declarations. It answers tooling
// queries and computes the execution order.
type Catalog struct {
	logger *slog.Logger
	cache  *order.Cache

	mu     sync.RWMutex
	decls  []Declaration
	byName map[string]int
	// implements maps a target type to the interface parameter types it
	// implements, computed on Declare.
	implements map[reflect.Type][]reflect.Type
}

func NewCatalog(opts ...Option) *Catalog {
	o := newOptions(opts)
	c := &Catalog{
		logger:     o.logger,
		byName:     make(map[string]int),
		implements: make(map[reflect.Type][]reflect.Type),
	}
	c.cache = order.NewCache(c.snapshot, order.NewSorter(order.WithLogger(o.logger)))
	return c
}

// Declare registers d and invalidates the execution order.
func (c *Catalog) Declare(d Declaration) error {
	switch {
	case d.Name == "":
		return &InvalidInitializerShapeError{Target: d.Target, Reason: "declaration has no name"}
	case d.Target == nil:
		return &InvalidInitializerShapeError{Initializer: d.Name, Reason: "declaration has no target type"}
	case len(d.Params) > MaxArguments:
		return fmt.Errorf("%s: %w", d.Name, ErrTooManyArguments)
	}
	for i, p := range d.Params {
		if p == nil {
			return &InvalidInitializerShapeError{Initializer: d.Name, Target: d.Target, Reason: fmt.Sprintf("parameter #%d has no type", i)}
		}
	}

	d.Params = slices.Clone(d.Params)
	d.InitAfter = slices.Clone(d.InitAfter)
	d.Provides = slices.Clone(d.Provides)
	if d.Priority != nil {
		p := *d.Priority
		d.Priority = &p
	}

	c.mu.Lock()
	if _, dup := c.byName[d.Name]; dup {
		c.mu.Unlock()
		return fmt.Errorf("%s: %w", d.Name, ErrDuplicateDeclaration)
	}
	c.byName[d.Name] = len(c.decls)
	c.decls = append(c.decls, d)
	c.computeImplements()
	c.mu.Unlock()

	c.logger.Debug("initializer declared",
		slog.String("initializer", d.Name),
		slog.String("target", typeName(d.Target)),
	)
	c.cache.Invalidate()
	return nil
}

// DeclareAll registers every declaration and returns the joined errors.
func (c *Catalog) DeclareAll(decls ...Declaration) error {
	var errs []error
	for _, d := range decls {
		if err := c.Declare(d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// computeImplements matches every target type against every interface
// parameter type. c.mu must be held.
func (c *Catalog) computeImplements() {
	var ifaces []reflect.Type
	for _, d := range c.decls {
		for _, p := range flattenParams(d.Params) {
			if p.Kind() == reflect.Interface && !slices.Contains(ifaces, p) {
				ifaces = append(ifaces, p)
			}
		}
	}

	clear(c.implements)
	for _, d := range c.decls {
		if _, done := c.implements[d.Target]; done {
			continue
		}
		impls := []reflect.Type{}
		for _, iface := range ifaces {
			if d.Target != iface && d.Target.Implements(iface) {
				impls = append(impls, iface)
			}
		}
		c.implements[d.Target] = impls
	}
}

func flattenParams(params []reflect.Type) []reflect.Type {
	var out []reflect.Type
	for _, p := range params {
		if elems := tupleElements(p); len(elems) > 0 {
			out = append(out, flattenParams(elems)...)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Declarations returns the registered declarations in registration order.
func (c *Catalog) Declarations() []Declaration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.decls)
}

// GetInitParameterTypes returns the Init parameter types declared for
// target, or nil if no declaration targets it.
func (c *Catalog) GetInitParameterTypes(target reflect.Type) []reflect.Type {
	params, _ := c.initParameterTypes(target)
	return params
}

func (c *Catalog) initParameterTypes(target reflect.Type) ([]reflect.Type, bool) {
	d, ok := c.declarationFor(target)
	return d.Params, ok
}

// declarationFor returns the first declaration targeting target.
func (c *Catalog) declarationFor(target reflect.Type) (Declaration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, d := range c.decls {
		if d.Target == target {
			d.Params = slices.Clone(d.Params)
			return d, true
		}
	}
	return Declaration{}, false
}

// GetInitializerTypesFor returns the names of initializers whose target can
// be used as a target.
func (c *Catalog) GetInitializerTypesFor(target reflect.Type) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var names []string
	for _, d := range c.decls {
		if d.Target == target || d.Target.AssignableTo(target) {
			names = append(names, d.Name)
		}
	}
	return names
}

// ExecutionOrder returns the current priority table, rebuilding it if the
// declarations changed since it was computed.
func (c *Catalog) ExecutionOrder() (*ExecutionOrder, error) {
	return c.cache.Table()
}

// Priority returns the execution priority of the named initializer.
func (c *Catalog) Priority(name string) (int, bool) {
	table, err := c.cache.Table()
	if err != nil {
		return 0, false
	}
	return table.Priority(name)
}

// Invalidate forces the next ExecutionOrder call to recompute the table.
func (c *Catalog) Invalidate() {
	c.cache.Invalidate()
}

// Seed provides priorities from an earlier run, e.g. loaded from disk.
// They are kept where they still agree with the dependency order.
func (c *Catalog) Seed(priorities map[string]int) {
	c.cache.Seed(priorities)
}

func (c *Catalog) snapshot() ([]order.Declaration, *order.Types, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	infos := make(map[order.TypeID]*order.TypeInfo)
	var ids []order.TypeID
	info := func(t reflect.Type) *order.TypeInfo {
		id := typeID(t)
		if ti, ok := infos[id]; ok {
			return ti
		}
		ti := &order.TypeInfo{ID: id, Assembly: packagePath(t)}
		infos[id] = ti
		ids = append(ids, id)
		return ti
	}
	var registerParam func(t reflect.Type)
	registerParam = func(t reflect.Type) {
		ti := info(t)
		if len(ti.Elements) > 0 {
			return
		}
		for _, elem := range tupleElements(t) {
			ti.Elements = append(ti.Elements, typeID(elem))
			registerParam(elem)
		}
	}

	decls := make([]order.Declaration, 0, len(c.decls))
	for _, d := range c.decls {
		target := info(d.Target)
		target.Constructible = target.Constructible || d.Constructible
		for _, impl := range c.implements[d.Target] {
			if id := typeID(impl); !slices.Contains(target.Implements, id) {
				target.Implements = append(target.Implements, id)
			}
		}
		for _, p := range d.Provides {
			if id := typeID(p); !slices.Contains(target.Provides, id) {
				target.Provides = append(target.Provides, id)
			}
		}

		od := order.Declaration{
			Name:      d.Name,
			Target:    target.ID,
			InitAfter: slices.Clone(d.InitAfter),
			Priority:  d.Priority,
			Assembly:  d.Assembly,
		}
		for _, p := range d.Params {
			registerParam(p)
			od.Args = append(od.Args, typeID(p))
		}
		decls = append(decls, od)
	}

	types := order.NewTypes()
	for _, id := range ids {
		types.Add(*infos[id])
	}
	return decls, types, nil
}

func typeID(t reflect.Type) order.TypeID {
	switch {
	case t.Kind() == reflect.Pointer && t.Name() == "":
		return "*" + typeID(t.Elem())
	case t.Name() != "" && t.PkgPath() != "":
		return order.TypeID(t.PkgPath() + "." + t.Name())
	default:
		return order.TypeID(t.String())
	}
}

func packagePath(t reflect.Type) string {
	for t.Kind() == reflect.Pointer && t.Name() == "" {
		t = t.Elem()
	}
	return t.PkgPath()
}
