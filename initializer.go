package initargs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NullGuard selects what happens when a slot resolves to Missing.
type NullGuard uint8

const (
	// GuardNone passes nil to Init.
	GuardNone NullGuard = 0
	// GuardEditorWarning logs a warning.
	GuardEditorWarning NullGuard = 1 << 0
	// GuardRuntimeException fails initialization outside editor contexts.
	GuardRuntimeException NullGuard = 1 << 1

	GuardDefault = GuardEditorWarning | GuardRuntimeException
)

// Disposer is implemented by arguments that release resources on Dispose.
type Disposer interface {
	Dispose()
}

// Definition describes how an Initializer obtains its target and
// arguments.
type Definition[T Target] struct {
	// Name identifies the initializer in diagnostics and in the execution
	// order. Defaults to "Initializer[<target type>]".
	Name string

	// Target is an existing target. When set it is initialized in place
	// (or through Clone).
	Target T

	// New creates an empty target. Initializers with a Target or New
	// create the instance before resolving arguments, which lets two
	// targets reference each other.
	New func() T

	// Construct creates the target from resolved arguments. It is used
	// when neither Target nor New is set; the returned target is
	// considered initialized.
	Construct func(args Args) (T, error)

	// Clone, when set together with Target, produces the instance to
	// initialize from Target.
	Clone func(T) T

	Args []Slot

	// Guards holds one NullGuard per argument. Nil means GuardDefault for
	// every argument.
	Guards []NullGuard

	// Dispose flags arguments released when the target is destroyed. Any
	// flag keeps the initializer alive after initialization.
	Dispose []bool

	// Persist keeps the initializer after initialization even without
	// dispose flags.
	Persist bool

	// DisableWhileResolving disables the target while async arguments are
	// awaited.
	DisableWhileResolving bool
}

type phase uint8

const (
	phaseIdle phase = iota
	phaseResolving
	phaseAwaiting
	phaseDone
)

// Initializer resolves the arguments of one target and initializes it.
//
// Apart from ID, Name and Stale, methods must be called from the host's
// logical thread.
type Initializer[T Target] struct {
	id         uuid.UUID
	name       string
	def        Definition[T]
	targetType reflect.Type
	hasTarget  bool

	host    Host
	locator Locator
	logger  *slog.Logger

	phase       phase
	instance    T
	hasInstance bool
	result      T
	err         error
	args        Args
	pending     *Future[T]
	toggled     []Toggler

	stale      atomic.Bool
	mu         sync.Mutex
	subscribed []reflect.Type
}

func NewInitializer[T Target](def Definition[T], opts ...Option) (*Initializer[T], error) {
	o := newOptions(opts)

	targetType := reflect.TypeFor[T]()
	name := def.Name
	if name == "" {
		name = "Initializer[" + targetType.String() + "]"
	}
	shapeErr := func(format string, args ...any) error {
		return &InvalidInitializerShapeError{
			Initializer: name,
			Target:      targetType,
			Reason:      fmt.Sprintf(format, args...),
		}
	}

	hasTarget := !isNil(any(def.Target))
	switch {
	case len(def.Args) > MaxArguments:
		return nil, fmt.Errorf("%s: %w", name, ErrTooManyArguments)
	case len(def.Args) == 0:
		return nil, shapeErr("no arguments")
	case !hasTarget && def.New == nil && def.Construct == nil:
		return nil, shapeErr("no existing target, New or Construct")
	case def.Guards != nil && len(def.Guards) != len(def.Args):
		return nil, shapeErr("%d guards for %d arguments", len(def.Guards), len(def.Args))
	case def.Dispose != nil && len(def.Dispose) != len(def.Args):
		return nil, shapeErr("%d dispose flags for %d arguments", len(def.Dispose), len(def.Args))
	}
	for i, slot := range def.Args {
		if slot == nil {
			return nil, shapeErr("argument #%d has no slot", i)
		}
	}

	if o.catalog != nil {
		if decl, ok := o.catalog.declarationFor(targetType); ok {
			params := decl.Params
			if len(params) != len(def.Args) {
				return nil, shapeErr("Init takes %d arguments (%s), %d given", len(params), typeNames(params), len(def.Args))
			}
			for i, slot := range def.Args {
				if !slot.Type().AssignableTo(params[i]) {
					return nil, shapeErr("argument #%d: %s is not assignable to %s", i, typeName(slot.Type()), typeName(params[i]))
				}
			}
		}
	}

	id := uuid.Must(uuid.NewV7())
	logger := o.logger.With(slog.String("initializer", name), slog.String("id", id.String()))
	if o.catalog != nil {
		checkConstructible(logger, o.catalog, targetType, hasTarget || def.New != nil)
	}
	return &Initializer[T]{
		id:         id,
		name:       name,
		def:        def,
		targetType: targetType,
		hasTarget:  hasTarget,
		host:       o.host,
		locator:    o.locator,
		logger:     logger,
	}, nil
}

// checkConstructible warns when the catalog orders cycles on a different
// creation strategy than the one this initializer uses.
func checkConstructible(logger *slog.Logger, c *Catalog, target reflect.Type, instanceFirst bool) {
	decl, ok := c.declarationFor(target)
	if !ok || decl.Constructible == instanceFirst {
		return
	}
	if decl.Constructible {
		logger.Warn("declaration is constructible but the initializer has no Target or New; cycles through it are ordered as if it were",
			slog.String("declaration", decl.Name),
		)
		return
	}
	logger.Warn("initializer creates its target instance-first but the declaration is not constructible; cycles through it may stay unresolved",
		slog.String("declaration", decl.Name),
	)
}

func (i *Initializer[T]) ID() uuid.UUID { return i.id }

func (i *Initializer[T]) Name() string { return i.name }

func (i *Initializer[T]) TargetType() reflect.Type { return i.targetType }

// Stale reports whether a service this initializer looked up in an editor
// context has changed since.
func (i *Initializer[T]) Stale() bool { return i.stale.Load() }

// InstanceChanged implements InstanceChangedListener.
func (i *Initializer[T]) InstanceChanged(t reflect.Type, _ any) {
	if i.stale.CompareAndSwap(false, true) {
		i.logger.Debug("service changed", slog.String("type", typeName(t)))
	}
}

// Init is the host hook: it initializes the target.
func (i *Initializer[T]) Init(rc Context) error {
	_, err := i.InitTarget(rc)
	return err
}

// Start initializes the target asynchronously.
func (i *Initializer[T]) Start(ctx context.Context, rc Context) *Future[Target] {
	return Then(i.InitTargetAsync(ctx, rc), func(t T) Target { return t })
}

// ProvideTarget implements TargetProvider. While this initializer is in
// the middle of an instance-first pass it returns the not yet initialized
// instance.
func (i *Initializer[T]) ProvideTarget(r *Resolver) (any, error) {
	rc := MainThread
	if r != nil {
		rc = r.Context
	}
	target, err := i.InitTarget(rc)
	if err != nil {
		return nil, err
	}
	return target, nil
}

// InitTarget resolves every argument synchronously and initializes the
// target. Once it has succeeded or failed, the same result is returned.
func (i *Initializer[T]) InitTarget(rc Context) (T, error) {
	if v, ok, err := i.settled(); ok {
		return v, err
	}

	resolver := i.begin(rc)

	var target T
	if i.instanceFirst() {
		t, err := i.createInstance()
		if err != nil {
			return i.fail(err)
		}
		if t.Lifecycle().State() == Initialized {
			return i.succeed(rc, t, nil)
		}
		target = t
	}

	args := make(Args, len(i.def.Args))
	for k, slot := range i.def.Args {
		v, err := slot.Resolve(resolver)
		if err != nil {
			return i.fail(fmt.Errorf("%s: resolve argument #%d (%s): %w", i.name, k, typeName(slot.Type()), err))
		}
		args[k] = v
	}

	return i.apply(rc, target, args)
}

// InitTargetAsync is InitTarget for arguments that may have to be awaited.
// When every argument is available immediately the returned future is
// already completed. Otherwise the arguments are awaited concurrently and
// initialization continues on the host's thread through Host.Dispatch.
//
// Cancelling ctx leaves the target uninitialized (and disabled when
// DisableWhileResolving is set); the future then fails with
// ErrResolutionCancelled.
func (i *Initializer[T]) InitTargetAsync(ctx context.Context, rc Context) *Future[T] {
	if i.phase == phaseAwaiting {
		return i.pending
	}
	if v, ok, err := i.settled(); ok {
		if err != nil {
			return Rejected[T](err)
		}
		return Resolved(v)
	}

	resolver := i.begin(rc)

	var target T
	if i.instanceFirst() {
		t, err := i.createInstance()
		if err != nil {
			return Rejected[T](i.failErr(err))
		}
		if t.Lifecycle().State() == Initialized {
			return Resolved(i.mustSucceed(rc, t))
		}
		target = t
	}

	futures := make([]*Future[any], len(i.def.Args))
	pending := false
	for k, slot := range i.def.Args {
		futures[k] = slot.ResolveAsync(ctx, resolver)
		if !futures[k].Completed() {
			pending = true
		}
	}

	if !pending {
		args, err := i.collect(futures)
		if err != nil {
			return Rejected[T](i.failErr(err))
		}
		v, err := i.apply(rc, target, args)
		if err != nil {
			return Rejected[T](err)
		}
		return Resolved(v)
	}

	i.phase = phaseAwaiting
	out := NewFuture[T]()
	i.pending = out
	i.disable(target)
	i.logger.Debug("awaiting async arguments", slog.String("context", rc.String()))

	go func() {
		args, err := i.await(ctx, futures)
		i.host.Dispatch(func() {
			i.resume(ctx, rc, target, args, err, out)
		})
	}()

	return out
}

// settled reports the result of a finished pass, or the published instance
// of a pass in progress.
func (i *Initializer[T]) settled() (T, bool, error) {
	var zero T
	switch i.phase {
	case phaseDone:
		return i.result, true, i.err
	case phaseResolving, phaseAwaiting:
		if i.hasInstance {
			return i.instance, true, nil
		}
		if i.phase == phaseAwaiting {
			return zero, true, fmt.Errorf("%s: %w", i.name, ErrAsyncNotCompleted)
		}
		return zero, true, fmt.Errorf("%s: %w", i.name, ErrCircularConstruction)
	default:
		return zero, false, nil
	}
}

func (i *Initializer[T]) begin(rc Context) *Resolver {
	i.phase = phaseResolving
	r := &Resolver{
		Context: rc,
		Locator: i.locator,
		Client:  i,
	}
	if rc.IsEditor() && i.locator != nil {
		r.observe = i.subscribe
	}
	return r
}

func (i *Initializer[T]) instanceFirst() bool {
	return i.hasTarget || i.def.New != nil
}

// createInstance publishes the instance before arguments are resolved so
// that a cyclic counterpart resolving this initializer receives it.
func (i *Initializer[T]) createInstance() (T, error) {
	if i.hasInstance {
		return i.instance, nil
	}

	var target T
	switch {
	case i.hasTarget && i.def.Clone != nil:
		target = i.def.Clone(i.def.Target)
		if isNil(any(target)) {
			return target, &InvalidInitializerShapeError{Initializer: i.name, Target: i.targetType, Reason: "Clone returned nil"}
		}
		i.host.Attach(target)
	case i.hasTarget:
		target = i.def.Target
	default:
		target = i.def.New()
		if isNil(any(target)) {
			return target, &InvalidInitializerShapeError{Initializer: i.name, Target: i.targetType, Reason: "New returned nil"}
		}
		i.host.Attach(target)
	}

	i.instance, i.hasInstance = target, true
	return target, nil
}

func (i *Initializer[T]) collect(futures []*Future[any]) (Args, error) {
	args := make(Args, len(futures))
	for k, f := range futures {
		v, _, err := f.TryResult()
		if err != nil {
			return nil, fmt.Errorf("%s: resolve argument #%d: %w", i.name, k, err)
		}
		args[k] = v
	}
	return args, nil
}

func (i *Initializer[T]) await(ctx context.Context, futures []*Future[any]) (Args, error) {
	args := make(Args, len(futures))
	g, gctx := errgroup.WithContext(ctx)
	for k, f := range futures {
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return fmt.Errorf("%s: resolve argument #%d: %w", i.name, k, err)
			}
			args[k] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return args, nil
}

func (i *Initializer[T]) resume(ctx context.Context, rc Context, target T, args Args, err error, out *Future[T]) {
	i.pending = nil
	if err == nil && ctx.Err() != nil {
		err = cancelled(ctx.Err())
	}

	var zero T
	switch {
	case err != nil && IsCancellation(err):
		// the instance is kept for the next pass and stays disabled
		i.phase = phaseIdle
		if !errors.Is(err, ErrResolutionCancelled) {
			err = cancelled(err)
		}
		i.logger.Debug("resolution cancelled", slog.String("context", rc.String()))
		out.Complete(zero, err)
	case err != nil:
		v, err := i.fail(err)
		out.Complete(v, err)
	default:
		v, err := i.apply(rc, target, args)
		out.Complete(v, err)
	}
}

func (i *Initializer[T]) apply(rc Context, target T, args Args) (T, error) {
	if err := i.guard(rc, args); err != nil {
		return i.fail(err)
	}

	if i.instanceFirst() {
		err := target.Lifecycle().Init(func() error {
			return target.Init(args)
		})
		if err != nil {
			return i.fail(fmt.Errorf("%s: init %s: %w", i.name, typeName(i.targetType), err))
		}
		return i.succeed(rc, target, args)
	}

	target, err := i.def.Construct(args)
	if err != nil {
		return i.fail(fmt.Errorf("%s: construct %s: %w", i.name, typeName(i.targetType), err))
	}
	if isNil(any(target)) {
		return i.fail(&InvalidInitializerShapeError{Initializer: i.name, Target: i.targetType, Reason: "Construct returned nil"})
	}
	i.host.Attach(target)
	if err := target.Lifecycle().Init(func() error { return nil }); err != nil {
		return i.fail(fmt.Errorf("%s: init %s: %w", i.name, typeName(i.targetType), err))
	}
	return i.succeed(rc, target, args)
}

// guard replaces Missing arguments with nil and applies the null guards.
func (i *Initializer[T]) guard(rc Context, args Args) error {
	var errs []error
	for k, v := range args {
		if !IsMissing(v) {
			continue
		}
		args[k] = nil

		g := GuardDefault
		if i.def.Guards != nil {
			g = i.def.Guards[k]
		}
		if g == GuardNone {
			continue
		}

		missing := &MissingArgumentError{
			Initializer: i.name,
			Target:      i.targetType,
			Argument:    i.def.Args[k].Type(),
			Index:       k,
		}
		if rc.IsEditor() || g&GuardRuntimeException == 0 {
			i.logger.Warn(missing.Error(), slog.String("context", rc.String()))
			continue
		}
		errs = append(errs, missing)
	}
	return errors.Join(errs...)
}

func (i *Initializer[T]) succeed(rc Context, target T, args Args) (T, error) {
	i.phase = phaseDone
	i.result, i.err = target, nil
	i.args = args
	var zero T
	i.instance, i.hasInstance = zero, false
	i.enable()
	i.logger.Debug("target initialized", slog.String("context", rc.String()))

	if !rc.IsEditor() && !i.retained() {
		i.host.Defer(func() {
			i.release()
			i.host.Detach(i)
		})
	}
	return target, nil
}

func (i *Initializer[T]) mustSucceed(rc Context, target T) T {
	v, _ := i.succeed(rc, target, nil)
	return v
}

func (i *Initializer[T]) fail(err error) (T, error) {
	var zero T
	if IsCancellation(err) || errors.Is(err, ErrAsyncNotCompleted) {
		// a later pass may still succeed
		i.phase = phaseIdle
		return zero, err
	}
	i.phase = phaseDone
	i.result, i.err = zero, err
	i.instance, i.hasInstance = zero, false
	i.enable()
	i.logger.Debug("initialization failed", slog.Any("error", err))
	return zero, err
}

func (i *Initializer[T]) failErr(err error) error {
	_, err = i.fail(err)
	return err
}

func (i *Initializer[T]) retained() bool {
	return i.def.Persist || slices.Contains(i.def.Dispose, true)
}

// OnTargetDestroyed disposes the flagged arguments when target is the one
// this initializer produced, and removes the initializer from the host.
func (i *Initializer[T]) OnTargetDestroyed(target Target) error {
	if i.phase != phaseDone || i.err != nil || any(i.result) != any(target) {
		return nil
	}

	var errs []error
	for k, dispose := range i.def.Dispose {
		if !dispose || k >= len(i.args) {
			continue
		}
		switch v := i.args[k].(type) {
		case io.Closer:
			if err := v.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close argument #%d: %w", k, err))
			}
		case Disposer:
			v.Dispose()
		}
	}

	i.release()
	i.host.Detach(i)
	return errors.Join(errs...)
}

func (i *Initializer[T]) subscribe(t reflect.Type) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if slices.Contains(i.subscribed, t) {
		return
	}
	i.subscribed = append(i.subscribed, t)
	i.locator.AddInstanceChangedListener(t, i)
}

// release stops listening for service changes.
func (i *Initializer[T]) release() {
	i.mu.Lock()
	subscribed := i.subscribed
	i.subscribed = nil
	i.mu.Unlock()

	for _, t := range subscribed {
		i.locator.RemoveInstanceChangedListener(t, i)
	}
}

// disable turns off the target and, when it is a clone, the original until
// the pass completes. Targets disabled by a cancelled pass stay recorded.
func (i *Initializer[T]) disable(target T) {
	if !i.def.DisableWhileResolving {
		return
	}

	for _, candidate := range []any{any(i.def.Target), any(target)} {
		if isNil(candidate) {
			continue
		}
		t, ok := candidate.(Toggler)
		if !ok || !t.Enabled() || slices.Contains(i.toggled, t) {
			continue
		}
		t.SetEnabled(false)
		i.toggled = append(i.toggled, t)
	}
}

func (i *Initializer[T]) enable() {
	for _, t := range i.toggled {
		t.SetEnabled(true)
	}
	i.toggled = nil
}
