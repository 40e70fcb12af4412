package initargs

import (
	"context"
	"reflect"
	"sync"
)

type missingValue struct{}

// Missing is what a slot resolves to when it finds no value. Initializers
// turn it into a null guard failure or pass nil to Init.
var Missing any = missingValue{}

func IsMissing(v any) bool {
	_, ok := v.(missingValue)
	return ok
}

// Resolver is the environment a slot resolves in.
type Resolver struct {
	Context Context
	Locator Locator
	// Client is the initializer resolving the slot.
	Client any

	observe func(t reflect.Type)
}

// Lookup asks the locator for a service of type t.
func (r *Resolver) Lookup(t reflect.Type) (any, bool) {
	if r == nil || r.Locator == nil {
		return nil, false
	}
	if r.observe != nil {
		r.observe(t)
	}
	return r.Locator.Lookup(t, r.Client)
}

// ValueProvider computes a value on demand. It is asked once per
// resolution.
type ValueProvider[T any] interface {
	Provide(r *Resolver) (T, bool)
}

// AsyncValueProvider computes a value that may not be available yet.
type AsyncValueProvider[T any] interface {
	ProvideAsync(ctx context.Context, r *Resolver) *Future[T]
}

type ProviderFunc[T any] func(r *Resolver) (T, bool)

func (f ProviderFunc[T]) Provide(r *Resolver) (T, bool) { return f(r) }

// AsyncProviderFunc runs on its own goroutine every time it is asked.
type AsyncProviderFunc[T any] func(ctx context.Context, r *Resolver) (T, error)

func (f AsyncProviderFunc[T]) ProvideAsync(ctx context.Context, r *Resolver) *Future[T] {
	return Go(ctx, func(ctx context.Context) (T, error) { return f(ctx, r) })
}

// ServiceProvider provides the service of type T registered in the
// resolver's locator.
type ServiceProvider[T any] struct{}

func (ServiceProvider[T]) Provide(r *Resolver) (T, bool) {
	var zero T
	v, ok := r.Lookup(reflect.TypeFor[T]())
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// FacetProvider is implemented by entities composed of several parts. A
// reference to the entity resolves to the part of the requested type.
type FacetProvider interface {
	Facet(t reflect.Type) (any, bool)
}

// TargetProvider is implemented by initializers. A reference to an
// initializer resolves to the target it initializes.
type TargetProvider interface {
	ProvideTarget(r *Resolver) (any, error)
}

// Slot is one argument of an initializer.
type Slot interface {
	Type() reflect.Type
	Kind() SlotKind
	// IsAsync reports whether the slot may need to be awaited.
	IsAsync() bool
	Resolve(r *Resolver) (any, error)
	ResolveAsync(ctx context.Context, r *Resolver) *Future[any]
}

type SlotKind int

const (
	SlotUnset SlotKind = iota
	SlotLiteral
	SlotReference
	SlotProvider
	SlotAsyncProvider
)

func (k SlotKind) String() string {
	switch k {
	case SlotUnset:
		return "unset"
	case SlotLiteral:
		return "literal"
	case SlotReference:
		return "reference"
	case SlotProvider:
		return "provider"
	case SlotAsyncProvider:
		return "async-provider"
	default:
		return "unknown"
	}
}

// ArgumentSlot holds the source of one argument of type T.
type ArgumentSlot[T any] struct {
	kind     SlotKind
	value    T
	ref      any
	provider ValueProvider[T]
	async    AsyncValueProvider[T]

	// inflight is a provider call started by a synchronous read that had
	// not finished. The next ResolveAsync adopts it.
	mu       sync.Mutex
	inflight *Future[T]
	cancel   context.CancelFunc
}

// Unset returns a slot resolved through the service locator.
func Unset[T any]() *ArgumentSlot[T] {
	return &ArgumentSlot[T]{kind: SlotUnset}
}

func Literal[T any](v T) *ArgumentSlot[T] {
	return &ArgumentSlot[T]{kind: SlotLiteral, value: v}
}

// Reference returns a slot resolved from ref. ref may be a T, an entity with
// a T facet or an initializer whose target is (or has) a T. A nil reference
// falls back to the service locator.
func Reference[T any](ref any) *ArgumentSlot[T] {
	return &ArgumentSlot[T]{kind: SlotReference, ref: ref}
}

func Provider[T any](p ValueProvider[T]) *ArgumentSlot[T] {
	return &ArgumentSlot[T]{kind: SlotProvider, provider: p}
}

func AsyncProvider[T any](p AsyncValueProvider[T]) *ArgumentSlot[T] {
	return &ArgumentSlot[T]{kind: SlotAsyncProvider, async: p}
}

// Service returns a slot resolved to the registered service of type T.
func Service[T any]() *ArgumentSlot[T] {
	return Provider[T](ServiceProvider[T]{})
}

func (s *ArgumentSlot[T]) Type() reflect.Type { return reflect.TypeFor[T]() }

func (s *ArgumentSlot[T]) Kind() SlotKind { return s.kind }

func (s *ArgumentSlot[T]) IsAsync() bool { return s.kind == SlotAsyncProvider }

// Resolve returns the argument value or Missing. An async slot can only be
// resolved synchronously once its value is available; until then it returns
// ErrAsyncNotCompleted and the provider call keeps running for the next
// ResolveAsync.
func (s *ArgumentSlot[T]) Resolve(r *Resolver) (any, error) {
	switch s.kind {
	case SlotLiteral:
		return orMissing(s.value), nil
	case SlotReference:
		return s.resolveReference(r)
	case SlotProvider:
		if s.provider == nil {
			return Missing, nil
		}
		v, ok := s.provider.Provide(r)
		if !ok {
			return Missing, nil
		}
		return orMissing(v), nil
	case SlotAsyncProvider:
		if s.async == nil {
			return Missing, nil
		}
		v, ok, err := s.poll(r)
		switch {
		case !ok:
			return nil, ErrAsyncNotCompleted
		case err != nil:
			return nil, err
		}
		return orMissing(v), nil
	default:
		return s.lookup(r), nil
	}
}

func (s *ArgumentSlot[T]) ResolveAsync(ctx context.Context, r *Resolver) *Future[any] {
	if s.kind != SlotAsyncProvider || s.async == nil {
		v, err := s.Resolve(r)
		if err != nil {
			return Rejected[any](err)
		}
		return Resolved(v)
	}
	f := s.adopt(ctx)
	if f == nil {
		f = s.async.ProvideAsync(ctx, r)
	}
	return Then(f, func(v T) any { return orMissing(v) })
}

// poll returns the result of the provider call if it has finished. It starts
// at most one call; an unfinished call is kept for the next ResolveAsync.
func (s *ArgumentSlot[T]) poll(r *Resolver) (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inflight == nil {
		ctx, cancel := context.WithCancel(context.Background())
		s.inflight, s.cancel = s.async.ProvideAsync(ctx, r), cancel
	}
	v, ok, err := s.inflight.TryResult()
	if ok {
		s.cancel()
		s.inflight, s.cancel = nil, nil
	}
	return v, ok, err
}

// adopt hands the call started by poll over to ctx: cancelling ctx cancels
// the call.
func (s *ArgumentSlot[T]) adopt(ctx context.Context) *Future[T] {
	s.mu.Lock()
	f, cancel := s.inflight, s.cancel
	s.inflight, s.cancel = nil, nil
	s.mu.Unlock()

	if f == nil {
		return nil
	}
	if f.Completed() {
		cancel()
		return f
	}
	stop := context.AfterFunc(ctx, cancel)
	go func() {
		<-f.Done()
		stop()
		cancel()
	}()
	return f
}

func (s *ArgumentSlot[T]) resolveReference(r *Resolver) (any, error) {
	if isNil(s.ref) {
		return s.lookup(r), nil
	}

	ref := s.ref
	if v, ok := matchReference[T](ref); ok {
		return v, nil
	}
	if tp, ok := ref.(TargetProvider); ok {
		target, err := tp.ProvideTarget(r)
		if err != nil {
			return nil, err
		}
		if v, ok := matchReference[T](target); ok {
			return v, nil
		}
	}
	return Missing, nil
}

func matchReference[T any](ref any) (any, bool) {
	if isNil(ref) {
		return nil, false
	}
	if v, ok := ref.(T); ok {
		return v, true
	}
	if fp, ok := ref.(FacetProvider); ok {
		if facet, ok := fp.Facet(reflect.TypeFor[T]()); ok {
			if v, ok := facet.(T); ok && !isNil(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func (s *ArgumentSlot[T]) lookup(r *Resolver) any {
	v, ok := r.Lookup(reflect.TypeFor[T]())
	if !ok {
		return Missing
	}
	if t, ok := v.(T); ok {
		return orMissing(t)
	}
	return Missing
}

func orMissing[T any](v T) any {
	if isNil(any(v)) {
		return Missing
	}
	return v
}
