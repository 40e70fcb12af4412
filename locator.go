package initargs

import (
	"reflect"
	"slices"
	"sync"
)

// InstanceChangedListener is notified when the instance registered for a
// service type changes. instance is nil when the service was cleared.
type InstanceChangedListener interface {
	InstanceChanged(t reflect.Type, instance any)
}

// Locator finds shared services by type.
type Locator interface {
	// Lookup returns the instance registered for t, if any. client is the
	// object asking, for locators that scope services per client.
	Lookup(t reflect.Type, client any) (any, bool)
	AddInstanceChangedListener(t reflect.Type, l InstanceChangedListener)
	RemoveInstanceChangedListener(t reflect.Type, l InstanceChangedListener)
}

// TryGet looks up the service of type T.
func TryGet[T any](l Locator, client any) (T, bool) {
	var zero T
	if l == nil {
		return zero, false
	}
	v, ok := l.Lookup(reflect.TypeFor[T](), client)
	if !ok {
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

type service struct {
	typ      reflect.Type
	instance any
}

// Services is an in-memory Locator. Services are matched by exact type
// first, then by assignability in registration order.
type Services struct {
	mu        sync.RWMutex
	services  []service
	listeners map[reflect.Type][]InstanceChangedListener
}

func NewServices() *Services {
	return &Services{
		listeners: make(map[reflect.Type][]InstanceChangedListener),
	}
}

// Set registers v as the service of type T, replacing any previous one.
func Set[T any](s *Services, v T) {
	s.set(reflect.TypeFor[T](), v)
}

// Clear removes the service of type T.
func Clear[T any](s *Services) {
	s.set(reflect.TypeFor[T](), nil)
}

func (s *Services) set(t reflect.Type, v any) {
	s.mu.Lock()
	idx := slices.IndexFunc(s.services, func(e service) bool { return e.typ == t })
	switch {
	case v == nil && idx >= 0:
		s.services = slices.Delete(s.services, idx, idx+1)
	case v == nil:
	case idx >= 0:
		s.services[idx].instance = v
	default:
		s.services = append(s.services, service{typ: t, instance: v})
	}
	listeners := slices.Clone(s.listeners[t])
	s.mu.Unlock()

	for _, l := range listeners {
		l.InstanceChanged(t, v)
	}
}

func (s *Services) Lookup(t reflect.Type, _ any) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.services {
		if e.typ == t {
			return e.instance, true
		}
	}
	for _, e := range s.services {
		if e.typ.AssignableTo(t) {
			return e.instance, true
		}
	}
	return nil, false
}

func (s *Services) AddInstanceChangedListener(t reflect.Type, l InstanceChangedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.listeners[t], l) {
		return
	}
	s.listeners[t] = append(s.listeners[t], l)
}

func (s *Services) RemoveInstanceChangedListener(t reflect.Type, l InstanceChangedListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[t] = slices.DeleteFunc(s.listeners[t], func(e InstanceChangedListener) bool { return e == l })
	if len(s.listeners[t]) == 0 {
		delete(s.listeners, t)
	}
}
