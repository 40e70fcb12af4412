package initargs

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/mazrean/initargs/internal/pkg/collection"
)

// Host is the runtime that owns targets and initializers.
type Host interface {
	// Attach adds a target created by an initializer.
	Attach(target Target)
	// Detach removes an initializer that is no longer needed.
	Detach(r Runner)
	// Dispatch schedules fn on the host's logical thread. It may be called
	// from any goroutine.
	Dispatch(fn func())
	// Defer schedules fn for the end of the current step.
	Defer(fn func())
}

// Runner is an initializer as seen by a host.
type Runner interface {
	ID() uuid.UUID
	Name() string
	Init(rc Context) error
	Start(ctx context.Context, rc Context) *Future[Target]
}

// DestroyListener is implemented by runners that must know when their
// target is destroyed.
type DestroyListener interface {
	OnTargetDestroyed(target Target) error
}

// detachedHost runs everything immediately. Used when an initializer has no
// host; continuations then run on the goroutine that finished the wait.
type detachedHost struct{}

func (detachedHost) Attach(Target)      {}
func (detachedHost) Detach(Runner)      {}
func (detachedHost) Dispatch(fn func()) { fn() }
func (detachedHost) Defer(fn func())    { fn() }

// Scene is a minimal in-process Host. All methods except Dispatch must be
// called from one goroutine, the scene's logical thread.
type Scene struct {
	logger  *slog.Logger
	catalog *Catalog

	entities []Target
	runners  []Runner
	deferred *collection.Queue[func()]

	mu         sync.Mutex
	dispatched []func()
	wake       chan struct{}
}

func NewScene(opts ...Option) *Scene {
	o := newOptions(opts)
	return &Scene{
		logger:   o.logger,
		catalog:  o.catalog,
		deferred: collection.NewQueue[func()](),
		wake:     make(chan struct{}, 1),
	}
}

func (s *Scene) Attach(target Target) {
	if slices.Contains(s.entities, target) {
		return
	}
	s.entities = append(s.entities, target)
}

// Entities returns the attached targets in attach order.
func (s *Scene) Entities() []Target {
	return slices.Clone(s.entities)
}

// Register adds an initializer to be run by Activate.
func (s *Scene) Register(runners ...Runner) {
	for _, r := range runners {
		if s.indexOf(r) < 0 {
			s.runners = append(s.runners, r)
		}
	}
}

func (s *Scene) Runners() []Runner {
	return slices.Clone(s.runners)
}

func (s *Scene) Detach(r Runner) {
	if idx := s.indexOf(r); idx >= 0 {
		s.runners = slices.Delete(s.runners, idx, idx+1)
		s.logger.Debug("initializer removed", slog.String("initializer", r.Name()))
	}
}

func (s *Scene) indexOf(r Runner) int {
	return slices.IndexFunc(s.runners, func(e Runner) bool { return e.ID() == r.ID() })
}

func (s *Scene) Dispatch(fn func()) {
	s.mu.Lock()
	s.dispatched = append(s.dispatched, fn)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scene) Defer(fn func()) {
	s.deferred.Push(fn)
}

// Step runs the dispatched continuations, then the deferred functions. It
// returns how many functions ran.
func (s *Scene) Step() int {
	s.mu.Lock()
	dispatched := s.dispatched
	s.dispatched = nil
	s.mu.Unlock()

	n := 0
	for _, fn := range dispatched {
		fn()
		n++
	}
	for fn := range s.deferred.Drain {
		fn()
		n++
	}
	return n
}

// Pump steps the scene until done is closed or ctx is done.
func (s *Scene) Pump(ctx context.Context, done <-chan struct{}) error {
	for {
		s.Step()

		select {
		case <-done:
			s.Step()
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
		}
	}
}

// Destroy removes target from the scene and notifies the initializers that
// stayed alive for it.
func (s *Scene) Destroy(target Target) {
	s.entities = slices.DeleteFunc(s.entities, func(e Target) bool { return e == target })

	for _, r := range slices.Clone(s.runners) {
		l, ok := r.(DestroyListener)
		if !ok {
			continue
		}
		if err := l.OnTargetDestroyed(target); err != nil {
			s.logger.Warn("failed to dispose arguments",
				slog.String("initializer", r.Name()),
				slog.Any("error", err),
			)
		}
	}
	s.Step()
}

// Activation summarizes one Activate call.
type Activation struct {
	// Initialized lists the runners that succeeded, in the order they ran.
	Initialized []string
	// Inert maps runners that failed to their error. Their targets are left
	// uninitialized.
	Inert map[string]error
	// Cancelled is set when ctx was cancelled before every runner ran.
	Cancelled bool
}

// Activate runs every registered initializer in execution order. A failing
// initializer leaves its target inert and does not stop the others.
// Cancellation is not an error: Activate stops and reports it in the
// result.
func (s *Scene) Activate(ctx context.Context, rc Context) Activation {
	result := Activation{Inert: make(map[string]error)}

	for _, r := range s.ordered() {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		f := r.Start(ctx, rc)
		if err := s.Pump(ctx, f.Done()); err != nil {
			result.Cancelled = true
			break
		}

		_, _, err := f.TryResult()
		switch {
		case err == nil:
			result.Initialized = append(result.Initialized, r.Name())
		case IsCancellation(err):
			s.logger.Debug("initialization cancelled", slog.String("initializer", r.Name()))
			result.Cancelled = true
		default:
			s.logger.Error("entity left inert",
				slog.String("initializer", r.Name()),
				slog.Any("error", err),
			)
			result.Inert[r.Name()] = err
		}
	}

	s.Step()
	return result
}

// ordered returns the runners by execution priority. Runners the catalog
// does not know keep their registration order after the known ones.
func (s *Scene) ordered() []Runner {
	runners := slices.Clone(s.runners)
	if s.catalog == nil {
		return runners
	}

	table, err := s.catalog.ExecutionOrder()
	if err != nil {
		s.logger.Warn("execution order unavailable, using registration order", slog.Any("error", err))
		return runners
	}

	slices.SortStableFunc(runners, func(a, b Runner) int {
		pa, okA := table.Priority(a.Name())
		pb, okB := table.Priority(b.Name())
		switch {
		case okA && okB:
			return cmp.Compare(pa, pb)
		case okA:
			return -1
		case okB:
			return 1
		default:
			return 0
		}
	})
	return runners
}
