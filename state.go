package initargs

import (
	"fmt"
	"sync/atomic"
)

// InitState is the lifecycle state of a target.
type InitState int32

const (
	Uninitialized InitState = iota
	Initializing
	Initialized
	Failed
)

func (s InitState) String() string {
	switch s {
	case Uninitialized:
		return "Uninitialized"
	case Initializing:
		return "Initializing"
	case Initialized:
		return "Initialized"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("InitState(%d)", int32(s))
	}
}

// Lifecycle guards a target against repeated and re-entrant
// initialization. The zero value is Uninitialized.
//
// The state only moves forward, except that a pass ending in cancellation
// returns the target to Uninitialized so that it can be initialized again.
type Lifecycle struct {
	state atomic.Int32
	err   error // written before state becomes Failed
}

func (l *Lifecycle) State() InitState {
	return InitState(l.state.Load())
}

// Err returns the error that moved l to Failed.
func (l *Lifecycle) Err() error {
	if l.State() != Failed {
		return nil
	}
	return l.err
}

// Init runs fn unless l has already left Uninitialized.
//
// A call made while another call is running fn returns nil immediately. This
// lets two targets that reference each other be initialized through each
// other without recursing forever.
func (l *Lifecycle) Init(fn func() error) error {
	started, err := l.begin()
	if !started {
		return err
	}
	return l.finish(fn())
}

func (l *Lifecycle) begin() (bool, error) {
	for {
		switch s := l.State(); s {
		case Initialized, Initializing:
			return false, nil
		case Failed:
			return false, fmt.Errorf("%w: %w", ErrInitFailed, l.err)
		}
		if l.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
			return true, nil
		}
	}
}

func (l *Lifecycle) finish(err error) error {
	switch {
	case err == nil:
		l.state.Store(int32(Initialized))
	case IsCancellation(err):
		l.rollback()
	default:
		l.err = err
		l.state.Store(int32(Failed))
	}
	return err
}

func (l *Lifecycle) rollback() {
	l.state.CompareAndSwap(int32(Initializing), int32(Uninitialized))
}

// Target is a component that receives its dependencies through Init.
type Target interface {
	Lifecycle() *Lifecycle
	Init(args Args) error
}

// Toggler is implemented by targets that can be disabled while their
// arguments are still being resolved.
type Toggler interface {
	SetEnabled(enabled bool)
	Enabled() bool
}

// Base is embedded in targets to provide Lifecycle and Toggler. Targets
// start enabled.
type Base struct {
	lifecycle Lifecycle
	disabled  atomic.Bool
}

func (b *Base) Lifecycle() *Lifecycle { return &b.lifecycle }

func (b *Base) SetEnabled(enabled bool) { b.disabled.Store(!enabled) }

func (b *Base) Enabled() bool { return !b.disabled.Load() }
