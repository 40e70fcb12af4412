// Package initargs provides constructor-like initialization for components
// that a host runtime can only create without parameters.
//
// A component (a Target) declares the objects it depends on as the
// arguments of its Init method. A companion Initializer holds one
// ArgumentSlot per argument and resolves them before the component becomes
// active. A slot can hold a literal value, a reference to another object, a
// value provider or an asynchronous value provider. A slot left unset falls
// back to the service Locator.
//
// Two components may depend on each other. When an Initializer can create
// its target without arguments it does so first and publishes the empty
// instance, so the counterpart receives a non-nil (not yet initialized)
// object instead of recursing forever.
//
// The Catalog collects static declarations of initializers and computes an
// execution order: every initializer is given an integer priority, lower
// values initializing first, such that an initializer runs after the
// initializers whose targets it consumes.
//
// Example:
//
//	type Player struct {
//		initargs.Base
//		input *Input
//	}
//
//	func (p *Player) Init(args initargs.Args) error {
//		p.input, _ = initargs.Arg[*Input](args, 0)
//		return nil
//	}
//
//	init, err := initargs.NewInitializer(initargs.Definition[*Player]{
//		New:  func() *Player { return &Player{} },
//		Args: []initargs.Slot{initargs.Service[*Input]()},
//	}, initargs.WithHost(scene), initargs.WithLocator(services))
package initargs
