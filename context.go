package initargs

// Context tells an initializer why it is being run. Editor contexts relax
// null guards to warnings and subscribe to service changes.
type Context int

const (
	// EditTime is an initialization triggered by editing tools.
	EditTime Context = iota
	// Reset is an editor reset of the component to its defaults.
	Reset
	// RuntimeConstruction is initialization of an entity created while the
	// host is running.
	RuntimeConstruction
	// MainThread is initialization during regular activation of a loaded
	// entity graph.
	MainThread
)

func (c Context) String() string {
	switch c {
	case EditTime:
		return "EditTime"
	case Reset:
		return "Reset"
	case RuntimeConstruction:
		return "RuntimeConstruction"
	case MainThread:
		return "MainThread"
	default:
		return "Context(unknown)"
	}
}

// IsEditor reports whether c belongs to editing tools rather than a running
// host.
func (c Context) IsEditor() bool {
	return c == EditTime || c == Reset
}
