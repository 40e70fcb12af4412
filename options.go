package initargs

import "log/slog"

// Option configures initializers, catalogs and scenes.
type Option func(*options)

type options struct {
	host    Host
	locator Locator
	catalog *Catalog
	logger  *slog.Logger
}

func newOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.host == nil {
		o.host = detachedHost{}
	}
	return o
}

// WithHost sets the host that attaches created targets and runs
// continuations.
func WithHost(h Host) Option {
	return func(o *options) { o.host = h }
}

func WithLocator(l Locator) Option {
	return func(o *options) { o.locator = l }
}

// WithCatalog validates initializers against the declarations of c and, for
// scenes, orders activation by its execution order.
func WithCatalog(c *Catalog) Option {
	return func(o *options) { o.catalog = c }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
