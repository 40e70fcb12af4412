package initargs_test

import (
	"io"
	"log/slog"

	"github.com/mazrean/initargs"
)

func quiet() initargs.Option {
	return initargs.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type Player struct {
	initargs.Base
	Camera *Camera
	inits  int
}

func (p *Player) Init(args initargs.Args) error {
	p.inits++
	p.Camera, _ = initargs.Arg[*Camera](args, 0)
	return nil
}

type Camera struct {
	initargs.Base
	Player *Player
	inits  int
}

func (c *Camera) Init(args initargs.Args) error {
	c.inits++
	c.Player, _ = initargs.Arg[*Player](args, 0)
	return nil
}

type Logger interface {
	Log(msg string)
}

type FileLogger struct {
	initargs.Base
	lines []string
}

func (l *FileLogger) Init(initargs.Args) error { return nil }

func (l *FileLogger) Log(msg string) { l.lines = append(l.lines, msg) }

type Service struct {
	initargs.Base
	Logger Logger
	Name   string
}

func (s *Service) Init(args initargs.Args) error {
	s.Logger, _ = initargs.Arg[Logger](args, 0)
	s.Name, _ = initargs.Arg[string](args, 1)
	return nil
}

// lazyRef lets two initializers reference each other before both exist.
type lazyRef struct {
	to initargs.TargetProvider
}

func (l *lazyRef) ProvideTarget(r *initargs.Resolver) (any, error) {
	return l.to.ProvideTarget(r)
}

type closer struct {
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return nil
}

type recorder struct {
	order []string
}

type Recorded struct {
	initargs.Base
	name string
	rec  *recorder
}

func (r *Recorded) Init(initargs.Args) error {
	r.rec.order = append(r.rec.order, r.name)
	return nil
}
