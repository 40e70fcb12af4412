package game

import "github.com/mazrean/initargs"

type Logger interface {
	Log(msg string)
}

type FileLogger struct {
	initargs.Base
	path string
}

func (l *FileLogger) Log(string) {}

//initargs:priority -500
func (l *FileLogger) Init(args initargs.Args) error {
	l.path, _ = initargs.Arg[string](args, 0)
	return nil
}

type Player struct {
	initargs.Base
	camera *Camera
	log    Logger
}

func (p *Player) Init(args initargs.Args) error {
	p.camera, _ = initargs.Arg[*Camera](args, 0)
	p.log, _ = initargs.Arg[Logger](args, 1)
	return nil
}

type Camera struct {
	initargs.Base
	player *Player
}

//initargs:constructible
func (c *Camera) Init(args initargs.Args) error {
	c.player, _ = initargs.Arg[*Player](args, 0)
	return nil
}

type hudInputs struct {
	initargs.Tuple
	Player *Player
	Log    Logger
}

type HUD struct {
	initargs.Base
	inputs hudInputs
}

//initargs:name HeadsUpInit
//initargs:after CameraInit
func (h *HUD) Init(args initargs.Args) error {
	h.inputs, _ = initargs.Arg[hudInputs](args, 0)
	return nil
}

// Init has the wrong shape and is not a target.
type Plain struct{}

func (Plain) Init() {}
