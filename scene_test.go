package initargs_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazrean/initargs"
)

type (
	Clock  struct{ Recorded }
	Engine struct{ Recorded }
	HUD    struct{ Recorded }
)

func TestSceneActivate(t *testing.T) {
	t.Parallel()

	catalog := initargs.NewCatalog(quiet())
	require.NoError(t, catalog.DeclareAll(
		initargs.Declaration{Name: "HUDInit", Target: reflect.TypeFor[*HUD](), Params: []reflect.Type{reflect.TypeFor[*Engine]()}},
		initargs.Declaration{Name: "EngineInit", Target: reflect.TypeFor[*Engine](), Params: []reflect.Type{reflect.TypeFor[*Clock]()}},
		initargs.Declaration{Name: "ClockInit", Target: reflect.TypeFor[*Clock](), Params: []reflect.Type{reflect.TypeFor[string]()}},
	))

	rec := &recorder{}
	scene := initargs.NewScene(initargs.WithCatalog(catalog), quiet())
	opts := []initargs.Option{initargs.WithHost(scene), initargs.WithCatalog(catalog), quiet()}

	hud, err := initargs.NewInitializer(initargs.Definition[*HUD]{
		Name: "HUDInit",
		New:  func() *HUD { return &HUD{Recorded{name: "hud", rec: rec}} },
		Args: []initargs.Slot{initargs.Literal(&Engine{})},
	}, opts...)
	require.NoError(t, err)
	engine, err := initargs.NewInitializer(initargs.Definition[*Engine]{
		Name: "EngineInit",
		New:  func() *Engine { return &Engine{Recorded{name: "engine", rec: rec}} },
		Args: []initargs.Slot{initargs.Literal(&Clock{})},
	}, opts...)
	require.NoError(t, err)
	clock, err := initargs.NewInitializer(initargs.Definition[*Clock]{
		Name: "ClockInit",
		New:  func() *Clock { return &Clock{Recorded{name: "clock", rec: rec}} },
		Args: []initargs.Slot{initargs.Literal("utc")},
	}, opts...)
	require.NoError(t, err)

	scene.Register(hud, engine, clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result := scene.Activate(ctx, initargs.MainThread)

	assert.Equal(t, []string{"ClockInit", "EngineInit", "HUDInit"}, result.Initialized)
	assert.Equal(t, []string{"clock", "engine", "hud"}, rec.order)
	assert.Empty(t, result.Inert)
	assert.False(t, result.Cancelled)
	assert.Empty(t, scene.Runners(), "initializers remove themselves after success")
	assert.Len(t, scene.Entities(), 3)
}

func TestSceneActivateInert(t *testing.T) {
	t.Parallel()

	scene := initargs.NewScene(quiet())
	broken, err := initargs.NewInitializer(initargs.Definition[*Player]{
		Name: "Broken",
		New:  newPlayer,
		Args: []initargs.Slot{initargs.Reference[*Camera](nil)},
	}, initargs.WithHost(scene), quiet())
	require.NoError(t, err)
	fine, err := initargs.NewInitializer(initargs.Definition[*Camera]{
		Name: "Fine",
		New:  newCamera,
		Args: []initargs.Slot{initargs.Literal(&Player{})},
	}, initargs.WithHost(scene), quiet())
	require.NoError(t, err)
	scene.Register(broken, fine)

	result := scene.Activate(context.Background(), initargs.MainThread)

	assert.Equal(t, []string{"Fine"}, result.Initialized)
	require.Contains(t, result.Inert, "Broken")
	assert.True(t, initargs.IsMissingArgument(result.Inert["Broken"]))

	// the failing entity stays in the scene, uninitialized
	require.Len(t, scene.Entities(), 2)
	player := scene.Entities()[0].(*Player)
	assert.Equal(t, initargs.Uninitialized, player.Lifecycle().State())
	assert.Equal(t, []initargs.Runner{broken}, scene.Runners())
}

func TestSceneActivateCancelled(t *testing.T) {
	t.Parallel()

	scene := initargs.NewScene(quiet())
	slow, err := initargs.NewInitializer(initargs.Definition[*Player]{
		New: newPlayer,
		Args: []initargs.Slot{initargs.AsyncProvider[*Camera](initargs.AsyncProviderFunc[*Camera](
			func(ctx context.Context, _ *initargs.Resolver) (*Camera, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		))},
	}, initargs.WithHost(scene), quiet())
	require.NoError(t, err)
	scene.Register(slow)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	result := scene.Activate(ctx, initargs.MainThread)

	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Inert)
	assert.Empty(t, result.Initialized)
}

func TestSceneDispatchFromGoroutine(t *testing.T) {
	t.Parallel()

	scene := initargs.NewScene(quiet())
	done := make(chan struct{})
	ran := false
	go scene.Dispatch(func() {
		ran = true
		close(done)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, scene.Pump(ctx, done))
	assert.True(t, ran)
}
