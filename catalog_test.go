package initargs_test

import (
	"bytes"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazrean/initargs"
)

var (
	playerType  = reflect.TypeFor[*Player]()
	cameraType  = reflect.TypeFor[*Camera]()
	serviceType = reflect.TypeFor[*Service]()
	fileLogType = reflect.TypeFor[*FileLogger]()
	loggerType  = reflect.TypeFor[Logger]()
	stringType  = reflect.TypeFor[string]()
)

func TestCatalogQueries(t *testing.T) {
	t.Parallel()

	c := initargs.NewCatalog(quiet())
	require.NoError(t, c.DeclareAll(
		initargs.Declaration{Name: "ServiceInit", Target: serviceType, Params: []reflect.Type{loggerType, stringType}},
		initargs.Declaration{Name: "FileLoggerInit", Target: fileLogType, Params: []reflect.Type{stringType}},
	))

	assert.Equal(t, []reflect.Type{loggerType, stringType}, c.GetInitParameterTypes(serviceType))
	assert.Nil(t, c.GetInitParameterTypes(playerType))
	assert.Equal(t, []string{"FileLoggerInit"}, c.GetInitializerTypesFor(loggerType))
	assert.Equal(t, []string{"ServiceInit"}, c.GetInitializerTypesFor(serviceType))
	assert.Len(t, c.Declarations(), 2)

	err := c.Declare(initargs.Declaration{Name: "ServiceInit", Target: serviceType})
	require.ErrorIs(t, err, initargs.ErrDuplicateDeclaration)
}

func TestCatalogExecutionOrder(t *testing.T) {
	t.Parallel()

	c := initargs.NewCatalog(quiet())
	require.NoError(t, c.DeclareAll(
		initargs.Declaration{Name: "ServiceInit", Target: serviceType, Params: []reflect.Type{loggerType, stringType}},
		initargs.Declaration{Name: "FileLoggerInit", Target: fileLogType, Params: []reflect.Type{stringType}},
	))

	table, err := c.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"FileLoggerInit", "ServiceInit"}, table.Order())

	logger, ok := c.Priority("FileLoggerInit")
	require.True(t, ok)
	service, ok := c.Priority("ServiceInit")
	require.True(t, ok)
	assert.Less(t, logger, service)

	again, err := c.ExecutionOrder()
	require.NoError(t, err)
	assert.Same(t, table, again)

	// declaring invalidates the table and keeps existing priorities
	require.NoError(t, c.Declare(initargs.Declaration{Name: "PlayerInit", Target: playerType, Params: []reflect.Type{cameraType}}))
	rebuilt, err := c.ExecutionOrder()
	require.NoError(t, err)
	assert.NotSame(t, table, rebuilt)
	p, _ := rebuilt.Priority("ServiceInit")
	assert.Equal(t, service, p)
}

func TestCatalogCycleHeuristic(t *testing.T) {
	t.Parallel()

	c := initargs.NewCatalog(quiet())
	require.NoError(t, c.DeclareAll(
		initargs.Declaration{Name: "PlayerInit", Target: playerType, Params: []reflect.Type{cameraType}},
		initargs.Declaration{Name: "CameraInit", Target: cameraType, Params: []reflect.Type{playerType}, Constructible: true},
	))

	table, err := c.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"CameraInit", "PlayerInit"}, table.Order())
	assert.Empty(t, table.Warnings)
}

type loggers struct {
	initargs.Tuple
	Primary Logger
	Name    string
}

func TestCatalogTupleParameter(t *testing.T) {
	t.Parallel()

	c := initargs.NewCatalog(quiet())
	require.NoError(t, c.DeclareAll(
		initargs.Declaration{Name: "ServiceInit", Target: serviceType, Params: []reflect.Type{reflect.TypeFor[loggers]()}},
		initargs.Declaration{Name: "FileLoggerInit", Target: fileLogType, Params: []reflect.Type{stringType}},
	))

	table, err := c.ExecutionOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"FileLoggerInit", "ServiceInit"}, table.Order())
	require.Len(t, table.Edges, 1)
	assert.Equal(t, "ServiceInit", table.Edges[0].From)
}

func TestCatalogManualPriorityAndSeed(t *testing.T) {
	t.Parallel()

	manual := 5000
	c := initargs.NewCatalog(quiet())
	c.Seed(map[string]int{"FileLoggerInit": -200})
	require.NoError(t, c.DeclareAll(
		initargs.Declaration{Name: "ServiceInit", Target: serviceType, Params: []reflect.Type{loggerType}, Priority: &manual},
		initargs.Declaration{Name: "FileLoggerInit", Target: fileLogType, Params: []reflect.Type{stringType}},
	))
	manual = 0

	service, _ := c.Priority("ServiceInit")
	logger, _ := c.Priority("FileLoggerInit")
	assert.Equal(t, 5000, service)
	assert.Equal(t, -200, logger)
}

func TestNewInitializerCatalogShape(t *testing.T) {
	t.Parallel()

	c := initargs.NewCatalog(quiet())
	require.NoError(t, c.Declare(initargs.Declaration{Name: "PlayerInit", Target: playerType, Params: []reflect.Type{cameraType}}))

	_, err := initargs.NewInitializer(initargs.Definition[*Player]{
		New:  newPlayer,
		Args: []initargs.Slot{initargs.Literal("not a camera")},
	}, initargs.WithCatalog(c), quiet())
	var shape *initargs.InvalidInitializerShapeError
	require.ErrorAs(t, err, &shape)

	_, err = initargs.NewInitializer(initargs.Definition[*Player]{
		New:  newPlayer,
		Args: []initargs.Slot{initargs.Literal(&Camera{}), initargs.Literal(1)},
	}, initargs.WithCatalog(c), quiet())
	require.ErrorAs(t, err, &shape)

	_, err = initargs.NewInitializer(initargs.Definition[*Player]{
		New:  newPlayer,
		Args: []initargs.Slot{initargs.Unset[*Camera]()},
	}, initargs.WithCatalog(c), quiet())
	require.NoError(t, err)
}

func TestNewInitializerConstructibleMismatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		constructible bool
		def           initargs.Definition[*Player]
		warning       string
	}{
		{
			name: "instance-first target declared non-constructible",
			def: initargs.Definition[*Player]{
				New:  newPlayer,
				Args: []initargs.Slot{initargs.Unset[*Camera]()},
			},
			warning: "declaration is not constructible",
		},
		{
			name:          "argument-first target declared constructible",
			constructible: true,
			def: initargs.Definition[*Player]{
				Construct: func(initargs.Args) (*Player, error) { return newPlayer(), nil },
				Args:      []initargs.Slot{initargs.Unset[*Camera]()},
			},
			warning: "has no Target or New",
		},
		{
			name:          "agreeing declaration",
			constructible: true,
			def: initargs.Definition[*Player]{
				New:  newPlayer,
				Args: []initargs.Slot{initargs.Unset[*Camera]()},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := initargs.NewCatalog(quiet())
			require.NoError(t, c.Declare(initargs.Declaration{
				Name:          "PlayerInit",
				Target:        playerType,
				Params:        []reflect.Type{cameraType},
				Constructible: tt.constructible,
			}))

			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			_, err := initargs.NewInitializer(tt.def, initargs.WithCatalog(c), initargs.WithLogger(logger))
			require.NoError(t, err)

			if tt.warning == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), "level=WARN")
			assert.Contains(t, buf.String(), tt.warning)
			assert.Contains(t, buf.String(), "declaration=PlayerInit")
		})
	}
}
