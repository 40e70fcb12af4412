package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mazrean/initargs/internal/order"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "priorities.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestOpen(t *testing.T) {
	t.Parallel()

	s, path := openTemp(t)

	_, err := os.Stat(path)
	require.NoError(t, err, "database file was not created")

	var mode string
	require.NoError(t, s.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

func TestOpenIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "priorities.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "iteration %d", i)
		require.NoError(t, s.Close())
	}
}

func TestLoadPrioritiesEmpty(t *testing.T) {
	t.Parallel()

	s, _ := openTemp(t)

	priorities, err := s.LoadPriorities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, priorities)

	_, ok, err := s.LatestRun(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSavePriorities(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, path := openTemp(t)
	s.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	first := &order.Result{
		Entries: []order.Entry{
			{Name: "LoggerInit", Priority: -10000, Assembly: "game.core"},
			{Name: "PlayerInit", Priority: -9990, Assembly: "game.core"},
			{Name: "HUDInit", Priority: 40, Assembly: "game.ui", Manual: true},
		},
		Warnings: []order.UnresolvedCycleWarning{{Initializers: []string{"A", "B"}}},
	}
	run, err := s.SavePriorities(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, 3, run.Initializers)
	assert.Equal(t, 1, run.Warnings)

	second := &order.Result{
		Entries: []order.Entry{
			{Name: "LoggerInit", Priority: -10000, Assembly: "game.core"},
			{Name: "CameraInit", Priority: -9995, Assembly: "game.core"},
			{Name: "PlayerInit", Priority: -9990, Assembly: "game.core"},
		},
	}
	run, err = s.SavePriorities(ctx, second)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// reopen to check the table survives
	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	priorities, err := reopened.LoadPriorities(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{
		"LoggerInit": -10000,
		"CameraInit": -9995,
		"PlayerInit": -9990,
	}, priorities, "entries missing from the new table are removed")

	entries, err := reopened.Entries(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.Entries, entries)

	latest, ok, err := reopened.LatestRun(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), latest.CreatedAt)
	assert.Zero(t, latest.Warnings)
}

func TestSavedPrioritiesSeedSorter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := openTemp(t)

	types := order.NewTypes(
		order.TypeInfo{ID: "A", Assembly: "x"},
		order.TypeInfo{ID: "B", Assembly: "x"},
		order.TypeInfo{ID: "C", Assembly: "x"},
	)
	decls := []order.Declaration{
		{Name: "AInit", Target: "A"},
		{Name: "BInit", Target: "B", Args: []order.TypeID{"A"}},
	}

	sorter := order.NewSorter()
	result, err := sorter.Sort(decls, types, nil)
	require.NoError(t, err)
	_, err = s.SavePriorities(ctx, result)
	require.NoError(t, err)

	previous, err := s.LoadPriorities(ctx)
	require.NoError(t, err)

	decls = append(decls, order.Declaration{Name: "CInit", Target: "C", Args: []order.TypeID{"A"}})
	next, err := sorter.Sort(decls, types, previous)
	require.NoError(t, err)

	for name, p := range previous {
		got, ok := next.Priority(name)
		require.True(t, ok, name)
		assert.Equal(t, p, got, "%s keeps its saved priority", name)
	}
}
