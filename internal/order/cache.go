package order

import (
	"fmt"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Source supplies the current declaration set.
type Source func() ([]Declaration, *Types, error)

type snapshot struct {
	result     *Result
	generation uint64
}

// Cache holds the process-wide priority table. Tables are built off to the
// side and published with a single pointer swap, so readers see either the old
// or the new table.
type Cache struct {
	source Source
	sorter *Sorter

	current    atomic.Pointer[snapshot]
	generation atomic.Uint64
	sf         singleflight.Group

	mu   sync.Mutex
	seed map[string]int
}

func NewCache(source Source, sorter *Sorter) *Cache {
	if sorter == nil {
		sorter = NewSorter()
	}
	return &Cache{
		source: source,
		sorter: sorter,
	}
}

// Seed sets the priorities the next rebuild treats as existing when no table
// has been published yet, e.g. a table loaded from disk.
func (c *Cache) Seed(priorities map[string]int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seed = maps.Clone(priorities)
}

// Invalidate marks the published table as stale. The table stays readable via
// Peek until the next rebuild replaces it.
func (c *Cache) Invalidate() {
	c.generation.Add(1)
}

// Peek returns the last published table without rebuilding.
func (c *Cache) Peek() *Result {
	snap := c.current.Load()
	if snap == nil {
		return nil
	}
	return snap.result
}

// Table returns an up to date table, rebuilding it if it was invalidated.
// A table built before the last Invalidate is never returned.
func (c *Cache) Table() (*Result, error) {
	if snap := c.current.Load(); snap != nil && snap.generation >= c.generation.Load() {
		return snap.result, nil
	}
	return c.Rebuild()
}

// Rebuild computes a new table and publishes it. Concurrent calls for the
// same generation share one computation; a call made after Invalidate starts
// its own.
func (c *Cache) Rebuild() (*Result, error) {
	generation := c.generation.Load()
	v, err, _ := c.sf.Do(strconv.FormatUint(generation, 10), func() (any, error) {
		decls, types, err := c.source()
		if err != nil {
			return nil, fmt.Errorf("load declarations: %w", err)
		}

		previous := c.previous()
		result, err := c.sorter.Sort(decls, types, previous)
		if err != nil {
			return nil, fmt.Errorf("sort initializers: %w", err)
		}

		c.publish(&snapshot{result: result, generation: generation})
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Result), nil
}

// publish stores snap unless a table of a later generation is already
// published.
func (c *Cache) publish(snap *snapshot) {
	for {
		cur := c.current.Load()
		if cur != nil && cur.generation > snap.generation {
			return
		}
		if c.current.CompareAndSwap(cur, snap) {
			return
		}
	}
}

func (c *Cache) previous() map[string]int {
	if snap := c.current.Load(); snap != nil {
		return snap.result.Priorities()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.seed)
}
