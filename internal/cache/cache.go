package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/phenowatch/phenowatch/internal/fswatch"
	"github.com/phenowatch/phenowatch/pkg/types"
)

// Source is the subset of loader.Source the cache needs.
type Source interface {
	Load(ctx context.Context) (*types.Table, error)
	Version(ctx context.Context) (string, error)
	Describe() string
}

// Entry is a cached table together with the version it was loaded at.
type Entry struct {
	Table    *types.Table
	Version  string
	LoadedAt time.Time
}

// Stats counts cache activity since creation.
type Stats struct {
	Hits   uint64
	Loads  uint64
	Errors uint64
}

// Cache is a thread-safe table cache. Loads for the same cache are
// serialised so a burst of requests after a change triggers one reload.
// load is held across source I/O; mu guards data and stats only.
type Cache struct {
	load   sync.Mutex
	mu     sync.Mutex
	data   map[string]*Entry
	maxAge time.Duration
	stats  Stats
	now    func() time.Time // injectable for deterministic tests
}

// New creates a Cache. maxAge bounds how long a table from a source without
// version information is served; 0 disables caching for such sources.
func New(maxAge time.Duration) *Cache {
	return &Cache{
		data:   make(map[string]*Entry),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Get returns the table for src, loading it when nothing is cached or the
// source's version has changed. Load and version errors are returned as is and
// leave any cached entry untouched.
func (c *Cache) Get(ctx context.Context, src Source) (*types.Table, error) {
	key := src.Describe()

	c.load.Lock()
	defer c.load.Unlock()

	version, err := src.Version(ctx)
	if err != nil {
		c.count(&c.stats.Errors)
		return nil, goerr.Wrap(err, "check source version", goerr.V("source", key))
	}

	c.mu.Lock()
	e, ok := c.data[key]
	if ok && c.fresh(e, version) {
		c.stats.Hits++
		c.mu.Unlock()
		return e.Table, nil
	}
	c.mu.Unlock()

	tbl, err := src.Load(ctx)
	if err != nil {
		c.count(&c.stats.Errors)
		return nil, goerr.Wrap(err, "load source", goerr.V("source", key))
	}

	c.mu.Lock()
	c.stats.Loads++
	c.data[key] = &Entry{Table: tbl, Version: version, LoadedAt: c.now()}
	c.mu.Unlock()
	slog.Debug("cache: loaded source", "source", key, "version", version, "weeks", tbl.Len())
	return tbl, nil
}

func (c *Cache) count(n *uint64) {
	c.mu.Lock()
	*n++
	c.mu.Unlock()
}

func (c *Cache) fresh(e *Entry, version string) bool {
	if version != "" {
		return e.Version == version
	}
	if c.maxAge <= 0 {
		return false
	}
	return c.now().Sub(e.LoadedAt) < c.maxAge
}

// Lookup returns the cached entry for key without consulting the source.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.data[key]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Invalidate drops the entry for key. It reports whether one was present.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	delete(c.data, key)
	return ok
}

// Purge drops every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*Entry)
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}

// Stats returns a copy of the activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Evict removes entries loaded more than maxAge before now and returns how
// many were removed. It is a no-op when maxAge is 0.
func (c *Cache) Evict(now time.Time) int {
	if c.maxAge <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := now.Add(-c.maxAge)
	removed := 0
	for key, e := range c.data {
		if !e.LoadedAt.After(cutoff) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

// Run starts the background eviction loop. It ticks at half the max age
// (minimum 1 second) and blocks until ctx is cancelled. It returns
// immediately when maxAge is 0.
func (c *Cache) Run(ctx context.Context) {
	if c.maxAge <= 0 {
		return
	}
	interval := c.maxAge / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := c.Evict(now); n > 0 {
				slog.Debug("cache: evicted stale tables", "count", n)
			}
		}
	}
}

// Watch invalidates the entry for path whenever the file changes on disk and
// then calls onChange, if non-nil. It blocks until ctx is cancelled.
func (c *Cache) Watch(ctx context.Context, path string, onChange func()) error {
	return fswatch.Watch(ctx, path, fswatch.DefaultDebounce, func() {
		c.Invalidate(path)
		slog.Info("cache: source changed on disk", "path", path)
		if onChange != nil {
			onChange()
		}
	})
}
