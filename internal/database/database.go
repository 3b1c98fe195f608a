// Package database bundles one Allocator and one Buffer Pool, plus the
// named relations built against them, as a single explicit value threaded
// through a run, rather than reaching for a process-wide singleton for
// the allocator and pool.
package database

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/relation"
	"github.com/ivmdb/ivmdb/internal/storage"
)

// ErrClosed is returned by CreateTable and Close once Close has run.
var ErrClosed = errors.New("database: context is closed")

// Context owns the page file and buffer pool for the lifetime of a run,
// along with the relations registered against them by name.
type Context struct {
	mu     sync.Mutex
	alloc  *storage.Allocator
	pool   bufferpool.Manager
	tables map[string]*relation.Relation
	closed bool
}

// Open creates the backing file at path (page size pageSize, pageCount
// pages) and a buffer pool of poolSize frames over it.
func Open(path string, pageSize, pageCount, poolSize int) (*Context, error) {
	alloc, err := storage.NewAllocator(path, pageSize, pageCount)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	return &Context{
		alloc:  alloc,
		pool:   bufferpool.NewPool(alloc, poolSize),
		tables: make(map[string]*relation.Relation),
	}, nil
}

// Pool exposes the context's buffer pool, for callers building cursors,
// views, or heap files directly against it.
func (c *Context) Pool() bufferpool.Manager { return c.pool }

// CreateTable registers a new, empty two-column relation under name, over
// global columns (order1, order2).
func (c *Context) CreateTable(name string, order1, order2 int) (*relation.Relation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("database: create table %q: already exists", name)
	}
	rel, err := relation.NewRelation(c.pool, order1, order2)
	if err != nil {
		return nil, fmt.Errorf("database: create table %q: %w", name, err)
	}
	c.tables[name] = rel
	return rel, nil
}

// Table returns the relation registered under name, if any.
func (c *Context) Table(name string) (*relation.Relation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rel, ok := c.tables[name]
	return rel, ok
}

// Tables returns every registered table name, in no particular order.
func (c *Context) Tables() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	return names
}

// Close flushes every dirty page and releases the backing file. A
// context must be discarded (not reused) after any failing operation;
// Close is still safe to call once to release resources in that case.
func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.closed = true
	if err := c.pool.FlushAll(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	if err := c.alloc.Close(); err != nil {
		return fmt.Errorf("database: close: %w", err)
	}
	return nil
}
