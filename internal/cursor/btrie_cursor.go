package cursor

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/btrie"
	"github.com/ivmdb/ivmdb/internal/relation"
	"github.com/ivmdb/ivmdb/internal/storage"
)

type btrieFrame struct {
	trie *btrie.Trie
	pid  storage.PageID
	pos  int
}

// BTrieCursor walks a relation's nested B+-Trie two levels deep: depth 0 is
// the outer trie (the relation's smaller-numbered global column, per its
// storage normalisation), depth 1 is the inner trie selected by the current
// depth-0 record.
type BTrieCursor struct {
	rel   *relation.Relation
	stack []btrieFrame
	atEnd bool
}

var _ Cursor = (*BTrieCursor)(nil)

// NewBTrieCursor returns a cursor over rel, starting at depth -1.
func NewBTrieCursor(rel *relation.Relation) *BTrieCursor {
	return &BTrieCursor{rel: rel}
}

func (c *BTrieCursor) Depth() int { return len(c.stack) - 1 }

// firstLeaf walks down the trie's leftmost spine to the first leaf page id,
// without materialising a scan.
func firstLeaf(tr *btrie.Trie, root storage.PageID) (storage.PageID, error) {
	pid := root
	for {
		n, err := btrie.Load(tr.Pool, pid)
		if err != nil {
			return storage.NoPage, err
		}
		if n.Tag() == btrie.TagLeaf {
			if err := tr.Pool.Unpin(pid, false); err != nil {
				return storage.NoPage, err
			}
			return pid, nil
		}
		next := n.Child(0)
		if err := tr.Pool.Unpin(pid, false); err != nil {
			return storage.NoPage, err
		}
		pid = next
	}
}

// Open descends into the next depth: from the dummy root into the outer
// trie's leftmost leaf, or from a positioned depth-0 record into that
// record's inner trie.
func (c *BTrieCursor) Open() error {
	switch len(c.stack) {
	case 0:
		pid, err := firstLeaf(c.rel.Outer(), c.rel.OuterRoot)
		if err != nil {
			return fmt.Errorf("cursor: open: %w", err)
		}
		c.stack = append(c.stack, btrieFrame{trie: c.rel.Outer(), pid: pid, pos: 0})
	case 1:
		leaf, err := btrie.Load(c.rel.Outer().Pool, c.stack[0].pid)
		if err != nil {
			return fmt.Errorf("cursor: open: %w", err)
		}
		innerRoot := storage.PageID(leaf.LeafRecord(c.stack[0].pos)[1])
		if err := c.rel.Outer().Pool.Unpin(c.stack[0].pid, false); err != nil {
			return fmt.Errorf("cursor: open: %w", err)
		}
		pid, err := firstLeaf(c.rel.Inner(), innerRoot)
		if err != nil {
			return fmt.Errorf("cursor: open: %w", err)
		}
		c.stack = append(c.stack, btrieFrame{trie: c.rel.Inner(), pid: pid, pos: 0})
	default:
		return fmt.Errorf("cursor: open: already at maximum depth")
	}
	c.refreshAtEnd()
	return nil
}

// Up discards the current depth's frame.
func (c *BTrieCursor) Up() error {
	if len(c.stack) == 0 {
		return fmt.Errorf("cursor: up: already at the dummy root")
	}
	c.stack = c.stack[:len(c.stack)-1]
	c.refreshAtEnd()
	return nil
}

func (c *BTrieCursor) top() *btrieFrame { return &c.stack[len(c.stack)-1] }

func (c *BTrieCursor) refreshAtEnd() {
	if len(c.stack) == 0 {
		c.atEnd = true
		return
	}
	f := c.top()
	n, err := btrie.Load(f.trie.Pool, f.pid)
	if err != nil {
		c.atEnd = true
		return
	}
	c.atEnd = f.pos >= n.Count()
	_ = f.trie.Pool.Unpin(f.pid, false)
}

// Next advances the current depth's position, following the leaf chain
// when the current leaf is exhausted.
func (c *BTrieCursor) Next() error {
	if len(c.stack) == 0 {
		return fmt.Errorf("cursor: next: at the dummy root")
	}
	f := c.top()
	n, err := btrie.Load(f.trie.Pool, f.pid)
	if err != nil {
		return fmt.Errorf("cursor: next: %w", err)
	}
	f.pos++
	if f.pos >= n.Count() {
		next := n.Next()
		if err := f.trie.Pool.Unpin(f.pid, false); err != nil {
			return fmt.Errorf("cursor: next: %w", err)
		}
		if next == storage.NoPage {
			c.atEnd = true
			return nil
		}
		f.pid = next
		f.pos = 0
		c.refreshAtEnd()
		return nil
	}
	if err := f.trie.Pool.Unpin(f.pid, false); err != nil {
		return fmt.Errorf("cursor: next: %w", err)
	}
	c.atEnd = false
	return nil
}

// Seek advances the current depth forward to the first key >= target,
// walking the leaf chain as needed. A no-op when the current key is
// already >= target: a seek never moves the cursor backwards.
func (c *BTrieCursor) Seek(target int32) error {
	if len(c.stack) == 0 {
		return fmt.Errorf("cursor: seek: at the dummy root")
	}
	if !c.atEnd && c.Key() >= target {
		return nil
	}
	f := c.top()
	for {
		n, err := btrie.Load(f.trie.Pool, f.pid)
		if err != nil {
			return fmt.Errorf("cursor: seek: %w", err)
		}
		idx := n.FindKey(target)
		if idx < f.pos {
			idx = f.pos
		}
		if idx < n.Count() {
			f.pos = idx
			if err := f.trie.Pool.Unpin(f.pid, false); err != nil {
				return fmt.Errorf("cursor: seek: %w", err)
			}
			c.atEnd = false
			return nil
		}
		next := n.Next()
		if err := f.trie.Pool.Unpin(f.pid, false); err != nil {
			return fmt.Errorf("cursor: seek: %w", err)
		}
		if next == storage.NoPage {
			f.pos = n.Count()
			c.atEnd = true
			return nil
		}
		f.pid = next
		f.pos = 0
	}
}

// Key returns the key at the current depth.
func (c *BTrieCursor) Key() int32 {
	f := c.top()
	n, err := btrie.Load(f.trie.Pool, f.pid)
	if err != nil {
		return 0
	}
	k := n.LeafKey(f.pos)
	_ = f.trie.Pool.Unpin(f.pid, false)
	return k
}

func (c *BTrieCursor) AtEnd() bool { return c.atEnd }

// AtValidDepth reports whether the cursor is positioned (depth >= 0) and
// has not run off the end of the current depth.
func (c *BTrieCursor) AtValidDepth() bool { return len(c.stack) > 0 && !c.atEnd }
