// Package view wraps a fractal trie as the materialised result set of an
// incremental query: the set of width-wide tuples a query currently
// believes satisfy its predicate.
package view

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/ftrie"
)

// View owns one fractal trie whose records are the query's output tuples.
// The trie keeps its root pinned for the view's lifetime, so batches of
// logged updates never re-fault it; Close releases that pin.
type View struct {
	tree *ftrie.Tree
}

// New creates an empty view of width-wide tuples.
func New(pool bufferpool.Manager, width int) (*View, error) {
	tree, err := ftrie.New(pool, width)
	if err != nil {
		return nil, fmt.Errorf("view: new: %w", err)
	}
	return &View{tree: tree}, nil
}

// Width is the number of columns in each tuple.
func (v *View) Width() int { return v.tree.Width() }

// Insert logs row as newly present in the view's result set.
func (v *View) Insert(row []int32) error {
	if err := v.tree.Insert(row); err != nil {
		return fmt.Errorf("view: insert: %w", err)
	}
	return nil
}

// Remove logs row as no longer present in the view's result set.
func (v *View) Remove(row []int32) error {
	if err := v.tree.Delete(row); err != nil {
		return fmt.Errorf("view: remove: %w", err)
	}
	return nil
}

// Contains reports whether row is currently a member of the result set.
func (v *View) Contains(row []int32) (bool, error) {
	ok, err := v.tree.Contains(row)
	if err != nil {
		return false, fmt.Errorf("view: contains: %w", err)
	}
	return ok, nil
}

// Scan returns the view's current result set in ascending tuple order.
func (v *View) Scan() ([][]int32, error) {
	out, err := v.tree.Scan()
	if err != nil {
		return nil, fmt.Errorf("view: scan: %w", err)
	}
	return out, nil
}

// Clear eagerly empties the view, freeing every page it occupied.
func (v *View) Clear() error {
	if err := v.tree.Clear(); err != nil {
		return fmt.Errorf("view: clear: %w", err)
	}
	return nil
}

// Close releases the view's long-lived root pin.
func (v *View) Close() error {
	if err := v.tree.Close(); err != nil {
		return fmt.Errorf("view: close: %w", err)
	}
	return nil
}
