// Package query orchestrates the two supported query shapes, count and
// equijoin, each in a naïve (recompute-on-every-update) and an incremental
// (singleton-delta) variant, over a set of relations sharing a global
// column ordering.
package query

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/cursor"
	"github.com/ivmdb/ivmdb/internal/relation"
)

// Op distinguishes an insertion from a deletion in an incremental update.
type Op int

const (
	Insert Op = iota
	Delete
)

// Table names one relation registered against a query, by the global
// column positions it occupies.
type Table struct {
	Name string
	Rel  *relation.Relation
}

// Width returns one past the highest global column position any table
// occupies: the join's tuple width.
func Width(tables []Table) int {
	w := 0
	for _, t := range tables {
		if t.Rel.Order1+1 > w {
			w = t.Rel.Order1 + 1
		}
		if t.Rel.Order2+1 > w {
			w = t.Rel.Order2 + 1
		}
	}
	return w
}

func findTable(tables []Table, name string) (Table, error) {
	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("query: unknown table %q", name)
}

// fullScanJoin builds a leapfrog triejoin over a full scan of every table.
func fullScanJoin(tables []Table) cursor.Cursor {
	cs := make([]cursor.Cursor, len(tables))
	for i, t := range tables {
		cs[i] = cursor.NewRelationCursor(t.Rel)
	}
	return cursor.NewLeapfrog(cs...)
}

// deltaJoin builds a leapfrog triejoin where the named table's cursor is a
// singleton standing in for (x, y) and every other table is a full scan,
// used to compute the incremental effect of one row changing.
func deltaJoin(tables []Table, changed string, x, y int32) (cursor.Cursor, error) {
	cs := make([]cursor.Cursor, len(tables))
	found := false
	for i, t := range tables {
		if t.Name == changed {
			cs[i] = cursor.NewUpdateCursor(t.Rel, x, y)
			found = true
			continue
		}
		cs[i] = cursor.NewRelationCursor(t.Rel)
	}
	if !found {
		return nil, fmt.Errorf("query: unknown table %q", changed)
	}
	return cursor.NewLeapfrog(cs...), nil
}

// enumerate walks c depth-first through every one of its width levels,
// calling emit with the full tuple of keys at each leaf (a depth-(width-1)
// match).
func enumerate(c cursor.Cursor, width int, prefix []int32, emit func([]int32) error) error {
	if err := c.Open(); err != nil {
		return fmt.Errorf("query: enumerate: %w", err)
	}
	defer func() { _ = c.Up() }()

	depth := len(prefix)
	for !c.AtEnd() {
		row := append(append([]int32(nil), prefix...), c.Key())
		if depth+1 == width {
			if err := emit(row); err != nil {
				return err
			}
		} else if err := enumerate(c, width, row, emit); err != nil {
			return err
		}
		if err := c.Next(); err != nil {
			return fmt.Errorf("query: enumerate: %w", err)
		}
	}
	return nil
}

// countTuples is enumerate specialised to counting leaves, without
// allocating the intervening tuple prefixes.
func countTuples(c cursor.Cursor, width, depth int) (int64, error) {
	if err := c.Open(); err != nil {
		return 0, fmt.Errorf("query: count: %w", err)
	}
	defer func() { _ = c.Up() }()

	var n int64
	for !c.AtEnd() {
		if depth+1 == width {
			n++
		} else {
			sub, err := countTuples(c, width, depth+1)
			if err != nil {
				return 0, err
			}
			n += sub
		}
		if err := c.Next(); err != nil {
			return 0, fmt.Errorf("query: count: %w", err)
		}
	}
	return n, nil
}
