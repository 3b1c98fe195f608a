package query

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/heap"
	"github.com/ivmdb/ivmdb/internal/view"
)

// EquiJoin maintains a materialised view of the natural join of a fixed
// set of relations, represented as a fractal trie of width-wide tuples.
type EquiJoin struct {
	tables []Table
	width  int
	view   *view.View
}

// NewEquiJoin returns an empty equijoin view over tables, backed by a
// fresh fractal trie.
func NewEquiJoin(pool bufferpool.Manager, tables ...Table) (*EquiJoin, error) {
	width := Width(tables)
	v, err := view.New(pool, width)
	if err != nil {
		return nil, fmt.Errorf("query: new equijoin: %w", err)
	}
	return &EquiJoin{tables: tables, width: width, view: v}, nil
}

// Recompute clears the view and replays the full join, logging one insert
// message per resulting tuple.
func (q *EquiJoin) Recompute() error {
	if err := q.view.Clear(); err != nil {
		return fmt.Errorf("query: equijoin recompute: %w", err)
	}
	err := enumerate(fullScanJoin(q.tables), q.width, nil, func(row []int32) error {
		return q.view.Insert(row)
	})
	if err != nil {
		return fmt.Errorf("query: equijoin recompute: %w", err)
	}
	return nil
}

// Update applies a single row change (x, y) to table, running the
// singleton-based delta join and logging each resulting tuple as an
// insert (op == Insert) or a delete (op == Delete) message.
func (q *EquiJoin) Update(table string, op Op, x, y int32) error {
	join, err := deltaJoin(q.tables, table, x, y)
	if err != nil {
		return err
	}
	return enumerate(join, q.width, nil, func(row []int32) error {
		switch op {
		case Insert:
			return q.view.Insert(row)
		default:
			return q.view.Remove(row)
		}
	})
}

// Tuples returns the view's current result set.
func (q *EquiJoin) Tuples() ([][]int32, error) {
	rows, err := q.view.Scan()
	if err != nil {
		return nil, fmt.Errorf("query: equijoin tuples: %w", err)
	}
	return rows, nil
}

// Close releases the view's long-lived root pin.
func (q *EquiJoin) Close() error { return q.view.Close() }

// NaiveEquiJoin is the non-incremental counterpart of EquiJoin: every
// Update simply recomputes the whole join from scratch, and the result set
// is materialised into a heap file rather than a fractal trie.
type NaiveEquiJoin struct {
	tables []Table
	width  int
	heap   *heap.File
}

// NewNaiveEquiJoin returns an empty naïve equijoin over tables, backed by
// a fresh heap file.
func NewNaiveEquiJoin(pool bufferpool.Manager, tables ...Table) (*NaiveEquiJoin, error) {
	width := Width(tables)
	h, err := heap.New(pool, width)
	if err != nil {
		return nil, fmt.Errorf("query: new naive equijoin: %w", err)
	}
	return &NaiveEquiJoin{tables: tables, width: width, heap: h}, nil
}

// Recompute empties the heap and re-logs the full join's result.
func (q *NaiveEquiJoin) Recompute() error {
	if err := q.heap.Reset(); err != nil {
		return fmt.Errorf("query: naive equijoin recompute: %w", err)
	}
	err := enumerate(fullScanJoin(q.tables), q.width, nil, func(row []int32) error {
		return q.heap.Append(row)
	})
	if err != nil {
		return fmt.Errorf("query: naive equijoin recompute: %w", err)
	}
	return nil
}

// Update ignores op, x, and y and recomputes the join from scratch.
func (q *NaiveEquiJoin) Update(table string, op Op, x, y int32) error {
	return q.Recompute()
}

// Tuples returns the join's current materialised result set.
func (q *NaiveEquiJoin) Tuples() ([][]int32, error) {
	return q.heap.Scan()
}
