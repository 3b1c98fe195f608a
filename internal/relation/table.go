// Package relation implements the two-column input relation: a nested
// B+-Trie (an outer trie over one column whose leaf slots each point at an
// inner trie over the other column) together with the column-order
// normalisation that lets any two global column numbers share this layout.
package relation

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/btrie"
	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

// Relation stores exactly the pairs (x, y) inserted into it, indexed for
// point lookup and ordered scan on either column via the outer/inner split.
type Relation struct {
	pool bufferpool.Manager

	// Order1/Order2 are the global column numbers of this relation's two
	// arguments, in the order the caller presents them to Insert/Remove.
	Order1, Order2 int

	// reversed is true when Order1 > Order2: storage always keys the outer
	// trie by the smaller-numbered column, so argument order at the
	// storage layer may need swapping relative to the caller's order.
	reversed bool

	outer     *btrie.Trie
	inner     *btrie.Trie
	OuterRoot storage.PageID
}

// NewRelation creates an empty relation over global columns order1 and
// order2 (in that argument order).
func NewRelation(pool bufferpool.Manager, order1, order2 int) (*Relation, error) {
	outer := btrie.New(pool, 2)
	root, err := btrie.NewLeaf(pool, 2)
	if err != nil {
		return nil, fmt.Errorf("relation: new: %w", err)
	}
	return &Relation{
		pool:      pool,
		Order1:    order1,
		Order2:    order2,
		reversed:  order1 > order2,
		outer:     outer,
		inner:     btrie.New(pool, 1),
		OuterRoot: root,
	}, nil
}

// storageKeys maps the caller's (x, y) argument pair, given in Order1/Order2
// order, to (outerKey, innerKey) in storage order.
func (r *Relation) storageKeys(x, y int32) (outerKey, innerKey int32) {
	if r.reversed {
		return y, x
	}
	return x, y
}

// globalPair maps a stored (outerKey, innerKey) pair back to (x, y) in
// Order1/Order2 order.
func (r *Relation) globalPair(outerKey, innerKey int32) (x, y int32) {
	if r.reversed {
		return innerKey, outerKey
	}
	return outerKey, innerKey
}

// Insert adds (x, y) if absent, and reports whether it was newly added.
func (r *Relation) Insert(x, y int32) (bool, error) {
	outerKey, innerKey := r.storageKeys(x, y)

	outerRec, found, err := r.outer.Find(r.OuterRoot, outerKey)
	if err != nil {
		return false, fmt.Errorf("relation: insert: %w", err)
	}

	if !found {
		innerRoot, err := btrie.NewLeaf(r.pool, 1)
		if err != nil {
			return false, fmt.Errorf("relation: insert: %w", err)
		}
		innerRoot, err = r.inner.Reserve(innerRoot, innerKey, []int32{innerKey})
		if err != nil {
			return false, fmt.Errorf("relation: insert: %w", err)
		}
		r.OuterRoot, err = r.outer.Reserve(r.OuterRoot, outerKey, []int32{outerKey, int32(innerRoot)})
		if err != nil {
			return false, fmt.Errorf("relation: insert: %w", err)
		}
		return true, nil
	}

	innerRoot := storage.PageID(outerRec[1])
	_, already, err := r.inner.Find(innerRoot, innerKey)
	if err != nil {
		return false, fmt.Errorf("relation: insert: %w", err)
	}
	if already {
		return false, nil
	}

	newInnerRoot, err := r.inner.Reserve(innerRoot, innerKey, []int32{innerKey})
	if err != nil {
		return false, fmt.Errorf("relation: insert: %w", err)
	}
	if newInnerRoot != innerRoot {
		r.OuterRoot, err = r.outer.Reserve(r.OuterRoot, outerKey, []int32{outerKey, int32(newInnerRoot)})
		if err != nil {
			return false, fmt.Errorf("relation: insert: %w", err)
		}
	}
	return true, nil
}

// Remove deletes (x, y) if present, collapsing the inner trie (and its
// outer slot) when the last record under outerKey is removed, and reports
// whether anything was deleted.
func (r *Relation) Remove(x, y int32) (bool, error) {
	outerKey, innerKey := r.storageKeys(x, y)

	outerRec, found, err := r.outer.Find(r.OuterRoot, outerKey)
	if err != nil {
		return false, fmt.Errorf("relation: remove: %w", err)
	}
	if !found {
		return false, nil
	}
	innerRoot := storage.PageID(outerRec[1])

	newInnerRoot, deleted, err := r.inner.DeleteIf(innerRoot, innerKey, nil)
	if err != nil {
		return false, fmt.Errorf("relation: remove: %w", err)
	}
	if !deleted {
		return false, nil
	}

	innerRecs, err := r.inner.Scan(newInnerRoot)
	if err != nil {
		return false, fmt.Errorf("relation: remove: %w", err)
	}
	if len(innerRecs) == 0 {
		if err := r.pool.Free(newInnerRoot); err != nil {
			return false, fmt.Errorf("relation: remove: %w", err)
		}
		r.OuterRoot, _, err = r.outer.DeleteIf(r.OuterRoot, outerKey, nil)
		if err != nil {
			return false, fmt.Errorf("relation: remove: %w", err)
		}
		return true, nil
	}

	r.OuterRoot, err = r.outer.Reserve(r.OuterRoot, outerKey, []int32{outerKey, int32(newInnerRoot)})
	if err != nil {
		return false, fmt.Errorf("relation: remove: %w", err)
	}
	return true, nil
}

// Contains reports whether (x, y) is currently stored.
func (r *Relation) Contains(x, y int32) (bool, error) {
	outerKey, innerKey := r.storageKeys(x, y)
	outerRec, found, err := r.outer.Find(r.OuterRoot, outerKey)
	if err != nil || !found {
		return false, err
	}
	_, found, err = r.inner.Find(storage.PageID(outerRec[1]), innerKey)
	return found, err
}

// Scan returns every stored pair, in (Order1, Order2) argument order, sorted
// by storage key (outer then inner). Intended for small relations (tests,
// debug tooling); production access goes through a Cursor.
func (r *Relation) Scan() ([][2]int32, error) {
	outerRecs, err := r.outer.Scan(r.OuterRoot)
	if err != nil {
		return nil, fmt.Errorf("relation: scan: %w", err)
	}

	var out [][2]int32
	for _, rec := range outerRecs {
		outerKey, innerRoot := rec[0], storage.PageID(rec[1])
		innerRecs, err := r.inner.Scan(innerRoot)
		if err != nil {
			return nil, fmt.Errorf("relation: scan: %w", err)
		}
		for _, irec := range innerRecs {
			x, y := r.globalPair(outerKey, irec[0])
			out = append(out, [2]int32{x, y})
		}
	}
	return out, nil
}

// InnerRootFor returns the inner trie root page id stored under outerKey
// (in storage-key order, not Order1/Order2 order), for callers building a
// cursor directly over the nested structure.
func (r *Relation) InnerRootFor(outerKey int32) (storage.PageID, bool, error) {
	rec, found, err := r.outer.Find(r.OuterRoot, outerKey)
	if err != nil || !found {
		return storage.NoPage, false, err
	}
	return storage.PageID(rec[1]), true, nil
}

// Outer and Inner expose the underlying tries for cursor construction.
func (r *Relation) Outer() *btrie.Trie { return r.outer }
func (r *Relation) Inner() *btrie.Trie { return r.inner }

// Reversed reports whether storage order is swapped relative to
// (Order1, Order2).
func (r *Relation) Reversed() bool { return r.reversed }
