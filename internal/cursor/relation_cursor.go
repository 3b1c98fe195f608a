package cursor

import "github.com/ivmdb/ivmdb/internal/relation"

// NewRelationCursor returns a cursor over rel placed at its two global
// column depths (rel.Order1, rel.Order2) in a shared join ordering: every
// other depth is passthrough, letting rel sit alongside relations that
// don't share both of its columns in the same multi-way leapfrog triejoin.
func NewRelationCursor(rel *relation.Relation) Cursor {
	lo, hi := rel.Order1, rel.Order2
	if lo > hi {
		lo, hi = hi, lo
	}
	// The underlying B+-Trie cursor always descends outer (the smaller
	// global column) before inner (the larger), per Relation's storage
	// normalisation, so its own depth 0/1 map onto lo/hi in that order
	// regardless of the caller's (Order1, Order2) argument order.
	return NewRelative(NewBTrieCursor(rel), lo, hi)
}

// NewUpdateCursor returns a cursor standing in for the single row (x, y)
// just inserted into or removed from rel, placed at the same two global
// depths a NewRelationCursor over rel would occupy.
func NewUpdateCursor(rel *relation.Relation, x, y int32) Cursor {
	lo, hi := rel.Order1, rel.Order2
	loVal, hiVal := x, y
	if lo > hi {
		lo, hi = hi, lo
		loVal, hiVal = y, x
	}
	return NewRelative(NewSingletonPair(loVal, hiVal), lo, hi)
}
