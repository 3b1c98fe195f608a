package btrie

import "github.com/ivmdb/ivmdb/internal/storage"

// Kind classifies how an operation changed the shape of the subtree it
// touched, so the parent can decide what (if anything) needs to change
// about its own child pointer or separating key.
type Kind int

const (
	// Nothing means the parent has no structural work to do; any
	// mutation below was absorbed in place.
	Nothing Kind = iota
	// Split means the child produced a new right sibling that must be
	// linked into the parent.
	Split
	// Underflow means the child dropped below half occupancy (or became
	// empty) and its parent must repair it against a true sibling
	// before the walk continues upward.
	Underflow
)

// Diff is returned up the recursion by every B+-Trie mutating operation,
// telling the caller what happened below and what, if anything, it must do
// to its own node.
type Diff struct {
	Kind Kind

	// SplitKey/SplitChild describe the new right sibling produced by a
	// Split, to be inserted into the parent immediately after the
	// original child's slot.
	SplitKey   int32
	SplitChild storage.PageID
}

var diffNothing = Diff{Kind: Nothing}
