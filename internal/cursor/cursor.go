// Package cursor implements the polymorphic trie cursor abstraction shared
// by every index structure in the system: a B+-Trie cursor over a stored
// relation, a singleton cursor standing in for a single bound value, and
// the leapfrog triejoin cursor that composes several of either into one
// ordered stream of matching tuples.
package cursor

// Cursor is the depth-indexed navigation contract every trie-backed
// iterator implements. A cursor starts at a virtual depth of -1 (nothing
// opened yet); Open descends one level, Up returns to the parent level,
// Next advances within the current level, and Seek jumps forward within
// the current level to the first key not less than target.
type Cursor interface {
	// Open descends into the next depth, positioning at its first key.
	Open() error
	// Up returns to the parent depth.
	Up() error
	// Next advances to the next key at the current depth.
	Next() error
	// Seek advances the current depth to the first key >= target.
	Seek(target int32) error
	// Key returns the key at the current depth. Only valid when
	// AtValidDepth reports true.
	Key() int32
	// AtEnd reports whether the current depth has been exhausted.
	AtEnd() bool
	// AtValidDepth reports whether the cursor currently sits at a depth
	// that contributes a real key to a join over it (as opposed to a
	// dormant cursor sitting above or below the join's current depth).
	AtValidDepth() bool
	// Depth reports the current depth, -1 before the first Open.
	Depth() int
}
