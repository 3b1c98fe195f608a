package cursor

import "math"

// NegInf and PosInf are the sentinel keys a cursor reports at a depth it
// does not genuinely contribute to: NegInf while the join still has
// somewhere to go at that depth, PosInf once the underlying source is
// exhausted. Neither is a legal stored key (columns are ordinary int32
// values the caller controls; these occupy the two ends of the range no
// caller-supplied key can reach in practice for the relations this engine
// indexes).
const (
	NegInf = int32(math.MinInt32)
	PosInf = int32(math.MaxInt32)
)

// Relative wraps a cursor that only knows how to navigate its own two (or
// one) depths and re-numbers those depths against a shared global column
// ordering: Dims lists, in ascending order, the global depth each of the
// inner cursor's own depths (0, 1, ...) corresponds to. Any global depth
// not in Dims is a passthrough: Open/Up still advance an internal counter
// (so depth bookkeeping for a join over several relations stays in lock
// step) but Key/AtEnd/AtValidDepth behave as if nothing were there.
//
// This is the mechanism behind a shared "global column ordering": a relation
// participates at exactly two depths (its Order1, Order2) in a shared
// ordering used by a multi-way leapfrog triejoin; every other depth is
// passthrough for it.
type Relative struct {
	inner Cursor
	dims  []int // ascending global depth for inner's own depth i
	depth int   // global depth, -1 before the first Open
}

var _ Cursor = (*Relative)(nil)

// NewRelative wraps inner, whose own successive Open() calls walk depths
// dims[0], dims[1], ... in the shared global ordering.
func NewRelative(inner Cursor, dims ...int) *Relative {
	return &Relative{inner: inner, dims: dims, depth: -1}
}

// realDepth reports the inner cursor's own depth index for the current
// global depth, or -1 if the current global depth is a passthrough.
func (r *Relative) realDepth() int {
	for i, d := range r.dims {
		if d == r.depth {
			return i
		}
	}
	return -1
}

func (r *Relative) Depth() int { return r.depth }

func (r *Relative) Open() error {
	r.depth++
	if r.realDepth() >= 0 {
		return r.inner.Open()
	}
	return nil
}

func (r *Relative) Up() error {
	if r.realDepth() >= 0 {
		if err := r.inner.Up(); err != nil {
			return err
		}
	}
	r.depth--
	return nil
}

func (r *Relative) Next() error {
	if r.realDepth() >= 0 {
		return r.inner.Next()
	}
	return nil
}

func (r *Relative) Seek(target int32) error {
	if r.realDepth() >= 0 {
		return r.inner.Seek(target)
	}
	return nil
}

func (r *Relative) Key() int32 {
	if r.realDepth() >= 0 {
		return r.inner.Key()
	}
	return NegInf
}

func (r *Relative) AtEnd() bool {
	if r.realDepth() >= 0 {
		return r.inner.AtEnd()
	}
	return false
}

func (r *Relative) AtValidDepth() bool {
	if r.realDepth() >= 0 {
		return r.inner.AtValidDepth()
	}
	return false
}
