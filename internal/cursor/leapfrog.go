package cursor

import "sort"

// Leapfrog composes N input cursors into their leapfrog triejoin: at each
// depth, only cursors that currently contribute a real key to that depth
// (AtValidDepth) participate — the rest are dormant passthroughs, still
// pushed through Open/Up so their own depth bookkeeping stays correct, but
// excluded from the key-convergence search.
type Leapfrog struct {
	iters []Cursor
	order []int // indices into iters, sorted ascending by key among the active set
	p     int   // round-robin pointer into order
	atEnd bool
	depth int
}

var _ Cursor = (*Leapfrog)(nil)

// NewLeapfrog returns a triejoin cursor over the given input cursors, all
// of which must already share the same depth numbering.
func NewLeapfrog(iters ...Cursor) *Leapfrog {
	return &Leapfrog{iters: iters, depth: -1}
}

func (lj *Leapfrog) Depth() int { return lj.depth }

// Open descends every input cursor one depth, then partitions and
// converges the newly active set.
func (lj *Leapfrog) Open() error {
	for _, it := range lj.iters {
		if err := it.Open(); err != nil {
			return err
		}
	}
	lj.depth++
	return lj.init()
}

// Up returns every input cursor to its parent depth, then rebuilds the
// parent depth's active set and round-robin pointer: the partition and
// ordering left behind by the deeper level are stale here, and a
// subsequent Next/search over them would converge on the wrong cursors.
func (lj *Leapfrog) Up() error {
	for _, it := range lj.iters {
		if err := it.Up(); err != nil {
			return err
		}
	}
	lj.depth--
	if lj.depth < 0 {
		return nil
	}
	return lj.init()
}

func (lj *Leapfrog) init() error {
	lj.buildActiveOrder()
	lj.p = 0
	// A cursor already exhausted at this depth reports AtValidDepth false
	// and so is left out of the active set; it still empties the join.
	for _, it := range lj.iters {
		if it.AtEnd() {
			lj.atEnd = true
			return nil
		}
	}
	return lj.search()
}

func (lj *Leapfrog) buildActiveOrder() {
	lj.order = lj.order[:0]
	for i, it := range lj.iters {
		if it.AtValidDepth() {
			lj.order = append(lj.order, i)
		}
	}
	sort.Slice(lj.order, func(a, b int) bool {
		return lj.iters[lj.order[a]].Key() < lj.iters[lj.order[b]].Key()
	})
}

// search runs the leapfrog convergence loop: repeatedly seek the iterator
// holding the current round's minimum key up to the maximum key held by any
// active iterator, until all active iterators agree on one key (a match) or
// one of them runs out (the join at this depth is exhausted).
func (lj *Leapfrog) search() error {
	n := len(lj.order)
	if n == 0 {
		lj.atEnd = false
		return nil
	}
	for {
		minIter := lj.iters[lj.order[lj.p]]
		if minIter.AtEnd() {
			lj.atEnd = true
			return nil
		}
		maxIter := lj.iters[lj.order[(lj.p+n-1)%n]]
		maxKey := maxIter.Key()
		if minIter.Key() == maxKey {
			lj.atEnd = false
			return nil
		}
		if err := minIter.Seek(maxKey); err != nil {
			return err
		}
		if minIter.AtEnd() {
			lj.atEnd = true
			return nil
		}
		lj.p = (lj.p + 1) % n
	}
}

// Next advances the current depth past the converged match.
func (lj *Leapfrog) Next() error {
	n := len(lj.order)
	if n == 0 {
		return nil
	}
	idx := lj.order[lj.p]
	if err := lj.iters[idx].Next(); err != nil {
		return err
	}
	if lj.iters[idx].AtEnd() {
		lj.atEnd = true
		return nil
	}
	lj.p = (lj.p + 1) % n
	return lj.search()
}

// Seek advances the join to the first matching key >= target.
func (lj *Leapfrog) Seek(target int32) error {
	n := len(lj.order)
	if n == 0 {
		return nil
	}
	idx := lj.order[lj.p]
	if err := lj.iters[idx].Seek(target); err != nil {
		return err
	}
	if lj.iters[idx].AtEnd() {
		lj.atEnd = true
		return nil
	}
	return lj.search()
}

// Key returns the converged key shared by every active input cursor.
func (lj *Leapfrog) Key() int32 {
	if len(lj.order) == 0 {
		return 0
	}
	return lj.iters[lj.order[0]].Key()
}

func (lj *Leapfrog) AtEnd() bool { return lj.atEnd }

func (lj *Leapfrog) AtValidDepth() bool { return !lj.atEnd }
