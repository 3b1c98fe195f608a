package cursor

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/relation"
	"github.com/ivmdb/ivmdb/internal/storage"
)

func newTestPool(t *testing.T) bufferpool.Manager {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 256, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	return bufferpool.NewPool(alloc, 64)
}

// TestBTrieCursor_ScansInOrder opens a cursor over a two-column relation
// and walks both nested depths, confirming the full set of pairs is
// produced in ascending order.
func TestBTrieCursor_ScansInOrder(t *testing.T) {
	pool := newTestPool(t)
	rel, err := relation.NewRelation(pool, 1, 2)
	require.NoError(t, err)

	pairs := [][2]int32{{1, 5}, {1, 9}, {3, 2}, {3, 4}, {7, 1}}
	for _, p := range pairs {
		_, err := rel.Insert(p[0], p[1])
		require.NoError(t, err)
	}

	c := NewBTrieCursor(rel)
	var got [][2]int32
	require.NoError(t, c.Open())
	for !c.AtEnd() {
		x := c.Key()
		require.NoError(t, c.Open())
		for !c.AtEnd() {
			got = append(got, [2]int32{x, c.Key()})
			require.NoError(t, c.Next())
		}
		require.NoError(t, c.Up())
		require.NoError(t, c.Next())
	}

	require.Equal(t, pairs, got)
}

// TestLeapfrog_ConvergesOnSharedKeys checks that two relations sharing
// their first column leapfrog-join to exactly the set of keys present in
// both.
func TestLeapfrog_ConvergesOnSharedKeys(t *testing.T) {
	pool := newTestPool(t)
	left, err := relation.NewRelation(pool, 1, 2)
	require.NoError(t, err)
	right, err := relation.NewRelation(pool, 1, 3)
	require.NoError(t, err)

	for _, p := range [][2]int32{{1, 10}, {2, 20}, {4, 40}} {
		_, err := left.Insert(p[0], p[1])
		require.NoError(t, err)
	}
	for _, p := range [][2]int32{{2, 200}, {3, 300}, {4, 400}} {
		_, err := right.Insert(p[0], p[1])
		require.NoError(t, err)
	}

	lc := NewBTrieCursor(left)
	rc := NewBTrieCursor(right)
	lj := NewLeapfrog(lc, rc)

	require.NoError(t, lj.Open())
	var matched []int32
	for !lj.AtEnd() {
		matched = append(matched, lj.Key())
		require.NoError(t, lj.Next())
	}

	require.Equal(t, []int32{2, 4}, matched)
}

// TestLeapfrog_ThreeWayWalkWithPassthroughDepths drives the full
// Open/Next/Up protocol over three two-column relations sharing a
// three-column ordering, where every cursor is dormant at one depth. The
// walk ascends and descends repeatedly, so each Up must restore the
// parent depth's active set before the next advance; the expected tuples
// come out in depth-first ascending order.
func TestLeapfrog_ThreeWayWalkWithPassthroughDepths(t *testing.T) {
	pool := newTestPool(t)
	r, err := relation.NewRelation(pool, 0, 1)
	require.NoError(t, err)
	s, err := relation.NewRelation(pool, 1, 2)
	require.NoError(t, err)
	tt, err := relation.NewRelation(pool, 0, 2)
	require.NoError(t, err)

	for _, p := range [][2]int32{{7, 4}, {8, 4}} {
		_, err := r.Insert(p[0], p[1])
		require.NoError(t, err)
	}
	for _, p := range [][2]int32{{4, 0}, {4, 1}, {4, 2}, {4, 3}} {
		_, err := s.Insert(p[0], p[1])
		require.NoError(t, err)
	}
	for _, p := range [][2]int32{{7, 0}, {7, 1}, {7, 2}, {8, 3}, {8, 4}} {
		_, err := tt.Insert(p[0], p[1])
		require.NoError(t, err)
	}

	lj := NewLeapfrog(
		NewRelationCursor(r),
		NewRelationCursor(s),
		NewRelationCursor(tt),
	)

	var got [][3]int32
	var walk func(prefix []int32) error
	walk = func(prefix []int32) error {
		if err := lj.Open(); err != nil {
			return err
		}
		for !lj.AtEnd() {
			row := append(append([]int32(nil), prefix...), lj.Key())
			if len(row) == 3 {
				got = append(got, [3]int32{row[0], row[1], row[2]})
			} else if err := walk(row); err != nil {
				return err
			}
			if err := lj.Next(); err != nil {
				return err
			}
		}
		return lj.Up()
	}
	require.NoError(t, walk(nil))

	require.Equal(t, [][3]int32{
		{7, 4, 0}, {7, 4, 1}, {7, 4, 2}, {8, 4, 3},
	}, got)
}

// TestBTrieCursor_ReversedRelationDescendsStorageOrder checks that a
// relation declared over (order1, order2) = (1, 0) presents its pairs to a
// cursor in storage order: depth 0 yields the smaller-numbered global
// column (the caller's second argument), depth 1 the other.
func TestBTrieCursor_ReversedRelationDescendsStorageOrder(t *testing.T) {
	pool := newTestPool(t)
	rel, err := relation.NewRelation(pool, 1, 0)
	require.NoError(t, err)
	require.True(t, rel.Reversed())

	_, err = rel.Insert(3, 7)
	require.NoError(t, err)

	c := NewBTrieCursor(rel)
	require.NoError(t, c.Open())
	require.Equal(t, int32(7), c.Key())
	require.NoError(t, c.Open())
	require.Equal(t, int32(3), c.Key())
}

func TestSingleton_YieldsExactlyOneValue(t *testing.T) {
	s := NewSingleton(42)
	require.NoError(t, s.Open())
	require.True(t, s.AtValidDepth())
	require.Equal(t, int32(42), s.Key())
	require.NoError(t, s.Next())
	require.True(t, s.AtEnd())
	require.False(t, s.AtValidDepth())
}
