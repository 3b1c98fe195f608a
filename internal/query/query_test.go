package query

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/relation"
	"github.com/ivmdb/ivmdb/internal/storage"
)

func newTestPool(t *testing.T) bufferpool.Manager {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 1024, 8192)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	return bufferpool.NewPool(alloc, 128)
}

// rstTables builds R(x,y) at columns (0,1), S(y,z) at columns (1,2), and
// T(x,z) at columns (0,2), loaded with a fixture whose natural join is
// exactly {(7,4,0), (7,4,1), (7,4,2), (8,4,3)}.
func rstTables(t *testing.T, pool bufferpool.Manager) []Table {
	t.Helper()
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

	return []Table{
		{Name: "R", Rel: r},
		{Name: "S", Rel: s},
		{Name: "T", Rel: tt},
	}
}

func sortRows(rows [][]int32) {
	sort.Slice(rows, func(i, j int) bool {
		for k := range rows[i] {
			if rows[i][k] != rows[j][k] {
				return rows[i][k] < rows[j][k]
			}
		}
		return false
	})
}

// TestCount_ThreeWayJoinCountsMatchingTuples checks that the leapfrog
// join of R, S, T produces exactly 4 matching tuples.
func TestCount_ThreeWayJoinCountsMatchingTuples(t *testing.T) {
	pool := newTestPool(t)
	tables := rstTables(t, pool)

	q := NewCount(tables...)
	require.NoError(t, q.Recompute())
	require.Equal(t, int64(4), q.Value())
}

// TestEquiJoin_ThreeWayJoinProducesExactTupleSet checks the same fixture
// through the materialised view path, confirming the exact tuple set.
func TestEquiJoin_ThreeWayJoinProducesExactTupleSet(t *testing.T) {
	pool := newTestPool(t)
	tables := rstTables(t, pool)

	q, err := NewEquiJoin(pool, tables...)
	require.NoError(t, err)
	require.NoError(t, q.Recompute())

	got, err := q.Tuples()
	require.NoError(t, err)
	sortRows(got)

	want := [][]int32{{7, 4, 0}, {7, 4, 1}, {7, 4, 2}, {8, 4, 3}}
	sortRows(want)
	require.Equal(t, want, got)
}

// TestCount_IncrementalUpdateMatchesDelayedMatch checks that inserting
// R(9,4) adds nothing to the count (no T-tuple for x=9 exists yet), and
// that inserting T(9,0) afterward then adds exactly 1.
func TestCount_IncrementalUpdateMatchesDelayedMatch(t *testing.T) {
	pool := newTestPool(t)
	tables := rstTables(t, pool)

	q := NewCount(tables...)
	require.NoError(t, q.Recompute())
	base := q.Value()

	r := tables[0].Rel
	_, err := r.Insert(9, 4)
	require.NoError(t, err)
	require.NoError(t, q.Update("R", Insert, 9, 4))
	require.Equal(t, base, q.Value(), "no matching T row for x=9 yet")

	tt := tables[2].Rel
	_, err = tt.Insert(9, 0)
	require.NoError(t, err)
	require.NoError(t, q.Update("T", Insert, 9, 0))
	require.Equal(t, base+1, q.Value())
}

// TestEquiJoin_IncrementalUpdateLogsInsertsAndDeletes drives the delta
// path of the materialised view: inserting T(9,0) after R(9,4) must log
// exactly the new tuple (9,4,0), and removing R(9,4) again must retract
// it, leaving the original result set.
func TestEquiJoin_IncrementalUpdateLogsInsertsAndDeletes(t *testing.T) {
	pool := newTestPool(t)
	tables := rstTables(t, pool)

	q, err := NewEquiJoin(pool, tables...)
	require.NoError(t, err)
	require.NoError(t, q.Recompute())

	r, tt := tables[0].Rel, tables[2].Rel
	_, err = r.Insert(9, 4)
	require.NoError(t, err)
	require.NoError(t, q.Update("R", Insert, 9, 4))
	_, err = tt.Insert(9, 0)
	require.NoError(t, err)
	require.NoError(t, q.Update("T", Insert, 9, 0))

	got, err := q.Tuples()
	require.NoError(t, err)
	sortRows(got)
	want := [][]int32{{7, 4, 0}, {7, 4, 1}, {7, 4, 2}, {8, 4, 3}, {9, 4, 0}}
	require.Equal(t, want, got)

	_, err = r.Remove(9, 4)
	require.NoError(t, err)
	require.NoError(t, q.Update("R", Delete, 9, 4))

	got, err = q.Tuples()
	require.NoError(t, err)
	sortRows(got)
	require.Equal(t, want[:4], got)
}

func TestNaiveCount_RecomputesOnEveryUpdate(t *testing.T) {
	pool := newTestPool(t)
	tables := rstTables(t, pool)

	q := NewNaiveCount(tables...)
	require.NoError(t, q.Recompute())
	require.Equal(t, int64(4), q.Value())

	r := tables[0].Rel
	_, err := r.Insert(9, 4)
	require.NoError(t, err)
	tt := tables[2].Rel
	_, err = tt.Insert(9, 0)
	require.NoError(t, err)

	require.NoError(t, q.Update("T", Insert, 9, 0))
	require.Equal(t, int64(5), q.Value())
}

func TestNaiveEquiJoin_MaterialisesIntoHeap(t *testing.T) {
	pool := newTestPool(t)
	tables := rstTables(t, pool)

	q, err := NewNaiveEquiJoin(pool, tables...)
	require.NoError(t, err)
	require.NoError(t, q.Recompute())

	got, err := q.Tuples()
	require.NoError(t, err)
	sortRows(got)

	want := [][]int32{{7, 4, 0}, {7, 4, 1}, {7, 4, 2}, {8, 4, 3}}
	sortRows(want)
	require.Equal(t, want, got)
}
