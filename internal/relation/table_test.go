package relation

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

func newTestRelation(t *testing.T, order1, order2 int) *Relation {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 256, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })

	pool := bufferpool.NewPool(alloc, 64)
	rel, err := NewRelation(pool, order1, order2)
	require.NoError(t, err)
	return rel
}

// TestRelation_InsertFindRemove inserts a handful of pairs, confirms point
// lookups and a full scan agree, then removes them one at a time and
// confirms each disappears without disturbing the rest.
func TestRelation_InsertFindRemove(t *testing.T) {
	rel := newTestRelation(t, 1, 2)

	pairs := [][2]int32{{1, 10}, {1, 20}, {2, 10}, {3, 30}}
	for _, p := range pairs {
		added, err := rel.Insert(p[0], p[1])
		require.NoError(t, err)
		require.True(t, added)
	}

	added, err := rel.Insert(1, 10)
	require.NoError(t, err)
	require.False(t, added, "re-inserting an existing pair is a no-op")

	for _, p := range pairs {
		ok, err := rel.Contains(p[0], p[1])
		require.NoError(t, err)
		require.True(t, ok)
	}

	scanned, err := rel.Scan()
	require.NoError(t, err)
	require.Len(t, scanned, len(pairs))

	removed, err := rel.Remove(1, 10)
	require.NoError(t, err)
	require.True(t, removed)

	ok, err := rel.Contains(1, 10)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = rel.Contains(1, 20)
	require.NoError(t, err)
	require.True(t, ok, "removing one y under x must not disturb siblings")

	removed, err = rel.Remove(1, 10)
	require.NoError(t, err)
	require.False(t, removed, "removing an absent pair reports false")
}

// TestRelation_ColumnOrderNormalisation checks that a relation constructed
// with order1 > order2 still round-trips pairs correctly: storage swaps the
// key roles internally, but Insert/Contains/Scan present them in the
// caller's own (order1, order2) argument order.
func TestRelation_ColumnOrderNormalisation(t *testing.T) {
	rel := newTestRelation(t, 5, 3)
	require.True(t, rel.Reversed())

	_, err := rel.Insert(7, 9)
	require.NoError(t, err)

	ok, err := rel.Contains(7, 9)
	require.NoError(t, err)
	require.True(t, ok)

	scanned, err := rel.Scan()
	require.NoError(t, err)
	require.Equal(t, [][2]int32{{7, 9}}, scanned)
}
