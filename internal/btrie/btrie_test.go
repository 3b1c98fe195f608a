package btrie

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

func newTestTrie(t *testing.T, stride int) (*Trie, storage.PageID) {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 128, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })

	pool := bufferpool.NewPool(alloc, 64)
	tr := New(pool, stride)

	root, err := NewLeaf(pool, stride)
	require.NoError(t, err)
	return tr, root
}

// TestTrie_InsertFindManyKeys drives enough inserts through a small page
// size to force several splits, then checks every key is still findable:
// the trie always reflects the exact set of inserted keys not yet deleted.
func TestTrie_InsertFindManyKeys(t *testing.T) {
	tr, root := newTestTrie(t, 1)

	const n = 200
	for i := int32(0); i < n; i++ {
		key := (i * 7919) % 4999 // scramble insertion order
		var err error
		root, err = tr.Reserve(root, key, []int32{key})
		require.NoError(t, err)
	}

	for i := int32(0); i < n; i++ {
		key := (i * 7919) % 4999
		rec, found, err := tr.Find(root, key)
		require.NoError(t, err)
		require.True(t, found, "key %d should be present", key)
		require.Equal(t, []int32{key}, rec)
	}

	recs, err := tr.Scan(root)
	require.NoError(t, err)
	for i := 1; i < len(recs); i++ {
		require.Less(t, recs[i-1][0], recs[i][0], "scan must be strictly ascending")
	}
}

// TestTrie_UpsertOverwritesRecord covers Reserve's upsert semantics, used
// by the outer trie to rewrite an inner-root pointer in place.
func TestTrie_UpsertOverwritesRecord(t *testing.T) {
	tr, root := newTestTrie(t, 2)

	var err error
	root, err = tr.Reserve(root, 10, []int32{10, 100})
	require.NoError(t, err)
	root, err = tr.Reserve(root, 10, []int32{10, 200})
	require.NoError(t, err)

	rec, found, err := tr.Find(root, 10)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []int32{10, 200}, rec)
}

// TestTrie_DeleteIfPredicateGate covers the delete-time predicate gate: a
// false predicate must leave the record untouched.
func TestTrie_DeleteIfPredicateGate(t *testing.T) {
	tr, root := newTestTrie(t, 1)

	var err error
	root, err = tr.Reserve(root, 5, []int32{5})
	require.NoError(t, err)

	root, deleted, err := tr.DeleteIf(root, 5, func([]int32) bool { return false })
	require.NoError(t, err)
	require.False(t, deleted)

	_, found, err := tr.Find(root, 5)
	require.NoError(t, err)
	require.True(t, found)

	root, deleted, err = tr.DeleteIf(root, 5, func([]int32) bool { return true })
	require.NoError(t, err)
	require.True(t, deleted)

	_, found, err = tr.Find(root, 5)
	require.NoError(t, err)
	require.False(t, found)
}

// TestTrie_MonotonicFillAndDrain grows the tree with ascending keys, checks
// every prefix is scannable in order, drains it in descending order, and
// confirms the structure collapses back to a single empty leaf with every
// other page returned to the allocator.
func TestTrie_MonotonicFillAndDrain(t *testing.T) {
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 128, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	pool := bufferpool.NewPool(alloc, 64)

	tr := New(pool, 1)
	root, err := NewLeaf(pool, 1)
	require.NoError(t, err)

	allocated := func() int {
		n := 0
		for _, b := range alloc.BitString() {
			if b == '1' {
				n++
			}
		}
		return n
	}
	baseline := allocated()

	for k := int32(1); k <= 32; k++ {
		root, err = tr.Reserve(root, k, []int32{k})
		require.NoError(t, err)

		recs, err := tr.Scan(root)
		require.NoError(t, err)
		require.Len(t, recs, int(k))
		for i, r := range recs {
			require.Equal(t, int32(i+1), r[0])
		}
	}

	for k := int32(32); k >= 1; k-- {
		var deleted bool
		root, deleted, err = tr.DeleteIf(root, k, nil)
		require.NoError(t, err)
		require.True(t, deleted)
	}

	n, err := Load(pool, root)
	require.NoError(t, err)
	require.Equal(t, TagLeaf, n.Tag())
	require.True(t, n.IsEmpty(), "draining every key must leave one empty leaf")
	require.NoError(t, pool.Unpin(root, false))

	require.Equal(t, baseline, allocated(), "every split-off page must be freed again")
}

// TestTrie_InsertThenDeleteAll exercises splits followed by the delete-time
// two-sided redistribute/merge repair all the way back down to an empty
// root, confirming the tree never loses or fabricates a key along the way.
func TestTrie_InsertThenDeleteAll(t *testing.T) {
	tr, root := newTestTrie(t, 1)

	const n = 150
	keys := make([]int32, n)
	for i := range keys {
		keys[i] = int32((i * 131) % 997)
	}
	var err error
	for _, k := range keys {
		root, err = tr.Reserve(root, k, []int32{k})
		require.NoError(t, err)
	}

	for _, k := range keys {
		var deleted bool
		root, deleted, err = tr.DeleteIf(root, k, nil)
		require.NoError(t, err)
		require.True(t, deleted, "key %d should have been deleted", k)
	}

	recs, err := tr.Scan(root)
	require.NoError(t, err)
	require.Empty(t, recs)
}
