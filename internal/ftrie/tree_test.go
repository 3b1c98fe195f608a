package ftrie

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

// The 1 KiB test page keeps node fan-out small (a three-column branch
// holds 3 slots and 14 messages per child) so a few hundred records are
// enough to drive buffer overflows, splits and root rebuilds.
func newTestTree(t *testing.T, width int) *Tree {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 1024, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	pool := bufferpool.NewPool(alloc, 64)
	tree, err := New(pool, width)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

// testRows generates n distinct three-column records whose sorted order
// differs from generation order in the later columns.
func testRows(n int) [][]int32 {
	rows := make([][]int32, n)
	for i := 0; i < n; i++ {
		rows[i] = []int32{int32(i), int32((i * 2) % 50), int32(i % 3)}
	}
	return rows
}

// shuffled returns rows reordered by a fixed coprime stride, so inserts
// arrive out of key order without any test-time randomness.
func shuffled(rows [][]int32) [][]int32 {
	n := len(rows)
	out := make([][]int32, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, rows[(i*137)%n])
	}
	return out
}

func TestTree_InsertContainsDelete(t *testing.T) {
	tree := newTestTree(t, 3)

	require.NoError(t, tree.Insert([]int32{7, 4, 0}))
	ok, err := tree.Contains([]int32{7, 4, 0})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = tree.Contains([]int32{7, 4, 1})
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tree.Delete([]int32{7, 4, 0}))
	ok, err = tree.Contains([]int32{7, 4, 0})
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTree_DuplicateInsertIsIdempotent(t *testing.T) {
	tree := newTestTree(t, 3)

	require.NoError(t, tree.Insert([]int32{1, 2, 3}))
	require.NoError(t, tree.Insert([]int32{1, 2, 3}))

	rows, err := tree.Scan()
	require.NoError(t, err)
	require.Equal(t, [][]int32{{1, 2, 3}}, rows)
}

// TestTree_ScanSortedAfterSplits inserts enough out-of-order records to
// split the root leaf several times over and rebuild the root as a
// multi-slot branch, then checks Scan reconciles records and in-flight
// messages into exactly the sorted input set.
func TestTree_ScanSortedAfterSplits(t *testing.T) {
	tree := newTestTree(t, 3)

	rows := testRows(500)
	for _, r := range shuffled(rows) {
		require.NoError(t, tree.Insert(r))
	}

	got, err := tree.Scan()
	require.NoError(t, err)
	require.Equal(t, rows, got, "scan must return every record in ascending order")

	require.Equal(t, TagBranch, tree.root.Tag(), "500 records cannot fit a single leaf")
}

// TestTree_LatestMessageWins checks the dedup rule on a tree deep enough
// that messages actually buffer in branch nodes: a delete logged after an
// insert of the same key cancels it, and a re-insert after that revives
// it, all without an intervening flush.
func TestTree_LatestMessageWins(t *testing.T) {
	tree := newTestTree(t, 3)

	for _, r := range testRows(300) {
		require.NoError(t, tree.Insert(r))
	}

	extra := []int32{1000, 1, 2}
	require.NoError(t, tree.Insert(extra))
	require.NoError(t, tree.Delete(extra))
	ok, err := tree.Contains(extra)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, tree.Insert(extra))
	ok, err = tree.Contains(extra)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := tree.Scan()
	require.NoError(t, err)
	require.Len(t, got, 301)
	require.Equal(t, extra, got[300])
}

// TestTree_DeleteEverything drives the merge path: filling the tree to
// several levels and then deleting every record must leave an empty scan,
// with membership queries agreeing along the way.
func TestTree_DeleteEverything(t *testing.T) {
	tree := newTestTree(t, 3)

	rows := testRows(400)
	for _, r := range rows {
		require.NoError(t, tree.Insert(r))
	}
	for _, r := range shuffled(rows) {
		require.NoError(t, tree.Delete(r))
	}

	got, err := tree.Scan()
	require.NoError(t, err)
	require.Empty(t, got)

	ok, err := tree.Contains(rows[123])
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTree_ClearIsEagerAndReusable(t *testing.T) {
	tree := newTestTree(t, 3)

	for _, r := range testRows(300) {
		require.NoError(t, tree.Insert(r))
	}
	require.NoError(t, tree.Clear())

	got, err := tree.Scan()
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, TagLeaf, tree.root.Tag(), "clear must start over from a single leaf")

	require.NoError(t, tree.Insert([]int32{5, 5, 5}))
	got, err = tree.Scan()
	require.NoError(t, err)
	require.Equal(t, [][]int32{{5, 5, 5}}, got)
}

// TestTree_SingleColumnRecords exercises the same machinery at width 1,
// the narrowest record shape.
func TestTree_SingleColumnRecords(t *testing.T) {
	tree := newTestTree(t, 1)

	for i := int32(0); i < 600; i++ {
		require.NoError(t, tree.Insert([]int32{(i * 7) % 600}))
	}
	got, err := tree.Scan()
	require.NoError(t, err)
	require.Len(t, got, 600)
	for i, r := range got {
		require.Equal(t, []int32{int32(i)}, r)
	}
}

// TestMergeMessages_NewerWins pins the buffer-merge contract: one message
// per key survives, and on a key collision the incoming (newer) message
// replaces the existing one.
func TestMergeMessages_NewerWins(t *testing.T) {
	existing := []Message{
		{Kind: KindInsert, Key: []int32{1, 0, 0}},
		{Kind: KindInsert, Key: []int32{3, 0, 0}},
	}
	incoming := []Message{
		{Kind: KindDelete, Key: []int32{1, 0, 0}},
		{Kind: KindInsert, Key: []int32{2, 0, 0}},
	}

	merged := mergeMessages(existing, incoming)
	require.Equal(t, []Message{
		{Kind: KindDelete, Key: []int32{1, 0, 0}},
		{Kind: KindInsert, Key: []int32{2, 0, 0}},
		{Kind: KindInsert, Key: []int32{3, 0, 0}},
	}, merged)
}
