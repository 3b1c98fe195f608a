package heap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

func newTestHeap(t *testing.T, width int) *File {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 64, 4096)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	pool := bufferpool.NewPool(alloc, 32)
	f, err := New(pool, width)
	require.NoError(t, err)
	return f
}

func TestFile_AppendScanPreservesOrder(t *testing.T) {
	f := newTestHeap(t, 2)

	recs := [][]int32{{1, 2}, {3, 4}, {5, 6}}
	for _, r := range recs {
		require.NoError(t, f.Append(r))
	}

	got, err := f.Scan()
	require.NoError(t, err)
	require.Equal(t, recs, got)
}

func TestFile_AppendSpillsAcrossPages(t *testing.T) {
	f := newTestHeap(t, 2)

	n := capacity(64, 2)*2 + 3
	for i := 0; i < n; i++ {
		require.NoError(t, f.Append([]int32{int32(i), int32(i)}))
	}

	got, err := f.Scan()
	require.NoError(t, err)
	require.Len(t, got, n)
	require.NotEqual(t, f.head, f.tail, "enough records must span more than one page")
}

func TestFile_ResetEmptiesTheHeap(t *testing.T) {
	f := newTestHeap(t, 1)

	for i := 0; i < 5; i++ {
		require.NoError(t, f.Append([]int32{int32(i)}))
	}
	require.NoError(t, f.Reset())

	got, err := f.Scan()
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFile_AppendRejectsWrongWidth(t *testing.T) {
	f := newTestHeap(t, 2)
	err := f.Append([]int32{1})
	require.Error(t, err)
}
