package bufferpool

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ivmdb/ivmdb/internal/storage"
)

func newTestPool(t *testing.T, capacity int) *Pool {
	t.Helper()
	dir := t.TempDir()
	alloc, err := storage.NewAllocator(filepath.Join(dir, "db"), 64, 16)
	require.NoError(t, err)
	t.Cleanup(func() { _ = alloc.Close() })
	return NewPool(alloc, capacity)
}

// TestPool_EvictsLeastRecentlyUsedUnpinnedFrame checks that with two
// frames, allocating P1 then P2, unpinning P1, then allocating P3 evicts
// P1 (the least recently used unpinned frame); re-pinning P1 afterward
// only succeeds once P2 is also unpinned.
func TestPool_EvictsLeastRecentlyUsedUnpinnedFrame(t *testing.T) {
	pool := newTestPool(t, 2)

	p1, err := pool.NewPages(1)
	require.NoError(t, err)
	p1id := p1.ID

	p2, err := pool.NewPages(1)
	require.NoError(t, err)
	p2id := p2.ID

	require.NoError(t, pool.Unpin(p1id, false))

	p3, err := pool.NewPages(1)
	require.NoError(t, err)
	p3id := p3.ID
	require.NotEqual(t, p1id, p3id)

	_, stillResident := pool.pageTable[p1id]
	require.False(t, stillResident, "P1 must have been evicted as the LRU victim")

	_, err = pool.Pin(p1id, false)
	require.ErrorIs(t, err, ErrNoFreeFrame, "P2 and P3 are both pinned, so no victim is available")

	require.NoError(t, pool.Unpin(p2id, false))

	page1, err := pool.Pin(p1id, false)
	require.NoError(t, err)
	require.Equal(t, p1id, page1.ID)
}

func TestPool_PinIncrementsAndExcludesFromLRU(t *testing.T) {
	pool := newTestPool(t, 3)

	p1, err := pool.NewPages(1)
	require.NoError(t, err)

	_, err = pool.Pin(p1.ID, false)
	require.NoError(t, err)

	require.NoError(t, pool.Unpin(p1.ID, false))
	idx := pool.pageTable[p1.ID]
	require.Nil(t, pool.frames[idx].lru, "frame is still pinned once (pin=1) after a single unpin, so must be absent from the LRU list")

	require.NoError(t, pool.Unpin(p1.ID, true))
	require.True(t, pool.frames[idx].Dirty)
}

func TestPool_UnpinUnknownPageFails(t *testing.T) {
	pool := newTestPool(t, 2)
	err := pool.Unpin(storage.PageID(42), false)
	require.ErrorIs(t, err, ErrNotPinned)
}

func TestPool_FreeRequiresUnpinned(t *testing.T) {
	pool := newTestPool(t, 2)
	p, err := pool.NewPages(1)
	require.NoError(t, err)

	require.ErrorIs(t, pool.Free(p.ID), ErrPagePinned)

	require.NoError(t, pool.Unpin(p.ID, false))
	require.NoError(t, pool.Free(p.ID))
}

func TestPool_FlushAllWritesDirtyFrames(t *testing.T) {
	pool := newTestPool(t, 2)
	p, err := pool.NewPages(1)
	require.NoError(t, err)
	p.Buf[0] = 0xAB
	require.NoError(t, pool.Unpin(p.ID, true))

	require.NoError(t, pool.FlushAll())

	idx := pool.pageTable[p.ID]
	require.False(t, pool.frames[idx].Dirty)
}
