package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T, pageSize, pageCount int) *Allocator {
	t.Helper()
	dir := t.TempDir()
	a, err := NewAllocator(filepath.Join(dir, "db"), pageSize, pageCount)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// TestAllocator_FirstFitContiguousRuns pins down first-fit contiguous-run
// behaviour, including reuse of a freed gap: allocate(3) and allocate(4)
// fill the front, freeing two pages in the middle opens a gap, and two
// subsequent single-page allocations land exactly there.
func TestAllocator_FirstFitContiguousRuns(t *testing.T) {
	a := newTestAllocator(t, 64, 10)

	p, err := a.Allocate(3)
	require.NoError(t, err)
	require.Equal(t, PageID(0), p)

	p, err = a.Allocate(4)
	require.NoError(t, err)
	require.Equal(t, PageID(3), p)

	a.Free(3, 2)

	p, err = a.Allocate(1)
	require.NoError(t, err)
	require.Equal(t, PageID(3), p)

	p, err = a.Allocate(1)
	require.NoError(t, err)
	require.Equal(t, PageID(4), p)

	require.Equal(t, "1111111000", a.BitString())
}

// TestAllocator_RunMustBeContiguous checks that a run request larger than
// any remaining gap fails with ErrNoSpace even when enough pages are free
// in total.
func TestAllocator_RunMustBeContiguous(t *testing.T) {
	a := newTestAllocator(t, 64, 8)

	_, err := a.Allocate(8)
	require.NoError(t, err)
	a.Free(1, 2)
	a.Free(5, 2)

	_, err = a.Allocate(3)
	require.ErrorIs(t, err, ErrNoSpace)

	p, err := a.Allocate(2)
	require.NoError(t, err)
	require.Equal(t, PageID(1), p)
}

// TestAllocator_ZeroLengthRunIsAccepted covers the documented n = 0 edge
// case.
func TestAllocator_ZeroLengthRunIsAccepted(t *testing.T) {
	a := newTestAllocator(t, 64, 4)

	p, err := a.Allocate(0)
	require.NoError(t, err)
	require.Equal(t, PageID(0), p)
	require.Equal(t, "0000", a.BitString(), "a zero-length run claims nothing")
}

// TestAllocator_ReadWriteRoundTrip checks full-page transfers at exact
// page offsets, and that a short buffer is rejected rather than silently
// truncated.
func TestAllocator_ReadWriteRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 64, 4)

	out := make([]byte, 64)
	for i := range out {
		out[i] = byte(i)
	}
	require.NoError(t, a.Write(2, out))

	in := make([]byte, 64)
	require.NoError(t, a.Read(2, in))
	require.Equal(t, out, in)

	require.ErrorIs(t, a.Read(2, make([]byte, 32)), ErrIO)
}
