// Package heap implements the append-only paged log used as a
// materialisation sink by the naïve equijoin: a singly-linked list of
// fixed-size pages, each holding a record count, a next-page pointer, and
// as many width-wide int32 records as fit in the remainder of the page.
package heap

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
	"github.com/ivmdb/ivmdb/pkg/bx"
)

const headerSize = 8 // count(4) + next(4)

// capacity is how many width-wide records fit after the header.
func capacity(pageSize, width int) int { return (pageSize - headerSize) / (4 * width) }

func count(p *storage.Page) int          { return int(bx.I32At(p.Buf, 0)) }
func setCount(p *storage.Page, n int)    { bx.PutI32At(p.Buf, 0, int32(n)) }
func next(p *storage.Page) storage.PageID {
	return storage.PageID(bx.U32At(p.Buf, 4))
}
func setNext(p *storage.Page, pid storage.PageID) { bx.PutU32At(p.Buf, 4, uint32(pid)) }

func recordOff(i, width int) int { return headerSize + i*width*4 }

func readRecord(p *storage.Page, i, width int) []int32 {
	off := recordOff(i, width)
	rec := make([]int32, width)
	for j := 0; j < width; j++ {
		rec[j] = bx.I32At(p.Buf, off+j*4)
	}
	return rec
}

func writeRecord(p *storage.Page, i, width int, rec []int32) {
	off := recordOff(i, width)
	for j, v := range rec {
		bx.PutI32At(p.Buf, off+j*4, v)
	}
}

// File is an append-only heap of width-wide int32 tuples, threaded as a
// singly-linked chain of pages.
type File struct {
	pool  bufferpool.Manager
	width int
	head  storage.PageID
	tail  storage.PageID
}

// New allocates an empty heap file of the given tuple width.
func New(pool bufferpool.Manager, width int) (*File, error) {
	pid, err := newPage(pool)
	if err != nil {
		return nil, fmt.Errorf("heap: new: %w", err)
	}
	return &File{pool: pool, width: width, head: pid, tail: pid}, nil
}

func newPage(pool bufferpool.Manager) (storage.PageID, error) {
	p, err := pool.NewPages(1)
	if err != nil {
		return storage.NoPage, err
	}
	setCount(p, 0)
	setNext(p, storage.NoPage)
	if err := pool.Unpin(p.ID, true); err != nil {
		return storage.NoPage, err
	}
	return p.ID, nil
}

// Append adds rec (which must be width-wide) to the end of the heap,
// allocating a new tail page if the current one is full.
func (f *File) Append(rec []int32) error {
	if len(rec) != f.width {
		return fmt.Errorf("heap: append: record width %d != heap width %d", len(rec), f.width)
	}
	tail, err := f.pool.Pin(f.tail, false)
	if err != nil {
		return fmt.Errorf("heap: append: %w", err)
	}
	n := count(tail)
	if n >= capacity(len(tail.Buf), f.width) {
		if err := f.pool.Unpin(f.tail, false); err != nil {
			return fmt.Errorf("heap: append: %w", err)
		}
		newID, err := newPage(f.pool)
		if err != nil {
			return fmt.Errorf("heap: append: %w", err)
		}
		old, err := f.pool.Pin(f.tail, false)
		if err != nil {
			return fmt.Errorf("heap: append: %w", err)
		}
		setNext(old, newID)
		if err := f.pool.Unpin(f.tail, true); err != nil {
			return fmt.Errorf("heap: append: %w", err)
		}
		f.tail = newID
		tail, err = f.pool.Pin(f.tail, false)
		if err != nil {
			return fmt.Errorf("heap: append: %w", err)
		}
		n = 0
	}
	writeRecord(tail, n, f.width, rec)
	setCount(tail, n+1)
	if err := f.pool.Unpin(f.tail, true); err != nil {
		return fmt.Errorf("heap: append: %w", err)
	}
	return nil
}

// Scan returns every record in the heap, in append order.
func (f *File) Scan() ([][]int32, error) {
	var out [][]int32
	pid := f.head
	for pid != storage.NoPage {
		p, err := f.pool.Pin(pid, false)
		if err != nil {
			return nil, fmt.Errorf("heap: scan: %w", err)
		}
		n := count(p)
		for i := 0; i < n; i++ {
			out = append(out, readRecord(p, i, f.width))
		}
		nextID := next(p)
		if err := f.pool.Unpin(pid, false); err != nil {
			return nil, fmt.Errorf("heap: scan: %w", err)
		}
		pid = nextID
	}
	return out, nil
}

// Reset discards every stored record, freeing the whole page chain and
// replacing it with a single fresh empty page.
func (f *File) Reset() error {
	if err := f.freeChain(); err != nil {
		return fmt.Errorf("heap: reset: %w", err)
	}
	pid, err := newPage(f.pool)
	if err != nil {
		return fmt.Errorf("heap: reset: %w", err)
	}
	f.head, f.tail = pid, pid
	return nil
}

// Destroy frees every page the heap holds, leaving f unusable.
func (f *File) Destroy() error {
	if err := f.freeChain(); err != nil {
		return fmt.Errorf("heap: destroy: %w", err)
	}
	f.head, f.tail = storage.NoPage, storage.NoPage
	return nil
}

func (f *File) freeChain() error {
	pid := f.head
	for pid != storage.NoPage {
		p, err := f.pool.Pin(pid, false)
		if err != nil {
			return err
		}
		nextID := next(p)
		if err := f.pool.Unpin(pid, false); err != nil {
			return err
		}
		if err := f.pool.Free(pid); err != nil {
			return err
		}
		pid = nextID
	}
	return nil
}
