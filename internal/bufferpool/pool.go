// Package bufferpool implements the fixed-size frame array and LRU
// replacement policy that mediate every page access above the allocator.
package bufferpool

import (
	"container/list"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ivmdb/ivmdb/internal/storage"
)

const logPrefix = "bufferpool: "

var (
	// ErrNoFreeFrame is returned when every frame is pinned and a new page
	// must be brought in.
	ErrNoFreeFrame = errors.New("bufferpool: no free frame available (all pinned)")

	// ErrNotPinned is returned by Unpin on a page that is not resident, or
	// already at a pin count of zero.
	ErrNotPinned = errors.New("bufferpool: page is not pinned")

	// ErrPagePinned is returned by Free/Flush on a page whose pin count is
	// not zero.
	ErrPagePinned = errors.New("bufferpool: page is pinned")
)

// Manager is the buffer pool's public contract, implemented by Pool.
type Manager interface {
	Pin(pid storage.PageID, empty bool) (*storage.Page, error)
	Unpin(pid storage.PageID, dirty bool) error
	NewPages(n int) (*storage.Page, error)
	Free(pid storage.PageID) error
	Flush(pid storage.PageID) error
	FlushAll() error
	PageSize() int
}

// Frame holds one resident page and its metadata.
type Frame struct {
	PageID storage.PageID
	Page   *storage.Page
	Dirty  bool
	Pin    int32

	// lru is this frame's element in the pool's LRU list while Pin == 0;
	// nil while the frame is pinned.
	lru *list.Element
}

var _ Manager = (*Pool)(nil)

// Pool is a fixed-size buffer pool bound to one Allocator, using a true LRU
// structure (not CLOCK) over unpinned frames to choose eviction victims.
type Pool struct {
	alloc *storage.Allocator

	mu        sync.Mutex
	frames    []*Frame // fixed-size slice, len == capacity, nil == free slot
	pageTable map[storage.PageID]int
	capacity  int
	lru       *list.List // Element.Value = frame index; Back() is the LRU victim
}

// NewPool creates a buffer pool of the given frame capacity over alloc. If
// capacity <= 0, a small default capacity is used.
func NewPool(alloc *storage.Allocator, capacity int) *Pool {
	if capacity <= 0 {
		capacity = 16
	}
	return &Pool{
		alloc:     alloc,
		frames:    make([]*Frame, capacity),
		pageTable: make(map[storage.PageID]int),
		capacity:  capacity,
		lru:       list.New(),
	}
}

func (p *Pool) PageSize() int { return p.alloc.PageSize() }

// Pin returns a stable pointer to page pid's bytes, incrementing its pin
// count. If pid is not resident, an eviction victim is chosen from the LRU
// list (preferring a free frame slot, if one exists), and the page is
// either zeroed (empty == true) or read from the allocator.
func (p *Pool) Pin(pid storage.PageID, empty bool) (*storage.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pid]; ok {
		f := p.frames[idx]
		if f.Pin == 0 && f.lru != nil {
			p.lru.Remove(f.lru)
			f.lru = nil
		}
		f.Pin++
		slog.Debug(logPrefix+"pin hit", "pageID", pid, "pin", f.Pin)
		return f.Page, nil
	}

	idx := -1
	for i, f := range p.frames {
		if f == nil {
			idx = i
			break
		}
	}

	if idx == -1 {
		victimIdx, err := p.evictLocked()
		if err != nil {
			return nil, err
		}
		idx = victimIdx
	}

	buf := make([]byte, p.alloc.PageSize())
	page := storage.NewPage(pid, buf)
	if empty {
		page.Zero()
	} else if err := p.alloc.Read(pid, buf); err != nil {
		return nil, err
	}

	p.frames[idx] = &Frame{PageID: pid, Page: page, Pin: 1}
	p.pageTable[pid] = idx
	slog.Debug(logPrefix+"pin miss", "pageID", pid, "frameIdx", idx, "empty", empty)
	return page, nil
}

// evictLocked writes back the LRU victim if dirty, drops it from the page
// table, and returns its now-free frame index. Caller holds p.mu.
func (p *Pool) evictLocked() (int, error) {
	el := p.lru.Back()
	if el == nil {
		slog.Debug(logPrefix + "no free frame for eviction")
		return -1, ErrNoFreeFrame
	}
	idx := el.Value.(int)
	p.lru.Remove(el)

	victim := p.frames[idx]
	victim.lru = nil
	if victim.Dirty {
		if err := p.alloc.Write(victim.PageID, victim.Page.Buf); err != nil {
			return -1, err
		}
	}
	delete(p.pageTable, victim.PageID)
	slog.Debug(logPrefix+"evicted victim", "pageID", victim.PageID, "frameIdx", idx)
	return idx, nil
}

// Unpin decrements pid's pin count, marking it dirty if requested. Once the
// pin count reaches zero, the frame is pushed to the MRU end of the LRU
// list; pinning it again removes it from the list.
func (p *Pool) Unpin(pid storage.PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pid]
	if !ok {
		return fmt.Errorf("bufferpool: unpin %d: %w", pid, ErrNotPinned)
	}
	f := p.frames[idx]
	if f.Pin == 0 {
		return fmt.Errorf("bufferpool: unpin %d: %w", pid, ErrNotPinned)
	}
	if dirty {
		f.Dirty = true
	}
	f.Pin--
	if f.Pin == 0 {
		f.lru = p.lru.PushFront(idx)
	}
	slog.Debug(logPrefix+"unpin", "pageID", pid, "pin", f.Pin, "dirty", f.Dirty)
	return nil
}

// NewPages allocates a contiguous run of n pages and pins the first as
// empty.
func (p *Pool) NewPages(n int) (*storage.Page, error) {
	p0, err := p.alloc.Allocate(n)
	if err != nil {
		return nil, err
	}
	return p.Pin(p0, true)
}

// Free requires pid to have pin count 0, writes it back if dirty, evicts it
// from the pool, and returns the page to the allocator.
func (p *Pool) Free(pid storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx, ok := p.pageTable[pid]; ok {
		f := p.frames[idx]
		if f.Pin != 0 {
			return fmt.Errorf("bufferpool: free %d: %w", pid, ErrPagePinned)
		}
		if f.lru != nil {
			p.lru.Remove(f.lru)
		}
		if f.Dirty {
			if err := p.alloc.Write(pid, f.Page.Buf); err != nil {
				return err
			}
		}
		p.frames[idx] = nil
		delete(p.pageTable, pid)
	}
	p.alloc.Free(pid, 1)
	slog.Debug(logPrefix+"free", "pageID", pid)
	return nil
}

// Flush requires pid to have pin count 0; if dirty, it is written back and
// the dirty bit cleared.
func (p *Pool) Flush(pid storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[pid]
	if !ok {
		return nil
	}
	f := p.frames[idx]
	if f.Pin != 0 {
		return fmt.Errorf("bufferpool: flush %d: %w", pid, ErrPagePinned)
	}
	if f.Dirty {
		if err := p.alloc.Write(pid, f.Page.Buf); err != nil {
			return err
		}
		f.Dirty = false
	}
	return nil
}

// FlushAll writes back every dirty frame, pinned or not; used at teardown.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, f := range p.frames {
		if f == nil || !f.Dirty {
			continue
		}
		if err := p.alloc.Write(f.PageID, f.Page.Buf); err != nil {
			return err
		}
		f.Dirty = false
	}
	slog.Debug(logPrefix + "flush all completed")
	return nil
}
