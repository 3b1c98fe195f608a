// Package btrie implements the nested B+-Trie index used to store input
// relations: a two-level B+-tree whose outer leaf slots point at inner
// B+-trees, supporting point insert/delete, range scan and redistribution.
package btrie

import (
	"errors"
	"fmt"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
	"github.com/ivmdb/ivmdb/pkg/bx"
)

const logPrefix = "btrie: "

// ErrCorrupt is returned when a loaded page carries an unrecognised node tag
// or a structurally impossible slot count.
var ErrCorrupt = errors.New("btrie: corrupt node")

// Tag distinguishes a branch node from a leaf node sharing the same page
// layout, per the "variant nodes" design note: a single wrapper type whose
// methods switch on the header tag rather than relying on union punning.
type Tag uint8

const (
	TagLeaf Tag = iota
	TagBranch
)

const (
	headerSize      = 20 // tag(1) + pad(3) + count(4) + prev(4) + next(4) + stride(4)
	branchLeftOff   = headerSize
	branchEntrySize = 8 // key int32 (4) + child page id uint32 (4)
)

// Node is a thin wrapper over a pinned page, arbitrating access to the
// shared branch/leaf body through its tag.
type Node struct {
	PID  storage.PageID
	Page *storage.Page
}

func wrap(pid storage.PageID, p *storage.Page) *Node { return &Node{PID: pid, Page: p} }

func (n *Node) buf() []byte { return n.Page.Buf }

// Tag reports whether this node is a branch or a leaf.
func (n *Node) Tag() Tag {
	t := Tag(n.buf()[0])
	return t
}

func (n *Node) setTag(t Tag) { n.buf()[0] = byte(t) }

// Count is the number of occupied slots (records for a leaf, key/child
// entries for a branch).
func (n *Node) Count() int           { return int(bx.I32At(n.buf(), 4)) }
func (n *Node) setCount(c int)       { bx.PutI32At(n.buf(), 4, int32(c)) }
func (n *Node) Prev() storage.PageID { return storage.PageID(bx.U32At(n.buf(), 8)) }
func (n *Node) SetPrev(p storage.PageID) {
	bx.PutU32At(n.buf(), 8, uint32(p))
}
func (n *Node) Next() storage.PageID { return storage.PageID(bx.U32At(n.buf(), 12)) }
func (n *Node) SetNext(p storage.PageID) {
	bx.PutU32At(n.buf(), 12, uint32(p))
}

// Stride is the record width of a leaf (1 for an innermost trie, 2 for an
// outer trie whose records are (key, inner root page id) pairs). Unused by
// branch nodes.
func (n *Node) Stride() int     { return int(bx.I32At(n.buf(), 16)) }
func (n *Node) setStride(s int) { bx.PutI32At(n.buf(), 16, int32(s)) }

func (n *Node) pageSize() int { return len(n.buf()) }

// LeafCapacity is the number of stride-wide records a leaf of this page
// size can hold.
func LeafCapacity(pageSize, stride int) int { return (pageSize - headerSize) / (4 * stride) }

// BranchCapacity is the number of key/child entries a branch of this page
// size can hold (the left-child pointer takes 4 additional bytes up front).
func BranchCapacity(pageSize int) int { return (pageSize - headerSize - 4) / branchEntrySize }

// IsFull reports whether the node has no room for another slot.
func (n *Node) IsFull() bool {
	switch n.Tag() {
	case TagLeaf:
		return n.Count() >= LeafCapacity(n.pageSize(), n.Stride())
	default:
		return n.Count() >= BranchCapacity(n.pageSize())
	}
}

// IsUnderOccupied reports whether the node has dropped below half its
// capacity, per the tree's minimum-occupancy rule. Merging two
// under-occupied nodes (plus a reinstated separator, for branches) is
// therefore always guaranteed to fit.
func (n *Node) IsUnderOccupied() bool {
	switch n.Tag() {
	case TagLeaf:
		return n.Count() < LeafCapacity(n.pageSize(), n.Stride())/2
	default:
		return n.Count() < BranchCapacity(n.pageSize())/2
	}
}

func (n *Node) IsEmpty() bool { return n.Count() == 0 }

// --- Leaf record access ---

func (n *Node) leafRecordOff(i int) int { return headerSize + i*n.Stride()*4 }

// LeafRecord returns a copy of the Stride()-wide record at index i.
func (n *Node) LeafRecord(i int) []int32 {
	stride := n.Stride()
	off := n.leafRecordOff(i)
	rec := make([]int32, stride)
	for j := 0; j < stride; j++ {
		rec[j] = bx.I32At(n.buf(), off+j*4)
	}
	return rec
}

// SetLeafRecord writes a Stride()-wide record at index i.
func (n *Node) SetLeafRecord(i int, rec []int32) {
	off := n.leafRecordOff(i)
	for j, v := range rec {
		bx.PutI32At(n.buf(), off+j*4, v)
	}
}

// LeafKey is the sort key (first column) of the record at index i.
func (n *Node) LeafKey(i int) int32 { return bx.I32At(n.buf(), n.leafRecordOff(i)) }

// --- Branch entry access ---

// BranchLeft is the child page id for keys below the first entry's key.
func (n *Node) BranchLeft() storage.PageID { return storage.PageID(bx.U32At(n.buf(), branchLeftOff)) }
func (n *Node) SetBranchLeft(p storage.PageID) {
	bx.PutU32At(n.buf(), branchLeftOff, uint32(p))
}

func (n *Node) branchEntryOff(i int) int { return branchLeftOff + 4 + i*branchEntrySize }

// BranchKey is the separating key of entry i (0-indexed).
func (n *Node) BranchKey(i int) int32 { return bx.I32At(n.buf(), n.branchEntryOff(i)) }
func (n *Node) SetBranchKey(i int, k int32) {
	bx.PutI32At(n.buf(), n.branchEntryOff(i), k)
}

// BranchChild is the child page id to the right of entry i's key.
func (n *Node) BranchChild(i int) storage.PageID {
	return storage.PageID(bx.U32At(n.buf(), n.branchEntryOff(i)+4))
}
func (n *Node) SetBranchChild(i int, p storage.PageID) {
	bx.PutU32At(n.buf(), n.branchEntryOff(i)+4, uint32(p))
}

// Child returns the i'th child pointer of a branch (0 <= i <= Count()):
// Child(0) is the leftmost pointer, Child(i) for i>0 is BranchChild(i-1).
func (n *Node) Child(i int) storage.PageID {
	if i == 0 {
		return n.BranchLeft()
	}
	return n.BranchChild(i - 1)
}

// FindKey returns the index of the smallest slot key >= key (Count() if
// none), via binary search. Used both at leaves (over records) and at
// branches (over separating keys).
func (n *Node) FindKey(key int32) int {
	lo, hi := 0, n.Count()
	for lo < hi {
		m := lo + (hi-lo)/2
		var k int32
		if n.Tag() == TagLeaf {
			k = n.LeafKey(m)
		} else {
			k = n.BranchKey(m)
		}
		if key <= k {
			hi = m
		} else {
			lo = m + 1
		}
	}
	return lo
}

// MakeRoom shifts the tail of slots starting at index by delta positions
// (delta > 0 opens space, delta < 0 closes it) and adjusts Count()
// accordingly. Used uniformly for leaf records and branch entries.
func (n *Node) MakeRoom(index, delta int) {
	count := n.Count()
	switch n.Tag() {
	case TagLeaf:
		if delta > 0 {
			for i := count - 1; i >= index; i-- {
				n.SetLeafRecord(i+delta, n.LeafRecord(i))
			}
		} else if delta < 0 {
			for i := index; i < count; i++ {
				n.SetLeafRecord(i+delta, n.LeafRecord(i))
			}
		}
	default:
		if delta > 0 {
			for i := count - 1; i >= index; i-- {
				n.SetBranchKey(i+delta, n.BranchKey(i))
				n.SetBranchChild(i+delta, n.BranchChild(i))
			}
		} else if delta < 0 {
			for i := index; i < count; i++ {
				n.SetBranchKey(i+delta, n.BranchKey(i))
				n.SetBranchChild(i+delta, n.BranchChild(i))
			}
		}
	}
	n.setCount(count + delta)
}

// Load pins and wraps node nid.
func Load(pool bufferpool.Manager, nid storage.PageID) (*Node, error) {
	page, err := pool.Pin(nid, false)
	if err != nil {
		return nil, fmt.Errorf("btrie: load %d: %w", nid, err)
	}
	n := wrap(nid, page)
	if n.Tag() != TagLeaf && n.Tag() != TagBranch {
		return nil, fmt.Errorf("btrie: load %d: %w", nid, ErrCorrupt)
	}
	return n, nil
}

// NewLeaf allocates an empty leaf of the given record stride.
func NewLeaf(pool bufferpool.Manager, stride int) (storage.PageID, error) {
	page, err := pool.NewPages(1)
	if err != nil {
		return storage.NoPage, fmt.Errorf("btrie: new leaf: %w", err)
	}
	n := wrap(page.ID, page)
	n.setTag(TagLeaf)
	n.setCount(0)
	n.SetPrev(storage.NoPage)
	n.SetNext(storage.NoPage)
	n.setStride(stride)
	if err := pool.Unpin(page.ID, true); err != nil {
		return storage.NoPage, err
	}
	return page.ID, nil
}

// NewBranch allocates a branch node with the two given children and a
// single separating key.
func NewBranch(pool bufferpool.Manager, left storage.PageID, key int32, right storage.PageID) (storage.PageID, error) {
	page, err := pool.NewPages(1)
	if err != nil {
		return storage.NoPage, fmt.Errorf("btrie: new branch: %w", err)
	}
	n := wrap(page.ID, page)
	n.setTag(TagBranch)
	n.setCount(1)
	n.SetPrev(storage.NoPage)
	n.SetNext(storage.NoPage)
	n.SetBranchLeft(left)
	n.SetBranchKey(0, key)
	n.SetBranchChild(0, right)
	if err := pool.Unpin(page.ID, true); err != nil {
		return storage.NoPage, err
	}
	return page.ID, nil
}
