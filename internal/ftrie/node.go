// Package ftrie implements the nested fractal (buffered) trie used to
// materialise a view's result set. Unlike the nested B+-Trie, it handles
// arbitrary depth and relies solely on splitting and merging to stay
// balanced (no redistribution). Rather than nesting one index per column,
// it is a multi-key index: whole width-W records are stored as slot keys,
// compared lexicographically. Each branch node carries a per-child message
// buffer; insert and delete messages wait there and are flushed to the
// child only when the buffer overflows, amortising write cost.
package ftrie

import (
	"errors"
	"fmt"
	"math"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
	"github.com/ivmdb/ivmdb/pkg/bx"
)

// ErrCorrupt is returned when a loaded page carries an unrecognised node
// tag or a structurally impossible slot count.
var ErrCorrupt = errors.New("ftrie: corrupt node")

// Tag distinguishes a branch node from a leaf node sharing the same page
// layout; body access is arbitrated through Node's methods, switching on
// the tag rather than punning the two shapes against each other.
type Tag uint8

const (
	TagLeaf Tag = iota
	TagBranch
)

const headerSize = 20 // tag(1) + pad(3) + count(4) + width(4) + prev(4) + next(4)

// Node is a thin wrapper over a pinned page holding one fractal-trie node.
//
// The body after the header is measured in int32 units ("space"). A slot
// region of floor(sqrt(space)) units grows forward from the body start and
// holds the slots (records on a leaf; a leftmost child pointer followed by
// (key, child) pairs on a branch); leaves, which carry no messages, spend
// the whole body on slots instead. The remaining units form the message
// region, growing backward from the body end, shared evenly between the
// node's potential children: buffer i serves child i and stores a count
// followed by that many (kind, W-wide key) messages.
type Node struct {
	PID  storage.PageID
	Page *storage.Page
}

func wrap(pid storage.PageID, p *storage.Page) *Node { return &Node{PID: pid, Page: p} }

func (n *Node) buf() []byte { return n.Page.Buf }

func (n *Node) Tag() Tag             { return Tag(n.buf()[0]) }
func (n *Node) setTag(t Tag)         { n.buf()[0] = byte(t) }
func (n *Node) Count() int           { return int(bx.I32At(n.buf(), 4)) }
func (n *Node) setCount(c int)       { bx.PutI32At(n.buf(), 4, int32(c)) }
func (n *Node) Width() int           { return int(bx.I32At(n.buf(), 8)) }
func (n *Node) setWidth(w int)       { bx.PutI32At(n.buf(), 8, int32(w)) }
func (n *Node) Prev() storage.PageID { return storage.PageID(bx.U32At(n.buf(), 12)) }
func (n *Node) SetPrev(p storage.PageID) {
	bx.PutU32At(n.buf(), 12, uint32(p))
}
func (n *Node) Next() storage.PageID { return storage.PageID(bx.U32At(n.buf(), 16)) }
func (n *Node) SetNext(p storage.PageID) {
	bx.PutU32At(n.buf(), 16, uint32(p))
}

// space is the number of int32 units in the node body.
func (n *Node) space() int { return (len(n.buf()) - headerSize) / 4 }

// slotRegion is the sqrt-sized share of the body reserved for slots on a
// branch; the rest is message space.
func (n *Node) slotRegion() int { return int(math.Sqrt(float64(n.space()))) }

// body int32 accessors.
func (n *Node) at(i int) int32     { return bx.I32At(n.buf(), headerSize+4*i) }
func (n *Node) put(i int, v int32) { bx.PutI32At(n.buf(), headerSize+4*i, v) }
func (n *Node) pidAt(i int) storage.PageID {
	return storage.PageID(bx.U32At(n.buf(), headerSize+4*i))
}
func (n *Node) putPID(i int, p storage.PageID) {
	bx.PutU32At(n.buf(), headerSize+4*i, uint32(p))
}

// stride is the size of one slot in int32 units: a record on a leaf, a
// record-wide key plus a child pointer on a branch.
func (n *Node) stride() int {
	if n.Tag() == TagLeaf {
		return n.Width()
	}
	return n.Width() + 1
}

// slotSpace is the number of body units available to slots. A leaf has the
// whole body; a branch gives one unit up front to the leftmost child
// pointer and everything past the slot region to messages.
func (n *Node) slotSpace() int {
	if n.Tag() == TagLeaf {
		return n.space()
	}
	return n.slotRegion() - 1
}

// Capacity is the number of slots this node can hold.
func (n *Node) Capacity() int { return n.slotSpace() / n.stride() }

func (n *Node) IsEmpty() bool         { return n.Count() == 0 }
func (n *Node) IsFull() bool          { return n.Count() >= n.Capacity() }
func (n *Node) IsUnderOccupied() bool { return n.Count() < n.Capacity()/2 }

// msgSize is the size of one buffered message in int32 units: a kind tag
// followed by a width-wide key.
func (n *Node) msgSize() int { return 1 + n.Width() }

// msgSpacePerChild is the message-region share of one child, in int32
// units. Branches have one more child pointer than they have slots, so the
// region is cut Capacity()+1 ways; leaves buffer nothing.
func (n *Node) msgSpacePerChild() int {
	if n.Tag() == TagLeaf {
		return 0
	}
	return (n.space() - n.slotRegion()) / (n.Capacity() + 1)
}

// MsgsPerChild is how many messages one child's buffer can hold, after its
// leading count unit.
func (n *Node) MsgsPerChild() int { return (n.msgSpacePerChild() - 1) / n.msgSize() }

// slotOff is the body offset of slot i's key.
func (n *Node) slotOff(i int) int {
	if n.Tag() == TagLeaf {
		return i * n.stride()
	}
	return 1 + i*n.stride()
}

// SlotKey returns a copy of slot i's width-wide key (the record itself on
// a leaf, the partition key on a branch).
func (n *Node) SlotKey(i int) []int32 {
	off := n.slotOff(i)
	key := make([]int32, n.Width())
	for j := range key {
		key[j] = n.at(off + j)
	}
	return key
}

// SetSlotKey writes slot i's key in place.
func (n *Node) SetSlotKey(i int, key []int32) {
	off := n.slotOff(i)
	for j, v := range key {
		n.put(off+j, v)
	}
}

// Left is a branch's leftmost child pointer, reaching keys at or below no
// slot key.
func (n *Node) Left() storage.PageID     { return n.pidAt(0) }
func (n *Node) SetLeft(p storage.PageID) { n.putPID(0, p) }

// SlotChild is the child pointer to the right of slot i's key.
func (n *Node) SlotChild(i int) storage.PageID { return n.pidAt(n.slotOff(i) + n.Width()) }
func (n *Node) SetSlotChild(i int, p storage.PageID) {
	n.putPID(n.slotOff(i)+n.Width(), p)
}

// Child returns a branch's i'th child pointer (0 <= i <= Count()):
// Child(0) is the leftmost pointer, Child(i) for i > 0 is SlotChild(i-1).
// Child(i)'s keys are bounded above by slot i's key (inclusive).
func (n *Node) Child(i int) storage.PageID {
	if i == 0 {
		return n.Left()
	}
	return n.SlotChild(i - 1)
}

// msgOff is the body offset of child i's message buffer, growing backward
// from the body end.
func (n *Node) msgOff(i int) int { return n.space() - (i+1)*n.msgSpacePerChild() }

// BufCount is the number of messages waiting in child i's buffer.
func (n *Node) BufCount(i int) int   { return int(n.at(n.msgOff(i))) }
func (n *Node) setBufCount(i, c int) { n.put(n.msgOff(i), int32(c)) }

// ReadBuf decodes child i's message buffer, in key order.
func (n *Node) ReadBuf(i int) []Message {
	count := n.BufCount(i)
	off := n.msgOff(i) + 1
	msgs := make([]Message, count)
	for j := 0; j < count; j++ {
		at := off + j*n.msgSize()
		key := make([]int32, n.Width())
		for k := range key {
			key[k] = n.at(at + 1 + k)
		}
		msgs[j] = Message{Kind: Kind(n.at(at)), Key: key}
	}
	return msgs
}

// WriteBuf encodes msgs as child i's buffer; the caller has checked that
// len(msgs) <= MsgsPerChild().
func (n *Node) WriteBuf(i int, msgs []Message) {
	n.setBufCount(i, len(msgs))
	off := n.msgOff(i) + 1
	for j, m := range msgs {
		at := off + j*n.msgSize()
		n.put(at, int32(m.Kind))
		for k, v := range m.Key {
			n.put(at+1+k, v)
		}
	}
}

// copyBuf copies child src's buffer bytes into child dst's region.
func (n *Node) copyBuf(dst, src int) {
	p := n.msgSpacePerChild()
	d := headerSize + 4*n.msgOff(dst)
	s := headerSize + 4*n.msgOff(src)
	copy(n.buf()[d:d+4*p], n.buf()[s:s+4*p])
}

// cmpKeys orders two width-wide keys lexicographically.
func cmpKeys(a, b []int32) int {
	for i := range a {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return +1
		}
	}
	return 0
}

// FindKey returns the index of the smallest slot whose key >= key
// (Count() if none), searching from index from.
func (n *Node) FindKey(key []int32, from int) int {
	lo, hi := from, n.Count()
	for lo < hi {
		m := lo + (hi-lo)/2
		if cmpKeys(key, n.SlotKey(m)) > 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return hi
}

// makeRoom opens (size > 0) or closes (size < 0) a gap of |size| slots at
// index, shifting the slot tail and, on a branch, the message buffers of
// children index..Count() by the same amount. Freshly opened buffers start
// empty. The caller is responsible for there being enough room.
func (n *Node) makeRoom(index, size int) {
	count := n.Count()

	srcLo := headerSize + 4*n.slotOff(index)
	srcHi := headerSize + 4*n.slotOff(count)
	dst := headerSize + 4*n.slotOff(index+size)
	copy(n.buf()[dst:], n.buf()[srcLo:srcHi])

	if n.Tag() == TagBranch {
		bufLo := headerSize + 4*n.msgOff(count)
		bufHi := headerSize + 4*n.msgOff(index-1)
		bufDst := headerSize + 4*n.msgOff(count+size)
		copy(n.buf()[bufDst:bufDst+(bufHi-bufLo)], n.buf()[bufLo:bufHi])
		for i := index; i < index+size; i++ {
			n.setBufCount(i, 0)
		}
	}

	n.setCount(count + size)
}

// Load pins and wraps node nid.
func Load(pool bufferpool.Manager, nid storage.PageID) (*Node, error) {
	page, err := pool.Pin(nid, false)
	if err != nil {
		return nil, fmt.Errorf("ftrie: load %d: %w", nid, err)
	}
	n := wrap(nid, page)
	if n.Tag() != TagLeaf && n.Tag() != TagBranch {
		return nil, fmt.Errorf("ftrie: load %d: %w", nid, ErrCorrupt)
	}
	return n, nil
}

// NewLeaf allocates an empty leaf storing width-wide records.
func NewLeaf(pool bufferpool.Manager, width int) (storage.PageID, error) {
	page, err := pool.NewPages(1)
	if err != nil {
		return storage.NoPage, fmt.Errorf("ftrie: new leaf: %w", err)
	}
	n := wrap(page.ID, page)
	n.setTag(TagLeaf)
	n.setCount(0)
	n.setWidth(width)
	n.SetPrev(storage.NoPage)
	n.SetNext(storage.NoPage)
	if err := pool.Unpin(page.ID, true); err != nil {
		return storage.NoPage, err
	}
	return page.ID, nil
}

// split shares this node's contents with a new right neighbour, threading
// it into the neighbour chain, and returns the new page id together with
// the key partitioning the two: keys at or below it stay here.
func (n *Node) split(pool bufferpool.Manager) ([]int32, storage.PageID, error) {
	page, err := pool.NewPages(1)
	if err != nil {
		return nil, storage.NoPage, fmt.Errorf("ftrie: split: %w", err)
	}
	nbr := wrap(page.ID, page)
	nbr.setTag(n.Tag())
	nbr.setWidth(n.Width())

	count := n.Count()
	pivot := count / 2
	var part []int32

	switch n.Tag() {
	case TagLeaf:
		// Upper half of the records moves out; the last key staying
		// behind partitions the two.
		for j := 0; pivot+j < count; j++ {
			nbr.setCount(j + 1)
			nbr.SetSlotKey(j, n.SlotKey(pivot+j))
		}
		n.setCount(pivot)
		part = n.SlotKey(pivot - 1)
	default:
		// The pivot key is lifted up rather than copied; the new node
		// takes the slots above it, the child at the pivot becoming its
		// leftmost pointer, along with those children's buffers.
		nbr.setCount(count - pivot - 1)
		nbr.SetLeft(n.Child(pivot + 1))
		for j := 0; pivot+1+j < count; j++ {
			nbr.SetSlotKey(j, n.SlotKey(pivot+1+j))
			nbr.SetSlotChild(j, n.SlotChild(pivot+1+j))
		}
		p := nbr.msgSpacePerChild()
		for j := 0; j <= count-pivot-1; j++ {
			d := headerSize + 4*nbr.msgOff(j)
			s := headerSize + 4*n.msgOff(pivot+1+j)
			copy(nbr.buf()[d:d+4*p], n.buf()[s:s+4*p])
		}
		part = n.SlotKey(pivot)
		n.setCount(pivot)
	}

	// Thread the neighbour chain.
	nbr.SetPrev(n.PID)
	nbr.SetNext(n.Next())
	n.SetNext(nbr.PID)
	if nbr.Next() != storage.NoPage {
		after, err := Load(pool, nbr.Next())
		if err != nil {
			return nil, storage.NoPage, err
		}
		after.SetPrev(nbr.PID)
		if err := pool.Unpin(after.PID, true); err != nil {
			return nil, storage.NoPage, err
		}
	}

	if err := pool.Unpin(nbr.PID, true); err != nil {
		return nil, storage.NoPage, err
	}
	return part, nbr.PID, nil
}

// merge appends that's slots and buffers onto this node. that must be the
// right neighbour, of the same type, and the combined slots must fit; for
// branches the parent's separating key part is reinstated between the two.
// The caller frees that's page afterwards.
func (n *Node) merge(pool bufferpool.Manager, that *Node, part []int32) error {
	count := n.Count()

	switch n.Tag() {
	case TagLeaf:
		for j := 0; j < that.Count(); j++ {
			n.setCount(count + j + 1)
			n.SetSlotKey(count+j, that.SlotKey(j))
		}
	default:
		n.setCount(count + that.Count() + 1)
		n.SetSlotKey(count, part)
		n.SetSlotChild(count, that.Left())
		for j := 0; j < that.Count(); j++ {
			n.SetSlotKey(count+1+j, that.SlotKey(j))
			n.SetSlotChild(count+1+j, that.SlotChild(j))
		}
		p := n.msgSpacePerChild()
		for j := 0; j <= that.Count(); j++ {
			d := headerSize + 4*n.msgOff(count+1+j)
			s := headerSize + 4*that.msgOff(j)
			copy(n.buf()[d:d+4*p], that.buf()[s:s+4*p])
		}
	}

	n.SetNext(that.Next())
	if n.Next() != storage.NoPage {
		after, err := Load(pool, n.Next())
		if err != nil {
			return err
		}
		after.SetPrev(n.PID)
		if err := pool.Unpin(after.PID, true); err != nil {
			return err
		}
	}
	return nil
}
