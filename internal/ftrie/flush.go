package ftrie

import (
	"log/slog"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

const logPrefix = "ftrie: "

// Kind tags a buffered message.
type Kind int32

const (
	KindInsert Kind = iota
	KindDelete
)

// Message is one buffered mutation waiting to be flushed down the trie: an
// operation and the width-wide record it applies to.
type Message struct {
	Kind Kind
	Key  []int32
}

// Prop classifies how a node reacted to a flush, so its parent can adjust
// its own slots.
type Prop int

const (
	PropNothing Prop = iota
	PropSplit
	PropMerge
)

// Side names which neighbour a node merged with.
type Side uint8

const (
	SideNone  Side = 0
	SideLeft  Side = 1 << 0
	SideRight Side = 1 << 1
)

// Slot is one (partition key, child) pair a split hands up to its parent.
// Key is the lower bound (exclusive) of the keys reachable through Child.
type Slot struct {
	Key   []int32
	Child storage.PageID
}

// Diff is a flush's report to the parent: new sibling slots to link in
// after a split, or the side a merge happened on.
type Diff struct {
	Prop     Prop
	Side     Side
	NewSlots []Slot
}

// family tells a node which of its neighbours share its parent, and the
// partition keys separating it from them, for merge eligibility.
type family struct {
	sibs     Side
	leftKey  []int32
	rightKey []int32
}

// findMessage returns the index of the first message at or after from
// whose key is >= key.
func findMessage(msgs []Message, from int, key []int32) int {
	lo, hi := from, len(msgs)
	for lo < hi {
		m := lo + (hi-lo)/2
		if cmpKeys(key, msgs[m].Key) > 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return hi
}

// mergeMessages merges two key-sorted message runs into a fresh buffer,
// de-duplicating by key; incoming arrived later than existing, so on a
// duplicate the incoming message wins.
func mergeMessages(existing, incoming []Message) []Message {
	merged := make([]Message, 0, len(existing)+len(incoming))
	i, j := 0, 0
	for i < len(existing) && j < len(incoming) {
		switch cmp := cmpKeys(existing[i].Key, incoming[j].Key); {
		case cmp < 0:
			merged = append(merged, existing[i])
			i++
		case cmp > 0:
			merged = append(merged, incoming[j])
			j++
		default:
			merged = append(merged, incoming[j])
			i++
			j++
		}
	}
	merged = append(merged, existing[i:]...)
	merged = append(merged, incoming[j:]...)
	return merged
}

// findNewSlot returns how many in-flight new siblings partition below key:
// 0 means the original node still covers key, i means newNbrs[i-1] does.
func findNewSlot(newNbrs []Slot, key []int32) int {
	lo, hi := 0, len(newNbrs)
	for lo < hi {
		m := lo + (hi-lo)/2
		if cmpKeys(key, newNbrs[m].Key) > 0 {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return hi
}

// successor returns key's lexicographic successor (last column + 1), used
// to cut a message run at an inclusive upper bound.
func successor(key []int32) []int32 {
	s := append([]int32(nil), key...)
	s[len(s)-1]++
	return s
}

// flush routes the key-sorted incoming messages to nid and its
// descendants. A leaf applies every message directly, splitting as needed;
// a branch folds each run of messages into the target child's buffer,
// recursing only when the merged buffer overflows its share. The returned
// diff carries any new sibling slots (splits) or the merge side, for the
// parent to apply. While one node level is being worked on, at most O(1)
// pages are pinned.
func flush(pool bufferpool.Manager, nid storage.PageID, fam family, incoming []Message) (Diff, error) {
	pid := nid
	node, err := Load(pool, pid)
	if err != nil {
		return Diff{}, err
	}

	tag := node.Tag()

	// Splits at this level are recorded here as they happen; messages
	// still to be routed may belong to one of these new right siblings.
	var newNbrs []Slot
	nbr, pos := 0, 0

	// seekKey repins whichever node at this level now covers key and
	// finds key's slot position within it.
	seekKey := func(key []int32) error {
		nbr = findNewSlot(newNbrs, key)
		toPin := nid
		if nbr > 0 {
			toPin = newNbrs[nbr-1].Child
		}
		if toPin != pid {
			if err := pool.Unpin(pid, true); err != nil {
				return err
			}
			pid = toPin
			if node, err = Load(pool, pid); err != nil {
				return err
			}
		}
		pos = node.FindKey(key, 0)
		return nil
	}

	// abort releases the working pin on an error path.
	abort := func(err error) (Diff, error) {
		_ = pool.Unpin(pid, true)
		return Diff{}, err
	}

	switch tag {
	case TagLeaf:
		// The bottom of the trie: apply every message.
		for t := 0; t < len(incoming); {
			msg := incoming[t]
			if err := seekKey(msg.Key); err != nil {
				return abort(err)
			}

			switch msg.Kind {
			case KindInsert:
				if pos < node.Count() && cmpKeys(node.SlotKey(pos), msg.Key) == 0 {
					break // already present
				}
				if node.IsFull() {
					part, newPID, err := node.split(pool)
					if err != nil {
						return abort(err)
					}
					newNbrs = append(newNbrs, Slot{})
					copy(newNbrs[nbr+1:], newNbrs[nbr:])
					newNbrs[nbr] = Slot{Key: part, Child: newPID}
					continue // retry the same message
				}
				node.makeRoom(pos, 1)
				node.SetSlotKey(pos, msg.Key)
			case KindDelete:
				if pos == node.Count() || cmpKeys(node.SlotKey(pos), msg.Key) != 0 {
					break // not present
				}
				node.makeRoom(pos+1, -1)
			}
			t++
		}

	case TagBranch:
		for t := 0; t < len(incoming); {
			if err := seekKey(incoming[t].Key); err != nil {
				return abort(err)
			}

			// The run [t, u) targets child pos: every message whose key
			// is at or below slot pos's partition key. Past the last
			// slot, the run is still bounded by this node's own upper
			// bound when an in-flight right sibling exists.
			u := len(incoming)
			if pos < node.Count() {
				u = findMessage(incoming, t, successor(node.SlotKey(pos)))
			} else if nbr < len(newNbrs) {
				u = findMessage(incoming, t, successor(newNbrs[nbr].Key))
			}

			merged := mergeMessages(node.ReadBuf(pos), incoming[t:u])

			if len(merged) <= node.MsgsPerChild() {
				// The buffer absorbs the run; nothing moves further down.
				node.WriteBuf(pos, merged)
				t = u
				continue
			}

			// Overflow: flush the whole merged buffer through the child.
			childFam := family{sibs: SideNone}
			if pos > 0 {
				childFam.sibs |= SideLeft
				childFam.leftKey = node.SlotKey(pos - 1)
			}
			if pos < node.Count() {
				childFam.sibs |= SideRight
				childFam.rightKey = node.SlotKey(pos)
			}

			childDiff, err := flush(pool, node.Child(pos), childFam, merged)
			if err != nil {
				return abort(err)
			}
			node.setBufCount(pos, 0)

			switch childDiff.Prop {
			case PropSplit:
				for s := 0; s < len(childDiff.NewSlots); {
					slot := childDiff.NewSlots[s]
					if err := seekKey(slot.Key); err != nil {
						return abort(err)
					}
					if node.IsFull() {
						part, newPID, err := node.split(pool)
						if err != nil {
							return abort(err)
						}
						newNbrs = append(newNbrs, Slot{})
						copy(newNbrs[nbr+1:], newNbrs[nbr:])
						newNbrs[nbr] = Slot{Key: part, Child: newPID}
						continue // retry the same slot
					}
					node.makeRoom(pos, 1)
					node.SetSlotKey(pos, slot.Key)
					node.SetSlotChild(pos, slot.Child)
					s++
				}
			case PropMerge:
				if childDiff.Side == SideRight {
					// The child absorbed its right sibling: drop the
					// separator at pos and the vacated page. The
					// surviving child adopts the vacated buffer, which
					// held the right sibling's pending messages.
					toFree := node.Child(pos + 1)
					node.makeRoom(pos+1, -1)
					if err := pool.Free(toFree); err != nil {
						return abort(err)
					}
				} else if childDiff.Side == SideLeft {
					// The child was absorbed into its left sibling: the
					// separator at pos-1 goes, and the left sibling's
					// buffer survives in the vacated child's place.
					toFree := node.Child(pos)
					node.copyBuf(pos, pos-1)
					node.makeRoom(pos, -1)
					if err := pool.Free(toFree); err != nil {
						return abort(err)
					}
				}
			}

			t = u
		}
	}

	if len(newNbrs) > 0 {
		slog.Debug(logPrefix+"flush split", "node", nid, "newSiblings", len(newNbrs))
		if err := pool.Unpin(pid, true); err != nil {
			return Diff{}, err
		}
		return Diff{Prop: PropSplit, NewSlots: newNbrs}, nil
	}

	if !node.IsUnderOccupied() {
		if err := pool.Unpin(pid, true); err != nil {
			return Diff{}, err
		}
		return Diff{}, nil
	}

	// Under-occupied: merge with a same-parent neighbour that is also
	// under-occupied, so the combination is guaranteed to fit.
	if fam.sibs&SideLeft != 0 {
		lid := node.Prev()
		left, err := Load(pool, lid)
		if err != nil {
			return abort(err)
		}
		if left.IsUnderOccupied() {
			if err := left.merge(pool, node, fam.leftKey); err != nil {
				_ = pool.Unpin(lid, true)
				return abort(err)
			}
			slog.Debug(logPrefix+"flush merge", "node", nid, "into", lid)
			if err := pool.Unpin(lid, true); err != nil {
				return Diff{}, err
			}
			if err := pool.Unpin(pid, false); err != nil {
				return Diff{}, err
			}
			return Diff{Prop: PropMerge, Side: SideLeft}, nil
		}
		if err := pool.Unpin(lid, false); err != nil {
			return abort(err)
		}
	}

	if fam.sibs&SideRight != 0 {
		rid := node.Next()
		right, err := Load(pool, rid)
		if err != nil {
			return abort(err)
		}
		if right.IsUnderOccupied() {
			if err := node.merge(pool, right, fam.rightKey); err != nil {
				_ = pool.Unpin(rid, false)
				return abort(err)
			}
			slog.Debug(logPrefix+"flush merge", "node", rid, "into", nid)
			if err := pool.Unpin(pid, true); err != nil {
				return Diff{}, err
			}
			if err := pool.Unpin(rid, false); err != nil {
				return Diff{}, err
			}
			return Diff{Prop: PropMerge, Side: SideRight}, nil
		}
		if err := pool.Unpin(rid, false); err != nil {
			return abort(err)
		}
	}

	if err := pool.Unpin(pid, true); err != nil {
		return Diff{}, err
	}
	return Diff{}, nil
}
