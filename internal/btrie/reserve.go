package btrie

import (
	"log/slog"

	"github.com/ivmdb/ivmdb/internal/storage"
)

// Reserve inserts rec under key, or overwrites the existing record if key is
// already present (an "upsert", needed so an outer leaf's inner-root pointer
// can be rewritten after the inner trie itself splits or merges). It returns
// the trie's root, which changes only when the root itself splits.
//
// A branch separator is the largest key reachable through the child on its
// left at the time the separator was written; descent routes key <= separator
// into that child. Separators are never rewritten to chase a child's minimum
// (an insert below needs no separator maintenance at all) and may go stale
// after deletes, which leaves routing correct.
func (t *Trie) Reserve(root storage.PageID, key int32, rec []int32) (storage.PageID, error) {
	path, idxs, err := t.descend(root, key)
	if err != nil {
		return root, err
	}

	leaf := path[len(path)-1]
	idx := leaf.FindKey(key)

	var diff Diff
	switch {
	case idx < leaf.Count() && leaf.LeafKey(idx) == key:
		leaf.SetLeafRecord(idx, rec)
		if err := t.Pool.Unpin(leaf.PID, true); err != nil {
			unpinAll(t.Pool, path[:len(path)-1])
			return root, err
		}

	case !leaf.IsFull():
		leaf.MakeRoom(idx, 1)
		leaf.SetLeafRecord(idx, rec)
		if err := t.Pool.Unpin(leaf.PID, true); err != nil {
			unpinAll(t.Pool, path[:len(path)-1])
			return root, err
		}

	default:
		// Leaf is full: redistribute into the left sibling, then the right
		// sibling, before resorting to a split. Only siblings sharing this
		// leaf's immediate parent are eligible, so the parent's separator
		// can be fixed in the same step. Insert-time redistribution is a
		// leaf-only, pre-split policy; branches below only ever split.
		combined := spliceLeafRecord(leaf, idx, rec)
		diff, err = t.reserveLeafFull(path, idxs, combined)
		if err != nil {
			unpinAll(t.Pool, path[:len(path)-1])
			return root, err
		}
	}

	for i := len(path) - 2; i >= 0; i-- {
		branch := path[i]
		c := idxs[i]
		diff, err = t.applyInsertDiff(branch, c, diff)
		if err != nil {
			unpinAll(t.Pool, path[:i])
			return root, err
		}
		if err := t.Pool.Unpin(branch.PID, true); err != nil {
			return root, err
		}
	}

	if diff.Kind == Split {
		newRoot, err := NewBranch(t.Pool, root, diff.SplitKey, diff.SplitChild)
		if err != nil {
			return root, err
		}
		return newRoot, nil
	}
	return root, nil
}

// reserveLeafFull resolves an overflowing leaf insert. combined holds the
// leaf's records with the new one already spliced in; the balance moved to
// a sibling is chosen so both nodes end up near half of the combined total.
// leaf is path's last element and is always unpinned (dirty) by this call.
func (t *Trie) reserveLeafFull(path []*Node, idxs []int, combined [][]int32) (Diff, error) {
	leaf := path[len(path)-1]

	if len(path) >= 2 {
		parent := path[len(path)-2]
		c := idxs[len(path)-2]

		if c > 0 {
			leftPID := parent.Child(c - 1)
			left, err := Load(t.Pool, leftPID)
			if err != nil {
				return Diff{}, err
			}
			if !left.IsFull() {
				// Move the head of the combined run onto the left
				// sibling's tail and rewrite the separator between them
				// to the last key that moved.
				total := left.Count() + len(combined)
				delta := total/2 - left.Count()

				for i := 0; i < delta; i++ {
					left.MakeRoom(left.Count(), 1)
					left.SetLeafRecord(left.Count()-1, combined[i])
				}
				writeLeafRecords(leaf, combined[delta:])
				parent.SetBranchKey(c-1, combined[delta-1][0])

				if err := t.Pool.Unpin(left.PID, true); err != nil {
					return Diff{}, err
				}
				if err := t.Pool.Unpin(leaf.PID, true); err != nil {
					return Diff{}, err
				}
				return diffNothing, nil
			}
			if err := t.Pool.Unpin(left.PID, false); err != nil {
				return Diff{}, err
			}
		}

		if c < parent.Count() {
			rightPID := parent.Child(c + 1)
			right, err := Load(t.Pool, rightPID)
			if err != nil {
				return Diff{}, err
			}
			if !right.IsFull() {
				// Mirror image: the tail of the combined run moves onto
				// the right sibling's head.
				total := right.Count() + len(combined)
				delta := total/2 - right.Count()
				keep := len(combined) - delta

				right.MakeRoom(0, delta)
				for i := 0; i < delta; i++ {
					right.SetLeafRecord(i, combined[keep+i])
				}
				writeLeafRecords(leaf, combined[:keep])
				parent.SetBranchKey(c, combined[keep-1][0])

				if err := t.Pool.Unpin(right.PID, true); err != nil {
					return Diff{}, err
				}
				if err := t.Pool.Unpin(leaf.PID, true); err != nil {
					return Diff{}, err
				}
				return diffNothing, nil
			}
			if err := t.Pool.Unpin(right.PID, false); err != nil {
				return Diff{}, err
			}
		}
	}

	// Split: the lower half stays, the upper half moves to a new right
	// neighbour, and the last key staying behind separates the two.
	mid := len(combined) / 2
	lower, upper := combined[:mid], combined[mid:]

	rightPID, err := NewLeaf(t.Pool, t.Stride)
	if err != nil {
		return Diff{}, err
	}
	rightNode, err := Load(t.Pool, rightPID)
	if err != nil {
		return Diff{}, err
	}
	writeLeafRecords(rightNode, upper)
	// The old right neighbour's Prev still names leaf; nothing in this
	// package reads Prev, so the stale back-pointer is left alone.
	rightNode.SetNext(leaf.Next())
	rightNode.SetPrev(leaf.PID)
	if err := t.Pool.Unpin(rightPID, true); err != nil {
		return Diff{}, err
	}

	writeLeafRecords(leaf, lower)
	leaf.SetNext(rightPID)
	if err := t.Pool.Unpin(leaf.PID, true); err != nil {
		return Diff{}, err
	}

	slog.Debug(logPrefix+"leaf split", "node", leaf.PID, "newSibling", rightPID)
	return Diff{Kind: Split, SplitKey: lower[len(lower)-1][0], SplitChild: rightPID}, nil
}

// spliceLeafRecord returns leaf's records with rec inserted at idx, without
// mutating leaf's slot count (the caller still owns truncating/redistributing
// the result back into one or two nodes).
func spliceLeafRecord(leaf *Node, idx int, rec []int32) [][]int32 {
	n := leaf.Count()
	out := make([][]int32, 0, n+1)
	for i := 0; i < idx; i++ {
		out = append(out, leaf.LeafRecord(i))
	}
	out = append(out, rec)
	for i := idx; i < n; i++ {
		out = append(out, leaf.LeafRecord(i))
	}
	return out
}

// writeLeafRecords resets leaf's slot count to len(recs) and writes them.
func writeLeafRecords(leaf *Node, recs [][]int32) {
	for i, r := range recs {
		leaf.SetLeafRecord(i, r)
	}
	leaf.setCount(len(recs))
}

type branchEntry struct {
	key   int32
	child storage.PageID
}

// spliceBranchEntry returns branch's (key, child) entries with a new entry
// inserted at idx, leaving branch's leftmost pointer untouched (index -1,
// conceptually): idx 0 means "immediately after the leftmost pointer".
func spliceBranchEntry(branch *Node, idx int, e branchEntry) []branchEntry {
	n := branch.Count()
	out := make([]branchEntry, 0, n+1)
	for i := 0; i < idx; i++ {
		out = append(out, branchEntry{branch.BranchKey(i), branch.BranchChild(i)})
	}
	out = append(out, e)
	for i := idx; i < n; i++ {
		out = append(out, branchEntry{branch.BranchKey(i), branch.BranchChild(i)})
	}
	return out
}

func writeBranchEntries(branch *Node, left storage.PageID, entries []branchEntry) {
	branch.SetBranchLeft(left)
	for i, e := range entries {
		branch.SetBranchKey(i, e.key)
		branch.SetBranchChild(i, e.child)
	}
	branch.setCount(len(entries))
}

// applyInsertDiff folds the diff reported by child c into branch, splitting
// branch itself if the insertion overflows it: the key at the pivot slot is
// lifted up rather than kept, and the new right neighbour is threaded into
// this level's chain. Insert-time branch repair never redistributes.
func (t *Trie) applyInsertDiff(branch *Node, c int, diff Diff) (Diff, error) {
	switch diff.Kind {
	case Split:
		if !branch.IsFull() {
			branch.MakeRoom(c, 1)
			branch.SetBranchKey(c, diff.SplitKey)
			branch.SetBranchChild(c, diff.SplitChild)
			return diffNothing, nil
		}

		entries := spliceBranchEntry(branch, c, branchEntry{diff.SplitKey, diff.SplitChild})
		left := branch.BranchLeft()
		mid := len(entries) / 2

		promoted := entries[mid]
		leftEntries := entries[:mid]
		rightEntries := entries[mid+1:]

		rightPID, err := NewBranch(t.Pool, promoted.child, 0, storage.NoPage)
		if err != nil {
			return Diff{}, err
		}
		rightNode, err := Load(t.Pool, rightPID)
		if err != nil {
			return Diff{}, err
		}
		writeBranchEntries(rightNode, promoted.child, rightEntries)
		rightNode.SetPrev(branch.PID)
		rightNode.SetNext(branch.Next())
		if err := t.Pool.Unpin(rightPID, true); err != nil {
			return Diff{}, err
		}

		writeBranchEntries(branch, left, leftEntries)
		branch.SetNext(rightPID)

		return Diff{Kind: Split, SplitKey: promoted.key, SplitChild: rightPID}, nil
	default:
		return diffNothing, nil
	}
}
