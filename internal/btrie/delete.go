package btrie

import (
	"log/slog"

	"github.com/ivmdb/ivmdb/internal/storage"
)

// DeleteIf removes the record under key if it exists and pred(record)
// reports true, returning whether anything was deleted and the trie's
// (possibly new, on root collapse) root. Unlike Reserve, delete-time repair
// is two-sided and applies at both leaf and branch levels: an under-occupied
// node may redistribute from or merge with either neighbor. This asymmetry
// against Reserve's one-sided, leaf-only repair is intentional.
//
// Removing a child's largest key can leave the separator above it stale;
// that is fine, since routing only needs each separator to stay at or above
// everything on its left. Separators are rewritten only when a
// redistribution actually moves records across one.
func (t *Trie) DeleteIf(root storage.PageID, key int32, pred func([]int32) bool) (storage.PageID, bool, error) {
	path, idxs, err := t.descend(root, key)
	if err != nil {
		return root, false, err
	}

	leaf := path[len(path)-1]
	idx := leaf.FindKey(key)
	if idx >= leaf.Count() || leaf.LeafKey(idx) != key || (pred != nil && !pred(leaf.LeafRecord(idx))) {
		unpinAll(t.Pool, path)
		return root, false, nil
	}

	leaf.MakeRoom(idx+1, -1)

	var diff Diff
	if len(path) > 1 && leaf.IsUnderOccupied() {
		// The root, leaf or branch, has no occupancy floor.
		diff = Diff{Kind: Underflow}
	}
	if err := t.Pool.Unpin(leaf.PID, true); err != nil {
		unpinAll(t.Pool, path[:len(path)-1])
		return root, true, err
	}

	for i := len(path) - 2; i >= 0; i-- {
		branch := path[i]
		c := idxs[i]
		diff, err = t.applyDeleteDiff(branch, c, diff, i == 0)
		if err != nil {
			unpinAll(t.Pool, path[:i])
			return root, true, err
		}
		if err := t.Pool.Unpin(branch.PID, true); err != nil {
			return root, true, err
		}
	}

	if len(path) > 1 {
		rootNode := path[0]
		if rootNode.Tag() == TagBranch && rootNode.Count() == 0 {
			newRoot := rootNode.BranchLeft()
			if err := t.Pool.Free(root); err != nil {
				return root, true, err
			}
			return newRoot, true, nil
		}
	}
	return root, true, nil
}

// applyDeleteDiff folds the diff reported by child c into branch. An
// Underflow is resolved immediately, against child c's true siblings
// (branch's own other children), before any further propagation; atRoot
// suppresses re-reporting the branch's own underflow, which has nowhere
// to go.
func (t *Trie) applyDeleteDiff(branch *Node, c int, diff Diff, atRoot bool) (Diff, error) {
	if diff.Kind != Underflow {
		return diffNothing, nil
	}
	out, err := t.repairChildUnderflow(branch, c)
	if err != nil {
		return Diff{}, err
	}
	if atRoot {
		return diffNothing, nil
	}
	return out, nil
}

// repairChildUnderflow fixes branch's child c, which has dropped below
// half occupancy, trying in order: redistribute from the left sibling,
// redistribute from the right sibling, merge left, merge right. A sibling
// is a redistribution donor only while it is not itself under-occupied,
// so whenever merging is reached the two halves (plus a reinstated
// separator, for branches) are guaranteed to fit in one node.
func (t *Trie) repairChildUnderflow(branch *Node, c int) (Diff, error) {
	child, err := Load(t.Pool, branch.Child(c))
	if err != nil {
		return Diff{}, err
	}

	if c > 0 {
		left, err := Load(t.Pool, branch.Child(c-1))
		if err != nil {
			return Diff{}, err
		}
		if !left.IsUnderOccupied() {
			return t.redistributeLeft(branch, c, left, child)
		}
		if err := t.Pool.Unpin(left.PID, false); err != nil {
			return Diff{}, err
		}
	}

	if c < branch.Count() {
		right, err := Load(t.Pool, branch.Child(c+1))
		if err != nil {
			return Diff{}, err
		}
		if !right.IsUnderOccupied() {
			return t.redistributeRight(branch, c, child, right)
		}
		if err := t.Pool.Unpin(right.PID, false); err != nil {
			return Diff{}, err
		}
	}

	if c > 0 {
		left, err := Load(t.Pool, branch.Child(c-1))
		if err != nil {
			return Diff{}, err
		}
		return t.mergeNodes(branch, c-1, left, child)
	}

	right, err := Load(t.Pool, branch.Child(c+1))
	if err != nil {
		return Diff{}, err
	}
	return t.mergeNodes(branch, c, child, right)
}

// donation is how many slots a donor of count d hands a deficient
// neighbour of count u so both end up near the balanced midpoint.
func donation(u, d int) int { return (u+d-1)/2 - u + 1 }

// redistributeRight moves slots from right into child, both of which are
// branch's children at indices c and c+1, updating the separator at c.
// Branch slots rotate one at a time through the parent: the separator
// descends onto the child's tail and the donor's first key rises to
// replace it.
func (t *Trie) redistributeRight(branch *Node, c int, child, right *Node) (Diff, error) {
	delta := donation(child.Count(), right.Count())
	if child.Tag() == TagLeaf {
		for i := 0; i < delta; i++ {
			moved := right.LeafRecord(0)
			right.MakeRoom(1, -1)
			child.MakeRoom(child.Count(), 1)
			child.SetLeafRecord(child.Count()-1, moved)
		}
		// The last record moved is now the largest on the separator's
		// left.
		branch.SetBranchKey(c, child.LeafKey(child.Count()-1))
	} else {
		for i := 0; i < delta; i++ {
			sep := branch.BranchKey(c)
			movedChild := right.BranchLeft()
			newSep := right.BranchKey(0)
			right.SetBranchLeft(right.BranchChild(0))
			right.MakeRoom(1, -1)

			child.MakeRoom(child.Count(), 1)
			child.SetBranchKey(child.Count()-1, sep)
			child.SetBranchChild(child.Count()-1, movedChild)
			branch.SetBranchKey(c, newSep)
		}
	}
	if err := t.Pool.Unpin(right.PID, true); err != nil {
		return Diff{}, err
	}
	if err := t.Pool.Unpin(child.PID, true); err != nil {
		return Diff{}, err
	}
	return diffNothing, nil
}

// redistributeLeft moves slots from left into child, both of which are
// branch's children at indices c-1 and c, updating the separator at c-1.
func (t *Trie) redistributeLeft(branch *Node, c int, left, child *Node) (Diff, error) {
	delta := donation(child.Count(), left.Count())
	if child.Tag() == TagLeaf {
		for i := 0; i < delta; i++ {
			moved := left.LeafRecord(left.Count() - 1)
			left.MakeRoom(left.Count(), -1)
			child.MakeRoom(0, 1)
			child.SetLeafRecord(0, moved)
		}
		// The donor's remaining tail is the largest on the separator's
		// left.
		branch.SetBranchKey(c-1, left.LeafKey(left.Count()-1))
	} else {
		for i := 0; i < delta; i++ {
			sep := branch.BranchKey(c - 1)
			movedChild := left.BranchChild(left.Count() - 1)
			newSep := left.BranchKey(left.Count() - 1)
			left.MakeRoom(left.Count(), -1)

			child.MakeRoom(0, 1)
			child.SetBranchKey(0, sep)
			child.SetBranchChild(0, child.BranchLeft())
			child.SetBranchLeft(movedChild)
			branch.SetBranchKey(c-1, newSep)
		}
	}
	if err := t.Pool.Unpin(left.PID, true); err != nil {
		return Diff{}, err
	}
	if err := t.Pool.Unpin(child.PID, true); err != nil {
		return Diff{}, err
	}
	return diffNothing, nil
}

// mergeNodes fuses branch's children at indices c and c+1 (left, right)
// into left, frees right, and removes branch's entry at c; for branches the
// separator being removed is reinstated between the two merged halves.
func (t *Trie) mergeNodes(branch *Node, c int, left, right *Node) (Diff, error) {
	if left.Tag() == TagLeaf {
		for i := 0; i < right.Count(); i++ {
			left.MakeRoom(left.Count(), 1)
			left.SetLeafRecord(left.Count()-1, right.LeafRecord(i))
		}
	} else {
		sep := branch.BranchKey(c)
		left.MakeRoom(left.Count(), 1)
		left.SetBranchKey(left.Count()-1, sep)
		left.SetBranchChild(left.Count()-1, right.BranchLeft())
		for i := 0; i < right.Count(); i++ {
			left.MakeRoom(left.Count(), 1)
			left.SetBranchKey(left.Count()-1, right.BranchKey(i))
			left.SetBranchChild(left.Count()-1, right.BranchChild(i))
		}
	}
	// right's successor keeps a Prev naming the freed page; Prev is
	// write-only in this package, so it is not chased down and fixed.
	left.SetNext(right.Next())

	if err := t.Pool.Unpin(left.PID, true); err != nil {
		return Diff{}, err
	}
	if err := t.Pool.Unpin(right.PID, false); err != nil {
		return Diff{}, err
	}
	if err := t.Pool.Free(right.PID); err != nil {
		return Diff{}, err
	}
	slog.Debug(logPrefix+"merge", "node", right.PID, "into", left.PID)

	branch.MakeRoom(c+1, -1)

	if branch.IsUnderOccupied() {
		return Diff{Kind: Underflow}, nil
	}
	return diffNothing, nil
}
