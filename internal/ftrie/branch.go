package ftrie

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

// BuildBranch chains left and the given slots into branch pages at a
// single level and returns the leftmost page id of the level actually
// holding them. When the slots overflow one page, the extra pages spill
// into a recursive invocation, so a large enough slot list produces a
// multi-level subtree; an empty list produces no branch at all.
func BuildBranch(pool bufferpool.Manager, width int, left storage.PageID, slots []Slot) (storage.PageID, error) {
	if len(slots) == 0 {
		return left, nil
	}

	fresh := func(leftmost, prev storage.PageID) (*Node, error) {
		page, err := pool.NewPages(1)
		if err != nil {
			return nil, fmt.Errorf("ftrie: build branch: %w", err)
		}
		b := wrap(page.ID, page)
		b.setTag(TagBranch)
		b.setCount(0)
		b.setWidth(width)
		b.SetPrev(prev)
		b.SetNext(storage.NoPage)
		b.SetLeft(leftmost)
		return b, nil
	}

	branch, err := fresh(left, storage.NoPage)
	if err != nil {
		return storage.NoPage, err
	}
	first := branch.PID

	var spillOver []Slot
	for _, slot := range slots {
		if branch.IsFull() {
			// This page is out of room: the slot's child seeds a new
			// right neighbour, and the slot key partitions the two in
			// the level above.
			nbr, err := fresh(slot.Child, branch.PID)
			if err != nil {
				_ = pool.Unpin(branch.PID, true)
				return storage.NoPage, err
			}
			branch.SetNext(nbr.PID)
			spillOver = append(spillOver, Slot{Key: slot.Key, Child: nbr.PID})
			if err := pool.Unpin(branch.PID, true); err != nil {
				return storage.NoPage, err
			}
			branch = nbr
			continue
		}
		n := branch.Count()
		branch.setCount(n + 1)
		branch.SetSlotKey(n, slot.Key)
		branch.SetSlotChild(n, slot.Child)
	}

	if err := pool.Unpin(branch.PID, true); err != nil {
		return storage.NoPage, err
	}
	return BuildBranch(pool, width, first, spillOver)
}
