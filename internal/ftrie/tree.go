package ftrie

import (
	"fmt"

	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

// Tree is a handle on one fractal trie: the root page id plus the root
// node itself, which stays pinned between operations so that batches of
// single-message flushes never re-fault it. Tree performs the root
// maintenance the recursive flush cannot: rebuilding the root over new
// sibling slots after a split, and collapsing an emptied branch root down
// to its sole surviving child.
type Tree struct {
	pool  bufferpool.Manager
	width int

	rootPID storage.PageID
	root    *Node
}

// New creates an empty fractal trie whose records are width columns wide,
// rooted at a fresh leaf.
func New(pool bufferpool.Manager, width int) (*Tree, error) {
	rootPID, err := NewLeaf(pool, width)
	if err != nil {
		return nil, fmt.Errorf("ftrie: new: %w", err)
	}
	root, err := Load(pool, rootPID)
	if err != nil {
		return nil, fmt.Errorf("ftrie: new: %w", err)
	}
	return &Tree{pool: pool, width: width, rootPID: rootPID, root: root}, nil
}

// Width is the number of columns in each record.
func (t *Tree) Width() int { return t.width }

// Root is the current root page id.
func (t *Tree) Root() storage.PageID { return t.rootPID }

// Close releases the long-lived root pin, leaving the trie's pages intact.
func (t *Tree) Close() error {
	if t.root == nil {
		return nil
	}
	t.root = nil
	if err := t.pool.Unpin(t.rootPID, false); err != nil {
		return fmt.Errorf("ftrie: close: %w", err)
	}
	return nil
}

// Insert logs key as a pending insertion.
func (t *Tree) Insert(key []int32) error { return t.log(KindInsert, key) }

// Delete logs key as a pending deletion.
func (t *Tree) Delete(key []int32) error { return t.log(KindDelete, key) }

// log flushes a single message at the root and repairs the root afterward:
// a split is absorbed by chaining the old root and the new sibling slots
// into a fresh branch level, and an empty branch root with no pending
// messages collapses to its only child.
func (t *Tree) log(kind Kind, key []int32) error {
	if len(key) != t.width {
		return fmt.Errorf("ftrie: log: key width %d != %d", len(key), t.width)
	}

	msg := Message{Kind: kind, Key: append([]int32(nil), key...)}
	diff, err := flush(t.pool, t.rootPID, family{sibs: SideNone}, []Message{msg})
	if err != nil {
		return fmt.Errorf("ftrie: log: %w", err)
	}

	if diff.Prop == PropSplit {
		if err := t.pool.Unpin(t.rootPID, false); err != nil {
			return fmt.Errorf("ftrie: log: %w", err)
		}
		newRoot, err := BuildBranch(t.pool, t.width, t.rootPID, diff.NewSlots)
		if err != nil {
			return fmt.Errorf("ftrie: log: %w", err)
		}
		t.rootPID = newRoot
		if t.root, err = Load(t.pool, newRoot); err != nil {
			return fmt.Errorf("ftrie: log: %w", err)
		}
		return nil
	}

	if t.root.IsEmpty() && t.root.Tag() == TagBranch && t.root.BufCount(0) == 0 {
		newRoot := t.root.Left()
		if err := t.pool.Unpin(t.rootPID, false); err != nil {
			return fmt.Errorf("ftrie: log: %w", err)
		}
		if err := t.pool.Free(t.rootPID); err != nil {
			return fmt.Errorf("ftrie: log: %w", err)
		}
		t.rootPID = newRoot
		if t.root, err = Load(t.pool, newRoot); err != nil {
			return fmt.Errorf("ftrie: log: %w", err)
		}
	}
	return nil
}

// Contains reports whether key is currently a member, honouring pending
// messages: the topmost buffered message for key on the root-to-leaf path
// is the newest and decides the answer.
func (t *Tree) Contains(key []int32) (bool, error) {
	pid := t.rootPID
	for {
		node, err := Load(t.pool, pid)
		if err != nil {
			return false, fmt.Errorf("ftrie: contains: %w", err)
		}
		pos := node.FindKey(key, 0)

		if node.Tag() == TagLeaf {
			found := pos < node.Count() && cmpKeys(node.SlotKey(pos), key) == 0
			if err := t.pool.Unpin(pid, false); err != nil {
				return false, err
			}
			return found, nil
		}

		for _, m := range node.ReadBuf(pos) {
			if cmpKeys(m.Key, key) == 0 {
				if err := t.pool.Unpin(pid, false); err != nil {
					return false, err
				}
				return m.Kind == KindInsert, nil
			}
		}
		next := node.Child(pos)
		if err := t.pool.Unpin(pid, false); err != nil {
			return false, err
		}
		pid = next
	}
}

// Scan returns every member record in ascending lexicographic order,
// reconciling leaf records with the message buffers still in flight above
// them. pending carries the messages addressed to a subtree by its
// ancestors, which are always newer than anything buffered within it.
func (t *Tree) Scan() ([][]int32, error) {
	return t.scan(t.rootPID, nil)
}

func (t *Tree) scan(pid storage.PageID, pending []Message) ([][]int32, error) {
	node, err := Load(t.pool, pid)
	if err != nil {
		return nil, fmt.Errorf("ftrie: scan: %w", err)
	}

	if node.Tag() == TagLeaf {
		out := applyMessages(node, pending)
		if err := t.pool.Unpin(pid, false); err != nil {
			return nil, err
		}
		return out, nil
	}

	// Partition the inherited messages among the children, fold each
	// child's own buffer underneath them, and release this node before
	// descending.
	type part struct {
		child storage.PageID
		msgs  []Message
	}
	parts := make([]part, 0, node.Count()+1)
	from := 0
	for i := 0; i <= node.Count(); i++ {
		to := len(pending)
		if i < node.Count() {
			to = findMessage(pending, from, successor(node.SlotKey(i)))
		}
		parts = append(parts, part{
			child: node.Child(i),
			msgs:  mergeMessages(node.ReadBuf(i), pending[from:to]),
		})
		from = to
	}
	if err := t.pool.Unpin(pid, false); err != nil {
		return nil, err
	}

	var out [][]int32
	for _, p := range parts {
		sub, err := t.scan(p.child, p.msgs)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}
	return out, nil
}

// applyMessages merges a leaf's sorted records with a sorted message run:
// an insert adds the key if absent, a delete drops it if present.
func applyMessages(leaf *Node, msgs []Message) [][]int32 {
	out := make([][]int32, 0, leaf.Count()+len(msgs))
	i, j := 0, 0
	for i < leaf.Count() && j < len(msgs) {
		rec := leaf.SlotKey(i)
		switch cmp := cmpKeys(rec, msgs[j].Key); {
		case cmp < 0:
			out = append(out, rec)
			i++
		case cmp > 0:
			if msgs[j].Kind == KindInsert {
				out = append(out, msgs[j].Key)
			}
			j++
		default:
			if msgs[j].Kind == KindInsert {
				out = append(out, rec)
			}
			i++
			j++
		}
	}
	for ; i < leaf.Count(); i++ {
		out = append(out, leaf.SlotKey(i))
	}
	for ; j < len(msgs); j++ {
		if msgs[j].Kind == KindInsert {
			out = append(out, msgs[j].Key)
		}
	}
	return out
}

// Clear removes every record. Unlike single-message inserts and removals,
// this is eager: the whole trie is freed page by page and replaced with a
// fresh empty leaf.
func (t *Tree) Clear() error {
	if err := t.pool.Unpin(t.rootPID, false); err != nil {
		return fmt.Errorf("ftrie: clear: %w", err)
	}
	t.root = nil
	if err := t.freeSubtree(t.rootPID); err != nil {
		return fmt.Errorf("ftrie: clear: %w", err)
	}

	rootPID, err := NewLeaf(t.pool, t.width)
	if err != nil {
		return fmt.Errorf("ftrie: clear: %w", err)
	}
	if t.root, err = Load(t.pool, rootPID); err != nil {
		return fmt.Errorf("ftrie: clear: %w", err)
	}
	t.rootPID = rootPID
	return nil
}

func (t *Tree) freeSubtree(pid storage.PageID) error {
	node, err := Load(t.pool, pid)
	if err != nil {
		return err
	}
	var children []storage.PageID
	if node.Tag() == TagBranch {
		for i := 0; i <= node.Count(); i++ {
			children = append(children, node.Child(i))
		}
	}
	if err := t.pool.Unpin(pid, false); err != nil {
		return err
	}
	for _, c := range children {
		if err := t.freeSubtree(c); err != nil {
			return err
		}
	}
	return t.pool.Free(pid)
}
