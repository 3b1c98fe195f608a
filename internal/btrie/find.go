package btrie

import (
	"github.com/ivmdb/ivmdb/internal/bufferpool"
	"github.com/ivmdb/ivmdb/internal/storage"
)

// Trie is a single-level B+-Trie over int32 keys storing Stride-wide leaf
// records. A relation's outer trie uses Stride 2 (key, inner root page id);
// an inner trie uses Stride 1 (key alone).
type Trie struct {
	Pool   bufferpool.Manager
	Stride int
}

// New returns a Trie bound to pool, storing records of the given stride.
func New(pool bufferpool.Manager, stride int) *Trie {
	return &Trie{Pool: pool, Stride: stride}
}

// descend loads root and walks branches down to the leaf that would hold
// key, returning the full path (root first, leaf last) with each node
// already pinned, plus the child index taken at each branch.
func (t *Trie) descend(root storage.PageID, key int32) (path []*Node, idxs []int, err error) {
	pid := root
	for {
		n, err := Load(t.Pool, pid)
		if err != nil {
			return nil, nil, err
		}
		path = append(path, n)
		if n.Tag() == TagLeaf {
			return path, idxs, nil
		}
		c := n.FindKey(key)
		// FindKey gives the first separator >= key; key <= that separator
		// belongs in the child on its left, i.e. child index c itself
		// (Child(0..Count()) with separator i sitting between Child(i) and
		// Child(i+1), bounding Child(i)'s keys from above).
		idxs = append(idxs, c)
		pid = n.Child(c)
	}
}

func unpinAll(pool bufferpool.Manager, path []*Node) {
	for _, n := range path {
		_ = pool.Unpin(n.PID, false)
	}
}

// Find returns the record stored under key, if any.
func (t *Trie) Find(root storage.PageID, key int32) ([]int32, bool, error) {
	path, _, err := t.descend(root, key)
	if err != nil {
		return nil, false, err
	}
	defer unpinAll(t.Pool, path)

	leaf := path[len(path)-1]
	i := leaf.FindKey(key)
	if i < leaf.Count() && leaf.LeafKey(i) == key {
		return leaf.LeafRecord(i), true, nil
	}
	return nil, false, nil
}

// Scan returns every record in the trie in ascending key order, by walking
// the leaf chain from its leftmost leaf. Intended for small trees (tests,
// debug tooling); the real access path is the trie cursor.
func (t *Trie) Scan(root storage.PageID) ([][]int32, error) {
	pid := root
	for {
		n, err := Load(t.Pool, pid)
		if err != nil {
			return nil, err
		}
		if n.Tag() == TagLeaf {
			_ = t.Pool.Unpin(pid, false)
			break
		}
		next := n.Child(0)
		_ = t.Pool.Unpin(pid, false)
		pid = next
	}

	var out [][]int32
	for pid != storage.NoPage {
		n, err := Load(t.Pool, pid)
		if err != nil {
			return nil, err
		}
		for i := 0; i < n.Count(); i++ {
			out = append(out, n.LeafRecord(i))
		}
		next := n.Next()
		_ = t.Pool.Unpin(pid, false)
		pid = next
	}
	return out, nil
}
