package storage

// Page is a fixed-size, opaque byte region. Its bytes are interpreted by
// higher layers (B+-Trie node, fractal-trie node, heap page) according to a
// header tag each of those layouts writes at offset 0; storage itself knows
// nothing about node shapes.
type Page struct {
	ID  PageID
	Buf []byte
}

// NewPage wraps buf (which must be exactly pageSize long) as page id.
func NewPage(id PageID, buf []byte) *Page {
	return &Page{ID: id, Buf: buf}
}

// Zero clears the page's bytes, used when the buffer pool hands back an
// "empty" pin rather than one backed by a disk read.
func (p *Page) Zero() {
	for i := range p.Buf {
		p.Buf[i] = 0
	}
}
