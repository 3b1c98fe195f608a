package cursor

import "fmt"

// Singleton is a depth-one cursor standing in for a single already-known
// value: the one update freshly inserted or removed, joined incrementally
// against the rest of the relations to compute a delta. It behaves exactly
// like a one-record B+-Trie cursor without needing a trie at all.
type Singleton struct {
	value   int32
	opened  bool
	spent   bool // the one value has already been yielded and Next called
	depth   int
}

var _ Cursor = (*Singleton)(nil)

// NewSingleton returns a cursor that will yield exactly one key, value.
func NewSingleton(value int32) *Singleton {
	return &Singleton{value: value, depth: -1}
}

func (s *Singleton) Depth() int { return s.depth }

func (s *Singleton) Open() error {
	if s.opened {
		return fmt.Errorf("cursor: singleton open: already at maximum depth")
	}
	s.opened = true
	s.depth++
	s.spent = false
	return nil
}

func (s *Singleton) Up() error {
	if !s.opened {
		return fmt.Errorf("cursor: singleton up: already at the dummy root")
	}
	s.opened = false
	s.depth--
	s.spent = false
	return nil
}

func (s *Singleton) Next() error {
	s.spent = true
	return nil
}

func (s *Singleton) Seek(target int32) error {
	if target > s.value {
		s.spent = true
	}
	return nil
}

func (s *Singleton) Key() int32 {
	if s.spent {
		return PosInf
	}
	return s.value
}

func (s *Singleton) AtEnd() bool { return s.spent }

func (s *Singleton) AtValidDepth() bool { return s.opened && !s.spent }
