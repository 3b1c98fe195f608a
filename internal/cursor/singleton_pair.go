package cursor

import "fmt"

// SingletonPair is a depth-two cursor standing in for exactly one already
// known row (x, y): the single row a relation update just inserted or
// removed, joined incrementally against the rest of the relations to
// compute a delta. Its own depth 0 yields x, depth 1 yields y; wrap it in
// a Relative to place those two depths at a relation's (Order1, Order2)
// positions in a shared join ordering.
type SingletonPair struct {
	vals  [2]int32
	depth int  // -1, 0, or 1
	spent bool // the value at the current depth has already been consumed
}

var _ Cursor = (*SingletonPair)(nil)

// NewSingletonPair returns a cursor yielding exactly x at its own depth 0
// and y at its own depth 1.
func NewSingletonPair(x, y int32) *SingletonPair {
	return &SingletonPair{vals: [2]int32{x, y}, depth: -1}
}

func (s *SingletonPair) Depth() int { return s.depth }

func (s *SingletonPair) Open() error {
	if s.depth >= 1 {
		return fmt.Errorf("cursor: singleton pair open: already at maximum depth")
	}
	s.depth++
	s.spent = false
	return nil
}

func (s *SingletonPair) Up() error {
	if s.depth < 0 {
		return fmt.Errorf("cursor: singleton pair up: already at the dummy root")
	}
	s.depth--
	s.spent = false
	return nil
}

func (s *SingletonPair) Next() error {
	s.spent = true
	return nil
}

func (s *SingletonPair) Seek(target int32) error {
	if target > s.vals[s.depth] {
		s.spent = true
	}
	return nil
}

func (s *SingletonPair) Key() int32 {
	if s.spent {
		return PosInf
	}
	return s.vals[s.depth]
}

func (s *SingletonPair) AtEnd() bool { return s.spent }

func (s *SingletonPair) AtValidDepth() bool { return s.depth >= 0 && s.depth <= 1 && !s.spent }
