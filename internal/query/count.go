package query

// Count maintains a running count of the tuples in the natural join of a
// fixed set of relations.
type Count struct {
	tables []Table
	width  int
	value  int64
}

// NewCount returns a count query over tables, initially zero: call
// Recompute to populate it from the relations' current contents.
func NewCount(tables ...Table) *Count {
	return &Count{tables: tables, width: Width(tables)}
}

// Value is the query's current result.
func (q *Count) Value() int64 { return q.value }

// Recompute discards the current value and recounts the full join from
// scratch over full scans of every table.
func (q *Count) Recompute() error {
	n, err := countTuples(fullScanJoin(q.tables), q.width, 0)
	if err != nil {
		return err
	}
	q.value = n
	return nil
}

// Update applies a single row change (x, y) to table, incrementally
// adjusting the count by the size of the delta join: the natural join
// restricted to rows agreeing with (x, y) on table's two columns.
func (q *Count) Update(table string, op Op, x, y int32) error {
	join, err := deltaJoin(q.tables, table, x, y)
	if err != nil {
		return err
	}
	delta, err := countTuples(join, q.width, 0)
	if err != nil {
		return err
	}
	switch op {
	case Insert:
		q.value += delta
	case Delete:
		q.value -= delta
	}
	return nil
}

// NaiveCount is the non-incremental counterpart: every Update simply
// recomputes the whole join from scratch, discarding the singleton-delta
// machinery.
type NaiveCount struct {
	*Count
}

// NewNaiveCount returns a naïve count query over tables.
func NewNaiveCount(tables ...Table) *NaiveCount {
	return &NaiveCount{Count: NewCount(tables...)}
}

// Update ignores op, x, and y and recomputes the count from scratch.
func (q *NaiveCount) Update(table string, op Op, x, y int32) error {
	return q.Recompute()
}
