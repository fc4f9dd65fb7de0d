package patent

import (
	"context"
	"sort"
)

// TotalUncounted is the total returned by Execute for queries that did not
// request a count.
const TotalUncounted int64 = -1

// DefaultAssigneeLimit caps the assignee directory used to populate filter
// dropdowns.
const DefaultAssigneeLimit = 500

// Executor runs one Query against a backing record store and is the only
// capability search and export need from it.
//
// The returned total is the exact number of rows matching the query's
// constraints when q.Counted is set, and TotalUncounted otherwise.  A
// counted query with a nil Range is a count-only probe: the store computes
// the total and returns no rows.  Rows always come back in the query
// ordering (filing date descending, undated records last, ID descending on
// ties).
type Executor interface {
	Execute(ctx context.Context, q Query) (rows []Record, total int64, err error)
}

// AssigneeDirectory lists the distinct assignee names known to a store.
type AssigneeDirectory interface {
	// Assignees returns up to limit distinct non-empty assignee names in
	// ascending order.  A limit <= 0 means DefaultAssigneeLimit.
	Assignees(ctx context.Context, limit int) ([]string, error)
}

// Store is the full capability set a patent backend provides.
type Store interface {
	Executor
	AssigneeDirectory
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, q Query) ([]Record, int64, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, q Query) ([]Record, int64, error) {
	return f(ctx, q)
}

// OrderRecords sorts rows in place into the query ordering: filing date
// descending, undated records last, ID descending on ties.  Store adapters
// express the same ordering natively; this is the reference form used by
// in-memory implementations.
func OrderRecords(rows []Record) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].FilingDate, rows[j].FilingDate
		switch {
		case a == nil && b == nil:
			return rows[i].ID > rows[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return rows[i].ID > rows[j].ID
		default:
			return a.After(*b)
		}
	})
}
