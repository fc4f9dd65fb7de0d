package patent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// RowRange
// ─────────────────────────────────────────────────────────────────────────────

// RowRange is a zero-based inclusive row window into an ordered result set.
type RowRange struct {
	From int
	To   int
}

// Size returns the number of rows the range spans.
func (r RowRange) Size() int { return r.To - r.From + 1 }

func (r RowRange) String() string { return fmt.Sprintf("[%d,%d]", r.From, r.To) }

// ─────────────────────────────────────────────────────────────────────────────
// Query
// ─────────────────────────────────────────────────────────────────────────────

// Query is the store-agnostic description of one fetch: the constraints
// derived from a Filter snapshot, the fixed ordering, and the execution
// options (count request, row window).  A Query is a value; WithCount and
// WithRange return modified copies and never touch the receiver, so the same
// built Query can safely parameterise both a counted page fetch and a series
// of export chunks.
//
// Ordering is always by filing date descending, records without a filing
// date last, ties broken by ID descending so that pagination windows never
// overlap between requests.
type Query struct {
	// Keyword is the trimmed substring pattern, or "" when the filter's
	// keyword was below MinKeywordLength.  Matched case-insensitively
	// against title, abstract and assignee, OR-combined.
	Keyword string

	// Assignee, when non-empty, is an exact assignee constraint.
	Assignee string

	// FilingFrom and FilingTo bound the filing date inclusively.  They are
	// calendar dates; stores compare them in the common.DateLayout form
	// without timezone conversion.
	FilingFrom *common.Date
	FilingTo   *common.Date

	// Counted requests the exact total matching-row count.  A counted Query
	// with a nil Range is a count-only probe: the store returns the total
	// and no rows.
	Counted bool

	// Range, when set, restricts the fetch to that row window of the
	// ordered result set.
	Range *RowRange
}

// Build derives a Query from a Filter snapshot.  It is a pure function:
// identical Filter values always produce identical Queries, which is what
// guarantees search and export select the same rows in the same order.
func Build(f Filter) Query {
	q := Query{Assignee: strings.TrimSpace(f.Assignee)}
	if kw := strings.TrimSpace(f.Keyword); utf8.RuneCountInString(kw) >= MinKeywordLength {
		q.Keyword = kw
	}
	if f.FilingFrom != nil {
		d := common.DateOf(*f.FilingFrom)
		q.FilingFrom = &d
	}
	if f.FilingTo != nil {
		d := common.DateOf(*f.FilingTo)
		q.FilingTo = &d
	}
	return q
}

// WithCount returns a copy of q that requests the exact total count.
func (q Query) WithCount() Query {
	q.Counted = true
	return q
}

// WithRange returns a copy of q restricted to the given row window.
func (q Query) WithRange(r RowRange) Query {
	rr := r
	q.Range = &rr
	return q
}

// IsConstrained reports whether the query carries at least one constraint.
func (q Query) IsConstrained() bool {
	return q.Keyword != "" || q.Assignee != "" || q.FilingFrom != nil || q.FilingTo != nil
}

// String renders the query for logs.  The form is deterministic for
// identical queries.
func (q Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "keyword=%q assignee=%q", q.Keyword, q.Assignee)
	if q.FilingFrom != nil {
		fmt.Fprintf(&b, " from=%s", q.FilingFrom)
	}
	if q.FilingTo != nil {
		fmt.Fprintf(&b, " to=%s", q.FilingTo)
	}
	if q.Counted {
		b.WriteString(" counted")
	}
	if q.Range != nil {
		fmt.Fprintf(&b, " range=%s", q.Range)
	}
	return b.String()
}
