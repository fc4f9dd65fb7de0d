// Package search implements interactive patent search: the page arithmetic,
// the stateless search service, and the stateful session that drives one
// user's browsing.  Search and export build their queries through the same
// patent.Build function, which is what keeps an export consistent with the
// search that preceded it.
package search

import "github.com/turtacn/KeyIP-Explorer/internal/domain/patent"

// PageSize is the fixed number of rows per interactive result page.
const PageSize = 10

// RangeFor returns the zero-based inclusive row window for a 1-based page
// number.
func RangeFor(page int) patent.RowRange {
	return patent.RowRange{From: (page - 1) * PageSize, To: page*PageSize - 1}
}

// PageCount returns the number of pages a result of total rows spans; an
// empty result still has one page.
func PageCount(total int64) int {
	if total <= 0 {
		return 1
	}
	return int((total + PageSize - 1) / PageSize)
}

// Pager tracks the pagination state of one search session: the current page
// and the total row count of the last successful fetch.  It is not
// concurrency-safe; the owning Session serialises access.
type Pager struct {
	page  int
	total int64
}

// NewPager returns a Pager positioned on page 1 with no rows.
func NewPager() *Pager {
	return &Pager{page: 1}
}

// Reset returns to page 1 with a zero total.
func (p *Pager) Reset() {
	p.page = 1
	p.total = 0
}

// Apply records a successful fetch of the given page with the given total.
// The page is the only place pagination state advances; failed fetches never
// call Apply.
func (p *Pager) Apply(page int, total int64) {
	if page < 1 {
		page = 1
	}
	if total < 0 {
		total = 0
	}
	p.page = page
	p.total = total
}

// ClearTotal zeroes the total while keeping the current page, matching the
// cleared result page after a failed fetch.
func (p *Pager) ClearTotal() {
	p.total = 0
}

// Page returns the current 1-based page number.
func (p *Pager) Page() int { return p.page }

// Total returns the total row count of the last successful fetch.
func (p *Pager) Total() int64 { return p.total }

// TotalPages returns the page count for the current total; an empty result
// still has one page.
func (p *Pager) TotalPages() int {
	return PageCount(p.total)
}

// CanGoPrev reports whether a previous page exists.
func (p *Pager) CanGoPrev() bool { return p.page > 1 }

// CanGoNext reports whether a next page exists.
func (p *Pager) CanGoNext() bool { return p.page < p.TotalPages() }
