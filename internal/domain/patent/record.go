// Package patent defines the patent record model for KeyIP-Explorer: the
// Record and Filter value types, the Query value derived from a Filter, and
// the narrow store contracts the rest of the platform depends on.  All rules
// that decide which rows a search or an export selects live here;
// infrastructure adapters (PostgreSQL, OpenSearch) only translate the Query
// into their native form.
package patent

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/turtacn/KeyIP-Explorer/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Record
// ─────────────────────────────────────────────────────────────────────────────

// Record is one patent row as returned by a store.  Records are immutable
// once fetched; nothing in the platform mutates them after construction.
type Record struct {
	// ID is the stable row identifier assigned by the store.
	ID string `json:"id"`

	// PatentNumber is the jurisdictional publication number
	// (e.g. "CN202310001234A").
	PatentNumber string `json:"patent_number"`

	// Title is the patent title.
	Title string `json:"title"`

	// Abstract is the patent abstract; may be empty.
	Abstract string `json:"abstract,omitempty"`

	// Assignee is the current assignee name; may be empty for records whose
	// assignment is unknown.
	Assignee string `json:"assignee,omitempty"`

	// FilingDate is the application filing date; nil when the source record
	// carries none.
	FilingDate *time.Time `json:"filing_date,omitempty"`
}

// FilingDateString renders the filing date in the platform date layout, or
// "" when the record has none.
func (r Record) FilingDateString() string {
	return common.FormatDate(r.FilingDate)
}

// ─────────────────────────────────────────────────────────────────────────────
// Filter
// ─────────────────────────────────────────────────────────────────────────────

// MinKeywordLength is the minimum trimmed keyword length, in characters,
// before the keyword contributes a search constraint.  Shorter keywords are
// ignored so that assignee-only or date-only searches remain possible.
const MinKeywordLength = 2

// Filter is the user-editable search criteria.  A Filter is mutated freely by
// input handling; search and export operate on a snapshot taken when the
// operation starts, so later edits never affect an in-flight operation.
type Filter struct {
	// Keyword is matched case-insensitively as a substring of the title,
	// abstract and assignee fields.  Ignored when its trimmed length is
	// below MinKeywordLength.
	Keyword string `json:"keyword"`

	// Assignee, when non-blank, constrains results to exactly this assignee.
	Assignee string `json:"assignee"`

	// FilingFrom, when set, keeps only records filed on or after this date.
	FilingFrom *time.Time `json:"filing_from,omitempty"`

	// FilingTo, when set, keeps only records filed on or before this date.
	FilingTo *time.Time `json:"filing_to,omitempty"`
}

// IsEmpty reports whether the filter selects nothing a search should run
// for: the trimmed keyword is below MinKeywordLength and no other criterion
// is set.  Submitting an empty filter short-circuits to an empty result
// without touching the store.
func (f Filter) IsEmpty() bool {
	if utf8.RuneCountInString(strings.TrimSpace(f.Keyword)) >= MinKeywordLength {
		return false
	}
	return strings.TrimSpace(f.Assignee) == "" && f.FilingFrom == nil && f.FilingTo == nil
}

// Clone returns a snapshot of the filter with its date pointers deep-copied,
// so an operation holding the snapshot is isolated from later edits.
func (f Filter) Clone() Filter {
	out := f
	if f.FilingFrom != nil {
		t := *f.FilingFrom
		out.FilingFrom = &t
	}
	if f.FilingTo != nil {
		t := *f.FilingTo
		out.FilingTo = &t
	}
	return out
}
