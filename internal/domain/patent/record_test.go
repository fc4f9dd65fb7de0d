package patent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestFilter_IsEmpty(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"zero filter", Filter{}, true},
		{"blank keyword", Filter{Keyword: "   "}, true},
		{"one-character keyword", Filter{Keyword: "a"}, true},
		{"one character padded", Filter{Keyword: "  a  "}, true},
		{"two-character keyword", Filter{Keyword: "ab"}, false},
		{"two characters padded", Filter{Keyword: "  ab  "}, false},
		{"two cjk characters", Filter{Keyword: "电池"}, false},
		{"one cjk character", Filter{Keyword: "电"}, true},
		{"assignee only", Filter{Assignee: "Acme Corp"}, false},
		{"blank assignee only", Filter{Assignee: "   "}, true},
		{"from date only", Filter{FilingFrom: datePtr(2020, 1, 1)}, false},
		{"to date only", Filter{FilingTo: datePtr(2024, 12, 31)}, false},
		{"short keyword with assignee", Filter{Keyword: "a", Assignee: "Acme Corp"}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.filter.IsEmpty())
		})
	}
}

func TestRecord_FilingDateString(t *testing.T) {
	t.Parallel()

	dated := Record{ID: "1", FilingDate: datePtr(2021, 7, 15)}
	assert.Equal(t, "2021-07-15", dated.FilingDateString())

	undated := Record{ID: "2"}
	assert.Equal(t, "", undated.FilingDateString())
}

func TestFilter_CloneIsolatesDates(t *testing.T) {
	t.Parallel()

	orig := Filter{Keyword: "battery", FilingFrom: datePtr(2020, 1, 1)}
	snap := orig.Clone()

	*orig.FilingFrom = time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 2020, snap.FilingFrom.Year())
	assert.Equal(t, "battery", snap.Keyword)
}
