package search_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turtacn/KeyIP-Explorer/internal/application/search"
	"github.com/turtacn/KeyIP-Explorer/internal/domain/patent"
)

func TestRangeFor(t *testing.T) {
	t.Parallel()

	cases := []struct {
		page int
		want patent.RowRange
	}{
		{1, patent.RowRange{From: 0, To: 9}},
		{2, patent.RowRange{From: 10, To: 19}},
		{3, patent.RowRange{From: 20, To: 29}},
		{10, patent.RowRange{From: 90, To: 99}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, search.RangeFor(tc.page), "page %d", tc.page)
	}
}

func TestPager_InitialState(t *testing.T) {
	t.Parallel()

	p := search.NewPager()
	assert.Equal(t, 1, p.Page())
	assert.Equal(t, int64(0), p.Total())
	assert.Equal(t, 1, p.TotalPages())
	assert.False(t, p.CanGoPrev())
	assert.False(t, p.CanGoNext())
}

func TestPager_TotalPages(t *testing.T) {
	t.Parallel()

	cases := []struct {
		total int64
		want  int
	}{
		{0, 1},
		{1, 1},
		{9, 1},
		{10, 1},
		{11, 2},
		{25, 3},
		{30, 3},
		{31, 4},
	}
	for _, tc := range cases {
		p := search.NewPager()
		p.Apply(1, tc.total)
		assert.Equal(t, tc.want, p.TotalPages(), "total %d", tc.total)
	}
}

func TestPager_NavigationBounds(t *testing.T) {
	t.Parallel()

	p := search.NewPager()
	p.Apply(1, 25)
	assert.False(t, p.CanGoPrev())
	assert.True(t, p.CanGoNext())

	p.Apply(2, 25)
	assert.True(t, p.CanGoPrev())
	assert.True(t, p.CanGoNext())

	p.Apply(3, 25)
	assert.True(t, p.CanGoPrev())
	assert.False(t, p.CanGoNext())
}

func TestPager_ResetReturnsToFirstPage(t *testing.T) {
	t.Parallel()

	p := search.NewPager()
	p.Apply(3, 25)
	p.Reset()

	assert.Equal(t, 1, p.Page())
	assert.Equal(t, int64(0), p.Total())
}

func TestPager_ClearTotalKeepsPage(t *testing.T) {
	t.Parallel()

	p := search.NewPager()
	p.Apply(3, 25)
	p.ClearTotal()

	assert.Equal(t, 3, p.Page())
	assert.Equal(t, int64(0), p.Total())
	assert.Equal(t, 1, p.TotalPages())
}

func TestPager_ApplyClampsInvalidValues(t *testing.T) {
	t.Parallel()

	p := search.NewPager()
	p.Apply(0, -5)

	assert.Equal(t, 1, p.Page())
	assert.Equal(t, int64(0), p.Total())
}
