package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestID_Validate_ValidUUID(t *testing.T) {
	id := ID("550e8400-e29b-41d4-a716-446655440000")
	err := id.Validate()
	assert.NoError(t, err)
}

func TestID_Validate_EmptyString(t *testing.T) {
	id := ID("")
	err := id.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be empty")
}

func TestID_Validate_InvalidFormat(t *testing.T) {
	id := ID("not-a-uuid")
	err := id.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid ID format")
}

func TestNewID_GeneratesValidUUID(t *testing.T) {
	id := NewID()
	err := id.Validate()
	assert.NoError(t, err)
}

func TestGenerateID_WithPrefix(t *testing.T) {
	id := GenerateID("export")
	assert.Contains(t, id, "export-")

	bare := GenerateID("")
	assert.NotContains(t, bare, "-export")
	assert.Len(t, bare, 36)
}

func TestParseDate_Valid(t *testing.T) {
	d, err := ParseDate("2020-01-01")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), d)
}

func TestParseDate_RejectsOtherLayouts(t *testing.T) {
	cases := []string{"2020/01/01", "01-02-2020", "2020-1-1", "2020-01-01T00:00:00Z", "yesterday"}
	for _, s := range cases {
		_, err := ParseDate(s)
		assert.Error(t, err, "input %q should not parse", s)
	}
}

func TestFormatDate(t *testing.T) {
	d := time.Date(2021, 7, 15, 13, 45, 0, 0, time.UTC)
	assert.Equal(t, "2021-07-15", FormatDate(&d))
	assert.Equal(t, "", FormatDate(nil))
}

func TestDateOf_DropsTimeOfDay(t *testing.T) {
	ts := time.Date(2022, 3, 9, 23, 59, 59, 0, time.FixedZone("CST", 8*3600))
	d := DateOf(ts)
	assert.Equal(t, Date{Year: 2022, Month: time.March, Day: 9}, d)
	assert.Equal(t, "2022-03-09", d.String())
}

func TestDate_StringPadsComponents(t *testing.T) {
	d := Date{Year: 987, Month: time.January, Day: 2}
	assert.Equal(t, "0987-01-02", d.String())
}

func TestDate_Compare(t *testing.T) {
	a := Date{Year: 2020, Month: time.May, Day: 10}
	b := Date{Year: 2020, Month: time.May, Day: 11}
	c := Date{Year: 2021, Month: time.January, Day: 1}

	assert.Equal(t, 0, a.Compare(a))
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.True(t, a.Before(c))
	assert.True(t, c.After(b))
}

func TestDate_TimeIsMidnightUTC(t *testing.T) {
	d := Date{Year: 2020, Month: time.May, Day: 10}
	assert.Equal(t, time.Date(2020, 5, 10, 0, 0, 0, 0, time.UTC), d.Time())
}
