package model

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActiveAsOf(t *testing.T) {
	t.Parallel()

	start := DatePtr(1999, time.January, 1)
	end := DatePtr(2003, time.December, 31)

	tests := []struct {
		name  string
		start *time.Time
		end   *time.Time
		flag  bool
		asOf  time.Time
		want  bool
	}{
		{"inside range ignores false flag", start, end, false, Date(2001, time.June, 1), true},
		{"on start bound", start, end, false, Date(1999, time.January, 1), true},
		{"on end bound", start, end, false, Date(2003, time.December, 31), true},
		{"before start", start, end, true, Date(1998, time.December, 31), false},
		{"after end ignores true flag", start, end, true, Date(2004, time.January, 1), false},
		{"open end", start, nil, false, Date(2030, time.January, 1), true},
		{"open start", nil, end, false, Date(1900, time.January, 1), true},
		{"open start after end", nil, end, true, Date(2010, time.January, 1), false},
		{"no dates falls back to true flag", nil, nil, true, Date(2024, time.January, 1), true},
		{"no dates falls back to false flag", nil, nil, false, Date(2024, time.January, 1), false},
		{"inverted range never active", end, start, true, Date(2001, time.June, 1), false},
		{"clock time on as-of day", start, end, false, time.Date(2003, time.December, 31, 23, 59, 0, 0, time.UTC), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ActiveAsOf(tt.start, tt.end, tt.flag, tt.asOf))
		})
	}
}

func TestOverlapsPeriod(t *testing.T) {
	t.Parallel()

	start := DatePtr(2010, time.April, 1)
	end := DatePtr(2014, time.March, 31)

	assert.True(t, OverlapsPeriod(start, end, false, Date(2013, time.January, 1), DatePtr(2016, time.January, 1)))
	assert.True(t, OverlapsPeriod(start, end, false, Date(2000, time.January, 1), nil))
	assert.False(t, OverlapsPeriod(start, end, true, Date(2014, time.April, 1), nil))
	assert.False(t, OverlapsPeriod(start, end, true, Date(2000, time.January, 1), DatePtr(2010, time.March, 31)))
	assert.True(t, OverlapsPeriod(nil, nil, true, Date(2000, time.January, 1), nil))
	assert.False(t, OverlapsPeriod(nil, nil, false, Date(2000, time.January, 1), nil))
}

func TestValidatePeriod(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidatePeriod(nil, nil))
	require.NoError(t, ValidatePeriod(DatePtr(2020, time.January, 1), nil))
	require.NoError(t, ValidatePeriod(DatePtr(2020, time.January, 1), DatePtr(2020, time.January, 1)))

	err := ValidatePeriod(DatePtr(2020, time.January, 2), DatePtr(2020, time.January, 1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPeriod))
	assert.Contains(t, err.Error(), "2020-01-02")
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2001-06-01")
	require.NoError(t, err)
	assert.Equal(t, Date(2001, time.June, 1), d)

	_, err = ParseDate("2001/06/01")
	assert.Error(t, err)
}

func TestTruncateDate(t *testing.T) {
	t.Parallel()

	in := time.Date(2024, time.March, 5, 17, 45, 12, 99, time.UTC)
	assert.Equal(t, Date(2024, time.March, 5), TruncateDate(in))
}
