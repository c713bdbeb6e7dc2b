package timeutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDate_EpochAndString(t *testing.T) {
	assert.Equal(t, int32(0), NewDate(1970, time.January, 1).EpochDay())
	assert.Equal(t, "1970-01-01", Date(0).String())

	d := MustParseDate("2025-10-16")
	assert.Equal(t, "2025-10-16", d.String())
	assert.Equal(t, time.Thursday, d.Weekday())
	assert.Equal(t, d, NewDate(2025, time.October, 16))
}

func TestDate_BeforeEpochWeekday(t *testing.T) {
	// 1969-12-31 was a Wednesday.
	d := MustParseDate("1969-12-31")
	assert.Equal(t, Date(-1), d)
	assert.Equal(t, time.Wednesday, d.Weekday())
}

func TestDateOf_UsesLocation(t *testing.T) {
	instant := time.Date(2025, 10, 16, 22, 30, 0, 0, time.UTC)
	almaty := time.FixedZone("UTC+5", 5*60*60)

	assert.Equal(t, "2025-10-16", DateOf(instant, time.UTC).String())
	assert.Equal(t, "2025-10-17", DateOf(instant, almaty).String())
	assert.Equal(t, "2025-10-16", DateOf(instant, nil).String())
}

func TestParseDate_Invalid(t *testing.T) {
	_, err := ParseDate("16.10.2025")
	assert.Error(t, err)
}

func TestDate_JSON(t *testing.T) {
	d := MustParseDate("2025-10-13")

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"2025-10-13"`, string(data))

	var back Date
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, d, back)

	assert.Error(t, json.Unmarshal([]byte(`20251013`), &back))
}

func TestWeekStartEnd(t *testing.T) {
	tests := []struct {
		day   string
		start string
		end   string
	}{
		{"2025-10-13", "2025-10-13", "2025-10-19"}, // Monday maps to itself
		{"2025-10-16", "2025-10-13", "2025-10-19"},
		{"2025-10-19", "2025-10-13", "2025-10-19"}, // Sunday closes its own week
		{"2025-10-20", "2025-10-20", "2025-10-26"},
		{"2025-01-01", "2024-12-30", "2025-01-05"},
	}

	for _, tt := range tests {
		t.Run(tt.day, func(t *testing.T) {
			d := MustParseDate(tt.day)
			assert.Equal(t, tt.start, WeekStart(d).String())
			assert.Equal(t, tt.end, WeekEnd(d).String())
			assert.Equal(t, time.Monday, WeekStart(d).Weekday())
			assert.Equal(t, 6, WeekStart(d).DaysUntil(WeekEnd(d)))
		})
	}
}

func TestWeekWindow(t *testing.T) {
	w := WeekOf(MustParseDate("2025-10-16"))
	assert.Equal(t, "2025-10-13..2025-10-19", w.String())
	assert.True(t, w.Contains(MustParseDate("2025-10-19")))
	assert.False(t, w.Contains(MustParseDate("2025-10-20")))
	assert.Len(t, w.Days(), 7)

	next := w.Next()
	assert.Equal(t, "2025-10-20", next.Start.String())
	assert.Equal(t, "2025-10-26", next.End.String())
	assert.Equal(t, w, next.Previous())
}

func TestFixedClock(t *testing.T) {
	clock := &FixedClock{T: time.Date(2025, 10, 16, 9, 0, 0, 0, time.UTC)}
	assert.Equal(t, "2025-10-16", Today(clock, time.UTC).String())

	clock.AdvanceDays(1)
	assert.Equal(t, "2025-10-17", Today(clock, time.UTC).String())
}

func TestLoadLocation_Fallback(t *testing.T) {
	assert.Equal(t, time.UTC, LoadLocation(""))
	assert.Equal(t, time.UTC, LoadLocation("Not/AZone"))
}
