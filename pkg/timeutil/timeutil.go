// Package timeutil provides calendar-date utilities for Study Hub.
// Dates are stored as epoch days so that they are time-zone free; the
// conversion from wall-clock time to a date happens once, in the
// account's configured location.
// No external dependencies - uses only standard library.
package timeutil

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// FormatDate is the standard date format (YYYY-MM-DD).
const FormatDate = "2006-01-02"

// Date is a calendar date expressed as days since 1970-01-01.
type Date int32

// NewDate creates a Date from year, month and day.
func NewDate(year int, month time.Month, day int) Date {
	return DateOf(time.Date(year, month, day, 0, 0, 0, 0, time.UTC), time.UTC)
}

// DateOf returns the calendar date of t as observed in loc.
func DateOf(t time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	// Re-anchor at UTC midnight so the division below is exact.
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	return Date(midnight.Unix() / 86400)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.ParseInLocation(FormatDate, s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("timeutil: invalid date %q: %w", s, err)
	}
	return DateOf(t, time.UTC), nil
}

// MustParseDate is ParseDate that panics on error. Intended for tests and constants.
func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// EpochDay returns the underlying day count.
func (d Date) EpochDay() int32 {
	return int32(d)
}

// Time returns midnight of the date in loc.
func (d Date) Time(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	u := time.Unix(int64(d)*86400, 0).UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, loc)
}

// AddDays returns the date n days later (n may be negative).
func (d Date) AddDays(n int) Date {
	return d + Date(n)
}

// DaysUntil returns other - d in days.
func (d Date) DaysUntil(other Date) int {
	return int(other - d)
}

// Before reports whether d is strictly before other.
func (d Date) Before(other Date) bool { return d < other }

// After reports whether d is strictly after other.
func (d Date) After(other Date) bool { return d > other }

// Weekday returns the day of the week.
func (d Date) Weekday() time.Weekday {
	// 1970-01-01 was a Thursday.
	w := (int(d) + 4) % 7
	if w < 0 {
		w += 7
	}
	return time.Weekday(w)
}

// String returns the YYYY-MM-DD form.
func (d Date) String() string {
	return d.Time(time.UTC).Format(FormatDate)
}

// MarshalText implements encoding.TextMarshaler.
func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// MarshalJSON encodes the date as a JSON string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes a JSON string date.
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timeutil: date must be a string: %w", err)
	}
	return d.UnmarshalText([]byte(s))
}

// Value implements driver.Valuer so a Date can be bound to a DATE column.
func (d Date) Value() (driver.Value, error) {
	return d.Time(time.UTC), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// WEEKS
// ══════════════════════════════════════════════════════════════════════════════

// WeekStart returns the most recent Monday on or before d.
func WeekStart(d Date) Date {
	offset := int(d.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7 // Sunday
	}
	return d.AddDays(-offset)
}

// WeekEnd returns the Sunday closing the week that contains d.
func WeekEnd(d Date) Date {
	return WeekStart(d).AddDays(6)
}

// WeekWindow is a Monday..Sunday range of dates, both inclusive.
type WeekWindow struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// WeekOf returns the week that contains d.
func WeekOf(d Date) WeekWindow {
	start := WeekStart(d)
	return WeekWindow{Start: start, End: start.AddDays(6)}
}

// Next returns the following week.
func (w WeekWindow) Next() WeekWindow {
	return WeekOf(w.Start.AddDays(7))
}

// Previous returns the preceding week.
func (w WeekWindow) Previous() WeekWindow {
	return WeekOf(w.Start.AddDays(-7))
}

// Contains reports whether d falls inside the window.
func (w WeekWindow) Contains(d Date) bool {
	return d >= w.Start && d <= w.End
}

// Days returns every date of the window in order.
func (w WeekWindow) Days() []Date {
	days := make([]Date, 0, 7)
	for d := w.Start; d <= w.End; d++ {
		days = append(days, d)
	}
	return days
}

// String returns "start..end".
func (w WeekWindow) String() string {
	return w.Start.String() + ".." + w.End.String()
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock supplies the current time. Inject a FixedClock in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// FixedClock always returns the same instant until Set is called.
type FixedClock struct {
	T time.Time
}

// Now returns the fixed instant.
func (c *FixedClock) Now() time.Time { return c.T }

// Set moves the clock.
func (c *FixedClock) Set(t time.Time) { c.T = t }

// AdvanceDays moves the clock forward by n days.
func (c *FixedClock) AdvanceDays(n int) { c.T = c.T.AddDate(0, 0, n) }

// Today returns the current calendar date in loc.
func Today(c Clock, loc *time.Location) Date {
	return DateOf(c.Now(), loc)
}

// LoadLocation resolves a time zone name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
