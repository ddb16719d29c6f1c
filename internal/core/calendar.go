// Package core provides the domain model and the UTC calendar helpers used by
// the dues and bill engines.
//
// All dates are anchored at UTC midnight so that "2025-09-01" names the same
// calendar day regardless of the host timezone. Month comparisons are done on
// MonthKey strings, which order lexicographically because they are
// zero-padded ISO fragments.
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

type (
	Date struct {
		time.Time
	}

	// MonthKey is a calendar month in "YYYY-MM" form.
	MonthKey string

	// Clock supplies "today" for every status derivation.
	Clock interface {
		Today() Date
	}

	SystemClock struct{}

	FixedClock struct {
		Day Date
	}
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero (for optional dates)
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Ptr returns a pointer to a copy of d, for optional date fields.
func (d Date) Ptr() *Date {
	return &d
}

func (SystemClock) Today() Date {
	return DateOf(time.Now())
}

func (c FixedClock) Today() Date {
	return c.Day
}

// MonthKeyOf returns the "YYYY-MM" key of t in UTC.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.UTC().Format(monthLayout))
}

// ParseMonthKey validates s and returns it as a MonthKey.
func ParseMonthKey(s string) (MonthKey, error) {
	if _, err := time.Parse(monthLayout, s); err != nil {
		return "", fmt.Errorf("parse month %q: %w", s, err)
	}
	return MonthKey(s), nil
}

func (m MonthKey) Valid() bool {
	_, err := time.Parse(monthLayout, string(m))
	return err == nil
}

// Start returns the first day of the month, or the zero Date for an invalid key.
func (m MonthKey) Start() Date {
	t, err := time.Parse(monthLayout, string(m))
	if err != nil {
		return Date{}
	}
	return Date{Time: t}
}

// End returns the last day of the month.
func (m MonthKey) End() Date {
	start := m.Start()
	if start.IsZero() {
		return Date{}
	}
	return Date{Time: start.AddDate(0, 1, -1)}
}

func (m MonthKey) Next() MonthKey {
	return MonthKeyOf(AddMonthsUTC(m.Start().Time, 1))
}

// FirstOfMonthUTC returns midnight UTC of the first day of t's month.
func FirstOfMonthUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonthsUTC moves t by n calendar months, keeping the day of month and
// clamping it to the last day of the target month (Jan 31 + 1 → Feb 28/29).
func AddMonthsUTC(t time.Time, n int) time.Time {
	t = t.UTC()
	first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	day := t.Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// endOfDay is the last instant of t's UTC day.
func endOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-1), time.UTC)
}

// InInterval reports whether t lies in [start, end]. A nil end means the
// interval is still open; end covers its whole day.
func InInterval(t time.Time, start time.Time, end *time.Time) bool {
	if t.Before(DateOf(start).Time) {
		return false
	}
	if end == nil {
		return true
	}
	return !t.After(endOfDay(*end))
}

// OverlapsMonth reports whether any day of month m falls inside the interval
// [start, end] (end nil = open).
func OverlapsMonth(m MonthKey, start Date, end *Date) bool {
	monthStart, monthEnd := m.Start(), m.End()
	if monthStart.IsZero() || start.IsZero() {
		return false
	}
	if start.After(endOfDay(monthEnd.Time)) {
		return false
	}
	if end == nil {
		return true
	}
	return !endOfDay(end.Time).Before(monthStart.Time)
}

// MonthsBetween lists month keys from `from` up to and including `to`.
// It returns nil when from is after to.
func MonthsBetween(from, to MonthKey) []MonthKey {
	if !from.Valid() || !to.Valid() || from > to {
		return nil
	}
	var out []MonthKey
	for m := from; m <= to; m = m.Next() {
		out = append(out, m)
	}
	return out
}
