package moodlog

import (
	"fmt"
	"time"
)

// dateKeyLayout is the canonical document-key form of a calendar day.
// Lexicographic order on keys matches chronological order on days.
const dateKeyLayout = "2006-01-02"

// DateKey identifies one calendar day as a YYYY-MM-DD string. Keys are
// assigned in the owner's time zone at entry creation and never change.
type DateKey string

// DateKeyOf returns the key for t's calendar date in the given location.
func DateKeyOf(t time.Time, loc *time.Location) DateKey {
	return DateKey(t.In(loc).Format(dateKeyLayout))
}

// ParseDateKey validates s and returns it as a DateKey.
func ParseDateKey(s string) (DateKey, error) {
	if _, err := time.Parse(dateKeyLayout, s); err != nil {
		return "", fmt.Errorf("invalid date key %q: %w", s, err)
	}
	return DateKey(s), nil
}

func (k DateKey) String() string { return string(k) }

// Valid reports whether k is a well-formed YYYY-MM-DD key.
func (k DateKey) Valid() bool {
	_, err := time.Parse(dateKeyLayout, string(k))
	return err == nil
}

// midnight returns 00:00 of k's day in loc. Invalid keys map to the zero time.
func (k DateKey) midnight(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(dateKeyLayout, string(k), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// AddDays returns the key n calendar days after k (n may be negative).
func (k DateKey) AddDays(n int) DateKey {
	return DateKey(k.midnight(time.UTC).AddDate(0, 0, n).Format(dateKeyLayout))
}

// Before reports whether k's day precedes other's. String comparison is
// date-order-safe for well-formed keys.
func (k DateKey) Before(other DateKey) bool { return string(k) < string(other) }

// DayRangeUTC returns the UTC instants spanning k's day as observed in loc:
// [start, end). This is the lookup criterion for cross-user matching, where
// the other user's document keys were assigned in their own time zone.
func (k DateKey) DayRangeUTC(loc *time.Location) (start, end time.Time) {
	s := k.midnight(loc)
	return s.UTC(), s.AddDate(0, 0, 1).UTC()
}
