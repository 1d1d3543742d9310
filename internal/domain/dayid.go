// Package domain contains the core business entities and value objects.
package domain

import (
	"sort"
	"strings"
	"time"
)

// DayIDLayout is the layout of remote day directories.
const DayIDLayout = "2006.01.02"

// DateLayout is the layout users pass dates in on the command line.
const DateLayout = "2006-01-02"

// DayID identifies a remote day directory, e.g. "2020.01.10".
// String ordering equals chronological ordering.
type DayID string

// NewDayID formats a date as a day identifier.
func NewDayID(t time.Time) DayID {
	return DayID(t.Format(DayIDLayout))
}

// ParseDayID parses a remote directory name. Names that are not days return false.
func ParseDayID(s string) (DayID, bool) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "/")
	if len(s) != len(DayIDLayout) {
		return "", false
	}
	if _, err := time.Parse(DayIDLayout, s); err != nil {
		return "", false
	}
	return DayID(s), true
}

// ParseDate parses a user supplied date in YYYY-MM-DD or YYYY.MM.DD form.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{DateLayout, DayIDLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &ValidationError{
		Field:      "date",
		Value:      s,
		Constraint: "YYYY-MM-DD",
		Message:    "date must use the YYYY-MM-DD format",
	}
}

// Time returns the calendar date of the day identifier in UTC.
func (d DayID) Time() (time.Time, error) {
	t, err := time.Parse(DayIDLayout, string(d))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// String returns the directory name.
func (d DayID) String() string {
	return string(d)
}

// Before reports whether d is strictly older than other.
func (d DayID) Before(other DayID) bool {
	return d < other
}

// SortNewestFirst sorts day identifiers in place, newest first.
func SortNewestFirst(days []DayID) {
	sort.Slice(days, func(i, j int) bool { return days[i] > days[j] })
}

// DaysBetween returns the number of whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	a = truncateDay(a)
	b = truncateDay(b)
	return int(b.Sub(a).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
