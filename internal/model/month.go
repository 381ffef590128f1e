package model

import (
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Serialization formats for layer files.
const (
	MonthFormat    = "2006-01-02"
	RaceDateFormat = "2006-01-02 15:04:05"
)

// raceDateLayouts are the accepted race-date representations, tried in
// order. The canonical stored form comes first.
var raceDateLayouts = []string{
	RaceDateFormat,
	time.RFC3339,
	"2006-01-02T15:04:05",
	MonthFormat,
}

// ParseRaceDate parses a race-date string. Offset-bearing values keep their
// wall-clock reading: the offset is dropped, not converted, so the date as
// written decides the month.
func ParseRaceDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, eris.New("empty race date")
	}
	for _, layout := range raceDateLayouts {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		return StripOffset(t), nil
	}
	return time.Time{}, eris.Errorf("unrecognized race date %q", s)
}

// StripOffset re-reads t's wall-clock fields as a UTC instant, discarding
// whatever zone the value carried.
func StripOffset(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// TruncateToMonth returns the first day of t's month with no time
// component.
func TruncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// FirstOfMonth reports whether m is a first-of-month date with no time
// component, the invariant every month column value must satisfy.
func FirstOfMonth(m time.Time) bool {
	if m.IsZero() {
		return false
	}
	return m.Day() == 1 && m.Hour() == 0 && m.Minute() == 0 && m.Second() == 0 && m.Nanosecond() == 0
}

// ParseMonth parses a stored month value.
func ParseMonth(s string) (time.Time, error) {
	t, err := time.Parse(MonthFormat, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "parse month %q", s)
	}
	return t, nil
}

// FormatMonth renders a month value in its stored form.
func FormatMonth(m time.Time) string { return m.Format(MonthFormat) }

// FormatRaceDate renders a race date in its stored form.
func FormatRaceDate(t time.Time) string { return t.Format(RaceDateFormat) }

// FormatDecimal renders a numeric value without exponent notation or
// trailing zeros, the canonical cell form for points and totals.
func FormatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatNullableDecimal renders an optional numeric value; missing is the
// empty cell.
func FormatNullableDecimal(p *float64) string {
	if p == nil {
		return ""
	}
	return FormatDecimal(*p)
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
