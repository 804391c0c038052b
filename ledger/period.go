package ledger

import "time"

// =============================================================================
// DATE RANGE - inclusive both ends, day granularity
// =============================================================================

// DateRange is an inclusive [From, To] window. All report filters and
// range queries use day granularity: a record dated anywhere on the
// boundary days is in range.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range, inclusive.
func (r DateRange) Contains(t time.Time) bool {
	day := DayOf(t)
	return !day.Before(DayOf(r.From)) && !day.After(DayOf(r.To))
}

// Valid reports whether the range is well-formed.
func (r DateRange) Valid() bool {
	return !DayOf(r.To).Before(DayOf(r.From))
}

// MonthRange returns the inclusive range covering t's calendar month.
func MonthRange(t time.Time) DateRange {
	return DateRange{From: StartOfMonth(t), To: EndOfMonth(t)}
}

// =============================================================================
// CALENDAR HELPERS
// =============================================================================

// DayOf truncates t to midnight UTC.
func DayOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func EndOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
}

// ClampDayOfMonth returns the date in t's month with the given day,
// clamped to the month's last valid day (day 31 in February posts on
// the 28th or 29th).
func ClampDayOfMonth(t time.Time, day int) time.Time {
	if day < 1 {
		day = 1
	}
	last := EndOfMonth(t).Day()
	if day > last {
		day = last
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, time.UTC)
}
