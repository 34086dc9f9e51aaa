package allocation

import (
	"fmt"
	"time"
)

// DaysIn returns the number of days in the given month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddMonthClamped moves t to the same day of the next calendar month. A day
// that does not exist there is clamped to the month's last day (Jan 31 ->
// Feb 28, or Feb 29 in leap years; Aug 31 -> Sep 30). Time of day is kept at
// second precision.
func AddMonthClamped(t time.Time) time.Time {
	year, month, day := t.Date()
	month++
	if month > time.December {
		month = time.January
		year++
	}
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), 0, t.Location())
}

// NextAllocationDate returns the allocation date following ref. If that date
// is not after now (the scheduler missed a month) it advances once more.
func NextAllocationDate(ref, now time.Time) time.Time {
	next := AddMonthClamped(ref)
	if !next.After(now) {
		next = AddMonthClamped(next)
	}
	return next
}

// PeriodKey formats the allocation period of t as "YYYY-MM".
func PeriodKey(t time.Time) string {
	return fmt.Sprintf("%04d-%02d", t.Year(), int(t.Month()))
}

// MonthStart returns midnight of the first day of t's month in UTC.
func MonthStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// SameMonth reports whether a and b fall in the same calendar month (UTC).
func SameMonth(a, b time.Time) bool {
	return PeriodKey(a.UTC()) == PeriodKey(b.UTC())
}

// TrailingPeriods lists the period keys of the n months ending with now's
// month, newest first.
func TrailingPeriods(now time.Time, n int) []string {
	out := make([]string, 0, n)
	start := MonthStart(now)
	for i := 0; i < n; i++ {
		out = append(out, PeriodKey(start.AddDate(0, -i, 0)))
	}
	return out
}
