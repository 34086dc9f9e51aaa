package allocation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 15, 0, time.UTC)
}

func TestAddMonthClamped(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"jan 31 non-leap", date(2025, time.January, 31), date(2025, time.February, 28)},
		{"jan 31 leap", date(2024, time.January, 31), date(2024, time.February, 29)},
		{"jan 30 leap", date(2024, time.January, 30), date(2024, time.February, 29)},
		{"century non-leap", date(2100, time.January, 29), date(2100, time.February, 28)},
		{"400 leap", date(2000, time.January, 31), date(2000, time.February, 29)},
		{"aug 31", date(2025, time.August, 31), date(2025, time.September, 30)},
		{"mar 31", date(2025, time.March, 31), date(2025, time.April, 30)},
		{"oct 31 to nov", date(2025, time.October, 31), date(2025, time.November, 30)},
		{"dec rolls year", date(2025, time.December, 15), date(2026, time.January, 15)},
		{"plain day", date(2025, time.June, 10), date(2025, time.July, 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddMonthClamped(tt.in))
		})
	}
}

func TestAddMonthClampedKeepsTimeOfDay(t *testing.T) {
	in := time.Date(2025, time.May, 3, 23, 59, 58, 123456789, time.UTC)
	assert.Equal(t, time.Date(2025, time.June, 3, 23, 59, 58, 0, time.UTC), AddMonthClamped(in))
}

func TestNextAllocationDate(t *testing.T) {
	ref := date(2025, time.January, 31)

	// Scheduler on time: one month ahead.
	assert.Equal(t, date(2025, time.February, 28), NextAllocationDate(ref, date(2025, time.February, 1)))

	// Scheduler late: the first candidate is in the past, so advance again
	// from the clamped date.
	assert.Equal(t, date(2025, time.March, 28), NextAllocationDate(ref, date(2025, time.March, 1)))
}

func TestPeriodHelpers(t *testing.T) {
	now := date(2025, time.February, 14)
	assert.Equal(t, "2025-02", PeriodKey(now))
	assert.Equal(t, time.Date(2025, time.February, 1, 0, 0, 0, 0, time.UTC), MonthStart(now))
	assert.Equal(t, []string{"2025-02", "2025-01", "2024-12"}, TrailingPeriods(now, 3))
	assert.True(t, SameMonth(date(2025, time.February, 1), date(2025, time.February, 28)))
	assert.False(t, SameMonth(date(2025, time.February, 1), date(2024, time.February, 1)))
	assert.Equal(t, 29, DaysIn(2024, time.February))
}
