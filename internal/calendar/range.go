package calendar

import (
	"fmt"
	"time"

	"campuscal/internal/model"
)

const endOfDayNanos = 999_000_000

// ComputeRange returns the range a view at ref covers, evaluated on ref's
// wall clock in the display timezone. Weeks run Sunday to Saturday.
func ComputeRange(ref time.Time, g model.Granularity) (model.DateRange, error) {
	loc := DisplayLocation()
	ref = ref.In(loc)
	y, m, d := ref.Date()

	switch g {
	case model.GranularityWeek:
		sunday := d - int(ref.Weekday())
		return model.DateRange{
			Start: time.Date(y, m, sunday, 0, 0, 0, 0, loc),
			End:   time.Date(y, m, sunday+6, 23, 59, 59, endOfDayNanos, loc),
		}, nil
	case model.GranularityMonth:
		return model.DateRange{
			Start: time.Date(y, m, 1, 0, 0, 0, 0, loc),
			// Day 0 of the next month is the last day of this one.
			End: time.Date(y, m+1, 0, 23, 59, 59, endOfDayNanos, loc),
		}, nil
	case model.GranularityYear:
		return model.DateRange{
			Start: time.Date(y, time.January, 1, 0, 0, 0, 0, loc),
			End:   time.Date(y, time.December, 31, 23, 59, 59, endOfDayNanos, loc),
		}, nil
	default:
		return model.DateRange{}, fmt.Errorf("%w: %q", model.ErrUnknownGranularity, g)
	}
}

// WeekDays returns midnight of each day Sunday..Saturday of ref's week.
func WeekDays(ref time.Time) []time.Time {
	loc := DisplayLocation()
	ref = ref.In(loc)
	y, m, d := ref.Date()
	sunday := d - int(ref.Weekday())

	days := make([]time.Time, 7)
	for i := range days {
		days[i] = time.Date(y, m, sunday+i, 0, 0, 0, 0, loc)
	}
	return days
}

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthGrid lays out ref's month for a Sunday-first grid: nil cells pad up
// to the weekday of the 1st, followed by every day of the month.
func MonthGrid(ref time.Time) []*time.Time {
	loc := DisplayLocation()
	ref = ref.In(loc)
	y, m, _ := ref.Date()

	first := time.Date(y, m, 1, 0, 0, 0, 0, loc)
	n := DaysInMonth(y, m)
	pad := int(first.Weekday())

	cells := make([]*time.Time, pad, pad+n)
	for i := 1; i <= n; i++ {
		day := time.Date(y, m, i, 0, 0, 0, 0, loc)
		cells = append(cells, &day)
	}
	return cells
}

// Shift moves ref by n views of granularity g (negative n moves back).
// Month and year shifts clamp the day so Jan 31 + 1 month is Feb 28/29.
func Shift(ref time.Time, g model.Granularity, n int) (time.Time, error) {
	loc := DisplayLocation()
	ref = ref.In(loc)
	y, m, d := ref.Date()

	switch g {
	case model.GranularityWeek:
		return time.Date(y, m, d+7*n, 0, 0, 0, 0, loc), nil
	case model.GranularityMonth:
		tm := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, loc)
		return clampDay(tm, d), nil
	case model.GranularityYear:
		tm := time.Date(y+n, m, 1, 0, 0, 0, 0, loc)
		return clampDay(tm, d), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrUnknownGranularity, g)
	}
}

func clampDay(firstOfMonth time.Time, day int) time.Time {
	y, m, _ := firstOfMonth.Date()
	if last := DaysInMonth(y, m); day > last {
		day = last
	}
	return time.Date(y, m, day, 0, 0, 0, 0, firstOfMonth.Location())
}
