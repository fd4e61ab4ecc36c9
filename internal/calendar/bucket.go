package calendar

import (
	"time"

	"campuscal/internal/model"
)

// HoursPerDay is the number of hour rows in a day grid.
const HoursPerDay = 24

// DateKey formats t's display-zone date as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return ToDisplayTime(t).DateKey()
}

// BucketByDay groups events by the display-zone date of their start.
// Within a key, events keep their input order.
func BucketByDay(events []model.CalendarEvent) map[string][]model.CalendarEvent {
	buckets := make(map[string][]model.CalendarEvent)
	for _, ev := range events {
		key := DateKey(ev.Start)
		buckets[key] = append(buckets[key], ev)
	}
	return buckets
}

// EventsOn returns the events starting on day's display-zone date.
func EventsOn(events []model.CalendarEvent, day time.Time) []model.CalendarEvent {
	want := ToDisplayTime(day)
	var out []model.CalendarEvent
	for _, ev := range events {
		if ToDisplayTime(ev.Start).SameDay(want) {
			out = append(out, ev)
		}
	}
	return out
}

// HasEvents reports whether any event starts on day.
func HasEvents(events []model.CalendarEvent, day time.Time) bool {
	want := ToDisplayTime(day)
	for _, ev := range events {
		if ToDisplayTime(ev.Start).SameDay(want) {
			return true
		}
	}
	return false
}

// OccupiesHour reports whether ev's span covers hour row `hour`. An event
// covers its start hour and every later hour strictly before its end, so an
// event ending exactly on an hour boundary does not occupy that hour.
func OccupiesHour(ev model.CalendarEvent, hour int) bool {
	start := ToDisplayTime(ev.Start).Hour
	if start == hour {
		return true
	}
	return start < hour && float64(start)+ev.DurationHours > float64(hour)
}

// BucketByHour returns, for each hour 0..23 of day, the events starting on
// that day whose span covers the hour. Every hour key is present.
func BucketByHour(events []model.CalendarEvent, day time.Time) map[int][]model.CalendarEvent {
	buckets := make(map[int][]model.CalendarEvent, HoursPerDay)
	for h := 0; h < HoursPerDay; h++ {
		buckets[h] = []model.CalendarEvent{}
	}

	for _, ev := range EventsOn(events, day) {
		for h := 0; h < HoursPerDay; h++ {
			if OccupiesHour(ev, h) {
				buckets[h] = append(buckets[h], ev)
			}
		}
	}
	return buckets
}
