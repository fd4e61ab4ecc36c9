package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/model"
)

func event(id string, start time.Time, hours float64) model.CalendarEvent {
	start = InDisplay(start)
	return model.CalendarEvent{
		ID:            model.EventID(id),
		Title:         id,
		Start:         start,
		End:           start.Add(time.Duration(hours * float64(time.Hour))),
		DurationHours: hours,
		Category:      model.CategoryMeeting,
	}
}

func hoursContaining(buckets map[int][]model.CalendarEvent, id string) []int {
	var hours []int
	for h := 0; h < HoursPerDay; h++ {
		for _, ev := range buckets[h] {
			if ev.ID == model.EventID(id) {
				hours = append(hours, h)
			}
		}
	}
	return hours
}

func TestBucketByHourMultiHourSpan(t *testing.T) {
	day := london(2024, 3, 5, 0, 0)
	events := []model.CalendarEvent{event("workshop", london(2024, 3, 5, 9, 0), 3)}

	buckets := BucketByHour(events, day)
	assert.Equal(t, []int{9, 10, 11}, hoursContaining(buckets, "workshop"))
	assert.Empty(t, buckets[12])
	assert.Empty(t, buckets[8])
}

func TestBucketByHourFractionalDuration(t *testing.T) {
	day := london(2024, 3, 5, 0, 0)
	events := []model.CalendarEvent{event("standup", london(2024, 3, 5, 9, 0), 1.5)}

	buckets := BucketByHour(events, day)
	assert.Equal(t, []int{9, 10}, hoursContaining(buckets, "standup"))
	assert.Empty(t, buckets[11])
}

func TestBucketByHourStartHourOnly(t *testing.T) {
	// A 9:45 start still counts as hour 9; one hour of duration ends the
	// span at the 10 boundary.
	day := london(2024, 3, 5, 0, 0)
	events := []model.CalendarEvent{event("late-start", london(2024, 3, 5, 9, 45), 1)}

	buckets := BucketByHour(events, day)
	assert.Equal(t, []int{9}, hoursContaining(buckets, "late-start"))
}

func TestBucketByHourAllKeysPresent(t *testing.T) {
	buckets := BucketByHour(nil, london(2024, 3, 5, 0, 0))
	require.Len(t, buckets, HoursPerDay)
	for h := 0; h < HoursPerDay; h++ {
		v, ok := buckets[h]
		assert.True(t, ok, "hour %d", h)
		assert.NotNil(t, v)
		assert.Empty(t, v)
	}
}

func TestBucketByHourOnlyThatDay(t *testing.T) {
	day := london(2024, 3, 5, 0, 0)
	events := []model.CalendarEvent{
		event("yesterday-late", london(2024, 3, 4, 22, 0), 4),
		event("today", london(2024, 3, 5, 1, 0), 1),
		event("tomorrow", london(2024, 3, 6, 1, 0), 1),
	}

	buckets := BucketByHour(events, day)
	assert.Equal(t, []int{1}, hoursContaining(buckets, "today"))
	assert.Empty(t, hoursContaining(buckets, "yesterday-late"))
	assert.Empty(t, hoursContaining(buckets, "tomorrow"))
}

func TestBucketByHourOverlapsCoexist(t *testing.T) {
	day := london(2024, 3, 5, 0, 0)
	events := []model.CalendarEvent{
		event("a", london(2024, 3, 5, 14, 0), 2),
		event("b", london(2024, 3, 5, 15, 0), 1),
	}

	buckets := BucketByHour(events, day)
	require.Len(t, buckets[15], 2)
	assert.Equal(t, model.EventID("a"), buckets[15][0].ID)
	assert.Equal(t, model.EventID("b"), buckets[15][1].ID)
}

func TestOccupiesHour(t *testing.T) {
	ev := event("e", london(2024, 3, 5, 9, 0), 3)
	for h, want := range map[int]bool{8: false, 9: true, 10: true, 11: true, 12: false} {
		assert.Equal(t, want, OccupiesHour(ev, h), "hour %d", h)
	}
}

func TestBucketByDayKeysInDisplayZone(t *testing.T) {
	// 23:30 UTC on 10 June is 00:30 on 11 June in London.
	events := []model.CalendarEvent{
		event("midnight", time.Date(2024, 6, 10, 23, 30, 0, 0, time.UTC), 1),
		event("morning", time.Date(2024, 6, 11, 8, 0, 0, 0, time.UTC), 1),
		event("other", time.Date(2024, 6, 12, 8, 0, 0, 0, time.UTC), 1),
	}

	buckets := BucketByDay(events)
	require.Len(t, buckets, 2)
	require.Len(t, buckets["2024-06-11"], 2)
	assert.Equal(t, model.EventID("midnight"), buckets["2024-06-11"][0].ID)
	assert.Equal(t, model.EventID("morning"), buckets["2024-06-11"][1].ID)
	assert.Len(t, buckets["2024-06-12"], 1)
	assert.NotContains(t, buckets, "2024-06-10")
}

func TestBucketByDayIsIdempotent(t *testing.T) {
	events := []model.CalendarEvent{
		event("a", london(2024, 3, 5, 9, 0), 1),
		event("b", london(2024, 3, 5, 11, 0), 2),
		event("c", london(2024, 3, 7, 9, 0), 1),
	}
	snapshot := append([]model.CalendarEvent(nil), events...)

	first := BucketByDay(events)
	second := BucketByDay(events)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, events)
}

func TestHasEventsAndEventsOn(t *testing.T) {
	events := []model.CalendarEvent{event("a", london(2024, 3, 5, 9, 0), 1)}

	assert.True(t, HasEvents(events, london(2024, 3, 5, 23, 0)))
	assert.False(t, HasEvents(events, london(2024, 3, 6, 0, 0)))
	assert.Len(t, EventsOn(events, london(2024, 3, 5, 0, 0)), 1)
	assert.Empty(t, EventsOn(events, london(2024, 3, 4, 0, 0)))
}
