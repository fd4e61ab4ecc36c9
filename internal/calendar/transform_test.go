package calendar

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/model"
)

func TestTransformRoundsDurationUp(t *testing.T) {
	ev, err := Transform(model.RawEvent{
		ID:       "1",
		Title:    "Stand-up",
		Start:    "2024-01-10T09:00:00Z",
		End:      "2024-01-10T09:01:00Z",
		Category: "meeting",
	})
	require.NoError(t, err)

	assert.Equal(t, 1.0, ev.DurationHours)
	assert.Equal(t, "9:00 AM", ev.StartDisplay)
	assert.Equal(t, "10:00 AM", ev.EndDisplay)
	assert.Equal(t, DisplayTimeZone, ev.Start.Location().String())
}

func TestTransformDurations(t *testing.T) {
	cases := []struct {
		name       string
		start, end string
		want       float64
	}{
		{"exact hour", "2024-01-10T09:00:00Z", "2024-01-10T10:00:00Z", 1},
		{"just over two hours", "2024-01-10T09:00:00Z", "2024-01-10T11:00:01Z", 3},
		{"ninety minutes", "2024-01-10T09:00:00Z", "2024-01-10T10:30:00Z", 2},
		{"zero length", "2024-01-10T09:00:00Z", "2024-01-10T09:00:00Z", 1},
		{"end before start", "2024-01-10T09:00:00Z", "2024-01-10T08:00:00Z", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := Transform(model.RawEvent{ID: "x", Start: tc.start, End: tc.end})
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev.DurationHours)
		})
	}
}

func TestTransformDirectDuration(t *testing.T) {
	half := 1.5
	ev, err := Transform(model.RawEvent{ID: "s", Start: "2024-01-10T10:00:00Z", DurationHours: &half})
	require.NoError(t, err)
	assert.Equal(t, 1.5, ev.DurationHours)
	assert.Equal(t, "11:30 AM", ev.EndDisplay)

	tiny := 0.25
	ev, err = Transform(model.RawEvent{ID: "s", Start: "2024-01-10T10:00:00Z", DurationHours: &tiny})
	require.NoError(t, err)
	assert.Equal(t, 1.0, ev.DurationHours)
}

func TestTransformNormalizesToLondon(t *testing.T) {
	// 14:00 in New York (EDT) is 19:00 in London (BST).
	ev, err := Transform(model.RawEvent{ID: "ny", Start: "2024-06-03T14:00:00-04:00", End: "2024-06-03T15:00:00-04:00"})
	require.NoError(t, err)
	assert.Equal(t, 19, ev.Wall().Hour)
	assert.Equal(t, "7:00 PM", ev.StartDisplay)
	assert.Equal(t, "8:00 PM", ev.EndDisplay)
}

func TestTransformCategory(t *testing.T) {
	cases := []struct {
		raw  model.RawEvent
		want model.Category
	}{
		{model.RawEvent{Category: "EXAM"}, model.CategoryExam},
		{model.RawEvent{Category: "unknown", Title: "Lunch with Alex"}, model.CategorySocial},
		{model.RawEvent{Title: "Submit deadline"}, model.CategoryTask},
		{model.RawEvent{Title: "Networks", Description: "weekly lecture"}, model.CategoryLecture},
		{model.RawEvent{Title: "Remember to call"}, model.CategoryReminder},
		{model.RawEvent{Title: "Midterm"}, model.CategoryExam},
		{model.RawEvent{Title: "Sync"}, model.CategoryMeeting},
	}
	for _, tc := range cases {
		tc.raw.ID = "c"
		tc.raw.Start = "2024-01-10T09:00:00Z"
		tc.raw.End = "2024-01-10T10:00:00Z"
		ev, err := Transform(tc.raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, ev.Category, "%+v", tc.raw)
	}
}

func TestTransformMalformed(t *testing.T) {
	cases := map[string]model.RawEvent{
		"missing id":    {Start: "2024-01-10T09:00:00Z", End: "2024-01-10T10:00:00Z"},
		"missing start": {ID: "1", End: "2024-01-10T10:00:00Z"},
		"bad start":     {ID: "1", Start: "soon", End: "2024-01-10T10:00:00Z"},
		"bad end":       {ID: "1", Start: "2024-01-10T09:00:00Z", End: "later"},
		"undecodable":   {ID: "1", Start: "2024-01-10T09:00:00Z", End: "2024-01-10T10:00:00Z", DecodeError: "start: cannot unmarshal number"},
		"huge duration": {ID: "1", Start: "2024-01-10T09:00:00Z", DurationHours: hoursOf(1e12)},
		"nan duration":  {ID: "1", Start: "2024-01-10T09:00:00Z", DurationHours: hoursOf(math.NaN())},
		"inf duration":  {ID: "1", Start: "2024-01-10T09:00:00Z", DurationHours: hoursOf(math.Inf(1))},
		"end far out":   {ID: "1", Start: "2024-01-10T09:00:00Z", End: "2226-01-10T09:00:00Z"},
	}
	for name, raw := range cases {
		_, err := Transform(raw)
		assert.True(t, errors.Is(err, ErrMalformedRecord), name)
	}
}

func hoursOf(h float64) *float64 { return &h }

func TestTransformDurationBound(t *testing.T) {
	ev, err := Transform(model.RawEvent{ID: "y", Start: "2024-01-10T09:00:00Z", DurationHours: hoursOf(MaxDurationHours)})
	require.NoError(t, err)
	assert.Equal(t, float64(MaxDurationHours), ev.DurationHours)

	ev, err = Transform(model.RawEvent{ID: "y", Start: "2024-01-10T09:00:00Z", End: "2025-01-10T09:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, 366.0*24, ev.DurationHours)

	_, err = Transform(model.RawEvent{ID: "y", Start: "2024-01-10T09:00:00Z", DurationHours: hoursOf(MaxDurationHours + 1)})
	assert.True(t, errors.Is(err, ErrMalformedRecord))
}

func TestTransformEmptyTitle(t *testing.T) {
	ev, err := Transform(model.RawEvent{ID: "1", Title: "  ", Start: "2024-01-10T09:00:00Z", End: "2024-01-10T10:00:00Z"})
	require.NoError(t, err)
	assert.Equal(t, "(No title)", ev.Title)
}

func TestTransformBatchPreservesOrderAndSkips(t *testing.T) {
	raws := []model.RawEvent{
		{ID: "late", Start: "2024-01-10T15:00:00Z", End: "2024-01-10T16:00:00Z"},
		{ID: "", Start: "2024-01-10T11:00:00Z", End: "2024-01-10T12:00:00Z"},
		{ID: "early", Start: "2024-01-10T08:00:00Z", End: "2024-01-10T09:00:00Z"},
	}
	events, skipped := TransformBatch(raws)
	assert.Equal(t, 1, skipped)
	require.Len(t, events, 2)
	assert.Equal(t, model.EventID("late"), events[0].ID)
	assert.Equal(t, model.EventID("early"), events[1].ID)

	SortByStart(events)
	assert.Equal(t, model.EventID("early"), events[0].ID)
	assert.Equal(t, model.EventID("late"), events[1].ID)
}

func TestDurationHours(t *testing.T) {
	s := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 1.0, DurationHours(s, s.Add(time.Minute)))
	assert.Equal(t, 2.0, DurationHours(s, s.Add(61*time.Minute)))
	assert.Equal(t, 1.0, DurationHours(s, s.Add(-time.Hour)))
}
