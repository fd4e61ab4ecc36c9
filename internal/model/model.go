package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is the closed set of event kinds shared by every calendar view.
type Category string

const (
	CategoryMeeting  Category = "meeting"
	CategoryReminder Category = "reminder"
	CategoryTask     Category = "task"
	CategorySocial   Category = "social"
	CategoryLecture  Category = "lecture"
	CategoryExam     Category = "exam"
)

// Categories lists every Category in display order.
var Categories = []Category{
	CategoryMeeting,
	CategoryReminder,
	CategoryTask,
	CategorySocial,
	CategoryLecture,
	CategoryExam,
}

// ParseCategory matches s case-insensitively against the known categories.
func ParseCategory(s string) (Category, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// Granularity is the calendar view mode.
type Granularity string

const (
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
	GranularityYear  Granularity = "year"
)

var ErrUnknownGranularity = errors.New("unknown granularity")

func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.ToLower(strings.TrimSpace(s))); g {
	case GranularityWeek, GranularityMonth, GranularityYear:
		return g, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownGranularity, s)
	}
}

// EventID is an opaque identifier, unique within one loaded result set.
// On the wire it may be a JSON string or a JSON number.
type EventID string

func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	*id = EventID(n.String())
	return nil
}

// RawEvent is a record as delivered by the calendar service.
type RawEvent struct {
	ID          EventID `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Start       string  `json:"start"`
	End         string  `json:"end"`
	Category    string  `json:"category"`
	Location    string  `json:"location,omitempty"`

	// DurationHours, when set, is used instead of deriving the duration
	// from End - Start.
	DurationHours *float64 `json:"duration_hours,omitempty"`

	// DecodeError is set by a source that could not decode the record.
	// Such records are skipped rather than failing the whole batch.
	DecodeError string `json:"-"`
}

// CalendarEvent is the canonical event representation. Start is always in
// the display timezone and DurationHours is at least 1.
type CalendarEvent struct {
	ID          EventID `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`

	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	DurationHours float64   `json:"duration_hours"`

	StartDisplay string `json:"time"`
	EndDisplay   string `json:"end_time"`

	Category Category `json:"category"`
	Location string   `json:"location,omitempty"`
}

// Wall returns the wall-clock fields of the event start.
func (e CalendarEvent) Wall() WallClock {
	return WallClockOf(e.Start)
}

// WallClock is a wall-clock reading in a particular zone.
type WallClock struct {
	Year   int
	Month  time.Month
	Day    int
	Hour   int
	Minute int
}

// WallClockOf reads t's wall clock in t's own location.
func WallClockOf(t time.Time) WallClock {
	y, m, d := t.Date()
	return WallClock{Year: y, Month: m, Day: d, Hour: t.Hour(), Minute: t.Minute()}
}

// DateKey formats the date part as YYYY-MM-DD.
func (w WallClock) DateKey() string {
	return fmt.Sprintf("%04d-%02d-%02d", w.Year, int(w.Month), w.Day)
}

// SameDay reports whether w and o fall on the same calendar date.
func (w WallClock) SameDay(o WallClock) bool {
	return w.Year == o.Year && w.Month == o.Month && w.Day == o.Day
}

// DateRange is an inclusive range whose End is 23:59:59.999 of the last
// included day.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies within [Start, End].
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// Days counts the calendar days covered by the range.
func (r DateRange) Days() int {
	if r.End.Before(r.Start) {
		return 0
	}
	loc := r.Start.Location()
	sy, sm, sd := r.Start.Date()
	ey, em, ed := r.End.In(loc).Date()
	// Noon avoids DST-length days skewing the division.
	first := time.Date(sy, sm, sd, 12, 0, 0, 0, time.UTC)
	last := time.Date(ey, em, ed, 12, 0, 0, 0, time.UTC)
	return int(last.Sub(first)/(24*time.Hour)) + 1
}
