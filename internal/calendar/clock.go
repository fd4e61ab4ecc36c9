// Package calendar holds the calendar event engine: display-time
// normalization, raw record transformation, view range selection, day/hour
// bucketing and the sample set used when the live source is unavailable.
package calendar

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"campuscal/internal/model"
)

// DisplayTimeZone is the single zone every event is rendered in.
const DisplayTimeZone = "Europe/London"

var (
	displayLoc     *time.Location
	displayLocOnce sync.Once
)

// DisplayLocation returns the Europe/London location. The embedded tzdata
// makes this independent of the host's zoneinfo.
func DisplayLocation() *time.Location {
	displayLocOnce.Do(func() {
		loc, err := time.LoadLocation(DisplayTimeZone)
		if err != nil {
			// Unreachable with time/tzdata linked in.
			panic(fmt.Sprintf("calendar: load %s: %v", DisplayTimeZone, err))
		}
		displayLoc = loc
	})
	return displayLoc
}

// InDisplay converts t into the display timezone.
func InDisplay(t time.Time) time.Time {
	return t.In(DisplayLocation())
}

// ToDisplayTime returns t's wall clock in the display timezone, whatever
// offset t carries.
func ToDisplayTime(t time.Time) model.WallClock {
	return model.WallClockOf(InDisplay(t))
}

// FormatClock renders a 12-hour clock with AM/PM, e.g. "9:05 AM".
func FormatClock(w model.WallClock) string {
	return fmt.Sprintf("%d:%02d %s", hour12(w.Hour), w.Minute, meridiem(w.Hour))
}

// FormatHour renders an hour-row label, e.g. "12 AM", "1 PM".
func FormatHour(h int) string {
	return fmt.Sprintf("%d %s", hour12(h), meridiem(h))
}

func hour12(h int) int {
	if h%12 == 0 {
		return 12
	}
	return h % 12
}

func meridiem(h int) string {
	if h >= 12 {
		return "PM"
	}
	return "AM"
}

var errEmptyInstant = errors.New("empty instant")

// instantLayouts are tried in order. Offset-less forms are read as UTC,
// which is how the calendar service relays Graph dateTime values.
var instantLayouts = []struct {
	layout string
	zoned  bool
}{
	{time.RFC3339Nano, true},
	{"2006-01-02T15:04:05.9999999", false},
	{"2006-01-02T15:04", false},
	{"2006-01-02", false},
}

// ParseInstant parses an ISO-8601 instant.
func ParseInstant(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errEmptyInstant
	}
	var firstErr error
	for _, l := range instantLayouts {
		var (
			t   time.Time
			err error
		)
		if l.zoned {
			t, err = time.Parse(l.layout, s)
		} else {
			t, err = time.ParseInLocation(l.layout, s, time.UTC)
		}
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}
