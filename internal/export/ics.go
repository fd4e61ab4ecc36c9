// Package export serializes loaded events for other calendar clients.
package export

import (
	"fmt"
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"campuscal/internal/model"
)

// ProductID identifies campuscal in exported calendars.
const ProductID = "-//campuscal//calendar export//EN"

var now = time.Now

// WriteICS writes events as a VCALENDAR with one VEVENT each. Times are
// emitted in UTC.
func WriteICS(w io.Writer, name string, events []model.CalendarEvent) error {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(ProductID)
	if name != "" {
		cal.SetName(name)
		cal.SetXWRCalName(name)
	}

	stamp := now().UTC()
	for _, ev := range events {
		ve := cal.AddEvent(uid(ev.ID))
		ve.SetDtStampTime(stamp)
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(ev.Title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
		if ev.Location != "" {
			ve.SetLocation(ev.Location)
		}
		ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Category))
	}

	if err := cal.SerializeTo(w); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	return nil
}

func uid(id model.EventID) string {
	return string(id) + "@campuscal"
}
