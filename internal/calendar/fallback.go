package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// FallbackNotice is shown whenever the sample set replaces live data.
const FallbackNotice = "Showing sample events as fallback."

type sampleTemplate struct {
	title       string
	description string
	location    string
	category    model.Category
	rule        string
	hour        int
	minute      int
	hours       float64
}

// sampleTemplates is the fixed sample set. Every rule fires at least once
// in any Sunday..Saturday week, so each view has something to draw.
var sampleTemplates = []sampleTemplate{
	{"Team Meeting", "Discuss project progress", "Room 2.14", model.CategoryMeeting, "FREQ=WEEKLY;BYDAY=MO", 10, 0, 1.5},
	{"Lunch with Alex", "At Coastal Café", "Coastal Café", model.CategorySocial, "FREQ=WEEKLY;BYDAY=TU", 12, 30, 1},
	{"Project Workshop", "Planning and brainstorming session", "Innovation Lab", model.CategoryMeeting, "FREQ=WEEKLY;BYDAY=WE", 13, 0, 3},
	{"Distributed Systems Lecture", "Weekly lecture", "Lecture Theatre A", model.CategoryLecture, "FREQ=WEEKLY;BYDAY=MO,TH", 9, 0, 2},
	{"Submit timesheet", "Hours for the week", "", model.CategoryReminder, "FREQ=WEEKLY;BYDAY=FR", 17, 0, 1},
	{"Algorithms Exam", "Closed book", "Exam Hall", model.CategoryExam, "FREQ=MONTHLY;BYMONTHDAY=15", 14, 0, 2},
	{"Coursework deadline", "Upload the report", "", model.CategoryTask, "FREQ=MONTHLY;BYMONTHDAY=-1", 16, 0, 1},
}

// SampleEvents expands the sample templates over r. The result depends only
// on r, so repeated calls return identical records ordered by start.
func SampleEvents(r model.DateRange) []model.RawEvent {
	loc := DisplayLocation()
	rs := r.Start.In(loc)
	re := r.End.In(loc)

	type occurrence struct {
		at  time.Time
		idx int
	}
	var occs []occurrence

	for i, tpl := range sampleTemplates {
		rule, err := rrule.StrToRRule(tpl.rule)
		if err != nil {
			appLog.Error("sample rule invalid", err, "title", tpl.title, "rrule", tpl.rule)
			continue
		}
		y, m, d := rs.Date()
		rule.DTStart(time.Date(y, m, d, tpl.hour, tpl.minute, 0, 0, loc))

		for _, at := range rule.Between(rs, re, true) {
			occs = append(occs, occurrence{at: at, idx: i})
		}
	}

	sort.SliceStable(occs, func(a, b int) bool {
		if occs[a].at.Equal(occs[b].at) {
			return occs[a].idx < occs[b].idx
		}
		return occs[a].at.Before(occs[b].at)
	})

	out := make([]model.RawEvent, 0, len(occs))
	for _, o := range occs {
		tpl := sampleTemplates[o.idx]
		hours := tpl.hours
		end := o.at.Add(time.Duration(hours * float64(time.Hour)))
		out = append(out, model.RawEvent{
			ID:            model.EventID(fmt.Sprintf("sample-%d-%s", o.idx+1, o.at.Format("20060102T1504"))),
			Title:         tpl.title,
			Description:   tpl.description,
			Start:         o.at.UTC().Format(time.RFC3339),
			End:           end.UTC().Format(time.RFC3339),
			Category:      string(tpl.category),
			Location:      tpl.location,
			DurationHours: &hours,
		})
	}
	return out
}

// Fallback returns the transformed sample set for r.
func Fallback(r model.DateRange) []model.CalendarEvent {
	events, _ := TransformBatch(SampleEvents(r))
	return events
}
