package calendar

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

// ErrMalformedRecord marks a raw event that cannot be turned into a
// CalendarEvent.
var ErrMalformedRecord = errors.New("malformed event record")

const untitled = "(No title)"

// MaxDurationHours bounds a single event to one leap year.
const MaxDurationHours = 24 * 366

// categoryKeywords is checked in order; first hit wins.
var categoryKeywords = []struct {
	category model.Category
	words    []string
}{
	{model.CategoryExam, []string{"exam", "quiz", "midterm"}},
	{model.CategoryLecture, []string{"lecture", "seminar", "tutorial"}},
	{model.CategoryTask, []string{"task", "todo", "deadline"}},
	{model.CategoryReminder, []string{"reminder", "remember"}},
	{model.CategorySocial, []string{"lunch", "dinner", "coffee", "social"}},
}

// Transform maps a raw record into the canonical model. The duration is
// max(1, ceil((end-start)/1h)) unless the record supplies one directly.
func Transform(raw model.RawEvent) (model.CalendarEvent, error) {
	if raw.DecodeError != "" {
		return model.CalendarEvent{}, fmt.Errorf("%w: id %s: %s", ErrMalformedRecord, raw.ID, raw.DecodeError)
	}
	if strings.TrimSpace(string(raw.ID)) == "" {
		return model.CalendarEvent{}, fmt.Errorf("%w: missing id", ErrMalformedRecord)
	}

	start, err := ParseInstant(raw.Start)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("%w: id %s: start %q: %v", ErrMalformedRecord, raw.ID, raw.Start, err)
	}

	var hours float64
	if raw.DurationHours != nil {
		hours = math.Max(1, *raw.DurationHours)
	} else {
		end, err := ParseInstant(raw.End)
		if err != nil {
			return model.CalendarEvent{}, fmt.Errorf("%w: id %s: end %q: %v", ErrMalformedRecord, raw.ID, raw.End, err)
		}
		hours = DurationHours(start, end)
	}
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours > MaxDurationHours {
		return model.CalendarEvent{}, fmt.Errorf("%w: id %s: duration %v hours out of range", ErrMalformedRecord, raw.ID, hours)
	}

	start = InDisplay(start)
	end := start.Add(time.Duration(hours * float64(time.Hour)))

	title := strings.TrimSpace(raw.Title)
	if title == "" {
		title = untitled
	}

	return model.CalendarEvent{
		ID:            raw.ID,
		Title:         title,
		Description:   raw.Description,
		Start:         start,
		End:           end,
		DurationHours: hours,
		StartDisplay:  FormatClock(model.WallClockOf(start)),
		EndDisplay:    FormatClock(model.WallClockOf(end)),
		Category:      resolveCategory(raw),
		Location:      raw.Location,
	}, nil
}

// DurationHours rounds the span up to whole hours, never below one.
func DurationHours(start, end time.Time) float64 {
	h := math.Ceil(float64(end.Sub(start)) / float64(time.Hour))
	return math.Max(1, h)
}

// TransformBatch transforms raws in order. Malformed records are skipped
// and counted.
func TransformBatch(raws []model.RawEvent) ([]model.CalendarEvent, int) {
	out := make([]model.CalendarEvent, 0, len(raws))
	skipped := 0
	for i, raw := range raws {
		ev, err := Transform(raw)
		if err != nil {
			skipped++
			appLog.Warn("skipping malformed event", "index", i, "id", string(raw.ID), "reason", err.Error())
			continue
		}
		out = append(out, ev)
	}
	return out, skipped
}

// SortByStart orders events ascending by start, keeping input order for
// equal starts.
func SortByStart(events []model.CalendarEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Start.Before(events[j].Start)
	})
}

func resolveCategory(raw model.RawEvent) model.Category {
	if c, ok := model.ParseCategory(raw.Category); ok {
		return c
	}
	return InferCategory(raw.Title, raw.Description)
}

// InferCategory guesses a category from free text, defaulting to meeting.
func InferCategory(title, description string) model.Category {
	text := strings.ToLower(title + " " + description)
	for _, ck := range categoryKeywords {
		for _, w := range ck.words {
			if strings.Contains(text, w) {
				return ck.category
			}
		}
	}
	return model.CategoryMeeting
}
