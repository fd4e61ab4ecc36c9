package web

import (
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"campuscal/internal/calendar"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/view"
)

// colorSet is the CSS colors of one category.
type colorSet struct {
	Fill   string
	Border string
	Text   string
}

const fallbackHex = "#6b7280"

func buildPalette(hexes map[string]string) map[model.Category]colorSet {
	out := make(map[model.Category]colorSet, len(model.Categories))
	for _, cat := range model.Categories {
		base, err := colorful.Hex(hexes[string(cat)])
		if err != nil {
			base, _ = colorful.Hex(fallbackHex)
		}
		out[cat] = colorSet{
			Fill:   lighten(base, 80).Hex(),
			Border: base.Hex(),
			Text:   darken(base, 55).Hex(),
		}
	}
	return out
}

func lighten(c colorful.Color, percentage int) colorful.Color {
	h, s, l := c.Hsl()
	l += (1 - l) * float64(percentage) / 100
	return colorful.Hsl(h, s, l)
}

func darken(c colorful.Color, percentage int) colorful.Color {
	h, s, l := c.Hsl()
	l -= l * float64(percentage) / 100
	return colorful.Hsl(h, s, l)
}

func (s *Server) style(cat model.Category) template.CSS {
	cs, ok := s.colors[cat]
	if !ok {
		cs = s.colors[model.CategoryMeeting]
	}
	return template.CSS("background:" + cs.Fill + ";border-left:3px solid " + cs.Border + ";color:" + cs.Text)
}

type pageEvent struct {
	Title    string
	Time     string
	Location string
	Style    template.CSS
	// Continued marks hour rows after the one the event starts in.
	Continued bool
}

type weekDay struct {
	Label string
	Today bool
}

type hourRow struct {
	Label string
	Cells [][]pageEvent
}

type monthCell struct {
	Empty  bool
	Day    int
	Today  bool
	Events []pageEvent
	More   int
}

type yearCell struct {
	Empty     bool
	Day       int
	HasEvents bool
}

type yearMonth struct {
	Name  string
	Weeks [][]yearCell
}

type legendItem struct {
	Name  string
	Style template.CSS
}

type pageData struct {
	View          string
	Title         string
	Notice        string
	LoginRequired bool
	PrevURL       string
	NextURL       string
	TodayURL      string
	DayNames      []string
	WeekDays      []weekDay
	Hours         []hourRow
	MonthWeeks    [][]monthCell
	Months        []yearMonth
	Legend        []legendItem
}

const monthCellLimit = 3

var weekdayNames = []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// handleCalendar renders the current view as HTML. The root element carries
// data-ready="true" once the page is complete, which the snapshot capture
// waits for.
//
// GET /calendar?view=week|month|year&date=YYYY-MM-DD
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	st, err := s.resolve(r.Context(), r.URL.Query())
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	data := s.buildPage(st)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := calendarPage.Execute(w, data); err != nil {
		appLog.Error("calendar page render failed", err)
	}
}

func (s *Server) buildPage(st view.State) pageData {
	today := calendar.DateKey(s.now())
	data := pageData{
		View:          string(st.Granularity),
		Notice:        st.Notice,
		LoginRequired: st.LoginRequired,
		DayNames:      weekdayNames,
		TodayURL:      viewURL(st.Granularity, calendar.InDisplay(s.now())),
	}
	if prev, err := calendar.Shift(st.Ref, st.Granularity, -1); err == nil {
		data.PrevURL = viewURL(st.Granularity, prev)
	}
	if next, err := calendar.Shift(st.Ref, st.Granularity, 1); err == nil {
		data.NextURL = viewURL(st.Granularity, next)
	}
	for _, cat := range model.Categories {
		data.Legend = append(data.Legend, legendItem{Name: string(cat), Style: s.style(cat)})
	}

	switch st.Granularity {
	case model.GranularityWeek:
		days := calendar.WeekDays(st.Ref)
		data.Title = days[0].Format("2 Jan") + " - " + days[6].Format("2 Jan 2006")
		byDay := make([]map[int][]model.CalendarEvent, len(days))
		for i, d := range days {
			data.WeekDays = append(data.WeekDays, weekDay{
				Label: d.Format("Mon 2"),
				Today: calendar.DateKey(d) == today,
			})
			byDay[i] = calendar.BucketByHour(st.Events, d)
		}
		for h := 0; h < calendar.HoursPerDay; h++ {
			row := hourRow{Label: calendar.FormatHour(h), Cells: make([][]pageEvent, len(days))}
			for i := range days {
				for _, ev := range byDay[i][h] {
					pe := s.pageEvent(ev)
					pe.Continued = ev.Wall().Hour != h
					row.Cells[i] = append(row.Cells[i], pe)
				}
			}
			data.Hours = append(data.Hours, row)
		}

	case model.GranularityMonth:
		data.Title = st.Range.Start.Format("January 2006")
		var week []monthCell
		for _, d := range calendar.MonthGrid(st.Ref) {
			cell := monthCell{Empty: d == nil}
			if d != nil {
				cell.Day = d.Day()
				cell.Today = calendar.DateKey(*d) == today
				for i, ev := range calendar.EventsOn(st.Events, *d) {
					if i >= monthCellLimit {
						cell.More++
						continue
					}
					cell.Events = append(cell.Events, s.pageEvent(ev))
				}
			}
			week = append(week, cell)
			if len(week) == 7 {
				data.MonthWeeks = append(data.MonthWeeks, week)
				week = nil
			}
		}
		if len(week) > 0 {
			for len(week) < 7 {
				week = append(week, monthCell{Empty: true})
			}
			data.MonthWeeks = append(data.MonthWeeks, week)
		}

	case model.GranularityYear:
		data.Title = strconv.Itoa(st.Range.Start.Year())
		byDay := calendar.BucketByDay(st.Events)
		for m := time.January; m <= time.December; m++ {
			first := time.Date(st.Range.Start.Year(), m, 1, 0, 0, 0, 0, calendar.DisplayLocation())
			ym := yearMonth{Name: m.String()}
			var week []yearCell
			for _, d := range calendar.MonthGrid(first) {
				cell := yearCell{Empty: d == nil}
				if d != nil {
					cell.Day = d.Day()
					cell.HasEvents = len(byDay[calendar.DateKey(*d)]) > 0
				}
				week = append(week, cell)
				if len(week) == 7 {
					ym.Weeks = append(ym.Weeks, week)
					week = nil
				}
			}
			if len(week) > 0 {
				ym.Weeks = append(ym.Weeks, week)
			}
			data.Months = append(data.Months, ym)
		}
	}
	return data
}

func (s *Server) pageEvent(ev model.CalendarEvent) pageEvent {
	return pageEvent{
		Title:    ev.Title,
		Time:     ev.StartDisplay + " - " + ev.EndDisplay,
		Location: ev.Location,
		Style:    s.style(ev.Category),
	}
}

func viewURL(g model.Granularity, ref time.Time) string {
	q := url.Values{}
	q.Set("view", string(g))
	q.Set("date", calendar.DateKey(ref))
	return "/calendar?" + q.Encode()
}

var calendarPage = template.Must(template.New("calendar").Parse(`<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}} · campuscal</title>
<style>
body{font-family:system-ui,sans-serif;margin:16px;color:#111}
nav a{margin-right:8px}
.notice{background:#fff7d6;border:1px solid #e8c95b;padding:6px 10px;margin:8px 0}
table{border-collapse:collapse;width:100%;table-layout:fixed}
th,td{border:1px solid #ddd;vertical-align:top;padding:2px;font-size:12px}
td.hour{width:56px;color:#666;text-align:right}
.ev{border-radius:3px;padding:1px 4px;margin:1px 0;overflow:hidden;white-space:nowrap;text-overflow:ellipsis}
.ev.cont{opacity:.55}
.today{background:#eef5ff}
.empty{background:#fafafa}
.more{color:#666}
.year{display:grid;grid-template-columns:repeat(4,1fr);gap:12px}
.year td{text-align:center;height:18px}
.year td.has{font-weight:bold;text-decoration:underline}
.legend span{display:inline-block;padding:1px 6px;margin-right:4px;border-radius:3px}
</style>
</head>
<body>
<div id="calendar" data-view="{{.View}}" data-ready="true">
<header>
<h1>{{.Title}}</h1>
<nav>
<a href="{{.PrevURL}}">&larr; Prev</a>
<a href="{{.TodayURL}}">Today</a>
<a href="{{.NextURL}}">Next &rarr;</a>
|
<a href="/calendar?view=week">Week</a>
<a href="/calendar?view=month">Month</a>
<a href="/calendar?view=year">Year</a>
|
<a href="/calendar.ics">Export</a>
</nav>
{{if .Notice}}<p class="notice">{{.Notice}}{{if .LoginRequired}} Sign in with <code>campuscal login</code> to see your own events.{{end}}</p>{{end}}
</header>
{{if .Hours}}
<table class="week">
<tr><th></th>{{range .WeekDays}}<th{{if .Today}} class="today"{{end}}>{{.Label}}</th>{{end}}</tr>
{{range .Hours}}<tr><td class="hour">{{.Label}}</td>{{range .Cells}}<td>{{range .}}<div class="ev{{if .Continued}} cont{{end}}" style="{{.Style}}" title="{{.Time}}{{if .Location}} · {{.Location}}{{end}}">{{if not .Continued}}{{.Title}}{{end}}</div>{{end}}</td>{{end}}</tr>
{{end}}</table>
{{end}}
{{if .MonthWeeks}}
<table class="month">
<tr>{{range .DayNames}}<th>{{.}}</th>{{end}}</tr>
{{range .MonthWeeks}}<tr>{{range .}}{{if .Empty}}<td class="empty"></td>{{else}}<td{{if .Today}} class="today"{{end}}><div>{{.Day}}</div>{{range .Events}}<div class="ev" style="{{.Style}}" title="{{.Time}}">{{.Title}}</div>{{end}}{{if .More}}<div class="more">+{{.More}} more</div>{{end}}</td>{{end}}{{end}}</tr>
{{end}}</table>
{{end}}
{{if .Months}}
<div class="year">
{{range .Months}}<table><caption>{{.Name}}</caption>
<tr>{{range $.DayNames}}<th>{{slice . 0 1}}</th>{{end}}</tr>
{{range .Weeks}}<tr>{{range .}}{{if .Empty}}<td></td>{{else}}<td{{if .HasEvents}} class="has"{{end}}>{{.Day}}</td>{{end}}{{end}}</tr>
{{end}}
</table>
{{end}}</div>
{{end}}
<footer class="legend">{{range .Legend}}<span style="{{.Style}}">{{.Name}}</span>{{end}}</footer>
</div>
</body>
</html>
`))
