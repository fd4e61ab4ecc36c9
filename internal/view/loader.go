// Package view owns the calendar's current view: which range is shown and
// which events fill it. A Loader is the single writer of that state; every
// range or granularity change re-fetches and re-transforms the whole range,
// and only the newest request may commit.
package view

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"campuscal/internal/calendar"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/source"
)

var (
	// ErrSuperseded is returned by Navigate when a newer navigation started
	// before this one finished; its result was discarded.
	ErrSuperseded = errors.New("navigation superseded by a newer request")
	ErrRunning    = errors.New("loader already started")
)

// State is an immutable snapshot of the current view.
type State struct {
	Ref         time.Time             `json:"ref"`
	Granularity model.Granularity     `json:"view"`
	Range       model.DateRange       `json:"range"`
	Events      []model.CalendarEvent `json:"events"`

	Fallback      bool   `json:"fallback"`
	Notice        string `json:"notice,omitempty"`
	Error         string `json:"error,omitempty"`
	LoginRequired bool   `json:"login_required"`
	Skipped       int    `json:"skipped"`

	Generation uint64    `json:"generation"`
	LoadedAt   time.Time `json:"loaded_at"`
}

// Options configures a Loader.
type Options struct {
	// DefaultView is used by Start and by Refresh before any navigation.
	DefaultView model.Granularity
	// RefreshSpec is a standard 5-field cron spec; empty disables
	// scheduled refresh.
	RefreshSpec string
	// Now defaults to time.Now.
	Now func() time.Time
	// Fallback defaults to calendar.Fallback.
	Fallback func(model.DateRange) []model.CalendarEvent
}

// Loader fetches, transforms and publishes the current view.
type Loader struct {
	src  source.Source
	opts Options

	mu       sync.Mutex
	gen      uint64
	inflight context.CancelFunc
	state    State
	hasState bool
	local    []model.CalendarEvent

	cron    *cron.Cron
	stopCtx context.CancelFunc
}

// NewLoader builds a Loader reading from src.
func NewLoader(src source.Source, opts Options) *Loader {
	if g, err := model.ParseGranularity(string(opts.DefaultView)); err == nil {
		opts.DefaultView = g
	} else {
		opts.DefaultView = model.GranularityWeek
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Fallback == nil {
		opts.Fallback = calendar.Fallback
	}
	return &Loader{src: src, opts: opts}
}

// Start loads the default view for today and, if configured, schedules
// periodic refreshes. It returns once the first load finished.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.cron != nil {
		l.mu.Unlock()
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New()
	if spec := strings.TrimSpace(l.opts.RefreshSpec); spec != "" {
		if _, err := c.AddFunc(spec, func() { l.scheduledRefresh(runCtx) }); err != nil {
			l.mu.Unlock()
			cancel()
			return fmt.Errorf("refresh schedule %q: %w", spec, err)
		}
	}
	l.cron = c
	l.stopCtx = cancel
	l.mu.Unlock()

	if _, err := l.Navigate(runCtx, l.opts.Now(), l.opts.DefaultView); err != nil && !errors.Is(err, ErrSuperseded) {
		appLog.Error("initial view load failed", err)
	}

	c.Start()
	appLog.Info("view loader started", "view", string(l.opts.DefaultView), "refresh", l.opts.RefreshSpec)
	return nil
}

// Stop halts scheduled refreshes and cancels any in-flight fetch. The last
// committed state stays readable.
func (l *Loader) Stop() {
	l.mu.Lock()
	c := l.cron
	stop := l.stopCtx
	l.cron = nil
	l.stopCtx = nil
	// Results of fetches still running are discarded.
	l.gen++
	if l.inflight != nil {
		l.inflight()
		l.inflight = nil
	}
	l.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	if stop != nil {
		stop()
	}
	appLog.Info("view loader stopped")
}

func (l *Loader) scheduledRefresh(ctx context.Context) {
	st, err := l.Refresh(ctx)
	if err != nil {
		if !errors.Is(err, ErrSuperseded) {
			appLog.Error("scheduled refresh failed", err)
		}
		return
	}
	appLog.Debug("scheduled refresh done", "view", string(st.Granularity), "events", len(st.Events), "fallback", st.Fallback)
}

// Navigate shows the g-view containing ref. Any earlier navigation still in
// flight is cancelled, and if its response arrives anyway it is dropped.
// Fetch failures are not returned: the state then carries the fallback set.
func (l *Loader) Navigate(ctx context.Context, ref time.Time, g model.Granularity) (State, error) {
	r, err := calendar.ComputeRange(ref, g)
	if err != nil {
		return State{}, err
	}

	l.mu.Lock()
	l.gen++
	gen := l.gen
	if l.inflight != nil {
		l.inflight()
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	l.inflight = cancel
	l.mu.Unlock()
	defer cancel()

	st := State{
		Ref:         calendar.InDisplay(ref),
		Granularity: g,
		Range:       r,
	}

	raws, ferr := l.src.FetchRange(fetchCtx, r)
	if l.superseded(gen) {
		return State{}, ErrSuperseded
	}
	if ferr != nil && ctx.Err() != nil {
		return State{}, ctx.Err()
	}

	if ferr != nil {
		st.Events = l.opts.Fallback(r)
		st.Fallback = true
		st.Notice = calendar.FallbackNotice
		st.Error = ferr.Error()
		st.LoginRequired = errors.Is(ferr, source.ErrUnauthorized)
		appLog.Error("calendar fetch failed; using sample events", ferr,
			"view", string(g),
			"range_start", r.Start.Format(time.RFC3339),
			"login_required", st.LoginRequired,
		)
	} else {
		st.Events, st.Skipped = calendar.TransformBatch(raws)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.gen {
		return State{}, ErrSuperseded
	}
	l.inflight = nil

	st.Events = mergeLocal(st.Events, l.local, r)
	st.Generation = gen
	st.LoadedAt = l.opts.Now()
	l.state = st
	l.hasState = true

	appLog.Info("view loaded",
		"view", string(g),
		"range_start", r.Start.Format("2006-01-02"),
		"range_end", r.End.Format("2006-01-02"),
		"events", len(st.Events),
		"skipped", st.Skipped,
		"fallback", st.Fallback,
		"generation", gen,
	)
	return st.clone(), nil
}

// Refresh reloads the current view, or the default view for today if
// nothing was loaded yet.
func (l *Loader) Refresh(ctx context.Context) (State, error) {
	l.mu.Lock()
	ref, g := l.opts.Now(), l.opts.DefaultView
	if l.hasState {
		ref, g = l.state.Ref, l.state.Granularity
	}
	l.mu.Unlock()
	return l.Navigate(ctx, ref, g)
}

// State returns the last committed state and whether there is one.
func (l *Loader) State() (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.clone(), l.hasState
}

func (l *Loader) superseded(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return gen != l.gen
}

// LocalEvent is a user-created event kept alongside fetched ones.
type LocalEvent struct {
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Start         time.Time `json:"start"`
	DurationHours float64   `json:"duration_hours"`
	Category      string    `json:"category"`
	Location      string    `json:"location"`
}

// AddLocal records a user-created event. It is merged into every state
// whose range contains its start, including the current one.
func (l *Loader) AddLocal(in LocalEvent) (model.CalendarEvent, error) {
	if strings.TrimSpace(in.Title) == "" {
		return model.CalendarEvent{}, errors.New("title is required")
	}
	if in.Start.IsZero() {
		return model.CalendarEvent{}, errors.New("start is required")
	}
	hours := in.DurationHours
	if hours <= 0 {
		hours = 1
	}
	category := in.Category
	if category == "" {
		category = string(model.CategoryReminder)
	}

	ev, err := calendar.Transform(model.RawEvent{
		ID:            model.EventID("local-" + uuid.NewString()),
		Title:         in.Title,
		Description:   in.Description,
		Start:         in.Start.UTC().Format(time.RFC3339Nano),
		Category:      category,
		Location:      in.Location,
		DurationHours: &hours,
	})
	if err != nil {
		return model.CalendarEvent{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.local = append(l.local, ev)
	if l.hasState && l.state.Range.Contains(ev.Start) {
		events := make([]model.CalendarEvent, 0, len(l.state.Events)+1)
		events = append(events, l.state.Events...)
		events = append(events, ev)
		calendar.SortByStart(events)
		l.state.Events = events
	}
	appLog.Info("local event added", "id", string(ev.ID), "start", ev.Start.Format(time.RFC3339))
	return ev, nil
}

func mergeLocal(events, local []model.CalendarEvent, r model.DateRange) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events)+len(local))
	out = append(out, events...)
	for _, ev := range local {
		if r.Contains(ev.Start) {
			out = append(out, ev)
		}
	}
	calendar.SortByStart(out)
	return out
}

func (s State) clone() State {
	events := make([]model.CalendarEvent, len(s.Events))
	copy(events, s.Events)
	s.Events = events
	return s
}
