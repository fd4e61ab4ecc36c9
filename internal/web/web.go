package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"campuscal/internal/auth"
	"campuscal/internal/calendar"
	"campuscal/internal/config"
	"campuscal/internal/export"
	appLog "campuscal/internal/log"
	"campuscal/internal/model"
	"campuscal/internal/source"
	"campuscal/internal/view"
)

// errBadRequest marks errors caused by the request itself.
var errBadRequest = errors.New("bad request")

const maxRequestBody = 64 << 10

// ConnectionChecker reports whether the calendar service is reachable with
// the stored credentials. *source.HTTPSource satisfies it.
type ConnectionChecker interface {
	TestConnection(ctx context.Context) (source.ConnectionStatus, error)
}

// Server exposes the current calendar view over HTTP: a JSON API, an ICS
// export and a server-rendered /calendar page.
type Server struct {
	cfg     *config.Config
	loader  *view.Loader
	checker ConnectionChecker
	mux     *http.ServeMux
	now     func() time.Time
	colors  map[model.Category]colorSet
}

// NewServer constructs a new Server. checker may be nil, in which case
// /api/status answers 503.
func NewServer(cfg *config.Config, loader *view.Loader, checker ConnectionChecker) *Server {
	s := &Server{
		cfg:     cfg,
		loader:  loader,
		checker: checker,
		mux:     http.NewServeMux(),
		now:     time.Now,
		colors:  buildPalette(cfg.CategoryColors),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.PasswordHash != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	hash := s.cfg.BasicAuth.PasswordHash

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !auth.SecureCompare(u, username) || !auth.CheckPassword(hash, p) {
			w.Header().Set("WWW-Authenticate", `Basic realm="campuscal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StartServer listens on cfg.Listen and serves until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, loader *view.Loader, checker ConnectionChecker) error {
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	return NewServer(cfg, loader, checker).Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/events", s.handleAddEvent)
	s.mux.HandleFunc("GET /api/hours", s.handleHours)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("GET /calendar.ics", s.handleICS)
	s.mux.HandleFunc("GET /calendar", s.handleCalendar)
	s.mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/calendar", http.StatusFound)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events and
// /api/refresh.
type eventsResponse struct {
	View            model.Granularity     `json:"view"`
	Date            string                `json:"date"`
	RangeStart      time.Time             `json:"range_start"`
	RangeEnd        time.Time             `json:"range_end"`
	DisplayTimeZone string                `json:"display_timezone"`
	Events          []model.CalendarEvent `json:"events"`
	Days            []dayBucket           `json:"days"`
	Fallback        bool                  `json:"fallback"`
	Notice          string                `json:"notice,omitempty"`
	Error           string                `json:"error,omitempty"`
	LoginRequired   bool                  `json:"login_required"`
	Skipped         int                   `json:"skipped"`
	Generation      uint64                `json:"generation"`
	LoadedAt        time.Time             `json:"loaded_at"`
}

type dayBucket struct {
	Date   string                `json:"date"`
	Events []model.CalendarEvent `json:"events"`
}

type hourBucket struct {
	Hour   int                   `json:"hour"`
	Label  string                `json:"label"`
	Events []model.CalendarEvent `json:"events"`
}

type hoursResponse struct {
	Date     string       `json:"date"`
	Fallback bool         `json:"fallback"`
	Notice   string       `json:"notice,omitempty"`
	Hours    []hourBucket `json:"hours"`
}

func newEventsResponse(st view.State) eventsResponse {
	byDay := calendar.BucketByDay(st.Events)
	days := make([]dayBucket, 0, len(byDay))
	keys := make([]string, 0, len(byDay))
	for key := range byDay {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		days = append(days, dayBucket{Date: key, Events: byDay[key]})
	}
	return eventsResponse{
		View:            st.Granularity,
		Date:            calendar.DateKey(st.Ref),
		RangeStart:      st.Range.Start,
		RangeEnd:        st.Range.End,
		DisplayTimeZone: calendar.DisplayTimeZone,
		Events:          st.Events,
		Days:            days,
		Fallback:        st.Fallback,
		Notice:          st.Notice,
		Error:           st.Error,
		LoginRequired:   st.LoginRequired,
		Skipped:         st.Skipped,
		Generation:      st.Generation,
		LoadedAt:        st.LoadedAt,
	}
}

// handleEvents returns the events of a view.
//
// GET /api/events?view=week|month|year&date=YYYY-MM-DD
//
// Omitted parameters keep the current view's granularity and reference date.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	st, err := s.resolve(r.Context(), r.URL.Query())
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(st))
}

// handleHours returns the 24 hour rows of one day.
//
// GET /api/hours?date=YYYY-MM-DD (default: today)
func (s *Server) handleHours(w http.ResponseWriter, r *http.Request) {
	dateParam := r.URL.Query().Get("date")
	day := calendar.InDisplay(s.now())
	if dateParam != "" {
		d, err := parseDate(dateParam)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		day = d
	}

	q := url.Values{}
	q.Set("date", calendar.DateKey(day))
	st, err := s.resolve(r.Context(), q)
	if err != nil {
		s.writeResolveError(w, err)
		return
	}

	byHour := calendar.BucketByHour(st.Events, day)
	hours := make([]hourBucket, 0, calendar.HoursPerDay)
	for h := 0; h < calendar.HoursPerDay; h++ {
		hours = append(hours, hourBucket{Hour: h, Label: calendar.FormatHour(h), Events: byHour[h]})
	}
	writeJSON(w, http.StatusOK, hoursResponse{
		Date:     calendar.DateKey(day),
		Fallback: st.Fallback,
		Notice:   st.Notice,
		Hours:    hours,
	})
}

// handleAddEvent records a local event.
//
// POST /api/events {"title": "...", "start": RFC3339, "duration_hours": 1, ...}
func (s *Server) handleAddEvent(w http.ResponseWriter, r *http.Request) {
	var in view.LocalEvent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid event: "+err.Error())
		return
	}
	ev, err := s.loader.AddLocal(in)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleRefresh re-fetches the current view.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	st, err := s.loader.Refresh(r.Context())
	if errors.Is(err, view.ErrSuperseded) {
		var ok bool
		st, ok = s.loader.State()
		if ok {
			err = nil
		}
	}
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEventsResponse(st))
}

type statusResponse struct {
	source.ConnectionStatus
	Summary       string `json:"summary"`
	LoginRequired bool   `json:"login_required"`
}

// handleStatus checks the connection to the calendar service.
//
// GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.checker == nil {
		writeError(w, http.StatusServiceUnavailable, "connection check not configured")
		return
	}
	st, err := s.checker.TestConnection(r.Context())
	resp := statusResponse{
		ConnectionStatus: st,
		Summary:          st.Summary(),
		LoginRequired:    errors.Is(err, source.ErrUnauthorized),
	}
	if err != nil {
		appLog.Warn("calendar connection check failed", "error", err.Error())
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleICS exports a view as an iCalendar file.
func (s *Server) handleICS(w http.ResponseWriter, r *http.Request) {
	st, err := s.resolve(r.Context(), r.URL.Query())
	if err != nil {
		s.writeResolveError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := export.WriteICS(&buf, "campuscal", st.Events); err != nil {
		appLog.Error("ics export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="campuscal.ics"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

// resolve returns the state for the requested view. Without parameters the
// current state is returned as is; a date inside the current range with an
// unchanged granularity also reuses it. Anything else navigates.
func (s *Server) resolve(ctx context.Context, q url.Values) (view.State, error) {
	viewParam, dateParam := q.Get("view"), q.Get("date")

	cur, ok := s.loader.State()
	if ok && viewParam == "" && dateParam == "" {
		return cur, nil
	}

	g, err := model.ParseGranularity(s.cfg.DefaultView)
	if err != nil {
		g = model.GranularityWeek
	}
	ref := s.now()
	if ok {
		g, ref = cur.Granularity, cur.Ref
	}
	if viewParam != "" {
		parsed, err := model.ParseGranularity(viewParam)
		if err != nil {
			return view.State{}, fmt.Errorf("%w: %w", errBadRequest, err)
		}
		g = parsed
	}
	if dateParam != "" {
		d, err := parseDate(dateParam)
		if err != nil {
			return view.State{}, err
		}
		ref = d
	}

	if ok && g == cur.Granularity && cur.Range.Contains(ref) {
		return cur, nil
	}

	st, err := s.loader.Navigate(ctx, ref, g)
	if errors.Is(err, view.ErrSuperseded) {
		// A newer navigation won; serve what it committed.
		if latest, ok := s.loader.State(); ok {
			return latest, nil
		}
	}
	return st, err
}

func (s *Server) writeResolveError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	default:
		appLog.Error("view load failed", err)
		writeError(w, http.StatusInternalServerError, "failed to load calendar")
	}
}

// parseDate reads YYYY-MM-DD as a display-zone date.
func parseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, calendar.DisplayLocation())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", errBadRequest)
	}
	return d, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
