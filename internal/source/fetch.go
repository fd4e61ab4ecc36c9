package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appLog "campuscal/internal/log"
	"campuscal/internal/model"
)

var (
	// ErrFetchFailed wraps every failure to obtain a usable event batch:
	// network errors, non-2xx answers and undecodable bodies.
	ErrFetchFailed = errors.New("calendar fetch failed")
	// ErrUnauthorized is additionally wrapped when the service answered 401.
	ErrUnauthorized = errors.New("calendar service rejected the token")
)

// Endpoint selects which of the two equivalent range endpoints to call.
type Endpoint string

const (
	EndpointEvents Endpoint = "events"
	EndpointSync   Endpoint = "sync"
)

func (e Endpoint) path() string {
	if e == EndpointSync {
		return "/calendar/sync"
	}
	return "/calendar/events"
}

// wireTime matches the browser client's Date.toISOString output.
const wireTime = "2006-01-02T15:04:05.000Z"

// maxBody bounds a single response body.
const maxBody = 8 << 20

// Source supplies raw events for a date range.
type Source interface {
	FetchRange(ctx context.Context, r model.DateRange) ([]model.RawEvent, error)
}

// Tokens is the bearer-token collaborator. *auth.TokenStore satisfies it.
type Tokens interface {
	Token() string
	Invalidate()
}

// HTTPSource fetches events from the portal's calendar service.
type HTTPSource struct {
	client   *http.Client
	baseURL  string
	endpoint Endpoint
	tokens   Tokens
}

// Options configures an HTTPSource.
type Options struct {
	BaseURL  string
	Endpoint Endpoint
	Timeout  time.Duration
	Tokens   Tokens
	// Client overrides the default client; Timeout is ignored when set.
	Client *http.Client
}

// NewHTTPSource builds an HTTPSource.
func NewHTTPSource(opts Options) *HTTPSource {
	client := opts.Client
	if client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = EndpointEvents
	}
	return &HTTPSource{
		client:   client,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		endpoint: endpoint,
		tokens:   opts.Tokens,
	}
}

// eventsEnvelope keeps records raw so one bad record cannot sink the batch.
// A missing or null events key is a failed fetch, not an empty week.
type eventsEnvelope struct {
	Events *[]json.RawMessage `json:"events"`
}

// FetchRange performs GET {base}/calendar/{events|sync}?start_date=..&end_date=..
func (s *HTTPSource) FetchRange(ctx context.Context, r model.DateRange) ([]model.RawEvent, error) {
	if s.baseURL == "" {
		return nil, fmt.Errorf("%w: base URL is empty", ErrFetchFailed)
	}

	q := url.Values{}
	q.Set("start_date", r.Start.UTC().Format(wireTime))
	q.Set("end_date", r.End.UTC().Format(wireTime))
	target := s.baseURL + s.endpoint.path() + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("Accept", "application/json")
	if s.tokens != nil {
		if tok := s.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	appLog.Debug("calendar fetch start", "endpoint", string(s.endpoint), "start", q.Get("start_date"), "end", q.Get("end_date"))

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if s.tokens != nil {
			s.tokens.Invalidate()
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrFetchFailed, ErrUnauthorized, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: %s", ErrFetchFailed, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}

	raws, undecodable, err := decodeEvents(body)
	if err != nil {
		return nil, err
	}

	appLog.Info("calendar fetch success", "endpoint", string(s.endpoint), "status", resp.StatusCode, "events", len(raws), "undecodable", undecodable)
	return raws, nil
}

// decodeEvents decodes each record of the envelope separately. A record
// that does not decode is returned with DecodeError set so the transform
// step skips and counts it.
func decodeEvents(body []byte) ([]model.RawEvent, int, error) {
	var env eventsEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, 0, fmt.Errorf("%w: decode body: %w", ErrFetchFailed, err)
	}
	if env.Events == nil {
		return nil, 0, fmt.Errorf("%w: response has no events list", ErrFetchFailed)
	}

	raws := make([]model.RawEvent, 0, len(*env.Events))
	undecodable := 0
	for _, msg := range *env.Events {
		var raw model.RawEvent
		if err := json.Unmarshal(msg, &raw); err != nil {
			undecodable++
			raw = model.RawEvent{ID: recordID(msg), DecodeError: err.Error()}
		}
		raws = append(raws, raw)
	}
	return raws, undecodable, nil
}

// recordID recovers the id of an undecodable record for logging, if it has
// a usable one.
func recordID(msg json.RawMessage) model.EventID {
	var head struct {
		ID model.EventID `json:"id"`
	}
	if err := json.Unmarshal(msg, &head); err != nil {
		return ""
	}
	return head.ID
}
