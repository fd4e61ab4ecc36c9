package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	appLog "campuscal/internal/log"
)

// ErrCheckFailed wraps every failed connection check.
var ErrCheckFailed = errors.New("calendar connection check failed")

const statusPath = "/calendar/test"

// Connection check outcomes reported by the service.
const (
	StatusSuccess      = "success"
	StatusPartialError = "partial_error"
	StatusError        = "error"
)

// ConnectionStatus is the service's answer to GET /calendar/test.
type ConnectionStatus struct {
	Status         string         `json:"status"`
	Message        string         `json:"message"`
	TokenAvailable bool           `json:"token_available"`
	User           *AccountInfo   `json:"user,omitempty"`
	Calendars      *CalendarsInfo `json:"calendars,omitempty"`
}

type AccountInfo struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type CalendarsInfo struct {
	Count int      `json:"count"`
	Names []string `json:"names"`
}

// OK reports whether the account and its calendars were both reachable.
func (c ConnectionStatus) OK() bool {
	return c.Status == StatusSuccess
}

// Summary renders the status as a single line for people.
func (c ConnectionStatus) Summary() string {
	if !c.OK() {
		msg := c.Message
		if msg == "" {
			msg = "unknown error"
		}
		return "Connection issue: " + msg
	}
	name, email, count := "unknown user", "unknown", 0
	if c.User != nil {
		name, email = c.User.DisplayName, c.User.Email
	}
	if c.Calendars != nil {
		count = c.Calendars.Count
	}
	return fmt.Sprintf("Connected as %s (%s). Found %d calendars.", name, email, count)
}

// TestConnection asks the calendar service whether the stored token reaches
// the user's account and calendars. A partial_error answer is returned
// without an error; transport failures and non-2xx answers are errors, and
// the returned status then carries whatever the service explained.
func (s *HTTPSource) TestConnection(ctx context.Context) (ConnectionStatus, error) {
	failed := func(msg string, err error) (ConnectionStatus, error) {
		return ConnectionStatus{Status: StatusError, Message: msg}, err
	}
	if s.baseURL == "" {
		return failed("base URL is empty", fmt.Errorf("%w: base URL is empty", ErrCheckFailed))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+statusPath, nil)
	if err != nil {
		return failed(err.Error(), fmt.Errorf("%w: %v", ErrCheckFailed, err))
	}
	req.Header.Set("Accept", "application/json")
	hasToken := false
	if s.tokens != nil {
		if tok := s.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
			hasToken = true
		}
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return failed(err.Error(), fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return failed(err.Error(), fmt.Errorf("%w: read body: %w", ErrCheckFailed, err))
	}

	var st ConnectionStatus
	decodeErr := json.Unmarshal(body, &st)
	if decodeErr == nil && st.Status == "" {
		decodeErr = errors.New("answer has no status")
	}
	if decodeErr != nil {
		st = ConnectionStatus{Status: StatusError, TokenAvailable: hasToken}
	}
	if st.Message == "" && (resp.StatusCode < 200 || resp.StatusCode > 299) {
		st.Message = strings.TrimSpace(resp.Status)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if s.tokens != nil {
			s.tokens.Invalidate()
		}
		st.Status = StatusError
		return st, fmt.Errorf("%w: %w: %s", ErrCheckFailed, ErrUnauthorized, resp.Status)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		st.Status = StatusError
		return st, fmt.Errorf("%w: %s", ErrCheckFailed, resp.Status)
	case decodeErr != nil:
		st.Message = "undecodable answer from calendar service"
		return st, fmt.Errorf("%w: decode body: %w", ErrCheckFailed, decodeErr)
	}

	appLog.Info("calendar connection checked", "status", st.Status, "token", hasToken)
	return st, nil
}
