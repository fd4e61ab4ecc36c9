package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campuscal/internal/model"
)

type fakeTokens struct {
	mu          sync.Mutex
	token       string
	invalidated int
}

func (f *fakeTokens) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *fakeTokens) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = ""
	f.invalidated++
}

var testRange = model.DateRange{
	Start: time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 3, 9, 23, 59, 59, 999_000_000, time.UTC),
}

func TestFetchRangeSendsQueryAndToken(t *testing.T) {
	var gotPath, gotStart, gotEnd, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotStart = r.URL.Query().Get("start_date")
		gotEnd = r.URL.Query().Get("end_date")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"events":[
			{"id":"a","title":"Lecture","description":"","start":"2024-03-04T09:00:00Z","end":"2024-03-04T11:00:00Z","category":"lecture"},
			{"id":7,"title":"Lunch","description":"","start":"2024-03-05T12:00:00Z","end":"2024-03-05T13:00:00Z","category":"social"}
		]}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(Options{BaseURL: srv.URL + "/", Tokens: &fakeTokens{token: "tok"}})
	raws, err := src.FetchRange(context.Background(), testRange)
	require.NoError(t, err)

	assert.Equal(t, "/calendar/events", gotPath)
	assert.Equal(t, "2024-03-03T00:00:00.000Z", gotStart)
	assert.Equal(t, "2024-03-09T23:59:59.999Z", gotEnd)
	assert.Equal(t, "Bearer tok", gotAuth)

	require.Len(t, raws, 2)
	assert.Equal(t, model.EventID("a"), raws[0].ID)
	assert.Equal(t, model.EventID("7"), raws[1].ID)
}

func TestFetchRangeSyncEndpointWithoutToken(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"events":[]}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(Options{BaseURL: srv.URL, Endpoint: EndpointSync, Tokens: &fakeTokens{}})
	raws, err := src.FetchRange(context.Background(), testRange)
	require.NoError(t, err)
	assert.Empty(t, raws)
	assert.Equal(t, "/calendar/sync", gotPath)
	assert.Equal(t, "", gotAuth)
}

func TestFetchRangeUnauthorizedInvalidatesToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"expired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	tokens := &fakeTokens{token: "stale"}
	src := NewHTTPSource(Options{BaseURL: srv.URL, Tokens: tokens})
	_, err := src.FetchRange(context.Background(), testRange)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.True(t, errors.Is(err, ErrUnauthorized))
	assert.Equal(t, 1, tokens.invalidated)
	assert.Equal(t, "", tokens.Token())
}

func TestFetchRangeFailures(t *testing.T) {
	cases := map[string]http.HandlerFunc{
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		},
		"bad json": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"events": [`))
		},
		"events not a list": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"events": {"id": "a"}}`))
		},
		"missing events": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"detail": "oops"}`))
		},
		"null events": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"events": null}`))
		},
	}
	for name, h := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(h)
			defer srv.Close()

			_, err := NewHTTPSource(Options{BaseURL: srv.URL}).FetchRange(context.Background(), testRange)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrFetchFailed))
			assert.False(t, errors.Is(err, ErrUnauthorized))
		})
	}
}

func TestFetchRangeKeepsGoodRecordsBesideBadOnes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"events": [
			{"id": 1, "title": "Lecture", "start": "2024-03-04T09:00:00Z", "end": "2024-03-04T10:00:00Z"},
			{"id": 2, "title": "Broken", "start": 1709546400},
			{"id": {"nested": true}},
			null
		]}`))
	}))
	defer srv.Close()

	raws, err := NewHTTPSource(Options{BaseURL: srv.URL}).FetchRange(context.Background(), testRange)
	require.NoError(t, err)
	require.Len(t, raws, 4)

	assert.Equal(t, model.EventID("1"), raws[0].ID)
	assert.Empty(t, raws[0].DecodeError)

	assert.Equal(t, model.EventID("2"), raws[1].ID)
	assert.NotEmpty(t, raws[1].DecodeError)

	assert.Equal(t, model.EventID(""), raws[2].ID)
	assert.NotEmpty(t, raws[2].DecodeError)

	// A null record decodes to an empty one; the transform rejects it.
	assert.Empty(t, raws[3].DecodeError)
	assert.Equal(t, model.EventID(""), raws[3].ID)
}

func TestFetchRangeNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPSource(Options{BaseURL: url, Timeout: time.Second}).FetchRange(context.Background(), testRange)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestFetchRangeEmptyBaseURL(t *testing.T) {
	_, err := NewHTTPSource(Options{}).FetchRange(context.Background(), testRange)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestFetchRangeHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPSource(Options{BaseURL: srv.URL}).FetchRange(ctx, testRange)
	assert.True(t, errors.Is(err, ErrFetchFailed))
	assert.True(t, errors.Is(err, context.Canceled))
}
