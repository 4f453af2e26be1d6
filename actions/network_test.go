package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charles-d-burton/iot-printer/queue"
)

const forecastJSON = `{
  "timezone": "Europe/Berlin",
  "current_weather": {"temperature": 13.2, "weathercode": 3, "time": "2024-05-01T12:00"},
  "daily": {
    "time": ["2024-05-01", "2024-05-02", "2024-05-03"],
    "weathercode": [3, 61, 0],
    "temperature_2m_max": [15.4, 12.0, 18.9],
    "temperature_2m_min": [8.1, 6.6, 7.0]
  }
}`

func TestWeatherForecast(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "52.5200", r.URL.Query().Get("latitude"))
		assert.Equal(t, "true", r.URL.Query().Get("current_weather"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, forecastJSON)
	}))
	defer srv.Close()

	q := queue.New(quietLog(), nil)
	w := &Weather{
		URL:       srv.URL,
		Latitude:  52.52,
		Longitude: 13.405,
		Client:    NewHTTPClient(time.Second, 0),
		Queue:     q,
		Log:       quietLog(),
	}

	report, err := w.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Days, 3)
	assert.Equal(t, 61, report.Days[1].Code)

	require.NoError(t, w.Forecast(context.Background()))
	out := drain(t, q)
	require.Len(t, out.lines, 7)
	assert.Equal(t, "Weather for Europe/Berlin", strings.TrimSpace(out.lines[0]))
	assert.Equal(t, "13"+degree+" Overcast", out.lines[3])
	assert.Equal(t, "Wed: low 8"+degree+" high 15"+degree+" Overcast", out.lines[5])
	assert.Equal(t, "Thu: low 7"+degree+" high 12"+degree+" Rain", out.lines[6])
	assert.Equal(t, bannerFeed, out.fed)
}

func TestWeatherRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, forecastJSON)
	}))
	defer srv.Close()

	client := NewHTTPClient(time.Second, 2)
	client.RetryWaitMin = time.Millisecond
	client.RetryWaitMax = time.Millisecond
	w := &Weather{URL: srv.URL, Client: client, Log: quietLog()}

	c, desc, err := w.Current(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 13.2, c)
	assert.Equal(t, "Overcast", desc)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWeatherBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	w := &Weather{URL: srv.URL, Client: NewHTTPClient(time.Second, 0), Log: quietLog()}
	_, err := w.Fetch(context.Background())
	assert.Error(t, err)
}

type bookmarks struct {
	mu      sync.Mutex
	etags   map[string]string
	ids     map[string]int64
	failIDs error
}

func newBookmarks() *bookmarks {
	return &bookmarks{etags: map[string]string{}, ids: map[string]int64{}}
}

func (b *bookmarks) ETag(_ context.Context, request string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.etags[request], nil
}

func (b *bookmarks) SaveETag(_ context.Context, request, etag string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.etags[request] = etag
	return nil
}

func (b *bookmarks) LastID(_ context.Context, request string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ids[request], nil
}

func (b *bookmarks) SaveLastID(_ context.Context, request string, id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failIDs != nil {
		return b.failIDs
	}
	b.ids[request] = id
	return nil
}

const eventsJSON = `[
  {"id": "103", "type": "ForkEvent", "actor": {"login": "bob"}, "repo": {"name": "me/printer"}, "created_at": "2024-05-01T10:03:00Z"},
  {"id": "102", "type": "PushEvent", "actor": {"login": "carol"}, "repo": {"name": "me/printer"}, "created_at": "2024-05-01T10:02:00Z"},
  {"id": "101", "type": "WatchEvent", "actor": {"login": "org-bot"}, "repo": {"name": "acme/tools"}, "org": {"login": "acme"}, "created_at": "2024-05-01T10:01:30Z"},
  {"id": "100", "type": "WatchEvent", "actor": {"login": "alice"}, "repo": {"name": "me/printer"}, "created_at": "2024-05-01T10:01:00Z"},
  {"id": "90", "type": "WatchEvent", "actor": {"login": "old"}, "repo": {"name": "me/printer"}, "created_at": "2024-04-01T10:00:00Z"}
]`

func githubServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token s3cret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/users/me/received_events":
			if r.Header.Get("If-None-Match") == `"events-1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"events-1"`)
			fmt.Fprint(w, eventsJSON)
		case "/users/me/followers":
			if r.Header.Get("If-None-Match") == `"followers-1"` {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", `"followers-1"`)
			fmt.Fprint(w, `[{"login": "dave"}]`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGitHubPoll(t *testing.T) {
	srv := githubServer(t)
	defer srv.Close()

	q := queue.New(quietLog(), nil)
	marks := newBookmarks()
	g := &GitHub{
		URL:           srv.URL,
		Username:      "me",
		Token:         "s3cret",
		SkipOrgEvents: true,
		Client:        NewHTTPClient(time.Second, 0),
		Store:         marks,
		Queue:         q,
		Log:           quietLog(),
	}

	cursor, err := g.Poll(context.Background(), "95")
	require.NoError(t, err)
	assert.Equal(t, "103", cursor)
	assert.Equal(t, int64(103), marks.ids[eventsRequest])
	assert.Equal(t, `"events-1"`, marks.etags[eventsRequest])

	out := drain(t, q)
	var body []string
	for _, l := range out.lines {
		if strings.TrimSpace(l) != "Github Event" && !strings.HasPrefix(l, "2024-") {
			body = append(body, l)
		}
	}
	assert.Equal(t, []string{
		"alice starred repo me/printer",
		"bob forked repo me/printer",
		"You were followed by dave",
	}, body)
	assert.Equal(t, " Github Event"+strings.Repeat(" ", 19), out.lines[0])
	assert.Len(t, out.lines[1], LineWidth)

	// nothing changed upstream, nothing printed, cursor kept
	cursor, err = g.Poll(context.Background(), cursor)
	require.NoError(t, err)
	assert.Equal(t, "103", cursor)
	assert.Empty(t, drain(t, q).lines)
}

func TestGitHubPollIgnoresSeenEvents(t *testing.T) {
	srv := githubServer(t)
	defer srv.Close()

	q := queue.New(quietLog(), nil)
	marks := newBookmarks()
	marks.ids[eventsRequest] = 103
	marks.etags[followersRequest] = `"followers-1"`
	g := &GitHub{
		URL:      srv.URL,
		Username: "me",
		Token:    "s3cret",
		Client:   NewHTTPClient(time.Second, 0),
		Store:    marks,
		Queue:    q,
		Log:      quietLog(),
	}

	cursor, err := g.Poll(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "103", cursor)
	assert.Empty(t, drain(t, q).lines)
}

func TestGitHubKeepsETagUntilIDStored(t *testing.T) {
	srv := githubServer(t)
	defer srv.Close()

	q := queue.New(quietLog(), nil)
	marks := newBookmarks()
	marks.etags[followersRequest] = `"followers-1"`
	marks.failIDs = errors.New("disk full")
	g := &GitHub{
		URL:      srv.URL,
		Username: "me",
		Token:    "s3cret",
		Client:   NewHTTPClient(time.Second, 0),
		Store:    marks,
		Queue:    q,
		Log:      quietLog(),
	}

	cursor, err := g.Poll(context.Background(), "95")
	assert.Error(t, err)
	assert.Equal(t, "95", cursor)
	assert.Empty(t, marks.etags[eventsRequest])
	drain(t, q)

	// the retry downloads the events again instead of getting a 304
	marks.failIDs = nil
	cursor, err = g.Poll(context.Background(), cursor)
	require.NoError(t, err)
	assert.Equal(t, "103", cursor)
	assert.Equal(t, `"events-1"`, marks.etags[eventsRequest])
	assert.NotEmpty(t, drain(t, q).lines)
}

func TestGitHubNotConfigured(t *testing.T) {
	g := &GitHub{Store: newBookmarks(), Log: quietLog()}
	cursor, err := g.Poll(context.Background(), "7")
	assert.Equal(t, ErrNotConfigured, err)
	assert.Equal(t, "7", cursor)
}
