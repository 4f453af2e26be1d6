package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"

	"github.com/charles-d-burton/iot-printer/queue"
)

const (
	eventsRequest    = "my_events"
	followersRequest = "my_followers"
	githubFeed       = 3
)

//ErrNotConfigured the poller has no account to watch
var ErrNotConfigured = errors.New("github username not configured")

//Bookmarks persisted ETags and ids, satisfied by *store.Store
type Bookmarks interface {
	ETag(ctx context.Context, request string) (string, error)
	SaveETag(ctx context.Context, request, etag string) error
	LastID(ctx context.Context, request string) (int64, error)
	SaveLastID(ctx context.Context, request string, id int64) error
}

type ghEvent struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Actor struct {
		Login string `json:"login"`
	} `json:"actor"`
	Repo struct {
		Name string `json:"name"`
	} `json:"repo"`
	Org       *json.RawMessage `json:"org,omitempty"`
	CreatedAt string           `json:"created_at"`
}

type ghUser struct {
	Login string `json:"login"`
}

//GitHub polls received events and followers of one account
type GitHub struct {
	URL           string
	Username      string
	Token         string
	SkipOrgEvents bool
	Client        *retryablehttp.Client
	Store         Bookmarks
	Queue         Enqueuer
	Log           *logrus.Entry
}

//Poll the periodic action, the cursor is the highest event id seen so far
func (g *GitHub) Poll(ctx context.Context, cursor string) (string, error) {
	if g.Username == "" {
		return cursor, ErrNotConfigured
	}

	lastID, err := g.Store.LastID(ctx, eventsRequest)
	if err != nil {
		return cursor, err
	}
	if c, err := strconv.ParseInt(cursor, 10, 64); err == nil && c > lastID {
		lastID = c
	}

	highest, etag, err := g.pollEvents(ctx, lastID)
	if err != nil {
		return cursor, err
	}
	if highest > lastID {
		if err := g.Store.SaveLastID(ctx, eventsRequest, highest); err != nil {
			return cursor, err
		}
		lastID = highest
	}
	// only once the id is stored, otherwise a 304 would hide unprinted events
	if err := g.saveETag(ctx, eventsRequest, etag); err != nil {
		return strconv.FormatInt(lastID, 10), err
	}

	if err := g.pollFollowers(ctx); err != nil {
		return strconv.FormatInt(lastID, 10), err
	}
	return strconv.FormatInt(lastID, 10), nil
}

func (g *GitHub) pollEvents(ctx context.Context, lastID int64) (int64, string, error) {
	var events []ghEvent
	etag, changed, err := g.get(ctx, eventsRequest, "/users/"+g.Username+"/received_events", &events)
	if err != nil || !changed {
		return -1, "", err
	}

	highest := int64(-1)
	printed := 0
	// the api lists newest first, print oldest first
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		id, err := strconv.ParseInt(e.ID, 10, 64)
		if err != nil {
			g.Log.WithField("id", e.ID).Warn("Skipping event with bad id")
			continue
		}
		if id > highest {
			highest = id
		}
		if id <= lastID {
			continue
		}
		if g.SkipOrgEvents && e.Org != nil {
			continue
		}
		var line string
		switch e.Type {
		case "WatchEvent":
			line = e.Actor.Login + " starred repo " + e.Repo.Name
		case "ForkEvent":
			line = e.Actor.Login + " forked repo " + e.Repo.Name
		default:
			continue
		}
		if err := g.print(e.CreatedAt, line); err != nil {
			return highest, "", err
		}
		printed++
	}
	g.Log.WithFields(logrus.Fields{"events": len(events), "printed": printed}).Debug("Polled github events")
	return highest, etag, nil
}

func (g *GitHub) pollFollowers(ctx context.Context) error {
	var followers []ghUser
	etag, changed, err := g.get(ctx, followersRequest, "/users/"+g.Username+"/followers", &followers)
	if err != nil || !changed {
		return err
	}
	for _, f := range followers {
		if err := g.print("", "You were followed by "+f.Login); err != nil {
			return err
		}
	}
	return g.saveETag(ctx, followersRequest, etag)
}

func (g *GitHub) saveETag(ctx context.Context, request, etag string) error {
	if etag == "" {
		return nil
	}
	return g.Store.SaveETag(ctx, request, etag)
}

func (g *GitHub) print(timestamp, line string) error {
	jobs := []queue.Job{
		queue.PrintText(queue.Text{Text: fmt.Sprintf(" %-31s", "Github Event"), Inverse: true}, 0),
	}
	if timestamp != "" {
		jobs = append(jobs, queue.PrintText(queue.Text{Text: fmt.Sprintf("%-32s", timestamp), Underline: true}, 0))
	}
	jobs = append(jobs, queue.PrintText(queue.Text{Text: line}, githubFeed))
	return enqueue(g.Queue, jobs...)
}

//get a conditional request, false when the ETag still matches; the new ETag is left to the caller to store
func (g *GitHub) get(ctx context.Context, request, path string, out interface{}) (string, bool, error) {
	etag, err := g.Store.ETag(ctx, request)
	if err != nil {
		return "", false, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(g.URL, "/")+path, nil)
	if err != nil {
		return "", false, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if g.Token != "" {
		req.Header.Set("Authorization", "token "+g.Token)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", false, fmt.Errorf("github %s: %w", request, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotModified:
		return "", false, nil
	case http.StatusOK:
	default:
		return "", false, fmt.Errorf("github %s: unexpected status %s", request, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return "", false, fmt.Errorf("github %s: %w", request, err)
	}
	return resp.Header.Get("ETag"), true, nil
}
