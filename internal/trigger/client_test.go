package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := New(Config{
		Owner:      "acme",
		Repo:       "spider",
		Token:      "tok",
		APIBaseURL: srv.URL + "/",
	}, srv.Client(), fixedClock{now: time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestDispatchSendsRepositoryEvent(t *testing.T) {
	t.Parallel()

	var got dispatchBody
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/repos/acme/spider/dispatches", r.URL.Path)
		assert.Equal(t, "token tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github.v3+json", r.Header.Get("Accept"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	})

	res, err := c.Dispatch(context.Background(), Task{
		Query:       "coffee",
		Num:         5,
		SortMode:    crawler.SortMostCommented,
		Cookies:     "a=1",
		WebhookURL:  "https://hook",
		GetComments: true,
	})
	require.NoError(t, err)
	require.Equal(t, "github_20250304_050607", res.TaskID)
	require.Equal(t, "https://github.com/acme/spider/actions", res.RunsURL)

	require.Equal(t, DefaultEventType, got.EventType)
	require.Equal(t, "coffee", got.ClientPayload.Query)
	require.Equal(t, 5, got.ClientPayload.Num)
	require.Equal(t, crawler.SortMostCommented, got.ClientPayload.SortType)
	require.NotNil(t, got.ClientPayload.WebhookURL)
	require.Equal(t, "https://hook", *got.ClientPayload.WebhookURL)
	require.True(t, got.ClientPayload.GetComments)
	require.Equal(t, "2025-03-04T05:06:07Z", got.ClientPayload.TriggerTime)
	require.Equal(t, res.TaskID, got.ClientPayload.TaskID)
}

func TestDispatchEncodesSortTypeAsCode(t *testing.T) {
	t.Parallel()

	var raw map[string]map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		w.WriteHeader(http.StatusNoContent)
	})
	_, err := c.Dispatch(context.Background(), Task{Query: "q", Num: 1, SortMode: crawler.SortLatest})
	require.NoError(t, err)
	require.Equal(t, float64(1), raw["client_payload"]["sort_type"])
	require.Nil(t, raw["client_payload"]["webhook_url"])
}

func TestDispatchRejectsNon204(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "Bad credentials", http.StatusUnauthorized)
	})
	_, err := c.Dispatch(context.Background(), Task{Query: "q", Num: 1})
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	require.Equal(t, http.StatusUnauthorized, statusErr.Code)
	require.Contains(t, statusErr.Body, "Bad credentials")
}

func TestDispatchValidatesTask(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Dispatch(context.Background(), Task{Query: " ", Num: 1})
	require.Error(t, err)
	_, err = c.Dispatch(context.Background(), Task{Query: "q"})
	require.Error(t, err)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/repos/acme/spider/actions/runs", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("per_page"))
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"total_count":7,"workflow_runs":[
			{"id":11,"name":"crawl","status":"completed","conclusion":"success","created_at":"2025-03-04T05:06:07Z","html_url":"https://github.com/acme/spider/actions/runs/11"}
		]}`))
	})

	list, err := c.ListRuns(context.Background(), 3)
	require.NoError(t, err)
	require.Equal(t, 7, list.TotalCount)
	require.Len(t, list.Runs, 1)
	require.Equal(t, int64(11), list.Runs[0].ID)
	require.Equal(t, "success", list.Runs[0].Conclusion)
	require.Equal(t, time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC), list.Runs[0].CreatedAt)
}

func TestListRunsStatusError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.ListRuns(context.Background(), 0)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusNotFound, statusErr.Code)
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	clock := fixedClock{}
	_, err := New(Config{Repo: "r", Token: "t"}, nil, clock, nil)
	require.Error(t, err)
	_, err = New(Config{Owner: "o", Repo: "r"}, nil, clock, nil)
	require.Error(t, err)
	_, err = New(Config{Owner: "o", Repo: "r", Token: "t"}, nil, nil, nil)
	require.Error(t, err)

	c, err := New(Config{Owner: "o", Repo: "r", Token: "t"}, nil, clock, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultAPIBaseURL, c.cfg.APIBaseURL)
	require.Equal(t, DefaultEventType, c.cfg.EventType)
}
