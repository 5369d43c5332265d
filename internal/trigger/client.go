// Package trigger starts crawl runs remotely through a repository dispatch
// event and lists the resulting workflow runs.
package trigger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

const (
	// DefaultAPIBaseURL is the public GitHub REST endpoint.
	DefaultAPIBaseURL = "https://api.github.com"
	// DefaultEventType is the dispatch event the crawl workflow listens for.
	DefaultEventType = "crawl-task"

	acceptHeader = "application/vnd.github.v3+json"
	taskIDLayout = "20060102_150405"
	maxErrorBody = 4 << 10
)

// Config identifies the target repository.
type Config struct {
	Owner      string
	Repo       string
	Token      string
	APIBaseURL string
	EventType  string
}

// Task is one remotely triggered crawl.
type Task struct {
	Query       string
	Num         int
	SortMode    crawler.SortMode
	Cookies     string
	WebhookURL  string
	GetComments bool
	NoDelay     bool
}

// Payload is the client_payload carried by the dispatch event.
type Payload struct {
	Query       string           `json:"query"`
	Num         int              `json:"num"`
	SortType    crawler.SortMode `json:"sort_type"`
	Cookies     string           `json:"cookies"`
	WebhookURL  *string          `json:"webhook_url"`
	GetComments bool             `json:"get_comments"`
	NoDelay     bool             `json:"no_delay"`
	TriggerTime string           `json:"trigger_time"`
	TaskID      string           `json:"task_id"`
}

type dispatchBody struct {
	EventType     string  `json:"event_type"`
	ClientPayload Payload `json:"client_payload"`
}

// Dispatched describes an accepted dispatch.
type Dispatched struct {
	TaskID  string
	RunsURL string
	Payload Payload
}

// WorkflowRun is one entry of the workflow run listing.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	CreatedAt  time.Time `json:"created_at"`
	HTMLURL    string    `json:"html_url"`
}

// RunList is the workflow run listing.
type RunList struct {
	TotalCount int           `json:"total_count"`
	Runs       []WorkflowRun `json:"workflow_runs"`
}

// StatusError reports an unexpected HTTP status from the API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github api: HTTP %d: %s", e.Code, e.Body)
}

// Client talks to the GitHub REST API.
type Client struct {
	cfg    Config
	http   *http.Client
	clock  crawler.Clock
	logger *zap.Logger
}

// New builds a Client. A nil http client uses one with a 30s timeout.
func New(cfg Config, httpClient *http.Client, clock crawler.Clock, logger *zap.Logger) (*Client, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, errors.New("trigger: repository owner and name are required")
	}
	if cfg.Token == "" {
		return nil, errors.New("trigger: token is required")
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.EventType == "" {
		cfg.EventType = DefaultEventType
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if clock == nil {
		return nil, errors.New("trigger: clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{cfg: cfg, http: httpClient, clock: clock, logger: logger}, nil
}

// Dispatch fires the dispatch event for task. Only HTTP 204 is success.
func (c *Client) Dispatch(ctx context.Context, task Task) (Dispatched, error) {
	if strings.TrimSpace(task.Query) == "" {
		return Dispatched{}, errors.New("trigger: query is required")
	}
	if task.Num <= 0 {
		return Dispatched{}, fmt.Errorf("trigger: num must be > 0, got %d", task.Num)
	}
	now := c.clock.Now()
	payload := Payload{
		Query:       task.Query,
		Num:         task.Num,
		SortType:    task.SortMode,
		Cookies:     task.Cookies,
		GetComments: task.GetComments,
		NoDelay:     task.NoDelay,
		TriggerTime: now.Format(time.RFC3339),
		TaskID:      "github_" + now.Format(taskIDLayout),
	}
	if task.WebhookURL != "" {
		hook := task.WebhookURL
		payload.WebhookURL = &hook
	}
	body, err := json.Marshal(dispatchBody{EventType: c.cfg.EventType, ClientPayload: payload})
	if err != nil {
		return Dispatched{}, fmt.Errorf("encode dispatch: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, c.repoURL("dispatches"), bytes.NewReader(body))
	if err != nil {
		return Dispatched{}, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNoContent {
		return Dispatched{}, statusError(resp)
	}

	c.logger.Info("workflow dispatched",
		zap.String("repo", c.cfg.Owner+"/"+c.cfg.Repo),
		zap.String("event_type", c.cfg.EventType),
		zap.String("task_id", payload.TaskID),
		zap.String("query", payload.Query),
	)
	return Dispatched{
		TaskID:  payload.TaskID,
		RunsURL: fmt.Sprintf("https://github.com/%s/%s/actions", c.cfg.Owner, c.cfg.Repo),
		Payload: payload,
	}, nil
}

// ListRuns returns the first page of recent workflow runs.
func (c *Client) ListRuns(ctx context.Context, limit int) (RunList, error) {
	if limit <= 0 {
		limit = 10
	}
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(limit))
	q.Set("page", "1")

	resp, err := c.do(ctx, http.MethodGet, c.repoURL("actions/runs")+"?"+q.Encode(), nil)
	if err != nil {
		return RunList{}, err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return RunList{}, statusError(resp)
	}
	var out RunList
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return RunList{}, fmt.Errorf("decode workflow runs: %w", err)
	}
	return out, nil
}

func (c *Client) repoURL(suffix string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s",
		c.cfg.APIBaseURL, url.PathEscape(c.cfg.Owner), url.PathEscape(c.cfg.Repo), suffix)
}

func (c *Client) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "token "+c.cfg.Token)
	req.Header.Set("Accept", acceptHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github api %s: %w", method, err)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
}
