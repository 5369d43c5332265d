// Package gateway implements crawler.Upstream against an HTTP signing gateway.
//
// The gateway owns request signing and exposes three JSON endpoints,
// POST /search, POST /detail and POST /comments. Each replies with an
// envelope of the form {"success": bool, "msg": string, "data": ...}.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

const maxBodyBytes = 16 << 20

// Config controls the gateway client.
type Config struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
}

// Client satisfies crawler.Upstream.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   *RetryPolicy
	logger  *zap.Logger
}

// New builds a Client. A nil httpClient gets one with cfg.Timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("gateway base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		retry:   NewRetryPolicy(cfg.MaxRetries),
		logger:  logger,
	}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

type searchBody struct {
	Keyword     string            `json:"keyword"`
	Num         int               `json:"num"`
	SortType    string            `json:"sort_type"`
	NoteType    int               `json:"note_type"`
	NoteTime    int               `json:"note_time"`
	NoteRange   int               `json:"note_range"`
	PosDistance int               `json:"pos_distance"`
	Geo         *crawler.GeoPoint `json:"geo,omitempty"`
	Cookies     string            `json:"cookies"`
}

type detailBody struct {
	URL     string `json:"url"`
	Cookies string `json:"cookies"`
}

type commentsBody struct {
	NoteID    string `json:"note_id"`
	XsecToken string `json:"xsec_token"`
	Cookies   string `json:"cookies"`
}

// Search runs one keyword search.
func (c *Client) Search(ctx context.Context, req crawler.SearchRequest) ([]crawler.RawItem, error) {
	body := searchBody{
		Keyword:     req.Query,
		Num:         req.Count,
		SortType:    req.SortMode.UpstreamValue(),
		NoteType:    req.Filters.NoteType,
		NoteTime:    req.Filters.NoteTime,
		NoteRange:   req.Filters.NoteRange,
		PosDistance: req.Filters.PosDistance,
		Geo:         req.Filters.Geo,
		Cookies:     req.Credential.Cookies,
	}
	data, err := c.call(ctx, crawler.OpSearch, "/search", body)
	if err != nil {
		return nil, err
	}
	items, err := decodeItems(data, "items", "notes")
	if err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpSearch, "", err)
	}
	return items, nil
}

// FetchDetail resolves the note card behind noteURL.
func (c *Client) FetchDetail(ctx context.Context, noteURL string, cred crawler.Credential) (crawler.RawItem, error) {
	data, err := c.call(ctx, crawler.OpDetail, "/detail", detailBody{URL: noteURL, Cookies: cred.Cookies})
	if err != nil {
		return nil, err
	}
	if items, err := decodeItems(data, "items"); err == nil {
		if len(items) == 0 {
			return nil, crawler.NewUpstreamError(crawler.OpDetail, "empty detail payload", nil)
		}
		return items[0], nil
	}
	var item crawler.RawItem
	if err := json.Unmarshal(data, &item); err != nil || item == nil {
		return nil, crawler.NewUpstreamError(crawler.OpDetail, "empty detail payload", err)
	}
	return item, nil
}

// FetchComments lists every comment of a note.
func (c *Client) FetchComments(
	ctx context.Context,
	noteID, xsecToken string,
	cred crawler.Credential,
) ([]crawler.RawItem, error) {
	body := commentsBody{NoteID: noteID, XsecToken: xsecToken, Cookies: cred.Cookies}
	data, err := c.call(ctx, crawler.OpComments, "/comments", body)
	if err != nil {
		return nil, err
	}
	items, err := decodeItems(data, "comments")
	if err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpComments, "", err)
	}
	return items, nil
}

// call posts body to path, retrying transient failures, and returns the
// envelope data of a successful reply.
func (c *Client) call(ctx context.Context, op crawler.Op, path string, body any) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, crawler.NewUpstreamError(op, "", fmt.Errorf("marshal request: %w", err))
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		env, err := c.post(ctx, path, payload)
		if err == nil {
			if !env.Success {
				msg := env.Msg
				if msg == "" {
					msg = "gateway reported failure"
				}
				return nil, crawler.NewUpstreamError(op, msg, nil)
			}
			return env.Data, nil
		}
		lastErr = err
		if !c.retry.ShouldRetry(err, attempt) {
			break
		}
		wait := c.retry.Backoff(attempt)
		c.logger.Debug("retrying gateway call",
			zap.String("op", string(op)),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, crawler.NewUpstreamError(op, "", ctx.Err())
		case <-timer.C:
		}
	}
	return nil, crawler.NewUpstreamError(op, "", lastErr)
}

func (c *Client) post(ctx context.Context, path string, payload []byte) (envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return envelope{}, fmt.Errorf("rate limit wait: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return envelope{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return envelope{}, fmt.Errorf("post %s: %w", path, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close gateway body", zap.Error(cerr))
		}
	}()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return envelope{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return envelope{}, &statusError{code: resp.StatusCode}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// decodeItems accepts either a bare array or an object wrapping the array
// under one of keys.
func decodeItems(data json.RawMessage, keys ...string) ([]crawler.RawItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []crawler.RawItem{}, nil
	}
	if trimmed[0] == '[' {
		var items []crawler.RawItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode items: %w", err)
		}
		return items, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	for _, key := range keys {
		inner, ok := wrapped[key]
		if !ok {
			continue
		}
		var items []crawler.RawItem
		if err := json.Unmarshal(inner, &items); err != nil {
			return nil, fmt.Errorf("decode %s: %w", key, err)
		}
		if items == nil {
			items = []crawler.RawItem{}
		}
		return items, nil
	}
	return nil, fmt.Errorf("decode items: none of %v present", keys)
}
