// Package page implements crawler.DetailFetcher by reading the public note
// page with colly and decoding the state object embedded in it.
package page

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/crawler"
)

const stateMarker = "window.__INITIAL_STATE__"

var errNoState = errors.New("initial state not found in page")

// Limiter paces page visits.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config controls collector behavior. Limiter is optional.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Limiter   Limiter
}

// Fetcher implements crawler.DetailFetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnHTML(string, colly.HTMLCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	return &Fetcher{cfg: cfg, baseCollector: c, logger: logger}
}

// FetchDetail visits noteURL and returns the note card found in its
// embedded state, shaped like a search item: {id, xsec_token, note_card}.
func (f *Fetcher) FetchDetail(ctx context.Context, noteURL string, cred crawler.Credential) (crawler.RawItem, error) {
	var (
		script   string
		fetchErr error
	)
	if f.cfg.Limiter != nil {
		if err := f.cfg.Limiter.Wait(ctx, noteURL); err != nil {
			return nil, crawler.NewUpstreamError(crawler.OpDetail, "", err)
		}
	}
	collector := f.buildCollector(cred, &script, &fetchErr)
	if err := f.runCollector(ctx, collector, noteURL, &fetchErr); err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpDetail, "", err)
	}
	if script == "" {
		return nil, crawler.NewUpstreamError(crawler.OpDetail, "", errNoState)
	}

	noteID, token := parseNoteURL(noteURL)
	item, err := extractNote(script, noteID)
	if err != nil {
		return nil, crawler.NewUpstreamError(crawler.OpDetail, "", err)
	}
	if token != "" {
		item["xsec_token"] = token
	}
	f.logger.Debug("note page decoded", zap.String("note_id", noteID))
	return item, nil
}

func (f *Fetcher) buildCollector(cred crawler.Credential, script *string, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	configureCollectorHooks(collector, cred, script, fetchErr)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, cred crawler.Credential, script *string, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		if !cred.Empty() {
			r.Headers.Set("Cookie", cred.Cookies)
		}
	})

	hooks.OnHTML("script", func(e *colly.HTMLElement) {
		if *script != "" {
			return
		}
		text := strings.TrimSpace(e.Text)
		if strings.HasPrefix(text, stateMarker) {
			*script = text
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, target string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(target)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("note page fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

var undefinedLiteral = regexp.MustCompile(`([:\[,]\s*)undefined\b`)

// extractNote decodes the state assignment and returns the note entry for
// noteID, or the first entry when noteID is empty or absent.
func extractNote(script, noteID string) (crawler.RawItem, error) {
	body := strings.TrimPrefix(script, stateMarker)
	body = strings.TrimSpace(body)
	body = strings.TrimPrefix(body, "=")
	body = strings.TrimSuffix(strings.TrimSpace(body), ";")
	body = undefinedLiteral.ReplaceAllString(body, "${1}null")

	var state map[string]any
	if err := json.Unmarshal([]byte(body), &state); err != nil {
		return nil, fmt.Errorf("decode initial state: %w", err)
	}
	noteState, _ := state["note"].(map[string]any)
	details, _ := noteState["noteDetailMap"].(map[string]any)
	if len(details) == 0 {
		return nil, fmt.Errorf("initial state has no note details")
	}

	entry, ok := details[noteID].(map[string]any)
	if !ok {
		if first, _ := noteState["firstNoteId"].(string); first != "" {
			entry, ok = details[first].(map[string]any)
			noteID = first
		}
	}
	if !ok {
		for id, v := range details {
			if m, isMap := v.(map[string]any); isMap {
				entry, ok, noteID = m, true, id
				break
			}
		}
	}
	card, _ := entry["note"].(map[string]any)
	if !ok || len(card) == 0 {
		return nil, fmt.Errorf("note %s missing from initial state", noteID)
	}

	snake, _ := snakeKeys(card).(map[string]any)
	if id, _ := snake["note_id"].(string); id != "" {
		noteID = id
	}
	item := crawler.RawItem{"id": noteID, "note_card": snake}
	if token, _ := snake["xsec_token"].(string); token != "" {
		item["xsec_token"] = token
	}
	return item, nil
}

// snakeKeys rewrites camelCase object keys to snake_case, recursively, so
// page state matches the field names search results use.
func snakeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[toSnake(k)] = snakeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = snakeKeys(val)
		}
		return out
	default:
		return v
	}
}

func toSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 4)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseNoteURL(raw string) (noteID, token string) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", ""
	}
	if u.Path != "" && u.Path != "/" {
		noteID = path.Base(u.Path)
	}
	return noteID, u.Query().Get("xsec_token")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
	}
}
