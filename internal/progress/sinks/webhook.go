package sinks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JunJD/xiuer-spider/internal/progress"
)

// SignatureHeader carries the HMAC-SHA256 of the request body when a secret
// is configured.
const SignatureHeader = "X-Xiuer-Signature"

// DefaultWebhookRetryDelays are the waits before each delivery attempt.
var DefaultWebhookRetryDelays = []time.Duration{0, time.Second, 5 * time.Second}

// WebhookConfig configures WebhookSink.
type WebhookConfig struct {
	URL     string
	Secret  string
	Timeout time.Duration
	// RetryDelays lists the wait before each attempt; its length is the
	// attempt budget.
	RetryDelays []time.Duration
}

// WebhookSink POSTs each lifecycle event as JSON.
type WebhookSink struct {
	cfg    WebhookConfig
	client *http.Client
	logger *zap.Logger
}

// NewWebhookSink builds a WebhookSink. A nil client uses one with cfg.Timeout.
func NewWebhookSink(cfg WebhookConfig, client *http.Client, logger *zap.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = DefaultWebhookRetryDelays
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookSink{cfg: cfg, client: client, logger: logger}, nil
}

// Deliver sends evt, retrying per the configured delays.
func (s *WebhookSink) Deliver(ctx context.Context, evt progress.LifecycleEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	var lastErr error
	for attempt, delay := range s.cfg.RetryDelays {
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("webhook delivery canceled: %w", ctx.Err())
			case <-timer.C:
			}
		}
		lastErr = s.post(ctx, evt, body)
		if lastErr == nil {
			s.logger.Debug("webhook delivered",
				zap.String("run_id", evt.RunID),
				zap.String("status", string(evt.Status)),
				zap.Int("attempt", attempt+1),
			)
			return nil
		}
		s.logger.Warn("webhook delivery attempt failed",
			zap.String("run_id", evt.RunID),
			zap.String("status", string(evt.Status)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}
	return fmt.Errorf("webhook delivery exhausted %d attempts: %w", len(s.cfg.RetryDelays), lastErr)
}

func (s *WebhookSink) post(ctx context.Context, evt progress.LifecycleEvent, body []byte) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "xiuer-spider-webhook/1.0")
	req.Header.Set("X-Xiuer-Run-ID", evt.RunID)
	req.Header.Set("X-Xiuer-Status", string(evt.Status))
	if s.cfg.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(s.cfg.Secret, body))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
