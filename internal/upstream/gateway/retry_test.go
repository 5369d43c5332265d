package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestRetryPolicyShouldRetry(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(2)
	tests := []struct {
		name    string
		err     error
		attempt int
		want    bool
	}{
		{name: "nil error", err: nil, attempt: 1, want: false},
		{name: "server error", err: &statusError{code: http.StatusInternalServerError}, attempt: 1, want: true},
		{name: "too many requests", err: &statusError{code: http.StatusTooManyRequests}, attempt: 2, want: true},
		{name: "attempts exhausted", err: &statusError{code: http.StatusBadGateway}, attempt: 3, want: false},
		{name: "client error", err: &statusError{code: http.StatusNotFound}, attempt: 1, want: false},
		{name: "wrapped timeout", err: fmt.Errorf("post: %w", timeoutErr{}), attempt: 1, want: true},
		{name: "canceled", err: context.Canceled, attempt: 1, want: false},
		{name: "plain error", err: errors.New("decode envelope"), attempt: 1, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, p.ShouldRetry(tt.err, tt.attempt))
		})
	}
}

func TestRetryPolicyBackoffBounds(t *testing.T) {
	t.Parallel()

	p := NewRetryPolicy(5)
	for attempt := 1; attempt <= 6; attempt++ {
		d := p.Backoff(attempt)
		require.GreaterOrEqual(t, d, time.Duration(0))
		require.LessOrEqual(t, d, p.maxDelay)
	}
	require.Equal(t, 1, NewRetryPolicy(-3).maxAttempts)
}
