package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestLimiterWaitSpacesRequestsPerHost(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 20, DefaultBurst: 1})
	reg := prometheus.NewRegistry()
	if err := l.Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ctx := context.Background()

	if err := l.Wait(ctx, "https://www.xiaohongshu.com/explore/a"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	// other hosts have their own bucket
	start := time.Now()
	if err := l.Wait(ctx, "https://edith.xiaohongshu.com/api"); err != nil {
		t.Fatalf("other host wait: %v", err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Fatalf("expected no wait for a fresh host, took %v", time.Since(start))
	}

	start = time.Now()
	if err := l.Wait(ctx, "https://WWW.xiaohongshu.com/explore/b"); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatalf("expected the second request to the same host to wait, took %v", time.Since(start))
	}
	n, err := testutil.GatherAndCount(reg, "xiuer_rate_limit_delay_seconds")
	if err != nil {
		t.Fatalf("GatherAndCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected one host series, got %d", n)
	}
}

func TestLimiterWaitCanceled(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 0.01, DefaultBurst: 1})
	ctx, cancel := context.WithCancel(context.Background())
	if err := l.Wait(ctx, "https://example.com"); err != nil {
		t.Fatalf("first wait: %v", err)
	}
	cancel()
	if err := l.Wait(ctx, "https://example.com"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 50; i++ {
		if err := l.Wait(context.Background(), "::bad url"); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if _, ok := l.limiters["unknown"]; !ok {
		t.Fatalf("expected unparsable urls to share the unknown bucket")
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	if err := New(Config{}).Register(reg); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := New(Config{}).Register(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}
