package pacing

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
)

// Pauser blocks the caller for a delay or until ctx ends.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser blocks on a timer.
type TimerPauser struct{}

// Pause waits for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Config holds the delay bounds in seconds.
type Config struct {
	Enabled    bool
	MinSeconds float64
	MaxSeconds float64
}

// Pacer draws delays from the scheduler and blocks through a Pauser.
// It is not safe for concurrent use; a run owns its pacer.
type Pacer struct {
	cfg    Config
	rng    Rand
	pauser Pauser
	logger *zap.Logger
}

// NewPacer builds a Pacer. A nil pauser blocks on timers; a nil rng is seeded
// from the runtime source.
func NewPacer(cfg Config, rng Rand, pauser Pauser, logger *zap.Logger) *Pacer {
	if rng == nil {
		rng = NewRand(rand.Uint64())
	}
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pacer{cfg: cfg, rng: rng, pauser: pauser, logger: logger}
}

// Enabled reports whether the pacer ever blocks.
func (p *Pacer) Enabled() bool { return p.cfg.Enabled }

// Wait blocks before request index. The first request and disabled pacers
// never wait. It returns the delay applied.
func (p *Pacer) Wait(ctx context.Context, index int) time.Duration {
	if !p.cfg.Enabled || index == 1 {
		return 0
	}
	d := Decide(index, p.rng, p.cfg.MinSeconds, p.cfg.MaxSeconds)
	delay := seconds(d.Seconds)
	p.logger.Debug("pacing delay",
		zap.Int("index", index),
		zap.String("branch", d.Branch.String()),
		zap.Bool("burst", d.Burst),
		zap.Duration("delay", delay),
	)
	p.pauser.Pause(ctx, delay)
	return delay
}

// Pause blocks for a flat delay drawn from the configured bounds.
func (p *Pacer) Pause(ctx context.Context) time.Duration {
	if !p.cfg.Enabled {
		return 0
	}
	delay := seconds(Uniform(p.rng, p.cfg.MinSeconds, p.cfg.MaxSeconds))
	p.pauser.Pause(ctx, delay)
	return delay
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
