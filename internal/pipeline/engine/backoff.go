package engine

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// BackoffConfig configures the delay between retries at any scope. The zero
// value means no delay, which keeps retries immediate unless a run opts in.
type BackoffConfig struct {
	InitialDelayMS int
	BackoffFactor  float64
	MaxDelayMS     int
	Jitter         bool
}

func (cfg BackoffConfig) normalized() BackoffConfig {
	if cfg.InitialDelayMS < 0 {
		cfg.InitialDelayMS = 0
	}
	if cfg.MaxDelayMS < 0 {
		cfg.MaxDelayMS = 0
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = 1.0
	}
	return cfg
}

// DelayForAttempt computes the capped exponential delay before the given
// retry. attempt is 1-indexed: the first retry is attempt=1. Jitter is
// deterministic per seed so runs stay reproducible.
func DelayForAttempt(attempt int, cfg BackoffConfig, jitterSeed string) time.Duration {
	cfg = cfg.normalized()
	if attempt < 1 {
		attempt = 1
	}
	if cfg.InitialDelayMS <= 0 {
		return 0
	}

	// base = initial * factor^(attempt-1), capped.
	baseMS := float64(cfg.InitialDelayMS) * math.Pow(cfg.BackoffFactor, float64(attempt-1))
	if cfg.MaxDelayMS > 0 {
		baseMS = math.Min(baseMS, float64(cfg.MaxDelayMS))
	}

	// Apply jitter after capping.
	if cfg.Jitter {
		m := 0.5 + jitterUnit(jitterSeed) // [0.5, 1.5]
		baseMS *= m
	}

	if baseMS < 0 {
		baseMS = 0
	}
	return time.Duration(baseMS * float64(time.Millisecond))
}

func jitterUnit(seed string) float64 {
	sum := sha256.Sum256([]byte(seed))
	u := binary.BigEndian.Uint64(sum[:8])
	return float64(u) / float64(^uint64(0))
}

func (x *Executor) backoffDelay(runID, protocol, componentID string, attempt int) time.Duration {
	seed := fmt.Sprintf("%s:%s:%s:%d", runID, protocol, componentID, attempt)
	return DelayForAttempt(attempt, x.opts.Backoff, seed)
}

// sleepFor waits out a retry delay but returns early on cancellation.
func sleepFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
