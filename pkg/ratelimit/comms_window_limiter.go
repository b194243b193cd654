// Package ratelimit provides rate limiting for metered external API calls.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"comms_server/pkg/apperr"
)

// =============================================================================
// Fixed Window Limiter with High-Priority Carve-Out
// =============================================================================

// Config holds limiter configuration.
type Config struct {
	Limit              int           // admitted requests per window (default: 60)
	Window             time.Duration // window duration (default: 60s)
	HighPriorityFactor float64       // overage factor for high-priority calls (default: 1.1)
}

// DefaultConfig returns default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Limit:              60,
		Window:             60 * time.Second,
		HighPriorityFactor: 1.1,
	}
}

// FixedWindowLimiter admits up to Limit calls per fixed window. High-priority
// callers are admitted up to ceil(Limit * HighPriorityFactor) so emergency-path
// calls are not starved by background traffic; everyone else blocks until the
// window resets.
type FixedWindowLimiter struct {
	name      string
	limit     int
	highLimit int
	window    time.Duration

	mu          sync.Mutex
	windowStart time.Time
	count       int

	// onOverage is invoked (outside the lock) when a high-priority call is
	// admitted beyond the normal limit.
	onOverage func(name string, count, limit int)
}

// NewFixedWindowLimiter creates a limiter for the named dependency.
func NewFixedWindowLimiter(name string, cfg Config) *FixedWindowLimiter {
	if cfg.Limit <= 0 {
		cfg.Limit = 60
	}
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.HighPriorityFactor < 1.0 {
		cfg.HighPriorityFactor = 1.1
	}
	return &FixedWindowLimiter{
		name:      name,
		limit:     cfg.Limit,
		highLimit: int(math.Ceil(float64(cfg.Limit) * cfg.HighPriorityFactor)),
		window:    cfg.Window,
	}
}

// OnOverage sets a hook fired when the high-priority carve-out is used.
func (l *FixedWindowLimiter) OnOverage(fn func(name string, count, limit int)) {
	l.mu.Lock()
	l.onOverage = fn
	l.mu.Unlock()
}

// Acquire blocks until the caller is admitted into the current window.
// High-priority callers are admitted up to the carve-out without waiting.
// The wait is bounded by ctx; on expiry RATE_LIMIT_WAIT_TIMEOUT is returned.
func (l *FixedWindowLimiter) Acquire(ctx context.Context, highPriority bool) error {
	for {
		l.mu.Lock()
		now := time.Now()

		if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
			l.windowStart = now
			l.count = 0
		}

		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}

		if highPriority && l.count < l.highLimit {
			l.count++
			count := l.count
			overage := l.onOverage
			l.mu.Unlock()
			if overage != nil {
				overage(l.name, count, l.limit)
			}
			return nil
		}

		wait := l.windowStart.Add(l.window).Sub(now)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return apperr.RateLimitWaitTimeout(l.name).WithError(ctx.Err())
		case <-time.After(wait):
		}
	}
}

// Snapshot is the limiter state at a point in time, attached to ephemeral
// per-call records for observability.
type Snapshot struct {
	Count       int
	Limit       int
	HighLimit   int
	WindowStart time.Time
}

// Stats returns a snapshot of the current window.
func (l *FixedWindowLimiter) Stats() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		Count:       l.count,
		Limit:       l.limit,
		HighLimit:   l.highLimit,
		WindowStart: l.windowStart,
	}
}
