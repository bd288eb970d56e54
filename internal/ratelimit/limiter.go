package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/config"
	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

// Limiter paces probes per target host. Each host gets its own token bucket
// plus a minimum spacing between consecutive probes, so parallel trials
// against one target share a single budget.
type Limiter struct {
	rps      rate.Limit
	burst    int
	minDelay time.Duration

	mu    sync.Mutex
	hosts map[string]*hostState
}

type hostState struct {
	bucket *rate.Limiter
	next   time.Time
}

var _ core.RateLimiter = (*Limiter)(nil)

// NewLimiter builds a limiter from the rate_limit configuration section.
// A zero RequestsPerSecond disables the token bucket; MinDelay still applies.
func NewLimiter(cfg config.RateLimitConfig) *Limiter {
	rps := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		rps = rate.Inf
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		rps:      rps,
		burst:    burst,
		minDelay: cfg.MinDelay,
		hosts:    make(map[string]*hostState),
	}
}

func (l *Limiter) state(host string) *hostState {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.hosts[host]
	if !ok {
		s = &hostState{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.hosts[host] = s
	}
	return s
}

// WaitForHost blocks until a probe to host is allowed.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	s := l.state(host)

	if err := s.bucket.Wait(ctx); err != nil {
		return err
	}
	if l.minDelay <= 0 {
		return nil
	}

	// Reserve the next slot under the lock and sleep outside it.
	l.mu.Lock()
	now := time.Now()
	slot := s.next
	if slot.Before(now) {
		slot = now
	}
	s.next = slot.Add(l.minDelay)
	l.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats returns current rate limiter statistics
func (l *Limiter) GetStats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		TrackedHosts: len(l.hosts),
		BurstSize:    l.burst,
		RequestDelay: l.minDelay,
	}
}

// Stats contains rate limiter statistics
type Stats struct {
	TrackedHosts int           `json:"tracked_hosts"`
	BurstSize    int           `json:"burst_size"`
	RequestDelay time.Duration `json:"request_delay"`
}
