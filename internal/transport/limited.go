package transport

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/clguess/internal/core"
)

// RateLimited waits on a per-host limiter before every send.
type RateLimited struct {
	next    core.Transport
	limiter core.RateLimiter
}

var _ core.Transport = (*RateLimited)(nil)

func NewRateLimited(next core.Transport, limiter core.RateLimiter) *RateLimited {
	return &RateLimited{next: next, limiter: limiter}
}

func (r *RateLimited) Send(ctx context.Context, target core.Target, raw []byte) ([]byte, error) {
	if err := r.limiter.WaitForHost(ctx, target.Host); err != nil {
		return nil, err
	}
	return r.next.Send(ctx, target, raw)
}
