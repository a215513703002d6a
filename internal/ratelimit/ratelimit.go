// Package ratelimit throttles outbound connections per remote host using a
// token-bucket limiter, so a single misbehaving provider cannot starve
// connections meant for other hosts sharing the same worker pool.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// HostLimiter keeps one token-bucket limiter per remote host.
type HostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	ratePerSecond float64
	burst         int
}

// NewHostLimiter returns a HostLimiter allowing ratePerSecond operations per
// second per host, with the given burst allowance.
func NewHostLimiter(ratePerSecond float64, burst int) *HostLimiter {
	return &HostLimiter{
		limiters:      make(map[string]*rate.Limiter),
		ratePerSecond: ratePerSecond,
		burst:         burst,
	}
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()

	l, ok := h.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(h.ratePerSecond), h.burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until a token for host is available or ctx is cancelled.
func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	return h.limiterFor(host).Wait(ctx)
}

// Allow reports whether an operation against host may proceed immediately,
// consuming a token if so, without blocking.
func (h *HostLimiter) Allow(host string) bool {
	return h.limiterFor(host).Allow()
}
