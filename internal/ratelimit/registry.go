// Package ratelimit implements the Rate-Limit Registry (§4.E): per-table
// token-bucket limiters, created lazily on first Acquire, each replenishing
// at a uniform rate over a sliding 60-second window.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Registry holds one token bucket per table key, shared and internally
// synchronized — acquire calls are the only writers.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	configs  map[string]int
}

// New returns an empty Registry. Per-table limits are supplied via
// configs (table -> callsPerMinute); a table absent from configs falls
// back to defaultCallsPerMinute on first Acquire.
func New(configs map[string]int) *Registry {
	cfg := make(map[string]int, len(configs))
	for k, v := range configs {
		cfg[k] = v
	}
	return &Registry{
		limiters: make(map[string]*rate.Limiter),
		configs:  cfg,
	}
}

const defaultCallsPerMinute = 60

// Acquire blocks the caller until one token is available under key's
// limiter, or until ctx is canceled. Limiters are created lazily;
// golang.org/x/time/rate serializes reservations under its own mutex, so
// waiters are granted slots in the order they call Acquire (FCFS).
func (r *Registry) Acquire(ctx context.Context, key string) error {
	return r.limiterFor(key).Wait(ctx)
}

func (r *Registry) limiterFor(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.limiters[key]; ok {
		return l
	}

	callsPerMinute := r.configs[key]
	if callsPerMinute <= 0 {
		callsPerMinute = defaultCallsPerMinute
	}
	perSecond := rate.Limit(float64(callsPerMinute) / 60.0)
	// Burst 1: x/time/rate starts a new limiter with a full bucket, so any
	// larger burst lets the first minute exceed callsPerMinute.
	l := rate.NewLimiter(perSecond, 1)
	r.limiters[key] = l
	return l
}
