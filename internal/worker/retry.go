// Package worker implements the Fast Worker Pool (§4.H) and the Slow
// Worker Pool (§4.I): bounded-concurrency consumers either side of the
// fetch and write queues.
package worker

import (
	"math/rand"
	"time"

	"github.com/marketlake/marketlake/internal/config"
)

// delayFor computes the retry delay for attempt n (1-indexed) per a
// table's retry policy, capped at MaxDelayMS and jittered by ±10%.
func delayFor(policy config.RetryPolicy, attempt int) time.Duration {
	base := time.Duration(policy.BaseDelayMS) * time.Millisecond
	var d time.Duration
	switch policy.Backoff {
	case config.BackoffFixed:
		d = base
	case config.BackoffLinear:
		d = time.Duration(float64(base) * float64(attempt) * policy.Factor)
	case config.BackoffExponential:
		factor := policy.Factor
		if factor <= 0 {
			factor = 2
		}
		d = time.Duration(float64(base) * pow(factor, attempt-1))
	default:
		d = base
	}

	if maxDelay := time.Duration(policy.MaxDelayMS) * time.Millisecond; maxDelay > 0 && d > maxDelay {
		d = maxDelay
	}
	return jitter(d)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// jitter applies up to ±10% random variance to d.
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	spread := float64(d) * 0.1
	offset := (rand.Float64()*2 - 1) * spread
	return d + time.Duration(offset)
}
