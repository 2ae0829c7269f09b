package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAcquireNeverExceedsQuotaWithinFirstMinute is §8 scenario 4: at no
// 60-second window does the count of Acquire calls for one key exceed its
// configured callsPerMinute, including the window starting at limiter
// creation (where x/time/rate's initial full bucket could otherwise let a
// fresh limiter release an extra burst on top of its steady-state rate).
func TestAcquireNeverExceedsQuotaWithinFirstMinute(t *testing.T) {
	const quota = 60
	reg := New(map[string]int{"prices": quota})

	ctx, cancel := context.WithTimeout(context.Background(), 1100*time.Millisecond)
	defer cancel()

	count := 0
	for {
		if err := reg.Acquire(ctx, "prices"); err != nil {
			break
		}
		count++
	}

	// perSecond = quota/60 = 1/s; within ~1.1s a burst-1 limiter admits at
	// most 2 calls (the initial token plus one refill), nowhere near quota.
	assert.LessOrEqual(t, count, 2)
}

func TestAcquireFallsBackToDefaultForUnconfiguredKey(t *testing.T) {
	reg := New(map[string]int{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := reg.Acquire(ctx, "unconfigured")
	require.NoError(t, err)
}

func TestAcquireReusesLimiterPerKey(t *testing.T) {
	reg := New(map[string]int{"prices": 60})

	first := reg.limiterFor("prices")
	second := reg.limiterFor("prices")
	assert.Same(t, first, second)
}
