package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/marketlake/marketlake/internal/config"
)

func TestDelayForFixed(t *testing.T) {
	policy := config.RetryPolicy{BaseDelayMS: 1000, Backoff: config.BackoffFixed, MaxDelayMS: 60000}
	d := delayFor(policy, 3)
	assert.InDelta(t, time.Second, d, float64(150*time.Millisecond))
}

func TestDelayForExponentialGrowsAndCaps(t *testing.T) {
	policy := config.RetryPolicy{BaseDelayMS: 100, Backoff: config.BackoffExponential, Factor: 2, MaxDelayMS: 500}
	d1 := delayFor(policy, 1)
	d5 := delayFor(policy, 5)
	assert.LessOrEqual(t, d5, 550*time.Millisecond, "delay must respect the max delay cap plus jitter")
	assert.Greater(t, d5, d1/2)
}

func TestDelayForLinearScalesWithAttempt(t *testing.T) {
	policy := config.RetryPolicy{BaseDelayMS: 100, Backoff: config.BackoffLinear, Factor: 1, MaxDelayMS: 10000}
	d1 := delayFor(policy, 1)
	d3 := delayFor(policy, 3)
	assert.Greater(t, d3, d1)
}
