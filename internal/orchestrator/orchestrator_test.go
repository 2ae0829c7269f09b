package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlake/marketlake/internal/lake"
	"github.com/marketlake/marketlake/internal/maintenance"
	"github.com/marketlake/marketlake/internal/planner"
	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/statestore"
	"github.com/marketlake/marketlake/internal/worker"
)

func TestSummaryExitCode(t *testing.T) {
	cases := []struct {
		name string
		s    Summary
		want int
	}{
		{"success", Summary{}, 0},
		{"aborted takes priority", Summary{Aborted: true, Failed: map[string]int{"prices": 1}}, 2},
		{"any failure is fatal", Summary{Failed: map[string]int{"prices": 1}}, 1},
		{"partial with no failures", Summary{Partial: true}, 3},
		{"partial is masked by failure", Summary{Partial: true, Failed: map[string]int{"prices": 2}}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.s.ExitCode())
		})
	}
}

func TestLastRunKeyIsPerGroup(t *testing.T) {
	assert.Equal(t, "lastrun:us_equities", lastRunKey("us_equities"))
	assert.NotEqual(t, lastRunKey("us_equities"), lastRunKey("fx"))
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// TestRunWithOverrideEntitiesDoesNotAdvanceLastRun is §8 scenario 5: a
// successful run restricted to an explicit overrideEntities set must not
// advance lastRunTimestamp for the group, even though nothing failed.
func TestRunWithOverrideEntitiesDoesNotAdvanceLastRun(t *testing.T) {
	registry, err := schema.New(nil)
	require.NoError(t, err)

	layout := lake.New(t.TempDir())
	store, err := statestore.New(t.TempDir())
	require.NoError(t, err)
	cache, err := maintenance.LoadRefreshCache(store)
	require.NoError(t, err)

	clock := fixedClock{t: time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)}
	plan := planner.New(registry, nil, nil, clock, nil)

	writeCh := make(chan worker.WriteJob, 8)
	fastPool := worker.NewFastPool(registry, nil, nil, nil, writeCh, 1, nil)
	slowPool := worker.NewSlowPool(registry, nil, 1, nil)
	viewRefresh := maintenance.NewViewRefresher(nil, layout, cache)
	scheduler := maintenance.NewScheduler(registry, nil, viewRefresh, 0, time.Hour, nil)

	orch := New(plan, fastPool, slowPool, scheduler, viewRefresh, registry, store, nil)
	orch.Clock = clock

	group := planner.GroupConfig{}
	summary, err := orch.Run(context.Background(), group, "scenario5", []string{"AAPL"})
	require.NoError(t, err)

	assert.True(t, summary.Partial)
	assert.Equal(t, 3, summary.ExitCode())

	var record lastRunRecord
	found, err := store.Load(lastRunKey("scenario5"), &record)
	require.NoError(t, err)
	assert.False(t, found, "a run restricted to overrideEntities must not advance lastRunTimestamp")
}
