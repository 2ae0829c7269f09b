// Package orchestrator wires the Schema Registry, Data Lake Layout,
// Parquet Writer, Rate-Limit Registry, Fetcher, Task Planner, Fast and
// Slow Worker Pools, and Maintenance Worker together (§4.K), and
// coordinates a single run's lifecycle and shutdown.
package orchestrator

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/marketlake/marketlake/internal/maintenance"
	"github.com/marketlake/marketlake/internal/planner"
	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/statestore"
	"github.com/marketlake/marketlake/internal/worker"
)

// Summary reports a run's outcome (§7 "User-visible behavior").
type Summary struct {
	Succeeded map[string]int
	Failed    map[string]int
	Empty     map[string]int
	Aborted   bool
	AbortErr  error
	Partial   bool
}

// ExitCode maps a Summary to the process exit code (§7):
// 0 success, 1 fatal-local occurred, 2 planning aborted, 3 partial run.
func (s Summary) ExitCode() int {
	if s.Aborted {
		return 2
	}
	total := 0
	for _, n := range s.Failed {
		total += n
	}
	if total > 0 {
		return 1
	}
	if s.Partial {
		return 3
	}
	return 0
}

// lastRunRecord is what gets persisted per group so the next Plan() call
// knows whether a run actually completed.
type lastRunRecord struct {
	CompletedAt time.Time
}

func lastRunKey(groupName string) string {
	return "lastrun:" + groupName
}

// Orchestrator owns the queues, pools, and maintenance scheduler for one
// configured pipeline.
type Orchestrator struct {
	Planner     *planner.Planner
	FastPool    *worker.FastPool
	SlowPool    *worker.SlowPool
	Scheduler   *maintenance.Scheduler
	ViewRefresh *maintenance.ViewRefresher
	Registry    *schema.Registry
	Store       *statestore.Store
	Logger      log.Logger
	Clock       planner.Clock

	FetchQueueSize int
	WriteQueueSize int
}

// New returns an Orchestrator with both queue sizes set to 256; Run uses
// FetchQueueSize and WriteQueueSize as they are when it is called.
func New(p *planner.Planner, fast *worker.FastPool, slow *worker.SlowPool, sched *maintenance.Scheduler, vr *maintenance.ViewRefresher, reg *schema.Registry, store *statestore.Store, logger log.Logger) *Orchestrator {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Orchestrator{
		Planner:        p,
		FastPool:       fast,
		SlowPool:       slow,
		Scheduler:      sched,
		ViewRefresh:    vr,
		Registry:       reg,
		Store:          store,
		Logger:         logger,
		Clock:          planner.SystemClock{},
		FetchQueueSize: 256,
		WriteQueueSize: 256,
	}
}

// Run implements run(group, overrideEntities?) (§4.K):
//  1. Plan jobs.
//  2. Start pools and the maintenance ticker.
//  3. Enqueue all jobs.
//  4. Wait for the fetch queue and the write queue to drain.
//  5. Trigger one final view refresh.
//  6. Shut down pools.
func (o *Orchestrator) Run(ctx context.Context, group planner.GroupConfig, groupName string, overrideEntities []string) (Summary, error) {
	jobs, err := o.Planner.Plan(ctx, group, overrideEntities)
	if err != nil {
		level.Error(o.Logger).Log("msg", "planning aborted", "group", groupName, "err", err)
		return Summary{Aborted: true, AbortErr: err}, err
	}
	level.Info(o.Logger).Log("msg", "plan produced jobs", "group", groupName, "count", len(jobs))

	fetchQueue := make(chan planner.Job, o.FetchQueueSize)
	writeQueue := make(chan worker.WriteJob, o.WriteQueueSize)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	o.Scheduler.Start(runCtx)
	defer o.Scheduler.Stop()

	var eg errgroup.Group
	eg.Go(func() error {
		o.FastPool.Run(runCtx, fetchQueue)
		close(writeQueue)
		return nil
	})
	eg.Go(func() error {
		o.SlowPool.Run(writeQueue)
		return nil
	})

	summary := Summary{
		Succeeded: map[string]int{},
		Failed:    map[string]int{},
		Empty:     map[string]int{},
	}
	outcomesDone := make(chan struct{})
	go func() {
		for out := range o.FastPool.Outcomes() {
			switch out.Status {
			case "succeeded":
				summary.Succeeded[out.Table]++
			case "failed":
				summary.Failed[out.Table]++
			case "empty":
				summary.Empty[out.Table]++
			}
		}
		close(outcomesDone)
	}()

	partial := len(overrideEntities) > 0
enqueue:
	for _, job := range jobs {
		select {
		case fetchQueue <- job:
		case <-runCtx.Done():
			partial = true
			break enqueue
		}
	}
	close(fetchQueue)

	if err := eg.Wait(); err != nil {
		return summary, err
	}
	<-outcomesDone

	for _, n := range summary.Failed {
		if n > 0 {
			partial = true
			break
		}
	}
	summary.Partial = partial

	if err := o.finalViewRefresh(runCtx); err != nil {
		level.Error(o.Logger).Log("msg", "final view refresh failed", "err", err)
	}

	if !partial {
		if err := o.Store.Save(lastRunKey(groupName), lastRunRecord{CompletedAt: o.now()}); err != nil {
			level.Error(o.Logger).Log("msg", "failed to persist last-run timestamp", "group", groupName, "err", err)
		}
	}

	return summary, nil
}

func (o *Orchestrator) now() time.Time {
	if o.Clock != nil {
		return o.Clock.Now()
	}
	return time.Now()
}

func (o *Orchestrator) finalViewRefresh(ctx context.Context) error {
	tables := o.Registry.List()
	_, err := o.ViewRefresh.RefreshAll(ctx, tables)
	return err
}
