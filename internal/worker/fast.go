package worker

import (
	"context"
	"sync"
	"time"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/marketlake/marketlake/internal/config"
	"github.com/marketlake/marketlake/internal/fetcher"
	"github.com/marketlake/marketlake/internal/planner"
	"github.com/marketlake/marketlake/internal/ratelimit"
	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/taxonomy"
)

// WriteJob is a batch handed from the fast pool to the slow pool, ready
// for persistence.
type WriteJob struct {
	Table  string
	Entity string
	Batch  arrow.Record
}

// Outcome records what happened to one fetch job, for the run-level
// (succeeded, failed, skipped) summary (§7).
type Outcome struct {
	Table  string
	Entity string
	Status string // "succeeded", "failed", "empty"
}

// FastPool is the Fast Worker Pool (§4.H).
type FastPool struct {
	registry  *schema.Registry
	fetcher   fetcher.Fetcher
	limiters  *ratelimit.Registry
	retries   map[string]config.RetryPolicy
	writeCh   chan<- WriteJob
	logger    log.Logger
	outcomes  chan Outcome
	workerCnt int

	mu       sync.Mutex
	attempts map[jobKey]int
}

type jobKey struct {
	table, entity, startDate string
}

// NewFastPool returns a pool that dispatches fetched batches onto writeCh.
func NewFastPool(registry *schema.Registry, f fetcher.Fetcher, limiters *ratelimit.Registry, retries map[string]config.RetryPolicy, writeCh chan<- WriteJob, workerCount int, logger log.Logger) *FastPool {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &FastPool{
		registry:  registry,
		fetcher:   f,
		limiters:  limiters,
		retries:   retries,
		writeCh:   writeCh,
		logger:    logger,
		outcomes:  make(chan Outcome, 1024),
		workerCnt: workerCount,
		attempts:  make(map[jobKey]int),
	}
}

// Outcomes returns the channel the pool reports per-job outcomes on.
// Callers should drain it; it is closed once Run returns.
func (p *FastPool) Outcomes() <-chan Outcome { return p.outcomes }

// Run drains jobCh until it is closed or ctx is cancelled, with
// workerCnt goroutines processing concurrently. It closes p.outcomes when
// all workers have exited; writeCh is left open for the caller to close.
func (p *FastPool) Run(ctx context.Context, jobCh <-chan planner.Job) {
	var wg sync.WaitGroup
	wg.Add(p.workerCnt)
	for i := 0; i < p.workerCnt; i++ {
		go func() {
			defer wg.Done()
			p.loop(ctx, jobCh)
		}()
	}
	wg.Wait()
	close(p.outcomes)
}

func (p *FastPool) loop(ctx context.Context, jobCh <-chan planner.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobCh:
			if !ok {
				return
			}
			p.process(ctx, job, jobCh)
		}
	}
}

// process executes one job. A retryable failure is retried inline by the
// same worker after the table's retry delay; the job is not put back on
// any queue. The fast pool's concurrency bound therefore also bounds
// retries.
func (p *FastPool) process(ctx context.Context, job planner.Job, jobCh <-chan planner.Job) {
	entry, err := p.registry.Load(job.Table)
	if err != nil {
		level.Error(p.logger).Log("msg", "unknown table", "table", job.Table, "err", err)
		p.outcomes <- Outcome{Table: job.Table, Entity: job.Entity, Status: "failed"}
		return
	}

	if err := p.limiters.Acquire(ctx, job.Table); err != nil {
		level.Warn(p.logger).Log("msg", "rate limit wait cancelled", "table", job.Table, "err", err)
		return
	}

	params := job.Params
	if entry.DateCol != "" {
		if params == nil {
			params = map[string]string{}
		}
		params["start_date"] = job.StartDate
	}
	if entry.UpdateBySymbol && job.Entity != "" {
		if params == nil {
			params = map[string]string{}
		}
		params[entry.EntityCol] = job.Entity
	}

	batch, err := p.fetcher.Fetch(ctx, entry, params)
	if err == nil {
		p.dispatchSuccess(job, batch)
		return
	}

	if taxonomy.Is(err, taxonomy.ClassRetryable) {
		p.handleRetry(ctx, job, err)
		return
	}

	level.Error(p.logger).Log("msg", "job failed fatally", "table", job.Table, "entity", job.Entity, "err", err)
	p.outcomes <- Outcome{Table: job.Table, Entity: job.Entity, Status: "failed"}
}

func (p *FastPool) dispatchSuccess(job planner.Job, batch arrow.Record) {
	if batch == nil || batch.NumRows() == 0 {
		if batch != nil {
			batch.Release()
		}
		p.outcomes <- Outcome{Table: job.Table, Entity: job.Entity, Status: "empty"}
		return
	}
	p.writeCh <- WriteJob{Table: job.Table, Entity: job.Entity, Batch: batch}
	p.outcomes <- Outcome{Table: job.Table, Entity: job.Entity, Status: "succeeded"}
}

func (p *FastPool) handleRetry(ctx context.Context, job planner.Job, cause error) {
	key := jobKey{table: job.Table, entity: job.Entity, startDate: job.StartDate}
	policy, hasPolicy := p.retries[job.Table]
	if !hasPolicy {
		policy = config.RetryPolicy{MaxAttempts: 1, Backoff: config.BackoffFixed, BaseDelayMS: 0}
	}

	p.mu.Lock()
	p.attempts[key]++
	n := p.attempts[key]
	p.mu.Unlock()

	if n >= policy.MaxAttempts {
		level.Warn(p.logger).Log("msg", "job exhausted retries, dropping", "table", job.Table, "entity", job.Entity, "attempts", n, "err", cause)
		p.outcomes <- Outcome{Table: job.Table, Entity: job.Entity, Status: "failed"}
		return
	}

	delay := delayFor(policy, n)
	level.Info(p.logger).Log("msg", "retrying job", "table", job.Table, "entity", job.Entity, "attempt", n, "delay", delay, "err", cause)

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return
	}
	p.process(ctx, job, nil)
}
