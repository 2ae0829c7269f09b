package worker

import (
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/marketlake/marketlake/internal/parquetio"
	"github.com/marketlake/marketlake/internal/schema"
)

// SlowPool is the Slow Worker Pool (§4.I): consumes write jobs and
// dispatches each to the Parquet Writer's append or replace path per the
// table's update strategy.
type SlowPool struct {
	registry    *schema.Registry
	writer      *parquetio.Writer
	logger      log.Logger
	workerCount int
}

// NewSlowPool returns a pool writing through writer.
func NewSlowPool(registry *schema.Registry, writer *parquetio.Writer, workerCount int, logger log.Logger) *SlowPool {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &SlowPool{registry: registry, writer: writer, logger: logger, workerCount: workerCount}
}

// Run drains writeCh until it is closed, with workerCount goroutines
// processing concurrently. Every batch handed in is released after
// persistence is attempted, regardless of outcome.
func (p *SlowPool) Run(writeCh <-chan WriteJob) {
	var wg sync.WaitGroup
	wg.Add(p.workerCount)
	for i := 0; i < p.workerCount; i++ {
		go func() {
			defer wg.Done()
			for job := range writeCh {
				p.process(job)
			}
		}()
	}
	wg.Wait()
}

func (p *SlowPool) process(job WriteJob) {
	defer job.Batch.Release()

	entry, err := p.registry.Load(job.Table)
	if err != nil {
		level.Error(p.logger).Log("msg", "unknown table in write job", "table", job.Table, "err", err)
		return
	}

	var werr error
	if entry.UpdateStrategy == schema.FullReplace {
		werr = p.writer.WriteReplace(entry, job.Batch)
	} else {
		werr = p.writer.WriteAppend(entry, job.Batch, job.Entity)
	}
	if werr != nil {
		level.Error(p.logger).Log("msg", "write failed", "table", job.Table, "entity", job.Entity, "err", werr)
		return
	}
	level.Debug(p.logger).Log("msg", "write succeeded", "table", job.Table, "entity", job.Entity, "rows", job.Batch.NumRows())
}
