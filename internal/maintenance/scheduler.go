package maintenance

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/marketlake/marketlake/internal/schema"
)

// Scheduler runs compaction and view refresh on a ticker, independent of
// the request path (§4.J "runs on a schedule, independent of the request
// path").
type Scheduler struct {
	registry            *schema.Registry
	compactor           *Compactor
	refresher           *ViewRefresher
	compactionThreshold int
	interval            time.Duration
	logger              log.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler returns a Scheduler. logger defaults to a no-op logger.
func NewScheduler(registry *schema.Registry, compactor *Compactor, refresher *ViewRefresher, compactionThreshold int, interval time.Duration, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Scheduler{
		registry:            registry,
		compactor:           compactor,
		refresher:           refresher,
		compactionThreshold: compactionThreshold,
		interval:            interval,
		logger:              logger,
	}
}

// Start begins the maintenance ticker in a background goroutine.
func (s *Scheduler) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels the ticker and waits for the in-flight cycle to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// RunOnce runs one maintenance cycle: compact every over-threshold
// partition, then refresh every table's view.
func (s *Scheduler) RunOnce(ctx context.Context) {
	tables := s.registry.List()

	for _, name := range tables {
		entry, err := s.registry.Load(name)
		if err != nil {
			continue
		}
		if err := s.compactTable(ctx, entry); err != nil {
			level.Error(s.logger).Log("msg", "compaction failed", "table", name, "err", err)
		}
	}

	if _, err := s.refresher.RefreshAll(ctx, tables); err != nil {
		level.Error(s.logger).Log("msg", "view refresh failed", "err", err)
	}
}

func (s *Scheduler) compactTable(ctx context.Context, entry schema.Entry) error {
	if entry.DateCol == "" {
		return s.compactIfNeeded(ctx, entry, 0)
	}

	years, err := s.partitionYears(entry)
	if err != nil {
		return err
	}
	for _, year := range years {
		if err := s.compactIfNeeded(ctx, entry, year); err != nil {
			return err
		}
	}
	return nil
}

func (s *Scheduler) compactIfNeeded(ctx context.Context, entry schema.Entry, year int) error {
	needs, err := s.compactor.NeedsCompaction(entry, year, s.compactionThreshold)
	if err != nil {
		return err
	}
	if !needs {
		return nil
	}
	return s.compactor.CompactPartition(ctx, entry, year)
}

func (s *Scheduler) partitionYears(entry schema.Entry) ([]int, error) {
	files, err := s.compactor.layout.Scan(entry.Name)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var years []int
	for _, f := range files {
		if !seen[f.Year] {
			seen[f.Year] = true
			years = append(years, f.Year)
		}
	}
	return years, nil
}
