// --------------------------------------------------------------------------------
// Author: Thomas F McGeehan V
//
// This file is part of a software project developed by Thomas F McGeehan V.
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// For more information about the MIT License, please visit:
// https://opensource.org/licenses/MIT
//
// Acknowledgment appreciated but not required.
// --------------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/go-kit/log"

	"github.com/marketlake/marketlake/internal/config"
	"github.com/marketlake/marketlake/internal/fetcher"
	"github.com/marketlake/marketlake/internal/lake"
	"github.com/marketlake/marketlake/internal/maintenance"
	"github.com/marketlake/marketlake/internal/orchestrator"
	"github.com/marketlake/marketlake/internal/parquetio"
	"github.com/marketlake/marketlake/internal/planner"
	"github.com/marketlake/marketlake/internal/ratelimit"
	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/state"
	"github.com/marketlake/marketlake/internal/statestore"
	"github.com/marketlake/marketlake/internal/tables"
	"github.com/marketlake/marketlake/internal/worker"
)

// entityCol is the column every entity-keyed table uses to name its
// primary entity identifier, matching the instruments table's symbol
// column (§3 "Entity lifecycle").
const entityCol = "symbol"

// App bundles every wired component the CLI's subcommands operate on.
type App struct {
	Config       *config.Config
	Registry     *schema.Registry
	Layout       *lake.Layout
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *maintenance.Scheduler
	ViewRefresh  *maintenance.ViewRefresher
	duckConn     interface{ Close() error }
}

// Close releases the resources App opened (the DuckDB connection).
func (a *App) Close() error {
	if a.duckConn != nil {
		return a.duckConn.Close()
	}
	return nil
}

// Bootstrap loads configuration and the schema registry from the given
// paths and wires every component named in the package layout together.
func Bootstrap(ctx context.Context, configPath, schemaPath string) (*App, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	entries, err := schema.LoadEntries(schemaPath)
	if err != nil {
		return nil, err
	}
	registry, err := schema.New(entries)
	if err != nil {
		return nil, fmt.Errorf("cli: build schema registry: %w", err)
	}

	layout := lake.New(cfg.Storage.Root)
	writer := parquetio.New(layout, nil)
	maxDater := state.New(layout)
	universe := planner.NewInstrumentsUniverse(layout, entityCol)
	plan := planner.New(registry, maxDater, universe, nil, nil)

	logger := log.NewLogfmtLogger(os.Stderr)

	baseURL := os.Getenv("MARKETLAKE_API_BASE_URL")
	apiKey := os.Getenv("MARKETLAKE_API_KEY")
	httpFetcher := fetcher.NewHTTPFetcher(baseURL, apiKey, tables.Decoders(memory.DefaultAllocator))

	limiters := ratelimit.New(cfg.RateLimits)

	writeCh := make(chan worker.WriteJob, 256)
	fastPool := worker.NewFastPool(registry, httpFetcher, limiters, cfg.Retry, writeCh, cfg.Workers.Fast, logger)
	slowPool := worker.NewSlowPool(registry, writer, cfg.Workers.Slow, logger)

	store, err := statestore.New(layout.StateDir())
	if err != nil {
		return nil, fmt.Errorf("cli: open state store: %w", err)
	}
	refreshCache, err := maintenance.LoadRefreshCache(store)
	if err != nil {
		return nil, fmt.Errorf("cli: load view-refresh cache: %w", err)
	}

	duckConn, err := maintenance.OpenDuckDB(ctx, cfg.Maintenance.DuckDBPath)
	if err != nil {
		return nil, err
	}
	viewRefresh := maintenance.NewViewRefresher(duckConn, layout, refreshCache)

	compactor := maintenance.NewCompactor(layout, writer)
	interval := time.Duration(cfg.Maintenance.ViewRefreshIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	scheduler := maintenance.NewScheduler(registry, compactor, viewRefresh, cfg.Maintenance.CompactionThreshold, interval, logger)

	orch := orchestrator.New(plan, fastPool, slowPool, scheduler, viewRefresh, registry, store, logger)

	return &App{
		Config:       cfg,
		Registry:     registry,
		Layout:       layout,
		Orchestrator: orch,
		Scheduler:    scheduler,
		ViewRefresh:  viewRefresh,
		duckConn:     duckConn,
	}, nil
}

// GroupConfig translates the named configuration group into the shape the
// planner consumes, merging in the group's optional entity suffix filter.
func (a *App) GroupConfig(name string) (planner.GroupConfig, error) {
	tableList, ok := a.Config.Groups[name]
	if !ok {
		return planner.GroupConfig{}, fmt.Errorf("cli: unknown group %q", name)
	}
	return planner.GroupConfig{
		Tables:          tableList,
		DefaultStart:    a.Config.Defaults.StartDate,
		EndDate:         a.Config.Defaults.EndDate,
		MarketCloseHour: a.Config.Defaults.MarketCloseHour,
		EntitySuffixes:  a.Config.EntityFilters[name],
	}, nil
}
