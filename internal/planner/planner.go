// Package planner implements the Task Planner (§4.G): it enumerates
// (table, entity) jobs for a named task group, consulting the State
// Queryer to compute each job's start date and dropping jobs for which
// there is no pending data.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dgryski/go-metro"

	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/state"
	"github.com/marketlake/marketlake/internal/taxonomy"
)

// Job is one unit of fetch work: table T, entity E (empty string for
// non-entity-keyed tables), starting at StartDate (YYYYMMDD).
type Job struct {
	Table     string
	Entity    string
	StartDate string
	Params    map[string]string
}

// GroupConfig is the subset of configuration the planner needs for one
// named task group.
type GroupConfig struct {
	Tables          []string
	DefaultStart    string
	EndDate         string // empty means the latest expected trading day at plan time
	MarketCloseHour int

	// EntitySuffixes, when non-empty, restricts planning to entities whose
	// identifier ends in one of these suffixes (e.g. ".SH", ".SZ") — the
	// exchange filter from the original downloader's task_filter.py.
	EntitySuffixes []string
}

// EntityUniverse resolves the current entity set, backed by the
// instruments table (§3 "Entity lifecycle").
type EntityUniverse interface {
	// Entities returns every known entity identifier, sorted for
	// deterministic iteration.
	Entities(ctx context.Context) ([]string, error)
}

// MaxDater is the subset of state.Queryer the planner depends on.
type MaxDater interface {
	MaxDate(ctx context.Context, entry schema.Entry, entities []string) (map[string]string, error)
}

var _ MaxDater = (*state.Queryer)(nil)

// Planner builds job sets for named task groups.
type Planner struct {
	registry *schema.Registry
	maxDater MaxDater
	universe EntityUniverse
	clock    Clock
	calendar TradingCalendar
}

// New returns a Planner. clock and calendar default to SystemClock and
// WeekdayCalendar when nil.
func New(registry *schema.Registry, maxDater MaxDater, universe EntityUniverse, clock Clock, calendar TradingCalendar) *Planner {
	if clock == nil {
		clock = SystemClock{}
	}
	if calendar == nil {
		calendar = WeekdayCalendar{}
	}
	return &Planner{
		registry: registry,
		maxDater: maxDater,
		universe: universe,
		clock:    clock,
		calendar: calendar,
	}
}

// Plan implements plan(groupName, overrideEntities?) → [Job] (§4.G).
// Failures consulting the State Queryer propagate wrapped in
// taxonomy.Planning; on error, no jobs are returned.
func (p *Planner) Plan(ctx context.Context, group GroupConfig, overrideEntities []string) ([]Job, error) {
	gens := make([]func() (Job, bool, error), 0, len(group.Tables))

	for _, tableName := range group.Tables {
		entry, err := p.registry.Load(tableName)
		if err != nil {
			return nil, taxonomy.Planning(err)
		}

		entities, err := p.resolveEntities(ctx, entry, group, overrideEntities)
		if err != nil {
			return nil, taxonomy.Planning(err)
		}

		gen, err := p.tableGenerator(ctx, entry, group, entities)
		if err != nil {
			return nil, taxonomy.Planning(err)
		}
		gens = append(gens, gen)
	}

	return roundRobin(gens)
}

// resolveEntities picks the target entity list for one table, per step 1
// of the algorithm.
func (p *Planner) resolveEntities(ctx context.Context, entry schema.Entry, group GroupConfig, overrideEntities []string) ([]string, error) {
	if len(overrideEntities) > 0 {
		return overrideEntities, nil
	}
	if entry.UpdateStrategy == schema.FullReplace && entry.DateCol == "" {
		return []string{""}, nil
	}
	if p.universe == nil {
		return nil, fmt.Errorf("planner: table %s needs the entity universe but none was configured", entry.Name)
	}
	entities, err := p.universe.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("planner: resolve entity universe: %w", err)
	}
	entities = filterBySuffix(entities, group.EntitySuffixes)
	shardOrder(entry.Name, entities)
	return entities, nil
}

// filterBySuffix keeps only entities ending in one of suffixes. An empty
// suffixes list is a no-op (no exchange restriction configured).
func filterBySuffix(entities []string, suffixes []string) []string {
	if len(suffixes) == 0 {
		return entities
	}
	kept := entities[:0:0]
	for _, e := range entities {
		for _, suffix := range suffixes {
			if strings.HasSuffix(e, suffix) {
				kept = append(kept, e)
				break
			}
		}
	}
	return kept
}

// shardOrder sorts entities by the metro hash of (table, entity) rather
// than lexicographically, so each table's head-of-line entities are not
// simply the alphabetically first ones. The order depends only on table and
// entity identity, not on scan or map iteration order, so it is the same
// across restarts.
func shardOrder(table string, entities []string) {
	sort.Slice(entities, func(i, j int) bool {
		return entityShardKey(table, entities[i]) < entityShardKey(table, entities[j])
	})
}

func entityShardKey(table, entity string) uint64 {
	return metro.Hash64([]byte(table+"|"+entity), 0)
}

// tableGenerator returns a closure that yields this table's jobs one at a
// time, in entity order, for use by roundRobin. The closure's second
// return value is false once the table is exhausted.
func (p *Planner) tableGenerator(ctx context.Context, entry schema.Entry, group GroupConfig, entities []string) (func() (Job, bool, error), error) {
	defaultStart := group.DefaultStart
	endDate := group.EndDate
	if endDate == "" {
		endDate = p.calendar.LatestExpectedTradingDay(p.clock.Now())
	}

	var maxDates map[string]string
	if entry.UpdateStrategy != schema.FullReplace {
		var err error
		maxDates, err = p.maxDater.MaxDate(ctx, entry, entities)
		if err != nil {
			return nil, fmt.Errorf("planner: query max date for %s: %w", entry.Name, err)
		}
	}

	latestTradingDay := p.calendar.LatestExpectedTradingDay(p.clock.Now())
	idx := 0

	next := func() (Job, bool, error) {
		for idx < len(entities) {
			entity := entities[idx]
			idx++

			job, ok, err := p.jobFor(entry, entity, defaultStart, endDate, latestTradingDay, group.MarketCloseHour, maxDates)
			if err != nil {
				return Job{}, false, err
			}
			if ok {
				return job, true, nil
			}
			// skip (no pending data) and try the next entity
		}
		return Job{}, false, nil
	}
	return next, nil
}

// jobFor computes the single job for (entry, entity), or reports that it
// was skipped (ok == false), per steps 2 and the tie-break rules.
func (p *Planner) jobFor(entry schema.Entry, entity, defaultStart, endDate, latestTradingDay string, marketCloseHour int, maxDates map[string]string) (Job, bool, error) {
	if entry.UpdateStrategy == schema.FullReplace {
		return Job{Table: entry.Name, Entity: entity, StartDate: defaultStart}, true, nil
	}

	if entry.DateCol == "" {
		return Job{Table: entry.Name, Entity: entity, StartDate: defaultStart}, true, nil
	}

	key := entity
	if !entry.UpdateBySymbol {
		key = ""
	}
	maxDate, known := maxDates[key]

	var startDate string
	if !known {
		startDate = defaultStart
	} else if maxDate == latestTradingDay {
		if p.clock.Now().Hour() < marketCloseHour {
			return Job{}, false, nil
		}
		startDate = latestTradingDay
	} else {
		var err error
		startDate, err = addDay(maxDate, 1)
		if err != nil {
			return Job{}, false, fmt.Errorf("planner: advance max date %q for %s: %w", maxDate, entry.Name, err)
		}
	}

	if startDate > endDate {
		return Job{}, false, nil
	}
	return Job{Table: entry.Name, Entity: entity, StartDate: startDate}, true, nil
}

// roundRobin drains gens in round-robin order, so the fetch queue stays
// diverse across tables (step 3 of the algorithm) rather than one table's
// jobs arriving as a contiguous run.
func roundRobin(gens []func() (Job, bool, error)) ([]Job, error) {
	jobs := make([]Job, 0)
	active := make([]bool, len(gens))
	for i := range active {
		active[i] = true
	}
	remaining := len(gens)

	for remaining > 0 {
		for i, gen := range gens {
			if !active[i] {
				continue
			}
			job, ok, err := gen()
			if err != nil {
				return nil, err
			}
			if !ok {
				active[i] = false
				remaining--
				continue
			}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}
