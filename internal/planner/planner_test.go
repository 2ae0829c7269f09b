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

package planner

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketlake/marketlake/internal/schema"
	"github.com/marketlake/marketlake/internal/taxonomy"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time { return f.t }

type fakeMaxDater struct {
	byTable map[string]map[string]string
	err     error
}

func (f fakeMaxDater) MaxDate(_ context.Context, entry schema.Entry, entities []string) (map[string]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	all := f.byTable[entry.Name]
	if len(entities) == 0 {
		return map[string]string{}, nil
	}
	out := make(map[string]string)
	for _, e := range entities {
		key := e
		if !entry.UpdateBySymbol {
			key = ""
		}
		if v, ok := all[key]; ok {
			out[key] = v
		}
	}
	return out, nil
}

type fakeUniverse struct {
	entities []string
	err      error
}

func (f fakeUniverse) Entities(context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entities, nil
}

func mustRegistry(t *testing.T, entries ...schema.Entry) *schema.Registry {
	t.Helper()
	r, err := schema.New(entries)
	require.NoError(t, err)
	return r
}

func TestPlanFullReplaceEmitsSingleGlobalJob(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name:           "instruments",
		PrimaryKey:     []string{"symbol"},
		UpdateStrategy: schema.FullReplace,
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	p := New(reg, fakeMaxDater{}, nil, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:       []string{"instruments"},
		DefaultStart: "20200101",
	}, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "", jobs[0].Entity)
	assert.Equal(t, "20200101", jobs[0].StartDate)
}

func TestPlanIncrementalAdvancesPastMaxDate(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name:           "prices",
		PrimaryKey:     []string{"symbol", "date"},
		DateCol:        "date",
		UpdateStrategy: schema.Incremental,
		UpdateBySymbol: true,
		EntityCol:      "symbol",
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)} // Thursday
	maxDater := fakeMaxDater{byTable: map[string]map[string]string{
		"prices": {"AAPL": "20260728"},
	}}
	p := New(reg, maxDater, fakeUniverse{entities: []string{"AAPL"}}, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:       []string{"prices"},
		DefaultStart: "20200101",
	}, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "AAPL", jobs[0].Entity)
	assert.Equal(t, "20260729", jobs[0].StartDate)
}

func TestPlanEntityWithNoPriorDataUsesDefaultStart(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name:           "prices",
		PrimaryKey:     []string{"symbol", "date"},
		DateCol:        "date",
		UpdateStrategy: schema.Incremental,
		UpdateBySymbol: true,
		EntityCol:      "symbol",
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	p := New(reg, fakeMaxDater{}, fakeUniverse{entities: []string{"MSFT"}}, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:       []string{"prices"},
		DefaultStart: "20200101",
	}, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "20200101", jobs[0].StartDate)
}

func TestPlanSkipsEntityAtEndDate(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name:           "prices",
		PrimaryKey:     []string{"symbol", "date"},
		DateCol:        "date",
		UpdateStrategy: schema.Incremental,
		UpdateBySymbol: true,
		EntityCol:      "symbol",
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	maxDater := fakeMaxDater{byTable: map[string]map[string]string{
		"prices": {"AAPL": "20260729"},
	}}
	p := New(reg, maxDater, fakeUniverse{entities: []string{"AAPL"}}, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:          []string{"prices"},
		DefaultStart:    "20200101",
		EndDate:         "20260729",
		MarketCloseHour: 16,
	}, nil)

	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestPlanMarketCloseTieBreak(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name:           "prices",
		PrimaryKey:     []string{"symbol", "date"},
		DateCol:        "date",
		UpdateStrategy: schema.Incremental,
		UpdateBySymbol: true,
		EntityCol:      "symbol",
	})
	maxDater := fakeMaxDater{byTable: map[string]map[string]string{
		"prices": {"AAPL": "20260730"}, // Thursday, equals latest expected trading day
	}}

	beforeClose := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	pBefore := New(reg, maxDater, fakeUniverse{entities: []string{"AAPL"}}, beforeClose, nil)
	jobs, err := pBefore.Plan(context.Background(), GroupConfig{
		Tables: []string{"prices"}, DefaultStart: "20200101", MarketCloseHour: 16,
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, jobs, "before market close, an up-to-date entity should be skipped")

	afterClose := fakeClock{t: time.Date(2026, 7, 30, 17, 0, 0, 0, time.UTC)}
	pAfter := New(reg, maxDater, fakeUniverse{entities: []string{"AAPL"}}, afterClose, nil)
	jobs, err = pAfter.Plan(context.Background(), GroupConfig{
		Tables: []string{"prices"}, DefaultStart: "20200101", MarketCloseHour: 16,
	}, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "20260730", jobs[0].StartDate)
}

func TestPlanOverrideEntitiesReplacesEntityUniverse(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name:           "prices",
		PrimaryKey:     []string{"symbol", "date"},
		DateCol:        "date",
		UpdateStrategy: schema.Incremental,
		UpdateBySymbol: true,
		EntityCol:      "symbol",
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	universe := fakeUniverse{entities: []string{"AAPL", "MSFT", "GOOG"}}
	p := New(reg, fakeMaxDater{}, universe, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:       []string{"prices"},
		DefaultStart: "20200101",
	}, []string{"TSLA"})

	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "TSLA", jobs[0].Entity)
}

func TestPlanInterleavesAcrossTables(t *testing.T) {
	reg := mustRegistry(t,
		schema.Entry{
			Name: "a", PrimaryKey: []string{"symbol", "date"}, DateCol: "date",
			UpdateStrategy: schema.Incremental, UpdateBySymbol: true, EntityCol: "symbol",
		},
		schema.Entry{
			Name: "b", PrimaryKey: []string{"symbol", "date"}, DateCol: "date",
			UpdateStrategy: schema.Incremental, UpdateBySymbol: true, EntityCol: "symbol",
		},
	)
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	universe := fakeUniverse{entities: []string{"X", "Y"}}
	p := New(reg, fakeMaxDater{}, universe, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:       []string{"a", "b"},
		DefaultStart: "20200101",
	}, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 4)
	assert.Equal(t, "a", jobs[0].Table)
	assert.Equal(t, "b", jobs[1].Table)
	assert.Equal(t, "a", jobs[2].Table)
	assert.Equal(t, "b", jobs[3].Table)
}

func TestPlanFiltersEntitiesBySuffix(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name: "prices", PrimaryKey: []string{"symbol", "date"}, DateCol: "date",
		UpdateStrategy: schema.Incremental, UpdateBySymbol: true, EntityCol: "symbol",
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	universe := fakeUniverse{entities: []string{"600000.SH", "000001.SZ", "AAPL.US"}}
	p := New(reg, fakeMaxDater{}, universe, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables:         []string{"prices"},
		DefaultStart:   "20200101",
		EntitySuffixes: []string{".SH", ".SZ"},
	}, nil)

	require.NoError(t, err)
	require.Len(t, jobs, 2)
	entities := []string{jobs[0].Entity, jobs[1].Entity}
	assert.ElementsMatch(t, []string{"600000.SH", "000001.SZ"}, entities)
}

func TestShardOrderIsDeterministicAcrossCalls(t *testing.T) {
	entities := []string{"AAPL", "MSFT", "GOOG", "TSLA"}
	a := append([]string(nil), entities...)
	b := append([]string(nil), entities...)

	shardOrder("prices", a)
	shardOrder("prices", b)

	assert.Equal(t, a, b)
}

func TestPlanPropagatesStateQueryerFailureAsPlanning(t *testing.T) {
	reg := mustRegistry(t, schema.Entry{
		Name: "prices", PrimaryKey: []string{"symbol", "date"}, DateCol: "date",
		UpdateStrategy: schema.Incremental, UpdateBySymbol: true, EntityCol: "symbol",
	})
	clock := fakeClock{t: time.Date(2026, 7, 30, 10, 0, 0, 0, time.UTC)}
	broken := fakeMaxDater{err: assert.AnError}
	p := New(reg, broken, fakeUniverse{entities: []string{"AAPL"}}, clock, nil)

	jobs, err := p.Plan(context.Background(), GroupConfig{
		Tables: []string{"prices"}, DefaultStart: "20200101",
	}, nil)

	require.Error(t, err)
	assert.Nil(t, jobs)
	assert.True(t, taxonomy.Is(err, taxonomy.ClassPlanning))
}
