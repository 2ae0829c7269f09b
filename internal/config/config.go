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

// Package config loads and validates the pipeline's declarative
// configuration document (§6 "Configuration (consumed)").
package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Backoff names the retry delay shape for a table's retry policy (§4.H).
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffLinear      Backoff = "linear"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy is one table's (maxAttempts, backoff, baseDelay, maxDelay,
// factor) tuple.
type RetryPolicy struct {
	MaxAttempts int     `yaml:"max_attempts"`
	Backoff     Backoff `yaml:"backoff"`
	BaseDelayMS int     `yaml:"base_delay_ms"`
	MaxDelayMS  int     `yaml:"max_delay_ms"`
	Factor      float64 `yaml:"factor"`
}

// Storage configures the data lake root.
type Storage struct {
	Root string `yaml:"root"`
}

// Workers configures the two pools' concurrency limits.
type Workers struct {
	Fast int `yaml:"fast"`
	Slow int `yaml:"slow"`
}

// Defaults configures fresh-run and end-of-range behavior.
type Defaults struct {
	// StartDate is used for fresh incremental runs and for every
	// full_replace job (YYYYMMDD).
	StartDate string `yaml:"start_date"`
	// EndDate bounds planning: a job whose computed start_date exceeds
	// EndDate is dropped silently. Empty means the latest expected trading
	// day at plan time.
	EndDate string `yaml:"end_date"`
	// MarketCloseHour (0-23, local time) is the tie-break hour used when an
	// entity's maxDate equals the latest expected trading day.
	MarketCloseHour int `yaml:"market_close_hour"`
}

// Maintenance configures the maintenance worker's schedule.
type Maintenance struct {
	ViewRefreshIntervalSeconds int `yaml:"view_refresh_interval_seconds"`
	CompactionThreshold        int `yaml:"compaction_threshold"`
	DuckDBPath                 string `yaml:"duckdb_path"`
}

// Config is the top-level configuration document (§6).
type Config struct {
	Storage    Storage                `yaml:"storage"`
	RateLimits map[string]int         `yaml:"rate_limits"`
	Workers    Workers                `yaml:"workers"`
	Retry      map[string]RetryPolicy `yaml:"retry"`
	// Groups maps a task group name to its ordered list of table names.
	Groups map[string][]string `yaml:"groups"`
	// EntityFilters optionally restricts a group's entities to those whose
	// identifier ends in one of the listed suffixes (e.g. ".SH", ".SZ"),
	// the exchange whitelist from the original downloader's task filter.
	// A group absent from this map plans every known entity.
	EntityFilters map[string][]string `yaml:"entity_filters"`
	Defaults      Defaults             `yaml:"defaults"`
	Maintenance   Maintenance          `yaml:"maintenance"`
}

// GroupNames returns the configured group names, sorted for deterministic
// iteration.
func (c *Config) GroupNames() []string {
	names := make([]string, 0, len(c.Groups))
	for name := range c.Groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reads and parses a YAML configuration document from path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the document for the required fields and obviously
// invalid values described in §6.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateWorkers(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateGroups(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("config: storage.root is required")
	}
	return nil
}

func (c *Config) validateWorkers() error {
	if c.Workers.Fast < 1 {
		return fmt.Errorf("config: workers.fast must be greater than 0")
	}
	if c.Workers.Slow < 1 {
		return fmt.Errorf("config: workers.slow must be greater than 0")
	}
	return nil
}

func (c *Config) validateRetry() error {
	for table, rp := range c.Retry {
		if rp.MaxAttempts < 1 {
			return fmt.Errorf("config: retry.%s.max_attempts must be greater than 0", table)
		}
		switch rp.Backoff {
		case BackoffFixed, BackoffLinear, BackoffExponential:
		default:
			return fmt.Errorf("config: retry.%s.backoff %q is not fixed/linear/exponential", table, rp.Backoff)
		}
		if rp.BaseDelayMS <= 0 {
			return fmt.Errorf("config: retry.%s.base_delay_ms must be greater than 0", table)
		}
	}
	return nil
}

func (c *Config) validateGroups() error {
	for name, tables := range c.Groups {
		if len(tables) == 0 {
			return fmt.Errorf("config: group %q has no tables", name)
		}
	}
	return nil
}
