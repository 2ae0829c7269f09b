// Package schema implements the Schema Registry: per-table metadata loaded
// once from a static declarative source and treated as immutable for the
// process's lifetime. It performs no I/O and has no side effects after load.
package schema

import (
	"fmt"
	"sort"
)

// UpdateStrategy selects how the Slow Worker Pool persists a table's
// batches.
type UpdateStrategy string

const (
	// Incremental appends new rows; duplicates across files are tolerated
	// and resolved later by compaction.
	Incremental UpdateStrategy = "incremental"
	// FullReplace atomically swaps the table's entire on-disk snapshot.
	FullReplace UpdateStrategy = "full_replace"
)

// Entry is a single table's registry record (§3 Table schema).
type Entry struct {
	Name string

	// PrimaryKey uniquely identifies a row; rows are sorted by this before
	// persistence (I4).
	PrimaryKey []string

	// DateCol, when set, declares the table partitionable by year and names
	// the YYYYMMDD column used for partitioning and incremental bookkeeping.
	DateCol string

	UpdateStrategy UpdateStrategy

	// UpdateBySymbol selects per-entity (true) vs. global (false)
	// incremental bookkeeping.
	UpdateBySymbol bool

	// EntityCol names the primary-key column holding the entity/symbol
	// identifier; required when UpdateBySymbol is true.
	EntityCol string

	// RevisionCol, when set, names the column used to prefer the
	// highest-revision row within a (primary_key - date_col, reporting
	// period) group during compaction (§4.C, §9).
	RevisionCol string

	// ReportingPeriodCol names the column compaction groups by alongside
	// the entity key when resolving revisions. Empty means group by the
	// primary key minus DateCol alone.
	ReportingPeriodCol string

	// UpstreamAPIID and RequiredParams are opaque routing info consumed by
	// the Fetcher; the registry does not interpret them.
	UpstreamAPIID  string
	RequiredParams map[string]string
}

// Partitioned reports whether rows of this table live under year=YYYY
// partitions.
func (e Entry) Partitioned() bool {
	return e.DateCol != ""
}

// ErrSchemaNotFound is returned by Load when name has no registry entry.
type ErrSchemaNotFound struct {
	Name string
}

func (e *ErrSchemaNotFound) Error() string {
	return fmt.Sprintf("schema: table %q not found in registry", e.Name)
}

// Registry is the immutable, process-lifetime set of table schemas.
type Registry struct {
	entries map[string]Entry
}

// New builds a Registry from a static declarative source. Callers typically
// pass the output of LoadEntries or entries built in code; New performs no
// I/O itself.
func New(entries []Entry) (*Registry, error) {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			return nil, fmt.Errorf("schema: entry has empty name")
		}
		if len(e.PrimaryKey) == 0 {
			return nil, fmt.Errorf("schema: table %q requires a primary key", e.Name)
		}
		switch e.UpdateStrategy {
		case Incremental, FullReplace:
		default:
			return nil, fmt.Errorf("schema: table %q has invalid update_strategy %q", e.Name, e.UpdateStrategy)
		}
		if _, exists := m[e.Name]; exists {
			return nil, fmt.Errorf("schema: duplicate table %q", e.Name)
		}
		if e.UpdateBySymbol && e.EntityCol == "" {
			return nil, fmt.Errorf("schema: table %q sets update_by_symbol but has no entity_col", e.Name)
		}
		m[e.Name] = e
	}
	return &Registry{entries: m}, nil
}

// Load returns the entry for name or ErrSchemaNotFound.
func (r *Registry) Load(name string) (Entry, error) {
	e, ok := r.entries[name]
	if !ok {
		return Entry{}, &ErrSchemaNotFound{Name: name}
	}
	return e, nil
}

// List returns all registered table names, sorted for deterministic
// iteration.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstrumentsTable is the distinguished full-replace table that stores the
// entity universe other tables key their incremental state by.
const InstrumentsTable = "instruments"
