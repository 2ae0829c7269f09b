// Package maintenance implements the Maintenance Worker (§4.I, §4.J):
// partition compaction and the embedded analytical database's view
// layer, both run on a schedule independent of the request path.
package maintenance

import (
	"context"
	"fmt"

	"github.com/apache/arrow-adbc/go/adbc"
	"github.com/apache/arrow-adbc/go/adbc/drivermgr"

	"github.com/marketlake/marketlake/internal/lake"
)

// ViewRefresher owns the DuckDB connection and the per-table view
// definitions: `SELECT * FROM read_parquet(<glob>)` for every table
// directory (§4.I "View refresh").
type ViewRefresher struct {
	conn   adbc.Connection
	layout *lake.Layout
	cache  *RefreshCache
}

// OpenDuckDB opens an ADBC connection to a DuckDB database at dbPath,
// installing and loading the arrow extension the way the read_parquet
// view definitions need.
func OpenDuckDB(ctx context.Context, dbPath string) (adbc.Connection, error) {
	drv := drivermgr.Driver{}
	db, err := drv.NewDatabase(map[string]string{
		"driver":     "duckdb",
		"entrypoint": "duckdb_adbc_init",
		"path":       dbPath,
	})
	if err != nil {
		return nil, fmt.Errorf("maintenance: open duckdb database: %w", err)
	}
	conn, err := db.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("maintenance: open duckdb connection: %w", err)
	}
	if err := execSQL(ctx, conn, "INSTALL arrow; LOAD arrow;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("maintenance: load arrow extension: %w", err)
	}
	return conn, nil
}

// NewViewRefresher returns a ViewRefresher over conn, with view refresh
// decisions checked against cache.
func NewViewRefresher(conn adbc.Connection, layout *lake.Layout, cache *RefreshCache) *ViewRefresher {
	return &ViewRefresher{conn: conn, layout: layout, cache: cache}
}

// RefreshTable (re)creates table's view if its file count or latest
// modification time changed since the last refresh (§4.I "skipped for
// tables whose directory modification time and file count are
// unchanged"). It returns whether the view was actually (re)created.
func (v *ViewRefresher) RefreshTable(ctx context.Context, table string) (bool, error) {
	files, err := v.layout.Scan(table)
	if err != nil {
		return false, fmt.Errorf("maintenance: scan %s for view refresh: %w", table, err)
	}
	count, latestMtime := lake.DirModTime(files)

	if v.cache.Unchanged(table, count, latestMtime) {
		return false, nil
	}

	glob := v.layout.PathFor(table) + "/**/*.parquet"
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s', union_by_name=true)`,
		quoteIdent(table), glob,
	)
	if err := execSQL(ctx, v.conn, stmt); err != nil {
		return false, fmt.Errorf("maintenance: create view for %s: %w", table, err)
	}

	v.cache.Record(table, count, latestMtime)
	return true, nil
}

// RefreshAll refreshes every table named in tables, returning the names
// actually (re)created.
func (v *ViewRefresher) RefreshAll(ctx context.Context, tables []string) ([]string, error) {
	var refreshed []string
	for _, t := range tables {
		did, err := v.RefreshTable(ctx, t)
		if err != nil {
			return refreshed, err
		}
		if did {
			refreshed = append(refreshed, t)
		}
	}
	return refreshed, nil
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}

func execSQL(ctx context.Context, conn adbc.Connection, sql string) error {
	stmt, err := conn.NewStatement()
	if err != nil {
		return err
	}
	defer stmt.Close()

	if err := stmt.SetSqlQuery(sql); err != nil {
		return err
	}
	_, _, err = stmt.ExecuteQuery(ctx)
	return err
}
