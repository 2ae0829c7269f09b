// Package lake knows the on-disk layout of the data lake: pure path
// arithmetic and directory enumeration, with no caching of its own (§4.B).
//
// Partitioned tables (DateCol set) live under <root>/<table>/year=YYYY/.
// Non-partitioned, full-replace tables live directly under <root>/<table>/.
package lake

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ignoredNames is the whitelist of operating-system metadata files that
// Scan must never treat as data files.
var ignoredNames = map[string]bool{
	".DS_Store":  true,
	"Thumbs.db":  true,
	".gitkeep":   true,
	".keep":      true,
}

// StagingSuffix and BackupSuffix name the ephemeral directories used by the
// atomic full-replace dance (§4.C).
const (
	StagingSuffix = "__staging__"
	BackupSuffix  = "__backup__"
)

// Layout roots all path arithmetic at a single filesystem directory.
type Layout struct {
	root string
}

// New returns a Layout rooted at root. root is not created; callers that
// write to the lake create directories on demand.
func New(root string) *Layout {
	return &Layout{root: filepath.Clean(root)}
}

// Root returns the data lake's root directory.
func (l *Layout) Root() string { return l.root }

// PathFor returns the canonical directory for table, independent of its
// partitioning (the parent of any year=YYYY partitions, or the table's own
// data directory if unpartitioned).
func (l *Layout) PathFor(table string) string {
	return filepath.Join(l.root, table)
}

// PartitionFor returns the directory that holds rows for table in the given
// year (I3).
func (l *Layout) PartitionFor(table string, year int) string {
	return filepath.Join(l.PathFor(table), fmt.Sprintf("year=%04d", year))
}

// StagingFor and BackupFor name the ephemeral directories used during a
// writeReplace (§4.C step 1-3).
func (l *Layout) StagingFor(table string) string {
	return filepath.Join(l.root, table+StagingSuffix)
}

func (l *Layout) BackupFor(table string) string {
	return filepath.Join(l.root, table+BackupSuffix)
}

// StateDir returns <root>/.state/, where lastRunTimestamp and the
// view-refresh cache are persisted.
func (l *Layout) StateDir() string {
	return filepath.Join(l.root, ".state")
}

// File is one Parquet file discovered by Scan.
type File struct {
	// Path is the absolute path to the file.
	Path string
	// Year is the partition year, or 0 for an unpartitioned table.
	Year int
	// ModTime and Size are used by the maintenance worker's view-refresh
	// cache and by compaction's file-count threshold.
	ModTime int64
	Size    int64
}

// Scan enumerates all Parquet files under table's directory, ignoring
// operating-system metadata files. A missing table directory is not an
// error: it returns an empty slice (§4.D "empty lake is not a failure").
func (l *Layout) Scan(table string) ([]File, error) {
	root := l.PathFor(table)
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lake: scan %s: %w", table, err)
	}

	var files []File
	for _, entry := range entries {
		if entry.IsDir() {
			year, ok := parseYearPartition(entry.Name())
			if !ok {
				continue
			}
			sub, err := l.scanPartition(filepath.Join(root, entry.Name()), year)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
			continue
		}
		if f, ok := fileEntry(root, entry, 0); ok {
			files = append(files, f)
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// ScanPartition enumerates the Parquet files under a single year partition
// of table. It is used by compaction, which operates one partition at a
// time.
func (l *Layout) ScanPartition(table string, year int) ([]File, error) {
	dir := l.PartitionFor(table, year)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("lake: scan partition %s/year=%04d: %w", table, year, err)
	}
	return l.scanPartitionEntries(dir, year, entries)
}

func (l *Layout) scanPartition(dir string, year int) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("lake: scan partition %s: %w", dir, err)
	}
	return l.scanPartitionEntries(dir, year, entries)
}

func (l *Layout) scanPartitionEntries(dir string, year int, entries []os.DirEntry) ([]File, error) {
	var files []File
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if f, ok := fileEntry(dir, entry, year); ok {
			files = append(files, f)
		}
	}
	return files, nil
}

func fileEntry(dir string, entry os.DirEntry, year int) (File, bool) {
	name := entry.Name()
	if ignoredNames[name] || strings.HasPrefix(name, ".") {
		return File{}, false
	}
	if !strings.HasSuffix(name, ".parquet") {
		return File{}, false
	}
	info, err := entry.Info()
	if err != nil {
		return File{}, false
	}
	return File{
		Path:    filepath.Join(dir, name),
		Year:    year,
		ModTime: info.ModTime().UnixNano(),
		Size:    info.Size(),
	}, true
}

// parseYearPartition parses a "year=YYYY" directory name.
func parseYearPartition(name string) (int, bool) {
	const prefix = "year="
	if !strings.HasPrefix(name, prefix) {
		return 0, false
	}
	digits := name[len(prefix):]
	if len(digits) != 4 {
		return 0, false
	}
	year := 0
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, false
		}
		year = year*10 + int(c-'0')
	}
	return year, true
}

// DirModTime returns the latest modification time observed across table's
// files, and the file count — used by the maintenance worker's
// view-refresh cache to skip unchanged tables.
func DirModTime(files []File) (count int, latestMtime int64) {
	for _, f := range files {
		count++
		if f.ModTime > latestMtime {
			latestMtime = f.ModTime
		}
	}
	return count, latestMtime
}
