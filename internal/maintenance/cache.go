package maintenance

import "github.com/marketlake/marketlake/internal/statestore"

// refreshEntry is one table's last-observed (fileCount, latestMtime).
type refreshEntry struct {
	FileCount   int   `json:"file_count"`
	LatestMtime int64 `json:"latest_mtime"`
}

// RefreshCache tracks per-table view-refresh state so unchanged tables
// are skipped (§4.I "skip-if-unchanged"), persisted across restarts via
// statestore.
type RefreshCache struct {
	store   *statestore.Store
	entries map[string]refreshEntry
}

const refreshCacheKey = "view_refresh_cache"

// LoadRefreshCache reads the persisted cache from store, or starts empty
// if none exists yet.
func LoadRefreshCache(store *statestore.Store) (*RefreshCache, error) {
	c := &RefreshCache{store: store, entries: map[string]refreshEntry{}}
	if _, err := store.Load(refreshCacheKey, &c.entries); err != nil {
		return nil, err
	}
	if c.entries == nil {
		c.entries = map[string]refreshEntry{}
	}
	return c, nil
}

// Unchanged reports whether table's (fileCount, latestMtime) match the
// last refresh.
func (c *RefreshCache) Unchanged(table string, fileCount int, latestMtime int64) bool {
	e, ok := c.entries[table]
	return ok && e.FileCount == fileCount && e.LatestMtime == latestMtime
}

// Record updates table's cached (fileCount, latestMtime) and persists the
// cache immediately.
func (c *RefreshCache) Record(table string, fileCount int, latestMtime int64) {
	c.entries[table] = refreshEntry{FileCount: fileCount, LatestMtime: latestMtime}
	_ = c.store.Save(refreshCacheKey, c.entries)
}
