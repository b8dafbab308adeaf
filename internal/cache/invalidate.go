package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ClearDir removes the directory and all contents. It recreates the directory
// afterwards to leave a valid empty cache location.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeHTTPCacheByAge removes HTTP cache entries older than maxAge.
// It inspects <key>.meta.json for SavedAt timestamp and deletes both meta and
// corresponding <key>.body when expired.
func PurgeHTTPCacheByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now().UTC()
	removed := 0
	err := walkMeta(dir, func(path string, _ fs.DirEntry) {
		b, err := os.ReadFile(path)
		if err != nil {
			return // skip unreadable
		}
		var e HTTPEntry
		if err := json.Unmarshal(b, &e); err != nil {
			return // skip malformed
		}
		if now.Sub(e.SavedAt) <= maxAge {
			return
		}
		removed++
		removeEntry(path)
	})
	return removed, err
}

type lruEntry struct {
	meta string
	used time.Time
	size int64
}

// EnforceHTTPCacheLimits evicts least recently used entries until the cache
// holds at most maxEntries entries and maxBytes body bytes. A limit of zero
// is ignored. It returns the number of entries removed.
func EnforceHTTPCacheLimits(dir string, maxBytes int64, maxEntries int) (int, error) {
	if maxBytes <= 0 && maxEntries <= 0 {
		return 0, nil
	}
	var entries []lruEntry
	var total int64
	err := walkMeta(dir, func(path string, d fs.DirEntry) {
		e := lruEntry{meta: path}
		if info, err := os.Stat(bodyFor(path)); err == nil {
			e.used = info.ModTime()
			e.size = info.Size()
		} else if info, err := d.Info(); err == nil {
			e.used = info.ModTime()
		}
		total += e.size
		entries = append(entries, e)
	})
	if err != nil {
		return 0, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].used.Before(entries[j].used) })

	removed := 0
	for _, e := range entries {
		overCount := maxEntries > 0 && len(entries)-removed > maxEntries
		overBytes := maxBytes > 0 && total > maxBytes
		if !overCount && !overBytes {
			break
		}
		removeEntry(e.meta)
		total -= e.size
		removed++
	}
	return removed, nil
}

func walkMeta(dir string, fn func(path string, d fs.DirEntry)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".meta.json") {
			return nil
		}
		fn(path, d)
		return nil
	})
}

func bodyFor(metaPath string) string {
	return strings.TrimSuffix(metaPath, ".meta.json") + ".body"
}

func removeEntry(metaPath string) {
	_ = os.Remove(metaPath)
	_ = os.Remove(bodyFor(metaPath))
}
