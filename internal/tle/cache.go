package tle

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ErrCacheEmpty is returned by Cache.Latest when nothing has been stored.
var ErrCacheEmpty = errors.New("element set cache is empty")

const (
	cachePrefix = "elements_"
	cacheSuffix = ".tle"
)

// Cache keeps the most recent downloads on disk so a restart without
// network access can still track from the last known elements.
type Cache struct {
	dir  string
	keep int
}

// NewCache creates a Cache rooted at dir retaining at most keep files.
func NewCache(dir string, keep int) *Cache {
	if keep <= 0 {
		keep = 3
	}
	return &Cache{dir: dir, keep: keep}
}

// Store writes data under a name derived from ts and prunes older files.
func (c *Cache) Store(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	name := cachePrefix + strconv.FormatInt(ts.Unix(), 10) + cacheSuffix
	tmp := filepath.Join(c.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(c.dir, name)); err != nil {
		return fmt.Errorf("renaming cache file: %w", err)
	}

	return c.prune()
}

// Latest returns the newest stored download and its timestamp.
func (c *Cache) Latest() ([]byte, time.Time, error) {
	entries, err := c.entries()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(entries) == 0 {
		return nil, time.Time{}, ErrCacheEmpty
	}

	newest := entries[len(entries)-1]
	data, err := os.ReadFile(filepath.Join(c.dir, newest.name))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
	}
	return data, newest.ts, nil
}

type cacheEntry struct {
	name string
	ts   time.Time
}

// entries lists cache files oldest first.
func (c *Cache) entries() ([]cacheEntry, error) {
	dirEntries, err := os.ReadDir(c.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var out []cacheEntry
	for _, e := range dirEntries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, cachePrefix) || !strings.HasSuffix(name, cacheSuffix) {
			continue
		}
		unix, err := strconv.ParseInt(strings.TrimSuffix(strings.TrimPrefix(name, cachePrefix), cacheSuffix), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, cacheEntry{name: name, ts: time.Unix(unix, 0).UTC()})
	}

	slices.SortFunc(out, func(a, b cacheEntry) int {
		return cmp.Compare(a.ts.Unix(), b.ts.Unix())
	})
	return out, nil
}

func (c *Cache) prune() error {
	entries, err := c.entries()
	if err != nil {
		return err
	}
	if len(entries) <= c.keep {
		return nil
	}

	for _, e := range entries[:len(entries)-c.keep] {
		if err := os.Remove(filepath.Join(c.dir, e.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", e.name, err)
		}
	}
	return nil
}
