// Package cache keeps the per-repository JSON cache of issues and pull
// requests, and grows it incrementally from a Source.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/series"
)

// Cache is the in-memory view of one cache file. Entries are keyed by item
// number and are never rewritten once stored.
type Cache struct {
	path    string
	entries map[int]Entry
	journal Journal
	logger  logrus.FieldLogger
}

// New returns an empty cache bound to path. An empty path makes Save a no-op.
func New(path string, logger logrus.FieldLogger) *Cache {
	return &Cache{
		path:    path,
		entries: make(map[int]Entry),
		logger:  logger,
	}
}

// Load reads the cache file at path. A missing file yields an empty cache.
func Load(path string, logger logrus.FieldLogger) (*Cache, error) {
	c := New(path, logger)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logger.WithField("path", path).Debug("no cache file yet")
			return c, nil
		}
		return nil, errors.FileSystemErrorf(err, "failed to read cache %s", path)
	}
	if len(data) == 0 {
		return c, nil
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, errors.FileSystemErrorf(err, "cache %s is not a JSON object", path)
	}

	for key, raw := range top {
		if n, err := strconv.Atoi(key); err == nil {
			var e Entry
			if err := json.Unmarshal(raw, &e); err != nil {
				return nil, errors.FileSystemErrorf(err, "cache %s: entry %s", path, key)
			}
			e.Number = n
			c.entries[n] = e
			continue
		}

		switch key {
		case "issues", "prs":
			if err := c.migrateLegacy(key, raw); err != nil {
				return nil, errors.FileSystemErrorf(err, "cache %s: legacy %s list", path, key)
			}
		default:
			logger.WithField("key", key).Debug("ignoring non-numeric cache key")
		}
	}

	logger.WithFields(logrus.Fields{
		"path":       path,
		"entries":    len(c.entries),
		"high_water": c.HighWater(),
	}).Info("cache loaded")
	return c, nil
}

// migrateLegacy folds the old {"issues": [...], "prs": [...]} layout in.
func (c *Cache) migrateLegacy(key string, raw json.RawMessage) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	for _, item := range items {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			return err
		}
		if e.Number <= 0 {
			continue
		}
		if key == "prs" {
			e.IsPR = true
		}
		if _, exists := c.entries[e.Number]; !exists {
			c.entries[e.Number] = e
		}
	}
	c.logger.WithFields(logrus.Fields{"list": key, "items": len(items)}).Info("migrated legacy cache layout")
	return nil
}

// AttachJournal replays j into the cache and records every later Merge in it.
func (c *Cache) AttachJournal(j Journal) error {
	replayed := 0
	err := j.Replay(func(e Entry) error {
		if _, exists := c.entries[e.Number]; !exists {
			c.entries[e.Number] = e
			replayed++
		}
		return nil
	})
	if err != nil {
		return errors.FileSystemError(err, "failed to replay cache journal")
	}
	if replayed > 0 {
		c.logger.WithField("entries", replayed).Warn("recovered entries from journal")
	}
	c.journal = j
	return nil
}

// discardJournal drops journaled entries numbered above after, so they are
// not replayed by the next Load.
func (c *Cache) discardJournal(after int) error {
	if c.journal == nil {
		return nil
	}
	if err := c.journal.Discard(after); err != nil {
		return errors.FileSystemError(err, "failed to discard cache journal entries")
	}
	return nil
}

// Path returns the file the cache persists to.
func (c *Cache) Path() string { return c.path }

// Len returns the number of cached items.
func (c *Cache) Len() int { return len(c.entries) }

// HighWater returns the largest cached item number, or 0 when empty.
func (c *Cache) HighWater() int {
	hw := 0
	for n := range c.entries {
		if n > hw {
			hw = n
		}
	}
	return hw
}

// Get returns the entry for number n.
func (c *Cache) Get(n int) (Entry, bool) {
	e, ok := c.entries[n]
	return e, ok
}

// Merge stores e unless its number is already cached. It reports whether
// the entry was added.
func (c *Cache) Merge(e Entry) (bool, error) {
	if e.Number <= 0 {
		return false, errors.ValidationErrorf("invalid item number %d", e.Number)
	}
	if _, exists := c.entries[e.Number]; exists {
		return false, nil
	}
	if c.journal != nil {
		if err := c.journal.Append(e); err != nil {
			return false, errors.FileSystemError(err, "failed to append to cache journal")
		}
	}
	c.entries[e.Number] = e
	return true, nil
}

// Entries returns every entry ordered by number.
func (c *Cache) Entries() []Entry {
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

// Spans returns the lifetimes of either the pull requests or the issues.
func (c *Cache) Spans(pullRequests bool) []series.Span {
	var spans []series.Span
	for _, e := range c.Entries() {
		if e.IsPR == pullRequests {
			spans = append(spans, e.Span())
		}
	}
	return spans
}

// Save writes the cache atomically and then clears the journal.
func (c *Cache) Save() error {
	if c.path == "" {
		return nil
	}

	out := make(map[string]Entry, len(c.entries))
	for n, e := range c.entries {
		out[strconv.Itoa(n)] = e
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return errors.InternalErrorf("failed to encode cache: %v", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "failed to create cache directory %s", dir)
	}
	if err := writeFileAtomic(c.path, data); err != nil {
		return errors.FileSystemErrorf(err, "failed to write cache %s", c.path)
	}

	if c.journal != nil {
		if err := c.journal.Reset(); err != nil {
			return errors.FileSystemError(err, "failed to reset cache journal")
		}
	}

	c.logger.WithFields(logrus.Fields{"path": c.path, "entries": len(c.entries)}).Debug("cache saved")
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
