package cache

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/errors"
)

// Manager locates and opens the cache files in one directory.
type Manager struct {
	dir    string
	logger logrus.FieldLogger
}

// NewManager creates a manager for dir, creating the directory if needed
func NewManager(dir string, logger logrus.FieldLogger) *Manager {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.WithError(err).Warn("Failed to create cache directory")
	}
	return &Manager{dir: dir, logger: logger}
}

// Dir returns the cache directory.
func (m *Manager) Dir() string { return m.dir }

// Path returns the cache file for owner/repo.
func (m *Manager) Path(owner, repo string) string {
	return filepath.Join(m.dir, owner+"_"+repo+"_cache.json")
}

// JournalPath returns the bbolt journal file for owner/repo.
func (m *Manager) JournalPath(owner, repo string) string {
	return filepath.Join(m.dir, owner+"_"+repo+"_journal.db")
}

// Open loads the cache for owner/repo. With journal set, the bbolt journal
// is replayed and kept attached; the returned closer releases it.
func (m *Manager) Open(owner, repo string, journal bool) (*Cache, io.Closer, error) {
	logger := m.logger.WithField("repo", owner+"/"+repo)

	c, err := Load(m.Path(owner, repo), logger)
	if err != nil {
		return nil, nil, err
	}
	if !journal {
		return c, io.NopCloser(nil), nil
	}

	j, err := OpenBoltJournal(m.JournalPath(owner, repo))
	if err != nil {
		return nil, nil, errors.FileSystemError(err, "failed to open cache journal")
	}
	if err := c.AttachJournal(j); err != nil {
		j.Close()
		return nil, nil, err
	}
	return c, j, nil
}

// Clear removes the cache and journal files for owner/repo
func (m *Manager) Clear(owner, repo string) error {
	m.logger.WithField("repo", owner+"/"+repo).Info("Clearing cache")
	for _, path := range []string{m.Path(owner, repo), m.JournalPath(owner, repo)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.FileSystemErrorf(err, "failed to remove %s", path)
		}
	}
	return nil
}

// Size returns the total size of the cache directory in bytes
func (m *Manager) Size() (int64, error) {
	var size int64

	err := filepath.Walk(m.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	if err != nil {
		return 0, errors.FileSystemError(err, "failed to calculate cache size")
	}

	return size, nil
}
