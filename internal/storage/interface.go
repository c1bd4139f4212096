// Package storage persists run results for later querying.
package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/series"
)

// Common errors
var (
	ErrNotFound = errors.New("not found")
)

// Run describes one invocation whose series were stored.
type Run struct {
	ID         string    `db:"id"`
	Command    string    `db:"command"`
	Target     string    `db:"target"`
	StartedAt  time.Time `db:"started_at"`
	FinishedAt time.Time `db:"finished_at"`
}

// Store defines the storage interface
type Store interface {
	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// SaveSeries replaces the named series of a run.
	SaveSeries(ctx context.Context, runID, name string, s series.Series) error
	GetSeries(ctx context.Context, runID, name string) (series.Series, error)

	// Close connection
	Close() error
}

// Open picks the backend from the DSN: postgres:// and postgresql:// URLs go
// to PostgreSQL, anything else is a SQLite file path.
func Open(dsn string, logger logrus.FieldLogger) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(dsn, logger)
	}
	return NewSQLiteStore(strings.TrimPrefix(dsn, "sqlite://"), logger)
}
