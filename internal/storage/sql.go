package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/series"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL backends.
// Queries use ? placeholders and are rebound for the driver.
type sqlStore struct {
	db     *sqlx.DB
	logger logrus.FieldLogger
}

type pointRow struct {
	RunID  string    `db:"run_id"`
	Series string    `db:"series"`
	Seq    int       `db:"seq"`
	Date   time.Time `db:"date"`
	Value  int       `db:"value"`
	Label  string    `db:"label"`
}

func schema(timestampType string) string {
	return fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		target TEXT NOT NULL,
		started_at %[1]s,
		finished_at %[1]s
	);

	CREATE TABLE IF NOT EXISTS series_points (
		run_id TEXT NOT NULL REFERENCES runs(id),
		series TEXT NOT NULL,
		seq INTEGER NOT NULL,
		date %[1]s NOT NULL,
		value INTEGER NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, series, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_points_series ON series_points(series);
	`, timestampType)
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

// Run operations
func (s *sqlStore) SaveRun(ctx context.Context, run *Run) error {
	query := s.db.Rebind(`
		INSERT INTO runs (id, command, target, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET finished_at = excluded.finished_at
	`)
	_, err := s.db.ExecContext(ctx, query,
		run.ID, run.Command, run.Target, run.StartedAt.UTC(), run.FinishedAt.UTC())
	return err
}

func (s *sqlStore) GetRun(ctx context.Context, id string) (*Run, error) {
	var run Run
	query := s.db.Rebind(`SELECT id, command, target, started_at, finished_at FROM runs WHERE id = ?`)

	err := s.db.GetContext(ctx, &run, query, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &run, nil
}

func (s *sqlStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	var runs []*Run
	query := s.db.Rebind(`SELECT id, command, target, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT ?`)

	if err := s.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, err
	}

	return runs, nil
}

// Series operations
func (s *sqlStore) SaveSeries(ctx context.Context, runID, name string, points series.Series) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM series_points WHERE run_id = ? AND series = ?`), runID, name); err != nil {
		return err
	}

	query := tx.Rebind(`
		INSERT INTO series_points (run_id, series, seq, date, value, label)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	for i, p := range points {
		if _, err := tx.ExecContext(ctx, query, runID, name, i, p.Date.UTC(), p.Value, p.Label); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	s.logger.WithFields(logrus.Fields{"run_id": runID, "series": name, "points": len(points)}).Debug("series stored")
	return nil
}

func (s *sqlStore) GetSeries(ctx context.Context, runID, name string) (series.Series, error) {
	var rows []pointRow
	query := s.db.Rebind(`
		SELECT run_id, series, seq, date, value, label
		FROM series_points WHERE run_id = ? AND series = ? ORDER BY seq
	`)
	if err := s.db.SelectContext(ctx, &rows, query, runID, name); err != nil {
		return nil, err
	}

	out := make(series.Series, len(rows))
	for i, r := range rows {
		out[i] = series.Point{Date: r.Date.UTC(), Value: r.Value, Label: r.Label}
	}
	return out, nil
}
