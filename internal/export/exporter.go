package export

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/series"
	"github.com/rohankatakam/repostats/internal/storage"
)

// Output is one series and where it goes. Paths are relative to the
// exporter's directory.
type Output struct {
	// Name identifies the series in the run store.
	Name      string
	CSV       string
	Header    []string
	ChartBase string
	Chart     ChartSpec
	Series    series.Series
}

// Options configure an Exporter.
type Options struct {
	Dir    string
	Width  int
	Height int
	// Store and RunID enable persisting every series. Store may be nil.
	Store storage.Store
	RunID string
	// Preview, when set, receives an ASCII chart per series.
	Preview io.Writer
}

// Exporter writes every Output to the configured sinks.
type Exporter struct {
	opts    Options
	logger  logrus.FieldLogger
	written []string
}

// NewExporter creates an exporter.
func NewExporter(opts Options, logger logrus.FieldLogger) *Exporter {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	return &Exporter{opts: opts, logger: logger}
}

// Export writes the CSV and the charts of out, stores it and previews it.
// Empty series still get a CSV, but no charts.
func (e *Exporter) Export(ctx context.Context, out Output) error {
	logger := e.logger.WithFields(logrus.Fields{"series": out.Name, "points": len(out.Series)})

	csvPath := filepath.Join(e.opts.Dir, out.CSV)
	if err := WriteCSV(csvPath, out.Header, out.Series); err != nil {
		return err
	}
	e.written = append(e.written, csvPath)
	logger.WithField("path", csvPath).Info("wrote CSV")

	if len(out.Series) == 0 {
		logger.Warn("series is empty, skipping charts")
	} else {
		spec := out.Chart
		if spec.Width == 0 {
			spec.Width = e.opts.Width
		}
		if spec.Height == 0 {
			spec.Height = e.opts.Height
		}
		paths, err := WriteCharts(filepath.Join(e.opts.Dir, out.ChartBase), out.Series, spec)
		e.written = append(e.written, paths...)
		if err != nil {
			return err
		}
		logger.WithField("paths", paths).Info("wrote charts")
	}

	if e.opts.Store != nil {
		if err := e.opts.Store.SaveSeries(ctx, e.opts.RunID, out.Name, out.Series); err != nil {
			return errors.FileSystemErrorf(err, "failed to store series %s", out.Name)
		}
	}

	if e.opts.Preview != nil {
		fmt.Fprintln(e.opts.Preview, Preview(out.Series, 60, 10, out.Chart.Title))
		fmt.Fprintln(e.opts.Preview)
	}
	return nil
}

// ExportAll exports outs in order, stopping at the first failure.
func (e *Exporter) ExportAll(ctx context.Context, outs []Output) error {
	for _, out := range outs {
		if err := e.Export(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

// Written lists every file written so far.
func (e *Exporter) Written() []string { return e.written }
