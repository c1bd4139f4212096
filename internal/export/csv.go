// Package export writes series to CSV files, SVG charts, a run store and
// the terminal.
package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/series"
)

// WriteCSV writes s to path with the given header. The third column, when
// the header has one, carries each point's label.
func WriteCSV(path string, header []string, s series.Series) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.FileSystemErrorf(err, "failed to create %s", filepath.Dir(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.FileSystemErrorf(err, "failed to create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return errors.FileSystemErrorf(err, "failed to write %s", path)
	}

	withLabel := len(header) > 2
	for _, p := range s {
		row := []string{p.Date.UTC().Format(series.DateLayout), strconv.Itoa(p.Value)}
		if withLabel {
			row = append(row, p.Label)
		}
		if err := w.Write(row); err != nil {
			return errors.FileSystemErrorf(err, "failed to write %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.FileSystemErrorf(err, "failed to write %s", path)
	}
	if err := f.Close(); err != nil {
		return errors.FileSystemErrorf(err, "failed to close %s", path)
	}
	return nil
}
