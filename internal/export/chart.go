package export

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/series"
)

// Series colours.
var (
	ColorModules      = drawing.ColorFromHex("1f77b4")
	ColorContributors = drawing.ColorFromHex("9467bd")
	ColorIssues       = drawing.ColorFromHex("ff7f0e")
	ColorPRs          = drawing.ColorFromHex("2ca02c")
)

// Theme is a text colour variant of a chart. The background is always
// transparent.
type Theme struct {
	Name string
	Text drawing.Color
}

// Themes are rendered for every chart, in this order.
var Themes = []Theme{
	{Name: "light", Text: drawing.ColorBlack},
	{Name: "dark", Text: drawing.ColorWhite},
}

// ChartSpec describes one chart independently of its data.
type ChartSpec struct {
	Title  string
	XLabel string
	YLabel string
	Color  drawing.Color
	Width  int
	Height int
}

// RenderSVG renders s as a line chart in the given theme.
func RenderSVG(s series.Series, spec ChartSpec, theme Theme) ([]byte, error) {
	if len(s) == 0 {
		return nil, errors.ValidationError("cannot chart an empty series")
	}
	if spec.Width <= 0 {
		spec.Width = 1000
	}
	if spec.Height <= 0 {
		spec.Height = 500
	}

	xs := make([]time.Time, len(s))
	for i, p := range s {
		xs[i] = p.Date.UTC()
	}
	ys := s.Values()

	text := chart.Style{FontColor: theme.Text, StrokeColor: theme.Text}
	graph := chart.Chart{
		Title:      spec.Title,
		TitleStyle: chart.Style{FontColor: theme.Text},
		Width:      spec.Width,
		Height:     spec.Height,
		Background: chart.Style{FillColor: drawing.ColorTransparent},
		Canvas:     chart.Style{FillColor: drawing.ColorTransparent},
		XAxis: chart.XAxis{
			Name:           spec.XLabel,
			NameStyle:      text,
			Style:          text,
			ValueFormatter: chart.TimeDateValueFormatter,
			Range:          timeRange(xs),
		},
		YAxis: chart.YAxis{
			Name:      spec.YLabel,
			NameStyle: text,
			Style:     text,
			Range:     valueRange(ys),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name: spec.Title,
				Style: chart.Style{
					StrokeColor: spec.Color,
					StrokeWidth: 2,
					DotColor:    spec.Color,
					DotWidth:    2,
				},
				XValues: xs,
				YValues: ys,
			},
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.SVG, &buf); err != nil {
		return nil, errors.InternalErrorf("render %q: %v", spec.Title, err)
	}
	return buf.Bytes(), nil
}

// timeRange spans the dates, widened to one day when they coincide.
func timeRange(xs []time.Time) *chart.ContinuousRange {
	minX, maxX := xs[0], xs[0]
	for _, x := range xs[1:] {
		if x.Before(minX) {
			minX = x
		}
		if x.After(maxX) {
			maxX = x
		}
	}
	if !maxX.After(minX) {
		maxX = minX.Add(24 * time.Hour)
	}
	return &chart.ContinuousRange{Min: chart.TimeToFloat64(minX), Max: chart.TimeToFloat64(maxX)}
}

// valueRange starts at zero and leaves headroom above the largest value.
func valueRange(ys []float64) *chart.ContinuousRange {
	maxY := 0.0
	for _, y := range ys {
		if y > maxY {
			maxY = y
		}
	}
	if maxY == 0 {
		maxY = 1
	}
	return &chart.ContinuousRange{Min: 0, Max: maxY * 1.05}
}

// WriteCharts renders every theme of s to <base>_<theme>.svg and returns the
// paths written.
func WriteCharts(base string, s series.Series, spec ChartSpec) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(base), 0755); err != nil {
		return nil, errors.FileSystemErrorf(err, "failed to create %s", filepath.Dir(base))
	}

	var written []string
	for _, theme := range Themes {
		svg, err := RenderSVG(s, spec, theme)
		if err != nil {
			return written, err
		}
		path := base + "_" + theme.Name + ".svg"
		if err := os.WriteFile(path, svg, 0644); err != nil {
			return written, errors.FileSystemErrorf(err, "failed to write %s", path)
		}
		written = append(written, path)
	}
	return written, nil
}
