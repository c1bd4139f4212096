package export

import (
	"github.com/guptarohit/asciigraph"

	"github.com/rohankatakam/repostats/internal/series"
)

// Preview renders s as an ASCII line chart for the terminal.
func Preview(s series.Series, width, height int, caption string) string {
	if len(s) == 0 {
		return caption + ": no data"
	}

	// Ensure minimum dimensions
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	return asciigraph.Plot(s.Values(),
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}
