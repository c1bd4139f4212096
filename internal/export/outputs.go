package export

import (
	"time"

	"github.com/rohankatakam/repostats/internal/series"
)

// HistoryOutputs lays out the modules and contributors series of a git
// history run.
func HistoryOutputs(project string, modules, contributors series.Series) []Output {
	return []Output{
		{
			Name:      "modules",
			CSV:       "data/modules_over_time.csv",
			Header:    []string{"date", "cumulative_modules", "module_name"},
			ChartBase: "plots/modules_over_time",
			Chart: ChartSpec{
				Title:  project + " modules over time",
				XLabel: "Date",
				YLabel: "Modules",
				Color:  ColorModules,
			},
			Series: modules,
		},
		{
			Name:      "contributors",
			CSV:       "data/contributors_over_time.csv",
			Header:    []string{"date", "cumulative_contributors", "contributor_name"},
			ChartBase: "plots/contributors_over_time",
			Chart: ChartSpec{
				Title:  project + " contributors over time",
				XLabel: "Date",
				YLabel: "Contributors",
				Color:  ColorContributors,
			},
			Series: contributors,
		},
	}
}

// ItemOutputs lays out the created, open and monthly-new series for one
// kind of item: "issues" or "prs".
func ItemOutputs(kind, repo string, spans []series.Span, now time.Time) []Output {
	noun, color := "issues", ColorIssues
	if kind == "prs" {
		noun, color = "pull requests", ColorPRs
	}

	return []Output{
		{
			Name:      kind + "_created",
			CSV:       kind + "_created_over_time.csv",
			Header:    []string{"date", "cumulative_" + kind + "_created"},
			ChartBase: kind + "_created",
			Chart:     ChartSpec{Title: repo + " " + noun + " created", XLabel: "Date", YLabel: "Total created", Color: color},
			Series:    series.Cumulative(spans),
		},
		{
			Name:      kind + "_open",
			CSV:       kind + "_open_over_time.csv",
			Header:    []string{"date", kind + "_open"},
			ChartBase: kind + "_open",
			Chart:     ChartSpec{Title: repo + " open " + noun, XLabel: "Date", YLabel: "Open", Color: color},
			Series:    series.OpenOverTime(spans, now),
		},
		{
			Name:      kind + "_monthly",
			CSV:       kind + "_monthly_new.csv",
			Header:    []string{"month_start", "new_" + kind},
			ChartBase: kind + "_monthly",
			Chart:     ChartSpec{Title: repo + " new " + noun + " per month", XLabel: "Month", YLabel: "New", Color: color},
			Series:    series.MonthlyNew(spans, now),
		},
	}
}
