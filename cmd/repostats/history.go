package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	progress "gopkg.in/cheggaaa/pb.v1"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/export"
	"github.com/rohankatakam/repostats/internal/git"
	"github.com/rohankatakam/repostats/internal/history"
	"github.com/rohankatakam/repostats/internal/identity"
)

var historyCmd = &cobra.Command{
	Use:   "history <path>",
	Short: "Modules and contributors over time from git history",
	Long: `Walk the history of the repository at <path> oldest commit first and
write the modules-over-time and contributors-over-time series.

A module is an immediate subdirectory of the watch root, first seen when
a commit adds a file under it. Contributors are commit authors plus every
Co-authored-by trailer, with bots and the project itself left out.

Writes data/modules_over_time.csv, data/contributors_over_time.csv and
light/dark SVG charts under plots/.`,
	Args: exactArgs(1),
	RunE: runHistory,
}

var (
	historyWatchRoot string
	historyProject   string
	historyMailmap   string
	historyBackend   string
	historyOut       string
	historyStore     string
	historyPreview   bool
	historyProgress  bool
)

func init() {
	historyCmd.Flags().StringVar(&historyWatchRoot, "watch-root", "", "directory whose subdirectories are modules (default from config: multiqc/modules)")
	historyCmd.Flags().StringVar(&historyProject, "project", "", "project name, excluded from contributors and used in chart titles")
	historyCmd.Flags().StringVar(&historyMailmap, "mailmap", "", "mailmap file used to merge identities")
	historyCmd.Flags().StringVar(&historyBackend, "backend", "", "history backend: gogit or cli")
	historyCmd.Flags().StringVar(&historyOut, "out", "", "output directory")
	historyCmd.Flags().StringVar(&historyStore, "store", "", "store the series in a SQLite file or postgres:// database")
	historyCmd.Flags().BoolVar(&historyPreview, "preview", false, "plot each series in the terminal")
	historyCmd.Flags().BoolVar(&historyProgress, "progress", false, "show a progress bar while walking commits")
}

func applyHistoryFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("watch-root") {
		cfg.History.WatchRoot = historyWatchRoot
	}
	if flags.Changed("project") {
		cfg.History.Project = historyProject
	}
	if flags.Changed("mailmap") {
		cfg.History.Mailmap = historyMailmap
	}
	if flags.Changed("backend") {
		cfg.History.Backend = historyBackend
	}
	if flags.Changed("out") {
		cfg.Output.Directory = historyOut
	}
	if flags.Changed("store") {
		cfg.Storage.DSN = historyStore
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	path := args[0]

	applyHistoryFlags(cmd)
	// the token warning only matters to the github command
	if err := checkConfig(logrus.DebugLevel); err != nil {
		return err
	}

	repo, err := git.OpenRepository(path)
	if err != nil {
		return err
	}

	rec, err := beginRun(ctx, "history", path)
	if err != nil {
		return err
	}
	log := logger.WithFields(logrus.Fields{"run_id": rec.run.ID, "path": path})

	var walker git.Walker
	switch cfg.History.Backend {
	case "cli":
		walker = git.NewCLIWalker(path, log)
	default:
		walker = git.NewGoGitWalker(repo, log)
	}

	var mailmap identity.Mailmap
	if cfg.History.Mailmap != "" {
		mailmap, err = identity.LoadMailmap(cfg.History.Mailmap)
		if err != nil {
			rec.finish(ctx)
			return errors.FileSystemError(err, "failed to load mailmap")
		}
		log.WithField("entries", len(mailmap)).Info("loaded mailmap")
	}

	agg := history.NewAggregator(history.Options{
		WatchRoot: cfg.History.WatchRoot,
		Denylist:  identity.DefaultDenylist(cfg.History.Project),
		Mailmap:   mailmap,
	}, log)

	var onCommit func()
	var bar *progress.ProgressBar
	if historyProgress {
		total, err := walker.Count(ctx)
		if err != nil {
			rec.finish(ctx)
			return err
		}
		bar = progress.New(total)
		bar.Callback = func(msg string) {
			os.Stderr.WriteString("\033[2K\r" + msg)
		}
		bar.NotPrint = true
		bar.ShowPercent = false
		bar.ShowSpeed = false
		bar.SetMaxWidth(80).Start()
		onCommit = func() { bar.Increment() }
	}

	log.WithField("backend", cfg.History.Backend).Info("walking history")
	err = agg.Run(ctx, walker, onCommit)
	if bar != nil {
		bar.Finish()
		fmt.Fprint(os.Stderr, "\033[2K\r")
	}
	if err != nil {
		rec.finish(ctx)
		return err
	}
	log.WithFields(logrus.Fields{
		"commits":      agg.Commits(),
		"modules":      len(agg.Modules()),
		"contributors": len(agg.Contributors()),
	}).Info("history walked")

	exp := export.NewExporter(export.Options{
		Dir:     cfg.Output.Directory,
		Width:   cfg.Output.Width,
		Height:  cfg.Output.Height,
		Store:   rec.store,
		RunID:   rec.run.ID,
		Preview: previewWriter(historyPreview),
	}, log)
	if err := exp.ExportAll(ctx, export.HistoryOutputs(cfg.History.Project, agg.Modules(), agg.Contributors())); err != nil {
		rec.finish(ctx)
		return err
	}
	if err := rec.finish(ctx); err != nil {
		return err
	}

	fmt.Printf("%s: %d commits, %d modules, %d contributors\n",
		cfg.History.Project, agg.Commits(), len(agg.Modules()), len(agg.Contributors()))
	printWritten(exp.Written())
	return nil
}
