package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repostats/internal/config"
	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/logging"
	"github.com/rohankatakam/repostats/internal/storage"
)

var (
	// Version information (set by build flags)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	cfgFile   string
	verbose   bool
	logger    *logrus.Logger
	logCloser io.Closer
	cfg       *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprint(os.Stderr, formatError(err, verbose))
		os.Exit(errors.ExitCode(err))
	}
}

// formatError renders err for the terminal. With detailed set, typed errors
// also show their severity, type and context.
func formatError(err error, detailed bool) string {
	var e *errors.Error
	if detailed && stderrors.As(err, &e) {
		return "Error: " + e.DetailedString()
	}
	return fmt.Sprintf("Error: %v\n", err)
}

var rootCmd = &cobra.Command{
	Use:   "repostats",
	Short: "Repository growth statistics from git history and GitHub",
	Long: `repostats turns a project's history into time series and charts:
modules and contributors from the git log, issues and pull requests from
the GitHub API (cached incrementally on disk).`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		logger, logCloser, err = logging.New(logging.Config{
			Level:      level,
			OutputFile: cfg.Log.File,
			JSONFormat: cfg.Log.JSON,
		})
		if err != nil {
			return errors.FileSystemError(err, "failed to initialise logging")
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .repostats/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return errors.ValidationError(err.Error())
	})

	// Set custom version template
	rootCmd.SetVersionTemplate(`repostats {{.Version}}
Build time: ` + BuildTime + `
Git commit: ` + GitCommit + `
`)

	// Add subcommands
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(githubCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(configCmd)
}

// exactArgs is cobra.ExactArgs reporting a usage error.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.ValidationErrorf("%s expects %d argument(s), got %d", cmd.CommandPath(), n, len(args))
		}
		return nil
	}
}

// checkConfig validates cfg after flag overrides. Warnings are logged at
// warnLevel.
func checkConfig(warnLevel logrus.Level) error {
	result := cfg.Validate()
	for _, w := range result.Warnings {
		logger.Log(warnLevel, w)
	}
	return result.Err()
}

// runRecord tags a command invocation with a run ID and, when a store DSN
// is configured, records it there.
type runRecord struct {
	run   *storage.Run
	store storage.Store
}

func beginRun(ctx context.Context, command, target string) (*runRecord, error) {
	rec := &runRecord{run: &storage.Run{
		ID:        uuid.NewString(),
		Command:   command,
		Target:    target,
		StartedAt: time.Now().UTC(),
	}}
	if cfg.Storage.DSN == "" {
		return rec, nil
	}

	store, err := storage.Open(cfg.Storage.DSN, logger.WithField("run_id", rec.run.ID))
	if err != nil {
		return nil, errors.FileSystemError(err, "failed to open run store")
	}
	if err := store.SaveRun(ctx, rec.run); err != nil {
		store.Close()
		return nil, errors.FileSystemError(err, "failed to record run")
	}
	rec.store = store
	return rec, nil
}

func (r *runRecord) finish(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	defer r.store.Close()

	// record the end of interrupted runs too
	r.run.FinishedAt = time.Now().UTC()
	if err := r.store.SaveRun(context.WithoutCancel(ctx), r.run); err != nil {
		return errors.FileSystemError(err, "failed to record run")
	}
	return nil
}

// previewWriter returns stdout when the preview was requested.
func previewWriter(enabled bool) io.Writer {
	if enabled {
		return os.Stdout
	}
	return nil
}

func printWritten(paths []string) {
	fmt.Println()
	fmt.Printf("✓ Wrote %d files\n", len(paths))
	for _, p := range paths {
		fmt.Printf("  %s\n", p)
	}
}
