package main

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rohankatakam/repostats/internal/cache"
	"github.com/rohankatakam/repostats/internal/config"
	"github.com/rohankatakam/repostats/internal/export"
	"github.com/rohankatakam/repostats/internal/git"
	"github.com/rohankatakam/repostats/internal/github"
	"github.com/rohankatakam/repostats/internal/series"
)

var githubCmd = &cobra.Command{
	Use:   "github <owner>/<repo>",
	Short: "Issues and pull requests over time from the GitHub API",
	Long: `Fetch every issue and pull request of <owner>/<repo> and write the
created, open and monthly-new series for each.

Items are cached in <cache-dir>/<owner>_<repo>_cache.json. Later runs only
request items numbered above the highest cached number, and the cache is
saved every --batch-size new items so an interrupted run resumes where it
stopped.

Token lookup order: --token, GITHUB_TOKEN, GH_TOKEN, the OS keychain
(see 'repostats auth login'), the config file.`,
	Example: `  repostats github MultiQC/MultiQC
  repostats github https://github.com/MultiQC/MultiQC.git --out stats --preview`,
	Args: exactArgs(1),
	RunE: runGitHub,
}

var (
	githubToken     string
	githubCacheDir  string
	githubBatchSize int
	githubNoCache   bool
	githubJournal   bool
	githubRefresh   bool
	githubOut       string
	githubStore     string
	githubPreview   bool
)

func init() {
	githubCmd.Flags().StringVar(&githubToken, "token", "", "GitHub token (overrides env, keychain and config)")
	githubCmd.Flags().StringVar(&githubCacheDir, "cache-dir", "", "directory holding the cache files")
	githubCmd.Flags().IntVar(&githubBatchSize, "batch-size", 0, "save the cache every N new items")
	githubCmd.Flags().BoolVar(&githubNoCache, "no-cache", false, "fetch everything and write no cache file")
	githubCmd.Flags().BoolVar(&githubJournal, "journal", false, "also log every new item to a bbolt journal")
	githubCmd.Flags().BoolVar(&githubRefresh, "refresh", false, "delete the cache before fetching")
	githubCmd.Flags().StringVar(&githubOut, "out", "", "output directory")
	githubCmd.Flags().StringVar(&githubStore, "store", "", "store the series in a SQLite file or postgres:// database")
	githubCmd.Flags().BoolVar(&githubPreview, "preview", false, "plot each series in the terminal")
}

func applyGitHubFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("cache-dir") {
		cfg.Cache.Directory = githubCacheDir
	}
	if flags.Changed("batch-size") {
		cfg.Cache.BatchSize = githubBatchSize
	}
	if flags.Changed("journal") {
		cfg.Cache.Journal = githubJournal
	}
	if flags.Changed("out") {
		cfg.Output.Directory = githubOut
	}
	if flags.Changed("store") {
		cfg.Storage.DSN = githubStore
	}
}

func runGitHub(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	owner, name, err := git.ParseRepoSlug(args[0])
	if err != nil {
		return err
	}
	slug := owner + "/" + name

	applyGitHubFlags(cmd)
	token, source := config.NewCredentialManager(cfg, logger).ResolveGitHubToken(githubToken)
	cfg.GitHub.Token = token
	if err := checkConfig(logrus.WarnLevel); err != nil {
		return err
	}

	rec, err := beginRun(ctx, "github", slug)
	if err != nil {
		return err
	}
	log := logger.WithFields(logrus.Fields{"run_id": rec.run.ID, "repo": slug})
	log.WithField("token_source", source).Debug("resolved GitHub token")

	client, err := github.NewClient(github.Options{
		Token:     token,
		RateLimit: cfg.GitHub.RateLimit,
		PerPage:   cfg.GitHub.PerPage,
		BaseURL:   cfg.GitHub.BaseURL,
	}, log)
	if err != nil {
		rec.finish(ctx)
		return err
	}

	// fails on a bad token or slug before the cache is touched
	repo, err := client.Resolve(ctx, owner, name)
	if err != nil {
		rec.finish(ctx)
		return err
	}
	log.WithFields(logrus.Fields{"url": repo.URL, "open_issues": repo.OpenIssues}).Info("resolved repository")

	var c *cache.Cache
	if githubNoCache {
		c = cache.New("", log)
	} else {
		manager := cache.NewManager(cfg.Cache.Directory, log)
		if githubRefresh {
			if err := manager.Clear(owner, name); err != nil {
				rec.finish(ctx)
				return err
			}
		}
		var closer io.Closer
		c, closer, err = manager.Open(owner, name, cfg.Cache.Journal)
		if err != nil {
			rec.finish(ctx)
			return err
		}
		defer closer.Close()
		log.WithFields(logrus.Fields{"path": c.Path(), "cached": c.Len()}).Info("loaded cache")
	}

	res, err := cache.Fetch(ctx, c, client.Items(owner, name), cache.FetchOptions{
		BatchSize: cfg.Cache.BatchSize,
	}, log)
	if err != nil {
		rec.finish(ctx)
		return err
	}
	fmt.Printf("%s: %d new items (cache holds %d, highest #%d)\n", repo.FullName, res.New, c.Len(), res.HighWater)

	now := time.Now()
	outputs := append(
		export.ItemOutputs("issues", repo.FullName, c.Spans(false), now),
		export.ItemOutputs("prs", repo.FullName, c.Spans(true), now)...,
	)

	exp := export.NewExporter(export.Options{
		Dir:     cfg.Output.Directory,
		Width:   cfg.Output.Width,
		Height:  cfg.Output.Height,
		Store:   rec.store,
		RunID:   rec.run.ID,
		Preview: previewWriter(githubPreview),
	}, log)
	if err := exp.ExportAll(ctx, outputs); err != nil {
		rec.finish(ctx)
		return err
	}
	if err := rec.finish(ctx); err != nil {
		return err
	}

	printSummary(c.Spans(false), c.Spans(true), now)
	printWritten(exp.Written())
	return nil
}

func printSummary(issues, prs []series.Span, now time.Time) {
	fmt.Printf("  issues: %d total, %d open\n", len(issues), series.OpenAt(issues, now))
	fmt.Printf("  pull requests: %d total, %d open\n", len(prs), series.OpenAt(prs, now))
}
