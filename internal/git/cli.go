package git

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/identity"
)

// Record layout emitted by `git log` for CLIWalker:
// \x1e hash \x1f author name \x1f author email \x1f committer date \x1f parents \x1f body \x1d
// followed by --name-status lines.
const (
	recordStart = "\x1e"
	fieldSep    = "\x1f"
	bodyEnd     = "\x1d"
	logFormat   = "--format=%x1e%H%x1f%an%x1f%ae%x1f%cI%x1f%P%x1f%B%x1d"
)

// CLIWalker walks history by running the git binary, for repositories that
// go-git cannot read (partial clones, exotic extensions).
type CLIWalker struct {
	repoPath string
	logger   logrus.FieldLogger
}

// NewCLIWalker creates a walker for the checkout at repoPath.
func NewCLIWalker(repoPath string, logger logrus.FieldLogger) *CLIWalker {
	return &CLIWalker{repoPath: repoPath, logger: logger}
}

// Count implements Walker.
func (w *CLIWalker) Count(ctx context.Context) (int, error) {
	output, err := w.run(ctx, "rev-list", "--count", "HEAD")
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(strings.TrimSpace(output))
	if err != nil {
		return 0, fmt.Errorf("parse commit count %q: %w", output, err)
	}
	return n, nil
}

// Walk implements Walker.
func (w *CLIWalker) Walk(ctx context.Context, fn func(Commit) error) error {
	output, err := w.run(ctx, "log", "--reverse", "--date-order", "--no-renames",
		"--name-status", logFormat, "HEAD")
	if err != nil {
		return err
	}

	commits, err := parseGitLogOutput(output)
	if err != nil {
		return err
	}
	w.logger.WithField("commits", len(commits)).Debug("parsed git log")

	for _, c := range commits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (w *CLIWalker) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = w.repoPath

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s failed: %w (stderr: %s)", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return string(output), nil
}

// parseGitLogOutput parses the raw git log output into Commit structs
func parseGitLogOutput(output string) ([]Commit, error) {
	var commits []Commit

	for _, record := range strings.Split(output, recordStart) {
		if strings.TrimSpace(record) == "" {
			continue
		}

		end := strings.Index(record, bodyEnd)
		if end < 0 {
			return nil, fmt.Errorf("truncated git log record: %.40q", record)
		}

		parts := strings.SplitN(record[:end], fieldSep, 6)
		if len(parts) != 6 {
			return nil, fmt.Errorf("malformed git log header: %.40q", record)
		}

		date, err := time.Parse(time.RFC3339, parts[3])
		if err != nil {
			return nil, fmt.Errorf("parse commit date %q: %w", parts[3], err)
		}

		commit := Commit{
			Hash: parts[0],
			Author: identity.Person{
				Name:     identity.NormalizeName(parts[1]),
				Email:    identity.NormalizeEmail(parts[2]),
				Username: identity.UsernameFromEmail(parts[2]),
			},
			Date:    date,
			Message: strings.TrimRight(parts[5], "\n"),
			IsMerge: len(strings.Fields(parts[4])) > 1,
		}

		// Name-status lines: <status>\t<path>
		scanner := bufio.NewScanner(strings.NewReader(record[end+len(bodyEnd):]))
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			fields := strings.SplitN(line, "\t", 2)
			if len(fields) != 2 {
				continue
			}
			if fields[0] == "A" {
				commit.Added = append(commit.Added, fields[1])
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("scanning git log output: %w", err)
		}

		commits = append(commits, commit)
	}

	return commits, nil
}
