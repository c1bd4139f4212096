package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/logging"
	"github.com/rohankatakam/repostats/internal/storage"
)

// resetFlags puts every flag back to its default so commands can run more
// than once in one process.
func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(context.Background())
}

// sandbox runs the test in an empty working and home directory.
func sandbox(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("HOME", dir)
	t.Setenv("GITHUB_TOKEN", "")
	t.Setenv("GH_TOKEN", "")
	t.Setenv("REPOSTATS_CACHE_DIR", "")
	t.Setenv("REPOSTATS_MODE", "ci")
	keyring.MockInit()
	return dir
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestUsageErrors(t *testing.T) {
	dir := sandbox(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing path", []string{"history", filepath.Join(dir, "nope")}},
		{"not a repository", []string{"history", dir}},
		{"no argument", []string{"history"}},
		{"malformed slug", []string{"github", "not-a-slug"}},
		{"unknown flag", []string{"github", "o/r", "--bogus"}},
		{"invalid batch size", []string{"github", "o/r", "--batch-size=0", "--token", "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, errors.ExitUsage, errors.ExitCode(err), err.Error())
		})
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := sandbox(t)

	repoDir := filepath.Join(dir, "repo")
	repo, err := gogit.PlainInit(repoDir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(day int, msg string, files ...string) {
		for _, f := range files {
			path := filepath.Join(repoDir, filepath.FromSlash(f))
			require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
			require.NoError(t, os.WriteFile(path, []byte(msg), 0644))
			_, err := wt.Add(f)
			require.NoError(t, err)
		}
		when := time.Date(2024, 1, day, 12, 0, 0, 0, time.UTC)
		sig := &object.Signature{Name: "Jane Doe", Email: "jane@users.noreply.github.com", When: when}
		_, err := wt.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
		require.NoError(t, err)
	}
	commit(1, "add fastqc", "multiqc/modules/fastqc/x.py")
	commit(2, "more fastqc\n\nCo-authored-by: dependabot[bot] <bot@github.com>", "multiqc/modules/fastqc/y.py")
	commit(3, "add samtools\n\nCo-authored-by: John Roe <john@example.com>", "multiqc/modules/samtools/z.py")

	out := filepath.Join(dir, "out")
	store := filepath.Join(dir, "runs.db")
	require.NoError(t, execute(t, "history", repoDir, "--out", out, "--store", store))

	assert.Equal(t, []string{
		"date,cumulative_modules,module_name",
		"2024-01-01,1,fastqc",
		"2024-01-03,2,samtools",
	}, readLines(t, filepath.Join(out, "data", "modules_over_time.csv")))

	contributors := readLines(t, filepath.Join(out, "data", "contributors_over_time.csv"))
	require.Len(t, contributors, 3)
	assert.True(t, strings.HasPrefix(contributors[1], "2024-01-01,1,"))
	assert.True(t, strings.HasPrefix(contributors[2], "2024-01-03,2,"))

	for _, name := range []string{"modules_over_time", "contributors_over_time"} {
		for _, theme := range []string{"light", "dark"} {
			assert.FileExists(t, filepath.Join(out, "plots", name+"_"+theme+".svg"))
		}
	}

	s, err := storage.Open(store, logging.Discard())
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "history", runs[0].Command)
	assert.False(t, runs[0].FinishedAt.Before(runs[0].StartedAt))

	modules, err := s.GetSeries(context.Background(), runs[0].ID, "modules")
	require.NoError(t, err)
	assert.Len(t, modules, 2)
}

// githubServer serves repository o/r with issues #1 and #3 and pull
// request #2.
func githubServer(t *testing.T, repoStatus int) *httptest.Server {
	created := func(d int) string {
		return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
	}
	items := []map[string]interface{}{
		{"number": 1, "title": "one", "state": "closed", "created_at": created(1), "closed_at": created(4)},
		{"number": 2, "title": "two", "state": "open", "created_at": created(2), "pull_request": map[string]string{"url": "x"}},
		{"number": 3, "title": "three", "state": "open", "created_at": created(3)},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/o/r", func(w http.ResponseWriter, r *http.Request) {
		if repoStatus != http.StatusOK {
			http.Error(w, `{"message":"Bad credentials"}`, repoStatus)
			return
		}
		fmt.Fprint(w, `{"full_name":"o/r","html_url":"https://github.com/o/r","open_issues_count":2}`)
	})
	mux.HandleFunc("/repos/o/r/issues", func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewEncoder(w).Encode(items))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeConfig(t *testing.T, dir, baseURL string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".repostats"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".repostats", "config.yaml"), []byte(fmt.Sprintf(`
github:
  base_url: %s
  rate_limit: 1000
log:
  level: error
`, baseURL)), 0644))
}

func TestGitHubCommand(t *testing.T) {
	dir := sandbox(t)
	server := githubServer(t, http.StatusOK)
	writeConfig(t, dir, server.URL)

	out := filepath.Join(dir, "out")
	caches := filepath.Join(dir, "caches")
	require.NoError(t, execute(t, "github", "https://github.com/o/r.git",
		"--token", "test-token", "--out", out, "--cache-dir", caches))

	var raw map[string]json.RawMessage
	data, err := os.ReadFile(filepath.Join(caches, "o_r_cache.json"))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Len(t, raw, 3)

	assert.Equal(t, []string{
		"date,cumulative_issues_created",
		"2024-01-01,2",
	}, readLines(t, filepath.Join(out, "issues_created_over_time.csv")))
	assert.Equal(t, []string{
		"date,cumulative_prs_created",
		"2024-01-01,1",
	}, readLines(t, filepath.Join(out, "prs_created_over_time.csv")))

	for _, base := range []string{"issues_created", "issues_open", "issues_monthly", "prs_created", "prs_open", "prs_monthly"} {
		assert.FileExists(t, filepath.Join(out, base+"_light.svg"))
		assert.FileExists(t, filepath.Join(out, base+"_dark.svg"))
	}

	// a rerun against the same source leaves the cache untouched
	require.NoError(t, execute(t, "github", "o/r", "--token", "test-token", "--out", out, "--cache-dir", caches))
	again, err := os.ReadFile(filepath.Join(caches, "o_r_cache.json"))
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestGitHubCommand_AuthRejected(t *testing.T) {
	dir := sandbox(t)
	server := githubServer(t, http.StatusUnauthorized)
	writeConfig(t, dir, server.URL)

	caches := filepath.Join(dir, "caches")
	err := execute(t, "github", "o/r", "--token", "bad", "--cache-dir", caches)
	require.Error(t, err)
	assert.Equal(t, errors.ExitAuth, errors.ExitCode(err))
	assert.NoFileExists(t, filepath.Join(caches, "o_r_cache.json"))
}

func TestConfigInit(t *testing.T) {
	dir := sandbox(t)
	path := filepath.Join(dir, "cfg", "config.yaml")

	require.NoError(t, execute(t, "config", "init", path))
	assert.FileExists(t, path)

	err := execute(t, "config", "init", path)
	require.Error(t, err)
	assert.Equal(t, errors.ExitUsage, errors.ExitCode(err))

	require.NoError(t, execute(t, "config", "init", path, "--force"))
	require.NoError(t, execute(t, "--config", path, "config", "show"))
}

func TestFormatError(t *testing.T) {
	typed := errors.SecurityError(fmt.Errorf("401 Bad credentials"), "token rejected").
		WithContext("high_water", 30).
		WithContext("new", 5)
	err := fmt.Errorf("github o/r: %w", typed)

	assert.Equal(t, "Error: "+err.Error()+"\n", formatError(err, false))

	detailed := formatError(err, true)
	assert.Contains(t, detailed, "[CRITICAL] [SECURITY] token rejected")
	assert.Contains(t, detailed, "high_water: 30\n  new: 5")

	plain := fmt.Errorf("boom")
	assert.Equal(t, "Error: boom\n", formatError(plain, true))
}
