package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/logging"
)

func TestParseGitLogOutput(t *testing.T) {
	output := "\x1eabc123\x1fJane Doe\x1fJane@Example.com\x1f2024-01-15T10:00:00+01:00\x1f\x1fInitial commit\n\x1d\n\n" +
		"A\tmultiqc/modules/fastqc/x.py\nA\tREADME.md\n" +
		"\x1edef456\x1fJohn Smith\x1f42+jsmith@users.noreply.github.com\x1f2024-02-01T08:30:00Z\x1fabc123\x1fFix it\n\nCo-authored-by: Jane Doe <jane@example.com>\n\x1d\n\n" +
		"M\tREADME.md\nD\told.txt\nA\tmultiqc/modules/samtools/z.py\n" +
		"\x1eaaa999\x1fJane Doe\x1fjane@example.com\x1f2024-02-02T00:00:00Z\x1fabc123 def456\x1fMerge branch\n\x1d\n"

	commits, err := parseGitLogOutput(output)
	require.NoError(t, err)
	require.Len(t, commits, 3)

	first := commits[0]
	assert.Equal(t, "abc123", first.Hash)
	assert.Equal(t, "Jane Doe", first.Author.Name)
	assert.Equal(t, "jane@example.com", first.Author.Email)
	assert.Equal(t, "Initial commit", first.Message)
	assert.Equal(t, []string{"multiqc/modules/fastqc/x.py", "README.md"}, first.Added)
	assert.False(t, first.IsMerge)
	assert.True(t, first.Date.Equal(time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)))

	second := commits[1]
	assert.Equal(t, "jsmith", second.Author.Username)
	assert.Contains(t, second.Message, "Co-authored-by: Jane Doe <jane@example.com>")
	assert.Equal(t, []string{"multiqc/modules/samtools/z.py"}, second.Added)

	assert.True(t, commits[2].IsMerge)
	assert.Empty(t, commits[2].Added)
}

func TestParseGitLogOutput_Malformed(t *testing.T) {
	_, err := parseGitLogOutput("\x1eabc\x1fonly-two-fields\x1d\n")
	assert.Error(t, err)

	_, err = parseGitLogOutput("\x1eabc\x1fa\x1fb\x1fnot-a-date\x1f\x1fmsg\x1d\n")
	assert.Error(t, err)

	commits, err := parseGitLogOutput("")
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestParseRepoSlug(t *testing.T) {
	tests := []struct {
		in          string
		owner, repo string
	}{
		{"MultiQC/MultiQC", "MultiQC", "MultiQC"},
		{"ewels/repo.name", "ewels", "repo.name"},
		{"https://github.com/MultiQC/MultiQC", "MultiQC", "MultiQC"},
		{"https://github.com/MultiQC/MultiQC.git", "MultiQC", "MultiQC"},
		{"git@github.com:MultiQC/MultiQC.git", "MultiQC", "MultiQC"},
		{"git://github.com/MultiQC/MultiQC.git", "MultiQC", "MultiQC"},
	}
	for _, tt := range tests {
		owner, repo, err := ParseRepoSlug(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}

	for _, bad := range []string{"", "MultiQC", "a/b/c", "-bad/repo", "owner/..", "owner/re po"} {
		_, _, err := ParseRepoSlug(bad)
		require.Error(t, err, bad)
		assert.Equal(t, errors.ExitUsage, errors.ExitCode(err))
	}
}

func TestOpenRepository_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenRepository(filepath.Join(dir, "missing"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))

	_, err = OpenRepository(dir)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
	assert.Contains(t, err.Error(), "not a git repository root")

	file := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	_, err = OpenRepository(file)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
}

// commitFiles writes files into the worktree and commits them at when.
func commitFiles(t *testing.T, repo *gogit.Repository, dir string, when time.Time, msg string, files ...string) {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)

	for _, f := range files {
		path := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(f+when.String()), 0644))
		_, err := wt.Add(f)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: "Jane Doe", Email: "jane@users.noreply.github.com", When: when}
	_, err = wt.Commit(msg, &gogit.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)
}

func day(d int) time.Time { return time.Date(2024, 1, d, 12, 0, 0, 0, time.UTC) }

// moduleHistory builds a repository with three commits spread over two
// modules, rewriting one file on the second day.
func moduleHistory(t *testing.T) (string, *gogit.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)

	commitFiles(t, repo, dir, day(1), "add fastqc", "multiqc/modules/fastqc/x.py")
	commitFiles(t, repo, dir, day(2), "more fastqc", "multiqc/modules/fastqc/y.py", "multiqc/modules/fastqc/x.py")
	commitFiles(t, repo, dir, day(3), "add samtools", "multiqc/modules/samtools/z.py")
	return dir, repo
}

func TestGoGitWalker(t *testing.T) {
	dir, _ := moduleHistory(t)

	opened, err := OpenRepository(dir)
	require.NoError(t, err)
	walker := NewGoGitWalker(opened, logging.Discard())

	n, err := walker.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var commits []Commit
	err = walker.Walk(context.Background(), func(c Commit) error {
		commits = append(commits, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, commits, 3)

	assert.Equal(t, "add fastqc", commits[0].Message)
	assert.Equal(t, []string{"multiqc/modules/fastqc/x.py"}, commits[0].Added)
	assert.Equal(t, []string{"multiqc/modules/fastqc/y.py"}, commits[1].Added)
	assert.Equal(t, []string{"multiqc/modules/samtools/z.py"}, commits[2].Added)
	assert.Equal(t, "jane", commits[2].Author.Username)
	assert.True(t, commits[2].Date.Equal(day(3)))
}

func TestCLIWalker(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	dir, _ := moduleHistory(t)
	walker := NewCLIWalker(dir, logging.Discard())

	n, err := walker.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var commits []Commit
	err = walker.Walk(context.Background(), func(c Commit) error {
		commits = append(commits, c)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, commits, 3)

	assert.Equal(t, "add fastqc", commits[0].Message)
	assert.Equal(t, []string{"multiqc/modules/fastqc/x.py"}, commits[0].Added)
	assert.Equal(t, []string{"multiqc/modules/fastqc/y.py"}, commits[1].Added)
	assert.Equal(t, []string{"multiqc/modules/samtools/z.py"}, commits[2].Added)
	assert.Equal(t, "jane", commits[2].Author.Username)
	assert.True(t, commits[0].Date.Equal(day(1)))
	assert.True(t, commits[2].Date.Equal(day(3)))
	for _, c := range commits {
		assert.False(t, c.IsMerge)
		assert.Len(t, c.Hash, 40)
	}
}

func TestCLIWalker_NotARepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	t.Setenv("GIT_CEILING_DIRECTORIES", os.TempDir())
	_, err := NewCLIWalker(t.TempDir(), logging.Discard()).Count(context.Background())
	assert.Error(t, err)
}

func TestGoGitWalker_StopsOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	commitFiles(t, repo, dir, time.Now(), "one", "a.txt")
	commitFiles(t, repo, dir, time.Now().Add(time.Minute), "two", "b.txt")

	walker := NewGoGitWalker(repo, logging.Discard())
	calls := 0
	err = walker.Walk(context.Background(), func(Commit) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}
