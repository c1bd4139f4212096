package git

import (
	"context"
	"fmt"
	"os"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/errors"
	"github.com/rohankatakam/repostats/internal/identity"
)

// OpenRepository opens the repository whose root is path. Both a missing
// path and a directory that is not a repository root are user-input errors.
func OpenRepository(path string) (*gogit.Repository, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, errors.ValidationErrorf("path %s does not exist", path)
	}
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "stat %s", path)
	}
	if !info.IsDir() {
		return nil, errors.ValidationErrorf("path %s is not a directory", path)
	}

	repo, err := gogit.PlainOpen(path)
	if err == gogit.ErrRepositoryNotExists {
		return nil, errors.ValidationErrorf("path %s is not a git repository root", path)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeValidation, errors.SeverityHigh,
			fmt.Sprintf("open repository %s", path))
	}
	return repo, nil
}

// GoGitWalker walks history in-process with go-git.
type GoGitWalker struct {
	repo   *gogit.Repository
	logger logrus.FieldLogger
}

// NewGoGitWalker creates a walker over an opened repository.
func NewGoGitWalker(repo *gogit.Repository, logger logrus.FieldLogger) *GoGitWalker {
	return &GoGitWalker{repo: repo, logger: logger}
}

// Count implements Walker.
func (w *GoGitWalker) Count(ctx context.Context) (int, error) {
	commits, err := w.commits(ctx)
	if err != nil {
		return 0, err
	}
	return len(commits), nil
}

// Walk implements Walker.
func (w *GoGitWalker) Walk(ctx context.Context, fn func(Commit) error) error {
	commits, err := w.commits(ctx)
	if err != nil {
		return err
	}
	w.logger.WithField("commits", len(commits)).Debug("walking history")

	// commits is newest first
	for i := len(commits) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return err
		}
		c := commits[i]

		added, err := addedFiles(c)
		if err != nil {
			return fmt.Errorf("diff commit %s: %w", c.Hash, err)
		}

		commit := Commit{
			Hash: c.Hash.String(),
			Author: identity.Person{
				Name:     identity.NormalizeName(c.Author.Name),
				Email:    identity.NormalizeEmail(c.Author.Email),
				Username: identity.UsernameFromEmail(c.Author.Email),
			},
			Date:    c.Committer.When,
			Message: c.Message,
			Added:   added,
			IsMerge: c.NumParents() > 1,
		}
		if err := fn(commit); err != nil {
			return err
		}
	}
	return nil
}

func (w *GoGitWalker) commits(ctx context.Context) ([]*object.Commit, error) {
	head, err := w.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := w.repo.Log(&gogit.LogOptions{From: head.Hash(), Order: gogit.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("git log: %w", err)
	}
	defer iter.Close()

	var commits []*object.Commit
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		commits = append(commits, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// addedFiles diffs a commit against its first parent (or the empty tree for
// a root commit) and returns the inserted paths.
func addedFiles(c *object.Commit) ([]string, error) {
	if c.NumParents() > 1 {
		return nil, nil
	}

	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}

	parentTree := &object.Tree{}
	if c.NumParents() == 1 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, err
	}

	var added []string
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, err
		}
		if action == merkletrie.Insert {
			added = append(added, change.To.Name)
		}
	}
	return added, nil
}
