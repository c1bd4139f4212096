package git

import (
	"context"
	"time"

	"github.com/rohankatakam/repostats/internal/identity"
)

// Commit is the per-commit view the history aggregator consumes.
type Commit struct {
	Hash    string
	Author  identity.Person
	Date    time.Time // committer date
	Message string
	// Added lists the paths created by this commit relative to its first
	// parent. Merge commits report no added files.
	Added   []string
	IsMerge bool
}

// Walker iterates repository history oldest commit first.
type Walker interface {
	// Count returns the number of commits Walk will visit.
	Count(ctx context.Context) (int, error)
	// Walk calls fn for every commit reachable from HEAD in ascending
	// committer-date order. An error returned by fn stops the walk.
	Walk(ctx context.Context, fn func(Commit) error) error
}
