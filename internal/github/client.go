// Package github reads issues and pull requests from the GitHub REST API.
package github

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/repostats/internal/cache"
	"github.com/rohankatakam/repostats/internal/errors"
)

const (
	DefaultPerPage   = 100
	DefaultRateLimit = 5.0
)

// Options configure a Client.
type Options struct {
	Token string
	// RateLimit is the maximum number of API requests per second.
	RateLimit float64
	PerPage   int
	// BaseURL overrides the API root, e.g. for GitHub Enterprise.
	BaseURL string
}

// Client wraps the GitHub API client with rate limiting
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	perPage     int
	logger      logrus.FieldLogger
}

// Repository is the metadata checked before fetching.
type Repository struct {
	Owner      string
	Name       string
	FullName   string
	URL        string
	OpenIssues int
	CreatedAt  time.Time
}

// NewClient creates a new GitHub client with rate limiting
func NewClient(opts Options, logger logrus.FieldLogger) (*Client, error) {
	client := github.NewClient(nil)
	if opts.Token != "" {
		client = client.WithAuthToken(opts.Token)
	} else {
		logger.Warn("no GitHub token configured, using unauthenticated rate limits")
	}

	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, errors.ConfigErrorf("invalid GitHub base URL %q: %v", opts.BaseURL, err)
		}
		client.BaseURL = u
	}

	limit := opts.RateLimit
	if limit <= 0 {
		limit = DefaultRateLimit
	}
	perPage := opts.PerPage
	if perPage <= 0 || perPage > 100 {
		perPage = DefaultPerPage
	}

	return &Client{
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(limit), 1),
		perPage:     perPage,
		logger:      logger,
	}, nil
}

// Resolve fetches repository metadata. It is the first call of every run so
// a bad token or slug fails before anything is fetched.
func (c *Client) Resolve(ctx context.Context, owner, name string) (*Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, errors.NetworkError(err, "rate limiter")
	}

	repo, resp, err := c.client.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, classify(err, "fetch repository "+owner+"/"+name)
	}
	c.logRateLimit(resp)

	return &Repository{
		Owner:      owner,
		Name:       name,
		FullName:   repo.GetFullName(),
		URL:        repo.GetHTMLURL(),
		OpenIssues: repo.GetOpenIssuesCount(),
		CreatedAt:  repo.GetCreatedAt().Time,
	}, nil
}

// Items returns the issue/PR source for one repository.
func (c *Client) Items(owner, name string) *ItemSource {
	return &ItemSource{client: c, owner: owner, name: name}
}

// ItemSource lists a repository's issues and pull requests, oldest first.
type ItemSource struct {
	client *Client
	owner  string
	name   string
}

var _ cache.Source = (*ItemSource)(nil)

// ItemsAfter implements cache.Source. Listing is sorted by creation, which
// follows issue numbers, so it starts at the page that should hold after+1
// and steps back while that page begins past the mark.
func (s *ItemSource) ItemsAfter(ctx context.Context, after int, fn func(cache.Entry) error) error {
	c := s.client
	opts := &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "asc",
		ListOptions: github.ListOptions{
			PerPage: c.perPage,
		},
	}

	page := after/c.perPage + 1
	probing := page > 1
	logger := c.logger.WithFields(logrus.Fields{"repo": s.owner + "/" + s.name, "after": after})

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		opts.Page = page
		issues, resp, err := c.client.Issues.ListByRepo(ctx, s.owner, s.name, opts)
		if err != nil {
			return classify(err, "list issues")
		}
		c.logRateLimit(resp)
		logger.WithFields(logrus.Fields{"page": page, "items": len(issues)}).Debug("fetched page")

		if probing && page > 1 && (len(issues) == 0 || issues[0].GetNumber() > after) {
			page--
			continue
		}
		probing = false

		for _, issue := range issues {
			if issue.GetNumber() <= after {
				continue
			}
			if err := fn(toEntry(issue)); err != nil {
				return err
			}
		}

		if resp.NextPage == 0 {
			return nil
		}
		page = resp.NextPage
	}
}

func toEntry(issue *github.Issue) cache.Entry {
	e := cache.Entry{
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		CreatedAt: issue.GetCreatedAt().Time,
		State:     issue.GetState(),
		IsPR:      issue.IsPullRequest(),
	}
	if issue.ClosedAt != nil {
		closed := issue.GetClosedAt().Time
		e.ClosedAt = &closed
	}
	return e
}

// logRateLimit logs GitHub API rate limit info
func (c *Client) logRateLimit(resp *github.Response) {
	if resp == nil {
		return
	}

	remaining := resp.Rate.Remaining
	limit := resp.Rate.Limit

	// Warn if getting low
	if limit > 0 && remaining < 100 {
		c.logger.WithFields(logrus.Fields{
			"remaining": remaining,
			"limit":     limit,
			"reset":     resp.Rate.Reset.Time,
		}).Warn("GitHub rate limit low")
	}
}

// classify maps go-github failures onto the error taxonomy.
func classify(err error, what string) error {
	var rateErr *github.RateLimitError
	if stderrors.As(err, &rateErr) {
		return errors.NetworkErrorf(err, "%s: rate limit exceeded until %s", what, rateErr.Rate.Reset.Time.Format(time.RFC3339))
	}
	var abuseErr *github.AbuseRateLimitError
	if stderrors.As(err, &abuseErr) {
		return errors.NetworkErrorf(err, "%s: secondary rate limit hit", what)
	}

	var respErr *github.ErrorResponse
	if stderrors.As(err, &respErr) && respErr.Response != nil {
		switch status := respErr.Response.StatusCode; {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return errors.SecurityErrorf(err, "%s: access denied, check the GitHub token", what)
		case status == http.StatusNotFound:
			return errors.ValidationErrorf("%s: not found", what)
		case status >= 500:
			return errors.NetworkErrorf(err, "%s: server error", what)
		default:
			return errors.ExternalError(err, what)
		}
	}

	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.NetworkErrorf(err, "%s failed", what)
}
