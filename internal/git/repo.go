package git

import (
	"regexp"
	"strings"

	"github.com/rohankatakam/repostats/internal/errors"
)

var (
	slugRegex  = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9-]*[A-Za-z0-9])?)/([A-Za-z0-9._-]+)$`)
	httpsRegex = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+?)/?$`)
	sshRegex   = regexp.MustCompile(`^git@[^:]+:([^/]+)/([^/]+)$`)
	gitRegex   = regexp.MustCompile(`^git://[^/]+/([^/]+)/([^/]+)$`)
)

// ParseRepoSlug extracts owner and repository name from an identifier.
// Supports multiple formats:
//   - Slug: owner/repo
//   - HTTPS: https://github.com/owner/repo.git
//   - SSH: git@github.com:owner/repo.git
//   - Git protocol: git://github.com/owner/repo.git
func ParseRepoSlug(identifier string) (owner, repo string, err error) {
	s := strings.TrimSuffix(strings.TrimSpace(identifier), ".git")

	for _, re := range []*regexp.Regexp{httpsRegex, sshRegex, gitRegex} {
		if matches := re.FindStringSubmatch(s); len(matches) == 3 {
			s = matches[1] + "/" + matches[2]
			break
		}
	}

	matches := slugRegex.FindStringSubmatch(s)
	if len(matches) != 3 || matches[2] == "." || matches[2] == ".." {
		return "", "", errors.ValidationErrorf("invalid repository identifier %q: expected <owner>/<repo>", identifier)
	}
	return matches[1], matches[2], nil
}
