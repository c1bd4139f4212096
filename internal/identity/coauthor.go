// Package identity parses contributor identities out of commit metadata:
// co-author trailers, GitHub noreply addresses and .mailmap files.
package identity

import (
	"regexp"
	"strings"
)

// noreplyDomain is the suffix GitHub uses for private commit emails.
const noreplyDomain = "@users.noreply.github.com"

// coauthorLine matches `Co-authored-by: Name <email>` on a single line.
// The name and email groups are validated further by ExtractCoAuthors.
var coauthorLine = regexp.MustCompile(`(?im)^[ \t]*co-authored-by:[ \t]*([^<>\r\n]*?)[ \t]*<([^<>\r\n]*)>[ \t]*\r?$`)

// Person is a commit author or co-author.
type Person struct {
	Name     string
	Email    string
	Username string
}

// Key is the identity key: lowercased email, or lowercased name when no email is known.
func (p Person) Key() string {
	if p.Email != "" {
		return strings.ToLower(p.Email)
	}
	return strings.ToLower(p.Name)
}

// Label renders the person the way the contributors CSV lists them:
// "username (Name)" when the username adds information, the name otherwise.
func (p Person) Label() string {
	if p.Username != "" && !strings.EqualFold(p.Username, p.Name) {
		return p.Username + " (" + p.Name + ")"
	}
	return p.Name
}

// Denylist discards automation accounts by case-insensitive substring match.
type Denylist struct {
	needles []string
}

// DefaultDenylist returns the denylist for a project: "bot", "github-actions"
// and "<project> bot".
func DefaultDenylist(project string) *Denylist {
	needles := []string{"bot", "github-actions"}
	if project = strings.TrimSpace(project); project != "" {
		needles = append(needles, project+" bot")
	}
	return NewDenylist(needles...)
}

// NewDenylist builds a denylist from arbitrary substrings.
func NewDenylist(needles ...string) *Denylist {
	d := &Denylist{}
	for _, n := range needles {
		if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
			d.needles = append(d.needles, n)
		}
	}
	return d
}

// Blocks reports whether the name or email contains any denylisted substring.
func (d *Denylist) Blocks(p Person) bool {
	if d == nil {
		return false
	}
	name := strings.ToLower(p.Name)
	email := strings.ToLower(p.Email)
	for _, n := range d.needles {
		if strings.Contains(name, n) || strings.Contains(email, n) {
			return true
		}
	}
	return false
}

// ExtractCoAuthors returns one Person per well-formed co-author line of msg,
// deduplicated by normalised (name, email). Malformed lines are skipped.
func ExtractCoAuthors(msg string, deny *Denylist) []Person {
	var people []Person
	seen := make(map[[2]string]bool)

	for _, m := range coauthorLine.FindAllStringSubmatch(msg, -1) {
		name := NormalizeName(m[1])
		email := NormalizeEmail(m[2])
		if name == "" || email == "" || !strings.Contains(email, "@") {
			continue
		}

		p := Person{Name: name, Email: email, Username: UsernameFromEmail(email)}
		if deny.Blocks(p) {
			continue
		}

		key := [2]string{strings.ToLower(name), email}
		if seen[key] {
			continue
		}
		seen[key] = true
		people = append(people, p)
	}

	return people
}

// NormalizeName trims a display name and collapses internal whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UsernameFromEmail extracts the GitHub login from a noreply address
// (user@users.noreply.github.com or 12345+user@users.noreply.github.com).
func UsernameFromEmail(email string) string {
	email = NormalizeEmail(email)
	if !strings.HasSuffix(email, noreplyDomain) {
		return ""
	}
	local := strings.TrimSuffix(email, noreplyDomain)
	if i := strings.LastIndex(local, "+"); i >= 0 {
		local = local[i+1:]
	}
	return local
}
