package identity

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
)

// Mailmap maps commit signatures (by email or by name) onto canonical ones.
type Mailmap map[string]object.Signature

// ParseMailmap parses the contents of .mailmap. It does *not* follow the
// full signature matching convention: emails and names are matched
// independently, emails lowercased.
func ParseMailmap(contents string) Mailmap {
	mm := Mailmap{}
	for _, line := range strings.Split(contents, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.LastIndex(line, ">") != len(line)-1 {
			continue
		}
		ltp := strings.LastIndex(line, "<")
		if ltp < 0 {
			continue
		}
		fromEmail := NormalizeEmail(line[ltp+1 : len(line)-1])
		line = strings.TrimSpace(line[:ltp])
		gtp := strings.LastIndex(line, ">")
		fromName := ""
		if gtp != len(line)-1 {
			fromName = NormalizeName(line[gtp+1:])
		}
		toEmail := ""
		if gtp > 0 {
			line = line[:gtp]
			ltp = strings.LastIndex(line, "<")
			if ltp < 0 {
				continue
			}
			toEmail = NormalizeEmail(line[ltp+1:])
			line = strings.TrimSpace(line[:ltp])
		}
		toName := NormalizeName(line)
		if fromEmail != "" {
			mm[fromEmail] = object.Signature{Name: toName, Email: toEmail}
		}
		if fromName != "" {
			mm[fromName] = object.Signature{Name: toName, Email: toEmail}
		}
	}
	return mm
}

// LoadMailmap reads and parses a .mailmap file. A missing file yields an empty map.
func LoadMailmap(path string) (Mailmap, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Mailmap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read mailmap %s: %w", path, err)
	}
	return ParseMailmap(string(data)), nil
}

// Resolve rewrites p to its canonical signature. Empty canonical parts keep
// the original value, as git does for "Proper Name <commit@email>" lines.
func (mm Mailmap) Resolve(p Person) Person {
	if len(mm) == 0 {
		return p
	}
	sig, ok := mm[NormalizeEmail(p.Email)]
	if !ok {
		sig, ok = mm[NormalizeName(p.Name)]
	}
	if !ok {
		return p
	}
	if sig.Name != "" {
		p.Name = sig.Name
	}
	if sig.Email != "" {
		p.Email = sig.Email
		if u := UsernameFromEmail(sig.Email); u != "" {
			p.Username = u
		}
	}
	return p
}
