// Package history turns a commit walk into the modules-over-time and
// contributors-over-time series.
package history

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/repostats/internal/git"
	"github.com/rohankatakam/repostats/internal/identity"
	"github.com/rohankatakam/repostats/internal/series"
)

// Contributor is a person seen as commit author or co-author.
type Contributor struct {
	identity.Person
	FirstSeen time.Time
}

// Module is a directory under the watched root.
type Module struct {
	Name      string
	FirstSeen time.Time
}

// Options configure an Aggregator.
type Options struct {
	// WatchRoot is the directory whose immediate subdirectories are modules.
	WatchRoot string
	Denylist  *identity.Denylist
	// Mailmap canonicalises identities before they are keyed. May be nil.
	Mailmap identity.Mailmap
}

// Aggregator keeps the running sets of modules and contributors.
type Aggregator struct {
	root    string
	deny    *identity.Denylist
	mailmap identity.Mailmap
	logger  logrus.FieldLogger
	commits int

	modules      map[string]*Module
	contributors map[string]*Contributor

	moduleSeries      series.Series
	contributorSeries series.Series
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts Options, logger logrus.FieldLogger) *Aggregator {
	return &Aggregator{
		root:         strings.Trim(opts.WatchRoot, "/") + "/",
		deny:         opts.Denylist,
		mailmap:      opts.Mailmap,
		logger:       logger,
		modules:      make(map[string]*Module),
		contributors: make(map[string]*Contributor),
	}
}

// ModuleSegment returns the module a path introduces, if the path has the
// shape <root>/<segment>/<rest>.
func (a *Aggregator) ModuleSegment(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, a.root)
	if !ok {
		return "", false
	}
	segment, tail, ok := strings.Cut(rest, "/")
	if !ok || segment == "" || tail == "" {
		return "", false
	}
	return segment, true
}

// AddCommit folds one commit into the running sets.
func (a *Aggregator) AddCommit(c git.Commit) {
	a.commits++

	for _, path := range c.Added {
		if segment, ok := a.ModuleSegment(path); ok {
			a.addModule(segment, c.Date)
		}
	}

	a.addContributor(c.Author, c.Date)
	for _, p := range identity.ExtractCoAuthors(c.Message, a.deny) {
		a.addContributor(p, c.Date)
	}
}

func (a *Aggregator) addModule(name string, when time.Time) {
	if _, seen := a.modules[name]; seen {
		return
	}
	a.modules[name] = &Module{Name: name, FirstSeen: when}
	a.moduleSeries = append(a.moduleSeries, series.Point{
		Date:  when,
		Value: len(a.modules),
		Label: name,
	})
	a.logger.WithField("module", name).Debug("new module")
}

func (a *Aggregator) addContributor(p identity.Person, when time.Time) {
	p = a.mailmap.Resolve(p)
	if p.Name == "" && p.Email == "" {
		return
	}
	if a.deny.Blocks(p) {
		return
	}

	key := p.Key()
	if _, seen := a.contributors[key]; seen {
		return
	}
	a.contributors[key] = &Contributor{Person: p, FirstSeen: when}
	a.contributorSeries = append(a.contributorSeries, series.Point{
		Date:  when,
		Value: len(a.contributors),
		Label: p.Label(),
	})
	a.logger.WithField("contributor", p.Label()).Debug("new contributor")
}

// Run walks the whole history through w.
func (a *Aggregator) Run(ctx context.Context, w git.Walker, onCommit func()) error {
	return w.Walk(ctx, func(c git.Commit) error {
		a.AddCommit(c)
		if onCommit != nil {
			onCommit()
		}
		return nil
	})
}

// Modules returns the modules-over-time series.
func (a *Aggregator) Modules() series.Series { return a.moduleSeries }

// Contributors returns the contributors-over-time series.
func (a *Aggregator) Contributors() series.Series { return a.contributorSeries }

// Module looks up a recorded module.
func (a *Aggregator) Module(name string) (Module, bool) {
	m, ok := a.modules[name]
	if !ok {
		return Module{}, false
	}
	return *m, true
}

// Contributor looks up a recorded contributor by identity key.
func (a *Aggregator) Contributor(key string) (Contributor, bool) {
	c, ok := a.contributors[strings.ToLower(key)]
	if !ok {
		return Contributor{}, false
	}
	return *c, true
}

// Commits returns the number of commits folded in so far.
func (a *Aggregator) Commits() int { return a.commits }
