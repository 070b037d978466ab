package static

import (
	"context"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/nao1215/cookieaudit/internal/model"
	"github.com/nao1215/cookieaudit/internal/reference"
	"github.com/nao1215/cookieaudit/internal/textmatch"
)

// Default budgets.
const (
	DefaultMaxScanTime = 60 * time.Second
	DefaultMaxFiles    = 200
	DefaultMaxFileSize = 512 * 1024

	// optionSearchLimit caps the options read per component slug.
	optionSearchLimit = 50
)

// SkipDirs are never descended into when scanning component sources.
var SkipDirs = []string{"vendor", "node_modules", "assets", "build", "tests", "languages"}

// ThemeFiles are the template files inspected in every theme directory.
var ThemeFiles = []string{"header.php", "footer.php", "functions.php"}

// Theme describes an installed theme. Parent is nil unless the active theme
// inherits from another one.
type Theme struct {
	Name   string
	Dir    string
	Parent *Theme
}

// Script is a script registered for output on the front end.
type Script struct {
	Handle string
	Src    string
}

// Option is one stored configuration entry. Value holds the raw stored text,
// which may be a plain string or an encoded structure.
type Option struct {
	Name  string
	Value string
}

// Site exposes the installation the analyzer inspects.
type Site interface {
	URL() string
	ActiveComponents() []string
	ComponentsDir() string

	// ComponentName returns the display name of a component, or "" when
	// the installation does not know one.
	ComponentName(id string) string

	// Theme returns the active theme, or nil when none is configured.
	Theme() *Theme

	EnqueuedScripts() []Script
}

// OptionStore reads the persisted configuration.
type OptionStore interface {
	// LookupOptions returns which of names exist.
	LookupOptions(ctx context.Context, names []string) ([]string, error)

	// SearchOptions returns up to limit options whose name contains fragment.
	SearchOptions(ctx context.Context, fragment string, limit int) ([]Option, error)
}

// Analyzer runs the static pass.
type Analyzer struct {
	db      *reference.Database
	site    Site
	options OptionStore
	logger  *slog.Logger

	maxScanTime time.Duration
	maxFiles    int
	maxFileSize int64
	extensions  []string
	skip        []string
	extraDomain []string
	now         func() time.Time
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithOptionStore sets the configuration store searched for tracking ids.
func WithOptionStore(store OptionStore) AnalyzerOption {
	return func(a *Analyzer) {
		a.options = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithMaxScanTime sets the wall clock budget.
func WithMaxScanTime(d time.Duration) AnalyzerOption {
	return func(a *Analyzer) {
		if d > 0 {
			a.maxScanTime = d
		}
	}
}

// WithMaxFiles sets the per-component file budget.
func WithMaxFiles(n int) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxFiles = n
		}
	}
}

// WithMaxFileSize sets the size above which files are skipped.
func WithMaxFileSize(n int64) AnalyzerOption {
	return func(a *Analyzer) {
		if n > 0 {
			a.maxFileSize = n
		}
	}
}

// WithExtensions sets the source file extensions scanned, e.g. ".php".
func WithExtensions(exts ...string) AnalyzerOption {
	return func(a *Analyzer) {
		if len(exts) > 0 {
			a.extensions = exts
		}
	}
}

// WithSkipComponents adds component slugs that are never inspected.
func WithSkipComponents(slugs ...string) AnalyzerOption {
	return func(a *Analyzer) {
		a.skip = append(a.skip, slugs...)
	}
}

// WithExtraTrackingDomains adds domains to the reference tracking list.
func WithExtraTrackingDomains(domains ...string) AnalyzerOption {
	return func(a *Analyzer) {
		a.extraDomain = append(a.extraDomain, domains...)
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AnalyzerOption {
	return func(a *Analyzer) {
		a.now = now
	}
}

// NewAnalyzer creates an Analyzer. A nil db behaves like an empty reference
// database.
func NewAnalyzer(db *reference.Database, site Site, opts ...AnalyzerOption) *Analyzer {
	a := &Analyzer{
		db:          db,
		site:        site,
		maxScanTime: DefaultMaxScanTime,
		maxFiles:    DefaultMaxFiles,
		maxFileSize: DefaultMaxFileSize,
		extensions:  []string{".php"},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	a.skip = append(a.skip, db.SkipList()...)
	return a
}

// run is the mutable state of one RunStatic call.
type run struct {
	ctx      context.Context
	deadline time.Time
	now      func() time.Time
	result   *model.StaticResult
	domains  *textmatch.Matcher

	// seenDomains holds component+domain keys already reported by the
	// source scan.
	seenDomains map[string]bool

	// stopped is set once a budget is exceeded; component inspection
	// does not resume after that.
	stopped bool
}

// exceeded reports whether the time budget is spent or ctx is done, and
// records the partial state.
func (r *run) exceeded() bool {
	if r.stopped {
		return true
	}
	if r.ctx.Err() != nil || r.now().After(r.deadline) {
		r.stop()
	}
	return r.stopped
}

func (r *run) stop() {
	r.stopped = true
	r.result.Partial = true
}

// RunStatic performs the static pass. It never fails: unreadable files and
// option store errors are logged and skipped, and an exhausted budget only
// marks the result partial.
func (a *Analyzer) RunStatic(ctx context.Context) *model.StaticResult {
	start := a.now()
	active := a.site.ActiveComponents()

	result := &model.StaticResult{
		SiteURL:           a.site.URL(),
		ActiveComponents:  len(active),
		KnownMatches:      []model.KnownComponentMatch{},
		CleanComponents:   []model.KnownComponentMatch{},
		UnknownComponents: []model.ComponentRef{},
		SourceMatches:     []model.SourcePatternMatch{},
		EnqueuedScripts:   []model.ScriptMatch{},
		OptionMatches:     []model.OptionTableMatch{},
		ThemeMatches:      []model.ThemeFileMatch{},
		CoreCookies:       []model.CookieDefinition{},
		StartedAt:         start,
	}
	if theme := a.site.Theme(); theme != nil {
		result.ThemeName = theme.Name
	}

	r := &run{
		ctx:      ctx,
		deadline: start.Add(a.maxScanTime),
		now:      a.now,
		result:   result,
		domains:  textmatch.New(a.trackingDomains()),

		seenDomains: map[string]bool{},
	}

	a.detectKnownComponents(active, result)
	a.scanSources(r)
	result.EnqueuedScripts = append(result.EnqueuedScripts, a.inspectScripts()...)
	a.scanOptions(r, active)
	a.scanTheme(r)

	result.CoreCookies = append(result.CoreCookies, a.db.PlatformCookies()...)
	result.ComponentHash = ComponentHash(active)
	result.ScanTime = a.now().Sub(start)

	a.logger.Info("static analysis complete",
		"active_components", len(active),
		"known", len(result.KnownMatches),
		"unknown", len(result.UnknownComponents),
		"source_matches", len(result.SourceMatches),
		"option_matches", len(result.OptionMatches),
		"theme_matches", len(result.ThemeMatches),
		"partial", result.Partial,
		"elapsed", result.ScanTime,
	)
	return result
}

func (a *Analyzer) trackingDomains() []string {
	domains := slices.Clone(a.db.Domains())
	return append(domains, a.extraDomain...)
}

func (a *Analyzer) skipped(id string) bool {
	return slices.Contains(a.skip, ComponentSlug(id))
}

// ComponentSlug returns the directory part of a component id such as
// "slug/main.php". Single-file components use the file name without its
// extension.
func ComponentSlug(id string) string {
	dir := path.Dir(id)
	if dir == "." || dir == "/" || dir == "" {
		return strings.TrimSuffix(path.Base(id), path.Ext(id))
	}
	return dir
}

// componentName returns the display name the site reports, else the slug.
func (a *Analyzer) componentName(id string) string {
	if name := a.site.ComponentName(id); name != "" {
		return name
	}
	return ComponentSlug(id)
}

func (a *Analyzer) detectKnownComponents(active []string, result *model.StaticResult) {
	for _, id := range active {
		if a.skipped(id) {
			a.logger.Debug("component skipped", "component", id)
			continue
		}

		entry, ok := a.db.Component(id)
		if !ok {
			result.UnknownComponents = append(result.UnknownComponents, model.ComponentRef{
				File: id,
				Name: a.componentName(id),
			})
			continue
		}

		name := entry.Name
		if name == "" {
			name = ComponentSlug(id)
		}
		match := model.KnownComponentMatch{
			File:         id,
			Name:         name,
			Class:        model.ParseCategory(entry.Category),
			Tracking:     entry.Tracking,
			Cookies:      entry.Cookies,
			LocalStorage: entry.LocalStorage,
			Domains:      entry.Domains,
		}
		if entry.Tracking {
			result.KnownMatches = append(result.KnownMatches, match)
		} else {
			result.CleanComponents = append(result.CleanComponents, match)
		}
	}
}
