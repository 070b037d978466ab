package model

import (
	"strconv"
	"time"
)

// Provenance names the detection method that produced a static finding.
type Provenance string

const (
	// ProvenanceKnownDatabase marks a component found in the reference database.
	ProvenanceKnownDatabase Provenance = "known_database"

	// ProvenanceSourceScan marks a hit in an unknown component's source tree.
	ProvenanceSourceScan Provenance = "source_scan"

	// ProvenanceKnownOptionKey marks a stored option whose key is listed
	// in the reference database.
	ProvenanceKnownOptionKey Provenance = "known_option_key"

	// ProvenanceTrackingIDPattern marks a tracking identifier prefix found
	// inside a stored option value.
	ProvenanceTrackingIDPattern Provenance = "tracking_id_pattern"

	// ProvenanceThemeScan marks a hit in a theme template file.
	ProvenanceThemeScan Provenance = "theme_scan"
)

// StaticFinding is implemented by exactly four variants:
// KnownComponentMatch, SourcePatternMatch, OptionTableMatch and ThemeFileMatch.
// The unexported marker method keeps the set closed, so a type switch over
// those four is exhaustive.
type StaticFinding interface {
	// Category returns the consent category of the finding.
	Category() Category

	// Identifiers returns the domains, cookie names or redacted ids the
	// finding carries.
	Identifiers() []string

	// Provenance returns the detection method.
	Provenance() Provenance

	staticFinding()
}

// CookieDefinition is a cookie declared by reference data.
// Pattern is "exact" or "prefix"; prefix names may end in '*' or '.'.
type CookieDefinition struct {
	Name      string `json:"name" yaml:"name"`
	Pattern   string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Category  string `json:"category,omitempty" yaml:"category,omitempty"`
	Duration  string `json:"duration,omitempty" yaml:"duration,omitempty"`
	Purpose   string `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	AdminOnly bool   `json:"admin_only,omitempty" yaml:"admin_only,omitempty"`
}

// IsPrefix reports whether the definition matches by prefix.
func (d CookieDefinition) IsPrefix() bool {
	return d.Pattern == "prefix"
}

// KnownComponentMatch is an installed component found in the reference database.
type KnownComponentMatch struct {
	// File is the component identifier, e.g. "slug/main.php".
	File         string             `json:"file"`
	Name         string             `json:"name"`
	Class        Category           `json:"category"`
	Tracking     bool               `json:"tracking"`
	Cookies      []CookieDefinition `json:"cookies,omitempty"`
	LocalStorage []string           `json:"localStorage,omitempty"`
	Domains      []string           `json:"domains,omitempty"`
}

// Category implements StaticFinding.
func (m KnownComponentMatch) Category() Category { return m.Class }

// Identifiers implements StaticFinding.
func (m KnownComponentMatch) Identifiers() []string {
	ids := make([]string, 0, len(m.Domains)+len(m.Cookies))
	ids = append(ids, m.Domains...)
	for _, c := range m.Cookies {
		ids = append(ids, c.Name)
	}
	return ids
}

// Provenance implements StaticFinding.
func (KnownComponentMatch) Provenance() Provenance { return ProvenanceKnownDatabase }

func (KnownComponentMatch) staticFinding() {}

// CookieNames returns the declared cookie names in declaration order.
func (m KnownComponentMatch) CookieNames() []string {
	names := make([]string, 0, len(m.Cookies))
	for _, c := range m.Cookies {
		if c.Name != "" {
			names = append(names, c.Name)
		}
	}
	return names
}

// SourceMatchKind tells what a SourcePatternMatch found.
type SourceMatchKind string

const (
	// SourceMatchTrackingDomain is a tracking domain string in source text.
	SourceMatchTrackingDomain SourceMatchKind = "tracking_domain"

	// SourceMatchCookieCall is a call that sets a cookie.
	SourceMatchCookieCall SourceMatchKind = "cookie_call"
)

// SourcePatternMatch is a hit inside an unknown component's source tree.
type SourcePatternMatch struct {
	Component     string          `json:"component"`
	ComponentName string          `json:"componentName"`
	File          string          `json:"file"`
	Line          int             `json:"line"`
	Kind          SourceMatchKind `json:"kind"`

	// Domain is set for tracking-domain hits.
	Domain string `json:"domain,omitempty"`

	// CookieName and Method are set for cookie-call hits.
	CookieName string `json:"cookieName,omitempty"`
	Method     string `json:"method,omitempty"`
}

// Category implements StaticFinding. A tracking domain in source is not
// enough to decide the purpose, so it is reported as other.
func (m SourcePatternMatch) Category() Category {
	if m.Kind == SourceMatchTrackingDomain {
		return CategoryOther
	}
	return CategoryUnclassified
}

// Identifiers implements StaticFinding.
func (m SourcePatternMatch) Identifiers() []string {
	if m.Kind == SourceMatchTrackingDomain {
		return []string{m.Domain}
	}
	return []string{m.CookieName}
}

// Provenance implements StaticFinding.
func (SourcePatternMatch) Provenance() Provenance { return ProvenanceSourceScan }

func (SourcePatternMatch) staticFinding() {}

// OptionTableMatch is tracking evidence found in stored configuration.
type OptionTableMatch struct {
	OptionKey string     `json:"optionKey"`
	Service   string     `json:"service"`
	Class     Category   `json:"category"`
	Source    Provenance `json:"source"`

	// Pattern is the redacted identifier, always prefix + "***".
	Pattern string `json:"pattern,omitempty"`

	// ComponentSlug is the component whose options were searched.
	ComponentSlug string `json:"componentSlug,omitempty"`
}

// Category implements StaticFinding.
func (m OptionTableMatch) Category() Category { return m.Class }

// Identifiers implements StaticFinding.
func (m OptionTableMatch) Identifiers() []string {
	if m.Pattern != "" {
		return []string{m.Pattern}
	}
	return []string{m.OptionKey}
}

// Provenance implements StaticFinding.
func (m OptionTableMatch) Provenance() Provenance { return m.Source }

func (OptionTableMatch) staticFinding() {}

// ThemeType distinguishes the active theme from its parent.
type ThemeType string

const (
	// ThemeChild is the active theme.
	ThemeChild ThemeType = "child"

	// ThemeParent is the theme the active one inherits from.
	ThemeParent ThemeType = "parent"
)

// ThemeMatchKind tells what a ThemeFileMatch found.
type ThemeMatchKind string

const (
	// ThemeMatchTrackingDomain is a tracking domain in a template file.
	ThemeMatchTrackingDomain ThemeMatchKind = "tracking_domain"

	// ThemeMatchTrackingID is a hardcoded tracking identifier.
	ThemeMatchTrackingID ThemeMatchKind = "tracking_id"
)

// ThemeFileMatch is a hit in a theme template file.
type ThemeFileMatch struct {
	Theme     string         `json:"theme"`
	ThemeType ThemeType      `json:"themeType"`
	File      string         `json:"file"`
	Line      int            `json:"line,omitempty"`
	Kind      ThemeMatchKind `json:"matchType"`

	// Match is the domain for domain hits or the redacted id for id hits.
	Match   string `json:"match"`
	Service string `json:"service,omitempty"`
}

// Category implements StaticFinding.
func (m ThemeFileMatch) Category() Category {
	if m.Kind == ThemeMatchTrackingID {
		return CategoryAnalytics
	}
	return CategoryOther
}

// Identifiers implements StaticFinding.
func (m ThemeFileMatch) Identifiers() []string { return []string{m.Match} }

// Provenance implements StaticFinding.
func (ThemeFileMatch) Provenance() Provenance { return ProvenanceThemeScan }

func (ThemeFileMatch) staticFinding() {}

// Location returns "file:line" or just the file when no line is known.
func (m ThemeFileMatch) Location() string {
	if m.Line > 0 {
		return m.File + ":" + strconv.Itoa(m.Line)
	}
	return m.File
}

// ComponentRef identifies an installed component that is not in the
// reference database.
type ComponentRef struct {
	File string `json:"file"`
	Name string `json:"name"`
}

// ScriptMatch is an enqueued script whose host belongs to a tracking domain.
type ScriptMatch struct {
	Handle string `json:"handle"`
	Src    string `json:"src"`
	Domain string `json:"domain"`
}

// StaticResult is the output of one static analysis pass.
type StaticResult struct {
	SiteURL          string `json:"siteUrl,omitempty"`
	ThemeName        string `json:"themeName,omitempty"`
	ActiveComponents int    `json:"activeComponents"`

	KnownMatches      []KnownComponentMatch `json:"knownMatches"`
	CleanComponents   []KnownComponentMatch `json:"cleanComponents"`
	UnknownComponents []ComponentRef        `json:"unknownComponents"`
	SourceMatches     []SourcePatternMatch  `json:"sourceMatches"`
	EnqueuedScripts   []ScriptMatch         `json:"enqueuedScripts"`
	OptionMatches     []OptionTableMatch    `json:"optionMatches"`
	ThemeMatches      []ThemeFileMatch      `json:"themeMatches"`
	CoreCookies       []CookieDefinition    `json:"coreCookies"`

	StartedAt time.Time     `json:"startedAt"`
	ScanTime  time.Duration `json:"scanTime"`
	Partial   bool          `json:"partial"`

	// ComponentHash is the content hash of the active component list.
	ComponentHash string `json:"componentHash"`
}

// Findings returns every static finding as the sealed union, in detection
// order: known components, source matches, option matches, theme matches.
func (r *StaticResult) Findings() []StaticFinding {
	if r == nil {
		return nil
	}
	out := make([]StaticFinding, 0,
		len(r.KnownMatches)+len(r.SourceMatches)+len(r.OptionMatches)+len(r.ThemeMatches))
	for _, m := range r.KnownMatches {
		out = append(out, m)
	}
	for _, m := range r.SourceMatches {
		out = append(out, m)
	}
	for _, m := range r.OptionMatches {
		out = append(out, m)
	}
	for _, m := range r.ThemeMatches {
		out = append(out, m)
	}
	return out
}
