package model

import (
	"slices"
	"strings"
	"unicode"
)

// Status is the confidence of a service record.
type Status string

const (
	// StatusPotential means only static evidence points at the service.
	StatusPotential Status = "potential"

	// StatusConfirmed means live evidence proved the service is active.
	StatusConfirmed Status = "confirmed"
)

// ServiceCookies splits a service's cookies by confidence.
type ServiceCookies struct {
	Potential []string `json:"potential"`
	Confirmed []string `json:"confirmed"`
}

// ServiceRecord is the canonical per-service view produced by the merge
// engine. Status only ever moves from potential to confirmed; Confirm is
// the single mutator.
type ServiceRecord struct {
	Key         string         `json:"key"`
	Name        string         `json:"name"`
	Category    Category       `json:"category"`
	Status      Status         `json:"status"`
	Domains     []string       `json:"domains"`
	Cookies     ServiceCookies `json:"cookies"`
	Scripts     []string       `json:"scripts"`
	TrackingIDs []string       `json:"trackingIds"`
	ThemeFiles  []string       `json:"themeFiles"`
	Pages       []string       `json:"pages"`
}

// NewServiceRecord returns a potential record keyed by NormalizeKey(name).
func NewServiceRecord(name string, category Category) *ServiceRecord {
	return &ServiceRecord{
		Key:         NormalizeKey(name),
		Name:        name,
		Category:    category,
		Status:      StatusPotential,
		Domains:     []string{},
		Cookies:     ServiceCookies{Potential: []string{}, Confirmed: []string{}},
		Scripts:     []string{},
		TrackingIDs: []string{},
		ThemeFiles:  []string{},
		Pages:       []string{},
	}
}

// Confirm upgrades the record to confirmed. There is no way back.
func (r *ServiceRecord) Confirm() {
	r.Status = StatusConfirmed
}

// IsConfirmed reports whether live evidence confirmed the record.
func (r *ServiceRecord) IsConfirmed() bool {
	return r.Status == StatusConfirmed
}

// AddDomains appends domains that are not yet present.
func (r *ServiceRecord) AddDomains(domains ...string) {
	r.Domains = appendUnique(r.Domains, domains...)
}

// AddPotentialCookies appends potential cookie names.
func (r *ServiceRecord) AddPotentialCookies(names ...string) {
	r.Cookies.Potential = appendUnique(r.Cookies.Potential, names...)
}

// AddConfirmedCookie appends a confirmed cookie name.
func (r *ServiceRecord) AddConfirmedCookie(name string) {
	r.Cookies.Confirmed = appendUnique(r.Cookies.Confirmed, name)
}

// AddScripts appends script URLs.
func (r *ServiceRecord) AddScripts(srcs ...string) {
	r.Scripts = appendUnique(r.Scripts, srcs...)
}

// AddTrackingIDs appends redacted tracking identifiers.
func (r *ServiceRecord) AddTrackingIDs(ids ...string) {
	r.TrackingIDs = appendUnique(r.TrackingIDs, ids...)
}

// AddThemeFiles appends theme file locations.
func (r *ServiceRecord) AddThemeFiles(files ...string) {
	r.ThemeFiles = appendUnique(r.ThemeFiles, files...)
}

// AddPages unions page ids into the record.
func (r *ServiceRecord) AddPages(pages ...string) {
	r.Pages = appendUnique(r.Pages, pages...)
}

// HasCookie reports whether name is listed as potential or confirmed.
func (r *ServiceRecord) HasCookie(name string) bool {
	return slices.Contains(r.Cookies.Potential, name) || slices.Contains(r.Cookies.Confirmed, name)
}

// NormalizeKey lower-cases s and strips every non-alphanumeric rune.
// "Google Analytics 4" and "google-analytics-4" share the key
// "googleanalytics4".
func NormalizeKey(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FuzzyKeyMatch reports whether either normalized key contains the other.
// Empty keys never match.
func FuzzyKeyMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
