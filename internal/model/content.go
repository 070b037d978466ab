package model

import (
	"slices"

	"github.com/cespare/xxhash/v2"
)

// TrackingID is a tracking identifier found in served HTML.
// Value is always redacted to prefix + "***".
type TrackingID struct {
	Type    string `json:"type"`
	Service string `json:"service"`
	Value   string `json:"value"`

	// key is a digest of the raw identifier. Two ids of one type with the
	// same redacted value stay distinct while findings are merged. It is
	// not serialized.
	key uint64
}

// NewTrackingID returns the redacted form of the identifier raw.
func NewTrackingID(typ, service, redacted, raw string) TrackingID {
	return TrackingID{
		Type:    typ,
		Service: service,
		Value:   redacted,
		key:     xxhash.Sum64String(typ + ":" + raw),
	}
}

// ContentFinding is what the content classifier found in one page, or the
// merge of several pages.
type ContentFinding struct {
	URL string `json:"url,omitempty"`

	// Social, ThirdParty and Statistics hold service slugs.
	Social     []string `json:"social_media"`
	ThirdParty []string `json:"thirdparty"`
	Statistics []string `json:"statistics"`

	TrackingIDs []TrackingID `json:"tracking_ids"`

	// DoubleStats names analytics families loaded more than once.
	DoubleStats []string `json:"double_stats"`

	// Scripts and Iframes hold absolute src URLs seen in the DOM.
	Scripts []string `json:"scripts,omitempty"`
	Iframes []string `json:"iframes,omitempty"`

	Error string `json:"error,omitempty"`
}

// NewContentFinding returns a finding with empty, non-nil lists so that it
// serializes as arrays rather than null.
func NewContentFinding(url string) ContentFinding {
	return ContentFinding{
		URL:         url,
		Social:      []string{},
		ThirdParty:  []string{},
		Statistics:  []string{},
		TrackingIDs: []TrackingID{},
		DoubleStats: []string{},
	}
}

// Merge folds other into f. Slug lists and double stats are unioned in
// first-seen order; tracking ids are deduplicated by type and raw identifier.
// URL and Error of f are left untouched.
func (f *ContentFinding) Merge(other ContentFinding) {
	f.Social = appendUnique(f.Social, other.Social...)
	f.ThirdParty = appendUnique(f.ThirdParty, other.ThirdParty...)
	f.Statistics = appendUnique(f.Statistics, other.Statistics...)
	f.DoubleStats = appendUnique(f.DoubleStats, other.DoubleStats...)
	f.Scripts = appendUnique(f.Scripts, other.Scripts...)
	f.Iframes = appendUnique(f.Iframes, other.Iframes...)

	for _, id := range other.TrackingIDs {
		if !slices.Contains(f.TrackingIDs, id) {
			f.TrackingIDs = append(f.TrackingIDs, id)
		}
	}
}

// Services returns every detected slug: statistics, social, then third-party.
func (f ContentFinding) Services() []string {
	out := make([]string, 0, len(f.Statistics)+len(f.Social)+len(f.ThirdParty))
	out = appendUnique(out, f.Statistics...)
	out = appendUnique(out, f.Social...)
	out = appendUnique(out, f.ThirdParty...)
	return out
}

// CategoryOf returns the category implied by which table detected slug.
// Statistics imply analytics, social implies marketing, third-party
// content is functional.
func (f ContentFinding) CategoryOf(slug string) Category {
	switch {
	case slices.Contains(f.Statistics, slug):
		return CategoryAnalytics
	case slices.Contains(f.Social, slug):
		return CategoryMarketing
	case slices.Contains(f.ThirdParty, slug):
		return CategoryFunctional
	default:
		return CategoryUnclassified
	}
}

// HasService reports whether any table detected slug.
func (f ContentFinding) HasService(slug string) bool {
	return f.CategoryOf(slug) != CategoryUnclassified
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if v == "" || slices.Contains(dst, v) {
			continue
		}
		dst = append(dst, v)
	}
	return dst
}
