package static

import (
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/cookieaudit/internal/model"
)

// scanOptions runs the two option passes: known option keys first, then
// tracking identifier prefixes inside options named after a component.
func (a *Analyzer) scanOptions(r *run, active []string) {
	if a.options == nil {
		return
	}

	if keys := a.db.OptionKeyNames(); len(keys) > 0 {
		found, err := a.options.LookupOptions(r.ctx, keys)
		if err != nil {
			a.logger.Warn("option lookup failed", "error", err)
		}
		slices.Sort(found)
		for _, key := range found {
			info, _ := a.db.OptionKeyInfo(key)
			r.result.OptionMatches = append(r.result.OptionMatches, model.OptionTableMatch{
				OptionKey: key,
				Service:   info.Service,
				Class:     model.ParseCategory(info.Category),
				Source:    model.ProvenanceKnownOptionKey,
			})
		}
	}

	for _, id := range active {
		if r.exceeded() {
			return
		}
		if a.skipped(id) {
			continue
		}
		slug := ComponentSlug(id)
		if slug == "" {
			continue
		}

		opts, err := a.options.SearchOptions(r.ctx, slug, optionSearchLimit)
		if err != nil {
			a.logger.Warn("option search failed", "component", id, "error", err)
			continue
		}
		for _, opt := range opts {
			for _, p := range FindTrackingIDsInValue(opt.Value) {
				r.result.OptionMatches = append(r.result.OptionMatches, model.OptionTableMatch{
					OptionKey:     opt.Name,
					Service:       p.Service,
					Class:         model.CategoryAnalytics,
					Source:        model.ProvenanceTrackingIDPattern,
					Pattern:       Redact(p.Prefix),
					ComponentSlug: slug,
				})
			}
		}
	}
}

// FindTrackingIDsInValue returns the tracking prefixes with an identifier
// anywhere in a stored value. Structured values (YAML or JSON) are walked
// recursively; anything else is searched as plain text. Each prefix is
// reported once.
func FindTrackingIDsInValue(raw string) []TrackingPrefix {
	var decoded any
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil || decoded == nil {
		decoded = raw
	}

	var found []TrackingPrefix
	collectTrackingIDs(decoded, &found)
	slices.SortFunc(found, func(a, b TrackingPrefix) int {
		return slices.Index(TrackingPrefixes, a) - slices.Index(TrackingPrefixes, b)
	})
	return found
}

func collectTrackingIDs(v any, found *[]TrackingPrefix) {
	switch val := v.(type) {
	case string:
		for _, p := range findTrackingPrefixes(val) {
			if !slices.Contains(*found, p) {
				*found = append(*found, p)
			}
		}
	case []any:
		for _, item := range val {
			collectTrackingIDs(item, found)
		}
	case map[any]any:
		for _, item := range val {
			collectTrackingIDs(item, found)
		}
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			collectTrackingIDs(val[k], found)
		}
	}
}
