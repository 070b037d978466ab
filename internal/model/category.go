package model

import "strings"

// Category is the consent category a cookie, storage key or service belongs to.
type Category string

const (
	// CategoryMarketing covers advertising, retargeting and social tracking.
	CategoryMarketing Category = "marketing"

	// CategoryAnalytics covers statistics and session recording.
	CategoryAnalytics Category = "analytics"

	// CategoryOther is used for third parties whose purpose is not known,
	// for example a tracking script host without a reference entry.
	CategoryOther Category = "other"

	// CategoryFunctional covers embeds, chat widgets and preferences.
	CategoryFunctional Category = "functional"

	// CategoryNecessary covers cookies the site cannot work without.
	CategoryNecessary Category = "necessary"

	// CategoryUnclassified is the fallback when no rule matched.
	CategoryUnclassified Category = "unclassified"
)

// categoryPriority orders categories for presentation.
// Lower values are shown first.
var categoryPriority = map[Category]int{
	CategoryMarketing:    0,
	CategoryAnalytics:    1,
	CategoryOther:        2,
	CategoryFunctional:   3,
	CategoryNecessary:    4,
	CategoryUnclassified: 5,
}

// ParseCategory converts a free-form category string from reference data
// into a Category. Unknown or empty values become CategoryUnclassified.
func ParseCategory(s string) Category {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := categoryPriority[c]; ok {
		return c
	}
	if c == "statistics" {
		return CategoryAnalytics
	}
	return CategoryUnclassified
}

// Priority returns the sort rank of the category.
// marketing < analytics < other < functional < necessary < unclassified.
func (c Category) Priority() int {
	if p, ok := categoryPriority[c]; ok {
		return p
	}
	return categoryPriority[CategoryUnclassified]
}

// RequiresConsent reports whether items of this category must be blocked
// until the visitor consents. Necessary and functional items are exempt.
func (c Category) RequiresConsent() bool {
	return c != CategoryNecessary && c != CategoryFunctional
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}
