package model

import "time"

// MatchType records which classification rule resolved a cookie name.
type MatchType string

const (
	MatchExact        MatchType = "exact"
	MatchPrefix       MatchType = "prefix"
	MatchHeuristic    MatchType = "heuristic"
	MatchUnclassified MatchType = "unclassified"
)

// CookieClassification is the result of resolving a bare cookie or
// storage key name against the reference tables.
type CookieClassification struct {
	Category  Category  `json:"category"`
	Service   string    `json:"service"`
	Purpose   string    `json:"purpose,omitempty"`
	Duration  string    `json:"duration,omitempty"`
	MatchType MatchType `json:"match_type"`

	// Component is the reference component id that declared the cookie.
	// Empty for core, heuristic and unclassified matches.
	Component string `json:"component,omitempty"`
}

// Unclassified is the fallback classification.
func Unclassified() CookieClassification {
	return CookieClassification{
		Category:  CategoryUnclassified,
		MatchType: MatchUnclassified,
	}
}

// LiveCookie is a cookie observed at runtime, aggregated across pages.
type LiveCookie struct {
	Name string `json:"name"`

	// Pages lists the page ids the cookie was seen on, first-seen order.
	Pages []string `json:"page"`

	CookieClassification
}

// StorageType is the browser storage area a key was found in.
type StorageType string

const (
	LocalStorage   StorageType = "localStorage"
	SessionStorage StorageType = "sessionStorage"
)

// LiveStorage is a storage key observed at runtime.
type LiveStorage struct {
	Name  string      `json:"name"`
	Type  StorageType `json:"type"`
	Pages []string    `json:"page"`

	CookieClassification
}

// LiveResult is what the finalize step returns: classified runtime
// evidence plus the merged content finding of every reachable page.
type LiveResult struct {
	Cookies []LiveCookie  `json:"live_cookies"`
	Storage []LiveStorage `json:"live_storage"`

	Content ContentFinding `json:"content"`

	// PageStatus maps page ids to their terminal visit state.
	PageStatus map[string]PageStatus `json:"page_status"`

	PagesScanned int       `json:"pages_scanned"`
	Timestamp    time.Time `json:"timestamp"`
}

// ConfirmedCookieNames returns the names of every live cookie.
func (r *LiveResult) ConfirmedCookieNames() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.Cookies))
	for _, c := range r.Cookies {
		names = append(names, c.Name)
	}
	return names
}
